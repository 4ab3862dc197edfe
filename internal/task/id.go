package task

import (
	"strings"

	"github.com/google/uuid"
)

// TempIDPrefix marks identifiers minted locally before the remote store has
// assigned a durable one. A task whose ID carries this prefix has never been
// persisted remotely.
const TempIDPrefix = "temp-"

// NewTempID mints a temporary identifier for an optimistic task.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// NewID mints a durable identifier. Used by store implementations that
// assign IDs locally (the hosted backend assigns its own).
func NewID() string {
	return uuid.NewString()
}

// IsTempID reports whether id belongs to the temporary namespace.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
