// Package localstore provides the durable per-user snapshot slot backing the
// task cache.
//
// The store is a synchronous key-value facility keyed by user identifier.
// Environments may refuse to open the backing database (read-only volume,
// missing permissions); in that case callers receive a degraded store whose
// reads always miss and whose writes are no-ops, so the cache falls back to
// pure in-memory behavior instead of failing.
package localstore

import (
	"time"

	"github.com/taskdeck/taskdeck/internal/task"
)

// keyPrefix namespaces snapshot keys so a schema change can bump the version
// and orphan old entries instead of misreading them.
const keyPrefix = "taskcache:v1:"

// Snapshot is the persisted bundle for one user: the task list, the time of
// the last successful sync, and the owning user. A snapshot whose UserID
// disagrees with the requesting user is treated as corrupt by the cache.
type Snapshot struct {
	UserID   string      `json:"user_id"`
	Tasks    []task.Task `json:"tasks"`
	SyncedAt time.Time   `json:"synced_at"`
}

// Store is the durable local store contract.
//
// All operations are synchronous and must never panic. Implementations
// degrade gracefully: when the backing medium is unavailable, Read reports a
// miss, Write and Delete are no-ops, and Available returns false.
type Store interface {
	// Read returns the snapshot for userID, or ok=false on miss, decode
	// failure, or unavailable store.
	Read(userID string) (snap *Snapshot, ok bool)

	// Write persists the snapshot under userID, replacing any previous one.
	Write(userID string, snap *Snapshot) error

	// Delete removes the snapshot for userID. Removing a missing snapshot
	// is not an error.
	Delete(userID string) error

	// Available reports whether the backing medium accepted operations at
	// open time.
	Available() bool

	// Close releases the backing medium.
	Close() error
}

func snapshotKey(userID string) []byte {
	return []byte(keyPrefix + userID)
}
