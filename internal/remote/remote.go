// Package remote defines the remote task store contract and its
// implementations.
//
// The remote store is the source of truth for task rows. The cache treats it
// as an external collaborator: every call may fail, and failures during
// mutations trigger rollback at the cache layer. Implementations must assign
// durable identifiers on insert and stamp server-side timestamps.
package remote

import (
	"context"
	"errors"

	"github.com/taskdeck/taskdeck/internal/task"
)

// ErrNotFound is returned by Update and Delete when no row matches the
// identifier for the given user.
var ErrNotFound = errors.New("remote: task not found")

// Store is the remote task store contract.
type Store interface {
	// FetchAll returns every task owned by userID, ordered by creation time
	// descending.
	FetchAll(ctx context.Context, userID string) ([]task.Task, error)

	// Insert persists a new task and returns the confirmed row with a
	// durable identifier and server timestamps. The input's temporary
	// identifier is discarded.
	Insert(ctx context.Context, userID string, t task.Task) (task.Task, error)

	// Update replaces the stored row id with the supplied record and
	// returns the confirmed row. Returns ErrNotFound if no such row exists
	// for userID.
	Update(ctx context.Context, userID, id string, t task.Task) (task.Task, error)

	// Delete removes the row. Returns ErrNotFound if no such row exists
	// for userID.
	Delete(ctx context.Context, userID, id string) error
}
