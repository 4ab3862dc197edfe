package remote

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/taskdeck/taskdeck/internal/task"
)

// Breaker wraps a Store with a circuit breaker so a flapping backend trips
// open instead of being hammered by every background sync. While the breaker
// is open, calls fail fast with gobreaker.ErrOpenState; the cache already
// treats read failures as non-fatal, so an open breaker degrades to serving
// the last good snapshot.
type Breaker struct {
	store Store
	reads *gobreaker.CircuitBreaker[[]task.Task]
	write *gobreaker.CircuitBreaker[task.Task]
	del   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker wraps store. Not-found errors do not count as failures; they
// are caller errors, not backend health signals.
func NewBreaker(store Store) *Breaker {
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || err == ErrNotFound
			},
		}
	}

	return &Breaker{
		store: store,
		reads: gobreaker.NewCircuitBreaker[[]task.Task](settings("remote-reads")),
		write: gobreaker.NewCircuitBreaker[task.Task](settings("remote-writes")),
		del:   gobreaker.NewCircuitBreaker[struct{}](settings("remote-deletes")),
	}
}

// FetchAll implements Store.FetchAll.
func (b *Breaker) FetchAll(ctx context.Context, userID string) ([]task.Task, error) {
	return b.reads.Execute(func() ([]task.Task, error) {
		return b.store.FetchAll(ctx, userID)
	})
}

// Insert implements Store.Insert.
func (b *Breaker) Insert(ctx context.Context, userID string, t task.Task) (task.Task, error) {
	return b.write.Execute(func() (task.Task, error) {
		return b.store.Insert(ctx, userID, t)
	})
}

// Update implements Store.Update.
func (b *Breaker) Update(ctx context.Context, userID, id string, t task.Task) (task.Task, error) {
	return b.write.Execute(func() (task.Task, error) {
		return b.store.Update(ctx, userID, id, t)
	})
}

// Delete implements Store.Delete.
func (b *Breaker) Delete(ctx context.Context, userID, id string) error {
	_, err := b.del.Execute(func() (struct{}, error) {
		return struct{}{}, b.store.Delete(ctx, userID, id)
	})
	return err
}
