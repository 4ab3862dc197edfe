// Package cache implements the per-user task cache with optimistic mutations
// and background synchronization against the remote store.
//
// The manager owns one user's snapshot: an in-memory task list mirrored to
// the durable local store for instant load on the next start. Reads are
// synchronous and never fail. Mutations apply optimistically, commit to the
// remote store, and either reconcile with the confirmed row or roll back to
// the exact pre-mutation snapshot. Syncs and mutations are not sequenced
// against each other; the most recent snapshot write wins.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/taskdeck/taskdeck/internal/localstore"
	"github.com/taskdeck/taskdeck/internal/remote"
	"github.com/taskdeck/taskdeck/internal/task"
)

// ErrTaskNotFound is returned by UpdateTask and DeleteTask when the
// identifier is absent from the current snapshot. The snapshot is untouched.
var ErrTaskNotFound = errors.New("cache: task not found")

// AgeInfinite is reported by Age when no snapshot has ever been written.
const AgeInfinite = time.Duration(math.MaxInt64)

const (
	// DefaultRefreshAfter is the age beyond which a snapshot needs refresh.
	DefaultRefreshAfter = 5 * time.Minute
	// DefaultStaleAfter is the shorter age that forces a sync even when a
	// casual refresh would be skipped.
	DefaultStaleAfter = 60 * time.Second
)

// Options configures a Manager.
type Options struct {
	// RefreshAfter overrides DefaultRefreshAfter when positive.
	RefreshAfter time.Duration
	// StaleAfter overrides DefaultStaleAfter when positive.
	StaleAfter time.Duration
	// Logger for cache activity. Defaults to a stderr logger.
	Logger *log.Logger
}

// syncResult carries the outcome of a shared fetch to joined callers.
type syncResult struct {
	tasks []task.Task
	err   error
}

// Manager is the task cache for a single user. Create instances through a
// Registry so repeated requests for the same user share state.
type Manager struct {
	userID       string
	local        localstore.Store
	remote       remote.Store
	logger       *log.Logger
	refreshAfter time.Duration
	staleAfter   time.Duration

	mu       sync.Mutex
	tasks    []task.Task
	syncedAt time.Time
	lastErr  error

	// inflight collapses concurrent remote reads into one.
	inflight chan *syncResult

	listenersMu sync.Mutex
	listeners   []listenerEntry
	nextID      int
}

type listenerEntry struct {
	id int
	fn func()
}

// NewManager builds a cache manager for userID. Any snapshot already in the
// local store is loaded immediately; a snapshot tagged with a different
// owning user is treated as corrupt, discarded, and replaced with empty
// state.
func NewManager(userID string, local localstore.Store, rs remote.Store, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	if opts.RefreshAfter <= 0 {
		opts.RefreshAfter = DefaultRefreshAfter
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}

	m := &Manager{
		userID:       userID,
		local:        local,
		remote:       rs,
		logger:       opts.Logger,
		refreshAfter: opts.RefreshAfter,
		staleAfter:   opts.StaleAfter,
	}
	m.loadFromLocal()
	return m
}

// UserID returns the owning user of this manager.
func (m *Manager) UserID() string { return m.userID }

// loadFromLocal primes the in-memory snapshot from the durable store.
func (m *Manager) loadFromLocal() {
	snap, ok := m.local.Read(m.userID)
	if !ok {
		return
	}
	if snap.UserID != m.userID {
		m.logger.Printf("WARNING: snapshot owner mismatch (%s != %s), discarding", snap.UserID, m.userID)
		if err := m.local.Delete(m.userID); err != nil {
			m.logger.Printf("WARNING: failed to discard mismatched snapshot: %v", err)
		}
		return
	}

	m.mu.Lock()
	m.tasks = snap.Tasks
	m.syncedAt = snap.SyncedAt
	m.mu.Unlock()
}

// GetSnapshot returns the current task list. Synchronous, never blocks on
// I/O, never fails; an empty list is returned when no valid snapshot exists.
func (m *Manager) GetSnapshot() []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return task.CloneAll(m.tasks)
}

// SetSnapshot replaces the snapshot, persists it, stamps the last-synced
// time, and notifies every registered listener after the write completes.
func (m *Manager) SetSnapshot(tasks []task.Task) {
	now := time.Now()
	clone := task.CloneAll(tasks)

	m.mu.Lock()
	m.tasks = clone
	m.syncedAt = now
	m.mu.Unlock()

	snap := &localstore.Snapshot{UserID: m.userID, Tasks: clone, SyncedAt: now}
	if err := m.local.Write(m.userID, snap); err != nil {
		// Local persistence is best-effort; the in-memory snapshot stands.
		m.logger.Printf("WARNING: failed to persist snapshot: %v", err)
	}

	m.notify()
}

// Clear removes the persisted snapshot and notifies listeners with an empty
// result. Used at logout.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.tasks = nil
	m.syncedAt = time.Time{}
	m.lastErr = nil
	m.mu.Unlock()

	if err := m.local.Delete(m.userID); err != nil {
		m.logger.Printf("WARNING: failed to clear snapshot: %v", err)
	}

	m.notify()
}

// Age returns the time since the last successful SetSnapshot, or AgeInfinite
// when no snapshot exists.
func (m *Manager) Age() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncedAt.IsZero() {
		return AgeInfinite
	}
	return time.Since(m.syncedAt)
}

// NeedsRefresh reports whether the snapshot is old enough for a casual
// background refresh.
func (m *Manager) NeedsRefresh() bool {
	return m.Age() > m.refreshAfter
}

// IsStale reports whether the snapshot is old enough to force a sync.
func (m *Manager) IsStale() bool {
	return m.Age() > m.staleAfter
}

// LastError returns the advisory error recorded by the most recent failed
// background operation, or nil. It is cleared by the next successful sync.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// FetchFromRemote queries the remote store for all of this user's tasks and,
// on success, commits the result via SetSnapshot before returning it.
func (m *Manager) FetchFromRemote(ctx context.Context) ([]task.Task, error) {
	res := m.fetchShared(ctx)
	return res.tasks, res.err
}

// fetchShared performs the remote read, collapsing concurrent callers onto a
// single in-flight request.
func (m *Manager) fetchShared(ctx context.Context) *syncResult {
	m.mu.Lock()
	if m.inflight != nil {
		ch := m.inflight
		m.mu.Unlock()
		res := <-ch
		ch <- res // put back for other joiners
		return res
	}
	ch := make(chan *syncResult, 1)
	m.inflight = ch
	m.mu.Unlock()

	tasks, err := m.remote.FetchAll(ctx, m.userID)

	res := &syncResult{}
	if err != nil {
		res.err = fmt.Errorf("failed to fetch tasks from remote: %w", err)
		m.mu.Lock()
		m.lastErr = res.err
		m.inflight = nil
		m.mu.Unlock()
	} else {
		m.mu.Lock()
		m.lastErr = nil
		m.inflight = nil
		m.mu.Unlock()
		m.SetSnapshot(tasks)
		res.tasks = task.CloneAll(tasks)
	}

	ch <- res
	return res
}

// BackgroundSync refreshes the snapshot if it is stale or needs refresh.
// Fresh snapshots are returned without a remote call. Failures are swallowed
// and the last good snapshot is returned; background sync must never crash
// its caller.
func (m *Manager) BackgroundSync(ctx context.Context) []task.Task {
	if !m.IsStale() && !m.NeedsRefresh() {
		return m.GetSnapshot()
	}

	res := m.fetchShared(ctx)
	if res.err != nil {
		m.logger.Printf("background sync failed for %s: %v", m.userID, res.err)
		return m.GetSnapshot()
	}
	return res.tasks
}

// ForceSync unconditionally refetches from the remote store. On failure the
// existing snapshot is returned rather than an error.
func (m *Manager) ForceSync(ctx context.Context) []task.Task {
	res := m.fetchShared(ctx)
	if res.err != nil {
		m.logger.Printf("force sync failed for %s: %v", m.userID, res.err)
		return m.GetSnapshot()
	}
	return res.tasks
}

// AddTask creates a task optimistically and commits it to the remote store.
//
// The optimistic record carries a temporary identifier and is prepended to
// the snapshot before the remote insert is attempted, so observers see it
// immediately. On success the temporary record is replaced by the confirmed
// row. On failure the pre-mutation snapshot is restored exactly and the
// error is returned.
func (m *Manager) AddTask(ctx context.Context, draft task.Draft) (task.Task, error) {
	optimistic := task.FromDraft(draft)
	if err := optimistic.Validate(); err != nil {
		return task.Task{}, fmt.Errorf("invalid task: %w", err)
	}

	prev := m.GetSnapshot()

	next := append([]task.Task{optimistic}, prev...)
	m.SetSnapshot(next)

	confirmed, err := m.remote.Insert(ctx, m.userID, optimistic)
	if err != nil {
		m.SetSnapshot(prev)
		return task.Task{}, fmt.Errorf("failed to create task: %w", err)
	}

	m.replaceByID(optimistic.ID, confirmed)
	return confirmed, nil
}

// UpdateTask merges a partial update into the task and commits it.
//
// Returns ErrTaskNotFound without touching the snapshot when the identifier
// is absent. Otherwise the merged record is applied optimistically; on
// remote success the snapshot entry is reconciled with the confirmed row, on
// failure the pre-mutation snapshot is restored and the error returned.
func (m *Manager) UpdateTask(ctx context.Context, id string, patch task.Patch) (task.Task, error) {
	prev := m.GetSnapshot()

	existing, ok := findTask(prev, id)
	if !ok {
		return task.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	merged := existing.Apply(patch)
	if err := merged.Validate(); err != nil {
		return task.Task{}, fmt.Errorf("invalid update: %w", err)
	}

	m.SetSnapshot(replaceTask(prev, id, merged))

	confirmed, err := m.remote.Update(ctx, m.userID, id, merged)
	if err != nil {
		m.SetSnapshot(prev)
		return task.Task{}, fmt.Errorf("failed to update task %s: %w", id, err)
	}

	m.replaceByID(id, confirmed)
	return confirmed, nil
}

// DeleteTask removes a task.
//
// Returns ErrTaskNotFound when the identifier is absent. A task still in the
// temporary namespace has never reached the remote store, so it is removed
// locally with no remote call; that path cannot fail once the task is found.
// Durable tasks are removed optimistically, then deleted remotely; on
// failure the pre-mutation snapshot is restored (the task reappears).
func (m *Manager) DeleteTask(ctx context.Context, id string) error {
	prev := m.GetSnapshot()

	if _, ok := findTask(prev, id); !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	m.SetSnapshot(removeTask(prev, id))

	if task.IsTempID(id) {
		return nil
	}

	if err := m.remote.Delete(ctx, m.userID, id); err != nil {
		m.SetSnapshot(prev)
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// PurgeTempTasks removes any lingering temporary-identifier tasks from the
// snapshot. Defensive cleanup for creation flows interrupted mid-flight.
// Returns the number of tasks removed.
func (m *Manager) PurgeTempTasks() int {
	snap := m.GetSnapshot()

	kept := snap[:0]
	removed := 0
	for _, t := range snap {
		if task.IsTempID(t.ID) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	if removed > 0 {
		m.SetSnapshot(kept)
	}
	return removed
}

// AddListener registers a callback invoked after every successful
// SetSnapshot. Returns an identifier for RemoveListener. Callbacks run
// synchronously in registration order; a panicking listener is isolated and
// does not prevent later listeners from running.
func (m *Manager) AddListener(fn func()) int {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	m.nextID++
	m.listeners = append(m.listeners, listenerEntry{id: m.nextID, fn: fn})
	return m.nextID
}

// RemoveListener unregisters a callback by the identifier AddListener
// returned. Unknown identifiers are ignored.
func (m *Manager) RemoveListener(id int) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	for i, entry := range m.listeners {
		if entry.id == id {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

// notify invokes every listener, isolating panics so one broken observer
// cannot break cache notification for the rest.
func (m *Manager) notify() {
	m.listenersMu.Lock()
	entries := make([]listenerEntry, len(m.listeners))
	copy(entries, m.listeners)
	m.listenersMu.Unlock()

	for _, entry := range entries {
		m.safeInvoke(entry.fn)
	}
}

func (m *Manager) safeInvoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("WARNING: cache listener panicked: %v", r)
		}
	}()
	fn()
}

// replaceByID swaps the entry matching id in the *current* snapshot with the
// confirmed row. If a concurrent sync already removed the entry, the
// confirmed row is prepended instead so the mutation's result is not lost.
func (m *Manager) replaceByID(id string, confirmed task.Task) {
	snap := m.GetSnapshot()
	if _, ok := findTask(snap, id); ok {
		m.SetSnapshot(replaceTask(snap, id, confirmed))
		return
	}
	if _, ok := findTask(snap, confirmed.ID); ok {
		m.SetSnapshot(replaceTask(snap, confirmed.ID, confirmed))
		return
	}
	m.SetSnapshot(append([]task.Task{confirmed}, snap...))
}

func findTask(tasks []task.Task, id string) (task.Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return task.Task{}, false
}

func replaceTask(tasks []task.Task, id string, with task.Task) []task.Task {
	out := make([]task.Task, len(tasks))
	copy(out, tasks)
	for i, t := range out {
		if t.ID == id {
			out[i] = with
			break
		}
	}
	return out
}

func removeTask(tasks []task.Task, id string) []task.Task {
	out := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
