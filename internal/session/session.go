// Package session bridges the task cache into a reactive consumer with
// zero-latency first read.
//
// A Session is the per-view integration point: it exposes the cache's
// snapshot synchronously from the moment of construction (no loading state),
// re-reads it on every cache change, and runs the background refresh
// triggers: a periodic timer gated on foreground visibility, signals that
// force a sync on focus or reconnect, and a debounced user-activity
// trigger. Everything is torn down by Close.
package session

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskdeck/taskdeck/internal/cache"
	"github.com/taskdeck/taskdeck/internal/task"
)

// Signal is an environment event forwarded by the embedding surface.
type Signal int

const (
	// SignalVisible fires when the surface becomes foreground-visible.
	SignalVisible Signal = iota
	// SignalHidden fires when the surface leaves the foreground.
	SignalHidden
	// SignalFocus fires when the surface gains input focus.
	SignalFocus
	// SignalOnline fires when network connectivity returns.
	SignalOnline
)

const (
	// DefaultSyncEvery is the periodic background sync interval.
	DefaultSyncEvery = 30 * time.Second
	// DefaultActivityQuiet is the debounce window for activity-triggered
	// syncs.
	DefaultActivityQuiet = 2 * time.Second
)

// Options configures a Session.
type Options struct {
	// SyncEvery overrides DefaultSyncEvery when positive.
	SyncEvery time.Duration
	// ActivityQuiet overrides DefaultActivityQuiet when positive.
	ActivityQuiet time.Duration
	// Logger for session activity. Defaults to a stderr logger.
	Logger *log.Logger
}

// Session exposes one user's live task list plus background sync machinery.
type Session struct {
	mgr    *cache.Manager
	logger *log.Logger

	syncEvery     time.Duration
	activityQuiet time.Duration

	mu    sync.Mutex
	tasks []task.Task

	listenerID int
	visible    atomic.Bool
	syncing    atomic.Int32

	updates  chan struct{}
	activity chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a session over the user's cache manager. The returned session
// already holds the current snapshot, so the very first Tasks call observes
// cached content with no intermediate empty state. If the snapshot is empty
// or old enough to need refresh, a non-blocking sync starts immediately:
// a full ForceSync when empty (the user must eventually see data), a casual
// BackgroundSync otherwise.
func New(mgr *cache.Manager, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	if opts.SyncEvery <= 0 {
		opts.SyncEvery = DefaultSyncEvery
	}
	if opts.ActivityQuiet <= 0 {
		opts.ActivityQuiet = DefaultActivityQuiet
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		mgr:           mgr,
		logger:        opts.Logger,
		syncEvery:     opts.SyncEvery,
		activityQuiet: opts.ActivityQuiet,
		updates:       make(chan struct{}, 1),
		activity:      make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}
	s.visible.Store(true)

	// Synchronous first read: this happens before New returns.
	s.tasks = mgr.GetSnapshot()

	s.listenerID = mgr.AddListener(s.onCacheChange)

	empty := len(s.tasks) == 0
	if empty {
		// Nothing cached: sync unconditionally, but without a syncing
		// indicator. An empty cache must not look like a loading state.
		s.launchSync(false, s.mgr.ForceSync)
	} else if mgr.NeedsRefresh() {
		s.launchSync(true, s.mgr.BackgroundSync)
	}

	s.wg.Add(2)
	go s.periodicLoop()
	go s.activityLoop()

	return s
}

// Tasks returns the live task list.
func (s *Session) Tasks() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return task.CloneAll(s.tasks)
}

// Syncing reports whether a user-relevant sync is in flight. It is false
// while the cache is empty even if a sync is running.
func (s *Session) Syncing() bool {
	return s.syncing.Load() > 0
}

// LastError returns the cache's advisory error state; non-fatal, for subtle
// indicators only.
func (s *Session) LastError() error {
	return s.mgr.LastError()
}

// Updates returns a nudge channel that receives after every cache change.
// At most one nudge is buffered; consumers re-read Tasks on receipt.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// AddTask creates a task through the cache. The optimistic entry is visible
// in Tasks before this returns on the success path's first commit; failures
// roll back and are returned.
func (s *Session) AddTask(ctx context.Context, draft task.Draft) (task.Task, error) {
	return s.mgr.AddTask(ctx, draft)
}

// UpdateTask applies a partial update through the cache.
func (s *Session) UpdateTask(ctx context.Context, id string, patch task.Patch) (task.Task, error) {
	return s.mgr.UpdateTask(ctx, id, patch)
}

// DeleteTask removes a task through the cache.
func (s *Session) DeleteTask(ctx context.Context, id string) error {
	return s.mgr.DeleteTask(ctx, id)
}

// PurgeTempTasks removes lingering temporary tasks left by interrupted
// creation flows.
func (s *Session) PurgeTempTasks() int {
	return s.mgr.PurgeTempTasks()
}

// ClearCache wipes the user's cached snapshot. For logout.
func (s *Session) ClearCache() {
	s.mgr.Clear()
}

// Signal forwards an environment event. Visible, focus, and reconnect
// events force a sync; hidden pauses the periodic timer.
func (s *Session) Signal(sig Signal) {
	switch sig {
	case SignalVisible:
		s.visible.Store(true)
		s.launchSync(true, s.mgr.ForceSync)
	case SignalHidden:
		s.visible.Store(false)
	case SignalFocus, SignalOnline:
		s.launchSync(true, s.mgr.ForceSync)
	}
}

// Activity records user activity (pointer, key, scroll). A background sync
// runs after the configured quiet period; repeated activity keeps pushing
// the deadline out.
func (s *Session) Activity() {
	select {
	case s.activity <- struct{}{}:
	default:
	}
}

// Close removes the cache listener, stops all timers and goroutines, and
// waits for them to exit. The session must not be used afterwards.
func (s *Session) Close() {
	s.mgr.RemoveListener(s.listenerID)
	s.cancel()
	s.wg.Wait()
}

// onCacheChange re-reads the snapshot and nudges consumers.
func (s *Session) onCacheChange() {
	snap := s.mgr.GetSnapshot()

	s.mu.Lock()
	s.tasks = snap
	s.mu.Unlock()

	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// launchSync runs fn in the background. The syncing indicator is raised
// only when indicate is true and there is cached content to show.
func (s *Session) launchSync(indicate bool, fn func(context.Context) []task.Task) {
	showIndicator := indicate && len(s.mgr.GetSnapshot()) > 0
	if showIndicator {
		s.syncing.Add(1)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if showIndicator {
			defer s.syncing.Add(-1)
		}
		fn(s.ctx)
	}()
}

// periodicLoop syncs on a timer while foreground-visible.
func (s *Session) periodicLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.visible.Load() {
				s.launchSync(true, s.mgr.BackgroundSync)
			}
		}
	}
}

// activityLoop debounces activity pings into background syncs.
func (s *Session) activityLoop() {
	defer s.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-s.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-s.activity:
			if timer == nil {
				timer = time.NewTimer(s.activityQuiet)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.activityQuiet)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			s.launchSync(true, s.mgr.BackgroundSync)
		}
	}
}

// IsClosed reports whether Close has completed its cancellation. Intended
// for tests.
func (s *Session) IsClosed() bool {
	return errors.Is(s.ctx.Err(), context.Canceled)
}
