// Package daemon runs the background half of taskdeck: it keeps one user's
// cache synchronized on a timer, hosts the change feed subscription, and
// imports task drafts dropped into an inbox directory.
//
// The inbox is a headless creation path: any process can drop a JSON draft
// file into the directory and the daemon routes it through the cache
// manager's optimistic-create flow. Imported files are removed; undecodable
// or invalid drafts are renamed aside with a .rejected suffix so they can be
// inspected instead of silently retried forever.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/taskdeck/taskdeck/internal/cache"
	"github.com/taskdeck/taskdeck/internal/feed"
	"github.com/taskdeck/taskdeck/internal/task"
)

// Config holds configuration for the daemon.
type Config struct {
	// InboxDir is the watched directory for dropped task drafts.
	InboxDir string

	// SyncInterval is how often to run a background sync (default 30s).
	SyncInterval time.Duration

	// DebounceInterval is how long to wait before processing inbox file
	// changes, batching rapid writes together (default 100ms).
	DebounceInterval time.Duration

	// FeedEndpoint, when set, subscribes to the change feed at this base
	// URL (e.g. "ws://localhost:8099") so remote changes trigger immediate
	// refetches instead of waiting for the timer.
	FeedEndpoint string

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     30 * time.Second,
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// draftFile is the on-disk shape of an inbox draft.
type draftFile struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Status      string     `json:"status,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Assignees   []string   `json:"assignees,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

func (d *draftFile) toDraft() task.Draft {
	return task.Draft{
		Title:       d.Title,
		Description: d.Description,
		Priority:    task.Priority(d.Priority),
		Status:      task.Status(d.Status),
		DueDate:     d.DueDate,
		Assignees:   d.Assignees,
		Tags:        d.Tags,
	}
}

// Daemon orchestrates inbox watching, feed listening, and periodic sync for
// one user's cache manager.
type Daemon struct {
	mgr    *cache.Manager
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> queued-at
	changeQueueMu sync.Mutex

	feedListener *feed.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon for the given cache manager. Use Start to begin.
func New(mgr *cache.Manager, config *Config) (*Daemon, error) {
	if mgr == nil {
		return nil, fmt.Errorf("manager cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = 30 * time.Second
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 100 * time.Millisecond
	}
	if config.InboxDir == "" {
		return nil, fmt.Errorf("inboxDir cannot be empty")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		mgr:         mgr,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation: an initial sync and inbox sweep,
// then file watching, debounced import, periodic sync, and (when
// configured) the change feed subscription. Blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := os.MkdirAll(d.config.InboxDir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}

	// Initial state: refresh the cache and drain anything already waiting
	// in the inbox.
	d.mgr.BackgroundSync(d.ctx)
	d.sweepInbox()

	if err := d.watcher.Add(d.config.InboxDir); err != nil {
		return fmt.Errorf("failed to watch inbox directory: %w", err)
	}
	d.config.Logger.Printf("Watching inbox: %s", d.config.InboxDir)

	if d.config.FeedEndpoint != "" {
		listener, err := feed.NewListener(feed.ListenerConfig{
			Endpoint: d.config.FeedEndpoint,
			UserID:   d.mgr.UserID(),
			Trigger:  func(ctx context.Context) { d.mgr.BackgroundSync(ctx) },
			Logger:   d.config.Logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create feed listener: %w", err)
		}
		if err := listener.Start(); err != nil {
			return fmt.Errorf("failed to start feed listener: %w", err)
		}
		d.feedListener = listener
	}

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.periodicSync()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
	if d.feedListener != nil {
		d.feedListener.Close()
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// sweepInbox imports every draft already present in the inbox directory.
// Individual file failures are logged but don't stop the sweep.
func (d *Daemon) sweepInbox() {
	entries, err := os.ReadDir(d.config.InboxDir)
	if err != nil {
		d.config.Logger.Printf("WARNING: failed to read inbox: %v", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(d.config.InboxDir, entry.Name())
		if err := d.importDraft(path); err != nil {
			d.config.Logger.Printf("WARNING: failed to import %s: %v", entry.Name(), err)
		}
	}
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue imports queued files once they have been quiet for the
// debounce interval.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges imports files that have been queued for long enough.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	var ready []string
	now := time.Now()
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	for _, path := range ready {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // consumed or removed in the meantime
		}
		if err := d.importDraft(path); err != nil {
			d.config.Logger.Printf("WARNING: failed to import %s: %v", filepath.Base(path), err)
		}
	}
}

// importDraft reads a draft file, creates the task through the cache, and
// consumes the file. Undecodable or invalid drafts are renamed aside with a
// .rejected suffix.
func (d *Daemon) importDraft(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read draft: %w", err)
	}

	var df draftFile
	if err := json.Unmarshal(data, &df); err != nil {
		d.rejectDraft(path)
		return fmt.Errorf("failed to parse draft: %w", err)
	}

	draft := df.toDraft()
	candidate := task.FromDraft(draft)
	if err := candidate.Validate(); err != nil {
		// Invalid drafts stay invalid; set them aside instead of retrying.
		d.rejectDraft(path)
		return fmt.Errorf("invalid draft: %w", err)
	}

	created, err := d.mgr.AddTask(d.ctx, draft)
	if err != nil {
		// Likely a remote failure; leave the file for a later sweep.
		return fmt.Errorf("failed to create task from draft: %w", err)
	}

	if err := os.Remove(path); err != nil {
		d.config.Logger.Printf("WARNING: imported %s but could not remove the file: %v", filepath.Base(path), err)
	}

	d.config.Logger.Printf("Imported task from inbox: %s (%s)", created.ID, created.Title)
	return nil
}

// rejectDraft renames a bad draft aside so it is not retried.
func (d *Daemon) rejectDraft(path string) {
	if err := os.Rename(path, path+".rejected"); err != nil {
		d.config.Logger.Printf("WARNING: failed to set aside rejected draft %s: %v", filepath.Base(path), err)
	}
}

// periodicSync refreshes the cache on the configured interval.
func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.mgr.BackgroundSync(d.ctx)
		}
	}
}
