package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Listener subscribes to a feed server for one user and invokes a trigger on
// every event. The event payload is ignored beyond decoding: any insert,
// update, or delete means "refetch", which is what the trigger (normally the
// cache manager's BackgroundSync) does.
type Listener struct {
	endpoint string
	userID   string
	trigger  func(context.Context)
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// ListenerConfig holds listener configuration.
type ListenerConfig struct {
	// Endpoint is the feed server base URL, e.g. "ws://localhost:8099".
	Endpoint string

	// UserID scopes the subscription.
	UserID string

	// Trigger is invoked on every event for UserID. Must be safe for
	// concurrent invocation with itself.
	Trigger func(context.Context)

	// Logger for listener activity (default: stderr logger).
	Logger *log.Logger
}

// NewListener creates a change feed listener. Start begins the
// subscription; Close tears it down.
func NewListener(config ListenerConfig) (*Listener, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if config.UserID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}
	if config.Trigger == nil {
		return nil, fmt.Errorf("trigger cannot be nil")
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[feed] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Listener{
		endpoint: config.Endpoint,
		userID:   config.UserID,
		trigger:  config.Trigger,
		logger:   config.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins the subscription loop in the background, reconnecting with
// backoff when the connection drops. Calling Start twice is an error.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return fmt.Errorf("listener already started")
	}
	l.started = true

	l.wg.Add(1)
	go l.run()
	return nil
}

// Close unsubscribes and waits for the read loop to exit.
func (l *Listener) Close() {
	l.cancel()
	l.wg.Wait()
}

// feedURL builds the subscription URL with the user filter.
func (l *Listener) feedURL() string {
	return l.endpoint + "/feed?user=" + url.QueryEscape(l.userID)
}

// run dials and reads until Close, reconnecting on failure.
func (l *Listener) run() {
	defer l.wg.Done()

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if l.ctx.Err() != nil {
			return
		}

		err := l.subscribe()
		if l.ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.Printf("feed connection lost for %s: %v (retrying in %s)", l.userID, err, backoff)
		}

		select {
		case <-l.ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// subscribe dials the server and processes events until the connection
// drops or the listener is closed.
func (l *Listener) subscribe() error {
	dialCtx, cancel := context.WithTimeout(l.ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, l.feedURL(), nil)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to dial feed: %w", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	l.logger.Printf("subscribed to change feed for %s", l.userID)

	for {
		_, data, err := conn.Read(l.ctx)
		if err != nil {
			return err
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			// Undecodable frames still mean something changed.
			l.logger.Printf("WARNING: undecodable feed event, refetching anyway: %v", err)
		} else if ev.UserID != "" && ev.UserID != l.userID {
			// Server-side filtering should prevent this; skip it anyway.
			continue
		}

		l.trigger(l.ctx)
	}
}
