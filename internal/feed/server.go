// Package feed provides the push-based change feed: a WebSocket server that
// broadcasts row-change events and a listener that turns those events into
// cache refreshes.
//
// The feed deliberately carries no row payloads. An event is a "something
// changed for this user, go refetch" signal; the listener never tries to
// merge pushed data into the cache. That trades a little efficiency for
// immunity to payload-shape drift between server and client versions.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// EventType is the kind of row change being announced.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is a change notification for one user's tasks. TaskID is advisory
// and may be empty; subscribers must not depend on it.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	TaskID    string    `json:"task_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Server broadcasts change events to subscribed WebSocket clients. Each
// client subscribes for a single user via the `user` query parameter and
// only receives that user's events.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]string // conn -> subscribed user

	broadcast chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// ServerConfig holds feed server configuration.
type ServerConfig struct {
	// Port to listen on (default 8099).
	Port int

	// Logger for server activity (default: log.Default).
	Logger *log.Logger
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:   8099,
		Logger: log.Default(),
	}
}

// NewServer creates a feed server.
func NewServer(config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf(":%d", config.Port),
		clients:   make(map[*websocket.Conn]string),
		broadcast: make(chan Event, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Start begins serving. Non-blocking; use Stop to shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", s.handleFeed)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Feed server listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server and closes all client connections.
func (s *Server) Stop() error {
	s.logger.Println("Stopping feed server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Feed server stopped")
	return nil
}

// Publish queues an event for broadcast. Dropped with a warning when the
// queue is full; the feed is advisory and subscribers refetch anyway.
func (s *Server) Publish(ev Event) {
	select {
	case s.broadcast <- ev:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping event")
	}
}

// broadcastLoop fans events out to subscribed clients.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case ev := <-s.broadcast:
			if ev.Timestamp.IsZero() {
				ev.Timestamp = time.Now()
			}

			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Printf("Failed to marshal event: %v", err)
				continue
			}

			s.clientsMu.RLock()
			targets := make([]*websocket.Conn, 0, len(s.clients))
			for conn, userID := range s.clients {
				if userID == ev.UserID {
					targets = append(targets, conn)
				}
			}
			s.clientsMu.RUnlock()

			// Write outside the read lock so a slow client cannot block
			// subscription changes.
			for _, conn := range targets {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleFeed upgrades the connection and registers the per-user
// subscription.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "missing user parameter", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = userID
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client subscribed for %s (total: %d)", userID, clientCount)

	go s.readLoop(conn)
}

// readLoop drains client frames until disconnect. Client messages are not
// processed; the feed is one-way.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, _, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
	}
}

// removeClient safely drops a client connection.
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": clientCount,
	})
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of subscribed clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
