// Package dashboard pushes live mirror events to websocket clients.
//
// The watch daemon reports changed files and completed syncs through a
// Handler. Clients connect on /ws and get one JSON Message per event, and
// the latest sync result right after connecting. /health and the prometheus
// /metrics endpoint are served on the same address.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultAddr is the listen address used when Config.Addr is empty.
const DefaultAddr = "127.0.0.1:8642"

// Config holds server configuration.
type Config struct {
	// Addr is the listen address. Port 0 picks a free port.
	Addr   string
	Logger *log.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:   DefaultAddr,
		Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// Server is the dashboard HTTP server.
type Server struct {
	addr   string
	logger *log.Logger
	hub    *hub

	// ctx ends the client goroutines on Stop.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	listener net.Listener
	http     *http.Server
}

// NewServer creates a server. Nothing listens before Start.
func NewServer(config *Config) *Server {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	addr, logger := config.Addr, config.Logger
	if addr == "" {
		addr = defaults.Addr
	}
	if logger == nil {
		logger = defaults.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		logger: logger,
		hub:    newHub(logger),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler returns the routes of the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWebSocket)
	mux.HandleFunc("/health", s.serveHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop disconnects all clients and shuts the server down. It is safe to
// call without Start.
func (s *Server) Stop() error {
	s.cancel()
	s.hub.closeAll()
	if s.http == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.http.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to shut down dashboard: %w", err)
	}
	s.logger.Println("Dashboard stopped")
	return nil
}

// Broadcast sends msg to every connected client without blocking. A zero
// timestamp is set to now.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("Failed to marshal %s message: %v", msg.Type, err)
		return
	}
	s.hub.publish(msg.Type, data)
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	c := s.hub.join(conn)
	go s.hub.writeLoop(s.ctx, c)
	go s.hub.readLoop(s.ctx, c)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// Addr returns the bound address after Start, the configured one before.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.hub.count()
}
