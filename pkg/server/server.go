package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/harun/agentbridge/internal/observability"
	"github.com/harun/agentbridge/pkg/agent"
	"github.com/harun/agentbridge/pkg/commandqueue"
)

const maxBodyBytes = 4 << 20

// Server is the agent HTTP host.
type Server struct {
	options        Options
	runner         *agent.Runner
	queue          *commandqueue.CommandQueue
	upgrader       websocket.Upgrader
	server         *http.Server
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// Options holds listener and request settings.
type Options struct {
	Host              string
	Port              int
	ReadHeaderTimeout time.Duration
	AllowedOrigins    []string

	// RunWarnAfter logs runs left waiting in their thread lane this long.
	RunWarnAfter time.Duration

	Metrics bool
}

// Config holds server dependencies.
type Config struct {
	Options Options
	Runner  *agent.Runner
	Queue   *commandqueue.CommandQueue
	Logger  zerolog.Logger
}

// NewServer creates a new server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("agent runner is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("command queue is required")
	}

	options := cfg.Options
	if options.Port == 0 {
		options.Port = 8000
	}
	if options.ReadHeaderTimeout == 0 {
		options.ReadHeaderTimeout = 10 * time.Second
	}
	if options.RunWarnAfter == 0 {
		options.RunWarnAfter = 30 * time.Second
	}

	s := &Server{
		options:   options,
		runner:    cfg.Runner,
		queue:     cfg.Queue,
		logger:    cfg.Logger,
		startTime: time.Now(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/agent", s.handleAgent)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.options.Metrics {
		mux.Handle("/metrics", observability.MetricsHandler())
	}
	return mux
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.options.ReadHeaderTimeout,
	}

	s.shutdownMu.Lock()
	if s.isShuttingDown {
		s.shutdownMu.Unlock()
		return nil
	}
	s.server = httpServer
	s.shutdownMu.Unlock()

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting agent server")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start agent server: %w", err)
	}
	return nil
}

// Stop refuses new runs, waits for in-flight ones until ctx expires, then
// shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	httpServer := s.server
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down agent server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight runs completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown agent server: %w", err)
	}

	s.logger.Info().Msg("Agent server stopped")
	return nil
}

// admit rejects requests that arrive once shutdown has begun.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) bool {
	s.shutdownMu.RLock()
	shuttingDown := s.isShuttingDown
	s.shutdownMu.RUnlock()
	if shuttingDown {
		s.logger.Debug().Str("path", r.URL.Path).Msg("Request rejected during shutdown")
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if ip, _, found := strings.Cut(forwarded, ","); found {
			return strings.TrimSpace(ip)
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.options.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.options.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"lanes":     len(s.queue.GetStats()),
		"timestamp": time.Now().UnixMilli(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
