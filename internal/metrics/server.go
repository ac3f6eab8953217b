package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dray-io/brokerstats/internal/logging"
)

// Server provides the observability HTTP endpoint. It serves /metrics
// for Prometheus scraping, /healthz for liveness, and any extra handlers
// mounted with Handle before Start.
type Server struct {
	mu        sync.RWMutex
	addr      string
	boundAddr string
	server    *http.Server
	registry  prometheus.Gatherer
	logger    *logging.Logger
	extra     map[string]http.Handler
}

// NewServer creates a new metrics server that listens on the given address.
// Uses the default Prometheus registry.
func NewServer(addr string) *Server {
	return &Server{
		addr:   addr,
		extra:  make(map[string]http.Handler),
		logger: logging.Global().Named("metrics"),
	}
}

// NewServerWithRegistry creates a new metrics server with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewServerWithRegistry(addr string, gatherer prometheus.Gatherer) *Server {
	s := NewServer(addr)
	s.registry = gatherer
	return s
}

// WithLogger sets the logger used for serve errors.
func (s *Server) WithLogger(logger *logging.Logger) *Server {
	s.logger = logger
	return s
}

// Handle mounts h at pattern. Must be called before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra[pattern] = h
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	s.mu.RLock()
	for pattern, h := range s.extra {
		mux.Handle(pattern, h)
	}
	s.mu.RUnlock()

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.server = srv
	s.boundAddr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("metrics server stopped", map[string]any{
				"addr":  ln.Addr().String(),
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Addr returns the actual bound address of the server.
// Returns the configured address if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.boundAddr != "" {
		return s.boundAddr
	}
	return s.addr
}

// Close shuts down the server.
func (s *Server) Close() error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
