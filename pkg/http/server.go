package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"commetrics-server/pkg/metrics"
	"commetrics-server/pkg/version"

	"github.com/sirupsen/logrus"
)

// Middleware wraps a handler
type Middleware interface {
	Middleware(next http.Handler) http.Handler
}

// Server serves the report API, health probes and metrics
type Server struct {
	config     *Config
	logger     *logrus.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	startTime  time.Time

	correlationMiddleware Middleware
	rateLimitMiddleware   Middleware
	tracingMiddleware     Middleware
	accessMiddleware      Middleware

	checks          []healthCheck
	statusProviders map[string]func() interface{}
	mu              sync.RWMutex
}

// NewServer creates a new HTTP server instance
func NewServer(logger *logrus.Logger, config *Config) *Server {
	if config == nil {
		config = NewDefaultConfig()
	}

	server := &Server{
		config:          config,
		logger:          logger,
		mux:             http.NewServeMux(),
		startTime:       time.Now(),
		statusProviders: make(map[string]func() interface{}),
	}

	server.mux.HandleFunc("/health", server.HealthHandler)
	server.mux.HandleFunc("/health/live", server.LivenessHandler)
	server.mux.HandleFunc("/health/ready", server.ReadinessHandler)
	server.mux.HandleFunc("/status", server.statusHandler)

	if config.EnableMetrics {
		metrics.RegisterHandler(server.mux)
		logger.Info("Prometheus metrics endpoint enabled at /metrics")
	} else {
		logger.Info("Metrics endpoint disabled")
	}

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      server.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return server
}

// SetCorrelationMiddleware sets the outermost middleware
func (s *Server) SetCorrelationMiddleware(middleware Middleware) {
	s.correlationMiddleware = middleware
	s.logger.Info("Correlation ID middleware configured")
}

// SetRateLimitMiddleware sets the per-client limiter applied to protected handlers
func (s *Server) SetRateLimitMiddleware(middleware Middleware) {
	s.rateLimitMiddleware = middleware
	s.logger.Info("Rate limit middleware configured")
}

// SetTracingMiddleware sets the middleware that opens a span per request
func (s *Server) SetTracingMiddleware(middleware Middleware) {
	s.tracingMiddleware = middleware
	s.logger.Info("Tracing middleware configured")
}

// SetAccessMiddleware sets the middleware guarding protected handlers
func (s *Server) SetAccessMiddleware(middleware Middleware) {
	s.accessMiddleware = middleware
	s.logger.Info("Access middleware configured")
}

// RegisterHandler adds a public handler to the server
func (s *Server) RegisterHandler(path string, handler http.HandlerFunc) {
	s.mux.HandleFunc(path, handler)
	s.logger.WithField("path", path).Info("Registered HTTP handler")
}

// RegisterProtectedHandler adds a handler that runs behind the tracing,
// rate limit and access middleware
func (s *Server) RegisterProtectedHandler(path string, handler http.HandlerFunc) {
	s.mux.Handle(path, s.protect(handler))
	s.logger.WithField("path", path).Info("Registered protected HTTP handler")
}

// protect resolves the middleware per request so it may be configured after registration
func (s *Server) protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler := next
		if s.accessMiddleware != nil {
			handler = s.accessMiddleware.Middleware(handler)
		}
		// throttled clients are rejected before their token is checked
		if s.rateLimitMiddleware != nil {
			handler = s.rateLimitMiddleware.Middleware(handler)
		}
		if s.tracingMiddleware != nil {
			handler = s.tracingMiddleware.Middleware(handler)
		}
		handler.ServeHTTP(w, r)
	})
}

// Handler returns the root handler with the middleware chain applied
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", version.ServerHeader())

		handler := http.Handler(s.mux)
		// correlation is outermost so every rejection is logged with an ID
		if s.correlationMiddleware != nil {
			handler = s.correlationMiddleware.Middleware(handler)
		}
		handler.ServeHTTP(w, r)
	})
}

// AddStatusProvider adds a named value to the /status response
func (s *Server) AddStatusProvider(name string, provider func() interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusProviders[name] = provider
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind HTTP port %d: %w", s.config.Port, err)
	}

	s.logger.WithField("port", s.config.Port).Info("HTTP server listening")
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
		"version":    version.Version,
		"commit":     version.Commit,
		"started_at": s.startTime.Format(time.RFC3339),
	}

	s.mu.RLock()
	for name, provider := range s.statusProviders {
		status[name] = provider()
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
