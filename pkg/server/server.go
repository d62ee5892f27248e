package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"stratum-hq/bastion/pkg/audit/recorder"
	"stratum-hq/bastion/pkg/audit/report"
	"stratum-hq/bastion/pkg/config"
	"stratum-hq/bastion/pkg/policy"
	"stratum-hq/bastion/pkg/search"
	"stratum-hq/bastion/pkg/store"
	"stratum-hq/bastion/pkg/telemetry/health"
	"stratum-hq/bastion/pkg/telemetry/metrics"
)

// Deps bundles the components the server dispatches to.
type Deps struct {
	Store    store.Store
	Recorder *recorder.Recorder
	Reporter *report.Reporter
	Policy   *policy.Manager
	Index    *search.Index
	Metrics  *metrics.Collector
	Health   *health.Checker

	// Resolver turns requests into principals. Defaults to HeaderResolver.
	Resolver PrincipalResolver
}

// Server is the HTTP API server.
type Server struct {
	config   *config.Config
	store    store.Store
	recorder *recorder.Recorder
	reporter *report.Reporter
	policy   *policy.Manager
	index    *search.Index
	metrics  *metrics.Collector
	health   *health.Checker
	resolver PrincipalResolver
	logger   *slog.Logger

	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	resolver := deps.Resolver
	if resolver == nil {
		resolver = HeaderResolver{}
	}
	healthChecker := deps.Health
	if healthChecker == nil {
		healthChecker = health.New(0)
	}
	return &Server{
		config:       cfg,
		store:        deps.Store,
		recorder:     deps.Recorder,
		reporter:     deps.Reporter,
		policy:       deps.Policy,
		index:        deps.Index,
		metrics:      deps.Metrics,
		health:       healthChecker,
		resolver:     resolver,
		logger:       slog.Default().With("component", "server"),
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.Server.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", s.config.Server.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// up to the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown",
			"timeout", s.config.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler, for embedding in tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/records", s.handleListRecords)
	mux.HandleFunc("POST /api/records", s.handleCreateRecord)
	mux.HandleFunc("GET /api/records/{id}", s.handleGetRecord)
	mux.HandleFunc("PUT /api/records/{id}", s.handleUpdateRecord)
	mux.HandleFunc("DELETE /api/records/{id}", s.handleDeleteRecord)

	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/me/access", s.handleAccessSummary)

	mux.HandleFunc("GET /api/audit/logs", s.handleAuditLogs)
	mux.HandleFunc("GET /api/audit/stats", s.handleAuditStats)
	mux.HandleFunc("GET /api/audit/denials", s.handleAuditDenials)

	mux.Handle("GET /healthz", s.health.LivenessHandler())
	mux.Handle("GET /readyz", s.health.ReadinessHandler())
	if s.metrics != nil && s.config.Telemetry.Metrics.Enabled {
		mux.Handle("GET "+s.config.Telemetry.Metrics.Path, s.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(handler)
	return handler
}

// requestInfo snapshots request provenance for the audit trail.
func requestInfo(r *http.Request) recorder.RequestInfo {
	return recorder.RequestInfo{
		IPAddress:     r.RemoteAddr,
		UserAgent:     r.UserAgent(),
		RequestPath:   r.URL.Path,
		RequestMethod: r.Method,
		SessionID:     requestID(r.Context()),
	}
}
