// Package server provides the HTTP server of the Chatello gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"

	"chatello/gateway/pkg/analytics"
	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/gate"
	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/limits"
	"chatello/gateway/pkg/providerfactory"
	"chatello/gateway/pkg/proxy/handlers"
	"chatello/gateway/pkg/proxy/middleware"
	"chatello/gateway/pkg/security/auth"
	"chatello/gateway/pkg/storage"
	"chatello/gateway/pkg/telemetry/health"
	"chatello/gateway/pkg/telemetry/logging"
	"chatello/gateway/pkg/telemetry/metrics"
	"chatello/gateway/pkg/telemetry/tracing"
)

// Dependencies are the components served by the HTTP server. Analytics,
// Health, Metrics, Tracer, and Logger are optional.
type Dependencies struct {
	Store     storage.Store
	Gate      *gate.Gate
	Limits    *limits.Manager
	Directory *licensing.Directory
	Registry  *licensing.Registry
	Allocator *licensing.Allocator
	Providers *providerfactory.Manager
	Admin     *auth.Validator

	Analytics *analytics.Job
	Health    *health.Checker
	Metrics   *metrics.Collector
	Tracer    *tracing.Tracer
	Logger    *slog.Logger

	Version string
}

// Server is the HTTP server of the gateway.
type Server struct {
	cfg          *config.Config
	deps         Dependencies
	logger       *slog.Logger
	handler      http.Handler
	httpServer   *http.Server
	listenAddr   string
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a server and builds its routes.
func New(cfg *config.Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	switch {
	case deps.Store == nil:
		return nil, errors.New("server: store is required")
	case deps.Gate == nil:
		return nil, errors.New("server: gate is required")
	case deps.Limits == nil:
		return nil, errors.New("server: limits manager is required")
	case deps.Directory == nil, deps.Registry == nil, deps.Allocator == nil:
		return nil, errors.New("server: licensing components are required")
	case deps.Providers == nil:
		return nil, errors.New("server: provider manager is required")
	case deps.Admin == nil:
		return nil, errors.New("server: admin validator is required")
	}

	if deps.Health == nil {
		deps.Health = health.New(0)
	}
	deps.Health.RegisterCheck("storage", deps.Store.Ping)

	s := &Server{
		cfg:          cfg,
		deps:         deps,
		logger:       logging.OrDefault(deps.Logger).With("component", "server"),
		shutdownChan: make(chan struct{}),
	}
	s.handler = s.setupRoutes()
	return s, nil
}

// Start starts the HTTP server and blocks until ctx is cancelled, a
// termination signal arrives, Stop is called, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.ListenAddress, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	s.listenAddr = ln.Addr().String()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway server",
			"address", ln.Addr().String(),
			"storage", s.cfg.Storage.Backend,
		)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.markStopped()
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop asks a running Start to shut down. It is safe to call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}

// Shutdown gracefully drains in-flight requests within the configured
// shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.Server.ShutdownTimeout.String())

		shutdownCtx := ctx
		if s.cfg.Server.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
			defer cancel()
		}

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.markStopped()
		s.logger.Info("gateway server stopped")
	})

	return shutdownErr
}

func (s *Server) markStopped() {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
}

// setupRoutes builds the router and its middleware chain. Recovery is the
// outermost middleware.
func (s *Server) setupRoutes() http.Handler {
	d := s.deps
	header := s.cfg.Gate.LicenseHeader

	validate := handlers.NewValidateHandler(d.Directory, d.Registry, d.Store, d.Allocator, header, d.Logger)
	chat := handlers.NewChatHandler(d.Gate, header, d.Logger)
	usage := handlers.NewUsageHandlers(d.Limits.Aggregator(), d.Limits, d.Directory, d.Registry, d.Logger)

	adminDeps := handlers.AdminDependencies{
		Store:     d.Store,
		Allocator: d.Allocator,
		Providers: d.Providers,
		Version:   d.Version,
		Logger:    d.Logger,
	}
	if d.Analytics != nil {
		adminDeps.Snapshots = d.Analytics
	}
	admin := handlers.NewAdminHandlers(adminDeps)

	r := chi.NewRouter()
	r.Use(middleware.RecoveryMiddleware(d.Logger))
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggingMiddleware(d.Logger, d.Metrics))
	r.Use(tracing.HTTPMiddleware(d.Tracer))
	r.Use(middleware.CORSMiddleware(s.cfg.Server.CORS))
	r.Use(middleware.TimeoutMiddleware(s.cfg.Server.RequestTimeout))

	r.Method(http.MethodGet, "/", handlers.NewBannerHandler(d.Version, s.cfg.Storage.Backend))
	r.Get("/api/health", d.Health.LivenessHandler())
	r.Get("/health/ready", d.Health.ReadinessHandler())
	if d.Metrics != nil && s.cfg.Telemetry.Metrics.MetricsEnabled() {
		path := s.cfg.Telemetry.Metrics.Path
		if path == "" {
			path = config.DefaultMetricsPath
		}
		r.Method(http.MethodGet, path, d.Metrics.Handler())
	}

	r.Method(http.MethodPost, "/api/validate", validate)
	r.Method(http.MethodPost, "/api/chat", chat)

	r.Group(func(r chi.Router) {
		r.Use(middleware.LicenseMiddleware(d.Gate, header, d.Logger))
		r.Get("/api/usage/current", usage.Current)
		r.Get("/api/usage/history", usage.History)
		r.Get("/api/limits/check", usage.LimitsCheck)
	})
	r.Get("/api/usage/{license_key}", usage.Legacy)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.Admin, s.cfg.Admin.Header, d.Logger))
		r.Post("/api/admin/customers", admin.CreateCustomer)
		r.Post("/api/admin/licenses", admin.CreateLicense)
		r.Patch("/api/admin/licenses/{id}/status", admin.UpdateLicenseStatus)
		r.Patch("/api/admin/usage/{id}/tokens", admin.PatchUsageTokens)
		r.Get("/api/admin/plans", admin.ListPlans)
		r.Get("/api/admin/analytics", admin.Analytics)
		r.Get("/admin/health", admin.Health)
	})

	return r
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound listen address while the server is running.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listenAddr
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
