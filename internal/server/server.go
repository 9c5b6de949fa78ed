package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maxkornevpro/key/internal/handler"
	"github.com/maxkornevpro/key/internal/keys"
	"github.com/maxkornevpro/key/internal/server/middleware"
	"github.com/maxkornevpro/key/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RateLimit       int   // requests per minute per IP on /api/validate; 0 disables
	AdminRateLimit  int   // requests per minute per IP and endpoint on admin routes; 0 disables
	MaxBodySize     int64 // bytes
	Version         string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            5000,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		RateLimit:       600,
		AdminRateLimit:  120,
		MaxBodySize:     64 * 1024,
		Version:         "dev",
	}
}

// Deps are the collaborators the server routes requests to. Audit,
// Registry and MCP are optional.
type Deps struct {
	Keys     *keys.Service
	Auth     *service.AuthService
	Audit    handler.AuditReader
	Registry *prometheus.Registry
	MCP      http.Handler
}

// Server is the HTTP front end for the key store. It owns the Chi router
// and the keys service the handlers call into.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	if s.deps.Registry != nil {
		r.Use(middleware.Metrics(s.deps.Registry))
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handler.SecretHeader, "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	keyHandler := handler.NewKeyHandler(s.deps.Keys, s.deps.Auth, s.logger)
	adminHandler := handler.NewAdminHandler(s.deps.Keys, s.deps.Audit, s.logger)

	// --- Probes, metrics and documents (no auth required) ---
	r.Get("/", keyHandler.Index)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.cfg.Version).ServeSpec)
	if s.deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{Registry: s.deps.Registry}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", keyHandler.Health)

		// Validation is open to clients holding the shared secret.
		r.Group(func(r chi.Router) {
			if s.cfg.RateLimit > 0 {
				r.Use(middleware.RateLimit(s.cfg.RateLimit))
			}
			r.Get("/validate", keyHandler.Validate)
			r.Post("/validate", keyHandler.Validate)
		})

		// Everything that changes the store requires an admin token.
		r.Group(func(r chi.Router) {
			if s.cfg.AdminRateLimit > 0 {
				r.Use(middleware.RateLimitByEndpoint(s.cfg.AdminRateLimit))
			}
			r.Use(middleware.Authenticate(s.deps.Auth))
			r.Use(middleware.RequireAdmin())

			r.Post("/issue", adminHandler.IssueKey)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/keys", adminHandler.ListKeys)
				r.Post("/keys", adminHandler.CreateKey)
				r.Get("/keys/{key}", adminHandler.GetKey)
				r.Delete("/keys/{key}", adminHandler.DeleteKey)
				r.Post("/keys/{key}/revoke", adminHandler.RevokeKey)
				r.Post("/keys/{key}/restore", adminHandler.RestoreKey)
				r.Get("/users", adminHandler.UserStats)
				r.Get("/users/{userID}/keys", adminHandler.UserKeys)
				r.Get("/audit", adminHandler.Audit)
			})
		})
	})

	// --- MCP over Streamable HTTP (admin only) ---
	if s.deps.MCP != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.deps.Auth))
			r.Use(middleware.RequireAdmin())
			r.Handle("/mcp", s.deps.MCP)
		})
	}

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the key store can be
// read, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if _, err := s.deps.Keys.Count(r.Context()); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["store"] = "ok"
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "store", s.deps.Keys.StorePath(),
			"secret_required", s.deps.Auth.SecretRequired(), "admins", s.deps.Keys.Admins())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
