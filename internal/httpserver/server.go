package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Dependencies are the pieces NewServer wires together: the admission-gated
// notify handler, the admin credential surface, and the readiness
// dependencies health checks ping directly.
type Dependencies struct {
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Metrics *prometheus.Registry

	// NotifyHandler serves POST /v1/notify. The caller is responsible for
	// wrapping it in the admission Pipeline before passing it here.
	NotifyHandler http.Handler

	// AdminHandler serves the credential admin surface, mounted at AdminBasePath.
	AdminHandler  http.Handler
	AdminBasePath string
}

// Server holds the HTTP server dependencies.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer builds the gateway's router: unauthenticated health and metrics
// endpoints, the admission-gated data-plane notify endpoint, and the admin
// credential surface mounted at its bootstrapped base path.
func NewServer(logger *slog.Logger, deps Dependencies) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        deps.DB,
		Redis:     deps.Redis,
		Metrics:   deps.Metrics,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)

	s.Router.Get("/health", s.handleHealth)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))

	s.Router.Post("/v1/notify", deps.NotifyHandler.ServeHTTP)

	if deps.AdminHandler != nil {
		s.Router.Mount(deps.AdminBasePath, deps.AdminHandler)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}

	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("readiness check: redis ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "redis not ready")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}
