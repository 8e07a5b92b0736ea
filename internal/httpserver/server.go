package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/haneulsim/esimcore/internal/config"
	"github.com/haneulsim/esimcore/internal/store"
	"github.com/haneulsim/esimcore/internal/version"
)

// Server holds the HTTP server dependencies.
type Server struct {
	Router      *chi.Mux
	AdminRouter chi.Router // bearer-protected /admin sub-router
	Logger      *slog.Logger
	Store       store.Store
	Redis       *redis.Client
	Metrics     *prometheus.Registry
	startedAt   time.Time
}

// NewServer creates an HTTP server with middleware and health/metrics
// endpoints mounted. rdb may be nil when no provider's circuit breaker
// cache is Redis-backed; readiness then skips the Redis check. Domain
// handlers are mounted on AdminRouter (the bearer-protected group) or
// directly on Router after calling NewServer — webhook intake and the
// fulfillment trigger self-authenticate and belong on Router, not
// AdminRouter.
func NewServer(cfg *config.Config, logger *slog.Logger, docStore store.Store, rdb *redis.Client, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		Store:     docStore,
		Redis:     rdb,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Signature"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (unauthenticated).
	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Get("/health", s.handleHealth)

	// Prometheus metrics (unauthenticated).
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	// Bearer-protected admin routes (§6: "Admin endpoints require a bearer
	// token"). Domain handlers mount onto this group externally.
	s.Router.Route("/admin", func(r chi.Router) {
		r.Use(RequireBearer(cfg.AdminBearerToken))
		s.AdminRouter = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.Store.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: document store ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "document store not ready")
		return
	}

	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			s.Logger.Error("readiness check: redis ping failed", "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
			return
		}
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// healthResponse is the JSON shape returned by GET /health (§6: `{status,
// services{...}, uptime, timestamp}`).
type healthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Commit    string            `json:"commit"`
	Services  map[string]string `json:"services"`
	Uptime    string            `json:"uptime"`
	Timestamp string            `json:"timestamp"`
}

// handleHealth reports combined document-store/Redis connectivity plus
// process uptime and build metadata (§6).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	services := map[string]string{}

	if err := s.Store.Ping(ctx); err != nil {
		services["store"] = "error"
	} else {
		services["store"] = "ok"
	}

	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			services["redis"] = "error"
		} else {
			services["redis"] = "ok"
		}
	}

	status := "ok"
	for _, v := range services {
		if v != "ok" {
			status = "degraded"
			break
		}
	}

	Respond(w, http.StatusOK, healthResponse{
		Status:    status,
		Version:   version.Version,
		Commit:    version.Commit,
		Services:  services,
		Uptime:    time.Since(s.startedAt).Truncate(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
