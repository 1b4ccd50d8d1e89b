package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/tasktrail/internal/api/v1"
	"github.com/gosuda/tasktrail/internal/api/ws"
	"github.com/gosuda/tasktrail/internal/config"
	"github.com/gosuda/tasktrail/internal/server/middleware"
	"github.com/gosuda/tasktrail/internal/telemetry"
)

// Auth endpoints are unauthenticated, so they get a tighter per-IP budget.
const (
	authRateLimitRPS   = 5
	authRateLimitBurst = 10
	healthCheckTimeout = 2 * time.Second
)

// Store is the persistence surface the server needs.
// *postgres.Store satisfies this interface.
type Store interface {
	v1.DataStore
	Ping(ctx context.Context) error
}

// Deps bundles the services the routes are wired to. Subscriber, Cache,
// Metrics and Gatherer are optional.
type Deps struct {
	Store      Store
	Auth       v1.AuthService
	Recorder   v1.AuditRecorder
	Queries    v1.AuditQuerier
	Subscriber ws.Subscriber
	Cache      v1.StatsCache
	Metrics    *telemetry.Metrics
	Gatherer   prometheus.Gatherer
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server // nil when the metrics listener is disabled
}

// New creates a Server with all routes wired. ctx bounds the background
// goroutines started by the rate limiters.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestMetadata)
	router.Use(middleware.RequestLogger)
	router.Use(chimw.Recoverer)
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
	}

	// Mount API routes on /api/v1 with two sub-groups:
	// 1. Unauthenticated group for auth endpoints.
	// 2. Authenticated group for all other endpoints.
	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ctx, authRateLimitRPS, authRateLimitBurst))

			authConfig := huma.DefaultConfig("Tasktrail Auth API", "1.0.0")
			authConfig.Servers = []*huma.Server{
				{URL: "/api/v1"},
			}
			authConfig.OpenAPIPath = "/auth/openapi"
			authConfig.DocsPath = ""
			authAPI := humachi.New(r, authConfig)
			registerAuthRoutes(authAPI, deps)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT.Secret))
			r.Use(middleware.RateLimit(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))

			apiConfig := huma.DefaultConfig("Tasktrail API", "1.0.0")
			apiConfig.Servers = []*huma.Server{
				{URL: "/api/v1"},
			}
			api := humachi.New(r, apiConfig)
			registerAPIRoutes(api, deps, cfg.Redis.StatsCacheTTL)
		})
	})

	// WebSocket routes.
	router.Route("/ws", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT.Secret))
		if deps.Subscriber == nil {
			r.HandleFunc("/*", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "Live feed disabled"})
			})
			return
		}
		registerWSRoutes(r, ws.NewHub(deps.Subscriber, originPatterns(cfg.Server.CORSOrigins)...))
	})

	// Health check (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := deps.Store.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("health check: database unreachable")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Metrics.Addr != "" && deps.Gatherer != nil {
		s.metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           telemetry.Handler(deps.Gatherer),
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
		}
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests. The metrics listener, when
// configured, runs alongside and its failure is logged, not returned.
func (s *Server) Start(_ context.Context) error {
	if s.metricsServer != nil {
		go func() {
			log.Info().Str("addr", s.metricsServer.Addr).Msg("starting metrics listener")
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics listener error")
			}
		}()
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and the metrics listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// originPatterns converts CORS origins to the host patterns the websocket
// handshake checks. A wildcard origin allows every host.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}
