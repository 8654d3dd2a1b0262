package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/recipebook/recipebook/internal/metrics"
	"github.com/recipebook/recipebook/internal/middleware"
)

// RouterConfig wires handlers and middleware into the HTTP router.
type RouterConfig struct {
	Logger  *slog.Logger
	Users   *UserHandler
	Recipes *RecipeHandler
	Health  *HealthHandler

	// Metrics serves /metrics when set. Recorder receives per-route
	// request counts.
	Metrics  http.Handler
	Recorder metrics.Recorder

	Auth        middleware.AuthConfig
	RateLimit   middleware.RateLimitConfig
	Security    middleware.SecurityConfig
	CORS        middleware.CORSConfig
	MaxBodySize int64
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NewNoop()
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = middleware.DefaultSecurityConfig().MaxRequestBodySize
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Metrics(cfg.Recorder))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.Security))
	r.Use(middleware.CORS(cfg.CORS))

	// Operational endpoints
	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health.Healthz)
		r.Get("/readyz", cfg.Health.Readyz)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	authenticated := middleware.Auth(cfg.Auth)
	perUser := middleware.RateLimitUser(cfg.RateLimit)
	perIP := middleware.RateLimitIP(cfg.RateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.MaxBodySize(cfg.MaxBodySize))

		r.Route("/users", func(r chi.Router) {
			r.With(perIP).Post("/register", cfg.Users.Register)
			r.With(perIP).Post("/login", cfg.Users.Login)
			r.Get("/", cfg.Users.List)
			r.Get("/{id}", cfg.Users.Get)
			r.Get("/{id}/recipes", cfg.Recipes.ListByOwner)
		})

		r.With(authenticated, perUser).Get("/account/verify", cfg.Users.Verify)

		r.Route("/recipes", func(r chi.Router) {
			r.Get("/", cfg.Recipes.List)
			r.Get("/{id}", cfg.Recipes.Get)
			r.Head("/{id}", cfg.Recipes.Head)

			r.Group(func(r chi.Router) {
				r.Use(authenticated, perUser)
				r.Post("/", cfg.Recipes.Create)
				r.Put("/{id}", cfg.Recipes.Edit)
				r.Delete("/{id}", cfg.Recipes.Delete)
			})
		})
	})

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	return r
}
