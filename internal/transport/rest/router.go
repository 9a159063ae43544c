package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heartmarshall/curation-backend/internal/transport/middleware"
)

// RouterDeps wires handlers and cross-cutting middleware into the router.
type RouterDeps struct {
	Logger *slog.Logger
	Items  *ItemHandler
	Admin  *AdminHandler
	Health *HealthHandler

	// Auth resolves bearer tokens into the request context.
	Auth middleware.Middleware
	// CORS and RateLimit are optional.
	CORS      middleware.Middleware
	RateLimit middleware.Middleware

	MetricsEnabled bool
}

// NewRouter builds the HTTP surface. Health and metrics are public;
// everything under /api/v1 requires an authenticated caller.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestID())
	if d.MetricsEnabled {
		r.Use(middleware.Metrics())
	}
	r.Use(middleware.Logger(d.Logger))
	if d.CORS != nil {
		r.Use(d.CORS)
	}

	r.Get("/health", d.Health.Health)
	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)
	if d.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Chain(d.Auth, middleware.RequireUser, d.RateLimit))

		r.Post("/assignments", d.Items.SelfAssign)
		r.Get("/assignments", d.Items.Mine)

		r.Get("/items", d.Items.List)
		r.Route("/items/{group}/{id}", func(r chi.Router) {
			r.Get("/", d.Items.Get)
			r.Patch("/", d.Items.Update)
			r.Post("/assign", d.Items.Assign)
			r.Post("/release", d.Items.Release)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminOnly)
			r.Get("/admin/groups", d.Admin.GroupStats)
			r.Post("/admin/groups/refresh", d.Admin.RefreshStats)
		})
	})

	return r
}
