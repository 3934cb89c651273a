// Package routes registers all HTTP routes for the gateway.
package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shieldgate/gateway/internal/config"
	"github.com/shieldgate/gateway/internal/gateway"
	"github.com/shieldgate/gateway/internal/infra/http/handler"
	"github.com/shieldgate/gateway/internal/infra/http/middleware"
	"github.com/shieldgate/gateway/pkg/domain/apikey"
	"github.com/shieldgate/gateway/pkg/logger"
)

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health  *handler.HealthHandler
	Auth    *handler.AuthHandler
	Service *handler.ServiceHandler
	Admin   *handler.AdminHandler
}

// Deps carries the cross-cutting pieces route registration needs.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pipeline *gateway.Pipeline
	Sink     *gateway.Sink
}

// New builds the router: ambient middleware, open endpoints, then the
// gating pipeline wrapped around everything under /api and /admin.
func New(h Handlers, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Recovery(d.Logger, d.Config.IsProduction()))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(&d.Config.CORS))
	if d.Config.Server.HTTPSRequired {
		r.Use(middleware.RequireHTTPS())
	}
	r.Use(middleware.Decompress())
	r.Use(middleware.BodyLimit(d.Config.Server.MaxBodySize))
	r.Use(middleware.ValidateRequest())
	r.Use(middleware.RequestAudit(d.Sink))

	// Open endpoints, outside the pipeline.
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/auth/login", h.Auth.Login)

	// Everything below runs through the full gating pipeline.
	r.Group(func(r chi.Router) {
		for _, mw := range d.Pipeline.Middlewares() {
			r.Use(mw)
		}

		r.Route("/api", func(r chi.Router) {
			r.Get("/public/ping", h.Service.Ping)
			r.Get("/service-a/data", h.Service.ListWidgets)
			r.Post("/service-a/data", h.Service.CreateWidget)
			r.Get("/service-b/metrics", h.Service.ServiceMetrics)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(gateway.RequireRole(apikey.RoleAdmin))

			r.Get("/analytics", h.Admin.Analytics)
			r.Get("/logs", h.Admin.Logs)
			r.Get("/traffic", h.Admin.Traffic)

			r.Get("/blocked-ips", h.Admin.BlockedIPs)
			r.Post("/blocked-ips", h.Admin.BlockIP)
			r.Delete("/blocked-ips/{ip}", h.Admin.UnblockIP)

			r.Get("/api-keys", h.Admin.APIKeys)
			r.Post("/api-keys", h.Admin.CreateAPIKey)
			r.Delete("/api-keys/{id}", h.Admin.RevokeAPIKey)
		})
	})

	return r
}
