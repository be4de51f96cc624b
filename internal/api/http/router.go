package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/ticket-relations/internal/api/http/handlers"
	"github.com/spec-kit/ticket-relations/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Relationships  *handlers.RelationshipsHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer backs /metrics; nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	manage := auth.RequireCapability(auth.CapabilityManageRelationships)

	tickets.Get("/:id/relationships", cfg.Relationships.List)
	tickets.Post("/:id/relationships", manage, cfg.Relationships.Create)
	tickets.Delete("/:id/relationships/:relationshipId", manage, cfg.Relationships.Remove)

	tickets.Post("/:id/split", manage, cfg.Tickets.Split)
	tickets.Get("/:id/split-history", cfg.Tickets.SplitHistory)

	tickets.Post("/:id/merge", manage, cfg.Tickets.Merge)
	tickets.Get("/:id/merge-history", cfg.Tickets.MergeHistory)
	tickets.Get("/:id/absorbed-by", cfg.Tickets.AbsorbedBy)
}
