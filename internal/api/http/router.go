package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health          *handlers.HealthHandler
	Entities        *handlers.EntitiesHandler
	Tickets         *handlers.TicketsHandler
	Relationships   *handlers.RelationshipsHandler
	SLA             *handlers.SLAHandler
	ActorMiddleware *auth.ActorMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	v1 := app.Group("/v1", cfg.ActorMiddleware.Handle, auth.RequireActor())

	manageEntities := auth.RequireCapability(auth.CapabilityManageEntities)
	entities := v1.Group("/entities")
	entities.Get("/", cfg.Entities.ListEntities)
	entities.Post("/", manageEntities, cfg.Entities.CreateEntity)
	entities.Get("/:id", cfg.Entities.GetEntity)
	entities.Patch("/:id", manageEntities, cfg.Entities.UpdateEntity)
	entities.Delete("/:id", manageEntities, cfg.Entities.DeleteEntity)

	agents := v1.Group("/agents")
	agents.Get("/", cfg.Entities.ListAgents)
	agents.Post("/", manageEntities, cfg.Entities.CreateAgent)

	tickets := v1.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/by-number/:number", cfg.Tickets.GetTicketByNumber)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", auth.RequireCapability(auth.CapabilityDeleteTickets), cfg.Tickets.DeleteTicket)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)
	tickets.Get("/:id/replies", cfg.Tickets.ListReplies)
	tickets.Post("/:id/replies", cfg.Tickets.AddReply)
	tickets.Get("/:id/attachments", cfg.Tickets.ListAttachments)
	tickets.Post("/:id/attachments", cfg.Tickets.AddAttachment)
	tickets.Get("/:id/relationships", cfg.Relationships.ListRelated)

	relationships := v1.Group("/relationships")
	relationships.Post("/merge", cfg.Relationships.Merge)
	relationships.Post("/split", cfg.Relationships.Split)
	relationships.Post("/link", cfg.Relationships.Link)
	relationships.Post("/duplicate", cfg.Relationships.MarkDuplicate)
	relationships.Delete("/:id", cfg.Relationships.DeleteRelationship)

	manageSLA := auth.RequireCapability(auth.CapabilityManageSLA)
	sla := v1.Group("/sla")
	sla.Get("/rules", cfg.SLA.ListRules)
	sla.Post("/rules", manageSLA, cfg.SLA.CreateRule)
	sla.Get("/rules/:id", cfg.SLA.GetRule)
	sla.Put("/rules/:id", manageSLA, cfg.SLA.UpdateRule)
	sla.Delete("/rules/:id", manageSLA, cfg.SLA.DeleteRule)
	sla.Post("/sweep", manageSLA, cfg.SLA.Sweep)
	sla.Get("/compliance", cfg.SLA.Compliance)
}
