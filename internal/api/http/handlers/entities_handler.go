package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/dto"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/service"
)

// EntitiesHandler exposes the entity hierarchy and its agents.
type EntitiesHandler struct {
	entities *service.EntityService
	agents   *service.AgentService
}

// NewEntitiesHandler constructs handler.
func NewEntitiesHandler(entities *service.EntityService, agents *service.AgentService) *EntitiesHandler {
	return &EntitiesHandler{entities: entities, agents: agents}
}

// CreateEntity POST /v1/entities.
func (h *EntitiesHandler) CreateEntity(c *fiber.Ctx) error {
	var req dto.CreateEntityRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	entity, err := h.entities.Create(c.UserContext(), service.EntityCreateInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		ParentID:    req.ParentID,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": entityResponse(entity)})
}

// ListEntities GET /v1/entities.
func (h *EntitiesHandler) ListEntities(c *fiber.Ctx) error {
	filter := repository.EntityFilter{
		ParentID:  optionalQuery(c, "parent_id"),
		RootsOnly: c.QueryBool("roots_only", false),
	}
	if status := optionalQuery(c, "status"); status != nil {
		s := domain.EntityStatus(*status)
		filter.Status = &s
	}
	entities, err := h.entities.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.EntityResponse, 0, len(entities))
	for i := range entities {
		items = append(items, entityResponse(&entities[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetEntity GET /v1/entities/:id.
func (h *EntitiesHandler) GetEntity(c *fiber.Ctx) error {
	lineage, err := h.entities.Lineage(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	resp := fiber.Map{"entity": entityResponse(lineage.Entity)}
	if lineage.Parent != nil {
		resp["parent"] = entityResponse(lineage.Parent)
	}
	return c.JSON(fiber.Map{"data": resp})
}

// UpdateEntity PATCH /v1/entities/:id.
func (h *EntitiesHandler) UpdateEntity(c *fiber.Ctx) error {
	var req dto.UpdateEntityRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	entity, err := h.entities.Update(c.UserContext(), c.Params("id"), service.EntityUpdateInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entityResponse(entity)})
}

// DeleteEntity DELETE /v1/entities/:id.
func (h *EntitiesHandler) DeleteEntity(c *fiber.Ctx) error {
	if err := h.entities.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// CreateAgent POST /v1/agents.
func (h *EntitiesHandler) CreateAgent(c *fiber.Ctx) error {
	var req dto.CreateAgentRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	agent, err := h.agents.Create(c.UserContext(), service.AgentCreateInput{
		Name:     req.Name,
		Email:    req.Email,
		EntityID: req.EntityID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": agentResponse(agent)})
}

// ListAgents GET /v1/agents.
func (h *EntitiesHandler) ListAgents(c *fiber.Ctx) error {
	limit, offset := page(c)
	filter := repository.AgentFilter{EntityID: optionalQuery(c, "entity_id"), Limit: limit, Offset: offset}
	if active := c.Query("active"); active != "" {
		v := c.QueryBool("active")
		filter.Active = &v
	}
	agents, err := h.agents.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.AgentResponse, 0, len(agents))
	for i := range agents {
		items = append(items, agentResponse(&agents[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func entityResponse(e *domain.Entity) dto.EntityResponse {
	return dto.EntityResponse{
		ID:          e.ID,
		ParentID:    e.ParentID,
		Name:        e.Name,
		Slug:        e.Slug,
		Description: e.Description,
		Status:      e.Status,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func agentResponse(a *domain.Agent) dto.AgentResponse {
	return dto.AgentResponse{
		ID:        a.ID,
		EntityID:  a.EntityID,
		Name:      a.Name,
		Email:     a.Email,
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
	}
}
