package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/dto"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/service"
)

// SLAHandler manages SLA rules and reporting.
type SLAHandler struct {
	sla *service.SLAService
}

// NewSLAHandler constructs handler.
func NewSLAHandler(slaService *service.SLAService) *SLAHandler {
	return &SLAHandler{sla: slaService}
}

// CreateRule POST /v1/sla/rules.
func (h *SLAHandler) CreateRule(c *fiber.Ctx) error {
	var req dto.SLARuleRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	rule, err := h.sla.CreateRule(c.UserContext(), ruleInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ruleResponse(rule)})
}

// ListRules GET /v1/sla/rules.
func (h *SLAHandler) ListRules(c *fiber.Ctx) error {
	rules, err := h.sla.ListRules(c.UserContext(), repository.SLARuleFilter{
		EntityID:   optionalQuery(c, "entity_id"),
		GlobalOnly: c.QueryBool("global_only", false),
		ActiveOnly: c.QueryBool("active_only", false),
	})
	if err != nil {
		return err
	}
	items := make([]dto.SLARuleResponse, 0, len(rules))
	for i := range rules {
		items = append(items, ruleResponse(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetRule GET /v1/sla/rules/:id.
func (h *SLAHandler) GetRule(c *fiber.Ctx) error {
	rule, err := h.sla.GetRule(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// UpdateRule PUT /v1/sla/rules/:id.
func (h *SLAHandler) UpdateRule(c *fiber.Ctx) error {
	var req dto.SLARuleRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	rule, err := h.sla.UpdateRule(c.UserContext(), c.Params("id"), ruleInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// DeleteRule DELETE /v1/sla/rules/:id.
func (h *SLAHandler) DeleteRule(c *fiber.Ctx) error {
	if err := h.sla.DeleteRule(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Sweep POST /v1/sla/sweep.
func (h *SLAHandler) Sweep(c *fiber.Ctx) error {
	result, err := h.sla.Sweep(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Compliance GET /v1/sla/compliance.
func (h *SLAHandler) Compliance(c *fiber.Ctx) error {
	compliance, err := h.sla.ComplianceRate(c.UserContext(), optionalQuery(c, "entity_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": compliance})
}

func ruleInput(req dto.SLARuleRequest) service.SLARuleInput {
	return service.SLARuleInput{
		EntityID:            req.EntityID,
		Name:                req.Name,
		Priority:            req.Priority,
		ResponseTimeHours:   req.ResponseTimeHours,
		ResolutionTimeHours: req.ResolutionTimeHours,
		EscalationTimeHours: req.EscalationTimeHours,
		Conditions:          req.Conditions,
		IsActive:            req.IsActive,
	}
}

func ruleResponse(rule *domain.SLARule) dto.SLARuleResponse {
	conditions := rule.Conditions
	if conditions == nil {
		conditions = []domain.SLACondition{}
	}
	return dto.SLARuleResponse{
		ID:                  rule.ID,
		EntityID:            rule.EntityID,
		Name:                rule.Name,
		Priority:            rule.Priority,
		ResponseTimeHours:   rule.ResponseTimeHours,
		ResolutionTimeHours: rule.ResolutionTimeHours,
		EscalationTimeHours: rule.EscalationTimeHours,
		Conditions:          conditions,
		IsActive:            rule.IsActive,
		CreatedAt:           rule.CreatedAt,
		UpdatedAt:           rule.UpdatedAt,
	}
}
