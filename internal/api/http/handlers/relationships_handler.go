package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/dto"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/service"
)

// RelationshipsHandler exposes merge, split, link and duplicate operations.
type RelationshipsHandler struct {
	relationships *service.RelationshipService
}

// NewRelationshipsHandler constructs handler.
func NewRelationshipsHandler(relationships *service.RelationshipService) *RelationshipsHandler {
	return &RelationshipsHandler{relationships: relationships}
}

// Merge POST /v1/relationships/merge.
func (h *RelationshipsHandler) Merge(c *fiber.Ctx) error {
	var req dto.MergeRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	rel, err := h.relationships.Merge(c.UserContext(), req.PrimaryTicketID, req.SecondaryTicketID, req.Notes)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": relationshipResponse(rel)})
}

// Split POST /v1/relationships/split.
func (h *RelationshipsHandler) Split(c *fiber.Ctx) error {
	var req dto.SplitRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.relationships.Split(c.UserContext(), service.SplitInput{
		ParentID: req.ParentTicketID,
		Subject:  req.Subject,
		ReplyIDs: req.ReplyIDs,
		Notes:    req.Notes,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Link POST /v1/relationships/link.
func (h *RelationshipsHandler) Link(c *fiber.Ctx) error {
	var req dto.LinkRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	rel, err := h.relationships.Link(c.UserContext(), req.TicketID1, req.TicketID2, req.Notes)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": relationshipResponse(rel)})
}

// MarkDuplicate POST /v1/relationships/duplicate.
func (h *RelationshipsHandler) MarkDuplicate(c *fiber.Ctx) error {
	var req dto.DuplicateRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	rel, err := h.relationships.MarkDuplicate(c.UserContext(), req.OriginalTicketID, req.DuplicateTicketID, req.Notes)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": relationshipResponse(rel)})
}

// ListRelated GET /v1/tickets/:id/relationships.
func (h *RelationshipsHandler) ListRelated(c *fiber.Ctx) error {
	related, err := h.relationships.Related(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.RelatedTicketResponse, 0, len(related))
	for i := range related {
		r := &related[i]
		items = append(items, dto.RelatedTicketResponse{
			Relationship: relationshipResponse(&r.Relationship),
			Direction:    r.Direction,
			Ticket: dto.RelatedTicketSummary{
				ID:           r.OtherTicketID,
				TicketNumber: r.OtherNumber,
				Subject:      r.OtherSubject,
				Status:       r.OtherStatus,
			},
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// DeleteRelationship DELETE /v1/relationships/:id.
func (h *RelationshipsHandler) DeleteRelationship(c *fiber.Ctx) error {
	if err := h.relationships.DeleteRelationship(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func relationshipResponse(rel *domain.TicketRelationship) dto.RelationshipResponse {
	return dto.RelationshipResponse{
		ID:             rel.ID,
		ParentTicketID: rel.ParentTicketID,
		ChildTicketID:  rel.ChildTicketID,
		Type:           rel.Type,
		CreatedBy:      rel.CreatedBy,
		Notes:          rel.Notes,
		CreatedAt:      rel.CreatedAt,
	}
}
