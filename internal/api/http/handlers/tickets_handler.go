package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/dto"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/service"
)

// TicketsHandler manages tickets, their thread and attachments.
type TicketsHandler struct {
	tickets *service.TicketService
	replies *service.ReplyService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, replies *service.ReplyService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, replies: replies}
}

// CreateTicket POST /v1/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.Create(c.UserContext(), service.TicketCreateInput{
		EntityID:      req.EntityID,
		Subject:       req.Subject,
		Description:   req.Description,
		Priority:      req.Priority,
		Category:      req.Category,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		AssignedTo:    req.AssignedTo,
		MetaData:      req.MetaData,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /v1/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := parseTicketQuery(c)
	tickets, err := h.tickets.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	total, err := h.tickets.Count(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": dto.TicketListResponse{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}})
}

// GetTicket GET /v1/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.tickets.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetTicketByNumber GET /v1/tickets/by-number/:number.
func (h *TicketsHandler) GetTicketByNumber(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetByNumber(c.UserContext(), c.Params("number"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdateTicket PATCH /v1/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.Update(c.UserContext(), c.Params("id"), service.TicketUpdateInput{
		Subject:         req.Subject,
		Description:     req.Description,
		Status:          req.Status,
		Priority:        req.Priority,
		Category:        req.Category,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		AssignedTo:      req.AssignedTo,
		Unassign:        req.Unassign,
		MetaData:        req.MetaData,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// DeleteTicket DELETE /v1/tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	if err := h.tickets.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListHistory GET /v1/tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	entries, err := h.tickets.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

// AddReply POST /v1/tickets/:id/replies.
func (h *TicketsHandler) AddReply(c *fiber.Ctx) error {
	var req dto.CreateReplyRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	reply, err := h.replies.AddReply(c.UserContext(), service.ReplyInput{
		TicketID:       c.Params("id"),
		Content:        req.Content,
		AuthorName:     req.AuthorName,
		AuthorEmail:    req.AuthorEmail,
		IsInternalNote: req.IsInternalNote,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": replyResponse(reply)})
}

// ListReplies GET /v1/tickets/:id/replies.
func (h *TicketsHandler) ListReplies(c *fiber.Ctx) error {
	replies, err := h.replies.ListReplies(c.UserContext(), c.Params("id"), c.QueryBool("include_internal", true))
	if err != nil {
		return err
	}
	items := make([]dto.ReplyResponse, 0, len(replies))
	for i := range replies {
		items = append(items, replyResponse(&replies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// AddAttachment POST /v1/tickets/:id/attachments.
func (h *TicketsHandler) AddAttachment(c *fiber.Ctx) error {
	var req dto.AttachmentRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	attachment, err := h.replies.AddAttachment(c.UserContext(), service.AttachmentInput{
		TicketID:   c.Params("id"),
		ReplyID:    req.ReplyID,
		FileName:   req.FileName,
		MimeType:   req.MimeType,
		SizeBytes:  req.SizeBytes,
		StorageKey: req.StorageKey,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": attachmentResponse(attachment)})
}

// ListAttachments GET /v1/tickets/:id/attachments.
func (h *TicketsHandler) ListAttachments(c *fiber.Ctx) error {
	attachments, err := h.replies.ListAttachments(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.AttachmentResponse, 0, len(attachments))
	for i := range attachments {
		items = append(items, attachmentResponse(&attachments[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseTicketQuery(c *fiber.Ctx) service.TicketListFilter {
	limit, offset := page(c)
	filter := service.TicketListFilter{
		TicketFilter: repository.TicketFilter{
			Statuses:      typed[domain.TicketStatus](parseList(c.Query("status"))),
			Priorities:    typed[domain.TicketPriority](parseList(c.Query("priority"))),
			SLAStatuses:   typed[domain.SLAStatus](parseList(c.Query("sla_status"))),
			Category:      optionalQuery(c, "category"),
			AssignedTo:    optionalQuery(c, "assigned_to"),
			Unassigned:    c.QueryBool("unassigned", false),
			CustomerEmail: optionalQuery(c, "customer_email"),
			SearchTerm:    optionalQuery(c, "q"),
			OrderBy:       strings.TrimSpace(c.Query("order_by")),
			Ascending:     strings.EqualFold(c.Query("order"), "asc"),
			Limit:         limit,
			Offset:        offset,
		},
		EntityID:        optionalQuery(c, "entity_id"),
		IncludeChildren: c.QueryBool("include_children", false),
	}
	if !c.QueryBool("include_merged", true) {
		filter.ExcludeStatuses = []domain.TicketStatus{domain.TicketStatusMerged}
	}
	return filter
}

func ticketResponse(t *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:               t.ID,
		EntityID:         t.EntityID,
		TicketNumber:     t.TicketNumber,
		Subject:          t.Subject,
		Description:      t.Description,
		Status:           t.Status,
		Priority:         t.Priority,
		Category:         t.Category,
		CustomerName:     t.CustomerName,
		CustomerEmail:    t.CustomerEmail,
		CustomerPhone:    t.CustomerPhone,
		AssignedTo:       t.AssignedTo,
		CreatedBy:        t.CreatedBy,
		SLARuleID:        t.SLARuleID,
		SLAResponseDue:   t.SLAResponseDue,
		SLADueDate:       t.SLADueDate,
		SLAEscalationDue: t.SLAEscalationDue,
		SLAStatus:        t.SLAStatus,
		MetaData:         t.MetaData,
		Version:          t.Version,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		ResolvedAt:       t.ResolvedAt,
		ClosedAt:         t.ClosedAt,
		FirstResponseAt:  t.FirstResponseAt,
	}
}

func replyResponse(r *domain.Reply) dto.ReplyResponse {
	return dto.ReplyResponse{
		ID:             r.ID,
		TicketID:       r.TicketID,
		AuthorType:     r.AuthorType,
		AuthorID:       r.AuthorID,
		AuthorName:     r.AuthorName,
		AuthorEmail:    r.AuthorEmail,
		Content:        r.Content,
		IsInternalNote: r.IsInternalNote,
		CreatedAt:      r.CreatedAt,
	}
}

func attachmentResponse(a *domain.Attachment) dto.AttachmentResponse {
	return dto.AttachmentResponse{
		ID:         a.ID,
		TicketID:   a.TicketID,
		ReplyID:    a.ReplyID,
		FileName:   a.FileName,
		MimeType:   a.MimeType,
		SizeBytes:  a.SizeBytes,
		StorageKey: a.StorageKey,
		UploadedBy: a.UploadedBy,
		CreatedAt:  a.CreatedAt,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:          entry.ID,
			ChangeType:  entry.ChangeType,
			ChangedByID: entry.ChangedByID,
			OldValue:    entry.OldValue,
			NewValue:    entry.NewValue,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return resp
}
