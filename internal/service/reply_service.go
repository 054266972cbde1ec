package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/auth"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// ReplyService manages the reply thread and attachment metadata of tickets.
type ReplyService struct {
	tickets     repository.TicketRepository
	replies     repository.ReplyRepository
	attachments repository.AttachmentRepository
	tx          Transactor
	publisher   events.Publisher
	logger      *zap.Logger
	now         func() time.Time
}

// ReplyDependencies bundles collaborators for ReplyService.
type ReplyDependencies struct {
	TicketRepo     repository.TicketRepository
	ReplyRepo      repository.ReplyRepository
	AttachmentRepo repository.AttachmentRepository
	Tx             Transactor
	Publisher      events.Publisher
	Logger         *zap.Logger
	Clock          func() time.Time
}

// ReplyInput describes a reply. Author fields default to the calling actor.
type ReplyInput struct {
	TicketID       string `field:"ticket_id" validate:"required"`
	Content        string `validate:"required"`
	AuthorName     string `field:"author_name" validate:"max=200"`
	AuthorEmail    string `field:"author_email" validate:"omitempty,email"`
	IsInternalNote bool   `field:"is_internal_note"`
}

// AttachmentInput describes stored file metadata.
type AttachmentInput struct {
	TicketID   string  `field:"ticket_id" validate:"required"`
	ReplyID    *string `field:"reply_id"`
	FileName   string  `field:"file_name" validate:"required,max=255"`
	MimeType   string  `field:"mime_type" validate:"max=255"`
	SizeBytes  int64   `field:"size_bytes" validate:"gte=0"`
	StorageKey string  `field:"storage_key" validate:"required"`
}

// NewReplyService constructs the service.
func NewReplyService(deps ReplyDependencies) *ReplyService {
	return &ReplyService{
		tickets:     deps.TicketRepo,
		replies:     deps.ReplyRepo,
		attachments: deps.AttachmentRepo,
		tx:          deps.Tx,
		publisher:   deps.Publisher,
		logger:      observability.OrNop(deps.Logger),
		now:         nowOr(deps.Clock),
	}
}

// AddReply appends a reply, touches the ticket and records the first response
// when the ticket has none yet.
func (s *ReplyService) AddReply(ctx context.Context, input ReplyInput) (*domain.Reply, error) {
	input.AuthorEmail = strings.TrimSpace(input.AuthorEmail)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	content := sanitizeContent(input.Content)
	if content == "" {
		return nil, apperrors.NewValidationReason("empty_content", "reply content is empty", ids("ticket_id", input.TicketID))
	}
	ticket, err := s.tickets.GetByID(ctx, input.TicketID)
	if err != nil {
		return nil, translate(err, "ticket", ids("ticket_id", input.TicketID))
	}

	actor := auth.ActorFromContext(ctx)
	reply := &domain.Reply{
		TicketID:       ticket.ID,
		AuthorID:       actor.IDRef(),
		AuthorName:     firstNonEmpty(strings.TrimSpace(input.AuthorName), actor.Name),
		AuthorEmail:    firstNonEmpty(input.AuthorEmail, actor.Email),
		Content:        content,
		IsInternalNote: input.IsInternalNote,
		CreatedAt:      s.now(),
	}
	reply.AuthorType = authorType(actor, reply.AuthorEmail, ticket)
	if reply.IsCustomerReply() && reply.IsInternalNote {
		return nil, apperrors.NewValidationReason("customer_internal_note", "customers cannot add internal notes", ids("ticket_id", ticket.ID))
	}

	firstResponse := false
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.replies.Create(ctx, reply); err != nil {
			return err
		}
		if err := s.tickets.Touch(ctx, ticket.ID, reply.CreatedAt); err != nil {
			return err
		}
		set, err := s.tickets.SetFirstResponse(ctx, ticket.ID, reply.CreatedAt)
		firstResponse = set
		return err
	})
	if err != nil {
		return nil, translate(err, "ticket", ids("ticket_id", ticket.ID))
	}

	publishEvent(ctx, s.publisher, s.logger, events.New(events.EventReplyAdded, ticket.ID, actor, s.now(), events.ReplyAddedPayload{
		ReplyID:        reply.ID,
		AuthorType:     reply.AuthorType,
		AuthorID:       reply.AuthorID,
		IsInternalNote: reply.IsInternalNote,
		FirstResponse:  firstResponse,
		BodyPreview:    stringPreview(reply.Content, 120),
	}))
	return reply, nil
}

// AppendSystemNote adds a system-authored reply. It joins the caller's
// transaction and never counts as a response to the customer.
func (s *ReplyService) AppendSystemNote(ctx context.Context, ticketID, content string, internal bool) (*domain.Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationReason("empty_content", "system note is empty", ids("ticket_id", ticketID))
	}
	note := &domain.Reply{
		TicketID:       ticketID,
		AuthorType:     domain.AuthorTypeSystem,
		AuthorName:     domain.SystemActor.Name,
		Content:        content,
		IsInternalNote: internal,
		CreatedAt:      s.now(),
	}
	if err := s.replies.Create(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// ListReplies returns the thread of a ticket, oldest first.
func (s *ReplyService) ListReplies(ctx context.Context, ticketID string, includeInternal bool) ([]domain.Reply, error) {
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, translate(err, "ticket", ids("ticket_id", ticketID))
	}
	return s.replies.ListByTicket(ctx, ticketID, includeInternal)
}

// AddAttachment records metadata for a file already placed in storage.
func (s *ReplyService) AddAttachment(ctx context.Context, input AttachmentInput) (*domain.Attachment, error) {
	input.FileName = strings.TrimSpace(input.FileName)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if _, err := s.tickets.GetByID(ctx, input.TicketID); err != nil {
		return nil, translate(err, "ticket", ids("ticket_id", input.TicketID))
	}
	if input.ReplyID != nil {
		reply, err := s.replies.GetByID(ctx, *input.ReplyID)
		if err != nil {
			return nil, translate(err, "reply", ids("reply_id", *input.ReplyID))
		}
		if reply.TicketID != input.TicketID {
			return nil, replyNotOnTicket(reply.ID, input.TicketID)
		}
	}
	attachment := &domain.Attachment{
		TicketID:   input.TicketID,
		ReplyID:    input.ReplyID,
		FileName:   input.FileName,
		MimeType:   strings.TrimSpace(input.MimeType),
		SizeBytes:  input.SizeBytes,
		StorageKey: input.StorageKey,
		UploadedBy: auth.ActorFromContext(ctx).IDRef(),
		CreatedAt:  s.now(),
	}
	if err := s.attachments.Create(ctx, attachment); err != nil {
		return nil, translate(err, "ticket", ids("ticket_id", input.TicketID))
	}
	return attachment, nil
}

// ListAttachments returns the attachment metadata of a ticket.
func (s *ReplyService) ListAttachments(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, translate(err, "ticket", ids("ticket_id", ticketID))
	}
	return s.attachments.ListByTicket(ctx, ticketID)
}

func authorType(actor domain.Actor, email string, ticket *domain.Ticket) domain.ReplyAuthorType {
	switch {
	case actor.Type == domain.ActorTypeCustomer:
		return domain.AuthorTypeCustomer
	case email != "" && strings.EqualFold(email, ticket.CustomerEmail):
		return domain.AuthorTypeCustomer
	case actor.ID == "":
		return domain.AuthorTypeSystem
	}
	return domain.AuthorTypeAgent
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
