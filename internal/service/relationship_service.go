package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/auth"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/sla"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

const (
	opMerge     = "relationship.merge"
	opSplit     = "relationship.split"
	opLink      = "relationship.link"
	opDuplicate = "relationship.duplicate"
)

// errRepliesChanged aborts a split whose listed replies moved after validation.
var errRepliesChanged = errors.New("listed replies changed during split")

// RelationshipService merges, splits, links and de-duplicates tickets. Every
// operation commits all of its writes or none of them.
type RelationshipService struct {
	tickets       *TicketService
	ticketRepo    repository.TicketRepository
	replies       repository.ReplyRepository
	attachments   repository.AttachmentRepository
	relationships repository.RelationshipRepository
	history       repository.TicketHistoryRepository
	notes         *ReplyService
	tx            Transactor
	publisher     events.Publisher
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

// RelationshipDependencies bundles collaborators for RelationshipService.
type RelationshipDependencies struct {
	Tickets          *TicketService
	TicketRepo       repository.TicketRepository
	ReplyRepo        repository.ReplyRepository
	AttachmentRepo   repository.AttachmentRepository
	RelationshipRepo repository.RelationshipRepository
	HistoryRepo      repository.TicketHistoryRepository
	Notes            *ReplyService
	Tx               Transactor
	Publisher        events.Publisher
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	Clock            func() time.Time
}

// SplitInput describes a split. ReplyIDs must all belong to the parent.
type SplitInput struct {
	ParentID string   `field:"parent_id" validate:"required"`
	Subject  string   `validate:"required,max=255"`
	ReplyIDs []string `field:"reply_ids"`
	Notes    string
}

// NewRelationshipService constructs the service.
func NewRelationshipService(deps RelationshipDependencies) *RelationshipService {
	return &RelationshipService{
		tickets:       deps.Tickets,
		ticketRepo:    deps.TicketRepo,
		replies:       deps.ReplyRepo,
		attachments:   deps.AttachmentRepo,
		relationships: deps.RelationshipRepo,
		history:       deps.HistoryRepo,
		notes:         deps.Notes,
		tx:            deps.Tx,
		publisher:     deps.Publisher,
		logger:        observability.OrNop(deps.Logger),
		metrics:       deps.Metrics,
		now:           nowOr(deps.Clock),
	}
}

// Merge moves every reply and attachment of secondary onto primary, marks
// secondary merged and records a merged relationship (primary, secondary).
func (s *RelationshipService) Merge(ctx context.Context, primaryID, secondaryID, notes string) (*domain.TicketRelationship, error) {
	primary, secondary, err := s.loadPair(ctx, primaryID, secondaryID, domain.RelationshipMerged)
	if err != nil {
		return nil, err
	}
	if secondary.Status == domain.TicketStatusMerged {
		return nil, apperrors.NewValidationReason("ticket_merged", "secondary ticket is already merged", ids("ticket_id", secondary.ID))
	}
	if primary.Status == domain.TicketStatusMerged {
		return nil, apperrors.NewValidationReason("ticket_merged", "primary ticket is merged into another ticket", ids("ticket_id", primary.ID))
	}

	actor := auth.ActorFromContext(ctx)
	now := s.now()
	oldStatus := secondary.Status
	rel := s.newRelationship(primary.ID, secondary.ID, domain.RelationshipMerged, notes, actor, now)
	var movedReplies, movedAttachments int

	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if movedReplies, err = s.replies.ReassignTicket(ctx, secondary.ID, primary.ID); err != nil {
			return fmt.Errorf("reassign replies: %w", err)
		}
		if movedAttachments, err = s.attachments.ReassignTicket(ctx, secondary.ID, primary.ID); err != nil {
			return fmt.Errorf("reassign attachments: %w", err)
		}
		if err := s.changeStatus(ctx, secondary, domain.TicketStatusMerged, actor, now); err != nil {
			return err
		}
		if err := s.relationships.Create(ctx, rel); err != nil {
			return fmt.Errorf("record relationship: %w", err)
		}
		note := fmt.Sprintf("Ticket %s was merged into this ticket by %s.", secondary.TicketNumber, actor.DisplayName())
		if _, err := s.notes.AppendSystemNote(ctx, primary.ID, withNotes(note, notes), true); err != nil {
			return fmt.Errorf("append merge note: %w", err)
		}
		return s.ticketRepo.Touch(ctx, primary.ID, now)
	})
	if err != nil {
		return nil, s.rollbackError(opMerge, err, ids("primary_id", primary.ID, "secondary_id", secondary.ID))
	}
	s.metrics.RecordOperation(opMerge, observability.OutcomeSuccess)
	s.logger.Info("tickets merged",
		zap.String("primary_id", primary.ID),
		zap.String("secondary_id", secondary.ID),
		zap.Int("replies_moved", movedReplies),
		zap.Int("attachments_moved", movedAttachments))

	s.emit(ctx, actor, events.EventTicketsMerged, primary.ID, events.TicketsMergedPayload{
		PrimaryID:        primary.ID,
		SecondaryID:      secondary.ID,
		SecondaryNumber:  secondary.TicketNumber,
		RepliesMoved:     movedReplies,
		AttachmentsMoved: movedAttachments,
		RelationshipID:   rel.ID,
	})
	s.emit(ctx, actor, events.EventStatusChanged, secondary.ID, events.StatusChangedPayload{OldStatus: oldStatus, NewStatus: secondary.Status})
	return rel, nil
}

// Split opens a new ticket from parent carrying the listed replies and records a
// split relationship (parent, new). The number lock stays held until commit, and
// a taken number rolls the attempt back and draws another.
func (s *RelationshipService) Split(ctx context.Context, input SplitInput) (*domain.Ticket, error) {
	input.Subject = strings.TrimSpace(input.Subject)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	parent, err := s.tickets.Get(ctx, input.ParentID)
	if err != nil {
		return nil, err
	}
	if parent.Status == domain.TicketStatusMerged {
		return nil, apperrors.NewValidationReason("ticket_merged", "merged tickets cannot be split", ids("ticket_id", parent.ID))
	}
	replyIDs, err := s.checkReplies(ctx, parent.ID, input.ReplyIDs)
	if err != nil {
		return nil, err
	}
	entity, err := s.tickets.entities.Get(ctx, parent.EntityID)
	if err != nil {
		return nil, err
	}

	child, err := s.tickets.prepare(ctx, entity, TicketCreateInput{
		EntityID:      parent.EntityID,
		Subject:       input.Subject,
		Description:   withNotes(fmt.Sprintf("Split from ticket %s.", parent.TicketNumber), input.Notes),
		Priority:      parent.Priority,
		Category:      parent.Category,
		CustomerName:  parent.CustomerName,
		CustomerEmail: parent.CustomerEmail,
		CustomerPhone: parent.CustomerPhone,
	})
	if err != nil {
		return nil, err
	}

	actor := auth.ActorFromContext(ctx)
	now := s.now()
	var rel *domain.TicketRelationship

	err = s.tickets.reserveNumber(ctx, entity, child, func(ctx context.Context, child *domain.Ticket) error {
		return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
			if err := s.tickets.insertNumbered(ctx, child); err != nil {
				return err
			}
			moved, err := s.replies.ReassignReplies(ctx, replyIDs, parent.ID, child.ID)
			if err != nil {
				return fmt.Errorf("reassign replies: %w", err)
			}
			if moved != len(replyIDs) {
				return errRepliesChanged
			}
			rel = s.newRelationship(parent.ID, child.ID, domain.RelationshipSplit, input.Notes, actor, now)
			if err := s.relationships.Create(ctx, rel); err != nil {
				return fmt.Errorf("record relationship: %w", err)
			}
			parentNote := fmt.Sprintf("Ticket split by %s: %d replies moved to new ticket %s.", actor.DisplayName(), len(replyIDs), child.TicketNumber)
			if _, err := s.notes.AppendSystemNote(ctx, parent.ID, parentNote, true); err != nil {
				return fmt.Errorf("append split note: %w", err)
			}
			childNote := fmt.Sprintf("Ticket created by %s as a split from ticket %s.", actor.DisplayName(), parent.TicketNumber)
			if _, err := s.notes.AppendSystemNote(ctx, child.ID, childNote, true); err != nil {
				return fmt.Errorf("append split note: %w", err)
			}
			return s.ticketRepo.Touch(ctx, parent.ID, now)
		})
	})
	if err != nil {
		if errors.Is(err, errNumberTaken) {
			s.metrics.RecordOperation(opSplit, observability.OutcomeFailure)
			return nil, numberCollision(err, child)
		}
		return nil, s.rollbackError(opSplit, err, ids("parent_id", parent.ID))
	}
	s.metrics.RecordOperation(opSplit, observability.OutcomeSuccess)
	s.logger.Info("ticket split",
		zap.String("parent_id", parent.ID),
		zap.String("new_ticket_id", child.ID),
		zap.String("ticket_number", child.TicketNumber),
		zap.Int("replies_moved", len(replyIDs)))

	s.emit(ctx, actor, events.EventTicketSplit, parent.ID, events.TicketSplitPayload{
		ParentID:       parent.ID,
		NewTicketID:    child.ID,
		NewNumber:      child.TicketNumber,
		MovedReplyIDs:  replyIDs,
		RelationshipID: rel.ID,
	})
	s.emit(ctx, actor, events.EventTicketCreated, child.ID, events.TicketCreatedPayload{
		EntityID:     child.EntityID,
		TicketNumber: child.TicketNumber,
		Priority:     child.Priority,
		Status:       child.Status,
		Subject:      child.Subject,
		SLARuleID:    child.SLARuleID,
	})
	return child, nil
}

// Link records a related relationship. Neither ticket changes.
func (s *RelationshipService) Link(ctx context.Context, ticketID1, ticketID2, notes string) (*domain.TicketRelationship, error) {
	first, second, err := s.loadPair(ctx, ticketID1, ticketID2, domain.RelationshipRelated)
	if err != nil {
		return nil, err
	}
	actor := auth.ActorFromContext(ctx)
	rel := s.newRelationship(first.ID, second.ID, domain.RelationshipRelated, notes, actor, s.now())
	if err := s.relationships.Create(ctx, rel); err != nil {
		s.metrics.RecordOperation(opLink, observability.OutcomeFailure)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, relationshipExists(first.ID, second.ID, domain.RelationshipRelated)
		}
		return nil, err
	}
	s.metrics.RecordOperation(opLink, observability.OutcomeSuccess)
	s.emit(ctx, actor, events.EventTicketsLinked, first.ID, events.TicketsLinkedPayload{
		ParentID:       first.ID,
		ChildID:        second.ID,
		RelationshipID: rel.ID,
	})
	return rel, nil
}

// MarkDuplicate records a duplicate relationship (original, duplicate), closes
// the duplicate and leaves a customer-visible note on it.
func (s *RelationshipService) MarkDuplicate(ctx context.Context, originalID, duplicateID, notes string) (*domain.TicketRelationship, error) {
	original, duplicate, err := s.loadPair(ctx, originalID, duplicateID, domain.RelationshipDuplicate)
	if err != nil {
		return nil, err
	}
	if duplicate.Status == domain.TicketStatusMerged {
		return nil, apperrors.NewValidationReason("ticket_merged", "merged tickets cannot be marked duplicate", ids("ticket_id", duplicate.ID))
	}

	actor := auth.ActorFromContext(ctx)
	now := s.now()
	oldStatus := duplicate.Status
	rel := s.newRelationship(original.ID, duplicate.ID, domain.RelationshipDuplicate, notes, actor, now)

	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.relationships.Create(ctx, rel); err != nil {
			return fmt.Errorf("record relationship: %w", err)
		}
		if err := s.changeStatus(ctx, duplicate, domain.TicketStatusClosed, actor, now); err != nil {
			return err
		}
		note := fmt.Sprintf("This ticket has been closed as a duplicate of ticket %s.", original.TicketNumber)
		if _, err := s.notes.AppendSystemNote(ctx, duplicate.ID, withNotes(note, notes), false); err != nil {
			return fmt.Errorf("append duplicate note: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.rollbackError(opDuplicate, err, ids("original_id", original.ID, "duplicate_id", duplicate.ID))
	}
	s.metrics.RecordOperation(opDuplicate, observability.OutcomeSuccess)

	s.emit(ctx, actor, events.EventMarkedDuplicate, duplicate.ID, events.MarkedDuplicatePayload{
		OriginalID:     original.ID,
		DuplicateID:    duplicate.ID,
		OldStatus:      oldStatus,
		NewStatus:      duplicate.Status,
		RelationshipID: rel.ID,
	})
	if oldStatus != duplicate.Status {
		s.emit(ctx, actor, events.EventStatusChanged, duplicate.ID, events.StatusChangedPayload{OldStatus: oldStatus, NewStatus: duplicate.Status})
	}
	return rel, nil
}

// Related lists the relationships touching a ticket from its point of view.
func (s *RelationshipService) Related(ctx context.Context, ticketID string) ([]domain.RelatedTicket, error) {
	if _, err := s.tickets.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.relationships.ListByTicket(ctx, ticketID)
}

// DeleteRelationship removes an audit edge.
func (s *RelationshipService) DeleteRelationship(ctx context.Context, id string) error {
	if err := s.relationships.Delete(ctx, id); err != nil {
		return translate(err, "relationship", ids("relationship_id", id))
	}
	s.logger.Info("relationship deleted", zap.String("relationship_id", id))
	return nil
}

// loadPair runs the checks shared by every operation before any write.
func (s *RelationshipService) loadPair(ctx context.Context, parentID, childID string, relType domain.RelationshipType) (*domain.Ticket, *domain.Ticket, error) {
	if !relType.Valid() {
		return nil, nil, apperrors.NewValidationReason("invalid_relationship_type", "unknown relationship type", ids("type", string(relType)))
	}
	if parentID == childID {
		return nil, nil, apperrors.NewValidationReason("self_relationship", "a ticket cannot be related to itself", ids("ticket_id", parentID))
	}
	parent, err := s.tickets.Get(ctx, parentID)
	if err != nil {
		return nil, nil, err
	}
	child, err := s.tickets.Get(ctx, childID)
	if err != nil {
		return nil, nil, err
	}
	exists, err := s.relationships.Exists(ctx, parent.ID, child.ID, relType)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, relationshipExists(parent.ID, child.ID, relType)
	}
	return parent, child, nil
}

// checkReplies dedupes ids and verifies every one belongs to ticketID.
func (s *RelationshipService) checkReplies(ctx context.Context, ticketID string, replyIDs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(replyIDs))
	unique := make([]string, 0, len(replyIDs))
	for _, id := range replyIDs {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		reply, err := s.replies.GetByID(ctx, id)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, replyNotOnTicket(id, ticketID)
		case err != nil:
			return nil, err
		case reply.TicketID != ticketID:
			return nil, replyNotOnTicket(id, ticketID)
		}
		unique = append(unique, id)
	}
	return unique, nil
}

// changeStatus moves ticket to status inside the current transaction and audits it.
func (s *RelationshipService) changeStatus(ctx context.Context, ticket *domain.Ticket, status domain.TicketStatus, actor domain.Actor, now time.Time) error {
	oldStatus := ticket.Status
	if !ticket.TransitionTo(status, now) {
		return nil
	}
	ticket.UpdatedAt = now
	if ticket.SLARuleID != nil {
		ticket.SLAStatus = sla.Evaluate(ticket, now).Overall
	}
	if err := s.ticketRepo.Update(ctx, ticket, nil); err != nil {
		return fmt.Errorf("update ticket %s: %w", ticket.ID, err)
	}
	entry := &domain.TicketHistory{
		TicketID:    ticket.ID,
		ChangedByID: actor.IDRef(),
		ChangeType:  domain.ChangeTypeStatus,
		OldValue:    map[string]any{"status": oldStatus},
		NewValue:    map[string]any{"status": status},
		CreatedAt:   now,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

func (s *RelationshipService) newRelationship(parentID, childID string, relType domain.RelationshipType, notes string, actor domain.Actor, now time.Time) *domain.TicketRelationship {
	return &domain.TicketRelationship{
		ParentTicketID: parentID,
		ChildTicketID:  childID,
		Type:           relType,
		CreatedBy:      actor.IDRef(),
		Notes:          strings.TrimSpace(notes),
		CreatedAt:      now,
	}
}

// rollbackError logs a rolled back operation and reports it for a safe retry.
func (s *RelationshipService) rollbackError(op string, err error, details map[string]any) error {
	s.metrics.RecordOperation(op, observability.OutcomeFailure)
	fields := []zap.Field{zap.String("operation", op), zap.Error(err)}
	for key, value := range details {
		fields = append(fields, zap.Any(key, value))
	}
	s.logger.Error("relationship operation rolled back", fields...)
	if errors.Is(err, repository.ErrDuplicate) {
		return apperrors.NewConflictReason("relationship_exists", "relationship already exists", details)
	}
	return apperrors.NewTransactionError(err, details)
}

func (s *RelationshipService) emit(ctx context.Context, actor domain.Actor, eventType events.EventType, ticketID string, payload any) {
	publishEvent(ctx, s.publisher, s.logger, events.New(eventType, ticketID, actor, s.now(), payload))
}

func relationshipExists(parentID, childID string, relType domain.RelationshipType) error {
	return apperrors.NewConflictReason("relationship_exists", "relationship already exists",
		ids("parent_ticket_id", parentID, "child_ticket_id", childID, "type", string(relType)))
}

func replyNotOnTicket(replyID, ticketID string) error {
	return apperrors.NewValidationReason("reply_not_on_ticket", "reply does not belong to the ticket",
		ids("reply_id", replyID, "ticket_id", ticketID))
}

func withNotes(text, notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return text
	}
	return text + "\n\n" + notes
}
