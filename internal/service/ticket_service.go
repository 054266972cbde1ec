package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

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
	opTicketCreate = "ticket.create"
	opTicketUpdate = "ticket.update"
	opTicketDelete = "ticket.delete"

	maxListLimit = 100

	// maxNumberAttempts bounds how often a create draws a new number after
	// the previous one turned out to be taken.
	maxNumberAttempts = 3
)

// errNumberTaken marks an insert rejected because its ticket number exists.
var errNumberTaken = errors.New("ticket number taken")

// NumberReserver hands out a ticket number while the entity's number lock is held.
type NumberReserver interface {
	Reserve(ctx context.Context, entity *domain.Entity, fn func(ctx context.Context, number string) error) error
}

// RuleResolver picks the SLA rule governing a ticket.
type RuleResolver interface {
	ApplicableRule(ctx context.Context, entityID string, priority domain.TicketPriority, attrs sla.Attributes) (*domain.SLARule, error)
}

// TicketService coordinates ticket lifecycle workflows.
type TicketService struct {
	tickets         repository.TicketRepository
	replies         repository.ReplyRepository
	attachments     repository.AttachmentRepository
	relationships   repository.RelationshipRepository
	history         repository.TicketHistoryRepository
	entities        *EntityService
	agents          *AgentService
	numbers         NumberReserver
	rules           RuleResolver
	tx              Transactor
	publisher       events.Publisher
	logger          *zap.Logger
	metrics         *observability.Metrics
	now             func() time.Time
	initialStatus   domain.TicketStatus
	defaultPriority domain.TicketPriority
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo       repository.TicketRepository
	ReplyRepo        repository.ReplyRepository
	AttachmentRepo   repository.AttachmentRepository
	RelationshipRepo repository.RelationshipRepository
	HistoryRepo      repository.TicketHistoryRepository
	Entities         *EntityService
	Agents           *AgentService
	Numbers          NumberReserver
	Rules            RuleResolver
	Tx               Transactor
	Publisher        events.Publisher
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	Clock            func() time.Time
	InitialStatus    domain.TicketStatus
	DefaultPriority  domain.TicketPriority
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	EntityID      string                `field:"entity_id" validate:"required"`
	Subject       string                `validate:"required,max=255"`
	Description   string                `validate:"required"`
	Priority      domain.TicketPriority `validate:"omitempty,max=32"`
	Category      string                `validate:"max=100"`
	CustomerName  string                `field:"customer_name" validate:"required,max=200"`
	CustomerEmail string                `field:"customer_email" validate:"required,email"`
	CustomerPhone string                `field:"customer_phone" validate:"max=50"`
	AssignedTo    *string               `field:"assigned_to"`
	MetaData      domain.TicketMeta     `field:"meta_data"`
}

// TicketUpdateInput carries optional ticket changes. A nil field is left alone.
type TicketUpdateInput struct {
	Subject       *string                `validate:"omitempty,min=1,max=255"`
	Description   *string                `validate:"omitempty,min=1"`
	Status        *domain.TicketStatus
	Priority      *domain.TicketPriority `validate:"omitempty,min=1,max=32"`
	Category      *string                `validate:"omitempty,max=100"`
	CustomerName  *string                `field:"customer_name" validate:"omitempty,min=1,max=200"`
	CustomerEmail *string                `field:"customer_email" validate:"omitempty,email"`
	CustomerPhone *string                `field:"customer_phone" validate:"omitempty,max=50"`
	AssignedTo    *string                `field:"assigned_to"`
	Unassign      bool
	// MetaData replaces the whole bag when non-nil.
	MetaData domain.TicketMeta `field:"meta_data"`
	// ExpectedVersion makes the update conditional. Without it the last writer wins.
	ExpectedVersion *int `field:"expected_version"`
}

// TicketListFilter scopes a ticket listing. EntityID with IncludeChildren
// also covers the direct children of a root entity.
type TicketListFilter struct {
	repository.TicketFilter
	EntityID        *string
	IncludeChildren bool
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:         deps.TicketRepo,
		replies:         deps.ReplyRepo,
		attachments:     deps.AttachmentRepo,
		relationships:   deps.RelationshipRepo,
		history:         deps.HistoryRepo,
		entities:        deps.Entities,
		agents:          deps.Agents,
		numbers:         deps.Numbers,
		rules:           deps.Rules,
		tx:              deps.Tx,
		publisher:       deps.Publisher,
		logger:          observability.OrNop(deps.Logger),
		metrics:         deps.Metrics,
		now:             nowOr(deps.Clock),
		initialStatus:   deps.InitialStatus,
		defaultPriority: deps.DefaultPriority,
	}
	if s.initialStatus == "" {
		s.initialStatus = domain.TicketStatusNew
	}
	if s.defaultPriority == "" {
		s.defaultPriority = domain.TicketPriorityNormal
	}
	return s
}

// Create numbers, stamps and stores a new ticket.
func (s *TicketService) Create(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	input = trimCreateInput(input)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	entity, err := s.entities.Get(ctx, input.EntityID)
	if err != nil {
		return nil, err
	}
	if !entity.IsActive() {
		return nil, apperrors.NewValidationReason("entity_inactive", "entity does not accept new tickets", ids("entity_id", entity.ID))
	}
	ticket, err := s.prepare(ctx, entity, input)
	if err != nil {
		return nil, err
	}

	err = s.reserveNumber(ctx, entity, ticket, s.insertNumbered)
	if err != nil {
		s.metrics.RecordOperation(opTicketCreate, observability.OutcomeFailure)
		return nil, numberCollision(err, ticket)
	}
	s.metrics.RecordOperation(opTicketCreate, observability.OutcomeSuccess)
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("entity_id", ticket.EntityID))

	s.emit(ctx, events.EventTicketCreated, ticket.ID, events.TicketCreatedPayload{
		EntityID:     ticket.EntityID,
		TicketNumber: ticket.TicketNumber,
		Priority:     ticket.Priority,
		Status:       ticket.Status,
		Subject:      ticket.Subject,
		SLARuleID:    ticket.SLARuleID,
	})
	return ticket, nil
}

// prepare validates input and builds an unnumbered ticket for entity with its SLA stamped.
func (s *TicketService) prepare(ctx context.Context, entity *domain.Entity, input TicketCreateInput) (*domain.Ticket, error) {
	input = trimCreateInput(input)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := checkMeta(input.MetaData); err != nil {
		return nil, err
	}
	if _, err := s.entities.Lineage(ctx, entity.ID); err != nil {
		return nil, err
	}
	priority := input.Priority
	if priority == "" {
		priority = s.defaultPriority
	}
	if err := checkPriority(priority); err != nil {
		return nil, err
	}
	if input.AssignedTo != nil {
		if err := s.checkAssignee(ctx, *input.AssignedTo); err != nil {
			return nil, err
		}
	}

	now := s.now()
	actor := auth.ActorFromContext(ctx)
	ticket := &domain.Ticket{
		EntityID:      entity.ID,
		Subject:       input.Subject,
		Description:   sanitizeContent(input.Description),
		Status:        s.initialStatus,
		Priority:      priority,
		Category:      strings.TrimSpace(input.Category),
		CustomerName:  input.CustomerName,
		CustomerEmail: input.CustomerEmail,
		CustomerPhone: strings.TrimSpace(input.CustomerPhone),
		AssignedTo:    input.AssignedTo,
		CreatedBy:     actor.IDRef(),
		MetaData:      maps.Clone(input.MetaData),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if ticket.MetaData == nil {
		ticket.MetaData = domain.TicketMeta{}
	}
	if err := s.applySLA(ctx, ticket, now); err != nil {
		return nil, err
	}
	return ticket, nil
}

// reserveNumber numbers ticket and runs write under the entity's number lock.
// A write that fails with errNumberTaken is retried with a fresh number.
func (s *TicketService) reserveNumber(ctx context.Context, entity *domain.Entity, ticket *domain.Ticket, write func(ctx context.Context, ticket *domain.Ticket) error) error {
	var err error
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		err = s.numbers.Reserve(ctx, entity, func(ctx context.Context, number string) error {
			ticket.TicketNumber = number
			return write(ctx, ticket)
		})
		if !errors.Is(err, errNumberTaken) {
			return err
		}
		s.logger.Warn("ticket number taken, drawing another",
			zap.String("entity_id", entity.ID),
			zap.String("ticket_number", ticket.TicketNumber),
			zap.Int("attempt", attempt))
	}
	return err
}

// insertNumbered stores ticket and tags a unique violation as errNumberTaken.
func (s *TicketService) insertNumbered(ctx context.Context, ticket *domain.Ticket) error {
	err := s.tickets.Create(ctx, ticket)
	if errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("%w: %w", errNumberTaken, err)
	}
	return err
}

func trimCreateInput(input TicketCreateInput) TicketCreateInput {
	input.EntityID = strings.TrimSpace(input.EntityID)
	input.Subject = strings.TrimSpace(input.Subject)
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.CustomerEmail = strings.TrimSpace(input.CustomerEmail)
	return input
}

// Get fetches a ticket by id.
func (s *TicketService) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "ticket", ids("ticket_id", id))
	}
	return ticket, nil
}

// GetByNumber fetches a ticket by its ticket number.
func (s *TicketService) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		return nil, translate(err, "ticket", ids("ticket_number", number))
	}
	return ticket, nil
}

// Update applies input to the ticket. Entering resolved or closed stamps
// resolved_at or closed_at the first time only.
func (s *TicketService) Update(ctx context.Context, id string, input TicketUpdateInput) (*domain.Ticket, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.ExpectedVersion != nil && *input.ExpectedVersion != ticket.Version {
		return nil, apperrors.NewConflictReason("version_mismatch", "ticket was modified concurrently",
			map[string]any{"ticket_id": id, "expected_version": *input.ExpectedVersion, "version": ticket.Version})
	}

	now := s.now()
	actor := auth.ActorFromContext(ctx)
	changes := map[string]events.FieldChange{}
	var history []domain.TicketHistory
	record := func(changeType domain.TicketChangeType, key string, oldValue, newValue any) {
		history = append(history, domain.TicketHistory{
			TicketID:    ticket.ID,
			ChangedByID: actor.IDRef(),
			ChangeType:  changeType,
			OldValue:    map[string]any{key: oldValue},
			NewValue:    map[string]any{key: newValue},
			CreatedAt:   now,
		})
	}

	oldStatus := ticket.Status
	if input.Status != nil && *input.Status != ticket.Status {
		next := *input.Status
		switch {
		case !next.Valid():
			return nil, apperrors.NewValidationReason("invalid_status", "unknown ticket status", ids("status", string(next)))
		case next == domain.TicketStatusMerged:
			return nil, apperrors.NewValidationReason("merge_only", "tickets enter merged only by being merged", ids("ticket_id", id))
		case ticket.Status == domain.TicketStatusMerged:
			return nil, apperrors.NewValidationReason("ticket_merged", "merged tickets cannot change status", ids("ticket_id", id))
		}
		ticket.TransitionTo(next, now)
		changes["status"] = events.FieldChange{Old: oldStatus, New: next}
		record(domain.ChangeTypeStatus, "status", oldStatus, next)
	}

	resolveSLA := false
	if input.Priority != nil && *input.Priority != ticket.Priority {
		if err := checkPriority(*input.Priority); err != nil {
			return nil, err
		}
		changes["priority"] = events.FieldChange{Old: ticket.Priority, New: *input.Priority}
		record(domain.ChangeTypePriority, "priority", ticket.Priority, *input.Priority)
		ticket.Priority = *input.Priority
		resolveSLA = true
	}
	if input.Category != nil && strings.TrimSpace(*input.Category) != ticket.Category {
		category := strings.TrimSpace(*input.Category)
		changes["category"] = events.FieldChange{Old: ticket.Category, New: category}
		ticket.Category = category
		resolveSLA = true
	}

	switch {
	case input.Unassign:
		if ticket.AssignedTo != nil {
			changes["assigned_to"] = events.FieldChange{Old: *ticket.AssignedTo, New: nil}
			record(domain.ChangeTypeAssignee, "assigned_to", *ticket.AssignedTo, nil)
			ticket.AssignedTo = nil
		}
	case input.AssignedTo != nil && (ticket.AssignedTo == nil || *ticket.AssignedTo != *input.AssignedTo):
		if err := s.checkAssignee(ctx, *input.AssignedTo); err != nil {
			return nil, err
		}
		var previous any
		if ticket.AssignedTo != nil {
			previous = *ticket.AssignedTo
		}
		assignee := *input.AssignedTo
		changes["assigned_to"] = events.FieldChange{Old: previous, New: assignee}
		record(domain.ChangeTypeAssignee, "assigned_to", previous, assignee)
		ticket.AssignedTo = &assignee
	}

	setString := func(key string, target *string, value *string, clean func(string) string) {
		if value == nil {
			return
		}
		next := clean(*value)
		if next == *target {
			return
		}
		changes[key] = events.FieldChange{Old: *target, New: next}
		*target = next
	}
	setString("subject", &ticket.Subject, input.Subject, strings.TrimSpace)
	setString("description", &ticket.Description, input.Description, sanitizeContent)
	setString("customer_name", &ticket.CustomerName, input.CustomerName, strings.TrimSpace)
	setString("customer_email", &ticket.CustomerEmail, input.CustomerEmail, strings.TrimSpace)
	setString("customer_phone", &ticket.CustomerPhone, input.CustomerPhone, strings.TrimSpace)

	if input.MetaData != nil && !maps.Equal(input.MetaData, ticket.MetaData) {
		if err := checkMeta(input.MetaData); err != nil {
			return nil, err
		}
		changes["meta_data"] = events.FieldChange{Old: ticket.MetaData, New: input.MetaData}
		ticket.MetaData = maps.Clone(input.MetaData)
	}

	if len(changes) == 0 {
		return ticket, nil
	}

	ticket.UpdatedAt = now
	if resolveSLA {
		if err := s.applySLA(ctx, ticket, now); err != nil {
			return nil, err
		}
	} else if ticket.SLARuleID != nil {
		ticket.SLAStatus = sla.Evaluate(ticket, now).Overall
	}

	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.tickets.Update(ctx, ticket, input.ExpectedVersion); err != nil {
			return err
		}
		for i := range history {
			if err := s.history.Create(ctx, &history[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordOperation(opTicketUpdate, observability.OutcomeFailure)
		return nil, translate(err, "ticket", ids("ticket_id", id))
	}
	s.metrics.RecordOperation(opTicketUpdate, observability.OutcomeSuccess)

	s.emit(ctx, events.EventTicketUpdated, ticket.ID, events.TicketUpdatedPayload{Changes: changes, Version: ticket.Version})
	if ticket.Status != oldStatus {
		s.emit(ctx, events.EventStatusChanged, ticket.ID, events.StatusChangedPayload{OldStatus: oldStatus, NewStatus: ticket.Status})
	}
	return ticket, nil
}

// Delete removes the ticket together with its replies, attachments,
// relationships and history.
func (s *TicketService) Delete(ctx context.Context, id string) error {
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.attachments.DeleteByTicket(ctx, ticket.ID); err != nil {
			return err
		}
		if err := s.replies.DeleteByTicket(ctx, ticket.ID); err != nil {
			return err
		}
		if err := s.relationships.DeleteByTicket(ctx, ticket.ID); err != nil {
			return err
		}
		if err := s.history.DeleteByTicket(ctx, ticket.ID); err != nil {
			return err
		}
		return s.tickets.Delete(ctx, ticket.ID)
	})
	if err != nil {
		s.metrics.RecordOperation(opTicketDelete, observability.OutcomeFailure)
		s.logger.Error("ticket delete rolled back", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return apperrors.NewTransactionError(err, ids("ticket_id", ticket.ID))
	}
	s.metrics.RecordOperation(opTicketDelete, observability.OutcomeSuccess)
	s.emit(ctx, events.EventTicketDeleted, ticket.ID, events.TicketDeletedPayload{
		TicketNumber: ticket.TicketNumber,
		EntityID:     ticket.EntityID,
	})
	return nil
}

// List returns tickets matching filter.
func (s *TicketService) List(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter, err := s.repoFilter(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.tickets.ListWithFilter(ctx, repoFilter)
}

// Count returns how many tickets match filter, ignoring paging.
func (s *TicketService) Count(ctx context.Context, filter TicketListFilter) (int, error) {
	repoFilter, err := s.repoFilter(ctx, filter)
	if err != nil {
		return 0, err
	}
	return s.tickets.Count(ctx, repoFilter)
}

// History lists the audit trail of a ticket.
func (s *TicketService) History(ctx context.Context, id string) ([]domain.TicketHistory, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.history.ListByTicket(ctx, id)
}

func (s *TicketService) repoFilter(ctx context.Context, filter TicketListFilter) (repository.TicketFilter, error) {
	repoFilter := filter.TicketFilter
	if repoFilter.OrderBy != "" && !repository.ValidTicketOrder(repoFilter.OrderBy) {
		return repoFilter, apperrors.NewValidationReason("invalid_order", "unsupported order column", ids("order_by", repoFilter.OrderBy))
	}
	if repoFilter.Limit <= 0 || repoFilter.Limit > maxListLimit {
		repoFilter.Limit = maxListLimit
	}
	if filter.EntityID != nil {
		scope, err := s.entities.ScopeIDs(ctx, *filter.EntityID, filter.IncludeChildren)
		if err != nil {
			return repoFilter, err
		}
		repoFilter.EntityIDs = scope
	}
	return repoFilter, nil
}

// applySLA resolves the governing rule and stamps its deadlines from created_at.
func (s *TicketService) applySLA(ctx context.Context, ticket *domain.Ticket, now time.Time) error {
	if s.rules == nil {
		sla.Apply(ticket, nil, now)
		return nil
	}
	rule, err := s.rules.ApplicableRule(ctx, ticket.EntityID, ticket.Priority, sla.TicketAttributes(ticket))
	if err != nil {
		return err
	}
	sla.Apply(ticket, rule, now)
	return nil
}

func (s *TicketService) checkAssignee(ctx context.Context, agentID string) error {
	if s.agents == nil {
		return nil
	}
	_, err := s.agents.Assignable(ctx, agentID)
	return err
}

func (s *TicketService) emit(ctx context.Context, eventType events.EventType, ticketID string, payload any) {
	publishEvent(ctx, s.publisher, s.logger, events.New(eventType, ticketID, auth.ActorFromContext(ctx), s.now(), payload))
}

func checkPriority(priority domain.TicketPriority) error {
	if priority == domain.SLAPriorityAll || priority == domain.SLAPriorityDefault {
		return apperrors.NewValidationReason("invalid_priority", "priority is reserved for SLA rules", ids("priority", string(priority)))
	}
	return nil
}

func checkMeta(meta domain.TicketMeta) error {
	if unknown := meta.UnknownKeys(); len(unknown) > 0 {
		return apperrors.NewValidationReason("unknown_meta_key", "meta_data contains unrecognized keys",
			map[string]any{"keys": unknown})
	}
	return nil
}

func numberCollision(err error, ticket *domain.Ticket) error {
	if errors.Is(err, errNumberTaken) {
		return apperrors.NewConflictReason("ticket_number_collision", "ticket number already in use",
			ids("ticket_number", ticket.TicketNumber, "entity_id", ticket.EntityID))
	}
	return err
}
