package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/sla"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

const (
	opSLASweep        = "sla.sweep"
	defaultSweepBatch = 200
)

// SLAService manages SLA rules and keeps ticket SLA statuses current.
type SLAService struct {
	rules    repository.SLARuleRepository
	tickets  repository.TicketRepository
	entities *EntityService
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	batch    int
}

// SLADependencies bundles collaborators for SLAService.
type SLADependencies struct {
	RuleRepo   repository.SLARuleRepository
	TicketRepo repository.TicketRepository
	Entities   *EntityService
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Clock      func() time.Time
	SweepBatch int
}

// SLARuleInput describes a rule. A nil EntityID makes the rule global.
type SLARuleInput struct {
	EntityID            *string               `field:"entity_id"`
	Name                string                `validate:"required,max=200"`
	Priority            domain.TicketPriority `validate:"required,max=32"`
	ResponseTimeHours   *int                  `field:"response_time_hours" validate:"omitempty,gt=0"`
	ResolutionTimeHours *int                  `field:"resolution_time_hours" validate:"omitempty,gt=0"`
	EscalationTimeHours *int                  `field:"escalation_time_hours" validate:"omitempty,gt=0"`
	Conditions          []domain.SLACondition `validate:"-"`
	IsActive            *bool                 `field:"is_active"`
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Updated   int `json:"updated"`
	Breached  int `json:"breached"`
	Met       int `json:"met"`
	Escalated int `json:"escalated"`
}

// Compliance is the SLA standing of a set of tickets.
type Compliance struct {
	Total    int     `json:"total"`
	Met      int     `json:"met"`
	Breached int     `json:"breached"`
	Active   int     `json:"active"`
	Rate     float64 `json:"rate"`
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) *SLAService {
	batch := deps.SweepBatch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &SLAService{
		rules:    deps.RuleRepo,
		tickets:  deps.TicketRepo,
		entities: deps.Entities,
		logger:   observability.OrNop(deps.Logger),
		metrics:  deps.Metrics,
		now:      nowOr(deps.Clock),
		batch:    batch,
	}
}

// CreateRule validates and stores a rule.
func (s *SLAService) CreateRule(ctx context.Context, input SLARuleInput) (*domain.SLARule, error) {
	if err := s.checkRule(ctx, &input); err != nil {
		return nil, err
	}
	rule := &domain.SLARule{IsActive: true}
	applyRuleInput(rule, input)
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, translate(err, "sla rule", nil)
	}
	s.logger.Info("sla rule created", zap.String("rule_id", rule.ID), zap.String("priority", string(rule.Priority)))
	return rule, nil
}

// UpdateRule replaces the definition of a rule. Its scope cannot change.
func (s *SLAService) UpdateRule(ctx context.Context, id string, input SLARuleInput) (*domain.SLARule, error) {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	input.EntityID = rule.EntityID
	if err := s.checkRule(ctx, &input); err != nil {
		return nil, err
	}
	applyRuleInput(rule, input)
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, translate(err, "sla rule", ids("rule_id", id))
	}
	return rule, nil
}

// GetRule fetches a rule.
func (s *SLAService) GetRule(ctx context.Context, id string) (*domain.SLARule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "sla rule", ids("rule_id", id))
	}
	return rule, nil
}

// ListRules returns rules matching filter in resolution order.
func (s *SLAService) ListRules(ctx context.Context, filter repository.SLARuleFilter) ([]domain.SLARule, error) {
	rules, err := s.rules.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	sla.SortRules(rules)
	return rules, nil
}

// DeleteRule removes a rule. Tickets keep their stamped deadlines.
func (s *SLAService) DeleteRule(ctx context.Context, id string) error {
	if err := s.rules.Delete(ctx, id); err != nil {
		return translate(err, "sla rule", ids("rule_id", id))
	}
	return nil
}

// Sweep re-evaluates every ticket whose SLA is still running and stores the
// statuses that changed.
func (s *SLAService) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()
	offset := 0
	for {
		page, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
			SLAStatuses: []domain.SLAStatus{domain.SLAStatusActive},
			OrderBy:     "created_at",
			Ascending:   true,
			Limit:       s.batch,
			Offset:      offset,
		})
		if err != nil {
			s.metrics.RecordOperation(opSLASweep, observability.OutcomeFailure)
			return result, err
		}
		unchanged := 0
		for i := range page {
			ticket := &page[i]
			result.Scanned++
			ev := sla.Evaluate(ticket, now)
			if ev.Escalate {
				result.Escalated++
			}
			if ev.Overall == ticket.SLAStatus {
				unchanged++
				continue
			}
			if err := s.tickets.UpdateSLAStatus(ctx, ticket.ID, ev.Overall); err != nil {
				s.metrics.RecordOperation(opSLASweep, observability.OutcomeFailure)
				return result, err
			}
			result.Updated++
			switch ev.Overall {
			case domain.SLAStatusBreached:
				result.Breached++
				s.logger.Warn("sla breached",
					zap.String("ticket_id", ticket.ID),
					zap.String("ticket_number", ticket.TicketNumber))
			case domain.SLAStatusMet:
				result.Met++
			}
		}
		if len(page) < s.batch {
			break
		}
		// updated tickets leave the active set, so only skip the ones that stayed
		offset += unchanged
	}
	s.metrics.RecordOperation(opSLASweep, observability.OutcomeSuccess)
	s.logger.Info("sla sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("updated", result.Updated),
		zap.Int("breached", result.Breached),
		zap.Int("escalated", result.Escalated))
	return result, nil
}

// ComplianceRate reports the share of tickets under an SLA that met it. A nil
// entityID covers every entity; a root entity includes its children.
func (s *SLAService) ComplianceRate(ctx context.Context, entityID *string) (Compliance, error) {
	filter := repository.TicketFilter{}
	if entityID != nil {
		scope, err := s.entities.ScopeIDs(ctx, *entityID, true)
		if err != nil {
			return Compliance{}, err
		}
		filter.EntityIDs = scope
	}
	var c Compliance
	counts := []struct {
		status domain.SLAStatus
		target *int
	}{
		{domain.SLAStatusMet, &c.Met},
		{domain.SLAStatusBreached, &c.Breached},
		{domain.SLAStatusActive, &c.Active},
	}
	for _, entry := range counts {
		filter.SLAStatuses = []domain.SLAStatus{entry.status}
		n, err := s.tickets.Count(ctx, filter)
		if err != nil {
			return Compliance{}, err
		}
		*entry.target = n
	}
	c.Total = c.Met + c.Breached + c.Active
	if c.Total > 0 {
		c.Rate = float64(c.Met) / float64(c.Total)
	}
	return c, nil
}

func (s *SLAService) checkRule(ctx context.Context, input *SLARuleInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Priority = domain.TicketPriority(strings.TrimSpace(string(input.Priority)))
	if err := validateInput(*input); err != nil {
		return err
	}
	if input.ResponseTimeHours == nil && input.ResolutionTimeHours == nil {
		return apperrors.NewValidationReason("no_targets", "rule needs a response or resolution time", nil)
	}
	if err := sla.ValidateConditions(input.Conditions); err != nil {
		return apperrors.NewValidationReason("invalid_condition", err.Error(), nil)
	}
	if input.EntityID != nil {
		if _, err := s.entities.Get(ctx, *input.EntityID); err != nil {
			return err
		}
	}
	return nil
}

func applyRuleInput(rule *domain.SLARule, input SLARuleInput) {
	rule.EntityID = input.EntityID
	rule.Name = input.Name
	rule.Priority = input.Priority
	rule.ResponseTimeHours = input.ResponseTimeHours
	rule.ResolutionTimeHours = input.ResolutionTimeHours
	rule.EscalationTimeHours = input.EscalationTimeHours
	rule.Conditions = input.Conditions
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}
}
