// Package sla resolves which service-level rule applies to a ticket and tracks its deadlines.
package sla

import (
	"context"
	"sort"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// RuleSource lists active rules for one entity, or the global rules when entityID is nil.
type RuleSource interface {
	ListActive(ctx context.Context, entityID *string) ([]domain.SLARule, error)
}

// Resolver picks the authoritative rule for a ticket.
type Resolver struct {
	rules RuleSource
}

// NewResolver builds a Resolver.
func NewResolver(rules RuleSource) *Resolver {
	return &Resolver{rules: rules}
}

// ApplicableRule returns the first match of, in order: entity rules for the
// priority (or "all") whose conditions hold, global rules under the same test,
// the entity default rule, the global default rule. It returns nil when none apply.
func (r *Resolver) ApplicableRule(ctx context.Context, entityID string, priority domain.TicketPriority, attrs Attributes) (*domain.SLARule, error) {
	entityRules, err := r.rules.ListActive(ctx, &entityID)
	if err != nil {
		return nil, err
	}
	SortRules(entityRules)
	if rule := firstPriorityMatch(entityRules, priority, attrs); rule != nil {
		return rule, nil
	}

	globalRules, err := r.rules.ListActive(ctx, nil)
	if err != nil {
		return nil, err
	}
	SortRules(globalRules)
	if rule := firstPriorityMatch(globalRules, priority, attrs); rule != nil {
		return rule, nil
	}

	if rule := firstDefault(entityRules); rule != nil {
		return rule, nil
	}
	return firstDefault(globalRules), nil
}

func firstPriorityMatch(rules []domain.SLARule, priority domain.TicketPriority, attrs Attributes) *domain.SLARule {
	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive {
			continue
		}
		if rule.Priority != priority && rule.Priority != domain.SLAPriorityAll {
			continue
		}
		if Matches(rule.Conditions, attrs) {
			return rule
		}
	}
	return nil
}

// firstDefault returns the oldest active default rule. Conditions are not applied to defaults.
func firstDefault(rules []domain.SLARule) *domain.SLARule {
	var found *domain.SLARule
	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive || !rule.IsDefault() {
			continue
		}
		if found == nil || rule.CreatedAt.Before(found.CreatedAt) {
			found = rule
		}
	}
	return found
}

// PriorityWeight orders rule priorities. Unknown ticket priorities rank with "all".
func PriorityWeight(p domain.TicketPriority) int {
	switch p {
	case domain.TicketPriorityCritical:
		return 4
	case domain.TicketPriorityHigh:
		return 3
	case domain.TicketPriorityNormal:
		return 2
	case domain.TicketPriorityLow:
		return 1
	case domain.SLAPriorityDefault:
		return -1
	default:
		return 0
	}
}

// SortRules orders rules by priority weight descending, then creation time.
func SortRules(rules []domain.SLARule) {
	sort.SliceStable(rules, func(i, j int) bool {
		wi, wj := PriorityWeight(rules[i].Priority), PriorityWeight(rules[j].Priority)
		if wi != wj {
			return wi > wj
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}
