package sla

import (
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// Deadlines are the due dates derived from a rule.
type Deadlines struct {
	ResponseDue   *time.Time
	ResolutionDue *time.Time
	EscalationDue *time.Time
}

// Calculate adds the rule's hour targets to createdAt. Unset targets stay nil.
func Calculate(rule *domain.SLARule, createdAt time.Time) Deadlines {
	if rule == nil {
		return Deadlines{}
	}
	return Deadlines{
		ResponseDue:   addHours(createdAt, rule.ResponseTimeHours),
		ResolutionDue: addHours(createdAt, rule.ResolutionTimeHours),
		EscalationDue: addHours(createdAt, rule.EscalationTimeHours),
	}
}

// Apply stamps rule and its deadlines on t, measured from t.CreatedAt.
func Apply(t *domain.Ticket, rule *domain.SLARule, now time.Time) {
	if rule == nil {
		t.SLARuleID = nil
		t.SLAResponseDue = nil
		t.SLADueDate = nil
		t.SLAEscalationDue = nil
		t.SLAStatus = domain.SLAStatusNone
		return
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = now
	}
	d := Calculate(rule, created)
	id := rule.ID
	t.SLARuleID = &id
	t.SLAResponseDue = d.ResponseDue
	t.SLADueDate = d.ResolutionDue
	t.SLAEscalationDue = d.EscalationDue
	t.SLAStatus = Evaluate(t, now).Overall
}

// Evaluation is the SLA standing of a ticket at a point in time.
type Evaluation struct {
	Response   domain.SLAStatus
	Resolution domain.SLAStatus
	Overall    domain.SLAStatus
	Escalate   bool
}

// Evaluate compares t's deadlines with its response and resolution times.
func Evaluate(t *domain.Ticket, now time.Time) Evaluation {
	ev := Evaluation{
		Response:   checkDeadline(t.SLAResponseDue, t.FirstResponseAt, now),
		Resolution: checkDeadline(t.SLADueDate, resolutionTime(t), now),
	}
	ev.Escalate = t.SLAEscalationDue != nil && resolutionTime(t) == nil && now.After(*t.SLAEscalationDue)

	switch {
	case ev.Response == domain.SLAStatusNone && ev.Resolution == domain.SLAStatusNone:
		ev.Overall = domain.SLAStatusNone
	case ev.Response == domain.SLAStatusBreached || ev.Resolution == domain.SLAStatusBreached:
		ev.Overall = domain.SLAStatusBreached
	case ev.Response == domain.SLAStatusActive || ev.Resolution == domain.SLAStatusActive:
		ev.Overall = domain.SLAStatusActive
	default:
		ev.Overall = domain.SLAStatusMet
	}
	return ev
}

// resolutionTime is when the resolution clock stopped, if it has.
func resolutionTime(t *domain.Ticket) *time.Time {
	switch {
	case t.ResolvedAt != nil:
		return t.ResolvedAt
	case t.ClosedAt != nil:
		return t.ClosedAt
	case t.Status == domain.TicketStatusMerged:
		updated := t.UpdatedAt
		return &updated
	}
	return nil
}

func checkDeadline(due, done *time.Time, now time.Time) domain.SLAStatus {
	if due == nil {
		return domain.SLAStatusNone
	}
	if done != nil {
		if done.After(*due) {
			return domain.SLAStatusBreached
		}
		return domain.SLAStatusMet
	}
	if now.After(*due) {
		return domain.SLAStatusBreached
	}
	return domain.SLAStatusActive
}

func addHours(from time.Time, hours *int) *time.Time {
	if hours == nil || *hours <= 0 {
		return nil
	}
	due := from.Add(time.Duration(*hours) * time.Hour)
	return &due
}
