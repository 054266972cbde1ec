package domain

import (
	"sort"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
	// TicketStatusMerged marks a ticket absorbed into another one. Terminal.
	TicketStatusMerged TicketStatus = "merged"
)

var knownStatuses = map[TicketStatus]struct{}{
	TicketStatusNew:        {},
	TicketStatusOpen:       {},
	TicketStatusInProgress: {},
	TicketStatusResolved:   {},
	TicketStatusClosed:     {},
	TicketStatusMerged:     {},
}

// Valid reports whether s is a known lifecycle state.
func (s TicketStatus) Valid() bool {
	_, ok := knownStatuses[s]
	return ok
}

// TicketPriority expresses urgency. The set is open; these are the built-in levels.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityNormal   TicketPriority = "normal"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// SLAStatus summarizes where a ticket stands against its SLA.
type SLAStatus string

const (
	SLAStatusNone     SLAStatus = "none"
	SLAStatusActive   SLAStatus = "active"
	SLAStatusMet      SLAStatus = "met"
	SLAStatusBreached SLAStatus = "breached"
)

// Recognized meta_data keys.
const (
	MetaSource      = "source"
	MetaChannel     = "channel"
	MetaLanguage    = "language"
	MetaExternalRef = "external_ref"
	MetaIPAddress   = "ip_address"
	MetaUserAgent   = "user_agent"
)

var recognizedMetaKeys = map[string]struct{}{
	MetaSource:      {},
	MetaChannel:     {},
	MetaLanguage:    {},
	MetaExternalRef: {},
	MetaIPAddress:   {},
	MetaUserAgent:   {},
}

// TicketMeta is the bounded key-value bag attached to a ticket.
type TicketMeta map[string]string

// UnknownKeys returns the sorted keys outside the recognized set.
func (m TicketMeta) UnknownKeys() []string {
	var unknown []string
	for key := range m {
		if _, ok := recognizedMetaKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID               string
	EntityID         string
	TicketNumber     string
	Subject          string
	Description      string
	Status           TicketStatus
	Priority         TicketPriority
	Category         string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	AssignedTo       *string
	CreatedBy        *string
	SLARuleID        *string
	SLAResponseDue   *time.Time
	SLADueDate       *time.Time
	SLAEscalationDue *time.Time
	SLAStatus        SLAStatus
	MetaData         TicketMeta
	Version          int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ResolvedAt       *time.Time
	ClosedAt         *time.Time
	FirstResponseAt  *time.Time
}

// TransitionTo moves the ticket to next and applies first-entry timestamps.
// It returns false when the status does not change.
func (t *Ticket) TransitionTo(next TicketStatus, now time.Time) bool {
	if t.Status == next {
		return false
	}
	t.Status = next
	switch next {
	case TicketStatusResolved:
		if t.ResolvedAt == nil {
			t.ResolvedAt = &now
		}
	case TicketStatusClosed:
		if t.ClosedAt == nil {
			t.ClosedAt = &now
		}
	}
	return true
}

// MarkFirstResponse records the first response time once.
func (t *Ticket) MarkFirstResponse(at time.Time) bool {
	if t.FirstResponseAt != nil {
		return false
	}
	t.FirstResponseAt = &at
	return true
}
