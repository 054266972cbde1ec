package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketUpdated   EventType = "ticket_updated"
	EventStatusChanged   EventType = "ticket_status_changed"
	EventTicketDeleted   EventType = "ticket_deleted"
	EventReplyAdded      EventType = "reply_added"
	EventTicketsMerged   EventType = "tickets_merged"
	EventTicketSplit     EventType = "ticket_split"
	EventMarkedDuplicate EventType = "ticket_marked_duplicate"
	EventTicketsLinked   EventType = "tickets_linked"
)

// AllEventTypes lists every event the core emits.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketUpdated,
	EventStatusChanged,
	EventTicketDeleted,
	EventReplyAdded,
	EventTicketsMerged,
	EventTicketSplit,
	EventMarkedDuplicate,
	EventTicketsLinked,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.ActorType `json:"type"`
	ID   *string          `json:"id,omitempty"`
	Name string           `json:"name,omitempty"`
}

// ActorOf converts a domain actor.
func ActorOf(actor domain.Actor) Actor {
	return Actor{Type: actor.Type, ID: actor.IDRef(), Name: actor.DisplayName()}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New builds an event with a fresh id.
func New(eventType EventType, ticketID string, actor domain.Actor, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     ActorOf(actor),
		Timestamp: at.UTC(),
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	EntityID     string                `json:"entity_id"`
	TicketNumber string                `json:"ticket_number"`
	Priority     domain.TicketPriority `json:"priority"`
	Status       domain.TicketStatus   `json:"status"`
	Subject      string                `json:"subject"`
	SLARuleID    *string               `json:"sla_rule_id,omitempty"`
}

// FieldChange is the before/after value of one field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	Changes map[string]FieldChange `json:"changes"`
	Version int                    `json:"version"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	TicketNumber string `json:"ticket_number"`
	EntityID     string `json:"entity_id"`
}

// ReplyAddedPayload payload.
type ReplyAddedPayload struct {
	ReplyID        string                 `json:"reply_id"`
	AuthorType     domain.ReplyAuthorType `json:"author_type"`
	AuthorID       *string                `json:"author_id,omitempty"`
	IsInternalNote bool                   `json:"is_internal_note"`
	FirstResponse  bool                   `json:"first_response"`
	BodyPreview    string                 `json:"body_preview"`
}

// TicketsMergedPayload payload. TicketID of the event is the primary ticket.
type TicketsMergedPayload struct {
	PrimaryID        string `json:"primary_id"`
	SecondaryID      string `json:"secondary_id"`
	SecondaryNumber  string `json:"secondary_number"`
	RepliesMoved     int    `json:"replies_moved"`
	AttachmentsMoved int    `json:"attachments_moved"`
	RelationshipID   string `json:"relationship_id"`
}

// TicketSplitPayload payload. TicketID of the event is the parent ticket.
type TicketSplitPayload struct {
	ParentID       string   `json:"parent_id"`
	NewTicketID    string   `json:"new_ticket_id"`
	NewNumber      string   `json:"new_number"`
	MovedReplyIDs  []string `json:"moved_reply_ids"`
	RelationshipID string   `json:"relationship_id"`
}

// MarkedDuplicatePayload payload. TicketID of the event is the duplicate.
type MarkedDuplicatePayload struct {
	OriginalID     string              `json:"original_id"`
	DuplicateID    string              `json:"duplicate_id"`
	OldStatus      domain.TicketStatus `json:"old_status"`
	NewStatus      domain.TicketStatus `json:"new_status"`
	RelationshipID string              `json:"relationship_id"`
}

// TicketsLinkedPayload payload.
type TicketsLinkedPayload struct {
	ParentID       string `json:"parent_id"`
	ChildID        string `json:"child_id"`
	RelationshipID string `json:"relationship_id"`
}
