package dto

import (
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// MergeRequest payload.
type MergeRequest struct {
	PrimaryTicketID   string `json:"primary_ticket_id"`
	SecondaryTicketID string `json:"secondary_ticket_id"`
	Notes             string `json:"notes"`
}

// SplitRequest payload.
type SplitRequest struct {
	ParentTicketID string   `json:"parent_ticket_id"`
	Subject        string   `json:"subject"`
	ReplyIDs       []string `json:"reply_ids"`
	Notes          string   `json:"notes"`
}

// LinkRequest payload.
type LinkRequest struct {
	TicketID1 string `json:"ticket_id_1"`
	TicketID2 string `json:"ticket_id_2"`
	Notes     string `json:"notes"`
}

// DuplicateRequest payload.
type DuplicateRequest struct {
	OriginalTicketID  string `json:"original_ticket_id"`
	DuplicateTicketID string `json:"duplicate_ticket_id"`
	Notes             string `json:"notes"`
}

// RelationshipResponse representation.
type RelationshipResponse struct {
	ID             string                  `json:"id"`
	ParentTicketID string                  `json:"parent_ticket_id"`
	ChildTicketID  string                  `json:"child_ticket_id"`
	Type           domain.RelationshipType `json:"relationship_type"`
	CreatedBy      *string                 `json:"created_by"`
	Notes          string                  `json:"notes,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

// RelatedTicketResponse is a relationship seen from one ticket.
type RelatedTicketResponse struct {
	Relationship RelationshipResponse         `json:"relationship"`
	Direction    domain.RelationshipDirection `json:"direction"`
	Ticket       RelatedTicketSummary         `json:"ticket"`
}

// RelatedTicketSummary identifies the ticket on the other side.
type RelatedTicketSummary struct {
	ID           string              `json:"id"`
	TicketNumber string              `json:"ticket_number"`
	Subject      string              `json:"subject"`
	Status       domain.TicketStatus `json:"status"`
}
