package dto

import (
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	EntityID      string                `json:"entity_id"`
	Subject       string                `json:"subject"`
	Description   string                `json:"description"`
	Priority      domain.TicketPriority `json:"priority"`
	Category      string                `json:"category"`
	CustomerName  string                `json:"customer_name"`
	CustomerEmail string                `json:"customer_email"`
	CustomerPhone string                `json:"customer_phone"`
	AssignedTo    *string               `json:"assigned_to"`
	MetaData      map[string]string     `json:"meta_data"`
}

// UpdateTicketRequest payload. Absent fields are left unchanged.
type UpdateTicketRequest struct {
	Subject         *string                `json:"subject"`
	Description     *string                `json:"description"`
	Status          *domain.TicketStatus   `json:"status"`
	Priority        *domain.TicketPriority `json:"priority"`
	Category        *string                `json:"category"`
	CustomerName    *string                `json:"customer_name"`
	CustomerEmail   *string                `json:"customer_email"`
	CustomerPhone   *string                `json:"customer_phone"`
	AssignedTo      *string                `json:"assigned_to"`
	Unassign        bool                   `json:"unassign"`
	MetaData        map[string]string      `json:"meta_data"`
	ExpectedVersion *int                   `json:"expected_version"`
}

// TicketResponse is the full ticket representation.
type TicketResponse struct {
	ID               string                `json:"id"`
	EntityID         string                `json:"entity_id"`
	TicketNumber     string                `json:"ticket_number"`
	Subject          string                `json:"subject"`
	Description      string                `json:"description"`
	Status           domain.TicketStatus   `json:"status"`
	Priority         domain.TicketPriority `json:"priority"`
	Category         string                `json:"category,omitempty"`
	CustomerName     string                `json:"customer_name"`
	CustomerEmail    string                `json:"customer_email"`
	CustomerPhone    string                `json:"customer_phone,omitempty"`
	AssignedTo       *string               `json:"assigned_to"`
	CreatedBy        *string               `json:"created_by"`
	SLARuleID        *string               `json:"sla_rule_id"`
	SLAResponseDue   *time.Time            `json:"sla_response_due"`
	SLADueDate       *time.Time            `json:"sla_due_date"`
	SLAEscalationDue *time.Time            `json:"sla_escalation_due"`
	SLAStatus        domain.SLAStatus      `json:"sla_status"`
	MetaData         map[string]string     `json:"meta_data"`
	Version          int                   `json:"version"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
	ResolvedAt       *time.Time            `json:"resolved_at"`
	ClosedAt         *time.Time            `json:"closed_at"`
	FirstResponseAt  *time.Time            `json:"first_response_at"`
}

// TicketListResponse wraps a page of tickets.
type TicketListResponse struct {
	Items  []TicketResponse `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID          string                  `json:"id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	ChangedByID *string                 `json:"changed_by_id"`
	OldValue    map[string]any          `json:"old_value"`
	NewValue    map[string]any          `json:"new_value"`
	CreatedAt   time.Time               `json:"created_at"`
}

// CreateReplyRequest payload.
type CreateReplyRequest struct {
	Content        string `json:"content"`
	AuthorName     string `json:"author_name"`
	AuthorEmail    string `json:"author_email"`
	IsInternalNote bool   `json:"is_internal_note"`
}

// ReplyResponse represents a thread message.
type ReplyResponse struct {
	ID             string                 `json:"id"`
	TicketID       string                 `json:"ticket_id"`
	AuthorType     domain.ReplyAuthorType `json:"author_type"`
	AuthorID       *string                `json:"author_id"`
	AuthorName     string                 `json:"author_name"`
	AuthorEmail    string                 `json:"author_email,omitempty"`
	Content        string                 `json:"content"`
	IsInternalNote bool                   `json:"is_internal_note"`
	CreatedAt      time.Time              `json:"created_at"`
}

// AttachmentRequest describes a file already placed in storage.
type AttachmentRequest struct {
	ReplyID    *string `json:"reply_id"`
	StorageKey string  `json:"storage_key"`
	FileName   string  `json:"file_name"`
	MimeType   string  `json:"mime_type"`
	SizeBytes  int64   `json:"size_bytes"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	ReplyID    *string   `json:"reply_id"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	StorageKey string    `json:"storage_key"`
	UploadedBy *string   `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}
