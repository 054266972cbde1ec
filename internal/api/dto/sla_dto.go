package dto

import (
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// SLARuleRequest payload for create and update.
type SLARuleRequest struct {
	EntityID            *string               `json:"entity_id"`
	Name                string                `json:"name"`
	Priority            domain.TicketPriority `json:"priority"`
	ResponseTimeHours   *int                  `json:"response_time_hours"`
	ResolutionTimeHours *int                  `json:"resolution_time_hours"`
	EscalationTimeHours *int                  `json:"escalation_time_hours"`
	Conditions          []domain.SLACondition `json:"conditions"`
	IsActive            *bool                 `json:"is_active"`
}

// SLARuleResponse representation.
type SLARuleResponse struct {
	ID                  string                `json:"id"`
	EntityID            *string               `json:"entity_id"`
	Name                string                `json:"name"`
	Priority            domain.TicketPriority `json:"priority"`
	ResponseTimeHours   *int                  `json:"response_time_hours"`
	ResolutionTimeHours *int                  `json:"resolution_time_hours"`
	EscalationTimeHours *int                  `json:"escalation_time_hours"`
	Conditions          []domain.SLACondition `json:"conditions"`
	IsActive            bool                  `json:"is_active"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}
