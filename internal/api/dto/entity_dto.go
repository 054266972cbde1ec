package dto

import (
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// CreateEntityRequest payload. Slug is derived from name when empty.
type CreateEntityRequest struct {
	Name        string              `json:"name"`
	Slug        string              `json:"slug"`
	Description string              `json:"description"`
	ParentID    *string             `json:"parent_id"`
	Status      domain.EntityStatus `json:"status"`
}

// UpdateEntityRequest payload.
type UpdateEntityRequest struct {
	Name        *string              `json:"name"`
	Slug        *string              `json:"slug"`
	Description *string              `json:"description"`
	Status      *domain.EntityStatus `json:"status"`
}

// EntityResponse representation.
type EntityResponse struct {
	ID          string              `json:"id"`
	ParentID    *string             `json:"parent_id"`
	Name        string              `json:"name"`
	Slug        string              `json:"slug"`
	Description string              `json:"description"`
	Status      domain.EntityStatus `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// CreateAgentRequest payload.
type CreateAgentRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	EntityID *string `json:"entity_id"`
}

// AgentResponse representation.
type AgentResponse struct {
	ID        string    `json:"id"`
	EntityID  *string   `json:"entity_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
