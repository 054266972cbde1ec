package service

import (
	"context"
	"strings"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// AgentService manages the agents tickets can be assigned to.
type AgentService struct {
	agents   repository.AgentRepository
	entities repository.EntityRepository
}

// AgentDependencies bundles repositories.
type AgentDependencies struct {
	AgentRepo  repository.AgentRepository
	EntityRepo repository.EntityRepository
}

// AgentCreateInput describes a new agent.
type AgentCreateInput struct {
	Name     string  `validate:"required,max=200"`
	Email    string  `validate:"required,email"`
	EntityID *string `field:"entity_id"`
}

// NewAgentService creates the service.
func NewAgentService(deps AgentDependencies) *AgentService {
	return &AgentService{agents: deps.AgentRepo, entities: deps.EntityRepo}
}

// Create stores an active agent.
func (s *AgentService) Create(ctx context.Context, input AgentCreateInput) (*domain.Agent, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.EntityID != nil {
		if _, err := s.entities.GetByID(ctx, *input.EntityID); err != nil {
			return nil, translate(err, "entity", ids("entity_id", *input.EntityID))
		}
	}
	agent := &domain.Agent{
		EntityID: input.EntityID,
		Name:     input.Name,
		Email:    input.Email,
		Active:   true,
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, translate(err, "agent", ids("email", agent.Email))
	}
	return agent, nil
}

// Get fetches an agent.
func (s *AgentService) Get(ctx context.Context, id string) (*domain.Agent, error) {
	agent, err := s.agents.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "agent", ids("agent_id", id))
	}
	return agent, nil
}

// List returns agents matching filter.
func (s *AgentService) List(ctx context.Context, filter repository.AgentFilter) ([]domain.Agent, error) {
	return s.agents.List(ctx, filter)
}

// Assignable returns the agent when it exists and is active.
func (s *AgentService) Assignable(ctx context.Context, id string) (*domain.Agent, error) {
	agent, err := s.Get(ctx, id)
	if apperrors.IsNotFound(err) {
		return nil, apperrors.NewValidationReason("unknown_assignee", "assignee does not exist", ids("assigned_to", id))
	}
	if err != nil {
		return nil, err
	}
	if !agent.Active {
		return nil, apperrors.NewValidationReason("inactive_assignee", "assignee is inactive", ids("assigned_to", id))
	}
	return agent, nil
}
