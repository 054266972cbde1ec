package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// EntityService manages the two-tier entity hierarchy.
type EntityService struct {
	entities repository.EntityRepository
	tickets  repository.TicketRepository
	logger   *zap.Logger
}

// EntityDependencies bundles collaborators for EntityService.
type EntityDependencies struct {
	EntityRepo repository.EntityRepository
	TicketRepo repository.TicketRepository
	Logger     *zap.Logger
}

// EntityCreateInput describes a new entity.
type EntityCreateInput struct {
	Name        string `validate:"required,max=200"`
	Slug        string `validate:"omitempty,max=100,slug"`
	Description string
	ParentID    *string
	Status      domain.EntityStatus `validate:"omitempty,oneof=active inactive"`
}

// EntityUpdateInput carries optional entity changes.
type EntityUpdateInput struct {
	Name        *string              `validate:"omitempty,min=1,max=200"`
	Slug        *string              `validate:"omitempty,max=100,slug"`
	Description *string
	Status      *domain.EntityStatus `validate:"omitempty,oneof=active inactive"`
}

// NewEntityService constructs the service.
func NewEntityService(deps EntityDependencies) *EntityService {
	return &EntityService{
		entities: deps.EntityRepo,
		tickets:  deps.TicketRepo,
		logger:   observability.OrNop(deps.Logger),
	}
}

// Create validates and stores a root or child entity.
func (s *EntityService) Create(ctx context.Context, input EntityCreateInput) (*domain.Entity, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Slug = strings.TrimSpace(input.Slug)
	if input.Slug == "" {
		input.Slug = Slugify(input.Name)
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Slug == "" {
		return nil, apperrors.NewValidationReason("invalid_slug", "slug cannot be derived from name", nil)
	}
	if input.ParentID != nil {
		if err := s.checkParent(ctx, *input.ParentID); err != nil {
			return nil, err
		}
	}
	status := input.Status
	if status == "" {
		status = domain.EntityStatusActive
	}

	entity := &domain.Entity{
		ParentID:    input.ParentID,
		Name:        input.Name,
		Slug:        input.Slug,
		Description: strings.TrimSpace(input.Description),
		Status:      status,
	}
	if err := s.entities.Create(ctx, entity); err != nil {
		return nil, translate(err, "entity", ids("slug", entity.Slug))
	}
	s.logger.Info("entity created", zap.String("entity_id", entity.ID), zap.String("slug", entity.Slug))
	return entity, nil
}

// Update applies the non-nil fields of input.
func (s *EntityService) Update(ctx context.Context, id string, input EntityUpdateInput) (*domain.Entity, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	entity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		entity.Name = strings.TrimSpace(*input.Name)
	}
	if input.Slug != nil {
		entity.Slug = *input.Slug
	}
	if input.Description != nil {
		entity.Description = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		entity.Status = *input.Status
	}
	if err := s.entities.Update(ctx, entity); err != nil {
		return nil, translate(err, "entity", ids("entity_id", id))
	}
	return entity, nil
}

// Get fetches an entity by id.
func (s *EntityService) Get(ctx context.Context, id string) (*domain.Entity, error) {
	entity, err := s.entities.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "entity", ids("entity_id", id))
	}
	return entity, nil
}

// GetBySlug fetches an entity by slug.
func (s *EntityService) GetBySlug(ctx context.Context, slug string) (*domain.Entity, error) {
	entity, err := s.entities.GetBySlug(ctx, slug)
	if err != nil {
		return nil, translate(err, "entity", ids("slug", slug))
	}
	return entity, nil
}

// List returns entities matching filter.
func (s *EntityService) List(ctx context.Context, filter repository.EntityFilter) ([]domain.Entity, error) {
	return s.entities.List(ctx, filter)
}

// Delete removes an entity that owns no children and no tickets.
func (s *EntityService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	children, err := s.entities.CountChildren(ctx, id)
	if err != nil {
		return err
	}
	if children > 0 {
		return apperrors.NewConflictReason("entity_has_children", "entity still has child entities",
			map[string]any{"entity_id": id, "children": children})
	}
	tickets, err := s.tickets.CountByEntity(ctx, id)
	if err != nil {
		return err
	}
	if tickets > 0 {
		return apperrors.NewConflictReason("entity_has_tickets", "entity still owns tickets",
			map[string]any{"entity_id": id, "tickets": tickets})
	}
	if err := s.entities.Delete(ctx, id); err != nil {
		return translate(err, "entity", ids("entity_id", id))
	}
	s.logger.Info("entity deleted", zap.String("entity_id", id))
	return nil
}

// Lineage returns the entity and its root parent. A parent that has a parent of
// its own is reported as non-conforming instead of being walked.
func (s *EntityService) Lineage(ctx context.Context, id string) (domain.Lineage, error) {
	entity, err := s.Get(ctx, id)
	if err != nil {
		return domain.Lineage{}, err
	}
	lineage := domain.Lineage{Entity: entity}
	if entity.Tier() == domain.RootEntity {
		return lineage, nil
	}
	parent, err := s.entities.GetByID(ctx, *entity.ParentID)
	if err != nil {
		return domain.Lineage{}, translate(err, "parent entity", ids("entity_id", id, "parent_id", *entity.ParentID))
	}
	if parent.Tier() != domain.RootEntity {
		s.logger.Warn("entity hierarchy deeper than one level",
			zap.String("entity_id", id),
			zap.String("parent_id", parent.ID))
		return domain.Lineage{}, nonConforming(id, parent.ID)
	}
	lineage.Parent = parent
	return lineage, nil
}

// ScopeIDs returns id plus, when includeChildren is set and id is a root, the ids
// of its direct children.
func (s *EntityService) ScopeIDs(ctx context.Context, id string, includeChildren bool) ([]string, error) {
	entity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	scope := []string{entity.ID}
	if !includeChildren || entity.Tier() != domain.RootEntity {
		return scope, nil
	}
	children, err := s.entities.List(ctx, repository.EntityFilter{ParentID: &entity.ID})
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		scope = append(scope, child.ID)
	}
	return scope, nil
}

func (s *EntityService) checkParent(ctx context.Context, parentID string) error {
	parent, err := s.entities.GetByID(ctx, parentID)
	if err != nil {
		return translate(err, "parent entity", ids("parent_id", parentID))
	}
	if parent.Tier() != domain.RootEntity {
		return nonConforming(parentID, *parent.ParentID)
	}
	return nil
}

func nonConforming(entityID, parentID string) error {
	return apperrors.NewValidationReason("non_conforming_hierarchy",
		"entities may only be nested one level deep",
		map[string]any{"entity_id": entityID, "parent_id": parentID})
}
