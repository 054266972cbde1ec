package domain

import "time"

// EntityStatus enumerates entity availability.
type EntityStatus string

const (
	EntityStatusActive   EntityStatus = "active"
	EntityStatusInactive EntityStatus = "inactive"
)

// EntityTier tells whether an entity sits at the top of the hierarchy or under a root.
type EntityTier int

const (
	RootEntity EntityTier = iota
	ChildEntity
)

// Entity is an organizational unit owning tickets. Only one level of nesting is
// resolved: a child's parent must itself be a root.
type Entity struct {
	ID          string
	ParentID    *string
	Name        string
	Slug        string
	Description string
	Status      EntityStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Tier classifies the entity by its parent reference.
func (e *Entity) Tier() EntityTier {
	if e.ParentID == nil {
		return RootEntity
	}
	return ChildEntity
}

// IsActive reports whether new tickets may be opened against the entity.
func (e *Entity) IsActive() bool {
	return e.Status == EntityStatusActive
}

// Lineage pairs an entity with its root. Parent is nil for root entities.
type Lineage struct {
	Entity *Entity
	Parent *Entity
}

// RootID returns the id of the top-level entity of the lineage.
func (l Lineage) RootID() string {
	if l.Parent != nil {
		return l.Parent.ID
	}
	return l.Entity.ID
}
