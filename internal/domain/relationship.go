package domain

import "time"

// RelationshipType names how two tickets are connected.
type RelationshipType string

const (
	RelationshipMerged    RelationshipType = "merged"
	RelationshipSplit     RelationshipType = "split"
	RelationshipRelated   RelationshipType = "related"
	RelationshipDuplicate RelationshipType = "duplicate"
)

// Valid reports whether t is a supported relationship type.
func (t RelationshipType) Valid() bool {
	switch t {
	case RelationshipMerged, RelationshipSplit, RelationshipRelated, RelationshipDuplicate:
		return true
	}
	return false
}

// TicketRelationship is an append-only audit edge between two tickets.
type TicketRelationship struct {
	ID             string
	ParentTicketID string
	ChildTicketID  string
	Type           RelationshipType
	CreatedBy      *string
	Notes          string
	CreatedAt      time.Time
}

// RelationshipDirection tells which side of an edge a ticket sits on.
type RelationshipDirection string

const (
	DirectionParent RelationshipDirection = "parent"
	DirectionChild  RelationshipDirection = "child"
)

// RelatedTicket is a relationship viewed from one of its tickets.
type RelatedTicket struct {
	Relationship  TicketRelationship
	Direction     RelationshipDirection
	OtherTicketID string
	OtherNumber   string
	OtherSubject  string
	OtherStatus   TicketStatus
}
