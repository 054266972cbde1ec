package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/persistence"
)

// RelationshipRepository persists ticket relationship edges. Edges are only
// ever inserted or deleted.
type RelationshipRepository interface {
	Create(ctx context.Context, rel *domain.TicketRelationship) error
	GetByID(ctx context.Context, id string) (*domain.TicketRelationship, error)
	// Exists checks the ordered (parent, child, type) tuple.
	Exists(ctx context.Context, parentID, childID string, relType domain.RelationshipType) (bool, error)
	// ListByTicket returns edges on either side of the ticket with the other ticket's summary.
	ListByTicket(ctx context.Context, ticketID string) ([]domain.RelatedTicket, error)
	Delete(ctx context.Context, id string) error
	DeleteByTicket(ctx context.Context, ticketID string) error
}

type relationshipRepository struct {
	pool *pgxpool.Pool
}

// NewRelationshipRepository constructs repository.
func NewRelationshipRepository(pool *pgxpool.Pool) RelationshipRepository {
	return &relationshipRepository{pool: pool}
}

const relationshipColumns = `id, parent_ticket_id, child_ticket_id, relationship_type, created_by, notes, created_at`

func (r *relationshipRepository) Create(ctx context.Context, rel *domain.TicketRelationship) error {
	const query = `
        INSERT INTO ticket_relationships (parent_ticket_id, child_ticket_id, relationship_type, created_by, notes, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	if !validID(rel.ParentTicketID) || !validID(rel.ChildTicketID) {
		return pgx.ErrNoRows
	}
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		rel.ParentTicketID,
		rel.ChildTicketID,
		rel.Type,
		rel.CreatedBy,
		rel.Notes,
		rel.CreatedAt,
	).Scan(&rel.ID)
	return mapWriteError(err)
}

func (r *relationshipRepository) GetByID(ctx context.Context, id string) (*domain.TicketRelationship, error) {
	if !validID(id) {
		return nil, pgx.ErrNoRows
	}
	var rel domain.TicketRelationship
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+relationshipColumns+` FROM ticket_relationships WHERE id=$1`, id).Scan(
		&rel.ID,
		&rel.ParentTicketID,
		&rel.ChildTicketID,
		&rel.Type,
		&rel.CreatedBy,
		&rel.Notes,
		&rel.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func (r *relationshipRepository) Exists(ctx context.Context, parentID, childID string, relType domain.RelationshipType) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM ticket_relationships
            WHERE parent_ticket_id=$1 AND child_ticket_id=$2 AND relationship_type=$3)`
	if !validID(parentID) || !validID(childID) {
		return false, nil
	}
	var exists bool
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query, parentID, childID, relType).Scan(&exists)
	return exists, err
}

func (r *relationshipRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.RelatedTicket, error) {
	const query = `
        SELECT r.id, r.parent_ticket_id, r.child_ticket_id, r.relationship_type, r.created_by, r.notes, r.created_at,
               CASE WHEN r.parent_ticket_id=$1 THEN 'parent' ELSE 'child' END,
               t.id, t.ticket_number, t.subject, t.status
        FROM ticket_relationships r
        JOIN tickets t ON t.id = CASE WHEN r.parent_ticket_id=$1 THEN r.child_ticket_id ELSE r.parent_ticket_id END
        WHERE r.parent_ticket_id=$1 OR r.child_ticket_id=$1
        ORDER BY r.created_at ASC, r.id ASC`
	if !validID(ticketID) {
		return nil, nil
	}
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RelatedTicket
	for rows.Next() {
		var related domain.RelatedTicket
		rel := &related.Relationship
		if err := rows.Scan(
			&rel.ID,
			&rel.ParentTicketID,
			&rel.ChildTicketID,
			&rel.Type,
			&rel.CreatedBy,
			&rel.Notes,
			&rel.CreatedAt,
			&related.Direction,
			&related.OtherTicketID,
			&related.OtherNumber,
			&related.OtherSubject,
			&related.OtherStatus,
		); err != nil {
			return nil, err
		}
		result = append(result, related)
	}
	return result, rows.Err()
}

func (r *relationshipRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return pgx.ErrNoRows
	}
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM ticket_relationships WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *relationshipRepository) DeleteByTicket(ctx context.Context, ticketID string) error {
	if !validID(ticketID) {
		return nil
	}
	_, err := persistence.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM ticket_relationships WHERE parent_ticket_id=$1 OR child_ticket_id=$1`, ticketID)
	return err
}
