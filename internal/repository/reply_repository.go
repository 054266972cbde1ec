package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/persistence"
)

// ReplyRepository persists the message thread of a ticket.
type ReplyRepository interface {
	Create(ctx context.Context, reply *domain.Reply) error
	GetByID(ctx context.Context, id string) (*domain.Reply, error)
	ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.Reply, error)
	CountByTicket(ctx context.Context, ticketID string) (int, error)
	// ReassignTicket moves every reply of from onto to and returns how many moved.
	ReassignTicket(ctx context.Context, fromTicketID, toTicketID string) (int, error)
	// ReassignReplies moves only the listed replies that currently belong to from.
	ReassignReplies(ctx context.Context, replyIDs []string, fromTicketID, toTicketID string) (int, error)
	DeleteByTicket(ctx context.Context, ticketID string) error
}

type replyRepository struct {
	pool *pgxpool.Pool
}

// NewReplyRepository constructs repository.
func NewReplyRepository(pool *pgxpool.Pool) ReplyRepository {
	return &replyRepository{pool: pool}
}

const replyColumns = `id, ticket_id, author_type, author_id, author_name, author_email, content, is_internal_note, created_at`

func (r *replyRepository) Create(ctx context.Context, reply *domain.Reply) error {
	const query = `
        INSERT INTO replies (ticket_id, author_type, author_id, author_name, author_email, content, is_internal_note, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id`
	if !validID(reply.TicketID) {
		return pgx.ErrNoRows
	}
	return persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		reply.TicketID,
		reply.AuthorType,
		reply.AuthorID,
		reply.AuthorName,
		reply.AuthorEmail,
		reply.Content,
		reply.IsInternalNote,
		reply.CreatedAt,
	).Scan(&reply.ID)
}

func (r *replyRepository) GetByID(ctx context.Context, id string) (*domain.Reply, error) {
	if !validID(id) {
		return nil, pgx.ErrNoRows
	}
	return scanReply(persistence.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+replyColumns+` FROM replies WHERE id=$1`, id))
}

func (r *replyRepository) ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.Reply, error) {
	if !validID(ticketID) {
		return nil, nil
	}
	query := `SELECT ` + replyColumns + ` FROM replies WHERE ticket_id=$1`
	if !includeInternal {
		query += ` AND is_internal_note = FALSE`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Reply
	for rows.Next() {
		reply, err := scanReply(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *reply)
	}
	return result, rows.Err()
}

func (r *replyRepository) CountByTicket(ctx context.Context, ticketID string) (int, error) {
	if !validID(ticketID) {
		return 0, nil
	}
	var count int
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM replies WHERE ticket_id=$1`, ticketID).Scan(&count)
	return count, err
}

func (r *replyRepository) ReassignTicket(ctx context.Context, fromTicketID, toTicketID string) (int, error) {
	if !validID(fromTicketID) || !validID(toTicketID) {
		return 0, pgx.ErrNoRows
	}
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE replies SET ticket_id=$1 WHERE ticket_id=$2`, toTicketID, fromTicketID)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func (r *replyRepository) ReassignReplies(ctx context.Context, replyIDs []string, fromTicketID, toTicketID string) (int, error) {
	if !validID(fromTicketID) || !validID(toTicketID) {
		return 0, pgx.ErrNoRows
	}
	ids := validIDs(replyIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	// $1 is taken by the SET clause.
	where := &whereBuilder{args: []any{toTicketID}}
	where.add("ticket_id=%s", fromTicketID)
	where.addIn("id", ids)

	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE replies SET ticket_id=$1 WHERE `+where.sql(), where.args...)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func (r *replyRepository) DeleteByTicket(ctx context.Context, ticketID string) error {
	if !validID(ticketID) {
		return nil
	}
	_, err := persistence.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM replies WHERE ticket_id=$1`, ticketID)
	return err
}

func scanReply(row pgx.Row) (*domain.Reply, error) {
	var reply domain.Reply
	if err := row.Scan(
		&reply.ID,
		&reply.TicketID,
		&reply.AuthorType,
		&reply.AuthorID,
		&reply.AuthorName,
		&reply.AuthorEmail,
		&reply.Content,
		&reply.IsInternalNote,
		&reply.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &reply, nil
}
