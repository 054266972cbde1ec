package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/persistence"
)

// AttachmentRepository persists attachment metadata.
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *domain.Attachment) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error)
	ReassignTicket(ctx context.Context, fromTicketID, toTicketID string) (int, error)
	DeleteByTicket(ctx context.Context, ticketID string) error
}

type attachmentRepository struct {
	pool *pgxpool.Pool
}

// NewAttachmentRepository constructs repository.
func NewAttachmentRepository(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepository{pool: pool}
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *domain.Attachment) error {
	const query = `
        INSERT INTO attachments (ticket_id, reply_id, file_name, mime_type, size_bytes, storage_key, uploaded_by, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id`
	if !validID(attachment.TicketID) {
		return pgx.ErrNoRows
	}
	return persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		attachment.TicketID,
		attachment.ReplyID,
		attachment.FileName,
		attachment.MimeType,
		attachment.SizeBytes,
		attachment.StorageKey,
		attachment.UploadedBy,
		attachment.CreatedAt,
	).Scan(&attachment.ID)
}

func (r *attachmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	const query = `
        SELECT id, ticket_id, reply_id, file_name, mime_type, size_bytes, storage_key, uploaded_by, created_at
        FROM attachments WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	if !validID(ticketID) {
		return nil, nil
	}
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Attachment
	for rows.Next() {
		var attachment domain.Attachment
		if err := rows.Scan(
			&attachment.ID,
			&attachment.TicketID,
			&attachment.ReplyID,
			&attachment.FileName,
			&attachment.MimeType,
			&attachment.SizeBytes,
			&attachment.StorageKey,
			&attachment.UploadedBy,
			&attachment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attachment)
	}
	return result, rows.Err()
}

func (r *attachmentRepository) ReassignTicket(ctx context.Context, fromTicketID, toTicketID string) (int, error) {
	if !validID(fromTicketID) || !validID(toTicketID) {
		return 0, pgx.ErrNoRows
	}
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE attachments SET ticket_id=$1 WHERE ticket_id=$2`, toTicketID, fromTicketID)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func (r *attachmentRepository) DeleteByTicket(ctx context.Context, ticketID string) error {
	if !validID(ticketID) {
		return nil
	}
	_, err := persistence.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM attachments WHERE ticket_id=$1`, ticketID)
	return err
}
