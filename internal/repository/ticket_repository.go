package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/persistence"
	"github.com/spec-kit/ticket-engine/internal/sequence"
)

// ErrVersionConflict is returned when a conditional update sees a newer version.
var ErrVersionConflict = errors.New("repository: version conflict")

// Ordering columns accepted by TicketFilter.OrderBy.
var ticketOrderColumns = map[string]string{
	"created_at":    "created_at",
	"updated_at":    "updated_at",
	"status":        "status",
	"ticket_number": "ticket_number",
	"priority":      "CASE priority WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'normal' THEN 2 WHEN 'low' THEN 1 ELSE 0 END",
}

// ValidTicketOrder reports whether column may be used for ordering.
func ValidTicketOrder(column string) bool {
	_, ok := ticketOrderColumns[column]
	return ok
}

// TicketFilter captures ticket search parameters.
type TicketFilter struct {
	EntityIDs       []string
	Statuses        []domain.TicketStatus
	ExcludeStatuses []domain.TicketStatus
	Priorities      []domain.TicketPriority
	SLAStatuses     []domain.SLAStatus
	Category        *string
	AssignedTo      *string
	Unassigned      bool
	CustomerEmail   *string
	SearchTerm      *string
	OrderBy         string
	Ascending       bool
	Limit           int
	Offset          int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes every mutable column and bumps the version. When
	// expectedVersion is set the write only happens against that version.
	Update(ctx context.Context, ticket *domain.Ticket, expectedVersion *int) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	Delete(ctx context.Context, id string) error
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Count(ctx context.Context, filter TicketFilter) (int, error)
	CountByEntity(ctx context.Context, entityID string) (int, error)
	MaxSequence(ctx context.Context, base string) (int, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// SetFirstResponse stores at only when no first response is recorded yet.
	SetFirstResponse(ctx context.Context, id string, at time.Time) (bool, error)
	UpdateSLAStatus(ctx context.Context, id string, status domain.SLAStatus) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, entity_id, ticket_number, subject, description, status, priority, category,
        customer_name, customer_email, customer_phone, assigned_to, created_by,
        sla_rule_id, sla_response_due, sla_due_date, sla_escalation_due, sla_status,
        meta_data, version, created_at, updated_at, resolved_at, closed_at, first_response_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (entity_id, ticket_number, subject, description, status, priority, category,
            customer_name, customer_email, customer_phone, assigned_to, created_by,
            sla_rule_id, sla_response_due, sla_due_date, sla_escalation_due, sla_status,
            meta_data, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
        RETURNING id, version`
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		ticket.EntityID,
		ticket.TicketNumber,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.CustomerName,
		ticket.CustomerEmail,
		ticket.CustomerPhone,
		ticket.AssignedTo,
		ticket.CreatedBy,
		ticket.SLARuleID,
		ticket.SLAResponseDue,
		ticket.SLADueDate,
		ticket.SLAEscalationDue,
		ticket.SLAStatus,
		metaOrEmpty(ticket.MetaData),
		ticket.CreatedAt,
		ticket.UpdatedAt,
	).Scan(&ticket.ID, &ticket.Version)
	return mapWriteError(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expectedVersion *int) error {
	const query = `
        UPDATE tickets SET subject=$1, description=$2, status=$3, priority=$4, category=$5,
            customer_name=$6, customer_email=$7, customer_phone=$8, assigned_to=$9,
            sla_rule_id=$10, sla_response_due=$11, sla_due_date=$12, sla_escalation_due=$13, sla_status=$14,
            meta_data=$15, updated_at=$16, resolved_at=$17, closed_at=$18, first_response_at=$19,
            version=version+1
        WHERE id=$20 AND ($21::int IS NULL OR version=$21)
        RETURNING version`
	if !validID(ticket.ID) {
		return pgx.ErrNoRows
	}
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.CustomerName,
		ticket.CustomerEmail,
		ticket.CustomerPhone,
		ticket.AssignedTo,
		ticket.SLARuleID,
		ticket.SLAResponseDue,
		ticket.SLADueDate,
		ticket.SLAEscalationDue,
		ticket.SLAStatus,
		metaOrEmpty(ticket.MetaData),
		ticket.UpdatedAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.FirstResponseAt,
		ticket.ID,
		expectedVersion,
	).Scan(&ticket.Version)
	if errors.Is(err, pgx.ErrNoRows) && expectedVersion != nil {
		return ErrVersionConflict
	}
	return mapWriteError(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if !validID(id) {
		return nil, pgx.ErrNoRows
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicket(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_number=$1`
	return scanTicket(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, number))
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return pgx.ErrNoRows
	}
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where := buildTicketWhere(filter)

	order := ticketOrderColumns["created_at"]
	if col, ok := ticketOrderColumns[filter.OrderBy]; ok {
		order = col
	}
	direction := "DESC"
	if filter.Ascending {
		direction = "ASC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d`,
		ticketColumns, where.sql(), order, direction, limit, offset)

	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter) (int, error) {
	where := buildTicketWhere(filter)
	var count int
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE `+where.sql(), where.args...).Scan(&count)
	return count, err
}

func (r *ticketRepository) CountByEntity(ctx context.Context, entityID string) (int, error) {
	if !validID(entityID) {
		return 0, nil
	}
	var count int
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE entity_id=$1`, entityID).Scan(&count)
	return count, err
}

// MaxSequence scans every entity's numbers: ticket numbers are globally unique,
// so entities sharing a prefix share the sequence.
func (r *ticketRepository) MaxSequence(ctx context.Context, base string) (int, error) {
	const query = `
        SELECT COALESCE(MAX(CAST(SUBSTRING(ticket_number FROM $2::int) AS BIGINT)), 0)
        FROM tickets
        WHERE ticket_number LIKE $1 AND ticket_number ~ $3`
	var max int64
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		base+"%",
		len(base)+1,
		sequence.Pattern(base),
	).Scan(&max)
	return int(max), err
}

func (r *ticketRepository) Touch(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return pgx.ErrNoRows
	}
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, `UPDATE tickets SET updated_at=$1 WHERE id=$2`, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) SetFirstResponse(ctx context.Context, id string, at time.Time) (bool, error) {
	if !validID(id) {
		return false, pgx.ErrNoRows
	}
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE tickets SET first_response_at=$1 WHERE id=$2 AND first_response_at IS NULL`, at, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketRepository) UpdateSLAStatus(ctx context.Context, id string, status domain.SLAStatus) error {
	if !validID(id) {
		return pgx.ErrNoRows
	}
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, `UPDATE tickets SET sla_status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func buildTicketWhere(filter TicketFilter) *whereBuilder {
	where := &whereBuilder{}
	if len(filter.EntityIDs) > 0 {
		ids := validIDs(filter.EntityIDs)
		if len(ids) == 0 {
			where.clauses = append(where.clauses, "FALSE")
		} else {
			where.addIn("entity_id", ids)
		}
	}
	if len(filter.Statuses) > 0 {
		where.addIn("status", toStrings(filter.Statuses))
	}
	if len(filter.ExcludeStatuses) > 0 {
		in := &whereBuilder{args: where.args}
		in.addIn("status", toStrings(filter.ExcludeStatuses))
		where.args = in.args
		where.clauses = append(where.clauses, "NOT ("+in.clauses[0]+")")
	}
	if len(filter.Priorities) > 0 {
		where.addIn("priority", toStrings(filter.Priorities))
	}
	if len(filter.SLAStatuses) > 0 {
		where.addIn("sla_status", toStrings(filter.SLAStatuses))
	}
	if filter.Category != nil {
		where.add("category=%s", *filter.Category)
	}
	if filter.Unassigned {
		where.clauses = append(where.clauses, "assigned_to IS NULL")
	} else if filter.AssignedTo != nil {
		if validID(*filter.AssignedTo) {
			where.add("assigned_to=%s", *filter.AssignedTo)
		} else {
			where.clauses = append(where.clauses, "FALSE")
		}
	}
	if filter.CustomerEmail != nil {
		where.add("LOWER(customer_email)=%s", strings.ToLower(*filter.CustomerEmail))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		where.add("(LOWER(subject) LIKE %[1]s OR LOWER(description) LIKE %[1]s OR LOWER(ticket_number) LIKE %[1]s)", search)
	}
	return where
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func metaOrEmpty(meta domain.TicketMeta) domain.TicketMeta {
	if meta == nil {
		return domain.TicketMeta{}
	}
	return meta
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.EntityID,
		&ticket.TicketNumber,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Category,
		&ticket.CustomerName,
		&ticket.CustomerEmail,
		&ticket.CustomerPhone,
		&ticket.AssignedTo,
		&ticket.CreatedBy,
		&ticket.SLARuleID,
		&ticket.SLAResponseDue,
		&ticket.SLADueDate,
		&ticket.SLAEscalationDue,
		&ticket.SLAStatus,
		&ticket.MetaData,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.FirstResponseAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
