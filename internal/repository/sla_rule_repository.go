package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/persistence"
)

// SLARuleFilter narrows rule listings. GlobalOnly wins over EntityID.
type SLARuleFilter struct {
	EntityID   *string
	GlobalOnly bool
	ActiveOnly bool
}

// SLARuleRepository persists SLA rules.
type SLARuleRepository interface {
	Create(ctx context.Context, rule *domain.SLARule) error
	Update(ctx context.Context, rule *domain.SLARule) error
	GetByID(ctx context.Context, id string) (*domain.SLARule, error)
	// ListActive returns active rules of one entity, or the global rules for a nil id.
	ListActive(ctx context.Context, entityID *string) ([]domain.SLARule, error)
	List(ctx context.Context, filter SLARuleFilter) ([]domain.SLARule, error)
	Delete(ctx context.Context, id string) error
}

type slaRuleRepository struct {
	pool *pgxpool.Pool
}

// NewSLARuleRepository constructs repository.
func NewSLARuleRepository(pool *pgxpool.Pool) SLARuleRepository {
	return &slaRuleRepository{pool: pool}
}

const slaRuleColumns = `id, entity_id, name, priority, response_time_hours, resolution_time_hours,
        escalation_time_hours, conditions, is_active, created_at, updated_at`

func (r *slaRuleRepository) Create(ctx context.Context, rule *domain.SLARule) error {
	const query = `
        INSERT INTO sla_rules (entity_id, name, priority, response_time_hours, resolution_time_hours,
            escalation_time_hours, conditions, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	conditions, err := encodeConditions(rule.Conditions)
	if err != nil {
		return err
	}
	return persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		rule.EntityID,
		rule.Name,
		rule.Priority,
		rule.ResponseTimeHours,
		rule.ResolutionTimeHours,
		rule.EscalationTimeHours,
		conditions,
		rule.IsActive,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *slaRuleRepository) Update(ctx context.Context, rule *domain.SLARule) error {
	const query = `
        UPDATE sla_rules SET name=$1, priority=$2, response_time_hours=$3, resolution_time_hours=$4,
            escalation_time_hours=$5, conditions=$6, is_active=$7, updated_at=NOW()
        WHERE id=$8
        RETURNING updated_at`
	if !validID(rule.ID) {
		return pgx.ErrNoRows
	}
	conditions, err := encodeConditions(rule.Conditions)
	if err != nil {
		return err
	}
	return persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		rule.Name,
		rule.Priority,
		rule.ResponseTimeHours,
		rule.ResolutionTimeHours,
		rule.EscalationTimeHours,
		conditions,
		rule.IsActive,
		rule.ID,
	).Scan(&rule.UpdatedAt)
}

func (r *slaRuleRepository) GetByID(ctx context.Context, id string) (*domain.SLARule, error) {
	if !validID(id) {
		return nil, pgx.ErrNoRows
	}
	return scanSLARule(persistence.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+slaRuleColumns+` FROM sla_rules WHERE id=$1`, id))
}

func (r *slaRuleRepository) ListActive(ctx context.Context, entityID *string) ([]domain.SLARule, error) {
	filter := SLARuleFilter{ActiveOnly: true, GlobalOnly: entityID == nil, EntityID: entityID}
	return r.List(ctx, filter)
}

func (r *slaRuleRepository) List(ctx context.Context, filter SLARuleFilter) ([]domain.SLARule, error) {
	where := &whereBuilder{}
	switch {
	case filter.GlobalOnly:
		where.clauses = append(where.clauses, "entity_id IS NULL")
	case filter.EntityID != nil:
		if !validID(*filter.EntityID) {
			return nil, nil
		}
		where.add("entity_id=%s", *filter.EntityID)
	}
	if filter.ActiveOnly {
		where.clauses = append(where.clauses, "is_active = TRUE")
	}

	query := fmt.Sprintf(`SELECT %s FROM sla_rules WHERE %s ORDER BY created_at ASC, id ASC`, slaRuleColumns, where.sql())
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLARule
	for rows.Next() {
		rule, err := scanSLARule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func (r *slaRuleRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return pgx.ErrNoRows
	}
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM sla_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func encodeConditions(conditions []domain.SLACondition) (string, error) {
	if conditions == nil {
		conditions = []domain.SLACondition{}
	}
	raw, err := json.Marshal(conditions)
	if err != nil {
		return "", fmt.Errorf("encode sla conditions: %w", err)
	}
	return string(raw), nil
}

func scanSLARule(row pgx.Row) (*domain.SLARule, error) {
	var (
		rule       domain.SLARule
		conditions []byte
	)
	if err := row.Scan(
		&rule.ID,
		&rule.EntityID,
		&rule.Name,
		&rule.Priority,
		&rule.ResponseTimeHours,
		&rule.ResolutionTimeHours,
		&rule.EscalationTimeHours,
		&conditions,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("decode sla conditions for rule %s: %w", rule.ID, err)
		}
	}
	return &rule, nil
}
