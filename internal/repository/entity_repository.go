package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/persistence"
)

// EntityFilter narrows entity listings.
type EntityFilter struct {
	ParentID  *string
	Status    *domain.EntityStatus
	RootsOnly bool
}

// EntityRepository manages entity persistence.
type EntityRepository interface {
	Create(ctx context.Context, entity *domain.Entity) error
	Update(ctx context.Context, entity *domain.Entity) error
	GetByID(ctx context.Context, id string) (*domain.Entity, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Entity, error)
	List(ctx context.Context, filter EntityFilter) ([]domain.Entity, error)
	CountChildren(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}

type entityRepository struct {
	pool *pgxpool.Pool
}

// NewEntityRepository builds the repository.
func NewEntityRepository(pool *pgxpool.Pool) EntityRepository {
	return &entityRepository{pool: pool}
}

const entityColumns = `id, parent_id, name, slug, description, status, created_at, updated_at`

func (r *entityRepository) Create(ctx context.Context, entity *domain.Entity) error {
	const query = `
        INSERT INTO entities (parent_id, name, slug, description, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		entity.ParentID,
		entity.Name,
		entity.Slug,
		entity.Description,
		entity.Status,
	).Scan(&entity.ID, &entity.CreatedAt, &entity.UpdatedAt)
	return mapWriteError(err)
}

func (r *entityRepository) Update(ctx context.Context, entity *domain.Entity) error {
	const query = `
        UPDATE entities SET parent_id=$1, name=$2, slug=$3, description=$4, status=$5, updated_at=NOW()
        WHERE id=$6
        RETURNING updated_at`
	if !validID(entity.ID) {
		return pgx.ErrNoRows
	}
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		entity.ParentID,
		entity.Name,
		entity.Slug,
		entity.Description,
		entity.Status,
		entity.ID,
	).Scan(&entity.UpdatedAt)
	return mapWriteError(err)
}

func (r *entityRepository) GetByID(ctx context.Context, id string) (*domain.Entity, error) {
	if !validID(id) {
		return nil, pgx.ErrNoRows
	}
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id=$1`
	return scanEntity(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *entityRepository) GetBySlug(ctx context.Context, slug string) (*domain.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE slug=$1`
	return scanEntity(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, slug))
}

func (r *entityRepository) List(ctx context.Context, filter EntityFilter) ([]domain.Entity, error) {
	var where whereBuilder
	if filter.ParentID != nil {
		if !validID(*filter.ParentID) {
			return nil, nil
		}
		where.add("parent_id=%s", *filter.ParentID)
	}
	if filter.Status != nil {
		where.add("status=%s", *filter.Status)
	}
	if filter.RootsOnly {
		where.clauses = append(where.clauses, "parent_id IS NULL")
	}
	query := fmt.Sprintf(`SELECT %s FROM entities WHERE %s ORDER BY name ASC`, entityColumns, where.sql())

	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entity)
	}
	return result, rows.Err()
}

func (r *entityRepository) CountChildren(ctx context.Context, id string) (int, error) {
	if !validID(id) {
		return 0, nil
	}
	var count int
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM entities WHERE parent_id=$1`, id).Scan(&count)
	return count, err
}

func (r *entityRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return pgx.ErrNoRows
	}
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM entities WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanEntity(row pgx.Row) (*domain.Entity, error) {
	var entity domain.Entity
	if err := row.Scan(
		&entity.ID,
		&entity.ParentID,
		&entity.Name,
		&entity.Slug,
		&entity.Description,
		&entity.Status,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &entity, nil
}
