package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// WardRepository encapsulates ward persistence.
type WardRepository interface {
	Create(ctx context.Context, ward *domain.Ward) error
	GetByID(ctx context.Context, id string) (*domain.Ward, error)
	ListByZone(ctx context.Context, zoneID string) ([]domain.Ward, error)
	List(ctx context.Context) ([]domain.Ward, error)
}

type wardRepository struct {
	pool *pgxpool.Pool
}

// NewWardRepository returns a Postgres-backed implementation.
func NewWardRepository(pool *pgxpool.Pool) WardRepository {
	return &wardRepository{pool: pool}
}

func (r *wardRepository) Create(ctx context.Context, ward *domain.Ward) error {
	const query = `
        INSERT INTO wards (id, number, name, zone_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.pool.Exec(ctx, query, ward.ID, ward.Number, ward.Name, ward.ZoneID, ward.CreatedAt, ward.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *wardRepository) GetByID(ctx context.Context, id string) (*domain.Ward, error) {
	const query = `SELECT id, number, name, zone_id, created_at, updated_at FROM wards WHERE id=$1`
	var ward domain.Ward
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ward.ID,
		&ward.Number,
		&ward.Name,
		&ward.ZoneID,
		&ward.CreatedAt,
		&ward.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ward, nil
}

func (r *wardRepository) ListByZone(ctx context.Context, zoneID string) ([]domain.Ward, error) {
	const query = `
        SELECT id, number, name, zone_id, created_at, updated_at
        FROM wards WHERE zone_id=$1 ORDER BY number ASC`
	rows, err := r.pool.Query(ctx, query, zoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, scanWard)
}

func (r *wardRepository) List(ctx context.Context) ([]domain.Ward, error) {
	const query = `
        SELECT id, number, name, zone_id, created_at, updated_at
        FROM wards ORDER BY zone_id, number ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, scanWard)
}

func scanWard(row pgx.CollectableRow) (domain.Ward, error) {
	var ward domain.Ward
	err := row.Scan(&ward.ID, &ward.Number, &ward.Name, &ward.ZoneID, &ward.CreatedAt, &ward.UpdatedAt)
	return ward, err
}
