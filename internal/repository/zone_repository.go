package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// ZoneRepository encapsulates zone persistence.
type ZoneRepository interface {
	Create(ctx context.Context, zone *domain.Zone) error
	Update(ctx context.Context, zone *domain.Zone) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Zone, error)
	List(ctx context.Context) ([]domain.Zone, error)
}

type zoneRepository struct {
	pool *pgxpool.Pool
}

// NewZoneRepository returns a Postgres-backed implementation.
func NewZoneRepository(pool *pgxpool.Pool) ZoneRepository {
	return &zoneRepository{pool: pool}
}

func (r *zoneRepository) Create(ctx context.Context, zone *domain.Zone) error {
	const query = `
        INSERT INTO zones (id, name, officer_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := r.pool.Exec(ctx, query, zone.ID, zone.Name, zone.OfficerID, zone.CreatedAt, zone.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *zoneRepository) Update(ctx context.Context, zone *domain.Zone) error {
	const query = `UPDATE zones SET name=$1, officer_id=$2, updated_at=$3 WHERE id=$4`
	cmd, err := r.pool.Exec(ctx, query, zone.Name, zone.OfficerID, zone.UpdatedAt, zone.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a zone only while no ward references it.
func (r *zoneRepository) Delete(ctx context.Context, id string) error {
	const query = `
        DELETE FROM zones WHERE id=$1
        AND NOT EXISTS (SELECT 1 FROM wards WHERE zone_id=$1)`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInUse
	}
	return nil
}

func (r *zoneRepository) GetByID(ctx context.Context, id string) (*domain.Zone, error) {
	const query = `SELECT id, name, officer_id, created_at, updated_at FROM zones WHERE id=$1`
	var zone domain.Zone
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&zone.ID,
		&zone.Name,
		&zone.OfficerID,
		&zone.CreatedAt,
		&zone.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &zone, nil
}

func (r *zoneRepository) List(ctx context.Context) ([]domain.Zone, error) {
	const query = `SELECT id, name, officer_id, created_at, updated_at FROM zones ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Zone, error) {
		var zone domain.Zone
		err := row.Scan(&zone.ID, &zone.Name, &zone.OfficerID, &zone.CreatedAt, &zone.UpdatedAt)
		return zone, err
	})
}
