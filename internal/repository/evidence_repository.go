package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// EvidenceRepository stores references to media attached to issues.
type EvidenceRepository interface {
	Create(ctx context.Context, evidence *domain.Evidence) error
	ListByIssue(ctx context.Context, issueID string) ([]domain.Evidence, error)
	// HasKindSince reports whether evidence of kind was attached strictly
	// after since. The zero time matches all evidence.
	HasKindSince(ctx context.Context, issueID string, kind domain.EvidenceKind, since time.Time) (bool, error)
}

type evidenceRepository struct {
	pool *pgxpool.Pool
}

// NewEvidenceRepository builds repository.
func NewEvidenceRepository(pool *pgxpool.Pool) EvidenceRepository {
	return &evidenceRepository{pool: pool}
}

func (r *evidenceRepository) Create(ctx context.Context, evidence *domain.Evidence) error {
	const query = `
        INSERT INTO issue_media (id, issue_id, kind, url, uploaded_by, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.pool.Exec(ctx, query,
		evidence.ID,
		evidence.IssueID,
		evidence.Kind,
		evidence.URL,
		evidence.UploadedBy,
		evidence.CreatedAt,
	)
	return err
}

func (r *evidenceRepository) ListByIssue(ctx context.Context, issueID string) ([]domain.Evidence, error) {
	const query = `
        SELECT id, issue_id, kind, url, uploaded_by, created_at
        FROM issue_media WHERE issue_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Evidence, error) {
		var ev domain.Evidence
		err := row.Scan(&ev.ID, &ev.IssueID, &ev.Kind, &ev.URL, &ev.UploadedBy, &ev.CreatedAt)
		return ev, err
	})
}

func (r *evidenceRepository) HasKindSince(ctx context.Context, issueID string, kind domain.EvidenceKind, since time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM issue_media WHERE issue_id=$1 AND kind=$2 AND created_at > $3)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, issueID, kind, since).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
