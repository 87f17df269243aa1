package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// IssueHistoryRepository reads the audit trail. Entries are written by
// IssueRepository together with the issue change they describe.
type IssueHistoryRepository interface {
	ListByIssue(ctx context.Context, issueID string, limit, offset int) ([]domain.IssueHistory, error)
	ListByActor(ctx context.Context, actorID string, limit int) ([]domain.IssueHistory, error)
	// LastOfType returns the newest entry of changeType, or ErrNotFound.
	LastOfType(ctx context.Context, issueID string, changeType domain.IssueChangeType) (*domain.IssueHistory, error)
}

type issueHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewIssueHistoryRepository builds repository.
func NewIssueHistoryRepository(pool *pgxpool.Pool) IssueHistoryRepository {
	return &issueHistoryRepository{pool: pool}
}

func (r *issueHistoryRepository) ListByIssue(ctx context.Context, issueID string, limit, offset int) ([]domain.IssueHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT id, issue_id, actor_id, change_type, old_value, new_value, created_at
        FROM issue_history WHERE issue_id=$1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, issueID, limit, max(offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, scanHistory)
}

func (r *issueHistoryRepository) ListByActor(ctx context.Context, actorID string, limit int) ([]domain.IssueHistory, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
        SELECT id, issue_id, actor_id, change_type, old_value, new_value, created_at
        FROM issue_history WHERE actor_id=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, actorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, scanHistory)
}

func (r *issueHistoryRepository) LastOfType(ctx context.Context, issueID string, changeType domain.IssueChangeType) (*domain.IssueHistory, error) {
	const query = `
        SELECT id, issue_id, actor_id, change_type, old_value, new_value, created_at
        FROM issue_history WHERE issue_id=$1 AND change_type=$2
        ORDER BY created_at DESC LIMIT 1`
	rows, err := r.pool.Query(ctx, query, issueID, changeType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	history, err := pgx.CollectOneRow(rows, scanHistory)
	if err != nil {
		return nil, err
	}
	return &history, nil
}

func scanHistory(row pgx.CollectableRow) (domain.IssueHistory, error) {
	var history domain.IssueHistory
	err := row.Scan(
		&history.ID,
		&history.IssueID,
		&history.ActorID,
		&history.ChangeType,
		&history.OldValue,
		&history.NewValue,
		&history.CreatedAt,
	)
	return history, err
}
