package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// IssueFilter selects issues for listings and aggregation. A zero Limit
// returns every match, which is what rollups need.
type IssueFilter struct {
	WardID     *string
	ZoneID     *string
	AssigneeID *string
	ReporterID *string
	Department *domain.Department
	Statuses   []domain.IssueStatus
	Priorities []domain.IssuePriority
	Limit      int
	Offset     int
}

// IssueRepository encapsulates issue persistence. Writes that change an
// issue also append its history entries in the same transaction.
type IssueRepository interface {
	Create(ctx context.Context, issue *domain.Issue, history ...domain.IssueHistory) error
	// Update succeeds only when the stored version equals expectedVersion.
	// On success issue.Version is advanced.
	Update(ctx context.Context, issue *domain.Issue, expectedVersion int64, history ...domain.IssueHistory) error
	GetByID(ctx context.Context, id string) (*domain.Issue, error)
	GetByTicketNumber(ctx context.Context, ticketNumber string) (*domain.Issue, error)
	List(ctx context.Context, filter IssueFilter) ([]domain.Issue, error)
}

type issueRepository struct {
	pool *pgxpool.Pool
}

// NewIssueRepository instantiates repository.
func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

const issueColumns = `id, ticket_number, category, description, priority, status, ward_id, department,
               reporter_id, assignee_id, created_at, assigned_at, resolved_at, verified_at, updated_at, version`

func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue, history ...domain.IssueHistory) error {
	const query = `
        INSERT INTO issues (id, ticket_number, category, description, priority, status, ward_id, department,
                            reporter_id, assignee_id, created_at, assigned_at, resolved_at, verified_at, updated_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query,
			issue.ID,
			issue.TicketNumber,
			issue.Category,
			issue.Description,
			issue.Priority,
			issue.Status,
			issue.WardID,
			issue.Department,
			issue.ReporterID,
			issue.AssigneeID,
			issue.CreatedAt,
			issue.AssignedAt,
			issue.ResolvedAt,
			issue.VerifiedAt,
			issue.UpdatedAt,
			issue.Version,
		); err != nil {
			return err
		}
		return insertHistory(ctx, tx, history)
	})
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *issueRepository) Update(ctx context.Context, issue *domain.Issue, expectedVersion int64, history ...domain.IssueHistory) error {
	const query = `
        UPDATE issues SET category=$1, description=$2, priority=$3, status=$4, ward_id=$5, department=$6,
            assignee_id=$7, assigned_at=$8, resolved_at=$9, verified_at=$10, updated_at=$11, version=version+1
        WHERE id=$12 AND version=$13`
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, query,
			issue.Category,
			issue.Description,
			issue.Priority,
			issue.Status,
			issue.WardID,
			issue.Department,
			issue.AssigneeID,
			issue.AssignedAt,
			issue.ResolvedAt,
			issue.VerifiedAt,
			issue.UpdatedAt,
			issue.ID,
			expectedVersion,
		)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM issues WHERE id=$1)`, issue.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrVersionConflict
		}
		return insertHistory(ctx, tx, history)
	})
	if err != nil {
		return err
	}
	issue.Version = expectedVersion + 1
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, entries []domain.IssueHistory) error {
	const query = `
        INSERT INTO issue_history (id, issue_id, actor_id, change_type, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	for _, entry := range entries {
		if _, err := tx.Exec(ctx, query,
			entry.ID,
			entry.IssueID,
			entry.ActorID,
			entry.ChangeType,
			entry.OldValue,
			entry.NewValue,
			entry.CreatedAt,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *issueRepository) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *issueRepository) GetByTicketNumber(ctx context.Context, ticketNumber string) (*domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE ticket_number=$1`
	return r.fetchSingle(ctx, query, ticketNumber)
}

func (r *issueRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Issue, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	issue, err := pgx.CollectExactlyOneRow(rows, scanIssue)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// List runs a single statement, so the result is one consistent snapshot.
func (r *issueRepository) List(ctx context.Context, filter IssueFilter) ([]domain.Issue, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.WardID != nil {
		args = append(args, *filter.WardID)
		clauses = append(clauses, fmt.Sprintf("ward_id=$%d", len(args)))
	}
	if filter.ZoneID != nil {
		args = append(args, *filter.ZoneID)
		clauses = append(clauses, fmt.Sprintf("ward_id IN (SELECT id FROM wards WHERE zone_id=$%d)", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.ReporterID != nil {
		args = append(args, *filter.ReporterID)
		clauses = append(clauses, fmt.Sprintf("reporter_id=$%d", len(args)))
	}
	if filter.Department != nil {
		args = append(args, *filter.Department)
		clauses = append(clauses, fmt.Sprintf("department=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}

	query := fmt.Sprintf(`SELECT %s FROM issues WHERE %s ORDER BY updated_at DESC, id ASC`,
		issueColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, max(filter.Offset, 0))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, scanIssue)
}

func scanIssue(row pgx.CollectableRow) (domain.Issue, error) {
	var issue domain.Issue
	err := row.Scan(
		&issue.ID,
		&issue.TicketNumber,
		&issue.Category,
		&issue.Description,
		&issue.Priority,
		&issue.Status,
		&issue.WardID,
		&issue.Department,
		&issue.ReporterID,
		&issue.AssigneeID,
		&issue.CreatedAt,
		&issue.AssignedAt,
		&issue.ResolvedAt,
		&issue.VerifiedAt,
		&issue.UpdatedAt,
		&issue.Version,
	)
	return issue, err
}
