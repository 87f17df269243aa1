package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// UserFilter narrows user listings. Nil fields are ignored.
type UserFilter struct {
	Role       *domain.UserRole
	Roles      []domain.UserRole
	WardID     *string
	WardIDs    []string
	ZoneID     *string
	Department *domain.Department
	Active     *bool
	IDs        []string
	Limit      int
	Offset     int
}

// UserRepository defines persistence access for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	// Update writes user when its stored version equals expectedVersion
	// and bumps the version on success.
	Update(ctx context.Context, user *domain.User, expectedVersion int64) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, full_name, email, phone_number, password_hash, role, department,
               ward_id, zone_id, is_active, version, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (id, full_name, email, phone_number, password_hash, role, department,
                           ward_id, zone_id, is_active, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.FullName,
		user.Email,
		user.PhoneNumber,
		user.PasswordHash,
		user.Role,
		user.Department,
		user.WardID,
		user.ZoneID,
		user.IsActive,
		user.Version,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *userRepository) Update(ctx context.Context, user *domain.User, expectedVersion int64) error {
	const query = `
        UPDATE users SET full_name=$1, email=$2, phone_number=$3, password_hash=$4, role=$5,
            department=$6, ward_id=$7, zone_id=$8, is_active=$9, updated_at=$10, version=version+1
        WHERE id=$11 AND version=$12`
	cmd, err := r.pool.Exec(ctx, query,
		user.FullName,
		user.Email,
		user.PhoneNumber,
		user.PasswordHash,
		user.Role,
		user.Department,
		user.WardID,
		user.ZoneID,
		user.IsActive,
		user.UpdatedAt,
		user.ID,
		expectedVersion,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, user.ID); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	user.Version = expectedVersion + 1
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return r.fetchSingle(ctx, query, email)
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	user, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, len(filter.Roles))
		for i, role := range filter.Roles {
			roles[i] = string(role)
		}
		args = append(args, roles)
		clauses = append(clauses, fmt.Sprintf("role = ANY($%d)", len(args)))
	}
	if filter.WardID != nil {
		args = append(args, *filter.WardID)
		clauses = append(clauses, fmt.Sprintf("ward_id=$%d", len(args)))
	}
	if len(filter.WardIDs) > 0 {
		args = append(args, filter.WardIDs)
		clauses = append(clauses, fmt.Sprintf("ward_id = ANY($%d)", len(args)))
	}
	if filter.ZoneID != nil {
		args = append(args, *filter.ZoneID)
		clauses = append(clauses, fmt.Sprintf("zone_id=$%d", len(args)))
	}
	if filter.Department != nil {
		args = append(args, *filter.Department)
		clauses = append(clauses, fmt.Sprintf("department=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("is_active=$%d", len(args)))
	}
	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		clauses = append(clauses, fmt.Sprintf("id = ANY($%d)", len(args)))
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, max(filter.Offset, 0))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, scanUser)
}

func scanUser(row pgx.CollectableRow) (domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.PhoneNumber,
		&user.PasswordHash,
		&user.Role,
		&user.Department,
		&user.WardID,
		&user.ZoneID,
		&user.IsActive,
		&user.Version,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}
