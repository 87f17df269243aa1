package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/config"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	"github.com/spec-kit/civic-issue-service/internal/rolebinding"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// UserService manages accounts and their role bindings.
type UserService struct {
	users        repository.UserRepository
	wards        repository.WardRepository
	zones        repository.ZoneRepository
	assignments  *AssignmentService
	cache        StatsCache
	clock        Clock
	logger       *zap.Logger
	bcryptCost   int
	deactivation config.DeactivationPolicy
	retries      int
}

// UserDependencies bundles collaborators for the user service.
type UserDependencies struct {
	UserRepo        repository.UserRepository
	WardRepo        repository.WardRepository
	ZoneRepo        repository.ZoneRepository
	Assignments     *AssignmentService
	Cache           StatsCache
	Clock           Clock
	Logger          *zap.Logger
	BcryptCost      int
	Deactivation    config.DeactivationPolicy
	ConflictRetries int
}

// NewUserService builds the service.
func NewUserService(deps UserDependencies) *UserService {
	deactivation := deps.Deactivation
	if deactivation == "" {
		deactivation = config.DeactivationKeep
	}
	return &UserService{
		users:        deps.UserRepo,
		wards:        deps.WardRepo,
		zones:        deps.ZoneRepo,
		assignments:  deps.Assignments,
		cache:        cacheOrNoop(deps.Cache),
		clock:        clockOrSystem(deps.Clock),
		logger:       loggerOrNop(deps.Logger),
		bcryptCost:   deps.BcryptCost,
		deactivation: deactivation,
		retries:      deps.ConflictRetries,
	}
}

// UserInput is the payload for creating an account.
type UserInput struct {
	FullName    string
	Email       string
	PhoneNumber string
	Password    string
	Role        domain.UserRole
	Department  *domain.Department
	WardID      *string
	ZoneID      *string
}

// UserPatch holds the fields to change. Nil leaves a field untouched; an
// empty string clears an optional binding.
type UserPatch struct {
	FullName    *string
	Email       *string
	PhoneNumber *string
	Role        *domain.UserRole
	Department  *domain.Department
	WardID      *string
	ZoneID      *string
}

// UserListFilter narrows ListUsers.
type UserListFilter struct {
	Role       *domain.UserRole
	WardID     *string
	ZoneID     *string
	Department *domain.Department
	Active     *bool
	Limit      int
	Offset     int
}

// DeactivationResult reports the deactivated user and any work moved off it.
type DeactivationResult struct {
	User       *domain.User
	Reassigned []ReassignResult
}

// Register creates an account of any role.
func (s *UserService) Register(ctx context.Context, input UserInput) (*domain.User, error) {
	if err := auth.CheckPassword(input.Password); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"field": "password"})
	}
	now := s.clock.Now()
	user := &domain.User{
		ID:          uuid.NewString(),
		FullName:    strings.TrimSpace(input.FullName),
		Email:       rolebinding.NormalizeEmail(input.Email),
		PhoneNumber: strings.TrimSpace(input.PhoneNumber),
		Role:        input.Role,
		Department:  clearEmpty(input.Department),
		WardID:      clearEmpty(input.WardID),
		ZoneID:      clearEmpty(input.ZoneID),
		IsActive:    true,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.validate(ctx, user); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByEmail(ctx, user.Email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": user.Email})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": user.Email})
		}
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// RegisterCitizen is self-service sign-up. Any bindings are dropped.
func (s *UserService) RegisterCitizen(ctx context.Context, input UserInput) (*domain.User, error) {
	input.Role = domain.RoleCitizen
	input.Department = nil
	input.WardID = nil
	input.ZoneID = nil
	return s.Register(ctx, input)
}

// EnsureSuperAdmin creates a super admin with input's credentials unless an
// account already uses the email. It reports whether one was created.
func (s *UserService) EnsureSuperAdmin(ctx context.Context, input UserInput) (bool, error) {
	if strings.TrimSpace(input.Email) == "" {
		return false, nil
	}
	if _, err := s.users.GetByEmail(ctx, rolebinding.NormalizeEmail(input.Email)); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, apperrors.MapError(err)
	}
	input.Role = domain.RoleSuperAdmin
	input.Department, input.WardID, input.ZoneID = nil, nil, nil
	if _, err := s.Register(ctx, input); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateUser merges patch into the stored user, re-validates the merged
// record and writes it only if every rule holds.
func (s *UserService) UpdateUser(ctx context.Context, userID string, patch UserPatch) (*domain.User, error) {
	var updated *domain.User
	err := withConflictRetry(ctx, s.retries, "user", userID, func() error {
		current, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return mapRepoErr(err, "user", userID)
		}
		merged := applyPatch(*current, patch)
		merged.UpdatedAt = s.clock.Now()
		if err := s.validate(ctx, &merged); err != nil {
			return err
		}
		if err := s.users.Update(ctx, &merged, current.Version); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return err
			}
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.NewConflict("email already registered", map[string]any{"email": merged.Email})
			}
			return mapRepoErr(err, "user", userID)
		}
		updated = &merged
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return updated, nil
}

func (s *UserService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

func applyPatch(u domain.User, p UserPatch) domain.User {
	if p.FullName != nil {
		u.FullName = strings.TrimSpace(*p.FullName)
	}
	if p.Email != nil {
		u.Email = rolebinding.NormalizeEmail(*p.Email)
	}
	if p.PhoneNumber != nil {
		u.PhoneNumber = strings.TrimSpace(*p.PhoneNumber)
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Department != nil {
		u.Department = clearEmpty(p.Department)
	}
	if p.WardID != nil {
		u.WardID = clearEmpty(p.WardID)
	}
	if p.ZoneID != nil {
		u.ZoneID = clearEmpty(p.ZoneID)
	}
	return u
}

func clearEmpty[T ~string](v *T) *T {
	if v == nil || strings.TrimSpace(string(*v)) == "" {
		return nil
	}
	out := T(strings.TrimSpace(string(*v)))
	return &out
}

// validate runs the rule table and then checks that bound ward and zone exist.
func (s *UserService) validate(ctx context.Context, u *domain.User) error {
	if err := rolebinding.Validate(u); err != nil {
		return err
	}
	if u.WardID != nil {
		if _, err := s.wards.GetByID(ctx, *u.WardID); err != nil {
			return mapRepoErr(err, "ward", *u.WardID)
		}
	}
	if u.ZoneID != nil {
		if _, err := s.zones.GetByID(ctx, *u.ZoneID); err != nil {
			return mapRepoErr(err, "zone", *u.ZoneID)
		}
	}
	return nil
}

// Deactivate marks the user inactive. Open assignments stay in place
// unless the policy is reassign and a successor is given. The successor is
// checked before the user is touched; if moving the work still fails, the
// deactivation is undone and the error returned.
func (s *UserService) Deactivate(ctx context.Context, actor *domain.User, userID string, successorID *string) (*DeactivationResult, error) {
	handoff := s.deactivation == config.DeactivationReassign &&
		successorID != nil && *successorID != "" && s.assignments != nil
	wasActive := true
	if handoff {
		if err := requireActor(actor); err != nil {
			return nil, err
		}
		current, err := s.assignments.checkSuccessor(ctx, userID, *successorID)
		if err != nil {
			return nil, err
		}
		wasActive = current.IsActive
	}

	user, err := s.setActive(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	result := &DeactivationResult{User: user}
	if !handoff {
		return result, nil
	}
	reassigned, err := s.assignments.BulkReassign(ctx, actor, userID, *successorID, nil)
	if err != nil {
		s.logger.Warn("reassignment after deactivation failed",
			zap.String("user_id", userID),
			zap.String("successor_id", *successorID),
			zap.Error(err))
		if wasActive {
			if _, rerr := s.setActive(ctx, userID, true); rerr != nil {
				s.logger.Error("restoring user after failed deactivation", zap.String("user_id", userID), zap.Error(rerr))
			}
		}
		return nil, err
	}
	result.Reassigned = reassigned
	return result, nil
}

// Reactivate marks the user active. Earlier assignments are not restored.
func (s *UserService) Reactivate(ctx context.Context, userID string) (*domain.User, error) {
	return s.setActive(ctx, userID, true)
}

func (s *UserService) setActive(ctx context.Context, userID string, active bool) (*domain.User, error) {
	var updated *domain.User
	err := withConflictRetry(ctx, s.retries, "user", userID, func() error {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return mapRepoErr(err, "user", userID)
		}
		if user.IsActive == active {
			updated = user
			return nil
		}
		expected := user.Version
		user.IsActive = active
		user.UpdatedAt = s.clock.Now()
		if err := s.users.Update(ctx, user, expected); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return err
			}
			return mapRepoErr(err, "user", userID)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.logger.Info("user active flag set", zap.String("user_id", userID), zap.Bool("active", active))
	return updated, nil
}

// GetUser fetches a user by id.
func (s *UserService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapRepoErr(err, "user", userID)
	}
	return user, nil
}

// ListUsers returns users matching filter.
func (s *UserService) ListUsers(ctx context.Context, filter UserListFilter) ([]domain.User, error) {
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": *filter.Role})
	}
	if filter.Department != nil && !filter.Department.Valid() {
		return nil, apperrors.NewValidationError("unknown department", map[string]any{"department": *filter.Department})
	}
	users, err := s.users.List(ctx, repository.UserFilter{
		Role:       filter.Role,
		WardID:     filter.WardID,
		ZoneID:     filter.ZoneID,
		Department: filter.Department,
		Active:     filter.Active,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}
