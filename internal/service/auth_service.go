package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/config"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	"github.com/spec-kit/civic-issue-service/internal/rolebinding"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	accounts   *UserService
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo    repository.UserRepository
	UserService *UserService
	Logger      *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		accounts:   deps.UserService,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		logger:     loggerOrNop(deps.Logger),
	}
}

// Session is a signed token with its decoded metadata.
type Session struct {
	User        *domain.User
	AccessToken string
	Token       domain.Token
}

// RegisterCitizen creates a citizen account and signs it in.
func (s *AuthService) RegisterCitizen(ctx context.Context, input UserInput) (*Session, error) {
	user, err := s.accounts.RegisterCitizen(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Login authenticates by email and password. Unknown emails, wrong
// passwords and deactivated accounts all yield the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, rolebinding.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if !user.IsActive {
		s.logger.Info("login refused for inactive user", zap.String("user_id", user.ID))
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.issue(user)
}

// ChangePassword verifies the current password before storing the new hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := auth.CheckPassword(newPassword); err != nil {
		return apperrors.NewValidationError(err.Error(), map[string]any{"field": "newPassword"})
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return withConflictRetry(ctx, 0, "user", userID, func() error {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return mapRepoErr(err, "user", userID)
		}
		if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
			return apperrors.NewUnauthorized("invalid credentials")
		}
		expected := user.Version
		user.PasswordHash = hash
		if err := s.users.Update(ctx, user, expected); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return err
			}
			return mapRepoErr(err, "user", userID)
		}
		return nil
	})
}

func (s *AuthService) issue(user *domain.User) (*Session, error) {
	signed, token, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{User: user, AccessToken: signed, Token: token}, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
