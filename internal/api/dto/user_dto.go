package dto

import (
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// UserRegisterRequest payload for citizen self sign-up.
type UserRegisterRequest struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordChangeRequest payload for changing the caller's password.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UserCreateRequest payload for admin-created accounts.
type UserCreateRequest struct {
	FullName    string             `json:"fullName"`
	Email       string             `json:"email"`
	PhoneNumber string             `json:"phoneNumber"`
	Password    string             `json:"password"`
	Role        domain.UserRole    `json:"role"`
	Department  *domain.Department `json:"department"`
	WardID      *string            `json:"wardId"`
	ZoneID      *string            `json:"zoneId"`
}

// UserUpdateRequest is a partial update. Absent fields are untouched; an
// empty string clears an optional binding.
type UserUpdateRequest struct {
	FullName    *string            `json:"fullName"`
	Email       *string            `json:"email"`
	PhoneNumber *string            `json:"phoneNumber"`
	Role        *domain.UserRole   `json:"role"`
	Department  *domain.Department `json:"department"`
	WardID      *string            `json:"wardId"`
	ZoneID      *string            `json:"zoneId"`
}

// DeactivateRequest optionally names who takes over open work.
type DeactivateRequest struct {
	SuccessorID *string `json:"successorId"`
}

// ReassignWorkRequest moves issues from one user to another. Empty
// IssueIDs means every issue the source user holds.
type ReassignWorkRequest struct {
	ToUserID string   `json:"toUserId"`
	IssueIDs []string `json:"issueIds"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID          string             `json:"id"`
	FullName    string             `json:"fullName"`
	Email       string             `json:"email"`
	PhoneNumber string             `json:"phoneNumber"`
	Role        domain.UserRole    `json:"role"`
	Department  *domain.Department `json:"department"`
	WardID      *string            `json:"wardId"`
	ZoneID      *string            `json:"zoneId"`
	IsActive    bool               `json:"isActive"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// NewUserResponse maps a domain user. The password hash never leaves.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		FullName:    u.FullName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Role:        u.Role,
		Department:  u.Department,
		WardID:      u.WardID,
		ZoneID:      u.ZoneID,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// NewUserResponses maps a slice of users.
func NewUserResponses(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, NewUserResponse(&users[i]))
	}
	return out
}
