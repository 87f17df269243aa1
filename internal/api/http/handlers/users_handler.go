package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/api/dto"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/service"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// UsersHandler serves account administration.
type UsersHandler struct {
	users       *service.UserService
	assignments *service.AssignmentService
	issues      *service.IssueService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(users *service.UserService, assignments *service.AssignmentService, issues *service.IssueService) *UsersHandler {
	return &UsersHandler{users: users, assignments: assignments, issues: issues}
}

// CreateUser handles POST /api/admin/users.
func (h *UsersHandler) CreateUser(c *fiber.Ctx) error {
	var req dto.UserCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.users.Register(c.UserContext(), service.UserInput{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
		Role:        req.Role,
		Department:  req.Department,
		WardID:      req.WardID,
		ZoneID:      req.ZoneID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// ListUsers handles GET /api/admin/users.
func (h *UsersHandler) ListUsers(c *fiber.Ctx) error {
	active, err := parseBoolQuery(c, "isActive")
	if err != nil {
		return err
	}
	filter := service.UserListFilter{
		WardID: optionalQuery(c, "wardId"),
		ZoneID: optionalQuery(c, "zoneId"),
		Active: active,
	}
	if role := optionalQuery(c, "role"); role != nil {
		r := domain.UserRole(*role)
		filter.Role = &r
	}
	if dept := optionalQuery(c, "department"); dept != nil {
		d := domain.Department(*dept)
		filter.Department = &d
	}
	filter.Limit, filter.Offset = pagination(c, 50)
	users, err := h.users.ListUsers(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponses(users)})
}

// GetUser handles GET /api/admin/users/:id.
func (h *UsersHandler) GetUser(c *fiber.Ctx) error {
	user, err := h.users.GetUser(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// UpdateUser handles PATCH /api/admin/users/:id.
func (h *UsersHandler) UpdateUser(c *fiber.Ctx) error {
	var req dto.UserUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.users.UpdateUser(c.UserContext(), c.Params("id"), service.UserPatch{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Role:        req.Role,
		Department:  req.Department,
		WardID:      req.WardID,
		ZoneID:      req.ZoneID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// Deactivate handles POST /api/admin/users/:id/deactivate.
func (h *UsersHandler) Deactivate(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.DeactivateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	result, err := h.users.Deactivate(c.UserContext(), actor, c.Params("id"), req.SuccessorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"user":       dto.NewUserResponse(result.User),
		"reassigned": result.Reassigned,
	}})
}

// Reactivate handles POST /api/admin/users/:id/reactivate.
func (h *UsersHandler) Reactivate(c *fiber.Ctx) error {
	user, err := h.users.Reactivate(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// ReassignWork handles POST /api/admin/users/:id/reassign-work.
func (h *UsersHandler) ReassignWork(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ReassignWorkRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ToUserID == "" {
		return apperrors.NewValidationError("toUserId required", nil)
	}
	results, err := h.assignments.BulkReassign(c.UserContext(), actor, c.Params("id"), req.ToUserID, req.IssueIDs)
	if err != nil {
		return err
	}
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"results":   results,
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	}})
}

// Activity handles GET /api/admin/users/:id/activity.
func (h *UsersHandler) Activity(c *fiber.Ctx) error {
	entries, err := h.issues.RecentActivity(c.UserContext(), c.Params("id"), parseIntQuery(c, "limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponses(entries)})
}
