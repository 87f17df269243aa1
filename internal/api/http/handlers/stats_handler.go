package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/api/dto"
	"github.com/spec-kit/civic-issue-service/internal/service"
)

// StatsHandler serves ward, zone, user and dashboard statistics.
type StatsHandler struct {
	stats *service.StatsService
}

// NewStatsHandler constructs handler.
func NewStatsHandler(stats *service.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// Ward handles GET /api/stats/wards/:id.
func (h *StatsHandler) Ward(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	ws, err := h.stats.WardStats(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ws})
}

// WardDetail handles GET /api/stats/wards/:id/detail.
func (h *StatsHandler) WardDetail(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	detail, err := h.stats.WardDetail(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	issues := make([]dto.IssueResponse, 0, len(detail.Issues))
	for i := range detail.Issues {
		item := detail.Issues[i]
		resp := dto.NewIssueResponse(&item.Issue)
		resp.SLABreached = &item.SLABreached
		if !item.Issue.Status.IsResolved() {
			resp.OpenDays = &item.OpenDays
		}
		issues = append(issues, resp)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"stats":     detail.Stats,
		"engineers": dto.NewUserResponses(detail.Engineers),
		"issues":    issues,
	}})
}

// Zone handles GET /api/stats/zones/:id.
func (h *StatsHandler) Zone(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	zs, err := h.stats.ZoneStats(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": zs})
}

// User handles GET /api/stats/users/:id. "me" resolves to the caller.
func (h *StatsHandler) User(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	userID := c.Params("id")
	if userID == "me" {
		userID = actor.ID
	}
	us, err := h.stats.UserStats(c.UserContext(), actor, userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": us})
}

// Dashboard handles GET /api/stats/dashboard.
func (h *StatsHandler) Dashboard(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	d, err := h.stats.Dashboard(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": d})
}

// Policy handles GET /api/stats/sla-policy.
func (h *StatsHandler) Policy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.stats.Policy()})
}
