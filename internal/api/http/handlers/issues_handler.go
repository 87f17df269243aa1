package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/api/dto"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/service"
	"github.com/spec-kit/civic-issue-service/internal/stats"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// IssuesHandler serves reporting, browsing and lifecycle endpoints.
type IssuesHandler struct {
	issues      *service.IssueService
	lifecycle   *service.LifecycleService
	assignments *service.AssignmentService
	stats       *service.StatsService
}

// IssuesHandlerDeps bundles the services behind the issue endpoints.
type IssuesHandlerDeps struct {
	Issues      *service.IssueService
	Lifecycle   *service.LifecycleService
	Assignments *service.AssignmentService
	Stats       *service.StatsService
}

// NewIssuesHandler constructs handler.
func NewIssuesHandler(deps IssuesHandlerDeps) *IssuesHandler {
	return &IssuesHandler{
		issues:      deps.Issues,
		lifecycle:   deps.Lifecycle,
		assignments: deps.Assignments,
		stats:       deps.Stats,
	}
}

// Report handles POST /api/issues.
func (h *IssuesHandler) Report(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ReportIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	issue, err := h.issues.Report(c.UserContext(), actor, service.ReportInput{
		Category:    req.Category,
		Description: req.Description,
		Priority:    domain.IssuePriority(strings.ToUpper(string(req.Priority))),
		WardID:      req.WardID,
		Department:  domain.Department(strings.ToUpper(string(req.Department))),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewIssueResponse(issue)})
}

// ListIssues handles GET /api/issues.
func (h *IssuesHandler) ListIssues(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	query := parseIssueQuery(c)
	query.Limit, query.Offset = pagination(c, 20)
	issues, err := h.issues.ListIssues(c.UserContext(), actor, query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueResponses(issues)})
}

// Summary handles GET /api/issues/summary.
func (h *IssuesHandler) Summary(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	rollup, err := h.stats.Summary(c.UserContext(), actor, parseIssueQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rollup})
}

// GetIssue handles GET /api/issues/:id.
func (h *IssuesHandler) GetIssue(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	issue, err := h.issues.GetIssue(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.detail(issue)})
}

// GetByTicket handles GET /api/issues/ticket/:ticket.
func (h *IssuesHandler) GetByTicket(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	issue, err := h.issues.GetByTicketNumber(c.UserContext(), actor, strings.ToUpper(c.Params("ticket")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.detail(issue)})
}

// History handles GET /api/issues/:id/history.
func (h *IssuesHandler) History(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c, 100)
	entries, err := h.issues.History(c.UserContext(), actor, c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponses(entries)})
}

// AttachEvidence handles POST /api/issues/:id/evidence.
func (h *IssuesHandler) AttachEvidence(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.EvidenceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	kind := domain.EvidenceKind(strings.ToUpper(string(req.Kind)))
	evidence, err := h.issues.AttachEvidence(c.UserContext(), actor, c.Params("id"), kind, req.URL)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewEvidenceResponse(evidence)})
}

// ListEvidence handles GET /api/issues/:id/evidence.
func (h *IssuesHandler) ListEvidence(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	items, err := h.issues.ListEvidence(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	resp := make([]dto.EvidenceResponse, 0, len(items))
	for i := range items {
		resp = append(resp, dto.NewEvidenceResponse(&items[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Assign handles POST /api/issues/:id/assign.
func (h *IssuesHandler) Assign(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AssigneeID == "" {
		return apperrors.NewValidationError("assigneeId required", nil)
	}
	return h.respond(c)(h.lifecycle.Assign(c.UserContext(), actor, c.Params("id"), req.AssigneeID))
}

// AutoAssign handles POST /api/issues/:id/auto-assign.
func (h *IssuesHandler) AutoAssign(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	return h.respond(c)(h.assignments.AutoAssign(c.UserContext(), actor, c.Params("id")))
}

// Start handles POST /api/issues/:id/start.
func (h *IssuesHandler) Start(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	return h.respond(c)(h.lifecycle.StartProgress(c.UserContext(), actor, c.Params("id")))
}

// Resolve handles POST /api/issues/:id/resolve.
func (h *IssuesHandler) Resolve(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	return h.respond(c)(h.lifecycle.Resolve(c.UserContext(), actor, c.Params("id")))
}

// Verify handles POST /api/issues/:id/verify.
func (h *IssuesHandler) Verify(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	return h.respond(c)(h.lifecycle.Verify(c.UserContext(), actor, c.Params("id")))
}

// Reopen handles POST /api/issues/:id/reopen.
func (h *IssuesHandler) Reopen(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ReopenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return h.respond(c)(h.lifecycle.Reopen(c.UserContext(), actor, c.Params("id"), req.Reason))
}

// Reassign handles POST /api/issues/:id/reassign.
func (h *IssuesHandler) Reassign(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ReassignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.FromUserID == "" || req.ToUserID == "" {
		return apperrors.NewValidationError("fromUserId and toUserId required", nil)
	}
	return h.respond(c)(h.assignments.Reassign(c.UserContext(), actor, c.Params("id"), req.FromUserID, req.ToUserID))
}

func (h *IssuesHandler) respond(c *fiber.Ctx) func(*domain.Issue, error) error {
	return func(issue *domain.Issue, err error) error {
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": dto.NewIssueResponse(issue)})
	}
}

// detail adds the SLA verdict as of now.
func (h *IssuesHandler) detail(issue *domain.Issue) dto.IssueResponse {
	resp := dto.NewIssueResponse(issue)
	now := time.Now().UTC()
	breached := stats.SLABreached(issue, h.stats.Policy(), now)
	resp.SLABreached = &breached
	if stats.IsOpen(issue) {
		days := stats.ElapsedDays(issue.CreatedAt, now)
		resp.OpenDays = &days
	}
	return resp
}

func parseIssueQuery(c *fiber.Ctx) service.IssueQuery {
	query := service.IssueQuery{
		WardID:     optionalQuery(c, "wardId"),
		ZoneID:     optionalQuery(c, "zoneId"),
		AssigneeID: optionalQuery(c, "assigneeId"),
		ReporterID: optionalQuery(c, "reporterId"),
		Statuses:   parseCSV[domain.IssueStatus](c, "status"),
		Priorities: parseCSV[domain.IssuePriority](c, "priority"),
	}
	if dept := optionalQuery(c, "department"); dept != nil {
		d := domain.Department(strings.ToUpper(*dept))
		query.Department = &d
	}
	return query
}
