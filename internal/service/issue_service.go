package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/lifecycle"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// IssueService covers reporting, reading and evidence for issues.
type IssueService struct {
	issues     repository.IssueRepository
	history    repository.IssueHistoryRepository
	evidence   repository.EvidenceRepository
	wards      repository.WardRepository
	dispatcher events.Dispatcher
	cache      StatsCache
	clock      Clock
	logger     *zap.Logger
}

// IssueDependencies bundles repositories for the issue service.
type IssueDependencies struct {
	IssueRepo    repository.IssueRepository
	HistoryRepo  repository.IssueHistoryRepository
	EvidenceRepo repository.EvidenceRepository
	WardRepo     repository.WardRepository
	Dispatcher   events.Dispatcher
	Cache        StatsCache
	Clock        Clock
	Logger       *zap.Logger
}

// NewIssueService constructs the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	return &IssueService{
		issues:     deps.IssueRepo,
		history:    deps.HistoryRepo,
		evidence:   deps.EvidenceRepo,
		wards:      deps.WardRepo,
		dispatcher: deps.Dispatcher,
		cache:      cacheOrNoop(deps.Cache),
		clock:      clockOrSystem(deps.Clock),
		logger:     loggerOrNop(deps.Logger),
	}
}

// ReportInput describes a new issue.
type ReportInput struct {
	Category    string
	Description string
	Priority    domain.IssuePriority
	WardID      string
	Department  domain.Department
}

// IssueQuery filters issue listings. The caller's scope is applied on top.
type IssueQuery struct {
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

const ticketAttempts = 3

// Report files a new OPEN issue in a ward.
func (s *IssueService) Report(ctx context.Context, reporter *domain.User, input ReportInput) (*domain.Issue, error) {
	if err := requireActor(reporter); err != nil {
		return nil, err
	}
	if err := validateReport(&input); err != nil {
		return nil, err
	}
	if _, err := s.wards.GetByID(ctx, input.WardID); err != nil {
		return nil, mapRepoErr(err, "ward", input.WardID)
	}

	now := s.clock.Now()
	issue := &domain.Issue{
		ID:          uuid.NewString(),
		Category:    input.Category,
		Description: input.Description,
		Priority:    input.Priority,
		Status:      domain.IssueStatusOpen,
		WardID:      input.WardID,
		Department:  input.Department,
		ReporterID:  reporter.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	created := newHistory(issue.ID, reporter.ID, domain.ChangeTypeCreated, nil,
		map[string]any{"status": issue.Status, "priority": issue.Priority, "ward_id": issue.WardID},
		now)

	var err error
	for attempt := 0; attempt < ticketAttempts; attempt++ {
		issue.TicketNumber = generateTicketNumber()
		err = s.issues.Create(ctx, issue, created)
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, mapRepoErr(err, "issue", issue.ID)
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
	publish(ctx, s.dispatcher, s.logger, events.Event{
		Type:      events.EventIssueReported,
		IssueID:   issue.ID,
		Actor:     events.ActorOf(reporter),
		Timestamp: now,
		Payload: events.IssueReportedPayload{
			TicketNumber: issue.TicketNumber,
			WardID:       issue.WardID,
			Department:   issue.Department,
			Priority:     issue.Priority,
			Category:     issue.Category,
		},
	})
	return issue, nil
}

func validateReport(input *ReportInput) error {
	input.Category = strings.TrimSpace(input.Category)
	input.Description = strings.TrimSpace(input.Description)
	if input.Priority == "" {
		input.Priority = domain.IssuePriorityMedium
	}
	if input.Department == "" {
		input.Department = domain.DepartmentGeneral
	}

	var violations []string
	if input.Category == "" {
		violations = append(violations, "category is required")
	}
	if n := utf8.RuneCountInString(input.Description); n == 0 || n > 2000 {
		violations = append(violations, "description must be between 1 and 2000 characters")
	}
	if input.WardID == "" {
		violations = append(violations, "wardId is required")
	}
	if !input.Priority.Valid() {
		violations = append(violations, "priority is unknown")
	}
	if !input.Department.Valid() {
		violations = append(violations, "department is unknown")
	}
	if len(violations) > 0 {
		return apperrors.NewValidationError("invalid issue", map[string]any{"violations": violations})
	}
	return nil
}

// generateTicketNumber returns ISS- followed by eight upper-case hex digits.
func generateTicketNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ISS-" + strings.ToUpper(raw[:8])
}

// GetIssue fetches an issue the actor may see.
func (s *IssueService) GetIssue(ctx context.Context, actor *domain.User, issueID string) (*domain.Issue, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, mapRepoErr(err, "issue", issueID)
	}
	if err := s.checkVisible(ctx, actor, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// GetByTicketNumber fetches an issue by its public ticket number.
func (s *IssueService) GetByTicketNumber(ctx context.Context, actor *domain.User, ticketNumber string) (*domain.Issue, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	issue, err := s.issues.GetByTicketNumber(ctx, strings.ToUpper(strings.TrimSpace(ticketNumber)))
	if err != nil {
		return nil, mapRepoErr(err, "issue", ticketNumber)
	}
	if err := s.checkVisible(ctx, actor, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// checkVisible lets staff see issues in their scope, field workers their
// ward or their own assignments, and citizens what they reported.
func (s *IssueService) checkVisible(ctx context.Context, actor *domain.User, issue *domain.Issue) error {
	switch actor.Role {
	case domain.RoleCitizen:
		if issue.ReporterID == actor.ID {
			return nil
		}
	case domain.RoleFieldWorker:
		if issue.IsAssignedTo(actor.ID) || (actor.WardID != nil && *actor.WardID == issue.WardID) {
			return nil
		}
	default:
		if issue.ReporterID == actor.ID {
			return nil
		}
		scope, err := scopeOf(ctx, s.wards, issue.WardID)
		if err != nil {
			return err
		}
		if lifecycle.CoversWard(actor, scope) {
			return nil
		}
	}
	return apperrors.NewForbidden("issue outside caller scope")
}

// ListIssues returns issues matching query narrowed to the actor's scope.
func (s *IssueService) ListIssues(ctx context.Context, actor *domain.User, query IssueQuery) ([]domain.Issue, error) {
	filter, err := ScopedIssueFilter(actor, query)
	if err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	issues, err := s.issues.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return issues, nil
}

// ScopedIssueFilter converts query into a repository filter restricted to
// what actor may read. A query outside the actor's scope is Forbidden.
func ScopedIssueFilter(actor *domain.User, query IssueQuery) (repository.IssueFilter, error) {
	if err := requireActor(actor); err != nil {
		return repository.IssueFilter{}, err
	}
	filter := repository.IssueFilter{
		WardID:     query.WardID,
		ZoneID:     query.ZoneID,
		AssigneeID: query.AssigneeID,
		ReporterID: query.ReporterID,
		Department: query.Department,
		Statuses:   query.Statuses,
		Priorities: query.Priorities,
		Limit:      query.Limit,
		Offset:     query.Offset,
	}
	switch actor.Role {
	case domain.RoleSuperAdmin:
	case domain.RoleZoneOfficer:
		if actor.ZoneID == nil {
			return filter, apperrors.NewForbidden("zone officer has no zone")
		}
		if query.ZoneID != nil && *query.ZoneID != *actor.ZoneID {
			return filter, apperrors.NewForbidden("zone outside caller scope")
		}
		filter.ZoneID = actor.ZoneID
	case domain.RoleWardEngineer:
		if actor.WardID == nil {
			return filter, apperrors.NewForbidden("ward engineer has no ward")
		}
		if query.WardID != nil && *query.WardID != *actor.WardID {
			return filter, apperrors.NewForbidden("ward outside caller scope")
		}
		if query.ZoneID != nil {
			return filter, apperrors.NewForbidden("zone outside caller scope")
		}
		filter.WardID = actor.WardID
	case domain.RoleFieldWorker:
		if query.AssigneeID != nil && *query.AssigneeID != actor.ID {
			return filter, apperrors.NewForbidden("field workers may only list their own issues")
		}
		filter.AssigneeID = &actor.ID
	default:
		if query.ReporterID != nil && *query.ReporterID != actor.ID {
			return filter, apperrors.NewForbidden("citizens may only list their own reports")
		}
		filter.ReporterID = &actor.ID
	}
	return filter, nil
}

// History lists the audit trail of an issue, oldest first.
func (s *IssueService) History(ctx context.Context, actor *domain.User, issueID string, limit, offset int) ([]domain.IssueHistory, error) {
	if _, err := s.GetIssue(ctx, actor, issueID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	entries, err := s.history.ListByIssue(ctx, issueID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// RecentActivity lists the latest history entries written by actorID.
func (s *IssueService) RecentActivity(ctx context.Context, actorID string, limit int) ([]domain.IssueHistory, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	entries, err := s.history.ListByActor(ctx, actorID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// AttachEvidence records a media reference on an issue. BEFORE evidence
// may come from the reporter; AFTER evidence only from whoever may work it.
func (s *IssueService) AttachEvidence(ctx context.Context, actor *domain.User, issueID string, kind domain.EvidenceKind, url string) (*domain.Evidence, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, apperrors.NewValidationError("evidence url required", nil)
	}
	if kind != domain.EvidenceBefore && kind != domain.EvidenceAfter {
		return nil, apperrors.NewValidationError("evidence kind must be BEFORE or AFTER", map[string]any{"kind": kind})
	}
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, mapRepoErr(err, "issue", issueID)
	}
	scope, err := scopeOf(ctx, s.wards, issue.WardID)
	if err != nil {
		return nil, err
	}
	reporterBefore := kind == domain.EvidenceBefore && issue.ReporterID == actor.ID
	if !reporterBefore {
		if err := lifecycle.CheckCanWork(issue, actor, scope); err != nil {
			return nil, err
		}
	}

	evidence := &domain.Evidence{
		ID:         uuid.NewString(),
		IssueID:    issue.ID,
		Kind:       kind,
		URL:        url,
		UploadedBy: actor.ID,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.evidence.Create(ctx, evidence); err != nil {
		return nil, apperrors.MapError(err)
	}
	return evidence, nil
}

// ListEvidence returns the media references of an issue.
func (s *IssueService) ListEvidence(ctx context.Context, actor *domain.User, issueID string) ([]domain.Evidence, error) {
	if _, err := s.GetIssue(ctx, actor, issueID); err != nil {
		return nil, err
	}
	items, err := s.evidence.ListByIssue(ctx, issueID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return items, nil
}
