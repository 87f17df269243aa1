package service

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/lifecycle"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// AssignmentService handles reassignment and assignee selection.
type AssignmentService struct {
	lifecycle  *LifecycleService
	issues     repository.IssueRepository
	users      repository.UserRepository
	wards      repository.WardRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	bulkLimit  int
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	Lifecycle  *LifecycleService
	IssueRepo  repository.IssueRepository
	UserRepo   repository.UserRepository
	WardRepo   repository.WardRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// BulkLimit caps concurrent reassignments in BulkReassign.
	BulkLimit int
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	limit := deps.BulkLimit
	if limit <= 0 {
		limit = 4
	}
	return &AssignmentService{
		lifecycle:  deps.Lifecycle,
		issues:     deps.IssueRepo,
		users:      deps.UserRepo,
		wards:      deps.WardRepo,
		dispatcher: deps.Dispatcher,
		logger:     loggerOrNop(deps.Logger),
		bulkLimit:  limit,
	}
}

// ReassignResult is the outcome for one issue of a bulk reassignment.
type ReassignResult struct {
	IssueID string               `json:"issueId"`
	Success bool                 `json:"success"`
	Status  domain.IssueStatus   `json:"status,omitempty"`
	Error   *ReassignResultError `json:"error,omitempty"`
}

// ReassignResultError describes why one issue was not reassigned.
type ReassignResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// reassignableStatuses are the states a handoff may happen in.
var reassignableStatuses = []domain.IssueStatus{
	domain.IssueStatusOpen,
	domain.IssueStatusAssigned,
	domain.IssueStatusInProgress,
	domain.IssueStatusResolved,
}

// Reassign hands issueID from fromUserID to toUserID. Status is unchanged.
func (s *AssignmentService) Reassign(ctx context.Context, actor *domain.User, issueID, fromUserID, toUserID string) (*domain.Issue, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	from, to, err := s.loadPair(ctx, fromUserID, toUserID)
	if err != nil {
		return nil, err
	}
	return s.reassignOne(ctx, actor, issueID, from, to)
}

func (s *AssignmentService) loadPair(ctx context.Context, fromUserID, toUserID string) (*domain.User, *domain.User, error) {
	from, err := s.users.GetByID(ctx, fromUserID)
	if err != nil {
		return nil, nil, mapRepoErr(err, "user", fromUserID)
	}
	to, err := s.users.GetByID(ctx, toUserID)
	if err != nil {
		return nil, nil, mapRepoErr(err, "user", toUserID)
	}
	return from, to, nil
}

// checkSuccessor rejects a handoff target that could never take the work
// before anything is written. Per-issue eligibility is still checked on
// each reassignment.
func (s *AssignmentService) checkSuccessor(ctx context.Context, fromUserID, toUserID string) (*domain.User, error) {
	from, to, err := s.loadPair(ctx, fromUserID, toUserID)
	if err != nil {
		return nil, err
	}
	details := map[string]any{"user_id": to.ID}
	switch {
	case from.ID == to.ID:
		return nil, apperrors.NewIneligibleAssignee("successor must be a different user", details)
	case !to.IsActive:
		return nil, apperrors.NewIneligibleAssignee("successor is inactive", details)
	case !to.IsFieldStaff():
		details["role"] = to.Role
		return nil, apperrors.NewIneligibleAssignee("successor role cannot hold issues", details)
	}
	return from, nil
}

func (s *AssignmentService) reassignOne(ctx context.Context, actor *domain.User, issueID string, from, to *domain.User) (*domain.Issue, error) {
	_, issue, err := s.lifecycle.apply(ctx, lifecycle.TransitionReassign, issueID, func(issue *domain.Issue, scope lifecycle.Scope) ([]domain.IssueHistory, error) {
		if err := lifecycle.CheckCanReassign(actor, scope); err != nil {
			return nil, err
		}
		record, err := lifecycle.Reassign(issue, from, to, actor.ID, s.lifecycle.clock.Now())
		if err != nil {
			return nil, err
		}
		entry := record.HistoryEntry()
		entry.ID = uuid.NewString()
		return []domain.IssueHistory{entry}, nil
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.dispatcher, s.logger, events.Event{
		Type:      events.EventIssueReassigned,
		IssueID:   issue.ID,
		Actor:     events.ActorOf(actor),
		Timestamp: issue.UpdatedAt,
		Payload:   assignedPayload(issue, to, ptr(from.ID)),
	})
	return issue, nil
}

// BulkReassign applies Reassign to each issue independently. When
// issueIDs is empty every reassignable issue held by fromUserID is moved.
// A failure on one issue leaves the others untouched; the returned slice
// has one entry per issue in input order.
func (s *AssignmentService) BulkReassign(ctx context.Context, actor *domain.User, fromUserID, toUserID string, issueIDs []string) ([]ReassignResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	from, to, err := s.loadPair(ctx, fromUserID, toUserID)
	if err != nil {
		return nil, err
	}
	if len(issueIDs) == 0 {
		held, err := s.issues.List(ctx, repository.IssueFilter{
			AssigneeID: &fromUserID,
			Statuses:   reassignableStatuses,
		})
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		for _, issue := range held {
			issueIDs = append(issueIDs, issue.ID)
		}
		sort.Strings(issueIDs)
	}

	results := make([]ReassignResult, len(issueIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.bulkLimit)
	for i, issueID := range issueIDs {
		g.Go(func() error {
			issue, err := s.reassignOne(gctx, actor, issueID, from, to)
			results[i] = reassignResult(issueID, issue, err)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	s.logger.Info("bulk reassignment finished",
		zap.String("from_user_id", fromUserID),
		zap.String("to_user_id", toUserID),
		zap.String("actor_id", actor.ID),
		zap.Int("total", len(results)),
		zap.Int("failed", failed))
	return results, nil
}

func reassignResult(issueID string, issue *domain.Issue, err error) ReassignResult {
	if err != nil {
		domainErr := apperrors.ToDomainError(err)
		return ReassignResult{
			IssueID: issueID,
			Error:   &ReassignResultError{Code: domainErr.Code, Message: domainErr.Message},
		}
	}
	return ReassignResult{IssueID: issueID, Success: true, Status: issue.Status}
}

// AutoAssign assigns an OPEN issue to the eligible user in its ward with
// the fewest unresolved issues. Ties go to the longest-standing account.
func (s *AssignmentService) AutoAssign(ctx context.Context, actor *domain.User, issueID string) (*domain.Issue, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, mapRepoErr(err, "issue", issueID)
	}
	scope, err := scopeOf(ctx, s.wards, issue.WardID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CheckCanAssign(actor, scope); err != nil {
		return nil, err
	}
	if !lifecycle.CanApply(issue.Status, lifecycle.TransitionAssign) {
		return nil, apperrors.NewInvalidTransition(string(issue.Status), string(lifecycle.TransitionAssign))
	}

	candidate, err := s.leastLoaded(ctx, issue)
	if err != nil {
		return nil, err
	}
	return s.lifecycle.Assign(ctx, actor, issueID, candidate.ID)
}

func (s *AssignmentService) leastLoaded(ctx context.Context, issue *domain.Issue) (*domain.User, error) {
	users, err := s.users.List(ctx, repository.UserFilter{
		Roles:  []domain.UserRole{domain.RoleWardEngineer, domain.RoleFieldWorker},
		WardID: &issue.WardID,
		Active: ptr(true),
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	eligible := make([]domain.User, 0, len(users))
	for i := range users {
		if lifecycle.CheckEligible(issue, &users[i]) == nil {
			eligible = append(eligible, users[i])
		}
	}
	if len(eligible) == 0 {
		return nil, apperrors.NewIneligibleAssignee("no eligible assignee in ward",
			map[string]any{"issue_id": issue.ID, "ward_id": issue.WardID, "department": issue.Department})
	}

	open, err := s.issues.List(ctx, repository.IssueFilter{
		WardID: &issue.WardID,
		Statuses: []domain.IssueStatus{
			domain.IssueStatusAssigned,
			domain.IssueStatusInProgress,
		},
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	load := make(map[string]int, len(eligible))
	for i := range open {
		if open[i].AssigneeID != nil {
			load[*open[i].AssigneeID]++
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		li, lj := load[eligible[i].ID], load[eligible[j].ID]
		if li != lj {
			return li < lj
		}
		if !eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
		}
		return eligible[i].ID < eligible[j].ID
	})
	return &eligible[0], nil
}
