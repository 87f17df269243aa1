package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/lifecycle"
	"github.com/spec-kit/civic-issue-service/internal/observability"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// LifecycleService applies status transitions to stored issues.
type LifecycleService struct {
	issues     repository.IssueRepository
	users      repository.UserRepository
	wards      repository.WardRepository
	evidence   repository.EvidenceRepository
	history    repository.IssueHistoryRepository
	dispatcher events.Dispatcher
	cache      StatsCache
	clock      Clock
	metrics    *observability.Metrics
	logger     *zap.Logger
	retries    int
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	IssueRepo    repository.IssueRepository
	UserRepo     repository.UserRepository
	WardRepo     repository.WardRepository
	EvidenceRepo repository.EvidenceRepository
	HistoryRepo  repository.IssueHistoryRepository
	Dispatcher   events.Dispatcher
	Cache        StatsCache
	Clock        Clock
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	// ConflictRetries bounds re-reads after a lost version race.
	ConflictRetries int
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	return &LifecycleService{
		issues:     deps.IssueRepo,
		users:      deps.UserRepo,
		wards:      deps.WardRepo,
		evidence:   deps.EvidenceRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		cache:      cacheOrNoop(deps.Cache),
		clock:      clockOrSystem(deps.Clock),
		metrics:    deps.Metrics,
		logger:     loggerOrNop(deps.Logger),
		retries:    deps.ConflictRetries,
	}
}

// mutation changes issue in place and returns the history to append.
type mutation func(issue *domain.Issue, scope lifecycle.Scope) ([]domain.IssueHistory, error)

// apply reads the issue, runs mutate and writes it back guarded by the
// version that was read. A lost race re-reads, so the loser sees the
// winner's state and fails on the transition guard.
func (s *LifecycleService) apply(ctx context.Context, t lifecycle.Transition, issueID string, mutate mutation) (*domain.Issue, *domain.Issue, error) {
	var before, after *domain.Issue
	err := withConflictRetry(ctx, s.retries, "issue", issueID, func() error {
		issue, err := s.issues.GetByID(ctx, issueID)
		if err != nil {
			return mapRepoErr(err, "issue", issueID)
		}
		scope, err := scopeOf(ctx, s.wards, issue.WardID)
		if err != nil {
			return err
		}
		before = issue.Clone()
		expected := issue.Version
		history, err := mutate(issue, scope)
		if err != nil {
			return err
		}
		if err := s.issues.Update(ctx, issue, expected, history...); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				s.logger.Debug("issue version conflict",
					zap.String("issue_id", issueID),
					zap.String("transition", string(t)),
					zap.Int64("expected_version", expected))
				return err
			}
			return mapRepoErr(err, "issue", issueID)
		}
		after = issue
		return nil
	})
	s.metrics.RecordTransition(string(t), errorCode(err))
	if err != nil {
		return nil, nil, err
	}
	if cacheErr := s.cache.Invalidate(ctx); cacheErr != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(cacheErr))
	}
	return before, after, nil
}

// Assign binds an OPEN issue to an eligible ward engineer or field worker.
func (s *LifecycleService) Assign(ctx context.Context, actor *domain.User, issueID, assigneeID string) (*domain.Issue, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		return nil, mapRepoErr(err, "user", assigneeID)
	}
	before, issue, err := s.apply(ctx, lifecycle.TransitionAssign, issueID, func(issue *domain.Issue, scope lifecycle.Scope) ([]domain.IssueHistory, error) {
		if err := lifecycle.CheckCanAssign(actor, scope); err != nil {
			return nil, err
		}
		previous := issue.AssigneeID
		from := issue.Status
		now := s.clock.Now()
		if err := lifecycle.Assign(issue, assignee, now); err != nil {
			return nil, err
		}
		return []domain.IssueHistory{
			statusHistory(issue.ID, actor.ID, from, issue.Status, now),
			newHistory(issue.ID, actor.ID, domain.ChangeTypeAssignee,
				map[string]any{"assignee_id": previous},
				map[string]any{"assignee_id": assignee.ID},
				now),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, actor, before, issue)
	publish(ctx, s.dispatcher, s.logger, events.Event{
		Type:      events.EventIssueAssigned,
		IssueID:   issue.ID,
		Actor:     events.ActorOf(actor),
		Timestamp: issue.UpdatedAt,
		Payload:   assignedPayload(issue, assignee, before.AssigneeID),
	})
	return issue, nil
}

// StartProgress moves an ASSIGNED issue to IN_PROGRESS.
func (s *LifecycleService) StartProgress(ctx context.Context, actor *domain.User, issueID string) (*domain.Issue, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	before, issue, err := s.apply(ctx, lifecycle.TransitionStart, issueID, func(issue *domain.Issue, scope lifecycle.Scope) ([]domain.IssueHistory, error) {
		if err := lifecycle.CheckCanWork(issue, actor, scope); err != nil {
			return nil, err
		}
		from := issue.Status
		now := s.clock.Now()
		if err := lifecycle.StartProgress(issue, now); err != nil {
			return nil, err
		}
		return []domain.IssueHistory{statusHistory(issue.ID, actor.ID, from, issue.Status, now)}, nil
	})
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, actor, before, issue)
	return issue, nil
}

// Resolve marks the work done. An AFTER evidence record must exist, and
// after a reopen it must have been attached since the latest reopen.
func (s *LifecycleService) Resolve(ctx context.Context, actor *domain.User, issueID string) (*domain.Issue, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	before, issue, err := s.apply(ctx, lifecycle.TransitionResolve, issueID, func(issue *domain.Issue, scope lifecycle.Scope) ([]domain.IssueHistory, error) {
		if err := lifecycle.CheckCanWork(issue, actor, scope); err != nil {
			return nil, err
		}
		if !lifecycle.CanApply(issue.Status, lifecycle.TransitionResolve) {
			return nil, apperrors.NewInvalidTransition(string(issue.Status), string(lifecycle.TransitionResolve))
		}
		since, err := s.lastReopenedAt(ctx, issue.ID)
		if err != nil {
			return nil, err
		}
		hasAfter, err := s.evidence.HasKindSince(ctx, issue.ID, domain.EvidenceAfter, since)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		from := issue.Status
		now := s.clock.Now()
		if err := lifecycle.Resolve(issue, hasAfter, now); err != nil {
			return nil, err
		}
		return []domain.IssueHistory{statusHistory(issue.ID, actor.ID, from, issue.Status, now)}, nil
	})
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, actor, before, issue)
	return issue, nil
}

// lastReopenedAt is the zero time when the issue was never reopened.
func (s *LifecycleService) lastReopenedAt(ctx context.Context, issueID string) (time.Time, error) {
	if s.history == nil {
		return time.Time{}, nil
	}
	entry, err := s.history.LastOfType(ctx, issueID, domain.ChangeTypeReopened)
	if errors.Is(err, repository.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, apperrors.MapError(err)
	}
	return entry.CreatedAt, nil
}

// Verify confirms a RESOLVED issue.
func (s *LifecycleService) Verify(ctx context.Context, actor *domain.User, issueID string) (*domain.Issue, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	before, issue, err := s.apply(ctx, lifecycle.TransitionVerify, issueID, func(issue *domain.Issue, scope lifecycle.Scope) ([]domain.IssueHistory, error) {
		from := issue.Status
		now := s.clock.Now()
		if err := lifecycle.Verify(issue, actor, scope, now); err != nil {
			return nil, err
		}
		return []domain.IssueHistory{statusHistory(issue.ID, actor.ID, from, issue.Status, now)}, nil
	})
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, actor, before, issue)
	return issue, nil
}

// Reopen sends a RESOLVED or VERIFIED issue back to OPEN with a reason.
func (s *LifecycleService) Reopen(ctx context.Context, actor *domain.User, issueID, reason string) (*domain.Issue, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	before, issue, err := s.apply(ctx, lifecycle.TransitionReopen, issueID, func(issue *domain.Issue, scope lifecycle.Scope) ([]domain.IssueHistory, error) {
		if err := lifecycle.CheckCanReopen(actor, scope); err != nil {
			return nil, err
		}
		from := issue.Status
		now := s.clock.Now()
		if err := lifecycle.Reopen(issue, reason, now); err != nil {
			return nil, err
		}
		return []domain.IssueHistory{newHistory(issue.ID, actor.ID, domain.ChangeTypeReopened,
			map[string]any{"status": from},
			map[string]any{"status": issue.Status, "reason": reason},
			now)}, nil
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.dispatcher, s.logger, events.Event{
		Type:      events.EventIssueReopened,
		IssueID:   issue.ID,
		Actor:     events.ActorOf(actor),
		Timestamp: issue.UpdatedAt,
		Payload: events.IssueStatusChangedPayload{
			OldStatus: before.Status,
			NewStatus: issue.Status,
			Reason:    reason,
		},
	})
	return issue, nil
}

func (s *LifecycleService) publishStatus(ctx context.Context, actor *domain.User, before, after *domain.Issue) {
	if before.Status == after.Status {
		return
	}
	publish(ctx, s.dispatcher, s.logger, events.Event{
		Type:      events.EventIssueStatusChanged,
		IssueID:   after.ID,
		Actor:     events.ActorOf(actor),
		Timestamp: after.UpdatedAt,
		Payload: events.IssueStatusChangedPayload{
			OldStatus: before.Status,
			NewStatus: after.Status,
		},
	})
}
