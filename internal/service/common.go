package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/lifecycle"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// Clock supplies the current time. Services never call time.Now directly.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock { return systemClock{} }

// StatsCache stores rendered statistics. Invalidate must make every
// previously stored entry unreachable.
//
// Get reports the generation it looked in, and Set stores under the
// generation it is handed. A value computed after a miss is written back
// under the generation of that miss, so an Invalidate racing the
// computation leaves the value unreachable.
type StatsCache interface {
	Get(ctx context.Context, key string, dest any) (hit bool, gen int64, err error)
	Set(ctx context.Context, gen int64, key string, value any) error
	Invalidate(ctx context.Context) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, string, any) (bool, int64, error) { return false, 0, nil }
func (noopCache) Set(context.Context, int64, string, any) error         { return nil }
func (noopCache) Invalidate(context.Context) error                      { return nil }

func cacheOrNoop(c StatsCache) StatsCache {
	if c == nil {
		return noopCache{}
	}
	return c
}

func clockOrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock()
	}
	return c
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

const defaultConflictRetries = 3

// withConflictRetry runs attempt until it succeeds, fails with anything
// other than a version conflict, or retries are exhausted.
func withConflictRetry(ctx context.Context, retries int, resource, id string, attempt func() error) error {
	if retries <= 0 {
		retries = defaultConflictRetries
	}
	for i := 0; i < retries; i++ {
		if err := ctx.Err(); err != nil {
			return apperrors.MapError(err)
		}
		err := attempt()
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
	}
	return apperrors.NewConflict(resource+" was modified concurrently", map[string]any{resource + "_id": id})
}

// mapRepoErr translates repository sentinels into domain errors.
func mapRepoErr(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	details := map[string]any{resource + "_id": id}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, details)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict(resource+" was modified concurrently", details)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(resource+" already exists", details)
	case errors.Is(err, repository.ErrInUse):
		return apperrors.NewConflict(resource+" is still referenced", details)
	}
	return apperrors.MapError(err)
}

// scopeOf resolves an issue's ward and zone from stored records.
func scopeOf(ctx context.Context, wards repository.WardRepository, wardID string) (lifecycle.Scope, error) {
	ward, err := wards.GetByID(ctx, wardID)
	if err != nil {
		return lifecycle.Scope{}, mapRepoErr(err, "ward", wardID)
	}
	return lifecycle.Scope{WardID: ward.ID, ZoneID: ward.ZoneID}, nil
}

func newHistory(issueID, actorID string, change domain.IssueChangeType, oldValue, newValue map[string]any, at time.Time) domain.IssueHistory {
	return domain.IssueHistory{
		ID:         uuid.NewString(),
		IssueID:    issueID,
		ActorID:    actorID,
		ChangeType: change,
		OldValue:   oldValue,
		NewValue:   newValue,
		CreatedAt:  at,
	}
}

func statusHistory(issueID, actorID string, from, to domain.IssueStatus, at time.Time) domain.IssueHistory {
	return newHistory(issueID, actorID, domain.ChangeTypeStatus,
		map[string]any{"status": from},
		map[string]any{"status": to},
		at)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("issue_id", event.IssueID),
			zap.Error(err))
	}
}

func assignedPayload(issue *domain.Issue, assignee *domain.User, previous *string) events.IssueAssignedPayload {
	return events.IssueAssignedPayload{
		TicketNumber:       issue.TicketNumber,
		WardID:             issue.WardID,
		Priority:           issue.Priority,
		Status:             issue.Status,
		AssigneeID:         assignee.ID,
		AssigneeName:       assignee.FullName,
		AssigneeEmail:      assignee.Email,
		PreviousAssigneeID: previous,
	}
}

func errorCode(err error) string {
	if err == nil {
		return "ok"
	}
	return apperrors.ToDomainError(err).Code
}

func requireActor(actor *domain.User) error {
	if actor == nil {
		return apperrors.NewUnauthorized("actor required")
	}
	if !actor.IsActive {
		return apperrors.NewForbidden("actor is deactivated")
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
