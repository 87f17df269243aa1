package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/lifecycle"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

func TestLifecycleHappyPathWritesHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var seen []events.EventType
	var mu sync.Mutex
	record := func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type)
		return nil
	}
	f.dispatcher.Subscribe(events.EventIssueAssigned, record)
	f.dispatcher.Subscribe(events.EventIssueStatusChanged, record)

	issue := f.assigned(t, f.worker1)
	if _, err := f.lifecycle.StartProgress(ctx, f.worker1, issue.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.attachAfter(t, issue.ID, f.worker1)
	if _, err := f.lifecycle.Resolve(ctx, f.worker1, issue.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	verified, err := f.lifecycle.Verify(ctx, f.officer, issue.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Status != domain.IssueStatusVerified || verified.VerifiedAt == nil {
		t.Fatalf("unexpected verified issue %+v", verified)
	}
	if broken := lifecycle.CheckInvariants(verified); len(broken) > 0 {
		t.Fatalf("invariants broken: %v", broken)
	}

	history, err := f.issues.History(ctx, f.admin, issue.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	// created, assign status + assignee, start, resolve, verify
	if len(history) != 6 {
		t.Fatalf("expected 6 history entries, got %d", len(history))
	}
	if history[0].ChangeType != domain.ChangeTypeCreated {
		t.Fatalf("first entry should be creation, got %s", history[0].ChangeType)
	}
	if len(seen) == 0 || seen[0] != events.EventIssueStatusChanged {
		t.Fatalf("unexpected events %v", seen)
	}
}

func TestAssignAcrossWardsIsIneligible(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issue := f.report(t, "w1", domain.IssuePriorityMedium)

	_, err := f.lifecycle.Assign(ctx, f.admin, issue.ID, f.farWorker.ID)
	if !errors.Is(err, apperrors.ErrIneligibleAssignee) {
		t.Fatalf("expected ineligible assignee, got %v", err)
	}
	stored, _ := f.store.Issues().GetByID(ctx, issue.ID)
	if stored.Status != domain.IssueStatusOpen || stored.HasAssignee() {
		t.Fatalf("issue changed after rejected assign: %+v", stored)
	}
}

func TestAssignOutsideScopeIsForbidden(t *testing.T) {
	f := newFixture(t)
	issue := f.report(t, "w3", domain.IssuePriorityMedium)
	_, err := f.lifecycle.Assign(context.Background(), f.officer, issue.ID, f.farWorker.ID)
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestResolveWithoutEvidence(t *testing.T) {
	f := newFixture(t)
	issue := f.assigned(t, f.worker1)
	_, err := f.lifecycle.Resolve(context.Background(), f.worker1, issue.ID)
	if !errors.Is(err, apperrors.ErrMissingEvidence) {
		t.Fatalf("expected missing evidence, got %v", err)
	}
}

func TestResolveByOtherWorkerIsForbidden(t *testing.T) {
	f := newFixture(t)
	issue := f.assigned(t, f.worker1)
	f.attachAfter(t, issue.ID, f.worker1)
	_, err := f.lifecycle.Resolve(context.Background(), f.worker2, issue.ID)
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestConcurrentResolveHasOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issue := f.assigned(t, f.worker1)
	f.attachAfter(t, issue.ID, f.worker1)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		others    []error
	)
	for i := 0; i < callers; i++ {
		actor := f.worker1
		if i%2 == 1 {
			actor = f.engineer
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.lifecycle.Resolve(ctx, actor, issue.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			others = append(others, err)
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful resolve, got %d", successes)
	}
	for _, err := range others {
		if !errors.Is(err, apperrors.ErrInvalidTransition) && !errors.Is(err, apperrors.ErrConflict) {
			t.Fatalf("unexpected loser error %v", err)
		}
	}
	stored, _ := f.store.Issues().GetByID(ctx, issue.ID)
	if stored.Status != domain.IssueStatusResolved {
		t.Fatalf("expected RESOLVED, got %s", stored.Status)
	}
}

func TestEngineerCannotVerifyOwnWork(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issue := f.assigned(t, f.engineer)
	f.attachAfter(t, issue.ID, f.engineer)
	if _, err := f.lifecycle.Resolve(ctx, f.engineer, issue.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.lifecycle.Verify(ctx, f.engineer, issue.ID); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.lifecycle.Verify(ctx, f.officer, issue.ID); err != nil {
		t.Fatalf("zone officer verify: %v", err)
	}
}

func TestReopenRequiresReasonAndKeepsAssignee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issue := f.assigned(t, f.worker1)
	f.attachAfter(t, issue.ID, f.worker1)
	if _, err := f.lifecycle.Resolve(ctx, f.worker1, issue.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.lifecycle.Reopen(ctx, f.officer, issue.ID, ""); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.lifecycle.Reopen(ctx, f.citizen, issue.ID, "still broken"); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("expected forbidden for citizen, got %v", err)
	}
	reopened, err := f.lifecycle.Reopen(ctx, f.officer, issue.ID, "still broken")
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Status != domain.IssueStatusOpen || reopened.ResolvedAt != nil || !reopened.IsAssignedTo(f.worker1.ID) {
		t.Fatalf("unexpected reopened issue %+v", reopened)
	}
}

func TestResolveAfterReopenNeedsFreshEvidence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issue := f.assigned(t, f.worker1)
	f.attachAfter(t, issue.ID, f.worker1)
	f.clock.advance(time.Minute)
	if _, err := f.lifecycle.Resolve(ctx, f.worker1, issue.ID); err != nil {
		t.Fatal(err)
	}

	f.clock.advance(time.Hour)
	if _, err := f.lifecycle.Reopen(ctx, f.officer, issue.ID, "pothole is back"); err != nil {
		t.Fatal(err)
	}
	f.clock.advance(time.Minute)
	if _, err := f.lifecycle.Assign(ctx, f.admin, issue.ID, f.worker1.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.lifecycle.Resolve(ctx, f.worker1, issue.ID); !errors.Is(err, apperrors.ErrMissingEvidence) {
		t.Fatalf("evidence from before the reopen was accepted: %v", err)
	}
	stored, _ := f.store.Issues().GetByID(ctx, issue.ID)
	if stored.Status != domain.IssueStatusAssigned {
		t.Fatalf("failed resolve changed status to %s", stored.Status)
	}

	f.clock.advance(time.Minute)
	f.attachAfter(t, issue.ID, f.worker1)
	resolved, err := f.lifecycle.Resolve(ctx, f.worker1, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Status != domain.IssueStatusResolved {
		t.Fatalf("unexpected status %s", resolved.Status)
	}
}

func TestTransitionsInvalidateStatsCache(t *testing.T) {
	f := newFixture(t)
	before := f.cache.invalidations
	f.assigned(t, f.worker1)
	if f.cache.invalidations <= before {
		t.Fatal("assignment did not invalidate the stats cache")
	}
}
