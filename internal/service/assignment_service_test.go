package service

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

func TestReassignPreservesStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issue := f.assigned(t, f.worker1)
	if _, err := f.lifecycle.StartProgress(ctx, f.worker1, issue.ID); err != nil {
		t.Fatal(err)
	}

	moved, err := f.assignments.Reassign(ctx, f.officer, issue.ID, f.worker1.ID, f.worker2.ID)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if moved.Status != domain.IssueStatusInProgress || !moved.IsAssignedTo(f.worker2.ID) {
		t.Fatalf("unexpected issue after reassign %+v", moved)
	}

	history, _ := f.issues.History(ctx, f.admin, issue.ID, 0, 0)
	last := history[len(history)-1]
	if last.ChangeType != domain.ChangeTypeReassigned || last.ActorID != f.officer.ID {
		t.Fatalf("unexpected last history entry %+v", last)
	}
}

func TestReassignErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issue := f.assigned(t, f.worker1)

	tests := []struct {
		name    string
		actor   *domain.User
		from    string
		to      string
		wantErr error
	}{
		{"engineer may not reassign", f.engineer, f.worker1.ID, f.worker2.ID, apperrors.ErrForbidden},
		{"source is not the assignee", f.officer, f.worker2.ID, f.engineer.ID, apperrors.ErrNotCurrentAssignee},
		{"target in another ward", f.officer, f.worker1.ID, f.farWorker.ID, apperrors.ErrIneligibleAssignee},
		{"unknown target", f.officer, f.worker1.ID, "ghost", apperrors.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.assignments.Reassign(ctx, tc.actor, issue.ID, tc.from, tc.to)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			stored, _ := f.store.Issues().GetByID(ctx, issue.ID)
			if !stored.IsAssignedTo(f.worker1.ID) {
				t.Fatal("assignee changed on failed reassign")
			}
		})
	}
}

func TestBulkReassignResultsAreIndependent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.assigned(t, f.worker1)
	second := f.assigned(t, f.worker1)
	foreign := f.assigned(t, f.worker2)

	ids := []string{first.ID, foreign.ID, "missing", second.ID}
	results, err := f.assignments.BulkReassign(ctx, f.officer, f.worker1.ID, f.worker2.ID, ids)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if len(results) != len(ids) {
		t.Fatalf("expected %d results, got %d", len(ids), len(results))
	}

	want := []struct {
		success bool
		code    string
	}{
		{true, ""},
		{false, apperrors.CodeNotCurrentAssignee},
		{false, apperrors.CodeNotFound},
		{true, ""},
	}
	for i, w := range want {
		r := results[i]
		if r.IssueID != ids[i] {
			t.Fatalf("result %d is for %s, want %s", i, r.IssueID, ids[i])
		}
		if r.Success != w.success {
			t.Fatalf("result %d success = %v, want %v", i, r.Success, w.success)
		}
		if !w.success && (r.Error == nil || r.Error.Code != w.code) {
			t.Fatalf("result %d error = %+v, want %s", i, r.Error, w.code)
		}
	}

	for _, id := range []string{first.ID, second.ID, foreign.ID} {
		stored, _ := f.store.Issues().GetByID(ctx, id)
		if !stored.IsAssignedTo(f.worker2.ID) {
			t.Fatalf("issue %s not held by %s", id, f.worker2.ID)
		}
	}
}

func TestBulkReassignEverythingHeld(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.assigned(t, f.worker1)
	f.assigned(t, f.worker1)

	results, err := f.assignments.BulkReassign(ctx, f.admin, f.worker1.ID, f.engineer.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Success {
			t.Fatalf("unexpected failure %+v", r.Error)
		}
	}
}

func TestAutoAssignPicksLeastLoaded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.assigned(t, f.worker1)

	first := f.report(t, "w1", domain.IssuePriorityLow)
	got, err := f.assignments.AutoAssign(ctx, f.engineer, first.ID)
	if err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	// engineer and worker2 both carry nothing; the engineer's account is older
	if !got.IsAssignedTo(f.engineer.ID) {
		t.Fatalf("expected %s, got %v", f.engineer.ID, *got.AssigneeID)
	}

	second := f.report(t, "w1", domain.IssuePriorityLow)
	got, err = f.assignments.AutoAssign(ctx, f.engineer, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsAssignedTo(f.worker2.ID) {
		t.Fatalf("expected %s, got %v", f.worker2.ID, *got.AssigneeID)
	}
}

func TestAutoAssignWithoutCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issue := f.report(t, "w2", domain.IssuePriorityLow)
	if _, err := f.assignments.AutoAssign(ctx, f.officer, issue.ID); !errors.Is(err, apperrors.ErrIneligibleAssignee) {
		t.Fatalf("expected ineligible assignee, got %v", err)
	}
}
