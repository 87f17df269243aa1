package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }

func roads() *domain.Department {
	d := domain.DepartmentRoads
	return &d
}

func newIssue() *domain.Issue {
	return &domain.Issue{
		ID:         "issue-1",
		Priority:   domain.IssuePriorityHigh,
		Status:     domain.IssueStatusOpen,
		WardID:     "w1",
		Department: domain.DepartmentRoads,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func engineer(id, ward string) *domain.User {
	return &domain.User{ID: id, Role: domain.RoleWardEngineer, WardID: strp(ward), Department: roads(), IsActive: true}
}

func worker(id, ward string) *domain.User {
	return &domain.User{ID: id, Role: domain.RoleFieldWorker, WardID: strp(ward), IsActive: true}
}

func zoneOfficer(id, zone string) *domain.User {
	return &domain.User{ID: id, Role: domain.RoleZoneOfficer, ZoneID: strp(zone), IsActive: true}
}

var scope = Scope{WardID: "w1", ZoneID: "z1"}

func assertClean(t *testing.T, issue *domain.Issue) {
	t.Helper()
	if broken := CheckInvariants(issue); len(broken) > 0 {
		t.Fatalf("invariants broken in %s: %v", issue.Status, broken)
	}
}

func TestFullLifecycleKeepsInvariants(t *testing.T) {
	issue := newIssue()
	assertClean(t, issue)

	if err := Assign(issue, worker("fw1", "w1"), now); err != nil {
		t.Fatalf("assign: %v", err)
	}
	assertClean(t, issue)

	if err := StartProgress(issue, now.Add(time.Hour)); err != nil {
		t.Fatalf("start: %v", err)
	}
	assertClean(t, issue)

	if err := Resolve(issue, true, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assertClean(t, issue)

	if err := Verify(issue, zoneOfficer("zo1", "z1"), scope, now.Add(3*time.Hour)); err != nil {
		t.Fatalf("verify: %v", err)
	}
	assertClean(t, issue)
	if issue.Status != domain.IssueStatusVerified {
		t.Fatalf("expected VERIFIED, got %s", issue.Status)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		status domain.IssueStatus
		t      Transition
		ok     bool
	}{
		{domain.IssueStatusOpen, TransitionAssign, true},
		{domain.IssueStatusAssigned, TransitionAssign, false},
		{domain.IssueStatusOpen, TransitionStart, false},
		{domain.IssueStatusAssigned, TransitionResolve, true},
		{domain.IssueStatusOpen, TransitionResolve, false},
		{domain.IssueStatusInProgress, TransitionVerify, false},
		{domain.IssueStatusVerified, TransitionReopen, true},
		{domain.IssueStatusInProgress, TransitionReopen, false},
		{domain.IssueStatusResolved, TransitionReassign, true},
		{domain.IssueStatusVerified, TransitionReassign, false},
	}
	for _, tc := range tests {
		if got := CanApply(tc.status, tc.t); got != tc.ok {
			t.Errorf("CanApply(%s, %s) = %v, want %v", tc.status, tc.t, got, tc.ok)
		}
	}
}

func TestResolveFromOpenIsInvalid(t *testing.T) {
	issue := newIssue()
	err := Resolve(issue, true, now)
	if !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if issue.Status != domain.IssueStatusOpen || issue.ResolvedAt != nil {
		t.Fatal("issue mutated by rejected transition")
	}
}

func TestResolveRequiresAfterEvidence(t *testing.T) {
	issue := newIssue()
	if err := Assign(issue, worker("fw1", "w1"), now); err != nil {
		t.Fatal(err)
	}
	if err := Resolve(issue, false, now); !errors.Is(err, apperrors.ErrMissingEvidence) {
		t.Fatalf("expected missing evidence, got %v", err)
	}
	if issue.Status != domain.IssueStatusAssigned {
		t.Fatalf("status changed to %s", issue.Status)
	}
}

func TestReopenCycle(t *testing.T) {
	issue := newIssue()
	_ = Assign(issue, worker("fw1", "w1"), now)
	_ = Resolve(issue, true, now)

	if err := Reopen(issue, "  ", now); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error for blank reason, got %v", err)
	}
	if err := Reopen(issue, "pothole is back", now.Add(time.Hour)); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	assertClean(t, issue)
	if issue.ResolvedAt != nil || issue.VerifiedAt != nil {
		t.Fatal("resolution timestamps not cleared")
	}
	if !issue.IsAssignedTo("fw1") {
		t.Fatal("reopen should keep the assignee")
	}

	if err := Assign(issue, worker("fw2", "w1"), now.Add(2*time.Hour)); err != nil {
		t.Fatalf("reassign after reopen: %v", err)
	}
	assertClean(t, issue)
}

func TestEligibility(t *testing.T) {
	inactive := worker("fw9", "w1")
	inactive.IsActive = false
	parks := domain.DepartmentParks
	wrongDept := engineer("we9", "w1")
	wrongDept.Department = &parks

	tests := []struct {
		name     string
		assignee *domain.User
		ok       bool
	}{
		{"worker in ward", worker("fw1", "w1"), true},
		{"engineer in ward", engineer("we1", "w1"), true},
		{"worker in other ward", worker("fw2", "w2"), false},
		{"inactive worker", inactive, false},
		{"department mismatch", wrongDept, false},
		{"same department other ward", engineer("we8", "w2"), false},
		{"zone officer", zoneOfficer("zo1", "z1"), false},
		{"citizen", &domain.User{ID: "c1", Role: domain.RoleCitizen, IsActive: true}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			issue := newIssue()
			err := Assign(issue, tc.assignee, now)
			if tc.ok {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, apperrors.ErrIneligibleAssignee) {
				t.Fatalf("expected ineligible assignee, got %v", err)
			}
			if issue.Status != domain.IssueStatusOpen || issue.HasAssignee() {
				t.Fatal("issue mutated by rejected assignment")
			}
		})
	}
}

func TestReassign(t *testing.T) {
	fw1 := worker("fw1", "w1")
	fw2 := worker("fw2", "w1")
	fw3 := worker("fw3", "w2")

	t.Run("preserves status and assignedAt", func(t *testing.T) {
		issue := newIssue()
		_ = Assign(issue, fw1, now)
		_ = StartProgress(issue, now)
		assignedAt := *issue.AssignedAt

		rec, err := Reassign(issue, fw1, fw2, "zo1", now.Add(time.Hour))
		if err != nil {
			t.Fatalf("reassign: %v", err)
		}
		if issue.Status != domain.IssueStatusInProgress {
			t.Fatalf("status changed to %s", issue.Status)
		}
		if !issue.IsAssignedTo("fw2") || !issue.AssignedAt.Equal(assignedAt) {
			t.Fatal("assignee or assignedAt wrong after reassign")
		}
		if rec.FromUserID != "fw1" || rec.ToUserID != "fw2" || rec.ActorID != "zo1" {
			t.Fatalf("unexpected record %+v", rec)
		}
		entry := rec.HistoryEntry()
		if entry.ChangeType != domain.ChangeTypeReassigned {
			t.Fatalf("unexpected change type %s", entry.ChangeType)
		}
	})

	t.Run("verified issue cannot be reassigned", func(t *testing.T) {
		issue := newIssue()
		_ = Assign(issue, fw1, now)
		_ = Resolve(issue, true, now)
		_ = Verify(issue, zoneOfficer("zo1", "z1"), scope, now)
		if _, err := Reassign(issue, fw1, fw2, "zo1", now); !errors.Is(err, apperrors.ErrInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
	})

	t.Run("source must hold the issue", func(t *testing.T) {
		issue := newIssue()
		_ = Assign(issue, fw1, now)
		if _, err := Reassign(issue, fw2, fw1, "zo1", now); !errors.Is(err, apperrors.ErrNotCurrentAssignee) {
			t.Fatalf("expected not current assignee, got %v", err)
		}
	})

	t.Run("target must be eligible", func(t *testing.T) {
		issue := newIssue()
		_ = Assign(issue, fw1, now)
		if _, err := Reassign(issue, fw1, fw3, "zo1", now); !errors.Is(err, apperrors.ErrIneligibleAssignee) {
			t.Fatalf("expected ineligible assignee, got %v", err)
		}
		if !issue.IsAssignedTo("fw1") {
			t.Fatal("assignee changed on rejected reassign")
		}
	})

	t.Run("same user is rejected", func(t *testing.T) {
		issue := newIssue()
		_ = Assign(issue, fw1, now)
		if _, err := Reassign(issue, fw1, fw1, "zo1", now); !errors.Is(err, apperrors.ErrIneligibleAssignee) {
			t.Fatalf("expected ineligible assignee, got %v", err)
		}
	})
}

func TestScopeChecks(t *testing.T) {
	we := engineer("we1", "w1")
	otherZO := zoneOfficer("zo2", "z2")
	admin := &domain.User{ID: "sa", Role: domain.RoleSuperAdmin, IsActive: true}

	if err := CheckCanAssign(we, scope); err != nil {
		t.Fatalf("engineer should cover own ward: %v", err)
	}
	if err := CheckCanAssign(otherZO, scope); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("expected forbidden for other zone, got %v", err)
	}
	if err := CheckCanReassign(we, scope); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("engineer must not reassign, got %v", err)
	}
	if err := CheckCanReassign(admin, scope); err != nil {
		t.Fatalf("admin reassign: %v", err)
	}

	issue := newIssue()
	_ = Assign(issue, we, now)
	_ = Resolve(issue, true, now)
	if err := Verify(issue, we, scope, now); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("engineer verified own work: %v", err)
	}
	if err := CheckCanWork(issue, worker("fw7", "w1"), scope); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("unassigned worker allowed to work: %v", err)
	}
}
