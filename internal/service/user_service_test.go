package service

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

func TestRegisterValidatesBindings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	roads := domain.DepartmentRoads

	tests := []struct {
		name    string
		input   UserInput
		wantErr error
	}{
		{"engineer without department", UserInput{
			FullName: "Ravi Kumar", Email: "ravi@city.example", Password: "correct-horse",
			Role: domain.RoleWardEngineer, WardID: ptr("w1"),
		}, apperrors.ErrInvalidRoleBinding},
		{"engineer in unknown ward", UserInput{
			FullName: "Ravi Kumar", Email: "ravi@city.example", Password: "correct-horse",
			Role: domain.RoleWardEngineer, WardID: ptr("w99"), Department: &roads,
		}, apperrors.ErrNotFound},
		{"short password", UserInput{
			FullName: "Ravi Kumar", Email: "ravi@city.example", Password: "short",
			Role: domain.RoleCitizen,
		}, apperrors.ErrValidation},
		{"email taken ignoring case", UserInput{
			FullName: "Someone Else", Email: "FW1@City.Example", Password: "correct-horse",
			Role: domain.RoleCitizen,
		}, apperrors.ErrConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.users.Register(ctx, tc.input); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	created, err := f.users.Register(ctx, UserInput{
		FullName: "Ravi Kumar", Email: " Ravi@City.Example ", Password: "correct-horse",
		Role: domain.RoleWardEngineer, WardID: ptr("w2"), Department: &roads,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.Email != "ravi@city.example" || created.PasswordHash == "" || !created.IsActive {
		t.Fatalf("unexpected user %+v", created)
	}
}

func TestUpdateUserRejectsBrokenBindingAndKeepsRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	role := domain.RoleZoneOfficer
	_, err := f.users.UpdateUser(ctx, f.worker1.ID, UserPatch{Role: &role})
	if !errors.Is(err, apperrors.ErrInvalidRoleBinding) {
		t.Fatalf("expected invalid role binding, got %v", err)
	}
	violations, _ := apperrors.ToDomainError(err).Details["violations"].([]string)
	if len(violations) != 2 {
		t.Fatalf("expected every violation reported, got %v", violations)
	}

	stored, _ := f.store.Users().GetByID(ctx, f.worker1.ID)
	if stored.Role != domain.RoleFieldWorker || stored.Version != f.worker1.Version {
		t.Fatalf("record changed after rejected update: %+v", stored)
	}

	updated, err := f.users.UpdateUser(ctx, f.worker1.ID, UserPatch{Role: &role, WardID: ptr(""), ZoneID: ptr("z2")})
	if err != nil {
		t.Fatalf("valid update: %v", err)
	}
	if updated.WardID != nil || updated.ZoneID == nil || *updated.ZoneID != "z2" {
		t.Fatalf("bindings not applied: %+v", updated)
	}
}

func TestDeactivateKeepsAssignments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	issue := f.assigned(t, f.worker1)

	result, err := f.users.Deactivate(ctx, f.admin, f.worker1.ID, ptr(f.worker2.ID))
	if err != nil {
		t.Fatal(err)
	}
	if result.User.IsActive || len(result.Reassigned) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	stored, _ := f.store.Issues().GetByID(ctx, issue.ID)
	if !stored.IsAssignedTo(f.worker1.ID) {
		t.Fatal("keep policy moved the issue")
	}

	ws, err := f.stats.WardStats(ctx, f.admin, "w1")
	if err != nil {
		t.Fatal(err)
	}
	if ws.InactiveAssigneeIssues != 1 {
		t.Fatalf("expected the held issue to be flagged, got %d", ws.InactiveAssigneeIssues)
	}

	if _, err := f.lifecycle.Assign(ctx, f.admin, f.report(t, "w1", domain.IssuePriorityLow).ID, f.worker1.ID); !errors.Is(err, apperrors.ErrIneligibleAssignee) {
		t.Fatalf("inactive user accepted new work: %v", err)
	}
}

func TestDeactivateWithReassignPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, withReassignOnDeactivate)
	a := f.assigned(t, f.worker1)
	b := f.assigned(t, f.worker1)

	result, err := f.users.Deactivate(ctx, f.admin, f.worker1.ID, ptr(f.worker2.ID))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Reassigned) != 2 {
		t.Fatalf("expected two reassignments, got %d", len(result.Reassigned))
	}
	for _, id := range []string{a.ID, b.ID} {
		stored, _ := f.store.Issues().GetByID(ctx, id)
		if !stored.IsAssignedTo(f.worker2.ID) {
			t.Fatalf("issue %s not moved to successor", id)
		}
	}

	reactivated, err := f.users.Reactivate(ctx, f.worker1.ID)
	if err != nil || !reactivated.IsActive {
		t.Fatalf("reactivate: %v", err)
	}
}

func TestDeactivateRejectsBadSuccessorWithoutWriting(t *testing.T) {
	tests := []struct {
		name      string
		successor func(f *fixture) string
		prepare   func(t *testing.T, f *fixture)
		wantCode  string
	}{
		{
			name:      "unknown successor",
			successor: func(*fixture) string { return "no-such-user" },
			wantCode:  apperrors.CodeNotFound,
		},
		{
			name:      "successor is the same user",
			successor: func(f *fixture) string { return f.worker1.ID },
			wantCode:  apperrors.CodeIneligibleAssignee,
		},
		{
			name:      "successor cannot hold issues",
			successor: func(f *fixture) string { return f.citizen.ID },
			wantCode:  apperrors.CodeIneligibleAssignee,
		},
		{
			name:      "inactive successor",
			successor: func(f *fixture) string { return f.worker2.ID },
			prepare: func(t *testing.T, f *fixture) {
				if _, err := f.users.Deactivate(context.Background(), f.admin, f.worker2.ID, nil); err != nil {
					t.Fatal(err)
				}
			},
			wantCode: apperrors.CodeIneligibleAssignee,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, withReassignOnDeactivate)
			issue := f.assigned(t, f.worker1)
			if tc.prepare != nil {
				tc.prepare(t, f)
			}

			result, err := f.users.Deactivate(ctx, f.admin, f.worker1.ID, ptr(tc.successor(f)))
			if codeOf(err) != tc.wantCode || result != nil {
				t.Fatalf("expected %s, got result=%+v err=%v", tc.wantCode, result, err)
			}

			stored, err := f.store.Users().GetByID(ctx, f.worker1.ID)
			if err != nil {
				t.Fatal(err)
			}
			if !stored.IsActive {
				t.Fatal("user was deactivated although the request failed")
			}
			held, _ := f.store.Issues().GetByID(ctx, issue.ID)
			if !held.IsAssignedTo(f.worker1.ID) {
				t.Fatal("issue moved although the request failed")
			}
		})
	}
}

func TestEnsureSuperAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	input := UserInput{FullName: "Root Admin", Email: "root@city.example", Password: "bootstrap-pass"}

	created, err := f.users.EnsureSuperAdmin(ctx, input)
	if err != nil || !created {
		t.Fatalf("first bootstrap: created=%v err=%v", created, err)
	}
	created, err = f.users.EnsureSuperAdmin(ctx, input)
	if err != nil || created {
		t.Fatalf("second bootstrap: created=%v err=%v", created, err)
	}
	if created, _ := f.users.EnsureSuperAdmin(ctx, UserInput{}); created {
		t.Fatal("empty email should be skipped")
	}

	stored, err := f.store.Users().GetByEmail(ctx, "root@city.example")
	if err != nil || stored.Role != domain.RoleSuperAdmin {
		t.Fatalf("bootstrap admin missing: %v", err)
	}
}
