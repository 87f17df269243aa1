package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/repository"
)

func TestIssueUpdateIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	issues := NewStore().Issues()
	issue := &domain.Issue{ID: "i1", TicketNumber: "ISS-00000001", Status: domain.IssueStatusOpen, WardID: "w1"}
	if err := issues.Create(ctx, issue); err != nil {
		t.Fatal(err)
	}

	a, _ := issues.GetByID(ctx, "i1")
	b, _ := issues.GetByID(ctx, "i1")

	a.Status = domain.IssueStatusAssigned
	if err := issues.Update(ctx, a, a.Version); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if a.Version != 1 {
		t.Fatalf("version not advanced: %d", a.Version)
	}

	b.Status = domain.IssueStatusResolved
	if err := issues.Update(ctx, b, b.Version); !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	stored, _ := issues.GetByID(ctx, "i1")
	if stored.Status != domain.IssueStatusAssigned {
		t.Fatalf("stale write landed: %s", stored.Status)
	}
}

func TestIssueReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	issues := NewStore().Issues()
	_ = issues.Create(ctx, &domain.Issue{ID: "i1", TicketNumber: "T1", Status: domain.IssueStatusOpen})

	got, _ := issues.GetByID(ctx, "i1")
	got.Status = domain.IssueStatusVerified

	again, _ := issues.GetByID(ctx, "i1")
	if again.Status != domain.IssueStatusOpen {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestUserEmailUnique(t *testing.T) {
	ctx := context.Background()
	users := NewStore().Users()
	if err := users.Create(ctx, &domain.User{ID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	if err := users.Create(ctx, &domain.User{ID: "u2", Email: "a@example.com"}); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	_ = users.Create(ctx, &domain.User{ID: "u3", Email: "b@example.com"})
	u3, _ := users.GetByID(ctx, "u3")
	u3.Email = "a@example.com"
	if err := users.Update(ctx, u3, u3.Version); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected duplicate on update, got %v", err)
	}
}

func TestZoneDeleteRefusedWhileWardsExist(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.Zones().Create(ctx, &domain.Zone{ID: "z1", Name: "North"})
	_ = store.Wards().Create(ctx, &domain.Ward{ID: "w1", Number: 1, ZoneID: "z1"})

	if err := store.Zones().Delete(ctx, "z1"); !errors.Is(err, repository.ErrInUse) {
		t.Fatalf("expected in use, got %v", err)
	}
	if err := store.Wards().Create(ctx, &domain.Ward{ID: "w2", Number: 1, ZoneID: "z1"}); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected duplicate ward number, got %v", err)
	}
	if err := store.Zones().Delete(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestIssueListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.Zones().Create(ctx, &domain.Zone{ID: "z1"})
	_ = store.Zones().Create(ctx, &domain.Zone{ID: "z2"})
	_ = store.Wards().Create(ctx, &domain.Ward{ID: "w1", Number: 1, ZoneID: "z1"})
	_ = store.Wards().Create(ctx, &domain.Ward{ID: "w2", Number: 1, ZoneID: "z2"})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []domain.Issue{
		{ID: "a", TicketNumber: "A", WardID: "w1", Status: domain.IssueStatusOpen, Priority: domain.IssuePriorityLow, UpdatedAt: base},
		{ID: "b", TicketNumber: "B", WardID: "w1", Status: domain.IssueStatusResolved, Priority: domain.IssuePriorityHigh, UpdatedAt: base.Add(time.Hour)},
		{ID: "c", TicketNumber: "C", WardID: "w2", Status: domain.IssueStatusOpen, Priority: domain.IssuePriorityHigh, UpdatedAt: base.Add(2 * time.Hour)},
	}
	for i := range seed {
		if err := store.Issues().Create(ctx, &seed[i]); err != nil {
			t.Fatal(err)
		}
	}

	zone := "z1"
	tests := []struct {
		name   string
		filter repository.IssueFilter
		want   []string
	}{
		{"all newest first", repository.IssueFilter{}, []string{"c", "b", "a"}},
		{"by zone", repository.IssueFilter{ZoneID: &zone}, []string{"b", "a"}},
		{"by status", repository.IssueFilter{Statuses: []domain.IssueStatus{domain.IssueStatusOpen}}, []string{"c", "a"}},
		{"by priority paged", repository.IssueFilter{Priorities: []domain.IssuePriority{domain.IssuePriorityHigh}, Limit: 1, Offset: 1}, []string{"b"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.Issues().List(ctx, tc.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d issues, want %d", len(got), len(tc.want))
			}
			for i, id := range tc.want {
				if got[i].ID != id {
					t.Fatalf("position %d: got %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestEvidenceSinceLatestReopen(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	issue := &domain.Issue{ID: "i1", TicketNumber: "ISS-00000001", Status: domain.IssueStatusOpen, WardID: "w1"}
	if err := store.Issues().Create(ctx, issue); err != nil {
		t.Fatal(err)
	}

	if _, err := store.History().LastOfType(ctx, "i1", domain.ChangeTypeReopened); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found before any reopen, got %v", err)
	}

	for i, at := range []time.Time{base.Add(time.Hour), base.Add(3 * time.Hour)} {
		stored, _ := store.Issues().GetByID(ctx, "i1")
		entry := domain.IssueHistory{ID: string(rune('a' + i)), IssueID: "i1", ChangeType: domain.ChangeTypeReopened, CreatedAt: at}
		if err := store.Issues().Update(ctx, stored, stored.Version, entry); err != nil {
			t.Fatal(err)
		}
	}
	last, err := store.History().LastOfType(ctx, "i1", domain.ChangeTypeReopened)
	if err != nil || !last.CreatedAt.Equal(base.Add(3*time.Hour)) {
		t.Fatalf("unexpected latest reopen %+v, %v", last, err)
	}

	evidence := store.Evidence()
	if err := evidence.Create(ctx, &domain.Evidence{ID: "e1", IssueID: "i1", Kind: domain.EvidenceAfter, CreatedAt: base.Add(2 * time.Hour)}); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name  string
		kind  domain.EvidenceKind
		since time.Time
		want  bool
	}{
		{"any time", domain.EvidenceAfter, time.Time{}, true},
		{"before upload", domain.EvidenceAfter, base.Add(time.Hour), true},
		{"after upload", domain.EvidenceAfter, last.CreatedAt, false},
		{"other kind", domain.EvidenceBefore, time.Time{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := evidence.HasKindSince(ctx, "i1", tc.kind, tc.since)
			if err != nil || got != tc.want {
				t.Fatalf("HasKindSince = %v, %v; want %v", got, err, tc.want)
			}
		})
	}
}
