package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/config"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/repository/memory"
)

var fixedNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

// fixedClock stands still unless a test advances it.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mapCache is a StatsCache held in process memory. entries holds the
// current generation only; writes for an older generation are dropped.
type mapCache struct {
	mu            sync.Mutex
	gen           int64
	entries       map[string][]byte
	invalidations int
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false, c.gen, nil
	}
	return true, c.gen, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, gen int64, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil
	}
	c.entries[key] = raw
	return nil
}

func (c *mapCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string][]byte{}
	c.gen++
	c.invalidations++
	return nil
}

type fixture struct {
	store       *memory.Store
	dispatcher  events.Dispatcher
	cache       *mapCache
	clock       *fixedClock
	lifecycle   *LifecycleService
	assignments *AssignmentService
	users       *UserService
	issues      *IssueService
	stats       *StatsService
	geo         *GeoService
	auth        *AuthService

	admin, officer, engineer, worker1, worker2, farWorker, citizen *domain.User
}

type fixtureOption func(*config.PolicyConfig)

func withReassignOnDeactivate(p *config.PolicyConfig) { p.Deactivation = config.DeactivationReassign }

// newFixture seeds two zones: z1 with wards w1 and w2, z2 with ward w3.
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()
	policy := config.PolicyConfig{Deactivation: config.DeactivationKeep, ConflictRetries: 3, BulkReassignLimit: 4}
	for _, opt := range opts {
		opt(&policy)
	}

	store := memory.NewStore()
	clock := &fixedClock{now: fixedNow}
	dispatcher := events.NewInMemoryDispatcher()
	cache := newMapCache()
	logger := zap.NewNop()

	f := &fixture{store: store, dispatcher: dispatcher, cache: cache, clock: clock}
	f.lifecycle = NewLifecycleService(LifecycleDependencies{
		IssueRepo:       store.Issues(),
		UserRepo:        store.Users(),
		WardRepo:        store.Wards(),
		EvidenceRepo:    store.Evidence(),
		HistoryRepo:     store.History(),
		Dispatcher:      dispatcher,
		Cache:           cache,
		Clock:           clock,
		Logger:          logger,
		ConflictRetries: policy.ConflictRetries,
	})
	f.assignments = NewAssignmentService(AssignmentDependencies{
		Lifecycle:  f.lifecycle,
		IssueRepo:  store.Issues(),
		UserRepo:   store.Users(),
		WardRepo:   store.Wards(),
		Dispatcher: dispatcher,
		Logger:     logger,
		BulkLimit:  policy.BulkReassignLimit,
	})
	f.users = NewUserService(UserDependencies{
		UserRepo:        store.Users(),
		WardRepo:        store.Wards(),
		ZoneRepo:        store.Zones(),
		Assignments:     f.assignments,
		Cache:           cache,
		Clock:           clock,
		Logger:          logger,
		BcryptCost:      4,
		Deactivation:    policy.Deactivation,
		ConflictRetries: policy.ConflictRetries,
	})
	f.issues = NewIssueService(IssueDependencies{
		IssueRepo:    store.Issues(),
		HistoryRepo:  store.History(),
		EvidenceRepo: store.Evidence(),
		WardRepo:     store.Wards(),
		Dispatcher:   dispatcher,
		Cache:        cache,
		Clock:        clock,
		Logger:       logger,
	})
	f.stats = NewStatsService(StatsDependencies{
		IssueRepo: store.Issues(),
		UserRepo:  store.Users(),
		WardRepo:  store.Wards(),
		ZoneRepo:  store.Zones(),
		Cache:     cache,
		Clock:     clock,
		Logger:    logger,
	})
	f.geo = NewGeoService(GeoDependencies{
		ZoneRepo: store.Zones(),
		WardRepo: store.Wards(),
		UserRepo: store.Users(),
		Cache:    cache,
		Clock:    clock,
		Logger:   logger,
	})
	f.auth = NewAuthService(config.AuthConfig{JWTSecret: "test-secret-value", AccessTokenTTLMinutes: 60, BcryptCost: 4},
		AuthDependencies{UserRepo: store.Users(), UserService: f.users, Logger: logger})

	for _, z := range []domain.Zone{{ID: "z1", Name: "North"}, {ID: "z2", Name: "South"}} {
		zone := z
		if err := store.Zones().Create(ctx, &zone); err != nil {
			t.Fatal(err)
		}
	}
	for _, w := range []domain.Ward{
		{ID: "w1", Number: 1, Name: "Market", ZoneID: "z1"},
		{ID: "w2", Number: 2, Name: "Harbour", ZoneID: "z1"},
		{ID: "w3", Number: 1, Name: "Hills", ZoneID: "z2"},
	} {
		ward := w
		if err := store.Wards().Create(ctx, &ward); err != nil {
			t.Fatal(err)
		}
	}

	roads := domain.DepartmentRoads
	seq := 0
	seed := func(id string, role domain.UserRole, ward, zone *string, dept *domain.Department) *domain.User {
		seq++
		u := &domain.User{
			ID:          id,
			FullName:    "User " + id,
			Email:       id + "@city.example",
			PhoneNumber: "9876543210",
			Role:        role,
			WardID:      ward,
			ZoneID:      zone,
			Department:  dept,
			IsActive:    true,
			Version:     1,
			CreatedAt:   fixedNow.Add(time.Duration(seq) * time.Minute),
			UpdatedAt:   fixedNow,
		}
		if err := store.Users().Create(ctx, u); err != nil {
			t.Fatal(err)
		}
		return u
	}
	f.admin = seed("admin", domain.RoleSuperAdmin, nil, nil, nil)
	f.officer = seed("zo1", domain.RoleZoneOfficer, nil, ptr("z1"), nil)
	f.engineer = seed("we1", domain.RoleWardEngineer, ptr("w1"), nil, &roads)
	f.worker1 = seed("fw1", domain.RoleFieldWorker, ptr("w1"), nil, nil)
	f.worker2 = seed("fw2", domain.RoleFieldWorker, ptr("w1"), nil, nil)
	f.farWorker = seed("fw3", domain.RoleFieldWorker, ptr("w3"), nil, nil)
	f.citizen = seed("cit", domain.RoleCitizen, nil, nil, nil)
	return f
}

func (f *fixture) report(t *testing.T, wardID string, priority domain.IssuePriority) *domain.Issue {
	t.Helper()
	issue, err := f.issues.Report(context.Background(), f.citizen, ReportInput{
		Category:    "pothole",
		Description: "deep pothole near the bus stop",
		Priority:    priority,
		WardID:      wardID,
		Department:  domain.DepartmentRoads,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	return issue
}

func (f *fixture) assigned(t *testing.T, assignee *domain.User) *domain.Issue {
	t.Helper()
	ward := *assignee.WardID
	issue := f.report(t, ward, domain.IssuePriorityHigh)
	out, err := f.lifecycle.Assign(context.Background(), f.admin, issue.ID, assignee.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	return out
}

func (f *fixture) attachAfter(t *testing.T, issueID string, actor *domain.User) {
	t.Helper()
	if _, err := f.issues.AttachEvidence(context.Background(), actor, issueID, domain.EvidenceAfter, "https://media.example/after.jpg"); err != nil {
		t.Fatalf("attach evidence: %v", err)
	}
}
