package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/lifecycle"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	"github.com/spec-kit/civic-issue-service/internal/stats"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// StatsService derives statistics from the stored issue set on every read.
type StatsService struct {
	issues repository.IssueRepository
	users  repository.UserRepository
	wards  repository.WardRepository
	zones  repository.ZoneRepository
	cache  StatsCache
	clock  Clock
	policy domain.SLAPolicy
	logger *zap.Logger
}

// StatsDependencies bundles collaborators for the stats service.
type StatsDependencies struct {
	IssueRepo repository.IssueRepository
	UserRepo  repository.UserRepository
	WardRepo  repository.WardRepository
	ZoneRepo  repository.ZoneRepository
	Cache     StatsCache
	Clock     Clock
	Policy    domain.SLAPolicy
	Logger    *zap.Logger
}

// NewStatsService constructs the service.
func NewStatsService(deps StatsDependencies) *StatsService {
	policy := deps.Policy
	if policy == nil {
		policy = domain.DefaultSLAPolicy()
	}
	return &StatsService{
		issues: deps.IssueRepo,
		users:  deps.UserRepo,
		wards:  deps.WardRepo,
		zones:  deps.ZoneRepo,
		cache:  cacheOrNoop(deps.Cache),
		clock:  clockOrSystem(deps.Clock),
		policy: policy,
		logger: loggerOrNop(deps.Logger),
	}
}

// IssueSLA pairs an issue with its SLA verdict as of the read.
type IssueSLA struct {
	Issue       domain.Issue
	SLABreached bool
	OpenDays    int
}

// WardDetail is the ward rollup plus the people and issues behind it.
type WardDetail struct {
	Stats     stats.WardStats
	Engineers []domain.User
	Issues    []IssueSLA
}

// cached returns the stored value for key or computes and stores it under
// the generation the miss was seen in. Cache failures only cost a
// recomputation.
func cached[T any](ctx context.Context, s *StatsService, key string, compute func() (T, error)) (T, error) {
	var out T
	hit, gen, err := s.cache.Get(ctx, key, &out)
	if err != nil {
		s.logger.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
		out, err = compute()
		return out, err
	}
	if hit {
		return out, nil
	}
	out, err = compute()
	if err != nil {
		return out, err
	}
	if err := s.cache.Set(ctx, gen, key, out); err != nil {
		s.logger.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
	return out, nil
}

func (s *StatsService) inactive(ctx context.Context) (stats.Inactive, error) {
	users, err := s.users.List(ctx, repository.UserFilter{Active: ptr(false)})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	set := make(stats.Inactive, len(users))
	for _, u := range users {
		set[u.ID] = struct{}{}
	}
	return set, nil
}

// WardStats returns the rollup of one ward.
func (s *StatsService) WardStats(ctx context.Context, actor *domain.User, wardID string) (*stats.WardStats, error) {
	ward, err := s.authorizeWard(ctx, actor, wardID)
	if err != nil {
		return nil, err
	}
	ws, err := cached(ctx, s, "ward:"+ward.ID, func() (stats.WardStats, error) {
		issues, err := s.issues.List(ctx, repository.IssueFilter{WardID: &ward.ID})
		if err != nil {
			return stats.WardStats{}, apperrors.MapError(err)
		}
		inactive, err := s.inactive(ctx)
		if err != nil {
			return stats.WardStats{}, err
		}
		return stats.ForWard(*ward, issues, s.policy, inactive, s.clock.Now()), nil
	})
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// WardDetail returns the ward rollup with its staff and per-issue SLA flags.
func (s *StatsService) WardDetail(ctx context.Context, actor *domain.User, wardID string) (*WardDetail, error) {
	ward, err := s.authorizeWard(ctx, actor, wardID)
	if err != nil {
		return nil, err
	}
	issues, err := s.issues.List(ctx, repository.IssueFilter{WardID: &ward.ID})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	inactive, err := s.inactive(ctx)
	if err != nil {
		return nil, err
	}
	staff, err := s.users.List(ctx, repository.UserFilter{
		WardID: &ward.ID,
		Roles:  []domain.UserRole{domain.RoleWardEngineer, domain.RoleFieldWorker},
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	now := s.clock.Now()
	detail := &WardDetail{
		Stats:     stats.ForWard(*ward, issues, s.policy, inactive, now),
		Engineers: staff,
		Issues:    make([]IssueSLA, 0, len(issues)),
	}
	for i := range issues {
		item := IssueSLA{Issue: issues[i], SLABreached: stats.SLABreached(&issues[i], s.policy, now)}
		if stats.IsOpen(&issues[i]) {
			item.OpenDays = stats.ElapsedDays(issues[i].CreatedAt, now)
		}
		detail.Issues = append(detail.Issues, item)
	}
	return detail, nil
}

func (s *StatsService) authorizeWard(ctx context.Context, actor *domain.User, wardID string) (*domain.Ward, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ward, err := s.wards.GetByID(ctx, wardID)
	if err != nil {
		return nil, mapRepoErr(err, "ward", wardID)
	}
	if !lifecycle.CoversWard(actor, lifecycle.Scope{WardID: ward.ID, ZoneID: ward.ZoneID}) {
		return nil, apperrors.NewForbidden("ward outside caller scope")
	}
	return ward, nil
}

// ZoneStats returns the zone rollup computed over the union of its wards'
// issues, with per-ward figures from the same snapshot.
func (s *StatsService) ZoneStats(ctx context.Context, actor *domain.User, zoneID string) (*stats.ZoneStats, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	zone, err := s.zones.GetByID(ctx, zoneID)
	if err != nil {
		return nil, mapRepoErr(err, "zone", zoneID)
	}
	if !lifecycle.CoversZone(actor, zone.ID) {
		return nil, apperrors.NewForbidden("zone outside caller scope")
	}
	zs, err := cached(ctx, s, "zone:"+zone.ID, func() (stats.ZoneStats, error) {
		wards, err := s.wards.ListByZone(ctx, zone.ID)
		if err != nil {
			return stats.ZoneStats{}, apperrors.MapError(err)
		}
		issues, err := s.issues.List(ctx, repository.IssueFilter{ZoneID: &zone.ID})
		if err != nil {
			return stats.ZoneStats{}, apperrors.MapError(err)
		}
		inactive, err := s.inactive(ctx)
		if err != nil {
			return stats.ZoneStats{}, err
		}
		return stats.ForZone(*zone, wards, issues, s.policy, inactive, s.clock.Now()), nil
	})
	if err != nil {
		return nil, err
	}
	return &zs, nil
}

// UserStats returns workload figures for userID. Users may read their own;
// supervisors may read users inside their scope.
func (s *StatsService) UserStats(ctx context.Context, actor *domain.User, userID string) (*stats.UserStats, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	target, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapRepoErr(err, "user", userID)
	}
	if err := s.authorizeUser(ctx, actor, target); err != nil {
		return nil, err
	}
	us, err := cached(ctx, s, "user:"+target.ID, func() (stats.UserStats, error) {
		issues, err := s.issues.List(ctx, repository.IssueFilter{AssigneeID: &target.ID})
		if err != nil {
			return stats.UserStats{}, apperrors.MapError(err)
		}
		return stats.ForUser(target.ID, issues), nil
	})
	if err != nil {
		return nil, err
	}
	return &us, nil
}

func (s *StatsService) authorizeUser(ctx context.Context, actor, target *domain.User) error {
	if actor.ID == target.ID || actor.Role == domain.RoleSuperAdmin {
		return nil
	}
	switch {
	case target.WardID != nil:
		scope, err := scopeOf(ctx, s.wards, *target.WardID)
		if err != nil {
			return err
		}
		if lifecycle.CoversWard(actor, scope) {
			return nil
		}
	case target.ZoneID != nil:
		if lifecycle.CoversZone(actor, *target.ZoneID) {
			return nil
		}
	}
	return apperrors.NewForbidden("user outside caller scope")
}

// Dashboard returns the system-wide rollup. Super admins only.
func (s *StatsService) Dashboard(ctx context.Context, actor *domain.User) (*stats.Dashboard, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleSuperAdmin {
		return nil, apperrors.NewForbidden("dashboard requires super admin")
	}
	d, err := cached(ctx, s, "dashboard", func() (stats.Dashboard, error) {
		zones, err := s.zones.List(ctx)
		if err != nil {
			return stats.Dashboard{}, apperrors.MapError(err)
		}
		wards, err := s.wards.List(ctx)
		if err != nil {
			return stats.Dashboard{}, apperrors.MapError(err)
		}
		issues, err := s.issues.List(ctx, repository.IssueFilter{})
		if err != nil {
			return stats.Dashboard{}, apperrors.MapError(err)
		}
		inactive, err := s.inactive(ctx)
		if err != nil {
			return stats.Dashboard{}, err
		}
		d := stats.ForDashboard(zones, wards, issues, s.policy, inactive, s.clock.Now())
		sort.SliceStable(d.Zones, func(i, j int) bool { return d.Zones[i].Name < d.Zones[j].Name })
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Summary rolls up every issue matching query inside the actor's scope.
func (s *StatsService) Summary(ctx context.Context, actor *domain.User, query IssueQuery) (*stats.Rollup, error) {
	query.Limit, query.Offset = 0, 0
	filter, err := ScopedIssueFilter(actor, query)
	if err != nil {
		return nil, err
	}
	issues, err := s.issues.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	r := stats.Summarize(issues, s.policy, s.clock.Now())
	return &r, nil
}

// Policy returns the SLA policy in force.
func (s *StatsService) Policy() domain.SLAPolicy {
	out := make(domain.SLAPolicy, len(s.policy))
	for k, v := range s.policy {
		out[k] = v
	}
	return out
}
