package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// GeoService manages zones and wards.
type GeoService struct {
	zones  repository.ZoneRepository
	wards  repository.WardRepository
	users  repository.UserRepository
	cache  StatsCache
	clock  Clock
	logger *zap.Logger
}

// GeoDependencies bundles repositories for the geo service.
type GeoDependencies struct {
	ZoneRepo repository.ZoneRepository
	WardRepo repository.WardRepository
	UserRepo repository.UserRepository
	Cache    StatsCache
	Clock    Clock
	Logger   *zap.Logger
}

// NewGeoService constructs the service.
func NewGeoService(deps GeoDependencies) *GeoService {
	return &GeoService{
		zones:  deps.ZoneRepo,
		wards:  deps.WardRepo,
		users:  deps.UserRepo,
		cache:  cacheOrNoop(deps.Cache),
		clock:  clockOrSystem(deps.Clock),
		logger: loggerOrNop(deps.Logger),
	}
}

// CreateZone adds a zone. Officers are bound afterwards with SetZoneOfficer
// since they must already reference the zone.
func (s *GeoService) CreateZone(ctx context.Context, name string) (*domain.Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("zone name required", nil)
	}
	now := s.clock.Now()
	zone := &domain.Zone{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.zones.Create(ctx, zone); err != nil {
		return nil, mapRepoErr(err, "zone", zone.ID)
	}
	return zone, nil
}

// ListZones returns every zone ordered by name.
func (s *GeoService) ListZones(ctx context.Context) ([]domain.Zone, error) {
	zones, err := s.zones.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return zones, nil
}

// GetZone fetches one zone.
func (s *GeoService) GetZone(ctx context.Context, zoneID string) (*domain.Zone, error) {
	zone, err := s.zones.GetByID(ctx, zoneID)
	if err != nil {
		return nil, mapRepoErr(err, "zone", zoneID)
	}
	return zone, nil
}

// SetZoneOfficer records officerID as the zone's officer, or clears it
// when officerID is nil. The officer must be a ZONE_OFFICER bound to the zone.
func (s *GeoService) SetZoneOfficer(ctx context.Context, zoneID string, officerID *string) (*domain.Zone, error) {
	zone, err := s.zones.GetByID(ctx, zoneID)
	if err != nil {
		return nil, mapRepoErr(err, "zone", zoneID)
	}
	if officerID != nil && *officerID != "" {
		officer, err := s.users.GetByID(ctx, *officerID)
		if err != nil {
			return nil, mapRepoErr(err, "user", *officerID)
		}
		if officer.Role != domain.RoleZoneOfficer || officer.ZoneID == nil || *officer.ZoneID != zoneID {
			return nil, apperrors.NewValidationError("officer must be a zone officer bound to this zone",
				map[string]any{"user_id": officer.ID, "zone_id": zoneID})
		}
		zone.OfficerID = ptr(officer.ID)
	} else {
		zone.OfficerID = nil
	}
	zone.UpdatedAt = s.clock.Now()
	if err := s.zones.Update(ctx, zone); err != nil {
		return nil, mapRepoErr(err, "zone", zoneID)
	}
	s.invalidate(ctx)
	return zone, nil
}

// DeleteZone removes a zone that no ward references.
func (s *GeoService) DeleteZone(ctx context.Context, zoneID string) error {
	if err := s.zones.Delete(ctx, zoneID); err != nil {
		if errors.Is(err, repository.ErrInUse) {
			return apperrors.NewConflict("zone still has wards", map[string]any{"zone_id": zoneID})
		}
		return mapRepoErr(err, "zone", zoneID)
	}
	s.invalidate(ctx)
	s.logger.Info("zone deleted", zap.String("zone_id", zoneID))
	return nil
}

// CreateWard adds a ward to zoneID. Numbers are unique within a zone.
func (s *GeoService) CreateWard(ctx context.Context, zoneID string, number int, name string) (*domain.Ward, error) {
	if number <= 0 {
		return nil, apperrors.NewValidationError("ward number must be positive", map[string]any{"number": number})
	}
	if _, err := s.zones.GetByID(ctx, zoneID); err != nil {
		return nil, mapRepoErr(err, "zone", zoneID)
	}
	now := s.clock.Now()
	ward := &domain.Ward{
		ID:        uuid.NewString(),
		Number:    number,
		Name:      strings.TrimSpace(name),
		ZoneID:    zoneID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.wards.Create(ctx, ward); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("ward number already used in zone",
				map[string]any{"zone_id": zoneID, "number": number})
		}
		return nil, mapRepoErr(err, "ward", ward.ID)
	}
	s.invalidate(ctx)
	return ward, nil
}

// ListWards returns wards of zoneID, or all wards when zoneID is empty.
func (s *GeoService) ListWards(ctx context.Context, zoneID string) ([]domain.Ward, error) {
	var (
		wards []domain.Ward
		err   error
	)
	if zoneID == "" {
		wards, err = s.wards.List(ctx)
	} else {
		if _, err := s.zones.GetByID(ctx, zoneID); err != nil {
			return nil, mapRepoErr(err, "zone", zoneID)
		}
		wards, err = s.wards.ListByZone(ctx, zoneID)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return wards, nil
}

// GetWard fetches one ward.
func (s *GeoService) GetWard(ctx context.Context, wardID string) (*domain.Ward, error) {
	ward, err := s.wards.GetByID(ctx, wardID)
	if err != nil {
		return nil, mapRepoErr(err, "ward", wardID)
	}
	return ward, nil
}

func (s *GeoService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}
