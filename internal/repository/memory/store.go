// Package memory is an in-process implementation of the repository
// interfaces. It backs the service when no database is configured and is
// used throughout the tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/repository"
)

// Store holds every record behind one lock so each call sees a single
// consistent state.
type Store struct {
	mu       sync.RWMutex
	zones    map[string]domain.Zone
	wards    map[string]domain.Ward
	users    map[string]domain.User
	issues   map[string]*domain.Issue
	history  []domain.IssueHistory
	evidence []domain.Evidence
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		zones:  make(map[string]domain.Zone),
		wards:  make(map[string]domain.Ward),
		users:  make(map[string]domain.User),
		issues: make(map[string]*domain.Issue),
	}
}

// Zones returns the zone repository view.
func (s *Store) Zones() repository.ZoneRepository { return zoneRepo{s} }

// Wards returns the ward repository view.
func (s *Store) Wards() repository.WardRepository { return wardRepo{s} }

// Users returns the user repository view.
func (s *Store) Users() repository.UserRepository { return userRepo{s} }

// Issues returns the issue repository view.
func (s *Store) Issues() repository.IssueRepository { return issueRepo{s} }

// History returns the audit trail view.
func (s *Store) History() repository.IssueHistoryRepository { return historyRepo{s} }

// Evidence returns the media reference view.
func (s *Store) Evidence() repository.EvidenceRepository { return evidenceRepo{s} }

type zoneRepo struct{ s *Store }

func (r zoneRepo) Create(_ context.Context, zone *domain.Zone) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.zones[zone.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.zones[zone.ID] = cloneZone(*zone)
	return nil
}

func (r zoneRepo) Update(_ context.Context, zone *domain.Zone) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.zones[zone.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.zones[zone.ID] = cloneZone(*zone)
	return nil
}

func (r zoneRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.zones[id]; !ok {
		return repository.ErrNotFound
	}
	for _, w := range r.s.wards {
		if w.ZoneID == id {
			return repository.ErrInUse
		}
	}
	delete(r.s.zones, id)
	return nil
}

func (r zoneRepo) GetByID(_ context.Context, id string) (*domain.Zone, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	zone, ok := r.s.zones[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	zone = cloneZone(zone)
	return &zone, nil
}

func (r zoneRepo) List(_ context.Context) ([]domain.Zone, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Zone, 0, len(r.s.zones))
	for _, z := range r.s.zones {
		out = append(out, cloneZone(z))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func cloneZone(z domain.Zone) domain.Zone {
	if z.OfficerID != nil {
		id := *z.OfficerID
		z.OfficerID = &id
	}
	return z
}

type wardRepo struct{ s *Store }

func (r wardRepo) Create(_ context.Context, ward *domain.Ward) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.wards[ward.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, w := range r.s.wards {
		if w.ZoneID == ward.ZoneID && w.Number == ward.Number {
			return repository.ErrDuplicate
		}
	}
	r.s.wards[ward.ID] = *ward
	return nil
}

func (r wardRepo) GetByID(_ context.Context, id string) (*domain.Ward, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ward, ok := r.s.wards[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ward, nil
}

func (r wardRepo) ListByZone(_ context.Context, zoneID string) ([]domain.Ward, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Ward{}
	for _, w := range r.s.wards {
		if w.ZoneID == zoneID {
			out = append(out, w)
		}
	}
	sortWards(out)
	return out, nil
}

func (r wardRepo) List(_ context.Context) ([]domain.Ward, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Ward, 0, len(r.s.wards))
	for _, w := range r.s.wards {
		out = append(out, w)
	}
	sortWards(out)
	return out, nil
}

func sortWards(wards []domain.Ward) {
	sort.Slice(wards, func(i, j int) bool {
		if wards[i].ZoneID != wards[j].ZoneID {
			return wards[i].ZoneID < wards[j].ZoneID
		}
		return wards[i].Number < wards[j].Number
	})
}
