package memory

import (
	"context"
	"sort"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/repository"
)

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	r.s.users[user.ID] = cloneUser(*user)
	return nil
}

func (r userRepo) Update(_ context.Context, user *domain.User, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	for _, u := range r.s.users {
		if u.ID != user.ID && u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	stored := cloneUser(*user)
	stored.Version = expectedVersion + 1
	r.s.users[user.ID] = stored
	user.Version = stored.Version
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneUser(u)
	return &out, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) List(_ context.Context, filter repository.UserFilter) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.User{}
	for _, u := range r.s.users {
		if matchUser(u, filter) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func matchUser(u domain.User, f repository.UserFilter) bool {
	if f.Role != nil && u.Role != *f.Role {
		return false
	}
	if len(f.Roles) > 0 && !contains(f.Roles, u.Role) {
		return false
	}
	if f.WardID != nil && !eqPtr(u.WardID, *f.WardID) {
		return false
	}
	if len(f.WardIDs) > 0 && (u.WardID == nil || !contains(f.WardIDs, *u.WardID)) {
		return false
	}
	if f.ZoneID != nil && !eqPtr(u.ZoneID, *f.ZoneID) {
		return false
	}
	if f.Department != nil && (u.Department == nil || *u.Department != *f.Department) {
		return false
	}
	if f.Active != nil && u.IsActive != *f.Active {
		return false
	}
	if len(f.IDs) > 0 && !contains(f.IDs, u.ID) {
		return false
	}
	return true
}

func cloneUser(u domain.User) domain.User {
	if u.Department != nil {
		d := *u.Department
		u.Department = &d
	}
	if u.WardID != nil {
		w := *u.WardID
		u.WardID = &w
	}
	if u.ZoneID != nil {
		z := *u.ZoneID
		u.ZoneID = &z
	}
	return u
}

func eqPtr(p *string, v string) bool {
	return p != nil && *p == v
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
