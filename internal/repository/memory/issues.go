package memory

import (
	"context"
	"sort"
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/repository"
)

type issueRepo struct{ s *Store }

func (r issueRepo) Create(_ context.Context, issue *domain.Issue, history ...domain.IssueHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.issues[issue.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range r.s.issues {
		if existing.TicketNumber == issue.TicketNumber {
			return repository.ErrDuplicate
		}
	}
	r.s.issues[issue.ID] = issue.Clone()
	r.s.history = append(r.s.history, history...)
	return nil
}

// Update is the compare-and-swap: the version check and the write happen
// under one lock.
func (r issueRepo) Update(_ context.Context, issue *domain.Issue, expectedVersion int64, history ...domain.IssueHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.issues[issue.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	stored := issue.Clone()
	stored.Version = expectedVersion + 1
	r.s.issues[issue.ID] = stored
	r.s.history = append(r.s.history, history...)
	issue.Version = stored.Version
	return nil
}

func (r issueRepo) GetByID(_ context.Context, id string) (*domain.Issue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	issue, ok := r.s.issues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return issue.Clone(), nil
}

func (r issueRepo) GetByTicketNumber(_ context.Context, ticketNumber string) (*domain.Issue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, issue := range r.s.issues {
		if issue.TicketNumber == ticketNumber {
			return issue.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r issueRepo) List(_ context.Context, filter repository.IssueFilter) ([]domain.Issue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Issue{}
	for _, issue := range r.s.issues {
		if r.matches(issue, filter) {
			out = append(out, *issue.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

// matches runs with the read lock held.
func (r issueRepo) matches(issue *domain.Issue, f repository.IssueFilter) bool {
	if f.WardID != nil && issue.WardID != *f.WardID {
		return false
	}
	if f.ZoneID != nil {
		ward, ok := r.s.wards[issue.WardID]
		if !ok || ward.ZoneID != *f.ZoneID {
			return false
		}
	}
	if f.AssigneeID != nil && !issue.IsAssignedTo(*f.AssigneeID) {
		return false
	}
	if f.ReporterID != nil && issue.ReporterID != *f.ReporterID {
		return false
	}
	if f.Department != nil && issue.Department != *f.Department {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, issue.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, issue.Priority) {
		return false
	}
	return true
}

type historyRepo struct{ s *Store }

func (r historyRepo) ListByIssue(_ context.Context, issueID string, limit, offset int) ([]domain.IssueHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	out := []domain.IssueHistory{}
	for _, h := range r.s.history {
		if h.IssueID == issueID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, limit, offset), nil
}

func (r historyRepo) LastOfType(_ context.Context, issueID string, changeType domain.IssueChangeType) (*domain.IssueHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var last *domain.IssueHistory
	for i := range r.s.history {
		h := r.s.history[i]
		if h.IssueID != issueID || h.ChangeType != changeType {
			continue
		}
		if last == nil || !h.CreatedAt.Before(last.CreatedAt) {
			last = &h
		}
	}
	if last == nil {
		return nil, repository.ErrNotFound
	}
	return last, nil
}

func (r historyRepo) ListByActor(_ context.Context, actorID string, limit int) ([]domain.IssueHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	out := []domain.IssueHistory{}
	for _, h := range r.s.history {
		if h.ActorID == actorID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, limit, 0), nil
}

type evidenceRepo struct{ s *Store }

func (r evidenceRepo) Create(_ context.Context, evidence *domain.Evidence) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.evidence = append(r.s.evidence, *evidence)
	return nil
}

func (r evidenceRepo) ListByIssue(_ context.Context, issueID string) ([]domain.Evidence, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Evidence{}
	for _, ev := range r.s.evidence {
		if ev.IssueID == issueID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r evidenceRepo) HasKindSince(_ context.Context, issueID string, kind domain.EvidenceKind, since time.Time) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, ev := range r.s.evidence {
		if ev.IssueID == issueID && ev.Kind == kind && ev.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}
