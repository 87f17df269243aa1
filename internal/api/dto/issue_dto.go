package dto

import (
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// ReportIssueRequest payload.
type ReportIssueRequest struct {
	Category    string               `json:"category"`
	Description string               `json:"description"`
	Priority    domain.IssuePriority `json:"priority"`
	WardID      string               `json:"wardId"`
	Department  domain.Department    `json:"department"`
}

// AssignRequest payload.
type AssignRequest struct {
	AssigneeID string `json:"assigneeId"`
}

// ReassignRequest payload.
type ReassignRequest struct {
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

// ReopenRequest payload.
type ReopenRequest struct {
	Reason string `json:"reason"`
}

// EvidenceRequest references uploaded media.
type EvidenceRequest struct {
	Kind domain.EvidenceKind `json:"kind"`
	URL  string              `json:"url"`
}

// IssueResponse view.
type IssueResponse struct {
	ID           string               `json:"id"`
	TicketNumber string               `json:"ticketNumber"`
	Category     string               `json:"category"`
	Description  string               `json:"description"`
	Priority     domain.IssuePriority `json:"priority"`
	Status       domain.IssueStatus   `json:"status"`
	WardID       string               `json:"wardId"`
	Department   domain.Department    `json:"department"`
	ReporterID   string               `json:"reporterId"`
	AssigneeID   *string              `json:"assigneeId"`
	CreatedAt    time.Time            `json:"createdAt"`
	AssignedAt   *time.Time           `json:"assignedAt"`
	ResolvedAt   *time.Time           `json:"resolvedAt"`
	VerifiedAt   *time.Time           `json:"verifiedAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
	Version      int64                `json:"version"`
	SLABreached  *bool                `json:"slaBreached,omitempty"`
	OpenDays     *int                 `json:"openDays,omitempty"`
}

// HistoryResponse view of one audit entry.
type HistoryResponse struct {
	ID         string                 `json:"id"`
	IssueID    string                 `json:"issueId"`
	ActorID    string                 `json:"actorId"`
	ChangeType domain.IssueChangeType `json:"changeType"`
	OldValue   map[string]any         `json:"oldValue"`
	NewValue   map[string]any         `json:"newValue"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// EvidenceResponse view.
type EvidenceResponse struct {
	ID         string              `json:"id"`
	IssueID    string              `json:"issueId"`
	Kind       domain.EvidenceKind `json:"kind"`
	URL        string              `json:"url"`
	UploadedBy string              `json:"uploadedBy"`
	CreatedAt  time.Time           `json:"createdAt"`
}

func NewIssueResponse(i *domain.Issue) IssueResponse {
	return IssueResponse{
		ID:           i.ID,
		TicketNumber: i.TicketNumber,
		Category:     i.Category,
		Description:  i.Description,
		Priority:     i.Priority,
		Status:       i.Status,
		WardID:       i.WardID,
		Department:   i.Department,
		ReporterID:   i.ReporterID,
		AssigneeID:   i.AssigneeID,
		CreatedAt:    i.CreatedAt,
		AssignedAt:   i.AssignedAt,
		ResolvedAt:   i.ResolvedAt,
		VerifiedAt:   i.VerifiedAt,
		UpdatedAt:    i.UpdatedAt,
		Version:      i.Version,
	}
}

func NewIssueResponses(issues []domain.Issue) []IssueResponse {
	out := make([]IssueResponse, 0, len(issues))
	for i := range issues {
		out = append(out, NewIssueResponse(&issues[i]))
	}
	return out
}

func NewHistoryResponses(entries []domain.IssueHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryResponse{
			ID:         e.ID,
			IssueID:    e.IssueID,
			ActorID:    e.ActorID,
			ChangeType: e.ChangeType,
			OldValue:   e.OldValue,
			NewValue:   e.NewValue,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}

func NewEvidenceResponse(e *domain.Evidence) EvidenceResponse {
	return EvidenceResponse{
		ID:         e.ID,
		IssueID:    e.IssueID,
		Kind:       e.Kind,
		URL:        e.URL,
		UploadedBy: e.UploadedBy,
		CreatedAt:  e.CreatedAt,
	}
}
