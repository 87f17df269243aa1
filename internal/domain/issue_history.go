package domain

import "time"

// IssueChangeType captures what changed in a history entry.
type IssueChangeType string

const (
	ChangeTypeCreated    IssueChangeType = "CREATED"
	ChangeTypeStatus     IssueChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee   IssueChangeType = "ASSIGNEE_CHANGE"
	ChangeTypeReassigned IssueChangeType = "REASSIGNED"
	ChangeTypeReopened   IssueChangeType = "REOPENED"
)

// IssueHistory is an immutable, append-only audit entry.
type IssueHistory struct {
	ID         string
	IssueID    string
	ActorID    string
	ChangeType IssueChangeType
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}

// ReassignmentRecord is the audit payload for a handoff between users.
type ReassignmentRecord struct {
	IssueID    string
	FromUserID string
	ToUserID   string
	ActorID    string
	Timestamp  time.Time
}

// HistoryEntry converts the record to its stored form.
func (r ReassignmentRecord) HistoryEntry() IssueHistory {
	return IssueHistory{
		IssueID:    r.IssueID,
		ActorID:    r.ActorID,
		ChangeType: ChangeTypeReassigned,
		OldValue:   map[string]any{"assignee_id": r.FromUserID},
		NewValue:   map[string]any{"assignee_id": r.ToUserID},
		CreatedAt:  r.Timestamp,
	}
}
