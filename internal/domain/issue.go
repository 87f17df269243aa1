package domain

import "time"

// IssueStatus enumerates lifecycle states for issues.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "OPEN"
	IssueStatusAssigned   IssueStatus = "ASSIGNED"
	IssueStatusInProgress IssueStatus = "IN_PROGRESS"
	IssueStatusResolved   IssueStatus = "RESOLVED"
	IssueStatusVerified   IssueStatus = "VERIFIED"
)

// IssueStatuses lists states in lifecycle order.
var IssueStatuses = []IssueStatus{
	IssueStatusOpen,
	IssueStatusAssigned,
	IssueStatusInProgress,
	IssueStatusResolved,
	IssueStatusVerified,
}

// Rank orders statuses along the lifecycle. Unknown statuses rank -1.
func (s IssueStatus) Rank() int {
	for i, known := range IssueStatuses {
		if s == known {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	return s.Rank() >= 0
}

// IsResolved reports whether work on the issue has been completed.
func (s IssueStatus) IsResolved() bool {
	return s == IssueStatusResolved || s == IssueStatusVerified
}

// IssuePriority enumerates SLA urgency.
type IssuePriority string

const (
	IssuePriorityLow      IssuePriority = "LOW"
	IssuePriorityMedium   IssuePriority = "MEDIUM"
	IssuePriorityHigh     IssuePriority = "HIGH"
	IssuePriorityCritical IssuePriority = "CRITICAL"
)

// IssuePriorities lists priorities from lowest to highest.
var IssuePriorities = []IssuePriority{
	IssuePriorityLow,
	IssuePriorityMedium,
	IssuePriorityHigh,
	IssuePriorityCritical,
}

// Valid reports whether p is a known priority.
func (p IssuePriority) Valid() bool {
	for _, known := range IssuePriorities {
		if p == known {
			return true
		}
	}
	return false
}

// Issue is the aggregate for a reported civic problem.
type Issue struct {
	ID           string
	TicketNumber string
	Category     string
	Description  string
	Priority     IssuePriority
	Status       IssueStatus
	WardID       string
	Department   Department
	ReporterID   string
	AssigneeID   *string
	CreatedAt    time.Time
	AssignedAt   *time.Time
	ResolvedAt   *time.Time
	VerifiedAt   *time.Time
	UpdatedAt    time.Time
	Version      int64
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (i *Issue) Clone() *Issue {
	if i == nil {
		return nil
	}
	out := *i
	out.AssigneeID = cloneString(i.AssigneeID)
	out.AssignedAt = cloneTime(i.AssignedAt)
	out.ResolvedAt = cloneTime(i.ResolvedAt)
	out.VerifiedAt = cloneTime(i.VerifiedAt)
	return &out
}

// HasAssignee reports whether an assignee is recorded.
func (i *Issue) HasAssignee() bool {
	return i.AssigneeID != nil && *i.AssigneeID != ""
}

// IsAssignedTo reports whether userID currently holds the issue.
func (i *Issue) IsAssignedTo(userID string) bool {
	return i.HasAssignee() && *i.AssigneeID == userID
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
