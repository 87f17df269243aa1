package events

import (
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIssueReported      EventType = "issue_reported"
	EventIssueStatusChanged EventType = "issue_status_changed"
	EventIssueAssigned      EventType = "issue_assigned"
	EventIssueReassigned    EventType = "issue_reassigned"
	EventIssueReopened      EventType = "issue_reopened"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID string          `json:"user_id"`
	Role   domain.UserRole `json:"role"`
}

// ActorOf builds the event actor for u. A nil user yields the system actor.
func ActorOf(u *domain.User) Actor {
	if u == nil {
		return Actor{UserID: "system"}
	}
	return Actor{UserID: u.ID, Role: u.Role}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	IssueID   string    `json:"issue_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// IssueReportedPayload payload.
type IssueReportedPayload struct {
	TicketNumber string               `json:"ticket_number"`
	WardID       string               `json:"ward_id"`
	Department   domain.Department    `json:"department"`
	Priority     domain.IssuePriority `json:"priority"`
	Category     string               `json:"category"`
}

// IssueStatusChangedPayload payload.
type IssueStatusChangedPayload struct {
	OldStatus domain.IssueStatus `json:"old_status"`
	NewStatus domain.IssueStatus `json:"new_status"`
	Reason    string             `json:"reason,omitempty"`
}

// IssueAssignedPayload is published on both assignment and reassignment.
// It carries enough of the issue and assignee to notify without a re-read.
type IssueAssignedPayload struct {
	TicketNumber       string               `json:"ticket_number"`
	WardID             string               `json:"ward_id"`
	Priority           domain.IssuePriority `json:"priority"`
	Status             domain.IssueStatus   `json:"status"`
	AssigneeID         string               `json:"assignee_id"`
	AssigneeName       string               `json:"assignee_name"`
	AssigneeEmail      string               `json:"assignee_email"`
	PreviousAssigneeID *string              `json:"previous_assignee_id,omitempty"`
}
