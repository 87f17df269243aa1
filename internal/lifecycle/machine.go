// Package lifecycle holds the issue state machine and the eligibility and
// scope rules that gate each transition. Functions here are pure: they
// mutate the issue passed in and never touch storage.
package lifecycle

import (
	"strings"
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// Transition names a lifecycle operation.
type Transition string

const (
	TransitionAssign   Transition = "assign"
	TransitionStart    Transition = "start_progress"
	TransitionResolve  Transition = "resolve"
	TransitionVerify   Transition = "verify"
	TransitionReopen   Transition = "reopen"
	TransitionReassign Transition = "reassign"
)

var allowedFrom = map[Transition][]domain.IssueStatus{
	TransitionAssign:   {domain.IssueStatusOpen},
	TransitionStart:    {domain.IssueStatusAssigned},
	TransitionResolve:  {domain.IssueStatusAssigned, domain.IssueStatusInProgress},
	TransitionVerify:   {domain.IssueStatusResolved},
	TransitionReopen:   {domain.IssueStatusResolved, domain.IssueStatusVerified},
	TransitionReassign: {domain.IssueStatusOpen, domain.IssueStatusAssigned, domain.IssueStatusInProgress, domain.IssueStatusResolved},
}

// CanApply reports whether t is legal from status.
func CanApply(status domain.IssueStatus, t Transition) bool {
	for _, candidate := range allowedFrom[t] {
		if candidate == status {
			return true
		}
	}
	return false
}

func guard(issue *domain.Issue, t Transition) error {
	if !CanApply(issue.Status, t) {
		return apperrors.NewInvalidTransition(string(issue.Status), string(t))
	}
	return nil
}

// Assign binds an OPEN issue to an eligible field user.
func Assign(issue *domain.Issue, assignee *domain.User, now time.Time) error {
	if err := guard(issue, TransitionAssign); err != nil {
		return err
	}
	if err := CheckEligible(issue, assignee); err != nil {
		return err
	}
	id := assignee.ID
	at := now
	issue.AssigneeID = &id
	issue.AssignedAt = &at
	issue.Status = domain.IssueStatusAssigned
	issue.UpdatedAt = now
	return nil
}

// StartProgress moves an ASSIGNED issue into IN_PROGRESS.
func StartProgress(issue *domain.Issue, now time.Time) error {
	if err := guard(issue, TransitionStart); err != nil {
		return err
	}
	issue.Status = domain.IssueStatusInProgress
	issue.UpdatedAt = now
	return nil
}

// Resolve marks work complete. hasAfterEvidence comes from the media
// collaborator.
func Resolve(issue *domain.Issue, hasAfterEvidence bool, now time.Time) error {
	if err := guard(issue, TransitionResolve); err != nil {
		return err
	}
	if !hasAfterEvidence {
		return apperrors.NewMissingEvidence(issue.ID)
	}
	at := now
	issue.Status = domain.IssueStatusResolved
	issue.ResolvedAt = &at
	issue.UpdatedAt = now
	return nil
}

// Verify confirms a RESOLVED issue. The verifier must supervise the ward.
func Verify(issue *domain.Issue, verifier *domain.User, scope Scope, now time.Time) error {
	if err := guard(issue, TransitionVerify); err != nil {
		return err
	}
	if err := CheckCanVerify(issue, verifier, scope); err != nil {
		return err
	}
	at := now
	issue.Status = domain.IssueStatusVerified
	issue.VerifiedAt = &at
	issue.UpdatedAt = now
	return nil
}

// Reopen sends a RESOLVED or VERIFIED issue back to OPEN. The assignee is
// kept until someone assigns or reassigns it.
func Reopen(issue *domain.Issue, reason string, now time.Time) error {
	if err := guard(issue, TransitionReopen); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return apperrors.NewValidationError("reopen reason required", map[string]any{"issue_id": issue.ID})
	}
	issue.Status = domain.IssueStatusOpen
	issue.ResolvedAt = nil
	issue.VerifiedAt = nil
	issue.UpdatedAt = now
	return nil
}

// Reassign hands the issue from one user to another without touching its
// status. It returns the audit record for the handoff.
func Reassign(issue *domain.Issue, from, to *domain.User, actorID string, now time.Time) (domain.ReassignmentRecord, error) {
	if err := guard(issue, TransitionReassign); err != nil {
		return domain.ReassignmentRecord{}, err
	}
	if from == nil || !issue.IsAssignedTo(from.ID) {
		details := map[string]any{"issue_id": issue.ID}
		if issue.AssigneeID != nil {
			details["current_assignee_id"] = *issue.AssigneeID
		}
		return domain.ReassignmentRecord{}, apperrors.NewNotCurrentAssignee(details)
	}
	if to == nil {
		return domain.ReassignmentRecord{}, apperrors.NewIneligibleAssignee("target user required", nil)
	}
	if to.ID == from.ID {
		return domain.ReassignmentRecord{}, apperrors.NewIneligibleAssignee("target user already holds the issue",
			map[string]any{"user_id": to.ID})
	}
	if err := CheckEligible(issue, to); err != nil {
		return domain.ReassignmentRecord{}, err
	}
	id := to.ID
	issue.AssigneeID = &id
	issue.UpdatedAt = now
	return domain.ReassignmentRecord{
		IssueID:    issue.ID,
		FromUserID: from.ID,
		ToUserID:   to.ID,
		ActorID:    actorID,
		Timestamp:  now,
	}, nil
}

// CheckInvariants verifies that status and its timestamps agree.
func CheckInvariants(issue *domain.Issue) []string {
	var broken []string
	if !issue.Status.Valid() {
		return []string{"unknown status " + string(issue.Status)}
	}
	if issue.Status.Rank() >= domain.IssueStatusAssigned.Rank() {
		if !issue.HasAssignee() {
			broken = append(broken, "assigneeId missing")
		}
		if issue.AssignedAt == nil {
			broken = append(broken, "assignedAt missing")
		}
	}
	if issue.Status.IsResolved() && issue.ResolvedAt == nil {
		broken = append(broken, "resolvedAt missing")
	}
	if !issue.Status.IsResolved() && issue.ResolvedAt != nil {
		broken = append(broken, "resolvedAt set on unresolved issue")
	}
	if (issue.Status == domain.IssueStatusVerified) != (issue.VerifiedAt != nil) {
		broken = append(broken, "verifiedAt inconsistent with status")
	}
	return broken
}
