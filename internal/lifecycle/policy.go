package lifecycle

import (
	"github.com/spec-kit/civic-issue-service/internal/domain"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// Scope locates an issue in the geographic hierarchy. It is always
// resolved from stored ward records, never from caller claims.
type Scope struct {
	WardID string
	ZoneID string
}

// CheckEligible validates that assignee may hold issue: an active field
// worker or ward engineer bound to the issue's ward, whose department, when
// both sides carry one, matches the issue's.
func CheckEligible(issue *domain.Issue, assignee *domain.User) error {
	if assignee == nil {
		return apperrors.NewIneligibleAssignee("assignee required", nil)
	}
	details := map[string]any{"user_id": assignee.ID, "issue_id": issue.ID}
	if !assignee.IsFieldStaff() {
		details["role"] = assignee.Role
		return apperrors.NewIneligibleAssignee("assignee role cannot hold issues", details)
	}
	if !assignee.IsActive {
		return apperrors.NewIneligibleAssignee("assignee is inactive", details)
	}
	if assignee.WardID == nil || *assignee.WardID != issue.WardID {
		details["issue_ward_id"] = issue.WardID
		return apperrors.NewIneligibleAssignee("assignee ward does not match issue ward", details)
	}
	if assignee.Department != nil && issue.Department != "" && *assignee.Department != issue.Department {
		details["issue_department"] = issue.Department
		return apperrors.NewIneligibleAssignee("assignee department does not match issue department", details)
	}
	return nil
}

// CoversWard reports whether actor has supervisory scope over the ward.
func CoversWard(actor *domain.User, scope Scope) bool {
	if actor == nil || !actor.IsActive {
		return false
	}
	switch actor.Role {
	case domain.RoleSuperAdmin:
		return true
	case domain.RoleZoneOfficer:
		return actor.ZoneID != nil && *actor.ZoneID == scope.ZoneID
	case domain.RoleWardEngineer:
		return actor.WardID != nil && *actor.WardID == scope.WardID
	}
	return false
}

// CoversZone reports whether actor may read or manage the whole zone.
func CoversZone(actor *domain.User, zoneID string) bool {
	if actor == nil || !actor.IsActive {
		return false
	}
	switch actor.Role {
	case domain.RoleSuperAdmin:
		return true
	case domain.RoleZoneOfficer:
		return actor.ZoneID != nil && *actor.ZoneID == zoneID
	}
	return false
}

// CheckCanAssign gates Assign.
func CheckCanAssign(actor *domain.User, scope Scope) error {
	if !CoversWard(actor, scope) {
		return apperrors.NewForbidden("actor has no scope over the issue ward")
	}
	return nil
}

// CheckCanWork gates StartProgress and Resolve: the assignee or a supervisor.
func CheckCanWork(issue *domain.Issue, actor *domain.User, scope Scope) error {
	if actor != nil && actor.IsActive && issue.IsAssignedTo(actor.ID) {
		return nil
	}
	if CoversWard(actor, scope) {
		return nil
	}
	return apperrors.NewForbidden("only the assignee or a ward supervisor may update progress")
}

// CheckCanVerify gates Verify. Ward engineers may not verify their own work.
func CheckCanVerify(issue *domain.Issue, verifier *domain.User, scope Scope) error {
	if !CoversWard(verifier, scope) {
		return apperrors.NewForbidden("verifier has no supervisory scope over the issue ward")
	}
	if verifier.Role == domain.RoleWardEngineer && issue.IsAssignedTo(verifier.ID) {
		return apperrors.NewForbidden("assignee cannot verify their own work")
	}
	return nil
}

// CheckCanReopen gates Reopen.
func CheckCanReopen(actor *domain.User, scope Scope) error {
	if !CoversWard(actor, scope) {
		return apperrors.NewForbidden("actor has no scope over the issue ward")
	}
	return nil
}

// CheckCanReassign allows super admins and the zone officer of the issue's zone.
func CheckCanReassign(actor *domain.User, scope Scope) error {
	if !CoversZone(actor, scope.ZoneID) {
		return apperrors.NewForbidden("only a super admin or the zone officer may reassign")
	}
	return nil
}
