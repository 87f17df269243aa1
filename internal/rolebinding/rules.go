// Package rolebinding enforces which ward, zone and department bindings a
// user may carry for its role.
package rolebinding

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// Field names a binding attribute of a user.
type Field string

const (
	FieldDepartment Field = "department"
	FieldWardID     Field = "wardId"
	FieldZoneID     Field = "zoneId"
)

// Rule lists binding fields a role must and must not carry.
type Rule struct {
	Required  []Field
	Forbidden []Field
}

// Rules is the binding table. Roles absent from it carry no constraints.
var Rules = map[domain.UserRole]Rule{
	domain.RoleWardEngineer: {
		Required:  []Field{FieldDepartment, FieldWardID},
		Forbidden: []Field{FieldZoneID},
	},
	domain.RoleFieldWorker: {
		Required:  []Field{FieldWardID},
		Forbidden: []Field{FieldDepartment, FieldZoneID},
	},
	domain.RoleZoneOfficer: {
		Required:  []Field{FieldZoneID},
		Forbidden: []Field{FieldWardID, FieldDepartment},
	},
}

var phonePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

func present(u *domain.User, f Field) bool {
	switch f {
	case FieldDepartment:
		return u.Department != nil && *u.Department != ""
	case FieldWardID:
		return u.WardID != nil && *u.WardID != ""
	case FieldZoneID:
		return u.ZoneID != nil && *u.ZoneID != ""
	}
	return false
}

// BindingViolations evaluates the rule table for u's role.
func BindingViolations(u *domain.User) []string {
	rule, ok := Rules[u.Role]
	if !ok {
		return nil
	}
	var violations []string
	for _, f := range rule.Required {
		if !present(u, f) {
			violations = append(violations, fmt.Sprintf("%s requires %s", u.Role, f))
		}
	}
	for _, f := range rule.Forbidden {
		if present(u, f) {
			violations = append(violations, fmt.Sprintf("%s must not have %s", u.Role, f))
		}
	}
	return violations
}

// DraftViolations checks the non-binding attributes of a user draft.
func DraftViolations(u *domain.User) []string {
	var violations []string
	if n := utf8.RuneCountInString(strings.TrimSpace(u.FullName)); n < 2 || n > 100 {
		violations = append(violations, "fullName must be between 2 and 100 characters")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil || strings.TrimSpace(u.Email) == "" {
		violations = append(violations, "email is invalid")
	}
	if u.PhoneNumber != "" && !phonePattern.MatchString(u.PhoneNumber) {
		violations = append(violations, "phoneNumber is invalid")
	}
	if !u.Role.Valid() {
		violations = append(violations, fmt.Sprintf("role %q is unknown", u.Role))
	}
	if u.Department != nil && *u.Department != "" && !u.Department.Valid() {
		violations = append(violations, fmt.Sprintf("department %q is unknown", *u.Department))
	}
	return violations
}

// Validate returns InvalidRoleBinding naming every violated rule, or nil.
func Validate(u *domain.User) error {
	if u == nil {
		return apperrors.NewInvalidRoleBinding([]string{"user is required"})
	}
	violations := append(DraftViolations(u), BindingViolations(u)...)
	if len(violations) > 0 {
		return apperrors.NewInvalidRoleBinding(violations)
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
