// Package stats derives SLA verdicts and issue rollups. Nothing here is
// stored; every figure is computed from the issue slice handed in.
package stats

import (
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

const day = 24 * time.Hour

// ElapsedDays returns the whole days between from and to, never negative.
func ElapsedDays(from, to time.Time) int {
	if from.IsZero() || !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / day)
}

// IsOpen reports whether the issue still awaits resolution.
func IsOpen(issue *domain.Issue) bool {
	return !issue.Status.IsResolved()
}

// SLABreached decides whether the issue exceeded its allowed open time.
// Open issues are measured against now. Resolved issues are measured at
// their resolution instant, so the verdict no longer moves with now.
func SLABreached(issue *domain.Issue, policy domain.SLAPolicy, now time.Time) bool {
	maxDays, ok := policy.MaxDays(issue.Priority)
	if !ok {
		return false
	}
	if issue.Status.IsResolved() {
		if issue.ResolvedAt == nil {
			return false
		}
		return ElapsedDays(issue.CreatedAt, *issue.ResolvedAt) > maxDays
	}
	return ElapsedDays(issue.CreatedAt, now) > maxDays
}

// Compliance returns the share of open issues within SLA as a percentage.
// With nothing open the ward is fully compliant.
func Compliance(breachedOpen, totalOpen int) float64 {
	if totalOpen <= 0 {
		return 100
	}
	return 100 * (1 - float64(breachedOpen)/float64(totalOpen))
}
