package domain

// SLAPolicy maps a priority to the number of days an issue may stay
// unresolved before it is in breach.
type SLAPolicy map[IssuePriority]int

// DefaultSLAPolicy is used when configuration does not override a priority.
func DefaultSLAPolicy() SLAPolicy {
	return SLAPolicy{
		IssuePriorityLow:      14,
		IssuePriorityMedium:   7,
		IssuePriorityHigh:     3,
		IssuePriorityCritical: 2,
	}
}

// MaxDays returns the allowed days for p and whether a limit exists.
func (p SLAPolicy) MaxDays(priority IssuePriority) (int, bool) {
	days, ok := p[priority]
	return days, ok
}
