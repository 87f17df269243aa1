package stats

import (
	"sort"
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// StatusCounts tallies issues by lifecycle state.
type StatusCounts struct {
	Open       int `json:"open"`
	Assigned   int `json:"assigned"`
	InProgress int `json:"inProgress"`
	Resolved   int `json:"resolved"`
	Verified   int `json:"verified"`
}

func (c *StatusCounts) add(status domain.IssueStatus) {
	switch status {
	case domain.IssueStatusOpen:
		c.Open++
	case domain.IssueStatusAssigned:
		c.Assigned++
	case domain.IssueStatusInProgress:
		c.InProgress++
	case domain.IssueStatusResolved:
		c.Resolved++
	case domain.IssueStatusVerified:
		c.Verified++
	}
}

// PriorityCounts tallies issues by priority.
type PriorityCounts struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

func (c *PriorityCounts) add(priority domain.IssuePriority) {
	switch priority {
	case domain.IssuePriorityLow:
		c.Low++
	case domain.IssuePriorityMedium:
		c.Medium++
	case domain.IssuePriorityHigh:
		c.High++
	case domain.IssuePriorityCritical:
		c.Critical++
	}
}

// Rollup is the figure set shared by ward, zone and filtered summaries.
type Rollup struct {
	TotalIssues    int            `json:"totalIssues"`
	ByStatus       StatusCounts   `json:"byStatus"`
	ByPriority     PriorityCounts `json:"byPriority"`
	OpenIssues     int            `json:"openIssues"`
	SLABreached    int            `json:"slaBreached"`
	SLACompliance  float64        `json:"slaCompliance"`
	AvgOpenDays    float64        `json:"avgOpenDays"`
	OldestOpenDays int            `json:"oldestOpenDays"`
}

// Summarize computes a Rollup over issues as of now.
func Summarize(issues []domain.Issue, policy domain.SLAPolicy, now time.Time) Rollup {
	var (
		r       Rollup
		sumDays int
	)
	for i := range issues {
		issue := &issues[i]
		r.TotalIssues++
		r.ByStatus.add(issue.Status)
		r.ByPriority.add(issue.Priority)
		if !IsOpen(issue) {
			continue
		}
		r.OpenIssues++
		age := ElapsedDays(issue.CreatedAt, now)
		sumDays += age
		if age > r.OldestOpenDays {
			r.OldestOpenDays = age
		}
		if SLABreached(issue, policy, now) {
			r.SLABreached++
		}
	}
	r.SLACompliance = Compliance(r.SLABreached, r.OpenIssues)
	if r.OpenIssues > 0 {
		r.AvgOpenDays = float64(sumDays) / float64(r.OpenIssues)
	}
	return r
}

// WardStats is the rollup of one ward.
type WardStats struct {
	WardID     string `json:"wardId"`
	WardNumber int    `json:"wardNumber"`
	Name       string `json:"name"`
	ZoneID     string `json:"zoneId"`
	Rollup
	InactiveAssigneeIssues int `json:"inactiveAssigneeIssues"`
}

// ZoneStats is the rollup of a zone. Zone figures come from the union of
// its wards' issues, not from averaging ward percentages.
type ZoneStats struct {
	ZoneID     string `json:"zoneId"`
	Name       string `json:"zoneName"`
	OfficerID  string `json:"zoneOfficerId,omitempty"`
	TotalWards int    `json:"totalWards"`
	Rollup
	InactiveAssigneeIssues int         `json:"inactiveAssigneeIssues"`
	Wards                  []WardStats `json:"wards"`
}

// Inactive is the set of deactivated user IDs used for risk signals.
type Inactive map[string]struct{}

func (in Inactive) holds(issue *domain.Issue) bool {
	if len(in) == 0 || !IsOpen(issue) || !issue.HasAssignee() {
		return false
	}
	_, ok := in[*issue.AssigneeID]
	return ok
}

// CountHeldByInactive counts open issues whose assignee is deactivated.
func CountHeldByInactive(issues []domain.Issue, inactive Inactive) int {
	n := 0
	for i := range issues {
		if inactive.holds(&issues[i]) {
			n++
		}
	}
	return n
}

// ForWard computes the rollup of a single ward. Issues outside the ward are ignored.
func ForWard(ward domain.Ward, issues []domain.Issue, policy domain.SLAPolicy, inactive Inactive, now time.Time) WardStats {
	own := make([]domain.Issue, 0, len(issues))
	for i := range issues {
		if issues[i].WardID == ward.ID {
			own = append(own, issues[i])
		}
	}
	return WardStats{
		WardID:                 ward.ID,
		WardNumber:             ward.Number,
		Name:                   ward.Name,
		ZoneID:                 ward.ZoneID,
		Rollup:                 Summarize(own, policy, now),
		InactiveAssigneeIssues: CountHeldByInactive(own, inactive),
	}
}

// ForZone computes zone and per-ward figures from one issue snapshot.
func ForZone(zone domain.Zone, wards []domain.Ward, issues []domain.Issue, policy domain.SLAPolicy, inactive Inactive, now time.Time) ZoneStats {
	byWard := make(map[string][]domain.Issue, len(wards))
	for _, w := range wards {
		byWard[w.ID] = nil
	}
	union := make([]domain.Issue, 0, len(issues))
	for i := range issues {
		bucket, ok := byWard[issues[i].WardID]
		if !ok {
			continue
		}
		byWard[issues[i].WardID] = append(bucket, issues[i])
		union = append(union, issues[i])
	}

	sorted := append([]domain.Ward(nil), wards...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	wardStats := make([]WardStats, 0, len(sorted))
	for _, w := range sorted {
		wardStats = append(wardStats, ForWard(w, byWard[w.ID], policy, inactive, now))
	}

	zs := ZoneStats{
		ZoneID:                 zone.ID,
		Name:                   zone.Name,
		TotalWards:             len(wards),
		Rollup:                 Summarize(union, policy, now),
		InactiveAssigneeIssues: CountHeldByInactive(union, inactive),
		Wards:                  wardStats,
	}
	if zone.OfficerID != nil {
		zs.OfficerID = *zone.OfficerID
	}
	return zs
}

// UserStats describes one assignee's workload and throughput.
type UserStats struct {
	UserID            string  `json:"userId"`
	TotalAssigned     int     `json:"totalAssigned"`
	ActiveIssues      int     `json:"activeIssues"`
	ResolvedIssues    int     `json:"resolvedIssues"`
	ResolutionRate    float64 `json:"resolutionRate"`
	AvgResolutionDays float64 `json:"avgResolutionDays"`
}

// ForUser computes statistics over the issues currently assigned to userID.
func ForUser(userID string, issues []domain.Issue) UserStats {
	us := UserStats{UserID: userID}
	var (
		resolvedSpan  time.Duration
		resolvedTimed int
	)
	for i := range issues {
		issue := &issues[i]
		if !issue.IsAssignedTo(userID) {
			continue
		}
		us.TotalAssigned++
		switch {
		case issue.Status == domain.IssueStatusAssigned || issue.Status == domain.IssueStatusInProgress:
			us.ActiveIssues++
		case issue.Status.IsResolved():
			us.ResolvedIssues++
			if issue.ResolvedAt != nil && issue.ResolvedAt.After(issue.CreatedAt) {
				resolvedSpan += issue.ResolvedAt.Sub(issue.CreatedAt)
				resolvedTimed++
			}
		}
	}
	if us.TotalAssigned > 0 {
		us.ResolutionRate = 100 * float64(us.ResolvedIssues) / float64(us.TotalAssigned)
	}
	if resolvedTimed > 0 {
		us.AvgResolutionDays = resolvedSpan.Hours() / 24 / float64(resolvedTimed)
	}
	return us
}

// Dashboard is the system-wide view for administrators.
type Dashboard struct {
	TotalZones int `json:"totalZones"`
	TotalWards int `json:"totalWards"`
	Rollup
	InactiveAssigneeIssues int         `json:"inactiveAssigneeIssues"`
	Zones                  []ZoneStats `json:"zones"`
}

// ForDashboard computes every zone from a single issue snapshot.
func ForDashboard(zones []domain.Zone, wards []domain.Ward, issues []domain.Issue, policy domain.SLAPolicy, inactive Inactive, now time.Time) Dashboard {
	wardsByZone := make(map[string][]domain.Ward, len(zones))
	for _, w := range wards {
		wardsByZone[w.ZoneID] = append(wardsByZone[w.ZoneID], w)
	}
	d := Dashboard{
		TotalZones:             len(zones),
		TotalWards:             len(wards),
		Rollup:                 Summarize(issues, policy, now),
		InactiveAssigneeIssues: CountHeldByInactive(issues, inactive),
		Zones:                  make([]ZoneStats, 0, len(zones)),
	}
	for _, z := range zones {
		d.Zones = append(d.Zones, ForZone(z, wardsByZone[z.ID], issues, policy, inactive, now))
	}
	return d
}
