package model

import (
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

// Load categories for workload entries
const (
	LoadOverloaded  = "overloaded"
	LoadNormal      = "normal"
	LoadUnderloaded = "underloaded"
)

// StuckIssue is one bottleneck candidate for display
type StuckIssue struct {
	Key       string  `json:"key"`
	Summary   string  `json:"summary"`
	Status    string  `json:"status"`
	Assignee  string  `json:"assignee,omitempty"`
	Priority  string  `json:"priority,omitempty"`
	ProjectID string  `json:"project_id"`
	DaysStuck float64 `json:"days_stuck"`
}

// BottleneckReport lists stale and unassigned non-terminal issues.
// NoData distinguishes "never synced" from a genuinely clean board.
type BottleneckReport struct {
	NoData           bool         `json:"no_data"`
	TotalStale       int          `json:"total_stale"`
	TotalUnassigned  int          `json:"total_unassigned"`
	StaleIssues      []StuckIssue `json:"stale_issues"`
	UnassignedIssues []StuckIssue `json:"unassigned_issues"`
}

// WorkloadEntry is the active issue count for one assignee
type WorkloadEntry struct {
	Assignee     string       `json:"assignee"`
	Cohort       types.Cohort `json:"cohort"`
	ActiveIssues int          `json:"active_issues"`
	Load         string       `json:"load"`
}

// WorkloadReport groups non-terminal issues by assignee
type WorkloadReport struct {
	NoData           bool            `json:"no_data"`
	Entries          []WorkloadEntry `json:"entries"`
	MedianLoad       float64         `json:"median_load"`
	UnassignedCount  int             `json:"unassigned_count"`
	OverloadedCount  int             `json:"overloaded_count"`
	UnderloadedCount int             `json:"underloaded_count"`
}

// CycleTimeStats holds aggregate cycle time for one grouping
type CycleTimeStats struct {
	MeanDays   float64 `json:"mean_days"`
	MedianDays float64 `json:"median_days"`
	Resolved   int     `json:"resolved"`
}

// CycleTimeReport is created-to-resolved timing for resolved issues in
// the window. Issues missing either timestamp are excluded.
type CycleTimeReport struct {
	NoData    bool                            `json:"no_data"`
	Overall   CycleTimeStats                  `json:"overall"`
	ByProject map[string]CycleTimeStats       `json:"by_project,omitempty"`
	ByType    map[string]CycleTimeStats       `json:"by_type,omitempty"`
	ByCohort  map[types.Cohort]CycleTimeStats `json:"by_cohort,omitempty"`
}

// VelocityBucket is the completion count for one ISO week
type VelocityBucket struct {
	Week      string `json:"week"`
	Completed int    `json:"completed"`
}

// VelocityReport is completions per week plus the trend between the
// last two buckets
type VelocityReport struct {
	NoData        bool             `json:"no_data"`
	Buckets       []VelocityBucket `json:"buckets"`
	Trend         types.Trend      `json:"trend"`
	WeeklyAverage float64          `json:"weekly_average"`
}

// CostItem is the estimated cost of delay attributed to one issue
type CostItem struct {
	Key       string       `json:"key"`
	Summary   string       `json:"summary"`
	Status    string       `json:"status"`
	Assignee  string       `json:"assignee,omitempty"`
	Priority  string       `json:"priority,omitempty"`
	Cohort    types.Cohort `json:"cohort"`
	DaysStuck float64      `json:"days_stuck"`
	Cost      float64      `json:"cost"`
}

// CostBreakdown aggregates one delay category
type CostBreakdown struct {
	Count     int        `json:"count"`
	TotalCost float64    `json:"total_cost"`
	TopIssues []CostItem `json:"top_issues"`
}

// CostOfDelayReport estimates dollar cost of stalled work. All figures
// derive from configured rate constants, not measured spend.
type CostOfDelayReport struct {
	NoData         bool          `json:"no_data"`
	TotalCost      float64       `json:"total_cost"`
	DailyBurnRate  float64       `json:"daily_burn_rate"`
	IssuesAnalyzed int           `json:"issues_analyzed"`
	Stale          CostBreakdown `json:"stale"`
	Unassigned     CostBreakdown `json:"unassigned"`
	Waiting        CostBreakdown `json:"waiting"`
}

// Burden levels for person bottleneck entries
const (
	BurdenCriticalBurnoutRisk = "critical burnout risk"
	BurdenSeverelyOverloaded  = "severely overloaded"
	BurdenOverloaded          = "overloaded"
	BurdenAtCapacity          = "at capacity"
	BurdenNearCapacity        = "near capacity"
	BurdenAvailable           = "available"
)

// BlockedProject summarizes the stale work one person holds within a
// single project
type BlockedProject struct {
	Project    string   `json:"project"`
	StaleCount int      `json:"stale_count"`
	OldestKey  string   `json:"oldest_key"`
	OldestDays float64  `json:"oldest_days"`
	IssueKeys  []string `json:"issue_keys"`
}

// PersonBottleneck is one overloaded assignee and the estimated value
// their stale work is holding up
type PersonBottleneck struct {
	Person          string           `json:"person"`
	Cohort          types.Cohort     `json:"cohort"`
	Workload        int              `json:"workload"`
	BurdenPct       float64          `json:"burden_pct"`
	BurdenLevel     string           `json:"burden_level"`
	StaleCount      int              `json:"stale_count"`
	AvgStaleDays    float64          `json:"avg_stale_days"`
	DailyCost       float64          `json:"daily_cost"`
	BlockedValue    float64          `json:"blocked_value"`
	Reasons         []string         `json:"reasons"`
	BlockedProjects []BlockedProject `json:"blocked_projects,omitempty"`
	Recommendation  string           `json:"recommendation"`
}

// UnderloadedPerson is an assignee with spare capacity for delegation
type UnderloadedPerson struct {
	Person   string `json:"person"`
	Workload int    `json:"workload"`
	Capacity int    `json:"capacity"`
}

// PeopleBottleneckReport names the individuals whose workload blocks
// delivery and who has capacity to take work over. Blocked value is an
// estimate from configured rate constants, not measured spend.
type PeopleBottleneckReport struct {
	NoData            bool                `json:"no_data"`
	OptimalWorkload   int                 `json:"optimal_workload"`
	TotalBottlenecks  int                 `json:"total_bottlenecks"`
	TotalBlockedValue float64             `json:"total_blocked_value"`
	AverageBurdenPct  float64             `json:"average_burden_pct"`
	Bottlenecks       []PersonBottleneck  `json:"bottlenecks"`
	Underloaded       []UnderloadedPerson `json:"underloaded"`
}

// CohortROI is the estimated return for one cohort over the window.
// ROI is nil when the cohort has zero recorded cost.
type CohortROI struct {
	Cohort          types.Cohort `json:"cohort"`
	Label           string       `json:"label"`
	IssuesCompleted int          `json:"issues_completed"`
	TotalCost       float64      `json:"total_cost"`
	ValueDelivered  float64      `json:"value_delivered"`
	ROI             *float64     `json:"roi"`
	CostPerIssue    float64      `json:"cost_per_issue"`
	ValuePerIssue   float64      `json:"value_per_issue"`
}

// ROIReport compares estimated value delivered to estimated cost per cohort
type ROIReport struct {
	NoData     bool                       `json:"no_data"`
	PeriodDays int                        `json:"period_days"`
	Cohorts    map[types.Cohort]CohortROI `json:"cohorts"`
}

// Insight severities
const (
	SeverityPositive = "positive"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Insight is one detected pattern with a recommendation
type Insight struct {
	Type           string  `json:"type"`
	Severity       string  `json:"severity"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Recommendation string  `json:"recommendation"`
	ImpactScore    float64 `json:"impact_score"`
}

// InsightReport is the ranked insight list, optionally with an
// LLM-generated narrative
type InsightReport struct {
	NoData    bool      `json:"no_data"`
	Insights  []Insight `json:"insights"`
	Narrative string    `json:"narrative,omitempty"`
}

// SummaryOverview is the raw entity counts for one connection
type SummaryOverview struct {
	TotalIssues    int `json:"total_issues"`
	ActiveIssues   int `json:"active_issues"`
	ResolvedIssues int `json:"resolved_issues"`
	TotalProjects  int `json:"total_projects"`
	ActiveUsers    int `json:"active_users"`
}

// SummaryMetrics is the headline numbers for the dashboard
type SummaryMetrics struct {
	StaleIssues       int         `json:"stale_issues"`
	UnassignedIssues  int         `json:"unassigned_issues"`
	OverloadedMembers int         `json:"overloaded_members"`
	AvgCycleTimeDays  float64     `json:"avg_cycle_time_days"`
	WeeklyVelocity    float64     `json:"weekly_velocity"`
	VelocityTrend     types.Trend `json:"velocity_trend"`
}

// ExecutiveSummary is the top-level rollup across all analytics
type ExecutiveSummary struct {
	NoData      bool            `json:"no_data"`
	Overview    SummaryOverview `json:"overview"`
	KeyMetrics  SummaryMetrics  `json:"key_metrics"`
	RedFlags    []string        `json:"red_flags"`
	HealthScore int             `json:"health_score"`
}
