package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

const (
	// defaultWindowDays bounds analytics queries when the caller does
	// not pass a period
	defaultWindowDays = 90

	// maxStuckIssues caps the per-category issue lists in reports
	maxStuckIssues = 20
)

func normalizeDays(days int) int {
	if days <= 0 {
		return defaultWindowDays
	}
	return days
}

// Bottlenecks reports stale and unassigned non-terminal issues. Stale
// means no update for more than the configured threshold.
func (uc *UseCases) Bottlenecks(ctx context.Context, connID types.ConnectionID) (*model.BottleneckReport, error) {
	issues, err := uc.repo.Issue().ListOpen(ctx, connID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list open issues", goerr.V("connection_id", connID))
	}
	if len(issues) == 0 {
		return &model.BottleneckReport{NoData: true}, nil
	}

	now := time.Now().UTC()
	report := &model.BottleneckReport{}
	for _, issue := range issues {
		days := issue.DaysSinceUpdate(now)
		if days > float64(uc.analytics.StaleDays) {
			report.TotalStale++
			report.StaleIssues = append(report.StaleIssues, stuckIssueOf(issue, days))
		}
		if !issue.IsAssigned() {
			report.TotalUnassigned++
			report.UnassignedIssues = append(report.UnassignedIssues, stuckIssueOf(issue, days))
		}
	}

	sortStuck(report.StaleIssues)
	sortStuck(report.UnassignedIssues)
	report.StaleIssues = capStuck(report.StaleIssues)
	report.UnassignedIssues = capStuck(report.UnassignedIssues)

	return report, nil
}

func stuckIssueOf(issue *model.Issue, days float64) model.StuckIssue {
	return model.StuckIssue{
		Key:       issue.Key,
		Summary:   issue.Summary,
		Status:    issue.Status,
		Assignee:  issue.Assignee,
		Priority:  issue.Priority,
		ProjectID: issue.ProjectID,
		DaysStuck: days,
	}
}

func sortStuck(items []model.StuckIssue) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].DaysStuck > items[j].DaysStuck
	})
}

func capStuck(items []model.StuckIssue) []model.StuckIssue {
	if len(items) > maxStuckIssues {
		return items[:maxStuckIssues]
	}
	return items
}

// Workload groups non-terminal issues by assignee and flags members
// whose load diverges from the team median.
func (uc *UseCases) Workload(ctx context.Context, connID types.ConnectionID) (*model.WorkloadReport, error) {
	issues, err := uc.repo.Issue().ListOpen(ctx, connID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list open issues", goerr.V("connection_id", connID))
	}
	if len(issues) == 0 {
		return &model.WorkloadReport{NoData: true}, nil
	}

	report := &model.WorkloadReport{}
	counts := map[string]int{}
	for _, issue := range issues {
		if !issue.IsAssigned() {
			report.UnassignedCount++
			continue
		}
		counts[issue.Assignee]++
	}

	loads := make([]float64, 0, len(counts))
	for _, n := range counts {
		loads = append(loads, float64(n))
	}
	report.MedianLoad = median(loads)

	for assignee, n := range counts {
		entry := model.WorkloadEntry{
			Assignee:     assignee,
			Cohort:       uc.classifier.Classify(assignee),
			ActiveIssues: n,
			Load:         model.LoadNormal,
		}
		if report.MedianLoad > 0 {
			switch {
			case float64(n) > report.MedianLoad*uc.analytics.OverloadMultiple:
				entry.Load = model.LoadOverloaded
				report.OverloadedCount++
			case float64(n) < report.MedianLoad*uc.analytics.UnderloadFraction:
				entry.Load = model.LoadUnderloaded
				report.UnderloadedCount++
			}
		}
		report.Entries = append(report.Entries, entry)
	}

	sort.Slice(report.Entries, func(i, j int) bool {
		if report.Entries[i].ActiveIssues != report.Entries[j].ActiveIssues {
			return report.Entries[i].ActiveIssues > report.Entries[j].ActiveIssues
		}
		return report.Entries[i].Assignee < report.Entries[j].Assignee
	})

	return report, nil
}

// CycleTime reports created-to-resolved timing for issues resolved in
// the last N days. Issues missing either timestamp are excluded from
// the statistics rather than counted as zero.
func (uc *UseCases) CycleTime(ctx context.Context, connID types.ConnectionID, days int) (*model.CycleTimeReport, error) {
	days = normalizeDays(days)
	since := time.Now().UTC().AddDate(0, 0, -days)

	issues, err := uc.repo.Issue().ListResolvedSince(ctx, connID, since)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list resolved issues", goerr.V("connection_id", connID))
	}

	overall := []float64{}
	byProject := map[string][]float64{}
	byType := map[string][]float64{}
	byCohort := map[types.Cohort][]float64{}

	for _, issue := range issues {
		cycle, ok := issue.CycleTime()
		if !ok {
			continue
		}
		cycleDays := cycle.Hours() / 24
		overall = append(overall, cycleDays)
		if issue.ProjectID != "" {
			byProject[issue.ProjectID] = append(byProject[issue.ProjectID], cycleDays)
		}
		if issue.IssueType != "" {
			byType[issue.IssueType] = append(byType[issue.IssueType], cycleDays)
		}
		if issue.IsAssigned() {
			cohort := uc.classifier.Classify(issue.Assignee)
			byCohort[cohort] = append(byCohort[cohort], cycleDays)
		}
	}

	if len(overall) == 0 {
		return &model.CycleTimeReport{NoData: true}, nil
	}

	report := &model.CycleTimeReport{
		Overall:   cycleStats(overall),
		ByProject: map[string]model.CycleTimeStats{},
		ByType:    map[string]model.CycleTimeStats{},
		ByCohort:  map[types.Cohort]model.CycleTimeStats{},
	}
	for k, v := range byProject {
		report.ByProject[k] = cycleStats(v)
	}
	for k, v := range byType {
		report.ByType[k] = cycleStats(v)
	}
	for k, v := range byCohort {
		report.ByCohort[k] = cycleStats(v)
	}

	return report, nil
}

func cycleStats(samples []float64) model.CycleTimeStats {
	return model.CycleTimeStats{
		MeanDays:   mean(samples),
		MedianDays: median(samples),
		Resolved:   len(samples),
	}
}

// Velocity buckets completions by ISO week and compares the last two
// buckets for the trend. Changes inside the dead zone count as stable.
func (uc *UseCases) Velocity(ctx context.Context, connID types.ConnectionID, days int) (*model.VelocityReport, error) {
	days = normalizeDays(days)
	since := time.Now().UTC().AddDate(0, 0, -days)

	issues, err := uc.repo.Issue().ListResolvedSince(ctx, connID, since)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list resolved issues", goerr.V("connection_id", connID))
	}

	weeks := map[string]int{}
	for _, issue := range issues {
		if issue.Resolved == nil {
			continue
		}
		year, week := issue.Resolved.UTC().ISOWeek()
		weeks[fmt.Sprintf("%d-W%02d", year, week)]++
	}

	if len(weeks) == 0 {
		return &model.VelocityReport{NoData: true, Trend: types.TrendStable}, nil
	}

	keys := make([]string, 0, len(weeks))
	for k := range weeks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	report := &model.VelocityReport{}
	total := 0
	for _, k := range keys {
		report.Buckets = append(report.Buckets, model.VelocityBucket{Week: k, Completed: weeks[k]})
		total += weeks[k]
	}
	report.WeeklyAverage = float64(total) / float64(len(report.Buckets))
	report.Trend = velocityTrend(report.Buckets, uc.analytics.VelocityDeadZone)

	return report, nil
}

func velocityTrend(buckets []model.VelocityBucket, deadZone float64) types.Trend {
	if len(buckets) < 2 {
		return types.TrendStable
	}
	last := float64(buckets[len(buckets)-1].Completed)
	prior := float64(buckets[len(buckets)-2].Completed)
	if prior == 0 {
		if last > 0 {
			return types.TrendUp
		}
		return types.TrendStable
	}

	change := (last - prior) / prior
	switch {
	case change > deadZone:
		return types.TrendUp
	case change < -deadZone:
		return types.TrendDown
	default:
		return types.TrendStable
	}
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

func median(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
