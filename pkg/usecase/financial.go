package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

// CostOfDelay estimates the dollar cost of stalled work over the
// window. An issue is counted once per category it matches: stale,
// unassigned, or sitting in a waiting status. Cost per issue is the
// cohort's daily rate times days stuck times the priority weight.
func (uc *UseCases) CostOfDelay(ctx context.Context, connID types.ConnectionID, days int) (*model.CostOfDelayReport, error) {
	days = normalizeDays(days)

	issues, err := uc.repo.Issue().ListOpen(ctx, connID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list open issues", goerr.V("connection_id", connID))
	}
	if len(issues) == 0 {
		return &model.CostOfDelayReport{NoData: true}, nil
	}

	now := time.Now().UTC()
	report := &model.CostOfDelayReport{}
	analyzed := map[string]bool{}

	add := func(breakdown *model.CostBreakdown, issue *model.Issue, daysStuck float64) {
		cohort := uc.classifier.Classify(issue.Assignee)
		cost := uc.costRates.DailyCost(cohort) * daysStuck * uc.costRates.PriorityMultiplier(issue.Priority)
		breakdown.Count++
		breakdown.TotalCost += cost
		breakdown.TopIssues = append(breakdown.TopIssues, model.CostItem{
			Key:       issue.Key,
			Summary:   issue.Summary,
			Status:    issue.Status,
			Assignee:  issue.Assignee,
			Priority:  issue.Priority,
			Cohort:    cohort,
			DaysStuck: daysStuck,
			Cost:      cost,
		})
		report.TotalCost += cost
		analyzed[issue.ExternalID] = true
	}

	for _, issue := range issues {
		daysStuck := issue.DaysSinceUpdate(now)
		if daysStuck > float64(uc.analytics.StaleDays) {
			add(&report.Stale, issue, daysStuck)
		}
		if !issue.IsAssigned() {
			add(&report.Unassigned, issue, daysStuck)
		}
		if uc.isWaitingStatus(issue.Status) {
			add(&report.Waiting, issue, daysStuck)
		}
	}

	report.IssuesAnalyzed = len(analyzed)
	report.DailyBurnRate = report.TotalCost / float64(days)
	for _, breakdown := range []*model.CostBreakdown{&report.Stale, &report.Unassigned, &report.Waiting} {
		sort.Slice(breakdown.TopIssues, func(i, j int) bool {
			return breakdown.TopIssues[i].Cost > breakdown.TopIssues[j].Cost
		})
		if len(breakdown.TopIssues) > maxStuckIssues {
			breakdown.TopIssues = breakdown.TopIssues[:maxStuckIssues]
		}
	}

	return report, nil
}

func (uc *UseCases) isWaitingStatus(status string) bool {
	lowered := strings.ToLower(status)
	for _, waiting := range uc.analytics.WaitingStatuses {
		if strings.Contains(lowered, waiting) {
			return true
		}
	}
	return false
}

// TeamROI compares estimated value delivered against estimated cost
// per cohort for issues resolved in the window. Only issues with both
// timestamps and an assignee contribute; ROI stays nil for a cohort
// with zero recorded cost instead of reporting an infinite return.
func (uc *UseCases) TeamROI(ctx context.Context, connID types.ConnectionID, days int) (*model.ROIReport, error) {
	days = normalizeDays(days)
	since := time.Now().UTC().AddDate(0, 0, -days)

	issues, err := uc.repo.Issue().ListResolvedSince(ctx, connID, since)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list resolved issues", goerr.V("connection_id", connID))
	}

	type accum struct {
		completed int
		cost      float64
		value     float64
	}
	totals := map[types.Cohort]*accum{}

	for _, issue := range issues {
		cycle, ok := issue.CycleTime()
		if !ok || !issue.IsAssigned() {
			continue
		}
		cohort := uc.classifier.Classify(issue.Assignee)
		acc := totals[cohort]
		if acc == nil {
			acc = &accum{}
			totals[cohort] = acc
		}
		cycleDays := cycle.Hours() / 24
		acc.completed++
		acc.cost += uc.costRates.DailyCost(cohort) * cycleDays
		acc.value += uc.costRates.RevenuePerPersonDaily * cycleDays
	}

	if len(totals) == 0 {
		return &model.ROIReport{NoData: true, PeriodDays: days}, nil
	}

	report := &model.ROIReport{
		PeriodDays: days,
		Cohorts:    map[types.Cohort]model.CohortROI{},
	}
	for cohort, acc := range totals {
		entry := model.CohortROI{
			Cohort:          cohort,
			Label:           cohort.Label(),
			IssuesCompleted: acc.completed,
			TotalCost:       acc.cost,
			ValueDelivered:  acc.value,
		}
		if acc.cost > 0 {
			roi := (acc.value - acc.cost) / acc.cost * 100
			entry.ROI = &roi
		}
		if acc.completed > 0 {
			entry.CostPerIssue = acc.cost / float64(acc.completed)
			entry.ValuePerIssue = acc.value / float64(acc.completed)
		}
		report.Cohorts[cohort] = entry
	}

	return report, nil
}
