package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/utils/logging"
)

// Insight rule thresholds. Changes smaller than these are noise, not
// patterns worth surfacing.
const (
	velocityShiftPct   = 10
	cycleTimeShiftPct  = 15
	staleAlertCount    = 20
	unassignedAlertCnt = 50
)

type periodMetrics struct {
	resolved     int
	avgCycleDays float64
}

// Insights compares the current period against the one before it and
// emits ranked findings. When an LLM is configured, a short narrative
// is generated on top; narrative failures degrade to rule-based
// output, they never fail the report.
func (uc *UseCases) Insights(ctx context.Context, connID types.ConnectionID, days int) (*model.InsightReport, error) {
	days = normalizeDays(days)
	now := time.Now().UTC()
	currentStart := now.AddDate(0, 0, -days)
	previousStart := now.AddDate(0, 0, -2*days)

	resolved, err := uc.repo.Issue().ListResolvedSince(ctx, connID, previousStart)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list resolved issues", goerr.V("connection_id", connID))
	}
	open, err := uc.repo.Issue().ListOpen(ctx, connID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list open issues", goerr.V("connection_id", connID))
	}
	if len(resolved) == 0 && len(open) == 0 {
		return &model.InsightReport{NoData: true}, nil
	}

	current := metricsForPeriod(resolved, currentStart, now)
	previous := metricsForPeriod(resolved, previousStart, currentStart)

	staleCount := 0
	unassignedCount := 0
	for _, issue := range open {
		if issue.DaysSinceUpdate(now) > float64(uc.analytics.StaleDays) {
			staleCount++
		}
		if !issue.IsAssigned() {
			unassignedCount++
		}
	}

	report := &model.InsightReport{}
	report.Insights = append(report.Insights, uc.velocityInsights(current, previous, days)...)
	report.Insights = append(report.Insights, uc.cycleTimeInsights(current, previous)...)
	report.Insights = append(report.Insights, uc.backlogInsights(staleCount, unassignedCount)...)

	sort.Slice(report.Insights, func(i, j int) bool {
		return report.Insights[i].ImpactScore > report.Insights[j].ImpactScore
	})

	if uc.llm != nil && len(report.Insights) > 0 {
		narrative, err := uc.generateNarrative(ctx, report.Insights)
		if err != nil {
			logging.From(ctx).Warn("insight narrative generation failed",
				"connection_id", connID, "error", err.Error())
		} else {
			report.Narrative = narrative
		}
	}

	return report, nil
}

func metricsForPeriod(issues []*model.Issue, start, end time.Time) periodMetrics {
	m := periodMetrics{}
	cycles := []float64{}
	for _, issue := range issues {
		if issue.Resolved == nil || issue.Resolved.Before(start) || !issue.Resolved.Before(end) {
			continue
		}
		m.resolved++
		if cycle, ok := issue.CycleTime(); ok {
			cycles = append(cycles, cycle.Hours()/24)
		}
	}
	m.avgCycleDays = mean(cycles)
	return m
}

func (uc *UseCases) velocityInsights(current, previous periodMetrics, days int) []model.Insight {
	if previous.resolved == 0 {
		return nil
	}
	change := float64(current.resolved-previous.resolved) / float64(previous.resolved) * 100
	if math.Abs(change) <= velocityShiftPct {
		return nil
	}

	if change > 0 {
		return []model.Insight{{
			Type:     "velocity",
			Severity: model.SeverityPositive,
			Title:    "Completion rate is up",
			Description: fmt.Sprintf("The team resolved %d issues in the last %d days, up %.0f%% from %d in the period before.",
				current.resolved, days, change, previous.resolved),
			Recommendation: "Capture what changed so the pace can be sustained.",
			ImpactScore:    math.Abs(change),
		}}
	}
	return []model.Insight{{
		Type:     "velocity",
		Severity: model.SeverityCritical,
		Title:    "Completion rate is dropping",
		Description: fmt.Sprintf("The team resolved %d issues in the last %d days, down %.0f%% from %d in the period before.",
			current.resolved, days, math.Abs(change), previous.resolved),
		Recommendation: "Check for blocked work, scope creep, or staffing changes in the recent period.",
		ImpactScore:    math.Abs(change),
	}}
}

func (uc *UseCases) cycleTimeInsights(current, previous periodMetrics) []model.Insight {
	if previous.avgCycleDays == 0 || current.avgCycleDays == 0 {
		return nil
	}
	change := (current.avgCycleDays - previous.avgCycleDays) / previous.avgCycleDays * 100
	if math.Abs(change) <= cycleTimeShiftPct {
		return nil
	}

	if change > 0 {
		return []model.Insight{{
			Type:     "cycle_time",
			Severity: model.SeverityWarning,
			Title:    "Work is taking longer to finish",
			Description: fmt.Sprintf("Average cycle time moved from %.1f to %.1f days, a %.0f%% increase.",
				previous.avgCycleDays, current.avgCycleDays, change),
			Recommendation: "Look for review bottlenecks or oversized issues entering the board.",
			ImpactScore:    math.Abs(change),
		}}
	}
	return []model.Insight{{
		Type:     "cycle_time",
		Severity: model.SeverityPositive,
		Title:    "Work is finishing faster",
		Description: fmt.Sprintf("Average cycle time moved from %.1f to %.1f days, a %.0f%% decrease.",
			previous.avgCycleDays, current.avgCycleDays, math.Abs(change)),
		Recommendation: "Note what sped things up before the next planning cycle.",
		ImpactScore:    math.Abs(change),
	}}
}

func (uc *UseCases) backlogInsights(staleCount, unassignedCount int) []model.Insight {
	insights := []model.Insight{}
	if staleCount > staleAlertCount {
		insights = append(insights, model.Insight{
			Type:     "stale_backlog",
			Severity: model.SeverityWarning,
			Title:    "Stale backlog is piling up",
			Description: fmt.Sprintf("%d open issues have had no activity for more than %d days.",
				staleCount, uc.analytics.StaleDays),
			Recommendation: "Triage the stale list: close what is dead, reassign what is not.",
			ImpactScore:    float64(staleCount),
		})
	}
	if unassignedCount > unassignedAlertCnt {
		insights = append(insights, model.Insight{
			Type:     "unassigned",
			Severity: model.SeverityWarning,
			Title:    "Large pool of unassigned work",
			Description: fmt.Sprintf("%d open issues have no assignee.",
				unassignedCount),
			Recommendation: "Route unowned issues to a triage rotation so they stop accumulating.",
			ImpactScore:    float64(unassignedCount),
		})
	}
	return insights
}

func (uc *UseCases) generateNarrative(ctx context.Context, insights []model.Insight) (string, error) {
	lines := make([]string, 0, len(insights))
	for _, insight := range insights {
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s", insight.Severity, insight.Title, insight.Description))
	}

	prompt := fmt.Sprintf(`You are summarizing work-tracking analytics for an engineering manager.

Findings:
%s

Write a short narrative summary (3-4 sentences, plain prose, no markdown) that an engineering manager can read in ten seconds. Lead with the most impactful finding.`,
		strings.Join(lines, "\n"))

	session, err := uc.llm.NewSession(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}
	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate narrative")
	}
	if len(resp.Texts) == 0 {
		return "", goerr.New("empty narrative response")
	}
	return strings.TrimSpace(resp.Texts[0]), nil
}
