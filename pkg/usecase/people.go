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
	// optimalWorkload is the per-person active issue count the burden
	// scale is anchored on
	optimalWorkload    = 5
	overloadedWorkload = 2 * optimalWorkload
	criticalWorkload   = 3 * optimalWorkload

	maxPersonBottlenecks = 10
	maxUnderloadedPeople = 5
	maxBlockedProjects   = 5
	maxBlockedIssueKeys  = 5
)

// PeopleBottlenecks reports which individuals hold up delivery: their
// workload against the optimal level, the estimated value blocked by
// their stale issues, which projects that work sits in, and who has
// capacity to take delegated work.
func (uc *UseCases) PeopleBottlenecks(ctx context.Context, connID types.ConnectionID) (*model.PeopleBottleneckReport, error) {
	issues, err := uc.repo.Issue().ListOpen(ctx, connID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list open issues", goerr.V("connection_id", connID))
	}
	if len(issues) == 0 {
		return &model.PeopleBottleneckReport{NoData: true, OptimalWorkload: optimalWorkload}, nil
	}

	projectNames, err := uc.projectNames(ctx, connID)
	if err != nil {
		return nil, err
	}

	byAssignee := map[string][]*model.Issue{}
	for _, issue := range issues {
		if !issue.IsAssigned() {
			continue
		}
		byAssignee[issue.Assignee] = append(byAssignee[issue.Assignee], issue)
	}

	now := time.Now().UTC()
	report := &model.PeopleBottleneckReport{OptimalWorkload: optimalWorkload}
	burdenSum := 0.0

	for assignee, load := range byAssignee {
		workload := len(load)
		if workload < optimalWorkload {
			report.Underloaded = append(report.Underloaded, model.UnderloadedPerson{
				Person:   assignee,
				Workload: workload,
				Capacity: optimalWorkload - workload,
			})
		}
		if workload < overloadedWorkload {
			continue
		}

		entry := uc.personBottleneck(assignee, load, projectNames, now)
		burdenSum += entry.BurdenPct
		report.TotalBlockedValue += entry.BlockedValue
		report.Bottlenecks = append(report.Bottlenecks, entry)
	}

	report.TotalBottlenecks = len(report.Bottlenecks)
	if report.TotalBottlenecks > 0 {
		report.AverageBurdenPct = burdenSum / float64(report.TotalBottlenecks)
	}

	sort.Slice(report.Bottlenecks, func(i, j int) bool {
		return report.Bottlenecks[i].BlockedValue > report.Bottlenecks[j].BlockedValue
	})
	if len(report.Bottlenecks) > maxPersonBottlenecks {
		report.Bottlenecks = report.Bottlenecks[:maxPersonBottlenecks]
	}

	sort.Slice(report.Underloaded, func(i, j int) bool {
		if report.Underloaded[i].Capacity != report.Underloaded[j].Capacity {
			return report.Underloaded[i].Capacity > report.Underloaded[j].Capacity
		}
		return report.Underloaded[i].Person < report.Underloaded[j].Person
	})
	if len(report.Underloaded) > maxUnderloadedPeople {
		report.Underloaded = report.Underloaded[:maxUnderloadedPeople]
	}

	return report, nil
}

func (uc *UseCases) personBottleneck(assignee string, load []*model.Issue, projectNames map[string]string, now time.Time) model.PersonBottleneck {
	workload := len(load)
	cohort := uc.classifier.Classify(assignee)
	dailyCost := uc.costRates.DailyCost(cohort)

	staleCount := 0
	totalStaleDays := 0.0
	var topStaleDays float64
	blocked := map[string]*model.BlockedProject{}

	for _, issue := range load {
		days := issue.DaysSinceUpdate(now)
		if days <= float64(uc.analytics.StaleDays) {
			continue
		}
		staleCount++
		totalStaleDays += days
		if days > topStaleDays {
			topStaleDays = days
		}

		name := projectNames[issue.ProjectID]
		if name == "" {
			name = issue.ProjectID
		}
		bp := blocked[name]
		if bp == nil {
			bp = &model.BlockedProject{Project: name}
			blocked[name] = bp
		}
		bp.StaleCount++
		if len(bp.IssueKeys) < maxBlockedIssueKeys {
			bp.IssueKeys = append(bp.IssueKeys, issue.Key)
		}
		if days > bp.OldestDays {
			bp.OldestDays = days
			bp.OldestKey = issue.Key
		}
	}

	avgStaleDays := 0.0
	if staleCount > 0 {
		avgStaleDays = totalStaleDays / float64(staleCount)
	}

	entry := model.PersonBottleneck{
		Person:       assignee,
		Cohort:       cohort,
		Workload:     workload,
		BurdenPct:    float64(workload) / optimalWorkload * 100,
		StaleCount:   staleCount,
		AvgStaleDays: avgStaleDays,
		DailyCost:    dailyCost,
		BlockedValue: float64(staleCount) * avgStaleDays * dailyCost,
	}
	entry.BurdenLevel = burdenLevel(entry.BurdenPct)
	entry.Reasons = bottleneckReasons(workload, staleCount, avgStaleDays)
	entry.Recommendation = delegationRecommendation(workload)

	for _, bp := range blocked {
		entry.BlockedProjects = append(entry.BlockedProjects, *bp)
	}
	sort.Slice(entry.BlockedProjects, func(i, j int) bool {
		if entry.BlockedProjects[i].StaleCount != entry.BlockedProjects[j].StaleCount {
			return entry.BlockedProjects[i].StaleCount > entry.BlockedProjects[j].StaleCount
		}
		return entry.BlockedProjects[i].Project < entry.BlockedProjects[j].Project
	})
	if len(entry.BlockedProjects) > maxBlockedProjects {
		entry.BlockedProjects = entry.BlockedProjects[:maxBlockedProjects]
	}

	return entry
}

// projectNames maps project external IDs to their keys for display
func (uc *UseCases) projectNames(ctx context.Context, connID types.ConnectionID) (map[string]string, error) {
	projects, err := uc.repo.Project().ListByConnection(ctx, connID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list projects", goerr.V("connection_id", connID))
	}
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ExternalID] = p.Key
	}
	return names, nil
}

func burdenLevel(pct float64) string {
	switch {
	case pct >= 300:
		return model.BurdenCriticalBurnoutRisk
	case pct >= 200:
		return model.BurdenSeverelyOverloaded
	case pct >= 150:
		return model.BurdenOverloaded
	case pct >= 100:
		return model.BurdenAtCapacity
	case pct >= 80:
		return model.BurdenNearCapacity
	default:
		return model.BurdenAvailable
	}
}

func bottleneckReasons(workload, staleCount int, avgStaleDays float64) []string {
	var reasons []string
	switch {
	case workload >= criticalWorkload:
		reasons = append(reasons, fmt.Sprintf("critically overloaded: %d active issues, 3x the optimal %d", workload, optimalWorkload))
	case workload >= overloadedWorkload:
		reasons = append(reasons, fmt.Sprintf("overloaded: %d active issues, 2x the optimal %d", workload, optimalWorkload))
	}
	if staleCount > 5 {
		reasons = append(reasons, fmt.Sprintf("%d issues stale for %.0f days on average", staleCount, avgStaleDays))
	}
	if active := workload - staleCount; active > 8 {
		reasons = append(reasons, fmt.Sprintf("too much concurrent active work: %d non-stale issues", active))
	}
	return reasons
}

func delegationRecommendation(workload int) string {
	excess := workload - optimalWorkload
	switch {
	case excess >= 10:
		return fmt.Sprintf("urgent: delegate %d issues immediately, starting with the oldest stale work", excess)
	case excess >= 5:
		return fmt.Sprintf("delegate %d issues to members with capacity", excess)
	case excess >= 3:
		return fmt.Sprintf("consider delegating %d lower priority issues", excess)
	default:
		return "monitor workload, approaching capacity"
	}
}
