package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/utils/logging"
)

// Red flag thresholds for the executive rollup. Each tripped flag
// knocks a fixed amount off the health score.
const (
	flagStaleIssues      = 50
	flagUnassignedIssues = 100
	flagOverloadedPeople = 5
	flagCycleTimeDays    = 30
	healthPenaltyPerFlag = 15
)

// ExecutiveSummary rolls all analytics into one health view for a
// connection
func (uc *UseCases) ExecutiveSummary(ctx context.Context, connID types.ConnectionID, days int) (*model.ExecutiveSummary, error) {
	days = normalizeDays(days)

	totalIssues, err := uc.repo.Issue().CountByConnection(ctx, connID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count issues", goerr.V("connection_id", connID))
	}
	if totalIssues == 0 {
		return &model.ExecutiveSummary{NoData: true}, nil
	}

	openIssues, err := uc.repo.Issue().ListOpen(ctx, connID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list open issues", goerr.V("connection_id", connID))
	}
	projects, err := uc.repo.Project().ListByConnection(ctx, connID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list projects", goerr.V("connection_id", connID))
	}
	activeUsers, err := uc.repo.User().CountActive(ctx, connID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count active users", goerr.V("connection_id", connID))
	}

	bottlenecks, err := uc.Bottlenecks(ctx, connID)
	if err != nil {
		return nil, err
	}
	workload, err := uc.Workload(ctx, connID)
	if err != nil {
		return nil, err
	}
	cycleTime, err := uc.CycleTime(ctx, connID, days)
	if err != nil {
		return nil, err
	}
	velocity, err := uc.Velocity(ctx, connID, days)
	if err != nil {
		return nil, err
	}

	summary := &model.ExecutiveSummary{
		Overview: model.SummaryOverview{
			TotalIssues:    totalIssues,
			ActiveIssues:   len(openIssues),
			ResolvedIssues: totalIssues - len(openIssues),
			TotalProjects:  len(projects),
			ActiveUsers:    activeUsers,
		},
		KeyMetrics: model.SummaryMetrics{
			StaleIssues:       bottlenecks.TotalStale,
			UnassignedIssues:  bottlenecks.TotalUnassigned,
			OverloadedMembers: workload.OverloadedCount,
			AvgCycleTimeDays:  cycleTime.Overall.MeanDays,
			WeeklyVelocity:    velocity.WeeklyAverage,
			VelocityTrend:     velocity.Trend,
		},
	}

	summary.RedFlags = redFlags(summary.KeyMetrics)
	summary.HealthScore = 100 - healthPenaltyPerFlag*len(summary.RedFlags)
	if summary.HealthScore < 0 {
		summary.HealthScore = 0
	}

	return summary, nil
}

func redFlags(m model.SummaryMetrics) []string {
	flags := []string{}
	if m.StaleIssues > flagStaleIssues {
		flags = append(flags, fmt.Sprintf("%d stale issues", m.StaleIssues))
	}
	if m.UnassignedIssues > flagUnassignedIssues {
		flags = append(flags, fmt.Sprintf("%d unassigned issues", m.UnassignedIssues))
	}
	if m.OverloadedMembers > flagOverloadedPeople {
		flags = append(flags, fmt.Sprintf("%d overloaded team members", m.OverloadedMembers))
	}
	if m.AvgCycleTimeDays > flagCycleTimeDays {
		flags = append(flags, fmt.Sprintf("average cycle time is %.1f days", m.AvgCycleTimeDays))
	}
	if m.VelocityTrend == types.TrendDown {
		flags = append(flags, "completion rate is trending down")
	}
	return flags
}

// ExportExecutiveReport builds the summary and writes it as JSON to
// the configured report bucket, returning the object name
func (uc *UseCases) ExportExecutiveReport(ctx context.Context, connID types.ConnectionID, days int) (string, error) {
	if uc.storage == nil || uc.reportBucket == "" {
		return "", goerr.New("report storage is not configured")
	}

	summary, err := uc.ExecutiveSummary(ctx, connID, days)
	if err != nil {
		return "", err
	}

	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode executive summary")
	}

	objectName := fmt.Sprintf("reports/%s/executive-%s.json",
		connID, time.Now().UTC().Format("20060102-150405"))

	writer := uc.storage.Bucket(uc.reportBucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return "", goerr.Wrap(err, "failed to write executive report",
			goerr.V("bucket", uc.reportBucket), goerr.V("object", objectName))
	}
	if err := writer.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to finalize executive report",
			goerr.V("bucket", uc.reportBucket), goerr.V("object", objectName))
	}

	logging.From(ctx).Info("exported executive report",
		"connection_id", connID, "bucket", uc.reportBucket, "object", objectName)

	return objectName, nil
}
