package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"

	"github.com/secmon-lab/flowlens/pkg/cli/config"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/usecase"
	"github.com/secmon-lab/flowlens/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdSync() *cli.Command {
	var connectionID string
	var repoCfg config.Repository
	var atlassianCfg config.Atlassian
	var analyticsCfg config.Analytics

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "connection-id",
			Usage:       "Sync only this connection (all connections when empty)",
			Sources:     cli.EnvVars("FLOWLENS_CONNECTION_ID"),
			Destination: &connectionID,
		},
	}

	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, atlassianCfg.Flags()...)
	flags = append(flags, analyticsCfg.Flags()...)

	return &cli.Command{
		Name:  "sync",
		Usage: "Run a one-shot sync and print the result summary",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			oauth, err := atlassianCfg.ConfigureOAuth()
			if err != nil {
				return goerr.Wrap(err, "failed to configure Atlassian OAuth")
			}
			tokenVault, err := atlassianCfg.ConfigureVault()
			if err != nil {
				return goerr.Wrap(err, "failed to configure token vault")
			}

			settings, rates, err := analyticsCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load analytics config")
			}

			uc := usecase.New(repo, tokenVault, oauth,
				usecase.WithAnalyticsSettings(settings),
				usecase.WithCostRates(rates),
				usecase.WithSyncWindow(time.Duration(analyticsCfg.SyncWindowDays())*24*time.Hour),
			)

			var targets []types.ConnectionID
			if connectionID != "" {
				targets = append(targets, types.ConnectionID(connectionID))
			} else {
				conns, err := uc.ListConnections(ctx)
				if err != nil {
					return goerr.Wrap(err, "failed to list connections")
				}
				for _, conn := range conns {
					targets = append(targets, conn.ID)
				}
			}

			if len(targets) == 0 {
				color.Yellow("No connections to sync")
				return nil
			}

			var failed int
			for _, id := range targets {
				job, err := uc.RunSync(ctx, id)
				printSyncResult(id, job, err)
				if err != nil {
					failed++
				}
			}

			if failed > 0 {
				return goerr.New("sync failed",
					goerr.V("failed", failed),
					goerr.V("total", len(targets)))
			}
			return nil
		},
	}
}

func printSyncResult(id types.ConnectionID, job *model.SyncJob, err error) {
	if err != nil {
		color.Red("✗ %s", id)
		if job != nil && job.Error != "" {
			fmt.Printf("  error: %s\n", job.Error)
		} else {
			fmt.Printf("  error: %v\n", err)
		}
		return
	}

	color.Green("✓ %s", id)
	fmt.Printf("  statuses: %d, projects: %d, users: %d, issues: %d (total %d)\n",
		job.Counts.Statuses, job.Counts.Projects, job.Counts.Users, job.Counts.Issues,
		job.Counts.Total())
	fmt.Printf("  api calls: %d\n", job.APICalls)
	if job.StartedAt != nil && job.FinishedAt != nil {
		fmt.Printf("  duration: %s\n", job.FinishedAt.Sub(*job.StartedAt).Round(time.Millisecond))
	}
}
