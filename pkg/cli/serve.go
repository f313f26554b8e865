package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"

	"github.com/secmon-lab/flowlens/pkg/cli/config"
	httpctrl "github.com/secmon-lab/flowlens/pkg/controller/http"
	"github.com/secmon-lab/flowlens/pkg/service/worker"
	"github.com/secmon-lab/flowlens/pkg/usecase"
	"github.com/secmon-lab/flowlens/pkg/utils/errutil"
	"github.com/secmon-lab/flowlens/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var reportBucket string
	var syncInterval time.Duration
	var syncParallelism int
	var repoCfg config.Repository
	var atlassianCfg config.Atlassian
	var analyticsCfg config.Analytics
	var geminiCfg config.Gemini
	var slackCfg config.Slack
	var sentryCfg config.Sentry

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("FLOWLENS_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "report-bucket",
			Usage:       "GCS bucket for executive report exports (disabled when empty)",
			Sources:     cli.EnvVars("FLOWLENS_REPORT_BUCKET"),
			Destination: &reportBucket,
		},
		&cli.DurationFlag{
			Name:        "sync-interval",
			Usage:       "Interval between scheduled syncs (0 disables the scheduler)",
			Value:       time.Hour,
			Sources:     cli.EnvVars("FLOWLENS_SYNC_INTERVAL"),
			Destination: &syncInterval,
		},
		&cli.IntFlag{
			Name:        "sync-parallelism",
			Usage:       "How many connections the scheduler syncs concurrently",
			Value:       4,
			Sources:     cli.EnvVars("FLOWLENS_SYNC_PARALLELISM"),
			Destination: &syncParallelism,
		},
	}

	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, atlassianCfg.Flags()...)
	flags = append(flags, analyticsCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server and sync scheduler",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := sentryCfg.Configure(); err != nil {
				return goerr.Wrap(err, "failed to initialize sentry")
			}
			defer errutil.Flush()

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

			ucOpts := []usecase.Option{
				usecase.WithAnalyticsSettings(settings),
				usecase.WithCostRates(rates),
				usecase.WithSyncWindow(time.Duration(analyticsCfg.SyncWindowDays()) * 24 * time.Hour),
			}

			llm, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to create Gemini client")
			}
			if llm != nil {
				ucOpts = append(ucOpts, usecase.WithLLM(llm))
				logging.Default().Info("Gemini narrative generation enabled")
			} else {
				logging.Default().Info("Gemini not configured, insight narratives will be rule based")
			}

			notifier, err := slackCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure Slack notifications")
			}
			if notifier != nil {
				ucOpts = append(ucOpts, usecase.WithNotifier(notifier))
			}

			if reportBucket != "" {
				gcs, err := storage.NewClient(ctx)
				if err != nil {
					return goerr.Wrap(err, "failed to create Cloud Storage client")
				}
				defer func() {
					if err := gcs.Close(); err != nil {
						logging.Default().Error("failed to close storage client", "error", err.Error())
					}
				}()
				ucOpts = append(ucOpts, usecase.WithReportStorage(gcs, reportBucket))
				logging.Default().Info("Report export enabled", "bucket", reportBucket)
			}

			uc := usecase.New(repo, tokenVault, oauth, ucOpts...)

			var scheduler *worker.SyncScheduler
			if syncInterval > 0 {
				scheduler = worker.NewSyncScheduler(repo, uc, syncInterval,
					worker.WithParallelism(syncParallelism))
				scheduler.Start(ctx)
			} else {
				logging.Default().Info("Sync scheduler disabled")
			}

			srv, err := httpctrl.New(uc, atlassianCfg.SessionSecret())
			if err != nil {
				return goerr.Wrap(err, "failed to create http server")
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           srv,
				ReadHeaderTimeout: 30 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr, "atlassian", atlassianCfg)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				if scheduler != nil {
					scheduler.Stop()
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
