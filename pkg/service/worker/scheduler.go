package worker

import (
	"context"
	"errors"
	"time"

	"github.com/secmon-lab/flowlens/pkg/domain/interfaces"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

const defaultParallelism = 4

// SyncStarter kicks off a sync for one connection
type SyncStarter interface {
	StartSync(ctx context.Context, connID types.ConnectionID) (*model.SyncJob, error)
}

// SyncScheduler periodically starts a sync for every connection.
//
// Architecture assumptions:
// - Conflict safety comes from the repository's atomic sync slot, so
//   running multiple scheduler instances is safe; an overlapping start
//   simply loses the slot race and is skipped.
type SyncScheduler struct {
	repo        interfaces.Repository
	starter     SyncStarter
	interval    time.Duration
	parallelism int
	stopCh      chan struct{}
	doneCh      chan struct{}
}

type SchedulerOption func(*SyncScheduler)

// WithParallelism bounds how many connection syncs start concurrently
func WithParallelism(n int) SchedulerOption {
	return func(s *SyncScheduler) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// NewSyncScheduler creates a scheduler ticking at the given interval
func NewSyncScheduler(repo interfaces.Repository, starter SyncStarter, interval time.Duration, opts ...SchedulerOption) *SyncScheduler {
	s := &SyncScheduler{
		repo:        repo,
		starter:     starter,
		interval:    interval,
		parallelism: defaultParallelism,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scheduling loop without blocking the caller
func (s *SyncScheduler) Start(ctx context.Context) {
	logging.Default().Info("sync scheduler starting",
		"interval", s.interval.String(),
		"parallelism", s.parallelism)

	go s.run(ctx)
}

// Stop signals the loop to stop and waits for it to drain
func (s *SyncScheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
	logging.Default().Info("sync scheduler stopped")
}

func (s *SyncScheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				logging.Default().Error("scheduled sync round failed", "error", err.Error())
			}

		case <-s.stopCh:
			return

		case <-ctx.Done():
			logging.Default().Info("sync scheduler context cancelled")
			return
		}
	}
}

// tick starts one sync round over all connections. Connections with an
// active job are skipped; per-connection failures are logged without
// stopping the round.
func (s *SyncScheduler) tick(ctx context.Context) error {
	conns, err := s.repo.Connection().List(ctx)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.parallelism)

	for _, conn := range conns {
		eg.Go(func() error {
			job, err := s.starter.StartSync(ctx, conn.ID)
			if err != nil {
				if errors.Is(err, interfaces.ErrSyncActive) {
					logging.From(ctx).Debug("sync already active, skipping",
						"connection_id", conn.ID)
					return nil
				}
				logging.From(ctx).Error("failed to start scheduled sync",
					"connection_id", conn.ID, "error", err.Error())
				return nil
			}

			logging.From(ctx).Info("scheduled sync started",
				"connection_id", conn.ID, "job_id", job.ID)
			return nil
		})
	}

	return eg.Wait()
}
