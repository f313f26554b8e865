package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/secmon-lab/flowlens/pkg/domain/interfaces"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

func runSyncJobRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Start stores queued job and claims slot", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conn := newTestConnection(t, repo)
		job := model.NewSyncJob(conn.ID)

		if err := repo.SyncJob().Start(ctx, job); err != nil {
			t.Fatalf("failed to start job: %v", err)
		}

		retrieved, err := repo.SyncJob().Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("failed to get job: %v", err)
		}
		if retrieved.Status != types.SyncStatusQueued {
			t.Errorf("expected status=queued, got %s", retrieved.Status)
		}
		if retrieved.ConnectionID != conn.ID {
			t.Errorf("expected connectionID=%s, got %s", conn.ID, retrieved.ConnectionID)
		}
	})

	t.Run("Start rejects second job while slot held", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conn := newTestConnection(t, repo)

		if err := repo.SyncJob().Start(ctx, model.NewSyncJob(conn.ID)); err != nil {
			t.Fatalf("failed to start first job: %v", err)
		}

		err := repo.SyncJob().Start(ctx, model.NewSyncJob(conn.ID))
		if !errors.Is(err, interfaces.ErrSyncActive) {
			t.Errorf("expected ErrSyncActive, got %v", err)
		}
	})

	t.Run("Start allows concurrent jobs on different connections", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conn1 := newTestConnection(t, repo)
		conn2 := newTestConnection(t, repo)

		if err := repo.SyncJob().Start(ctx, model.NewSyncJob(conn1.ID)); err != nil {
			t.Fatalf("failed to start job on conn1: %v", err)
		}
		if err := repo.SyncJob().Start(ctx, model.NewSyncJob(conn2.ID)); err != nil {
			t.Errorf("expected independent slot per connection, got %v", err)
		}
	})

	t.Run("Update rewrites non-terminal job", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conn := newTestConnection(t, repo)
		job := model.NewSyncJob(conn.ID)
		if err := repo.SyncJob().Start(ctx, job); err != nil {
			t.Fatalf("failed to start job: %v", err)
		}

		now := time.Now().UTC().Truncate(time.Millisecond)
		job.Status = types.SyncStatusRunning
		job.StartedAt = &now
		job.Counts.Statuses = 12
		job.APICalls = 3

		if err := repo.SyncJob().Update(ctx, job); err != nil {
			t.Fatalf("failed to update job: %v", err)
		}

		retrieved, err := repo.SyncJob().Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("failed to get job: %v", err)
		}
		if retrieved.Status != types.SyncStatusRunning {
			t.Errorf("expected status=running, got %s", retrieved.Status)
		}
		if retrieved.Counts.Statuses != 12 {
			t.Errorf("expected statuses count=12, got %d", retrieved.Counts.Statuses)
		}
		if retrieved.APICalls != 3 {
			t.Errorf("expected apiCalls=3, got %d", retrieved.APICalls)
		}
	})

	t.Run("Update rejects terminal status", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conn := newTestConnection(t, repo)
		job := model.NewSyncJob(conn.ID)
		if err := repo.SyncJob().Start(ctx, job); err != nil {
			t.Fatalf("failed to start job: %v", err)
		}

		job.Status = types.SyncStatusSuccess
		if err := repo.SyncJob().Update(ctx, job); err == nil {
			t.Error("expected error updating to terminal status")
		}
	})

	t.Run("Finish releases slot for next job", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conn := newTestConnection(t, repo)
		job := model.NewSyncJob(conn.ID)
		if err := repo.SyncJob().Start(ctx, job); err != nil {
			t.Fatalf("failed to start job: %v", err)
		}

		now := time.Now().UTC().Truncate(time.Millisecond)
		job.Status = types.SyncStatusSuccess
		job.FinishedAt = &now
		if err := repo.SyncJob().Finish(ctx, job); err != nil {
			t.Fatalf("failed to finish job: %v", err)
		}

		if err := repo.SyncJob().Start(ctx, model.NewSyncJob(conn.ID)); err != nil {
			t.Errorf("expected slot released after finish, got %v", err)
		}
	})

	t.Run("Finish rejects non-terminal status", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conn := newTestConnection(t, repo)
		job := model.NewSyncJob(conn.ID)
		if err := repo.SyncJob().Start(ctx, job); err != nil {
			t.Fatalf("failed to start job: %v", err)
		}

		job.Status = types.SyncStatusRunning
		if err := repo.SyncJob().Finish(ctx, job); err == nil {
			t.Error("expected error finishing with non-terminal status")
		}
	})

	t.Run("Finish keeps error detail", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conn := newTestConnection(t, repo)
		job := model.NewSyncJob(conn.ID)
		if err := repo.SyncJob().Start(ctx, job); err != nil {
			t.Fatalf("failed to start job: %v", err)
		}

		now := time.Now().UTC().Truncate(time.Millisecond)
		job.Status = types.SyncStatusError
		job.FinishedAt = &now
		job.Error = "rate limit exceeded after 3 attempts"
		if err := repo.SyncJob().Finish(ctx, job); err != nil {
			t.Fatalf("failed to finish job: %v", err)
		}

		retrieved, err := repo.SyncJob().Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("failed to get job: %v", err)
		}
		if retrieved.Error != job.Error {
			t.Errorf("expected error=%q, got %q", job.Error, retrieved.Error)
		}
	})

	t.Run("Latest returns most recent job", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conn := newTestConnection(t, repo)

		first := model.NewSyncJob(conn.ID)
		if err := repo.SyncJob().Start(ctx, first); err != nil {
			t.Fatalf("failed to start first job: %v", err)
		}
		now := time.Now().UTC().Truncate(time.Millisecond)
		first.Status = types.SyncStatusSuccess
		first.FinishedAt = &now
		if err := repo.SyncJob().Finish(ctx, first); err != nil {
			t.Fatalf("failed to finish first job: %v", err)
		}

		second := model.NewSyncJob(conn.ID)
		second.CreatedAt = first.CreatedAt.Add(time.Second)
		if err := repo.SyncJob().Start(ctx, second); err != nil {
			t.Fatalf("failed to start second job: %v", err)
		}

		latest, err := repo.SyncJob().Latest(ctx, conn.ID)
		if err != nil {
			t.Fatalf("failed to get latest job: %v", err)
		}
		if latest.ID != second.ID {
			t.Errorf("expected latest job=%s, got %s", second.ID, latest.ID)
		}
	})

	t.Run("Latest returns ErrNotFound without jobs", func(t *testing.T) {
		repo := newRepo(t)

		conn := newTestConnection(t, repo)
		_, err := repo.SyncJob().Latest(context.Background(), conn.ID)
		if !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListByConnection respects limit and order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conn := newTestConnection(t, repo)
		base := time.Now().UTC().Truncate(time.Millisecond)

		for i := 0; i < 3; i++ {
			job := model.NewSyncJob(conn.ID)
			job.CreatedAt = base.Add(time.Duration(i) * time.Second)
			if err := repo.SyncJob().Start(ctx, job); err != nil {
				t.Fatalf("failed to start job %d: %v", i, err)
			}
			job.Status = types.SyncStatusSuccess
			finished := job.CreatedAt.Add(time.Second)
			job.FinishedAt = &finished
			if err := repo.SyncJob().Finish(ctx, job); err != nil {
				t.Fatalf("failed to finish job %d: %v", i, err)
			}
		}

		jobs, err := repo.SyncJob().ListByConnection(ctx, conn.ID, 2)
		if err != nil {
			t.Fatalf("failed to list jobs: %v", err)
		}
		if len(jobs) != 2 {
			t.Fatalf("expected 2 jobs, got %d", len(jobs))
		}
		if jobs[0].CreatedAt.Before(jobs[1].CreatedAt) {
			t.Error("expected newest-first ordering")
		}
	})

	t.Run("DeleteByConnection removes jobs and slot", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conn := newTestConnection(t, repo)
		if err := repo.SyncJob().Start(ctx, model.NewSyncJob(conn.ID)); err != nil {
			t.Fatalf("failed to start job: %v", err)
		}

		count, err := repo.SyncJob().DeleteByConnection(ctx, conn.ID)
		if err != nil {
			t.Fatalf("failed to delete jobs: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 deleted job, got %d", count)
		}

		// Slot released even though the job never finished
		if err := repo.SyncJob().Start(ctx, model.NewSyncJob(conn.ID)); err != nil {
			t.Errorf("expected slot released after cascade, got %v", err)
		}
	})
}

func TestMemorySyncJobRepository(t *testing.T) {
	runSyncJobRepositoryTest(t, newMemoryRepository)
}

func TestFirestoreSyncJobRepository(t *testing.T) {
	runSyncJobRepositoryTest(t, newFirestoreRepository)
}
