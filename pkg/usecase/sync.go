package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/interfaces"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/service/atlassian"
	"github.com/secmon-lab/flowlens/pkg/utils/async"
	"github.com/secmon-lab/flowlens/pkg/utils/logging"
)

// syncCancelledCause is stored on jobs terminated by cancellation so
// they are distinguishable from real failures
const syncCancelledCause = "sync cancelled"

// StartSync claims the connection's sync slot, stores a queued job and
// runs the sync in the background. Returns ErrSyncConflict while
// another job is queued or running.
func (uc *UseCases) StartSync(ctx context.Context, connID types.ConnectionID) (*model.SyncJob, error) {
	conn, err := uc.getConnection(ctx, connID)
	if err != nil {
		return nil, err
	}

	job := model.NewSyncJob(connID)
	if err := uc.repo.SyncJob().Start(ctx, job); err != nil {
		if errors.Is(err, interfaces.ErrSyncActive) {
			return nil, goerr.Wrap(ErrSyncConflict, "cannot start sync", goerr.V("connection_id", connID))
		}
		return nil, goerr.Wrap(err, "failed to store sync job", goerr.V("connection_id", connID))
	}

	async.Dispatch(ctx, func(ctx context.Context) error {
		return uc.runSync(ctx, conn, job)
	})

	return job, nil
}

// RunSync claims the slot and runs the sync in the calling goroutine,
// returning the finished job. Used by the one-shot CLI command.
func (uc *UseCases) RunSync(ctx context.Context, connID types.ConnectionID) (*model.SyncJob, error) {
	conn, err := uc.getConnection(ctx, connID)
	if err != nil {
		return nil, err
	}

	job := model.NewSyncJob(connID)
	if err := uc.repo.SyncJob().Start(ctx, job); err != nil {
		if errors.Is(err, interfaces.ErrSyncActive) {
			return nil, goerr.Wrap(ErrSyncConflict, "cannot start sync", goerr.V("connection_id", connID))
		}
		return nil, goerr.Wrap(err, "failed to store sync job", goerr.V("connection_id", connID))
	}

	if err := uc.runSync(ctx, conn, job); err != nil {
		return job, err
	}
	return job, nil
}

// GetSyncJob returns one sync job by ID
func (uc *UseCases) GetSyncJob(ctx context.Context, jobID types.SyncJobID) (*model.SyncJob, error) {
	return uc.repo.SyncJob().Get(ctx, jobID)
}

// runSync executes the phases in fixed order: statuses, projects,
// users, then issues. Issues come last because their referential
// fields point at the other three. Each phase's count is persisted as
// it completes so a failed job still shows partial progress.
func (uc *UseCases) runSync(ctx context.Context, conn *model.Connection, job *model.SyncJob) error {
	logger := logging.From(ctx)
	logger.Info("sync starting", "connection_id", conn.ID, "job_id", job.ID)

	startedAt := time.Now().UTC()
	job.Status = types.SyncStatusRunning
	job.StartedAt = &startedAt
	if err := uc.repo.SyncJob().Update(ctx, job); err != nil {
		return uc.failSync(ctx, conn, job, goerr.Wrap(err, "failed to mark job running"))
	}

	client := uc.newClient(uc.tokenSource(conn.ID), conn.CloudID)
	since := startedAt.Add(-uc.syncWindow)

	phases := []struct {
		name  string
		run   func(context.Context) (int, error)
		count *int
	}{
		{"statuses", func(ctx context.Context) (int, error) {
			return uc.syncStatuses(ctx, client, conn.ID)
		}, &job.Counts.Statuses},
		{"projects", func(ctx context.Context) (int, error) {
			return uc.syncProjects(ctx, client, conn.ID)
		}, &job.Counts.Projects},
		{"users", func(ctx context.Context) (int, error) {
			return uc.syncUsers(ctx, client, conn.ID)
		}, &job.Counts.Users},
		{"issues", func(ctx context.Context) (int, error) {
			return uc.syncIssues(ctx, client, conn.ID, since)
		}, &job.Counts.Issues},
	}

	for _, phase := range phases {
		count, err := phase.run(ctx)
		*phase.count = count
		job.APICalls = client.Calls()

		if err != nil {
			return uc.failSync(ctx, conn, job, err)
		}

		if err := uc.repo.SyncJob().Update(ctx, job); err != nil {
			return uc.failSync(ctx, conn, job, goerr.Wrap(err, "failed to persist phase progress"))
		}
		logger.Info("sync phase complete",
			"connection_id", conn.ID, "job_id", job.ID, "phase", phase.name, "count", count)
	}

	finishedAt := time.Now().UTC()
	job.Status = types.SyncStatusSuccess
	job.FinishedAt = &finishedAt
	if err := uc.repo.SyncJob().Finish(ctx, job); err != nil {
		return goerr.Wrap(err, "failed to finish sync job", goerr.V("job_id", job.ID))
	}
	if err := uc.repo.Connection().MarkFullSync(ctx, conn.ID, finishedAt); err != nil {
		return goerr.Wrap(err, "failed to stamp full sync", goerr.V("connection_id", conn.ID))
	}

	logger.Info("sync finished",
		"connection_id", conn.ID, "job_id", job.ID,
		"total", job.Counts.Total(), "api_calls", job.APICalls,
		"elapsed", finishedAt.Sub(startedAt).String())

	return nil
}

// failSync terminates the job with its cause. Already-upserted
// entities stay; upserts are idempotent so the next sync converges.
func (uc *UseCases) failSync(ctx context.Context, conn *model.Connection, job *model.SyncJob, cause error) error {
	finishedAt := time.Now().UTC()
	job.Status = types.SyncStatusError
	job.FinishedAt = &finishedAt
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		job.Error = syncCancelledCause
	} else {
		job.Error = cause.Error()
	}

	// The slot must be released even when the original ctx is gone
	finishCtx := ctx
	if finishCtx.Err() != nil {
		finishCtx = context.Background()
	}
	if err := uc.repo.SyncJob().Finish(finishCtx, job); err != nil {
		logging.From(ctx).Error("failed to store failed sync job",
			"job_id", job.ID, "error", err.Error())
	}

	if uc.notifier != nil && job.Error != syncCancelledCause {
		if err := uc.notifier.NotifySyncFailure(finishCtx, conn, job); err != nil {
			logging.From(ctx).Error("failed to notify sync failure",
				"job_id", job.ID, "error", err.Error())
		}
	}

	return goerr.Wrap(cause, "sync failed",
		goerr.V("connection_id", conn.ID), goerr.V("job_id", job.ID))
}

func (uc *UseCases) syncStatuses(ctx context.Context, client *atlassian.Client, connID types.ConnectionID) (int, error) {
	count := 0
	for status, err := range client.Statuses(ctx) {
		if err != nil {
			if errors.Is(err, atlassian.ErrInvalidPayload) {
				logging.From(ctx).Warn("skipping malformed status", "connection_id", connID)
				continue
			}
			return count, err
		}

		if err := uc.repo.Status().Upsert(ctx, &model.Status{
			ConnectionID: connID,
			ExternalID:   status.ID,
			Name:         status.Name,
			Category:     status.StatusCategory.Key,
			Raw:          status.Raw,
		}); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (uc *UseCases) syncProjects(ctx context.Context, client *atlassian.Client, connID types.ConnectionID) (int, error) {
	count := 0
	for project, err := range client.Projects(ctx) {
		if err != nil {
			if errors.Is(err, atlassian.ErrInvalidPayload) {
				logging.From(ctx).Warn("skipping malformed project", "connection_id", connID)
				continue
			}
			return count, err
		}

		if err := uc.repo.Project().Upsert(ctx, &model.Project{
			ConnectionID: connID,
			ExternalID:   project.ID,
			Key:          project.Key,
			Name:         project.Name,
			ProjectType:  project.ProjectTypeKey,
			Raw:          project.Raw,
		}); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (uc *UseCases) syncUsers(ctx context.Context, client *atlassian.Client, connID types.ConnectionID) (int, error) {
	count := 0
	for user, err := range client.Users(ctx) {
		if err != nil {
			if errors.Is(err, atlassian.ErrInvalidPayload) {
				logging.From(ctx).Warn("skipping malformed user", "connection_id", connID)
				continue
			}
			return count, err
		}

		if err := uc.repo.User().Upsert(ctx, &model.User{
			ConnectionID: connID,
			ExternalID:   user.AccountID,
			DisplayName:  user.DisplayName,
			Active:       user.Active,
			Raw:          user.Raw,
		}); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (uc *UseCases) syncIssues(ctx context.Context, client *atlassian.Client, connID types.ConnectionID, since time.Time) (int, error) {
	count := 0
	for issue, err := range client.SearchIssues(ctx, since) {
		if err != nil {
			if errors.Is(err, atlassian.ErrInvalidPayload) {
				logging.From(ctx).Warn("skipping malformed issue", "connection_id", connID)
				continue
			}
			return count, err
		}

		converted, err := issueFromAPI(connID, issue)
		if err != nil {
			logging.From(ctx).Warn("skipping issue with unparseable fields",
				"connection_id", connID, "key", issue.Key, "error", err.Error())
			continue
		}

		if err := uc.repo.Issue().Upsert(ctx, converted); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func issueFromAPI(connID types.ConnectionID, in *atlassian.Issue) (*model.Issue, error) {
	f := in.Fields

	created, err := atlassian.ParseTime(f.Created)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid created timestamp", goerr.V("value", f.Created))
	}
	updated, err := atlassian.ParseTime(f.Updated)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid updated timestamp", goerr.V("value", f.Updated))
	}
	resolved, err := atlassian.ParseTime(f.ResolutionDate)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid resolution timestamp", goerr.V("value", f.ResolutionDate))
	}

	issue := &model.Issue{
		ConnectionID:   connID,
		ExternalID:     in.ID,
		Key:            in.Key,
		ProjectID:      f.Project.ID,
		Summary:        f.Summary,
		Status:         f.Status.Name,
		StatusCategory: f.Status.StatusCategory.Key,
		IssueType:      f.IssueType.Name,
		Created:        created,
		Updated:        updated,
		Resolved:       resolved,
		Raw:            in.Raw,
	}
	if f.Priority != nil {
		issue.Priority = f.Priority.Name
	}
	if f.Assignee != nil {
		issue.Assignee = f.Assignee.DisplayName
		issue.AssigneeID = f.Assignee.AccountID
	}
	if f.Reporter != nil {
		issue.Reporter = f.Reporter.DisplayName
	}

	return issue, nil
}
