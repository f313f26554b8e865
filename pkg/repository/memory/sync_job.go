package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

type syncJobRepository struct {
	mu   sync.Mutex
	jobs map[types.SyncJobID]*model.SyncJob

	// slots maps a connection to its active (queued or running) job,
	// mirroring the slot document the firestore backend uses
	slots map[types.ConnectionID]types.SyncJobID
}

func newSyncJobRepository() *syncJobRepository {
	return &syncJobRepository{
		jobs:  make(map[types.SyncJobID]*model.SyncJob),
		slots: make(map[types.ConnectionID]types.SyncJobID),
	}
}

// copySyncJob returns a copy to prevent external modification
func copySyncJob(job *model.SyncJob) *model.SyncJob {
	copied := *job
	if job.StartedAt != nil {
		at := *job.StartedAt
		copied.StartedAt = &at
	}
	if job.FinishedAt != nil {
		at := *job.FinishedAt
		copied.FinishedAt = &at
	}
	return &copied
}

func (r *syncJobRepository) Start(ctx context.Context, job *model.SyncJob) error {
	if err := job.Validate(); err != nil {
		return goerr.Wrap(err, "invalid sync job")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, held := r.slots[job.ConnectionID]; held {
		return goerr.Wrap(ErrSyncActive, "sync slot held",
			goerr.V("connection_id", job.ConnectionID), goerr.V("active_job_id", holder))
	}

	r.slots[job.ConnectionID] = job.ID
	r.jobs[job.ID] = copySyncJob(job)
	return nil
}

func (r *syncJobRepository) Update(ctx context.Context, job *model.SyncJob) error {
	if err := job.Validate(); err != nil {
		return goerr.Wrap(err, "invalid sync job")
	}
	if job.Status.IsTerminal() {
		return goerr.New("terminal job must go through Finish", goerr.V("job_id", job.ID), goerr.V("status", job.Status))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; !exists {
		return goerr.Wrap(ErrNotFound, "sync job not found", goerr.V("job_id", job.ID))
	}

	r.jobs[job.ID] = copySyncJob(job)
	return nil
}

func (r *syncJobRepository) Finish(ctx context.Context, job *model.SyncJob) error {
	if err := job.Validate(); err != nil {
		return goerr.Wrap(err, "invalid sync job")
	}
	if !job.Status.IsTerminal() {
		return goerr.New("finish requires a terminal status", goerr.V("job_id", job.ID), goerr.V("status", job.Status))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; !exists {
		return goerr.Wrap(ErrNotFound, "sync job not found", goerr.V("job_id", job.ID))
	}

	r.jobs[job.ID] = copySyncJob(job)
	if holder, held := r.slots[job.ConnectionID]; held && holder == job.ID {
		delete(r.slots, job.ConnectionID)
	}
	return nil
}

func (r *syncJobRepository) Get(ctx context.Context, id types.SyncJobID) (*model.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "sync job not found", goerr.V("job_id", id))
	}

	return copySyncJob(job), nil
}

func (r *syncJobRepository) Latest(ctx context.Context, connID types.ConnectionID) (*model.SyncJob, error) {
	jobs, err := r.ListByConnection(ctx, connID, 1)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, goerr.Wrap(ErrNotFound, "no sync jobs for connection", goerr.V("connection_id", connID))
	}
	return jobs[0], nil
}

func (r *syncJobRepository) ListByConnection(ctx context.Context, connID types.ConnectionID, limit int) ([]*model.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var jobs []*model.SyncJob
	for _, job := range r.jobs {
		if job.ConnectionID == connID {
			jobs = append(jobs, copySyncJob(job))
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *syncJobRepository) DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, job := range r.jobs {
		if job.ConnectionID == connID {
			delete(r.jobs, id)
			count++
		}
	}
	delete(r.slots, connID)

	return count, nil
}
