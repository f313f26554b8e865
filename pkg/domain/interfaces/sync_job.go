package interfaces

import (
	"context"

	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

// SyncJobRepository persists sync jobs and enforces the
// one-active-job-per-connection invariant. Start and Finish are the
// only operations that touch the per-connection slot; both must be
// atomic in the backing store so the guarantee holds across processes.
type SyncJobRepository interface {
	// Start atomically claims the connection's sync slot and stores
	// the queued job. Returns ErrSyncActive when another job is
	// queued or running.
	Start(ctx context.Context, job *model.SyncJob) error

	// Update rewrites a non-terminal job (running transition, phase
	// counts). The slot stays held.
	Update(ctx context.Context, job *model.SyncJob) error

	// Finish stores the terminal job state and releases the slot in
	// the same atomic write.
	Finish(ctx context.Context, job *model.SyncJob) error

	Get(ctx context.Context, id types.SyncJobID) (*model.SyncJob, error)
	Latest(ctx context.Context, connID types.ConnectionID) (*model.SyncJob, error)
	ListByConnection(ctx context.Context, connID types.ConnectionID, limit int) ([]*model.SyncJob, error)

	// DeleteByConnection removes all jobs for a connection (cascade on
	// disconnect) and returns the number removed
	DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error)
}
