package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

// SyncCounts holds per-entity progress of a sync job. Each field is
// written as its phase completes, so a failed job still shows how far
// it got.
type SyncCounts struct {
	Statuses int
	Projects int
	Users    int
	Issues   int
}

// Total returns the total number of synced entities
func (c SyncCounts) Total() int {
	return c.Statuses + c.Projects + c.Users + c.Issues
}

// SyncJob represents one execution attempt of the sync pipeline for a
// connection. Jobs are never deleted individually (audit trail); only a
// connection cascade removes them.
type SyncJob struct {
	ID           types.SyncJobID
	ConnectionID types.ConnectionID
	Status       types.SyncStatus
	StartedAt    *time.Time
	FinishedAt   *time.Time
	Counts       SyncCounts
	APICalls     int
	Error        string
	CreatedAt    time.Time
}

// NewSyncJob creates a queued sync job for the connection
func NewSyncJob(connID types.ConnectionID) *SyncJob {
	return &SyncJob{
		ID:           types.NewSyncJobID(),
		ConnectionID: connID,
		Status:       types.SyncStatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
}

// Validate checks the required fields of a SyncJob
func (j *SyncJob) Validate() error {
	if err := j.ID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid sync job ID")
	}
	if err := j.ConnectionID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid connection ID")
	}
	if !j.Status.IsValid() {
		return goerr.New("invalid sync status", goerr.V("status", j.Status))
	}
	return nil
}
