package interfaces

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors shared by all repository backends so callers can
// branch without knowing which backend is wired.
var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = goerr.New("record not found")

	// ErrSyncActive indicates a queued or running sync job already
	// holds the per-connection slot
	ErrSyncActive = goerr.New("sync job already active for connection")
)
