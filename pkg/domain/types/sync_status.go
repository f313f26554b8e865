package types

import "fmt"

// SyncStatus represents the lifecycle state of a sync job
type SyncStatus string

const (
	SyncStatusQueued  SyncStatus = "queued"
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

// AllSyncStatuses returns all valid sync statuses
func AllSyncStatuses() []SyncStatus {
	return []SyncStatus{
		SyncStatusQueued,
		SyncStatusRunning,
		SyncStatusSuccess,
		SyncStatusError,
	}
}

// IsValid checks if the sync status is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusQueued, SyncStatusRunning, SyncStatusSuccess, SyncStatusError:
		return true
	default:
		return false
	}
}

// IsActive reports whether a job in this status still holds the
// per-connection sync slot
func (s SyncStatus) IsActive() bool {
	return s == SyncStatusQueued || s == SyncStatusRunning
}

// IsTerminal reports whether the status is final
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusSuccess || s == SyncStatusError
}

// String returns the string representation of the sync status
func (s SyncStatus) String() string {
	return string(s)
}

// ParseSyncStatus parses a string into a SyncStatus
func ParseSyncStatus(s string) (SyncStatus, error) {
	status := SyncStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid sync status: %s", s)
	}
	return status, nil
}
