package usecase

import (
	"fmt"

	"github.com/secmon-lab/flowlens/pkg/domain/interfaces"
)

// Sentinel errors for the use case layer. Conflict and not-found wrap
// the repository sentinels so callers can match at either level.
var (
	ErrSyncConflict       = fmt.Errorf("sync already in progress: %w", interfaces.ErrSyncActive)
	ErrConnectionNotFound = fmt.Errorf("connection not found: %w", interfaces.ErrNotFound)
)
