package firestore

import "github.com/secmon-lab/flowlens/pkg/domain/interfaces"

// Backend-agnostic sentinels re-exported for callers that only import
// this package
var (
	ErrNotFound   = interfaces.ErrNotFound
	ErrSyncActive = interfaces.ErrSyncActive
)
