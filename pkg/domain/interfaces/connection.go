package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

// ConnectionRepository persists OAuth connections
type ConnectionRepository interface {
	Create(ctx context.Context, conn *model.Connection) (*model.Connection, error)
	Get(ctx context.Context, id types.ConnectionID) (*model.Connection, error)
	GetByUser(ctx context.Context, userID types.UserID) (*model.Connection, error)
	List(ctx context.Context) ([]*model.Connection, error)

	// UpdateTokens persists refreshed token ciphertexts and the new
	// expiry in one write
	UpdateTokens(ctx context.Context, id types.ConnectionID, encAccess, encRefresh string, expiresAt time.Time) error

	// MarkFullSync stamps a completed full sync
	MarkFullSync(ctx context.Context, id types.ConnectionID, at time.Time) error

	Delete(ctx context.Context, id types.ConnectionID) error
}
