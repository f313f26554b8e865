package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

type connectionRepository struct {
	mu    sync.RWMutex
	conns map[types.ConnectionID]*model.Connection
}

func newConnectionRepository() *connectionRepository {
	return &connectionRepository{
		conns: make(map[types.ConnectionID]*model.Connection),
	}
}

// copyConnection returns a copy to prevent external modification
func copyConnection(conn *model.Connection) *model.Connection {
	copied := *conn
	copied.Scopes = append([]string(nil), conn.Scopes...)
	if conn.LastFullSyncAt != nil {
		at := *conn.LastFullSyncAt
		copied.LastFullSyncAt = &at
	}
	return &copied
}

func (r *connectionRepository) Create(ctx context.Context, conn *model.Connection) (*model.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if conn.ID == "" {
		conn.ID = types.NewConnectionID()
	}
	conn.CreatedAt = now
	conn.UpdatedAt = now

	if err := conn.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid connection")
	}

	r.conns[conn.ID] = copyConnection(conn)
	return copyConnection(conn), nil
}

func (r *connectionRepository) Get(ctx context.Context, id types.ConnectionID) (*model.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.conns[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", id))
	}

	return copyConnection(conn), nil
}

func (r *connectionRepository) GetByUser(ctx context.Context, userID types.UserID) (*model.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conn := range r.conns {
		if conn.UserID == userID {
			return copyConnection(conn), nil
		}
	}

	return nil, goerr.Wrap(ErrNotFound, "connection not found for user", goerr.V("user_id", userID))
}

func (r *connectionRepository) List(ctx context.Context) ([]*model.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*model.Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, copyConnection(conn))
	}

	return conns, nil
}

func (r *connectionRepository) UpdateTokens(ctx context.Context, id types.ConnectionID, encAccess, encRefresh string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.conns[id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", id))
	}

	conn.EncAccessToken = encAccess
	conn.EncRefreshToken = encRefresh
	conn.ExpiresAt = expiresAt
	conn.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *connectionRepository) MarkFullSync(ctx context.Context, id types.ConnectionID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.conns[id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", id))
	}

	stamped := at
	conn.LastFullSyncAt = &stamped
	conn.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *connectionRepository) Delete(ctx context.Context, id types.ConnectionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; !exists {
		return goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", id))
	}

	delete(r.conns, id)
	return nil
}
