package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

type statusRepository struct {
	mu       sync.RWMutex
	statuses map[string]*model.Status
}

func newStatusRepository() *statusRepository {
	return &statusRepository{
		statuses: make(map[string]*model.Status),
	}
}

// copyStatus returns a copy to prevent external modification
func copyStatus(s *model.Status) *model.Status {
	copied := *s
	copied.Raw = append(json.RawMessage(nil), s.Raw...)
	return &copied
}

func (r *statusRepository) Upsert(ctx context.Context, status *model.Status) error {
	if err := status.Validate(); err != nil {
		return goerr.Wrap(err, "invalid status")
	}
	if status.FetchedAt.IsZero() {
		status.FetchedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.statuses[entityKey(string(status.ConnectionID), status.ExternalID)] = copyStatus(status)
	return nil
}

func (r *statusRepository) ListByConnection(ctx context.Context, connID types.ConnectionID) ([]*model.Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var statuses []*model.Status
	for _, s := range r.statuses {
		if s.ConnectionID == connID {
			statuses = append(statuses, copyStatus(s))
		}
	}

	return statuses, nil
}

func (r *statusRepository) DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for key, s := range r.statuses {
		if s.ConnectionID == connID {
			delete(r.statuses, key)
			count++
		}
	}

	return count, nil
}
