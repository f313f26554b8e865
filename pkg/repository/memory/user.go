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

type userRepository struct {
	mu    sync.RWMutex
	users map[string]*model.User
}

func newUserRepository() *userRepository {
	return &userRepository{
		users: make(map[string]*model.User),
	}
}

// copyUser returns a copy to prevent external modification
func copyUser(u *model.User) *model.User {
	copied := *u
	copied.Raw = append(json.RawMessage(nil), u.Raw...)
	return &copied
}

func (r *userRepository) Upsert(ctx context.Context, user *model.User) error {
	if err := user.Validate(); err != nil {
		return goerr.Wrap(err, "invalid user")
	}
	if user.FetchedAt.IsZero() {
		user.FetchedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[entityKey(string(user.ConnectionID), user.ExternalID)] = copyUser(user)
	return nil
}

func (r *userRepository) ListByConnection(ctx context.Context, connID types.ConnectionID) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var users []*model.User
	for _, u := range r.users {
		if u.ConnectionID == connID {
			users = append(users, copyUser(u))
		}
	}

	return users, nil
}

func (r *userRepository) CountActive(ctx context.Context, connID types.ConnectionID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, u := range r.users {
		if u.ConnectionID == connID && u.Active {
			count++
		}
	}

	return count, nil
}

func (r *userRepository) DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for key, u := range r.users {
		if u.ConnectionID == connID {
			delete(r.users, key)
			count++
		}
	}

	return count, nil
}
