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

type projectRepository struct {
	mu       sync.RWMutex
	projects map[string]*model.Project
}

func newProjectRepository() *projectRepository {
	return &projectRepository{
		projects: make(map[string]*model.Project),
	}
}

// copyProject returns a copy to prevent external modification
func copyProject(p *model.Project) *model.Project {
	copied := *p
	copied.Raw = append(json.RawMessage(nil), p.Raw...)
	return &copied
}

func (r *projectRepository) Upsert(ctx context.Context, project *model.Project) error {
	if err := project.Validate(); err != nil {
		return goerr.Wrap(err, "invalid project")
	}
	if project.FetchedAt.IsZero() {
		project.FetchedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.projects[entityKey(string(project.ConnectionID), project.ExternalID)] = copyProject(project)
	return nil
}

func (r *projectRepository) ListByConnection(ctx context.Context, connID types.ConnectionID) ([]*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var projects []*model.Project
	for _, p := range r.projects {
		if p.ConnectionID == connID {
			projects = append(projects, copyProject(p))
		}
	}

	return projects, nil
}

func (r *projectRepository) CountByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, p := range r.projects {
		if p.ConnectionID == connID {
			count++
		}
	}

	return count, nil
}

func (r *projectRepository) DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for key, p := range r.projects {
		if p.ConnectionID == connID {
			delete(r.projects, key)
			count++
		}
	}

	return count, nil
}
