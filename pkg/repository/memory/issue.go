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

type issueRepository struct {
	mu     sync.RWMutex
	issues map[string]*model.Issue
}

func newIssueRepository() *issueRepository {
	return &issueRepository{
		issues: make(map[string]*model.Issue),
	}
}

// copyIssue returns a copy to prevent external modification
func copyIssue(i *model.Issue) *model.Issue {
	copied := *i
	copied.Raw = append(json.RawMessage(nil), i.Raw...)
	copied.Created = copyTime(i.Created)
	copied.Updated = copyTime(i.Updated)
	copied.Resolved = copyTime(i.Resolved)
	return &copied
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	at := *t
	return &at
}

func (r *issueRepository) Upsert(ctx context.Context, issue *model.Issue) error {
	if err := issue.Validate(); err != nil {
		return goerr.Wrap(err, "invalid issue")
	}
	if issue.FetchedAt.IsZero() {
		issue.FetchedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.issues[entityKey(string(issue.ConnectionID), issue.ExternalID)] = copyIssue(issue)
	return nil
}

func (r *issueRepository) ListByConnection(ctx context.Context, connID types.ConnectionID) ([]*model.Issue, error) {
	return r.list(connID, func(*model.Issue) bool { return true })
}

func (r *issueRepository) ListUpdatedSince(ctx context.Context, connID types.ConnectionID, since time.Time) ([]*model.Issue, error) {
	return r.list(connID, func(i *model.Issue) bool {
		return i.Updated != nil && !i.Updated.Before(since)
	})
}

func (r *issueRepository) ListResolvedSince(ctx context.Context, connID types.ConnectionID, since time.Time) ([]*model.Issue, error) {
	return r.list(connID, func(i *model.Issue) bool {
		return i.Resolved != nil && !i.Resolved.Before(since)
	})
}

func (r *issueRepository) ListOpen(ctx context.Context, connID types.ConnectionID) ([]*model.Issue, error) {
	return r.list(connID, func(i *model.Issue) bool {
		return i.Resolved == nil
	})
}

func (r *issueRepository) list(connID types.ConnectionID, match func(*model.Issue) bool) ([]*model.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var issues []*model.Issue
	for _, i := range r.issues {
		if i.ConnectionID == connID && match(i) {
			issues = append(issues, copyIssue(i))
		}
	}

	return issues, nil
}

func (r *issueRepository) CountByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, i := range r.issues {
		if i.ConnectionID == connID {
			count++
		}
	}

	return count, nil
}

func (r *issueRepository) DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for key, i := range r.issues {
		if i.ConnectionID == connID {
			delete(r.issues, key)
			count++
		}
	}

	return count, nil
}
