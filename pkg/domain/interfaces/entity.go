package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

// ProjectRepository persists synced projects. Upsert replaces the row
// wholesale, keyed by (connection_id, external_id).
type ProjectRepository interface {
	Upsert(ctx context.Context, project *model.Project) error
	ListByConnection(ctx context.Context, connID types.ConnectionID) ([]*model.Project, error)
	CountByConnection(ctx context.Context, connID types.ConnectionID) (int, error)
	DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error)
}

// IssueRepository persists synced issues
type IssueRepository interface {
	Upsert(ctx context.Context, issue *model.Issue) error
	ListByConnection(ctx context.Context, connID types.ConnectionID) ([]*model.Issue, error)

	// ListUpdatedSince returns issues whose external updated timestamp
	// is at or after the cutoff
	ListUpdatedSince(ctx context.Context, connID types.ConnectionID, since time.Time) ([]*model.Issue, error)

	// ListResolvedSince returns issues resolved at or after the cutoff
	ListResolvedSince(ctx context.Context, connID types.ConnectionID, since time.Time) ([]*model.Issue, error)

	// ListOpen returns non-terminal issues
	ListOpen(ctx context.Context, connID types.ConnectionID) ([]*model.Issue, error)

	CountByConnection(ctx context.Context, connID types.ConnectionID) (int, error)
	DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error)
}

// UserRepository persists synced users
type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	ListByConnection(ctx context.Context, connID types.ConnectionID) ([]*model.User, error)
	CountActive(ctx context.Context, connID types.ConnectionID) (int, error)
	DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error)
}

// StatusRepository persists synced workflow statuses
type StatusRepository interface {
	Upsert(ctx context.Context, status *model.Status) error
	ListByConnection(ctx context.Context, connID types.ConnectionID) ([]*model.Status, error)
	DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error)
}
