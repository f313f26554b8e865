package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/interfaces"
)

type Firestore struct {
	client     *firestore.Client
	connection *connectionRepository
	syncJob    *syncJobRepository
	project    *projectRepository
	issue      *issueRepository
	user       *userRepository
	status     *statusRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix prefixes all collection names, used to isolate
// test runs sharing one Firestore project
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.connection.collectionPrefix = prefix
		f.syncJob.collectionPrefix = prefix
		f.project.collectionPrefix = prefix
		f.issue.collectionPrefix = prefix
		f.user.collectionPrefix = prefix
		f.status.collectionPrefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	var client *firestore.Client
	var err error
	if databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client", goerr.V("projectID", projectID))
	}

	f := &Firestore{
		client:     client,
		connection: newConnectionRepository(client),
		syncJob:    newSyncJobRepository(client),
		project:    newProjectRepository(client),
		issue:      newIssueRepository(client),
		user:       newUserRepository(client),
		status:     newStatusRepository(client),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Connection() interfaces.ConnectionRepository {
	return f.connection
}

func (f *Firestore) SyncJob() interfaces.SyncJobRepository {
	return f.syncJob
}

func (f *Firestore) Project() interfaces.ProjectRepository {
	return f.project
}

func (f *Firestore) Issue() interfaces.IssueRepository {
	return f.issue
}

func (f *Firestore) User() interfaces.UserRepository {
	return f.user
}

func (f *Firestore) Status() interfaces.StatusRepository {
	return f.status
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
