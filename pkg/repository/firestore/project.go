package firestore

import (
	"context"
	"encoding/json"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"google.golang.org/api/iterator"
)

type projectDocument struct {
	ConnectionID string    `firestore:"connection_id"`
	ExternalID   string    `firestore:"external_id"`
	Key          string    `firestore:"key"`
	Name         string    `firestore:"name"`
	ProjectType  string    `firestore:"project_type"`
	Raw          []byte    `firestore:"raw"`
	FetchedAt    time.Time `firestore:"fetched_at"`
}

type projectRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newProjectRepository(client *firestore.Client) *projectRepository {
	return &projectRepository{client: client}
}

func (r *projectRepository) collection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_projects"
	}
	return "projects"
}

func projectToDocument(p *model.Project) *projectDocument {
	return &projectDocument{
		ConnectionID: string(p.ConnectionID),
		ExternalID:   p.ExternalID,
		Key:          p.Key,
		Name:         p.Name,
		ProjectType:  p.ProjectType,
		Raw:          p.Raw,
		FetchedAt:    p.FetchedAt,
	}
}

func projectToModel(doc *projectDocument) *model.Project {
	return &model.Project{
		ConnectionID: types.ConnectionID(doc.ConnectionID),
		ExternalID:   doc.ExternalID,
		Key:          doc.Key,
		Name:         doc.Name,
		ProjectType:  doc.ProjectType,
		Raw:          json.RawMessage(doc.Raw),
		FetchedAt:    doc.FetchedAt,
	}
}

func (r *projectRepository) Upsert(ctx context.Context, project *model.Project) error {
	if err := project.Validate(); err != nil {
		return goerr.Wrap(err, "invalid project")
	}
	if project.FetchedAt.IsZero() {
		project.FetchedAt = time.Now().UTC()
	}

	docRef := r.client.Collection(r.collection()).Doc(entityDocID(project.ConnectionID, project.ExternalID))
	if _, err := docRef.Set(ctx, projectToDocument(project)); err != nil {
		return goerr.Wrap(err, "failed to upsert project",
			goerr.V("connection_id", project.ConnectionID), goerr.V("external_id", project.ExternalID))
	}

	return nil
}

func (r *projectRepository) ListByConnection(ctx context.Context, connID types.ConnectionID) ([]*model.Project, error) {
	iter := r.client.Collection(r.collection()).
		Where("connection_id", "==", string(connID)).
		Documents(ctx)
	defer iter.Stop()

	var projects []*model.Project
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list projects", goerr.V("connection_id", connID))
		}

		var data projectDocument
		if err := doc.DataTo(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal project")
		}
		projects = append(projects, projectToModel(&data))
	}

	return projects, nil
}

func (r *projectRepository) CountByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	return countByConnection(ctx, r.client, r.collection(), connID)
}

func (r *projectRepository) DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	return deleteByConnection(ctx, r.client, r.collection(), connID)
}
