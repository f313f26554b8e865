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

type statusDocument struct {
	ConnectionID string    `firestore:"connection_id"`
	ExternalID   string    `firestore:"external_id"`
	Name         string    `firestore:"name"`
	Category     string    `firestore:"category"`
	Raw          []byte    `firestore:"raw"`
	FetchedAt    time.Time `firestore:"fetched_at"`
}

type statusRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newStatusRepository(client *firestore.Client) *statusRepository {
	return &statusRepository{client: client}
}

func (r *statusRepository) collection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_statuses"
	}
	return "statuses"
}

func statusToDocument(s *model.Status) *statusDocument {
	return &statusDocument{
		ConnectionID: string(s.ConnectionID),
		ExternalID:   s.ExternalID,
		Name:         s.Name,
		Category:     s.Category,
		Raw:          s.Raw,
		FetchedAt:    s.FetchedAt,
	}
}

func statusToModel(doc *statusDocument) *model.Status {
	return &model.Status{
		ConnectionID: types.ConnectionID(doc.ConnectionID),
		ExternalID:   doc.ExternalID,
		Name:         doc.Name,
		Category:     doc.Category,
		Raw:          json.RawMessage(doc.Raw),
		FetchedAt:    doc.FetchedAt,
	}
}

func (r *statusRepository) Upsert(ctx context.Context, status *model.Status) error {
	if err := status.Validate(); err != nil {
		return goerr.Wrap(err, "invalid status")
	}
	if status.FetchedAt.IsZero() {
		status.FetchedAt = time.Now().UTC()
	}

	docRef := r.client.Collection(r.collection()).Doc(entityDocID(status.ConnectionID, status.ExternalID))
	if _, err := docRef.Set(ctx, statusToDocument(status)); err != nil {
		return goerr.Wrap(err, "failed to upsert status",
			goerr.V("connection_id", status.ConnectionID), goerr.V("external_id", status.ExternalID))
	}

	return nil
}

func (r *statusRepository) ListByConnection(ctx context.Context, connID types.ConnectionID) ([]*model.Status, error) {
	iter := r.client.Collection(r.collection()).
		Where("connection_id", "==", string(connID)).
		Documents(ctx)
	defer iter.Stop()

	var statuses []*model.Status
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list statuses", goerr.V("connection_id", connID))
		}

		var data statusDocument
		if err := doc.DataTo(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal status")
		}
		statuses = append(statuses, statusToModel(&data))
	}

	return statuses, nil
}

func (r *statusRepository) DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	return deleteByConnection(ctx, r.client, r.collection(), connID)
}
