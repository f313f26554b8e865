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

type userDocument struct {
	ConnectionID string    `firestore:"connection_id"`
	ExternalID   string    `firestore:"external_id"`
	DisplayName  string    `firestore:"display_name"`
	Active       bool      `firestore:"active"`
	Raw          []byte    `firestore:"raw"`
	FetchedAt    time.Time `firestore:"fetched_at"`
}

type userRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newUserRepository(client *firestore.Client) *userRepository {
	return &userRepository{client: client}
}

func (r *userRepository) collection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_users"
	}
	return "users"
}

func userToDocument(u *model.User) *userDocument {
	return &userDocument{
		ConnectionID: string(u.ConnectionID),
		ExternalID:   u.ExternalID,
		DisplayName:  u.DisplayName,
		Active:       u.Active,
		Raw:          u.Raw,
		FetchedAt:    u.FetchedAt,
	}
}

func userToModel(doc *userDocument) *model.User {
	return &model.User{
		ConnectionID: types.ConnectionID(doc.ConnectionID),
		ExternalID:   doc.ExternalID,
		DisplayName:  doc.DisplayName,
		Active:       doc.Active,
		Raw:          json.RawMessage(doc.Raw),
		FetchedAt:    doc.FetchedAt,
	}
}

func (r *userRepository) Upsert(ctx context.Context, user *model.User) error {
	if err := user.Validate(); err != nil {
		return goerr.Wrap(err, "invalid user")
	}
	if user.FetchedAt.IsZero() {
		user.FetchedAt = time.Now().UTC()
	}

	docRef := r.client.Collection(r.collection()).Doc(entityDocID(user.ConnectionID, user.ExternalID))
	if _, err := docRef.Set(ctx, userToDocument(user)); err != nil {
		return goerr.Wrap(err, "failed to upsert user",
			goerr.V("connection_id", user.ConnectionID), goerr.V("external_id", user.ExternalID))
	}

	return nil
}

func (r *userRepository) ListByConnection(ctx context.Context, connID types.ConnectionID) ([]*model.User, error) {
	iter := r.client.Collection(r.collection()).
		Where("connection_id", "==", string(connID)).
		Documents(ctx)
	defer iter.Stop()

	var users []*model.User
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list users", goerr.V("connection_id", connID))
		}

		var data userDocument
		if err := doc.DataTo(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal user")
		}
		users = append(users, userToModel(&data))
	}

	return users, nil
}

func (r *userRepository) CountActive(ctx context.Context, connID types.ConnectionID) (int, error) {
	return countQuery(ctx, r.client.Collection(r.collection()).
		Where("connection_id", "==", string(connID)).
		Where("active", "==", true))
}

func (r *userRepository) DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	return deleteByConnection(ctx, r.client, r.collection(), connID)
}
