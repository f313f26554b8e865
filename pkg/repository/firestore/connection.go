package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type connectionDocument struct {
	ID              string     `firestore:"id"`
	UserID          string     `firestore:"user_id"`
	SiteURL         string     `firestore:"site_url"`
	CloudID         string     `firestore:"cloud_id"`
	Scopes          []string   `firestore:"scopes"`
	EncAccessToken  string     `firestore:"enc_access_token"`
	EncRefreshToken string     `firestore:"enc_refresh_token"`
	ExpiresAt       time.Time  `firestore:"expires_at"`
	LastFullSyncAt  *time.Time `firestore:"last_full_sync_at"`
	CreatedAt       time.Time  `firestore:"created_at"`
	UpdatedAt       time.Time  `firestore:"updated_at"`
}

type connectionRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newConnectionRepository(client *firestore.Client) *connectionRepository {
	return &connectionRepository{client: client}
}

func (r *connectionRepository) collection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_connections"
	}
	return "connections"
}

func connectionToDocument(conn *model.Connection) *connectionDocument {
	return &connectionDocument{
		ID:              string(conn.ID),
		UserID:          string(conn.UserID),
		SiteURL:         conn.SiteURL,
		CloudID:         conn.CloudID,
		Scopes:          conn.Scopes,
		EncAccessToken:  conn.EncAccessToken,
		EncRefreshToken: conn.EncRefreshToken,
		ExpiresAt:       conn.ExpiresAt,
		LastFullSyncAt:  conn.LastFullSyncAt,
		CreatedAt:       conn.CreatedAt,
		UpdatedAt:       conn.UpdatedAt,
	}
}

func connectionToModel(doc *connectionDocument) *model.Connection {
	return &model.Connection{
		ID:              types.ConnectionID(doc.ID),
		UserID:          types.UserID(doc.UserID),
		SiteURL:         doc.SiteURL,
		CloudID:         doc.CloudID,
		Scopes:          doc.Scopes,
		EncAccessToken:  doc.EncAccessToken,
		EncRefreshToken: doc.EncRefreshToken,
		ExpiresAt:       doc.ExpiresAt,
		LastFullSyncAt:  doc.LastFullSyncAt,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func (r *connectionRepository) Create(ctx context.Context, conn *model.Connection) (*model.Connection, error) {
	now := time.Now().UTC()
	if conn.ID == "" {
		conn.ID = types.NewConnectionID()
	}
	conn.CreatedAt = now
	conn.UpdatedAt = now

	if err := conn.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid connection")
	}

	doc := connectionToDocument(conn)
	docRef := r.client.Collection(r.collection()).Doc(string(conn.ID))
	if _, err := docRef.Set(ctx, doc); err != nil {
		return nil, goerr.Wrap(err, "failed to create connection")
	}

	return connectionToModel(doc), nil
}

func (r *connectionRepository) Get(ctx context.Context, id types.ConnectionID) (*model.Connection, error) {
	docRef := r.client.Collection(r.collection()).Doc(string(id))
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get connection", goerr.V("id", id))
	}

	var data connectionDocument
	if err := doc.DataTo(&data); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal connection")
	}

	return connectionToModel(&data), nil
}

func (r *connectionRepository) GetByUser(ctx context.Context, userID types.UserID) (*model.Connection, error) {
	iter := r.client.Collection(r.collection()).
		Where("user_id", "==", string(userID)).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, goerr.Wrap(ErrNotFound, "connection not found for user", goerr.V("user_id", userID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query connection by user", goerr.V("user_id", userID))
	}

	var data connectionDocument
	if err := doc.DataTo(&data); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal connection")
	}

	return connectionToModel(&data), nil
}

func (r *connectionRepository) List(ctx context.Context) ([]*model.Connection, error) {
	iter := r.client.Collection(r.collection()).Documents(ctx)
	defer iter.Stop()

	var conns []*model.Connection
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list connections")
		}

		var data connectionDocument
		if err := doc.DataTo(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal connection")
		}
		conns = append(conns, connectionToModel(&data))
	}

	return conns, nil
}

func (r *connectionRepository) UpdateTokens(ctx context.Context, id types.ConnectionID, encAccess, encRefresh string, expiresAt time.Time) error {
	docRef := r.client.Collection(r.collection()).Doc(string(id))
	updates := []firestore.Update{
		{Path: "enc_access_token", Value: encAccess},
		{Path: "enc_refresh_token", Value: encRefresh},
		{Path: "expires_at", Value: expiresAt},
		{Path: "updated_at", Value: time.Now().UTC()},
	}

	if _, err := docRef.Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to update connection tokens", goerr.V("id", id))
	}

	return nil
}

func (r *connectionRepository) MarkFullSync(ctx context.Context, id types.ConnectionID, at time.Time) error {
	docRef := r.client.Collection(r.collection()).Doc(string(id))
	updates := []firestore.Update{
		{Path: "last_full_sync_at", Value: at},
		{Path: "updated_at", Value: time.Now().UTC()},
	}

	if _, err := docRef.Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to mark full sync", goerr.V("id", id))
	}

	return nil
}

func (r *connectionRepository) Delete(ctx context.Context, id types.ConnectionID) error {
	docRef := r.client.Collection(r.collection()).Doc(string(id))

	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to get connection", goerr.V("id", id))
	}

	if _, err := docRef.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete connection", goerr.V("id", id))
	}

	return nil
}
