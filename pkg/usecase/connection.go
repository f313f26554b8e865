package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/interfaces"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/utils/logging"
)

// AuthorizeURL returns the consent URL to send the user to
func (uc *UseCases) AuthorizeURL(state string) string {
	return uc.oauth.AuthorizeURL(state)
}

// CompleteOAuth finishes the authorization flow: exchanges the code,
// resolves the cloud site, seals the tokens and stores the connection.
func (uc *UseCases) CompleteOAuth(ctx context.Context, userID types.UserID, code string) (*model.Connection, error) {
	token, err := uc.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to exchange authorization code")
	}

	resources, err := uc.oauth.AccessibleResources(ctx, token.AccessToken)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve accessible resources")
	}
	if len(resources) == 0 {
		return nil, goerr.New("authorized account has no accessible sites")
	}
	site := resources[0]

	encAccess, err := uc.vault.EncryptString(token.AccessToken)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to seal access token")
	}
	encRefresh, err := uc.vault.EncryptString(token.RefreshToken)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to seal refresh token")
	}

	conn, err := uc.repo.Connection().Create(ctx, &model.Connection{
		UserID:          userID,
		SiteURL:         site.URL,
		CloudID:         site.ID,
		Scopes:          strings.Fields(token.Scope),
		EncAccessToken:  encAccess,
		EncRefreshToken: encRefresh,
		ExpiresAt:       token.ExpiresAt(time.Now().UTC()),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store connection")
	}

	logging.From(ctx).Info("connection established",
		"connection_id", conn.ID, "site_url", conn.SiteURL, "user_id", userID)

	return conn, nil
}

// GetConnection returns a connection by ID
func (uc *UseCases) GetConnection(ctx context.Context, connID types.ConnectionID) (*model.Connection, error) {
	return uc.getConnection(ctx, connID)
}

// GetConnectionByUser returns the user's connection
func (uc *UseCases) GetConnectionByUser(ctx context.Context, userID types.UserID) (*model.Connection, error) {
	conn, err := uc.repo.Connection().GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrConnectionNotFound, "no connection for user", goerr.V("user_id", userID))
		}
		return nil, err
	}
	return conn, nil
}

// ListConnections returns every stored connection
func (uc *UseCases) ListConnections(ctx context.Context) ([]*model.Connection, error) {
	return uc.repo.Connection().List(ctx)
}

// Disconnect removes a connection and cascades to everything it owns:
// sync jobs, projects, issues, users and statuses.
func (uc *UseCases) Disconnect(ctx context.Context, connID types.ConnectionID) error {
	if _, err := uc.getConnection(ctx, connID); err != nil {
		return err
	}

	type cascade struct {
		name   string
		delete func(context.Context, types.ConnectionID) (int, error)
	}
	cascades := []cascade{
		{"sync_jobs", uc.repo.SyncJob().DeleteByConnection},
		{"issues", uc.repo.Issue().DeleteByConnection},
		{"projects", uc.repo.Project().DeleteByConnection},
		{"users", uc.repo.User().DeleteByConnection},
		{"statuses", uc.repo.Status().DeleteByConnection},
	}

	logger := logging.From(ctx)
	for _, c := range cascades {
		count, err := c.delete(ctx, connID)
		if err != nil {
			return goerr.Wrap(err, "failed to cascade delete",
				goerr.V("connection_id", connID), goerr.V("collection", c.name))
		}
		logger.Info("cascade deleted", "connection_id", connID, "collection", c.name, "count", count)
	}

	if err := uc.repo.Connection().Delete(ctx, connID); err != nil {
		return goerr.Wrap(err, "failed to delete connection", goerr.V("connection_id", connID))
	}

	logger.Info("connection disconnected", "connection_id", connID)
	return nil
}

// SyncHistory returns recent sync jobs for a connection, newest first
func (uc *UseCases) SyncHistory(ctx context.Context, connID types.ConnectionID, limit int) ([]*model.SyncJob, error) {
	if _, err := uc.getConnection(ctx, connID); err != nil {
		return nil, err
	}
	return uc.repo.SyncJob().ListByConnection(ctx, connID, limit)
}
