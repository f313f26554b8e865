package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/interfaces"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/service/atlassian"
	"github.com/secmon-lab/flowlens/pkg/utils/logging"
)

// connectionTokenSource implements atlassian.TokenSource on top of the
// connection's vault-sealed tokens. Refreshed tokens are persisted
// before the new access token is handed out, so a crash between
// refresh and use never loses the rotation.
type connectionTokenSource struct {
	uc     *UseCases
	connID types.ConnectionID
}

func (uc *UseCases) tokenSource(connID types.ConnectionID) atlassian.TokenSource {
	return &connectionTokenSource{uc: uc, connID: connID}
}

func (s *connectionTokenSource) AccessToken(ctx context.Context) (string, error) {
	conn, err := s.uc.getConnection(ctx, s.connID)
	if err != nil {
		return "", err
	}

	if conn.ExpiresWithin(time.Now(), s.uc.tokenMargin) {
		return s.uc.refreshTokens(ctx, conn)
	}

	accessToken, err := s.uc.vault.DecryptString(conn.EncAccessToken)
	if err != nil {
		return "", goerr.Wrap(err, "failed to unseal access token", goerr.V("connection_id", conn.ID))
	}
	return accessToken, nil
}

func (s *connectionTokenSource) ForceRefresh(ctx context.Context) (string, error) {
	conn, err := s.uc.getConnection(ctx, s.connID)
	if err != nil {
		return "", err
	}
	return s.uc.refreshTokens(ctx, conn)
}

func (uc *UseCases) getConnection(ctx context.Context, connID types.ConnectionID) (*model.Connection, error) {
	conn, err := uc.repo.Connection().Get(ctx, connID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrConnectionNotFound, "unknown connection", goerr.V("connection_id", connID))
		}
		return nil, err
	}
	return conn, nil
}

// refreshTokens runs the OAuth refresh and persists the rotated pair.
// Any refresh failure means the grant is gone and the user has to
// reconnect.
func (uc *UseCases) refreshTokens(ctx context.Context, conn *model.Connection) (string, error) {
	refreshToken, err := uc.vault.DecryptString(conn.EncRefreshToken)
	if err != nil {
		return "", goerr.Wrap(err, "failed to unseal refresh token", goerr.V("connection_id", conn.ID))
	}

	token, err := uc.oauth.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, atlassian.ErrAuthExpired) {
			return "", err
		}
		return "", goerr.Wrap(atlassian.ErrAuthExpired, "token refresh failed",
			goerr.V("connection_id", conn.ID), goerr.V("cause", err.Error()))
	}

	encAccess, err := uc.vault.EncryptString(token.AccessToken)
	if err != nil {
		return "", goerr.Wrap(err, "failed to seal access token")
	}

	// The provider rotates refresh tokens; keep the old one only if
	// the response omitted a replacement
	encRefresh := conn.EncRefreshToken
	if token.RefreshToken != "" {
		encRefresh, err = uc.vault.EncryptString(token.RefreshToken)
		if err != nil {
			return "", goerr.Wrap(err, "failed to seal refresh token")
		}
	}

	expiresAt := token.ExpiresAt(time.Now().UTC())
	if err := uc.repo.Connection().UpdateTokens(ctx, conn.ID, encAccess, encRefresh, expiresAt); err != nil {
		return "", goerr.Wrap(err, "failed to persist refreshed tokens", goerr.V("connection_id", conn.ID))
	}

	logging.From(ctx).Info("refreshed connection tokens",
		"connection_id", conn.ID, "expires_at", expiresAt)

	return token.AccessToken, nil
}
