package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/secmon-lab/flowlens/pkg/domain/interfaces"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

func runConnectionRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create assigns ID and timestamps", func(t *testing.T) {
		repo := newRepo(t)

		created := newTestConnection(t, repo)

		if created.ID == "" {
			t.Error("expected non-empty ID")
		}
		if created.CreatedAt.IsZero() {
			t.Error("expected non-zero CreatedAt")
		}
		if created.UpdatedAt.IsZero() {
			t.Error("expected non-zero UpdatedAt")
		}
		if created.LastFullSyncAt != nil {
			t.Errorf("expected nil LastFullSyncAt, got %v", created.LastFullSyncAt)
		}
	})

	t.Run("Get retrieves stored connection", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created := newTestConnection(t, repo)

		retrieved, err := repo.Connection().Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("failed to get connection: %v", err)
		}
		if retrieved.CloudID != created.CloudID {
			t.Errorf("expected cloudID=%s, got %s", created.CloudID, retrieved.CloudID)
		}
		if retrieved.EncAccessToken != created.EncAccessToken {
			t.Error("access token ciphertext mismatch")
		}
		if len(retrieved.Scopes) != 2 {
			t.Errorf("expected 2 scopes, got %d", len(retrieved.Scopes))
		}
	})

	t.Run("Get returns ErrNotFound for unknown ID", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.Connection().Get(context.Background(), types.NewConnectionID())
		if !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetByUser finds the user's connection", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created := newTestConnection(t, repo)

		retrieved, err := repo.Connection().GetByUser(ctx, created.UserID)
		if err != nil {
			t.Fatalf("failed to get connection by user: %v", err)
		}
		if retrieved.ID != created.ID {
			t.Errorf("expected ID=%s, got %s", created.ID, retrieved.ID)
		}

		if _, err := repo.Connection().GetByUser(ctx, types.NewUserID()); !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown user, got %v", err)
		}
	})

	t.Run("List returns all connections", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conns, err := repo.Connection().List(ctx)
		if err != nil {
			t.Fatalf("failed to list connections: %v", err)
		}
		if len(conns) != 0 {
			t.Errorf("expected 0 connections, got %d", len(conns))
		}

		newTestConnection(t, repo)
		newTestConnection(t, repo)

		conns, err = repo.Connection().List(ctx)
		if err != nil {
			t.Fatalf("failed to list connections: %v", err)
		}
		if len(conns) != 2 {
			t.Errorf("expected 2 connections, got %d", len(conns))
		}
	})

	t.Run("UpdateTokens rewrites ciphertexts and expiry", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created := newTestConnection(t, repo)
		newExpiry := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Millisecond)

		if err := repo.Connection().UpdateTokens(ctx, created.ID, "enc-access-2", "enc-refresh-2", newExpiry); err != nil {
			t.Fatalf("failed to update tokens: %v", err)
		}

		retrieved, err := repo.Connection().Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("failed to get connection: %v", err)
		}
		if retrieved.EncAccessToken != "enc-access-2" {
			t.Errorf("expected updated access token, got %s", retrieved.EncAccessToken)
		}
		if retrieved.EncRefreshToken != "enc-refresh-2" {
			t.Errorf("expected updated refresh token, got %s", retrieved.EncRefreshToken)
		}
		if !retrieved.ExpiresAt.Equal(newExpiry) {
			t.Errorf("expected expiresAt=%v, got %v", newExpiry, retrieved.ExpiresAt)
		}

		err = repo.Connection().UpdateTokens(ctx, types.NewConnectionID(), "a", "r", newExpiry)
		if !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("MarkFullSync stamps the completion time", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created := newTestConnection(t, repo)
		at := time.Now().UTC().Truncate(time.Millisecond)

		if err := repo.Connection().MarkFullSync(ctx, created.ID, at); err != nil {
			t.Fatalf("failed to mark full sync: %v", err)
		}

		retrieved, err := repo.Connection().Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("failed to get connection: %v", err)
		}
		if retrieved.LastFullSyncAt == nil {
			t.Fatal("expected non-nil LastFullSyncAt")
		}
		if !retrieved.LastFullSyncAt.Equal(at) {
			t.Errorf("expected lastFullSyncAt=%v, got %v", at, retrieved.LastFullSyncAt)
		}
	})

	t.Run("Delete removes the connection", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created := newTestConnection(t, repo)

		if err := repo.Connection().Delete(ctx, created.ID); err != nil {
			t.Fatalf("failed to delete connection: %v", err)
		}
		if _, err := repo.Connection().Get(ctx, created.ID); !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.Connection().Delete(ctx, created.ID); !errors.Is(err, interfaces.ErrNotFound) {
			t.Errorf("expected ErrNotFound for double delete, got %v", err)
		}
	})
}

func TestMemoryConnectionRepository(t *testing.T) {
	runConnectionRepositoryTest(t, newMemoryRepository)
}

func TestFirestoreConnectionRepository(t *testing.T) {
	runConnectionRepositoryTest(t, newFirestoreRepository)
}
