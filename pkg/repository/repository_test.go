package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/secmon-lab/flowlens/pkg/domain/interfaces"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/repository/firestore"
	"github.com/secmon-lab/flowlens/pkg/repository/memory"
)

func newMemoryRepository(t *testing.T) interfaces.Repository {
	t.Helper()
	return memory.New()
}

func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("test_%d", time.Now().UnixNano())
	repo, err := firestore.New(ctx, projectID, databaseID, firestore.WithCollectionPrefix(prefix))
	if err != nil {
		t.Fatalf("failed to create firestore repository: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("failed to close firestore repository: %v", err)
		}
	})
	return repo
}

// newTestConnection builds a valid connection and stores it
func newTestConnection(t *testing.T, repo interfaces.Repository) *model.Connection {
	t.Helper()

	conn := &model.Connection{
		UserID:          types.NewUserID(),
		SiteURL:         "https://example.atlassian.net",
		CloudID:         "cloud-" + string(types.NewConnectionID()),
		Scopes:          []string{"read:jira-work", "offline_access"},
		EncAccessToken:  "enc-access",
		EncRefreshToken: "enc-refresh",
		ExpiresAt:       time.Now().UTC().Add(time.Hour),
	}

	created, err := repo.Connection().Create(context.Background(), conn)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	return created
}
