package usecase_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/repository/memory"
	"github.com/secmon-lab/flowlens/pkg/service/atlassian"
	"github.com/secmon-lab/flowlens/pkg/service/vault"
	"github.com/secmon-lab/flowlens/pkg/usecase"
)

var testVaultKey = bytes.Repeat([]byte{0x5a}, 32)

func newTestVault(t *testing.T) *vault.Vault {
	v, err := vault.New(testVaultKey)
	gt.NoError(t, err).Required()
	return v
}

func newTestOAuth(t *testing.T, baseURL string) *atlassian.OAuth {
	opts := []atlassian.OAuthOption{}
	if baseURL != "" {
		opts = append(opts, atlassian.WithOAuthBaseURL(baseURL))
	}
	o, err := atlassian.NewOAuth("client-id", "client-secret", "https://flowlens.example.com/oauth/callback", opts...)
	gt.NoError(t, err).Required()
	return o
}

func newTestUseCases(t *testing.T, repo *memory.Memory, opts ...usecase.Option) *usecase.UseCases {
	return usecase.New(repo, newTestVault(t), newTestOAuth(t, ""), opts...)
}

func seedTestConnection(t *testing.T, ctx context.Context, repo *memory.Memory, v *vault.Vault) *model.Connection {
	encAccess, err := v.EncryptString("access-token")
	gt.NoError(t, err).Required()
	encRefresh, err := v.EncryptString("refresh-token")
	gt.NoError(t, err).Required()

	conn := &model.Connection{
		UserID:          types.NewUserID(),
		SiteURL:         "https://example.atlassian.net",
		CloudID:         "cloud-1",
		Scopes:          []string{"read:jira-work", "read:jira-user", "offline_access"},
		EncAccessToken:  encAccess,
		EncRefreshToken: encRefresh,
		ExpiresAt:       time.Now().UTC().Add(time.Hour),
	}
	created, err := repo.Connection().Create(ctx, conn)
	gt.NoError(t, err).Required()
	return created
}

// seedTestIssue stores an in-progress issue assigned to an internal
// member, created 10 days ago. Mutate adjusts it per test.
func seedTestIssue(t *testing.T, ctx context.Context, repo *memory.Memory, connID types.ConnectionID, key string, mutate func(*model.Issue)) *model.Issue {
	now := time.Now().UTC()
	created := now.Add(-10 * 24 * time.Hour)

	issue := &model.Issue{
		ConnectionID:   connID,
		ExternalID:     "issue-" + key,
		Key:            key,
		ProjectID:      "10001",
		Summary:        "work item " + key,
		Status:         "In Progress",
		StatusCategory: model.StatusCategoryIndeterminate,
		IssueType:      "Task",
		Priority:       "Medium",
		Assignee:       "John Smith",
		AssigneeID:     "acct-1",
		Created:        &created,
		Updated:        &now,
	}
	if mutate != nil {
		mutate(issue)
	}
	gt.NoError(t, repo.Issue().Upsert(ctx, issue)).Required()
	return issue
}

func resolveTestIssue(issue *model.Issue, resolved time.Time, cycle time.Duration) {
	created := resolved.Add(-cycle)
	issue.Created = &created
	issue.Resolved = &resolved
	issue.Status = "Done"
	issue.StatusCategory = model.StatusCategoryDone
}
