package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/repository/memory"
	"github.com/secmon-lab/flowlens/pkg/service/atlassian"
	"github.com/secmon-lab/flowlens/pkg/usecase"
)

func jiraTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000-0700")
}

// newJiraStub serves the minimal endpoint set a full sync walks
// through: two statuses, one project, two users and two issues.
func newJiraStub(t *testing.T) *httptest.Server {
	now := time.Now().UTC()
	mux := http.NewServeMux()

	mux.HandleFunc("/rest/api/3/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id": "1", "name": "To Do", "statusCategory": {"key": "new"}},
			{"id": "3", "name": "Done", "statusCategory": {"key": "done"}}
		]`)
	})
	mux.HandleFunc("/rest/api/3/project", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": "10001", "key": "PLAT", "name": "Platform", "projectTypeKey": "software"}]`)
	})
	mux.HandleFunc("/rest/api/3/users/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("startAt") != "0" {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, `[
			{"accountId": "acct-1", "displayName": "John Smith", "active": true},
			{"accountId": "acct-2", "displayName": "Rohit Sharma", "active": false}
		]`)
	})
	mux.HandleFunc("/rest/api/3/search/jql", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"issues": [
			{"id": "20001", "key": "PLAT-1", "fields": {
				"summary": "Build pipeline",
				"status": {"name": "To Do", "statusCategory": {"key": "new"}},
				"issuetype": {"name": "Task"},
				"priority": {"name": "High"},
				"assignee": {"accountId": "acct-1", "displayName": "John Smith"},
				"project": {"id": "10001"},
				"created": %q, "updated": %q
			}},
			{"id": "20002", "key": "PLAT-2", "fields": {
				"summary": "Fix login bug",
				"status": {"name": "Done", "statusCategory": {"key": "done"}},
				"issuetype": {"name": "Bug"},
				"project": {"id": "10001"},
				"created": %q, "updated": %q, "resolutiondate": %q
			}}
		], "nextPageToken": ""}`,
			jiraTimestamp(now.Add(-72*time.Hour)), jiraTimestamp(now.Add(-time.Hour)),
			jiraTimestamp(now.Add(-96*time.Hour)), jiraTimestamp(now.Add(-24*time.Hour)),
			jiraTimestamp(now.Add(-24*time.Hour)))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func stubClientFactory(baseURL string) usecase.Option {
	return usecase.WithClientFactory(func(tokens atlassian.TokenSource, cloudID string) *atlassian.Client {
		return atlassian.NewClient(tokens, cloudID,
			atlassian.WithBaseURL(baseURL),
			atlassian.WithMinInterval(time.Millisecond))
	})
}

func TestRunSyncFullPipeline(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	v := newTestVault(t)
	srv := newJiraStub(t)
	uc := newTestUseCases(t, repo, stubClientFactory(srv.URL))
	conn := seedTestConnection(t, ctx, repo, v)

	job, err := uc.RunSync(ctx, conn.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, job.Status).Equal(types.SyncStatusSuccess)
	gt.Value(t, job.Counts.Statuses).Equal(2)
	gt.Value(t, job.Counts.Projects).Equal(1)
	gt.Value(t, job.Counts.Users).Equal(2)
	gt.Value(t, job.Counts.Issues).Equal(2)
	gt.Value(t, job.Counts.Total()).Equal(7)
	gt.Number(t, job.APICalls).Greater(0)
	gt.Value(t, job.StartedAt).NotNil()
	gt.Value(t, job.FinishedAt).NotNil()

	stored, err := uc.GetSyncJob(ctx, job.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, stored.Status).Equal(types.SyncStatusSuccess)

	updated, err := repo.Connection().Get(ctx, conn.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, updated.LastFullSyncAt).NotNil()

	issues, err := repo.Issue().ListByConnection(ctx, conn.ID)
	gt.NoError(t, err).Required()
	gt.Array(t, issues).Length(2)
	for _, issue := range issues {
		if issue.Key == "PLAT-2" {
			gt.Value(t, issue.Resolved).NotNil()
			gt.Value(t, issue.Assignee).Equal("")
		} else {
			gt.Value(t, issue.Assignee).Equal("John Smith")
			gt.Value(t, issue.Priority).Equal("High")
		}
	}
}

func TestRunSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	v := newTestVault(t)
	srv := newJiraStub(t)
	uc := newTestUseCases(t, repo, stubClientFactory(srv.URL))
	conn := seedTestConnection(t, ctx, repo, v)

	first, err := uc.RunSync(ctx, conn.ID)
	gt.NoError(t, err).Required()
	second, err := uc.RunSync(ctx, conn.ID)
	gt.NoError(t, err).Required()

	gt.Value(t, second.Counts).Equal(first.Counts)
	count, err := repo.Issue().CountByConnection(ctx, conn.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, count).Equal(2)
}

func TestStartSyncConflict(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	v := newTestVault(t)
	uc := newTestUseCases(t, repo)
	conn := seedTestConnection(t, ctx, repo, v)

	held := model.NewSyncJob(conn.ID)
	gt.NoError(t, repo.SyncJob().Start(ctx, held)).Required()

	_, err := uc.StartSync(ctx, conn.ID)
	gt.Error(t, err)
	gt.Bool(t, errors.Is(err, usecase.ErrSyncConflict)).True()
}

func TestStartSyncUnknownConnection(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	uc := newTestUseCases(t, repo)

	_, err := uc.StartSync(ctx, types.NewConnectionID())
	gt.Error(t, err)
	gt.Bool(t, errors.Is(err, usecase.ErrConnectionNotFound)).True()
}

func TestRunSyncFailureReleasesSlot(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	v := newTestVault(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": "1", "name": "To Do", "statusCategory": {"key": "new"}}]`)
	})
	mux.HandleFunc("/rest/api/3/project", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessages": ["forbidden"]}`, http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	uc := newTestUseCases(t, repo, stubClientFactory(srv.URL))
	conn := seedTestConnection(t, ctx, repo, v)

	job, err := uc.RunSync(ctx, conn.ID)
	gt.Error(t, err)
	gt.Value(t, job.Status).Equal(types.SyncStatusError)
	gt.String(t, job.Error).NotEqual("")
	gt.Value(t, job.Counts.Statuses).Equal(1)

	latest, err := repo.SyncJob().Latest(ctx, conn.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, latest.Status).Equal(types.SyncStatusError)

	// failed run must not leave the slot claimed
	_, err = uc.RunSync(ctx, conn.ID)
	gt.Error(t, err)
	gt.Bool(t, errors.Is(err, usecase.ErrSyncConflict)).False()
}

func TestRunSyncCancelledMarksJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := memory.New()
	v := newTestVault(t)
	srv := newJiraStub(t)
	uc := newTestUseCases(t, repo, stubClientFactory(srv.URL))
	conn := seedTestConnection(t, context.Background(), repo, v)

	cancel()
	_, err := uc.RunSync(ctx, conn.ID)
	gt.Error(t, err)

	latest, err := repo.SyncJob().Latest(context.Background(), conn.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, latest.Status).Equal(types.SyncStatusError)
	gt.Value(t, latest.Error).Equal("sync cancelled")
}
