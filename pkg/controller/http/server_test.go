package http_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/m-mizutani/gt"
	controller "github.com/secmon-lab/flowlens/pkg/controller/http"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"github.com/secmon-lab/flowlens/pkg/repository/memory"
	"github.com/secmon-lab/flowlens/pkg/service/atlassian"
	"github.com/secmon-lab/flowlens/pkg/service/vault"
	"github.com/secmon-lab/flowlens/pkg/usecase"
)

var testSessionSecret = bytes.Repeat([]byte{0x42}, 32)

func newOAuthStub(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"access_token": "access-token",
			"refresh_token": "refresh-token",
			"expires_in": 3600,
			"scope": "read:jira-work read:jira-user offline_access"
		}`)
	})
	mux.HandleFunc("/oauth/token/accessible-resources", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": "cloud-9", "url": "https://example.atlassian.net", "name": "Example"}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	server *controller.Server
	repo   *memory.Memory
	vault  *vault.Vault
}

func newTestEnv(t *testing.T, opts ...usecase.Option) *testEnv {
	repo := memory.New()
	v, err := vault.New(bytes.Repeat([]byte{0x5a}, 32))
	gt.NoError(t, err).Required()

	oauthSrv := newOAuthStub(t)
	oauth, err := atlassian.NewOAuth("client-id", "client-secret",
		"https://flowlens.example.com/api/auth/callback",
		atlassian.WithOAuthBaseURL(oauthSrv.URL))
	gt.NoError(t, err).Required()

	uc := usecase.New(repo, v, oauth, opts...)
	server, err := controller.New(uc, testSessionSecret)
	gt.NoError(t, err).Required()

	return &testEnv{server: server, repo: repo, vault: v}
}

// login walks the OAuth flow against the stub and returns the session
// cookie
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()

	loginRec := httptest.NewRecorder()
	e.server.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	gt.Value(t, loginRec.Code).Equal(http.StatusFound)

	redirect, err := url.Parse(loginRec.Header().Get("Location"))
	gt.NoError(t, err).Required()
	state := redirect.Query().Get("state")
	gt.String(t, state).NotEqual("")

	var stateCookie *http.Cookie
	for _, c := range loginRec.Result().Cookies() {
		if c.Name == "flowlens_oauth_state" {
			stateCookie = c
		}
	}
	gt.Value(t, stateCookie).NotNil()

	callbackReq := httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=auth-code&state="+state, nil)
	callbackReq.AddCookie(stateCookie)
	callbackRec := httptest.NewRecorder()
	e.server.ServeHTTP(callbackRec, callbackReq)
	gt.Value(t, callbackRec.Code).Equal(http.StatusFound)

	for _, c := range callbackRec.Result().Cookies() {
		if c.Name == "flowlens_session" && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func (e *testEnv) request(t *testing.T, method, path string, session *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if session != nil {
		req.AddCookie(session)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/health", nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)
}

func TestAPIRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/api/connection", nil)
	gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/connection", nil)
	req.AddCookie(&http.Cookie{Name: "flowlens_session", Value: "garbage"})
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=auth-code&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: "flowlens_oauth_state", Value: "original"})
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
}

func TestOAuthFlowCreatesConnection(t *testing.T) {
	env := newTestEnv(t)
	session := env.login(t)

	rec := env.request(t, http.MethodGet, "/api/connection", session)
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	var resp struct {
		ID      string   `json:"id"`
		CloudID string   `json:"cloud_id"`
		SiteURL string   `json:"site_url"`
		Scopes  []string `json:"scopes"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
	gt.Value(t, resp.CloudID).Equal("cloud-9")
	gt.Value(t, resp.SiteURL).Equal("https://example.atlassian.net")
	gt.Array(t, resp.Scopes).Length(3)

	// ciphertext never leaves the server
	gt.Bool(t, bytes.Contains(rec.Body.Bytes(), []byte("access-token"))).False()
}

func TestConnectionNotFoundWithoutOAuth(t *testing.T) {
	env := newTestEnv(t)
	session := env.login(t)

	// disconnect, then the connection lookup turns 404
	rec := env.request(t, http.MethodDelete, "/api/connection", session)
	gt.Value(t, rec.Code).Equal(http.StatusNoContent)

	rec = env.request(t, http.MethodGet, "/api/connection", session)
	gt.Value(t, rec.Code).Equal(http.StatusNotFound)
}

func TestStartSyncConflictReturns409(t *testing.T) {
	env := newTestEnv(t)
	session := env.login(t)

	ctx := context.Background()
	conns, err := env.repo.Connection().List(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, conns).Length(1)

	held := model.NewSyncJob(conns[0].ID)
	gt.NoError(t, env.repo.SyncJob().Start(ctx, held)).Required()

	rec := env.request(t, http.MethodPost, "/api/sync", session)
	gt.Value(t, rec.Code).Equal(http.StatusConflict)
}

func TestSyncHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	session := env.login(t)

	ctx := context.Background()
	conns, err := env.repo.Connection().List(ctx)
	gt.NoError(t, err).Required()
	connID := conns[0].ID

	job := model.NewSyncJob(connID)
	gt.NoError(t, env.repo.SyncJob().Start(ctx, job)).Required()
	finished := time.Now().UTC()
	job.Status = types.SyncStatusSuccess
	job.FinishedAt = &finished
	job.Counts.Issues = 42
	gt.NoError(t, env.repo.SyncJob().Finish(ctx, job)).Required()

	rec := env.request(t, http.MethodGet, "/api/sync/jobs", session)
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	var resp struct {
		Jobs []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Counts struct {
				Issues int `json:"issues"`
				Total  int `json:"total"`
			} `json:"counts"`
		} `json:"jobs"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
	gt.Array(t, resp.Jobs).Length(1)
	gt.Value(t, resp.Jobs[0].Status).Equal("success")
	gt.Value(t, resp.Jobs[0].Counts.Issues).Equal(42)

	// a job ID scoped to another connection is not visible
	rec = env.request(t, http.MethodGet, "/api/sync/jobs/"+job.ID.String(), session)
	gt.Value(t, rec.Code).Equal(http.StatusOK)
	rec = env.request(t, http.MethodGet, "/api/sync/jobs/no-such-job", session)
	gt.Value(t, rec.Code).Equal(http.StatusNotFound)
}

func TestAnalyticsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	session := env.login(t)

	ctx := context.Background()
	conns, err := env.repo.Connection().List(ctx)
	gt.NoError(t, err).Required()
	connID := conns[0].ID

	now := time.Now().UTC()
	created := now.Add(-10 * 24 * time.Hour)
	resolved := now.Add(-24 * time.Hour)
	gt.NoError(t, env.repo.Issue().Upsert(ctx, &model.Issue{
		ConnectionID: connID, ExternalID: "1", Key: "PLAT-1", ProjectID: "10001",
		Summary: "open item", Status: "In Progress", StatusCategory: model.StatusCategoryIndeterminate,
		IssueType: "Task", Assignee: "John Smith", Created: &created, Updated: &now,
	})).Required()
	gt.NoError(t, env.repo.Issue().Upsert(ctx, &model.Issue{
		ConnectionID: connID, ExternalID: "2", Key: "PLAT-2", ProjectID: "10001",
		Summary: "done item", Status: "Done", StatusCategory: model.StatusCategoryDone,
		IssueType: "Task", Assignee: "John Smith",
		Created: &created, Updated: &resolved, Resolved: &resolved,
	})).Required()

	for _, path := range []string{
		"/api/analytics/bottlenecks",
		"/api/analytics/workload",
		"/api/analytics/people",
		"/api/analytics/cycle-time?days=30",
		"/api/analytics/velocity",
		"/api/analytics/cost-of-delay",
		"/api/analytics/roi",
		"/api/analytics/insights",
		"/api/analytics/summary",
	} {
		rec := env.request(t, http.MethodGet, path, session)
		gt.Value(t, rec.Code).Equal(http.StatusOK)
		gt.Value(t, rec.Header().Get("Content-Type")).Equal("application/json")
	}

	rec := env.request(t, http.MethodGet, "/api/analytics/summary", session)
	var summary struct {
		NoData   bool `json:"no_data"`
		Overview struct {
			TotalIssues int `json:"total_issues"`
		} `json:"overview"`
		HealthScore int `json:"health_score"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary)).Required()
	gt.Value(t, summary.NoData).Equal(false)
	gt.Value(t, summary.Overview.TotalIssues).Equal(2)
	gt.Value(t, summary.HealthScore).Equal(100)
}

func TestExportSummaryWithoutStorage(t *testing.T) {
	env := newTestEnv(t)
	session := env.login(t)

	rec := env.request(t, http.MethodPost, "/api/analytics/summary/export", session)
	gt.Value(t, rec.Code).Equal(http.StatusInternalServerError)
}
