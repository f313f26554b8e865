package atlassian_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/flowlens/pkg/service/atlassian"
)

type stubTokens struct {
	token     string
	refreshes int
}

func (s *stubTokens) AccessToken(ctx context.Context) (string, error) {
	return s.token, nil
}

func (s *stubTokens) ForceRefresh(ctx context.Context) (string, error) {
	s.refreshes++
	s.token = "refreshed-token"
	return s.token, nil
}

func newTestClient(t *testing.T, handler http.Handler) (*atlassian.Client, *stubTokens) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tokens := &stubTokens{token: "initial-token"}
	client := atlassian.NewClient(tokens, "cloud-1",
		atlassian.WithBaseURL(server.URL),
		atlassian.WithMinInterval(time.Millisecond),
	)
	return client, tokens
}

func collectStatuses(t *testing.T, client *atlassian.Client) ([]*atlassian.Status, []error) {
	t.Helper()

	var statuses []*atlassian.Status
	var errs []error
	for status, err := range client.Statuses(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		statuses = append(statuses, status)
	}
	return statuses, errs
}

func TestClientRetriesRateLimit(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `[{"id":"1","name":"To Do","statusCategory":{"key":"new"}}]`)
	}))

	statuses, errs := collectStatuses(t, client)
	gt.Array(t, errs).Length(0)
	gt.Array(t, statuses).Length(1).Required()
	gt.Value(t, statuses[0].Name).Equal("To Do")
	gt.Value(t, attempts).Equal(2)
}

func TestClientRateLimitExhaustion(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, errs := collectStatuses(t, client)
	gt.Array(t, errs).Length(1).Required()
	gt.Bool(t, errors.Is(errs[0], atlassian.ErrRateLimitExceeded)).True()
}

func TestClientRefreshesOnceOn401(t *testing.T) {
	var seenTokens []string
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTokens = append(seenTokens, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer refreshed-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `[]`)
	}))

	_, errs := collectStatuses(t, client)
	gt.Array(t, errs).Length(0)
	gt.Value(t, tokens.refreshes).Equal(1)
	gt.Array(t, seenTokens).Length(2).Required()
	gt.Value(t, seenTokens[0]).Equal("Bearer initial-token")
	gt.Value(t, seenTokens[1]).Equal("Bearer refreshed-token")
}

func TestClientAuthExpiredAfterRefresh(t *testing.T) {
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, errs := collectStatuses(t, client)
	gt.Array(t, errs).Length(1).Required()
	gt.Bool(t, errors.Is(errs[0], atlassian.ErrAuthExpired)).True()
	gt.Value(t, tokens.refreshes).Equal(1)
}

func TestClientRefreshOnFinalAttempt(t *testing.T) {
	attempts := 0
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.Header.Get("Authorization") != "Bearer refreshed-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `[]`)
	}))

	_, errs := collectStatuses(t, client)
	gt.Array(t, errs).Length(0)
	gt.Value(t, tokens.refreshes).Equal(1)
	gt.Value(t, attempts).Equal(4)
}

func TestClientRetriesServerError(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[]`)
	}))

	_, errs := collectStatuses(t, client)
	gt.Array(t, errs).Length(0)
	gt.Value(t, attempts).Equal(3)
}

func TestClientTransientOnPersistentServerError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, errs := collectStatuses(t, client)
	gt.Array(t, errs).Length(1).Required()
	gt.Bool(t, errors.Is(errs[0], atlassian.ErrTransient)).True()
}

func TestClientSkipsMalformedEntities(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":"1","name":"To Do","statusCategory":{"key":"new"}},
			{"name":"missing id"},
			{"id":"3","name":"Done","statusCategory":{"key":"done"}}
		]`)
	}))

	statuses, errs := collectStatuses(t, client)
	gt.Array(t, errs).Length(1).Required()
	gt.Bool(t, errors.Is(errs[0], atlassian.ErrInvalidPayload)).True()
	gt.Array(t, statuses).Length(2).Required()
	gt.Value(t, statuses[0].ID).Equal("1")
	gt.Value(t, statuses[1].StatusCategory.Key).Equal("done")
}

func TestClientIssueCursorPagination(t *testing.T) {
	var bodies []map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]any
		gt.NoError(t, jsonDecode(r, &reqBody)).Required()
		bodies = append(bodies, reqBody)

		if reqBody["nextPageToken"] == nil {
			fmt.Fprint(w, `{"issues":[{"id":"1","key":"PLAT-1","fields":{"summary":"first"}}],"nextPageToken":"page2"}`)
			return
		}
		fmt.Fprint(w, `{"issues":[{"id":"2","key":"PLAT-2","fields":{"summary":"second"}}]}`)
	}))

	var keys []string
	for issue, err := range client.SearchIssues(context.Background(), time.Now().Add(-90*24*time.Hour)) {
		gt.NoError(t, err).Required()
		keys = append(keys, issue.Key)
	}

	gt.Array(t, keys).Equal([]string{"PLAT-1", "PLAT-2"})
	gt.Array(t, bodies).Length(2).Required()
	gt.Value(t, bodies[1]["nextPageToken"]).Equal(any("page2"))
}

func TestClientUsersOffsetPagination(t *testing.T) {
	var offsets []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offsets = append(offsets, r.URL.Query().Get("startAt"))
		if r.URL.Query().Get("startAt") != "0" {
			fmt.Fprint(w, `[]`)
			return
		}
		// full page forces a second fetch
		fmt.Fprint(w, `[`)
		for i := 0; i < 100; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"accountId":"u%d","displayName":"User %d","active":true}`, i, i)
		}
		fmt.Fprint(w, `]`)
	}))

	count := 0
	for _, err := range client.Users(context.Background()) {
		gt.NoError(t, err).Required()
		count++
	}

	gt.Value(t, count).Equal(100)
	gt.Array(t, offsets).Equal([]string{"0", "100"})
}

func TestClientStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"issues":[{"id":"1","key":"PLAT-1","fields":{}}],"nextPageToken":"more"}`)
	}))

	var firstErr error
	for _, err := range client.SearchIssues(ctx, time.Now()) {
		if err != nil {
			firstErr = err
			break
		}
		cancel()
	}

	gt.Error(t, firstErr)
	gt.Bool(t, errors.Is(firstErr, context.Canceled)).True()
}

func jsonDecode(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
