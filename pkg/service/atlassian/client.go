package atlassian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	gojson "github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/utils/safe"
	"golang.org/x/time/rate"
)

const (
	defaultMaxRetries  = 3
	defaultMinInterval = 200 * time.Millisecond
	defaultTimeout     = 30 * time.Second
	pageSize           = 100
)

// issueFields is the field set the issue search always requests
var issueFields = []string{
	"summary", "status", "issuetype", "priority", "assignee",
	"reporter", "created", "updated", "resolutiondate", "project",
}

// TokenSource supplies bearer tokens for API requests. AccessToken
// returns a token valid for at least the caller's safety margin;
// ForceRefresh discards the cached token first, backing the client's
// 401 recovery path.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Client is a rate-limited cloud API client for one connection. All
// page fetches go through the shared limiter, so one sync cannot
// exceed the configured request spacing no matter how many streams it
// consumes.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     TokenSource
	baseURL    string
	maxRetries int
	calls      atomic.Int64
}

type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client, used by tests
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL overrides the API base URL, used by tests
func WithBaseURL(base string) ClientOption {
	return func(cl *Client) {
		cl.baseURL = base
	}
}

// WithMinInterval sets the minimum spacing between requests
func WithMinInterval(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithMaxRetries sets the retry budget per request
func WithMaxRetries(n int) ClientOption {
	return func(cl *Client) {
		cl.maxRetries = n
	}
}

// NewClient builds a client scoped to one connection's cloud site
func NewClient(tokens TokenSource, cloudID string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(defaultMinInterval), 1),
		tokens:     tokens,
		baseURL:    baseAPIURL + "/ex/jira/" + cloudID,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calls returns the number of HTTP requests issued so far
func (c *Client) Calls() int {
	return int(c.calls.Load())
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = gojson.Marshal(body)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal request body")
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get access token")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second

	refreshed := false
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, goerr.Wrap(err, "request spacing wait interrupted")
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to build request", goerr.V("path", path))
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		c.calls.Add(1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, goerr.Wrap(ctx.Err(), "request cancelled", goerr.V("path", path))
			}
			if attempt == c.maxRetries-1 {
				return nil, goerr.Wrap(ErrTransient, "network failure",
					goerr.V("path", path), goerr.V("attempts", c.maxRetries), goerr.V("cause", err.Error()))
			}
			if err := sleepCtx(ctx, bo.NextBackOff()); err != nil {
				return nil, err
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		safe.Close(ctx, resp.Body)

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			if refreshed {
				return nil, goerr.Wrap(ErrAuthExpired, "still unauthorized after token refresh", goerr.V("path", path))
			}
			refreshed = true
			token, err = c.tokens.ForceRefresh(ctx)
			if err != nil {
				return nil, goerr.Wrap(ErrAuthExpired, "token refresh failed", goerr.V("cause", err.Error()))
			}
			// The single refresh retry does not consume the budget,
			// so a 401 on the last attempt still gets its resend.
			attempt--
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header)
			if wait <= 0 {
				wait = bo.NextBackOff()
			}
			if attempt == c.maxRetries-1 {
				return nil, goerr.Wrap(ErrRateLimitExceeded, "rate limited on every attempt",
					goerr.V("path", path), goerr.V("attempts", c.maxRetries), goerr.V("retry_after", wait))
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode >= 500:
			if attempt == c.maxRetries-1 {
				return nil, goerr.Wrap(ErrTransient, "server error on every attempt",
					goerr.V("path", path), goerr.V("status", resp.StatusCode), goerr.V("attempts", c.maxRetries))
			}
			if err := sleepCtx(ctx, bo.NextBackOff()); err != nil {
				return nil, err
			}
			continue

		case resp.StatusCode >= 400:
			return nil, goerr.New("API request rejected",
				goerr.V("path", path), goerr.V("status", resp.StatusCode), goerr.V("body", truncate(respBody, 200)))
		}

		if readErr != nil {
			return nil, goerr.Wrap(readErr, "failed to read response body", goerr.V("path", path))
		}
		return respBody, nil
	}

	return nil, goerr.Wrap(ErrTransient, "retry budget exhausted", goerr.V("path", path))
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := gojson.Unmarshal(body, out); err != nil {
		return goerr.Wrap(err, "failed to decode response", goerr.V("path", path))
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, reqBody, out any) error {
	body, err := c.do(ctx, http.MethodPost, path, nil, reqBody)
	if err != nil {
		return err
	}
	if err := gojson.Unmarshal(body, out); err != nil {
		return goerr.Wrap(err, "failed to decode response", goerr.V("path", path))
	}
	return nil
}

// retryAfter reads the Retry-After header in seconds
func retryAfter(h http.Header) time.Duration {
	value := h.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "retry wait interrupted")
	case <-timer.C:
		return nil
	}
}

// Statuses streams the workflow status catalog
func (c *Client) Statuses(ctx context.Context) iter.Seq2[*Status, error] {
	return func(yield func(*Status, error) bool) {
		var raws []json.RawMessage
		if err := c.getJSON(ctx, "/rest/api/3/status", nil, &raws); err != nil {
			yield(nil, err)
			return
		}

		for _, raw := range raws {
			var status Status
			if err := gojson.Unmarshal(raw, &status); err != nil || status.ID == "" {
				if !yield(nil, goerr.Wrap(ErrInvalidPayload, "malformed status entity")) {
					return
				}
				continue
			}
			status.Raw = raw
			if !yield(&status, nil) {
				return
			}
		}
	}
}

// Projects streams all visible projects
func (c *Client) Projects(ctx context.Context) iter.Seq2[*Project, error] {
	return func(yield func(*Project, error) bool) {
		var raws []json.RawMessage
		if err := c.getJSON(ctx, "/rest/api/3/project", nil, &raws); err != nil {
			yield(nil, err)
			return
		}

		for _, raw := range raws {
			var project Project
			if err := gojson.Unmarshal(raw, &project); err != nil || project.ID == "" {
				if !yield(nil, goerr.Wrap(ErrInvalidPayload, "malformed project entity")) {
					return
				}
				continue
			}
			project.Raw = raw
			if !yield(&project, nil) {
				return
			}
		}
	}
}

// Users streams all accounts via offset pagination
func (c *Client) Users(ctx context.Context) iter.Seq2[*User, error] {
	return func(yield func(*User, error) bool) {
		startAt := 0
		for {
			query := url.Values{
				"startAt":    {strconv.Itoa(startAt)},
				"maxResults": {strconv.Itoa(pageSize)},
			}
			var raws []json.RawMessage
			if err := c.getJSON(ctx, "/rest/api/3/users/search", query, &raws); err != nil {
				yield(nil, err)
				return
			}
			if len(raws) == 0 {
				return
			}

			for _, raw := range raws {
				var user User
				if err := gojson.Unmarshal(raw, &user); err != nil || user.AccountID == "" {
					if !yield(nil, goerr.Wrap(ErrInvalidPayload, "malformed user entity")) {
						return
					}
					continue
				}
				user.Raw = raw
				if !yield(&user, nil) {
					return
				}
			}

			if len(raws) < pageSize {
				return
			}
			startAt += pageSize
		}
	}
}

// SearchIssues streams issues updated at or after the cutoff, newest
// first, via cursor pagination
func (c *Client) SearchIssues(ctx context.Context, since time.Time) iter.Seq2[*Issue, error] {
	return func(yield func(*Issue, error) bool) {
		jql := fmt.Sprintf("updated >= %q ORDER BY updated DESC", since.UTC().Format("2006-01-02 15:04"))

		pageToken := ""
		for {
			reqBody := map[string]any{
				"jql":        jql,
				"maxResults": pageSize,
				"fields":     issueFields,
			}
			if pageToken != "" {
				reqBody["nextPageToken"] = pageToken
			}

			var page searchResponse
			if err := c.postJSON(ctx, "/rest/api/3/search/jql", reqBody, &page); err != nil {
				yield(nil, err)
				return
			}
			if len(page.Issues) == 0 {
				return
			}

			for _, raw := range page.Issues {
				var issue Issue
				if err := gojson.Unmarshal(raw, &issue); err != nil || issue.ID == "" || issue.Key == "" {
					if !yield(nil, goerr.Wrap(ErrInvalidPayload, "malformed issue entity")) {
						return
					}
					continue
				}
				issue.Raw = raw
				if !yield(&issue, nil) {
					return
				}
			}

			if page.NextPageToken == "" {
				return
			}
			pageToken = page.NextPageToken
		}
	}
}
