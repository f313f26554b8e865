package atlassian

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/utils/safe"
)

const (
	baseAuthURL = "https://auth.atlassian.com"
	baseAPIURL  = "https://api.atlassian.com"

	// oauthScopes is the fixed scope set every connection requests
	oauthScopes = "read:jira-work read:jira-user offline_access"
)

// OAuth drives the 3LO authorization flow and token refresh. It talks
// over a plain HTTP client; the rate-limited Client is only for the
// cloud API itself.
type OAuth struct {
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
	authURL      string
	apiURL       string
}

type OAuthOption func(*OAuth)

// WithOAuthHTTPClient replaces the HTTP client, used by tests
func WithOAuthHTTPClient(c *http.Client) OAuthOption {
	return func(o *OAuth) {
		o.httpClient = c
	}
}

// WithOAuthBaseURL overrides both endpoint bases, used by tests
func WithOAuthBaseURL(base string) OAuthOption {
	return func(o *OAuth) {
		o.authURL = base
		o.apiURL = base
	}
}

func NewOAuth(clientID, clientSecret, redirectURI string, opts ...OAuthOption) (*OAuth, error) {
	if clientID == "" || clientSecret == "" {
		return nil, goerr.New("OAuth client ID and secret are required")
	}
	if redirectURI == "" {
		return nil, goerr.New("OAuth redirect URI is required")
	}

	o := &OAuth{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		authURL:      baseAuthURL,
		apiURL:       baseAPIURL,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// AuthorizeURL builds the consent page URL the user is redirected to
func (o *OAuth) AuthorizeURL(state string) string {
	params := url.Values{
		"audience":      {"api.atlassian.com"},
		"client_id":     {o.clientID},
		"scope":         {oauthScopes},
		"redirect_uri":  {o.redirectURI},
		"state":         {state},
		"response_type": {"code"},
		"prompt":        {"consent"},
	}
	return o.authURL + "/authorize?" + params.Encode()
}

// ExchangeCode trades an authorization code for tokens
func (o *OAuth) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	return o.tokenRequest(ctx, map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     o.clientID,
		"client_secret": o.clientSecret,
		"code":          code,
		"redirect_uri":  o.redirectURI,
	})
}

// Refresh trades a refresh token for a fresh access token
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return o.tokenRequest(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     o.clientID,
		"client_secret": o.clientSecret,
		"refresh_token": refreshToken,
	})
}

func (o *OAuth) tokenRequest(ctx context.Context, payload map[string]string) (*TokenResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal token request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.authURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build token request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "token request failed")
	}
	defer safe.Close(ctx, resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read token response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.Wrap(ErrAuthExpired, "token endpoint rejected request",
			goerr.V("status", resp.StatusCode), goerr.V("body", truncate(respBody, 200)))
	}

	var token TokenResponse
	if err := json.Unmarshal(respBody, &token); err != nil {
		return nil, goerr.Wrap(err, "failed to decode token response")
	}
	if token.AccessToken == "" {
		return nil, goerr.New("token response has no access token")
	}

	return &token, nil
}

// AccessibleResources lists the cloud sites the token can reach. The
// first entry's ID becomes the connection's cloud ID.
func (o *OAuth) AccessibleResources(ctx context.Context, accessToken string) ([]*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiURL+"/oauth/token/accessible-resources", nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build resources request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "resources request failed")
	}
	defer safe.Close(ctx, resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read resources response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("failed to list accessible resources",
			goerr.V("status", resp.StatusCode), goerr.V("body", truncate(respBody, 200)))
	}

	var resources []*Resource
	if err := json.Unmarshal(respBody, &resources); err != nil {
		return nil, goerr.Wrap(err, "failed to decode resources response")
	}

	return resources, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
