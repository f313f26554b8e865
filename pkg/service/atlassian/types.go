package atlassian

import (
	"encoding/json"
	"time"
)

// jiraTimeLayout is the timestamp format the REST API emits
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// ParseTime parses a Jira REST timestamp. Returns nil for an empty
// string so callers can store the absence directly.
func ParseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(jiraTimeLayout, s)
	if err != nil {
		return nil, err
	}
	utc := t.UTC()
	return &utc, nil
}

// TokenResponse is the OAuth token endpoint response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// ExpiresAt converts the relative expiry into an absolute timestamp
func (r *TokenResponse) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(r.ExpiresIn) * time.Second)
}

// Resource is one entry from the accessible-resources endpoint
type Resource struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

// StatusCategory groups workflow statuses. The "done" key marks
// terminal statuses.
type StatusCategory struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Status is a workflow status definition
type Status struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	StatusCategory StatusCategory `json:"statusCategory"`

	Raw json.RawMessage `json:"-"`
}

// Project is a project summary from the project endpoint
type Project struct {
	ID             string `json:"id"`
	Key            string `json:"key"`
	Name           string `json:"name"`
	ProjectTypeKey string `json:"projectTypeKey"`

	Raw json.RawMessage `json:"-"`
}

// User is an account from the user search endpoint
type User struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Active      bool   `json:"active"`
	AccountType string `json:"accountType"`

	Raw json.RawMessage `json:"-"`
}

// IssueFields is the subset of issue fields the sync requests
type IssueFields struct {
	Summary string `json:"summary"`
	Status  struct {
		Name           string         `json:"name"`
		StatusCategory StatusCategory `json:"statusCategory"`
	} `json:"status"`
	IssueType struct {
		Name string `json:"name"`
	} `json:"issuetype"`
	Priority *struct {
		Name string `json:"name"`
	} `json:"priority"`
	Assignee *struct {
		AccountID   string `json:"accountId"`
		DisplayName string `json:"displayName"`
	} `json:"assignee"`
	Reporter *struct {
		DisplayName string `json:"displayName"`
	} `json:"reporter"`
	Project struct {
		ID string `json:"id"`
	} `json:"project"`
	Created        string `json:"created"`
	Updated        string `json:"updated"`
	ResolutionDate string `json:"resolutiondate"`
}

// Issue is a work item from the search endpoint
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`

	Raw json.RawMessage `json:"-"`
}

type searchResponse struct {
	Issues        []json.RawMessage `json:"issues"`
	NextPageToken string            `json:"nextPageToken"`
}
