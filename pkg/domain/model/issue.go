package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

// Status categories reported by the external API. "done" marks a
// terminal status.
const (
	StatusCategoryNew           = "new"
	StatusCategoryIndeterminate = "indeterminate"
	StatusCategoryDone          = "done"
)

// Issue is a synced work item. Normalized fields cover what the
// analytics queries need; Raw keeps the original payload untouched.
type Issue struct {
	ConnectionID   types.ConnectionID
	ExternalID     string
	Key            string
	ProjectID      string
	Summary        string
	Status         string
	StatusCategory string
	IssueType      string
	Priority       string
	Assignee       string
	AssigneeID     string
	Reporter       string
	Created        *time.Time
	Updated        *time.Time
	Resolved       *time.Time
	Raw            json.RawMessage
	FetchedAt      time.Time
}

// Validate checks the required fields of an Issue
func (i *Issue) Validate() error {
	if err := i.ConnectionID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid connection ID")
	}
	if i.ExternalID == "" {
		return goerr.New("issue external ID is required", goerr.V("key", i.Key))
	}
	return nil
}

// terminalStatusNames is the fallback for records synced before the
// status catalog carried categories.
var terminalStatusNames = map[string]bool{
	"done":      true,
	"resolved":  true,
	"closed":    true,
	"cancelled": true,
}

// IsTerminal reports whether the issue is in a terminal status
func (i *Issue) IsTerminal() bool {
	if i.StatusCategory != "" {
		return i.StatusCategory == StatusCategoryDone
	}
	return terminalStatusNames[strings.ToLower(i.Status)]
}

// IsAssigned reports whether the issue has an assignee
func (i *Issue) IsAssigned() bool {
	return i.Assignee != ""
}

// CycleTime returns resolved-created, and false when either timestamp
// is missing. Issues without both are excluded from cycle metrics, not
// counted as zero.
func (i *Issue) CycleTime() (time.Duration, bool) {
	if i.Created == nil || i.Resolved == nil {
		return 0, false
	}
	return i.Resolved.Sub(*i.Created), true
}

// DaysSinceUpdate returns the staleness of the issue in days
func (i *Issue) DaysSinceUpdate(now time.Time) float64 {
	if i.Updated == nil {
		return 0
	}
	return now.Sub(*i.Updated).Hours() / 24
}
