package model

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

// Project is a synced project record. Identity is
// (connection_id, external_id); a sync replaces the row wholesale.
type Project struct {
	ConnectionID types.ConnectionID
	ExternalID   string
	Key          string
	Name         string
	ProjectType  string
	Raw          json.RawMessage
	FetchedAt    time.Time
}

// Validate checks the required fields of a Project
func (p *Project) Validate() error {
	if err := p.ConnectionID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid connection ID")
	}
	if p.ExternalID == "" {
		return goerr.New("project external ID is required")
	}
	return nil
}
