package model

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

// Status is a synced workflow status definition
type Status struct {
	ConnectionID types.ConnectionID
	ExternalID   string
	Name         string
	Category     string
	Raw          json.RawMessage
	FetchedAt    time.Time
}

// Validate checks the required fields of a Status
func (s *Status) Validate() error {
	if err := s.ConnectionID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid connection ID")
	}
	if s.ExternalID == "" {
		return goerr.New("status external ID is required")
	}
	return nil
}
