package model

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

// User is a synced account from the external system
type User struct {
	ConnectionID types.ConnectionID
	ExternalID   string
	DisplayName  string
	Active       bool
	Raw          json.RawMessage
	FetchedAt    time.Time
}

// Validate checks the required fields of a User
func (u *User) Validate() error {
	if err := u.ConnectionID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid connection ID")
	}
	if u.ExternalID == "" {
		return goerr.New("user external ID is required")
	}
	return nil
}
