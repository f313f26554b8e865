package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

// Connection represents one authorized OAuth link to an external site.
// Token fields hold ciphertext only; the masq `secret` tag keeps them
// out of log output even if the struct is logged wholesale.
type Connection struct {
	ID              types.ConnectionID
	UserID          types.UserID
	SiteURL         string
	CloudID         string
	Scopes          []string
	EncAccessToken  string `masq:"secret"`
	EncRefreshToken string `masq:"secret"`
	ExpiresAt       time.Time
	LastFullSyncAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks the required fields of a Connection
func (c *Connection) Validate() error {
	if err := c.ID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid connection ID")
	}
	if c.CloudID == "" {
		return goerr.New("cloud ID is required", goerr.V("connection_id", c.ID))
	}
	if c.EncAccessToken == "" || c.EncRefreshToken == "" {
		return goerr.New("encrypted tokens are required", goerr.V("connection_id", c.ID))
	}
	return nil
}

// ExpiresWithin reports whether the access token expires before
// now+margin. Callers treat this as the refresh trigger.
func (c *Connection) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return !c.ExpiresAt.After(now.Add(margin))
}
