package types

import (
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// ConnectionID identifies one authorized link to an external site
type ConnectionID string

// NewConnectionID generates a new random ConnectionID
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// Validate checks if the ConnectionID is valid
func (x ConnectionID) Validate() error {
	if x == "" {
		return goerr.New("connection ID cannot be empty")
	}
	return nil
}

// String returns the string representation of ConnectionID
func (x ConnectionID) String() string {
	return string(x)
}

// SyncJobID identifies one sync attempt
type SyncJobID string

// NewSyncJobID generates a new random SyncJobID
func NewSyncJobID() SyncJobID {
	return SyncJobID(uuid.NewString())
}

// Validate checks if the SyncJobID is valid
func (x SyncJobID) Validate() error {
	if x == "" {
		return goerr.New("sync job ID cannot be empty")
	}
	return nil
}

// String returns the string representation of SyncJobID
func (x SyncJobID) String() string {
	return string(x)
}

// UserID identifies an application user who owns connections
type UserID string

// NewUserID generates a new random UserID
func NewUserID() UserID {
	return UserID(uuid.NewString())
}

// Validate checks if the UserID is valid
func (x UserID) Validate() error {
	if x == "" {
		return goerr.New("user ID cannot be empty")
	}
	return nil
}

// String returns the string representation of UserID
func (x UserID) String() string {
	return string(x)
}
