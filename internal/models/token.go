package models

import (
	"time"
)

// Access token as returned by '/auth/login', '/auth/refresh' and '/auth/register'
type AccessToken struct {
	Value string `json:"access_token"`
	Type  string `json:"token_type,omitempty"`
}

// Credential persisted by the client between runs
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the credential expiry is strictly before now
func (c Credential) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
