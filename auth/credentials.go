// Package auth provides the client-side bearer-token resolution and
// server-side token validation hooks used by the Streamable HTTP transport.
//
// The protocol engine never implements an authorization flow itself — OAuth
// token validation is a policy callback supplied by the embedder. This
// package supplies the plumbing a typical embedder needs
// (a refreshing token source, a credential cache) without prescribing how
// the initial token is obtained.
package auth

import (
	"errors"
	"time"
)

// Credential represents a cached OAuth token for one remote MCP server.
type Credential struct {
	ServerURL string `json:"server_url"`

	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`

	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is when the access token expires (Unix milliseconds).
	ExpiresAt int64 `json:"expires_at"`

	Scopes []string `json:"scopes,omitempty"`
}

// Validate checks that all required fields are set.
func (c *Credential) Validate() error {
	if c.ServerURL == "" {
		return errors.New("auth: credential ServerURL is required")
	}
	if c.AccessToken == "" {
		return errors.New("auth: credential AccessToken is required")
	}
	if c.ExpiresAt <= 0 {
		return errors.New("auth: credential ExpiresAt must be a positive timestamp")
	}
	return nil
}

// NewCredential builds a validated Credential.
func NewCredential(serverURL, clientID, clientSecret, accessToken, refreshToken string, expiresAt time.Time, scopes []string) (*Credential, error) {
	cred := &Credential{
		ServerURL:    serverURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt.UnixMilli(),
		Scopes:       scopes,
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	return cred, nil
}

// IsExpired reports whether the access token has expired.
func (c Credential) IsExpired() bool {
	return time.Now().UnixMilli() >= c.ExpiresAt
}

// NeedsRefresh reports whether the token should be refreshed, 30s ahead of
// actual expiry so an in-flight request never races the deadline.
func (c Credential) NeedsRefresh() bool {
	return time.Now().Add(30*time.Second).UnixMilli() >= c.ExpiresAt
}

// CredentialStore persists credentials across process restarts.
type CredentialStore interface {
	Get(serverURL string) (*Credential, error)
	Put(cred *Credential) error
	Delete(serverURL string) error
	List() ([]*Credential, error)
}
