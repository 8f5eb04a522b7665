package auth

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenSource resolves the bearer token to attach to an outbound HTTP
// transport request. The HTTP client transport calls it before every POST
// (it opens no GET stream) and never inspects the token itself.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token, useful
// for tests and for servers authenticated with a long-lived API key.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// ClientCredentials is a TokenSource backed by the OAuth2 client-credentials
// grant (golang.org/x/oauth2/clientcredentials), suitable for
// machine-to-machine MCP connections that don't need an interactive login.
type ClientCredentials struct {
	cfg clientcredentials.Config
}

// NewClientCredentials builds a ClientCredentials token source.
func NewClientCredentials(tokenURL, clientID, clientSecret string, scopes []string) *ClientCredentials {
	return &ClientCredentials{cfg: clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}}
}

func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	tok, err := c.cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("auth: client credentials grant: %w", err)
	}
	return tok.AccessToken, nil
}

// WarningHandler is invoked on a non-fatal error, such as a failure to
// persist a refreshed token; the caller already holds a usable token.
type WarningHandler func(serverURL string, warning error)

// CachedTokenSource wraps a delegate TokenSource with a CredentialStore,
// serving the cached token until it's within 30s of expiry and refreshing
// only then.
type CachedTokenSource struct {
	serverURL string
	store     CredentialStore
	refresh   oauth2.TokenSource

	mu        sync.Mutex
	onWarning WarningHandler
}

// NewCachedTokenSource returns a TokenSource that reads/writes cred through
// store, refreshing via refresh once the cached credential is stale.
func NewCachedTokenSource(serverURL string, store CredentialStore, refresh oauth2.TokenSource) *CachedTokenSource {
	return &CachedTokenSource{serverURL: serverURL, store: store, refresh: refresh}
}

// SetWarningHandler installs a callback for non-fatal persistence failures.
func (c *CachedTokenSource) SetWarningHandler(h WarningHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWarning = h
}

func (c *CachedTokenSource) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.Get(c.serverURL)
	if err != nil {
		return "", fmt.Errorf("auth: load cached credential: %w", err)
	}
	if cred != nil && !cred.NeedsRefresh() {
		return cred.AccessToken, nil
	}

	tok, err := c.refresh.Token()
	if err != nil {
		return "", fmt.Errorf("auth: refresh token: %w", err)
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Hour)
	}
	newCred := &Credential{
		ServerURL:   c.serverURL,
		AccessToken: tok.AccessToken,
		ExpiresAt:   expiresAt.UnixMilli(),
	}
	if cred != nil {
		newCred.ClientID = cred.ClientID
		newCred.ClientSecret = cred.ClientSecret
	}
	if tok.RefreshToken != "" {
		newCred.RefreshToken = tok.RefreshToken
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		newCred.Scopes = strings.Split(scope, " ")
	}

	if err := c.store.Put(newCred); err != nil {
		log.Printf("auth: failed to persist refreshed token for %s: %v", c.serverURL, err)
		if c.onWarning != nil {
			c.onWarning(c.serverURL, fmt.Errorf("refreshed token not saved, re-auth required on restart: %w", err))
		}
	}

	return newCred.AccessToken, nil
}

// Logout deletes a server's cached credential.
func Logout(store CredentialStore, serverURL string) error {
	return store.Delete(serverURL)
}
