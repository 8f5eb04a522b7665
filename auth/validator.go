package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned by a Validator when the presented token is
// missing, malformed, or rejected.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator is the server-side policy callback for bearer-token
// authorization: given a request's bearer token (see BearerFromRequest), it
// decides whether the session may proceed. The engine never interprets the
// token's contents. The transport package's HTTPServer does not call a
// Validator itself.
type Validator func(ctx context.Context, bearerToken string) error

// AllowAll is a Validator that accepts every request.
func AllowAll(context.Context, string) error { return nil }

// StaticBearer returns a Validator that accepts only an exact token match,
// suitable for a single shared API key.
func StaticBearer(expected string) Validator {
	return func(_ context.Context, token string) error {
		if token == "" || token != expected {
			return ErrUnauthorized
		}
		return nil
	}
}

// BearerFromRequest extracts the token from a standard "Authorization:
// Bearer <token>" header, returning "" if absent or malformed.
func BearerFromRequest(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}
