// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"
)

// TokenInfo describes a verified bearer token, as returned by a VerifierFunc.
type TokenInfo struct {
	// Scopes granted to the token.
	Scopes []string
	// Expiration is when the token stops being valid. The zero value means
	// the token has no expiration and is rejected.
	Expiration time.Time
	// UserID identifies the subject the token was issued to, if known.
	UserID string
}

// VerifierFunc validates a bearer token extracted from an incoming request
// and returns the information it carries.
type VerifierFunc func(ctx context.Context, token string, req *http.Request) (*TokenInfo, error)

// ErrInvalidToken is returned by a VerifierFunc when the token is malformed,
// unknown, or otherwise rejected by the resource server.
var ErrInvalidToken = errors.New("invalid token")

// ErrOAuth is returned by a VerifierFunc when verification itself failed for
// an OAuth-protocol reason (e.g. the authorization server is unreachable),
// as opposed to the token simply being invalid.
var ErrOAuth = errors.New("oauth error")

// RequireBearerTokenOptions configures RequireBearerToken.
type RequireBearerTokenOptions struct {
	// Scopes that the token must carry. A request whose token lacks any of
	// these scopes is rejected with 403 Forbidden.
	Scopes []string
	// ResourceMetadataURL, if set, is advertised in the WWW-Authenticate
	// header of rejected requests per RFC 9728 ยง5.1.
	ResourceMetadataURL string
}

// verify checks the Authorization header of req against verifier and opts,
// returning the verified token, or a message and HTTP status code to report
// on failure. A zero code indicates success.
func verify(req *http.Request, verifier VerifierFunc, opts *RequireBearerTokenOptions) (*TokenInfo, string, int) {
	const prefix = "bearer "
	h := req.Header.Get("Authorization")
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return nil, "no bearer token", http.StatusUnauthorized
	}
	token := h[len(prefix):]

	info, err := verifier(req.Context(), token, req)
	switch {
	case errors.Is(err, ErrInvalidToken):
		return nil, "invalid token", http.StatusUnauthorized
	case errors.Is(err, ErrOAuth):
		return nil, "oauth error", http.StatusBadRequest
	case err != nil:
		return nil, "token verification failed", http.StatusUnauthorized
	}

	if info.Expiration.IsZero() {
		return nil, "token missing expiration", http.StatusUnauthorized
	}
	if time.Now().After(info.Expiration) {
		return nil, "token expired", http.StatusUnauthorized
	}

	if opts != nil {
		for _, want := range opts.Scopes {
			if !slices.Contains(info.Scopes, want) {
				return nil, "insufficient scope", http.StatusForbidden
			}
		}
	}

	return info, "", 0
}

// RequireBearerToken returns HTTP middleware that validates the Authorization
// header of each request using verifier, rejecting requests that fail
// verification or lack a required scope.
func RequireBearerToken(verifier VerifierFunc, opts *RequireBearerTokenOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, msg, code := verify(r, verifier, opts)
			if code != 0 {
				if opts != nil && opts.ResourceMetadataURL != "" &&
					(code == http.StatusUnauthorized || code == http.StatusForbidden) {
					w.Header().Set("WWW-Authenticate", "Bearer resource_metadata="+opts.ResourceMetadataURL)
				}
				http.Error(w, msg, code)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ProtectedResourceMetadataHandler serves metadata as a JSON document, for
// use at the RFC 9728 well-known protected-resource-metadata endpoint.
func ProtectedResourceMetadataHandler(metadata any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metadata)
	})
}
