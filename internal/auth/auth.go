// Package auth authenticates bearer tokens and checks their scopes.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// Scopes understood by the API. "*" grants everything.
const (
	ScopeAll      = "*"
	ScopeJobsRO   = "jobs:ro"
	ScopeJobsRW   = "jobs:rw"
	ScopeAgentsRO = "agents:ro"
	ScopeAgentsRW = "agents:rw"
	ScopeEventsRO = "events:ro"
)

// KnownScopes lists every scope a token may carry.
var KnownScopes = []string{ScopeAll, ScopeJobsRO, ScopeJobsRW, ScopeAgentsRO, ScopeAgentsRW, ScopeEventsRO}

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

type Principal struct {
	Token  string
	Scopes map[string]struct{}
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("invalid Authorization header format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("missing API key")
	}
	return token, nil
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Authenticate matches a presented bearer token against configured tokens.
// A match on adminKey authenticates with scope "*".
func Authenticate(presented, adminKey string, tokens []TokenConfig) (Principal, bool) {
	if constantTimeEqual(presented, adminKey) {
		return Principal{Token: presented, Scopes: map[string]struct{}{ScopeAll: {}}}, true
	}
	for _, t := range tokens {
		if constantTimeEqual(presented, t.Token) {
			return Principal{Token: presented, Scopes: normalizeScopes(t.Scopes)}, true
		}
	}
	return Principal{}, false
}

func normalizeScopes(scopes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out[s] = struct{}{}
	}

	// Write implies read.
	if _, ok := out[ScopeJobsRW]; ok {
		out[ScopeJobsRO] = struct{}{}
	}
	if _, ok := out[ScopeAgentsRW]; ok {
		out[ScopeAgentsRO] = struct{}{}
	}
	return out
}

// IsKnownScope reports whether s is a scope the API checks for.
func IsKnownScope(s string) bool {
	for _, k := range KnownScopes {
		if s == k {
			return true
		}
	}
	return false
}

func HasAnyScope(p Principal, required ...string) bool {
	if len(required) == 0 {
		return true
	}
	if _, ok := p.Scopes[ScopeAll]; ok {
		return true
	}
	for _, s := range required {
		if _, ok := p.Scopes[s]; ok {
			return true
		}
	}
	return false
}
