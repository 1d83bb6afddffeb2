package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer abc123", want: "abc123"},
		{name: "padded", header: "Bearer   abc123  ", want: "abc123"},
		{name: "missing", header: "", wantErr: true},
		{name: "wrong scheme", header: "Basic abc", wantErr: true},
		{name: "empty token", header: "Bearer    ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearerToken(r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	tokens := []TokenConfig{
		{Token: "reader", Scopes: []string{"jobs:ro"}},
		{Token: "writer", Scopes: []string{" jobs:rw ", "agents:rw", ""}},
	}

	p, ok := Authenticate("admin", "admin", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopeEventsRO))

	p, ok = Authenticate("reader", "admin", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopeJobsRO))
	assert.False(t, HasAnyScope(p, ScopeJobsRW))

	p, ok = Authenticate("writer", "admin", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopeJobsRO), "rw implies ro")
	assert.True(t, HasAnyScope(p, ScopeAgentsRO), "rw implies ro")
	assert.False(t, HasAnyScope(p, ScopeEventsRO))

	_, ok = Authenticate("nope", "admin", tokens)
	assert.False(t, ok)

	_, ok = Authenticate("", "", nil)
	assert.False(t, ok, "empty admin key must never match")
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{Token: "x"})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "x", p.Token)
}

func TestIsKnownScope(t *testing.T) {
	assert.True(t, IsKnownScope("jobs:rw"))
	assert.True(t, IsKnownScope("*"))
	assert.False(t, IsKnownScope("plugin:rw"))
}

func TestHasAnyScopeNoRequirement(t *testing.T) {
	assert.True(t, HasAnyScope(Principal{}))
}
