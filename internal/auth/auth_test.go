package auth

import (
	"context"
	"net/http"
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
		{name: "surrounding space", header: "Bearer   abc123  ", want: "abc123"},
		{name: "missing", header: "", wantErr: true},
		{name: "basic auth", header: "Basic abc", wantErr: true},
		{name: "empty token", header: "Bearer   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearerToken(req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifierAuthenticate(t *testing.T) {
	v := NewVerifier([]TokenConfig{
		{Token: "reader", Scopes: []string{ScopeDevicesRO}},
		{Token: "writer", Scopes: []string{ScopeDevicesRW, " events:ro "}},
	})
	require.Equal(t, 2, v.Len())

	p, ok := v.Authenticate("writer")
	require.True(t, ok)
	assert.Equal(t, "token-1", p.ID)
	assert.True(t, p.Can(ScopeDevicesRW))
	assert.True(t, p.Can(ScopeDevicesRO), "rw implies ro")
	assert.True(t, p.Can(ScopeEventsRO))

	p, ok = v.Authenticate("reader")
	require.True(t, ok)
	assert.True(t, p.Can(ScopeDevicesRO))
	assert.False(t, p.Can(ScopeDevicesRW))

	_, ok = v.Authenticate("nobody")
	assert.False(t, ok)
	_, ok = v.Authenticate("")
	assert.False(t, ok)
}

func TestVerifierSkipsEmptyTokens(t *testing.T) {
	v := NewVerifier([]TokenConfig{{Token: "", Scopes: []string{ScopeAll}}})
	assert.Equal(t, 0, v.Len())
	_, ok := v.Authenticate("")
	assert.False(t, ok)
}

func TestPrincipalCanWildcard(t *testing.T) {
	p := Principal{Scopes: expandScopes([]string{ScopeAll})}
	assert.True(t, p.Can(ScopeDevicesRW))
	assert.True(t, p.Can())
	assert.False(t, Principal{}.Can(ScopeEventsRO))
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{ID: "token-0"})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "token-0", p.ID)
}
