// Package auth authenticates operator API bearer tokens and checks scopes.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Scopes understood by the ops API.
const (
	ScopeAll       = "*"
	ScopeDevicesRO = "devices:ro"
	ScopeDevicesRW = "devices:rw"
	ScopeEventsRO  = "events:ro"
)

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is an authenticated caller. ID names the matching token by
// position so logs never carry the token itself.
type Principal struct {
	ID     string
	Scopes map[string]struct{}
}

// Can reports whether p holds any of the given scopes. No scopes means
// any authenticated caller.
func (p Principal) Can(scopes ...string) bool {
	if len(scopes) == 0 {
		return true
	}
	if _, ok := p.Scopes[ScopeAll]; ok {
		return true
	}
	for _, s := range scopes {
		if _, ok := p.Scopes[s]; ok {
			return true
		}
	}
	return false
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
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

type credential struct {
	token     []byte
	principal Principal
}

// Verifier matches presented tokens against a fixed token set.
type Verifier struct {
	creds []credential
}

// NewVerifier expands scopes once up front. Tokens with an empty value are
// dropped.
func NewVerifier(tokens []TokenConfig) *Verifier {
	v := &Verifier{creds: make([]credential, 0, len(tokens))}
	for i, t := range tokens {
		if t.Token == "" {
			continue
		}
		v.creds = append(v.creds, credential{
			token: []byte(t.Token),
			principal: Principal{
				ID:     fmt.Sprintf("token-%d", i),
				Scopes: expandScopes(t.Scopes),
			},
		})
	}
	return v
}

// Authenticate compares presented with every configured token in constant
// time per token.
func (v *Verifier) Authenticate(presented string) (Principal, bool) {
	if presented == "" {
		return Principal{}, false
	}
	p := []byte(presented)
	var (
		match Principal
		found bool
	)
	for _, c := range v.creds {
		if subtle.ConstantTimeCompare(p, c.token) == 1 && !found {
			match, found = c.principal, true
		}
	}
	return match, found
}

// Len reports how many usable tokens are configured.
func (v *Verifier) Len() int { return len(v.creds) }

// expandScopes trims scopes and adds devices:ro wherever devices:rw is held.
func expandScopes(scopes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(scopes)+1)
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			out[s] = struct{}{}
		}
	}
	if _, ok := out[ScopeDevicesRW]; ok {
		out[ScopeDevicesRO] = struct{}{}
	}
	return out
}
