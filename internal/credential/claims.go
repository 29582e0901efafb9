// Package credential models the three bearer-credential shapes a resource
// server accepts — plain access tokens, legacy PoP tokens, and DPoP-bound
// access tokens — behind one Credential interface.
package credential

import (
	"strings"

	josejwt "github.com/go-jose/go-jose/v4/jwt"
)

// Confirmation is the JWT "cnf" claim, carrying the proof-of-possession
// binding for DPoP-bound access tokens (RFC 9449 §4).
type Confirmation struct {
	JKT string `json:"jkt"`
}

// Claims are the registered claims go-jose already parses (iss, sub, aud,
// exp, nbf, iat, jti) plus the extra claims this module cares about.
type Claims struct {
	josejwt.Claims
	Scope        string       `json:"scope"`
	TokenType    string       `json:"token_type"`
	Confirmation Confirmation `json:"cnf"`
}

// ScopeSet splits the whitespace-delimited scope claim into a set.
func (c Claims) ScopeSet() map[string]struct{} {
	fields := strings.Fields(c.Scope)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// HasAllScopes reports whether every required scope is present.
func (c Claims) HasAllScopes(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := c.ScopeSet()
	for _, r := range required {
		if _, ok := have[r]; !ok {
			return false
		}
	}
	return true
}

// MissingScopes returns the subset of required not present in the claims,
// used to build a descriptive insufficient_scope message.
func (c Claims) MissingScopes(required []string) []string {
	have := c.ScopeSet()
	var missing []string
	for _, r := range required {
		if _, ok := have[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// AudienceList returns the aud claim as a list regardless of whether it was
// encoded on the wire as a scalar string or a JSON array; go-jose's
// jwt.Audience already normalizes both forms.
func (c Claims) AudienceList() []string {
	return []string(c.Claims.Audience)
}
