package oidcrs

import (
	"context"

	"github.com/jermoo/oidcrs/internal/credential"
)

// Dynamic property injection on an arbitrary request object (§9) becomes a
// request-scoped context extension keyed by the configured property name,
// instead of a fixed field — claimsProperty/tokenProperty select which key
// a given route's downstream handlers read from.

type claimsContextKey struct{ name string }
type credentialContextKey struct{ name string }

func withClaims(ctx context.Context, property string, claims credential.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{property}, claims)
}

// Claims returns the claims published under property by a prior Authenticate
// middleware, or false if none were published there.
func Claims(ctx context.Context, property string) (credential.Claims, bool) {
	if property == "" {
		property = "claims"
	}
	v, ok := ctx.Value(claimsContextKey{property}).(credential.Claims)
	return v, ok
}

func withCredential(ctx context.Context, property string, cred credential.Credential) context.Context {
	return context.WithValue(ctx, credentialContextKey{property}, cred)
}

// Token returns the decoded Credential published under property, when
// Options.TokenProperty named it. Returns false if nothing was published
// there (including when TokenProperty was left unset).
func Token(ctx context.Context, property string) (credential.Credential, bool) {
	v, ok := ctx.Value(credentialContextKey{property}).(credential.Credential)
	return v, ok
}
