package oidcrs

import (
	"net/http"

	"github.com/jermoo/oidcrs/internal/pipeline"
)

// Filter and Policy are re-exported from internal/pipeline, which owns
// their implementation since POLICY (component C) is the phase that
// actually evaluates them. Filter, FilterList, and FilterFunc give callers
// the tagged-union shape §9 calls for in place of the source's
// runtime-polymorphic "list or function" allow/deny value.
type (
	Filter = pipeline.Filter
	Policy = pipeline.Policy
)

// FilterList builds a Filter that allows/denies by list membership.
func FilterList(items ...string) Filter { return pipeline.FilterList(items...) }

// FilterFunc builds a Filter that allows/denies by predicate.
func FilterFunc(fn func(string) bool) Filter { return pipeline.FilterFunc(fn) }

// Error is the tagged error a route's ErrorHandler receives when
// HandleErrors is false: it carries everything the handler needs to
// reproduce the same HTTP status, error code, and WWW-Authenticate value
// this module would otherwise have written itself.
type Error struct {
	Status      int
	Code        string
	Description string
	Challenge   string
}

func (e *Error) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// Options configures one Authenticate middleware instance, mirroring §6's
// option table.
type Options struct {
	// Realm is the value of the realm parameter in challenges.
	Realm string
	// Scopes lists required scopes; empty/absent skips the scope check.
	Scopes []string
	// Allow is the allowlist filter; nil skips the allow check entirely.
	Allow *Policy
	// Deny is the denylist filter; nil skips the deny check entirely.
	Deny *Policy
	// Query permits ?access_token=...; default false per RFC 6750 §2.3's
	// warning against query-string credentials.
	Query bool
	// Optional allows unauthenticated pass-through when true.
	Optional bool
	// HandleErrors defaults to true (write the error body). Set to a
	// pointer to false to forward the tagged Error to ErrorHandler instead.
	HandleErrors *bool
	// TokenProperty, if set, publishes the Credential on the request
	// context under this name.
	TokenProperty string
	// ClaimsProperty names the context key claims are published under;
	// defaults to "claims".
	ClaimsProperty string
	// BaseURI is the server's configured canonical base URI, used to
	// reconstruct the expected DPoP htu. Required for routes that accept
	// DPoP-bound tokens.
	BaseURI string
	// ErrorHandler, when HandleErrors is false, is called instead of
	// writing the default JSON error body. It is the Go translation of
	// "forward a tagged error to a surrounding error handler" since there
	// is no universal next(err) equivalent in net/http.
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err *Error)
}

// Bool returns a pointer to b, for setting Options.HandleErrors.
func Bool(b bool) *bool { return &b }

func boolOrDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (o Options) handleErrors() bool { return boolOrDefault(o.HandleErrors, true) }

func (o Options) claimsProperty() string {
	if o.ClaimsProperty == "" {
		return "claims"
	}
	return o.ClaimsProperty
}

func (o Options) toPipelineConfig() pipeline.Config {
	return pipeline.Config{
		Scopes:   o.Scopes,
		Allow:    o.Allow,
		Deny:     o.Deny,
		Query:    o.Query,
		Optional: o.Optional,
		BaseURI:  o.BaseURI,
	}
}
