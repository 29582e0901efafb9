// Package oidcrs is a resource-server credential validation library: it
// accepts bearer JWTs, legacy PoP tokens, and DPoP-bound access tokens
// issued by OIDC providers, and validates them against provider JWK Sets it
// discovers and caches itself. It generalizes the single-issuer, single-mode
// Keycloak JWKS-caching middleware a multi-tenant API once hand-rolled into
// a library that can front any number of issuers and credential shapes.
package oidcrs

import (
	"context"
	"net/http"

	"github.com/jermoo/oidcrs/internal/challenge"
	"github.com/jermoo/oidcrs/internal/pipeline"
	"github.com/jermoo/oidcrs/internal/providercache"
)

// ResourceServer owns a ProviderCache and mints Authenticate middleware
// instances from it. A single ResourceServer is meant to be shared across
// every route in a process, the way one jwksCache used to back every route
// a Keycloak-backed API mounted.
type ResourceServer struct {
	cache *providercache.Cache
}

// New creates a ResourceServer with an empty provider cache.
func New(opts ...providercache.Option) *ResourceServer {
	return &ResourceServer{cache: providercache.New(opts...)}
}

// NewFromSerialized returns a server primed with previously serialized
// provider entries. The restored entries are used as-is until a miss or
// rotation triggers a refetch.
func NewFromSerialized(s providercache.SerializedProviders, opts ...providercache.Option) (*ResourceServer, error) {
	rs := New(opts...)
	if err := rs.cache.Restore(s); err != nil {
		return nil, err
	}
	return rs, nil
}

// NewFromStore loads a serialized snapshot from store and primes a new
// server with it — the generalization of fromSerialized to "don't make the
// caller shuttle the bytes by hand" when a Redis- or Postgres-backed Store
// is available.
func NewFromStore(ctx context.Context, store providercache.Store, opts ...providercache.Option) (*ResourceServer, error) {
	opts = append(opts, providercache.WithStore(store))
	rs := New(opts...)
	if err := rs.cache.LoadFromStore(ctx); err != nil {
		return nil, err
	}
	return rs, nil
}

// Serialize snapshots every entry currently cached, suitable for
// NewFromSerialized or a Store's Save.
func (rs *ResourceServer) Serialize() providercache.SerializedProviders {
	return rs.cache.Serialize()
}

// SyncToStore persists the current snapshot to the Store configured via
// WithStore/NewFromStore.
func (rs *ResourceServer) SyncToStore(ctx context.Context) error {
	return rs.cache.SyncToStore(ctx)
}

// Close releases background resources (the rotation debounce limiter's
// cleanup goroutine).
func (rs *ResourceServer) Close() {
	rs.cache.Close()
}

// Authenticate returns middleware that runs the validation pipeline against
// every request, per opts.
func (rs *ResourceServer) Authenticate(opts Options) func(http.Handler) http.Handler {
	cfg := opts.toPipelineConfig()
	claimsProp := opts.claimsProperty()
	handleErrors := opts.handleErrors()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := pipeline.Run(r.Context(), rs.cache, r, cfg)

			if !result.Success() {
				writeFailure(w, r, opts, result, handleErrors)
				return
			}

			if result.Credential == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := withClaims(r.Context(), claimsProp, result.Credential.Claims())
			if opts.TokenProperty != "" {
				ctx = withCredential(ctx, opts.TokenProperty, result.Credential)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// addsChallenge reports whether status warrants a WWW-Authenticate header.
// RFC 6750 uses it for 401s; many deployments (and this one) also send it
// alongside 400/403 so a client can recover the realm without a second
// round trip. A 500 never carries one — there is nothing for the client to
// retry differently.
func addsChallenge(status int) bool {
	return status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden
}

func writeFailure(w http.ResponseWriter, r *http.Request, opts Options, result pipeline.Result, handleErrors bool) {
	status := result.Kind.HTTPStatus()
	code := result.Kind.ErrorCode()

	var challengeValue string
	if addsChallenge(status) {
		challengeValue = challenge.Encode(challenge.Params{
			Realm:       opts.Realm,
			Error:       code,
			Description: result.Description,
		})
	}

	if !handleErrors {
		tagged := &Error{Status: status, Code: code, Description: result.Description, Challenge: challengeValue}
		if opts.ErrorHandler != nil {
			opts.ErrorHandler(w, r, tagged)
			return
		}
		// No handler configured: still must produce an outcome exactly
		// once, so fall through to the default write below.
	}

	if challengeValue != "" {
		w.Header().Set("WWW-Authenticate", challengeValue)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSONError(w, code, result.Description)
}
