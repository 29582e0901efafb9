package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/jermoo/oidcrs/internal/providercache"
	"github.com/jermoo/oidcrs/internal/testutil"
)

func claimsFor(iss *testutil.Issuer, scope string) josejwt.Claims {
	c := iss.DefaultClaims(scope)
	return c
}

type withScope struct {
	josejwt.Claims
	Scope string `json:"scope"`
}

func mintToken(t *testing.T, iss *testutil.Issuer, scope string) string {
	return iss.Mint(t, withScope{Claims: claimsFor(iss, scope), Scope: scope})
}

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/resource", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestRunHappyPath(t *testing.T) {
	iss := testutil.NewRSAIssuer(t, "k1")
	defer iss.Close()
	cache := providercache.New()

	token := mintToken(t, iss, "read write")
	res := Run(context.Background(), cache, bearerRequest(token), Config{Scopes: []string{"read"}})

	require.True(t, res.Success())
	require.Equal(t, "user-1", res.Credential.Subject())
}

func TestRunExpiredToken(t *testing.T) {
	iss := testutil.NewRSAIssuer(t, "k1")
	defer iss.Close()
	cache := providercache.New()

	claims := claimsFor(iss, "read")
	claims.Expiry = josejwt.NewNumericDate(time.Now().Add(-time.Second))
	token := iss.Mint(t, withScope{Claims: claims, Scope: "read"})

	res := Run(context.Background(), cache, bearerRequest(token), Config{})
	require.Equal(t, FailureInvalidToken, res.Kind)
}

func TestRunKeyRotation(t *testing.T) {
	iss := testutil.NewRSAIssuer(t, "k1")
	defer iss.Close()
	cache := providercache.New()

	// Warm the cache with the current (k1) key, then rotate the issuer's
	// signing key to k2 before minting the token under test.
	_, err := cache.Resolve(context.Background(), iss.Server.URL)
	require.NoError(t, err)

	iss.Rotate("k2")
	token := mintToken(t, iss, "read")

	res := Run(context.Background(), cache, bearerRequest(token), Config{})
	require.True(t, res.Success())
}

func TestRunDenyList(t *testing.T) {
	iss := testutil.NewRSAIssuer(t, "k1")
	defer iss.Close()
	cache := providercache.New()

	token := mintToken(t, iss, "read")
	cfg := Config{Deny: &Policy{Issuers: FilterList(iss.Server.URL)}}

	res := Run(context.Background(), cache, bearerRequest(token), cfg)
	require.Equal(t, FailureAccessDenied, res.Kind)
}

func TestRunMultipleAuthMethods(t *testing.T) {
	iss := testutil.NewRSAIssuer(t, "k1")
	defer iss.Close()
	cache := providercache.New()
	token := mintToken(t, iss, "read")

	form := url.Values{"access_token": {token}}
	r := httptest.NewRequest(http.MethodPost, "/resource", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("Authorization", "Bearer "+token)

	res := Run(context.Background(), cache, r, Config{})
	require.Equal(t, FailureShape, res.Kind)
}

func TestRunMissingCredential(t *testing.T) {
	cache := providercache.New()
	r := httptest.NewRequest(http.MethodGet, "/resource", nil)

	res := Run(context.Background(), cache, r, Config{})
	require.Equal(t, FailureUnauthorized, res.Kind)
	require.Empty(t, res.Description)
}

func TestRunOptionalPassThrough(t *testing.T) {
	cache := providercache.New()
	r := httptest.NewRequest(http.MethodGet, "/resource", nil)

	res := Run(context.Background(), cache, r, Config{Optional: true})
	require.True(t, res.Success())
	require.Nil(t, res.Credential)
}

func TestRunInsufficientScope(t *testing.T) {
	iss := testutil.NewRSAIssuer(t, "k1")
	defer iss.Close()
	cache := providercache.New()
	token := mintToken(t, iss, "read")

	res := Run(context.Background(), cache, bearerRequest(token), Config{Scopes: []string{"admin"}})
	require.Equal(t, FailureInsufficientScope, res.Kind)
}

func TestRunQueryStringDisabledByDefault(t *testing.T) {
	iss := testutil.NewRSAIssuer(t, "k1")
	defer iss.Close()
	cache := providercache.New()
	token := mintToken(t, iss, "read")

	r := httptest.NewRequest(http.MethodGet, "/resource?access_token="+token, nil)
	res := Run(context.Background(), cache, r, Config{})
	require.Equal(t, FailureShape, res.Kind)
}

func TestRunQueryStringAllowed(t *testing.T) {
	iss := testutil.NewRSAIssuer(t, "k1")
	defer iss.Close()
	cache := providercache.New()
	token := mintToken(t, iss, "read")

	r := httptest.NewRequest(http.MethodGet, "/resource?access_token="+token, nil)
	res := Run(context.Background(), cache, r, Config{Query: true})
	require.True(t, res.Success())
}
