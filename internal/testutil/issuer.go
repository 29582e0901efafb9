// Package testutil mints test JWTs and serves a fake OIDC provider: multiple
// issuers, RSA and EC signing keys, and live key rotation, since this
// module's ProviderCache and Credential both need to be exercised against
// more than one issuer shape.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

// Issuer is a fake OIDC provider: an httptest.Server serving a discovery
// document and a JWKS, plus the private key needed to mint tokens it will
// itself validate.
type Issuer struct {
	Server *httptest.Server
	KeyID  string
	Alg    jose.SignatureAlgorithm

	key interface{} // *rsa.PrivateKey or *ecdsa.PrivateKey
	pub interface{}
}

// NewRSAIssuer starts a fake issuer signing with RS256.
func NewRSAIssuer(t *testing.T, kid string) *Issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return newIssuer(t, kid, jose.RS256, key, &key.PublicKey)
}

// NewECIssuer starts a fake issuer signing with ES256.
func NewECIssuer(t *testing.T, kid string) *Issuer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return newIssuer(t, kid, jose.ES256, key, key.Public())
}

func newIssuer(t *testing.T, kid string, alg jose.SignatureAlgorithm, key, pub interface{}) *Issuer {
	t.Helper()
	iss := &Issuer{KeyID: kid, Alg: alg, key: key, pub: pub}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":   iss.Server.URL,
			"jwks_uri": iss.Server.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
			{Key: iss.pub, KeyID: iss.KeyID, Algorithm: string(iss.Alg), Use: "sig"},
		}})
	})
	iss.Server = httptest.NewServer(mux)
	return iss
}

// Rotate changes the key ID the JWKS endpoint advertises for subsequent
// fetches, simulating an upstream key rotation a pipeline run must detect
// via ProviderCache.Rotate.
func (i *Issuer) Rotate(kid string) {
	i.KeyID = kid
}

// Close shuts down the fake issuer's HTTP server.
func (i *Issuer) Close() { i.Server.Close() }

// DefaultClaims returns a claims set valid for one hour, issued by this
// issuer, for subject "user-1" and audience "resource-1". josejwt.Claims has
// no scope field, so scope is not part of the returned set; callers that need
// a scope claim wrap the result together with it before calling Mint.
func (i *Issuer) DefaultClaims(scope string) josejwt.Claims {
	now := time.Now()
	return josejwt.Claims{
		Issuer:   i.Server.URL,
		Subject:  "user-1",
		Audience: josejwt.Audience{"resource-1"},
		Expiry:   josejwt.NewNumericDate(now.Add(time.Hour)),
		IssuedAt: josejwt.NewNumericDate(now),
	}
}

// Mint signs claims (any struct go-jose can marshal, typically an embedded
// josejwt.Claims plus extra fields) as a JWT under this issuer's current
// key ID and algorithm.
func (i *Issuer) Mint(t *testing.T, claims interface{}) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: i.Alg, Key: i.key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", i.KeyID))
	require.NoError(t, err)
	raw, err := josejwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)
	return raw
}
