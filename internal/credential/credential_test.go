package credential

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

func mintAccessToken(t *testing.T, kid string, claims Claims) (string, jose.JSONWebKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	pub := jose.JSONWebKey{Key: priv.Public(), KeyID: kid, Algorithm: "ES256", Use: "sig"}

	opts := (&jose.SignerOptions{}).WithType("JWT")
	if kid != "" {
		opts = opts.WithHeader("kid", kid)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: priv}, opts)
	require.NoError(t, err)

	raw, err := josejwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)
	return raw, pub
}

func baseClaims() Claims {
	now := time.Now()
	return Claims{
		Claims: josejwt.Claims{
			Issuer:   "https://issuer.example.test",
			Subject:  "user-1",
			Audience: josejwt.Audience{"aud-1"},
			Expiry:   josejwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt: josejwt.NewNumericDate(now),
		},
		Scope: "read write",
	}
}

func TestFromPlainAccessToken(t *testing.T) {
	raw, _ := mintAccessToken(t, "k1", baseClaims())
	cred, err := From(raw, RequestInfo{TokenType: TokenTypeBearer})
	require.NoError(t, err)
	require.False(t, cred.IsPoPToken())
	_, ok := cred.(*AccessToken)
	require.True(t, ok)
	require.Equal(t, "https://issuer.example.test", cred.Issuer())
}

func TestFromPoPToken(t *testing.T) {
	claims := baseClaims()
	claims.TokenType = "pop"
	raw, _ := mintAccessToken(t, "k1", claims)
	cred, err := From(raw, RequestInfo{TokenType: TokenTypeBearer})
	require.NoError(t, err)
	require.True(t, cred.IsPoPToken())
	_, ok := cred.(*PoPToken)
	require.True(t, ok)
	require.NoError(t, cred.ValidatePoPToken())
}

func TestFromDPoPToken(t *testing.T) {
	raw, _ := mintAccessToken(t, "k1", baseClaims())
	cred, err := From(raw, RequestInfo{TokenType: TokenTypeDPoP})
	require.NoError(t, err)
	_, ok := cred.(*DPoPToken)
	require.True(t, ok)
}

func TestFromRejectsNonJWT(t *testing.T) {
	_, err := From("not-a-jwt", RequestInfo{})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotAJWT)
}

func TestResolveKeysByKid(t *testing.T) {
	raw, pub := mintAccessToken(t, "k1", baseClaims())
	cred, err := From(raw, RequestInfo{TokenType: TokenTypeBearer})
	require.NoError(t, err)

	jwks := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{pub}}
	require.True(t, cred.ResolveKeys(jwks))
	require.True(t, cred.VerifySignature())
}

func TestResolveKeysFallsBackToSingleSigKey(t *testing.T) {
	raw, pub := mintAccessToken(t, "", baseClaims())
	cred, err := From(raw, RequestInfo{TokenType: TokenTypeBearer})
	require.NoError(t, err)

	pub.KeyID = ""
	jwks := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{pub}}
	require.True(t, cred.ResolveKeys(jwks))
	require.True(t, cred.VerifySignature())
}

func TestResolveKeysFailsWithNoKidAmbiguity(t *testing.T) {
	raw, pub1 := mintAccessToken(t, "", baseClaims())
	cred, err := From(raw, RequestInfo{TokenType: TokenTypeBearer})
	require.NoError(t, err)

	pub2 := pub1
	pub2.KeyID = ""
	jwks := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{pub1, pub2}}
	require.False(t, cred.ResolveKeys(jwks))
}

func TestVerifySignatureRejectsAlgorithmMismatch(t *testing.T) {
	raw, pub := mintAccessToken(t, "k1", baseClaims())
	cred, err := From(raw, RequestInfo{TokenType: TokenTypeBearer})
	require.NoError(t, err)

	pub.Algorithm = "PS256" // declared alg differs from the token's actual ES256 header
	jwks := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{pub}}
	require.True(t, cred.ResolveKeys(jwks))
	require.False(t, cred.VerifySignature())
}

func TestValidateExpiry(t *testing.T) {
	claims := baseClaims()
	claims.Expiry = josejwt.NewNumericDate(time.Now().Add(-time.Second))
	raw, pub := mintAccessToken(t, "k1", claims)
	cred, err := From(raw, RequestInfo{TokenType: TokenTypeBearer})
	require.NoError(t, err)
	jwks := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{pub}}
	require.True(t, cred.ResolveKeys(jwks))
	require.True(t, cred.VerifySignature())
	require.Error(t, cred.ValidateExpiry())
}

func TestValidateScope(t *testing.T) {
	raw, _ := mintAccessToken(t, "k1", baseClaims())
	cred, err := From(raw, RequestInfo{TokenType: TokenTypeBearer})
	require.NoError(t, err)

	require.NoError(t, cred.ValidateScope(nil))
	require.NoError(t, cred.ValidateScope([]string{"read"}))
	require.Error(t, cred.ValidateScope([]string{"admin"}))
}
