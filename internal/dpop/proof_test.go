package dpop

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

func mintProof(t *testing.T, htm, htu string, iat time.Time) (string, string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	jwk := jose.JSONWebKey{Key: priv.Public(), Algorithm: "ES256", Use: "sig"}
	thumbprint, err := Thumbprint(&jwk)
	require.NoError(t, err)

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: priv},
		(&jose.SignerOptions{}).WithType("dpop+jwt").WithHeader("jwk", jwk))
	require.NoError(t, err)

	claims := proofClaims{
		Claims: josejwt.Claims{ID: "proof-1", IssuedAt: josejwt.NewNumericDate(iat)},
		HTM:    htm,
		HTU:    htu,
	}
	raw, err := josejwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)
	return raw, thumbprint
}

func TestVerifySuccess(t *testing.T) {
	proof, jkt := mintProof(t, "GET", "https://api.example.test/resource", time.Now())
	err := Verify(VerifyInput{
		ProofJWT:    proof,
		Method:      "get",
		BaseURI:     "https://api.example.test",
		RequestHost: "api.example.test",
		RequestPath: "/resource",
		CnfJKT:      jkt,
	})
	require.NoError(t, err)
}

func TestVerifyHTMMismatch(t *testing.T) {
	proof, jkt := mintProof(t, "GET", "https://api.example.test/resource", time.Now())
	err := Verify(VerifyInput{
		ProofJWT:    proof,
		Method:      "POST",
		BaseURI:     "https://api.example.test",
		RequestHost: "api.example.test",
		RequestPath: "/resource",
		CnfJKT:      jkt,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "htm")
}

func TestVerifyThumbprintMismatch(t *testing.T) {
	proof, _ := mintProof(t, "GET", "https://api.example.test/resource", time.Now())
	err := Verify(VerifyInput{
		ProofJWT:    proof,
		Method:      "GET",
		BaseURI:     "https://api.example.test",
		RequestHost: "api.example.test",
		RequestPath: "/resource",
		CnfJKT:      "not-the-real-thumbprint",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "thumbprint")
}

func TestVerifySubdomainSubstitution(t *testing.T) {
	proof, jkt := mintProof(t, "GET", "https://tenant.api.example.test/resource", time.Now())
	err := Verify(VerifyInput{
		ProofJWT:    proof,
		Method:      "GET",
		BaseURI:     "https://api.example.test",
		RequestHost: "tenant.api.example.test",
		RequestPath: "/resource",
		CnfJKT:      jkt,
	})
	require.NoError(t, err)
}

func TestVerifyHTUMismatchWhenHostNotASubdomain(t *testing.T) {
	proof, jkt := mintProof(t, "GET", "https://evil.test/resource", time.Now())
	err := Verify(VerifyInput{
		ProofJWT:    proof,
		Method:      "GET",
		BaseURI:     "https://api.example.test",
		RequestHost: "evil.test",
		RequestPath: "/resource",
		CnfJKT:      jkt,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "htu")
}
