package dpop

import (
	"crypto"
	"encoding/base64"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// Thumbprint computes the RFC 7638 SHA-256 JWK thumbprint of jwk,
// base64url-encoded without padding, the form a DPoP-bound access token's
// cnf.jkt claim carries. go-jose's JSONWebKey.Thumbprint already builds the
// canonical JSON member set RFC 7638 requires; this just picks the hash and
// encoding this module standardizes on.
func Thumbprint(jwk *jose.JSONWebKey) (string, error) {
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("dpop: computing thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
