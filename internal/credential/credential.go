package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
)

// TokenType is the scheme detected while extracting the credential from the
// request (Authorization header scheme, or the implicit "bearer" for
// query/body extraction).
type TokenType string

const (
	TokenTypeBearer TokenType = "bearer"
	TokenTypeDPoP   TokenType = "dpop"
)

// allowedSignatureAlgorithms is the full set of algorithms this module will
// ever ask go-jose to parse a JWT header as. It deliberately never includes
// "none" or any HMAC algorithm: every signing key this module verifies
// against comes from a remote JWKS document (asymmetric public keys only),
// so accepting HS256 here would open exactly the alg-confusion substitution
// attack §4.2 requires rejecting. When the matched key declares an alg, the
// per-JWK check in verifySignature narrows this further to that single alg;
// a key with no alg is checked against this list alone.
var allowedSignatureAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.EdDSA,
}

// RequestInfo carries the request-derived context a Credential needs that
// isn't part of the JWT itself: the detected extraction scheme and, for
// DPoP, the raw proof header and request line.
type RequestInfo struct {
	TokenType  TokenType
	Method     string
	Host       string
	Path       string
	DPoPHeader string
	BaseURI    string
}

// Credential is the uniform interface over AccessToken, PoPToken, and
// DPoPToken.
type Credential interface {
	Issuer() string
	Subject() string
	Audience() []string
	Claims() Claims
	JWT() *josejwt.JSONWebToken

	ResolveKeys(jwks jose.JSONWebKeySet) bool
	VerifySignature() bool
	ValidateExpiry() error
	ValidateNotBefore() error
	ValidateScope(required []string) error

	IsPoPToken() bool
	ValidatePoPToken() error
}

// ErrNotAJWT is returned by From when the presented credential does not
// decode as a three-segment JWT.
var ErrNotAJWT = errors.New("credential: access token is not a JWT")

// From implements the Credential::from(jwt, request) dispatch of §4.2:
// token_type "pop" wins first, then the detected dpop scheme, else a plain
// access token.
func From(raw string, req RequestInfo) (Credential, error) {
	token, claims, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAJWT, err)
	}

	base := &base{raw: raw, token: token, claims: claims}

	if claims.TokenType == "pop" {
		return &PoPToken{base: base}, nil
	}
	if req.TokenType == TokenTypeDPoP {
		return &DPoPToken{base: base, req: req}, nil
	}
	return &AccessToken{base: base}, nil
}

func decode(raw string) (*josejwt.JSONWebToken, Claims, error) {
	token, err := josejwt.ParseSigned(raw, allowedSignatureAlgorithms)
	if err != nil {
		return nil, Claims{}, err
	}
	var claims Claims
	if err := token.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return nil, Claims{}, err
	}
	return token, claims, nil
}

// base holds the fields and behavior shared by all three Credential
// variants: the decoded-but-unverified JWT, the matched signing key once
// resolveKeys succeeds, and the checks that only depend on claims already
// extracted from the payload.
type base struct {
	raw        string
	token      *josejwt.JSONWebToken
	claims     Claims
	matchedKey *jose.JSONWebKey
}

func (b *base) Issuer() string     { return b.claims.Issuer }
func (b *base) Subject() string    { return b.claims.Subject }
func (b *base) Audience() []string { return b.claims.AudienceList() }
func (b *base) Claims() Claims     { return b.claims }
func (b *base) JWT() *josejwt.JSONWebToken { return b.token }

// ResolveKeys implements §4.2's key-selection algorithm: filter to signing
// keys (use == "sig" or absent), then match by kid if the header carries
// one, otherwise accept iff exactly one signing key remains.
func (b *base) ResolveKeys(jwks jose.JSONWebKeySet) bool {
	var sigKeys []jose.JSONWebKey
	for _, k := range jwks.Keys {
		if k.Use == "" || k.Use == "sig" {
			sigKeys = append(sigKeys, k)
		}
	}

	kid := b.headerKeyID()
	if kid != "" {
		for i := range sigKeys {
			if sigKeys[i].KeyID == kid {
				b.matchedKey = &sigKeys[i]
				return true
			}
		}
		return false
	}

	if len(sigKeys) == 1 {
		b.matchedKey = &sigKeys[0]
		return true
	}
	return false
}

func (b *base) headerKeyID() string {
	if len(b.token.Headers) == 0 {
		return ""
	}
	return b.token.Headers[0].KeyID
}

func (b *base) headerAlgorithm() string {
	if len(b.token.Headers) == 0 {
		return ""
	}
	return b.token.Headers[0].Algorithm
}

// VerifySignature delegates to go-jose using the key resolveKeys matched,
// restricted to the algorithm that key itself declares — not whatever the
// token header claims — which is what actually forecloses algorithm
// confusion: a key published with alg RS256 can never be used to accept an
// HS256-signed forgery, regardless of what the attacker puts in the header.
// A matched key that declares no alg accepts any header alg from
// allowedSignatureAlgorithms that the key material itself can verify.
func (b *base) VerifySignature() bool {
	if b.matchedKey == nil {
		return false
	}
	if b.matchedKey.Algorithm != "" && b.matchedKey.Algorithm != b.headerAlgorithm() {
		return false
	}

	var verified Claims
	if err := b.token.Claims(b.matchedKey, &verified); err != nil {
		return false
	}
	b.claims = verified
	return true
}

func (b *base) ValidateExpiry() error {
	exp := b.claims.Expiry
	if exp == nil {
		return fmt.Errorf("credential: token has no exp claim")
	}
	if !time.Now().Before(exp.Time()) {
		return fmt.Errorf("credential: token expired at %s", exp.Time())
	}
	return nil
}

func (b *base) ValidateNotBefore() error {
	nbf := b.claims.NotBefore
	if nbf == nil {
		return nil
	}
	if time.Now().Before(nbf.Time()) {
		return fmt.Errorf("credential: token not valid until %s", nbf.Time())
	}
	return nil
}

func (b *base) ValidateScope(required []string) error {
	if b.claims.HasAllScopes(required) {
		return nil
	}
	missing := b.claims.MissingScopes(required)
	return fmt.Errorf("credential: missing required scope(s): %v", missing)
}
