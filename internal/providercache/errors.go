package providercache

import "fmt"

// ResolveErrorKind enumerates the ways resolving or rotating an issuer's
// provider entry can fail. The pipeline maps every kind to the same
// invalid_token / 401 outcome (an UpstreamError per spec §7) but keeps the
// kind around for logging.
type ResolveErrorKind int

const (
	// ErrKindNetwork covers transport-level failures reaching discovery or
	// the JWKS endpoint.
	ErrKindNetwork ResolveErrorKind = iota
	// ErrKindStatus covers a non-2xx response from either endpoint.
	ErrKindStatus
	// ErrKindDecode covers a 2xx response whose body is not valid JSON, or
	// not shaped as expected.
	ErrKindDecode
	// ErrKindMissingJWKSURI covers a discovery document missing jwks_uri.
	ErrKindMissingJWKSURI
)

func (k ResolveErrorKind) String() string {
	switch k {
	case ErrKindNetwork:
		return "network"
	case ErrKindStatus:
		return "status"
	case ErrKindDecode:
		return "decode"
	case ErrKindMissingJWKSURI:
		return "missing_jwks_uri"
	default:
		return "unknown"
	}
}

// ResolveError is the single error shape resolve/rotate ever return. The
// pipeline never needs to distinguish network failure from a malformed JWKS
// document — both are treated identically as "this issuer cannot be
// validated right now" — but the kind is preserved for diagnostics.
type ResolveError struct {
	Kind   ResolveErrorKind
	Issuer string
	Err    error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("providercache: resolve %s failed (%s): %v", e.Issuer, e.Kind, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

func newResolveError(kind ResolveErrorKind, issuer string, err error) *ResolveError {
	return &ResolveError{Kind: kind, Issuer: issuer, Err: err}
}
