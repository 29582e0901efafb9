// Package pipeline runs the ordered credential validation state machine of
// §4.4: EXTRACT -> REQUIRE -> DECODE -> POP_VERIFY -> POLICY -> KEY+SIG ->
// TEMPORAL -> SCOPE -> SUCCESS. Any step's failure short-circuits to a
// terminal Result carrying the outward HTTP response shape, the sum-type
// terminal outcome §9's "Promise-chain-as-pipeline" note calls for instead
// of the source's throw-as-response-shortcut pattern.
package pipeline

import (
	"net/http"

	"github.com/jermoo/oidcrs/internal/credential"
)

// FailureKind is the terminal state a failed Result carries. It maps
// directly to the table in §4.4 and the error taxonomy in §7.
type FailureKind int

const (
	// FailureNone means the pipeline succeeded (or, with optional credentials,
	// that none was presented and none was required).
	FailureNone FailureKind = iota
	// FailureShape is a malformed-input 400 (EXTRACT).
	FailureShape
	// FailureUnauthorized is a bare 401 carrying no error code: either no
	// credential was presented and one was required (REQUIRE), or the
	// matched key failed signature verification (KEY+SIG, "bare" per §4.4).
	FailureUnauthorized
	// FailureInvalidToken is a 401 invalid_token: decode failure, PoP
	// mismatch, key resolution failure, or a temporal claim failure.
	FailureInvalidToken
	// FailureAccessDenied is a 403 access_denied from the POLICY phase.
	FailureAccessDenied
	// FailureInsufficientScope is a 403 insufficient_scope from SCOPE.
	FailureInsufficientScope
	// FailureInternal is an unexpected error, mapped to 500.
	FailureInternal
)

// HTTPStatus returns the status code §4.4's failure table assigns.
func (k FailureKind) HTTPStatus() int {
	switch k {
	case FailureShape:
		return http.StatusBadRequest
	case FailureUnauthorized, FailureInvalidToken:
		return http.StatusUnauthorized
	case FailureAccessDenied, FailureInsufficientScope:
		return http.StatusForbidden
	case FailureInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// ErrorCode returns the RFC 6750 error parameter for this kind, or "" for
// the bare cases (REQUIRE, a failed signature match, and internal errors).
func (k FailureKind) ErrorCode() string {
	switch k {
	case FailureShape:
		return "invalid_request"
	case FailureInvalidToken:
		return "invalid_token"
	case FailureAccessDenied:
		return "access_denied"
	case FailureInsufficientScope:
		return "insufficient_scope"
	default:
		return ""
	}
}

// Result is the pipeline's terminal outcome for one request.
type Result struct {
	Kind        FailureKind
	Description string
	Credential  credential.Credential
}

// Success reports whether validation succeeded (credential may still be nil
// when the optional option allowed an unauthenticated pass-through).
func (r Result) Success() bool { return r.Kind == FailureNone }
