package pipeline

import (
	"fmt"

	"github.com/jermoo/oidcrs/internal/credential"
)

// evaluatePolicy implements POLICY: allow is checked before deny, either may
// short-circuit with access_denied.
func evaluatePolicy(cred credential.Credential, tokenType credential.TokenType, cfg Config) (Result, bool) {
	if cfg.Allow != nil {
		if res, ok := checkAllow(cred, tokenType, *cfg.Allow); !ok {
			return res, false
		}
	}
	if cfg.Deny != nil {
		if res, ok := checkDeny(cred, tokenType, *cfg.Deny); !ok {
			return res, false
		}
	}
	return Result{}, true
}

// checkAllow implements the allow semantics of §4.4: each configured
// sub-filter must pass; an unconfigured sub-filter is skipped.
func checkAllow(cred credential.Credential, tokenType credential.TokenType, p Policy) (Result, bool) {
	if tokenType == credential.TokenTypeBearer && !p.Audience.IsZero() {
		if !p.Audience.AllowsAny(cred.Audience()) {
			return denyResult("audience"), false
		}
	}
	if !p.Issuers.IsZero() {
		if !p.Issuers.Allows(cred.Issuer()) {
			return denyResult("issuer"), false
		}
	}
	if !p.Subjects.IsZero() {
		if !p.Subjects.Allows(cred.Subject()) {
			return denyResult("subject"), false
		}
	}
	return Result{}, true
}

// checkDeny implements the deny semantics: any configured sub-filter that
// matches denies the request. Each sub-filter is only evaluated when
// configured — an explicit presence check, unlike the unconditional
// audience dereference the source's deny path performed even when
// audience was never configured (§9 open questions).
func checkDeny(cred credential.Credential, tokenType credential.TokenType, p Policy) (Result, bool) {
	if !p.Issuers.IsZero() && p.Issuers.Allows(cred.Issuer()) {
		return denyResult("issuer"), false
	}
	if tokenType == credential.TokenTypeBearer && !p.Audience.IsZero() {
		if p.Audience.AllowsAny(cred.Audience()) {
			return denyResult("audience"), false
		}
	}
	if !p.Subjects.IsZero() && p.Subjects.Allows(cred.Subject()) {
		return denyResult("subject"), false
	}
	return Result{}, true
}

func denyResult(claim string) Result {
	return Result{Kind: FailureAccessDenied, Description: fmt.Sprintf("denied by %s policy", claim)}
}
