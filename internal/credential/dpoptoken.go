package credential

import (
	"github.com/jermoo/oidcrs/internal/dpop"
)

// DPoPToken is a decoded access JWT plus the raw DPoP header JWT and
// request-derived context (method, scheme+host+path) it must be bound to.
type DPoPToken struct {
	*base
	req RequestInfo
}

func (t *DPoPToken) IsPoPToken() bool { return false }

// ValidatePoPToken runs the DPoP proof check of §4.3: the proof JWT must be
// signed by the key whose thumbprint matches this token's cnf.jkt, and its
// htm/htu must match the request it rode in on.
func (t *DPoPToken) ValidatePoPToken() error {
	return dpop.Verify(dpop.VerifyInput{
		ProofJWT:    t.req.DPoPHeader,
		Method:      t.req.Method,
		BaseURI:     t.req.BaseURI,
		RequestHost: t.req.Host,
		RequestPath: t.req.Path,
		CnfJKT:      t.claims.Confirmation.JKT,
	})
}
