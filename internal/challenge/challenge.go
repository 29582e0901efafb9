// Package challenge builds the RFC 6750 WWW-Authenticate header value a
// failed validation attempt returns, the deliberately small, unabstracted
// responsibility §2 assigns component D.
package challenge

import (
	"fmt"
	"strings"
)

// Params are the challenge parameters the pipeline ever produces. Realm is
// always included when non-empty; Error and Description are omitted from
// "bare" challenges (REQUIRE, a failed signature match).
type Params struct {
	Realm       string
	Error       string
	Description string
}

// Encode builds "Bearer realm="...", error="...", error_description="..."".
// Values are quoted literally without escaping embedded quotes — this
// matches the source's behaviour and is flagged in §9 as unsafe for
// parameter values containing quotes; callers that accept untrusted realm
// or description text should sanitize before calling Encode.
//
// The scheme is always "Bearer", even for a DPoP-typed failure, per §4.5's
// note that the source hardcodes it; a future revision may want to emit
// "DPoP" for DPoP failures instead (§9).
func Encode(p Params) string {
	var parts []string
	if p.Realm != "" {
		parts = append(parts, fmt.Sprintf(`realm="%s"`, p.Realm))
	}
	if p.Error != "" {
		parts = append(parts, fmt.Sprintf(`error="%s"`, p.Error))
	}
	if p.Description != "" {
		parts = append(parts, fmt.Sprintf(`error_description="%s"`, p.Description))
	}
	if len(parts) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(parts, ", ")
}
