package credential

// PoPToken is the legacy proof-of-possession wrapper: a decoded JWT whose
// token_type claim equals "pop". §3 treats the inner access token it
// carries as implementation-defined and out of scope for this module
// beyond signalling that validatePoPToken exists and is reachable from the
// pipeline's POP_VERIFY phase.
type PoPToken struct {
	*base
}

func (t *PoPToken) IsPoPToken() bool { return true }

// ValidatePoPToken always succeeds: the inner-access-token binding this
// legacy shape requires is implementation-defined and explicitly out of
// scope (§3), so there is nothing this module can assert about it beyond
// having decoded the outer JWT, which DECODE already did.
func (t *PoPToken) ValidatePoPToken() error { return nil }
