package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jermoo/oidcrs/internal/credential"
	"github.com/jermoo/oidcrs/internal/providercache"
)

// verifyKeyAndSignature implements KEY+SIG: resolve the issuer's provider
// entry, try to match a signing key, and on a miss force one rotation and
// retry exactly once before giving up.
func verifyKeyAndSignature(ctx context.Context, cache *providercache.Cache, cred credential.Credential, logger *zerolog.Logger) (Result, bool) {
	entry, err := cache.Resolve(ctx, cred.Issuer())
	if err != nil {
		logger.Debug().Err(err).Str("issuer", cred.Issuer()).Msg("pipeline: provider resolution failed")
		return Result{Kind: FailureInvalidToken, Description: "Cannot resolve signing keys"}, false
	}

	if !cred.ResolveKeys(entry.JWKS) {
		rotated, err := cache.Rotate(ctx, cred.Issuer())
		if err != nil || !cred.ResolveKeys(rotated.JWKS) {
			logger.Debug().Str("issuer", cred.Issuer()).Msg("pipeline: no matching signing key after rotation")
			return Result{Kind: FailureInvalidToken, Description: "Cannot find key to verify JWT signature"}, false
		}
	}

	if !cred.VerifySignature() {
		logger.Debug().Str("issuer", cred.Issuer()).Msg("pipeline: signature verification failed")
		return Result{Kind: FailureUnauthorized}, false
	}

	return Result{}, true
}
