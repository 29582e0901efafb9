package pipeline

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jermoo/oidcrs/internal/credential"
	"github.com/jermoo/oidcrs/internal/providercache"
)

// Config is this package's view of the per-route options §6 names. The
// root package translates the public Options struct into a Config before
// calling Run; it exists separately so pipeline never depends on the root
// package's adapter-level concerns (handleErrors, tokenProperty, ...).
type Config struct {
	Scopes   []string
	Allow    *Policy
	Deny     *Policy
	Query    bool
	Optional bool
	BaseURI  string
}

// Run executes the EXTRACT -> ... -> SUCCESS state machine for one request
// against one ProviderCache. It never panics on an expected failure; every
// reachable failure mode produces a Result.
func Run(ctx context.Context, cache *providercache.Cache, r *http.Request, cfg Config) Result {
	attemptID := uuid.NewString()
	logger := log.With().Str("validation_attempt_id", attemptID).Str("path", r.URL.Path).Logger()

	// EXTRACT
	ex, err := extract(r, cfg.Query)
	if err != nil {
		logger.Debug().Err(err).Msg("pipeline: extract failed")
		return Result{Kind: FailureShape, Description: err.Error()}
	}

	// REQUIRE
	if ex.token == "" {
		if cfg.Optional {
			logger.Debug().Msg("pipeline: no credential presented, optional")
			return Result{Kind: FailureNone}
		}
		logger.Debug().Msg("pipeline: no credential presented")
		return Result{Kind: FailureUnauthorized}
	}

	// DECODE
	cred, err := credential.From(ex.token, credential.RequestInfo{
		TokenType:  ex.tokenType,
		Method:     r.Method,
		Host:       r.Host,
		Path:       r.URL.Path,
		DPoPHeader: r.Header.Get("DPoP"),
		BaseURI:    cfg.BaseURI,
	})
	if err != nil {
		logger.Debug().Err(err).Msg("pipeline: decode failed")
		return Result{Kind: FailureInvalidToken, Description: "Access token is not a JWT"}
	}

	// POP_VERIFY
	if cred.IsPoPToken() || ex.tokenType == credential.TokenTypeDPoP {
		if err := cred.ValidatePoPToken(); err != nil {
			logger.Debug().Err(err).Msg("pipeline: pop verification failed")
			return Result{Kind: FailureInvalidToken, Description: err.Error()}
		}
	}

	// POLICY
	if res, ok := evaluatePolicy(cred, ex.tokenType, cfg); !ok {
		logger.Debug().Str("description", res.Description).Msg("pipeline: policy denied")
		return res
	}

	// KEY+SIG
	if res, ok := verifyKeyAndSignature(ctx, cache, cred, &logger); !ok {
		return res
	}

	// TEMPORAL
	if err := cred.ValidateExpiry(); err != nil {
		logger.Debug().Err(err).Msg("pipeline: expiry check failed")
		return Result{Kind: FailureInvalidToken, Description: err.Error()}
	}
	if err := cred.ValidateNotBefore(); err != nil {
		logger.Debug().Err(err).Msg("pipeline: nbf check failed")
		return Result{Kind: FailureInvalidToken, Description: err.Error()}
	}

	// SCOPE
	if err := cred.ValidateScope(cfg.Scopes); err != nil {
		logger.Debug().Err(err).Msg("pipeline: scope check failed")
		return Result{Kind: FailureInsufficientScope, Description: err.Error()}
	}

	// SUCCESS
	logger.Debug().Str("sub", cred.Subject()).Msg("pipeline: validation succeeded")
	return Result{Kind: FailureNone, Credential: cred}
}

