// Package providercache resolves OIDC issuer URLs to provider metadata and
// JSON Web Key Sets, generalized to an arbitrary number of issuers with
// proper single-flight coalescing and atomic rotation.
package providercache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/jermoo/oidcrs/internal/ratelimit"
)

const wellKnownSuffix = "/.well-known/openid-configuration"

// Metadata is the OIDC discovery document projected to the fields this
// package needs.
type Metadata struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// Entry is a (metadata, jwks) pair, the unit the cache stores and rotates.
// Once constructed an Entry is never mutated; rotation builds a new one and
// swaps the pointer, so a reader holding an old *Entry always sees a
// consistent snapshot.
type Entry struct {
	Issuer    string
	Metadata  Metadata
	JWKS      jose.JSONWebKeySet
	FetchedAt time.Time
}

// Cache is a read-mostly, issuer-keyed cache of provider entries. Reads take
// the RWMutex in read mode; writes (first resolution or rotation) swap the
// map entry under the write lock, so in-flight readers who already loaded
// their *Entry never observe torn state.
type Cache struct {
	httpClient *http.Client

	mu      sync.RWMutex
	entries map[string]*Entry

	resolveGroup singleflight.Group
	rotateGroup  singleflight.Group

	rotateLimiter ratelimit.Limiter

	store Store
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithHTTPClient overrides the client used for discovery and JWKS fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(cache *Cache) { cache.httpClient = c }
}

// WithRotationLimiter overrides the debounce limiter guarding rotate(). The
// default is an in-memory limiter using ratelimit.DefaultConfig() (one
// forced refetch per issuer every 30 seconds).
func WithRotationLimiter(l ratelimit.Limiter) Option {
	return func(cache *Cache) { cache.rotateLimiter = l }
}

// WithStore attaches a persistence backend. It does not load anything by
// itself; see NewFromStore.
func WithStore(s Store) Option {
	return func(cache *Cache) { cache.store = s }
}

// New creates a Cache with an empty set of entries.
func New(opts ...Option) *Cache {
	c := &Cache{
		httpClient: http.DefaultClient,
		entries:    make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rotateLimiter == nil {
		c.rotateLimiter = ratelimit.NewMemoryLimiter(ratelimit.DefaultConfig())
	}
	return c
}

// Resolve returns the cached entry for iss if present, otherwise performs
// OIDC discovery followed by a JWKS fetch, stores the result, and returns
// it. Concurrent first-time resolutions for the same issuer coalesce into a
// single fetch.
func (c *Cache) Resolve(ctx context.Context, iss string) (*Entry, error) {
	if entry, ok := c.lookup(iss); ok {
		return entry, nil
	}

	v, err, _ := c.resolveGroup.Do(iss, func() (interface{}, error) {
		if entry, ok := c.lookup(iss); ok {
			return entry, nil
		}
		entry, ferr := c.fetch(ctx, iss)
		if ferr != nil {
			return nil, ferr
		}
		c.save(iss, entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Rotate forces a refetch of the JWK Set for iss, reusing the cached
// discovery metadata when available. The new entry replaces the old one
// atomically; callers already holding the previous *Entry keep using it.
//
// Rotation is debounced per-issuer: a caller that rotates faster than the
// configured window gets back the current (possibly still-stale) entry
// without triggering another network fetch, so a client presenting JWTs
// with fabricated kids cannot force unbounded upstream traffic.
func (c *Cache) Rotate(ctx context.Context, iss string) (*Entry, error) {
	allowed, _, _, err := c.rotateLimiter.Check("rotate:" + iss)
	if err != nil {
		log.Warn().Err(err).Str("issuer", iss).Msg("providercache: rotation limiter check failed, allowing")
		allowed = true
	}
	if !allowed {
		if entry, ok := c.lookup(iss); ok {
			log.Debug().Str("issuer", iss).Msg("providercache: rotation debounced, serving cached entry")
			return entry, nil
		}
	}

	v, err, _ := c.rotateGroup.Do(iss, func() (interface{}, error) {
		var meta *Metadata
		if entry, ok := c.lookup(iss); ok {
			m := entry.Metadata
			meta = &m
		}
		entry, ferr := c.fetchWithMetadata(ctx, iss, meta)
		if ferr != nil {
			return nil, ferr
		}
		c.save(iss, entry)
		log.Info().Str("issuer", iss).Msg("providercache: rotated jwks")
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (c *Cache) lookup(iss string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[iss]
	return e, ok
}

func (c *Cache) save(iss string, entry *Entry) {
	c.mu.Lock()
	c.entries[iss] = entry
	c.mu.Unlock()
}

func (c *Cache) fetch(ctx context.Context, iss string) (*Entry, error) {
	return c.fetchWithMetadata(ctx, iss, nil)
}

// fetchWithMetadata performs discovery only when meta is nil, then always
// fetches a fresh JWKS document.
func (c *Cache) fetchWithMetadata(ctx context.Context, iss string, meta *Metadata) (*Entry, error) {
	if meta == nil {
		m, err := c.discover(ctx, iss)
		if err != nil {
			return nil, err
		}
		meta = m
	}
	if meta.JWKSURI == "" {
		return nil, newResolveError(ErrKindMissingJWKSURI, iss, fmt.Errorf("discovery document has no jwks_uri"))
	}

	jwks, err := c.fetchJWKS(ctx, iss, meta.JWKSURI)
	if err != nil {
		return nil, err
	}

	return &Entry{
		Issuer:    iss,
		Metadata:  *meta,
		JWKS:      *jwks,
		FetchedAt: time.Now(),
	}, nil
}

func (c *Cache) discover(ctx context.Context, iss string) (*Metadata, error) {
	url := iss + wellKnownSuffix
	body, err := c.getJSON(ctx, url)
	if err != nil {
		if re, ok := err.(*ResolveError); ok {
			re.Issuer = iss
			return nil, re
		}
		return nil, newResolveError(ErrKindNetwork, iss, err)
	}

	var meta Metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, newResolveError(ErrKindDecode, iss, fmt.Errorf("decoding discovery document: %w", err))
	}
	return &meta, nil
}

func (c *Cache) fetchJWKS(ctx context.Context, iss, jwksURI string) (*jose.JSONWebKeySet, error) {
	body, err := c.getJSON(ctx, jwksURI)
	if err != nil {
		if re, ok := err.(*ResolveError); ok {
			re.Issuer = iss
			return nil, re
		}
		return nil, newResolveError(ErrKindNetwork, iss, err)
	}

	var jwks jose.JSONWebKeySet
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, newResolveError(ErrKindDecode, iss, fmt.Errorf("decoding jwks: %w", err))
	}
	return &jwks, nil
}

func (c *Cache) getJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, newResolveError(ErrKindNetwork, "", fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newResolveError(ErrKindNetwork, "", fmt.Errorf("fetching %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newResolveError(ErrKindStatus, "", fmt.Errorf("%s returned status %d", url, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, newResolveError(ErrKindNetwork, "", fmt.Errorf("reading response body: %w", err))
	}
	return body, nil
}

// Close stops the rotation limiter's background cleanup, if any.
func (c *Cache) Close() {
	c.rotateLimiter.Stop()
}
