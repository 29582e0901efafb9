package providercache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
)

func unixToTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// SerializedEntry is the on-the-wire shape of one provider entry. It is
// opaque to callers but must round-trip through Serialize/Restore and
// through any Store implementation.
type SerializedEntry struct {
	Issuer    string             `json:"issuer"`
	Metadata  Metadata           `json:"metadata"`
	JWKS      jose.JSONWebKeySet `json:"jwks"`
	FetchedAt int64              `json:"fetched_at"`
}

// SerializedProviders is a snapshot of every cached entry, keyed by issuer.
type SerializedProviders map[string]SerializedEntry

// Store is a pluggable persistence backend for SerializedProviders, letting
// a fleet of resource-server instances share warm provider state instead of
// every process cold-starting discovery.
type Store interface {
	Load(ctx context.Context) (SerializedProviders, error)
	Save(ctx context.Context, providers SerializedProviders) error
}

// Serialize snapshots every cached entry.
func (c *Cache) Serialize() SerializedProviders {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(SerializedProviders, len(c.entries))
	for iss, entry := range c.entries {
		out[iss] = SerializedEntry{
			Issuer:    entry.Issuer,
			Metadata:  entry.Metadata,
			JWKS:      entry.JWKS,
			FetchedAt: entry.FetchedAt.Unix(),
		}
	}
	return out
}

// Restore loads a previously serialized snapshot, replacing any entries
// currently cached for the issuers present in s. The restored entries are
// used as-is until a miss or rotation triggers a refetch.
func (c *Cache) Restore(s SerializedProviders) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for iss, se := range s {
		c.entries[iss] = &Entry{
			Issuer:    se.Issuer,
			Metadata:  se.Metadata,
			JWKS:      se.JWKS,
			FetchedAt: unixToTime(se.FetchedAt),
		}
	}
	return nil
}

// SyncToStore persists the current snapshot to the attached Store, if one
// was configured via WithStore.
func (c *Cache) SyncToStore(ctx context.Context) error {
	if c.store == nil {
		return fmt.Errorf("providercache: no store configured")
	}
	return c.store.Save(ctx, c.Serialize())
}

// LoadFromStore loads a snapshot from the attached Store and restores it.
func (c *Cache) LoadFromStore(ctx context.Context) error {
	if c.store == nil {
		return fmt.Errorf("providercache: no store configured")
	}
	snapshot, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("providercache: loading store snapshot: %w", err)
	}
	return c.Restore(snapshot)
}
