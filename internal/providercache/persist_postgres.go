package providercache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists each provider entry as its own row, for deployments
// that already run Postgres and want the cache to survive a full fleet
// restart rather than shuttle a single JSON blob through Redis.
//
// Expected schema:
//
//	CREATE TABLE oidcrs_provider_cache (
//		issuer     text PRIMARY KEY,
//		metadata   jsonb NOT NULL,
//		jwks       jsonb NOT NULL,
//		fetched_at bigint NOT NULL -- Unix seconds
//	);
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore returns a Store backed by the given pgx pool. table
// defaults to "oidcrs_provider_cache".
func NewPostgresStore(pool *pgxpool.Pool, table string) *PostgresStore {
	if table == "" {
		table = "oidcrs_provider_cache"
	}
	return &PostgresStore{pool: pool, table: table}
}

func (s *PostgresStore) Load(ctx context.Context) (SerializedProviders, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT issuer, metadata, jwks, fetched_at FROM %s`, s.table,
	))
	if err != nil {
		return nil, fmt.Errorf("providercache/postgres: querying %s: %w", s.table, err)
	}
	defer rows.Close()

	out := make(SerializedProviders)
	for rows.Next() {
		var (
			issuer        string
			metadataBytes []byte
			jwksBytes     []byte
			fetchedAt     int64
		)
		if err := rows.Scan(&issuer, &metadataBytes, &jwksBytes, &fetchedAt); err != nil {
			return nil, fmt.Errorf("providercache/postgres: scanning row: %w", err)
		}

		var entry SerializedEntry
		entry.Issuer = issuer
		entry.FetchedAt = fetchedAt
		if err := json.Unmarshal(metadataBytes, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("providercache/postgres: decoding metadata for %s: %w", issuer, err)
		}
		if err := json.Unmarshal(jwksBytes, &entry.JWKS); err != nil {
			return nil, fmt.Errorf("providercache/postgres: decoding jwks for %s: %w", issuer, err)
		}
		out[issuer] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("providercache/postgres: iterating rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Save(ctx context.Context, providers SerializedProviders) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("providercache/postgres: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for issuer, entry := range providers {
		metadataBytes, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("providercache/postgres: encoding metadata for %s: %w", issuer, err)
		}
		jwksBytes, err := json.Marshal(entry.JWKS)
		if err != nil {
			return fmt.Errorf("providercache/postgres: encoding jwks for %s: %w", issuer, err)
		}

		_, err = tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (issuer, metadata, jwks, fetched_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (issuer) DO UPDATE SET
				metadata = EXCLUDED.metadata,
				jwks = EXCLUDED.jwks,
				fetched_at = EXCLUDED.fetched_at
		`, s.table), issuer, metadataBytes, jwksBytes, entry.FetchedAt)
		if err != nil {
			return fmt.Errorf("providercache/postgres: upserting %s: %w", issuer, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("providercache/postgres: committing transaction: %w", err)
	}
	return nil
}
