// Package store owns the Postgres connection pool and the ledger schema.
// The pool is constructed explicitly by the process owner and injected into
// the repository; nothing here connects lazily or holds global state.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

// schema is idempotent DDL applied at startup. DECIMAL(17,2) gives 15 integer
// digits with exact cent precision; the partial unique index lets operations
// without an idempotency key coexist.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id         UUID PRIMARY KEY,
    name       VARCHAR(100) NOT NULL,
    email      VARCHAR(255) NOT NULL UNIQUE,
    balance    DECIMAL(17,2) NOT NULL DEFAULT 0.00,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS operations (
    id              UUID PRIMARY KEY,
    account_id      UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    type            VARCHAR(10) NOT NULL CHECK (type IN ('deposit', 'withdrawal')),
    amount          DECIMAL(17,2) NOT NULL CHECK (amount > 0),
    balance_before  DECIMAL(17,2) NOT NULL,
    balance_after   DECIMAL(17,2) NOT NULL,
    idempotency_key TEXT,
    status          VARCHAR(10) NOT NULL CHECK (status IN ('pending', 'concluded', 'failed')),
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS operations_idempotency_key_idx
    ON operations (idempotency_key) WHERE idempotency_key IS NOT NULL;

CREATE INDEX IF NOT EXISTS operations_account_created_idx
    ON operations (account_id, created_at DESC);

CREATE INDEX IF NOT EXISTS accounts_created_at_idx
    ON accounts (created_at DESC);
`

// Migrate creates the ledger tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}
