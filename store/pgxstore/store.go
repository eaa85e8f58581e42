// Package pgxstore implements store.Store directly on a pgx connection pool.
// Checkpoint advances run in a single transaction that locks the rule row,
// so no compensation step is ever needed.
package pgxstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/recur"
	recurstore "github.com/xraph/recur/store"
)

// compile-time interface check
var _ recurstore.Store = (*Store)(nil)

// Store implements store.Store on PostgreSQL through pgx.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open parses dsn, connects and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("recur/pgx: parse config: %w", err)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("recur/pgx: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("recur/pgx: ping: %w", err)
	}
	return New(pool), nil
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%w: recur/pgx: %w", recur.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func now() time.Time {
	return time.Now().UTC()
}

const schema = `
CREATE TABLE IF NOT EXISTS recur_rules (
    id                   TEXT PRIMARY KEY,
    organization_id      TEXT NOT NULL,
    base_event_id        TEXT NOT NULL,
    pattern              TEXT NOT NULL,
    start_date           DATE NOT NULL,
    end_date             DATE,
    occurrence_limit     INTEGER,
    latest_instance_date DATE NOT NULL,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_recur_rules_checkpoint ON recur_rules (organization_id, latest_instance_date);
CREATE INDEX IF NOT EXISTS idx_recur_rules_created ON recur_rules (organization_id, created_at);

CREATE TABLE IF NOT EXISTS recur_events (
    id                 TEXT PRIMARY KEY,
    organization_id    TEXT NOT NULL,
    title              TEXT NOT NULL,
    description        TEXT NOT NULL DEFAULT '',
    location           TEXT NOT NULL DEFAULT '',
    creator_id         TEXT NOT NULL DEFAULT '',
    admin_ids          TEXT[] NOT NULL DEFAULT '{}',
    is_public          BOOLEAN NOT NULL DEFAULT FALSE,
    all_day            BOOLEAN NOT NULL DEFAULT FALSE,
    start_time         TEXT NOT NULL DEFAULT '',
    end_time           TEXT NOT NULL DEFAULT '',
    occurrence_date    DATE NOT NULL,
    is_base_template   BOOLEAN NOT NULL DEFAULT FALSE,
    recurrence_rule_id TEXT NOT NULL DEFAULT '',
    base_event_id      TEXT NOT NULL DEFAULT '',
    batch_id           TEXT NOT NULL DEFAULT '',
    metadata           JSONB NOT NULL DEFAULT '{}',
    deleted_at         TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_recur_events_org_date ON recur_events (organization_id, occurrence_date) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_recur_events_rule ON recur_events (recurrence_rule_id) WHERE recurrence_rule_id != '';
`
