package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	external_id    TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	title          TEXT NOT NULL,
	price_amount   NUMERIC(14, 2),
	price_currency CHAR(3),
	url            TEXT NOT NULL DEFAULT '',
	image_url      TEXT NOT NULL DEFAULT '',
	keyword        TEXT NOT NULL,
	collected_at   TIMESTAMPTZ NOT NULL,
	first_seen_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_collected_at ON products (collected_at DESC);
CREATE INDEX IF NOT EXISTS idx_products_keyword_collected_at ON products (keyword, collected_at DESC);

CREATE TABLE IF NOT EXISTS collection_runs (
	id            UUID PRIMARY KEY,
	keyword       TEXT NOT NULL,
	source        TEXT NOT NULL,
	status        TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	fetched       INTEGER NOT NULL DEFAULT 0,
	normalized    INTEGER NOT NULL DEFAULT 0,
	stored        INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	inserted      INTEGER NOT NULL DEFAULT 0,
	updated       INTEGER NOT NULL DEFAULT 0,
	skipped       INTEGER NOT NULL DEFAULT 0,
	pages_fetched INTEGER NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_collection_runs_started_at ON collection_runs (started_at DESC);

CREATE TABLE IF NOT EXISTS product_observations (
	id             BIGSERIAL PRIMARY KEY,
	run_id         UUID NOT NULL,
	external_id    TEXT NOT NULL REFERENCES products (external_id) ON DELETE CASCADE,
	keyword        TEXT NOT NULL,
	price_amount   NUMERIC(14, 2),
	price_currency CHAR(3),
	observed_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_product_observations_external_id ON product_observations (external_id, observed_at);
`

// NewPool opens a pgx connection pool and verifies it with a ping.
func NewPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
