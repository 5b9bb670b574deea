package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// schema is applied idempotently at startup. Structural migrations beyond
// CREATE IF NOT EXISTS are an external concern.
const schema = `
	CREATE TABLE IF NOT EXISTS products (
		sku            TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		lead_time_days INTEGER NOT NULL DEFAULT 0 CHECK (lead_time_days >= 0),
		reorder_point  INTEGER NOT NULL DEFAULT 0 CHECK (reorder_point >= 0),
		backorders     BOOLEAN NOT NULL DEFAULT FALSE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS stock (
		sku        TEXT PRIMARY KEY REFERENCES products(sku),
		on_hand    INTEGER NOT NULL DEFAULT 0,
		reserved   INTEGER NOT NULL DEFAULT 0 CHECK (reserved >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS inventory_events (
		id           BIGSERIAL PRIMARY KEY,
		site_id      TEXT NOT NULL,
		order_id     TEXT NOT NULL,
		line_item_id TEXT NOT NULL,
		sku          TEXT NOT NULL,
		delta        INTEGER NOT NULL CHECK (delta <> 0),
		event_type   TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (site_id, order_id, line_item_id, event_type)
	);

	CREATE TABLE IF NOT EXISTS site_sku_map (
		site_id      TEXT NOT NULL,
		sku          TEXT NOT NULL,
		product_id   BIGINT NOT NULL,
		variation_id BIGINT,
		refreshed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (site_id, sku)
	);

	CREATE TABLE IF NOT EXISTS propagation_failures (
		id         BIGSERIAL PRIMARY KEY,
		site_id    TEXT NOT NULL,
		sku        TEXT NOT NULL,
		payload    JSONB NOT NULL DEFAULT '{}'::jsonb,
		error      TEXT NOT NULL DEFAULT '',
		attempts   INTEGER NOT NULL DEFAULT 1 CHECK (attempts >= 1),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_tried TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (site_id, sku)
	);

	CREATE TABLE IF NOT EXISTS sites (
		id           UUID PRIMARY KEY,
		site_id      TEXT NOT NULL UNIQUE,
		name         TEXT NOT NULL DEFAULT '',
		base_url     TEXT NOT NULL,
		key_enc      TEXT NOT NULL,
		secret_enc   TEXT NOT NULL,
		active       BOOLEAN NOT NULL DEFAULT TRUE,
		last_sync_at TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS app_settings (
		id                    INTEGER PRIMARY KEY CHECK (id = 1),
		decrement_status      TEXT NOT NULL DEFAULT 'processing',
		backorders_default    BOOLEAN NOT NULL DEFAULT FALSE,
		airtable_api_key_enc  TEXT NOT NULL DEFAULT '',
		airtable_base_id      TEXT NOT NULL DEFAULT '',
		airtable_stock_table  TEXT NOT NULL DEFAULT '',
		airtable_events_table TEXT NOT NULL DEFAULT '',
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_inventory_events_sku ON inventory_events(sku);
	CREATE INDEX IF NOT EXISTS idx_inventory_events_created_at ON inventory_events(created_at);
`

// EnsureSchema applies the schema to the connected database. Safe to call on
// every startup; existing tables are left untouched.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	log.Info().Msg("database schema ensured")
	return nil
}
