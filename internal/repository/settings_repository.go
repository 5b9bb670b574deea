package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skuledger/skuledger/internal/model"
)

// SettingsRepository provides access to the single-row runtime settings.
// The row is created lazily from the seed values; after that the database is
// authoritative and environment defaults are ignored.
type SettingsRepository struct {
	pool PoolInterface
	seed model.Settings
}

// NewSettingsRepository creates a new SettingsRepository with the given pool
// and seed values used when the row does not exist yet.
func NewSettingsRepository(pool *pgxpool.Pool, seed model.Settings) *SettingsRepository {
	return &SettingsRepository{pool: pool, seed: seed}
}

// NewSettingsRepositoryWithPool creates a new SettingsRepository with a custom pool interface.
// This is primarily used for testing.
func NewSettingsRepositoryWithPool(pool PoolInterface, seed model.Settings) *SettingsRepository {
	return &SettingsRepository{pool: pool, seed: seed}
}

const settingsColumns = `decrement_status, backorders_default, airtable_api_key_enc, airtable_base_id, airtable_stock_table, airtable_events_table, updated_at`

// Get returns the settings row, creating it from the seed on first access.
func (r *SettingsRepository) Get(ctx context.Context) (*model.Settings, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO app_settings (id, `+settingsColumns+`)
		 VALUES (1, $1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (id) DO NOTHING`,
		r.seed.DecrementStatus, r.seed.BackordersDefault,
		r.seed.AirtableAPIKey, r.seed.AirtableBaseID,
		r.seed.AirtableStockTable, r.seed.AirtableEventsTable)
	if err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}

	var s model.Settings
	err = r.pool.QueryRow(ctx,
		`SELECT `+settingsColumns+` FROM app_settings WHERE id = 1`).Scan(
		&s.DecrementStatus,
		&s.BackordersDefault,
		&s.AirtableAPIKey,
		&s.AirtableBaseID,
		&s.AirtableStockTable,
		&s.AirtableEventsTable,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &s, nil
}

// Update applies a partial update; nil fields keep their stored value.
// The whole update is one statement, so concurrent updates cannot interleave
// field-by-field.
func (r *SettingsRepository) Update(ctx context.Context, req *model.UpdateSettingsRequest) (*model.Settings, error) {
	// Make sure the row exists before updating it.
	if _, err := r.Get(ctx); err != nil {
		return nil, err
	}

	var s model.Settings
	err := r.pool.QueryRow(ctx,
		`UPDATE app_settings SET
			decrement_status = COALESCE($1, decrement_status),
			backorders_default = COALESCE($2, backorders_default),
			airtable_api_key_enc = COALESCE($3, airtable_api_key_enc),
			airtable_base_id = COALESCE($4, airtable_base_id),
			airtable_stock_table = COALESCE($5, airtable_stock_table),
			airtable_events_table = COALESCE($6, airtable_events_table),
			updated_at = NOW()
		 WHERE id = 1
		 RETURNING `+settingsColumns,
		req.DecrementStatus, req.BackordersDefault,
		req.AirtableAPIKey, req.AirtableBaseID,
		req.AirtableStockTable, req.AirtableEventsTable).Scan(
		&s.DecrementStatus,
		&s.BackordersDefault,
		&s.AirtableAPIKey,
		&s.AirtableBaseID,
		&s.AirtableStockTable,
		&s.AirtableEventsTable,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return &s, nil
}
