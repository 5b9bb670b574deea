package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skuledger/skuledger/internal/model"
	"github.com/skuledger/skuledger/pkg/database"
)

// MappingRepository provides data access for site SKU mappings using pgx.
type MappingRepository struct {
	pool PoolInterface
}

// NewMappingRepository creates a new MappingRepository with the given pool.
func NewMappingRepository(pool *pgxpool.Pool) *MappingRepository {
	return &MappingRepository{pool: pool}
}

// NewMappingRepositoryWithPool creates a new MappingRepository with a custom pool interface.
// This is primarily used for testing.
func NewMappingRepositoryWithPool(pool PoolInterface) *MappingRepository {
	return &MappingRepository{pool: pool}
}

// Upsert writes the remote coordinates for (site_id, sku), replacing any
// previous mapping. Within one refresh a later upsert for the same SKU wins.
func (r *MappingRepository) Upsert(ctx context.Context, tx database.TxQuerier, m *model.SkuMapping) error {
	query := `INSERT INTO site_sku_map (site_id, sku, product_id, variation_id, refreshed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (site_id, sku) DO UPDATE
		SET product_id = EXCLUDED.product_id,
		    variation_id = EXCLUDED.variation_id,
		    refreshed_at = NOW()`

	_, err := tx.Exec(ctx, query, m.SiteID, m.SKU, m.ProductID, m.VariationID)
	if err != nil {
		return fmt.Errorf("upsert mapping %s/%s: %w", m.SiteID, m.SKU, err)
	}
	return nil
}

// Get retrieves the mapping for (site_id, sku).
// Returns nil, nil if no mapping exists (the caller logs and moves on).
func (r *MappingRepository) Get(ctx context.Context, siteID, sku string) (*model.SkuMapping, error) {
	query := `SELECT site_id, sku, product_id, variation_id, refreshed_at
		FROM site_sku_map WHERE site_id = $1 AND sku = $2`

	var m model.SkuMapping
	err := r.pool.QueryRow(ctx, query, siteID, sku).Scan(
		&m.SiteID,
		&m.SKU,
		&m.ProductID,
		&m.VariationID,
		&m.RefreshedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // No mapping - caller decides
		}
		return nil, fmt.Errorf("get mapping %s/%s: %w", siteID, sku, err)
	}
	return &m, nil
}

// ListBySite returns all mappings for one site ordered by SKU.
func (r *MappingRepository) ListBySite(ctx context.Context, siteID string) ([]model.SkuMapping, error) {
	query := `SELECT site_id, sku, product_id, variation_id, refreshed_at
		FROM site_sku_map WHERE site_id = $1 ORDER BY sku`

	rows, err := r.pool.Query(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("list mappings for %s: %w", siteID, err)
	}
	defer rows.Close()

	var mappings []model.SkuMapping
	for rows.Next() {
		var m model.SkuMapping
		if err := rows.Scan(&m.SiteID, &m.SKU, &m.ProductID, &m.VariationID, &m.RefreshedAt); err != nil {
			return nil, fmt.Errorf("scan mapping row: %w", err)
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mapping rows: %w", err)
	}

	if mappings == nil {
		mappings = []model.SkuMapping{}
	}
	return mappings, nil
}
