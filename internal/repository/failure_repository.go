package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skuledger/skuledger/internal/model"
	"github.com/skuledger/skuledger/internal/service"
)

// FailureRepository provides data access for propagation dead letters using pgx.
type FailureRepository struct {
	pool PoolInterface
}

// NewFailureRepository creates a new FailureRepository with the given pool.
func NewFailureRepository(pool *pgxpool.Pool) *FailureRepository {
	return &FailureRepository{pool: pool}
}

// NewFailureRepositoryWithPool creates a new FailureRepository with a custom pool interface.
// This is primarily used for testing.
func NewFailureRepositoryWithPool(pool PoolInterface) *FailureRepository {
	return &FailureRepository{pool: pool}
}

// Upsert records a persistent failure for (site_id, sku). A row already
// present for the pair is updated in place, so the table holds at most one
// row per pair regardless of how often propagation keeps failing.
func (r *FailureRepository) Upsert(ctx context.Context, f *model.PropagationFailure) error {
	payload, err := json.Marshal(f.Payload)
	if err != nil {
		return fmt.Errorf("marshal failure payload: %w", err)
	}

	query := `INSERT INTO propagation_failures (site_id, sku, payload, error, attempts, created_at, last_tried)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (site_id, sku) DO UPDATE
		SET payload = EXCLUDED.payload,
		    error = EXCLUDED.error,
		    attempts = EXCLUDED.attempts,
		    last_tried = NOW()`

	if _, err := r.pool.Exec(ctx, query, f.SiteID, f.SKU, payload, f.Error, f.Attempts); err != nil {
		return fmt.Errorf("upsert propagation failure %s/%s: %w", f.SiteID, f.SKU, err)
	}
	return nil
}

// List returns all failure rows, most recently tried first.
func (r *FailureRepository) List(ctx context.Context) ([]model.PropagationFailure, error) {
	query := `SELECT id, site_id, sku, payload, error, attempts, created_at, last_tried
		FROM propagation_failures ORDER BY last_tried DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list propagation failures: %w", err)
	}
	defer rows.Close()

	var failures []model.PropagationFailure
	for rows.Next() {
		var f model.PropagationFailure
		var payload []byte
		if err := rows.Scan(&f.ID, &f.SiteID, &f.SKU, &payload, &f.Error, &f.Attempts, &f.CreatedAt, &f.LastTried); err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &f.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal failure payload: %w", err)
			}
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure rows: %w", err)
	}

	if failures == nil {
		failures = []model.PropagationFailure{}
	}
	return failures, nil
}

// Delete removes a failure row by ID, used by operators after resolving the
// underlying site problem.
// Returns service.ErrFailureNotFound if no row has that ID.
func (r *FailureRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM propagation_failures WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete propagation failure %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrFailureNotFound
	}
	return nil
}
