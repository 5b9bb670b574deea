package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skuledger/skuledger/internal/model"
	"github.com/skuledger/skuledger/pkg/database"
)

// EventRepository provides data access for inventory events using pgx.
// Events are append-only.
type EventRepository struct {
	pool PoolInterface
}

// NewEventRepository creates a new EventRepository with the given pool.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// NewEventRepositoryWithPool creates a new EventRepository with a custom pool interface.
// This is primarily used for testing.
func NewEventRepositoryWithPool(pool PoolInterface) *EventRepository {
	return &EventRepository{pool: pool}
}

// InsertIdempotent attempts to insert an event row. The unique constraint on
// (site_id, order_id, line_item_id, event_type) is the idempotency oracle:
// a conflicting insert is absorbed and reported as inserted=false without
// aborting the surrounding transaction.
func (r *EventRepository) InsertIdempotent(ctx context.Context, tx database.TxQuerier, ev *model.InventoryEvent) (bool, error) {
	tag, err := tx.Exec(ctx,
		`INSERT INTO inventory_events (site_id, order_id, line_item_id, sku, delta, event_type)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (site_id, order_id, line_item_id, event_type) DO NOTHING`,
		ev.SiteID, ev.OrderID, ev.LineItemID, ev.SKU, ev.Delta, ev.EventType)
	if err != nil {
		return false, fmt.Errorf("insert inventory event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListRecent returns the most recent events, newest first, up to limit.
func (r *EventRepository) ListRecent(ctx context.Context, limit int) ([]model.InventoryEvent, error) {
	query := `SELECT id, site_id, order_id, line_item_id, sku, delta, event_type, created_at
		FROM inventory_events ORDER BY id DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	defer rows.Close()

	var events []model.InventoryEvent
	for rows.Next() {
		var ev model.InventoryEvent
		if err := rows.Scan(&ev.ID, &ev.SiteID, &ev.OrderID, &ev.LineItemID, &ev.SKU, &ev.Delta, &ev.EventType, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	if events == nil {
		events = []model.InventoryEvent{}
	}
	return events, nil
}
