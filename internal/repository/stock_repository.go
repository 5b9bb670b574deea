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

// StockRepository provides data access for stock rows using pgx.
type StockRepository struct {
	pool PoolInterface
}

// NewStockRepository creates a new StockRepository with the given pool.
func NewStockRepository(pool *pgxpool.Pool) *StockRepository {
	return &StockRepository{pool: pool}
}

// NewStockRepositoryWithPool creates a new StockRepository with a custom pool interface.
// This is primarily used for testing.
func NewStockRepositoryWithPool(pool PoolInterface) *StockRepository {
	return &StockRepository{pool: pool}
}

// LockRow retrieves the stock row for a SKU with a row lock (SELECT FOR UPDATE).
// The lock is held until the transaction completes; concurrent writers to the
// same SKU serialise here. The caller must have ensured the row exists.
func (r *StockRepository) LockRow(ctx context.Context, tx database.TxQuerier, sku string) (*model.LockedStock, error) {
	query := `SELECT s.sku, s.on_hand, s.reserved, s.updated_at, p.backorders
		FROM stock s
		JOIN products p ON p.sku = s.sku
		WHERE s.sku = $1
		FOR UPDATE OF s`

	var ls model.LockedStock
	err := tx.QueryRow(ctx, query, sku).Scan(
		&ls.SKU,
		&ls.OnHand,
		&ls.Reserved,
		&ls.UpdatedAt,
		&ls.Backorders,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lock stock row %s: row missing", sku)
		}
		return nil, fmt.Errorf("lock stock row %s: %w", sku, err)
	}
	return &ls, nil
}

// UpdateOnHand writes the new on-hand quantity for a SKU.
// Must be called within a transaction after locking the row.
func (r *StockRepository) UpdateOnHand(ctx context.Context, tx database.TxQuerier, sku string, onHand int) error {
	query := `UPDATE stock SET on_hand = $2, updated_at = NOW() WHERE sku = $1`

	_, err := tx.Exec(ctx, query, sku, onHand)
	if err != nil {
		return fmt.Errorf("update on_hand for %s: %w", sku, err)
	}
	return nil
}

// GetOnHand returns the current on-hand quantity for a SKU, or 0 when no
// stock row exists.
func (r *StockRepository) GetOnHand(ctx context.Context, q database.TxQuerier, sku string) (int, error) {
	var onHand int
	err := q.QueryRow(ctx, `SELECT on_hand FROM stock WHERE sku = $1`, sku).Scan(&onHand)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get on_hand for %s: %w", sku, err)
	}
	return onHand, nil
}

// GetBySKU retrieves a stock row by SKU.
// Returns nil, nil if no row exists (service layer handles this).
func (r *StockRepository) GetBySKU(ctx context.Context, sku string) (*model.Stock, error) {
	query := `SELECT sku, on_hand, reserved, updated_at FROM stock WHERE sku = $1`

	var s model.Stock
	err := r.pool.QueryRow(ctx, query, sku).Scan(&s.SKU, &s.OnHand, &s.Reserved, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock by sku %s: %w", sku, err)
	}
	return &s, nil
}

// List returns stock rows ordered by SKU, up to limit.
func (r *StockRepository) List(ctx context.Context, limit int) ([]model.Stock, error) {
	query := `SELECT sku, on_hand, reserved, updated_at FROM stock ORDER BY sku LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()

	var out []model.Stock
	for rows.Next() {
		var s model.Stock
		if err := rows.Scan(&s.SKU, &s.OnHand, &s.Reserved, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stock row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock rows: %w", err)
	}

	if out == nil {
		out = []model.Stock{}
	}
	return out, nil
}
