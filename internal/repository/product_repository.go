package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skuledger/skuledger/internal/model"
	"github.com/skuledger/skuledger/pkg/database"
)

// PoolInterface defines the database operations needed by repositories.
// This allows for easier testing with mocks.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ProductRepository provides data access for catalog products using pgx.
type ProductRepository struct {
	pool PoolInterface
}

// NewProductRepository creates a new ProductRepository with the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// NewProductRepositoryWithPool creates a new ProductRepository with a custom pool interface.
// This is primarily used for testing.
func NewProductRepositoryWithPool(pool PoolInterface) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// EnsureProductAndStock lazily materialises the product and stock rows for a SKU.
// Unknown SKUs get a product named after the SKU with zero counters and the
// given backorders policy. Concurrent duplicate inserts are tolerated; an
// existing product is never modified.
func (r *ProductRepository) EnsureProductAndStock(ctx context.Context, tx database.TxQuerier, sku string, backorders bool) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO products (sku, name, backorders) VALUES ($1, $1, $2)
		 ON CONFLICT (sku) DO NOTHING`,
		sku, backorders)
	if err != nil {
		return fmt.Errorf("ensure product %s: %w", sku, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO stock (sku, on_hand, reserved) VALUES ($1, 0, 0)
		 ON CONFLICT (sku) DO NOTHING`,
		sku)
	if err != nil {
		return fmt.Errorf("ensure stock %s: %w", sku, err)
	}
	return nil
}

// GetBySKU retrieves a product by its SKU.
// Returns nil, nil if the product is not found (service layer handles this).
func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*model.Product, error) {
	query := `SELECT sku, name, lead_time_days, reorder_point, backorders, created_at, updated_at
		FROM products WHERE sku = $1`

	var p model.Product
	err := r.pool.QueryRow(ctx, query, sku).Scan(
		&p.SKU,
		&p.Name,
		&p.LeadTimeDays,
		&p.ReorderPoint,
		&p.Backorders,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found - let service handle
		}
		return nil, fmt.Errorf("get product by sku %s: %w", sku, err)
	}
	return &p, nil
}
