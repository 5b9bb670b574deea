package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/skuledger/skuledger/internal/model"
	"github.com/skuledger/skuledger/pkg/database"
)

// mockTx is a mock implementation of pgx.Tx for testing transactions.
type mockTx struct {
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
}

// Begin returns a child mockTx, standing in for a savepoint-backed nested
// transaction.
func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return &mockTx{}, nil
}

func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitFn != nil {
		return m.commitFn(ctx)
	}
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx)
	}
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (m *mockTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (m *mockTx) Conn() *pgx.Conn {
	return nil
}

// mockPool is a mock implementation of Pool.
type mockPool struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (m *mockPool) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginFn != nil {
		return m.beginFn(ctx)
	}
	return &mockTx{}, nil
}

func (m *mockPool) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

// mockProductRepository is a mock implementation of ProductRepositoryInterface.
type mockProductRepository struct {
	ensureFn   func(ctx context.Context, tx database.TxQuerier, sku string, backorders bool) error
	getBySKUFn func(ctx context.Context, sku string) (*model.Product, error)
}

func (m *mockProductRepository) EnsureProductAndStock(ctx context.Context, tx database.TxQuerier, sku string, backorders bool) error {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, tx, sku, backorders)
	}
	return nil
}

func (m *mockProductRepository) GetBySKU(ctx context.Context, sku string) (*model.Product, error) {
	if m.getBySKUFn != nil {
		return m.getBySKUFn(ctx, sku)
	}
	return nil, nil
}

// mockStockRepository is a mock implementation of StockRepositoryInterface.
type mockStockRepository struct {
	lockRowFn      func(ctx context.Context, tx database.TxQuerier, sku string) (*model.LockedStock, error)
	updateOnHandFn func(ctx context.Context, tx database.TxQuerier, sku string, onHand int) error
	getOnHandFn    func(ctx context.Context, q database.TxQuerier, sku string) (int, error)
	getBySKUFn     func(ctx context.Context, sku string) (*model.Stock, error)
	listFn         func(ctx context.Context, limit int) ([]model.Stock, error)
}

func (m *mockStockRepository) LockRow(ctx context.Context, tx database.TxQuerier, sku string) (*model.LockedStock, error) {
	if m.lockRowFn != nil {
		return m.lockRowFn(ctx, tx, sku)
	}
	return &model.LockedStock{Stock: model.Stock{SKU: sku}}, nil
}

func (m *mockStockRepository) UpdateOnHand(ctx context.Context, tx database.TxQuerier, sku string, onHand int) error {
	if m.updateOnHandFn != nil {
		return m.updateOnHandFn(ctx, tx, sku, onHand)
	}
	return nil
}

func (m *mockStockRepository) GetOnHand(ctx context.Context, q database.TxQuerier, sku string) (int, error) {
	if m.getOnHandFn != nil {
		return m.getOnHandFn(ctx, q, sku)
	}
	return 0, nil
}

func (m *mockStockRepository) GetBySKU(ctx context.Context, sku string) (*model.Stock, error) {
	if m.getBySKUFn != nil {
		return m.getBySKUFn(ctx, sku)
	}
	return nil, nil
}

func (m *mockStockRepository) List(ctx context.Context, limit int) ([]model.Stock, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit)
	}
	return []model.Stock{}, nil
}

// mockEventRepository is a mock implementation of EventRepositoryInterface.
type mockEventRepository struct {
	insertIdempotentFn func(ctx context.Context, tx database.TxQuerier, ev *model.InventoryEvent) (bool, error)
	listRecentFn       func(ctx context.Context, limit int) ([]model.InventoryEvent, error)
}

func (m *mockEventRepository) InsertIdempotent(ctx context.Context, tx database.TxQuerier, ev *model.InventoryEvent) (bool, error) {
	if m.insertIdempotentFn != nil {
		return m.insertIdempotentFn(ctx, tx, ev)
	}
	return true, nil
}

func (m *mockEventRepository) ListRecent(ctx context.Context, limit int) ([]model.InventoryEvent, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, limit)
	}
	return []model.InventoryEvent{}, nil
}

// mockSettingsRepository is a mock implementation of SettingsRepositoryInterface.
type mockSettingsRepository struct {
	getFn    func(ctx context.Context) (*model.Settings, error)
	updateFn func(ctx context.Context, req *model.UpdateSettingsRequest) (*model.Settings, error)
}

func (m *mockSettingsRepository) Get(ctx context.Context) (*model.Settings, error) {
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	return &model.Settings{DecrementStatus: "processing"}, nil
}

func (m *mockSettingsRepository) Update(ctx context.Context, req *model.UpdateSettingsRequest) (*model.Settings, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, req)
	}
	return &model.Settings{DecrementStatus: "processing"}, nil
}

func intPtr(i int) *int {
	return &i
}
