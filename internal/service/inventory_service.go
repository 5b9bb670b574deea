package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/skuledger/skuledger/internal/metrics"
	"github.com/skuledger/skuledger/internal/model"
	"github.com/skuledger/skuledger/pkg/database"
)

// ProductRepositoryInterface defines the interface for product data access.
type ProductRepositoryInterface interface {
	EnsureProductAndStock(ctx context.Context, tx database.TxQuerier, sku string, backorders bool) error
	GetBySKU(ctx context.Context, sku string) (*model.Product, error)
}

// StockRepositoryInterface defines the interface for stock data access.
type StockRepositoryInterface interface {
	LockRow(ctx context.Context, tx database.TxQuerier, sku string) (*model.LockedStock, error)
	UpdateOnHand(ctx context.Context, tx database.TxQuerier, sku string, onHand int) error
	GetOnHand(ctx context.Context, q database.TxQuerier, sku string) (int, error)
	GetBySKU(ctx context.Context, sku string) (*model.Stock, error)
	List(ctx context.Context, limit int) ([]model.Stock, error)
}

// EventRepositoryInterface defines the interface for inventory event data access.
type EventRepositoryInterface interface {
	InsertIdempotent(ctx context.Context, tx database.TxQuerier, ev *model.InventoryEvent) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]model.InventoryEvent, error)
}

// SettingsRepositoryInterface defines the interface for runtime settings access.
type SettingsRepositoryInterface interface {
	Get(ctx context.Context) (*model.Settings, error)
	Update(ctx context.Context, req *model.UpdateSettingsRequest) (*model.Settings, error)
}

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool combines transaction start with direct query access.
// *pgxpool.Pool satisfies it; tests substitute lighter implementations.
type Pool interface {
	TxBeginner
	database.TxQuerier
}

// InventoryService is the idempotent delta engine. Every stock mutation in
// the system flows through it inside a single database transaction, keyed by
// (site_id, order_id, line_item_id, event_type) so replayed deliveries are
// absorbed without double-counting.
type InventoryService struct {
	pool         Pool
	productRepo  ProductRepositoryInterface
	stockRepo    StockRepositoryInterface
	eventRepo    EventRepositoryInterface
	settingsRepo SettingsRepositoryInterface
}

// NewInventoryService creates a new InventoryService with the given pool and repositories.
func NewInventoryService(pool *pgxpool.Pool, productRepo ProductRepositoryInterface, stockRepo StockRepositoryInterface, eventRepo EventRepositoryInterface, settingsRepo SettingsRepositoryInterface) *InventoryService {
	return &InventoryService{
		pool:         pool,
		productRepo:  productRepo,
		stockRepo:    stockRepo,
		eventRepo:    eventRepo,
		settingsRepo: settingsRepo,
	}
}

// NewInventoryServiceWithPool creates an InventoryService with a custom Pool.
// Primarily used for testing.
func NewInventoryServiceWithPool(pool Pool, productRepo ProductRepositoryInterface, stockRepo StockRepositoryInterface, eventRepo EventRepositoryInterface, settingsRepo SettingsRepositoryInterface) *InventoryService {
	return &InventoryService{
		pool:         pool,
		productRepo:  productRepo,
		stockRepo:    stockRepo,
		eventRepo:    eventRepo,
		settingsRepo: settingsRepo,
	}
}

// ApplyDelta applies one signed stock movement exactly once.
// A replayed delivery returns WasNew=false with the current on-hand and does
// not touch stock. Returns ErrZeroDelta or ErrInvalidEventType on bad input.
func (s *InventoryService) ApplyDelta(ctx context.Context, ev *model.InventoryEvent) (*model.ApplyResult, error) {
	if ev == nil {
		return nil, ErrInvalidRequest
	}
	if ev.Delta == 0 {
		return nil, ErrZeroDelta
	}
	if _, ok := deltaSign(ev.EventType); !ok {
		return nil, ErrInvalidEventType
	}

	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	result, err := s.applyOne(ctx, tx, ev, settings.BackordersDefault)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

// BulkApplyDeltas applies one order's line items in a single transaction.
// The signed delta is -qty for order_paid and +qty for refund and cancel.
// Results come back in line-item order; any failure rolls back the whole order.
func (s *InventoryService) BulkApplyDeltas(ctx context.Context, siteID, orderID, eventType string, items []model.OrderLineItem) ([]model.ApplyResult, error) {
	sign, ok := deltaSign(eventType)
	if !ok {
		return nil, ErrInvalidEventType
	}

	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	results := make([]model.ApplyResult, 0, len(items))
	for _, item := range items {
		// Direct callers can bypass handler validation
		if item.Qty == nil {
			return nil, ErrInvalidRequest
		}

		ev := &model.InventoryEvent{
			SiteID:     siteID,
			OrderID:    orderID,
			LineItemID: item.LineItemID,
			SKU:        item.SKU,
			Delta:      sign * *item.Qty,
			EventType:  eventType,
		}
		result, err := s.applyOne(ctx, tx, ev, settings.BackordersDefault)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return results, nil
}

// applyOne runs the delta path for one event inside the given transaction.
func (s *InventoryService) applyOne(ctx context.Context, tx pgx.Tx, ev *model.InventoryEvent, backordersDefault bool) (*model.ApplyResult, error) {
	// 1. Materialise product and stock rows for a never-seen SKU
	if err := s.productRepo.EnsureProductAndStock(ctx, tx, ev.SKU, backordersDefault); err != nil {
		return nil, err
	}

	// 2. Record the event; a conflict on the event key means a replay
	inserted, err := s.eventRepo.InsertIdempotent(ctx, tx, ev)
	if err != nil {
		return nil, err
	}
	if !inserted {
		onHand, err := s.stockRepo.GetOnHand(ctx, tx, ev.SKU)
		if err != nil {
			return nil, err
		}
		metrics.EventsDuplicate.Inc()
		log.Info().
			Str("site_id", ev.SiteID).
			Str("order_id", ev.OrderID).
			Str("line_item_id", ev.LineItemID).
			Str("event_type", ev.EventType).
			Msg("duplicate event ignored")
		return &model.ApplyResult{SKU: ev.SKU, WasNew: false, NewOnHand: onHand}, nil
	}

	// 3. Lock the stock row and compute the new level
	locked, err := s.stockRepo.LockRow(ctx, tx, ev.SKU)
	if err != nil {
		return nil, err
	}
	newOnHand := locked.OnHand + ev.Delta
	if newOnHand < 0 && !locked.Backorders {
		log.Warn().
			Str("sku", ev.SKU).
			Int("on_hand", locked.OnHand).
			Int("delta", ev.Delta).
			Msg("stock floor clamped to zero")
		metrics.StockClamps.Inc()
		newOnHand = 0
	}

	// 4. Write the new level
	if err := s.stockRepo.UpdateOnHand(ctx, tx, ev.SKU, newOnHand); err != nil {
		return nil, err
	}
	metrics.EventsApplied.Inc()
	return &model.ApplyResult{SKU: ev.SKU, WasNew: true, NewOnHand: newOnHand}, nil
}

// GetStock returns the current on-hand level, 0 for SKUs the ledger has never seen.
func (s *InventoryService) GetStock(ctx context.Context, sku string) (int, error) {
	return s.stockRepo.GetOnHand(ctx, s.pool, sku)
}

// GetStockDetail returns the full stock row with its product, for the admin API.
// Returns ErrProductNotFound if the SKU has never been seen.
func (s *InventoryService) GetStockDetail(ctx context.Context, sku string) (*model.StockDetail, error) {
	product, err := s.productRepo.GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	stock, err := s.stockRepo.GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	detail := &model.StockDetail{Product: *product}
	if stock != nil {
		detail.OnHand = stock.OnHand
		detail.Reserved = stock.Reserved
		detail.UpdatedAt = stock.UpdatedAt
	}
	return detail, nil
}

// ListStock returns up to limit stock rows for the admin API.
func (s *InventoryService) ListStock(ctx context.Context, limit int) ([]model.Stock, error) {
	return s.stockRepo.List(ctx, limit)
}

// ListRecentEvents returns the newest events first, for the admin API.
func (s *InventoryService) ListRecentEvents(ctx context.Context, limit int) ([]model.InventoryEvent, error) {
	return s.eventRepo.ListRecent(ctx, limit)
}

// deltaSign maps an event type to the sign of its stock movement.
func deltaSign(eventType string) (int, bool) {
	switch eventType {
	case model.EventOrderPaid:
		return -1, true
	case model.EventRefund, model.EventCancel:
		return 1, true
	default:
		return 0, false
	}
}
