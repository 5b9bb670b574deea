package handler

import (
	"context"

	"github.com/skuledger/skuledger/internal/analytics"
	"github.com/skuledger/skuledger/internal/model"
)

// mockInventoryService is a mock implementation of InventoryServiceInterface.
type mockInventoryService struct {
	bulkApplyFn      func(ctx context.Context, siteID, orderID, eventType string, items []model.OrderLineItem) ([]model.ApplyResult, error)
	listStockFn      func(ctx context.Context, limit int) ([]model.Stock, error)
	getStockDetailFn func(ctx context.Context, sku string) (*model.StockDetail, error)
	listEventsFn     func(ctx context.Context, limit int) ([]model.InventoryEvent, error)
}

func (m *mockInventoryService) BulkApplyDeltas(ctx context.Context, siteID, orderID, eventType string, items []model.OrderLineItem) ([]model.ApplyResult, error) {
	if m.bulkApplyFn != nil {
		return m.bulkApplyFn(ctx, siteID, orderID, eventType, items)
	}
	return nil, nil
}

func (m *mockInventoryService) ListStock(ctx context.Context, limit int) ([]model.Stock, error) {
	if m.listStockFn != nil {
		return m.listStockFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockInventoryService) GetStockDetail(ctx context.Context, sku string) (*model.StockDetail, error) {
	if m.getStockDetailFn != nil {
		return m.getStockDetailFn(ctx, sku)
	}
	return nil, nil
}

func (m *mockInventoryService) ListRecentEvents(ctx context.Context, limit int) ([]model.InventoryEvent, error) {
	if m.listEventsFn != nil {
		return m.listEventsFn(ctx, limit)
	}
	return nil, nil
}

// mockSettingsService is a mock implementation of SettingsServiceInterface.
// The zero value answers Get with a "processing" decrement status.
type mockSettingsService struct {
	getFn    func(ctx context.Context) (*model.Settings, error)
	updateFn func(ctx context.Context, req *model.UpdateSettingsRequest) (*model.Settings, error)
}

func (m *mockSettingsService) Get(ctx context.Context) (*model.Settings, error) {
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	return &model.Settings{DecrementStatus: "processing"}, nil
}

func (m *mockSettingsService) Update(ctx context.Context, req *model.UpdateSettingsRequest) (*model.Settings, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, req)
	}
	return &model.Settings{DecrementStatus: "processing"}, nil
}

type enqueueCall struct {
	sku string
	qty int
}

// mockQueue records propagation enqueues; full simulates a saturated queue.
type mockQueue struct {
	calls []enqueueCall
	full  bool
}

func (m *mockQueue) Enqueue(sku string, stockQuantity int) bool {
	if m.full {
		return false
	}
	m.calls = append(m.calls, enqueueCall{sku: sku, qty: stockQuantity})
	return true
}

type exportCall struct {
	snapshots []analytics.StockSnapshot
	events    []analytics.EventRow
}

// mockSink records analytics exports.
type mockSink struct {
	exports []exportCall
}

func (m *mockSink) ExportAsync(snapshots []analytics.StockSnapshot, events []analytics.EventRow) {
	m.exports = append(m.exports, exportCall{snapshots: snapshots, events: events})
}

// mockMappingService is a mock implementation of MappingServiceInterface.
type mockMappingService struct {
	refreshAllFn  func(ctx context.Context) ([]model.RefreshResult, error)
	refreshSiteFn func(ctx context.Context, siteID string) (*model.RefreshResult, error)
	listBySiteFn  func(ctx context.Context, siteID string) ([]model.SkuMapping, error)
}

func (m *mockMappingService) RefreshAllSites(ctx context.Context) ([]model.RefreshResult, error) {
	if m.refreshAllFn != nil {
		return m.refreshAllFn(ctx)
	}
	return nil, nil
}

func (m *mockMappingService) RefreshSite(ctx context.Context, siteID string) (*model.RefreshResult, error) {
	if m.refreshSiteFn != nil {
		return m.refreshSiteFn(ctx, siteID)
	}
	return nil, nil
}

func (m *mockMappingService) ListBySite(ctx context.Context, siteID string) ([]model.SkuMapping, error) {
	if m.listBySiteFn != nil {
		return m.listBySiteFn(ctx, siteID)
	}
	return nil, nil
}

// mockFailureService is a mock implementation of FailureServiceInterface.
type mockFailureService struct {
	listFn  func(ctx context.Context) ([]model.PropagationFailure, error)
	clearFn func(ctx context.Context, id int64) error
}

func (m *mockFailureService) List(ctx context.Context) ([]model.PropagationFailure, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockFailureService) Clear(ctx context.Context, id int64) error {
	if m.clearFn != nil {
		return m.clearFn(ctx, id)
	}
	return nil
}

// mockSiteService is a mock implementation of SiteServiceInterface.
type mockSiteService struct {
	registerFn func(ctx context.Context, req *model.SiteRequest) (*model.SiteResponse, error)
	updateFn   func(ctx context.Context, siteID string, req *model.SiteRequest) (*model.SiteResponse, error)
	getFn      func(ctx context.Context, siteID string) (*model.SiteResponse, error)
	listFn     func(ctx context.Context) ([]model.SiteResponse, error)
}

func (m *mockSiteService) Register(ctx context.Context, req *model.SiteRequest) (*model.SiteResponse, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, req)
	}
	return nil, nil
}

func (m *mockSiteService) Update(ctx context.Context, siteID string, req *model.SiteRequest) (*model.SiteResponse, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, siteID, req)
	}
	return nil, nil
}

func (m *mockSiteService) Get(ctx context.Context, siteID string) (*model.SiteResponse, error) {
	if m.getFn != nil {
		return m.getFn(ctx, siteID)
	}
	return nil, nil
}

func (m *mockSiteService) List(ctx context.Context) ([]model.SiteResponse, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}
