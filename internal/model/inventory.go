package model

import "time"

// Event types accepted by the inventory engine.
const (
	EventOrderPaid = "order_paid"
	EventRefund    = "refund"
	EventCancel    = "cancel"
)

// Product is the canonical catalog entry for one SKU.
type Product struct {
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	LeadTimeDays int       `json:"lead_time_days"`
	ReorderPoint int       `json:"reorder_point"`
	Backorders   bool      `json:"backorders"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// Stock is the authoritative stock row for one SKU.
// Invariant: OnHand >= 0 unless the product allows backorders.
type Stock struct {
	SKU       string    `json:"sku"`
	OnHand    int       `json:"on_hand"`
	Reserved  int       `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LockedStock is the view returned under a row lock: the stock row joined
// with the product's backorders flag, so the floor rule can be decided
// without a second round trip.
type LockedStock struct {
	Stock
	Backorders bool
}

// InventoryEvent is one applied stock delta. Rows are append-only;
// (SiteID, OrderID, LineItemID, EventType) is the idempotency key.
type InventoryEvent struct {
	ID         int64     `json:"id"`
	SiteID     string    `json:"site_id"`
	OrderID    string    `json:"order_id"`
	LineItemID string    `json:"line_item_id"`
	SKU        string    `json:"sku"`
	Delta      int       `json:"delta"`
	EventType  string    `json:"event_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// SkuMapping associates a SKU with its remote catalog coordinates on one site.
// VariationID is nil for simple products.
type SkuMapping struct {
	SiteID      string    `json:"site_id"`
	SKU         string    `json:"sku"`
	ProductID   int64     `json:"product_id"`
	VariationID *int64    `json:"variation_id,omitempty"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// JobSnapshot is the durable copy of a propagation job stored with a failure row.
type JobSnapshot struct {
	SKU           string    `json:"sku"`
	StockQuantity int       `json:"stock_quantity"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// PropagationFailure records a (site, sku) pair whose propagation exhausted all
// retries. At most one row exists per pair; later failures update it in place.
type PropagationFailure struct {
	ID        int64       `json:"id"`
	SiteID    string      `json:"site_id"`
	SKU       string      `json:"sku"`
	Payload   JobSnapshot `json:"payload"`
	Error     string      `json:"error"`
	Attempts  int         `json:"attempts"`
	CreatedAt time.Time   `json:"created_at"`
	LastTried time.Time   `json:"last_tried"`
}

// ApplyResult is the per-line-item outcome of a delta application.
// WasNew is false when the event was a duplicate delivery.
type ApplyResult struct {
	SKU       string `json:"sku"`
	WasNew    bool   `json:"was_new"`
	NewOnHand int    `json:"new_on_hand"`
}

// StockDetail is the admin view of one SKU: catalog fields plus current stock.
// Stock fields stay zero when only the product row exists.
type StockDetail struct {
	Product   Product   `json:"product"`
	OnHand    int       `json:"on_hand"`
	Reserved  int       `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RefreshResult summarises one mapping refresh for a site.
// Inserted counts every successful upsert; Updated is kept for API
// compatibility and is always zero.
type RefreshResult struct {
	SiteID   string   `json:"site_id"`
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	Errors   []string `json:"errors"`
}
