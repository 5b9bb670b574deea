package model

// OrderLineItem is one line of an incoming order event.
// SKU values are passed through verbatim; no trimming or case folding.
type OrderLineItem struct {
	LineItemID string `json:"line_item_id" validate:"required,max=255"`
	SKU        string `json:"sku" validate:"required,max=255"`
	Qty        *int   `json:"qty" validate:"required,gte=1"`
}

// OrderPaidRequest is the DTO for POST /webhooks/woocommerce/order_paid.
type OrderPaidRequest struct {
	SiteID    string          `json:"site_id" validate:"required,notblank,max=255"`
	OrderID   string          `json:"order_id" validate:"required,notblank,max=255"`
	Status    string          `json:"status"`
	LineItems []OrderLineItem `json:"line_items" validate:"dive"`
}

// RefundOrCancelRequest is the DTO for POST /webhooks/woocommerce/refund_or_cancel.
// An empty EventType defaults to "refund"; anything other than refund/cancel is rejected.
type RefundOrCancelRequest struct {
	SiteID    string          `json:"site_id" validate:"required,notblank,max=255"`
	OrderID   string          `json:"order_id" validate:"required,notblank,max=255"`
	EventType string          `json:"event_type" validate:"omitempty,oneof=refund cancel"`
	LineItems []OrderLineItem `json:"line_items" validate:"dive"`
}
