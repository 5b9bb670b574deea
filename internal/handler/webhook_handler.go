package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/skuledger/skuledger/internal/analytics"
	"github.com/skuledger/skuledger/internal/model"
	"github.com/skuledger/skuledger/internal/service"
)

// InventoryServiceInterface defines the inventory operations handlers need.
type InventoryServiceInterface interface {
	BulkApplyDeltas(ctx context.Context, siteID, orderID, eventType string, items []model.OrderLineItem) ([]model.ApplyResult, error)
	ListStock(ctx context.Context, limit int) ([]model.Stock, error)
	GetStockDetail(ctx context.Context, sku string) (*model.StockDetail, error)
	ListRecentEvents(ctx context.Context, limit int) ([]model.InventoryEvent, error)
}

// SettingsServiceInterface defines the settings operations handlers need.
type SettingsServiceInterface interface {
	Get(ctx context.Context) (*model.Settings, error)
	Update(ctx context.Context, req *model.UpdateSettingsRequest) (*model.Settings, error)
}

// StockEnqueuer queues one stock level for propagation to the storefronts.
type StockEnqueuer interface {
	Enqueue(sku string, stockQuantity int) bool
}

// AnalyticsExporter mirrors applied results into the analytics sink.
type AnalyticsExporter interface {
	ExportAsync(snapshots []analytics.StockSnapshot, events []analytics.EventRow)
}

// WebhookHandler handles the storefront order webhooks that drive the ledger.
type WebhookHandler struct {
	inventory InventoryServiceInterface
	settings  SettingsServiceInterface
	queue     StockEnqueuer
	sink      AnalyticsExporter
	validator *validator.Validate
}

// NewWebhookHandler creates a new WebhookHandler with its collaborators.
func NewWebhookHandler(inventory InventoryServiceInterface, settings SettingsServiceInterface, queue StockEnqueuer, sink AnalyticsExporter, v *validator.Validate) *WebhookHandler {
	return &WebhookHandler{inventory: inventory, settings: settings, queue: queue, sink: sink, validator: v}
}

// formatWebhookValidationError converts validator errors to stable messages.
func formatWebhookValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			tag := fe.Tag()

			switch field {
			case "SiteID":
				if tag == "required" {
					return "invalid request: site_id is required"
				}
				if tag == "notblank" {
					return "invalid request: site_id cannot be whitespace only"
				}
				return "invalid request: site_id is invalid"
			case "OrderID":
				if tag == "required" {
					return "invalid request: order_id is required"
				}
				if tag == "notblank" {
					return "invalid request: order_id cannot be whitespace only"
				}
				return "invalid request: order_id is invalid"
			case "LineItemID":
				if tag == "required" {
					return "invalid request: line_item_id is required"
				}
				return "invalid request: line_item_id is invalid"
			case "SKU":
				if tag == "required" {
					return "invalid request: sku is required"
				}
				return "invalid request: sku is invalid"
			case "Qty":
				if tag == "required" {
					return "invalid request: qty is required"
				}
				if tag == "gte" {
					return "invalid request: qty must be at least 1"
				}
				return "invalid request: qty is invalid"
			case "EventType":
				return "invalid request: event_type must be refund or cancel"
			default:
				if tag == "required" {
					return "invalid request: " + field + " is required"
				}
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}

// OrderPaid handles POST /webhooks/woocommerce/order_paid.
// Orders whose status does not match the configured decrement status are
// acknowledged without touching stock.
func (h *WebhookHandler) OrderPaid(c *fiber.Ctx) error {
	var req model.OrderPaidRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatWebhookValidationError(err)})
	}

	settings, err := h.settings.Get(c.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to load settings")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	if !strings.EqualFold(req.Status, settings.DecrementStatus) {
		log.Info().
			Str("site_id", req.SiteID).
			Str("order_id", req.OrderID).
			Str("status", req.Status).
			Msg("order status does not decrement stock, ignored")
		return c.SendStatus(fiber.StatusNoContent)
	}
	if len(req.LineItems) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	results, err := h.inventory.BulkApplyDeltas(c.Context(), req.SiteID, req.OrderID, model.EventOrderPaid, req.LineItems)
	if err != nil {
		return h.applyError(c, err, req.SiteID, req.OrderID)
	}

	h.propagate(req.SiteID, req.OrderID, model.EventOrderPaid, req.LineItems, results)
	return c.SendStatus(fiber.StatusNoContent)
}

// RefundOrCancel handles POST /webhooks/woocommerce/refund_or_cancel.
// An empty event_type defaults to "refund"; both kinds restock.
func (h *WebhookHandler) RefundOrCancel(c *fiber.Ctx) error {
	var req model.RefundOrCancelRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatWebhookValidationError(err)})
	}
	if req.EventType == "" {
		req.EventType = model.EventRefund
	}
	if len(req.LineItems) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	results, err := h.inventory.BulkApplyDeltas(c.Context(), req.SiteID, req.OrderID, req.EventType, req.LineItems)
	if err != nil {
		return h.applyError(c, err, req.SiteID, req.OrderID)
	}

	h.propagate(req.SiteID, req.OrderID, req.EventType, req.LineItems, results)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *WebhookHandler) applyError(c *fiber.Ctx, err error, siteID, orderID string) error {
	if errors.Is(err, service.ErrInvalidEventType) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid event type"})
	}
	if errors.Is(err, service.ErrInvalidRequest) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	log.Error().
		Err(err).
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Str("site_id", siteID).
		Str("order_id", orderID).
		Msg("failed to apply inventory deltas")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

// propagate fans out every newly applied result: one propagation job and one
// analytics row per changed SKU. Results line up with items by index, so the
// original quantity is at hand for the event export.
func (h *WebhookHandler) propagate(siteID, orderID, eventType string, items []model.OrderLineItem, results []model.ApplyResult) {
	sign := 1
	if eventType == model.EventOrderPaid {
		sign = -1
	}

	var snapshots []analytics.StockSnapshot
	var events []analytics.EventRow
	for i, res := range results {
		if !res.WasNew {
			continue
		}

		h.queue.Enqueue(res.SKU, res.NewOnHand)

		qty := 0
		if i < len(items) && items[i].Qty != nil {
			qty = *items[i].Qty
		}
		snapshots = append(snapshots, analytics.StockSnapshot{SKU: res.SKU, OnHand: res.NewOnHand})
		events = append(events, analytics.EventRow{
			SiteID:    siteID,
			OrderID:   orderID,
			SKU:       res.SKU,
			Delta:     sign * qty,
			EventType: eventType,
			NewOnHand: res.NewOnHand,
		})
	}
	h.sink.ExportAsync(snapshots, events)
}
