package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/skuledger/skuledger/internal/model"
	"github.com/skuledger/skuledger/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// MappingServiceInterface defines the mapping operations the admin API needs.
type MappingServiceInterface interface {
	RefreshAllSites(ctx context.Context) ([]model.RefreshResult, error)
	RefreshSite(ctx context.Context, siteID string) (*model.RefreshResult, error)
	ListBySite(ctx context.Context, siteID string) ([]model.SkuMapping, error)
}

// FailureServiceInterface defines the dead-letter operations the admin API needs.
type FailureServiceInterface interface {
	List(ctx context.Context) ([]model.PropagationFailure, error)
	Clear(ctx context.Context, id int64) error
}

// SiteServiceInterface defines the site registry operations the admin API needs.
type SiteServiceInterface interface {
	Register(ctx context.Context, req *model.SiteRequest) (*model.SiteResponse, error)
	Update(ctx context.Context, siteID string, req *model.SiteRequest) (*model.SiteResponse, error)
	Get(ctx context.Context, siteID string) (*model.SiteResponse, error)
	List(ctx context.Context) ([]model.SiteResponse, error)
}

// AdminHandler handles the operator API: ledger reads, mapping refreshes,
// dead-letter management, site registry and settings.
type AdminHandler struct {
	inventory InventoryServiceInterface
	mappings  MappingServiceInterface
	failures  FailureServiceInterface
	sites     SiteServiceInterface
	settings  SettingsServiceInterface
	validator *validator.Validate
}

// NewAdminHandler creates a new AdminHandler with its collaborators.
func NewAdminHandler(inventory InventoryServiceInterface, mappings MappingServiceInterface, failures FailureServiceInterface, sites SiteServiceInterface, settings SettingsServiceInterface, v *validator.Validate) *AdminHandler {
	return &AdminHandler{
		inventory: inventory,
		mappings:  mappings,
		failures:  failures,
		sites:     sites,
		settings:  settings,
		validator: v,
	}
}

func listLimit(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return defaultListLimit
	}
	return limit
}

// formatSiteValidationError converts validator errors to stable messages.
func formatSiteValidationError(err error) string {
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
			case "Name":
				return "invalid request: name is too long"
			case "BaseURL":
				if tag == "required" {
					return "invalid request: base_url is required"
				}
				return "invalid request: base_url must be a valid URL"
			case "Key":
				return "invalid request: key is required"
			case "Secret":
				return "invalid request: secret is required"
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

// formatSettingsValidationError converts validator errors to stable messages.
func formatSettingsValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if fe.Field() == "DecrementStatus" {
				if fe.Tag() == "notblank" {
					return "invalid request: decrement_status cannot be whitespace only"
				}
				return "invalid request: decrement_status is invalid"
			}
			return "invalid request: " + fe.Field() + " is invalid"
		}
	}
	return "invalid request"
}

func (h *AdminHandler) internalError(c *fiber.Ctx, err error, msg string) error {
	log.Error().
		Err(err).
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Msg(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

// ListStock handles GET /admin/stock.
func (h *AdminHandler) ListStock(c *fiber.Ctx) error {
	stocks, err := h.inventory.ListStock(c.Context(), listLimit(c))
	if err != nil {
		return h.internalError(c, err, "failed to list stock")
	}
	return c.JSON(stocks)
}

// GetStock handles GET /admin/stock/:sku.
func (h *AdminHandler) GetStock(c *fiber.Ctx) error {
	sku := c.Params("sku")

	detail, err := h.inventory.GetStockDetail(c.Context(), sku)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "product not found"})
		}
		return h.internalError(c, err, "failed to get stock detail")
	}
	return c.JSON(detail)
}

// ListEvents handles GET /admin/events.
func (h *AdminHandler) ListEvents(c *fiber.Ctx) error {
	events, err := h.inventory.ListRecentEvents(c.Context(), listLimit(c))
	if err != nil {
		return h.internalError(c, err, "failed to list events")
	}
	return c.JSON(events)
}

// RefreshAllMappings handles POST /admin/refresh-mappings.
func (h *AdminHandler) RefreshAllMappings(c *fiber.Ctx) error {
	results, err := h.mappings.RefreshAllSites(c.Context())
	if err != nil {
		return h.internalError(c, err, "failed to refresh mappings")
	}
	return c.JSON(results)
}

// RefreshSiteMappings handles POST /admin/refresh-mappings/:site_id.
func (h *AdminHandler) RefreshSiteMappings(c *fiber.Ctx) error {
	siteID := c.Params("site_id")

	result, err := h.mappings.RefreshSite(c.Context(), siteID)
	if err != nil {
		if errors.Is(err, service.ErrSiteNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "site not found"})
		}
		return h.internalError(c, err, "failed to refresh site mappings")
	}
	return c.JSON(result)
}

// ListMappings handles GET /admin/mappings/:site_id.
func (h *AdminHandler) ListMappings(c *fiber.Ctx) error {
	mappings, err := h.mappings.ListBySite(c.Context(), c.Params("site_id"))
	if err != nil {
		return h.internalError(c, err, "failed to list mappings")
	}
	return c.JSON(mappings)
}

// ListFailures handles GET /admin/failures.
func (h *AdminHandler) ListFailures(c *fiber.Ctx) error {
	failures, err := h.failures.List(c.Context())
	if err != nil {
		return h.internalError(c, err, "failed to list propagation failures")
	}
	return c.JSON(failures)
}

// ClearFailure handles DELETE /admin/failures/:id.
func (h *AdminHandler) ClearFailure(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid failure id"})
	}

	if err := h.failures.Clear(c.Context(), id); err != nil {
		if errors.Is(err, service.ErrFailureNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "propagation failure not found"})
		}
		return h.internalError(c, err, "failed to clear propagation failure")
	}

	log.Info().Int64("failure_id", id).Msg("propagation failure cleared")
	return c.SendStatus(fiber.StatusNoContent)
}

// RegisterSite handles POST /admin/sites.
func (h *AdminHandler) RegisterSite(c *fiber.Ctx) error {
	var req model.SiteRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatSiteValidationError(err)})
	}

	site, err := h.sites.Register(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrSiteExists) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "site already exists"})
		}
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
		}
		return h.internalError(c, err, "failed to register site")
	}

	log.Info().
		Str("site_id", site.SiteID).
		Str("base_url", site.BaseURL).
		Bool("active", site.Active).
		Msg("site registered")

	return c.Status(fiber.StatusCreated).JSON(site)
}

// ListSites handles GET /admin/sites.
func (h *AdminHandler) ListSites(c *fiber.Ctx) error {
	sites, err := h.sites.List(c.Context())
	if err != nil {
		return h.internalError(c, err, "failed to list sites")
	}
	return c.JSON(sites)
}

// GetSite handles GET /admin/sites/:site_id.
func (h *AdminHandler) GetSite(c *fiber.Ctx) error {
	site, err := h.sites.Get(c.Context(), c.Params("site_id"))
	if err != nil {
		if errors.Is(err, service.ErrSiteNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "site not found"})
		}
		return h.internalError(c, err, "failed to get site")
	}
	return c.JSON(site)
}

// UpdateSite handles PUT /admin/sites/:site_id.
func (h *AdminHandler) UpdateSite(c *fiber.Ctx) error {
	var req model.SiteRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatSiteValidationError(err)})
	}

	site, err := h.sites.Update(c.Context(), c.Params("site_id"), &req)
	if err != nil {
		if errors.Is(err, service.ErrSiteNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "site not found"})
		}
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
		}
		return h.internalError(c, err, "failed to update site")
	}

	log.Info().Str("site_id", site.SiteID).Msg("site updated")
	return c.JSON(site)
}

// GetSettings handles GET /admin/settings.
func (h *AdminHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.settings.Get(c.Context())
	if err != nil {
		return h.internalError(c, err, "failed to load settings")
	}
	return c.JSON(settings)
}

// UpdateSettings handles PUT /admin/settings.
func (h *AdminHandler) UpdateSettings(c *fiber.Ctx) error {
	var req model.UpdateSettingsRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatSettingsValidationError(err)})
	}

	settings, err := h.settings.Update(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
		}
		return h.internalError(c, err, "failed to update settings")
	}

	log.Info().
		Str("decrement_status", settings.DecrementStatus).
		Bool("backorders_default", settings.BackordersDefault).
		Msg("settings updated")

	return c.JSON(settings)
}
