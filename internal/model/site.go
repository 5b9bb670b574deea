package model

import (
	"time"

	"github.com/google/uuid"
)

// Site is a registered storefront. Credentials are stored encrypted; the
// ciphertext fields never leave the repository layer.
type Site struct {
	ID               uuid.UUID  `json:"-"`
	SiteID           string     `json:"site_id"`
	Name             string     `json:"name"`
	BaseURL          string     `json:"base_url"`
	KeyCiphertext    string     `json:"-"`
	SecretCiphertext string     `json:"-"`
	Active           bool       `json:"active"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt        time.Time  `json:"-"`
	UpdatedAt        time.Time  `json:"-"`
}

// SiteConfig is the decrypted per-site configuration handed to the storefront
// client. It exists only in memory.
type SiteConfig struct {
	SiteID  string
	BaseURL string
	Key     string
	Secret  string
}

// SiteSeed is one site entry provided by the environment at startup.
type SiteSeed struct {
	SiteID   string `json:"site_id"`
	Name     string `json:"name"`
	BaseURL  string `json:"base_url"`
	Key      string `json:"key"`
	Secret   string `json:"secret"`
	IsActive *bool  `json:"is_active"`
}

// SiteRequest is the DTO for registering or updating a site.
type SiteRequest struct {
	SiteID  string `json:"site_id" validate:"required,notblank,max=255"`
	Name    string `json:"name" validate:"max=255"`
	BaseURL string `json:"base_url" validate:"required,url"`
	Key     string `json:"key" validate:"required,notblank"`
	Secret  string `json:"secret" validate:"required,notblank"`
	Active  *bool  `json:"active"`
}

// SiteResponse is the API view of a site. Credentials are never exposed.
type SiteResponse struct {
	SiteID     string     `json:"site_id"`
	Name       string     `json:"name"`
	BaseURL    string     `json:"base_url"`
	Active     bool       `json:"active"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// Settings is the single-row runtime configuration. The DB row is
// authoritative; env values only seed it on first access.
type Settings struct {
	DecrementStatus     string    `json:"decrement_status"`
	BackordersDefault   bool      `json:"backorders_default"`
	AirtableAPIKey      string    `json:"-"`
	AirtableBaseID      string    `json:"airtable_base_id"`
	AirtableStockTable  string    `json:"airtable_stock_table"`
	AirtableEventsTable string    `json:"airtable_events_table"`
	UpdatedAt           time.Time `json:"-"`
}

// UpdateSettingsRequest is the DTO for partial settings updates; nil fields
// are left unchanged.
type UpdateSettingsRequest struct {
	DecrementStatus     *string `json:"decrement_status" validate:"omitempty,notblank,max=64"`
	BackordersDefault   *bool   `json:"backorders_default"`
	AirtableAPIKey      *string `json:"airtable_api_key"`
	AirtableBaseID      *string `json:"airtable_base_id"`
	AirtableStockTable  *string `json:"airtable_stock_table"`
	AirtableEventsTable *string `json:"airtable_events_table"`
}
