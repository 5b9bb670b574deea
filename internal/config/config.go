package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/skuledger/skuledger/internal/model"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig
	DB          DBConfig
	Log         LogConfig
	Inventory   InventoryConfig
	Propagation PropagationConfig
	Webhook     WebhookConfig
	Admin       AdminConfig
	Analytics   AnalyticsConfig
	Mapping     MappingConfig
	Metrics     MetricsConfig

	// EncryptionKey protects site credentials at rest. 32 bytes, raw or base64.
	EncryptionKey string `envconfig:"CONFIG_ENCRYPTION_KEY"`

	// Sites seeds the site registry at startup from a JSON array.
	Sites SiteSeeds `envconfig:"SITES"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name     string `envconfig:"DB_NAME" default:"inventory_db"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns int    `envconfig:"DB_MIN_CONNS" default:"5"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// InventoryConfig seeds the runtime settings row on first access.
type InventoryConfig struct {
	DecrementStatus   string `envconfig:"DECREMENT_STATUS" default:"processing"`
	BackordersDefault bool   `envconfig:"BACKORDERS_DEFAULT" default:"false"`
}

// PropagationConfig tunes the fan-out queue and its retry policy.
type PropagationConfig struct {
	QueueSize        int     `envconfig:"PROPAGATION_QUEUE_SIZE" default:"10000"`
	MaxRetries       int     `envconfig:"PROPAGATION_MAX_RETRIES" default:"5"`
	RetryBaseSeconds float64 `envconfig:"PROPAGATION_RETRY_BASE_SECONDS" default:"2"`
	DrainTimeout     int     `envconfig:"PROPAGATION_DRAIN_TIMEOUT" default:"30"` // seconds
}

// RetryBase returns the backoff base as a duration.
func (c PropagationConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseSeconds * float64(time.Second))
}

// WebhookConfig selects how intake requests are authenticated.
// When neither Secret nor BearerToken is set, requests are accepted with a
// logged warning; that allowance is for development only.
type WebhookConfig struct {
	AuthMode    string `envconfig:"WEBHOOK_AUTH_MODE" default:"hmac"` // hmac or bearer
	Secret      string `envconfig:"WEBHOOK_SECRET"`
	BearerToken string `envconfig:"WEBHOOK_BEARER_TOKEN"`
}

// AdminConfig guards the admin JSON API. An empty token disables the check.
type AdminConfig struct {
	Token string `envconfig:"ADMIN_TOKEN"`
}

// AnalyticsConfig seeds the Airtable sink settings. The sink stays disabled
// until an API key and base ID are present.
type AnalyticsConfig struct {
	AirtableAPIKey      string `envconfig:"AIRTABLE_API_KEY"`
	AirtableBaseID      string `envconfig:"AIRTABLE_BASE_ID"`
	AirtableStockTable  string `envconfig:"AIRTABLE_STOCK_TABLE" default:"Stock"`
	AirtableEventsTable string `envconfig:"AIRTABLE_EVENTS_TABLE" default:"Events"`
}

// MappingConfig schedules the periodic mapping refresh.
// An empty schedule disables it; refreshes then run only on demand.
type MappingConfig struct {
	RefreshSchedule string `envconfig:"MAPPING_REFRESH_SCHEDULE" default:""`
}

// MetricsConfig addresses the Prometheus endpoint, served apart from the API.
type MetricsConfig struct {
	Addr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// SiteSeeds decodes the SITES env var, a JSON array of site entries.
type SiteSeeds []model.SiteSeed

// Decode implements envconfig.Decoder.
func (s *SiteSeeds) Decode(value string) error {
	if strings.TrimSpace(value) == "" {
		*s = nil
		return nil
	}
	var seeds []model.SiteSeed
	if err := json.Unmarshal([]byte(value), &seeds); err != nil {
		return fmt.Errorf("SITES must be a JSON array: %w", err)
	}
	*s = seeds
	return nil
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.Webhook.AuthMode != "hmac" && cfg.Webhook.AuthMode != "bearer" {
		return nil, fmt.Errorf("WEBHOOK_AUTH_MODE must be hmac or bearer, got %q", cfg.Webhook.AuthMode)
	}
	return &cfg, nil
}
