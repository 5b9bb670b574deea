package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skuledger/skuledger/internal/analytics"
	"github.com/skuledger/skuledger/internal/config"
	"github.com/skuledger/skuledger/internal/crypto"
	"github.com/skuledger/skuledger/internal/handler"
	"github.com/skuledger/skuledger/internal/metrics"
	"github.com/skuledger/skuledger/internal/model"
	"github.com/skuledger/skuledger/internal/propagation"
	"github.com/skuledger/skuledger/internal/repository"
	"github.com/skuledger/skuledger/internal/scheduler"
	"github.com/skuledger/skuledger/internal/service"
	"github.com/skuledger/skuledger/internal/storefront"
	"github.com/skuledger/skuledger/internal/validator"
	"github.com/skuledger/skuledger/pkg/database"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	// Create context for startup
	ctx := context.Background()

	// Initialize database pool with retry
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure database schema")
	}

	// Credential cipher; everything secret in the database goes through it
	cipher, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("CONFIG_ENCRYPTION_KEY must be a 32-byte key, raw or base64")
	}

	// Settings seed: used only when the app_settings row does not exist yet.
	// The Airtable key is encrypted before it touches the database.
	seed := model.Settings{
		DecrementStatus:     cfg.Inventory.DecrementStatus,
		BackordersDefault:   cfg.Inventory.BackordersDefault,
		AirtableBaseID:      cfg.Analytics.AirtableBaseID,
		AirtableStockTable:  cfg.Analytics.AirtableStockTable,
		AirtableEventsTable: cfg.Analytics.AirtableEventsTable,
	}
	if cfg.Analytics.AirtableAPIKey != "" {
		encrypted, err := cipher.Encrypt(cfg.Analytics.AirtableAPIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to encrypt airtable api key")
		}
		seed.AirtableAPIKey = encrypted
	}

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "SKU Ledger",
		ReadTimeout:  30 * time.Second,  // Max time to read request
		WriteTimeout: 30 * time.Second,  // Max time to write response
		IdleTimeout:  120 * time.Second, // Max time for keep-alive connections
		BodyLimit:    1 * 1024 * 1024,   // 1MB body limit (explicit, prevents large payloads)
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	// Validator with custom validations registered
	validate := validator.New()

	// Layered wiring: repositories, then services, then background machinery
	productRepo := repository.NewProductRepository(pool)
	stockRepo := repository.NewStockRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	mappingRepo := repository.NewMappingRepository(pool)
	failureRepo := repository.NewFailureRepository(pool)
	siteRepo := repository.NewSiteRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool, seed)

	siteService := service.NewSiteService(siteRepo, cipher)
	settingsService := service.NewSettingsService(settingsRepo, cipher)
	inventoryService := service.NewInventoryService(pool, productRepo, stockRepo, eventRepo, settingsRepo)
	mappingService := service.NewMappingService(pool, siteService, productRepo, mappingRepo, settingsRepo,
		func(site model.SiteConfig) service.CatalogClient {
			return storefront.NewClient(site)
		})
	failureService := service.NewFailureService(failureRepo)

	if err := siteService.SeedSites(ctx, cfg.Sites); err != nil {
		log.Fatal().Err(err).Msg("failed to seed sites")
	}

	// Propagation queue and its single worker
	queue := propagation.NewQueue(cfg.Propagation.QueueSize)
	worker := propagation.NewWorker(queue, siteService, mappingRepo, failureRepo,
		func(site model.SiteConfig) propagation.StockWriter {
			return storefront.NewClient(site)
		},
		cfg.Propagation.MaxRetries, cfg.Propagation.RetryBase())
	worker.Start(context.Background())

	// Airtable analytics sink; reads its credentials from settings per export
	sink := analytics.NewSink(settingsService)

	// Periodic mapping refresh, disabled when no schedule is configured
	var refreshCron *cron.Cron
	if cfg.Mapping.RefreshSchedule != "" {
		refreshCron, err = scheduler.StartMappingRefresh(mappingService, cfg.Mapping.RefreshSchedule)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start mapping refresh scheduler")
		}
	}

	// Prometheus endpoint on its own port
	metricsServer := metrics.NewServer(cfg.Metrics.Addr)
	metricsServer.Start()

	webhookHandler := handler.NewWebhookHandler(inventoryService, settingsService, queue, sink, validate)
	adminHandler := handler.NewAdminHandler(inventoryService, mappingService, failureService, siteService, settingsService, validate)
	healthHandler := handler.NewHealthHandler(pool, worker, queue)

	app.Get("/health", healthHandler.Check)

	// Webhook intake, guarded by the configured auth mode
	verifier := handler.NewWebhookVerifier(cfg.Webhook.AuthMode, cfg.Webhook.Secret, cfg.Webhook.BearerToken)
	webhooks := app.Group("/webhooks/woocommerce", verifier.Verify)
	webhooks.Post("/order_paid", webhookHandler.OrderPaid)
	webhooks.Post("/refund_or_cancel", webhookHandler.RefundOrCancel)

	// Operator API
	admin := app.Group("/admin", handler.AdminAuth(cfg.Admin.Token))
	admin.Get("/stock", adminHandler.ListStock)
	admin.Get("/stock/:sku", adminHandler.GetStock)
	admin.Get("/events", adminHandler.ListEvents)
	admin.Post("/refresh-mappings", adminHandler.RefreshAllMappings)
	admin.Post("/refresh-mappings/:site_id", adminHandler.RefreshSiteMappings)
	admin.Get("/mappings/:site_id", adminHandler.ListMappings)
	admin.Get("/failures", adminHandler.ListFailures)
	admin.Delete("/failures/:id", adminHandler.ClearFailure)
	admin.Post("/sites", adminHandler.RegisterSite)
	admin.Get("/sites", adminHandler.ListSites)
	admin.Get("/sites/:site_id", adminHandler.GetSite)
	admin.Put("/sites/:site_id", adminHandler.UpdateSite)
	admin.Get("/settings", adminHandler.GetSettings)
	admin.Put("/settings", adminHandler.UpdateSettings)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Stop the scheduler before draining so no new refresh begins mid-shutdown
	if refreshCron != nil {
		<-refreshCron.Stop().Done()
	}

	// Drain the propagation queue; pending pushes still need the pool
	drainCtx, drainCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Propagation.DrainTimeout)*time.Second,
	)
	defer drainCancel()
	if err := worker.Stop(drainCtx); err != nil {
		log.Error().Err(err).Msg("propagation worker did not drain cleanly")
	}

	if err := metricsServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during metrics server shutdown")
	}

	// Close database pool AFTER everything that uses it (even if drains timed out)
	log.Info().Msg("closing database connections...")
	pool.Close()
	log.Info().Msg("database connections closed")
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
