//go:build chaos

// Package chaos contains chaos engineering tests for the inventory ledger.
// These tests verify the system's behavior under adversarial conditions:
// hostile input, cancelled contexts, dropped database connections, exhausted
// pools and mixed operation load.
// Each run provisions its own throwaway postgres container via dockertest.
//
// Usage:
//   go test -v -race -tags chaos ./tests/chaos/...
package chaos

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"github.com/skuledger/skuledger/internal/analytics"
	"github.com/skuledger/skuledger/internal/crypto"
	"github.com/skuledger/skuledger/internal/handler"
	"github.com/skuledger/skuledger/internal/model"
	"github.com/skuledger/skuledger/internal/propagation"
	"github.com/skuledger/skuledger/internal/repository"
	"github.com/skuledger/skuledger/internal/service"
	"github.com/skuledger/skuledger/internal/storefront"
	"github.com/skuledger/skuledger/internal/validator"
	"github.com/skuledger/skuledger/pkg/database"
)

// testEncryptionKey is a fixed 32-byte key for test ciphers. Never reuse
// outside tests.
const testEncryptionKey = "0123456789abcdef0123456789abcdef"

var (
	testPool    *pgxpool.Pool
	databaseURL string
)

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=testpass",
			"POSTGRES_USER=testuser",
			"POSTGRES_DB=testdb",
			"listen_addresses='*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start resource: %s", err)
	}

	hostAndPort := resource.GetHostPort("5432/tcp")
	databaseURL = fmt.Sprintf("postgres://testuser:testpass@%s/testdb?sslmode=disable", hostAndPort)

	log.Println("Connecting to database on url:", databaseURL)

	_ = resource.Expire(600) // Tell docker to kill the container after 600 seconds

	// Retry connection
	pool.MaxWait = 120 * time.Second
	if err = pool.Retry(func() error {
		var err error
		testPool, err = pgxpool.New(context.Background(), databaseURL)
		if err != nil {
			return err
		}
		return testPool.Ping(context.Background())
	}); err != nil {
		log.Fatalf("Could not connect to database: %s", err)
	}

	// Same DDL the server applies on boot
	if err := database.EnsureSchema(context.Background(), testPool); err != nil {
		log.Fatalf("Could not run migrations: %s", err)
	}

	code := m.Run()

	// Cleanup
	if err := pool.Purge(resource); err != nil {
		log.Fatalf("Could not purge resource: %s", err)
	}

	os.Exit(code)
}

func cleanupTables(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		"TRUNCATE TABLE inventory_events, propagation_failures, site_sku_map, stock, products, sites, app_settings CASCADE")
	if err != nil {
		t.Fatalf("Failed to cleanup tables: %v", err)
	}
}

func createTestProduct(t *testing.T, sku string, onHand int, backorders bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := testPool.Exec(ctx,
		"INSERT INTO products (sku, name, backorders) VALUES ($1, $2, $3)",
		sku, "Test "+sku, backorders)
	if err != nil {
		t.Fatalf("Failed to create test product: %v", err)
	}
	_, err = testPool.Exec(ctx,
		"INSERT INTO stock (sku, on_hand) VALUES ($1, $2)",
		sku, onHand)
	if err != nil {
		t.Fatalf("Failed to create test stock row: %v", err)
	}
}

func getStockFromDB(t *testing.T, sku string) int {
	t.Helper()
	var onHand int
	err := testPool.QueryRow(context.Background(),
		"SELECT on_hand FROM stock WHERE sku = $1", sku).Scan(&onHand)
	if err != nil {
		t.Fatalf("Failed to get stock on_hand: %v", err)
	}
	return onHand
}

func countAllEvents(t *testing.T) int {
	t.Helper()
	var count int
	err := testPool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM inventory_events").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count events: %v", err)
	}
	return count
}

// ledgerSum returns the signed sum of all ledger deltas for one SKU. With
// backorders enabled this always equals the total stock movement, which makes
// it the reconciliation anchor for the chaos scenarios.
func ledgerSum(t *testing.T, sku string) int {
	t.Helper()
	var sum int
	err := testPool.QueryRow(context.Background(),
		"SELECT COALESCE(SUM(delta), 0) FROM inventory_events WHERE sku = $1", sku).Scan(&sum)
	if err != nil {
		t.Fatalf("Failed to sum ledger deltas: %v", err)
	}
	return sum
}

func newTestCipher(t *testing.T) *crypto.Cipher {
	t.Helper()
	cipher, err := crypto.New(testEncryptionKey)
	if err != nil {
		t.Fatalf("Failed to build test cipher: %v", err)
	}
	return cipher
}

// newInventoryService wires the delta engine onto testPool so chaos scenarios
// can hit the service layer directly.
func newInventoryService(t *testing.T) *service.InventoryService {
	t.Helper()
	return newInventoryServiceOn(testPool)
}

// newInventoryServiceOn builds the service stack on an arbitrary pool. The
// resilience tests use it with deliberately undersized pools.
func newInventoryServiceOn(pool *pgxpool.Pool) *service.InventoryService {
	productRepo := repository.NewProductRepository(pool)
	stockRepo := repository.NewStockRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool, model.Settings{DecrementStatus: "processing"})
	return service.NewInventoryService(pool, productRepo, stockRepo, eventRepo, settingsRepo)
}

// setupChaosApp builds an in-process app with the webhook intake and the
// admin read/settings surface, wired against testPool. No propagation worker
// runs; queued jobs just sit. The body limit mirrors the server's so payload
// boundary behavior matches production.
func setupChaosApp(t *testing.T) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})
	v := validator.New()
	cipher := newTestCipher(t)

	seed := model.Settings{DecrementStatus: "processing"}

	productRepo := repository.NewProductRepository(testPool)
	stockRepo := repository.NewStockRepository(testPool)
	eventRepo := repository.NewEventRepository(testPool)
	mappingRepo := repository.NewMappingRepository(testPool)
	failureRepo := repository.NewFailureRepository(testPool)
	siteRepo := repository.NewSiteRepository(testPool)
	settingsRepo := repository.NewSettingsRepository(testPool, seed)

	siteService := service.NewSiteService(siteRepo, cipher)
	settingsService := service.NewSettingsService(settingsRepo, cipher)
	inventoryService := service.NewInventoryService(testPool, productRepo, stockRepo, eventRepo, settingsRepo)
	mappingService := service.NewMappingService(testPool, siteService, productRepo, mappingRepo, settingsRepo,
		func(site model.SiteConfig) service.CatalogClient {
			return storefront.NewClient(site)
		})
	failureService := service.NewFailureService(failureRepo)

	queue := propagation.NewQueue(4096)
	sink := analytics.NewSink(settingsService) // Disabled: no Airtable key configured

	webhookHandler := handler.NewWebhookHandler(inventoryService, settingsService, queue, sink, v)
	adminHandler := handler.NewAdminHandler(inventoryService, mappingService, failureService, siteService, settingsService, v)

	app.Post("/webhooks/woocommerce/order_paid", webhookHandler.OrderPaid)
	app.Post("/webhooks/woocommerce/refund_or_cancel", webhookHandler.RefundOrCancel)
	app.Get("/admin/stock", adminHandler.ListStock)
	app.Get("/admin/stock/:sku", adminHandler.GetStock)
	app.Get("/admin/events", adminHandler.ListEvents)
	app.Get("/admin/settings", adminHandler.GetSettings)
	app.Put("/admin/settings", adminHandler.UpdateSettings)

	return app
}

// postWebhook sends a JSON body to a webhook path. The default test timeout
// is disabled: several chaos scenarios stall requests on purpose.
func postWebhook(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to send webhook request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// createPoolWithConfig creates a pool with custom max connections against the
// same database the harness provisioned. Exhaustion timeouts are controlled
// by the caller's context, not by pool configuration.
func createPoolWithConfig(ctx context.Context, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	config.MaxConns = maxConns
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	return pgxpool.NewWithConfig(ctx, config)
}

// logPoolStats prints connection pool statistics for debugging.
func logPoolStats(t *testing.T, prefix string) {
	t.Helper()
	stats := testPool.Stat()
	t.Logf("%s - Pool stats - Total: %d, Idle: %d, Acquired: %d",
		prefix, stats.TotalConns(), stats.IdleConns(), stats.AcquiredConns())
}

func intPtr(v int) *int { return &v }
