package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/skuledger/skuledger/internal/model"
	"github.com/skuledger/skuledger/internal/storefront"
	"github.com/skuledger/skuledger/pkg/database"
)

// MappingRepositoryInterface defines the interface for SKU mapping data access.
type MappingRepositoryInterface interface {
	Upsert(ctx context.Context, tx database.TxQuerier, m *model.SkuMapping) error
	ListBySite(ctx context.Context, siteID string) ([]model.SkuMapping, error)
}

// SiteConfigSource resolves decrypted site configurations.
type SiteConfigSource interface {
	GetConfig(ctx context.Context, siteID string) (*model.SiteConfig, error)
	ListActiveConfigs(ctx context.Context) ([]model.SiteConfig, error)
	TouchLastSync(ctx context.Context, siteID string) error
}

// CatalogClient is the storefront surface the refresher walks.
type CatalogClient interface {
	ListProducts(ctx context.Context, fn func(storefront.RemoteProduct) error) error
	ListVariations(ctx context.Context, productID int64, fn func(storefront.RemoteVariation) error) error
}

// CatalogClientFactory builds a catalog client for one site.
type CatalogClientFactory func(cfg model.SiteConfig) CatalogClient

// MappingService walks remote catalogs and maintains the SKU-to-remote-ID map
// that propagation depends on. SKUs are taken verbatim from the remote side:
// no trimming, no case folding.
type MappingService struct {
	pool         Pool
	sites        SiteConfigSource
	productRepo  ProductRepositoryInterface
	mappingRepo  MappingRepositoryInterface
	settingsRepo SettingsRepositoryInterface
	newClient    CatalogClientFactory
}

// NewMappingService creates a new MappingService with the given pool and collaborators.
func NewMappingService(pool *pgxpool.Pool, sites SiteConfigSource, productRepo ProductRepositoryInterface, mappingRepo MappingRepositoryInterface, settingsRepo SettingsRepositoryInterface, newClient CatalogClientFactory) *MappingService {
	return &MappingService{
		pool:         pool,
		sites:        sites,
		productRepo:  productRepo,
		mappingRepo:  mappingRepo,
		settingsRepo: settingsRepo,
		newClient:    newClient,
	}
}

// NewMappingServiceWithPool creates a MappingService with a custom Pool.
// Primarily used for testing.
func NewMappingServiceWithPool(pool Pool, sites SiteConfigSource, productRepo ProductRepositoryInterface, mappingRepo MappingRepositoryInterface, settingsRepo SettingsRepositoryInterface, newClient CatalogClientFactory) *MappingService {
	return &MappingService{
		pool:         pool,
		sites:        sites,
		productRepo:  productRepo,
		mappingRepo:  mappingRepo,
		settingsRepo: settingsRepo,
		newClient:    newClient,
	}
}

// RefreshSite walks one site's catalog and rebuilds its SKU mappings.
// Per-product failures are collected into the result and do not stop the
// walk; a page-fetch failure aborts it and rolls everything back.
// Returns ErrSiteNotFound if the site does not exist.
func (s *MappingService) RefreshSite(ctx context.Context, siteID string) (*model.RefreshResult, error) {
	cfg, err := s.sites.GetConfig(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, *cfg)
}

// RefreshAllSites refreshes every active site in turn. One site's failure
// never stops the others; it is reported in that site's result.
func (s *MappingService) RefreshAllSites(ctx context.Context) ([]model.RefreshResult, error) {
	configs, err := s.sites.ListActiveConfigs(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]model.RefreshResult, 0, len(configs))
	for _, cfg := range configs {
		result, err := s.refresh(ctx, cfg)
		if err != nil {
			result = &model.RefreshResult{SiteID: cfg.SiteID, Errors: []string{err.Error()}}
		}
		results = append(results, *result)
	}
	return results, nil
}

// ListBySite returns the stored mappings for one site.
func (s *MappingService) ListBySite(ctx context.Context, siteID string) ([]model.SkuMapping, error) {
	return s.mappingRepo.ListBySite(ctx, siteID)
}

func (s *MappingService) refresh(ctx context.Context, cfg model.SiteConfig) (*model.RefreshResult, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	client := s.newClient(cfg)
	result := &model.RefreshResult{SiteID: cfg.SiteID, Errors: []string{}}

	walkErr := client.ListProducts(ctx, func(p storefront.RemoteProduct) error {
		// Savepoint per product: a failed upsert must not poison the
		// surrounding transaction, only discard this product's rows.
		sub, err := tx.Begin(ctx)
		if err != nil {
			return err
		}
		added, err := s.refreshProduct(ctx, sub, client, cfg.SiteID, p, settings.BackordersDefault)
		if err != nil {
			_ = sub.Rollback(ctx)
			// Collected, not fatal: the walk continues with the next product
			result.Errors = append(result.Errors, fmt.Sprintf("product %d: %v", p.ID, err))
			return nil
		}
		if err := sub.Commit(ctx); err != nil {
			return err
		}
		result.Inserted += added
		return nil
	})
	if walkErr != nil {
		log.Error().Err(walkErr).Str("site_id", cfg.SiteID).Msg("catalog walk aborted")
		return &model.RefreshResult{SiteID: cfg.SiteID, Errors: []string{walkErr.Error()}}, nil
	}

	// Commit once at the end; a partial refresh is never visible
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	if err := s.sites.TouchLastSync(ctx, cfg.SiteID); err != nil {
		log.Warn().Err(err).Str("site_id", cfg.SiteID).Msg("could not stamp last sync")
	}

	log.Info().
		Str("site_id", cfg.SiteID).
		Int("inserted", result.Inserted).
		Int("errors", len(result.Errors)).
		Msg("mapping refresh complete")
	return result, nil
}

// refreshProduct maps one remote product and returns how many SKUs it
// contributed. Variable products contribute one mapping per non-blank
// variation SKU; within one refresh a later variation wins over an earlier
// simple-product mapping for the same SKU.
func (s *MappingService) refreshProduct(ctx context.Context, tx database.TxQuerier, client CatalogClient, siteID string, p storefront.RemoteProduct, backorders bool) (int, error) {
	added := 0
	if p.Type == "variable" {
		err := client.ListVariations(ctx, p.ID, func(v storefront.RemoteVariation) error {
			if v.SKU == "" {
				return nil
			}
			variationID := v.ID
			if err := s.upsertMapping(ctx, tx, siteID, v.SKU, p.ID, &variationID, backorders); err != nil {
				return err
			}
			added++
			return nil
		})
		if err != nil {
			return 0, err
		}
		return added, nil
	}

	if p.SKU == "" {
		return 0, nil
	}
	if err := s.upsertMapping(ctx, tx, siteID, p.SKU, p.ID, nil, backorders); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *MappingService) upsertMapping(ctx context.Context, tx database.TxQuerier, siteID, sku string, productID int64, variationID *int64, backorders bool) error {
	if err := s.productRepo.EnsureProductAndStock(ctx, tx, sku, backorders); err != nil {
		return err
	}
	return s.mappingRepo.Upsert(ctx, tx, &model.SkuMapping{
		SiteID:      siteID,
		SKU:         sku,
		ProductID:   productID,
		VariationID: variationID,
	})
}
