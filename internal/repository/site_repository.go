package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skuledger/skuledger/internal/model"
	"github.com/skuledger/skuledger/internal/service"
)

// SiteRepository provides data access for registered storefronts using pgx.
// Credential columns hold ciphertext; encryption happens above this layer.
type SiteRepository struct {
	pool PoolInterface
}

// NewSiteRepository creates a new SiteRepository with the given pool.
func NewSiteRepository(pool *pgxpool.Pool) *SiteRepository {
	return &SiteRepository{pool: pool}
}

// NewSiteRepositoryWithPool creates a new SiteRepository with a custom pool interface.
// This is primarily used for testing.
func NewSiteRepositoryWithPool(pool PoolInterface) *SiteRepository {
	return &SiteRepository{pool: pool}
}

const siteColumns = `id, site_id, name, base_url, key_enc, secret_enc, active, last_sync_at, created_at, updated_at`

func scanSite(row pgx.Row) (*model.Site, error) {
	var s model.Site
	err := row.Scan(
		&s.ID,
		&s.SiteID,
		&s.Name,
		&s.BaseURL,
		&s.KeyCiphertext,
		&s.SecretCiphertext,
		&s.Active,
		&s.LastSyncAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Insert registers a new site.
// Returns service.ErrSiteExists if the site_id is already taken.
func (r *SiteRepository) Insert(ctx context.Context, s *model.Site) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sites (id, site_id, name, base_url, key_enc, secret_enc, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.SiteID, s.Name, s.BaseURL, s.KeyCiphertext, s.SecretCiphertext, s.Active)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return service.ErrSiteExists
		}
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

// Update rewrites a site's mutable fields, addressed by site_id.
// Returns service.ErrSiteNotFound if no such site exists.
func (r *SiteRepository) Update(ctx context.Context, s *model.Site) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sites SET name = $2, base_url = $3, key_enc = $4, secret_enc = $5, active = $6, updated_at = NOW()
		 WHERE site_id = $1`,
		s.SiteID, s.Name, s.BaseURL, s.KeyCiphertext, s.SecretCiphertext, s.Active)
	if err != nil {
		return fmt.Errorf("update site %s: %w", s.SiteID, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrSiteNotFound
	}
	return nil
}

// UpsertSeed inserts or refreshes a site from environment seeding at startup.
// The environment wins for everything except last_sync_at.
func (r *SiteRepository) UpsertSeed(ctx context.Context, s *model.Site) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sites (id, site_id, name, base_url, key_enc, secret_enc, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (site_id) DO UPDATE
		 SET name = EXCLUDED.name,
		     base_url = EXCLUDED.base_url,
		     key_enc = EXCLUDED.key_enc,
		     secret_enc = EXCLUDED.secret_enc,
		     active = EXCLUDED.active,
		     updated_at = NOW()`,
		s.ID, s.SiteID, s.Name, s.BaseURL, s.KeyCiphertext, s.SecretCiphertext, s.Active)
	if err != nil {
		return fmt.Errorf("seed site %s: %w", s.SiteID, err)
	}
	return nil
}

// GetBySiteID retrieves one site by its external identifier.
// Returns nil, nil if the site is not found (service layer handles this).
func (r *SiteRepository) GetBySiteID(ctx context.Context, siteID string) (*model.Site, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE site_id = $1`, siteID)
	s, err := scanSite(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get site %s: %w", siteID, err)
	}
	return s, nil
}

// List returns every registered site ordered by site_id.
func (r *SiteRepository) List(ctx context.Context) ([]model.Site, error) {
	return r.list(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY site_id`)
}

// ListActive returns only active sites, ordered by site_id. Propagation reads
// this per job so runtime activation changes take effect immediately.
func (r *SiteRepository) ListActive(ctx context.Context) ([]model.Site, error) {
	return r.list(ctx, `SELECT `+siteColumns+` FROM sites WHERE active ORDER BY site_id`)
}

func (r *SiteRepository) list(ctx context.Context, query string) ([]model.Site, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []model.Site
	for rows.Next() {
		var s model.Site
		if err := rows.Scan(
			&s.ID,
			&s.SiteID,
			&s.Name,
			&s.BaseURL,
			&s.KeyCiphertext,
			&s.SecretCiphertext,
			&s.Active,
			&s.LastSyncAt,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan site row: %w", err)
		}
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site rows: %w", err)
	}

	if sites == nil {
		sites = []model.Site{}
	}
	return sites, nil
}

// TouchLastSync stamps a successful mapping refresh for the site.
func (r *SiteRepository) TouchLastSync(ctx context.Context, siteID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sites SET last_sync_at = NOW(), updated_at = NOW() WHERE site_id = $1`, siteID)
	if err != nil {
		return fmt.Errorf("touch last_sync for %s: %w", siteID, err)
	}
	return nil
}
