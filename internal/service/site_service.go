package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/skuledger/skuledger/internal/model"
)

// SiteRepositoryInterface defines the interface for site registry data access.
type SiteRepositoryInterface interface {
	Insert(ctx context.Context, s *model.Site) error
	Update(ctx context.Context, s *model.Site) error
	UpsertSeed(ctx context.Context, s *model.Site) error
	GetBySiteID(ctx context.Context, siteID string) (*model.Site, error)
	List(ctx context.Context) ([]model.Site, error)
	ListActive(ctx context.Context) ([]model.Site, error)
	TouchLastSync(ctx context.Context, siteID string) error
}

// Encrypter seals and opens credential strings.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SiteService manages the storefront registry. Credentials pass through it in
// exactly two directions: encrypted on the way into the database, decrypted
// into an in-memory SiteConfig on the way out. API responses never carry them.
type SiteService struct {
	repo   SiteRepositoryInterface
	cipher Encrypter
}

// NewSiteService creates a new SiteService with the given repository and cipher.
func NewSiteService(repo SiteRepositoryInterface, cipher Encrypter) *SiteService {
	return &SiteService{repo: repo, cipher: cipher}
}

// Register adds a new site to the registry.
// Returns ErrSiteExists if the site_id is already taken.
func (s *SiteService) Register(ctx context.Context, req *model.SiteRequest) (*model.SiteResponse, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	site, err := s.buildSite(req)
	if err != nil {
		return nil, err
	}
	site.ID = uuid.New()

	if err := s.repo.Insert(ctx, site); err != nil {
		return nil, err
	}
	return toSiteResponse(site), nil
}

// Update replaces a site's configuration, including its credentials.
// Returns ErrSiteNotFound if the site does not exist.
func (s *SiteService) Update(ctx context.Context, siteID string, req *model.SiteRequest) (*model.SiteResponse, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	current, err := s.repo.GetBySiteID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrSiteNotFound
	}

	site, err := s.buildSite(req)
	if err != nil {
		return nil, err
	}
	// The path segment is authoritative; the body cannot rename a site.
	site.SiteID = siteID
	if req.Active == nil {
		site.Active = current.Active
	}
	site.LastSyncAt = current.LastSyncAt

	if err := s.repo.Update(ctx, site); err != nil {
		return nil, err
	}
	return toSiteResponse(site), nil
}

// Get returns the API view of one site.
// Returns ErrSiteNotFound if the site does not exist.
func (s *SiteService) Get(ctx context.Context, siteID string) (*model.SiteResponse, error) {
	site, err := s.repo.GetBySiteID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, ErrSiteNotFound
	}
	return toSiteResponse(site), nil
}

// List returns the API view of every registered site.
func (s *SiteService) List(ctx context.Context) ([]model.SiteResponse, error) {
	sites, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]model.SiteResponse, 0, len(sites))
	for i := range sites {
		responses = append(responses, *toSiteResponse(&sites[i]))
	}
	return responses, nil
}

// GetConfig resolves a site's decrypted configuration for storefront calls.
// Returns ErrSiteNotFound if the site does not exist.
func (s *SiteService) GetConfig(ctx context.Context, siteID string) (*model.SiteConfig, error) {
	site, err := s.repo.GetBySiteID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, ErrSiteNotFound
	}
	return s.decryptConfig(site)
}

// ListActiveConfigs resolves decrypted configurations for every active site.
// Propagation calls this per job, so activation changes apply immediately.
func (s *SiteService) ListActiveConfigs(ctx context.Context) ([]model.SiteConfig, error) {
	sites, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	configs := make([]model.SiteConfig, 0, len(sites))
	for i := range sites {
		cfg, err := s.decryptConfig(&sites[i])
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, nil
}

// SeedSites registers or refreshes sites declared in the environment.
// Seeded values win over stored ones, except the last-sync stamp.
func (s *SiteService) SeedSites(ctx context.Context, seeds []model.SiteSeed) error {
	for _, seed := range seeds {
		keyEnc, err := s.cipher.Encrypt(seed.Key)
		if err != nil {
			return fmt.Errorf("encrypt key for %s: %w", seed.SiteID, err)
		}
		secretEnc, err := s.cipher.Encrypt(seed.Secret)
		if err != nil {
			return fmt.Errorf("encrypt secret for %s: %w", seed.SiteID, err)
		}

		active := true
		if seed.IsActive != nil {
			active = *seed.IsActive
		}

		site := &model.Site{
			ID:               uuid.New(),
			SiteID:           seed.SiteID,
			Name:             seed.Name,
			BaseURL:          seed.BaseURL,
			KeyCiphertext:    keyEnc,
			SecretCiphertext: secretEnc,
			Active:           active,
		}
		if err := s.repo.UpsertSeed(ctx, site); err != nil {
			return err
		}
		log.Info().Str("site_id", seed.SiteID).Bool("active", active).Msg("site seeded from environment")
	}
	return nil
}

// TouchLastSync stamps a successful mapping refresh.
func (s *SiteService) TouchLastSync(ctx context.Context, siteID string) error {
	return s.repo.TouchLastSync(ctx, siteID)
}

func (s *SiteService) buildSite(req *model.SiteRequest) (*model.Site, error) {
	keyEnc, err := s.cipher.Encrypt(req.Key)
	if err != nil {
		return nil, fmt.Errorf("encrypt key: %w", err)
	}
	secretEnc, err := s.cipher.Encrypt(req.Secret)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret: %w", err)
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	return &model.Site{
		SiteID:           req.SiteID,
		Name:             req.Name,
		BaseURL:          req.BaseURL,
		KeyCiphertext:    keyEnc,
		SecretCiphertext: secretEnc,
		Active:           active,
	}, nil
}

func (s *SiteService) decryptConfig(site *model.Site) (*model.SiteConfig, error) {
	key, err := s.cipher.Decrypt(site.KeyCiphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt key for %s: %w", site.SiteID, err)
	}
	secret, err := s.cipher.Decrypt(site.SecretCiphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret for %s: %w", site.SiteID, err)
	}
	return &model.SiteConfig{
		SiteID:  site.SiteID,
		BaseURL: site.BaseURL,
		Key:     key,
		Secret:  secret,
	}, nil
}

func toSiteResponse(site *model.Site) *model.SiteResponse {
	return &model.SiteResponse{
		SiteID:     site.SiteID,
		Name:       site.Name,
		BaseURL:    site.BaseURL,
		Active:     site.Active,
		LastSyncAt: site.LastSyncAt,
	}
}
