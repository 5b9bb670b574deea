package service

import (
	"context"
	"fmt"

	"github.com/skuledger/skuledger/internal/model"
)

// SettingsService exposes the runtime settings row to handlers. The stored
// row is authoritative; environment values only seed it on first access.
// The Airtable API key crosses this boundary in the clear and is stored
// encrypted, like site credentials.
type SettingsService struct {
	repo   SettingsRepositoryInterface
	cipher Encrypter
}

// NewSettingsService creates a new SettingsService with the given repository
// and cipher.
func NewSettingsService(repo SettingsRepositoryInterface, cipher Encrypter) *SettingsService {
	return &SettingsService{repo: repo, cipher: cipher}
}

// Get returns the current settings with the Airtable key decrypted.
func (s *SettingsService) Get(ctx context.Context) (*model.Settings, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if settings.AirtableAPIKey != "" {
		key, err := s.cipher.Decrypt(settings.AirtableAPIKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt airtable key: %w", err)
		}
		settings.AirtableAPIKey = key
	}
	return settings, nil
}

// Update applies a partial settings change and returns the result. An empty
// Airtable key clears the stored one; a non-empty key is encrypted before it
// reaches the database.
func (s *SettingsService) Update(ctx context.Context, req *model.UpdateSettingsRequest) (*model.Settings, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	if req.AirtableAPIKey != nil && *req.AirtableAPIKey != "" {
		encrypted, err := s.cipher.Encrypt(*req.AirtableAPIKey)
		if err != nil {
			return nil, fmt.Errorf("encrypt airtable key: %w", err)
		}
		// Swap in a copy so the caller's request is not mutated.
		clone := *req
		clone.AirtableAPIKey = &encrypted
		req = &clone
	}

	updated, err := s.repo.Update(ctx, req)
	if err != nil {
		return nil, err
	}
	if updated.AirtableAPIKey != "" {
		key, err := s.cipher.Decrypt(updated.AirtableAPIKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt airtable key: %w", err)
		}
		updated.AirtableAPIKey = key
	}
	return updated, nil
}
