package database

import (
	"context"
	"fmt"
	"time"

	"helpdesk/internal/cache"
	"helpdesk/internal/models"
)

// SettingsStore reads organization settings, cached per organization
type SettingsStore struct {
	writeClient *WriteClient
	cache       *cache.Cache[models.AutoResponseSettings]
}

// NewSettingsStore creates a settings store; ttl <= 0 disables caching
func NewSettingsStore(writeClient *WriteClient, ttl time.Duration) *SettingsStore {
	s := &SettingsStore{writeClient: writeClient}
	if ttl > 0 {
		s.cache = cache.New[models.AutoResponseSettings](ttl)
	}
	return s
}

// GetAutoResponseSettings returns the organization's auto-response policy merged onto defaults
func (s *SettingsStore) GetAutoResponseSettings(ctx context.Context, organizationID string) (models.AutoResponseSettings, error) {
	if s.cache != nil {
		if settings, ok := s.cache.Get(organizationID); ok {
			return settings, nil
		}
	}

	var raw []byte
	query := `SELECT settings FROM organizations WHERE id = $1`
	if err := ExecuteReadOnlyQuerySingle(ctx, s.writeClient.GetDB(), &raw, query, organizationID); err != nil {
		return models.AutoResponseSettings{}, err
	}

	parsed, err := models.ParseOrganizationSettings(raw)
	if err != nil {
		return models.AutoResponseSettings{}, fmt.Errorf("failed to load settings for organization %s: %w", organizationID, err)
	}

	settings := parsed.AutoResponseSettings()
	if s.cache != nil {
		s.cache.Set(organizationID, settings)
	}
	return settings, nil
}
