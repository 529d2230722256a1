// Package tenant provides read access to per-tenant engine settings.
// Settings are read-mostly, so lookups go through an explicit TTL cache
// constructed here rather than a module-level global; staleness is
// bounded by the cache TTL.
package tenant

import (
	"context"
	"time"

	"chatflow_backend/platform/cache"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	repo        *Repository
	byTenant    *cache.TTL[uuid.UUID, Settings]
	byPage      *cache.TTL[string, Settings]
	group       singleflight.Group
	defaultTake time.Duration
}

func NewService(repo *Repository, cacheTTL, defaultTakeover time.Duration) *Service {
	return &Service{
		repo:        repo,
		byTenant:    cache.NewTTL[uuid.UUID, Settings](cacheTTL),
		byPage:      cache.NewTTL[string, Settings](cacheTTL),
		defaultTake: defaultTakeover,
	}
}

// SettingsFor returns the tenant's settings, cached. Concurrent misses
// for the same tenant collapse into one query.
func (s *Service) SettingsFor(ctx context.Context, tenantID uuid.UUID) (Settings, error) {
	if cached, ok := s.byTenant.Get(tenantID); ok {
		return cached, nil
	}

	value, err, _ := s.group.Do("tenant:"+tenantID.String(), func() (interface{}, error) {
		settings, err := s.repo.GetByTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		s.byTenant.Set(tenantID, settings)
		return settings, nil
	})
	if err != nil {
		return Settings{}, err
	}
	return value.(Settings), nil
}

// SettingsForPage resolves the tenant owning a channel page id, cached.
func (s *Service) SettingsForPage(ctx context.Context, pageID string) (Settings, error) {
	if cached, ok := s.byPage.Get(pageID); ok {
		return cached, nil
	}

	value, err, _ := s.group.Do("page:"+pageID, func() (interface{}, error) {
		settings, err := s.repo.GetByPageID(ctx, pageID)
		if err != nil {
			return nil, err
		}
		s.byPage.Set(pageID, settings)
		return settings, nil
	})
	if err != nil {
		return Settings{}, err
	}
	return value.(Settings), nil
}

// VerifyTokenExists reports whether some tenant configured the given
// webhook verify token. Handshakes are rare, so this is uncached.
func (s *Service) VerifyTokenExists(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	return s.repo.VerifyTokenExists(ctx, token)
}

// TakeoverDuration returns the tenant's configured takeover window,
// falling back to the application default.
func (s *Service) TakeoverDuration(ctx context.Context, tenantID uuid.UUID) time.Duration {
	settings, err := s.SettingsFor(ctx, tenantID)
	if err != nil || settings.TakeoverMinutes <= 0 {
		return s.defaultTake
	}
	return time.Duration(settings.TakeoverMinutes) * time.Minute
}
