// Package configstore serves the active automation config to the engine
// and validates new versions before they are persisted.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/repository"
	"cascade_backend/platform/validator"
)

const defaultCacheTTL = 30 * time.Second

// Store caches the active config for a short TTL. Readers get a copy.
type Store struct {
	repo     repository.ConfigStore
	val      *validator.Validator
	ttl      time.Duration
	now      func() time.Time
	fallback string

	mu       sync.Mutex
	cached   *domain.AutomationConfig
	cachedAt time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithTTL overrides the cache lifetime. Zero disables caching.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock replaces time.Now in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithDefaultTimezone fills configs that leave the zone empty.
func WithDefaultTimezone(tz string) Option {
	return func(s *Store) { s.fallback = tz }
}

func New(repo repository.ConfigStore, val *validator.Validator, opts ...Option) *Store {
	s := &Store{repo: repo, val: val, ttl: defaultCacheTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Active returns the validated active config. A missing or invalid config
// yields an error wrapping domain.ErrConfiguration.
func (s *Store) Active(ctx context.Context) (domain.AutomationConfig, error) {
	s.mu.Lock()
	if s.cached != nil && s.ttl > 0 && s.now().Sub(s.cachedAt) < s.ttl {
		cfg := *s.cached
		s.mu.Unlock()
		return cfg, nil
	}
	s.mu.Unlock()

	cfg, err := s.repo.GetActiveConfig(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.AutomationConfig{}, fmt.Errorf("%w: no active automation config", domain.ErrConfiguration)
	}
	if err != nil {
		return domain.AutomationConfig{}, err
	}
	s.applyDefaults(&cfg)
	if err := Validate(s.val, cfg); err != nil {
		return domain.AutomationConfig{}, err
	}

	s.mu.Lock()
	s.cached = &cfg
	s.cachedAt = s.now()
	s.mu.Unlock()
	return cfg, nil
}

// Save validates cfg and stores it as the new active version.
func (s *Store) Save(ctx context.Context, cfg domain.AutomationConfig) (domain.AutomationConfig, error) {
	s.applyDefaults(&cfg)
	if err := Validate(s.val, cfg); err != nil {
		return domain.AutomationConfig{}, err
	}
	saved, err := s.repo.SaveConfig(ctx, cfg)
	if err != nil {
		return domain.AutomationConfig{}, err
	}
	s.Invalidate()
	return saved, nil
}

// Invalidate drops the cached config.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Store) applyDefaults(cfg *domain.AutomationConfig) {
	if cfg.Timezone == "" {
		cfg.Timezone = s.fallback
	}
	if len(cfg.IdentifierOrder) == 0 {
		cfg.IdentifierOrder = append([]domain.Identifier(nil), domain.DefaultIdentifierOrder...)
	}
	if cfg.RecencyWindowHours == 0 {
		cfg.RecencyWindowHours = domain.DefaultRecencyWindowHours
	}
}
