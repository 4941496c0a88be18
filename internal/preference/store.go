package preference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// Backing is the external persistence collaborator for preferences.
// Load returns domain.ErrNotFound when no preference is stored.
type Backing interface {
	Load(ctx context.Context, userID string, t domain.NotificationType) (*domain.Preference, error)
	Save(ctx context.Context, p *domain.Preference) error
	Delete(ctx context.Context, userID string, t domain.NotificationType) error
}

type cacheEntry struct {
	pref     *domain.Preference
	cachedAt time.Time
}

// Store resolves per-(user, type) preferences with a TTL cache in front of
// the backing. Cache misses fall back to built-in defaults when the backing
// has no stored preference.
type Store struct {
	mu      sync.RWMutex
	cache   map[string]cacheEntry
	ttl     time.Duration
	backing Backing
	logger  *zap.Logger
}

func NewStore(backing Backing, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{
		cache:   make(map[string]cacheEntry),
		ttl:     ttl,
		backing: backing,
		logger:  logger,
	}
}

func cacheKey(userID string, t domain.NotificationType) string {
	return userID + ":" + string(t)
}

// Get returns the effective preference for (userID, t): a fresh cache hit,
// else the stored preference, else the built-in default for the type.
func (s *Store) Get(ctx context.Context, userID string, t domain.NotificationType) (*domain.Preference, error) {
	key := cacheKey(userID, t)

	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && time.Since(entry.cachedAt) < s.ttl {
		return entry.pref, nil
	}

	pref, err := s.backing.Load(ctx, userID, t)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		pref = Default(userID, t)
	default:
		return nil, fmt.Errorf("load preference: %w", err)
	}

	s.mu.Lock()
	s.cache[key] = cacheEntry{pref: pref, cachedAt: time.Now()}
	s.mu.Unlock()

	return pref, nil
}

// Set persists p and invalidates the cache entry for its key.
func (s *Store) Set(ctx context.Context, p *domain.Preference) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.backing.Save(ctx, p); err != nil {
		return fmt.Errorf("save preference: %w", err)
	}
	s.invalidate(p.UserID, p.Type)
	return nil
}

// Update loads the current effective preference, applies mutate, and saves
// the result.
func (s *Store) Update(ctx context.Context, userID string, t domain.NotificationType, mutate func(*domain.Preference)) error {
	pref, err := s.Get(ctx, userID, t)
	if err != nil {
		return err
	}
	clone := *pref
	mutate(&clone)
	return s.Set(ctx, &clone)
}

// Delete removes the stored preference; subsequent Gets see the default.
func (s *Store) Delete(ctx context.Context, userID string, t domain.NotificationType) error {
	if err := s.backing.Delete(ctx, userID, t); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete preference: %w", err)
	}
	s.invalidate(userID, t)
	return nil
}

// Reset is Delete under the name the caller-facing API uses.
func (s *Store) Reset(ctx context.Context, userID string, t domain.NotificationType) error {
	return s.Delete(ctx, userID, t)
}

func (s *Store) invalidate(userID string, t domain.NotificationType) {
	s.mu.Lock()
	delete(s.cache, cacheKey(userID, t))
	s.mu.Unlock()
}
