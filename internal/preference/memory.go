package preference

import (
	"context"
	"sync"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// MemoryBacking is an in-memory Backing used in tests and as the default
// when no Redis address is configured.
type MemoryBacking struct {
	mu    sync.RWMutex
	prefs map[string]*domain.Preference
}

func NewMemoryBacking() *MemoryBacking {
	return &MemoryBacking{prefs: make(map[string]*domain.Preference)}
}

func (m *MemoryBacking) Load(_ context.Context, userID string, t domain.NotificationType) (*domain.Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[cacheKey(userID, t)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (m *MemoryBacking) Save(_ context.Context, p *domain.Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *p
	m.prefs[cacheKey(p.UserID, p.Type)] = &clone
	return nil
}

func (m *MemoryBacking) Delete(_ context.Context, userID string, t domain.NotificationType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.prefs, cacheKey(userID, t))
	return nil
}

var _ Backing = (*MemoryBacking)(nil)
