package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// MemoryStore is a hand-written, in-memory Store. It backs unit tests and
// serves as the default when no DATABASE_URL is configured.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification
	records       map[string]*domain.DeliveryRecord

	// Optional error overrides — set in tests to simulate failure paths.
	SaveErr error
	LoadErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifications: make(map[string]*domain.Notification),
		records:       make(map[string]*domain.DeliveryRecord),
	}
}

func (m *MemoryStore) SaveNotification(_ context.Context, n *domain.Notification) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *n
	m.notifications[n.ID] = &clone
	return nil
}

func (m *MemoryStore) SaveHistory(_ context.Context, r *domain.DeliveryRecord) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *r
	clone.Attempts = append([]time.Time(nil), r.Attempts...)
	m.records[r.ID] = &clone
	return nil
}

func (m *MemoryStore) LoadHistory(_ context.Context, notificationID string) ([]*domain.DeliveryRecord, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.DeliveryRecord
	for _, r := range m.records {
		if r.NotificationID == notificationID {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *MemoryStore) LoadFailed(_ context.Context, notificationID string, hoursBack int) ([]*domain.Notification, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	cutoff := time.Now().Add(-time.Duration(hoursBack) * time.Hour)

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Latest record per notification decides whether it is replayable.
	latest := make(map[string]*domain.DeliveryRecord)
	for _, r := range m.records {
		if notificationID != "" && r.NotificationID != notificationID {
			continue
		}
		cur, ok := latest[r.NotificationID]
		if !ok || lastActivity(r).After(lastActivity(cur)) {
			latest[r.NotificationID] = r
		}
	}

	var out []*domain.Notification
	for id, r := range latest {
		if r.Status != domain.StatusFailed || lastActivity(r).Before(cutoff) {
			continue
		}
		if n, ok := m.notifications[id]; ok {
			clone := *n
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func lastActivity(r *domain.DeliveryRecord) time.Time {
	if len(r.Attempts) > 0 {
		return r.Attempts[len(r.Attempts)-1]
	}
	if r.FailedAt != nil {
		return *r.FailedAt
	}
	if r.SentAt != nil {
		return *r.SentAt
	}
	return time.Time{}
}

var _ Store = (*MemoryStore)(nil)
