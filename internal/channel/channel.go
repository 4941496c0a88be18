package channel

import (
	"context"
	"sync"
	"time"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// Config carries variant-specific settings as a flat key/value map so the
// Channel contract stays uniform across transports.
type Config map[string]string

// DeliveryResult is the outcome of a single successful transport call.
type DeliveryResult struct {
	Success      bool              `json:"success"`
	MessageID    string            `json:"message_id,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	DeliveredAt  time.Time         `json:"delivered_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Channel abstracts one delivery transport variant.
//
// Send must be called only after a successful Initialize; an uninitialized
// variant fails with domain.ErrChannelNotConfigured instead of attempting
// delivery. Recipient resolution and shape validation are variant-specific
// and happen before any network traffic.
type Channel interface {
	Kind() domain.Channel
	Initialize(cfg Config) error
	Send(ctx context.Context, n *domain.Notification, pref *domain.Preference) (*DeliveryResult, error)
	ValidateConfig(cfg Config) bool
	TestConnection(ctx context.Context) bool
}

// Registry maps channel variants to their registered implementations.
// Adding a transport means registering a new variant; dispatch logic is
// untouched.
type Registry struct {
	mu       sync.RWMutex
	channels map[domain.Channel]Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[domain.Channel]Channel)}
}

// Register adds or replaces the implementation for ch.Kind().
func (r *Registry) Register(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.Kind()] = ch
}

// Get returns the implementation for the variant, or (nil, false).
func (r *Registry) Get(kind domain.Channel) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[kind]
	return ch, ok
}

// Kinds lists all registered variants.
func (r *Registry) Kinds() []domain.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]domain.Channel, 0, len(r.channels))
	for k := range r.channels {
		kinds = append(kinds, k)
	}
	return kinds
}
