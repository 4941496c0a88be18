package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// WebhookChannel POSTs the notification envelope to a per-notification URL
// resolved from the metadata key "webhook_url". Any 2xx response counts as
// delivered.
type WebhookChannel struct {
	httpClient  *http.Client
	logger      *zap.Logger
	initialized bool
}

type webhookEnvelope struct {
	NotificationID string            `json:"notification_id"`
	Type           string            `json:"type"`
	Priority       string            `json:"priority"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	SentAt         time.Time         `json:"sent_at"`
}

func NewWebhookChannel(logger *zap.Logger) *WebhookChannel {
	return &WebhookChannel{logger: logger}
}

func (c *WebhookChannel) Kind() domain.Channel { return domain.ChannelWebhook }

// Initialize accepts an optional timeout (Go duration, default 30s).
// The webhook target comes from each notification, so there is no base URL.
func (c *WebhookChannel) Initialize(cfg Config) error {
	timeout := 30 * time.Second
	if v := cfg["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("webhook channel: bad timeout %q: %w", v, err)
		}
		timeout = d
	}
	c.httpClient = &http.Client{Timeout: timeout}
	c.initialized = true
	c.logger.Info("webhook channel initialized", zap.Duration("timeout", timeout))
	return nil
}

// ValidateConfig only rejects an unparseable timeout; all other keys are
// optional for this variant.
func (c *WebhookChannel) ValidateConfig(cfg Config) bool {
	if v := cfg["timeout"]; v != "" {
		if _, err := time.ParseDuration(v); err != nil {
			return false
		}
	}
	return true
}

func (c *WebhookChannel) Send(ctx context.Context, n *domain.Notification, pref *domain.Preference) (*DeliveryResult, error) {
	if !c.initialized {
		return nil, domain.ErrChannelNotConfigured
	}
	url := n.Meta("webhook_url")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: webhook url %q", domain.ErrInvalidRecipient, url)
	}

	body, err := json.Marshal(webhookEnvelope{
		NotificationID: n.ID,
		Type:           string(n.Type),
		Priority:       string(n.Priority),
		Title:          n.Title,
		Body:           n.Body,
		Metadata:       n.Metadata,
		SentAt:         time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected webhook status: %d", resp.StatusCode)
	}

	return &DeliveryResult{
		Success:     true,
		MessageID:   uuid.New().String(),
		DeliveredAt: time.Now().UTC(),
		Metadata:    map[string]string{"url": url},
	}, nil
}

// TestConnection has no fixed endpoint to probe; an initialized client is
// considered connected.
func (c *WebhookChannel) TestConnection(ctx context.Context) bool {
	return c.initialized
}

var _ Channel = (*WebhookChannel)(nil)
