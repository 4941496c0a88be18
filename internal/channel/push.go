package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// PushChannel delivers notifications through an external push gateway.
// Device tokens are resolved from the notification metadata key
// "device_tokens" (comma-separated).
type PushChannel struct {
	baseURL     string
	httpClient  *http.Client
	logger      *zap.Logger
	initialized bool
}

type pushRequest struct {
	Tokens   []string `json:"tokens"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Priority string   `json:"priority"`
}

type pushResponse struct {
	MessageID string `json:"messageId"`
	Accepted  int    `json:"accepted"`
}

func NewPushChannel(logger *zap.Logger) *PushChannel {
	return &PushChannel{logger: logger}
}

func (c *PushChannel) Kind() domain.Channel { return domain.ChannelPush }

func (c *PushChannel) Initialize(cfg Config) error {
	if !c.ValidateConfig(cfg) {
		return fmt.Errorf("push channel: %w", domain.ErrChannelNotConfigured)
	}
	timeout := 30 * time.Second
	if v := cfg["timeout"]; v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			timeout = d
		}
	}
	c.baseURL = cfg["provider_url"]
	c.httpClient = &http.Client{Timeout: timeout}
	c.initialized = true
	c.logger.Info("push channel initialized", zap.String("provider_url", c.baseURL))
	return nil
}

func (c *PushChannel) ValidateConfig(cfg Config) bool {
	return cfg["provider_url"] != ""
}

func (c *PushChannel) Send(ctx context.Context, n *domain.Notification, pref *domain.Preference) (*DeliveryResult, error) {
	if !c.initialized {
		return nil, domain.ErrChannelNotConfigured
	}
	tokens := splitTokens(n.Meta("device_tokens"))
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no device tokens", domain.ErrInvalidRecipient)
	}

	body, err := json.Marshal(pushRequest{
		Tokens:   tokens,
		Title:    n.Title,
		Body:     n.Body,
		Priority: string(n.Priority),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected push gateway status: %d", resp.StatusCode)
	}

	var out pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &DeliveryResult{
		Success:     true,
		MessageID:   out.MessageID,
		DeliveredAt: time.Now().UTC(),
		Metadata:    map[string]string{"tokens": fmt.Sprintf("%d", len(tokens))},
	}, nil
}

func (c *PushChannel) TestConnection(ctx context.Context) bool {
	if !c.initialized {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func splitTokens(s string) []string {
	var tokens []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

var _ Channel = (*PushChannel)(nil)
