package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// SMSChannel delivers notifications by POSTing to an external SMS gateway.
// The gateway base URL is injected from config so tests can point to a
// local mock server.
type SMSChannel struct {
	baseURL     string
	httpClient  *http.Client
	logger      *zap.Logger
	initialized bool
}

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type smsResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

func NewSMSChannel(logger *zap.Logger) *SMSChannel {
	return &SMSChannel{logger: logger}
}

func (c *SMSChannel) Kind() domain.Channel { return domain.ChannelSMS }

// Initialize expects provider_url and optional timeout (Go duration).
func (c *SMSChannel) Initialize(cfg Config) error {
	if !c.ValidateConfig(cfg) {
		return fmt.Errorf("sms channel: %w", domain.ErrChannelNotConfigured)
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
	c.logger.Info("sms channel initialized", zap.String("provider_url", c.baseURL))
	return nil
}

func (c *SMSChannel) ValidateConfig(cfg Config) bool {
	return cfg["provider_url"] != ""
}

func (c *SMSChannel) Send(ctx context.Context, n *domain.Notification, pref *domain.Preference) (*DeliveryResult, error) {
	if !c.initialized {
		return nil, domain.ErrChannelNotConfigured
	}
	phone := n.Meta("phone")
	if digitCount(phone) < 10 {
		return nil, fmt.Errorf("%w: phone number %q", domain.ErrInvalidRecipient, phone)
	}

	body, err := json.Marshal(smsRequest{
		To:      phone,
		Message: n.Title + ": " + n.Body,
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
		return nil, fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected sms gateway status: %d", resp.StatusCode)
	}

	var out smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &DeliveryResult{
		Success:     true,
		MessageID:   out.MessageID,
		DeliveredAt: time.Now().UTC(),
		Metadata:    map[string]string{"to": phone},
	}, nil
}

// TestConnection probes the gateway with a HEAD request.
func (c *SMSChannel) TestConnection(ctx context.Context) bool {
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

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

var _ Channel = (*SMSChannel)(nil)
