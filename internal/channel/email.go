package channel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// EmailChannel delivers notifications over SMTP via gomail.
// The recipient address is resolved from the notification metadata
// key "email".
type EmailChannel struct {
	dialer      *gomail.Dialer
	from        string
	logger      *zap.Logger
	initialized bool
}

func NewEmailChannel(logger *zap.Logger) *EmailChannel {
	return &EmailChannel{logger: logger}
}

func (c *EmailChannel) Kind() domain.Channel { return domain.ChannelEmail }

// Initialize expects smtp_host, smtp_port, from, and optional
// username/password keys.
func (c *EmailChannel) Initialize(cfg Config) error {
	if !c.ValidateConfig(cfg) {
		return fmt.Errorf("email channel: %w", domain.ErrChannelNotConfigured)
	}
	port, _ := strconv.Atoi(cfg["smtp_port"])
	c.dialer = gomail.NewDialer(cfg["smtp_host"], port, cfg["username"], cfg["password"])
	c.from = cfg["from"]
	c.initialized = true
	c.logger.Info("email channel initialized",
		zap.String("smtp_host", cfg["smtp_host"]),
		zap.String("from", c.from),
	)
	return nil
}

func (c *EmailChannel) ValidateConfig(cfg Config) bool {
	if cfg["smtp_host"] == "" || cfg["from"] == "" {
		return false
	}
	port, err := strconv.Atoi(cfg["smtp_port"])
	return err == nil && port > 0
}

func (c *EmailChannel) Send(ctx context.Context, n *domain.Notification, pref *domain.Preference) (*DeliveryResult, error) {
	if !c.initialized {
		return nil, domain.ErrChannelNotConfigured
	}
	to := n.Meta("email")
	if !strings.Contains(to, "@") {
		return nil, fmt.Errorf("%w: email address %q", domain.ErrInvalidRecipient, to)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", c.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", n.Title)
	msg.SetBody("text/plain", n.Body)

	if err := c.dialer.DialAndSend(msg); err != nil {
		return nil, fmt.Errorf("send email: %w", err)
	}

	return &DeliveryResult{
		Success:     true,
		MessageID:   uuid.New().String(),
		DeliveredAt: time.Now().UTC(),
		Metadata:    map[string]string{"to": to},
	}, nil
}

// TestConnection dials the SMTP server and closes the session immediately.
func (c *EmailChannel) TestConnection(ctx context.Context) bool {
	if !c.initialized {
		return false
	}
	closer, err := c.dialer.Dial()
	if err != nil {
		c.logger.Warn("email connection test failed", zap.Error(err))
		return false
	}
	_ = closer.Close()
	return true
}

var _ Channel = (*EmailChannel)(nil)
