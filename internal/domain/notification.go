package domain

import "time"

// Channel is the delivery channel variant for a notification.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook:
		return true
	}
	return false
}

// NotificationType is the closed set of business notification categories.
type NotificationType string

const (
	TypeTradingAlert      NotificationType = "trading_alert"
	TypePriceAlert        NotificationType = "price_alert"
	TypeRiskWarning       NotificationType = "risk_warning"
	TypeSystemMaintenance NotificationType = "system_maintenance"
	TypeAccountUpdate     NotificationType = "account_update"
	TypeSecurityAlert     NotificationType = "security_alert"
	TypeMarketAnalysis    NotificationType = "market_analysis"
	TypePortfolioReport   NotificationType = "portfolio_report"
	TypeCustom            NotificationType = "custom"
)

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeTradingAlert, TypePriceAlert, TypeRiskWarning, TypeSystemMaintenance,
		TypeAccountUpdate, TypeSecurityAlert, TypeMarketAnalysis, TypePortfolioReport, TypeCustom:
		return true
	}
	return false
}

// Priority is an ordered severity scale. Rank gives the numeric ordering so
// preference thresholds can compare priorities.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent, PriorityCritical:
		return true
	}
	return false
}

// Rank returns the position of p on the ordered scale, -1 for unknown values.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	case PriorityCritical:
		return 4
	}
	return -1
}

// Notification is an immutable intent to deliver a message. The engine never
// mutates it after Submit; all per-attempt state lives on DeliveryRecord.
type Notification struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Type         NotificationType  `json:"type"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Priority     Priority          `json:"priority"`
	Channels     []Channel         `json:"channels"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	ScheduledAt  *time.Time        `json:"scheduled_at,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	RetryPolicy  *RetryPolicy      `json:"retry_policy,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Validate checks the structural invariants of a notification.
func (n *Notification) Validate() error {
	if n.UserID == "" {
		return ErrMissingUser
	}
	if n.Title == "" || n.Body == "" {
		return ErrMissingContent
	}
	if len(n.Channels) == 0 {
		return ErrNoChannels
	}
	for _, ch := range n.Channels {
		if !ch.IsValid() {
			return ErrInvalidChannel
		}
	}
	if !n.Type.IsValid() {
		return ErrInvalidType
	}
	if !n.Priority.IsValid() {
		return ErrInvalidPriority
	}
	if n.ExpiresAt != nil && n.ScheduledAt != nil && !n.ExpiresAt.After(*n.ScheduledAt) {
		return ErrExpiryBeforeSchedule
	}
	return nil
}

// Expired reports whether the notification's expiry has passed at now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !now.Before(*n.ExpiresAt)
}

// Meta returns a metadata value, tolerating a nil map.
func (n *Notification) Meta(key string) string {
	if n.Metadata == nil {
		return ""
	}
	return n.Metadata[key]
}
