package preference

import "github.com/notifyhub/notification-engine/internal/domain"

// Default returns the built-in preference applied when a user has stored
// nothing for the type. Alert-class types opt into more channels and carry
// hourly frequency caps; everything else is email only.
func Default(userID string, t domain.NotificationType) *domain.Preference {
	p := &domain.Preference{
		UserID:   userID,
		Type:     t,
		Enabled:  true,
		Channels: []domain.Channel{domain.ChannelEmail},
		Timezone: "UTC",
	}

	switch t {
	case domain.TypeTradingAlert:
		p.Channels = []domain.Channel{domain.ChannelEmail, domain.ChannelPush}
		p.MaxPerHour = 10
	case domain.TypeRiskWarning:
		p.Channels = []domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush}
		p.MinPriority = domain.PriorityHigh
		p.MaxPerHour = 5
	case domain.TypeSecurityAlert:
		p.Channels = []domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush}
		p.MinPriority = domain.PriorityCritical
		p.MaxPerHour = 20
	}

	return p
}
