package domain

import (
	"fmt"
	"time"
)

// Preference holds per-(user, notification type) delivery settings.
type Preference struct {
	UserID     string           `json:"user_id"`
	Type       NotificationType `json:"type"`
	Channels   []Channel        `json:"channels"`
	Enabled    bool             `json:"enabled"`
	QuietStart string           `json:"quiet_start,omitempty"` // "HH:MM", requires QuietEnd
	QuietEnd   string           `json:"quiet_end,omitempty"`
	Timezone   string           `json:"timezone,omitempty"` // IANA name, default UTC
	MaxPerHour int              `json:"max_per_hour,omitempty"`
	// MinPriority suppresses channels for notifications ranked below it.
	// Empty means no threshold.
	MinPriority Priority `json:"min_priority,omitempty"`
}

// Validate checks the both-or-neither quiet hours invariant and that the
// window bounds parse as HH:MM.
func (p *Preference) Validate() error {
	if (p.QuietStart == "") != (p.QuietEnd == "") {
		return ErrInvalidQuietHours
	}
	if p.QuietStart != "" {
		if _, err := parseClock(p.QuietStart); err != nil {
			return ErrInvalidQuietHours
		}
		if _, err := parseClock(p.QuietEnd); err != nil {
			return ErrInvalidQuietHours
		}
	}
	return nil
}

// AllowsChannel reports whether the preference permits delivery on ch.
func (p *Preference) AllowsChannel(ch Channel) bool {
	for _, c := range p.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// AllowsPriority reports whether a notification at the given priority
// clears the preference threshold.
func (p *Preference) AllowsPriority(pr Priority) bool {
	if p.MinPriority == "" {
		return true
	}
	return pr.Rank() >= p.MinPriority.Rank()
}

// InQuietHours reports whether now (converted to the preference's timezone)
// falls within [QuietStart, QuietEnd). A window whose end precedes its start
// wraps past midnight. During quiet hours every channel is suppressed
// regardless of priority.
func (p *Preference) InQuietHours(now time.Time) bool {
	if p.QuietStart == "" || p.QuietEnd == "" {
		return false
	}
	start, err := parseClock(p.QuietStart)
	if err != nil {
		return false
	}
	end, err := parseClock(p.QuietEnd)
	if err != nil {
		return false
	}

	loc := time.UTC
	if p.Timezone != "" {
		if l, err := time.LoadLocation(p.Timezone); err == nil {
			loc = l
		}
	}
	local := now.In(loc)
	cur := local.Hour()*60 + local.Minute()

	if start <= end {
		return cur >= start && cur < end
	}
	// window wraps midnight, e.g. 22:00–07:00
	return cur >= start || cur < end
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value out of range: %s", s)
	}
	return h*60 + m, nil
}
