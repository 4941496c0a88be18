package ratelimiter_test

import (
	"testing"

	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/ratelimiter"
)

func limiterNotification(userID string) *domain.Notification {
	return &domain.Notification{
		ID:       "n-1",
		UserID:   userID,
		Type:     domain.TypePriceAlert,
		Title:    "t",
		Body:     "b",
		Priority: domain.PriorityNormal,
		Channels: []domain.Channel{domain.ChannelEmail},
	}
}

func TestLimiter_UserCeiling(t *testing.T) {
	l := ratelimiter.New(ratelimiter.Limits{UserPerHour: 3, TypePerHour: 1000, ChannelPerMinute: 1000})
	n := limiterNotification("u-1")
	chs := []domain.Channel{domain.ChannelEmail}

	for i := 0; i < 3; i++ {
		if !l.Allow(n, chs, 0) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow(n, chs, 0) {
		t.Fatal("request 4 should exceed the user ceiling")
	}

	// A different user has its own bucket.
	if !l.Allow(limiterNotification("u-2"), chs, 0) {
		t.Fatal("different user must not share the exhausted bucket")
	}
}

func TestLimiter_PreferenceOverridesUserCeiling(t *testing.T) {
	l := ratelimiter.New(ratelimiter.Limits{UserPerHour: 100, TypePerHour: 1000, ChannelPerMinute: 1000})
	n := limiterNotification("u-1")
	chs := []domain.Channel{domain.ChannelEmail}

	// Preference cap of 2 beats the global 100.
	if !l.Allow(n, chs, 2) || !l.Allow(n, chs, 2) {
		t.Fatal("first two requests should be allowed")
	}
	if l.Allow(n, chs, 2) {
		t.Fatal("third request should exceed the preference cap")
	}
}

func TestLimiter_ChannelCeiling(t *testing.T) {
	l := ratelimiter.New(ratelimiter.Limits{UserPerHour: 1000, TypePerHour: 1000, ChannelPerMinute: 2})
	chs := []domain.Channel{domain.ChannelSMS}

	// Channel buckets are global across users.
	if !l.Allow(limiterNotification("u-1"), chs, 0) {
		t.Fatal("request 1 should be allowed")
	}
	if !l.Allow(limiterNotification("u-2"), chs, 0) {
		t.Fatal("request 2 should be allowed")
	}
	if l.Allow(limiterNotification("u-3"), chs, 0) {
		t.Fatal("request 3 should exceed the per-minute channel ceiling")
	}
}

func TestLimiter_TypeCeiling(t *testing.T) {
	l := ratelimiter.New(ratelimiter.Limits{UserPerHour: 1000, TypePerHour: 1, ChannelPerMinute: 1000})
	chs := []domain.Channel{domain.ChannelEmail}

	if !l.Allow(limiterNotification("u-1"), chs, 0) {
		t.Fatal("request 1 should be allowed")
	}
	if l.Allow(limiterNotification("u-2"), chs, 0) {
		t.Fatal("type bucket is shared across users")
	}
}

func TestLimiter_ZeroLimitsTakeDefaults(t *testing.T) {
	l := ratelimiter.New(ratelimiter.Limits{})
	n := limiterNotification("u-1")

	// The defaults are far above one request; this must simply not panic
	// and not reject.
	if !l.Allow(n, []domain.Channel{domain.ChannelEmail}, 0) {
		t.Fatal("defaults should admit the first request")
	}
}
