package preference_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/preference"
)

func newStore(ttl time.Duration) (*preference.Store, *preference.MemoryBacking) {
	backing := preference.NewMemoryBacking()
	return preference.NewStore(backing, ttl, zap.NewNop()), backing
}

func TestStore_Get_DefaultWhenUnset(t *testing.T) {
	store, _ := newStore(time.Minute)

	pref, err := store.Get(context.Background(), "u-1", domain.TypeSecurityAlert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pref.Enabled {
		t.Fatal("default preference must be enabled")
	}
	if pref.MinPriority != domain.PriorityCritical {
		t.Fatalf("security alerts default to a critical threshold, got %q", pref.MinPriority)
	}
	if !pref.AllowsChannel(domain.ChannelSMS) {
		t.Fatal("security alert default must include sms")
	}
}

func TestStore_Get_DefaultIsEmailOnly(t *testing.T) {
	store, _ := newStore(time.Minute)

	pref, err := store.Get(context.Background(), "u-1", domain.TypeCustom)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pref.Channels) != 1 || pref.Channels[0] != domain.ChannelEmail {
		t.Fatalf("expected email-only default, got %v", pref.Channels)
	}
}

func TestStore_SetInvalidatesCache(t *testing.T) {
	store, _ := newStore(time.Hour)
	ctx := context.Background()

	// Prime the cache with the default.
	before, _ := store.Get(ctx, "u-1", domain.TypeCustom)
	if before.MaxPerHour != 0 {
		t.Fatalf("expected default MaxPerHour 0, got %d", before.MaxPerHour)
	}

	err := store.Set(ctx, &domain.Preference{
		UserID:     "u-1",
		Type:       domain.TypeCustom,
		Enabled:    true,
		Channels:   []domain.Channel{domain.ChannelPush},
		MaxPerHour: 7,
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	after, _ := store.Get(ctx, "u-1", domain.TypeCustom)
	if after.MaxPerHour != 7 {
		t.Fatal("expected Set to invalidate the cached entry")
	}
}

func TestStore_Set_RejectsInvalidQuietHours(t *testing.T) {
	store, _ := newStore(time.Minute)

	err := store.Set(context.Background(), &domain.Preference{
		UserID:     "u-1",
		Type:       domain.TypeCustom,
		QuietStart: "22:00", // no end
	})
	if err != domain.ErrInvalidQuietHours {
		t.Fatalf("expected ErrInvalidQuietHours, got %v", err)
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	store, backing := newStore(20 * time.Millisecond)
	ctx := context.Background()

	if _, err := store.Get(ctx, "u-1", domain.TypeCustom); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Write directly to the backing, bypassing the store's invalidation.
	err := backing.Save(ctx, &domain.Preference{
		UserID:   "u-1",
		Type:     domain.TypeCustom,
		Enabled:  true,
		Channels: []domain.Channel{domain.ChannelWebhook},
	})
	if err != nil {
		t.Fatalf("backing save: %v", err)
	}

	// Fresh cache still serves the old value.
	pref, _ := store.Get(ctx, "u-1", domain.TypeCustom)
	if pref.AllowsChannel(domain.ChannelWebhook) {
		t.Fatal("expected stale cached value before TTL expiry")
	}

	time.Sleep(30 * time.Millisecond)

	pref, _ = store.Get(ctx, "u-1", domain.TypeCustom)
	if !pref.AllowsChannel(domain.ChannelWebhook) {
		t.Fatal("expected backing value after TTL expiry")
	}
}

func TestStore_Update(t *testing.T) {
	store, _ := newStore(time.Minute)
	ctx := context.Background()

	err := store.Update(ctx, "u-1", domain.TypeTradingAlert, func(p *domain.Preference) {
		p.Enabled = false
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	pref, _ := store.Get(ctx, "u-1", domain.TypeTradingAlert)
	if pref.Enabled {
		t.Fatal("expected update to persist the mutation")
	}
}

func TestStore_ResetRestoresDefault(t *testing.T) {
	store, _ := newStore(time.Minute)
	ctx := context.Background()

	err := store.Set(ctx, &domain.Preference{
		UserID:   "u-1",
		Type:     domain.TypeTradingAlert,
		Enabled:  false,
		Channels: []domain.Channel{domain.ChannelSMS},
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := store.Reset(ctx, "u-1", domain.TypeTradingAlert); err != nil {
		t.Fatalf("reset: %v", err)
	}

	pref, _ := store.Get(ctx, "u-1", domain.TypeTradingAlert)
	if !pref.Enabled || pref.MaxPerHour != 10 {
		t.Fatalf("expected trading alert default after reset, got %+v", pref)
	}
}
