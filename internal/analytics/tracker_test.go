package analytics_test

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/analytics"
	"github.com/notifyhub/notification-engine/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func trackerNotification(typ domain.NotificationType) *domain.Notification {
	return &domain.Notification{
		ID:       "n-1",
		UserID:   "u-1",
		Type:     typ,
		Title:    "t",
		Body:     "b",
		Priority: domain.PriorityNormal,
	}
}

func pendingRecords(chs ...domain.Channel) []*domain.DeliveryRecord {
	out := make([]*domain.DeliveryRecord, len(chs))
	for i, ch := range chs {
		out[i] = &domain.DeliveryRecord{ID: "r", NotificationID: "n-1", Channel: ch, Status: domain.StatusPending}
	}
	return out
}

func TestTracker_RealTimeStats(t *testing.T) {
	tr := analytics.NewTracker(nil, zap.NewNop())

	n := trackerNotification(domain.TypeTradingAlert)
	tr.RecordSent(n, pendingRecords(domain.ChannelEmail, domain.ChannelPush))
	tr.RecordDelivered(n.ID, domain.ChannelEmail, time.Now(), 200*time.Millisecond)
	tr.RecordDelivered(n.ID, domain.ChannelPush, time.Now(), 400*time.Millisecond)

	n2 := trackerNotification(domain.TypeRiskWarning)
	tr.RecordSent(n2, pendingRecords(domain.ChannelSMS))
	tr.RecordFailed(n2.ID, domain.ChannelSMS, time.Now(), "transport down")
	tr.RecordRateLimited(n2)
	tr.RecordExpired(n2)

	stats := tr.GetRealTimeStats()
	if stats.TotalSent != 3 {
		t.Fatalf("expected 3 sent, got %d", stats.TotalSent)
	}
	if stats.Delivered != 2 || stats.Failed != 1 {
		t.Fatalf("expected 2 delivered / 1 failed, got %d / %d", stats.Delivered, stats.Failed)
	}
	if stats.RateLimited != 1 || stats.Expired != 1 {
		t.Fatalf("expected 1 rate limited / 1 expired, got %d / %d", stats.RateLimited, stats.Expired)
	}

	wantRate := 2.0 / 3.0
	if diff := stats.DeliveryRate - wantRate; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected delivery rate %.4f, got %.4f", wantRate, stats.DeliveryRate)
	}
	if stats.AvgLatency != 300*time.Millisecond {
		t.Fatalf("expected 300ms average latency, got %v", stats.AvgLatency)
	}
	if stats.ByChannel[domain.ChannelEmail] != 1 || stats.ByChannel[domain.ChannelSMS] != 1 {
		t.Fatalf("unexpected channel breakdown: %v", stats.ByChannel)
	}
	if stats.ByType[domain.TypeTradingAlert] != 2 || stats.ByType[domain.TypeRiskWarning] != 1 {
		t.Fatalf("unexpected type breakdown: %v", stats.ByType)
	}
}

func TestTracker_GetMetricsWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.June, 1, 10, 30, 0, 0, time.UTC)}
	tr := analytics.NewTracker(nil, zap.NewNop(), analytics.WithClock(clock.Now))

	n := trackerNotification(domain.TypeTradingAlert)
	tr.RecordSent(n, pendingRecords(domain.ChannelEmail))
	tr.RecordDelivered(n.ID, domain.ChannelEmail, clock.Now(), 100*time.Millisecond)
	tr.Aggregate() // lands in the 10:00 bucket

	clock.Advance(3 * time.Hour)
	tr.RecordSent(n, pendingRecords(domain.ChannelSMS))
	tr.Aggregate() // lands in the 13:00 bucket

	// Window covering only the first hour.
	snap := tr.GetMetrics(
		time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, time.June, 1, 11, 0, 0, 0, time.UTC),
		nil, nil,
	)
	if snap.TotalSent != 1 || snap.Delivered != 1 {
		t.Fatalf("expected only the first bucket, got sent=%d delivered=%d", snap.TotalSent, snap.Delivered)
	}

	// Window covering both.
	snap = tr.GetMetrics(
		time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2026, time.June, 1, 14, 0, 0, 0, time.UTC),
		nil, nil,
	)
	if snap.TotalSent != 2 {
		t.Fatalf("expected both buckets, got sent=%d", snap.TotalSent)
	}
	if snap.DeliveryRate != 0.5 {
		t.Fatalf("expected delivery rate 0.5, got %.4f", snap.DeliveryRate)
	}
}

func TestTracker_GetMetricsFilters(t *testing.T) {
	tr := analytics.NewTracker(nil, zap.NewNop())

	tr.RecordSent(trackerNotification(domain.TypeTradingAlert), pendingRecords(domain.ChannelEmail))
	tr.RecordSent(trackerNotification(domain.TypeRiskWarning), pendingRecords(domain.ChannelSMS))

	typ := domain.TypeTradingAlert
	ch := domain.ChannelEmail
	snap := tr.GetMetrics(time.Now().Add(-time.Hour), time.Now().Add(time.Hour), &typ, &ch)

	if len(snap.ByType) != 1 || snap.ByType[domain.TypeTradingAlert] != 1 {
		t.Fatalf("expected type breakdown filtered to trading_alert, got %v", snap.ByType)
	}
	if len(snap.ByChannel) != 1 || snap.ByChannel[domain.ChannelEmail] != 1 {
		t.Fatalf("expected channel breakdown filtered to email, got %v", snap.ByChannel)
	}
}

func TestTracker_BucketEviction(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)}
	tr := analytics.NewTracker(nil, zap.NewNop(), analytics.WithClock(clock.Now))

	start := clock.Now()
	tr.RecordSent(trackerNotification(domain.TypeCustom), pendingRecords(domain.ChannelEmail))
	tr.Aggregate()

	// Past the 24h retention the hourly bucket is gone, but running totals
	// are untouched.
	clock.Advance(26 * time.Hour)
	snap := tr.GetMetrics(start.Add(-time.Hour), clock.Now(), nil, nil)
	if snap.TotalSent != 0 {
		t.Fatalf("expected evicted bucket to drop out of window sums, got %d", snap.TotalSent)
	}
	if tr.GetRealTimeStats().TotalSent != 1 {
		t.Fatal("running totals must survive bucket eviction")
	}
}

func TestTracker_SettledAtSubmitCounted(t *testing.T) {
	tr := analytics.NewTracker(nil, zap.NewNop())

	records := pendingRecords(domain.ChannelEmail)
	records[0].Status = domain.StatusFailed
	tr.RecordSent(trackerNotification(domain.TypeCustom), records)

	stats := tr.GetRealTimeStats()
	if stats.TotalSent != 1 || stats.Failed != 1 {
		t.Fatalf("records settled at submit must count, got %+v", stats)
	}
}
