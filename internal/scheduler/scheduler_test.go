package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/scheduler"
)

type capture struct {
	mu    sync.Mutex
	fired []*domain.Notification
	err   error
}

func (c *capture) callback(n *domain.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fired = append(c.fired, n)
	return c.err
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fired)
}

func (c *capture) last() *domain.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.fired) == 0 {
		return nil
	}
	return c.fired[len(c.fired)-1]
}

// fakeClock is a settable time source for steering due times.
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

func schedNotification() *domain.Notification {
	return &domain.Notification{
		ID:       "n-1",
		UserID:   "u-1",
		Type:     domain.TypePortfolioReport,
		Title:    "daily report",
		Body:     "your portfolio summary",
		Priority: domain.PriorityNormal,
		Channels: []domain.Channel{domain.ChannelEmail},
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestScheduler_OneOffFires(t *testing.T) {
	sink := &capture{}
	s := scheduler.New(sink.callback, zap.NewNop(), scheduler.WithTickInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	id, err := s.ScheduleOnce(schedNotification(), time.Now().Add(30*time.Millisecond))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return sink.count() == 1 }, "expected one-off to fire")

	entry, ok := s.Get(id)
	if !ok {
		t.Fatal("expected entry retrievable after firing")
	}
	if entry.Status != domain.ScheduleStatusCompleted {
		t.Fatalf("expected completed, got %s", entry.Status)
	}
	if entry.FinishedAt == nil || entry.LastRun == nil {
		t.Fatal("expected finish and last-run timestamps")
	}
	if sink.last().ScheduledAt != nil {
		t.Fatal("materialized notification must dispatch as immediate")
	}
}

func TestScheduler_OneOffCallbackFailure(t *testing.T) {
	sink := &capture{err: errors.New("dispatch refused")}
	s := scheduler.New(sink.callback, zap.NewNop(), scheduler.WithTickInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	id, _ := s.ScheduleOnce(schedNotification(), time.Now())
	waitFor(t, 2*time.Second, func() bool {
		entry, ok := s.Get(id)
		return ok && entry.Status == domain.ScheduleStatusFailed
	}, "expected failed status after callback error")
}

func TestScheduler_CancelBeforeDue(t *testing.T) {
	sink := &capture{}
	s := scheduler.New(sink.callback, zap.NewNop(), scheduler.WithTickInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	id, err := s.ScheduleOnce(schedNotification(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if !s.Cancel(id) {
		t.Fatal("expected cancel to succeed before due time")
	}

	// Give the poll loop a few ticks; nothing must fire.
	time.Sleep(50 * time.Millisecond)
	if sink.count() != 0 {
		t.Fatal("cancelled entry must not dispatch")
	}

	entry, _ := s.Get(id)
	if entry.Status != domain.ScheduleStatusCancelled {
		t.Fatalf("expected cancelled, got %s", entry.Status)
	}

	// Cancelling again (or cancelling garbage) reports false.
	if s.Cancel(id) {
		t.Fatal("expected second cancel to fail on terminal entry")
	}
	if s.Cancel("no-such-id") {
		t.Fatal("expected cancel to fail for unknown id")
	}
}

func TestScheduler_RecurringDaily(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)}
	sink := &capture{}
	s := scheduler.New(sink.callback, zap.NewNop(),
		scheduler.WithTickInterval(10*time.Millisecond),
		scheduler.WithClock(clock.Now),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	id, err := s.ScheduleRecurring(schedNotification(), "0 9 * * *", nil, nil)
	if err != nil {
		t.Fatalf("schedule recurring: %v", err)
	}

	entry, _ := s.Get(id)
	wantFirst := time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)
	if !entry.NextRun.Equal(wantFirst) {
		t.Fatalf("expected first run %v, got %v", wantFirst, entry.NextRun)
	}

	// Cross 09:00 → first firing.
	clock.Advance(90 * time.Minute)
	waitFor(t, 2*time.Second, func() bool { return sink.count() == 1 }, "expected first firing")

	entry, _ = s.Get(id)
	wantSecond := wantFirst.Add(24 * time.Hour)
	if !entry.NextRun.Equal(wantSecond) {
		t.Fatalf("expected next run %v, got %v", wantSecond, entry.NextRun)
	}

	// Cross the next day's 09:00 → second firing.
	clock.Advance(24 * time.Hour)
	waitFor(t, 2*time.Second, func() bool { return sink.count() == 2 }, "expected second firing")

	// Each firing forms its own delivery lineage.
	sink.mu.Lock()
	first, second := sink.fired[0], sink.fired[1]
	sink.mu.Unlock()
	if first.ID == second.ID {
		t.Fatal("recurring firings must get fresh notification ids")
	}
}

func TestScheduler_RecurringEndWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)}
	sink := &capture{}
	s := scheduler.New(sink.callback, zap.NewNop(),
		scheduler.WithTickInterval(10*time.Millisecond),
		scheduler.WithClock(clock.Now),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	end := clock.Now().Add(30 * time.Minute) // before the first 09:00 firing
	id, err := s.ScheduleRecurring(schedNotification(), "0 9 * * *", nil, &end)
	if err != nil {
		t.Fatalf("schedule recurring: %v", err)
	}

	clock.Advance(2 * time.Hour)
	waitFor(t, 2*time.Second, func() bool {
		entry, ok := s.Get(id)
		return ok && entry.Status == domain.ScheduleStatusExpired
	}, "expected entry to expire past its end window")

	if sink.count() != 0 {
		t.Fatal("expired entry must not fire")
	}
}

func TestScheduler_InvalidCronRejected(t *testing.T) {
	s := scheduler.New((&capture{}).callback, zap.NewNop())

	tests := []string{"not a cron", "* * *", "99 99 * * *"}
	for _, expr := range tests {
		if _, err := s.ScheduleRecurring(schedNotification(), expr, nil, nil); !errors.Is(err, domain.ErrInvalidCronExpr) {
			t.Fatalf("expr %q: expected ErrInvalidCronExpr, got %v", expr, err)
		}
	}
}

func TestScheduler_ScheduleValidatesNotification(t *testing.T) {
	s := scheduler.New((&capture{}).callback, zap.NewNop())

	bad := schedNotification()
	bad.UserID = ""
	if _, err := s.ScheduleOnce(bad, time.Now()); !errors.Is(err, domain.ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
}
