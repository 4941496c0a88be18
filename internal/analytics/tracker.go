package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
)

const bucketKeyLayout = "2006-01-02-15"

// counters is one accumulation unit, used both for running totals and for
// hourly buckets.
type counters struct {
	sent         int64
	delivered    int64
	failed       int64
	rateLimited  int64
	expired      int64
	byChannel    map[domain.Channel]int64
	byType       map[domain.NotificationType]int64
	latencySum   time.Duration
	latencyCount int64
}

func newCounters() counters {
	return counters{
		byChannel: make(map[domain.Channel]int64),
		byType:    make(map[domain.NotificationType]int64),
	}
}

func (c *counters) add(other *counters) {
	c.sent += other.sent
	c.delivered += other.delivered
	c.failed += other.failed
	c.rateLimited += other.rateLimited
	c.expired += other.expired
	c.latencySum += other.latencySum
	c.latencyCount += other.latencyCount
	for ch, v := range other.byChannel {
		c.byChannel[ch] += v
	}
	for t, v := range other.byType {
		c.byType[t] += v
	}
}

type bucket struct {
	hour time.Time
	counters
}

// Tracker aggregates delivery counters into real-time totals and
// hourly-bucketed history. All counters live behind one mutex and are
// passed by reference into the recording hooks; there is no process-wide
// singleton.
type Tracker struct {
	mu             sync.Mutex
	totals         counters
	window         counters // delta since the last aggregation
	buckets        map[string]*bucket
	lastAggregated time.Time

	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	prom      *Instruments // optional
	logger    *zap.Logger
}

// Option tweaks tracker timing, mainly for tests.
type Option func(*Tracker)

func WithAggregateInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker builds a tracker. prom may be nil when Prometheus export is
// not wanted (tests).
func NewTracker(prom *Instruments, logger *zap.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		totals:    newCounters(),
		window:    newCounters(),
		buckets:   make(map[string]*bucket),
		interval:  time.Minute,
		retention: 24 * time.Hour,
		now:       func() time.Time { return time.Now().UTC() },
		prom:      prom,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordSent counts the dispatch of a notification: one sent increment per
// delivery record, broken down by channel and type. Records already settled
// at submit time also bump their terminal counter.
func (t *Tracker) RecordSent(n *domain.Notification, records []*domain.DeliveryRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range records {
		t.bump(func(c *counters) {
			c.sent++
			c.byChannel[r.Channel]++
			c.byType[n.Type]++
		})
		switch r.Status {
		case domain.StatusDelivered:
			t.bump(func(c *counters) { c.delivered++ })
		case domain.StatusFailed:
			t.bump(func(c *counters) { c.failed++ })
		}
		if t.prom != nil {
			t.prom.Sent.WithLabelValues(string(r.Channel), string(n.Type)).Inc()
		}
	}
}

// RecordDelivered counts one successful delivery and its latency.
func (t *Tracker) RecordDelivered(notificationID string, ch domain.Channel, at time.Time, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bump(func(c *counters) {
		c.delivered++
		c.latencySum += latency
		c.latencyCount++
	})
	if t.prom != nil {
		t.prom.Delivered.WithLabelValues(string(ch)).Inc()
		t.prom.Latency.WithLabelValues(string(ch)).Observe(latency.Seconds())
	}
}

// RecordFailed counts one permanently failed delivery.
func (t *Tracker) RecordFailed(notificationID string, ch domain.Channel, at time.Time, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bump(func(c *counters) { c.failed++ })
	if t.prom != nil {
		t.prom.Failed.WithLabelValues(string(ch)).Inc()
	}
}

// RecordRateLimited counts a notification dropped for a cycle.
func (t *Tracker) RecordRateLimited(n *domain.Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bump(func(c *counters) { c.rateLimited++ })
	if t.prom != nil {
		t.prom.RateLimited.Inc()
	}
}

// RecordExpired counts a notification discarded for expiry.
func (t *Tracker) RecordExpired(n *domain.Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bump(func(c *counters) { c.expired++ })
	if t.prom != nil {
		t.prom.Expired.Inc()
	}
}

// bump applies fn to both the running totals and the current window delta.
// Caller holds t.mu.
func (t *Tracker) bump(fn func(*counters)) {
	fn(&t.totals)
	fn(&t.window)
}

// Run aggregates the window into hourly buckets on the configured interval
// until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info("analytics aggregation started", zap.Duration("interval", t.interval))

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("analytics aggregation stopping")
			return
		case <-ticker.C:
			t.Aggregate()
		}
	}
}

// Aggregate folds the current window delta into this hour's bucket and
// evicts buckets older than the retention window.
func (t *Tracker) Aggregate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	hour := now.Truncate(time.Hour)
	key := hour.Format(bucketKeyLayout)

	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{hour: hour, counters: newCounters()}
		t.buckets[key] = b
	}
	b.add(&t.window)
	t.window = newCounters()
	t.lastAggregated = now

	cutoff := now.Add(-t.retention)
	for key, b := range t.buckets {
		if b.hour.Before(cutoff) {
			delete(t.buckets, key)
		}
	}
}

// GetMetrics returns a snapshot aggregated over [start, end], optionally
// filtering the breakdown maps to one type and/or one channel. The current
// window is flushed first so the snapshot is up to date.
func (t *Tracker) GetMetrics(start, end time.Time, typ *domain.NotificationType, ch *domain.Channel) *domain.MetricsSnapshot {
	t.Aggregate()

	t.mu.Lock()
	defer t.mu.Unlock()

	sum := newCounters()
	for _, b := range t.buckets {
		if b.hour.Before(start.Truncate(time.Hour)) || b.hour.After(end) {
			continue
		}
		sum.add(&b.counters)
	}

	snap := &domain.MetricsSnapshot{
		PeriodStart: start,
		PeriodEnd:   end,
		TotalSent:   sum.sent,
		Delivered:   sum.delivered,
		Failed:      sum.failed,
		RateLimited: sum.rateLimited,
		Expired:     sum.expired,
		ByChannel:   make(map[domain.Channel]int64),
		ByType:      make(map[domain.NotificationType]int64),
	}
	if sum.sent > 0 {
		snap.DeliveryRate = float64(sum.delivered) / float64(sum.sent)
	}
	if sum.latencyCount > 0 {
		snap.AvgLatency = sum.latencySum / time.Duration(sum.latencyCount)
	}
	for c, v := range sum.byChannel {
		if ch == nil || *ch == c {
			snap.ByChannel[c] = v
		}
	}
	for ty, v := range sum.byType {
		if typ == nil || *typ == ty {
			snap.ByType[ty] = v
		}
	}
	return snap
}

// GetRealTimeStats returns the live running totals.
func (t *Tracker) GetRealTimeStats() *domain.RealTimeStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := &domain.RealTimeStats{
		TotalSent:        t.totals.sent,
		Delivered:        t.totals.delivered,
		Failed:           t.totals.failed,
		RateLimited:      t.totals.rateLimited,
		Expired:          t.totals.expired,
		ByChannel:        make(map[domain.Channel]int64, len(t.totals.byChannel)),
		ByType:           make(map[domain.NotificationType]int64, len(t.totals.byType)),
		LastAggregatedAt: t.lastAggregated,
	}
	if t.totals.sent > 0 {
		stats.DeliveryRate = float64(t.totals.delivered) / float64(t.totals.sent)
	}
	if t.totals.latencyCount > 0 {
		stats.AvgLatency = t.totals.latencySum / time.Duration(t.totals.latencyCount)
	}
	for ch, v := range t.totals.byChannel {
		stats.ByChannel[ch] = v
	}
	for ty, v := range t.totals.byType {
		stats.ByType[ty] = v
	}
	return stats
}
