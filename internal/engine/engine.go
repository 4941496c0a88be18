package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/channel"
	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/history"
	"github.com/notifyhub/notification-engine/internal/ratelimiter"
)

// Config holds the engine's pool and queue sizing.
type Config struct {
	Workers           int           // worker goroutines, default 5
	QueueCapacity     int           // submission queue, default 1000
	RetryCapacity     int           // pending retry items, default 1000
	SendTimeout       time.Duration // per-channel send bound, default 30s
	RetryPollInterval time.Duration // retry consumer tick, default 250ms
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 1000
	}
	if c.RetryCapacity <= 0 {
		c.RetryCapacity = 1000
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.RetryPollInterval <= 0 {
		c.RetryPollInterval = 250 * time.Millisecond
	}
}

// Hooks carries the metric callbacks injected by the orchestration layer.
// Using a struct keeps the engine metrics-agnostic; nil funcs are no-ops.
type Hooks struct {
	OnDelivered   func(n *domain.Notification, ch domain.Channel, latency time.Duration)
	OnFailed      func(n *domain.Notification, ch domain.Channel, errMsg string)
	OnRateLimited func(n *domain.Notification)
	OnExpired     func(n *domain.Notification)
}

func (h *Hooks) applyDefaults() {
	if h.OnDelivered == nil {
		h.OnDelivered = func(*domain.Notification, domain.Channel, time.Duration) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(*domain.Notification, domain.Channel, string) {}
	}
	if h.OnRateLimited == nil {
		h.OnRateLimited = func(*domain.Notification) {}
	}
	if h.OnExpired == nil {
		h.OnExpired = func(*domain.Notification) {}
	}
}

// job is one submission: a notification plus the records for the channels
// it dispatches to. The preference rides along so channels can consult it.
type job struct {
	notification *domain.Notification
	preference   *domain.Preference
	records      []*domain.DeliveryRecord
	userMaxHour  int
}

// Engine owns the dispatch state machine: a bounded submission queue
// consumed by a fixed worker pool, plus a second bounded queue drained by a
// single retry consumer. All DeliveryRecord mutation happens here, under
// one mutex.
type Engine struct {
	cfg      Config
	registry *channel.Registry
	limiter  *ratelimiter.Limiter
	store    history.Store
	logger   *zap.Logger
	hooks    Hooks

	jobs    chan job
	retries *retryQueue

	mu      sync.RWMutex
	records map[string]map[domain.Channel]*domain.DeliveryRecord

	accepting atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(
	cfg Config,
	registry *channel.Registry,
	limiter *ratelimiter.Limiter,
	store history.Store,
	logger *zap.Logger,
	hooks Hooks,
) *Engine {
	cfg.applyDefaults()
	hooks.applyDefaults()
	return &Engine{
		cfg:      cfg,
		registry: registry,
		limiter:  limiter,
		store:    store,
		logger:   logger,
		hooks:    hooks,
		jobs:     make(chan job, cfg.QueueCapacity),
		retries:  newRetryQueue(cfg.RetryCapacity),
		records:  make(map[string]map[domain.Channel]*domain.DeliveryRecord),
	}
}

// Start launches the worker pool and the retry consumer. Cancelling ctx (or
// calling Shutdown) stops them after in-flight attempts complete.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.accepting.Store(true)

	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go func(id int) {
			defer e.wg.Done()
			e.worker(ctx, id)
		}(i)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.retryLoop(ctx)
	}()
}

// Shutdown stops intake first, then signals workers and waits for in-flight
// attempts to finish or time out.
func (e *Engine) Shutdown() {
	e.accepting.Store(false)
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info("delivery engine stopped")
}

// Submit enqueues the notification for dispatch on the given channels and
// returns a pending record snapshot per channel.
//
// Submit never blocks: when the submission queue is full it fails fast with
// domain.ErrQueueFull and creates no records, leaving backpressure to the
// caller.
func (e *Engine) Submit(
	n *domain.Notification,
	channels []domain.Channel,
	pref *domain.Preference,
	userMaxHour int,
) ([]*domain.DeliveryRecord, error) {
	if !e.accepting.Load() {
		return nil, domain.ErrEngineStopped
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, domain.ErrNoChannels
	}

	records := make([]*domain.DeliveryRecord, len(channels))
	for i, ch := range channels {
		records[i] = &domain.DeliveryRecord{
			ID:             uuid.New().String(),
			NotificationID: n.ID,
			UserID:         n.UserID,
			Channel:        ch,
			Status:         domain.StatusPending,
		}
	}

	e.mu.Lock()
	byChannel := e.records[n.ID]
	if byChannel == nil {
		byChannel = make(map[domain.Channel]*domain.DeliveryRecord, len(records))
		e.records[n.ID] = byChannel
	}
	for _, r := range records {
		byChannel[r.Channel] = r
	}
	e.mu.Unlock()

	select {
	case e.jobs <- job{notification: n, preference: pref, records: records, userMaxHour: userMaxHour}:
	default:
		e.mu.Lock()
		for _, r := range records {
			delete(e.records[n.ID], r.Channel)
		}
		if len(e.records[n.ID]) == 0 {
			delete(e.records, n.ID)
		}
		e.mu.Unlock()
		return nil, domain.ErrQueueFull
	}

	return e.snapshot(records), nil
}

// Status reports the latest known state per channel for a notification.
// Idempotent: repeated calls with no intervening activity return identical
// results.
func (e *Engine) Status(notificationID string) (*domain.StatusSummary, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	byChannel, ok := e.records[notificationID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	sum := &domain.StatusSummary{
		NotificationID: notificationID,
		PerChannel:     make(map[domain.Channel]domain.DeliveryStatus, len(byChannel)),
	}
	for ch, r := range byChannel {
		sum.PerChannel[ch] = r.Status
		switch r.Status {
		case domain.StatusDelivered:
			sum.Delivered++
		case domain.StatusFailed:
			sum.Failed++
		case domain.StatusPending, domain.StatusRetrying:
			sum.Pending++
		}
	}
	return sum, nil
}

// Records returns copies of all records tracked for a notification.
func (e *Engine) Records(notificationID string) []*domain.DeliveryRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	byChannel, ok := e.records[notificationID]
	if !ok {
		return nil
	}
	out := make([]*domain.DeliveryRecord, 0, len(byChannel))
	for _, r := range byChannel {
		out = append(out, cloneRecord(r))
	}
	return out
}

// Depths returns the current submission and retry queue occupancy, used by
// the queue-depth gauges.
func (e *Engine) Depths() (submissions, retries int) {
	return len(e.jobs), e.retries.Len()
}

func (e *Engine) snapshot(records []*domain.DeliveryRecord) []*domain.DeliveryRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*domain.DeliveryRecord, len(records))
	for i, r := range records {
		out[i] = cloneRecord(r)
	}
	return out
}

func cloneRecord(r *domain.DeliveryRecord) *domain.DeliveryRecord {
	clone := *r
	clone.Attempts = append([]time.Time(nil), r.Attempts...)
	return &clone
}
