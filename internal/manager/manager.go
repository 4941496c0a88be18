package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/analytics"
	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/engine"
	"github.com/notifyhub/notification-engine/internal/history"
	"github.com/notifyhub/notification-engine/internal/preference"
	"github.com/notifyhub/notification-engine/internal/scheduler"
)

// Renderer is the external template rendering collaborator. When a
// notification carries a template id, the rendered subject/body replace its
// title/body before dispatch.
type Renderer interface {
	Render(templateID string, data map[string]string) (subject, body string, err error)
}

// Config sizes bulk processing.
type Config struct {
	BulkBatchSize int           // default 50
	BulkPause     time.Duration // pause between batches, default 100ms
}

func (c *Config) applyDefaults() {
	if c.BulkBatchSize <= 0 {
		c.BulkBatchSize = 50
	}
	if c.BulkPause <= 0 {
		c.BulkPause = 100 * time.Millisecond
	}
}

// Manager orchestrates a send: preference resolution, quiet-hours and
// priority filtering, optional deferral to the scheduler, template
// rendering, fan-out to the delivery engine, and analytics reporting.
type Manager struct {
	cfg      Config
	engine   *engine.Engine
	sched    *scheduler.Scheduler
	prefs    *preference.Store
	tracker  *analytics.Tracker
	store    history.Store
	renderer Renderer
	logger   *zap.Logger

	mu             sync.Mutex
	scheduledRecs  map[string][]*domain.DeliveryRecord // scheduleID → provisional records
	byNotification map[string]string                   // notificationID → scheduleID
}

func New(
	cfg Config,
	eng *engine.Engine,
	prefs *preference.Store,
	tracker *analytics.Tracker,
	store history.Store,
	renderer Renderer,
	logger *zap.Logger,
	schedOpts ...scheduler.Option,
) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		cfg:            cfg,
		engine:         eng,
		prefs:          prefs,
		tracker:        tracker,
		store:          store,
		renderer:       renderer,
		logger:         logger,
		scheduledRecs:  make(map[string][]*domain.DeliveryRecord),
		byNotification: make(map[string]string),
	}
	m.sched = scheduler.New(m.dispatchScheduled, logger, schedOpts...)
	return m
}

// Run drives the scheduler loop until ctx is cancelled. The engine and
// tracker loops are started by the caller.
func (m *Manager) Run(ctx context.Context) {
	m.sched.Run(ctx)
}

// Send dispatches a notification now, or defers it when scheduled_at lies
// in the future. The returned records are a snapshot; Status reports their
// live state.
//
// An empty result with a nil error means every requested channel was
// filtered out (disabled preference, quiet hours, priority threshold) — a
// no-op, not an error.
func (m *Manager) Send(ctx context.Context, n *domain.Notification) ([]*domain.DeliveryRecord, error) {
	m.prepare(n)
	if err := n.Validate(); err != nil {
		return nil, err
	}

	pref, err := m.prefs.Get(ctx, n.UserID, n.Type)
	if err != nil {
		return nil, fmt.Errorf("resolve preference: %w", err)
	}

	allowed := m.allowedChannels(n, pref)
	if len(allowed) == 0 {
		m.logger.Debug("all channels filtered out",
			zap.String("notification_id", n.ID), zap.String("user_id", n.UserID))
		return []*domain.DeliveryRecord{}, nil
	}

	now := time.Now().UTC()
	if n.ScheduledAt != nil && n.ScheduledAt.After(now) {
		_, records, err := m.deferToScheduler(n, *n.ScheduledAt, allowed)
		return records, err
	}

	return m.dispatch(ctx, n, pref, allowed)
}

// SendBulk processes notifications in fixed-size batches with a short pause
// between batches to bound burst load. Per-notification failures are
// isolated: a failing item is logged and skipped, the rest of the batch
// proceeds.
func (m *Manager) SendBulk(ctx context.Context, ns []*domain.Notification) (map[string][]*domain.DeliveryRecord, error) {
	results := make(map[string][]*domain.DeliveryRecord, len(ns))

	for start := 0; start < len(ns); start += m.cfg.BulkBatchSize {
		end := start + m.cfg.BulkBatchSize
		if end > len(ns) {
			end = len(ns)
		}

		for _, n := range ns[start:end] {
			records, err := m.Send(ctx, n)
			if err != nil {
				m.logger.Warn("bulk item failed",
					zap.String("notification_id", n.ID), zap.Error(err))
				continue
			}
			results[n.ID] = records
		}

		if end < len(ns) {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(m.cfg.BulkPause):
			}
		}
	}
	return results, nil
}

// Schedule registers a one-off dispatch of n at the given time.
func (m *Manager) Schedule(ctx context.Context, n *domain.Notification, at time.Time) (string, error) {
	m.prepare(n)
	n.ScheduledAt = &at
	if err := n.Validate(); err != nil {
		return "", err
	}

	pref, err := m.prefs.Get(ctx, n.UserID, n.Type)
	if err != nil {
		return "", fmt.Errorf("resolve preference: %w", err)
	}
	allowed := m.allowedChannels(n, pref)

	// A filtered-out notification still gets an entry; the preference may
	// allow channels again by the time it fires, and the caller holds a
	// cancellable handle either way.
	scheduleID, _, err := m.deferToScheduler(n, at, allowed)
	if err != nil {
		return "", err
	}
	return scheduleID, nil
}

// ScheduleRecurring registers a cron-driven recurrence. Each firing
// materializes a fresh notification and runs the full Send pipeline.
func (m *Manager) ScheduleRecurring(ctx context.Context, n *domain.Notification, cronExpr string, start, end *time.Time) (string, error) {
	m.prepare(n)
	if err := n.Validate(); err != nil {
		return "", err
	}
	return m.sched.ScheduleRecurring(n, cronExpr, start, end)
}

// Cancel cancels a schedule entry before it fires. Provisional pending
// records for the entry move to cancelled. Returns false for unknown ids
// and for entries already fired or terminal.
func (m *Manager) Cancel(scheduleID string) bool {
	if !m.sched.Cancel(scheduleID) {
		return false
	}

	// Mutate provisional records under the lock; Status reads them
	// concurrently. Persistence works on snapshots taken while locked.
	m.mu.Lock()
	records := m.scheduledRecs[scheduleID]
	snapshot := make([]*domain.DeliveryRecord, len(records))
	for i, r := range records {
		r.Status = domain.StatusCancelled
		r.FailedAt = nil
		r.ErrorMessage = ""
		clone := *r
		snapshot[i] = &clone
	}
	m.mu.Unlock()

	if m.store != nil {
		for _, r := range snapshot {
			if err := m.store.SaveHistory(context.Background(), r); err != nil {
				m.logger.Warn("failed to persist cancelled record",
					zap.String("record_id", r.ID), zap.Error(err))
			}
		}
	}
	m.logger.Info("schedule cancelled", zap.String("schedule_id", scheduleID))
	return true
}

// ScheduleEntry exposes a schedule entry for status queries.
func (m *Manager) ScheduleEntry(scheduleID string) (*domain.ScheduleEntry, bool) {
	return m.sched.Get(scheduleID)
}

// Status reports the latest known per-channel state for a notification:
// live engine records first, then provisional scheduled records, then
// persisted history.
func (m *Manager) Status(ctx context.Context, notificationID string) (*domain.StatusSummary, error) {
	if sum, err := m.engine.Status(notificationID); err == nil {
		return sum, nil
	}

	// Clone provisional records under the lock; Cancel mutates them in
	// place.
	m.mu.Lock()
	var records []*domain.DeliveryRecord
	if scheduleID, ok := m.byNotification[notificationID]; ok {
		for _, r := range m.scheduledRecs[scheduleID] {
			clone := *r
			records = append(records, &clone)
		}
	}
	m.mu.Unlock()

	if len(records) == 0 && m.store != nil {
		var err error
		records, err = m.store.LoadHistory(ctx, notificationID)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
	}
	if len(records) == 0 {
		return nil, domain.ErrNotFound
	}
	return summarize(notificationID, records), nil
}

// RetryFailed re-submits notifications whose most recent delivery record in
// the window is failed. With a notification id, only that notification is
// considered. Returns the number of notifications re-submitted.
func (m *Manager) RetryFailed(ctx context.Context, notificationID string, hoursBack int) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	failed, err := m.store.LoadFailed(ctx, notificationID, hoursBack)
	if err != nil {
		return 0, fmt.Errorf("load failed notifications: %w", err)
	}

	count := 0
	for _, n := range failed {
		n.ScheduledAt = nil // replay immediately
		if _, err := m.Send(ctx, n); err != nil {
			m.logger.Warn("retry submission failed",
				zap.String("notification_id", n.ID), zap.Error(err))
			continue
		}
		count++
	}
	return count, nil
}

// Stats returns the live metrics snapshot.
func (m *Manager) Stats() *domain.RealTimeStats {
	return m.tracker.GetRealTimeStats()
}

// Metrics returns an aggregated snapshot over [start, end] with optional
// type/channel breakdown filters.
func (m *Manager) Metrics(start, end time.Time, typ *domain.NotificationType, ch *domain.Channel) *domain.MetricsSnapshot {
	return m.tracker.GetMetrics(start, end, typ, ch)
}

// ---- internals ----

// prepare fills server-assigned fields and normalizes the retry policy.
func (m *Manager) prepare(n *domain.Notification) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.RetryPolicy != nil {
		n.RetryPolicy.Normalize()
	}
}

// allowedChannels applies the preference filter: requested ∩ preferred,
// empty when the preference is disabled, during quiet hours (all channels
// suppressed regardless of priority), or below the priority threshold.
func (m *Manager) allowedChannels(n *domain.Notification, pref *domain.Preference) []domain.Channel {
	if !pref.Enabled {
		return nil
	}
	if pref.InQuietHours(time.Now()) {
		m.logger.Debug("quiet hours active, suppressing all channels",
			zap.String("user_id", n.UserID))
		return nil
	}
	if !pref.AllowsPriority(n.Priority) {
		return nil
	}
	var allowed []domain.Channel
	for _, ch := range n.Channels {
		if pref.AllowsChannel(ch) {
			allowed = append(allowed, ch)
		}
	}
	return allowed
}

// deferToScheduler hands the notification to the scheduler and fabricates
// provisional pending records, one per allowed channel, that Status reports
// until the entry fires or is cancelled. It returns the schedule id of the
// single entry it registered.
func (m *Manager) deferToScheduler(n *domain.Notification, at time.Time, allowed []domain.Channel) (string, []*domain.DeliveryRecord, error) {
	scheduleID, err := m.sched.ScheduleOnce(n, at)
	if err != nil {
		return "", nil, err
	}

	// Persisted up front so cancelled records always have a parent row.
	if m.store != nil {
		if err := m.store.SaveNotification(context.Background(), n); err != nil {
			m.logger.Warn("failed to persist scheduled notification",
				zap.String("notification_id", n.ID), zap.Error(err))
		}
	}

	records := make([]*domain.DeliveryRecord, len(allowed))
	for i, ch := range allowed {
		records[i] = &domain.DeliveryRecord{
			ID:             uuid.New().String(),
			NotificationID: n.ID,
			UserID:         n.UserID,
			Channel:        ch,
			Status:         domain.StatusPending,
		}
	}

	m.mu.Lock()
	m.scheduledRecs[scheduleID] = records
	m.byNotification[n.ID] = scheduleID
	m.mu.Unlock()

	out := make([]*domain.DeliveryRecord, len(records))
	for i, r := range records {
		clone := *r
		out[i] = &clone
	}
	return scheduleID, out, nil
}

// dispatch runs the immediate path: render, persist, fan out, report.
func (m *Manager) dispatch(ctx context.Context, n *domain.Notification, pref *domain.Preference, allowed []domain.Channel) ([]*domain.DeliveryRecord, error) {
	if n.TemplateID != "" && m.renderer != nil {
		subject, body, err := m.renderer.Render(n.TemplateID, n.TemplateData)
		if err != nil {
			return nil, fmt.Errorf("%w: template %s: %v", domain.ErrRenderFailed, n.TemplateID, err)
		}
		rendered := *n
		rendered.Title = subject
		rendered.Body = body
		n = &rendered
	}

	if m.store != nil {
		if err := m.store.SaveNotification(ctx, n); err != nil {
			m.logger.Warn("failed to persist notification",
				zap.String("notification_id", n.ID), zap.Error(err))
		}
	}

	records, err := m.engine.Submit(n, allowed, pref, pref.MaxPerHour)
	if err != nil {
		return nil, err
	}

	m.tracker.RecordSent(n, records)
	return records, nil
}

// dispatchScheduled is the scheduler callback: a fired entry re-enters the
// normal dispatch pipeline. Provisional records are dropped in favor of the
// live engine records.
func (m *Manager) dispatchScheduled(n *domain.Notification) error {
	ctx := context.Background()

	m.mu.Lock()
	if scheduleID, ok := m.byNotification[n.ID]; ok {
		delete(m.scheduledRecs, scheduleID)
		delete(m.byNotification, n.ID)
	}
	m.mu.Unlock()

	pref, err := m.prefs.Get(ctx, n.UserID, n.Type)
	if err != nil {
		return fmt.Errorf("resolve preference: %w", err)
	}
	allowed := m.allowedChannels(n, pref)
	if len(allowed) == 0 {
		return nil
	}
	_, err = m.dispatch(ctx, n, pref, allowed)
	return err
}

func summarize(notificationID string, records []*domain.DeliveryRecord) *domain.StatusSummary {
	sum := &domain.StatusSummary{
		NotificationID: notificationID,
		PerChannel:     make(map[domain.Channel]domain.DeliveryStatus, len(records)),
	}
	for _, r := range records {
		sum.PerChannel[r.Channel] = r.Status
		switch r.Status {
		case domain.StatusDelivered:
			sum.Delivered++
		case domain.StatusFailed:
			sum.Failed++
		case domain.StatusPending, domain.StatusRetrying:
			sum.Pending++
		}
	}
	return sum
}
