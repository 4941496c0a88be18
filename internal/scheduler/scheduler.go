package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// Callback receives the materialized notification when an entry fires.
type Callback func(n *domain.Notification) error

// Option tweaks scheduler timing, mainly for tests.
type Option func(*Scheduler)

func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tick = d }
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.sweepEvery = d }
}

func WithRetention(d time.Duration) Option {
	return func(s *Scheduler) { s.retention = d }
}

// WithClock substitutes the time source so tests can steer due times.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler holds one-off and recurring schedule entries in memory and
// invokes the registered callback when an entry comes due. A single timer
// loop scans entries; a slower sweep removes terminal entries past the
// retention window. Durability across restarts is explicitly not promised.
type Scheduler struct {
	mu       sync.Mutex
	entries  map[string]*domain.ScheduleEntry
	crons    map[string]cron.Schedule
	callback Callback

	tick       time.Duration
	sweepEvery time.Duration
	retention  time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func New(callback Callback, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		entries:    make(map[string]*domain.ScheduleEntry),
		crons:      make(map[string]cron.Schedule),
		callback:   callback,
		tick:       time.Second,
		sweepEvery: time.Hour,
		retention:  7 * 24 * time.Hour,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleOnce registers a one-off dispatch at the given time.
func (s *Scheduler) ScheduleOnce(n *domain.Notification, at time.Time) (string, error) {
	if err := n.Validate(); err != nil {
		return "", err
	}

	entry := &domain.ScheduleEntry{
		ID:           uuid.New().String(),
		Kind:         domain.ScheduleOnce,
		Notification: n,
		RunAt:        at,
		NextRun:      at,
		Status:       domain.ScheduleStatusScheduled,
		CreatedAt:    s.now(),
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()

	s.logger.Info("one-off schedule registered",
		zap.String("schedule_id", entry.ID),
		zap.Time("run_at", at),
	)
	return entry.ID, nil
}

// ScheduleRecurring registers a standard 5-field cron recurrence with an
// optional [start, end] window. The expression is validated up front;
// unsupported expressions are rejected rather than approximated.
func (s *Scheduler) ScheduleRecurring(n *domain.Notification, expr string, start, end *time.Time) (string, error) {
	if err := n.Validate(); err != nil {
		return "", err
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", domain.ErrInvalidCronExpr, expr, err)
	}

	base := s.now()
	if start != nil && start.After(base) {
		base = *start
	}

	entry := &domain.ScheduleEntry{
		ID:           uuid.New().String(),
		Kind:         domain.ScheduleRecurring,
		Notification: n,
		CronExpr:     expr,
		StartAt:      start,
		EndAt:        end,
		NextRun:      sched.Next(base),
		Status:       domain.ScheduleStatusActive,
		CreatedAt:    s.now(),
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.crons[entry.ID] = sched
	s.mu.Unlock()

	s.logger.Info("recurring schedule registered",
		zap.String("schedule_id", entry.ID),
		zap.String("cron", expr),
		zap.Time("next_run", entry.NextRun),
	)
	return entry.ID, nil
}

// Cancel marks the entry cancelled. It returns false for an unknown id, a
// terminal entry, or a one-off whose dispatch has already started.
func (s *Scheduler) Cancel(scheduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[scheduleID]
	if !ok || entry.Status.Terminal() || entry.Status == domain.ScheduleStatusProcessing {
		return false
	}
	now := s.now()
	entry.Status = domain.ScheduleStatusCancelled
	entry.FinishedAt = &now
	s.logger.Info("schedule cancelled", zap.String("schedule_id", scheduleID))
	return true
}

// Get returns a copy of the entry, or (nil, false) if unknown.
func (s *Scheduler) Get(scheduleID string) (*domain.ScheduleEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[scheduleID]
	if !ok {
		return nil, false
	}
	clone := *entry
	return &clone, true
}

// Run drives the timer loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	sweeper := time.NewTicker(s.sweepEvery)
	defer sweeper.Stop()

	s.logger.Info("scheduler started", zap.Duration("tick", s.tick))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.poll()
		case <-sweeper.C:
			s.sweep()
		}
	}
}

// firing is a due entry captured under the lock and dispatched outside it.
type firing struct {
	entryID string
	oneOff  bool
	n       *domain.Notification
}

func (s *Scheduler) poll() {
	now := s.now()

	s.mu.Lock()
	var due []firing
	for id, entry := range s.entries {
		switch {
		case entry.Kind == domain.ScheduleOnce && entry.Status == domain.ScheduleStatusScheduled:
			if entry.NextRun.After(now) {
				continue
			}
			entry.Status = domain.ScheduleStatusProcessing
			due = append(due, firing{entryID: id, oneOff: true, n: materialize(entry, false)})

		case entry.Kind == domain.ScheduleRecurring && entry.Status == domain.ScheduleStatusActive:
			if entry.EndAt != nil && now.After(*entry.EndAt) {
				entry.Status = domain.ScheduleStatusExpired
				finished := now
				entry.FinishedAt = &finished
				continue
			}
			if entry.NextRun.After(now) {
				continue
			}
			fired := now
			entry.LastRun = &fired
			entry.NextRun = s.crons[id].Next(now)
			due = append(due, firing{entryID: id, oneOff: false, n: materialize(entry, true)})
		}
	}
	s.mu.Unlock()

	for _, f := range due {
		err := s.callback(f.n)

		s.mu.Lock()
		entry, ok := s.entries[f.entryID]
		if ok && f.oneOff {
			finished := s.now()
			entry.FinishedAt = &finished
			entry.LastRun = &finished
			if err != nil {
				entry.Status = domain.ScheduleStatusFailed
			} else {
				entry.Status = domain.ScheduleStatusCompleted
			}
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("schedule dispatch failed",
				zap.String("schedule_id", f.entryID), zap.Error(err))
		}
	}
}

// sweep drops terminal entries older than the retention window.
func (s *Scheduler) sweep() {
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if entry.Status.Terminal() && entry.FinishedAt != nil && entry.FinishedAt.Before(cutoff) {
			delete(s.entries, id)
			delete(s.crons, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("swept terminal schedule entries", zap.Int("removed", removed))
	}
}

// materialize builds the notification handed to the callback. Recurring
// firings get a fresh id so each one forms its own delivery lineage; the
// schedule time is cleared so the dispatch path treats it as immediate.
func materialize(entry *domain.ScheduleEntry, fresh bool) *domain.Notification {
	n := *entry.Notification
	if fresh {
		n.ID = uuid.New().String()
	}
	n.ScheduledAt = nil
	return &n
}
