package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// worker continuously pulls jobs from the submission queue until ctx is
// cancelled. Per-channel attempts for one job run sequentially inside a
// single worker; ordering across jobs is unspecified.
func (e *Engine) worker(ctx context.Context, id int) {
	log := e.logger.With(zap.Int("worker_id", id))
	log.Info("delivery worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info("delivery worker stopping")
			return
		case j := <-e.jobs:
			e.process(j, log)
		}
	}
}

func (e *Engine) process(j job, log *zap.Logger) {
	n := j.notification
	log = log.With(
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("type", string(n.Type)),
	)

	if err := n.Validate(); err != nil {
		log.Warn("invalid notification reached the queue", zap.Error(err))
		for _, rec := range j.records {
			e.markFailed(rec, err.Error(), time.Now().UTC())
		}
		return
	}

	now := time.Now().UTC()
	if n.Expired(now) {
		// Expired notifications are discarded and reported, never retried.
		log.Warn("discarding expired notification", zap.Timep("expires_at", n.ExpiresAt))
		for _, rec := range j.records {
			e.markFailed(rec, domain.ErrNotificationExpired.Error(), now)
		}
		e.hooks.OnExpired(n)
		return
	}

	channels := make([]domain.Channel, len(j.records))
	for i, rec := range j.records {
		channels[i] = rec.Channel
	}
	if !e.limiter.Allow(n, channels, j.userMaxHour) {
		// Dropped for this cycle: not a failure, not queued for retry.
		log.Info("notification rate limited")
		e.hooks.OnRateLimited(n)
		return
	}

	for _, rec := range j.records {
		e.attempt(j, rec, log)
	}
}

// attempt runs one delivery attempt for a (notification, channel) record and
// advances its state machine. Failed attempts with retry budget left move to
// retrying and join the retry queue; everything else settles terminally.
func (e *Engine) attempt(j job, rec *domain.DeliveryRecord, log *zap.Logger) {
	n := j.notification
	log = log.With(zap.String("channel", string(rec.Channel)), zap.String("record_id", rec.ID))

	e.mu.Lock()
	if rec.Status.Terminal() {
		// Cancelled (or already delivered) between enqueue and processing.
		e.mu.Unlock()
		log.Debug("skipping terminal record")
		return
	}
	start := time.Now().UTC()
	rec.Attempts = append(rec.Attempts, start)
	if rec.SentAt == nil {
		rec.SentAt = &start
	}
	e.mu.Unlock()

	ch, ok := e.registry.Get(rec.Channel)
	if !ok {
		e.markFailed(rec, domain.ErrChannelNotConfigured.Error(), time.Now().UTC())
		e.hooks.OnFailed(n, rec.Channel, domain.ErrChannelNotConfigured.Error())
		log.Error("no implementation registered for channel")
		return
	}

	// The send runs to completion or timeout even during shutdown, so the
	// timeout context is detached from the worker context.
	sendCtx, cancel := context.WithTimeout(context.Background(), e.cfg.SendTimeout)
	res, err := ch.Send(sendCtx, n, j.preference)
	cancel()
	elapsed := time.Since(start)

	if err == nil {
		e.mu.Lock()
		rec.Status = domain.StatusDelivered
		deliveredAt := res.DeliveredAt
		if deliveredAt.IsZero() {
			deliveredAt = time.Now().UTC()
		}
		rec.DeliveredAt = &deliveredAt
		rec.NextRetryAt = nil
		if res.MessageID != "" {
			if rec.Metadata == nil {
				rec.Metadata = make(map[string]string, 1)
			}
			rec.Metadata["message_id"] = res.MessageID
		}
		e.mu.Unlock()

		e.persist(rec)
		e.hooks.OnDelivered(n, rec.Channel, elapsed)
		log.Info("notification delivered",
			zap.String("message_id", res.MessageID),
			zap.Duration("latency", elapsed),
		)
		return
	}

	log.Warn("channel send failed", zap.Error(err), zap.Int("retry_count", rec.RetryCount))
	e.handleFailure(j, rec, err, log)
}

// handleFailure either schedules a retry (budget and policy permitting) or
// settles the record as permanently failed. Configuration errors are never
// retried: retrying cannot fix a missing recipient or an uninitialized
// channel.
func (e *Engine) handleFailure(j job, rec *domain.DeliveryRecord, sendErr error, log *zap.Logger) {
	now := time.Now().UTC()
	configErr := errors.Is(sendErr, domain.ErrChannelNotConfigured) ||
		errors.Is(sendErr, domain.ErrInvalidRecipient)

	if configErr || !e.shouldRetry(j.notification, rec, now) {
		e.markFailed(rec, sendErr.Error(), now)
		e.hooks.OnFailed(j.notification, rec.Channel, sendErr.Error())
		return
	}

	delay := j.notification.RetryPolicy.DelayFor(rec.RetryCount)
	due := now.Add(delay)

	e.mu.Lock()
	rec.Status = domain.StatusRetrying
	rec.ErrorMessage = sendErr.Error()
	rec.FailedAt = &now
	rec.NextRetryAt = &due
	e.mu.Unlock()

	if err := e.retries.Push(retryItem{job: j, record: rec, dueAt: due}); err != nil {
		log.Error("retry queue full, settling record as failed")
		e.markFailed(rec, sendErr.Error(), now)
		e.hooks.OnFailed(j.notification, rec.Channel, sendErr.Error())
		return
	}

	e.persist(rec)
	log.Info("retry scheduled", zap.Duration("delay", delay), zap.Time("due_at", due))
}

// shouldRetry holds when a retry policy exists, the retry budget is not
// exhausted, and the minimum inter-attempt delay has elapsed since the last
// scheduled attempt.
func (e *Engine) shouldRetry(n *domain.Notification, rec *domain.DeliveryRecord, now time.Time) bool {
	p := n.RetryPolicy
	if p == nil {
		return false
	}
	if rec.RetryCount >= p.MaxRetries {
		return false
	}
	if rec.NextRetryAt != nil && now.Before(*rec.NextRetryAt) {
		return false
	}
	return true
}

func (e *Engine) markFailed(rec *domain.DeliveryRecord, errMsg string, at time.Time) {
	e.mu.Lock()
	rec.Status = domain.StatusFailed
	rec.ErrorMessage = errMsg
	rec.FailedAt = &at
	rec.NextRetryAt = nil
	e.mu.Unlock()
	e.persist(rec)
}

// persist mirrors the record's current state to the history store.
func (e *Engine) persist(rec *domain.DeliveryRecord) {
	if e.store == nil {
		return
	}
	e.mu.RLock()
	clone := cloneRecord(rec)
	e.mu.RUnlock()
	if err := e.store.SaveHistory(context.Background(), clone); err != nil {
		e.logger.Warn("failed to persist delivery record",
			zap.String("record_id", rec.ID), zap.Error(err))
	}
}
