package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// retryItem is a delivery attempt waiting out its backoff delay.
type retryItem struct {
	job    job
	record *domain.DeliveryRecord
	dueAt  time.Time
}

// retryQueue is a bounded, mutex-guarded holding area for retry items.
// The single retry consumer drains due items on each poll tick, so no
// ordering structure beyond a slice is needed.
type retryQueue struct {
	mu       sync.Mutex
	items    []retryItem
	capacity int
}

func newRetryQueue(capacity int) *retryQueue {
	return &retryQueue{capacity: capacity}
}

func (q *retryQueue) Push(it retryItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return domain.ErrQueueFull
	}
	q.items = append(q.items, it)
	return nil
}

// popDue removes and returns every item whose dueAt has passed.
func (q *retryQueue) popDue(now time.Time) []retryItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []retryItem
	remaining := q.items[:0]
	for _, it := range q.items {
		if !it.dueAt.After(now) {
			due = append(due, it)
		} else {
			remaining = append(remaining, it)
		}
	}
	q.items = remaining
	return due
}

func (q *retryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// retryLoop is the engine's single retry consumer. Exactly one goroutine
// runs it, which keeps per-(notification, channel) attempts strictly
// ordered: a retry cannot start before the attempt that scheduled it has
// finished and its delay elapsed.
func (e *Engine) retryLoop(ctx context.Context) {
	log := e.logger.With(zap.String("component", "retry_consumer"))
	log.Info("retry consumer started", zap.Duration("poll_interval", e.cfg.RetryPollInterval))

	ticker := time.NewTicker(e.cfg.RetryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("retry consumer stopping")
			return
		case now := <-ticker.C:
			for _, it := range e.retries.popDue(now.UTC()) {
				e.mu.Lock()
				if it.record.Status != domain.StatusRetrying {
					// Cancelled or otherwise settled while waiting.
					e.mu.Unlock()
					continue
				}
				it.record.RetryCount++
				it.record.Status = domain.StatusPending
				e.mu.Unlock()

				e.attempt(it.job, it.record, log)
			}
		}
	}
}
