package domain

import "time"

// ScheduleKind distinguishes one-off from recurring entries.
type ScheduleKind string

const (
	ScheduleOnce      ScheduleKind = "once"
	ScheduleRecurring ScheduleKind = "recurring"
)

// ScheduleStatus covers both entry kinds.
// One-off: scheduled → processing → completed | failed, or cancelled.
// Recurring: active → expired | cancelled | failed.
type ScheduleStatus string

const (
	ScheduleStatusScheduled  ScheduleStatus = "scheduled"
	ScheduleStatusProcessing ScheduleStatus = "processing"
	ScheduleStatusCompleted  ScheduleStatus = "completed"
	ScheduleStatusFailed     ScheduleStatus = "failed"
	ScheduleStatusCancelled  ScheduleStatus = "cancelled"
	ScheduleStatusActive     ScheduleStatus = "active"
	ScheduleStatusExpired    ScheduleStatus = "expired"
)

// Terminal reports whether the entry will never fire again.
func (s ScheduleStatus) Terminal() bool {
	switch s {
	case ScheduleStatusCompleted, ScheduleStatusFailed, ScheduleStatusCancelled, ScheduleStatusExpired:
		return true
	}
	return false
}

// ScheduleEntry is a one-off or recurring future-dispatch registration.
type ScheduleEntry struct {
	ID           string         `json:"id"`
	Kind         ScheduleKind   `json:"kind"`
	Notification *Notification  `json:"notification"`
	RunAt        time.Time      `json:"run_at,omitempty"`    // one-off
	CronExpr     string         `json:"cron_expr,omitempty"` // recurring
	StartAt      *time.Time     `json:"start_at,omitempty"`  // recurring window
	EndAt        *time.Time     `json:"end_at,omitempty"`
	Status       ScheduleStatus `json:"status"`
	NextRun      time.Time      `json:"next_run"`
	LastRun      *time.Time     `json:"last_run,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
