package domain

import "errors"

// Sentinel errors used throughout the engine.
// Callers branch with errors.Is; the ops API maps a subset to status codes.
var (
	ErrNotFound             = errors.New("not found")
	ErrMissingUser          = errors.New("notification user id must not be empty")
	ErrMissingContent       = errors.New("notification title and body must not be empty")
	ErrNoChannels           = errors.New("notification must request at least one channel")
	ErrInvalidChannel       = errors.New("invalid channel: must be email, sms, push, or webhook")
	ErrInvalidType          = errors.New("invalid notification type")
	ErrInvalidPriority      = errors.New("invalid priority: must be low, normal, high, urgent, or critical")
	ErrExpiryBeforeSchedule = errors.New("expires_at must be after scheduled_at")
	ErrNotificationExpired  = errors.New("notification has expired")
	ErrInvalidRecipient     = errors.New("recipient is missing or malformed for the channel")
	ErrChannelNotConfigured = errors.New("channel is not initialized")
	ErrInvalidQuietHours    = errors.New("quiet hours require both start and end in HH:MM form")
	ErrQueueFull            = errors.New("delivery queue is at capacity, try again later")
	ErrEngineStopped        = errors.New("delivery engine is not accepting submissions")
	ErrInvalidCronExpr      = errors.New("invalid cron expression")
	ErrScheduleNotFound     = errors.New("schedule not found")
	ErrRenderFailed         = errors.New("template rendering failed")
)
