package domain

import (
	"math"
	"time"
)

// RetryPolicy bounds retry count and backoff shape per notification.
// A nil policy on a Notification means failures are terminal immediately.
type RetryPolicy struct {
	MaxRetries        int     `json:"max_retries"`
	RetryDelaySeconds int     `json:"retry_delay_seconds"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	MaxDelaySeconds   int     `json:"max_delay_seconds"`
}

// DefaultRetryPolicy returns the policy applied when a caller supplies an
// empty one.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:        3,
		RetryDelaySeconds: 60,
		BackoffMultiplier: 2.0,
		MaxDelaySeconds:   3600,
	}
}

// Normalize clamps every field to its documented range. Zero values are
// treated as "use the default" rather than clamped to the minimum.
func (p *RetryPolicy) Normalize() {
	def := DefaultRetryPolicy()
	if p.MaxRetries == 0 {
		// zero is a legal value (no retries); leave it alone
	} else if p.MaxRetries < 0 {
		p.MaxRetries = def.MaxRetries
	} else if p.MaxRetries > 10 {
		p.MaxRetries = 10
	}
	switch {
	case p.RetryDelaySeconds == 0:
		p.RetryDelaySeconds = def.RetryDelaySeconds
	case p.RetryDelaySeconds < 1:
		p.RetryDelaySeconds = 1
	case p.RetryDelaySeconds > 3600:
		p.RetryDelaySeconds = 3600
	}
	switch {
	case p.BackoffMultiplier == 0:
		p.BackoffMultiplier = def.BackoffMultiplier
	case p.BackoffMultiplier < 1.0:
		p.BackoffMultiplier = 1.0
	case p.BackoffMultiplier > 10.0:
		p.BackoffMultiplier = 10.0
	}
	switch {
	case p.MaxDelaySeconds == 0:
		p.MaxDelaySeconds = def.MaxDelaySeconds
	case p.MaxDelaySeconds < 60:
		p.MaxDelaySeconds = 60
	case p.MaxDelaySeconds > 86400:
		p.MaxDelaySeconds = 86400
	}
}

// DelayFor computes the backoff before retry attempt k (0-indexed):
// min(retryDelay * multiplier^k, maxDelay).
func (p *RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	secs := float64(p.RetryDelaySeconds) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if max := float64(p.MaxDelaySeconds); secs > max {
		secs = max
	}
	return time.Duration(secs * float64(time.Second))
}
