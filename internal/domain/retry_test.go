package domain_test

import (
	"testing"
	"time"

	"github.com/notifyhub/notification-engine/internal/domain"
)

func TestRetryPolicy_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		in       domain.RetryPolicy
		expected domain.RetryPolicy
	}{
		{
			"zero fields take defaults",
			domain.RetryPolicy{},
			domain.RetryPolicy{MaxRetries: 0, RetryDelaySeconds: 60, BackoffMultiplier: 2.0, MaxDelaySeconds: 3600},
		},
		{
			"negative max retries takes default",
			domain.RetryPolicy{MaxRetries: -1, RetryDelaySeconds: 30, BackoffMultiplier: 1.5, MaxDelaySeconds: 600},
			domain.RetryPolicy{MaxRetries: 3, RetryDelaySeconds: 30, BackoffMultiplier: 1.5, MaxDelaySeconds: 600},
		},
		{
			"everything above range clamps down",
			domain.RetryPolicy{MaxRetries: 50, RetryDelaySeconds: 9999, BackoffMultiplier: 100, MaxDelaySeconds: 999999},
			domain.RetryPolicy{MaxRetries: 10, RetryDelaySeconds: 3600, BackoffMultiplier: 10.0, MaxDelaySeconds: 86400},
		},
		{
			"everything below range clamps up",
			domain.RetryPolicy{MaxRetries: 2, RetryDelaySeconds: -5, BackoffMultiplier: 0.1, MaxDelaySeconds: 10},
			domain.RetryPolicy{MaxRetries: 2, RetryDelaySeconds: 1, BackoffMultiplier: 1.0, MaxDelaySeconds: 60},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.in
			p.Normalize()
			if p != tc.expected {
				t.Fatalf("expected %+v, got %+v", tc.expected, p)
			}
		})
	}
}

func TestRetryPolicy_DelayFor(t *testing.T) {
	p := &domain.RetryPolicy{
		MaxRetries:        5,
		RetryDelaySeconds: 60,
		BackoffMultiplier: 2.0,
		MaxDelaySeconds:   300,
	}

	expected := []time.Duration{
		60 * time.Second,  // 60 * 2^0
		120 * time.Second, // 60 * 2^1
		240 * time.Second, // 60 * 2^2
		300 * time.Second, // 480 capped at max
		300 * time.Second,
	}
	for i, want := range expected {
		if got := p.DelayFor(i); got != want {
			t.Fatalf("attempt %d: expected %v, got %v", i, want, got)
		}
	}

	if got := p.DelayFor(-3); got != 60*time.Second {
		t.Fatalf("negative attempt: expected base delay, got %v", got)
	}
}
