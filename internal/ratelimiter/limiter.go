package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// Limits configures the three independent counter families.
// User and type counters roll over an hour; channel counters over a minute.
type Limits struct {
	UserPerHour      int
	TypePerHour      int
	ChannelPerMinute int
}

// DefaultLimits are applied for any field left at zero.
var DefaultLimits = Limits{
	UserPerHour:      100,
	TypePerHour:      500,
	ChannelPerMinute: 60,
}

type keyedLimiter struct {
	lim *rate.Limiter
	max int
}

// Limiter enforces per-user, per-type, and per-channel sending ceilings with
// lazily created token buckets. Burst equals the window maximum so nothing
// "saved up" can exceed the configured ceiling, and the steady refill rate
// spreads the maximum across the window.
type Limiter struct {
	mu       sync.Mutex
	users    map[string]*keyedLimiter
	types    map[string]*keyedLimiter
	channels map[string]*keyedLimiter
	limits   Limits
}

func New(limits Limits) *Limiter {
	if limits.UserPerHour <= 0 {
		limits.UserPerHour = DefaultLimits.UserPerHour
	}
	if limits.TypePerHour <= 0 {
		limits.TypePerHour = DefaultLimits.TypePerHour
	}
	if limits.ChannelPerMinute <= 0 {
		limits.ChannelPerMinute = DefaultLimits.ChannelPerMinute
	}
	return &Limiter{
		users:    make(map[string]*keyedLimiter),
		types:    make(map[string]*keyedLimiter),
		channels: make(map[string]*keyedLimiter),
		limits:   limits,
	}
}

// Allow checks every applicable counter for the notification: the user
// counter (preference hourly cap overrides the default when set), the type
// counter, and one channel counter per requested channel. All tokens are
// taken in one pass; a single exhausted counter rejects the whole cycle.
func (l *Limiter) Allow(n *domain.Notification, channels []domain.Channel, userMaxPerHour int) bool {
	max := l.limits.UserPerHour
	if userMaxPerHour > 0 {
		max = userMaxPerHour
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ok := l.take(l.users, "user:"+n.UserID, max, time.Hour)
	ok = l.take(l.types, "type:"+string(n.Type), l.limits.TypePerHour, time.Hour) && ok
	for _, ch := range channels {
		ok = l.take(l.channels, "channel:"+string(ch), l.limits.ChannelPerMinute, time.Minute) && ok
	}
	return ok
}

// take consumes one token from the keyed bucket, creating or resizing the
// bucket as needed. Caller holds l.mu.
func (l *Limiter) take(family map[string]*keyedLimiter, key string, max int, window time.Duration) bool {
	kl, ok := family[key]
	if !ok || kl.max != max {
		kl = &keyedLimiter{
			lim: rate.NewLimiter(rate.Limit(float64(max)/window.Seconds()), max),
			max: max,
		}
		family[key] = kl
	}
	return kl.lim.Allow()
}
