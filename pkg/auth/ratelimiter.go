package auth

import (
	"sync"
	"time"

	"github.com/cuemby/meshcore/pkg/types"
	"golang.org/x/time/rate"
)

// TierLimits is the minute/hour/day request budget for one subscription
// tier.
type TierLimits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

var limitsByTier = map[types.SubscriptionTier]TierLimits{
	types.TierFree:       {PerMinute: 30, PerHour: 500, PerDay: 5_000},
	types.TierDeveloper:  {PerMinute: 60, PerHour: 1_000, PerDay: 10_000},
	types.TierBusiness:   {PerMinute: 300, PerHour: 10_000, PerDay: 100_000},
	types.TierEnterprise: {PerMinute: 600, PerHour: 25_000, PerDay: 250_000},
}

type window struct {
	count int
	start time.Time
}

type entry struct {
	minute, hour, day window
	burst *rate.Limiter
}

// burstLimiterFor builds the token-bucket guard sitting in front of a
// tier's minute/hour/day windows: it smooths out a caller firing its
// entire per-minute budget in a single instant, independent of whether
// the minute window itself still has room left. Refill rate is the
// tier's average per-second allowance; burst capacity is ten seconds of
// that allowance, floored at 1.
func burstLimiterFor(limits TierLimits) *rate.Limiter {
	perSecond := float64(limits.PerMinute) / 60
	burst := limits.PerMinute / 6
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// RateLimitResult is the outcome of a single Check call, carrying enough
// detail to populate Retry-After and X-RateLimit-* response headers.
type RateLimitResult struct {
	Allowed        bool
	Limit          int
	Remaining      int
	RetryAfter     time.Duration
	ExceededWindow string // "second", "minute", "hour", or "day"
}

// RateLimiter tracks a per-second burst bucket plus minute/hour/day
// sliding windows per API key ID.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRateLimiter constructs an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{entries: make(map[string]*entry)}
}

// Check records one request against keyID's budget for tier: a
// token-bucket burst guard first, then the minute/hour/day sliding
// windows (reset as each elapses), and reports whether the request is
// allowed.
func (l *RateLimiter) Check(keyID string, tier types.SubscriptionTier) *RateLimitResult {
	limits, ok := limitsByTier[tier]
	if !ok {
		limits = limitsByTier[types.TierFree]
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[keyID]
	if !ok {
		now := time.Now()
		e = &entry{
			minute: window{start: now},
			hour:   window{start: now},
			day:    window{start: now},
			burst:  burstLimiterFor(limits),
		}
		l.entries[keyID] = e
	}

	now := time.Now()
	resetIfElapsed(&e.minute, now, time.Minute)
	resetIfElapsed(&e.hour, now, time.Hour)
	resetIfElapsed(&e.day, now, 24*time.Hour)

	if rsv := e.burst.ReserveN(now, 1); !rsv.OK() {
		return exceeded("second", limits.PerMinute, time.Second)
	} else if delay := rsv.DelayFrom(now); delay > 0 {
		rsv.CancelAt(now)
		return exceeded("second", limits.PerMinute, delay)
	}

	if e.minute.count >= limits.PerMinute {
		return exceeded("minute", limits.PerMinute, time.Minute-now.Sub(e.minute.start))
	}
	if e.hour.count >= limits.PerHour {
		return exceeded("hour", limits.PerHour, time.Hour-now.Sub(e.hour.start))
	}
	if e.day.count >= limits.PerDay {
		return exceeded("day", limits.PerDay, 24*time.Hour-now.Sub(e.day.start))
	}

	e.minute.count++
	e.hour.count++
	e.day.count++

	return &RateLimitResult{
		Allowed:   true,
		Limit:     limits.PerMinute,
		Remaining: limits.PerMinute - e.minute.count,
	}
}

func resetIfElapsed(w *window, now time.Time, period time.Duration) {
	if now.Sub(w.start) > period {
		w.count = 0
		w.start = now
	}
}

func exceeded(windowName string, limit int, retryAfter time.Duration) *RateLimitResult {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &RateLimitResult{
		Allowed:        false,
		Limit:          limit,
		Remaining:      0,
		RetryAfter:     retryAfter,
		ExceededWindow: windowName,
	}
}
