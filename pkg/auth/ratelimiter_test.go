package auth

import (
	"testing"

	"github.com/cuemby/meshcore/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsUnderBudget(t *testing.T) {
	l := NewRateLimiter()
	result := l.Check("key-1", types.TierFree)
	require.True(t, result.Allowed)
}

func TestRateLimiterBlocksOverPerMinuteBudget(t *testing.T) {
	l := NewRateLimiter()
	limit := limitsByTier[types.TierFree].PerMinute

	// Fired back-to-back, the burst guard trips before the minute window
	// itself would, so either window is a legitimate rejection reason.
	var last *RateLimitResult
	for i := 0; i < limit+1; i++ {
		last = l.Check("key-2", types.TierFree)
	}
	require.False(t, last.Allowed)
	require.Contains(t, []string{"second", "minute"}, last.ExceededWindow)
	require.Positive(t, last.RetryAfter)
}

func TestRateLimiterBurstGuardTripsBeforeMinuteWindow(t *testing.T) {
	l := NewRateLimiter()
	limits := limitsByTier[types.TierFree]
	burst := limits.PerMinute / 6

	var last *RateLimitResult
	for i := 0; i < burst+1; i++ {
		last = l.Check("key-burst", types.TierFree)
	}
	require.False(t, last.Allowed)
	require.Equal(t, "second", last.ExceededWindow)
}

func TestRateLimiterTracksKeysIndependently(t *testing.T) {
	l := NewRateLimiter()
	burst := limitsByTier[types.TierFree].PerMinute / 6

	for i := 0; i < burst; i++ {
		require.True(t, l.Check("key-a", types.TierFree).Allowed)
	}
	require.False(t, l.Check("key-a", types.TierFree).Allowed)
	// key-a is now exhausted, key-b should be unaffected.
	require.True(t, l.Check("key-b", types.TierFree).Allowed)
}

func TestRateLimiterHigherTierGetsHigherBudget(t *testing.T) {
	l := NewRateLimiter()
	freeLimit := limitsByTier[types.TierFree].PerMinute
	for i := 0; i < freeLimit; i++ {
		l.Check("enterprise-key", types.TierEnterprise)
	}
	// An enterprise key should still be allowed past the free tier's budget.
	require.True(t, l.Check("enterprise-key", types.TierEnterprise).Allowed)
}
