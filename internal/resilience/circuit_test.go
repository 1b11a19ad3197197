package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/resilience"
)

func TestBreakerOpensOnFailureRatio(t *testing.T) {
	ctx := context.Background()
	b := resilience.NewBreaker(4, 0.5, 50*time.Millisecond).WithTarget("gateway")

	b.Report(ctx, true)
	b.Report(ctx, false)
	b.Report(ctx, false)
	require.True(t, b.Allow(ctx))

	b.Report(ctx, false)
	assert.False(t, b.Allow(ctx))
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	ctx := context.Background()
	b := resilience.NewBreaker(1, 0.5, 10*time.Millisecond)

	b.Report(ctx, false)
	require.False(t, b.Allow(ctx))

	time.Sleep(15 * time.Millisecond)
	require.True(t, b.Allow(ctx))

	b.Report(ctx, true)
	assert.True(t, b.Allow(ctx))
}

func TestBreakerHalfOpenReopensOnFailure(t *testing.T) {
	ctx := context.Background()
	b := resilience.NewBreaker(1, 0.5, 10*time.Millisecond)

	b.Report(ctx, false)
	time.Sleep(15 * time.Millisecond)
	require.True(t, b.Allow(ctx))

	b.Report(ctx, false)
	assert.False(t, b.Allow(ctx))
}

func TestBackoffGrowsExponentially(t *testing.T) {
	first := resilience.Backoff(100*time.Millisecond, 1, 0)
	third := resilience.Backoff(100*time.Millisecond, 3, 0)
	assert.Equal(t, 100*time.Millisecond, first)
	assert.Equal(t, 400*time.Millisecond, third)
}
