package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordSleeps(p *RatePacer) *[]time.Duration {
	var got []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		got = append(got, d)
		return nil
	}
	return &got
}

func TestRatePacerJitterIsSeeded(t *testing.T) {
	a := NewRatePacer(0, 1, 50*time.Millisecond, 7)
	b := NewRatePacer(0, 1, 50*time.Millisecond, 7)
	sa, sb := recordSleeps(a), recordSleeps(b)

	for i := 0; i < 10; i++ {
		require.NoError(t, a.Wait(context.Background()))
		require.NoError(t, b.Wait(context.Background()))
	}

	assert.Equal(t, *sa, *sb)
	for _, d := range *sa {
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 50*time.Millisecond)
	}
}

func TestRatePacerNoJitter(t *testing.T) {
	p := NewRatePacer(0, 1, 0, 1)
	sleeps := recordSleeps(p)

	require.NoError(t, p.Wait(context.Background()))
	assert.Empty(t, *sleeps)
}

func TestRatePacerLimits(t *testing.T) {
	p := NewRatePacer(20, 1, 0, 1)
	start := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}

	// Burst of one, then two more tokens at 50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRatePacerHonoursCancellation(t *testing.T) {
	p := NewRatePacer(0.001, 1, 0, 1)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.Wait(ctx))
}

func TestNoPacer(t *testing.T) {
	assert.NoError(t, NoPacer{}.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NoPacer{}.Wait(ctx))
}
