package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_SleepAdvancesTime(t *testing.T) {
	// Given a fake clock at a fixed start
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	// When sleeping twice
	require.NoError(t, fake.Sleep(context.Background(), 2*time.Second))
	require.NoError(t, fake.Sleep(context.Background(), 500*time.Millisecond))

	// Then the clock moved forward and both sleeps were recorded
	assert.Equal(t, start.Add(2500*time.Millisecond), fake.Now())
	assert.Equal(t, []time.Duration{2 * time.Second, 500 * time.Millisecond}, fake.Sleeps())
	assert.Equal(t, 2500*time.Millisecond, fake.TotalSlept())
}

func TestFake_SleepHonorsCancelledContext(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fake.Sleep(ctx, time.Second)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.Sleeps())
}

func TestFake_AdvanceNegativePanics(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	assert.Panics(t, func() { fake.Advance(-time.Second) })
}

func TestReal_SleepReturnsOnCancel(t *testing.T) {
	// Given a context cancelled shortly after the sleep starts
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// When sleeping much longer than the deadline
	start := time.Now()
	err := NewReal().Sleep(ctx, 5*time.Second)

	// Then the sleep is cut short
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
