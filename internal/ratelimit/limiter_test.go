package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	cur   time.Time
	slept []time.Duration
}

func (c *fakeClock) now() time.Time { return c.cur }

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.cur = c.cur.Add(d)
	return nil
}

func newFake(maxCalls int, window time.Duration) (*Limiter, *fakeClock) {
	clk := &fakeClock{cur: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(maxCalls, window)
	l.now = clk.now
	l.sleep = clk.sleep
	return l, clk
}

func TestWait_SleepsExactlyUntilOldestLeavesWindow(t *testing.T) {
	l, clk := newFake(2, time.Second)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	clk.cur = clk.cur.Add(300 * time.Millisecond)
	require.NoError(t, l.Wait(ctx))
	assert.Empty(t, clk.slept)

	clk.cur = clk.cur.Add(100 * time.Millisecond)
	require.NoError(t, l.Wait(ctx))
	// oldest at t0, now t0+400ms: must wait the remaining 600ms exactly.
	require.Len(t, clk.slept, 1)
	assert.Equal(t, 600*time.Millisecond, clk.slept[0])
	assert.Len(t, l.calls, 2)
}

func TestWait_PurgesExpiredEntries(t *testing.T) {
	l, clk := newFake(3, time.Second)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	clk.cur = clk.cur.Add(2 * time.Second)
	require.NoError(t, l.Wait(ctx))
	assert.Empty(t, clk.slept)
	assert.Len(t, l.calls, 1)
}

func TestWait_NeverExceedsMaxCalls(t *testing.T) {
	l, clk := newFake(5, time.Second)
	ctx := context.Background()
	for i := 0; i < 40; i++ {
		require.NoError(t, l.Wait(ctx))
		assert.LessOrEqual(t, len(l.calls), 5)
		clk.cur = clk.cur.Add(time.Duration(i%4) * 50 * time.Millisecond)
	}
	assert.NotEmpty(t, clk.slept)
}

func TestWait_DisabledLimiterNeverSleeps(t *testing.T) {
	l, clk := newFake(0, time.Second)
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Empty(t, clk.slept)
}

func TestWait_HonoursCancellation(t *testing.T) {
	l := New(1, time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.InWindow())
}

func TestWait_ConcurrentCallers(t *testing.T) {
	l := New(5, time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var violations int
	start := time.Now()
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Wait(ctx); err != nil {
				t.Errorf("wait: %v", err)
				return
			}
			if n := l.InWindow(); n > 5 {
				mu.Lock()
				violations++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	assert.Zero(t, violations)
	assert.Less(t, elapsed, 2500*time.Millisecond)
	// the sixth caller cannot be admitted before the first leaves the window
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
}
