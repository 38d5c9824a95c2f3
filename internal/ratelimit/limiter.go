package ratelimit

import (
	"context"
	"time"

	"BasketPilot/internal/metrics"
)

// Limiter is a sliding-window call throttle: at most MaxCalls admissions in
// any trailing Window. It is shared by every caller that talks to the
// exchange and is safe for concurrent use.
type Limiter struct {
	maxCalls int
	window   time.Duration

	// sem is a one-slot lock that can be abandoned on context cancellation.
	sem   chan struct{}
	calls []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a limiter. A non-positive maxCalls or window disables throttling.
func New(maxCalls int, window time.Duration) *Limiter {
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		sem:      make(chan struct{}, 1),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait blocks until one more call fits in the window, records it and
// returns. Admission decisions are serialized; the caller's own request runs
// after Wait returns, outside the lock. The only error is ctx's.
func (l *Limiter) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.sem }()

	if l.maxCalls <= 0 || l.window <= 0 {
		l.calls = append(l.calls[:0], l.now())
		return nil
	}

	now := l.now()
	l.purge(now)
	if len(l.calls) >= l.maxCalls {
		wait := l.calls[0].Add(l.window).Sub(now)
		if wait > 0 {
			metrics.RateLimitWait.Observe(wait.Seconds())
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
		now = l.now()
		l.purge(now)
	}
	l.calls = append(l.calls, now)
	return nil
}

// InWindow returns how many recorded calls fall inside the trailing window.
func (l *Limiter) InWindow() int {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	l.purge(l.now())
	return len(l.calls)
}

// purge drops timestamps that left the window. Caller holds sem.
func (l *Limiter) purge(now time.Time) {
	threshold := now.Add(-l.window)
	trimmed := l.calls[:0]
	for _, ts := range l.calls {
		if ts.After(threshold) {
			trimmed = append(trimmed, ts)
		}
	}
	l.calls = trimmed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
