package resilience

import (
	"context"
	"sync"
	"time"
)

// LimiterOpts configures the token bucket rate limiter.
type LimiterOpts struct {
	// Rate is the number of tokens added per second.
	Rate float64
	// Burst is the bucket capacity.
	Burst int
}

// Limiter is a token bucket. A bucket with Burst 1 and Rate 1/interval
// paces successive calls: the first passes immediately, each following
// call waits out the remaining interval.
type Limiter struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	stamp  time.Time
	now    func() time.Time
}

// NewLimiter creates a full token bucket.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Limiter{
		rate:   opts.Rate,
		burst:  float64(opts.Burst),
		tokens: float64(opts.Burst),
		now:    time.Now,
	}
}

// Allow takes a token if one is available, without blocking.
func (l *Limiter) Allow() bool {
	return l.reserve() == 0
}

// reserve takes a token and returns 0, or returns how long until one
// would be available.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now()
	if !l.stamp.IsZero() {
		l.tokens += t.Sub(l.stamp).Seconds() * l.rate
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
	}
	l.stamp = t

	if l.tokens >= 1 {
		l.tokens--
		return 0
	}
	return time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
}

// Wait blocks until a token is taken or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		d := l.reserve()
		if d == 0 {
			return nil
		}
		if d < time.Millisecond {
			d = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}

// CallWait waits for a token then runs f.
func (l *Limiter) CallWait(ctx context.Context, f func(context.Context) error) error {
	if err := l.Wait(ctx); err != nil {
		return err
	}
	return f(ctx)
}
