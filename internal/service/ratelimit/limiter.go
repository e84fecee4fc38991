package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time so tests can advance it without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// epsilon absorbs float rounding when fractional refills add up to one token.
const epsilon = 1e-9

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
}

// Limiter is a single provider-wide gate: a token bucket of capacity one
// refilled once per interval, so consecutive grants are at least interval apart.
type Limiter struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	b        *bucket
}

type Option func(*Limiter)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// New creates a gate granting one request per interval. A zero interval disables limiting.
func New(interval time.Duration, opts ...Option) *Limiter {
	l := &Limiter{clock: SystemClock{}, interval: interval}
	for _, opt := range opts {
		opt(l)
	}
	if interval > 0 {
		l.b = &bucket{
			tokens:     1,
			capacity:   1,
			refillRate: 1 / interval.Seconds(),
			last:       l.clock.Now(),
		}
	}
	return l
}

// Interval returns the minimum spacing between grants.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Allow returns true if a token was consumed without waiting.
func (l *Limiter) Allow() bool {
	return l.reserve() == 0
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		d := l.reserve()
		if d == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(d):
		}
	}
}

// reserve consumes a token and returns 0, or returns how long until one is due.
func (l *Limiter) reserve() time.Duration {
	if l.b == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.b.refill(l.clock.Now())
	if l.b.tokens+epsilon >= 1 {
		l.b.tokens -= 1
		if l.b.tokens < 0 {
			l.b.tokens = 0
		}
		return 0
	}
	missing := 1 - l.b.tokens
	d := time.Duration(missing / l.b.refillRate * float64(time.Second))
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}
