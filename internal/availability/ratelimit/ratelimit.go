package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time so limiters can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// Limiter allows at most maxCalls calls within any trailing period.
// It keeps a sliding window of call timestamps and is safe for concurrent use;
// concurrent callers are served one at a time.
type Limiter struct {
	mu         sync.Mutex
	maxCalls   int
	period     time.Duration
	clock      Clock
	timestamps []time.Time
}

// New creates a new Limiter. A non-positive maxCalls or period disables limiting.
func New(maxCalls int, period time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		maxCalls: maxCalls,
		period:   period,
		clock:    realClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until one more call fits in the window, then records it.
// The only error is the context's, returned when ctx ends while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.unlimited() {
		return nil
	}

	for {
		now := l.clock.Now()
		l.prune(now)
		if len(l.timestamps) < l.maxCalls {
			break
		}
		wait := l.period - now.Sub(l.timestamps[0])
		if err := l.clock.Sleep(ctx, max(wait, 0)); err != nil {
			return err
		}
	}

	l.timestamps = append(l.timestamps, l.clock.Now())
	return nil
}

// TryAcquire records a call and returns true if one fits in the window right now.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.unlimited() {
		return true
	}

	now := l.clock.Now()
	l.prune(now)
	if len(l.timestamps) >= l.maxCalls {
		return false
	}
	l.timestamps = append(l.timestamps, now)
	return true
}

// last returns the most recent recorded call.
func (l *Limiter) last() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timestamps) == 0 {
		return time.Time{}, false
	}
	return l.timestamps[len(l.timestamps)-1], true
}

func (l *Limiter) unlimited() bool {
	return l.maxCalls <= 0 || l.period <= 0
}

// prune drops timestamps that left the window. Timestamps are recorded in order.
func (l *Limiter) prune(now time.Time) {
	keep := 0
	for keep < len(l.timestamps) && now.Sub(l.timestamps[keep]) >= l.period {
		keep++
	}
	if keep > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[keep:]...)
	}
}

// Keyed rate limits independent keys, such as client IPs, without blocking.
type Keyed struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	maxCalls int
	period   time.Duration
	opts     []Option
	done     chan struct{}
}

// NewKeyed creates a new Keyed limiter that allows maxCalls per period for each key.
func NewKeyed(maxCalls int, period time.Duration, opts ...Option) *Keyed {
	k := &Keyed{
		limiters: make(map[string]*Limiter),
		maxCalls: maxCalls,
		period:   period,
		opts:     opts,
		done:     make(chan struct{}),
	}

	// Start background cleanup
	go k.cleanup()

	return k
}

// Close stops the background cleanup goroutine.
func (k *Keyed) Close() {
	close(k.done)
}

// Allow checks if a request for the given key is allowed.
func (k *Keyed) Allow(key string) bool {
	if k.maxCalls <= 0 {
		return false
	}

	k.mu.Lock()
	l, ok := k.limiters[key]
	if !ok {
		l = New(k.maxCalls, k.period, k.opts...)
		k.limiters[key] = l
	}
	k.mu.Unlock()

	return l.TryAcquire()
}

// cleanup periodically removes limiters idle for longer than two periods.
func (k *Keyed) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.sweep(time.Now())
		case <-k.done:
			return
		}
	}
}

func (k *Keyed) sweep(now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, l := range k.limiters {
		if last, ok := l.last(); !ok || now.Sub(last) > 2*k.period {
			delete(k.limiters, key)
		}
	}
}
