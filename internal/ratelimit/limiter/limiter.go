// Package limiter implements the sliding-window admission limiter that guards
// one stream of chat operations.
//
// A Limiter admits at most MaxRequests events whose timestamps fall inside any
// trailing Window. Expiry is computed lazily on each call; there is no
// background timer, so an idle limiter keeps its stale timestamps until the
// next query purges them.
//
// Usage:
//
//	lim, err := limiter.New(30, time.Minute)
//	if err != nil {
//	    return err
//	}
//	if !lim.CanMakeRequest() {
//	    wait := lim.TimeUntilReset()
//	    ...
//	}
package limiter

import (
	"sync"
	"time"

	"petchat/internal/ratelimit/models"
	dErrors "petchat/pkg/domain-errors"
	"petchat/pkg/platform/clock"
)

// Limiter is a sliding-window log limiter. Safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	clock       clock.Clock

	// requests holds admitted timestamps in insertion order. Order by value
	// is not guaranteed once the clock has been adjusted backwards.
	requests []time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

// New creates a limiter admitting maxRequests per window.
// Non-positive arguments are rejected with an invalid_input error.
func New(maxRequests int, window time.Duration, opts ...Option) (*Limiter, error) {
	if maxRequests <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "maxRequests must be positive")
	}
	if window <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "window must be positive")
	}

	l := &Limiter{
		maxRequests: maxRequests,
		window:      window,
		clock:       clock.System,
		requests:    make([]time.Time, 0, maxRequests),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CanMakeRequest admits and records one request if quota remains.
// A denied call leaves the recorded state untouched apart from the purge.
func (l *Limiter) CanMakeRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.purge(now)

	if len(l.requests) >= l.maxRequests {
		return false
	}
	l.requests = append(l.requests, now)
	return true
}

// RemainingRequests reports how many more requests would be admitted now.
// It purges expired timestamps but never consumes quota.
func (l *Limiter) RemainingRequests() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.purge(l.clock.Now())
	return l.remaining()
}

// TimeUntilReset is the time until the oldest live request leaves the window
// and frees one slot. It is zero when nothing is recorded.
func (l *Limiter) TimeUntilReset() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.purge(now)
	return l.untilReset(now)
}

// Release gives back the slot taken by the most recent admission, for callers
// whose admitted operation never went out. It is a no-op when nothing is
// recorded.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.requests); n > 0 {
		l.requests[n-1] = time.Time{}
		l.requests = l.requests[:n-1]
	}
}

// Reset forgets every recorded request. Limits are unchanged.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = l.requests[:0]
}

// Snapshot returns limit, remaining quota and time until reset from a single
// purge so the three values agree with each other.
func (l *Limiter) Snapshot() models.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.purge(now)
	return models.Status{
		Limit:      l.maxRequests,
		Window:     l.window,
		Remaining:  l.remaining(),
		RetryAfter: l.untilReset(now),
	}
}

func (l *Limiter) MaxRequests() int { return l.maxRequests }

func (l *Limiter) Window() time.Duration { return l.window }

// purge keeps only timestamps with now-ts < window. A timestamp exactly one
// window old is expired. Every element is inspected since insertion order may
// not be value order.
func (l *Limiter) purge(now time.Time) {
	kept := l.requests[:0]
	for _, ts := range l.requests {
		if now.Sub(ts) < l.window {
			kept = append(kept, ts)
		}
	}
	clear(l.requests[len(kept):])
	l.requests = kept
}

func (l *Limiter) remaining() int {
	return max(0, l.maxRequests-len(l.requests))
}

func (l *Limiter) untilReset(now time.Time) time.Duration {
	if len(l.requests) == 0 {
		return 0
	}
	oldest := l.requests[0]
	for _, ts := range l.requests[1:] {
		if ts.Before(oldest) {
			oldest = ts
		}
	}
	return max(0, oldest.Add(l.window).Sub(now))
}
