// Package governor provides the per-key rate and concurrency budgets that
// gate every candidate-facing operation: a sliding-window counter, a
// minimum-interval throttle, and a bounded in-flight guard.
package governor

import (
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tenon/internal/faults"
)

// Key joins parts into the canonical colon-separated composite key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Governor holds all in-process counters. State is not persisted across
// restarts; a fresh process starts with empty windows.
type Governor struct {
	mu        sync.Mutex
	enabled   bool
	now       func() time.Time
	windows   map[string][]time.Time
	throttles map[string]*rate.Limiter
	inflight  map[string]int
}

// New creates a governor. When enabled is false every check passes, which is
// the default in local and test environments.
func New(enabled bool) *Governor {
	return &Governor{
		enabled:   enabled,
		now:       time.Now,
		windows:   make(map[string][]time.Time),
		throttles: make(map[string]*rate.Limiter),
		inflight:  make(map[string]int),
	}
}

// Reset clears all counters. Intended for test isolation only.
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.windows = make(map[string][]time.Time)
	g.throttles = make(map[string]*rate.Limiter)
	g.inflight = make(map[string]int)
}

// Allow records one call against a sliding window of size window. It fails
// once limit calls have been recorded within the window; the Retry-After
// hint is derived from the oldest surviving entry.
func (g *Governor) Allow(key string, limit int, window time.Duration) error {
	if !g.enabled || limit <= 0 {
		return nil
	}
	now := g.now()
	cutoff := now.Add(-window)

	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.windows[key][:0]
	for _, ts := range g.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= limit {
		g.windows[key] = kept
		retryAfter := ceilSeconds(kept[0].Add(window).Sub(now))
		return faults.RateLimited(retryAfter)
	}
	g.windows[key] = append(kept, now)
	return nil
}

// Throttle enforces a minimum interval between calls sharing a key. A call
// inside the interval fails with Retry-After = ceil(minInterval - elapsed).
func (g *Governor) Throttle(key string, minInterval time.Duration) error {
	if !g.enabled || minInterval <= 0 {
		return nil
	}

	g.mu.Lock()
	lim, ok := g.throttles[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(minInterval), 1)
		g.throttles[key] = lim
	}
	g.mu.Unlock()

	res := lim.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return faults.RateLimited(ceilSeconds(delay))
	}
	return nil
}

// Acquire claims one in-flight slot for key, failing when maxInFlight slots
// are already held. The returned release function is safe to call multiple
// times and from any exit path; the slot is released exactly once.
func (g *Governor) Acquire(key string, maxInFlight int) (func(), error) {
	if !g.enabled || maxInFlight <= 0 {
		return func() {}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight[key] >= maxInFlight {
		return nil, faults.RateLimited(1)
	}
	g.inflight[key]++

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.inflight[key] <= 1 {
				delete(g.inflight, key)
			} else {
				g.inflight[key]--
			}
		})
	}
	return release, nil
}

func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
