// Package ratelimit provides sliding-window admission control keyed by the
// request source (typically a client IP). Checks are in-memory and
// non-blocking so a rejected request never reaches the encryption or
// storage layers.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "docvault_ratelimit_rejections_total",
	Help: "Total number of requests rejected by the sliding-window limiter.",
})

// Decision is the result of a single admission check.
type Decision struct {
	Allowed    bool
	Attempts   int
	MaxAllowed int

	// RetryAt is the moment the oldest blocking event falls out of the
	// window; only set when the check was denied.
	RetryAt *time.Time
}

// Config holds the window parameters.
type Config struct {
	Window    time.Duration
	MaxEvents int
}

// Limiter tracks event timestamps per source. Each source owns its own
// mutex; there is no lock shared across unrelated sources beyond the map
// access itself.
type Limiter struct {
	window time.Duration
	max    int

	mu      sync.RWMutex
	sources map[string]*sourceWindow

	now func() time.Time
}

type sourceWindow struct {
	mu     sync.Mutex
	events []time.Time
}

// New constructs a limiter. Non-positive settings fall back to a 1-minute
// window of 10 events.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 10
	}
	return &Limiter{
		window:  cfg.Window,
		max:     cfg.MaxEvents,
		sources: make(map[string]*sourceWindow),
		now:     time.Now,
	}
}

// Check prunes events older than the window for the source and reports
// whether another event would be admitted. It records nothing itself.
func (l *Limiter) Check(source string) Decision {
	now := l.now()
	sw := l.windowFor(source)

	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.prune(now, l.window)
	attempts := len(sw.events)

	d := Decision{
		Allowed:    attempts < l.max,
		Attempts:   attempts,
		MaxAllowed: l.max,
	}
	if !d.Allowed {
		retry := sw.events[0].Add(l.window)
		d.RetryAt = &retry
		rejectionsTotal.Inc()
	}
	return d
}

// Record appends one event for the source at the current time.
func (l *Limiter) Record(source string) {
	now := l.now()
	sw := l.windowFor(source)

	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.prune(now, l.window)
	sw.events = append(sw.events, now)
}

func (l *Limiter) windowFor(source string) *sourceWindow {
	l.mu.RLock()
	sw, ok := l.sources[source]
	l.mu.RUnlock()
	if ok {
		return sw
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if sw, ok = l.sources[source]; ok {
		return sw
	}
	sw = &sourceWindow{}
	l.sources[source] = sw
	return sw
}

// prune discards events that have left the window. Events are appended in
// wall-clock order, so the suffix starting at the first retained index is
// still ordered.
func (sw *sourceWindow) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	keep := 0
	for keep < len(sw.events) && !sw.events[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		sw.events = append(sw.events[:0], sw.events[keep:]...)
	}
}
