// Package ratelimit throttles repetitive log lines.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// Limiter allows one event per interval and counts the events it held back
// since the last allowed one. The zero value allows everything. It is safe
// for concurrent use.
type Limiter struct {
	interval   time.Duration
	last       atomic.Int64
	suppressed atomic.Uint64
}

// New returns a Limiter that allows at most one event per interval.
func New(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Allow reports whether an event at now may be emitted. When it may, the
// second result is the number of events suppressed since the previous one.
func (l *Limiter) Allow(now time.Time) (bool, uint64) {
	if l == nil || l.interval <= 0 {
		return true, 0
	}
	ts := now.UnixNano()
	last := l.last.Load()
	if last != 0 && ts-last < l.interval.Nanoseconds() {
		l.suppressed.Add(1)
		return false, 0
	}
	if !l.last.CompareAndSwap(last, ts) {
		l.suppressed.Add(1)
		return false, 0
	}
	return true, l.suppressed.Swap(0)
}
