// Package stats tracks per-role poll counters for display in the console
// dashboard, periodic log lines and the Prometheus endpoint.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Counter names.
const (
	CounterPolls         = "polls"
	CounterLines         = "lines"
	CounterParsed        = "parsed"
	CounterSkipped       = "skipped"
	CounterReadErrors    = "read_errors"
	CounterUnavailable   = "unavailable"
	CounterCounterResets = "counter_resets"
	CounterRewinds       = "rewinds"
)

// Counters lists every counter name in display order.
var Counters = []string{
	CounterPolls,
	CounterLines,
	CounterParsed,
	CounterSkipped,
	CounterReadErrors,
	CounterUnavailable,
	CounterCounterResets,
	CounterRewinds,
}

// Tracker tracks poll statistics by role.
type Tracker struct {
	// counters live in sync.Map + atomic.Uint64 so concurrent polls of
	// different roles don't fight over a mutex
	counts sync.Map // "role|counter" -> *atomic.Uint64
	start  atomic.Int64
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// Add increases a role counter by n.
func (t *Tracker) Add(role, counter string, n uint64) {
	if t == nil || n == 0 {
		return
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" || counter == "" {
		return
	}
	addCounter(&t.counts, role+"|"+counter, n)
}

// Increment increases a role counter by one.
func (t *Tracker) Increment(role, counter string) {
	t.Add(role, counter, 1)
}

// Get returns the current value of a role counter.
func (t *Tracker) Get(role, counter string) uint64 {
	if t == nil {
		return 0
	}
	if value, ok := t.counts.Load(strings.ToLower(role) + "|" + counter); ok {
		return value.(*atomic.Uint64).Load()
	}
	return 0
}

// RoleCounts returns a copy of every counter of one role.
func (t *Tracker) RoleCounts(role string) map[string]uint64 {
	counts := make(map[string]uint64)
	if t == nil {
		return counts
	}
	prefix := strings.ToLower(role) + "|"
	t.counts.Range(func(key, value any) bool {
		k := key.(string)
		if strings.HasPrefix(k, prefix) {
			counts[strings.TrimPrefix(k, prefix)] = value.(*atomic.Uint64).Load()
		}
		return true
	})
	return counts
}

// Roles returns the roles that have recorded at least one counter, sorted.
func (t *Tracker) Roles() []string {
	seen := make(map[string]struct{})
	t.counts.Range(func(key, _ any) bool {
		role, _, _ := strings.Cut(key.(string), "|")
		seen[role] = struct{}{}
		return true
	})
	roles := make([]string, 0, len(seen))
	for role := range seen {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// GetUptime returns how long the tracker has been running
func (t *Tracker) GetUptime() time.Duration {
	start := t.start.Load()
	return time.Since(time.Unix(0, start))
}

// SnapshotLines returns human-readable stats ready for console display.
func (t *Tracker) SnapshotLines() []string {
	roles := t.Roles()
	lines := make([]string, 0, len(roles)+1)
	lines = append(lines, fmt.Sprintf("Uptime: %s", formatUptime(t.GetUptime())))
	for _, role := range roles {
		lines = append(lines, formatRoleCounts(role, t.RoleCounts(role)))
	}
	return lines
}

func formatRoleCounts(role string, counts map[string]uint64) string {
	var builder strings.Builder
	builder.WriteString(role)
	builder.WriteString(": ")
	first := true
	for _, name := range Counters {
		value, ok := counts[name]
		if !ok {
			continue
		}
		if !first {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s=%s", name, humanize.Comma(int64(value)))
		first = false
	}
	if first {
		builder.WriteString("(none)")
	}
	return builder.String()
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

func addCounter(m *sync.Map, key string, n uint64) {
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(n)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(n)
		return
	}
	counter.Add(n)
}
