package stats

import (
	"strings"
	"sync"
	"testing"
)

func TestTrackerCountsPerRole(t *testing.T) {
	tr := NewTracker()
	tr.Increment("primary", CounterPolls)
	tr.Add("PRIMARY", CounterLines, 1500)
	tr.Increment("nearby", CounterUnavailable)
	tr.Add("nearby", CounterLines, 0)

	if got := tr.Get("primary", CounterLines); got != 1500 {
		t.Fatalf("expected 1500 primary lines, got %d", got)
	}
	if got := tr.Get("nearby", CounterLines); got != 0 {
		t.Fatalf("zero adds should not create counters, got %d", got)
	}
	if roles := tr.Roles(); len(roles) != 2 || roles[0] != "nearby" || roles[1] != "primary" {
		t.Fatalf("unexpected roles: %v", roles)
	}

	lines := tr.SnapshotLines()
	if len(lines) != 3 {
		t.Fatalf("expected uptime + 2 role lines, got %v", lines)
	}
	if !strings.Contains(lines[2], "lines=1,500") {
		t.Fatalf("expected humanized line count, got %q", lines[2])
	}
}

func TestTrackerConcurrentIncrements(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				tr.Increment("primary", CounterPolls)
			}
		}()
	}
	wg.Wait()
	if got := tr.Get("primary", CounterPolls); got != 8000 {
		t.Fatalf("expected 8000 polls, got %d", got)
	}
}
