package main

import (
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
)

// gcPauseWindow reports GC pauses that happened between two stats ticks.
// displayStats owns the instance and calls it serially.
type gcPauseWindow struct {
	lastNumGC   uint32
	initialized bool
}

// since returns the p99 of the pauses recorded after the previous call and
// how many pauses it covered. When more GCs ran than runtime.MemStats keeps,
// only the retained pauses are used and truncated is true.
func (w *gcPauseWindow) since(mem *runtime.MemStats) (p99 time.Duration, count int, truncated bool) {
	if !w.initialized {
		w.lastNumGC = mem.NumGC
		w.initialized = true
		return 0, 0, false
	}
	if mem.NumGC <= w.lastNumGC {
		return 0, 0, false
	}
	delta := int(mem.NumGC - w.lastNumGC)
	w.lastNumGC = mem.NumGC

	ring := len(mem.PauseNs)
	if delta > ring {
		delta = ring
		truncated = true
	}
	pauses := make([]uint64, 0, delta)
	for i := 0; i < delta; i++ {
		// PauseNs[(NumGC+255)%256] is the most recent pause
		idx := (int(mem.NumGC) - 1 - i + ring*2) % ring
		if v := mem.PauseNs[idx]; v > 0 {
			pauses = append(pauses, v)
		}
	}
	if len(pauses) == 0 {
		return 0, 0, truncated
	}
	slices.Sort(pauses)
	return time.Duration(pauses[int(float64(len(pauses)-1)*0.99)]), len(pauses), truncated
}

// formatRuntimeLine renders heap, goroutine and GC pause figures.
func formatRuntimeLine(mem *runtime.MemStats, goroutines int, window *gcPauseWindow) string {
	p99, count, truncated := window.since(mem)
	gc := "GC idle"
	if count > 0 {
		gc = fmt.Sprintf("GC p99 %s over %d", p99.Round(time.Microsecond), count)
		if truncated {
			gc += "+"
		}
	}
	return fmt.Sprintf("Runtime: heap %s, sys %s, %d goroutines, %s",
		humanize.IBytes(mem.HeapAlloc), humanize.IBytes(mem.Sys), goroutines, gc)
}
