package sidelink

import (
	"strings"
	"time"
)

const (
	// MaxParsedLines bounds how many lines of one batch are fed to the parser.
	MaxParsedLines = 100
	// MaxTerminalLines bounds the raw-line tail kept for display.
	MaxTerminalLines = 10
	// BannerPrefix marks separator banners that are dropped from the tail.
	BannerPrefix = "[NR_PHY] I ============"
)

// Batch is what one tail of a source produced.
type Batch struct {
	Lines  []string
	Status Status
	Err    error
}

// AggregateStats summarizes how a batch was consumed.
type AggregateStats struct {
	Parsed  int
	Skipped int
}

// Purpose: Fold a batch of freshly read lines into the previous snapshot.
// Key aspects: Last writer wins per channel; counters and frame/slot persist
// when the batch carries nothing newer; status always follows the batch.
// Upstream: monitor.Source.Poll.
// Downstream: ParseStatsLine, terminalTail.
func Aggregate(prev Snapshot, batch Batch, now time.Time) (Snapshot, AggregateStats) {
	next := prev.Clone()
	next.Status = batch.Status
	next.UpdatedAt = now
	next.Error = ""
	if batch.Err != nil {
		next.Error = batch.Err.Error()
	}

	var stats AggregateStats
	if len(batch.Lines) == 0 {
		return next, stats
	}

	lines := batch.Lines
	if len(lines) > MaxParsedLines {
		lines = lines[len(lines)-MaxParsedLines:]
	}
	for _, line := range lines {
		rec, ok := ParseStatsLine(line)
		if !ok {
			stats.Skipped++
			continue
		}
		if slot := next.counterSlot(rec.Channel); slot != nil {
			*slot = rec.Counters()
		}
		next.Frame = rec.Frame
		next.Slot = rec.Slot
		stats.Parsed++
	}

	next.Terminal = terminalTail(batch.Lines)
	return next, stats
}

// terminalTail keeps the non-empty, non-banner lines among the last
// MaxTerminalLines of the batch.
func terminalTail(lines []string) []string {
	if len(lines) > MaxTerminalLines {
		lines = lines[len(lines)-MaxTerminalLines:]
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, BannerPrefix) {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
