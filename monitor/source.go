// Package monitor runs the poll cycle of each sidelink source: tail the log,
// fold new lines into the snapshot, score quality, derive throughput and
// append history. Every source serializes its cycle behind its own mutex;
// different sources never share state and poll in parallel.
package monitor

import (
	"fmt"
	"log"
	"sync"
	"time"

	"sidelinkmon/history"
	"sidelinkmon/internal/ratelimit"
	"sidelinkmon/sidelink"
	"sidelinkmon/stats"
	"sidelinkmon/tailer"
	"sidelinkmon/throughput"
)

// resetLogInterval bounds how often a flapping radio process can log a
// counter reset.
const resetLogInterval = time.Minute

// Observation is the immutable result of one poll cycle.
type Observation struct {
	Role      sidelink.Role
	At        time.Time
	Snapshot  sidelink.Snapshot
	Quality   sidelink.Quality
	Rates     throughput.Rates
	LinesRead int
	Offset    int64
	// Polled is false for the synthetic view of a source never polled yet.
	Polled bool
}

// Observer receives every completed observation. Observe runs on the polling
// goroutine after the source lock is released and must not block. Two
// concurrent polls of one role may deliver out of order; observers that need
// chronological order filter with an OrderGuard.
type Observer interface {
	Observe(Observation)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Observation)

func (f ObserverFunc) Observe(o Observation) { f(o) }

// Source owns all mutable state of one role: read cursor, accumulated
// snapshot, throughput baseline and history.
type Source struct {
	role    sidelink.Role
	tracker *stats.Tracker
	signal  sidelink.SignalSource
	now     func() time.Time

	mu        sync.Mutex
	tail      *tailer.Tailer
	snapshot  sidelink.Snapshot
	estimator *throughput.Estimator
	history   *history.Recorder
	resetLog  *ratelimit.Limiter
	last      Observation

	observers []Observer
}

// SourceOptions configures a Source.
type SourceOptions struct {
	Role            sidelink.Role
	Path            string
	HistoryCapacity int
	Tracker         *stats.Tracker
	Signal          sidelink.SignalSource
	Observers       []Observer
	// Now overrides the wall clock; tests only.
	Now func() time.Time
}

// NewSource builds a source positioned at the start of its log.
func NewSource(opts SourceOptions) *Source {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	signal := opts.Signal
	if signal == nil {
		signal = sidelink.PlaceholderSignal{}
	}
	s := &Source{
		role:      opts.Role,
		tracker:   opts.Tracker,
		signal:    signal,
		now:       now,
		tail:      tailer.New(opts.Path),
		snapshot:  sidelink.NewSnapshot(),
		estimator: throughput.NewEstimator(),
		history:   history.NewRecorder(opts.HistoryCapacity),
		resetLog:  ratelimit.New(resetLogInterval),
		observers: append([]Observer(nil), opts.Observers...),
	}
	s.last = Observation{
		Role:     s.role,
		Snapshot: s.snapshot.Clone(),
		Quality:  sidelink.Evaluate(&s.snapshot, s.signal),
	}
	return s
}

// Role returns the role this source monitors.
func (s *Source) Role() sidelink.Role {
	return s.role
}

// Path returns the monitored log file.
func (s *Source) Path() string {
	return s.tail.Path()
}

// Purpose: Run one full observation cycle for this source.
// Key aspects: The whole cycle holds the source lock so cursor advance,
// counter overwrite, baseline update and history append are atomic as a
// unit; log notices and observers run after unlock.
// Upstream: Monitor.Poll, Monitor.PollAll, background poller.
// Downstream: tailer.Read, sidelink.Aggregate/Evaluate, Estimator.Observe,
// history.Recorder.Append, stats.Tracker.
func (s *Source) Poll() Observation {
	s.mu.Lock()
	obs, notices := s.pollLocked()
	observers := s.observers
	s.mu.Unlock()

	for _, line := range notices {
		log.Print(line)
	}
	for _, o := range observers {
		o.Observe(obs)
	}
	return obs
}

// pollLocked returns the observation and the log lines it produced; the
// caller prints them once the lock is released.
func (s *Source) pollLocked() (Observation, []string) {
	now := s.now()
	res := s.tail.Read()
	snap, agg := sidelink.Aggregate(s.snapshot, res.Batch(), now)
	quality := sidelink.Evaluate(&snap, s.signal)
	rates := s.estimator.Observe(snap.PSSCH.TX, snap.PSSCH.RxOK, now)
	s.history.Append(now, rates, quality, &snap)
	s.snapshot = snap

	role := string(s.role)
	s.tracker.Increment(role, stats.CounterPolls)
	s.tracker.Add(role, stats.CounterLines, uint64(len(res.Lines)))
	s.tracker.Add(role, stats.CounterParsed, uint64(agg.Parsed))
	s.tracker.Add(role, stats.CounterSkipped, uint64(agg.Skipped))
	switch res.Status {
	case sidelink.StatusError:
		s.tracker.Increment(role, stats.CounterReadErrors)
	case sidelink.StatusStopped:
		s.tracker.Increment(role, stats.CounterUnavailable)
	}
	var notices []string
	if res.Rewound {
		s.tracker.Increment(role, stats.CounterRewinds)
		notices = append(notices, fmt.Sprintf("Monitor: %s log %s shrank below the cursor; rereading from start", s.role, s.tail.Path()))
	}
	if rates.Reset {
		s.tracker.Increment(role, stats.CounterCounterResets)
		if ok, suppressed := s.resetLog.Allow(now); ok {
			notices = append(notices, fmt.Sprintf("Monitor: %s counters went backwards; throughput baseline restarted (suppressed=%d)", s.role, suppressed))
		}
	}
	if res.Status != s.last.Snapshot.Status {
		notices = append(notices, statusChangeLine(s.role, s.last.Snapshot.Status, snap))
	}

	s.last = Observation{
		Role:      s.role,
		At:        now,
		Snapshot:  snap.Clone(),
		Quality:   quality,
		Rates:     rates,
		LinesRead: len(res.Lines),
		Offset:    s.tail.Offset(),
		Polled:    true,
	}
	return s.last, notices
}

func statusChangeLine(role sidelink.Role, from sidelink.Status, snap sidelink.Snapshot) string {
	if snap.Error != "" {
		return fmt.Sprintf("Monitor: %s %s -> %s (%s)", role, from, snap.Status, snap.Error)
	}
	return fmt.Sprintf("Monitor: %s %s -> %s", role, from, snap.Status)
}

// View returns the latest observation without polling.
func (s *Source) View() Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs := s.last
	obs.Snapshot = obs.Snapshot.Clone()
	return obs
}

// Offset returns the current read cursor.
func (s *Source) Offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tail.Offset()
}

// ThroughputHistory returns the throughput series, oldest first.
func (s *Source) ThroughputHistory() []history.ThroughputSample {
	return s.history.Throughput()
}

// SignalHistory returns the signal series, oldest first.
func (s *Source) SignalHistory() []history.SignalSample {
	return s.history.Signal()
}

// PacketHistory returns the packet series, oldest first.
func (s *Source) PacketHistory() []history.PacketSample {
	return s.history.Packets()
}

// HistoryRows returns the three series zipped by index. It holds the poll
// lock so no append lands between the three reads.
func (s *Source) HistoryRows() []history.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Rows()
}

// HistoryCapacity returns the per-series history capacity.
func (s *Source) HistoryCapacity() int {
	return s.history.Capacity()
}
