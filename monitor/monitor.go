package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"sidelinkmon/sidelink"
	"sidelinkmon/stats"
)

// ErrUnknownRole is returned for roles the monitor does not track.
var ErrUnknownRole = errors.New("monitor: unknown role")

// Monitor owns one Source per role for the lifetime of the process.
type Monitor struct {
	sources   map[sidelink.Role]*Source
	tracker   *stats.Tracker
	observers []Observer

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Options configures a Monitor.
type Options struct {
	Paths           map[sidelink.Role]string
	HistoryCapacity int
	Tracker         *stats.Tracker
	Signal          sidelink.SignalSource
	Observers       []Observer
	Now             func() time.Time
}

// New builds one Source for every role in sidelink.Roles.
func New(opts Options) *Monitor {
	tracker := opts.Tracker
	if tracker == nil {
		tracker = stats.NewTracker()
	}
	m := &Monitor{
		sources:   make(map[sidelink.Role]*Source, len(sidelink.Roles)),
		tracker:   tracker,
		observers: append([]Observer(nil), opts.Observers...),
		stop:      make(chan struct{}),
	}
	for _, role := range sidelink.Roles {
		m.sources[role] = NewSource(SourceOptions{
			Role:            role,
			Path:            opts.Paths[role],
			HistoryCapacity: opts.HistoryCapacity,
			Tracker:         tracker,
			Signal:          opts.Signal,
			Observers:       opts.Observers,
			Now:             opts.Now,
		})
	}
	return m
}

// Tracker returns the shared stats tracker.
func (m *Monitor) Tracker() *stats.Tracker {
	return m.tracker
}

// Source returns the source of a role.
func (m *Monitor) Source(role sidelink.Role) (*Source, error) {
	s, ok := m.sources[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return s, nil
}

// Poll runs one observation cycle for a role.
func (m *Monitor) Poll(role sidelink.Role) (Observation, error) {
	s, err := m.Source(role)
	if err != nil {
		return Observation{}, err
	}
	return s.Poll(), nil
}

// PollAll polls every role in parallel.
func (m *Monitor) PollAll() map[sidelink.Role]Observation {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[sidelink.Role]Observation, len(m.sources))
	)
	for role, s := range m.sources {
		wg.Add(1)
		go func(role sidelink.Role, s *Source) {
			defer wg.Done()
			obs := s.Poll()
			mu.Lock()
			out[role] = obs
			mu.Unlock()
		}(role, s)
	}
	wg.Wait()
	return out
}

// Views returns the latest observation of every role without polling.
func (m *Monitor) Views() map[sidelink.Role]Observation {
	out := make(map[sidelink.Role]Observation, len(m.sources))
	for role, s := range m.sources {
		out[role] = s.View()
	}
	return out
}

// Purpose: Poll every role on a fixed interval until ctx or Close stops it.
// Key aspects: No-op for a non-positive interval; one goroutine total.
// Upstream: main when poller.interval_ms > 0.
// Downstream: PollAll.
func (m *Monitor) StartPoller(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		log.Printf("Monitor: background poller every %s", interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.PollAll()
			}
		}
	}()
}

// Close stops the poller and closes every observer that implements
// io.Closer. Safe to call more than once.
func (m *Monitor) Close() error {
	var firstErr error
	m.stopOnce.Do(func() {
		close(m.stop)
		m.wg.Wait()
		for _, o := range m.observers {
			closer, ok := o.(io.Closer)
			if !ok {
				continue
			}
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}
