package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sidelinkmon/config"
	"sidelinkmon/internal/ratelimit"
)

const (
	logTimestampLayout = "2006/01/02 15:04:05"
	logFileDateLayout  = "2006-01-02"
	logFilePrefix      = "sidelinkmon-"
	maxLogBufferBytes  = 16 * 1024
)

type lineSink interface {
	WriteLine(line string, now time.Time)
	Close() error
}

// consoleSink writes to stdout or the dashboard system pane.
type consoleSink struct {
	w             io.Writer
	withTimestamp bool
}

func (s *consoleSink) WriteLine(line string, now time.Time) {
	if s == nil || s.w == nil {
		return
	}
	if s.withTimestamp {
		line = formatLogTimestamp(now) + " " + line
	}
	_, _ = io.WriteString(s.w, line+"\n")
}

func (s *consoleSink) Close() error { return nil }

type dayCloseHook func(day time.Time, prevPath, nextPath string)

// dailyFileSink appends to one file per UTC day and prunes old days.
type dailyFileSink struct {
	dir           string
	retentionDays int

	warnings *ratelimit.Limiter

	mu         sync.Mutex
	day        string
	path       string
	file       *os.File
	onDayClose dayCloseHook
}

// Purpose: Create the daily file sink and prune expired files once.
// Key aspects: A cleanup failure is reported but does not fail startup.
// Upstream: setupLogging.
// Downstream: os.MkdirAll, cleanupOldLogs.
func newDailyFileSink(dir string, retentionDays int) (*dailyFileSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %q: %w", dir, err)
	}
	if err := cleanupOldLogs(dir, time.Now().UTC(), retentionDays); err != nil {
		fmt.Fprintf(os.Stderr, "Logging: cleanup failed for %s: %v\n", dir, err)
	}
	return &dailyFileSink{
		dir:           dir,
		retentionDays: retentionDays,
		warnings:      ratelimit.New(time.Minute),
	}, nil
}

// Purpose: Append one timestamped line to today's file.
// Key aspects: Opens the next file on a date change; the day-close hook runs
// on its own goroutine so it may log.
// Upstream: logRouter.Write, logRouter.WriteFileOnlyLine.
// Downstream: openDayLocked, os.File.WriteString.
func (s *dailyFileSink) WriteLine(line string, now time.Time) {
	if s == nil {
		return
	}
	now = now.UTC()

	var closed *dayRotation
	s.mu.Lock()
	if day := now.Format(logFileDateLayout); s.file == nil || s.day != day {
		closed = s.openDayLocked(day, now)
	}
	if s.file != nil {
		if _, err := fmt.Fprintf(s.file, "%s %s\n", formatLogTimestamp(now), line); err != nil {
			s.warn(now, fmt.Errorf("write failed: %w", err))
		}
	}
	s.mu.Unlock()

	// The write that crossed midnight may come from inside a log.Logger
	// holding its own mutex; a hook that logs must not run on that stack.
	if closed != nil && closed.hook != nil {
		go closed.hook(closed.day, closed.prevPath, closed.nextPath)
	}
}

func (s *dailyFileSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.day, s.path = nil, "", ""
	return err
}

// OnDayClose installs a callback run once per day change with the closed
// day and the previous and next file paths. The callback runs asynchronously.
func (s *dailyFileSink) OnDayClose(hook dayCloseHook) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.onDayClose = hook
	s.mu.Unlock()
}

// dayRotation describes the file closed by a date change.
type dayRotation struct {
	day      time.Time
	prevPath string
	nextPath string
	hook     dayCloseHook
}

// openDayLocked switches to the file for day. It returns the rotation when a
// previous day was closed, nil on first open or failure.
func (s *dailyFileSink) openDayLocked(day string, now time.Time) *dayRotation {
	var closed *dayRotation
	if s.day != "" && s.day != day {
		prev, err := time.ParseInLocation(logFileDateLayout, s.day, time.UTC)
		if err == nil {
			closed = &dayRotation{day: prev, prevPath: s.path, hook: s.onDayClose}
		}
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	path := filepath.Join(s.dir, logFileNameForDate(now))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.warn(now, fmt.Errorf("open failed for %s: %w", path, err))
		return nil
	}
	s.file, s.day, s.path = file, day, path
	if err := cleanupOldLogs(s.dir, now, s.retentionDays); err != nil {
		s.warn(now, fmt.Errorf("cleanup failed: %w", err))
	}
	if closed != nil {
		closed.nextPath = path
	}
	return closed
}

// warn reports sink failures on stderr, at most once per minute.
func (s *dailyFileSink) warn(now time.Time, err error) {
	if ok, suppressed := s.warnings.Allow(now); ok {
		fmt.Fprintf(os.Stderr, "Logging: %v (suppressed=%d)\n", err, suppressed)
	}
}

// logRouter is the io.Writer installed with log.SetOutput. It splits the
// stream into lines and hands each to the console and file sinks.
type logRouter struct {
	mu      sync.Mutex
	buf     []byte
	console lineSink
	file    lineSink
}

func newLogRouter(console, file lineSink) *logRouter {
	return &logRouter{console: console, file: file}
}

// Purpose: Build the router from the logging config.
// Key aspects: Always returns a usable router; a file sink error is returned
// alongside it so startup can continue on the console only.
// Upstream: main.
// Downstream: newDailyFileSink.
func setupLogging(cfg config.LoggingConfig, console io.Writer) (*logRouter, error) {
	router := newLogRouter(&consoleSink{w: console, withTimestamp: true}, nil)
	if !cfg.Enabled {
		return router, nil
	}
	sink, err := newDailyFileSink(cfg.Dir, cfg.RetentionDays)
	if err != nil {
		return router, err
	}
	router.SetFileSink(sink)
	return router, nil
}

// SetConsoleSink swaps the console writer, e.g. for the dashboard pane.
func (f *logRouter) SetConsoleSink(w io.Writer, withTimestamp bool) {
	if f == nil {
		return
	}
	var sink lineSink
	if w != nil {
		sink = &consoleSink{w: w, withTimestamp: withTimestamp}
	}
	f.mu.Lock()
	f.console = sink
	f.mu.Unlock()
}

func (f *logRouter) SetFileSink(sink lineSink) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.file = sink
	f.mu.Unlock()
}

// OnDayClose forwards to the file sink when file logging is on.
func (f *logRouter) OnDayClose(hook dayCloseHook) {
	if f == nil {
		return
	}
	f.mu.Lock()
	sink := f.file
	f.mu.Unlock()
	if daily, ok := sink.(*dailyFileSink); ok {
		daily.OnDayClose(hook)
	}
}

func (f *logRouter) Write(p []byte) (int, error) {
	if f == nil {
		return len(p), nil
	}
	f.mu.Lock()
	f.buf = append(f.buf, p...)
	data := f.buf
	var lines []string
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(data[:idx], "\r")))
		data = data[idx+1:]
	}
	// an unterminated line longer than the buffer is flushed as is
	if len(data) > maxLogBufferBytes {
		if trimmed := string(bytes.TrimRight(data, "\r")); trimmed != "" {
			lines = append(lines, trimmed)
		}
		data = data[:0]
	}
	f.buf = data
	console, file := f.console, f.file
	f.mu.Unlock()

	now := time.Now().UTC()
	for _, line := range lines {
		if console != nil {
			console.WriteLine(line, now)
		}
		if file != nil {
			file.WriteLine(line, now)
		}
	}
	return len(p), nil
}

// WriteFileOnlyLine records a line in the file sink only. Periodic stats use
// it while the dashboard owns the console.
func (f *logRouter) WriteFileOnlyLine(line string, now time.Time) {
	if f == nil {
		return
	}
	f.mu.Lock()
	file := f.file
	f.mu.Unlock()
	if file != nil {
		file.WriteLine(line, now)
	}
}

func (f *logRouter) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	console, file := f.console, f.file
	f.mu.Unlock()
	if console != nil {
		_ = console.Close()
	}
	if file != nil {
		return file.Close()
	}
	return nil
}

func formatLogTimestamp(now time.Time) string {
	return now.UTC().Format(logTimestampLayout)
}

func logFileNameForDate(now time.Time) string {
	return logFilePrefix + now.UTC().Format(logFileDateLayout) + ".log"
}

func parseLogFileDate(name string) (time.Time, bool) {
	if filepath.Ext(name) != ".log" || !strings.HasPrefix(name, logFilePrefix) {
		return time.Time{}, false
	}
	base := strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), ".log")
	parsed, err := time.ParseInLocation(logFileDateLayout, base, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func cleanupOldLogs(dir string, now time.Time, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	y, m, d := now.UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(retentionDays - 1))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		date, ok := parseLogFileDate(entry.Name())
		if ok && date.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}
