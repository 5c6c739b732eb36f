package main

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sidelinkmon/stats"
)

func TestLogFileNameForDate(t *testing.T) {
	when := time.Date(2026, time.January, 22, 23, 59, 0, 0, time.UTC)
	if got := logFileNameForDate(when); got != "sidelinkmon-2026-01-22.log" {
		t.Fatalf("unexpected log filename %q", got)
	}
}

func TestParseLogFileDate(t *testing.T) {
	parsed, ok := parseLogFileDate("sidelinkmon-2026-01-22.log")
	if !ok || parsed.Day() != 22 || parsed.Month() != time.January {
		t.Fatalf("unexpected parse result %v %v", parsed, ok)
	}
	for _, name := range []string{"notes.txt", "2026-01-22.log", "sidelinkmon-garbage.log"} {
		if _, ok := parseLogFileDate(name); ok {
			t.Fatalf("expected %s to be rejected", name)
		}
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"sidelinkmon-2026-01-20.log",
		"sidelinkmon-2026-01-21.log",
		"sidelinkmon-2026-01-22.log",
		"notes.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	now := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	if err := cleanupOldLogs(dir, now, 2); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sidelinkmon-2026-01-20.log")); !os.IsNotExist(err) {
		t.Fatalf("expected oldest log removed, stat err=%v", err)
	}
	for _, name := range []string{"sidelinkmon-2026-01-21.log", "sidelinkmon-2026-01-22.log", "notes.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to remain: %v", name, err)
		}
	}
}

func TestDailyFileSinkOpensNextDay(t *testing.T) {
	dir := t.TempDir()
	sink, err := newDailyFileSink(dir, 7)
	if err != nil {
		t.Fatalf("newDailyFileSink: %v", err)
	}
	defer sink.Close()

	paths := make(chan [2]string, 1)
	sink.OnDayClose(func(_ time.Time, prev, next string) {
		paths <- [2]string{prev, next}
	})
	day1 := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	sink.WriteLine("first", day1)
	sink.WriteLine("second", day1.Add(24*time.Hour))

	var prevPath, newPath string
	select {
	case p := <-paths:
		prevPath, newPath = p[0], p[1]
	case <-time.After(2 * time.Second):
		t.Fatalf("day-close hook never ran")
	}

	if filepath.Base(prevPath) != "sidelinkmon-2026-01-22.log" || filepath.Base(newPath) != "sidelinkmon-2026-01-23.log" {
		t.Fatalf("unexpected rotation paths %q -> %q", prevPath, newPath)
	}
	data, err := os.ReadFile(prevPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(string(data)), "first") {
		t.Fatalf("unexpected day-one content %q", data)
	}
}

func TestDayCloseHookMayLog(t *testing.T) {
	sink, err := newDailyFileSink(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("newDailyFileSink: %v", err)
	}
	defer sink.Close()
	router := newLogRouter(nil, sink)
	logger := log.New(router, "", 0)

	now := time.Now().UTC()
	sink.WriteLine("prime", now)
	sink.mu.Lock()
	sink.day = now.Add(-24 * time.Hour).Format(logFileDateLayout)
	sink.mu.Unlock()

	var once sync.Once
	hookDone := make(chan struct{})
	sink.OnDayClose(func(prevDate time.Time, _, _ string) {
		logger.Printf("closed %s", prevDate.Format(logFileDateLayout))
		once.Do(func() { close(hookDone) })
	})

	done := make(chan struct{})
	go func() {
		logger.Print("trigger rotation")
		close(done)
	}()
	for _, ch := range []chan struct{}{done, hookDone} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("logging deadlocked during day-close hook")
		}
	}
}

func TestDayCloseSummaryWithStandardLogger(t *testing.T) {
	dir := t.TempDir()
	sink, err := newDailyFileSink(dir, 2)
	if err != nil {
		t.Fatalf("newDailyFileSink: %v", err)
	}
	router := newLogRouter(nil, sink)
	tracker := stats.NewTracker()
	tracker.Increment("primary", stats.CounterPolls)
	router.OnDayClose(dayCloseSummary(router, tracker))

	prevFlags, prevOut := log.Flags(), log.Writer()
	log.SetFlags(0)
	log.SetOutput(router)
	defer func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
		sink.Close()
	}()

	now := time.Now().UTC()
	sink.WriteLine("prime", now)
	sink.mu.Lock()
	sink.day = now.Add(-24 * time.Hour).Format(logFileDateLayout)
	sink.mu.Unlock()

	done := make(chan struct{})
	go func() {
		log.Printf("first line of the new day")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("first log line of the new day blocked")
	}

	path := filepath.Join(dir, logFileNameForDate(now))
	deadline := time.Now().Add(2 * time.Second)
	for {
		data, _ := os.ReadFile(path)
		if strings.Contains(string(data), "polls=1") && strings.Contains(string(data), "closed") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("summary never reached %s: %q", path, data)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRouterSplitsLinesAcrossWrites(t *testing.T) {
	var console bytes.Buffer
	router := newLogRouter(&consoleSink{w: &console}, nil)
	_, _ = router.Write([]byte("Monitor: primary "))
	if console.Len() != 0 {
		t.Fatalf("partial line should be buffered, got %q", console.String())
	}
	_, _ = router.Write([]byte("stopped -> running\r\nAPI: ok\n"))
	if got := console.String(); got != "Monitor: primary stopped -> running\nAPI: ok\n" {
		t.Fatalf("unexpected console output %q", got)
	}
}
