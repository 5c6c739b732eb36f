// Package sqliteutil holds the open and health-check helpers shared by every
// SQLite file the monitor writes.
package sqliteutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultTimeout bounds preflight checks and the busy timeout of Open.
const DefaultTimeout = 2 * time.Second

// PreflightResult reports the outcome of a SQLite preflight check.
type PreflightResult struct {
	Healthy        bool   // No issues detected; safe to proceed.
	Skipped        bool   // No database file existed yet.
	Quarantined    bool   // The database was renamed aside.
	QuarantinePath string // Path of the quarantined main file.
	Elapsed        time.Duration
	CheckError     error
}

// Purpose: Verify an existing database before the writer opens it.
// Key aspects: Runs a bounded WAL checkpoint and quick_check. A failing file
// and its sidecars are renamed to <path>.bad-<timestamp> so startup continues
// with a fresh database. A timeout is returned as an error.
// Upstream: recorder.Open.
// Downstream: quarantine.
func Preflight(path, label string, timeout time.Duration, logf func(string, ...any)) (PreflightResult, error) {
	var res PreflightResult
	if strings.TrimSpace(path) == "" {
		return res, errors.New("sqliteutil: empty path")
	}
	if logf == nil {
		logf = log.Printf
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		res.Healthy, res.Skipped = true, true
		return res, nil
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return res, fmt.Errorf("sqliteutil: open %s db: %w", label, err)
	}
	db.SetMaxOpenConns(1)
	checkErr := check(ctx, db)
	_ = db.Close()
	res.Elapsed = time.Since(start)
	res.CheckError = checkErr
	if checkErr == nil {
		res.Healthy = true
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("sqliteutil: %s db preflight timed out after %s", label, timeout)
	}

	dest, err := quarantine(path, time.Now().UTC())
	if err != nil {
		return res, fmt.Errorf("sqliteutil: quarantine %s db: %w (check: %v)", label, err, checkErr)
	}
	res.Quarantined = true
	res.QuarantinePath = dest
	logf("SQLite: %s db failed preflight (%v); moved to %s", label, checkErr, dest)
	return res, nil
}

func check(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "pragma wal_checkpoint(TRUNCATE)"); err != nil {
		return err
	}
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return err
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}

func quarantine(path string, now time.Time) (string, error) {
	suffix := ".bad-" + now.Format("20060102T150405Z")
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Rename(p, p+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return path + suffix, nil
}

// Open creates the parent directory and opens a single-connection database
// in WAL mode.
func Open(path string, busyTimeout time.Duration) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqliteutil: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqliteutil: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if busyTimeout <= 0 {
		busyTimeout = DefaultTimeout
	}
	pragmas := fmt.Sprintf("pragma journal_mode=WAL; pragma synchronous=NORMAL; pragma busy_timeout=%d", busyTimeout.Milliseconds())
	if _, err := db.Exec(pragmas); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqliteutil: pragmas: %w", err)
	}
	return db, nil
}
