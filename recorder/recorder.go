// Package recorder exports observations to SQLite for offline analysis
// without slowing the poll cycle.
package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"sidelinkmon/internal/ratelimit"
	"sidelinkmon/monitor"
	"sidelinkmon/sidelink"
	"sidelinkmon/sqliteutil"
)

const flushInterval = time.Second

// Options sizes the recorder.
type Options struct {
	PerRoleLimit int
	QueueSize    int
	BatchSize    int
}

// Recorder is a monitor.Observer that stores a bounded number of
// observations per role. Observe never blocks; a full queue drops the row.
type Recorder struct {
	db        *sql.DB
	limit     int
	batchSize int
	queue     chan monitor.Observation
	done      chan struct{}

	mu       sync.Mutex
	closed   bool
	perRole  map[sidelink.Role]int
	dropped  atomic.Uint64
	dropLog  *ratelimit.Limiter
	order    monitor.OrderGuard
	inserted atomic.Uint64
}

// Open verifies (or creates) the database at path, seeds the per-role counts
// from rows already stored and starts the insert loop.
func Open(path string, opts Options) (*Recorder, error) {
	if opts.PerRoleLimit <= 0 {
		return nil, errors.New("recorder: per-role limit must be > 0")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if _, err := sqliteutil.Preflight(path, "recorder", sqliteutil.DefaultTimeout, nil); err != nil {
		return nil, err
	}
	db, err := sqliteutil.Open(path, sqliteutil.DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	counts, err := countByRole(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &Recorder{
		db:        db,
		limit:     opts.PerRoleLimit,
		batchSize: opts.BatchSize,
		queue:     make(chan monitor.Observation, opts.QueueSize),
		done:      make(chan struct{}),
		perRole:   counts,
		dropLog:   ratelimit.New(time.Minute),
	}
	go r.insertLoop()
	return r, nil
}

func ensureSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS observations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    role TEXT NOT NULL,
    observed_at INTEGER NOT NULL,
    status TEXT,
    error TEXT,
    frame INTEGER,
    slot INTEGER,
    psbch_tx INTEGER, psbch_rx_ok INTEGER, psbch_rx_not_ok INTEGER,
    pscch_tx INTEGER, pscch_rx_ok INTEGER, pscch_rx_not_ok INTEGER,
    pssch_tx INTEGER, pssch_rx_ok INTEGER, pssch_rx_not_ok INTEGER,
    psfch_tx INTEGER, psfch_rx_ok INTEGER, psfch_rx_not_ok INTEGER,
    quality TEXT,
    quality_level INTEGER,
    pssch_success_rate REAL,
    tx_mbps REAL,
    rx_mbps REAL,
    lines_read INTEGER,
    offset_bytes INTEGER
);
CREATE INDEX IF NOT EXISTS observations_role_ts ON observations(role, observed_at);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("recorder: schema: %w", err)
	}
	return nil
}

func countByRole(db *sql.DB) (map[sidelink.Role]int, error) {
	rows, err := db.Query(`SELECT role, COUNT(*) FROM observations GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("recorder: count rows: %w", err)
	}
	defer rows.Close()
	out := make(map[sidelink.Role]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("recorder: count rows: %w", err)
		}
		out[sidelink.Role(role)] = n
	}
	return out, rows.Err()
}

// Observe queues an observation unless the role reached its limit.
func (r *Recorder) Observe(o monitor.Observation) {
	if r == nil || !o.Polled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.perRole[o.Role] >= r.limit || !r.order.Fresh(o) {
		return
	}
	select {
	case r.queue <- o:
		r.perRole[o.Role]++
	default:
		total := r.dropped.Add(1)
		if ok, _ := r.dropLog.Allow(time.Now()); ok {
			log.Printf("Recorder: queue full, %d observations dropped so far", total)
		}
	}
}

// Dropped reports observations lost to a full queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Inserted reports rows committed since Open.
func (r *Recorder) Inserted() uint64 {
	return r.inserted.Load()
}

// Close drains the queue, flushes the last batch and closes the database.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
	return r.db.Close()
}

func (r *Recorder) insertLoop() {
	defer close(r.done)
	batch := make([]monitor.Observation, 0, r.batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case o, ok := <-r.queue:
			if !ok {
				r.flush(batch)
				return
			}
			batch = append(batch, o)
			if len(batch) >= r.batchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			r.flush(batch)
			batch = batch[:0]
		}
	}
}

func (r *Recorder) flush(batch []monitor.Observation) {
	if len(batch) == 0 {
		return
	}
	tx, err := r.db.Begin()
	if err != nil {
		log.Printf("Recorder: begin tx: %v", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO observations (
    role, observed_at, status, error, frame, slot,
    psbch_tx, psbch_rx_ok, psbch_rx_not_ok,
    pscch_tx, pscch_rx_ok, pscch_rx_not_ok,
    pssch_tx, pssch_rx_ok, pssch_rx_not_ok,
    psfch_tx, psfch_rx_ok, psfch_rx_not_ok,
    quality, quality_level, pssch_success_rate, tx_mbps, rx_mbps, lines_read, offset_bytes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("Recorder: prepare: %v", err)
		_ = tx.Rollback()
		return
	}
	var n uint64
	for _, o := range batch {
		s := o.Snapshot
		if _, err := stmt.Exec(
			string(o.Role), o.At.UTC().UnixMilli(), string(s.Status), s.Error, s.Frame, s.Slot,
			s.PSBCH.TX, s.PSBCH.RxOK, s.PSBCH.RxNotOK,
			s.PSCCH.TX, s.PSCCH.RxOK, s.PSCCH.RxNotOK,
			s.PSSCH.TX, s.PSSCH.RxOK, s.PSSCH.RxNotOK,
			s.PSFCH.TX, s.PSFCH.RxOK, s.PSFCH.RxNotOK,
			string(o.Quality.Label), o.Quality.Level, o.Quality.PSSCHSuccessRate,
			o.Rates.TxMbps, o.Rates.RxMbps, o.LinesRead, o.Offset,
		); err != nil {
			log.Printf("Recorder: insert failed: %v", err)
			continue
		}
		n++
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		log.Printf("Recorder: commit: %v", err)
		return
	}
	r.inserted.Add(n)
}
