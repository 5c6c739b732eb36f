// Package tailer reads the bytes appended to a log file since the previous
// read. Each Tailer owns one cursor (a byte offset) and is not safe for
// concurrent use; the poll cycle that owns it serializes access.
package tailer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"sidelinkmon/sidelink"
)

// ErrSourceUnavailable reports that the log file does not exist.
var ErrSourceUnavailable = errors.New("tailer: source unavailable")

// Cursor is the persistent read position of one log file.
type Cursor struct {
	offset int64
}

// Offset returns the byte offset of the next unread byte.
func (c *Cursor) Offset() int64 {
	return c.offset
}

func (c *Cursor) advance(offset int64) {
	c.offset = offset
}

// Tailer reads newly appended lines from one file.
type Tailer struct {
	path   string
	cursor Cursor
	open   func(name string) (*os.File, error)
}

// Result is the outcome of one read.
type Result struct {
	Lines []string
	// Status is running when the file was reachable, even with no new lines.
	Status sidelink.Status
	// Err is ErrSourceUnavailable for a missing file or the wrapped I/O
	// failure otherwise; nil on success.
	Err error
	// Rewound is set when the cursor pointed past the end of the file and
	// was reset to the start.
	Rewound bool
}

// Batch converts the result into the aggregator's input. A missing file is
// reported through Status alone.
func (r Result) Batch() sidelink.Batch {
	batch := sidelink.Batch{Lines: r.Lines, Status: r.Status}
	if r.Status == sidelink.StatusError {
		batch.Err = r.Err
	}
	return batch
}

// New returns a tailer positioned at the start of path.
func New(path string) *Tailer {
	return &Tailer{path: path, open: os.Open}
}

// Path returns the file this tailer reads.
func (t *Tailer) Path() string {
	return t.path
}

// Offset returns the current cursor position.
func (t *Tailer) Offset() int64 {
	return t.cursor.Offset()
}

// Purpose: Return complete lines appended since the previous Read and advance
// the cursor past the last newline.
// Key aspects: Missing file -> stopped; other I/O failures -> error; the
// cursor only moves after a complete read. A line still being written stays
// unread until its newline arrives. A cursor beyond EOF (truncated or
// replaced file) is reset to 0.
// Upstream: monitor.Source.Poll.
// Downstream: os.Open, File.Stat, File.Seek, io.ReadAll.
func (t *Tailer) Read() Result {
	f, err := t.open(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{Status: sidelink.StatusStopped, Err: ErrSourceUnavailable}
		}
		return t.failure("open", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return t.failure("stat", err)
	}

	start := t.cursor.Offset()
	rewound := false
	if start > info.Size() {
		start = 0
		rewound = true
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return t.failure("seek", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return t.failure("read", err)
	}

	complete := data[:bytes.LastIndexByte(data, '\n')+1]
	t.cursor.advance(start + int64(len(complete)))
	return Result{
		Lines:   splitLines(string(complete)),
		Status:  sidelink.StatusRunning,
		Rewound: rewound,
	}
}

func (t *Tailer) failure(op string, err error) Result {
	return Result{
		Status: sidelink.StatusError,
		Err:    fmt.Errorf("tailer: %s %s: %w", op, t.path, err),
	}
}

// splitLines splits newline-terminated lines and strips carriage returns; an
// empty chunk yields no lines.
func splitLines(chunk string) []string {
	if chunk == "" {
		return nil
	}
	chunk = strings.TrimSuffix(chunk, "\n")
	parts := strings.Split(chunk, "\n")
	for i, part := range parts {
		parts[i] = strings.TrimSuffix(part, "\r")
	}
	return parts
}
