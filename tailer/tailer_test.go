package tailer

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"sidelinkmon/sidelink"
)

func appendFile(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestReadMissingFileIsStopped(t *testing.T) {
	tl := New(filepath.Join(t.TempDir(), "absent.log"))
	res := tl.Read()
	if res.Status != sidelink.StatusStopped {
		t.Fatalf("expected stopped, got %s", res.Status)
	}
	if !errors.Is(res.Err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", res.Err)
	}
	if len(res.Lines) != 0 || tl.Offset() != 0 {
		t.Fatalf("expected no lines and untouched cursor, got %v offset=%d", res.Lines, tl.Offset())
	}
	if res.Batch().Err != nil {
		t.Fatalf("missing file should not attach an error detail")
	}
}

func TestReadAdvancesCursor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ue.log")
	appendFile(t, path, "one\r\ntwo\n")
	tl := New(path)

	res := tl.Read()
	if res.Status != sidelink.StatusRunning {
		t.Fatalf("expected running, got %s (%v)", res.Status, res.Err)
	}
	if len(res.Lines) != 2 || res.Lines[0] != "one" || res.Lines[1] != "two" {
		t.Fatalf("unexpected lines: %q", res.Lines)
	}
	if tl.Offset() != 9 {
		t.Fatalf("expected cursor 9, got %d", tl.Offset())
	}

	res = tl.Read()
	if res.Status != sidelink.StatusRunning || len(res.Lines) != 0 {
		t.Fatalf("expected running with no new lines, got %s %q", res.Status, res.Lines)
	}

	appendFile(t, path, "three\n")
	res = tl.Read()
	if len(res.Lines) != 1 || res.Lines[0] != "three" {
		t.Fatalf("unexpected appended lines: %q", res.Lines)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if tl.Offset() != info.Size() {
		t.Fatalf("expected cursor at EOF %d, got %d", info.Size(), tl.Offset())
	}
}

func TestReadHoldsBackLineBeingWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ue.log")
	appendFile(t, path, "[NR_PHY] I [UE0] 10:1 PSSCH Stats: TX 2000, RX ok 2000, RX not ok (0/0/0/0)\n")
	tl := New(path)
	tl.Read()
	committed := tl.Offset()

	appendFile(t, path, "[NR_PHY] I [UE0] 11:2 PSSCH Stats: TX 25")
	res := tl.Read()
	if res.Status != sidelink.StatusRunning || len(res.Lines) != 0 {
		t.Fatalf("expected no lines while the write is in flight, got %s %q", res.Status, res.Lines)
	}
	if tl.Offset() != committed {
		t.Fatalf("cursor moved into the unfinished line: %d != %d", tl.Offset(), committed)
	}

	appendFile(t, path, "00, RX ok 2500, RX not ok (0/0/0/0)\n")
	res = tl.Read()
	want := "[NR_PHY] I [UE0] 11:2 PSSCH Stats: TX 2500, RX ok 2500, RX not ok (0/0/0/0)"
	if len(res.Lines) != 1 || res.Lines[0] != want {
		t.Fatalf("expected the completed line, got %q", res.Lines)
	}
	rec, ok := sidelink.ParseStatsLine(res.Lines[0])
	if !ok || rec.TX != 2500 || rec.Frame != 11 {
		t.Fatalf("completed line did not parse as TX 2500: %+v ok=%v", rec, ok)
	}
}

func TestReadRewindsAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ue.log")
	appendFile(t, path, "first line\nsecond line\n")
	tl := New(path)
	tl.Read()

	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	res := tl.Read()
	if !res.Rewound {
		t.Fatalf("expected rewind after truncation")
	}
	if len(res.Lines) != 1 || res.Lines[0] != "new" {
		t.Fatalf("expected the replacement content, got %q", res.Lines)
	}
	if tl.Offset() != 4 {
		t.Fatalf("expected cursor 4, got %d", tl.Offset())
	}
}

func TestReadOpenFailureIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ue.log")
	appendFile(t, path, "line\n")
	tl := New(path)
	tl.Read()
	before := tl.Offset()

	tl.open = func(string) (*os.File, error) {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrPermission}
	}
	res := tl.Read()
	if res.Status != sidelink.StatusError {
		t.Fatalf("expected error status, got %s", res.Status)
	}
	if res.Err == nil || !errors.Is(res.Err, fs.ErrPermission) {
		t.Fatalf("expected wrapped permission error, got %v", res.Err)
	}
	if res.Batch().Err == nil {
		t.Fatalf("expected error detail to reach the aggregator")
	}
	if tl.Offset() != before {
		t.Fatalf("cursor moved on failure: %d -> %d", before, tl.Offset())
	}
}
