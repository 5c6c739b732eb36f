package history

import (
	"testing"
	"time"

	"sidelinkmon/sidelink"
	"sidelinkmon/throughput"
)

func TestRecorderKeepsSeriesAligned(t *testing.T) {
	rec := NewRecorder(120)
	base := time.Date(2026, time.April, 9, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 121; i++ {
		snap := sidelink.NewSnapshot()
		snap.PSSCH = sidelink.ChannelCounters{TX: uint64(i), RxOK: uint64(i), RxNotOK: 1}
		snap.PSBCH.TX = uint64(10 * i)
		q := sidelink.Evaluate(&snap, nil)
		rec.Append(base.Add(time.Duration(i)*time.Second), throughput.Rates{TxMbps: float64(i)}, q, &snap)
	}

	tp := rec.Throughput()
	if len(tp) != 120 {
		t.Fatalf("expected 120 throughput samples, got %d", len(tp))
	}
	if tp[0].TxMbps != 1 || tp[119].TxMbps != 120 {
		t.Fatalf("expected oldest sample evicted, got first=%v last=%v", tp[0].TxMbps, tp[119].TxMbps)
	}

	rows := rec.Rows()
	if len(rows) != 120 {
		t.Fatalf("expected 120 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if !row.Throughput.Timestamp.Equal(row.Signal.Timestamp) || !row.Signal.Timestamp.Equal(row.Packets.Timestamp) {
			t.Fatalf("row %d misaligned: %+v", i, row)
		}
		if row.Packets.PSSCHTx != uint64(i+1) || row.Packets.PSBCHTx != uint64(10*(i+1)) {
			t.Fatalf("row %d carries wrong packet sample: %+v", i, row.Packets)
		}
	}
	if sig := rec.Signal(); sig[0].RSRP != sidelink.PlaceholderRSRP || sig[0].CQI != sidelink.PlaceholderCQI {
		t.Fatalf("unexpected signal sample: %+v", sig[0])
	}
	if rec.Capacity() != 120 {
		t.Fatalf("expected capacity 120, got %d", rec.Capacity())
	}
}
