package throughput

import (
	"testing"
	"time"
)

func TestObserveComputesMbps(t *testing.T) {
	t0 := time.Date(2026, time.February, 3, 10, 0, 0, 0, time.UTC)
	e := NewEstimator()
	e.Prime(1000, 800, t0)

	r := e.Observe(2500, 800, t0.Add(time.Second))
	if r.TxMbps != 18.0 {
		t.Fatalf("expected 18.0 tx Mbps, got %v", r.TxMbps)
	}
	if r.RxMbps != 0.0 {
		t.Fatalf("expected 0 rx Mbps, got %v", r.RxMbps)
	}
	tx, rx, at := e.Baseline()
	if tx != 2500 || rx != 800 || !at.Equal(t0.Add(time.Second)) {
		t.Fatalf("baseline not advanced: tx=%d rx=%d at=%s", tx, rx, at)
	}
}

func TestObserveZeroIntervalKeepsBaseline(t *testing.T) {
	t0 := time.Date(2026, time.February, 3, 10, 0, 0, 0, time.UTC)
	e := NewEstimator()
	e.Prime(1000, 800, t0)

	r := e.Observe(5000, 4000, t0)
	if r.TxMbps != 0 || r.RxMbps != 0 {
		t.Fatalf("expected zero rates for dt=0, got %+v", r)
	}
	tx, rx, at := e.Baseline()
	if tx != 1000 || rx != 800 || !at.Equal(t0) {
		t.Fatalf("baseline mutated on dt=0: tx=%d rx=%d at=%s", tx, rx, at)
	}
}

func TestObserveFirstCallPrimes(t *testing.T) {
	t0 := time.Now()
	e := NewEstimator()
	if r := e.Observe(100, 50, t0); r.TxMbps != 0 || r.RxMbps != 0 {
		t.Fatalf("expected zero rates on first observation, got %+v", r)
	}
	r := e.Observe(200, 150, t0.Add(2*time.Second))
	want := 50.0 * NominalPacketBytes * 8 / 1e6
	if r.TxMbps != want || r.RxMbps != want {
		t.Fatalf("expected %v Mbps both ways, got %+v", want, r)
	}
}

func TestObserveCounterDecreaseResetsBaseline(t *testing.T) {
	t0 := time.Now()
	e := NewEstimator()
	e.Prime(10000, 9000, t0)

	r := e.Observe(100, 9500, t0.Add(time.Second))
	if r.TxMbps != 0 {
		t.Fatalf("expected clamped tx rate after restart, got %v", r.TxMbps)
	}
	if !r.Reset {
		t.Fatalf("expected reset flag after counter decrease")
	}
	if r.RxMbps <= 0 {
		t.Fatalf("expected rx rate to keep flowing, got %v", r.RxMbps)
	}

	r = e.Observe(1600, 9500, t0.Add(2*time.Second))
	if r.TxMbps != 18.0 {
		t.Fatalf("expected rate from the restarted baseline, got %v", r.TxMbps)
	}
	if r.Reset {
		t.Fatalf("did not expect reset on a normal increase")
	}
}
