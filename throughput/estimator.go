// Package throughput turns cumulative packet counters into instantaneous
// Mbps figures by differencing successive observations.
package throughput

import "time"

// NominalPacketBytes is the assumed size of every counted packet.
const NominalPacketBytes = 1500

// Rates are instantaneous throughput figures in megabits per second.
type Rates struct {
	TxMbps float64 `json:"tx_mbps"`
	RxMbps float64 `json:"rx_mbps"`
	// Reset is set when a counter went backwards and the baseline restarted.
	Reset bool `json:"-"`
}

// Estimator holds the baseline of one source. It is not safe for concurrent
// use; the owning poll cycle serializes calls.
type Estimator struct {
	lastTX   uint64
	lastRxOK uint64
	lastAt   time.Time
	primed   bool
}

// NewEstimator returns an estimator with no baseline.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Prime sets the baseline without producing a rate.
func (e *Estimator) Prime(tx, rxOK uint64, at time.Time) {
	e.lastTX = tx
	e.lastRxOK = rxOK
	e.lastAt = at
	e.primed = true
}

// Baseline returns the stored counters and observation time.
func (e *Estimator) Baseline() (tx, rxOK uint64, at time.Time) {
	return e.lastTX, e.lastRxOK, e.lastAt
}

// Purpose: Derive tx/rx throughput from the change since the last observation.
// Key aspects: First call only primes; dt == 0 returns zeros and keeps the
// baseline; a decreasing counter reports 0 and restarts from the new value;
// any other dt updates the baseline.
// Upstream: monitor.Source.Poll.
// Downstream: none.
func (e *Estimator) Observe(tx, rxOK uint64, now time.Time) Rates {
	if !e.primed {
		e.Prime(tx, rxOK, now)
		return Rates{}
	}
	dt := now.Sub(e.lastAt).Seconds()
	if dt == 0 {
		return Rates{}
	}

	txRate, txReset := rate(tx, e.lastTX, dt)
	rxRate, rxReset := rate(rxOK, e.lastRxOK, dt)
	e.Prime(tx, rxOK, now)
	return Rates{
		TxMbps: toMbps(txRate),
		RxMbps: toMbps(rxRate),
		Reset:  txReset || rxReset,
	}
}

func rate(current, previous uint64, dt float64) (float64, bool) {
	if current < previous {
		return 0, true
	}
	r := float64(current-previous) / dt
	if r < 0 {
		return 0, false
	}
	return r, false
}

func toMbps(packetsPerSecond float64) float64 {
	return packetsPerSecond * NominalPacketBytes * 8 / 1e6
}
