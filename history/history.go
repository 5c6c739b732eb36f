// Package history keeps the bounded per-source time series shown in charts
// and exported as CSV. One Recorder holds three index-aligned series.
package history

import (
	"time"

	"sidelinkmon/buffer"
	"sidelinkmon/sidelink"
	"sidelinkmon/throughput"
)

// ThroughputSample is one throughput observation.
type ThroughputSample struct {
	Timestamp time.Time `json:"timestamp"`
	TxMbps    float64   `json:"tx_mbps"`
	RxMbps    float64   `json:"rx_mbps"`
}

// SignalSample is one radio/quality observation.
type SignalSample struct {
	Timestamp    time.Time `json:"timestamp"`
	RSRP         float64   `json:"rsrp"`
	SINR         float64   `json:"sinr"`
	CQI          int       `json:"cqi"`
	QualityLevel int       `json:"quality_level"`
}

// PacketSample is one cumulative-counter observation.
type PacketSample struct {
	Timestamp time.Time `json:"timestamp"`
	PSBCHTx   uint64    `json:"psbch_tx"`
	PSSCHTx   uint64    `json:"pssch_tx"`
	PSSCHRx   uint64    `json:"pssch_rx"`
	Errors    uint64    `json:"errors"`
}

// Recorder owns the three series of one source. Append must be serialized by
// the caller; reads are safe at any time.
type Recorder struct {
	throughput *buffer.RingBuffer[ThroughputSample]
	signal     *buffer.RingBuffer[SignalSample]
	packets    *buffer.RingBuffer[PacketSample]
}

// NewRecorder allocates three series of the given capacity.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{
		throughput: buffer.NewRingBuffer[ThroughputSample](capacity),
		signal:     buffer.NewRingBuffer[SignalSample](capacity),
		packets:    buffer.NewRingBuffer[PacketSample](capacity),
	}
}

// Append pushes one sample into each series.
func (r *Recorder) Append(at time.Time, rates throughput.Rates, q sidelink.Quality, snap *sidelink.Snapshot) {
	r.throughput.Add(ThroughputSample{Timestamp: at, TxMbps: rates.TxMbps, RxMbps: rates.RxMbps})
	r.signal.Add(SignalSample{Timestamp: at, RSRP: q.RSRP, SINR: q.SINR, CQI: q.CQI, QualityLevel: q.Level})
	r.packets.Add(PacketSample{
		Timestamp: at,
		PSBCHTx:   snap.PSBCH.TX,
		PSSCHTx:   snap.PSSCH.TX,
		PSSCHRx:   snap.PSSCH.RxOK,
		Errors:    snap.PSSCH.RxNotOK,
	})
}

// Throughput returns the throughput series, oldest first.
func (r *Recorder) Throughput() []ThroughputSample {
	return r.throughput.Snapshot()
}

// Signal returns the signal series, oldest first.
func (r *Recorder) Signal() []SignalSample {
	return r.signal.Snapshot()
}

// Packets returns the packet series, oldest first.
func (r *Recorder) Packets() []PacketSample {
	return r.packets.Snapshot()
}

// Capacity returns the per-series capacity.
func (r *Recorder) Capacity() int {
	return r.throughput.Cap()
}

// Row is one positionally zipped entry of the three series.
type Row struct {
	Throughput ThroughputSample
	Signal     SignalSample
	Packets    PacketSample
}

// Rows zips the three series by index. The series are only aligned when no
// Append runs concurrently, so callers hold the owner's poll lock.
func (r *Recorder) Rows() []Row {
	tp := r.Throughput()
	sig := r.Signal()
	pk := r.Packets()
	n := min(len(tp), len(sig), len(pk))
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		rows[i] = Row{Throughput: tp[i], Signal: sig[i], Packets: pk[i]}
	}
	return rows
}
