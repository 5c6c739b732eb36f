package sidelink

// Label is the categorical link quality.
type Label string

const (
	LabelExcellent Label = "EXCELLENT"
	LabelGood      Label = "GOOD"
	LabelFair      Label = "FAIR"
	LabelPoor      Label = "POOR"
)

// Quality is derived from a snapshot on demand.
type Quality struct {
	Label            Label   `json:"quality"`
	Level            int     `json:"quality_level"`
	PSSCHSuccessRate float64 `json:"pssch_success_rate"`
	PSBCHSuccessRate float64 `json:"psbch_success_rate"`
	RSRP             float64 `json:"rsrp"`
	SINR             float64 `json:"sinr"`
	CQI              int     `json:"cqi"`
}

// Signal carries the radio measurements reported alongside quality.
type Signal struct {
	RSRP float64
	SINR float64
	CQI  int
}

// SignalSource supplies radio measurements for a snapshot.
type SignalSource interface {
	Signal(s *Snapshot) Signal
}

// Placeholder radio measurements. The logs do not carry these values.
const (
	PlaceholderRSRP = -45.0
	PlaceholderSINR = 25.0
	PlaceholderCQI  = 15
)

// PlaceholderSignal returns fixed measurements regardless of the snapshot.
type PlaceholderSignal struct{}

func (PlaceholderSignal) Signal(*Snapshot) Signal {
	return Signal{RSRP: PlaceholderRSRP, SINR: PlaceholderSINR, CQI: PlaceholderCQI}
}

// SuccessRate returns the decode success percentage. With nothing received it
// reports 100 when the channel is transmitting and 0 when it is idle.
func SuccessRate(tx, rxOK, rxNotOK uint64) float64 {
	total := rxOK + rxNotOK
	if total == 0 {
		if tx > 0 {
			return 100.0
		}
		return 0.0
	}
	return float64(rxOK) / float64(total) * 100.0
}

// Classify maps a PSSCH success rate onto a quality band. Lower bounds are
// inclusive.
func Classify(rate float64) (Label, int) {
	switch {
	case rate >= 99:
		return LabelExcellent, 100
	case rate >= 95:
		return LabelGood, 80
	case rate >= 90:
		return LabelFair, 60
	default:
		return LabelPoor, 40
	}
}

// Evaluate scores a snapshot. PSSCH drives the overall band; PSBCH is
// informational. A nil signal source falls back to PlaceholderSignal.
func Evaluate(s *Snapshot, signal SignalSource) Quality {
	if signal == nil {
		signal = PlaceholderSignal{}
	}
	pssch := SuccessRate(s.PSSCH.TX, s.PSSCH.RxOK, s.PSSCH.RxNotOK)
	psbch := SuccessRate(s.PSBCH.TX, s.PSBCH.RxOK, s.PSBCH.RxNotOK)
	label, level := Classify(pssch)
	radio := signal.Signal(s)
	return Quality{
		Label:            label,
		Level:            level,
		PSSCHSuccessRate: pssch,
		PSBCHSuccessRate: psbch,
		RSRP:             radio.RSRP,
		SINR:             radio.SINR,
		CQI:              radio.CQI,
	}
}
