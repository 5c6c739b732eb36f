// Package sidelink holds the canonical telemetry types shared by the tailer,
// the poll cycle and the HTTP surface, plus the pure functions that turn raw
// log lines into per-channel counters and quality assessments.
package sidelink

import (
	"strings"
	"time"
)

// Role identifies which radio process a log belongs to.
type Role string

const (
	RolePrimary Role = "primary"
	RoleNearby  Role = "nearby"
)

// Roles lists every supported role in display order.
var Roles = []Role{RolePrimary, RoleNearby}

// ParseRole maps a user-supplied name onto a Role. "syncref" is accepted as
// the legacy name of the primary role.
func ParseRole(name string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "primary", "syncref":
		return RolePrimary, true
	case "nearby":
		return RoleNearby, true
	default:
		return "", false
	}
}

// Status describes the reachability of a source as observed by the last poll.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// Channel names one of the four sidelink physical channels.
type Channel string

const (
	ChannelPSBCH Channel = "PSBCH"
	ChannelPSCCH Channel = "PSCCH"
	ChannelPSSCH Channel = "PSSCH"
	ChannelPSFCH Channel = "PSFCH"
)

// Channels lists the channels in the order they are reported.
var Channels = []Channel{ChannelPSBCH, ChannelPSCCH, ChannelPSSCH, ChannelPSFCH}

// ChannelCounters are the latest cumulative counters a process reported for
// one channel. They are never deltas.
type ChannelCounters struct {
	TX      uint64 `json:"tx"`
	RxOK    uint64 `json:"rx_ok"`
	RxNotOK uint64 `json:"rx_not_ok"`
}

// Record is one parsed stats line.
type Record struct {
	Channel Channel
	Frame   int
	Slot    int
	TX      uint64
	RxOK    uint64
	RxNotOK uint64
}

// Counters returns the record's counter triple.
func (r Record) Counters() ChannelCounters {
	return ChannelCounters{TX: r.TX, RxOK: r.RxOK, RxNotOK: r.RxNotOK}
}

// Snapshot is the accumulated observable state of one source. Channel
// counters and frame/slot persist across polls until a newer line overwrites
// them; Status always reflects the latest poll.
type Snapshot struct {
	Status    Status
	Frame     int
	Slot      int
	PSBCH     ChannelCounters
	PSCCH     ChannelCounters
	PSSCH     ChannelCounters
	PSFCH     ChannelCounters
	Terminal  []string
	Error     string
	UpdatedAt time.Time
}

// NewSnapshot returns the initial snapshot of a source that was never polled.
func NewSnapshot() Snapshot {
	return Snapshot{Status: StatusUnknown}
}

// Counters returns the counters of the given channel.
func (s *Snapshot) Counters(ch Channel) ChannelCounters {
	switch ch {
	case ChannelPSBCH:
		return s.PSBCH
	case ChannelPSCCH:
		return s.PSCCH
	case ChannelPSSCH:
		return s.PSSCH
	case ChannelPSFCH:
		return s.PSFCH
	default:
		return ChannelCounters{}
	}
}

func (s *Snapshot) counterSlot(ch Channel) *ChannelCounters {
	switch ch {
	case ChannelPSBCH:
		return &s.PSBCH
	case ChannelPSCCH:
		return &s.PSCCH
	case ChannelPSSCH:
		return &s.PSSCH
	case ChannelPSFCH:
		return &s.PSFCH
	default:
		return nil
	}
}

// Clone returns a copy that shares no mutable memory with s.
func (s Snapshot) Clone() Snapshot {
	if s.Terminal != nil {
		s.Terminal = append([]string(nil), s.Terminal...)
	}
	return s
}

// Synchronized reports whether the source has decoded at least one sync
// broadcast.
func (s *Snapshot) Synchronized() bool {
	return s.PSBCH.RxOK > 0
}

// TerminalTail returns at most the last n terminal lines.
func (s *Snapshot) TerminalTail(n int) []string {
	if n <= 0 || len(s.Terminal) == 0 {
		return []string{}
	}
	lines := s.Terminal
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return append([]string(nil), lines...)
}
