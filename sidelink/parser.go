package sidelink

import (
	"regexp"
	"strconv"
)

// Stats lines look like:
//
//	[NR_PHY] I [UE0] 128:19 PSBCH Stats: TX 1561, RX ok 0, RX not ok 0
//	[NR_PHY] I [UE0] 128:19 PSCCH Stats: TX 12, RX ok 10
//	[NR_PHY] I [UE0] 128:19 PSSCH Stats: TX 12, RX ok 10, RX not ok (2/0/1/3)
//	[NR_PHY] I [UE0] 128:19 PSFCH Stats: TX 4
//
// Each line reports cumulative counters for one channel, so a later line
// replaces an earlier one rather than adding to it.
var (
	frameSlotPattern = regexp.MustCompile(`\[UE\d*\]\s+(\d+):(\d+)`)
	psbchPattern     = regexp.MustCompile(`PSBCH Stats: TX (\d+), RX ok (\d+), RX not ok (\d+)`)
	pscchPattern     = regexp.MustCompile(`PSCCH Stats: TX (\d+), RX ok (\d+)`)
	psschPattern     = regexp.MustCompile(`PSSCH Stats: TX (\d+), RX ok (\d+), RX not ok \((\d+)/(\d+)/(\d+)/(\d+)\)`)
	psfchPattern     = regexp.MustCompile(`PSFCH Stats: TX (\d+)`)
)

type channelGrammar struct {
	channel Channel
	pattern *regexp.Regexp
	build   func(values []uint64) (tx, rxOK, rxNotOK uint64)
}

// PSSCH's not-ok figure is four failure sub-categories that are collapsed
// into a single total.
var channelGrammars = []channelGrammar{
	{ChannelPSBCH, psbchPattern, func(v []uint64) (uint64, uint64, uint64) { return v[0], v[1], v[2] }},
	{ChannelPSCCH, pscchPattern, func(v []uint64) (uint64, uint64, uint64) { return v[0], v[1], 0 }},
	{ChannelPSSCH, psschPattern, func(v []uint64) (uint64, uint64, uint64) { return v[0], v[1], v[2] + v[3] + v[4] + v[5] }},
	{ChannelPSFCH, psfchPattern, func(v []uint64) (uint64, uint64, uint64) { return v[0], 0, 0 }},
}

// Purpose: Extract one channel record from a log line.
// Key aspects: Lenient; lines without a frame:slot marker or without a known
// channel grammar return ok=false and are never treated as errors.
// Upstream: Aggregate, cmd/slstat.
// Downstream: regexp matching and strconv.
func ParseStatsLine(line string) (Record, bool) {
	marker := frameSlotPattern.FindStringSubmatch(line)
	if marker == nil {
		return Record{}, false
	}
	frame, err := strconv.Atoi(marker[1])
	if err != nil {
		return Record{}, false
	}
	slot, err := strconv.Atoi(marker[2])
	if err != nil {
		return Record{}, false
	}

	for _, grammar := range channelGrammars {
		match := grammar.pattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		values, ok := parseUints(match[1:])
		if !ok {
			return Record{}, false
		}
		tx, rxOK, rxNotOK := grammar.build(values)
		return Record{
			Channel: grammar.channel,
			Frame:   frame,
			Slot:    slot,
			TX:      tx,
			RxOK:    rxOK,
			RxNotOK: rxNotOK,
		}, true
	}
	return Record{}, false
}

func parseUints(fields []string) ([]uint64, bool) {
	values := make([]uint64, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}
