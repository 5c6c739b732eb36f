package monitor

import (
	"time"

	"sidelinkmon/sidelink"
)

// LinkStatus is the cross-source rollup.
type LinkStatus struct {
	LinkEstablished bool    `json:"link_established"`
	OverallQuality  float64 `json:"overall_quality"`
	PrimaryRunning  bool    `json:"primary_running"`
	NearbyRunning   bool    `json:"nearby_running"`
	PSSCHTotalTx    uint64  `json:"pssch_total_tx"`
	PSSCHTotalRxOK  uint64  `json:"pssch_total_rx_ok"`
	PSSCHTotalErr   uint64  `json:"pssch_total_errors"`
	PSBCHSyncCount  uint64  `json:"psbch_sync_count"`
	// Sidelink operates without base station or core network.
	GNBStatus  string    `json:"gnb_status"`
	CoreStatus string    `json:"core_status"`
	Timestamp  time.Time `json:"timestamp"`
}

// BuildLinkStatus combines the primary and nearby observations.
func BuildLinkStatus(primary, nearby Observation, now time.Time) LinkStatus {
	p, n := primary.Snapshot, nearby.Snapshot
	primaryRunning := p.Status == sidelink.StatusRunning
	nearbyRunning := n.Status == sidelink.StatusRunning
	return LinkStatus{
		LinkEstablished: primaryRunning && nearbyRunning && n.Synchronized(),
		OverallQuality:  float64(primary.Quality.Level+nearby.Quality.Level) / 2,
		PrimaryRunning:  primaryRunning,
		NearbyRunning:   nearbyRunning,
		PSSCHTotalTx:    p.PSSCH.TX + n.PSSCH.TX,
		PSSCHTotalRxOK:  p.PSSCH.RxOK + n.PSSCH.RxOK,
		PSSCHTotalErr:   p.PSSCH.RxNotOK + n.PSSCH.RxNotOK,
		PSBCHSyncCount:  n.PSBCH.RxOK,
		GNBStatus:       "offline",
		CoreStatus:      "offline",
		Timestamp:       now,
	}
}

// FlowEntry is one arrow of the message sequence diagram.
type FlowEntry struct {
	From    sidelink.Role    `json:"from"`
	To      sidelink.Role    `json:"to"`
	Channel sidelink.Channel `json:"channel"`
	Label   string           `json:"label"`
	Count   uint64           `json:"count"`
}

type flowRule struct {
	channel sidelink.Channel
	label   string
	// received entries point from the peer to the observing role
	received bool
	value    func(sidelink.ChannelCounters) uint64
}

var flowRules = []flowRule{
	{sidelink.ChannelPSBCH, "Sync broadcast", false, func(c sidelink.ChannelCounters) uint64 { return c.TX }},
	{sidelink.ChannelPSBCH, "Sync received", true, func(c sidelink.ChannelCounters) uint64 { return c.RxOK }},
	{sidelink.ChannelPSCCH, "Control (SCI)", false, func(c sidelink.ChannelCounters) uint64 { return c.TX }},
	{sidelink.ChannelPSSCH, "Data transfer", false, func(c sidelink.ChannelCounters) uint64 { return c.TX }},
	{sidelink.ChannelPSSCH, "Data received", true, func(c sidelink.ChannelCounters) uint64 { return c.RxOK }},
	{sidelink.ChannelPSFCH, "HARQ feedback", false, func(c sidelink.ChannelCounters) uint64 { return c.TX }},
}

// BuildMessageFlow derives sequence-diagram entries from the current
// cumulative counters of both roles. Zero counters produce no entry.
func BuildMessageFlow(views map[sidelink.Role]Observation) []FlowEntry {
	entries := make([]FlowEntry, 0, len(flowRules)*len(sidelink.Roles))
	for _, role := range sidelink.Roles {
		obs, ok := views[role]
		if !ok {
			continue
		}
		peer := peerOf(role)
		for _, rule := range flowRules {
			count := rule.value(obs.Snapshot.Counters(rule.channel))
			if count == 0 {
				continue
			}
			from, to := role, peer
			if rule.received {
				from, to = peer, role
			}
			entries = append(entries, FlowEntry{
				From:    from,
				To:      to,
				Channel: rule.channel,
				Label:   rule.label,
				Count:   count,
			})
		}
	}
	return entries
}

func peerOf(role sidelink.Role) sidelink.Role {
	if role == sidelink.RolePrimary {
		return sidelink.RoleNearby
	}
	return sidelink.RolePrimary
}

// Event is one entry of the operator event feed.
type Event struct {
	Time    string `json:"time"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// BuildEvents summarizes the link state as a short event feed.
func BuildEvents(link LinkStatus, primary, nearby Observation, now time.Time) []Event {
	stamp := now.Format("15:04:05")
	events := make([]Event, 0, 4)
	if link.LinkEstablished {
		events = append(events, Event{stamp, "success", "Sidelink: OPERATIONAL"})
	} else {
		events = append(events, Event{stamp, "error", "Sidelink: DOWN"})
	}
	events = append(events, Event{stamp, "info", "Operating in autonomous mode (no infrastructure)"})
	for _, obs := range []Observation{primary, nearby} {
		if obs.Snapshot.Status == sidelink.StatusError {
			events = append(events, Event{stamp, "error", string(obs.Role) + " log unreadable: " + obs.Snapshot.Error})
		} else if obs.Snapshot.Status == sidelink.StatusStopped {
			events = append(events, Event{stamp, "warning", string(obs.Role) + " log not found"})
		}
	}
	// report the weaker side
	label := primary.Quality.Label
	if nearby.Quality.Level < primary.Quality.Level {
		label = nearby.Quality.Label
	}
	kind := "success"
	if label == sidelink.LabelPoor || label == sidelink.LabelFair {
		kind = "warning"
	}
	events = append(events, Event{stamp, kind, "Channel quality: " + string(label)})
	return events
}
