package monitor

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sidelinkmon/sidelink"

	"github.com/prometheus/client_golang/prometheus"
)

func observation(role sidelink.Role, status sidelink.Status, psbch, pssch sidelink.ChannelCounters) Observation {
	snap := sidelink.NewSnapshot()
	snap.Status = status
	snap.PSBCH = psbch
	snap.PSSCH = pssch
	return Observation{Role: role, Snapshot: snap, Quality: sidelink.Evaluate(&snap, nil), Polled: true}
}

func TestBuildLinkStatus(t *testing.T) {
	now := time.Now()
	primary := observation(sidelink.RolePrimary, sidelink.StatusRunning,
		sidelink.ChannelCounters{TX: 500},
		sidelink.ChannelCounters{TX: 100, RxOK: 99, RxNotOK: 1})
	nearby := observation(sidelink.RoleNearby, sidelink.StatusRunning,
		sidelink.ChannelCounters{RxOK: 480, RxNotOK: 20},
		sidelink.ChannelCounters{TX: 10, RxOK: 89, RxNotOK: 11})

	link := BuildLinkStatus(primary, nearby, now)
	if !link.LinkEstablished {
		t.Fatalf("expected link established")
	}
	if link.OverallQuality != 70 {
		t.Fatalf("expected average quality 70 (100 and 40), got %v", link.OverallQuality)
	}
	if link.PSSCHTotalTx != 110 || link.PSSCHTotalRxOK != 188 || link.PSSCHTotalErr != 12 {
		t.Fatalf("unexpected PSSCH totals: %+v", link)
	}
	if link.PSBCHSyncCount != 480 {
		t.Fatalf("expected sync count from nearby PSBCH rx_ok, got %d", link.PSBCHSyncCount)
	}

	nearby.Snapshot.PSBCH.RxOK = 0
	if BuildLinkStatus(primary, nearby, now).LinkEstablished {
		t.Fatalf("link should be down without sync")
	}
}

func TestBuildMessageFlowSkipsZeroCounters(t *testing.T) {
	views := map[sidelink.Role]Observation{
		sidelink.RolePrimary: observation(sidelink.RolePrimary, sidelink.StatusRunning,
			sidelink.ChannelCounters{TX: 10}, sidelink.ChannelCounters{TX: 4}),
		sidelink.RoleNearby: observation(sidelink.RoleNearby, sidelink.StatusRunning,
			sidelink.ChannelCounters{RxOK: 9}, sidelink.ChannelCounters{RxOK: 3}),
	}
	flow := BuildMessageFlow(views)
	if len(flow) != 4 {
		t.Fatalf("expected 4 entries, got %+v", flow)
	}
	want := []struct {
		from, to sidelink.Role
		label    string
		count    uint64
	}{
		{sidelink.RolePrimary, sidelink.RoleNearby, "Sync broadcast", 10},
		{sidelink.RolePrimary, sidelink.RoleNearby, "Data transfer", 4},
		{sidelink.RolePrimary, sidelink.RoleNearby, "Sync received", 9},
		{sidelink.RolePrimary, sidelink.RoleNearby, "Data received", 3},
	}
	for i, w := range want {
		got := flow[i]
		if got.From != w.from || got.To != w.to || got.Label != w.label || got.Count != w.count {
			t.Fatalf("entry %d: expected %+v, got %+v", i, w, got)
		}
	}
}

func TestBuildEventsReportsUnavailableSources(t *testing.T) {
	primary := observation(sidelink.RolePrimary, sidelink.StatusStopped, sidelink.ChannelCounters{}, sidelink.ChannelCounters{})
	nearby := observation(sidelink.RoleNearby, sidelink.StatusError, sidelink.ChannelCounters{}, sidelink.ChannelCounters{})
	nearby.Snapshot.Error = "permission denied"
	now := time.Date(2026, time.June, 1, 13, 14, 15, 0, time.UTC)
	events := BuildEvents(BuildLinkStatus(primary, nearby, now), primary, nearby, now)

	if events[0].Type != "error" || events[0].Time != "13:14:15" {
		t.Fatalf("expected link-down event first, got %+v", events[0])
	}
	var joined []string
	for _, ev := range events {
		joined = append(joined, ev.Message)
	}
	text := strings.Join(joined, "\n")
	if !strings.Contains(text, "primary log not found") || !strings.Contains(text, "permission denied") {
		t.Fatalf("expected per-source events, got:\n%s", text)
	}
	if !strings.Contains(text, "Channel quality: POOR") {
		t.Fatalf("expected quality event, got:\n%s", text)
	}
}

func TestCollectorExportsViews(t *testing.T) {
	dir := t.TempDir()
	m := New(Options{Paths: map[sidelink.Role]string{
		sidelink.RolePrimary: filepath.Join(dir, "p.log"),
		sidelink.RoleNearby:  filepath.Join(dir, "n.log"),
	}})
	defer m.Close()
	m.PollAll()

	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(m)); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{"sidelink_source_up", "sidelink_channel_packets", "sidelink_throughput_mbps", "sidelink_poll_events_total"} {
		if !found[name] {
			t.Fatalf("expected metric family %s, got %v", name, found)
		}
	}
}
