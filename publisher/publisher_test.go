package publisher

import (
	"testing"
	"time"

	"sidelinkmon/monitor"
	"sidelinkmon/sidelink"
)

func TestBuildPayloadEncodesChannels(t *testing.T) {
	snap := sidelink.NewSnapshot()
	snap.Status = sidelink.StatusRunning
	snap.Frame, snap.Slot = 512, 9
	snap.PSSCH = sidelink.ChannelCounters{TX: 40, RxOK: 38, RxNotOK: 2}
	at := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	obs := monitor.Observation{Role: sidelink.RoleNearby, At: at, Snapshot: snap, Quality: sidelink.Evaluate(&snap, nil), Polled: true}

	body, err := json.Marshal(BuildPayload(obs))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Role     string `json:"role"`
		Frame    int    `json:"frame"`
		Channels map[string]struct {
			TX      uint64 `json:"tx"`
			RxNotOK uint64 `json:"rx_not_ok"`
		} `json:"channels"`
		Quality struct {
			Label string `json:"quality"`
		} `json:"quality"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Role != "nearby" || decoded.Frame != 512 {
		t.Fatalf("unexpected header fields: %s", body)
	}
	if len(decoded.Channels) != 4 || decoded.Channels["PSSCH"].TX != 40 || decoded.Channels["PSSCH"].RxNotOK != 2 {
		t.Fatalf("unexpected channels: %s", body)
	}
	if decoded.Quality.Label != "GOOD" {
		t.Fatalf("expected GOOD quality at 95%%, got %s", decoded.Quality.Label)
	}
}

func TestTopicTrimsPrefix(t *testing.T) {
	p := New(Options{TopicPrefix: "lab/sidelink/"})
	if got := p.Topic(sidelink.RolePrimary); got != "lab/sidelink/primary" {
		t.Fatalf("unexpected topic %q", got)
	}
	if got := New(Options{}).Topic(sidelink.RoleNearby); got != "sidelink/nearby" {
		t.Fatalf("unexpected default topic %q", got)
	}
}

func TestObserveWithoutConnectionIsNoop(t *testing.T) {
	p := New(Options{})
	p.Observe(monitor.Observation{Role: sidelink.RolePrimary, Polled: true})
	if published, _ := p.Stats(); published != 0 {
		t.Fatalf("expected nothing published, got %d", published)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
