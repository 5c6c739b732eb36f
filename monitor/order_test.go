package monitor

import (
	"testing"
	"time"

	"sidelinkmon/sidelink"
)

func TestOrderGuardDropsOlderPerRole(t *testing.T) {
	var g OrderGuard
	base := time.Date(2026, time.May, 4, 9, 0, 0, 0, time.UTC)
	at := func(role sidelink.Role, sec int) Observation {
		return Observation{Role: role, At: base.Add(time.Duration(sec) * time.Second), Polled: true}
	}

	if !g.Fresh(at(sidelink.RolePrimary, 2)) {
		t.Fatalf("first observation must be fresh")
	}
	if g.Fresh(at(sidelink.RolePrimary, 1)) {
		t.Fatalf("older primary observation delivered late must be dropped")
	}
	if !g.Fresh(at(sidelink.RoleNearby, 1)) {
		t.Fatalf("roles are tracked independently")
	}
	if !g.Fresh(at(sidelink.RolePrimary, 3)) {
		t.Fatalf("newer observation must be fresh")
	}
}
