package monitor

import (
	"sync"
	"time"

	"sidelinkmon/sidelink"
)

// OrderGuard lets an observer discard observations that arrive after a newer
// one of the same role. Concurrent polls of one source finish in order under
// the source lock but notify observers after releasing it, so delivery order
// is not guaranteed.
type OrderGuard struct {
	mu   sync.Mutex
	last map[sidelink.Role]time.Time
}

// Fresh reports whether o is not older than the newest observation already
// accepted for its role, and records it when it is.
func (g *OrderGuard) Fresh(o Observation) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		g.last = make(map[sidelink.Role]time.Time, len(sidelink.Roles))
	}
	if prev, ok := g.last[o.Role]; ok && o.At.Before(prev) {
		return false
	}
	g.last[o.Role] = o.At
	return true
}
