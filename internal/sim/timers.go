package sim

import (
	"time"

	"mesh-mac-simulation/internal/mac"
)

// Timers runs one node's MAC timers on the shared kernel.
type Timers struct {
	k       *Kernel
	pending map[mac.TimerID]*Event
	fire    func(mac.TimerID)
}

func NewTimers(k *Kernel) *Timers {
	return &Timers{k: k, pending: make(map[mac.TimerID]*Event)}
}

// Bind sets the callback for expirations, normally Engine.HandleTimer.
func (t *Timers) Bind(fire func(mac.TimerID)) { t.fire = fire }

// Schedule replaces any pending instance of id.
func (t *Timers) Schedule(id mac.TimerID, d time.Duration) {
	t.Cancel(id)
	var ev *Event
	ev = t.k.After(d, func() {
		if t.pending[id] == ev {
			delete(t.pending, id)
		}
		if t.fire != nil {
			t.fire(id)
		}
	})
	t.pending[id] = ev
}

func (t *Timers) Cancel(id mac.TimerID) {
	if ev, ok := t.pending[id]; ok {
		t.k.Cancel(ev)
		delete(t.pending, id)
	}
}

func (t *Timers) Pending(id mac.TimerID) bool {
	_, ok := t.pending[id]
	return ok
}

func (t *Timers) Now() time.Duration { return t.k.Now() }
