package sim

import (
	"context"
	"time"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// Event is a handle to a scheduled callback.
type Event struct {
	at   time.Duration
	fn   func()
	done bool
}

func (e *Event) At() time.Duration { return e.at }

// Kernel runs callbacks in simulated time on an evtm event manager. The
// manager orders the events; the kernel keeps the clock as a time.Duration,
// skips canceled events when they come up and offers every event to a gate
// before it runs. A Kernel is not safe for concurrent use; everything it
// runs executes on the goroutine that called Run.
type Kernel struct {
	mgr    *evtm.EventManager
	now    time.Duration
	end    time.Duration
	live   int
	steps  uint64
	halted bool

	ctx  context.Context
	err  error
	gate func(at time.Duration) bool
}

func NewKernel() *Kernel {
	return &Kernel{mgr: evtm.New()}
}

func (k *Kernel) Now() time.Duration { return k.now }

// Pending is the number of events scheduled that have neither run nor been
// canceled.
func (k *Kernel) Pending() int { return k.live }

// Steps is the number of events executed so far.
func (k *Kernel) Steps() uint64 { return k.steps }

// At schedules fn at absolute time t. Times in the past run at Now.
func (k *Kernel) At(t time.Duration, fn func()) *Event {
	if t < k.now {
		t = k.now
	}
	ev := &Event{at: t, fn: fn}
	k.live++
	k.mgr.Schedule(k, ev, k.dispatch, vrtime.SecondsToTime((t - k.now).Seconds()))
	return ev
}

func (k *Kernel) After(d time.Duration, fn func()) *Event {
	return k.At(k.now+d, fn)
}

// Cancel keeps e from running. It reports false if e already ran or was
// canceled before.
func (k *Kernel) Cancel(e *Event) bool {
	if e == nil || e.done {
		return false
	}
	e.done = true
	k.live--
	return true
}

// Halt stops the run in progress. Events still queued are discarded.
func (k *Kernel) Halt() { k.halted = true }

// ctxCheckEvery bounds how many events run between context checks.
const ctxCheckEvery = 1024

// runSlack lets the event manager hand over events just past end so the
// kernel, not the manager's tick rounding, decides where the run stops.
const runSlack = time.Second

// Run executes events up to and including time end. gate, if not nil, is
// called with each event's time before the event runs, with the clock
// already advanced; returning false halts the run. A done ctx halts it
// with ctx.Err(). A Kernel runs once: events left when Run returns never
// execute.
func (k *Kernel) Run(ctx context.Context, end time.Duration, gate func(at time.Duration) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if k.halted {
		return nil
	}
	k.ctx, k.end, k.gate = ctx, end, gate
	k.mgr.Run((end + runSlack).Seconds())
	k.halted = true
	k.gate = nil
	return k.err
}

func (k *Kernel) dispatch(_ *evtm.EventManager, _ any, data any) any {
	ev := data.(*Event)
	if ev.done {
		return nil
	}
	ev.done = true
	k.live--
	if k.halted {
		return nil
	}
	if ev.at > k.end {
		k.halted = true
		return nil
	}
	if k.steps%ctxCheckEvery == 0 {
		if err := k.ctx.Err(); err != nil {
			k.err = err
			k.halted = true
			return nil
		}
	}
	if ev.at > k.now {
		k.now = ev.at
	}
	if k.gate != nil && !k.gate(ev.at) {
		k.halted = true
		return nil
	}
	k.steps++
	ev.fn()
	return nil
}
