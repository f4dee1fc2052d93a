package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iti/rngstream"

	eb "mesh-mac-simulation/internal/eventBus"
	"mesh-mac-simulation/internal/frame"
	"mesh-mac-simulation/internal/mac"
	"mesh-mac-simulation/internal/mesh"
	"mesh-mac-simulation/internal/metrics"
	"mesh-mac-simulation/internal/node"
)

// BaseAddress is the address block simulated nodes are numbered from.
const BaseAddress frame.Address = 0x0AAA_0000_0000_0000

const (
	// paceTick is the simulated interval between wake-ups of a paced run,
	// bounding how long an injected frame waits for the next event.
	paceTick = 10 * time.Millisecond
	// drainCheck is how often a draining run looks for empty queues.
	drainCheck = time.Millisecond
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrNotRunning  = errors.New("simulation is not running")
)

type station struct {
	node  *node.Node
	radio *Radio
}

type injection struct {
	src, dst frame.Address
	payload  []byte
	reply    chan error
}

// Runner builds the nodes of a scenario on one medium and drives them on
// a simulated clock.
type Runner struct {
	sc   *Scenario
	bus  *eb.EventBus
	coll *metrics.Collector
	log  *slog.Logger

	id       uuid.UUID
	k        *Kernel
	medium   *Medium
	rng      *rngstream.RngStream
	stations []*station
	byAddr   map[frame.Address]*station
	sent     uint64
	stopped  bool

	inject  chan injection
	running chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewRunner(sc *Scenario, bus *eb.EventBus, coll *metrics.Collector, log *slog.Logger) (*Runner, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		sc:      sc,
		bus:     bus,
		coll:    coll,
		id:      uuid.New(),
		k:       NewKernel(),
		rng:     stream(streamName(sc, "traffic")),
		byAddr:  make(map[frame.Address]*station),
		inject:  make(chan injection),
		running: make(chan struct{}),
		done:    make(chan struct{}),
	}
	r.log = log.With("run", r.id.String())
	r.medium = NewMedium(sc.Radio, r.k, r.log)

	var positions []mesh.Position
	switch sc.Nodes.Placement {
	case "uniform":
		positions = mesh.Uniform(sc.Nodes.Count, sc.AreaSide, stream(streamName(sc, "placement")))
	default:
		positions = mesh.Grid(sc.Nodes.Count, sc.AreaSide)
	}
	for i, pos := range positions {
		addr := BaseAddress + frame.Address(i+1)
		radio := r.medium.Attach(addr, pos)
		timers := NewTimers(r.k)
		n := node.NewNode(addr, pos, bus, r.k.Now, r.log)
		engine, err := mac.New(sc.MAC, addr, radio, timers, n,
			mac.WithObserver(n),
			mac.WithLogger(r.log),
			mac.WithRand(stream(streamName(sc, "mac/"+addr.String()))),
		)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", addr, err)
		}
		timers.Bind(engine.HandleTimer)
		radio.Bind(engine)
		n.Attach(engine, sc.Telemetry.ETXAlpha)
		st := &station{node: n, radio: radio}
		r.stations = append(r.stations, st)
		r.byAddr[addr] = st
	}
	return r, nil
}

// streamName keys a random stream by scenario, seed and purpose.
func streamName(sc *Scenario, purpose string) string {
	return fmt.Sprintf("%s/%d/%s", sc.Name, sc.Seed, purpose)
}

func (r *Runner) ID() uuid.UUID { return r.id }

// Nodes returns the simulated nodes. They must not be touched while Run
// is in progress.
func (r *Runner) Nodes() []*node.Node {
	out := make([]*node.Node, len(r.stations))
	for i, st := range r.stations {
		out[i] = st.node
	}
	return out
}

func (r *Runner) Medium() *Medium { return r.medium }

// Run executes the scenario until its duration elapses, then stops or
// drains. It may only be called once. The collector receives the node
// reports even when ctx ends the run early.
func (r *Runner) Run(ctx context.Context) error {
	defer r.once.Do(func() { close(r.done) })

	sub := r.bus.SubscribeSize(4096)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.consumeEvents(sub)
	}()
	defer func() {
		r.bus.Unsubscribe(sub)
		wg.Wait()
	}()

	start := time.Now()
	for _, st := range r.stations {
		st.node.Announce()
		st.node.Engine().Start()
		first := r.sc.Traffic.StartAfter + time.Duration(r.rng.RandU01()*float64(r.sc.Traffic.Interval))
		r.k.At(first, func() { r.emitTraffic(st) })
	}
	if iv := r.sc.Telemetry.Interval; iv > 0 {
		var tick func()
		tick = func() {
			for _, st := range r.stations {
				st.node.PublishHealth()
			}
			r.k.After(iv, tick)
		}
		r.k.After(iv, tick)
	}
	if r.sc.Pace > 0 {
		var beat func()
		beat = func() { r.k.After(paceTick, beat) }
		r.k.After(paceTick, beat)
	}
	r.k.At(r.sc.Duration, r.horizon)
	end := r.sc.Duration
	if r.sc.EndMode == "drain" {
		end += r.sc.DrainTimeout
	}

	close(r.running)
	r.log.Info("simulation started", "scenario", r.sc.Name, "nodes", len(r.stations), "duration", r.sc.Duration)

	err := r.k.Run(ctx, end, r.gate(ctx, start))
	if err == nil {
		err = ctx.Err()
	}
	r.stopped = true
	if err == nil && r.sc.EndMode == "drain" && !r.drained() {
		r.log.Warn("drain timeout reached with frames pending", "pending", r.pending())
	}
	r.once.Do(func() { close(r.done) })

	r.collect(time.Since(start))
	r.log.Info("simulation finished", "sim_time", r.k.Now(), "events", r.k.Steps(), "wall", time.Since(start))
	return err
}

// horizon ends traffic at the scenario duration. A draining run goes on
// until every queue is empty or the drain timeout passes.
func (r *Runner) horizon() {
	r.stopped = true
	if r.sc.EndMode != "drain" {
		r.k.Halt()
		return
	}
	var check func()
	check = func() {
		if r.drained() {
			r.k.Halt()
			return
		}
		r.k.After(drainCheck, check)
	}
	check()
}

// gate runs ahead of every event with the clock at the event's time. It
// serves injected frames and, when pacing, holds the event until the wall
// clock reaches its time. It returns false once ctx is done.
func (r *Runner) gate(ctx context.Context, start time.Time) func(at time.Duration) bool {
	return func(at time.Duration) bool {
		for idle := false; !idle; {
			select {
			case req := <-r.inject:
				req.reply <- r.send(req.src, req.dst, req.payload)
			default:
				idle = true
			}
		}
		if r.sc.Pace <= 0 {
			return true
		}
		wait := time.Until(start.Add(time.Duration(float64(at) / r.sc.Pace)))
		if wait <= 0 {
			return true
		}
		t := time.NewTimer(wait)
		defer t.Stop()
		for {
			select {
			case req := <-r.inject:
				req.reply <- r.send(req.src, req.dst, req.payload)
			case <-t.C:
				return true
			case <-ctx.Done():
				return false
			}
		}
	}
}

func (r *Runner) drained() bool {
	return r.pending() == 0
}

func (r *Runner) pending() int {
	n := 0
	for _, st := range r.stations {
		e := st.node.Engine()
		n += e.QueueLen()
		if e.HasCurrent() || e.State() != mac.StateIdle {
			n++
		}
	}
	return n
}

func (r *Runner) send(src, dst frame.Address, payload []byte) error {
	st, ok := r.byAddr[src]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, src)
	}
	return st.node.SendData(dst, payload)
}

// InjectFrame queues payload at src for dst from outside the simulation.
// It blocks until the running simulation has accepted the frame.
func (r *Runner) InjectFrame(ctx context.Context, src, dst frame.Address, payload []byte) error {
	req := injection{src: src, dst: dst, payload: payload, reply: make(chan error, 1)}
	select {
	case <-r.running:
	case <-r.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case r.inject <- req:
	case <-r.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.reply
}

func (r *Runner) consumeEvents(ch chan eb.Event) {
	for ev := range ch {
		r.coll.Consume(ev)
	}
}

// emitTraffic queues one frame at st and schedules the next.
func (r *Runner) emitTraffic(st *station) {
	if r.stopped {
		return
	}
	dst := frame.Broadcast
	if r.rng.RandU01() >= r.sc.Traffic.BroadcastRatio {
		if nbs := r.medium.Neighbors(st.radio); len(nbs) > 0 {
			dst = nbs[int(r.rng.RandU01()*float64(len(nbs)))].Address()
		}
	}
	if err := st.node.SendData(dst, r.payload()); err != nil {
		r.log.Warn("traffic frame rejected", "node", st.node.GetID(), "err", err)
	}
	r.k.After(r.gap(), func() { r.emitTraffic(st) })
}

func (r *Runner) gap() time.Duration {
	iv := r.sc.Traffic.Interval
	if r.sc.Traffic.Pattern == "periodic" {
		return iv
	}
	// RandU01 never returns 0 or 1
	return max(time.Duration(-math.Log(r.rng.RandU01())*float64(iv)), time.Microsecond)
}

// payload carries a run-wide counter in its first eight bytes.
func (r *Runner) payload() []byte {
	r.sent++
	p := make([]byte, r.sc.Traffic.PayloadSize)
	if len(p) >= 8 {
		binary.BigEndian.PutUint64(p, r.sent)
	}
	return p
}

func (r *Runner) collect(wall time.Duration) {
	for _, st := range r.stations {
		n := st.node
		sum := metrics.NodeSummary{
			Address:   n.GetID().String(),
			X:         n.GetPosition().X,
			Y:         n.GetPosition().Y,
			Delivered: len(n.Received()),
			MAC:       n.Engine().Report(),
		}
		if etx := n.ETX(); len(etx) > 0 {
			sum.ETX = make(map[string]float64, len(etx))
			for a, v := range etx {
				sum.ETX[a.String()] = v
			}
		}
		r.coll.AddNodeReport(sum)
	}
	r.coll.SetChannel(r.medium.Stats())
	r.coll.SetRun(metrics.RunInfo{
		ID:      r.id.String(),
		Name:    r.sc.Name,
		SimTime: r.k.Now(),
		Events:  r.k.Steps(),
		Wall:    wall,
	})
}
