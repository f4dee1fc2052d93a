package mac

import (
	"fmt"
	"log/slog"

	"github.com/iti/rngstream"

	"mesh-mac-simulation/internal/frame"
	"mesh-mac-simulation/internal/linkstats"
)

// Engine is a CSMA/CA MAC for one node. It is driven entirely by its host:
// timer expirations, receptions and radio transmission-state changes are
// handed in one at a time and never concurrently.
type Engine struct {
	cfg    Config
	addr   frame.Address
	radio  Radio
	timers Timers
	upper  UpperLayer
	obs    Observer
	log    *slog.Logger

	backoff *Backoff
	queue   *txQueue
	seq     *SequenceTracker
	stats   *linkstats.Aggregator
	est     *linkstats.Estimators

	state       State
	nb          int // busy CCAs in the current cycle
	interrupted bool
	pendingAck  []byte
	txState     TransmissionState

	counters Counters
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.obs = o
		}
	}
}

// WithRand sets the source for backoff draws. Engines seeded identically
// draw identical backoff sequences.
func WithRand(r Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.backoff.rng = r
		}
	}
}

// New validates cfg and builds an engine in the Idle state. Call Start once
// the host is ready to deliver timer events.
func New(cfg Config, addr frame.Address, radio Radio, timers Timers, upper UpperLayer, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if radio == nil || timers == nil || upper == nil {
		return nil, fmt.Errorf("%w: radio, timers and upper layer are required", ErrInvalidConfig)
	}
	e := &Engine{
		cfg:     cfg,
		addr:    addr,
		radio:   radio,
		timers:  timers,
		upper:   upper,
		obs:     noopObserver{},
		log:     slog.Default(),
		backoff: NewBackoff(cfg, rngstream.New("mac/"+addr.String())),
		queue:   newTxQueue(cfg.QueueCapacity),
		seq:     NewSequenceTracker(),
		stats:   linkstats.NewAggregator(),
		est:     linkstats.NewEstimators(cfg.estimatorConfig()),
		state:   StateIdle,
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.With("node", addr.String())
	return e, nil
}

// Start puts the radio in receive mode and arms the periodic estimators.
func (e *Engine) Start() {
	e.radio.SetMode(RadioReceive)
	if e.cfg.ChannelSampleInterval > 0 {
		e.schedule(TimerChannelSample, e.cfg.ChannelSampleDelay)
	}
	if e.cfg.FailRatePeriod > 0 {
		e.schedule(TimerFailRate, e.cfg.FailRateDelay)
	}
	e.log.Debug("mac started", "backoff", e.cfg.BackoffMethod, "acks", e.cfg.UseAcks)
}

// Enqueue accepts a payload for dst. Only frames that cannot be encoded are
// rejected with an error; a full queue counts as a dropped frame.
func (e *Engine) Enqueue(payload []byte, dst frame.Address) error {
	f := &frame.Frame{Type: frame.TypeData, Dst: dst, Src: e.addr, Payload: payload}
	if f.Len() > frame.MaxFrameSize {
		return fmt.Errorf("enqueue to %s: %w", dst, frame.ErrFrameTooLarge)
	}
	if e.queue.full() {
		e.counters.DroppedQueueOverflow++
		e.log.Info("queue full, dropping frame", "dst", dst, "capacity", e.queue.capacity)
		e.obs.FrameDropped(f, DropQueueOverflow)
		return nil
	}
	if e.cfg.UseAcks && !dst.IsGroup() {
		f.Seq = e.seq.NextOutbound(dst)
		f.HasSeq = true
	}
	data, err := f.Encode()
	if err != nil {
		return fmt.Errorf("enqueue to %s: %w", dst, err)
	}
	e.queue.push(&OutboundFrame{Frame: f, Data: data, Enqueued: e.timers.Now()})
	e.counters.Enqueued++
	e.obs.FrameQueued(f)
	e.execute(evSendRequest, nil)
	return nil
}

// HandleTimer is called by the host when a timer scheduled through Timers
// expires.
func (e *Engine) HandleTimer(id TimerID) {
	switch id {
	case TimerBackoff:
		e.execute(evTimerBackoff, nil)
	case TimerCCA:
		e.execute(evTimerCCA, nil)
	case TimerSIFS:
		e.execute(evTimerSIFS, nil)
	case TimerAckWait:
		e.counters.MissedAcks++
		e.execute(evAckTimeout, nil)
	case TimerChannelSample:
		e.est.SampleChannel(e.radio.ChannelIdle(), e.queue.len(), e.timers.Now())
		e.schedule(TimerChannelSample, e.cfg.ChannelSampleInterval)
	case TimerFailRate:
		e.est.RecomputeFailRates(e.timers.Now())
		e.schedule(TimerFailRate, e.cfg.FailRatePeriod)
	default:
		e.log.Warn("unknown timer fired", "timer", id)
	}
}

// HandleReception classifies a frame handed up by the radio and feeds the
// resulting event into the state machine.
func (e *Engine) HandleReception(rx Reception) {
	f, err := frame.Decode(rx.Data)
	if err != nil {
		e.counters.Corrupted++
		e.log.Debug("undecodable frame", "err", err)
		return
	}
	e.stats.Reception(f.Src.NeighborID(), rx.SignalQuality)
	if rx.BitError {
		e.counters.Corrupted++
		e.log.Debug("frame with bit errors dropped", "src", f.Src)
		return
	}

	switch {
	case f.Dst == e.addr && f.Type == frame.TypeAck:
		e.handleAck(&f)
	case f.Dst == e.addr:
		if !e.cfg.UseAcks {
			e.execute(evFrameReceived, &f)
			return
		}
		ack, err := frame.NewAck(e.addr, f.Src, f.Seq).Encode()
		if err != nil {
			e.counters.ProtocolErrors++
			e.log.Warn("cannot build ack", "src", f.Src, "err", err)
			return
		}
		e.pendingAck = ack
		if f.HasSeq && !e.seq.Accept(f.Src, f.Seq) {
			e.counters.Duplicates++
			e.obs.DuplicateReceived(&f)
			e.execute(evDuplicateReceived, &f)
			return
		}
		e.execute(evFrameReceived, &f)
	case f.Dst.IsGroup() && f.Type == frame.TypeData:
		e.execute(evBroadcastReceived, &f)
	default:
		e.counters.NotForUs++
	}
}

func (e *Engine) handleAck(f *frame.Frame) {
	if !e.cfg.UseAcks {
		e.counters.ProtocolErrors++
		e.log.Warn("ack received with acks disabled", "src", f.Src)
		return
	}
	cur := e.queue.current
	if cur == nil {
		e.log.Debug("ack received with nothing in flight", "src", f.Src)
		return
	}
	if cur.Frame.Dst != f.Src {
		e.log.Debug("ack from unexpected source", "src", f.Src, "expected", cur.Frame.Dst)
		return
	}
	e.counters.ReceivedAcks++
	e.stats.AckReceived(f.Src.NeighborID())
	e.execute(evAckReceived, f)
}

// TransmissionStateChanged is called by the radio whenever its transmitter
// changes state. The end of a transmission drives the state machine.
func (e *Engine) TransmissionStateChanged(s TransmissionState) {
	prev := e.txState
	e.txState = s
	if prev == TransmissionTransmitting && s == TransmissionIdle {
		e.execute(evFrameTransmitted, nil)
	}
}

func (e *Engine) Address() frame.Address { return e.addr }
func (e *Engine) State() State { return e.state }

// QueueLen is the number of frames waiting behind the current one.
func (e *Engine) QueueLen() int { return e.queue.len() }
func (e *Engine) HasCurrent() bool { return e.queue.current != nil }
func (e *Engine) RetryAttempts() int { return e.queue.retries }
func (e *Engine) BackoffAttempts() int { return e.nb }
func (e *Engine) Counters() Counters { return e.counters }

func (e *Engine) AcksReceived(id uint64) float64 { return e.stats.AcksReceived(id) }
func (e *Engine) AcksMissed(id uint64) float64 { return e.stats.AcksMissed(id) }
func (e *Engine) AverageSignalQuality(id uint64) float64 {
	return e.stats.AverageSignalQuality(id)
}
func (e *Engine) Neighbors() []linkstats.Neighbor { return e.stats.Neighbors() }

func (e *Engine) ChannelUtilization() float64 { return e.est.ChannelUtilization() }
func (e *Engine) QueueOccupancy() float64 { return e.est.QueueOccupancy() }
func (e *Engine) FailRateRetry() float64 { return e.est.FailRateRetry() }
func (e *Engine) FailRateCongestion() float64 { return e.est.FailRateCongestion() }
