package mac

import (
	"time"

	"mesh-mac-simulation/internal/frame"
)

// execute runs one event through the transition table. A send request
// outside Idle only queues the frame; the running cycle picks it up.
func (e *Engine) execute(ev event, f *frame.Frame) {
	if ev == evSendRequest && e.state != StateIdle {
		return
	}
	switch e.state {
	case StateIdle:
		e.updateIdle(ev, f)
	case StateBackoff:
		e.updateBackoff(ev, f)
	case StateCCA:
		e.updateCCA(ev, f)
	case StateTransmitFrame:
		e.updateTransmitFrame(ev, f)
	case StateWaitAck:
		e.updateWaitAck(ev, f)
	case StateWaitSIFS:
		e.updateWaitSIFS(ev, f)
	case StateTransmitAck:
		e.updateTransmitAck(ev, f)
	}
}

func (e *Engine) setState(s State) {
	if s != e.state {
		e.log.Debug("state", "from", e.state, "to", s)
	}
	e.state = s
}

func (e *Engine) updateIdle(ev event, f *frame.Frame) {
	switch ev {
	case evSendRequest:
		if e.queue.hasWork() {
			e.setState(StateBackoff)
			e.nb = 0
			e.startTimer(TimerBackoff)
		}
	case evFrameReceived:
		e.deliver(f)
		if e.cfg.UseAcks {
			e.prepareAck()
		}
	case evDuplicateReceived:
		if e.cfg.UseAcks {
			e.prepareAck()
		}
	case evBroadcastReceived:
		e.deliver(f)
	default:
		e.fsmError(ev)
	}
}

// interruptForAck suspends a contention cycle to answer a received frame.
// The backoff and retry counters are left as they are.
func (e *Engine) interruptForAck(pending TimerID) {
	e.interrupted = true
	e.timers.Cancel(pending)
	e.prepareAck()
}

func (e *Engine) updateBackoff(ev event, f *frame.Frame) {
	switch ev {
	case evTimerBackoff:
		e.setState(StateCCA)
		e.startTimer(TimerCCA)
		e.radio.SetMode(RadioReceive)
	case evFrameReceived:
		if e.cfg.UseAcks {
			e.interruptForAck(TimerBackoff)
		}
		e.deliver(f)
	case evDuplicateReceived:
		if e.cfg.UseAcks {
			e.interruptForAck(TimerBackoff)
		}
	case evBroadcastReceived:
		e.deliver(f)
	default:
		e.fsmError(ev)
	}
}

func (e *Engine) updateCCA(ev event, f *frame.Frame) {
	switch ev {
	case evTimerCCA:
		if e.radio.ChannelIdle() {
			e.transmitCurrent()
			return
		}
		e.nb++
		e.est.CountBackoff()
		if e.nb > e.cfg.MaxCSMABackoffs {
			e.queue.retries = 0
			e.nb = 0
			e.dropCurrent(DropCongestion)
			e.manageQueue()
			return
		}
		e.log.Debug("channel busy, backing off again", "nb", e.nb)
		e.setState(StateBackoff)
		e.startTimer(TimerBackoff)
	case evFrameReceived:
		if e.cfg.UseAcks {
			e.interruptForAck(TimerCCA)
		}
		e.deliver(f)
	case evDuplicateReceived:
		if e.cfg.UseAcks {
			e.interruptForAck(TimerCCA)
		}
	case evBroadcastReceived:
		e.deliver(f)
	default:
		e.fsmError(ev)
	}
}

func (e *Engine) transmitCurrent() {
	e.setState(StateTransmitFrame)
	e.radio.SetMode(RadioTransmit)
	cur := e.queue.promote()
	if cur == nil {
		// nothing to send; only reachable if the cycle lost its frame
		e.log.Warn("cca clear with empty queue")
		e.manageQueue()
		return
	}
	e.radio.Transmit(cur.Data, e.cfg.TurnaroundTime)
	e.counters.TxFrames++
	e.est.CountTransmitted()
	e.obs.FrameTransmitted(cur.Frame, e.queue.retries+1)
	e.log.Debug("frame on air", "dst", cur.Frame.Dst, "seq", cur.Frame.Seq, "attempt", e.queue.retries+1)
}

func (e *Engine) updateTransmitFrame(ev event, _ *frame.Frame) {
	if ev != evFrameTransmitted {
		e.fsmError(ev)
		return
	}
	e.radio.SetMode(RadioReceive)
	cur := e.queue.current
	if cur == nil || cur.Frame.Dst.IsGroup() || !e.cfg.UseAcks {
		e.queue.release()
		e.manageQueue()
		return
	}
	e.setState(StateWaitAck)
	e.startTimer(TimerAckWait)
}

func (e *Engine) updateWaitAck(ev event, f *frame.Frame) {
	switch ev {
	case evAckReceived:
		e.timers.Cancel(TimerAckWait)
		if cur := e.queue.release(); cur != nil {
			e.obs.FrameAcked(cur.Frame)
		}
		e.queue.retries = 0
		e.manageQueue()
	case evAckTimeout:
		e.manageMissingAck()
	case evFrameReceived, evBroadcastReceived:
		e.deliver(f)
	case evDuplicateReceived:
		e.log.Debug("duplicate while waiting for ack dropped", "src", f.Src, "seq", f.Seq)
	default:
		e.fsmError(ev)
	}
}

// manageMissingAck retries the current frame until the retry budget is
// spent, then drops it. Every expiry counts as a missed ACK for the
// destination.
func (e *Engine) manageMissingAck() {
	cur := e.queue.current
	if cur == nil {
		e.fsmError(evAckTimeout)
		return
	}
	id := cur.Frame.Dst.NeighborID()
	e.stats.AckMissed(id)
	e.obs.AckMissed(cur.Frame, e.queue.retries+1)
	if e.queue.retries < e.cfg.MaxFrameRetries {
		e.queue.retries++
		e.est.CountRetry()
		e.log.Debug("ack missing, retrying", "dst", cur.Frame.Dst, "retry", e.queue.retries)
	} else {
		e.queue.retries = 0
		e.dropCurrent(DropRetryLimit)
	}
	e.manageQueue()
}

func (e *Engine) updateWaitSIFS(ev event, f *frame.Frame) {
	switch ev {
	case evTimerSIFS:
		e.setState(StateTransmitAck)
		if e.pendingAck == nil {
			e.log.Warn("sifs expired without a pending ack")
			e.radio.SetMode(RadioReceive)
			e.manageQueue()
			return
		}
		e.radio.Transmit(e.pendingAck, 0)
		e.pendingAck = nil
		e.counters.TxAcks++
	case evTimerBackoff:
		// the ack goes out first
		e.startTimer(TimerBackoff)
	case evFrameReceived, evBroadcastReceived:
		e.log.Debug("frame received during sifs", "src", f.Src)
		e.deliver(f)
	default:
		e.fsmError(ev)
	}
}

func (e *Engine) updateTransmitAck(ev event, _ *frame.Frame) {
	if ev != evFrameTransmitted {
		e.fsmError(ev)
		return
	}
	e.radio.SetMode(RadioReceive)
	e.manageQueue()
}

// manageQueue ends a cycle: start the next one if there is work, else idle.
func (e *Engine) manageQueue() {
	if !e.queue.hasWork() {
		e.setState(StateIdle)
		return
	}
	if e.interrupted {
		e.interrupted = false
	} else {
		e.nb = 0
	}
	if !e.timers.Pending(TimerBackoff) {
		e.startTimer(TimerBackoff)
	}
	e.setState(StateBackoff)
}

func (e *Engine) prepareAck() {
	e.radio.SetMode(RadioTransmit)
	e.setState(StateWaitSIFS)
	e.startTimer(TimerSIFS)
}

// dropCurrent discards the current frame. A congestion drop can happen
// before any frame was promoted, in which case the queue head is dropped.
func (e *Engine) dropCurrent(reason DropReason) {
	e.queue.promote()
	cur := e.queue.release()
	if cur == nil {
		e.log.Warn("drop requested with empty queue", "reason", reason)
		return
	}
	switch reason {
	case DropCongestion:
		e.counters.DroppedCongestion++
		e.est.CountCongestionDrop()
	case DropRetryLimit:
		e.counters.DroppedRetryLimit++
		e.est.CountRetryDrop()
	}
	e.log.Info("frame dropped", "dst", cur.Frame.Dst, "seq", cur.Frame.Seq, "reason", reason)
	e.obs.FrameDropped(cur.Frame, reason)
}

func (e *Engine) deliver(f *frame.Frame) {
	e.counters.RxFrames++
	e.est.CountReceived()
	e.upper.DeliverInbound(f.Payload, f.Src)
}

// fsmError reports an event that has no transition in the current state.
// The state is left unchanged.
func (e *Engine) fsmError(ev event) {
	e.counters.ProtocolErrors++
	e.log.Warn("unexpected event", "state", e.state, "event", ev)
}

func (e *Engine) startTimer(id TimerID) {
	var d time.Duration
	switch id {
	case TimerBackoff:
		d = e.backoff.Next(e.nb)
	case TimerCCA:
		d = e.cfg.RxSetupTime + e.cfg.CCADetectionTime
	case TimerSIFS:
		d = e.cfg.SIFS
	case TimerAckWait:
		d = e.cfg.AckWaitDuration
	}
	e.schedule(id, d)
}

// schedule replaces any pending instance of id.
func (e *Engine) schedule(id TimerID, d time.Duration) {
	if e.timers.Pending(id) {
		e.timers.Cancel(id)
	}
	e.timers.Schedule(id, d)
}
