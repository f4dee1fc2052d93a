package mac

import (
	"time"

	"mesh-mac-simulation/internal/frame"
)

type RadioMode int

const (
	RadioReceive RadioMode = iota
	RadioTransmit
)

func (m RadioMode) String() string {
	if m == RadioTransmit {
		return "transmit"
	}
	return "receive"
}

// TransmissionState mirrors the radio's transmitter. The engine treats a
// Transmitting to Idle change as the end of the frame on air.
type TransmissionState int

const (
	TransmissionUndefined TransmissionState = iota
	TransmissionIdle
	TransmissionTransmitting
)

// TimerID names the logical timers the engine asks its host to run.
type TimerID int

const (
	TimerBackoff TimerID = iota
	TimerCCA
	TimerSIFS
	TimerAckWait
	TimerChannelSample
	TimerFailRate
)

func (t TimerID) String() string {
	switch t {
	case TimerBackoff:
		return "backoff"
	case TimerCCA:
		return "cca"
	case TimerSIFS:
		return "sifs"
	case TimerAckWait:
		return "ack-wait"
	case TimerChannelSample:
		return "channel-sample"
	case TimerFailRate:
		return "fail-rate"
	default:
		return "unknown"
	}
}

type DropReason int

const (
	DropCongestion DropReason = iota
	DropRetryLimit
	DropQueueOverflow
)

func (r DropReason) String() string {
	switch r {
	case DropCongestion:
		return "congestion"
	case DropRetryLimit:
		return "retry-limit"
	case DropQueueOverflow:
		return "queue-overflow"
	default:
		return "unknown"
	}
}

// Radio is the part of the transceiver the engine drives.
type Radio interface {
	SetMode(RadioMode)
	ChannelIdle() bool
	// Transmit puts data on air after the given delay. The radio reports the
	// end of the transmission through Engine.TransmissionStateChanged.
	Transmit(data []byte, after time.Duration)
}

// Timers is the host's timer service. Expirations come back through
// Engine.HandleTimer.
type Timers interface {
	Schedule(id TimerID, d time.Duration)
	Cancel(id TimerID)
	Pending(id TimerID) bool
	Now() time.Duration
}

type UpperLayer interface {
	DeliverInbound(payload []byte, src frame.Address)
}

// Observer receives frame lifecycle notifications. Implementations must not
// call back into the engine.
type Observer interface {
	FrameQueued(f *frame.Frame)
	FrameTransmitted(f *frame.Frame, attempt int)
	FrameAcked(f *frame.Frame)
	FrameDropped(f *frame.Frame, reason DropReason)
	AckMissed(f *frame.Frame, attempt int)
	DuplicateReceived(f *frame.Frame)
}

type noopObserver struct{}

func (noopObserver) FrameQueued(*frame.Frame) {}
func (noopObserver) FrameTransmitted(*frame.Frame, int) {}
func (noopObserver) FrameAcked(*frame.Frame) {}
func (noopObserver) FrameDropped(*frame.Frame, DropReason) {}
func (noopObserver) AckMissed(*frame.Frame, int) {}
func (noopObserver) DuplicateReceived(*frame.Frame) {}

// Reception is one frame handed up by the radio. SignalQuality is the
// receiver's SNR sample; BitError marks a frame that arrived corrupted.
type Reception struct {
	Data          []byte
	SignalQuality float64
	BitError      bool
}
