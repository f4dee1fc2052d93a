package mac

type State int

const (
	StateIdle State = iota
	StateBackoff
	StateCCA
	StateTransmitFrame
	StateWaitAck
	StateWaitSIFS
	StateTransmitAck
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBackoff:
		return "backoff"
	case StateCCA:
		return "cca"
	case StateTransmitFrame:
		return "transmit-frame"
	case StateWaitAck:
		return "wait-ack"
	case StateWaitSIFS:
		return "wait-sifs"
	case StateTransmitAck:
		return "transmit-ack"
	default:
		return "unknown"
	}
}

type event int

const (
	evSendRequest event = iota
	evTimerBackoff
	evTimerCCA
	evTimerSIFS
	evAckTimeout
	evFrameReceived
	evDuplicateReceived
	evBroadcastReceived
	evAckReceived
	evFrameTransmitted
)

func (e event) String() string {
	switch e {
	case evSendRequest:
		return "send-request"
	case evTimerBackoff:
		return "timer-backoff"
	case evTimerCCA:
		return "timer-cca"
	case evTimerSIFS:
		return "timer-sifs"
	case evAckTimeout:
		return "ack-timeout"
	case evFrameReceived:
		return "frame-received"
	case evDuplicateReceived:
		return "duplicate-received"
	case evBroadcastReceived:
		return "broadcast-received"
	case evAckReceived:
		return "ack-received"
	case evFrameTransmitted:
		return "frame-transmitted"
	default:
		return "unknown"
	}
}
