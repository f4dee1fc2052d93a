package sim

import (
	"time"

	"mesh-mac-simulation/internal/frame"
	"mesh-mac-simulation/internal/mac"
	"mesh-mac-simulation/internal/mesh"
)

// RadioHandler is what a radio reports to. *mac.Engine implements it.
type RadioHandler interface {
	HandleReception(mac.Reception)
	TransmissionStateChanged(mac.TransmissionState)
}

// Radio is a half-duplex transceiver on a Medium. It implements mac.Radio.
type Radio struct {
	medium  *Medium
	addr    frame.Address
	pos     mesh.Position
	mode    mac.RadioMode
	txState mac.TransmissionState
	handler RadioHandler
}

func (r *Radio) Bind(h RadioHandler) { r.handler = h }

func (r *Radio) Address() frame.Address { return r.addr }
func (r *Radio) Position() mesh.Position { return r.pos }
func (r *Radio) Mode() mac.RadioMode { return r.mode }

func (r *Radio) SetMode(m mac.RadioMode) { r.mode = m }

// ChannelIdle is an energy-detect CCA against every sender in range.
func (r *Radio) ChannelIdle() bool { return !r.medium.busyFor(r) }

// Transmit starts data on air after the given delay.
func (r *Radio) Transmit(data []byte, after time.Duration) {
	r.medium.k.After(after, func() { r.medium.begin(r, data) })
}

func (r *Radio) setTxState(s mac.TransmissionState) {
	r.txState = s
	if r.handler != nil {
		r.handler.TransmissionStateChanged(s)
	}
}
