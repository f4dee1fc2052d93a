package sim

import (
	"log/slog"
	"math"
	"time"

	"mesh-mac-simulation/internal/frame"
	"mesh-mac-simulation/internal/mac"
	"mesh-mac-simulation/internal/mesh"
	"mesh-mac-simulation/internal/metrics"
)

// MediumConfig describes the shared channel. Range is in meters and
// Bitrate in bits per second. ReferenceLossDB is the path loss at 1 m;
// receptions below MinSNR arrive with bit errors.
type MediumConfig struct {
	Range            float64 `yaml:"range" json:"range"`
	Bitrate          float64 `yaml:"bitrate" json:"bitrate"`
	TxPowerDBm       float64 `yaml:"tx_power_dbm" json:"tx_power_dbm"`
	NoiseFloorDBm    float64 `yaml:"noise_floor_dbm" json:"noise_floor_dbm"`
	PathLossExponent float64 `yaml:"path_loss_exponent" json:"path_loss_exponent"`
	ReferenceLossDB  float64 `yaml:"reference_loss_db" json:"reference_loss_db"`
	MinSNR           float64 `yaml:"min_snr" json:"min_snr"`
	PreambleBytes    int     `yaml:"preamble_bytes" json:"preamble_bytes"`
}

func DefaultMediumConfig() MediumConfig {
	return MediumConfig{
		Range:            100,
		Bitrate:          250_000,
		TxPowerDBm:       0,
		NoiseFloorDBm:    -100,
		PathLossExponent: 3,
		ReferenceLossDB:  40,
		MinSNR:           0,
		PreambleBytes:    0,
	}
}

// transmission is one frame on air.
type transmission struct {
	sender   *Radio
	data     []byte
	start    time.Duration
	end      time.Duration
	overlaps []*transmission
}

// Medium is the shared channel all radios transmit on. A reception is
// corrupted when another transmission overlaps it in time and that sender
// is within interference range (twice the reception range) of the receiver.
type Medium struct {
	cfg    MediumConfig
	k      *Kernel
	log    *slog.Logger
	radios []*Radio
	active []*transmission
	stats  metrics.ChannelStats
}

func NewMedium(cfg MediumConfig, k *Kernel, log *slog.Logger) *Medium {
	if log == nil {
		log = slog.Default()
	}
	return &Medium{cfg: cfg, k: k, log: log.With("component", "medium")}
}

func (m *Medium) Stats() metrics.ChannelStats { return m.stats }

// Attach creates a radio at pos for addr.
func (m *Medium) Attach(addr frame.Address, pos mesh.Position) *Radio {
	r := &Radio{medium: m, addr: addr, pos: pos, txState: mac.TransmissionIdle}
	m.radios = append(m.radios, r)
	return r
}

// Airtime is how long a frame of n bytes occupies the channel.
func (m *Medium) Airtime(n int) time.Duration {
	bits := float64(8 * (n + m.cfg.PreambleBytes))
	return time.Duration(bits * float64(time.Second) / m.cfg.Bitrate)
}

func (m *Medium) inRange(a, b *Radio) bool {
	return a.pos.DistanceTo(b.pos) <= m.cfg.Range
}

func (m *Medium) canInterfere(sender, receiver *Radio) bool {
	return sender.pos.DistanceTo(receiver.pos) <= 2*m.cfg.Range
}

func timesOverlap(s1, e1, s2, e2 time.Duration) bool {
	return s1 < e2 && s2 < e1
}

// SNR is the signal-to-noise ratio in dB at distance d, log-distance model.
func (m *Medium) SNR(d float64) float64 {
	loss := m.cfg.ReferenceLossDB + 10*m.cfg.PathLossExponent*math.Log10(math.Max(d, 1))
	return m.cfg.TxPowerDBm - loss - m.cfg.NoiseFloorDBm
}

// Neighbors returns the radios within reception range of r.
func (m *Medium) Neighbors(r *Radio) []*Radio {
	var out []*Radio
	for _, o := range m.radios {
		if o != r && m.inRange(r, o) {
			out = append(out, o)
		}
	}
	return out
}

// busyFor reports whether any radio other than r is on air within r's range.
func (m *Medium) busyFor(r *Radio) bool {
	for _, tx := range m.active {
		if tx.sender != r && m.inRange(tx.sender, r) {
			return true
		}
	}
	return false
}

func (m *Medium) begin(sender *Radio, data []byte) {
	now := m.k.Now()
	tx := &transmission{sender: sender, data: data, start: now, end: now + m.Airtime(len(data))}
	for _, other := range m.active {
		if timesOverlap(tx.start, tx.end, other.start, other.end) {
			tx.overlaps = append(tx.overlaps, other)
			other.overlaps = append(other.overlaps, tx)
		}
	}
	m.active = append(m.active, tx)
	m.stats.Transmissions++
	sender.setTxState(mac.TransmissionTransmitting)
	m.k.At(tx.end, func() { m.finish(tx) })
}

func (m *Medium) finish(tx *transmission) {
	for i, a := range m.active {
		if a == tx {
			m.active = append(m.active[:i], m.active[i+1:]...)
			break
		}
	}
	for _, rx := range m.radios {
		if rx == tx.sender || !m.inRange(tx.sender, rx) {
			continue
		}
		m.deliver(tx, rx)
	}
	tx.overlaps = nil
	tx.sender.setTxState(mac.TransmissionIdle)
}

func (m *Medium) deliver(tx *transmission, rx *Radio) {
	if rx.mode != mac.RadioReceive || rx.txState == mac.TransmissionTransmitting {
		m.stats.Missed++
		return
	}
	collided := false
	for _, o := range tx.overlaps {
		if o.sender == rx {
			// half duplex: rx was talking during this frame
			m.stats.Missed++
			return
		}
		if m.canInterfere(o.sender, rx) {
			collided = true
		}
	}
	snr := m.SNR(tx.sender.pos.DistanceTo(rx.pos))
	bitError := collided || snr < m.cfg.MinSNR
	switch {
	case collided:
		m.stats.Collisions++
		m.log.Debug("collision", "from", tx.sender.addr, "at", rx.addr)
	case bitError:
		m.stats.Weak++
	default:
		m.stats.Receptions++
	}
	if rx.handler != nil {
		rx.handler.HandleReception(mac.Reception{Data: tx.data, SignalQuality: snr, BitError: bitError})
	}
}
