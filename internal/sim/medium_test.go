package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesh-mac-simulation/internal/frame"
	"mesh-mac-simulation/internal/mac"
	"mesh-mac-simulation/internal/mesh"
)

type recordingHandler struct {
	rx     []mac.Reception
	states []mac.TransmissionState
}

func (h *recordingHandler) HandleReception(r mac.Reception) { h.rx = append(h.rx, r) }
func (h *recordingHandler) TransmissionStateChanged(s mac.TransmissionState) {
	h.states = append(h.states, s)
}

type testRadio struct {
	*Radio
	h *recordingHandler
}

// line places radios on the x axis at the given offsets.
func line(t *testing.T, cfg MediumConfig, xs ...float64) (*Kernel, *Medium, []testRadio) {
	t.Helper()
	k := NewKernel()
	m := NewMedium(cfg, k, nil)
	var out []testRadio
	for i, x := range xs {
		r := m.Attach(BaseAddress+frame.Address(i+1), mesh.Position{X: x})
		h := &recordingHandler{}
		r.Bind(h)
		out = append(out, testRadio{r, h})
	}
	return k, m, out
}

func run(k *Kernel) {
	_ = k.Run(context.Background(), time.Hour, nil)
}

func TestAirtime(t *testing.T) {
	m := NewMedium(DefaultMediumConfig(), NewKernel(), nil)
	assert.Equal(t, 704*time.Microsecond, m.Airtime(frame.HeaderSize))
	assert.Equal(t, 4064*time.Microsecond, m.Airtime(frame.MaxFrameSize))
}

func TestCleanReception(t *testing.T) {
	k, m, r := line(t, DefaultMediumConfig(), 0, 50, 150)
	data := []byte{1, 2, 3}
	r[0].Transmit(data, 192*time.Microsecond)

	k.At(200*time.Microsecond, func() {
		assert.False(t, r[1].ChannelIdle(), "sender in range")
		assert.True(t, r[2].ChannelIdle(), "sender out of range")
	})
	run(k)

	require.Len(t, r[1].h.rx, 1)
	got := r[1].h.rx[0]
	assert.Equal(t, data, got.Data)
	assert.False(t, got.BitError)
	assert.InDelta(t, 60-30*math.Log10(50), got.SignalQuality, 1e-9)
	assert.Empty(t, r[2].h.rx)
	assert.Equal(t, []mac.TransmissionState{mac.TransmissionTransmitting, mac.TransmissionIdle}, r[0].h.states)
	assert.Equal(t, 192*time.Microsecond+m.Airtime(3), k.Now())
	assert.EqualValues(t, 1, m.Stats().Receptions)
	assert.EqualValues(t, 1, m.Stats().Transmissions)
}

func TestHiddenTerminalCollision(t *testing.T) {
	// A and C cannot hear each other but both reach B.
	k, m, r := line(t, DefaultMediumConfig(), 0, 90, 180)
	r[0].Transmit([]byte("from a"), 0)
	k.After(100*time.Microsecond, func() {
		assert.True(t, r[2].ChannelIdle())
		r[2].Transmit([]byte("from c"), 0)
	})
	run(k)

	require.Len(t, r[1].h.rx, 2)
	for _, rx := range r[1].h.rx {
		assert.True(t, rx.BitError)
	}
	assert.EqualValues(t, 2, m.Stats().Collisions)
}

func TestInterferenceBeyondRange(t *testing.T) {
	// C is out of B's reception range but inside its interference range.
	k, m, r := line(t, DefaultMediumConfig(), 0, 60, 210)
	r[0].Transmit([]byte("a"), 0)
	r[2].Transmit([]byte("c"), 0)
	run(k)

	require.Len(t, r[1].h.rx, 1)
	assert.True(t, r[1].h.rx[0].BitError)
	assert.EqualValues(t, 1, m.Stats().Collisions)
}

func TestHalfDuplexMiss(t *testing.T) {
	k, m, r := line(t, DefaultMediumConfig(), 0, 50)
	r[0].Transmit([]byte("a"), 0)
	r[1].Transmit([]byte("b"), 0)
	run(k)

	assert.Empty(t, r[0].h.rx)
	assert.Empty(t, r[1].h.rx)
	assert.EqualValues(t, 2, m.Stats().Missed)
}

func TestReceiverInTransmitModeMisses(t *testing.T) {
	k, m, r := line(t, DefaultMediumConfig(), 0, 50)
	r[1].SetMode(mac.RadioTransmit)
	r[0].Transmit([]byte("a"), 0)
	run(k)
	assert.Empty(t, r[1].h.rx)
	assert.EqualValues(t, 1, m.Stats().Missed)
}

func TestWeakSignalHasBitErrors(t *testing.T) {
	cfg := DefaultMediumConfig()
	cfg.MinSNR = 20
	k, m, r := line(t, cfg, 0, 50)
	r[0].Transmit([]byte("a"), 0)
	run(k)
	require.Len(t, r[1].h.rx, 1)
	assert.True(t, r[1].h.rx[0].BitError)
	assert.EqualValues(t, 1, m.Stats().Weak)
}

func TestNeighbors(t *testing.T) {
	_, m, r := line(t, DefaultMediumConfig(), 0, 100, 201)
	got := m.Neighbors(r[1].Radio)
	require.Len(t, got, 1)
	assert.Equal(t, r[0].Address(), got[0].Address())
	assert.Empty(t, m.Neighbors(r[2].Radio))
}
