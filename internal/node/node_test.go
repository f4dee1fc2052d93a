package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eb "mesh-mac-simulation/internal/eventBus"
	"mesh-mac-simulation/internal/frame"
	"mesh-mac-simulation/internal/mac"
	"mesh-mac-simulation/internal/mesh"
)

const (
	self = frame.Address(0x0AAA000000000001)
	peer = frame.Address(0x0AAA000000000002)
)

type idleRadio struct {
	busy bool
	sent int
}

func (r *idleRadio) SetMode(mac.RadioMode)          {}
func (r *idleRadio) ChannelIdle() bool              { return !r.busy }
func (r *idleRadio) Transmit([]byte, time.Duration) { r.sent++ }

type stillTimers struct{ now time.Duration }

func (t *stillTimers) Schedule(mac.TimerID, time.Duration) {}
func (t *stillTimers) Cancel(mac.TimerID)                  {}
func (t *stillTimers) Pending(mac.TimerID) bool            { return false }
func (t *stillTimers) Now() time.Duration                  { return t.now }

func newTestNode(t *testing.T) (*Node, chan eb.Event, *stillTimers) {
	t.Helper()
	bus := eb.NewEventBus(nil)
	events := bus.SubscribeSize(64)
	clock := &stillTimers{now: 3 * time.Second}
	n := NewNode(self, mesh.Position{X: 10, Y: 20}, bus, clock.Now, nil)
	engine, err := mac.New(mac.DefaultConfig(), self, &idleRadio{}, clock, n, mac.WithObserver(n))
	require.NoError(t, err)
	n.Attach(engine, 0.5)
	engine.Start()
	return n, events, clock
}

func next(t *testing.T, events chan eb.Event) eb.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	default:
		t.Fatal("no event published")
		return eb.Event{}
	}
}

func TestAnnounceCarriesPosition(t *testing.T) {
	n, events, _ := newTestNode(t)
	n.Announce()

	ev := next(t, events)
	assert.Equal(t, eb.EventNodeJoined, ev.Type)
	assert.Equal(t, self.String(), ev.NodeID)
	assert.Equal(t, 10.0, ev.X)
	assert.Equal(t, 20.0, ev.Y)
	assert.Equal(t, 3*time.Second, ev.SimTime)
	assert.NotZero(t, ev.ID)
}

func TestSendDataPublishesQueued(t *testing.T) {
	n, events, _ := newTestNode(t)
	require.NoError(t, n.SendData(peer, []byte("hello")))

	ev := next(t, events)
	assert.Equal(t, eb.EventFrameQueued, ev.Type)
	assert.Equal(t, peer.String(), ev.OtherNodeID)
	assert.Equal(t, mac.StateBackoff, n.Engine().State())
	assert.EqualValues(t, 1, n.Engine().Counters().Enqueued)
}

func TestSendBroadcastAndOversize(t *testing.T) {
	n, events, _ := newTestNode(t)
	require.NoError(t, n.SendBroadcast([]byte("all")))
	ev := next(t, events)
	assert.Equal(t, frame.Broadcast.String(), ev.OtherNodeID)

	err := n.SendData(peer, make([]byte, frame.MaxPayload+1))
	assert.ErrorIs(t, err, frame.ErrFrameTooLarge)
}

func TestDeliverInboundRecords(t *testing.T) {
	n, events, clock := newTestNode(t)
	buf := []byte("data")
	n.DeliverInbound(buf, peer)
	buf[0] = 'X'
	clock.now = 4 * time.Second
	n.DeliverInbound([]byte("more"), peer)

	got := n.Received()
	require.Len(t, got, 2)
	assert.Equal(t, Inbound{Src: peer, Payload: []byte("data"), At: 3 * time.Second}, got[0])
	assert.Equal(t, 4*time.Second, got[1].At)

	ev := next(t, events)
	assert.Equal(t, eb.EventFrameDelivered, ev.Type)
	assert.Equal(t, peer.String(), ev.OtherNodeID)
}

func TestObserverEvents(t *testing.T) {
	n, events, _ := newTestNode(t)
	f := &frame.Frame{Type: frame.TypeData, Src: self, Dst: peer, Seq: 7, HasSeq: true}

	n.FrameTransmitted(f, 2)
	n.AckMissed(f, 2)
	n.FrameAcked(f)
	n.FrameDropped(f, mac.DropRetryLimit)
	n.DuplicateReceived(&frame.Frame{Src: peer, Dst: self, Seq: 9})

	sent := next(t, events)
	assert.Equal(t, eb.EventFrameSent, sent.Type)
	assert.Equal(t, 2, sent.Attempt)
	assert.EqualValues(t, 7, sent.Seq)
	assert.Equal(t, eb.EventAckMissed, next(t, events).Type)
	assert.Equal(t, eb.EventFrameAcked, next(t, events).Type)
	dropped := next(t, events)
	assert.Equal(t, eb.EventFrameDropped, dropped.Type)
	assert.Equal(t, "retry-limit", dropped.Reason)
	dup := next(t, events)
	assert.Equal(t, eb.EventDuplicate, dup.Type)
	assert.Equal(t, peer.String(), dup.OtherNodeID)
}

func TestHealthWithoutNeighbors(t *testing.T) {
	n, events, _ := newTestNode(t)
	h := n.PublishHealth()
	assert.Equal(t, "idle", h.State)
	assert.Nil(t, h.ETX)
	assert.Empty(t, n.ETX())

	ev := next(t, events)
	assert.Equal(t, eb.EventHealth, ev.Type)
	require.NotNil(t, ev.Health)
	assert.Equal(t, h, *ev.Health)
}

func TestHealthCarriesLiveEstimates(t *testing.T) {
	bus := eb.NewEventBus(nil)
	events := bus.SubscribeSize(64)
	clock := &stillTimers{}
	n := NewNode(self, mesh.Position{}, bus, clock.Now, nil)
	engine, err := mac.New(mac.DefaultConfig(), self, &idleRadio{busy: true}, clock, n, mac.WithObserver(n))
	require.NoError(t, err)
	n.Attach(engine, 1)
	engine.Start()

	bcast := frame.Frame{Type: frame.TypeData, Src: peer, Dst: frame.Broadcast, Payload: []byte("x")}
	data, err := bcast.Encode()
	require.NoError(t, err)
	engine.HandleReception(mac.Reception{Data: data, SignalQuality: 10})
	engine.HandleReception(mac.Reception{Data: data, SignalQuality: 10})
	clock.now = 2 * time.Second
	engine.HandleTimer(mac.TimerFailRate)
	engine.HandleTimer(mac.TimerChannelSample)

	h := n.PublishHealth()
	assert.Equal(t, 2.0, h.RxFrameRate)
	assert.Equal(t, 1.0, h.CurrentChannelUtilization)

	var health *eb.Health
	for health == nil {
		if ev := next(t, events); ev.Type == eb.EventHealth {
			health = ev.Health
		}
	}
	assert.Equal(t, 2.0, health.RxFrameRate)
	assert.Equal(t, 1.0, health.CurrentChannelUtilization)
}

func TestBestNextHopUnknownLinks(t *testing.T) {
	n, _, _ := newTestNode(t)
	_, _, ok := n.BestNextHop(nil)
	assert.False(t, ok)

	// no ACK history on either link, ties go to the lower address
	hop, etx, ok := n.BestNextHop([]frame.Address{peer + 1, peer})
	require.True(t, ok)
	assert.Equal(t, peer, hop)
	assert.Equal(t, 1.0, etx)
}

func TestNilBusIsQuiet(t *testing.T) {
	n := NewNode(self, mesh.Position{}, nil, nil, nil)
	assert.NotPanics(t, func() {
		n.Announce()
		n.DeliverInbound([]byte("x"), peer)
	})
	assert.Zero(t, n.Received()[0].At)
}

