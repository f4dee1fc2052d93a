package node

import (
	"log/slog"
	"time"

	eb "mesh-mac-simulation/internal/eventBus"
	"mesh-mac-simulation/internal/frame"
	"mesh-mac-simulation/internal/mac"
	"mesh-mac-simulation/internal/mesh"
	"mesh-mac-simulation/internal/routing"
)

// Inbound is one payload handed up by the MAC.
type Inbound struct {
	Src     frame.Address
	Payload []byte
	At      time.Duration
}

// Node is one simulated station: a MAC engine plus the upper layer it
// delivers to. It republishes MAC activity on the event bus.
type Node struct {
	addr     frame.Address
	position mesh.Position
	engine   *mac.Engine
	etx      *routing.ETXEstimator
	bus      *eb.EventBus
	now      func() time.Duration
	log      *slog.Logger

	received []Inbound
}

// NewNode creates a node at pos. The engine is attached afterwards with
// Attach since the engine needs the node as its upper layer.
func NewNode(addr frame.Address, pos mesh.Position, bus *eb.EventBus, now func() time.Duration, log *slog.Logger) *Node {
	if log == nil {
		log = slog.Default()
	}
	return &Node{
		addr:     addr,
		position: pos,
		bus:      bus,
		now:      now,
		log:      log.With("node", addr.String()),
	}
}

// Attach binds the engine and an ETX estimator over its link statistics.
func (n *Node) Attach(engine *mac.Engine, etxAlpha float64) {
	n.engine = engine
	n.etx = routing.NewETXEstimator(engine, etxAlpha)
	n.log.Info("created node", "x", n.position.X, "y", n.position.Y)
}

// Announce publishes the node's arrival with its position.
func (n *Node) Announce() {
	n.publish(eb.Event{Type: eb.EventNodeJoined})
}

func (n *Node) GetID() frame.Address       { return n.addr }
func (n *Node) GetPosition() mesh.Position { return n.position }
func (n *Node) Engine() *mac.Engine        { return n.engine }

// Received returns the payloads delivered so far, oldest first.
func (n *Node) Received() []Inbound { return n.received }

// SendData queues payload for dst.
func (n *Node) SendData(dst frame.Address, payload []byte) error {
	return n.engine.Enqueue(payload, dst)
}

// SendBroadcast queues payload for every station in range.
func (n *Node) SendBroadcast(payload []byte) error {
	return n.engine.Enqueue(payload, frame.Broadcast)
}

// ETX refreshes and returns the smoothed ETX towards each known neighbor.
func (n *Node) ETX() map[frame.Address]float64 {
	out := make(map[frame.Address]float64)
	for _, nb := range n.engine.Neighbors() {
		out[frame.Address(nb.ID)] = n.etx.Update(nb.ID)
	}
	return out
}

// BestNextHop refreshes each candidate's ETX and returns the lowest.
func (n *Node) BestNextHop(candidates []frame.Address) (frame.Address, float64, bool) {
	ids := make([]uint64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.NeighborID()
	}
	id, etx, ok := n.etx.Best(ids)
	return frame.Address(id), etx, ok
}

// PublishHealth emits the node's current estimates with fresh ETX values.
func (n *Node) PublishHealth() eb.Health {
	h := n.engine.Health()
	out := eb.Health{
		ChannelUtilization:        h.ChannelUtilization,
		CurrentChannelUtilization: h.CurrentChannelUtilization,
		QueueOccupancy:            h.QueueOccupancy,
		FailRateRetry:             h.FailRateRetry,
		FailRateCongestion:        h.FailRateCongestion,
		RxFrameRate:               h.RxFrameRate,
		QueueLen:                  h.QueueLen,
		State:                     h.State,
	}
	if etx := n.ETX(); len(etx) > 0 {
		out.ETX = make(map[string]float64, len(etx))
		for a, v := range etx {
			out.ETX[a.String()] = v
		}
	}
	n.publish(eb.Event{Type: eb.EventHealth, Health: &out})
	return out
}

func (n *Node) publish(ev eb.Event) {
	if n.bus == nil {
		return
	}
	ev.NodeID = n.addr.String()
	ev.X, ev.Y = n.position.X, n.position.Y
	if n.now != nil {
		ev.SimTime = n.now()
	}
	n.bus.Publish(ev)
}

func frameEvent(t eb.EventType, other frame.Address, f *frame.Frame) eb.Event {
	return eb.Event{Type: t, OtherNodeID: other.String(), Seq: f.Seq}
}

// DeliverInbound implements mac.UpperLayer.
func (n *Node) DeliverInbound(payload []byte, src frame.Address) {
	in := Inbound{Src: src, Payload: append([]byte(nil), payload...)}
	if n.now != nil {
		in.At = n.now()
	}
	n.received = append(n.received, in)
	n.publish(eb.Event{Type: eb.EventFrameDelivered, OtherNodeID: src.String()})
}

// The methods below implement mac.Observer.

func (n *Node) FrameQueued(f *frame.Frame) {
	n.publish(frameEvent(eb.EventFrameQueued, f.Dst, f))
}

func (n *Node) FrameTransmitted(f *frame.Frame, attempt int) {
	ev := frameEvent(eb.EventFrameSent, f.Dst, f)
	ev.Attempt = attempt
	n.publish(ev)
}

func (n *Node) FrameAcked(f *frame.Frame) {
	n.publish(frameEvent(eb.EventFrameAcked, f.Dst, f))
}

func (n *Node) FrameDropped(f *frame.Frame, reason mac.DropReason) {
	ev := frameEvent(eb.EventFrameDropped, f.Dst, f)
	ev.Reason = reason.String()
	n.publish(ev)
}

func (n *Node) AckMissed(f *frame.Frame, attempt int) {
	ev := frameEvent(eb.EventAckMissed, f.Dst, f)
	ev.Attempt = attempt
	n.publish(ev)
}

func (n *Node) DuplicateReceived(f *frame.Frame) {
	n.publish(frameEvent(eb.EventDuplicate, f.Src, f))
}
