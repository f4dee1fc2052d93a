package mqtt

import (
	"context"
	"log/slog"

	eb "mesh-mac-simulation/internal/eventBus"
)

// Telemetry republishes health reports and drops from the event bus to a
// broker under "<prefix>/<node>/health" and "<prefix>/<node>/drops".
type Telemetry struct {
	pub    Publisher
	prefix string
	runID  string
	format Format
	log    *slog.Logger
}

func NewTelemetry(pub Publisher, prefix, runID string, format Format, log *slog.Logger) *Telemetry {
	if log == nil {
		log = slog.Default()
	}
	return &Telemetry{pub: pub, prefix: prefix, runID: runID, format: format, log: log.With("component", "telemetry")}
}

// Run publishes until events is closed or ctx is done.
func (t *Telemetry) Run(ctx context.Context, events <-chan eb.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := t.handle(ev); err != nil {
				t.log.Warn("publish failed", "type", ev.Type, "node", ev.NodeID, "err", err)
			}
		}
	}
}

func (t *Telemetry) handle(ev eb.Event) error {
	var (
		topic string
		msg   any
	)
	switch ev.Type {
	case eb.EventHealth:
		if ev.Health == nil {
			return nil
		}
		topic = t.prefix + "/" + ev.NodeID + "/health"
		msg = HealthMessage{RunID: t.runID, NodeID: ev.NodeID, SimTime: ev.SimTime, X: ev.X, Y: ev.Y, Health: *ev.Health}
	case eb.EventFrameDropped:
		topic = t.prefix + "/" + ev.NodeID + "/drops"
		msg = DropMessage{RunID: t.runID, NodeID: ev.NodeID, DestID: ev.OtherNodeID, Seq: ev.Seq, Reason: ev.Reason, SimTime: ev.SimTime}
	default:
		return nil
	}
	data, err := encode(t.format, msg)
	if err != nil {
		return err
	}
	return t.pub.Publish(topic, 0, false, data)
}
