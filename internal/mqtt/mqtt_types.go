package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	eb "mesh-mac-simulation/internal/eventBus"
)

// Format selects the wire encoding of telemetry messages.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatMsgpack:
		return FormatMsgpack, nil
	}
	return "", fmt.Errorf("unknown telemetry format %q", s)
}

// HealthMessage is published for every node health report.
type HealthMessage struct {
	RunID   string        `json:"run_id" msgpack:"run_id"`
	NodeID  string        `json:"node_id" msgpack:"node_id"`
	SimTime time.Duration `json:"sim_time" msgpack:"sim_time"`
	X       float64       `json:"x" msgpack:"x"`
	Y       float64       `json:"y" msgpack:"y"`
	Health  eb.Health     `json:"health" msgpack:"health"`
}

// DropMessage is published whenever a node discards a frame.
type DropMessage struct {
	RunID   string        `json:"run_id" msgpack:"run_id"`
	NodeID  string        `json:"node_id" msgpack:"node_id"`
	DestID  string        `json:"dest_node_id" msgpack:"dest_node_id"`
	Seq     uint32        `json:"seq" msgpack:"seq"`
	Reason  string        `json:"reason" msgpack:"reason"`
	SimTime time.Duration `json:"sim_time" msgpack:"sim_time"`
}

func encode(f Format, v any) ([]byte, error) {
	if f == FormatMsgpack {
		return msgpack.Marshal(v)
	}
	return json.Marshal(v)
}
