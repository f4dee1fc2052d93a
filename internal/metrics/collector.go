package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	eb "mesh-mac-simulation/internal/eventBus"
	"mesh-mac-simulation/internal/mac"
)

// ChannelStats are shared-medium totals.
type ChannelStats struct {
	Transmissions uint64 `json:"transmissions" msgpack:"transmissions"`
	Receptions    uint64 `json:"receptions" msgpack:"receptions"`
	Collisions    uint64 `json:"collisions" msgpack:"collisions"`
	Weak          uint64 `json:"weak" msgpack:"weak"`
	Missed        uint64 `json:"missed" msgpack:"missed"` // receiver was not listening
}

// Live counts events seen on the bus. The bus drops events for slow
// subscribers, so these are lower bounds; node reports are exact.
type Live struct {
	Joined        uint64            `json:"joined" msgpack:"joined"`
	Queued        uint64            `json:"queued" msgpack:"queued"`
	Sent          uint64            `json:"sent" msgpack:"sent"`
	Acked         uint64            `json:"acked" msgpack:"acked"`
	Delivered     uint64            `json:"delivered" msgpack:"delivered"`
	Dropped       uint64            `json:"dropped" msgpack:"dropped"`
	AcksMissed    uint64            `json:"acks_missed" msgpack:"acks_missed"`
	Duplicates    uint64            `json:"duplicates" msgpack:"duplicates"`
	HealthReports uint64            `json:"health_reports" msgpack:"health_reports"`
	DropsByReason map[string]uint64 `json:"drops_by_reason" msgpack:"drops_by_reason"`
}

// NodeSummary is one node's end-of-run report.
type NodeSummary struct {
	Address   string             `json:"address" msgpack:"address"`
	X         float64            `json:"x" msgpack:"x"`
	Y         float64            `json:"y" msgpack:"y"`
	Delivered int                `json:"delivered" msgpack:"delivered"`
	MAC       mac.Report         `json:"mac" msgpack:"mac"`
	ETX       map[string]float64 `json:"etx,omitempty" msgpack:"etx,omitempty"`
}

type RunInfo struct {
	ID      string        `json:"id" msgpack:"id"`
	Name    string        `json:"name" msgpack:"name"`
	SimTime time.Duration `json:"sim_time" msgpack:"sim_time"`
	Events  uint64        `json:"events" msgpack:"events"`
	Wall    time.Duration `json:"wall" msgpack:"wall"`
}

// Snapshot is everything the collector knows at one point in time.
type Snapshot struct {
	Run      RunInfo       `json:"run" msgpack:"run"`
	Live     Live          `json:"live" msgpack:"live"`
	Totals   mac.Counters  `json:"totals" msgpack:"totals"`
	AckRatio float64       `json:"ack_ratio" msgpack:"ack_ratio"`
	Channel  ChannelStats  `json:"channel" msgpack:"channel"`
	Nodes    []NodeSummary `json:"nodes" msgpack:"nodes"`
}

type Collector struct {
	mu      sync.Mutex
	run     RunInfo
	live    Live
	channel ChannelStats
	nodes   []NodeSummary
}

func NewCollector() *Collector {
	return &Collector{live: Live{DropsByReason: make(map[string]uint64)}}
}

// Consume folds one bus event into the live counts.
func (c *Collector) Consume(ev eb.Event) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Type {
	case eb.EventNodeJoined:
		c.live.Joined++
	case eb.EventFrameQueued:
		c.live.Queued++
	case eb.EventFrameSent:
		c.live.Sent++
	case eb.EventFrameAcked:
		c.live.Acked++
	case eb.EventFrameDelivered:
		c.live.Delivered++
	case eb.EventFrameDropped:
		c.live.Dropped++
		c.live.DropsByReason[ev.Reason]++
	case eb.EventAckMissed:
		c.live.AcksMissed++
	case eb.EventDuplicate:
		c.live.Duplicates++
	case eb.EventHealth:
		c.live.HealthReports++
	}
}

func (c *Collector) SetRun(info RunInfo) {
	c.mu.Lock()
	c.run = info
	c.mu.Unlock()
}

func (c *Collector) SetChannel(s ChannelStats) {
	c.mu.Lock()
	c.channel = s
	c.mu.Unlock()
}

// AddNodeReport records a node's final report. A second report for the
// same address replaces the first.
func (c *Collector) AddNodeReport(s NodeSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.nodes {
		if c.nodes[i].Address == s.Address {
			c.nodes[i] = s
			return
		}
	}
	c.nodes = append(c.nodes, s)
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Run:     c.run,
		Live:    c.live,
		Channel: c.channel,
		Nodes:   append([]NodeSummary(nil), c.nodes...),
	}
	s.Live.DropsByReason = make(map[string]uint64, len(c.live.DropsByReason))
	for k, v := range c.live.DropsByReason {
		s.Live.DropsByReason[k] = v
	}
	for _, n := range c.nodes {
		s.Totals = s.Totals.Plus(n.MAC.Counters)
	}
	if tries := s.Totals.ReceivedAcks + s.Totals.MissedAcks; tries > 0 {
		s.AckRatio = float64(s.Totals.ReceivedAcks) / float64(tries)
	}
	return s
}

// Flush writes a snapshot to file: msgpack for a .msgpack extension,
// indented JSON otherwise.
func (c *Collector) Flush(file string) error {
	snap := c.Snapshot()
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("flush metrics: %w", err)
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(file), ".msgpack") {
		return msgpack.NewEncoder(f).Encode(snap)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
