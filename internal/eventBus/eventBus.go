package eventBus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventNodeJoined     EventType = "NODE_JOINED"
	EventFrameQueued    EventType = "FRAME_QUEUED"
	EventFrameSent      EventType = "FRAME_SENT"
	EventFrameAcked     EventType = "FRAME_ACKED"
	EventFrameDelivered EventType = "FRAME_DELIVERED"
	EventFrameDropped   EventType = "FRAME_DROPPED"
	EventAckMissed      EventType = "ACK_MISSED"
	EventDuplicate      EventType = "DUPLICATE"
	EventHealth         EventType = "HEALTH"
)

// Health is a node's periodic link and channel snapshot.
type Health struct {
	ChannelUtilization        float64            `json:"channel_utilization" msgpack:"channel_utilization"`
	CurrentChannelUtilization float64            `json:"current_channel_utilization" msgpack:"current_channel_utilization"`
	QueueOccupancy            float64            `json:"queue_occupancy" msgpack:"queue_occupancy"`
	FailRateRetry             float64            `json:"fail_rate_retry" msgpack:"fail_rate_retry"`
	FailRateCongestion        float64            `json:"fail_rate_congestion" msgpack:"fail_rate_congestion"`
	RxFrameRate               float64            `json:"rx_frame_rate" msgpack:"rx_frame_rate"`
	QueueLen                  int                `json:"queue_len" msgpack:"queue_len"`
	State                     string             `json:"state" msgpack:"state"`
	ETX                       map[string]float64 `json:"etx,omitempty" msgpack:"etx,omitempty"`
}

// Event holds details that the front end might need.
type Event struct {
	ID          uuid.UUID     `json:"id"`
	Type        EventType     `json:"type"`
	NodeID      string        `json:"node_id"`
	OtherNodeID string        `json:"other_node_id,omitempty"`
	Seq         uint32        `json:"seq,omitempty"`
	Attempt     int           `json:"attempt,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	SimTime     time.Duration `json:"sim_time"`
	Timestamp   time.Time     `json:"timestamp"`
	X           float64       `json:"x"`
	Y           float64       `json:"y"`
	Health      *Health       `json:"health,omitempty"`
}

// EventBus manages a set of subscribers and publishes events to them.
type EventBus struct {
	subscribers []chan Event
	mu          sync.RWMutex
	closed      bool
	log         *slog.Logger
}

func NewEventBus(log *slog.Logger) *EventBus {
	if log == nil {
		log = slog.Default()
	}
	return &EventBus{
		subscribers: make([]chan Event, 0),
		log:         log.With("component", "bus"),
	}
}

// Publish sends an event to all subscribers. It never blocks: a subscriber
// whose buffer is full misses the event.
func (eb *EventBus) Publish(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	for _, sub := range eb.subscribers {
		select {
		case sub <- e:
		default:
			eb.log.Debug("dropping event: subscriber channel is full", "type", e.Type)
		}
	}
}

// Subscribe returns a new channel that will receive published events.
func (eb *EventBus) Subscribe() chan Event {
	return eb.SubscribeSize(100)
}

func (eb *EventBus) SubscribeSize(size int) chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(chan Event, size)
	if eb.closed {
		close(ch)
		return ch
	}
	eb.subscribers = append(eb.subscribers, ch)
	return ch
}

// Subscribers is the number of open subscriptions.
func (eb *EventBus) Subscribers() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Unsubscribe removes ch and closes it.
func (eb *EventBus) Unsubscribe(ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close closes every subscriber channel. Later publishes are discarded.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for _, sub := range eb.subscribers {
		close(sub)
	}
	eb.subscribers = nil
}
