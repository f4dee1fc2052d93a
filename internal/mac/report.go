package mac

import (
	"time"

	"mesh-mac-simulation/internal/frame"
	"mesh-mac-simulation/internal/linkstats"
)

// Counters are the engine's running totals. They only ever grow.
type Counters struct {
	Enqueued             uint64 `json:"enqueued" msgpack:"enqueued"`
	TxFrames             uint64 `json:"tx_frames" msgpack:"tx_frames"`
	RxFrames             uint64 `json:"rx_frames" msgpack:"rx_frames"`
	TxAcks               uint64 `json:"tx_acks" msgpack:"tx_acks"`
	ReceivedAcks         uint64 `json:"received_acks" msgpack:"received_acks"`
	MissedAcks           uint64 `json:"missed_acks" msgpack:"missed_acks"`
	DroppedCongestion    uint64 `json:"dropped_congestion" msgpack:"dropped_congestion"`
	DroppedRetryLimit    uint64 `json:"dropped_retry_limit" msgpack:"dropped_retry_limit"`
	DroppedQueueOverflow uint64 `json:"dropped_queue_overflow" msgpack:"dropped_queue_overflow"`
	Duplicates           uint64 `json:"duplicates" msgpack:"duplicates"`
	Corrupted            uint64 `json:"corrupted" msgpack:"corrupted"`
	NotForUs             uint64 `json:"not_for_us" msgpack:"not_for_us"`
	ProtocolErrors       uint64 `json:"protocol_errors" msgpack:"protocol_errors"`
}

func (c Counters) Dropped() uint64 {
	return c.DroppedCongestion + c.DroppedRetryLimit + c.DroppedQueueOverflow
}

// Plus returns the field-wise sum of c and o.
func (c Counters) Plus(o Counters) Counters {
	c.Enqueued += o.Enqueued
	c.TxFrames += o.TxFrames
	c.RxFrames += o.RxFrames
	c.TxAcks += o.TxAcks
	c.ReceivedAcks += o.ReceivedAcks
	c.MissedAcks += o.MissedAcks
	c.DroppedCongestion += o.DroppedCongestion
	c.DroppedRetryLimit += o.DroppedRetryLimit
	c.DroppedQueueOverflow += o.DroppedQueueOverflow
	c.Duplicates += o.Duplicates
	c.Corrupted += o.Corrupted
	c.NotForUs += o.NotForUs
	c.ProtocolErrors += o.ProtocolErrors
	return c
}

// Health is the set of smoothed estimates a routing layer polls.
type Health struct {
	ChannelUtilization        float64 `json:"channel_utilization" msgpack:"channel_utilization"`
	CurrentChannelUtilization float64 `json:"current_channel_utilization" msgpack:"current_channel_utilization"`
	QueueOccupancy            float64 `json:"queue_occupancy" msgpack:"queue_occupancy"`
	FailRateRetry             float64 `json:"fail_rate_retry" msgpack:"fail_rate_retry"`
	FailRateCongestion        float64 `json:"fail_rate_congestion" msgpack:"fail_rate_congestion"`
	RxFrameRate               float64 `json:"rx_frame_rate" msgpack:"rx_frame_rate"`
	QueueLen                  int     `json:"queue_len" msgpack:"queue_len"`
	State                     string  `json:"state" msgpack:"state"`
}

func (e *Engine) Health() Health {
	return Health{
		ChannelUtilization:        e.est.ChannelUtilization(),
		CurrentChannelUtilization: e.est.CurrentChannelUtilization(),
		QueueOccupancy:            e.est.QueueOccupancy(),
		FailRateRetry:             e.est.FailRateRetry(),
		FailRateCongestion:        e.est.FailRateCongestion(),
		RxFrameRate:               e.est.RxFrameRate(),
		QueueLen:                  e.queue.len(),
		State:                     e.state.String(),
	}
}

// Report is the end-of-run summary of one engine.
type Report struct {
	Address      frame.Address        `json:"address" msgpack:"address"`
	Counters     Counters             `json:"counters" msgpack:"counters"`
	Backoffs     int64                `json:"backoffs" msgpack:"backoffs"`
	BackoffTotal time.Duration        `json:"backoff_total" msgpack:"backoff_total"`
	MeanBackoff  time.Duration        `json:"mean_backoff" msgpack:"mean_backoff"`
	Health       Health               `json:"health" msgpack:"health"`
	Neighbors    []linkstats.Neighbor `json:"neighbors" msgpack:"neighbors"`
}

func (e *Engine) Report() Report {
	return Report{
		Address:      e.addr,
		Counters:     e.counters,
		Backoffs:     e.backoff.Count(),
		BackoffTotal: e.backoff.Total(),
		MeanBackoff:  e.backoff.Mean(),
		Health:       e.Health(),
		Neighbors:    e.stats.Neighbors(),
	}
}
