// Package linkstats keeps per-neighbor link-quality records and the smoothed
// channel health estimators read by the routing layer.
package linkstats

import "sort"

// Record is the per-neighbor tally. Records are created on first use and
// live for the lifetime of the node.
type Record struct {
	AcksReceived       float64 `json:"acks_received"`
	AcksMissed         float64 `json:"acks_missed"`
	FramesReceived     float64 `json:"frames_received"`
	SignalQualityAccum float64 `json:"signal_quality_accum"`
	SignalQualityAvg   float64 `json:"signal_quality_avg"`
}

// Neighbor pairs a record with its neighbor id.
type Neighbor struct {
	ID uint64 `json:"id"`
	Record
}

type Aggregator struct {
	records map[uint64]*Record
}

func NewAggregator() *Aggregator {
	return &Aggregator{records: make(map[uint64]*Record)}
}

func (a *Aggregator) record(id uint64) *Record {
	r, ok := a.records[id]
	if !ok {
		r = &Record{}
		a.records[id] = r
	}
	return r
}

func (a *Aggregator) AckReceived(id uint64) { a.record(id).AcksReceived++ }

func (a *Aggregator) AckMissed(id uint64) { a.record(id).AcksMissed++ }

// Reception accumulates one signal-quality sample from a frame heard from id.
func (a *Aggregator) Reception(id uint64, quality float64) {
	r := a.record(id)
	r.FramesReceived++
	r.SignalQualityAccum += quality
	r.SignalQualityAvg = r.SignalQualityAccum / r.FramesReceived
}

func (a *Aggregator) AcksReceived(id uint64) float64 {
	if r, ok := a.records[id]; ok {
		return r.AcksReceived
	}
	return 0
}

func (a *Aggregator) AcksMissed(id uint64) float64 {
	if r, ok := a.records[id]; ok {
		return r.AcksMissed
	}
	return 0
}

func (a *Aggregator) AverageSignalQuality(id uint64) float64 {
	if r, ok := a.records[id]; ok {
		return r.SignalQualityAvg
	}
	return 0
}

// lookup returns a copy of the record for id.
func (a *Aggregator) lookup(id uint64) (Record, bool) {
	r, ok := a.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

func (a *Aggregator) len() int { return len(a.records) }

// Neighbors returns a snapshot ordered by id.
func (a *Aggregator) Neighbors() []Neighbor {
	out := make([]Neighbor, 0, len(a.records))
	for id, r := range a.records {
		out = append(out, Neighbor{ID: id, Record: *r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
