package routing

import (
	"math"
	"sort"
)

const (
	// UnknownLinkETX is reported for a neighbor nothing was ever sent to.
	UnknownLinkETX = 1.0
	// DeadLinkETX is the sentinel for a neighbor that never acknowledged.
	DeadLinkETX = 100.0
)

// ETX is the instantaneous link cost computed from ACK tallies as
// (missed + received) / received. It is not attempts/successes: a missed
// ACK on the final attempt is counted on top of the retries.
func ETX(received, missed float64) float64 {
	switch {
	case received == 0 && missed == 0:
		return UnknownLinkETX
	case received == 0:
		return DeadLinkETX
	}
	return (missed + received) / received
}

// ETXEstimator smooths ETX per neighbor:
// alpha*raw + (1-alpha)*previous, rounded to two decimals.
type ETXEstimator struct {
	src   LinkQuality
	alpha float64
	prev  map[uint64]float64
}

func NewETXEstimator(src LinkQuality, alpha float64) *ETXEstimator {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	return &ETXEstimator{src: src, alpha: alpha, prev: make(map[uint64]float64)}
}

// Update reads the current tallies for id and folds them into its estimate.
// The sentinel values replace the history rather than being smoothed.
func (e *ETXEstimator) Update(id uint64) float64 {
	rcv := e.src.AcksReceived(id)
	missed := e.src.AcksMissed(id)
	if rcv == 0 {
		v := ETX(rcv, missed)
		e.prev[id] = v
		return v
	}
	prev, ok := e.prev[id]
	if !ok {
		prev = UnknownLinkETX
	}
	v := e.alpha*ETX(rcv, missed) + (1-e.alpha)*prev
	v = math.Round(v*100) / 100
	e.prev[id] = v
	return v
}

// last returns the most recent estimate for id without reading the source.
func (e *ETXEstimator) last(id uint64) (float64, bool) {
	v, ok := e.prev[id]
	return v, ok
}

// Best updates every candidate and returns the one with the lowest ETX.
// Ties go to the lower id.
func (e *ETXEstimator) Best(candidates []uint64) (uint64, float64, bool) {
	if len(candidates) == 0 {
		return 0, 0, false
	}
	ids := append([]uint64(nil), candidates...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	best, bestETX := ids[0], e.Update(ids[0])
	for _, id := range ids[1:] {
		if v := e.Update(id); v < bestETX {
			best, bestETX = id, v
		}
	}
	return best, bestETX, true
}
