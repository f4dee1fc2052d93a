package mac

import (
	"time"
)

// Rand is a source of uniform draws on the open interval (0, 1), such as
// an rngstream.RngStream.
type Rand interface {
	RandU01() float64
}

// Backoff draws backoff durations and keeps the running total used for the
// mean-backoff report.
type Backoff struct {
	method BackoffMethod
	unit   time.Duration
	cw     int
	minBE  int
	maxBE  int
	rng    Rand

	count int64
	total time.Duration
}

func NewBackoff(cfg Config, rng Rand) *Backoff {
	return &Backoff{
		method: cfg.BackoffMethod,
		unit:   cfg.UnitBackoffPeriod,
		cw:     cfg.ContentionWindow,
		minBE:  cfg.MinBE,
		maxBE:  cfg.MaxBE,
		rng:    rng,
	}
}

// uniform draws from [lo, hi], both ends included.
func (b *Backoff) uniform(lo, hi int) int {
	return lo + int(b.rng.RandU01()*float64(hi-lo+1))
}

// Next returns the backoff for a cycle that has already seen nb busy CCAs.
func (b *Backoff) Next(nb int) time.Duration {
	var slots int
	switch b.method {
	case BackoffExponential:
		be := min(b.minBE+nb, b.maxBE)
		slots = b.uniform(0, (1<<be)-1)
	case BackoffLinear:
		slots = b.uniform(1, b.cw+nb)
	default:
		slots = b.uniform(1, b.cw)
	}
	d := time.Duration(slots) * b.unit
	b.count++
	b.total += d
	return d
}

// maxDuration is the largest value Next can return for nb.
func (b *Backoff) maxDuration(nb int) time.Duration {
	switch b.method {
	case BackoffExponential:
		be := min(b.minBE+nb, b.maxBE)
		return time.Duration((1<<be)-1) * b.unit
	case BackoffLinear:
		return time.Duration(b.cw+nb) * b.unit
	default:
		return time.Duration(b.cw) * b.unit
	}
}

func (b *Backoff) Count() int64 { return b.count }
func (b *Backoff) Total() time.Duration { return b.total }

func (b *Backoff) Mean() time.Duration {
	if b.count == 0 {
		return 0
	}
	return b.total / time.Duration(b.count)
}
