package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type tallies map[uint64][2]float64 // received, missed

func (t tallies) AcksReceived(id uint64) float64 { return t[id][0] }
func (t tallies) AcksMissed(id uint64) float64 { return t[id][1] }

func TestETX(t *testing.T) {
	assert.Equal(t, UnknownLinkETX, ETX(0, 0))
	assert.Equal(t, DeadLinkETX, ETX(0, 4))
	assert.Equal(t, 1.0, ETX(10, 0))
	assert.Equal(t, 1.5, ETX(4, 2))
}

func TestETXEstimatorSmoothing(t *testing.T) {
	src := tallies{1: {4, 2}}
	est := NewETXEstimator(src, 0.5)

	// 0.5*1.5 + 0.5*1
	assert.Equal(t, 1.25, est.Update(1))
	// 0.5*1.5 + 0.5*1.25
	assert.Equal(t, 1.38, est.Update(1))

	src[1] = [2]float64{0, 3}
	assert.Equal(t, DeadLinkETX, est.Update(1))
	v, ok := est.last(1)
	assert.True(t, ok)
	assert.Equal(t, DeadLinkETX, v)
}

func TestETXEstimatorAlphaOneIsRaw(t *testing.T) {
	est := NewETXEstimator(tallies{7: {3, 1}}, 1)
	assert.Equal(t, 1.33, est.Update(7))
}

func TestBestPrefersLowestETX(t *testing.T) {
	src := tallies{
		1: {1, 3},
		2: {5, 0},
		3: {0, 2},
	}
	est := NewETXEstimator(src, 1)
	id, etx, ok := est.Best([]uint64{3, 1, 2})
	assert.True(t, ok)
	assert.Equal(t, uint64(2), id)
	assert.Equal(t, 1.0, etx)

	_, _, ok = est.Best(nil)
	assert.False(t, ok)
}
