package mesh

import (
	"testing"

	"github.com/iti/rngstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid(t *testing.T) {
	assert.Nil(t, Grid(0, 100))
	assert.Equal(t, []Position{{0, 0}}, Grid(1, 100))

	got := Grid(5, 100)
	require.Len(t, got, 5)
	// 3x3 grid with 50m spacing, filled row by row
	assert.Equal(t, []Position{{0, 0}, {50, 0}, {100, 0}, {0, 50}, {50, 50}}, got)
}

func TestUniformStaysInside(t *testing.T) {
	rng := rngstream.New("placement")
	got := Uniform(200, 30, rng)
	require.Len(t, got, 200)
	for _, p := range got {
		assert.True(t, p.X >= 0 && p.X < 30 && p.Y >= 0 && p.Y < 30, "%v", p)
	}

	rng.ResetStartStream()
	again := Uniform(200, 30, rng)
	assert.Equal(t, got, again)
}

func TestDistance(t *testing.T) {
	a, b := Position{0, 0}, Position{3, 4}
	assert.Equal(t, 5.0, a.DistanceTo(b))
	assert.True(t, a.Equals(Position{}))
	assert.False(t, a.Equals(b))
}
