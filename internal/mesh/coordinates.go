package mesh

import (
	"math"
)

// Position is a point on the simulation plane, in meters.
type Position struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

func (p Position) DistanceTo(other Position) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}

func (p Position) Equals(other Position) bool {
	return p.X == other.X && p.Y == other.Y
}

// Grid lays count nodes on a square grid spanning side meters. A single
// row or column sits at the origin.
func Grid(count int, side float64) []Position {
	if count <= 0 {
		return nil
	}
	rows := int(math.Ceil(math.Sqrt(float64(count))))
	cols := rows
	step := 0.0
	if rows > 1 {
		step = side / float64(rows-1)
	}
	out := make([]Position, 0, count)
	for r := 0; r < rows && len(out) < count; r++ {
		for c := 0; c < cols && len(out) < count; c++ {
			out = append(out, Position{X: float64(c) * step, Y: float64(r) * step})
		}
	}
	return out
}

// Uniform scatters count nodes over a side x side square, drawing from an
// rngstream.RngStream or anything else with the same method.
func Uniform(count int, side float64, rng interface{ RandU01() float64 }) []Position {
	out := make([]Position, count)
	for i := range out {
		out[i] = Position{X: rng.RandU01() * side, Y: rng.RandU01() * side}
	}
	return out
}
