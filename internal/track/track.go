// Package track provides the quantized one-dimensional position used by every
// participant in a race, along with the tolerance comparison that absorbs the
// drift from repeated fixed-step accumulation.
package track

import "math"

// Tolerance is the largest difference (exclusive) at which two offsets are
// treated as equal.
type Tolerance float64

// Equal reports whether a and b differ by strictly less than t.
func (t Tolerance) Equal(a, b float64) bool {
	return math.Abs(a-b) < float64(t)
}

// Position is a point on the track: a distance along it and a lane index.
type Position struct {
	Offset float64 `json:"offset"`
	Lane   int     `json:"lane"`
}

// Increment moves the position forward by delta along its lane.
func (p *Position) Increment(delta float64) { p.Offset += delta }

// SetLane moves the position to lane l without changing its offset.
func (p *Position) SetLane(l int) { p.Lane = l }

// SameLane reports whether p and other share a lane.
func (p Position) SameLane(other Position) bool { return p.Lane == other.Lane }

// CoincidentWith reports whether p and other share a lane and their offsets
// are equal within tol. The relation is symmetric.
func (p Position) CoincidentWith(other Position, tol Tolerance) bool {
	return p.SameLane(other) && tol.Equal(p.Offset, other.Offset)
}
