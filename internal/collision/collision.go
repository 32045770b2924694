// Package collision decides when an actor and an obstacle meet.
package collision

import (
	"fmt"

	"github.com/cxd309/lane-race/internal/entity"
	"github.com/cxd309/lane-race/internal/track"
)

// Policy selects the collision geometry.
type Policy string

const (
	// PolicyPoint: an actor hits an obstacle when their positions coincide.
	PolicyPoint Policy = "point"
	// PolicyFootprint: an actor hits an obstacle when it shares its lane and
	// its offset lies within the obstacle's footprint.
	PolicyFootprint Policy = "footprint"
)

// ParsePolicy validates a policy name. The empty string means point.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyPoint:
		return PolicyPoint, nil
	case PolicyFootprint:
		return PolicyFootprint, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q", s)
	}
}

// Detector implements entity.Checker. It keeps no reference to the set.
type Detector struct {
	Policy    Policy
	Tolerance track.Tolerance
}

// Check scans every live entity of the opposite kind in registration order.
// On the first hit both entities are killed and the other one's ID returned.
func (d Detector) Check(s *entity.Set, id entity.ID) (entity.ID, bool) {
	self := s.Get(id)
	if !self.Alive {
		return 0, false
	}

	candidates := s.Obstacles()
	if !self.IsActor() {
		candidates = s.Actors()
	}
	for _, other := range candidates {
		o := s.Get(other)
		if !o.Alive {
			continue
		}
		actor, obstacle := self, o
		if !self.IsActor() {
			actor, obstacle = o, self
		}
		if d.overlaps(actor, obstacle) {
			s.Kill(id)
			s.Kill(other)
			return other, true
		}
	}
	return 0, false
}

func (d Detector) overlaps(actor, obstacle entity.Entity) bool {
	if d.Policy == PolicyFootprint {
		return d.withinFootprint(actor.Position, obstacle)
	}
	return actor.Position.CoincidentWith(obstacle.Position, d.Tolerance)
}

// withinFootprint widens [start, start+footprint] by the tolerance on both
// ends, so a zero footprint behaves like the point policy.
func (d Detector) withinFootprint(p track.Position, obstacle entity.Entity) bool {
	if !p.SameLane(obstacle.Position) {
		return false
	}
	start := obstacle.Position.Offset
	end := start + obstacle.FootprintLength
	tol := float64(d.Tolerance)
	return p.Offset > start-tol && p.Offset < end+tol
}
