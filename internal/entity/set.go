package entity

import (
	"fmt"

	"github.com/cxd309/lane-race/internal/track"
)

// Checker is told about every live entity after it has advanced, and decides
// whether it now collides with something. It receives the set for the
// duration of the call only.
type Checker interface {
	Check(s *Set, id ID) (other ID, hit bool)
}

// TickContext carries the per-tick parameters an entity needs to advance.
type TickContext struct {
	Tick           int
	Step           float64
	SwitchAdvances bool // when false a lane switch replaces the tick's movement
	Checker        Checker
}

// Outcome describes what happened to an entity during Advance.
type Outcome struct {
	Moved    bool
	Switched bool
	Lane     int // lane after the switch
	Collided bool
	Other    ID // the entity it collided with
}

// Set is the arena that owns every participant. Entities are never removed;
// dead ones stay as inert records for reporting.
type Set struct {
	entities  []Entity
	actors    []ID
	obstacles []ID
	names     map[string]ID // actor name -> ID
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{names: make(map[string]ID)}
}

// Add validates r and registers it as a live entity, returning its ID.
func (s *Set) Add(r Record) (ID, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	if r.Kind == KindActor {
		if _, exists := s.names[r.Name]; exists {
			return 0, fmt.Errorf("%w: %q", ErrDuplicateName, r.Name)
		}
	}

	id := ID(len(s.entities))
	e := Entity{
		Name:     r.Name,
		Kind:     r.Kind,
		Position: track.Position{Offset: r.InitialOffset, Lane: r.Lane},
		Alive:    true,
		next:     Advance(),
	}
	switch r.Kind {
	case KindActor:
		s.actors = append(s.actors, id)
		s.names[r.Name] = id
	case KindObstacle:
		e.FootprintLength = r.FootprintLength
		s.obstacles = append(s.obstacles, id)
	}
	s.entities = append(s.entities, e)
	return id, nil
}

// Len returns the number of registered entities, dead or alive.
func (s *Set) Len() int { return len(s.entities) }

// Get returns a copy of the entity with the given ID.
func (s *Set) Get(id ID) Entity { return s.entities[id] }

// Lookup returns the ID of the actor registered under name.
func (s *Set) Lookup(name string) (ID, bool) {
	id, ok := s.names[name]
	return id, ok
}

// Actors returns actor IDs in registration order.
func (s *Set) Actors() []ID { return append([]ID(nil), s.actors...) }

// Obstacles returns obstacle IDs in registration order.
func (s *Set) Obstacles() []ID { return append([]ID(nil), s.obstacles...) }

// AliveActors counts the actors still racing.
func (s *Set) AliveActors() int { return s.countAlive(s.actors) }

// AliveObstacles counts the obstacles not yet destroyed.
func (s *Set) AliveObstacles() int { return s.countAlive(s.obstacles) }

func (s *Set) countAlive(ids []ID) int {
	n := 0
	for _, id := range ids {
		if s.entities[id].Alive {
			n++
		}
	}
	return n
}

// SetNextAction records the action the actor takes on its next Advance.
func (s *Set) SetNextAction(id ID, a Action) {
	s.entities[id].next = a
}

// Kill marks the entity as dead. It is the only way an entity stops racing.
func (s *Set) Kill(id ID) {
	s.entities[id].Alive = false
}

// Advance runs one tick for the entity. Dead entities are left untouched.
// A live actor applies its pending action and then, like a live obstacle,
// reports itself to tc.Checker.
func (s *Set) Advance(id ID, tc TickContext) Outcome {
	e := &s.entities[id]
	if !e.Alive {
		return Outcome{}
	}

	var out Outcome
	if e.Kind == KindActor {
		a := e.next
		e.next = Advance()

		move := true
		if a.Kind == ActionSwitch {
			e.Position.SetLane(a.Lane)
			out.Switched = true
			out.Lane = a.Lane
			move = tc.SwitchAdvances
		}
		if move {
			e.Position.Increment(tc.Step)
			e.Traveled += tc.Step
			out.Moved = true
		}
	}

	if tc.Checker != nil {
		out.Other, out.Collided = tc.Checker.Check(s, id)
	}
	return out
}
