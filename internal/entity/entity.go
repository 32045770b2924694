// Package entity holds the participants of a race: movable actors and fixed
// obstacles, kept in an index-stable arena that owns them for the whole run.
package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/cxd309/lane-race/internal/track"
)

// Kind tells an actor from an obstacle.
type Kind string

const (
	KindActor    Kind = "actor"
	KindObstacle Kind = "obstacle"
)

// Legacy single-letter kind codes used by the original layout files.
const (
	legacyActorCode    = "p"
	legacyObstacleCode = "o"
)

// ParseKind resolves a kind name or its legacy single-letter code.
func ParseKind(s string) (Kind, error) {
	switch s {
	case string(KindActor), legacyActorCode:
		return KindActor, nil
	case string(KindObstacle), legacyObstacleCode:
		return KindObstacle, nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
}

// UnmarshalJSON implements json.Unmarshaler for Kind, accepting legacy codes.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ErrDuplicateName is returned when two actors are registered under one name.
var ErrDuplicateName = errors.New("duplicate actor name")

// ID addresses an entity inside its Set. IDs are assigned in registration
// order and stay valid for the life of the Set.
type ID int

// Record is the parsed description of a participant before the race starts.
type Record struct {
	Name            string  `json:"name"`
	InitialOffset   float64 `json:"initial_offset"`
	Lane            int     `json:"lane"`
	Kind            Kind    `json:"kind"`
	FootprintLength float64 `json:"footprint_length,omitempty"` // obstacles only
}

// Validate checks the record is usable.
func (r Record) Validate() error {
	if r.Name == "" {
		return errors.New("entity has no name")
	}
	if r.Kind != KindActor && r.Kind != KindObstacle {
		return fmt.Errorf("entity %q: unknown kind %q", r.Name, r.Kind)
	}
	if math.IsNaN(r.InitialOffset) || math.IsInf(r.InitialOffset, 0) {
		return fmt.Errorf("entity %q: initial offset must be finite", r.Name)
	}
	if r.FootprintLength < 0 || math.IsNaN(r.FootprintLength) {
		return fmt.Errorf("entity %q: footprint length must be non-negative", r.Name)
	}
	return nil
}

// ActionKind is the tag of an Action.
type ActionKind int

const (
	ActionAdvance ActionKind = iota
	ActionSwitch
)

// Action is an actor's plan for the current tick.
type Action struct {
	Kind ActionKind
	Lane int // destination lane; only meaningful for ActionSwitch
}

// Advance returns the advance-only action.
func Advance() Action { return Action{Kind: ActionAdvance} }

// SwitchTo returns the action that advances and moves to lane l.
func SwitchTo(l int) Action { return Action{Kind: ActionSwitch, Lane: l} }

// Entity is a single participant. Traveled is only ever non-zero for actors
// and FootprintLength is only used for obstacles.
type Entity struct {
	Name            string
	Kind            Kind
	Position        track.Position
	Alive           bool
	Traveled        float64
	FootprintLength float64

	next Action
}

// IsActor reports whether e is a movable actor.
func (e Entity) IsActor() bool { return e.Kind == KindActor }

// Next returns the action pending for the current tick.
func (e Entity) Next() Action { return e.next }
