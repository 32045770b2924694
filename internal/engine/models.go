package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/charmbracelet/log"

	"github.com/cxd309/lane-race/internal/collision"
	"github.com/cxd309/lane-race/internal/controller"
	"github.com/cxd309/lane-race/internal/entity"
	"github.com/cxd309/lane-race/internal/track"
)

var (
	// ErrInvalidConfig wraps every configuration rejected by Validate.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNotConverged is returned by Run when MaxTicks elapse before the race terminates.
	ErrNotConverged = errors.New("simulation did not converge")
)

// Termination selects when a race is over.
type Termination string

const (
	// TerminationExhaustion ends the race when no actors or no obstacles are left alive.
	TerminationExhaustion Termination = "obstacle-exhaustion"
	// TerminationOutrun ends the race when no actors are left alive or every
	// live obstacle is at or behind the frontmost live actor.
	TerminationOutrun Termination = "outrun"
)

// ParseTermination validates a termination policy name. The empty string
// means obstacle exhaustion.
func ParseTermination(s string) (Termination, error) {
	switch Termination(s) {
	case "", TerminationExhaustion:
		return TerminationExhaustion, nil
	case TerminationOutrun:
		return TerminationOutrun, nil
	default:
		return "", fmt.Errorf("unknown termination policy %q", s)
	}
}

// DefaultStep is the distance every live actor covers per tick.
const DefaultStep = 0.05

// DefaultMaxTicks bounds Run for configurations that never terminate.
const DefaultMaxTicks = 1_000_000

// Config holds the fixed parameters of a race.
type Config struct {
	Step        float64           `json:"step_size"`
	Tolerance   float64           `json:"tolerance,omitempty"` // 0 = half the step
	Collision   collision.Policy  `json:"collision_policy"`
	Termination Termination       `json:"termination_policy"`
	Trigger     controller.Metric `json:"trigger_metric"`
	// SwitchInPlace makes a lane switch take the whole tick: the actor
	// changes lane without moving forward.
	SwitchInPlace bool `json:"switch_in_place,omitempty"`
	Lanes         int  `json:"lanes,omitempty"`     // 0 = unbounded
	MaxTicks      int  `json:"max_ticks,omitempty"` // 0 = unbounded
}

// DefaultConfig returns the configuration used when the input leaves fields unset.
func DefaultConfig() Config {
	return Config{
		Step:        DefaultStep,
		Collision:   collision.PolicyPoint,
		Termination: TerminationExhaustion,
		Trigger:     controller.MetricDistance,
		MaxTicks:    DefaultMaxTicks,
	}
}

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if !(c.Step > 0) || math.IsInf(c.Step, 0) {
		return invalid("step size must be positive and finite, got %v", c.Step)
	}
	if c.Tolerance < 0 || math.IsNaN(c.Tolerance) || math.IsInf(c.Tolerance, 0) {
		return invalid("tolerance must be non-negative and finite, got %v", c.Tolerance)
	}
	if _, err := collision.ParsePolicy(string(c.Collision)); err != nil {
		return invalid("%v", err)
	}
	if _, err := ParseTermination(string(c.Termination)); err != nil {
		return invalid("%v", err)
	}
	if _, err := controller.ParseMetric(string(c.Trigger)); err != nil {
		return invalid("%v", err)
	}
	if c.Lanes < 0 {
		return invalid("lane count must not be negative, got %d", c.Lanes)
	}
	if c.MaxTicks < 0 {
		return invalid("max ticks must not be negative, got %d", c.MaxTicks)
	}
	return nil
}

// EffectiveTolerance returns the configured tolerance, or half the step when unset.
func (c Config) EffectiveTolerance() track.Tolerance {
	if c.Tolerance == 0 {
		return track.Tolerance(c.Step / 2)
	}
	return track.Tolerance(c.Tolerance)
}

// RaceMeta identifies a race run.
type RaceMeta struct {
	RaceID string `json:"race_id"`
}

// RaceInput is the JSON-serialisable input to the engine.
type RaceInput struct {
	Meta     RaceMeta             `json:"race_meta"`
	Config   Config               `json:"config"`
	Entities []entity.Record      `json:"entities"`
	Commands []controller.Command `json:"commands"`
}

// State is the orchestrator's lifecycle state.
type State string

const (
	StateRunning    State = "running"
	StateTerminated State = "terminated"
)

// EventKind classifies a logged race event.
type EventKind string

const (
	EventLaneSwitch EventKind = "lane_switch"
	EventCollision  EventKind = "collision"
)

// Event is a lane switch or collision, recorded at the zero-based tick it happened in.
type Event struct {
	Tick     int       `json:"tick"`
	Kind     EventKind `json:"kind"`
	Actor    string    `json:"actor"`
	Obstacle string    `json:"obstacle,omitempty"`
	Offset   float64   `json:"offset"`
	Lane     int       `json:"lane"`
}

// Standing is one actor's line in the final ranking.
type Standing struct {
	Rank             int            `json:"rank"`
	Actor            string         `json:"actor"`
	DistanceTraveled float64        `json:"distance_traveled"`
	Survived         bool           `json:"survived"`
	Position         track.Position `json:"position"`
}

// ObstacleState is an obstacle's state at the end of the race.
type ObstacleState struct {
	Name            string         `json:"name"`
	Position        track.Position `json:"position"`
	FootprintLength float64        `json:"footprint_length,omitempty"`
	Destroyed       bool           `json:"destroyed"`
}

// Result is the complete output of a race.
type Result struct {
	Meta      RaceMeta        `json:"race_meta"`
	Config    Config          `json:"config"`
	State     State           `json:"state"`
	Ticks     int             `json:"ticks"`
	Standings []Standing      `json:"standings"` // ascending by distance traveled
	Obstacles []ObstacleState `json:"obstacles"`
	Events    []Event         `json:"events"`
	// PendingCommands counts commands that never fired, by actor name.
	PendingCommands map[string]int `json:"pending_commands,omitempty"`
}

// Option customises a Race.
type Option func(*Race)

// WithLogger sets the logger that receives race events.
func WithLogger(l *log.Logger) Option {
	return func(r *Race) { r.logger = l }
}

// Race is the orchestrator state.
type Race struct {
	meta     RaceMeta
	cfg      Config
	tol      track.Tolerance
	set      *entity.Set
	ctrl     *controller.Controller
	detector collision.Detector
	tick     int
	state    State
	events   []Event
	logger   *log.Logger
}
