// Package engine implements the lane race simulation loop.
//
// The race advances in fixed ticks. Each tick:
//
//  1. Dispatch - every actor, alive or not, is given its action for the tick
//     by the scripted command controller.
//  2. Actors - every live actor advances by one step (switching lane if its
//     action says so) and is checked for collisions.
//  3. Obstacles - every live obstacle is checked for collisions from its own
//     side, catching actors that are already inside its footprint.
//  4. Termination - the configured predicate decides whether the race is over.
package engine

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/cxd309/lane-race/internal/collision"
	"github.com/cxd309/lane-race/internal/controller"
	"github.com/cxd309/lane-race/internal/entity"
)

// NewRace constructs a Race from a RaceInput, validating the configuration and
// registering every entity. The race starts Running unless the termination
// predicate already holds.
func NewRace(input RaceInput, opts ...Option) (*Race, error) {
	cfg, err := normalize(input.Config)
	if err != nil {
		return nil, err
	}

	set := entity.NewSet()
	for i, rec := range input.Entities {
		if err := checkLane(cfg, rec.Lane); err != nil {
			return nil, fmt.Errorf("entity %q: %w", rec.Name, err)
		}
		if _, err := set.Add(rec); err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
	}
	for _, c := range input.Commands {
		if err := checkLane(cfg, c.Lane); err != nil {
			return nil, fmt.Errorf("command for %q at %v: %w", c.Actor, c.Trigger, err)
		}
	}

	meta := input.Meta
	if meta.RaceID == "" {
		meta.RaceID = uuid.NewString()
	}

	tol := cfg.EffectiveTolerance()
	r := &Race{
		meta: meta,
		cfg:  cfg,
		tol:  tol,
		set:  set,
		ctrl: controller.New(input.Commands, controller.Options{
			Tolerance: tol,
			Metric:    cfg.Trigger,
		}),
		detector: collision.Detector{Policy: cfg.Collision, Tolerance: tol},
		state:    StateRunning,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("race", meta.RaceID)

	if r.finished() {
		r.state = StateTerminated
	}
	return r, nil
}

// normalize validates cfg and resolves empty policy names to their defaults.
func normalize(cfg Config) (Config, error) {
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.Collision, _ = collision.ParsePolicy(string(cfg.Collision))
	cfg.Termination, _ = ParseTermination(string(cfg.Termination))
	cfg.Trigger, _ = controller.ParseMetric(string(cfg.Trigger))
	return cfg, nil
}

func checkLane(cfg Config, lane int) error {
	if lane < 0 || (cfg.Lanes > 0 && lane >= cfg.Lanes) {
		return fmt.Errorf("%w: lane %d outside track of %d lanes", ErrInvalidConfig, lane, cfg.Lanes)
	}
	return nil
}

// State returns the current lifecycle state.
func (r *Race) State() State { return r.state }

// Ticks returns how many ticks have run.
func (r *Race) Ticks() int { return r.tick }

// Entities exposes the entity set for inspection.
func (r *Race) Entities() *entity.Set { return r.set }

// Pending returns how many commands are still queued for actor.
func (r *Race) Pending(actor string) int { return r.ctrl.Pending(actor) }

// Run steps the race until it terminates and returns the result. If MaxTicks
// is set and reached first, the partial result is returned with ErrNotConverged.
func (r *Race) Run() (Result, error) {
	r.logger.Info("race started",
		"actors", len(r.set.Actors()),
		"obstacles", len(r.set.Obstacles()),
		"collision", r.cfg.Collision,
		"termination", r.cfg.Termination,
	)
	for r.state == StateRunning {
		if r.cfg.MaxTicks > 0 && r.tick >= r.cfg.MaxTicks {
			r.logger.Warn("race did not converge", "ticks", r.tick)
			return r.Result(), fmt.Errorf("after %d ticks: %w", r.tick, ErrNotConverged)
		}
		r.Step()
	}
	r.logger.Info("race finished",
		"ticks", r.tick,
		"survivors", r.set.AliveActors(),
		"obstacles_left", r.set.AliveObstacles(),
	)
	return r.Result(), nil
}

// Step advances the race by one tick. It is a no-op once the race has terminated.
func (r *Race) Step() {
	if r.state == StateTerminated {
		return
	}

	tc := entity.TickContext{
		Tick:           r.tick,
		Step:           r.cfg.Step,
		SwitchAdvances: !r.cfg.SwitchInPlace,
		Checker:        r.detector,
	}

	actors := r.set.Actors()
	for _, id := range actors {
		r.ctrl.Dispatch(r.set, id, r.tick)
	}
	for _, id := range actors {
		r.record(id, r.set.Advance(id, tc))
	}
	for _, id := range r.set.Obstacles() {
		r.record(id, r.set.Advance(id, tc))
	}

	r.tick++
	if r.finished() {
		r.state = StateTerminated
	}
}

// record turns an advance outcome into events and log lines.
func (r *Race) record(id entity.ID, out entity.Outcome) {
	self := r.set.Get(id)
	if out.Switched {
		r.events = append(r.events, Event{
			Tick:   r.tick,
			Kind:   EventLaneSwitch,
			Actor:  self.Name,
			Offset: self.Position.Offset,
			Lane:   out.Lane,
		})
		r.logger.Debug("lane switch", "tick", r.tick, "actor", self.Name, "lane", out.Lane, "offset", self.Position.Offset)
	}
	if !out.Collided {
		return
	}

	actor, obstacle := self, r.set.Get(out.Other)
	if !self.IsActor() {
		actor, obstacle = obstacle, self
	}
	r.events = append(r.events, Event{
		Tick:     r.tick,
		Kind:     EventCollision,
		Actor:    actor.Name,
		Obstacle: obstacle.Name,
		Offset:   actor.Position.Offset,
		Lane:     actor.Position.Lane,
	})
	r.logger.Debug("collision", "tick", r.tick, "actor", actor.Name, "obstacle", obstacle.Name,
		"offset", actor.Position.Offset, "lane", actor.Position.Lane)
}

// finished evaluates the configured termination predicate.
func (r *Race) finished() bool {
	if r.set.AliveActors() == 0 {
		return true
	}
	if r.cfg.Termination == TerminationOutrun {
		return r.outrun()
	}
	return r.set.AliveObstacles() == 0
}

// outrun reports whether every live obstacle ends at or behind the frontmost
// live actor, within tolerance.
func (r *Race) outrun() bool {
	front, ok := r.frontOffset()
	if !ok {
		return true
	}
	for _, id := range r.set.Obstacles() {
		o := r.set.Get(id)
		if !o.Alive {
			continue
		}
		end := o.Position.Offset
		if r.cfg.Collision == collision.PolicyFootprint {
			end += o.FootprintLength
		}
		if end >= front+float64(r.tol) {
			return false
		}
	}
	return true
}

func (r *Race) frontOffset() (float64, bool) {
	var (
		front float64
		found bool
	)
	for _, id := range r.set.Actors() {
		a := r.set.Get(id)
		if !a.Alive {
			continue
		}
		if !found || a.Position.Offset > front {
			front, found = a.Position.Offset, true
		}
	}
	return front, found
}

// Result snapshots the race. Standings are ordered ascending by distance
// traveled; ties keep registration order.
func (r *Race) Result() Result {
	standings := make([]Standing, 0, len(r.set.Actors()))
	for _, id := range r.set.Actors() {
		a := r.set.Get(id)
		standings = append(standings, Standing{
			Actor:            a.Name,
			DistanceTraveled: a.Traveled,
			Survived:         a.Alive,
			Position:         a.Position,
		})
	}
	slices.SortStableFunc(standings, func(a, b Standing) int {
		return cmp.Compare(a.DistanceTraveled, b.DistanceTraveled)
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}

	obstacles := make([]ObstacleState, 0, len(r.set.Obstacles()))
	for _, id := range r.set.Obstacles() {
		o := r.set.Get(id)
		obstacles = append(obstacles, ObstacleState{
			Name:            o.Name,
			Position:        o.Position,
			FootprintLength: o.FootprintLength,
			Destroyed:       !o.Alive,
		})
	}

	pending := r.ctrl.PendingAll()
	if len(pending) == 0 {
		pending = nil
	}

	return Result{
		Meta:            r.meta,
		Config:          r.cfg,
		State:           r.state,
		Ticks:           r.tick,
		Standings:       standings,
		Obstacles:       obstacles,
		Events:          slices.Clone(r.events),
		PendingCommands: pending,
	}
}

// DecodeInput parses a JSON RaceInput. Config fields the input leaves out
// keep their DefaultConfig values.
func DecodeInput(data []byte) (RaceInput, error) {
	input := RaceInput{Config: DefaultConfig()}
	if err := json.Unmarshal(data, &input); err != nil {
		return RaceInput{}, fmt.Errorf("invalid input JSON: %w", err)
	}
	return input, nil
}

// RunJSON is the shared entry point for the CLI and WASM targets. It accepts a
// JSON-encoded RaceInput, runs the race, and returns a JSON-encoded Result.
func RunJSON(jsonInput string, opts ...Option) (string, error) {
	input, err := DecodeInput([]byte(jsonInput))
	if err != nil {
		return "", err
	}

	race, err := NewRace(input, opts...)
	if err != nil {
		return "", err
	}

	result, err := race.Run()
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshaling output: %w", err)
	}
	return string(out), nil
}
