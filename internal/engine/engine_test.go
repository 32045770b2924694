package engine

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/lane-race/internal/collision"
	"github.com/cxd309/lane-race/internal/controller"
	"github.com/cxd309/lane-race/internal/entity"
)

func actor(name string, offset float64, lane int) entity.Record {
	return entity.Record{Name: name, Kind: entity.KindActor, InitialOffset: offset, Lane: lane}
}

func obstacle(name string, offset float64, lane int) entity.Record {
	return entity.Record{Name: name, Kind: entity.KindObstacle, InitialOffset: offset, Lane: lane}
}

func config(mutate func(*Config)) Config {
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

func outrun(c *Config) { c.Termination = TerminationOutrun }

func mustRun(t *testing.T, input RaceInput) (*Race, Result) {
	t.Helper()
	race, err := NewRace(input)
	require.NoError(t, err)
	res, err := race.Run()
	require.NoError(t, err)
	return race, res
}

func TestPassThroughScenario(t *testing.T) {
	_, res := mustRun(t, RaceInput{
		Config:   config(outrun),
		Entities: []entity.Record{actor("a", 0, 0), obstacle("o", 1, 1)},
	})

	require.Len(t, res.Standings, 1)
	s := res.Standings[0]
	assert.True(t, s.Survived)
	assert.InDelta(t, 1.0, s.DistanceTraveled, 1e-9)
	assert.Equal(t, 20, res.Ticks)
	assert.False(t, res.Obstacles[0].Destroyed)
	assert.Equal(t, StateTerminated, res.State)
}

func TestScriptedAvoidanceScenario(t *testing.T) {
	_, res := mustRun(t, RaceInput{
		Config:   config(outrun),
		Entities: []entity.Record{actor("a", 0, 0), obstacle("o", 0.5, 0)},
		Commands: []controller.Command{{Trigger: 0.45, Actor: "a", Lane: 1}},
	})

	s := res.Standings[0]
	assert.True(t, s.Survived)
	assert.Equal(t, 1, s.Position.Lane)
	assert.False(t, res.Obstacles[0].Destroyed)
	assert.Empty(t, res.PendingCommands)

	require.Len(t, res.Events, 1)
	assert.Equal(t, EventLaneSwitch, res.Events[0].Kind)
	assert.Equal(t, 9, res.Events[0].Tick)
}

func TestMissedSwitchScenario(t *testing.T) {
	race, res := mustRun(t, RaceInput{
		Config: config(func(c *Config) {
			c.Termination = TerminationOutrun
			c.Tolerance = 0.01
		}),
		Entities: []entity.Record{actor("a", 0, 0), obstacle("o", 0.5, 0)},
		Commands: []controller.Command{{Trigger: 0.32, Actor: "a", Lane: 1}},
	})

	s := res.Standings[0]
	assert.False(t, s.Survived)
	assert.Equal(t, 0, s.Position.Lane)
	assert.InDelta(t, 0.5, s.DistanceTraveled, 1e-9)
	assert.True(t, res.Obstacles[0].Destroyed)
	assert.Equal(t, 1, race.Pending("a"), "the missed command is never consumed")
	assert.Equal(t, map[string]int{"a": 1}, res.PendingCommands)

	require.Len(t, res.Events, 1)
	assert.Equal(t, Event{Tick: 9, Kind: EventCollision, Actor: "a", Obstacle: "o", Offset: s.Position.Offset, Lane: 0}, res.Events[0])
}

func TestExhaustionEndsWhenObstaclesAreGone(t *testing.T) {
	_, res := mustRun(t, RaceInput{
		Config: DefaultConfig(),
		Entities: []entity.Record{
			actor("a", 0, 0),
			actor("b", 0, 1),
			obstacle("o1", 0.25, 0),
			obstacle("o2", 0.5, 1),
		},
	})

	assert.Equal(t, 10, res.Ticks)
	require.Len(t, res.Standings, 2)
	assert.Equal(t, "a", res.Standings[0].Actor)
	assert.InDelta(t, 0.25, res.Standings[0].DistanceTraveled, 1e-9)
	assert.Equal(t, "b", res.Standings[1].Actor)
	assert.InDelta(t, 0.5, res.Standings[1].DistanceTraveled, 1e-9)
	assert.Equal(t, []int{1, 2}, []int{res.Standings[0].Rank, res.Standings[1].Rank})
}

func TestOutrunIgnoresObstaclesBehindTheLeader(t *testing.T) {
	_, res := mustRun(t, RaceInput{
		Config: config(outrun),
		Entities: []entity.Record{
			actor("slow", 0, 0),
			actor("fast", 2, 1),
			obstacle("o", 1, 0),
		},
	})

	assert.Equal(t, 0, res.Ticks, "every obstacle is already behind the leader")
	assert.Equal(t, StateTerminated, res.State)
}

func TestStandingsAreStableOnTies(t *testing.T) {
	_, res := mustRun(t, RaceInput{
		Config: DefaultConfig(),
		Entities: []entity.Record{
			actor("c", 0, 2),
			actor("a", 0, 0),
			actor("b", 0, 1),
			obstacle("o1", 0.1, 0),
			obstacle("o2", 0.1, 1),
			obstacle("o3", 0.1, 2),
		},
	})

	names := make([]string, 0, len(res.Standings))
	for _, s := range res.Standings {
		names = append(names, s.Actor)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestFootprintPolicyCatchesActorInsideObstacle(t *testing.T) {
	_, res := mustRun(t, RaceInput{
		Config: config(func(c *Config) { c.Collision = collision.PolicyFootprint }),
		Entities: []entity.Record{
			actor("a", 0, 0),
			{Name: "wall", Kind: entity.KindObstacle, InitialOffset: 0.32, Lane: 0, FootprintLength: 0.3},
		},
	})

	s := res.Standings[0]
	assert.False(t, s.Survived)
	assert.InDelta(t, 0.3, s.DistanceTraveled, 1e-9, "the tolerance-widened footprint starts at 0.295")
}

func TestSwitchInPlaceSpendsTheTick(t *testing.T) {
	_, res := mustRun(t, RaceInput{
		Config: config(func(c *Config) {
			c.Termination = TerminationOutrun
			c.SwitchInPlace = true
		}),
		Entities: []entity.Record{actor("a", 0, 0), obstacle("o", 0.5, 0)},
		Commands: []controller.Command{{Trigger: 0.45, Actor: "a", Lane: 1}},
	})

	s := res.Standings[0]
	assert.True(t, s.Survived)
	assert.Equal(t, 1, s.Position.Lane)
	assert.InDelta(t, 0.5, s.DistanceTraveled, 1e-9)
	assert.Equal(t, 11, res.Ticks, "the switching tick does not move the actor")
}

func TestTickTriggeredCommands(t *testing.T) {
	_, res := mustRun(t, RaceInput{
		Config: config(func(c *Config) {
			c.Termination = TerminationOutrun
			c.Trigger = controller.MetricTicks
		}),
		Entities: []entity.Record{actor("a", 0, 0), obstacle("o", 0.5, 0)},
		Commands: []controller.Command{{Trigger: 4, Actor: "a", Lane: 2}},
	})

	assert.True(t, res.Standings[0].Survived)
	require.Len(t, res.Events, 1)
	assert.Equal(t, 4, res.Events[0].Tick)
	assert.Equal(t, 2, res.Events[0].Lane)
}

// TestTickInvariants steps a busy race tick by tick and checks distance
// monotonicity, dead-actor idempotence, and collision mutual exclusion.
func TestTickInvariants(t *testing.T) {
	race, err := NewRace(RaceInput{
		Config: DefaultConfig(),
		Entities: []entity.Record{
			actor("a", 0, 0),
			actor("b", 0.1, 1),
			actor("c", 0, 2),
			obstacle("o1", 0.4, 0),
			obstacle("o2", 0.6, 1),
			obstacle("o3", 0.55, 2),
			obstacle("o4", 1.5, 1),
		},
		Commands: []controller.Command{
			{Trigger: 0.3, Actor: "a", Lane: 1},
			{Trigger: 0.2, Actor: "b", Lane: 2},
			{Trigger: 0.5, Actor: "b", Lane: 1},
			{Trigger: 0.35, Actor: "c", Lane: 0},
		},
	})
	require.NoError(t, err)

	set := race.Entities()
	for race.State() == StateRunning {
		before := make(map[entity.ID]entity.Entity)
		for _, id := range set.Actors() {
			before[id] = set.Get(id)
		}
		race.Step()

		for _, id := range set.Actors() {
			prev, now := before[id], set.Get(id)
			if prev.Alive {
				assert.InDelta(t, prev.Traveled+DefaultStep, now.Traveled, 1e-12, "actor %s tick %d", now.Name, race.Ticks())
				continue
			}
			assert.Equal(t, prev.Traveled, now.Traveled)
			assert.Equal(t, prev.Position, now.Position)
		}
		require.Less(t, race.Ticks(), 1000)
	}

	res := race.Result()
	alive := make(map[string]bool)
	for _, s := range res.Standings {
		alive[s.Actor] = s.Survived
	}
	for _, o := range res.Obstacles {
		alive[o.Name] = !o.Destroyed
	}
	for _, ev := range res.Events {
		if ev.Kind == EventCollision {
			assert.False(t, alive[ev.Actor] && alive[ev.Obstacle], "%s and %s both alive", ev.Actor, ev.Obstacle)
		}
	}
}

func TestStepAfterTerminationIsNoop(t *testing.T) {
	race, res := mustRun(t, RaceInput{
		Config:   DefaultConfig(),
		Entities: []entity.Record{actor("a", 0, 0), obstacle("o", 0.1, 0)},
	})

	race.Step()

	assert.Equal(t, res.Ticks, race.Ticks())
	assert.Equal(t, res.Standings, race.Result().Standings)
}

func TestRunReportsNonConvergence(t *testing.T) {
	race, err := NewRace(RaceInput{
		Config:   config(func(c *Config) { c.MaxTicks = 50 }),
		Entities: []entity.Record{actor("a", 0, 0), obstacle("o", 1, 1)},
	})
	require.NoError(t, err)

	res, err := race.Run()

	require.ErrorIs(t, err, ErrNotConverged)
	assert.Equal(t, 50, res.Ticks)
	assert.Equal(t, StateRunning, res.State)
}

func TestNewRaceRejectsMalformedConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero step", func(c *Config) { c.Step = 0 }},
		{"negative step", func(c *Config) { c.Step = -0.05 }},
		{"negative tolerance", func(c *Config) { c.Tolerance = -1 }},
		{"unknown collision", func(c *Config) { c.Collision = "sphere" }},
		{"unknown termination", func(c *Config) { c.Termination = "forever" }},
		{"unknown trigger", func(c *Config) { c.Trigger = "laps" }},
		{"negative lanes", func(c *Config) { c.Lanes = -2 }},
		{"negative max ticks", func(c *Config) { c.MaxTicks = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRace(RaceInput{Config: config(tt.mutate)})
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNewRaceChecksLanes(t *testing.T) {
	cfg := config(func(c *Config) { c.Lanes = 2 })

	_, err := NewRace(RaceInput{Config: cfg, Entities: []entity.Record{actor("a", 0, 2)}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRace(RaceInput{
		Config:   cfg,
		Entities: []entity.Record{actor("a", 0, 1)},
		Commands: []controller.Command{{Trigger: 0.1, Actor: "a", Lane: 5}},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRace(RaceInput{Config: DefaultConfig(), Entities: []entity.Record{actor("a", 0, -1)}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewRaceRejectsDuplicateActors(t *testing.T) {
	_, err := NewRace(RaceInput{
		Config:   DefaultConfig(),
		Entities: []entity.Record{actor("a", 0, 0), actor("a", 0, 1)},
	})
	assert.ErrorIs(t, err, entity.ErrDuplicateName)
}

func TestNewRaceAssignsRaceID(t *testing.T) {
	race, err := NewRace(RaceInput{Config: DefaultConfig()})
	require.NoError(t, err)
	assert.NotEmpty(t, race.Result().Meta.RaceID)

	race, err = NewRace(RaceInput{Meta: RaceMeta{RaceID: "heat-1"}, Config: DefaultConfig()})
	require.NoError(t, err)
	assert.Equal(t, "heat-1", race.Result().Meta.RaceID)
}

func TestEventsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	race, err := NewRace(RaceInput{
		Config:   DefaultConfig(),
		Entities: []entity.Record{actor("a", 0, 0), obstacle("o", 0.5, 1)},
		Commands: []controller.Command{{Trigger: 0.2, Actor: "a", Lane: 1}},
	}, WithLogger(logger))
	require.NoError(t, err)
	_, err = race.Run()
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "lane switch")
	assert.Contains(t, out, "collision")
	assert.Contains(t, out, "race finished")
}

func TestRunJSON(t *testing.T) {
	in := `{
		"race_meta": {"race_id": "json-race"},
		"config": {"termination_policy": "outrun"},
		"entities": [
			{"name": "a", "initial_offset": 0, "lane": 0, "kind": "actor"},
			{"name": "o", "initial_offset": 0.5, "lane": 0, "kind": "o"}
		],
		"commands": [{"trigger": 0.45, "actor": "a", "lane": 1}]
	}`

	out, err := RunJSON(in)
	require.NoError(t, err)

	var res Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "json-race", res.Meta.RaceID)
	assert.Equal(t, DefaultStep, res.Config.Step, "unset config fields keep their defaults")
	require.Len(t, res.Standings, 1)
	assert.True(t, res.Standings[0].Survived)
}

func TestRunJSONErrors(t *testing.T) {
	_, err := RunJSON(`{not json`)
	assert.Error(t, err)

	_, err = RunJSON(`{"config": {"step_size": -1}}`)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
