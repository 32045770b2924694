// Package report renders a finished race for people.
package report

import (
	"fmt"
	"io"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cxd309/lane-race/internal/engine"
)

// WriteLeaderboard writes one line per actor in standings order.
func WriteLeaderboard(w io.Writer, res engine.Result) error {
	for _, s := range res.Standings {
		var err error
		if s.Survived {
			_, err = fmt.Fprintf(w, "%s traveled for %s without crashing!\n", s.Actor, formatDistance(s.DistanceTraveled))
		} else {
			_, err = fmt.Fprintf(w, "%s crashed after traveling for %s\n", s.Actor, formatDistance(s.DistanceTraveled))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteEvents writes the lane switches and collisions in the order they happened.
func WriteEvents(w io.Writer, res engine.Result) error {
	for _, ev := range res.Events {
		var err error
		switch ev.Kind {
		case engine.EventLaneSwitch:
			_, err = fmt.Fprintf(w, "tick %d: %s moved to lane %d at %s\n", ev.Tick, ev.Actor, ev.Lane, formatDistance(ev.Offset))
		case engine.EventCollision:
			_, err = fmt.Fprintf(w, "tick %d: %s hit %s in lane %d at %s\n", ev.Tick, ev.Actor, ev.Obstacle, ev.Lane, formatDistance(ev.Offset))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Summary aggregates the standings of a race.
type Summary struct {
	Actors        int     `json:"actors"`
	Survivors     int     `json:"survivors"`
	Crashed       int     `json:"crashed"`
	Destroyed     int     `json:"obstacles_destroyed"`
	MeanDistance  float64 `json:"mean_distance"`
	MaxDistance   float64 `json:"max_distance"`
	MinDistance   float64 `json:"min_distance"`
	Leader        string  `json:"leader,omitempty"`
	MissedCommand int     `json:"missed_commands"`
}

// Summarize computes a Summary. The leader is the last standing, i.e. the
// actor that traveled furthest.
func Summarize(res engine.Result) Summary {
	sum := Summary{Actors: len(res.Standings)}
	for _, o := range res.Obstacles {
		if o.Destroyed {
			sum.Destroyed++
		}
	}
	for _, n := range res.PendingCommands {
		sum.MissedCommand += n
	}
	if len(res.Standings) == 0 {
		return sum
	}

	dists := make([]float64, len(res.Standings))
	for i, s := range res.Standings {
		dists[i] = s.DistanceTraveled
		if s.Survived {
			sum.Survivors++
		}
	}
	sum.Crashed = sum.Actors - sum.Survivors
	sum.MeanDistance = stat.Mean(dists, nil)
	sum.MaxDistance = floats.Max(dists)
	sum.MinDistance = floats.Min(dists)
	sum.Leader = res.Standings[len(res.Standings)-1].Actor
	return sum
}

// WriteSummary writes s as a short block of text.
func WriteSummary(w io.Writer, s Summary) error {
	_, err := fmt.Fprintf(w,
		"actors: %d (survived %d, crashed %d)\nobstacles destroyed: %d\ndistance: mean %s, min %s, max %s\nleader: %s\nmissed commands: %d\n",
		s.Actors, s.Survivors, s.Crashed, s.Destroyed,
		formatDistance(s.MeanDistance), formatDistance(s.MinDistance), formatDistance(s.MaxDistance),
		s.Leader, s.MissedCommand,
	)
	return err
}

// formatDistance hides the float drift of repeated fixed steps.
func formatDistance(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 32)
}
