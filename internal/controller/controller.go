// Package controller turns scripted lane-change commands into each actor's
// action for the current tick.
//
// Commands are kept in one FIFO queue per actor, ordered by trigger value.
// Only the head of a queue is ever inspected, and it is consumed only when
// the actor's progress equals its trigger within tolerance. A command whose
// trigger is stepped over without a match stays queued and never fires.
package controller

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/cxd309/lane-race/internal/entity"
	"github.com/cxd309/lane-race/internal/track"
)

// Metric selects the progress value a trigger is compared against.
type Metric string

const (
	MetricDistance Metric = "distance" // actor's traveled distance
	MetricTicks    Metric = "ticks"    // ticks elapsed before the current one
)

// ParseMetric validates a metric name. The empty string means distance.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricDistance:
		return MetricDistance, nil
	case MetricTicks:
		return MetricTicks, nil
	default:
		return "", fmt.Errorf("unknown trigger metric %q", s)
	}
}

// Command is a scripted lane change for one actor.
type Command struct {
	Trigger float64 `json:"trigger"`
	Actor   string  `json:"actor"`
	Lane    int     `json:"lane"`
}

// Options configures a Controller.
type Options struct {
	Tolerance track.Tolerance
	Metric    Metric
}

// Controller owns the per-actor command queues.
type Controller struct {
	queues map[string][]Command
	opts   Options
}

// New sorts a copy of commands by trigger and groups them per actor,
// keeping the sorted order inside each queue.
func New(commands []Command, opts Options) *Controller {
	if opts.Metric == "" {
		opts.Metric = MetricDistance
	}

	sorted := slices.Clone(commands)
	slices.SortStableFunc(sorted, func(a, b Command) int {
		return cmp.Compare(a.Trigger, b.Trigger)
	})

	queues := make(map[string][]Command)
	for _, c := range sorted {
		queues[c.Actor] = append(queues[c.Actor], c)
	}
	return &Controller{queues: queues, opts: opts}
}

// Dispatch decides the actor's action for tick and stores it on the actor.
// tick is the number of ticks already completed.
func (c *Controller) Dispatch(s *entity.Set, id entity.ID, tick int) entity.Action {
	a := c.next(s.Get(id), tick)
	s.SetNextAction(id, a)
	return a
}

func (c *Controller) next(e entity.Entity, tick int) entity.Action {
	if !e.Alive {
		return entity.Advance()
	}
	q := c.queues[e.Name]
	if len(q) == 0 {
		return entity.Advance()
	}

	head := q[0]
	if !c.opts.Tolerance.Equal(head.Trigger, c.progress(e, tick)) {
		return entity.Advance()
	}
	c.queues[e.Name] = q[1:]
	return entity.SwitchTo(head.Lane)
}

func (c *Controller) progress(e entity.Entity, tick int) float64 {
	if c.opts.Metric == MetricTicks {
		return float64(tick)
	}
	return e.Traveled
}

// Pending returns how many commands are still queued for actor.
func (c *Controller) Pending(actor string) int {
	return len(c.queues[actor])
}

// PendingAll returns the non-empty queue lengths keyed by actor name,
// including names no actor is registered under.
func (c *Controller) PendingAll() map[string]int {
	out := make(map[string]int)
	for name, q := range c.queues {
		if len(q) > 0 {
			out[name] = len(q)
		}
	}
	return out
}
