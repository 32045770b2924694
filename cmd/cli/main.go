// Command lane-race runs a race described either by a RaceInput JSON document
// (file argument, -input, or stdin) or by a pair of legacy CSV files
// (-entities and -commands), and prints the result.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/cxd309/lane-race/internal/collision"
	"github.com/cxd309/lane-race/internal/controller"
	"github.com/cxd309/lane-race/internal/engine"
	"github.com/cxd309/lane-race/internal/loader"
	"github.com/cxd309/lane-race/internal/report"
	"github.com/cxd309/lane-race/internal/store"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	input         string
	entities      string
	commands      string
	format        string
	events        bool
	dbPath        string
	logLevel      string
	raceID        string
	step          float64
	tolerance     float64
	collision     string
	termination   string
	trigger       string
	switchInPlace bool
	lanes         int
	maxTicks      int
}

func parseFlags(args []string, stderr io.Writer) (options, map[string]bool, error) {
	var o options
	fs := flag.NewFlagSet("lane-race", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.input, "input", "", "RaceInput JSON file (default: first argument or stdin)")
	fs.StringVar(&o.entities, "entities", "", "legacy layout CSV: name,offset,kind,lane[,footprint]")
	fs.StringVar(&o.commands, "commands", "", "legacy command CSV: trigger,actor,lane")
	fs.StringVar(&o.format, "format", "text", "output format: text or json")
	fs.BoolVar(&o.events, "events", false, "list lane switches and collisions in text output")
	fs.StringVar(&o.dbPath, "db", "", "sqlite file to record the result in")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	fs.StringVar(&o.raceID, "race-id", "", "race identifier (default: generated)")
	fs.Float64Var(&o.step, "step", engine.DefaultStep, "distance covered per tick")
	fs.Float64Var(&o.tolerance, "tolerance", 0, "equality tolerance (0 = half the step)")
	fs.StringVar(&o.collision, "collision", "point", "collision policy: point or footprint")
	fs.StringVar(&o.termination, "termination", "obstacle-exhaustion", "termination policy: obstacle-exhaustion or outrun")
	fs.StringVar(&o.trigger, "trigger", "distance", "command trigger metric: distance or ticks")
	fs.BoolVar(&o.switchInPlace, "switch-in-place", false, "lane switches take the whole tick")
	fs.IntVar(&o.lanes, "lanes", 0, "number of lanes (0 = unbounded)")
	fs.IntVar(&o.maxTicks, "max-ticks", engine.DefaultMaxTicks, "give up after this many ticks (0 = never)")
	if err := fs.Parse(args); err != nil {
		return options{}, nil, err
	}
	if o.format != "text" && o.format != "json" {
		err := fmt.Errorf("unknown output format %q", o.format)
		fmt.Fprintln(stderr, err)
		return options{}, nil, err
	}
	if o.input == "" && fs.NArg() > 0 {
		o.input = fs.Arg(0)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return o, set, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, set, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}

	logger := log.NewWithOptions(stderr, log.Options{Prefix: "lane-race"})
	level, err := log.ParseLevel(o.logLevel)
	if err != nil {
		logger.Error("invalid log level", "level", o.logLevel, "err", err)
		return 2
	}
	logger.SetLevel(level)

	input, err := readInput(o, stdin)
	if err != nil {
		logger.Error("error reading input", "err", err)
		return 1
	}
	applyOverrides(&input, o, set)

	race, err := engine.NewRace(input, engine.WithLogger(logger))
	if err != nil {
		logger.Error("invalid race", "err", err)
		return 1
	}
	result, err := race.Run()
	if err != nil {
		logger.Error("simulation error", "err", err)
		return 1
	}

	if o.dbPath != "" {
		if err := save(ctx, o.dbPath, result); err != nil {
			logger.Error("error saving result", "db", o.dbPath, "err", err)
			return 1
		}
		logger.Info("result saved", "db", o.dbPath, "race", result.Meta.RaceID)
	}

	if err := write(stdout, o, result); err != nil {
		logger.Error("error writing output", "err", err)
		return 1
	}
	return 0
}

func readInput(o options, stdin io.Reader) (engine.RaceInput, error) {
	if o.entities != "" {
		return readLegacyInput(o.entities, o.commands)
	}
	if o.commands != "" {
		return engine.RaceInput{}, errors.New("-commands requires -entities")
	}

	var (
		data []byte
		err  error
	)
	if o.input != "" {
		data, err = os.ReadFile(o.input)
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return engine.RaceInput{}, err
	}
	return engine.DecodeInput(data)
}

func readLegacyInput(entitiesPath, commandsPath string) (engine.RaceInput, error) {
	input := engine.RaceInput{Config: engine.DefaultConfig()}

	f, err := os.Open(entitiesPath)
	if err != nil {
		return engine.RaceInput{}, err
	}
	defer f.Close()
	if input.Entities, err = loader.ReadEntities(f); err != nil {
		return engine.RaceInput{}, fmt.Errorf("%s: %w", entitiesPath, err)
	}

	if commandsPath == "" {
		return input, nil
	}
	c, err := os.Open(commandsPath)
	if err != nil {
		return engine.RaceInput{}, err
	}
	defer c.Close()
	if input.Commands, err = loader.ReadCommands(c); err != nil {
		return engine.RaceInput{}, fmt.Errorf("%s: %w", commandsPath, err)
	}
	return input, nil
}

// applyOverrides copies explicitly set flags over the input's configuration.
func applyOverrides(input *engine.RaceInput, o options, set map[string]bool) {
	cfg := &input.Config
	if set["race-id"] {
		input.Meta.RaceID = o.raceID
	}
	if set["step"] {
		cfg.Step = o.step
	}
	if set["tolerance"] {
		cfg.Tolerance = o.tolerance
	}
	if set["collision"] {
		cfg.Collision = collision.Policy(o.collision)
	}
	if set["termination"] {
		cfg.Termination = engine.Termination(o.termination)
	}
	if set["trigger"] {
		cfg.Trigger = controller.Metric(o.trigger)
	}
	if set["switch-in-place"] {
		cfg.SwitchInPlace = o.switchInPlace
	}
	if set["lanes"] {
		cfg.Lanes = o.lanes
	}
	if set["max-ticks"] {
		cfg.MaxTicks = o.maxTicks
	}
}

func save(ctx context.Context, path string, result engine.Result) error {
	s, err := store.New("sqlite", path)
	if err != nil {
		return err
	}
	if err := s.Init(ctx); err != nil {
		return err
	}
	defer s.Close()
	return s.SaveResult(ctx, result)
}

func write(w io.Writer, o options, result engine.Result) error {
	switch o.format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "text":
		if o.events {
			if err := report.WriteEvents(w, result); err != nil {
				return err
			}
		}
		if err := report.WriteLeaderboard(w, result); err != nil {
			return err
		}
		return report.WriteSummary(w, report.Summarize(result))
	default:
		return fmt.Errorf("unknown output format %q", o.format)
	}
}
