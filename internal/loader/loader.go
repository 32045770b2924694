// Package loader reads the plain comma-separated layout and command files
// used by earlier versions of the race runner.
//
// Layout lines are "name,offset,kind,lane[,footprint]" where kind is "p"
// (actor) or "o" (obstacle). Command lines are "trigger,actor,lane".
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cxd309/lane-race/internal/controller"
	"github.com/cxd309/lane-race/internal/entity"
)

// ReadEntities parses a layout file.
func ReadEntities(r io.Reader) ([]entity.Record, error) {
	var records []entity.Record
	err := eachLine(r, func(line int, fields []string) error {
		if len(fields) != 4 && len(fields) != 5 {
			return fmt.Errorf("line %d: want 4 or 5 fields, got %d", line, len(fields))
		}
		offset, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return fmt.Errorf("line %d: offset: %w", line, err)
		}
		kind, err := entity.ParseKind(fields[2])
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		lane, err := strconv.Atoi(fields[3])
		if err != nil {
			return fmt.Errorf("line %d: lane: %w", line, err)
		}
		rec := entity.Record{Name: fields[0], InitialOffset: offset, Kind: kind, Lane: lane}
		if len(fields) == 5 && fields[4] != "" {
			if rec.FootprintLength, err = strconv.ParseFloat(fields[4], 64); err != nil {
				return fmt.Errorf("line %d: footprint: %w", line, err)
			}
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

// ReadCommands parses a command file. Order is preserved; the controller
// sorts by trigger.
func ReadCommands(r io.Reader) ([]controller.Command, error) {
	var commands []controller.Command
	err := eachLine(r, func(line int, fields []string) error {
		if len(fields) != 3 {
			return fmt.Errorf("line %d: want 3 fields, got %d", line, len(fields))
		}
		trigger, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return fmt.Errorf("line %d: trigger: %w", line, err)
		}
		lane, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("line %d: lane: %w", line, err)
		}
		commands = append(commands, controller.Command{Trigger: trigger, Actor: fields[1], Lane: lane})
		return nil
	})
	return commands, err
}

func eachLine(r io.Reader, fn func(line int, fields []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		line, _ := cr.FieldPos(0)
		if err := fn(line, fields); err != nil {
			return err
		}
	}
}
