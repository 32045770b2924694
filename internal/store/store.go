// Package store keeps the results of finished races.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cxd309/lane-race/internal/engine"
)

// Store persists race results keyed by race ID.
type Store interface {
	Init(ctx context.Context) error
	SaveResult(ctx context.Context, result engine.Result) error
	GetResult(ctx context.Context, raceID string) (engine.Result, bool, error)
	ListRaceIDs(ctx context.Context) ([]string, error)
	Close() error
}

// New returns the backend named by kind. path is only used by sqlite.
func New(kind, path string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(path), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func encodeResult(result engine.Result) ([]byte, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode race %s: %w", result.Meta.RaceID, err)
	}
	return payload, nil
}

func decodeResult(payload []byte) (engine.Result, error) {
	var result engine.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return engine.Result{}, err
	}
	return result, nil
}
