package store

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/cxd309/lane-race/internal/engine"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	results     map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.results = make(map[string][]byte)
	return nil
}

// SaveResult stores an encoded copy so later mutation of result does not leak in.
func (s *MemoryStore) SaveResult(_ context.Context, result engine.Result) error {
	payload, err := encodeResult(result)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.results[result.Meta.RaceID] = payload
	return nil
}

func (s *MemoryStore) GetResult(_ context.Context, raceID string) (engine.Result, bool, error) {
	s.mu.RLock()
	payload, ok := s.results[raceID]
	s.mu.RUnlock()

	if !ok {
		return engine.Result{}, false, nil
	}
	result, err := decodeResult(payload)
	if err != nil {
		return engine.Result{}, false, err
	}
	return result, true, nil
}

func (s *MemoryStore) ListRaceIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.results))
	for id := range s.results {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }
