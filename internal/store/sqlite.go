package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/cxd309/lane-race/internal/engine"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveResult(ctx context.Context, result engine.Result) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := encodeResult(result)
	if err != nil {
		return err
	}

	survivors := 0
	for _, st := range result.Standings {
		if st.Survived {
			survivors++
		}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO races (id, ticks, actors, survivors, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ticks = excluded.ticks,
			actors = excluded.actors,
			survivors = excluded.survivors,
			payload = excluded.payload
	`, result.Meta.RaceID, result.Ticks, len(result.Standings), survivors, payload)
	return err
}

func (s *SQLiteStore) GetResult(ctx context.Context, raceID string) (engine.Result, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return engine.Result{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM races WHERE id = ?`, raceID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.Result{}, false, nil
		}
		return engine.Result{}, false, err
	}

	result, err := decodeResult(payload)
	if err != nil {
		return engine.Result{}, false, fmt.Errorf("decode race %s: %w", raceID, err)
	}
	return result, true, nil
}

func (s *SQLiteStore) ListRaceIDs(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id FROM races ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS races (
			id TEXT PRIMARY KEY,
			ticks INTEGER NOT NULL,
			actors INTEGER NOT NULL,
			survivors INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
