package geocode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS geocode_responses (
	query      TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	fetched_at INTEGER NOT NULL
)`

// Store persists raw search responses in SQLite with a freshness window.
type Store struct {
	sqlDB *sql.DB
	ttl   time.Duration
	now   func() time.Time
}

// OpenStore opens or creates the response cache at path.
func OpenStore(path string, ttl time.Duration) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("geocode store path is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("geocode store ttl must be > 0")
	}

	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create geocode schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, ttl: ttl, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}

	return s.sqlDB.Close()
}

// Get returns a fresh cached body for query.
func (s *Store) Get(ctx context.Context, query string) ([]byte, bool, error) {
	var (
		body      []byte
		fetchedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT body, fetched_at FROM geocode_responses WHERE query = ?`,
		query,
	).Scan(&body, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get geocode response: %w", err)
	}
	if s.now().Sub(time.UnixMilli(fetchedAt)) >= s.ttl {
		return nil, false, nil
	}

	return body, true, nil
}

// Put stores body for query, replacing any previous response.
func (s *Store) Put(ctx context.Context, query string, body []byte) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO geocode_responses (query, body, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(query) DO UPDATE SET body = excluded.body, fetched_at = excluded.fetched_at`,
		query,
		body,
		s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put geocode response: %w", err)
	}

	return nil
}

// Prune deletes expired responses and returns how many were removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.ttl).UTC().UnixMilli()
	result, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM geocode_responses WHERE fetched_at <= ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("prune geocode responses: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune geocode responses: %w", err)
	}

	return removed, nil
}
