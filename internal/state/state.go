// Package state persists client-side state that must survive restarts:
// the session token, in-flight job hints, and view preferences.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Well-known keys.
const (
	KeyToken                 = "token"
	KeyActiveClassifications = "activeClassifications"
	KeyActiveAnalyses        = "activeAnalyses"
	KeyBookViewPreference    = "bookViewPreference"
)

// View preferences for book listings.
const (
	ViewGrid  = "grid"
	ViewTable = "table"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("state: key not found")

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store is a small key/value store backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the state database at path.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes the value under key into v.
func (s *Store) GetJSON(ctx context.Context, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and stores it under key.
func (s *Store) PutJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Put(ctx, key, string(data))
}

// Token returns the stored session token, or "" when logged out.
// It satisfies api.TokenSource.
func (s *Store) Token(ctx context.Context) (string, error) {
	token, err := s.Get(ctx, KeyToken)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return token, err
}

// SetToken stores the session token.
func (s *Store) SetToken(ctx context.Context, token string) error {
	return s.Put(ctx, KeyToken, token)
}

// ClearToken forgets the session token.
func (s *Store) ClearToken(ctx context.Context) error {
	return s.Delete(ctx, KeyToken)
}

// ViewPreference returns the stored book view, defaulting to grid.
func (s *Store) ViewPreference(ctx context.Context) (string, error) {
	view, err := s.Get(ctx, KeyBookViewPreference)
	if errors.Is(err, ErrNotFound) {
		return ViewGrid, nil
	}
	if err != nil {
		return "", err
	}
	return view, nil
}

// SetViewPreference stores the book view. Only grid and table are accepted.
func (s *Store) SetViewPreference(ctx context.Context, view string) error {
	if view != ViewGrid && view != ViewTable {
		return fmt.Errorf("invalid view %q: must be %s or %s", view, ViewGrid, ViewTable)
	}
	return s.Put(ctx, KeyBookViewPreference, view)
}
