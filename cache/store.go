// Package cache stores compiled programs in SQLite, keyed by the content
// hash of the compilation unit that produced them.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/garnet/vm"
)

// ErrNotFound is returned by Get when no program is stored under a key.
var ErrNotFound = errors.New("program not found")

var log = commonlog.GetLogger("garnet.cache")

// Entry is a cached program with the metadata recorded alongside it.
type Entry struct {
	Key       string // hash.Key of the unit
	Unit      string // unit name
	Session   string // driver session that compiled it
	Program   *vm.Program
	CreatedAt time.Time
}

// Store is a program cache backed by a SQLite database. It is safe for
// concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the cache at path. ":memory:" gives a private
// in-memory cache.
func Open(path string) (*Store, error) {
	var db *sql.DB
	var err error

	if path == ":memory:" {
		db, err = sql.Open("sqlite", ":memory:")
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		connStr := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		db, err = sql.Open("sqlite", connStr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	// A single connection serializes writers and keeps an in-memory
	// database alive for the life of the store.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Debugf("opened program cache %s", path)
	return &Store{db: db, path: path}, nil
}

func createTables(db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS programs (
			key TEXT PRIMARY KEY,
			unit TEXT NOT NULL,
			session TEXT NOT NULL,
			program BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_programs_session ON programs(session);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create programs table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Put stores or replaces the program for e.Key.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if e.Program == nil {
		return fmt.Errorf("cache: put %s: nil program", e.Key)
	}
	data, err := vm.MarshalProgram(e.Program)
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", e.Key, err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO programs (key, unit, session, program, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			unit = excluded.unit,
			session = excluded.session,
			program = excluded.program,
			created_at = excluded.created_at
	`
	_, err = s.db.ExecContext(ctx, query, e.Key, e.Unit, e.Session, data, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to store program %s: %w", e.Key, err)
	}
	log.Debugf("stored %s (%s, %d bytes)", e.Unit, e.Key, len(data))
	return nil
}

// Get returns the entry stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	query := `SELECT key, unit, session, program, created_at FROM programs WHERE key = ?`
	row := s.db.QueryRowContext(ctx, query, key)

	var e Entry
	var data []byte
	var created int64
	err := row.Scan(&e.Key, &e.Unit, &e.Session, &data, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get program %s: %w", key, err)
	}

	e.Program, err = vm.UnmarshalProgram(data)
	if err != nil {
		return nil, fmt.Errorf("cache: entry %s: %w", key, err)
	}
	e.CreatedAt = time.Unix(created, 0)
	return &e, nil
}

// Delete removes the entry for key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM programs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete program %s: %w", key, err)
	}
	return nil
}

// Len returns the number of stored programs.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM programs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count programs: %w", err)
	}
	return n, nil
}

// List returns the metadata of every stored program, oldest first. The
// Program field of each entry is left nil.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, unit, session, created_at FROM programs ORDER BY created_at, key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Key, &e.Unit, &e.Session, &created); err != nil {
			return nil, fmt.Errorf("failed to scan program row: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating program rows: %w", err)
	}
	return entries, nil
}

// SessionKeys returns the keys written by a driver session, in key order.
func (s *Store) SessionKeys(ctx context.Context, session string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM programs WHERE session = ? ORDER BY key`, session)
	if err != nil {
		return nil, fmt.Errorf("failed to list session %s: %w", session, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan program key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating program keys: %w", err)
	}
	return keys, nil
}
