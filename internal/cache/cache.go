// Package cache implements the compile-artifact cache: emitted backend
// source, keyed by a caller-supplied source fingerprint plus the target
// backend, so a CLI driver can skip re-emission of unchanged programs.
package cache

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store manages one database connection backing the artifact cache. The
// same schema is issued against sqlite, postgres, or mysql; the driver
// is chosen by name at Open time.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

// Entry is one cached compilation: a source fingerprint plus the backend
// it was emitted for, uniquely identifying a row.
type Entry struct {
	ID          string
	Fingerprint string
	Backend     string
	Source      string
	CreatedAt   time.Time
}

// Open connects to driver ("sqlite", "postgres", or "mysql") at dsn and
// ensures the cache table exists.
func Open(driver, dsn string) (*Store, error) {
	driverName, err := resolveDriver(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", driverName, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: ping %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func resolveDriver(driver string) (string, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return "sqlite", nil
	case "postgres", "postgresql":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("cache: unsupported driver %q", driver)
	}
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS compile_cache (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	backend     TEXT NOT NULL,
	source      TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	UNIQUE(fingerprint, backend)
)`)
	return err
}

// Lookup returns the cached source for a (fingerprint, backend) pair, if
// any prior compilation produced one.
func (s *Store) Lookup(fingerprint, backend string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT source FROM compile_cache WHERE fingerprint = ? AND backend = ?`,
		fingerprint, backend,
	)
	var source string
	switch err := row.Scan(&source); err {
	case nil:
		return source, true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("cache: lookup: %w", err)
	}
}

// Store records a freshly emitted compilation, replacing any prior entry
// for the same (fingerprint, backend) pair.
func (s *Store) Store(fingerprint, backend, source string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	now := time.Now()
	stamp := strftime.Format("%Y-%m-%dT%H:%M:%S", now)

	_, err := s.db.Exec(`
DELETE FROM compile_cache WHERE fingerprint = ? AND backend = ?`, fingerprint, backend)
	if err != nil {
		return nil, fmt.Errorf("cache: evict stale entry: %w", err)
	}

	_, err = s.db.Exec(`
INSERT INTO compile_cache (id, fingerprint, backend, source, created_at)
VALUES (?, ?, ?, ?, ?)`, id, fingerprint, backend, source, stamp)
	if err != nil {
		return nil, fmt.Errorf("cache: insert: %w", err)
	}

	return &Entry{ID: id, Fingerprint: fingerprint, Backend: backend, Source: source, CreatedAt: now}, nil
}

// List returns every cached entry, most recent first, for cache-inspection
// CLI commands.
func (s *Store) List() ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, fingerprint, backend, source, created_at FROM compile_cache ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("cache: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var stamp string
		if err := rows.Scan(&e.ID, &e.Fingerprint, &e.Backend, &e.Source, &stamp); err != nil {
			return nil, err
		}
		if t, err := time.Parse("2006-01-02T15:04:05", stamp); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Evict removes every cached entry for a fingerprint across all backends,
// used when a source file changes on disk.
func (s *Store) Evict(fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM compile_cache WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("cache: evict: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
