// Package store persists poems per poet in SQLite.
//
// Records are append-only: a (poet, text) pair is stored at most once and is
// never updated or deleted. Every operation acquires one pooled connection,
// uses it and releases it; no transaction spans a read and a later write.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// PoemRecord is one stored poem.
type PoemRecord struct {
	ID        int64  `json:"id"`
	PoetName  string `json:"poet"`
	PoemText  string `json:"poem"`
	SourceURL string `json:"source_url,omitempty"`
}

// StorageError reports a failure of the persistence layer. The duplicate
// (poet, text) case is never reported as a StorageError.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// Store wraps a SQLite connection pool.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Err: err}
	}
	// SQLite has a single writer, and an in-memory database lives only as long
	// as its one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, path); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Err: err}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, &StorageError{Op: "schema", Err: err}
	}
	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB, path string) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%q: %w", p, err)
		}
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// withConn acquires a connection, runs fn and always releases the connection.
func (s *Store) withConn(ctx context.Context, op string, fn func(*sql.Conn) error) error {
	if s == nil || s.db == nil {
		return &StorageError{Op: op, Err: errors.New("store not open")}
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return &StorageError{Op: op, Err: err}
	}
	defer conn.Close()
	if err := fn(conn); err != nil {
		return &StorageError{Op: op, Err: err}
	}
	return nil
}

// Count returns how many poems are stored for poet.
func (s *Store) Count(ctx context.Context, poet string) (int, error) {
	var n int
	err := s.withConn(ctx, "count", func(c *sql.Conn) error {
		return c.QueryRowContext(ctx, `SELECT COUNT(*) FROM poems WHERE poet_name = ?`, poet).Scan(&n)
	})
	return n, err
}

// ExistingTexts returns the set of poem texts stored for poet.
func (s *Store) ExistingTexts(ctx context.Context, poet string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	err := s.withConn(ctx, "existing texts", func(c *sql.Conn) error {
		rows, err := c.QueryContext(ctx, `SELECT poem_text FROM poems WHERE poet_name = ?`, poet)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var text string
			if err := rows.Scan(&text); err != nil {
				return err
			}
			out[text] = struct{}{}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Save stores a poem. Saving a (poet, text) pair that already exists is a
// no-op; only that conflict is absorbed, other constraint failures surface.
func (s *Store) Save(ctx context.Context, poet, text, sourceURL string) error {
	return s.withConn(ctx, "save", func(c *sql.Conn) error {
		_, err := c.ExecContext(ctx, `
			INSERT INTO poems (poet_name, poem_text, source_url)
			VALUES (?, ?, ?)
			ON CONFLICT(poet_name, poem_text) DO NOTHING`,
			poet, text, sourceURL)
		return err
	})
}

// Poems lists the poems stored for poet, oldest first.
func (s *Store) Poems(ctx context.Context, poet string) ([]PoemRecord, error) {
	var out []PoemRecord
	err := s.withConn(ctx, "list", func(c *sql.Conn) error {
		rows, err := c.QueryContext(ctx,
			`SELECT id, poet_name, poem_text, IFNULL(source_url, '') FROM poems WHERE poet_name = ? ORDER BY id`, poet)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r PoemRecord
			if err := rows.Scan(&r.ID, &r.PoetName, &r.PoemText, &r.SourceURL); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
