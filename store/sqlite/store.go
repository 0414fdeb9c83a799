// Package sqlite provides a SQLite store backend on database/sql with the
// modernc.org/sqlite driver. Suited to single-process deployments and
// development; use the postgres backend for anything shared.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // register the sqlite driver

	"github.com/xraph/simbank/checkpoint"
	"github.com/xraph/simbank/generator"
	"github.com/xraph/simbank/task"
	"github.com/xraph/simbank/validation"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ task.Store       = (*Store)(nil)
	_ checkpoint.Store = (*Store)(nil)
	_ validation.Store = (*Store)(nil)
	_ generator.Sink   = (*Store)(nil)
)

// Store is a SQLite implementation of store.Store.
type Store struct {
	db     *sql.DB
	codec  checkpoint.Codec
	logger *slog.Logger
	// ownsDB is set when Open created the connection, so Close tears it
	// down. A Store built with New never closes the caller's handle.
	ownsDB bool
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithCodec sets the checkpoint payload codec. Defaults to msgpack.
func WithCodec(codec checkpoint.Codec) Option {
	return func(s *Store) { s.codec = codec }
}

// New creates a store over an existing connection. The caller owns the
// *sql.DB lifecycle -- the Store will not close it on Close().
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		codec:  &checkpoint.MsgpackCodec{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens (or creates) the database at path and returns a store that
// owns the connection. Use ":memory:" for an ephemeral database.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("simbank/sqlite: open %s: %w", path, err)
	}
	// The driver serializes writes; a second writer connection would only
	// produce SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("simbank/sqlite: %s: %w", pragma, err)
		}
	}
	s := New(db, opts...)
	s.ownsDB = true
	return s, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection if this store opened it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// timeLayout is the canonical column format for timestamps. Lexicographic
// order matches chronological order, so ORDER BY on the column is correct.
const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
