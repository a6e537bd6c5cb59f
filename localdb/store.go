// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package localdb is the on-device relational store: schema migrations,
// user-scoped CRUD with soft deletes, and the dirty-row bookkeeping used by
// the sync layer.
package localdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Options configures a Store.
type Options struct {
	Logger *slog.Logger
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// NewID generates row ids. Defaults to random UUIDs.
	NewID func() string
}

// Store owns the local SQLite database.
type Store struct {
	db        *sql.DB
	logger    *slog.Logger
	clock     func() time.Time
	newID     func() string
	tableInfo *TableInfoProvider

	hookMu   sync.RWMutex
	onChange []func(userID string)
}

// DSN builds the go-sqlite3 connection string used for path. ":memory:" is
// kept private to the single pooled connection.
func DSN(path string) string {
	const params = "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if path == ":memory:" || path == "" {
		return "file::memory:?" + params
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&" + params
}

// Open opens (creating if needed) the database at path and migrates it to the
// latest schema. A migration failure is returned and the store is not usable.
func Open(ctx context.Context, path string, opts *Options) (*Store, error) {
	db, err := sql.Open("sqlite3", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer; also keeps an in-memory database on one connection.
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database and migrates it.
func New(ctx context.Context, db *sql.DB, opts *Options) (*Store, error) {
	if opts == nil {
		opts = &Options{}
	}
	s := &Store{
		db:        db,
		logger:    opts.Logger,
		clock:     opts.Clock,
		newID:     opts.NewID,
		tableInfo: NewTableInfoProvider(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.New().String() }
	}

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	applied, err := Migrate(ctx, db, Migrations)
	if err != nil {
		s.logger.Error("Local schema migration failed", "error", err)
		return nil, fmt.Errorf("failed to migrate local database: %w", err)
	}
	if applied > 0 {
		s.logger.Info("Local schema migrated", "applied", applied, "version", len(Migrations))
	}
	return s, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Now returns the store clock formatted as a stored timestamp.
func (s *Store) Now() string { return FormatTime(s.clock()) }

// OnChange registers fn to run after every successful local mutation made on
// behalf of a user. Hooks run synchronously and must not block.
func (s *Store) OnChange(fn func(userID string)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *Store) changed(userID string) {
	s.hookMu.RLock()
	hooks := append([]func(string){}, s.onChange...)
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(userID)
	}
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// softDelete marks a row deleted. Only tables in SyncTables are accepted.
func (s *Store) softDelete(ctx context.Context, table, id, userID string) error {
	if !IsSyncTable(table) {
		return fmt.Errorf("unknown table %q", table)
	}
	now := s.Now()
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET deleted_at = ?, updated_at = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, table),
		now, now, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	s.changed(userID)
	return nil
}

// PurgeAll removes every row from every table. Used on sign-out so the next
// account starts from an empty device.
func (s *Store) PurgeAll(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		// children first
		for i := len(SyncTables) - 1; i >= 0; i-- {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+SyncTables[i].Name); err != nil {
				return fmt.Errorf("failed to purge %s: %w", SyncTables[i].Name, err)
			}
		}
		return nil
	})
}
