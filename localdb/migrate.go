// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSchemaTooNew is returned when the database was migrated by a newer build
// that knows more scripts than this one.
var ErrSchemaTooNew = errors.New("local schema is newer than this build")

// MigrationError reports the script that failed. The persisted version still
// points at the failed script, so the next Migrate call resumes from it.
type MigrationError struct {
	Index int
	Err   error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %d failed: %v", e.Index, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// Migrations is the ordered, append-only list of local schema scripts.
// Never edit or reorder an entry once released; add a new one instead.
var Migrations = []string{
	// 0: base tables
	`
	CREATE TABLE IF NOT EXISTS workouts (
		id           TEXT PRIMARY KEY NOT NULL,
		user_id      TEXT NOT NULL,
		name         TEXT NOT NULL,
		description  TEXT,
		day_mask     INTEGER DEFAULT 0,
		muscle_group TEXT NOT NULL,
		image_uri    TEXT,
		video_uri    TEXT,
		created_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		updated_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		deleted_at   TEXT
	);

	CREATE TABLE IF NOT EXISTS exercises (
		id         TEXT PRIMARY KEY NOT NULL,
		user_id    TEXT NOT NULL,
		workout_id TEXT NOT NULL,
		name       TEXT NOT NULL,
		sets       INTEGER DEFAULT 3,
		reps       INTEGER DEFAULT 10,
		sort_order INTEGER DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		deleted_at TEXT,
		FOREIGN KEY (workout_id) REFERENCES workouts (id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY NOT NULL,
		user_id    TEXT NOT NULL,
		workout_id TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time   TEXT,
		status     TEXT DEFAULT 'active',
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		deleted_at TEXT,
		FOREIGN KEY (workout_id) REFERENCES workouts (id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS logs (
		id             TEXT PRIMARY KEY NOT NULL,
		user_id        TEXT NOT NULL,
		session_id     TEXT NOT NULL,
		exercise_id    TEXT NOT NULL,
		weight         REAL,
		reps_completed INTEGER,
		created_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		updated_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		deleted_at     TEXT,
		FOREIGN KEY (session_id) REFERENCES sessions (id) ON DELETE CASCADE,
		FOREIGN KEY (exercise_id) REFERENCES exercises (id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS progress_photos (
		id         TEXT PRIMARY KEY NOT NULL,
		user_id    TEXT NOT NULL,
		uri        TEXT NOT NULL,
		taken_at   TEXT NOT NULL,
		note       TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		deleted_at TEXT
	);
	`,
	// 1: photos can be attached to a session or a workout
	`
	ALTER TABLE progress_photos ADD COLUMN session_id TEXT;
	ALTER TABLE progress_photos ADD COLUMN workout_id TEXT;
	`,
	// 2: snapshot of the workout name at session start
	`
	ALTER TABLE sessions ADD COLUMN workout_name TEXT;
	`,
	// 3: exercise media
	`
	ALTER TABLE exercises ADD COLUMN image_uri TEXT;
	ALTER TABLE exercises ADD COLUMN video_uri TEXT;
	`,
	// 4: sync tracking
	`
	ALTER TABLE workouts ADD COLUMN synced_at TEXT;
	ALTER TABLE exercises ADD COLUMN synced_at TEXT;
	ALTER TABLE sessions ADD COLUMN synced_at TEXT;
	ALTER TABLE logs ADD COLUMN synced_at TEXT;
	ALTER TABLE progress_photos ADD COLUMN synced_at TEXT;
	`,
	// 5: body weight history, synced like every other entity
	`
	CREATE TABLE IF NOT EXISTS weight_logs (
		id         TEXT PRIMARY KEY NOT NULL,
		user_id    TEXT NOT NULL,
		weight     REAL NOT NULL,
		date       TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		deleted_at TEXT,
		synced_at  TEXT
	);
	`,
	// 6: pause accounting on the session row, per-set completion flag, dirty-scan indexes
	`
	ALTER TABLE sessions ADD COLUMN paused_duration INTEGER NOT NULL DEFAULT 0;
	ALTER TABLE sessions ADD COLUMN paused_at TEXT;
	ALTER TABLE logs ADD COLUMN completed INTEGER NOT NULL DEFAULT 1;

	CREATE INDEX IF NOT EXISTS idx_workouts_user ON workouts (user_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_exercises_user ON exercises (user_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_exercises_workout ON exercises (workout_id, sort_order);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions (user_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_logs_user ON logs (user_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_logs_session ON logs (session_id);
	CREATE INDEX IF NOT EXISTS idx_progress_photos_user ON progress_photos (user_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_weight_logs_user ON weight_logs (user_id, date);
	`,
}

// SchemaVersion reads PRAGMA user_version.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Migrate brings db from its persisted PRAGMA user_version up to
// len(migrations) and returns how many scripts ran. Each script runs in its
// own transaction together with the version bump, so a failing script leaves
// no partial DDL behind and the version names the first script still to run.
// A database already at the latest version executes no statements.
func Migrate(ctx context.Context, db *sql.DB, migrations []string) (int, error) {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return 0, err
	}
	if current > len(migrations) {
		return 0, fmt.Errorf("%w: database at %d, build knows %d", ErrSchemaTooNew, current, len(migrations))
	}

	applied := 0
	for i := current; i < len(migrations); i++ {
		if err := applyMigration(ctx, db, i, migrations[i]); err != nil {
			return applied, &MigrationError{Index: i, Err: err}
		}
		applied++
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, index int, script string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, index+1)); err != nil {
		return fmt.Errorf("failed to persist schema version: %w", err)
	}
	return tx.Commit()
}
