// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sessionColumns = `id, user_id, workout_id, workout_name, status, start_time, end_time,
	paused_duration, paused_at, created_at, updated_at, deleted_at, synced_at`

func scanSession(sc scanner) (*Session, error) {
	var se Session
	var name, status sql.NullString
	var start, created, updated string
	var end, pausedAt, deleted, synced sql.NullString
	if err := sc.Scan(&se.ID, &se.UserID, &se.WorkoutID, &name, &status, &start, &end,
		&se.PausedDuration, &pausedAt, &created, &updated, &deleted, &synced); err != nil {
		return nil, err
	}
	se.WorkoutName = name.String
	se.Status = SessionStatus(status.String)
	var err error
	if se.StartTime, err = ParseTime(start); err != nil {
		return nil, err
	}
	if se.EndTime, err = parseNullTime(end); err != nil {
		return nil, err
	}
	if se.PausedAt, err = parseNullTime(pausedAt); err != nil {
		return nil, err
	}
	if se.CreatedAt, err = ParseTime(created); err != nil {
		return nil, err
	}
	if se.UpdatedAt, err = ParseTime(updated); err != nil {
		return nil, err
	}
	if se.DeletedAt, err = parseNullTime(deleted); err != nil {
		return nil, err
	}
	if se.SyncedAt, err = parseNullTime(synced); err != nil {
		return nil, err
	}
	return &se, nil
}

// CreateSession inserts an active session for a live workout.
func (s *Store) CreateSession(ctx context.Context, userID, workoutID, workoutName string, start time.Time) (*Session, error) {
	id := s.newID()
	now := s.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, workout_id, workout_name, start_time, status, paused_duration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, userID, workoutID, SanitizeText(workoutName), FormatTime(start), string(StatusActive), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	s.changed(userID)
	return s.GetSession(ctx, userID, id)
}

// CompleteSession marks the session completed and inserts all of its logs in
// a single transaction. Either the session is completed with every log, or
// nothing changes.
func (s *Store) CompleteSession(ctx context.Context, userID, sessionID string, end time.Time, pausedSeconds int, logs []SetInput) error {
	for i, l := range logs {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("log %d: %w", i, err)
		}
	}
	if pausedSeconds < 0 {
		return invalid("paused duration cannot be negative")
	}
	now := s.Now()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE sessions
			SET status = ?, end_time = ?, paused_duration = MAX(paused_duration, ?), paused_at = NULL, updated_at = ?
			WHERE id = ? AND user_id = ? AND deleted_at IS NULL AND status IN (?, ?)`,
			string(StatusCompleted), FormatTime(end), pausedSeconds, now,
			sessionID, userID, string(StatusActive), string(StatusPaused))
		if err != nil {
			return fmt.Errorf("failed to complete session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("open session %s: %w", sessionID, ErrNotFound)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO logs (id, user_id, session_id, exercise_id, weight, reps_completed, completed, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare log insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range logs {
			id := l.ID
			if id == "" {
				id = s.newID()
			}
			if _, err := stmt.ExecContext(ctx, id, userID, sessionID, l.ExerciseID, l.Weight, l.Reps, l.Completed, now, now); err != nil {
				return fmt.Errorf("failed to insert log: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.changed(userID)
	return nil
}

// SetSessionPause records the pause state of an open session on its row so
// other devices see it: a non-nil pausedAt marks it paused, nil marks it
// active again. pausedSeconds is the total paused time so far.
func (s *Store) SetSessionPause(ctx context.Context, userID, sessionID string, pausedAt *time.Time, pausedSeconds int) error {
	if pausedSeconds < 0 {
		return invalid("paused duration cannot be negative")
	}
	status := StatusActive
	if pausedAt != nil {
		status = StatusPaused
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, paused_at = ?, paused_duration = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL AND status IN (?, ?)`,
		string(status), nullStamp(pausedAt), pausedSeconds, s.Now(),
		sessionID, userID, string(StatusActive), string(StatusPaused))
	if err != nil {
		return fmt.Errorf("failed to update session pause: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("open session %s: %w", sessionID, ErrNotFound)
	}
	s.changed(userID)
	return nil
}

// AbandonSession marks an open session abandoned and soft-deletes it. Logs
// recorded so far were never persisted and are dropped by the caller.
func (s *Store) AbandonSession(ctx context.Context, userID, sessionID string) error {
	now := s.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, deleted_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL AND status IN (?, ?)`,
		string(StatusAbandoned), now, now, sessionID, userID, string(StatusActive), string(StatusPaused))
	if err != nil {
		return fmt.Errorf("failed to abandon session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("open session %s: %w", sessionID, ErrNotFound)
	}
	s.changed(userID)
	return nil
}

// GetSession returns a live session without logs.
func (s *Store) GetSession(ctx context.Context, userID, id string) (*Session, error) {
	se, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return se, nil
}

// GetSessionWithLogs returns a live session with its logs in insertion order,
// each carrying the exercise name.
func (s *Store) GetSessionWithLogs(ctx context.Context, userID, id string) (*Session, error) {
	se, err := s.GetSession(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.user_id, l.session_id, l.exercise_id, COALESCE(e.name, ''), COALESCE(l.weight, 0),
			COALESCE(l.reps_completed, 0), l.completed, l.created_at, l.updated_at
		FROM logs l
		LEFT JOIN exercises e ON l.exercise_id = e.id
		WHERE l.session_id = ? AND l.user_id = ? AND l.deleted_at IS NULL
		ORDER BY l.created_at ASC, l.rowid ASC`, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l SetLog
		var created, updated string
		if err := rows.Scan(&l.ID, &l.UserID, &l.SessionID, &l.ExerciseID, &l.ExerciseName, &l.Weight,
			&l.RepsCompleted, &l.Completed, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		if l.CreatedAt, err = ParseTime(created); err != nil {
			return nil, err
		}
		if l.UpdatedAt, err = ParseTime(updated); err != nil {
			return nil, err
		}
		se.Logs = append(se.Logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logs: %w", err)
	}
	return se, nil
}

// ListCompletedSessions returns the user's completed sessions, most recent first.
func (s *Store) ListCompletedSessions(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND status = ? AND deleted_at IS NULL
		ORDER BY start_time DESC`, userID, string(StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		se, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, *se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return out, nil
}
