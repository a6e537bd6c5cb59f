// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// WeightHistoryLimit caps WeightHistory results.
const WeightHistoryLimit = 30

// SaveProgressPhoto records a photo by its local reference. sessionID and
// workoutID are optional.
func (s *Store) SaveProgressPhoto(ctx context.Context, userID, uri string, takenAt time.Time, note, sessionID, workoutID string) (*ProgressPhoto, error) {
	if uri == "" {
		return nil, invalid("photo uri is required")
	}
	p := &ProgressPhoto{
		ID:        s.newID(),
		UserID:    userID,
		URI:       uri,
		TakenAt:   takenAt.UTC().Truncate(time.Millisecond),
		Note:      SanitizeText(note),
		SessionID: sessionID,
		WorkoutID: workoutID,
	}
	now := s.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress_photos (id, user_id, uri, taken_at, note, session_id, workout_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, userID, uri, FormatTime(p.TakenAt), p.Note, nullIfEmpty(sessionID), nullIfEmpty(workoutID), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert progress photo: %w", err)
	}
	p.CreatedAt, _ = ParseTime(now)
	p.UpdatedAt = p.CreatedAt
	s.changed(userID)
	return p, nil
}

// ListProgressPhotos returns live photos, newest first.
func (s *Store) ListProgressPhotos(ctx context.Context, userID string) ([]ProgressPhoto, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, uri, taken_at, note, session_id, workout_id, created_at, updated_at
		FROM progress_photos
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY taken_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress photos: %w", err)
	}
	defer rows.Close()

	var out []ProgressPhoto
	for rows.Next() {
		var p ProgressPhoto
		var takenAt, created, updated string
		var note, sessionID, workoutID sql.NullString
		if err := rows.Scan(&p.ID, &p.UserID, &p.URI, &takenAt, &note, &sessionID, &workoutID, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan progress photo: %w", err)
		}
		p.Note, p.SessionID, p.WorkoutID = note.String, sessionID.String, workoutID.String
		if p.TakenAt, err = ParseTime(takenAt); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = ParseTime(created); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = ParseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating progress photos: %w", err)
	}
	return out, nil
}

// DeleteProgressPhoto soft-deletes a photo.
func (s *Store) DeleteProgressPhoto(ctx context.Context, userID, id string) error {
	return s.softDelete(ctx, "progress_photos", id, userID)
}

// SaveWeight records a body weight measurement.
func (s *Store) SaveWeight(ctx context.Context, userID string, weight float64, date time.Time) (*WeightLog, error) {
	if weight <= 0 {
		return nil, invalid("weight must be positive")
	}
	w := &WeightLog{ID: s.newID(), UserID: userID, Weight: weight, Date: date.UTC().Truncate(time.Millisecond)}
	now := s.Now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO weight_logs (id, user_id, weight, date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, userID, weight, FormatTime(w.Date), now, now); err != nil {
		return nil, fmt.Errorf("failed to insert weight: %w", err)
	}
	w.CreatedAt, _ = ParseTime(now)
	w.UpdatedAt = w.CreatedAt
	s.changed(userID)
	return w, nil
}

// WeightHistory returns the latest WeightHistoryLimit live measurements, newest first.
func (s *Store) WeightHistory(ctx context.Context, userID string) ([]WeightLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, weight, date, created_at, updated_at
		FROM weight_logs
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY date DESC
		LIMIT ?`, userID, WeightHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load weight history: %w", err)
	}
	defer rows.Close()

	var out []WeightLog
	for rows.Next() {
		var w WeightLog
		var date, created, updated string
		if err := rows.Scan(&w.ID, &w.UserID, &w.Weight, &date, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan weight: %w", err)
		}
		if w.Date, err = ParseTime(date); err != nil {
			return nil, err
		}
		if w.CreatedAt, err = ParseTime(created); err != nil {
			return nil, err
		}
		if w.UpdatedAt, err = ParseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weights: %w", err)
	}
	return out, nil
}

// DeleteWeight soft-deletes a measurement so the deletion reaches other devices.
func (s *Store) DeleteWeight(ctx context.Context, userID, id string) error {
	return s.softDelete(ctx, "weight_logs", id, userID)
}
