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

const workoutColumns = `id, user_id, name, description, day_mask, muscle_group, image_uri, video_uri,
	created_at, updated_at, deleted_at, synced_at`

const exerciseColumns = `id, user_id, workout_id, name, sets, reps, sort_order, image_uri, video_uri,
	created_at, updated_at, deleted_at, synced_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkout(sc scanner) (*Workout, error) {
	var w Workout
	var desc, image, video sql.NullString
	var created, updated string
	var deleted, synced sql.NullString
	var mask int
	var group string
	if err := sc.Scan(&w.ID, &w.UserID, &w.Name, &desc, &mask, &group, &image, &video,
		&created, &updated, &deleted, &synced); err != nil {
		return nil, err
	}
	w.Description, w.ImageURI, w.VideoURI = desc.String, image.String, video.String
	w.DayMask, w.MuscleGroup = DayMask(mask), MuscleGroup(group)
	var err error
	if w.CreatedAt, err = ParseTime(created); err != nil {
		return nil, err
	}
	if w.UpdatedAt, err = ParseTime(updated); err != nil {
		return nil, err
	}
	if w.DeletedAt, err = parseNullTime(deleted); err != nil {
		return nil, err
	}
	if w.SyncedAt, err = parseNullTime(synced); err != nil {
		return nil, err
	}
	return &w, nil
}

func scanExercise(sc scanner) (*Exercise, error) {
	var e Exercise
	var image, video sql.NullString
	var created, updated string
	var deleted, synced sql.NullString
	if err := sc.Scan(&e.ID, &e.UserID, &e.WorkoutID, &e.Name, &e.Sets, &e.Reps, &e.SortOrder, &image, &video,
		&created, &updated, &deleted, &synced); err != nil {
		return nil, err
	}
	e.ImageURI, e.VideoURI = image.String, video.String
	var err error
	if e.CreatedAt, err = ParseTime(created); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = ParseTime(updated); err != nil {
		return nil, err
	}
	if e.DeletedAt, err = parseNullTime(deleted); err != nil {
		return nil, err
	}
	if e.SyncedAt, err = parseNullTime(synced); err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateWorkout inserts a workout and its exercises in one transaction.
func (s *Store) CreateWorkout(ctx context.Context, userID string, in WorkoutInput) (*Workout, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}
	id := s.newID()
	now := s.Now()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workouts (id, user_id, name, description, day_mask, muscle_group, image_uri, video_uri, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, userID, in.Name, in.Description, int(in.DayMask), string(in.MuscleGroup), nullIfEmpty(in.ImageURI), nullIfEmpty(in.VideoURI), now, now); err != nil {
			return fmt.Errorf("failed to insert workout: %w", err)
		}
		for i, ex := range in.Exercises {
			if err := s.insertExercise(ctx, tx, userID, id, ex, i, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(userID)
	return s.GetWorkout(ctx, userID, id)
}

// UpdateWorkout overwrites the editable fields of a workout. Exercises are
// edited through their own methods.
func (s *Store) UpdateWorkout(ctx context.Context, userID, id string, in WorkoutInput) (*Workout, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE workouts
		SET name = ?, description = ?, day_mask = ?, muscle_group = ?, image_uri = ?, video_uri = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		in.Name, in.Description, int(in.DayMask), string(in.MuscleGroup), nullIfEmpty(in.ImageURI), nullIfEmpty(in.VideoURI), s.Now(), id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update workout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("workout %s: %w", id, ErrNotFound)
	}
	s.changed(userID)
	return s.GetWorkout(ctx, userID, id)
}

// DeleteWorkout soft-deletes a workout. Its exercises are soft-deleted with
// it so they stop showing up and propagate through sync.
func (s *Store) DeleteWorkout(ctx context.Context, userID, id string) error {
	now := s.Now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE workouts SET deleted_at = ?, updated_at = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
			now, now, id, userID)
		if err != nil {
			return fmt.Errorf("failed to delete workout: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("workout %s: %w", id, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE exercises SET deleted_at = ?, updated_at = ? WHERE workout_id = ? AND user_id = ? AND deleted_at IS NULL`,
			now, now, id, userID); err != nil {
			return fmt.Errorf("failed to delete workout exercises: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.changed(userID)
	return nil
}

// GetWorkout returns a live workout with its live exercises in sort order.
func (s *Store) GetWorkout(ctx context.Context, userID, id string) (*Workout, error) {
	w, err := scanWorkout(s.db.QueryRowContext(ctx,
		`SELECT `+workoutColumns+` FROM workouts WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workout %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workout: %w", err)
	}
	if w.Exercises, err = s.listExercises(ctx, userID, []string{w.ID}); err != nil {
		return nil, err
	}
	return w, nil
}

// ListWorkouts returns the user's live workouts, newest first, with exercises.
func (s *Store) ListWorkouts(ctx context.Context, userID string) ([]Workout, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workoutColumns+` FROM workouts WHERE user_id = ? AND deleted_at IS NULL ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workouts: %w", err)
	}
	var workouts []Workout
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan workout: %w", err)
		}
		workouts = append(workouts, *w)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating workouts: %w", err)
	}
	rows.Close()

	if len(workouts) == 0 {
		return workouts, nil
	}
	ids := make([]string, len(workouts))
	for i := range workouts {
		ids[i] = workouts[i].ID
	}
	exercises, err := s.listExercises(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	byWorkout := make(map[string][]Exercise)
	for _, e := range exercises {
		byWorkout[e.WorkoutID] = append(byWorkout[e.WorkoutID], e)
	}
	for i := range workouts {
		workouts[i].Exercises = byWorkout[workouts[i].ID]
	}
	return workouts, nil
}

// ScheduledOn returns the live workouts whose day mask includes day.
func (s *Store) ScheduledOn(ctx context.Context, userID string, day time.Weekday) ([]Workout, error) {
	all, err := s.ListWorkouts(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []Workout
	for _, w := range all {
		if w.DayMask.Has(day) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) listExercises(ctx context.Context, userID string, workoutIDs []string) ([]Exercise, error) {
	query := `SELECT ` + exerciseColumns + ` FROM exercises
		WHERE user_id = ? AND deleted_at IS NULL AND workout_id IN (` + placeholders(len(workoutIDs)) + `)
		ORDER BY workout_id, sort_order ASC`
	args := make([]any, 0, len(workoutIDs)+1)
	args = append(args, userID)
	for _, id := range workoutIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list exercises: %w", err)
	}
	defer rows.Close()

	var out []Exercise
	for rows.Next() {
		e, err := scanExercise(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exercise: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exercises: %w", err)
	}
	return out, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

func (s *Store) insertExercise(ctx context.Context, tx *sql.Tx, userID, workoutID string, in ExerciseInput, sortOrder int, now string) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO exercises (id, user_id, workout_id, name, sets, reps, sort_order, image_uri, video_uri, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.newID(), userID, workoutID, in.Name, in.Sets, in.Reps, sortOrder, nullIfEmpty(in.ImageURI), nullIfEmpty(in.VideoURI), now, now); err != nil {
		return fmt.Errorf("failed to insert exercise: %w", err)
	}
	return nil
}

// AddExercise appends an exercise to a live workout.
func (s *Store) AddExercise(ctx context.Context, userID, workoutID string, in ExerciseInput) (*Exercise, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}
	id := s.newID()
	now := s.Now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var next int
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(e.sort_order) + 1, 0) FROM workouts w
			LEFT JOIN exercises e ON e.workout_id = w.id AND e.deleted_at IS NULL
			WHERE w.id = ? AND w.user_id = ? AND w.deleted_at IS NULL
			GROUP BY w.id`, workoutID, userID).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("workout %s: %w", workoutID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to resolve sort order: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO exercises (id, user_id, workout_id, name, sets, reps, sort_order, image_uri, video_uri, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, userID, workoutID, in.Name, in.Sets, in.Reps, next, nullIfEmpty(in.ImageURI), nullIfEmpty(in.VideoURI), now, now)
		if err != nil {
			return fmt.Errorf("failed to insert exercise: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.changed(userID)
	return s.GetExercise(ctx, userID, id)
}

// UpdateExercise overwrites the editable fields of an exercise.
func (s *Store) UpdateExercise(ctx context.Context, userID, id string, in ExerciseInput) (*Exercise, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE exercises SET name = ?, sets = ?, reps = ?, image_uri = ?, video_uri = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		in.Name, in.Sets, in.Reps, nullIfEmpty(in.ImageURI), nullIfEmpty(in.VideoURI), s.Now(), id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update exercise: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("exercise %s: %w", id, ErrNotFound)
	}
	s.changed(userID)
	return s.GetExercise(ctx, userID, id)
}

// DeleteExercise soft-deletes an exercise.
func (s *Store) DeleteExercise(ctx context.Context, userID, id string) error {
	return s.softDelete(ctx, "exercises", id, userID)
}

// GetExercise returns a live exercise.
func (s *Store) GetExercise(ctx context.Context, userID, id string) (*Exercise, error) {
	e, err := scanExercise(s.db.QueryRowContext(ctx,
		`SELECT `+exerciseColumns+` FROM exercises WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("exercise %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load exercise: %w", err)
	}
	return e, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
