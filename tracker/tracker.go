// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package tracker drives the live workout session: start, pause and resume,
// set logging, and completion. The in-progress state lives in the session
// cache so it survives a restart; sets reach the relational store only when
// the session completes.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/kvcache"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
)

var (
	ErrNoActiveSession   = errors.New("no active session")
	ErrSessionInProgress = errors.New("a session is already in progress")
)

// ActiveSession is the in-progress session as seen by the tracker.
type ActiveSession struct {
	ID             string
	UserID         string
	WorkoutID      string
	WorkoutName    string
	StartTime      time.Time
	PausedDuration int // seconds
	PausedAt       *time.Time
	Logs           []localdb.SetInput
}

// Paused reports whether the session is paused.
func (a *ActiveSession) Paused() bool { return a.PausedAt != nil }

// Status maps the pause state onto the stored session status.
func (a *ActiveSession) Status() localdb.SessionStatus {
	if a.Paused() {
		return localdb.StatusPaused
	}
	return localdb.StatusActive
}

// Elapsed is the training time at now: wall time since start minus paused
// time. While paused the value is frozen at the moment of the pause.
func (a *ActiveSession) Elapsed(now time.Time) time.Duration {
	end := now
	if a.PausedAt != nil {
		end = *a.PausedAt
	}
	d := end.Sub(a.StartTime) - time.Duration(a.PausedDuration)*time.Second
	if d < 0 {
		return 0
	}
	return d
}

// LoggedSets returns how many sets were logged for exerciseID.
func (a *ActiveSession) LoggedSets(exerciseID string) int {
	n := 0
	for _, l := range a.Logs {
		if l.ExerciseID == exerciseID {
			n++
		}
	}
	return n
}

func (a *ActiveSession) clone() *ActiveSession {
	c := *a
	c.Logs = append([]localdb.SetInput(nil), a.Logs...)
	if a.PausedAt != nil {
		at := *a.PausedAt
		c.PausedAt = &at
	}
	return &c
}

// Options configures a Tracker.
type Options struct {
	Logger *slog.Logger
	Clock  func() time.Time
	NewID  func() string
}

// Tracker owns the single in-progress session of the device.
type Tracker struct {
	local  *localdb.Store
	cache  *kvcache.SessionCache
	logger *slog.Logger
	clock  func() time.Time
	newID  func() string

	mu     sync.Mutex
	active *ActiveSession
}

// New creates a Tracker. Call Hydrate after sign-in to restore a session
// interrupted by a restart.
func New(local *localdb.Store, cache *kvcache.SessionCache, opts *Options) *Tracker {
	t := &Tracker{
		local:  local,
		cache:  cache,
		logger: slog.Default(),
		clock:  time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	if opts != nil {
		if opts.Logger != nil {
			t.logger = opts.Logger
		}
		if opts.Clock != nil {
			t.clock = opts.Clock
		}
		if opts.NewID != nil {
			t.newID = opts.NewID
		}
	}
	return t
}

// Active returns a copy of the in-progress session, or nil.
func (t *Tracker) Active() *ActiveSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return nil
	}
	return t.active.clone()
}

// Start creates the session row and caches it as the active session.
func (t *Tracker) Start(ctx context.Context, userID, workoutID, workoutName string) (*ActiveSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("cannot start a session while signed out: %w", localdb.ErrInvalid)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != nil {
		return nil, ErrSessionInProgress
	}

	start := t.clock()
	sess, err := t.local.CreateSession(ctx, userID, workoutID, workoutName, start)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	if err := t.cache.SetActiveSession(ctx, sess.ID, userID, workoutID, sess.WorkoutName, sess.StartTime); err != nil {
		// Nothing would ever close the row otherwise.
		if aerr := t.local.AbandonSession(ctx, userID, sess.ID); aerr != nil {
			t.logger.Warn("Failed to abandon uncached session", "session_id", sess.ID, "error", aerr)
		}
		return nil, fmt.Errorf("failed to cache active session: %w", err)
	}
	t.active = &ActiveSession{
		ID:          sess.ID,
		UserID:      userID,
		WorkoutID:   workoutID,
		WorkoutName: sess.WorkoutName,
		StartTime:   sess.StartTime,
	}
	t.logger.Info("Session started", "session_id", sess.ID, "workout_id", workoutID)
	return t.active.clone(), nil
}

// pausedSeconds is the whole number of seconds between a pause and now.
func pausedSeconds(pausedAt, now time.Time) int {
	d := now.Sub(pausedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// TogglePause pauses a running session or resumes a paused one and reports
// whether the session is paused afterwards.
func (t *Tracker) TogglePause(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return false, ErrNoActiveSession
	}
	now := t.clock()
	if t.active.PausedAt != nil {
		total := t.active.PausedDuration + pausedSeconds(*t.active.PausedAt, now)
		if err := t.cache.MarkResumed(ctx, total); err != nil {
			return true, fmt.Errorf("failed to persist resume: %w", err)
		}
		t.active.PausedDuration = total
		t.active.PausedAt = nil
		t.recordPause(ctx)
		return false, nil
	}
	if err := t.cache.MarkPaused(ctx, now); err != nil {
		return false, fmt.Errorf("failed to persist pause: %w", err)
	}
	// Stored times carry millisecond precision; keep the in-memory copy equal
	// to what a restart would restore.
	at := now.Truncate(time.Millisecond)
	t.active.PausedAt = &at
	t.recordPause(ctx)
	return true, nil
}

// recordPause mirrors the pause state onto the session row. The cache stays
// the source of truth on this device, so a failed row update is only logged.
func (t *Tracker) recordPause(ctx context.Context) {
	a := t.active
	if err := t.local.SetSessionPause(ctx, a.UserID, a.ID, a.PausedAt, a.PausedDuration); err != nil {
		t.logger.Warn("Failed to record pause state on session", "session_id", a.ID, "error", err)
	}
}

// LogSet records a completed set. It is cached for crash recovery and
// persisted when the session completes.
func (t *Tracker) LogSet(ctx context.Context, exerciseID string, weight float64, reps int) (localdb.SetInput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return localdb.SetInput{}, ErrNoActiveSession
	}
	set := localdb.SetInput{ID: t.newID(), ExerciseID: exerciseID, Weight: weight, Reps: reps, Completed: true}
	if err := set.Validate(); err != nil {
		return localdb.SetInput{}, err
	}
	logs := append(append([]localdb.SetInput(nil), t.active.Logs...), set)
	if err := t.cache.SavePendingLogs(ctx, logs); err != nil {
		return localdb.SetInput{}, err
	}
	t.active.Logs = logs
	return set, nil
}

// AutoLogRemaining fills the missing sets of every started exercise with
// weight 0 and the exercise's target reps. Exercises without any logged set
// count as skipped and are left alone. It returns the number of sets added.
func (t *Tracker) AutoLogRemaining(ctx context.Context, exercises []localdb.Exercise) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return 0, ErrNoActiveSession
	}
	logs := append([]localdb.SetInput(nil), t.active.Logs...)
	added := 0
	for _, ex := range exercises {
		logged := t.active.LoggedSets(ex.ID)
		if logged == 0 || ex.Reps <= 0 {
			continue
		}
		for i := logged; i < ex.Sets; i++ {
			logs = append(logs, localdb.SetInput{ID: t.newID(), ExerciseID: ex.ID, Reps: ex.Reps, Completed: true})
			added++
		}
	}
	if added == 0 {
		return 0, nil
	}
	if err := t.cache.SavePendingLogs(ctx, logs); err != nil {
		return 0, err
	}
	t.active.Logs = logs
	return added, nil
}

// Complete persists the session with all logged sets in one transaction and
// clears the cached state. On failure the session stays active so the user
// can retry.
func (t *Tracker) Complete(ctx context.Context) (*localdb.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return nil, ErrNoActiveSession
	}
	a := t.active
	end := t.clock()
	paused := a.PausedDuration
	if a.PausedAt != nil {
		paused += pausedSeconds(*a.PausedAt, end)
	}
	if err := t.local.CompleteSession(ctx, a.UserID, a.ID, end, paused, a.Logs); err != nil {
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}
	if err := t.cache.ClearActiveSession(ctx); err != nil {
		t.logger.Warn("Failed to clear cached session", "session_id", a.ID, "error", err)
	}
	t.active = nil
	t.logger.Info("Session completed", "session_id", a.ID, "sets", len(a.Logs))
	return t.local.GetSessionWithLogs(ctx, a.UserID, a.ID)
}

// Abandon drops the logged sets, marks the session abandoned and clears the
// cached state.
func (t *Tracker) Abandon(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return ErrNoActiveSession
	}
	a := t.active
	if err := t.local.AbandonSession(ctx, a.UserID, a.ID); err != nil && !errors.Is(err, localdb.ErrNotFound) {
		return fmt.Errorf("failed to abandon session: %w", err)
	}
	if err := t.cache.ClearActiveSession(ctx); err != nil {
		return fmt.Errorf("failed to clear cached session: %w", err)
	}
	t.active = nil
	t.logger.Info("Session abandoned", "session_id", a.ID)
	return nil
}

// Hydrate restores the cached session for currentUserID. A session cached for
// another account, or whose row is no longer open, is discarded.
func (t *Tracker) Hydrate(ctx context.Context, currentUserID string) (*ActiveSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cached, err := t.cache.ActiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached session: %w", err)
	}
	if cached == nil || currentUserID == "" {
		t.active = nil
		return nil, nil
	}
	if cached.UserID != currentUserID {
		t.logger.Info("Discarding session cached for another account", "session_id", cached.ID)
		t.active = nil
		return nil, t.cache.ClearActiveSession(ctx)
	}

	row, err := t.local.GetSession(ctx, currentUserID, cached.ID)
	if err != nil && !errors.Is(err, localdb.ErrNotFound) {
		return nil, err
	}
	if row == nil || (row.Status != localdb.StatusActive && row.Status != localdb.StatusPaused) {
		t.logger.Info("Discarding cached session that is no longer open", "session_id", cached.ID)
		t.active = nil
		return nil, t.cache.ClearActiveSession(ctx)
	}

	logs, err := t.cache.PendingLogs(ctx)
	if err != nil {
		t.logger.Warn("Dropping unreadable cached sets", "session_id", cached.ID, "error", err)
		logs = nil
	}
	t.active = &ActiveSession{
		ID:             cached.ID,
		UserID:         cached.UserID,
		WorkoutID:      cached.WorkoutID,
		WorkoutName:    cached.WorkoutName,
		StartTime:      cached.StartTime,
		PausedDuration: cached.PausedDuration,
		PausedAt:       cached.PausedAt,
		Logs:           logs,
	}
	return t.active.clone(), nil
}

// Elapsed returns the training time of the active session, zero when none.
func (t *Tracker) Elapsed(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return 0
	}
	return t.active.Elapsed(now)
}

// Reset forgets the in-memory session without touching storage. Sign-out
// calls it after purging the cache.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = nil
}
