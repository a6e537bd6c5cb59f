// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kvcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
)

// Keys of the session-state namespace.
const (
	KeyActiveSessionID             = "active_session_id"
	KeyActiveSessionUserID         = "active_session_user_id"
	KeyActiveSessionWorkoutID      = "active_session_workout_id"
	KeyActiveSessionWorkoutName    = "active_session_workout_name"
	KeyActiveSessionStartTime      = "active_session_start_time"
	KeyActiveSessionPausedDuration = "active_session_paused_duration"
	KeyActiveSessionPausedAt       = "active_session_paused_at"
	KeyActiveSessionLogs           = "active_session_logs"

	KeyLastPush = "last_push_timestamp"
	KeyLastPull = "last_pull_timestamp"

	KeyTheme            = "pref_theme"
	KeyRestTimerSeconds = "pref_rest_timer_seconds"
)

// DefaultRestTimer is returned when no rest timer preference is stored.
const DefaultRestTimer = 90 * time.Second

var activeSessionKeys = []string{
	KeyActiveSessionID,
	KeyActiveSessionUserID,
	KeyActiveSessionWorkoutID,
	KeyActiveSessionWorkoutName,
	KeyActiveSessionStartTime,
	KeyActiveSessionPausedDuration,
	KeyActiveSessionPausedAt,
	KeyActiveSessionLogs,
}

// CachedSession is the persisted state of the in-progress session.
type CachedSession struct {
	ID             string
	UserID         string
	WorkoutID      string
	WorkoutName    string
	StartTime      time.Time
	PausedDuration int // seconds
	PausedAt       *time.Time
}

// Paused reports whether the session is currently paused.
func (c *CachedSession) Paused() bool { return c.PausedAt != nil }

// SessionCache is the typed view over Store used by the session tracker and
// the sync layer.
type SessionCache struct {
	store *Store
}

// NewSessionCache wraps store.
func NewSessionCache(store *Store) *SessionCache {
	return &SessionCache{store: store}
}

func formatTime(t time.Time) string { return localdb.FormatTime(t) }

// SetActiveSession records a newly started session. The paused duration starts
// at zero unless one is already stored for the same session.
func (c *SessionCache) SetActiveSession(ctx context.Context, id, userID, workoutID, workoutName string, start time.Time) error {
	return c.store.Update(ctx, func(tx *Tx) error {
		prevID, _, err := tx.Get(KeyActiveSessionID)
		if err != nil {
			return err
		}
		if err := tx.Set(KeyActiveSessionID, id); err != nil {
			return err
		}
		if err := tx.Set(KeyActiveSessionUserID, userID); err != nil {
			return err
		}
		if err := tx.Set(KeyActiveSessionWorkoutID, workoutID); err != nil {
			return err
		}
		if err := tx.Set(KeyActiveSessionWorkoutName, workoutName); err != nil {
			return err
		}
		if err := tx.Set(KeyActiveSessionStartTime, formatTime(start)); err != nil {
			return err
		}
		if _, ok, err := tx.Get(KeyActiveSessionPausedDuration); err != nil {
			return err
		} else if !ok || prevID != id {
			if err := tx.Set(KeyActiveSessionPausedDuration, "0"); err != nil {
				return err
			}
		}
		if prevID != id {
			if err := tx.Delete(KeyActiveSessionPausedAt); err != nil {
				return err
			}
			return tx.Delete(KeyActiveSessionLogs)
		}
		return nil
	})
}

// ActiveSession returns the cached session, or nil when none is stored.
func (c *SessionCache) ActiveSession(ctx context.Context) (*CachedSession, error) {
	var out *CachedSession
	err := c.store.Update(ctx, func(tx *Tx) error {
		id, ok, err := tx.Get(KeyActiveSessionID)
		if err != nil || !ok {
			return err
		}
		s := &CachedSession{ID: id}
		if s.UserID, _, err = tx.Get(KeyActiveSessionUserID); err != nil {
			return err
		}
		if s.WorkoutID, _, err = tx.Get(KeyActiveSessionWorkoutID); err != nil {
			return err
		}
		if s.WorkoutName, _, err = tx.Get(KeyActiveSessionWorkoutName); err != nil {
			return err
		}
		start, _, err := tx.Get(KeyActiveSessionStartTime)
		if err != nil {
			return err
		}
		if s.StartTime, err = localdb.ParseTime(start); err != nil {
			return fmt.Errorf("corrupt session start time: %w", err)
		}
		if d, ok, err := tx.Get(KeyActiveSessionPausedDuration); err != nil {
			return err
		} else if ok {
			if s.PausedDuration, err = strconv.Atoi(d); err != nil {
				return fmt.Errorf("corrupt paused duration: %w", err)
			}
		}
		if p, ok, err := tx.Get(KeyActiveSessionPausedAt); err != nil {
			return err
		} else if ok {
			at, err := localdb.ParseTime(p)
			if err != nil {
				return fmt.Errorf("corrupt paused at: %w", err)
			}
			s.PausedAt = &at
		}
		out = s
		return nil
	})
	return out, err
}

// MarkPaused records the pause timestamp.
func (c *SessionCache) MarkPaused(ctx context.Context, at time.Time) error {
	return c.store.Update(ctx, func(tx *Tx) error {
		if _, ok, err := tx.Get(KeyActiveSessionID); err != nil {
			return err
		} else if !ok {
			return ErrNoActiveSession
		}
		return tx.Set(KeyActiveSessionPausedAt, formatTime(at))
	})
}

// MarkResumed stores the new accumulated paused duration and clears the pause
// timestamp in one transaction.
func (c *SessionCache) MarkResumed(ctx context.Context, totalPausedSeconds int) error {
	return c.store.Update(ctx, func(tx *Tx) error {
		if _, ok, err := tx.Get(KeyActiveSessionID); err != nil {
			return err
		} else if !ok {
			return ErrNoActiveSession
		}
		if err := tx.Set(KeyActiveSessionPausedDuration, strconv.Itoa(totalPausedSeconds)); err != nil {
			return err
		}
		return tx.Delete(KeyActiveSessionPausedAt)
	})
}

// SavePendingLogs stores the sets recorded so far so they survive a restart.
func (c *SessionCache) SavePendingLogs(ctx context.Context, logs []localdb.SetInput) error {
	b, err := json.Marshal(logs)
	if err != nil {
		return fmt.Errorf("failed to encode pending logs: %w", err)
	}
	return c.store.Set(ctx, KeyActiveSessionLogs, string(b))
}

// PendingLogs returns the sets stored by SavePendingLogs.
func (c *SessionCache) PendingLogs(ctx context.Context) ([]localdb.SetInput, error) {
	v, ok, err := c.store.Get(ctx, KeyActiveSessionLogs)
	if err != nil || !ok {
		return nil, err
	}
	var logs []localdb.SetInput
	if err := json.Unmarshal([]byte(v), &logs); err != nil {
		return nil, fmt.Errorf("failed to decode pending logs: %w", err)
	}
	return logs, nil
}

// ClearActiveSession removes every active-session key in one transaction.
func (c *SessionCache) ClearActiveSession(ctx context.Context) error {
	return c.store.Update(ctx, func(tx *Tx) error {
		for _, k := range activeSessionKeys {
			if err := tx.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// ErrNoActiveSession is returned by pause bookkeeping when nothing is cached.
var ErrNoActiveSession = errors.New("no active session")

// LastPush returns the time of the last completed push pass.
func (c *SessionCache) LastPush(ctx context.Context) (time.Time, bool, error) {
	return c.timeKey(ctx, KeyLastPush)
}

// SetLastPush records the time of a completed push pass.
func (c *SessionCache) SetLastPush(ctx context.Context, t time.Time) error {
	return c.store.Set(ctx, KeyLastPush, formatTime(t))
}

// LastPull returns the time of the last completed pull.
func (c *SessionCache) LastPull(ctx context.Context) (time.Time, bool, error) {
	return c.timeKey(ctx, KeyLastPull)
}

// SetLastPull records the time of a completed pull.
func (c *SessionCache) SetLastPull(ctx context.Context, t time.Time) error {
	return c.store.Set(ctx, KeyLastPull, formatTime(t))
}

func (c *SessionCache) timeKey(ctx context.Context, key string) (time.Time, bool, error) {
	v, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := localdb.ParseTime(v)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// Theme returns the stored theme name, or "system".
func (c *SessionCache) Theme(ctx context.Context) (string, error) {
	v, ok, err := c.store.Get(ctx, KeyTheme)
	if err != nil {
		return "", err
	}
	if !ok {
		return "system", nil
	}
	return v, nil
}

// SetTheme stores the theme name.
func (c *SessionCache) SetTheme(ctx context.Context, theme string) error {
	return c.store.Set(ctx, KeyTheme, theme)
}

// RestTimer returns the default rest between sets.
func (c *SessionCache) RestTimer(ctx context.Context) (time.Duration, error) {
	v, ok, err := c.store.Get(ctx, KeyRestTimerSeconds)
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultRestTimer, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return DefaultRestTimer, nil
	}
	return time.Duration(secs) * time.Second, nil
}

// SetRestTimer stores the default rest between sets, rounded to seconds.
func (c *SessionCache) SetRestTimer(ctx context.Context, d time.Duration) error {
	if d < time.Second {
		return fmt.Errorf("rest timer must be at least one second")
	}
	return c.store.Set(ctx, KeyRestTimerSeconds, strconv.Itoa(int(d/time.Second)))
}

// PurgeSettings removes everything in the store, session state and
// preferences alike. Used on sign-out.
func (c *SessionCache) PurgeSettings(ctx context.Context) error {
	return c.store.Clear(ctx)
}
