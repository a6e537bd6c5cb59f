package kvcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*SessionCache, *Store) {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewSessionCache(store), store
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "a", "1"))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	v, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)

	_, ok, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_UpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	_, store := newTestCache(t)

	require.NoError(t, store.Set(ctx, "k1", "old"))
	err := store.Update(ctx, func(tx *Tx) error {
		require.NoError(t, tx.Set("k1", "new"))
		require.NoError(t, tx.Set("k2", "new"))
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)

	v, _, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, "old", v)
	_, ok, err := store.Get(ctx, "k2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessionCache_Lifecycle(t *testing.T) {
	ctx := context.Background()
	cache, store := newTestCache(t)
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	got, err := cache.ActiveSession(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, cache.SetActiveSession(ctx, "s1", "u1", "w1", "Push Day", start))
	got, err = cache.ActiveSession(ctx)
	require.NoError(t, err)
	require.Equal(t, "s1", got.ID)
	require.Equal(t, "u1", got.UserID)
	require.Equal(t, "w1", got.WorkoutID)
	require.Equal(t, "Push Day", got.WorkoutName)
	require.True(t, start.Equal(got.StartTime))
	require.Zero(t, got.PausedDuration)
	require.False(t, got.Paused())

	pausedAt := start.Add(10 * time.Minute)
	require.NoError(t, cache.MarkPaused(ctx, pausedAt))
	got, err = cache.ActiveSession(ctx)
	require.NoError(t, err)
	require.True(t, got.Paused())
	require.True(t, pausedAt.Equal(*got.PausedAt))

	require.NoError(t, cache.MarkResumed(ctx, 95))
	got, err = cache.ActiveSession(ctx)
	require.NoError(t, err)
	require.False(t, got.Paused())
	require.Equal(t, 95, got.PausedDuration)

	logs := []localdb.SetInput{{ID: "l1", ExerciseID: "e1", Weight: 60, Reps: 8, Completed: true}}
	require.NoError(t, cache.SavePendingLogs(ctx, logs))
	pending, err := cache.PendingLogs(ctx)
	require.NoError(t, err)
	require.Equal(t, logs, pending)

	require.NoError(t, cache.SetLastPush(ctx, start))
	require.NoError(t, cache.ClearActiveSession(ctx))

	got, err = cache.ActiveSession(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
	keys, err := store.Keys(ctx, "active_session_")
	require.NoError(t, err)
	require.Empty(t, keys)

	// Other namespaces survive the clear.
	_, ok, err := cache.LastPush(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.ErrorIs(t, cache.MarkPaused(ctx, pausedAt), ErrNoActiveSession)
	require.ErrorIs(t, cache.MarkResumed(ctx, 1), ErrNoActiveSession)
}

func TestSessionCache_NewSessionResetsPauseState(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	require.NoError(t, cache.SetActiveSession(ctx, "s1", "u1", "w1", "A", start))
	require.NoError(t, cache.MarkPaused(ctx, start.Add(time.Minute)))
	require.NoError(t, cache.SavePendingLogs(ctx, []localdb.SetInput{{ExerciseID: "e1", Reps: 5}}))

	// Re-recording the same session keeps its pause bookkeeping.
	require.NoError(t, cache.SetActiveSession(ctx, "s1", "u1", "w1", "A", start))
	got, err := cache.ActiveSession(ctx)
	require.NoError(t, err)
	require.True(t, got.Paused())

	require.NoError(t, cache.SetActiveSession(ctx, "s2", "u1", "w1", "A", start.Add(time.Hour)))
	got, err = cache.ActiveSession(ctx)
	require.NoError(t, err)
	require.Equal(t, "s2", got.ID)
	require.False(t, got.Paused())
	require.Zero(t, got.PausedDuration)
	pending, err := cache.PendingLogs(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestSessionCache_Preferences(t *testing.T) {
	ctx := context.Background()
	cache, store := newTestCache(t)

	theme, err := cache.Theme(ctx)
	require.NoError(t, err)
	require.Equal(t, "system", theme)
	require.NoError(t, cache.SetTheme(ctx, "dark"))
	theme, err = cache.Theme(ctx)
	require.NoError(t, err)
	require.Equal(t, "dark", theme)

	rest, err := cache.RestTimer(ctx)
	require.NoError(t, err)
	require.Equal(t, DefaultRestTimer, rest)
	require.NoError(t, cache.SetRestTimer(ctx, 2*time.Minute))
	rest, err = cache.RestTimer(ctx)
	require.NoError(t, err)
	require.Equal(t, 2*time.Minute, rest)
	require.Error(t, cache.SetRestTimer(ctx, 0))

	require.NoError(t, cache.SetLastPull(ctx, time.Now()))
	require.NoError(t, cache.PurgeSettings(ctx))
	keys, err := store.Keys(ctx, "")
	require.NoError(t, err)
	require.Empty(t, keys)
}
