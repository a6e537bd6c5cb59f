package localdb

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	clock := newTestClock()
	s, err := Open(context.Background(), ":memory:", &Options{Clock: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func sampleWorkout() WorkoutInput {
	return WorkoutInput{
		Name:        "  Push <b>Day</b> ",
		Description: "chest and triceps",
		DayMask:     DayMaskOf(time.Monday, time.Thursday),
		MuscleGroup: MuscleChest,
		ImageURI:    "file:///data/push.jpg",
		Exercises: []ExerciseInput{
			{Name: "Bench Press", Sets: 4, Reps: 8},
			{Name: "Dips", Sets: 3, Reps: 12},
		},
	}
}

func TestCreateWorkout_WithExercises(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	w, err := s.CreateWorkout(ctx, "u1", sampleWorkout())
	require.NoError(t, err)
	require.Equal(t, "Push Day", w.Name)
	require.Len(t, w.Exercises, 2)
	require.Equal(t, "Bench Press", w.Exercises[0].Name)
	require.Equal(t, 0, w.Exercises[0].SortOrder)
	require.Equal(t, "Dips", w.Exercises[1].Name)
	require.Equal(t, 1, w.Exercises[1].SortOrder)
	require.Nil(t, w.SyncedAt)

	ex, err := s.AddExercise(ctx, "u1", w.ID, ExerciseInput{Name: "Flyes", Sets: 3, Reps: 15})
	require.NoError(t, err)
	require.Equal(t, 2, ex.SortOrder)

	// Another user sees nothing.
	_, err = s.GetWorkout(ctx, "u2", w.ID)
	require.ErrorIs(t, err, ErrNotFound)
	list, err := s.ListWorkouts(ctx, "u2")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestCreateWorkout_Validation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	cases := map[string]func(*WorkoutInput){
		"empty name":     func(in *WorkoutInput) { in.Name = "<i></i>  " },
		"bad mask":       func(in *WorkoutInput) { in.DayMask = 128 },
		"bad group":      func(in *WorkoutInput) { in.MuscleGroup = "Neck" },
		"zero sets":      func(in *WorkoutInput) { in.Exercises[0].Sets = 0 },
		"zero reps":      func(in *WorkoutInput) { in.Exercises[1].Reps = 0 },
		"blank exercise": func(in *WorkoutInput) { in.Exercises[0].Name = " " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := sampleWorkout()
			mutate(&in)
			_, err := s.CreateWorkout(ctx, "u1", in)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}

	list, err := s.ListWorkouts(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestUpdateWorkout_BumpsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	w, err := s.CreateWorkout(ctx, "u1", sampleWorkout())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	in := sampleWorkout()
	in.Name = "Push Heavy"
	updated, err := s.UpdateWorkout(ctx, "u1", w.ID, in)
	require.NoError(t, err)
	require.Equal(t, "Push Heavy", updated.Name)
	require.True(t, updated.UpdatedAt.After(w.UpdatedAt))
	require.Equal(t, w.CreatedAt, updated.CreatedAt)

	_, err = s.UpdateWorkout(ctx, "u2", w.ID, in)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteWorkout_IsSoft(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	w, err := s.CreateWorkout(ctx, "u1", sampleWorkout())
	require.NoError(t, err)

	clock.Advance(time.Second)
	require.NoError(t, s.DeleteWorkout(ctx, "u1", w.ID))

	_, err = s.GetWorkout(ctx, "u1", w.ID)
	require.ErrorIs(t, err, ErrNotFound)

	rows, err := s.AllRows(ctx, "workouts", "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0]["deleted_at"])
	require.Equal(t, rows[0]["deleted_at"], rows[0]["updated_at"])

	exercises, err := s.AllRows(ctx, "exercises", "u1")
	require.NoError(t, err)
	require.Len(t, exercises, 2)
	for _, e := range exercises {
		require.NotNil(t, e["deleted_at"], "exercise %s should be soft-deleted", e.ID())
	}

	require.ErrorIs(t, s.DeleteWorkout(ctx, "u1", w.ID), ErrNotFound)
}

func TestScheduledOn(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.CreateWorkout(ctx, "u1", sampleWorkout()) // Mon, Thu
	require.NoError(t, err)
	legs := sampleWorkout()
	legs.Name = "Legs"
	legs.MuscleGroup = MuscleLegs
	legs.DayMask = DayMaskOf(time.Sunday)
	_, err = s.CreateWorkout(ctx, "u1", legs)
	require.NoError(t, err)

	monday, err := s.ScheduledOn(ctx, "u1", time.Monday)
	require.NoError(t, err)
	require.Len(t, monday, 1)
	require.Equal(t, "Push Day", monday[0].Name)

	sunday, err := s.ScheduledOn(ctx, "u1", time.Sunday)
	require.NoError(t, err)
	require.Len(t, sunday, 1)
	require.Equal(t, "Legs", sunday[0].Name)

	tuesday, err := s.ScheduledOn(ctx, "u1", time.Tuesday)
	require.NoError(t, err)
	require.Empty(t, tuesday)
}

func TestCompleteSession_PersistsAllLogs(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	w, err := s.CreateWorkout(ctx, "u1", sampleWorkout())
	require.NoError(t, err)
	start := clock.Now()
	se, err := s.CreateSession(ctx, "u1", w.ID, w.Name, start)
	require.NoError(t, err)
	require.Equal(t, StatusActive, se.Status)

	var logs []SetInput
	for i := 0; i < 5; i++ {
		logs = append(logs, SetInput{ExerciseID: w.Exercises[i%2].ID, Weight: 60, Reps: 8, Completed: true})
	}
	clock.Advance(45 * time.Minute)
	require.NoError(t, s.CompleteSession(ctx, "u1", se.ID, clock.Now(), 120, logs))

	full, err := s.GetSessionWithLogs(ctx, "u1", se.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, full.Status)
	require.Equal(t, 120, full.PausedDuration)
	require.NotNil(t, full.EndTime)
	require.Len(t, full.Logs, 5)
	require.Equal(t, "Bench Press", full.Logs[0].ExerciseName)

	completed, err := s.ListCompletedSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, completed, 1)

	// A completed session cannot be completed again.
	require.ErrorIs(t, s.CompleteSession(ctx, "u1", se.ID, clock.Now(), 0, nil), ErrNotFound)
}

func TestCompleteSession_IsAtomic(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	w, err := s.CreateWorkout(ctx, "u1", sampleWorkout())
	require.NoError(t, err)
	se, err := s.CreateSession(ctx, "u1", w.ID, w.Name, clock.Now())
	require.NoError(t, err)

	logs := []SetInput{
		{ExerciseID: w.Exercises[0].ID, Weight: 50, Reps: 10},
		{ExerciseID: w.Exercises[1].ID, Weight: 0, Reps: 12},
		{ExerciseID: "missing-exercise", Weight: 20, Reps: 5}, // violates the foreign key
	}
	err = s.CompleteSession(ctx, "u1", se.ID, clock.Now(), 0, logs)
	require.Error(t, err)

	full, err := s.GetSessionWithLogs(ctx, "u1", se.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, full.Status)
	require.Empty(t, full.Logs)

	// Invalid input is rejected before anything is written.
	err = s.CompleteSession(ctx, "u1", se.ID, clock.Now(), 0, []SetInput{{ExerciseID: w.Exercises[0].ID, Weight: -1}})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestAbandonSession(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	w, err := s.CreateWorkout(ctx, "u1", sampleWorkout())
	require.NoError(t, err)
	se, err := s.CreateSession(ctx, "u1", w.ID, w.Name, clock.Now())
	require.NoError(t, err)

	require.NoError(t, s.AbandonSession(ctx, "u1", se.ID))
	_, err = s.GetSession(ctx, "u1", se.ID)
	require.ErrorIs(t, err, ErrNotFound)

	rows, err := s.AllRows(ctx, "sessions", "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, string(StatusAbandoned), rows[0].String("status"))
}

func TestProgressPhotosAndWeights(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	_, err := s.SaveProgressPhoto(ctx, "u1", "", clock.Now(), "", "", "")
	require.ErrorIs(t, err, ErrInvalid)

	older, err := s.SaveProgressPhoto(ctx, "u1", "file:///photos/1.jpg", clock.Now().Add(-24*time.Hour), "day one", "", "")
	require.NoError(t, err)
	newer, err := s.SaveProgressPhoto(ctx, "u1", "file:///photos/2.jpg", clock.Now(), "", "", "")
	require.NoError(t, err)

	photos, err := s.ListProgressPhotos(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, photos, 2)
	require.Equal(t, newer.ID, photos[0].ID)
	require.Equal(t, "day one", photos[1].Note)

	require.NoError(t, s.DeleteProgressPhoto(ctx, "u1", older.ID))
	photos, err = s.ListProgressPhotos(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, photos, 1)

	for i := 0; i < WeightHistoryLimit+5; i++ {
		_, err := s.SaveWeight(ctx, "u1", 80+float64(i)/10, clock.Now().Add(time.Duration(i)*24*time.Hour))
		require.NoError(t, err)
	}
	history, err := s.WeightHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, WeightHistoryLimit)
	require.InDelta(t, 83.4, history[0].Weight, 0.001)

	require.NoError(t, s.DeleteWeight(ctx, "u1", history[0].ID))
	history, err = s.WeightHistory(ctx, "u1")
	require.NoError(t, err)
	require.InDelta(t, 83.3, history[0].Weight, 0.001)

	_, err = s.SaveWeight(ctx, "u1", 0, clock.Now())
	require.ErrorIs(t, err, ErrInvalid)
}

func TestOnChangeFiresForMutations(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	var mu sync.Mutex
	var calls []string
	s.OnChange(func(userID string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, userID)
	})

	w, err := s.CreateWorkout(ctx, "u1", sampleWorkout())
	require.NoError(t, err)
	_, err = s.SaveWeight(ctx, "u1", 81, clock.Now())
	require.NoError(t, err)
	require.NoError(t, s.DeleteWorkout(ctx, "u1", w.ID))

	// Failed writes do not notify.
	_, err = s.CreateWorkout(ctx, "u1", WorkoutInput{})
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"u1", "u1", "u1"}, calls)
}

func TestPurgeAll(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	w, err := s.CreateWorkout(ctx, "u1", sampleWorkout())
	require.NoError(t, err)
	se, err := s.CreateSession(ctx, "u1", w.ID, w.Name, clock.Now())
	require.NoError(t, err)
	require.NoError(t, s.CompleteSession(ctx, "u1", se.ID, clock.Now(), 0,
		[]SetInput{{ExerciseID: w.Exercises[0].ID, Weight: 40, Reps: 10}}))
	_, err = s.SaveWeight(ctx, "u1", 80, clock.Now())
	require.NoError(t, err)

	require.NoError(t, s.PurgeAll(ctx))
	for _, table := range SyncTables {
		var n int
		require.NoError(t, s.DB().QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table.Name)).Scan(&n))
		require.Zero(t, n, "table %s should be empty", table.Name)
	}
}

func TestDayMask(t *testing.T) {
	require.Equal(t, DayMask(1), DayMaskOf(time.Monday))
	require.Equal(t, DayMask(64), DayMaskOf(time.Sunday))
	require.Equal(t, MaxDayMask, DayMaskOf(time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday))

	m := DayMaskOf(time.Wednesday).With(time.Saturday)
	require.True(t, m.Has(time.Wednesday))
	require.True(t, m.Has(time.Saturday))
	require.False(t, m.Has(time.Sunday))
	require.Equal(t, []time.Weekday{time.Wednesday, time.Saturday}, m.Days())
	require.Equal(t, "Wed,Sat", m.String())
	require.Equal(t, DayMaskOf(time.Saturday), m.Without(time.Wednesday))

	require.True(t, DayMask(0).Valid())
	require.True(t, MaxDayMask.Valid())
	require.False(t, DayMask(128).Valid())
	require.False(t, DayMask(-1).Valid())
}
