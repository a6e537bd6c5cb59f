package metrics

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/syncer"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	ctx := context.Background()

	c.ObservePass(ctx, syncer.PassTiming{Operation: syncer.MetricsOpPush, Table: "workouts", Rows: 3, Failed: 1})
	c.ObservePass(ctx, syncer.PassTiming{Operation: syncer.MetricsOpPush, Table: syncer.MetricsTableAll, Duration: time.Second, Error: true})
	c.ObservePass(ctx, syncer.PassTiming{Operation: syncer.MetricsOpPull, Table: "logs", Rows: 40})
	c.ObserveUpload("progress-photos", true)
	c.ObserveUpload("progress-photos", false)
	c.ObserveRequest("rest", http.StatusOK, 20*time.Millisecond)
	c.ObserveUpsert("workouts", "applied")

	require.Equal(t, 3.0, testutil.ToFloat64(c.syncRows.WithLabelValues("push", "workouts")))
	require.Equal(t, 40.0, testutil.ToFloat64(c.syncRows.WithLabelValues("pull", "logs")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.syncFailures.WithLabelValues("push", "workouts")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.passErrors.WithLabelValues("push")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.mediaUploads.WithLabelValues("progress-photos", "failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("rest", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.serverUpserts.WithLabelValues("workouts", "applied")))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
