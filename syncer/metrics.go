// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"time"
)

const (
	MetricsOpPush = "push"
	MetricsOpPull = "pull"

	// MetricsTableAll marks the timing of a whole pass.
	MetricsTableAll = "all"
)

// PassTiming describes one table (or whole pass) of a push or pull.
type PassTiming struct {
	Operation string
	Table     string
	Duration  time.Duration
	Rows      int
	Failed    int
	Error     bool
}

type PassMetricsRecorder interface {
	ObservePass(ctx context.Context, timing PassTiming)
}

type PassMetricsRecorderFunc func(ctx context.Context, timing PassTiming)

func (f PassMetricsRecorderFunc) ObservePass(ctx context.Context, timing PassTiming) {
	f(ctx, timing)
}

func (s *Syncer) observe(ctx context.Context, op, table string, start time.Time, rows, failed int, hadError bool) {
	timing := PassTiming{
		Operation: op,
		Table:     table,
		Duration:  s.clock().Sub(start),
		Rows:      rows,
		Failed:    failed,
		Error:     hadError,
	}
	if s.config.Metrics != nil {
		s.config.Metrics.ObservePass(ctx, timing)
	}
	if s.config.LogPassTimings {
		s.logger.Debug("Pass timing",
			"op", timing.Operation,
			"table", timing.Table,
			"duration", timing.Duration,
			"rows", timing.Rows,
			"failed", timing.Failed,
			"error", timing.Error,
		)
	}
}
