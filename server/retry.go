// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// retryableStates are SQLSTATEs after which the whole upsert transaction is
// run again.
var retryableStates = map[string]string{
	"40001": "serialization_failure",
	"40P01": "deadlock_detected",
	"55P03": "lock_not_available",
}

func retryableState(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	name, ok := retryableStates[pgErr.SQLState()]
	return name, ok
}

// retryTx runs fn up to attempts times while it fails with a retryable
// Postgres error, backing off linearly by step.
func retryTx(ctx context.Context, attempts int, step time.Duration, logger *slog.Logger, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		state, retry := retryableState(err)
		if err == nil || !retry || attempt >= attempts {
			return err
		}
		logger.Debug("Retrying transaction", "attempt", attempt, "sqlstate", state)
		timer := time.NewTimer(time.Duration(attempt) * step)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
