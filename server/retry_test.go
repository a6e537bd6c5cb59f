package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestRetryTx(t *testing.T) {
	ctx := context.Background()
	deadlock := fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "40P01"})

	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		err := retryTx(ctx, 5, time.Millisecond, slog.Default(), func() error {
			calls++
			if calls < 3 {
				return deadlock
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		calls := 0
		err := retryTx(ctx, 2, time.Millisecond, slog.Default(), func() error {
			calls++
			return deadlock
		})
		require.ErrorIs(t, err, deadlock)
		require.Equal(t, 2, calls)
	})

	t.Run("other errors return at once", func(t *testing.T) {
		calls := 0
		unique := &pgconn.PgError{Code: "23505"}
		err := retryTx(ctx, 5, time.Millisecond, slog.Default(), func() error {
			calls++
			return unique
		})
		require.ErrorIs(t, err, unique)
		require.Equal(t, 1, calls)

		err = retryTx(ctx, 5, time.Millisecond, slog.Default(), func() error { return ErrOwnerMismatch })
		require.True(t, errors.Is(err, ErrOwnerMismatch))
	})

	t.Run("cancelled context stops backoff", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := retryTx(cctx, 5, time.Hour, slog.Default(), func() error { return deadlock })
		require.ErrorIs(t, err, context.Canceled)
	})
}
