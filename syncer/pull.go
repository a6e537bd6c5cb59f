// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
)

// PullData fetches every remote row of userID and merges it into the local
// database, parents first, remote winning. Each table merges atomically; the
// first failing table stops the pull and earlier tables stay merged.
// Concurrent calls for the same user share one pull.
func (s *Syncer) PullData(ctx context.Context, userID string) error {
	if atomic.LoadInt32(&s.pullPaused) == 1 {
		return nil
	}
	if !s.authorized(ctx, MetricsOpPull, userID) {
		return nil
	}
	_, err, shared := s.pulls.Do(userID, func() (any, error) {
		return nil, s.pull(ctx, userID)
	})
	if shared {
		s.logger.Debug("Pull shared with concurrent caller", "user_id", userID)
	}
	return err
}

func (s *Syncer) pull(ctx context.Context, userID string) error {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	passStart := s.clock()
	now := localdb.FormatTime(passStart)
	total := 0
	for _, table := range s.config.Tables {
		tableStart := s.clock()
		rows, err := s.remote.SelectByUser(ctx, table.Name, userID)
		if err != nil {
			s.logger.Error("Pull stopped: failed to fetch remote rows", "table", table.Name, "user_id", userID, "error", err)
			s.observe(ctx, MetricsOpPull, table.Name, tableStart, 0, 0, true)
			s.observe(ctx, MetricsOpPull, MetricsTableAll, passStart, total, 0, true)
			return fmt.Errorf("failed to fetch %s: %w", table.Name, err)
		}
		n, err := s.local.MergeRemote(ctx, table.Name, userID, rows, now)
		if err != nil {
			s.logger.Error("Pull stopped: failed to merge remote rows", "table", table.Name, "user_id", userID, "error", err)
			s.observe(ctx, MetricsOpPull, table.Name, tableStart, 0, len(rows), true)
			s.observe(ctx, MetricsOpPull, MetricsTableAll, passStart, total, 0, true)
			return fmt.Errorf("failed to merge %s: %w", table.Name, err)
		}
		total += n
		s.observe(ctx, MetricsOpPull, table.Name, tableStart, n, 0, false)
	}

	s.observe(ctx, MetricsOpPull, MetricsTableAll, passStart, total, 0, false)
	if s.cache != nil {
		if err := s.cache.SetLastPull(ctx, s.clock()); err != nil {
			s.logger.Warn("Failed to record last pull time", "error", err)
		}
	}
	s.logger.Info("Pull finished", "user_id", userID, "rows", total)
	return nil
}
