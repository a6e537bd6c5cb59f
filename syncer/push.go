// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/media"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/remote"
)

type rowOutcome int

const (
	rowSynced rowOutcome = iota
	// rowDeferred rows reached the remote but still carry a local media
	// reference, so they stay dirty for the next pass.
	rowDeferred
	// rowStale rows were refused because the remote keeps a newer version.
	// They are marked synced and the newer version arrives with a pull.
	rowStale
	rowFailed
)

// heldRows tracks rows that did not reach the remote during a pass. A child
// row referencing one of them stays dirty until its parent is pushed.
type heldRows struct {
	ids    map[string]map[string]bool
	tables map[string]bool // dirty scan failed, every row is unknown
}

func newHeldRows() *heldRows {
	return &heldRows{ids: make(map[string]map[string]bool), tables: make(map[string]bool)}
}

func (h *heldRows) hold(table, id string) {
	if h.ids[table] == nil {
		h.ids[table] = make(map[string]bool)
	}
	h.ids[table][id] = true
}

// blockedBy returns the first held parent of row, or "" when none.
func (h *heldRows) blockedBy(table localdb.SyncTable, row localdb.Row) string {
	for _, p := range table.Parents {
		if h.tables[p.Table] {
			return p.Table
		}
		if id := row.String(p.Column); id != "" && h.ids[p.Table][id] {
			return p.Table + "." + id
		}
	}
	return ""
}

// PushChanges uploads every dirty row of userID, parents first. It is a no-op
// unless the signed-in user is exactly userID. A failing row is logged and
// left dirty; the pass moves on. Rows whose parent failed in the same pass
// are held back so the remote never holds a child without its parent. When
// the remote refused any row as stale, a pull follows the pass. The returned
// error only reports tables that could not be scanned.
func (s *Syncer) PushChanges(ctx context.Context, userID string) error {
	if atomic.LoadInt32(&s.pushPaused) == 1 {
		return nil
	}
	if !s.authorized(ctx, MetricsOpPush, userID) {
		return nil
	}

	stale, err := s.push(ctx, userID)
	if stale > 0 {
		if perr := s.PullData(ctx, userID); perr != nil {
			s.logger.Warn("Pull after stale push failed", "user_id", userID, "stale", stale, "error", perr)
		}
	}
	return err
}

func (s *Syncer) push(ctx context.Context, userID string) (int, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	passStart := s.clock()
	var errs []error
	pushed, failed, stale := 0, 0, 0
	held := newHeldRows()
	for _, table := range s.config.Tables {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		tableStart := s.clock()
		rows, err := s.local.DirtyRows(ctx, table.Name, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to scan dirty rows of %s: %w", table.Name, err))
			held.tables[table.Name] = true
			s.observe(ctx, MetricsOpPush, table.Name, tableStart, 0, 0, true)
			continue
		}
		tablePushed, tableFailed := 0, 0
		for _, row := range rows {
			if parent := held.blockedBy(table, row); parent != "" {
				s.logger.Debug("Row held back until its parent is pushed",
					"table", table.Name, "id", row.ID(), "parent", parent)
				held.hold(table.Name, row.ID())
				tableFailed++
				continue
			}
			switch s.pushRow(ctx, table, userID, row) {
			case rowSynced:
				tablePushed++
			case rowDeferred:
				tablePushed++
				tableFailed++
			case rowStale:
				stale++
			case rowFailed:
				held.hold(table.Name, row.ID())
				tableFailed++
			}
		}
		pushed += tablePushed
		failed += tableFailed
		s.observe(ctx, MetricsOpPush, table.Name, tableStart, tablePushed, tableFailed, false)
	}

	err := errors.Join(errs...)
	s.observe(ctx, MetricsOpPush, MetricsTableAll, passStart, pushed, failed, err != nil)
	if err == nil && s.cache != nil {
		if cerr := s.cache.SetLastPush(ctx, s.clock()); cerr != nil {
			s.logger.Warn("Failed to record last push time", "error", cerr)
		}
	}
	if pushed > 0 || failed > 0 || stale > 0 {
		s.logger.Info("Push pass finished", "user_id", userID, "pushed", pushed, "failed", failed, "stale", stale)
	}
	return stale, err
}

func (s *Syncer) pushRow(ctx context.Context, table localdb.SyncTable, userID string, row localdb.Row) rowOutcome {
	id := row.ID()
	pushedUpdatedAt := row.UpdatedAt()

	pendingMedia := false
	for _, mc := range table.Media {
		ref := row.String(mc.Column)
		if !media.IsLocal(ref) {
			continue
		}
		if s.media == nil {
			pendingMedia = true
			continue
		}
		url, ok := s.media.Upload(ctx, ref, userID, mc.Bucket)
		if !ok {
			pendingMedia = true
			continue
		}
		if err := s.local.RewriteMedia(ctx, table.Name, mc.Column, id, url); err != nil {
			s.logger.Warn("Failed to rewrite media reference",
				"table", table.Name, "id", id, "column", mc.Column, "error", err)
			pendingMedia = true
			continue
		}
		row[mc.Column] = url
	}

	// synced_at is local bookkeeping only.
	delete(row, "synced_at")
	err := s.remote.Upsert(ctx, table.Name, row)
	if errors.Is(err, remote.ErrStaleRow) {
		s.logger.Info("Remote kept a newer version of row", "table", table.Name, "id", id)
		if _, err := s.local.MarkSynced(ctx, table.Name, id, pushedUpdatedAt, localdb.FormatTime(s.clock())); err != nil {
			s.logger.Warn("Failed to mark row synced", "table", table.Name, "id", id, "error", err)
			return rowFailed
		}
		return rowStale
	}
	if err != nil {
		s.logger.Warn("Failed to push row", "table", table.Name, "id", id, "error", err)
		return rowFailed
	}
	if pendingMedia {
		s.logger.Info("Row pushed with local media reference, will retry upload",
			"table", table.Name, "id", id)
		return rowDeferred
	}

	marked, err := s.local.MarkSynced(ctx, table.Name, id, pushedUpdatedAt, localdb.FormatTime(s.clock()))
	if err != nil {
		s.logger.Warn("Failed to mark row synced", "table", table.Name, "id", id, "error", err)
		return rowFailed
	}
	if !marked {
		s.logger.Debug("Row changed during push, left dirty", "table", table.Name, "id", id)
	}
	return rowSynced
}
