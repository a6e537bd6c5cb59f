// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package remote is the client side of the remote row store: the interface the
// sync layer talks to, the conflict policy both ends apply, and its HTTP and
// in-memory implementations.
package remote

import (
	"context"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
)

// Store is the remote table surface. Rows are addressed by their id column.
type Store interface {
	// Upsert inserts the row or overwrites the stored row with the same id,
	// subject to the conflict policy.
	Upsert(ctx context.Context, table string, row localdb.Row) error
	// SelectByUser returns every row in table owned by userID, soft-deleted ones included.
	SelectByUser(ctx context.Context, table, userID string) ([]localdb.Row, error)
}

// ConflictPolicy decides whether an incoming row replaces the stored one.
type ConflictPolicy interface {
	Name() string
	Accept(stored, incoming localdb.Row) bool
}

type lastWriteWins struct{}

// RowLastWriteWins is the conflict policy of the sync protocol: the row with
// the later updated_at replaces the whole stored row. Fields are never merged,
// so concurrent edits of different fields on two devices lose one side.
// Equal stamps are accepted so re-pushing an unchanged row is idempotent.
var RowLastWriteWins ConflictPolicy = lastWriteWins{}

func (lastWriteWins) Name() string { return "timestamp-based, row-granularity, no field merge" }

func (lastWriteWins) Accept(stored, incoming localdb.Row) bool {
	if stored == nil {
		return true
	}
	return incoming.UpdatedAt() >= stored.UpdatedAt()
}

// Winner returns the row that p keeps when incoming meets stored.
func Winner(p ConflictPolicy, stored, incoming localdb.Row) localdb.Row {
	if p.Accept(stored, incoming) {
		return incoming
	}
	return stored
}
