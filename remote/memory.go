// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
)

var (
	// ErrOwnerMismatch is returned when a row id already belongs to another user.
	ErrOwnerMismatch = errors.New("row belongs to another user")
	// ErrStaleRow is returned when the remote kept a newer version of the row.
	ErrStaleRow = errors.New("remote holds a newer version of the row")
)

// MemoryStore is an in-process Store applying the same conflict policy as the
// backend. Tests use it as a fake remote.
type MemoryStore struct {
	mu      sync.Mutex
	tables  map[string]map[string]localdb.Row
	upserts map[string]int
	policy  ConflictPolicy

	// FailUpsert, when set, is consulted before every upsert; a non-nil
	// error is returned as the remote failure.
	FailUpsert func(table string, row localdb.Row) error
	// FailSelect is the same hook for SelectByUser.
	FailSelect func(table, userID string) error
}

// NewMemoryStore returns an empty store using RowLastWriteWins.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:  make(map[string]map[string]localdb.Row),
		upserts: make(map[string]int),
		policy:  RowLastWriteWins,
	}
}

func (m *MemoryStore) Upsert(_ context.Context, table string, row localdb.Row) error {
	if m.FailUpsert != nil {
		if err := m.FailUpsert(table, row); err != nil {
			return err
		}
	}
	id := row.ID()
	if id == "" {
		return fmt.Errorf("row without id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		t = make(map[string]localdb.Row)
		m.tables[table] = t
	}
	stored := t[id]
	if stored != nil && stored.UserID() != row.UserID() {
		return ErrOwnerMismatch
	}
	m.upserts[table]++
	if !m.policy.Accept(stored, row) {
		return ErrStaleRow
	}
	t[id] = copyRow(row)
	return nil
}

func (m *MemoryStore) SelectByUser(_ context.Context, table, userID string) ([]localdb.Row, error) {
	if m.FailSelect != nil {
		if err := m.FailSelect(table, userID); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []localdb.Row
	for _, r := range m.tables[table] {
		if r.UserID() == userID {
			out = append(out, copyRow(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// Get returns a copy of the stored row, or nil.
func (m *MemoryStore) Get(table, id string) localdb.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.tables[table][id]; ok {
		return copyRow(r)
	}
	return nil
}

// Count returns the number of rows stored in table.
func (m *MemoryStore) Count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

// Upserts returns how many upserts table received, accepted or not.
func (m *MemoryStore) Upserts(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts[table]
}

// Seed stores rows directly, bypassing the policy.
func (m *MemoryStore) Seed(table string, rows ...localdb.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		t = make(map[string]localdb.Row)
		m.tables[table] = t
	}
	for _, r := range rows {
		t[r.ID()] = copyRow(r)
	}
}

func copyRow(r localdb.Row) localdb.Row {
	out := make(localdb.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
