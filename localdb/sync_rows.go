// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Row is a full table row keyed by column name, as exchanged with the remote store.
type Row map[string]any

// String returns the column value as a string, or "" when absent or NULL.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// ID returns the primary key.
func (r Row) ID() string { return r.String("id") }

// UserID returns the owning user.
func (r Row) UserID() string { return r.String("user_id") }

// UpdatedAt returns the row's last local modification stamp.
func (r Row) UpdatedAt() string { return r.String("updated_at") }

// MediaColumn names a column holding a media reference and the bucket it is
// externalized to.
type MediaColumn struct {
	Column string
	Bucket string
}

const (
	BucketProgressPhotos = "progress-photos"
	BucketWorkoutMedia   = "workout-media"
)

// ParentRef is a foreign key column of a synchronized table.
type ParentRef struct {
	Column string
	Table  string
}

// SyncTable describes one synchronized table.
type SyncTable struct {
	Name    string
	Media   []MediaColumn
	Parents []ParentRef
}

// SyncTables lists synchronized tables parents first. Push and pull walk it in
// this order so a child never reaches the remote before its parent.
var SyncTables = []SyncTable{
	{Name: "workouts", Media: []MediaColumn{{"image_uri", BucketWorkoutMedia}, {"video_uri", BucketWorkoutMedia}}},
	{
		Name:    "exercises",
		Media:   []MediaColumn{{"image_uri", BucketWorkoutMedia}, {"video_uri", BucketWorkoutMedia}},
		Parents: []ParentRef{{"workout_id", "workouts"}},
	},
	{Name: "sessions", Parents: []ParentRef{{"workout_id", "workouts"}}},
	{Name: "logs", Parents: []ParentRef{{"session_id", "sessions"}, {"exercise_id", "exercises"}}},
	{Name: "progress_photos", Media: []MediaColumn{{"uri", BucketProgressPhotos}}},
	{Name: "weight_logs"},
}

// IsSyncTable reports whether name is a synchronized table.
func IsSyncTable(name string) bool {
	for _, t := range SyncTables {
		if t.Name == name {
			return true
		}
	}
	return false
}

// DirtyRows returns the user's rows in table that were never synced or were
// modified after their last sync, soft-deleted rows included.
func (s *Store) DirtyRows(ctx context.Context, table, userID string) ([]Row, error) {
	if !IsSyncTable(table) {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT * FROM %s WHERE user_id = ? AND (synced_at IS NULL OR updated_at > synced_at)`, table),
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan dirty rows in %s: %w", table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// AllRows returns every row the user owns in table. Used by diagnostics and tests.
func (s *Store) AllRows(ctx context.Context, table, userID string) ([]Row, error) {
	if !IsSyncTable(table) {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s WHERE user_id = ? ORDER BY id`, table), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// MarkSynced stamps synced_at after the remote accepted the row as it was at
// pushedUpdatedAt. If the row changed locally in the meantime it stays dirty.
// The stamp never falls behind updated_at, so rows carrying a future
// updated_at from a skewed clock do not stay dirty forever.
func (s *Store) MarkSynced(ctx context.Context, table, id, pushedUpdatedAt, now string) (bool, error) {
	if !IsSyncTable(table) {
		return false, fmt.Errorf("unknown table %q", table)
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET synced_at = CASE WHEN ? > updated_at THEN ? ELSE updated_at END
			WHERE id = ? AND updated_at = ?`, table),
		now, now, id, pushedUpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark %s %s synced: %w", table, id, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// RewriteMedia replaces a local media reference with its remote URL without
// touching updated_at, so the rewrite alone never makes a row dirty.
func (s *Store) RewriteMedia(ctx context.Context, table, column, id, url string) error {
	if !isMediaColumn(table, column) {
		return fmt.Errorf("%s.%s is not a media column", table, column)
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = ? WHERE id = ?`, table, column), url, id); err != nil {
		return fmt.Errorf("failed to rewrite %s.%s for %s: %w", table, column, id, err)
	}
	return nil
}

// LookupSyncTable returns the description of a synchronized table.
func LookupSyncTable(name string) (SyncTable, bool) {
	for _, t := range SyncTables {
		if t.Name == name {
			return t, true
		}
	}
	return SyncTable{}, false
}

func isMediaColumn(table, column string) bool {
	for _, t := range SyncTables {
		if t.Name != table {
			continue
		}
		for _, m := range t.Media {
			if m.Column == column {
				return true
			}
		}
	}
	return false
}

// MergeRemote upserts rows fetched from the remote store for userID into table
// inside one transaction. Remote values overwrite local ones column by column;
// columns unknown locally are dropped. Every merged row gets
// synced_at = max(now, updated_at) on both the insert and the update path, so
// it is clean right after the pull. Rows owned by another user and rows
// whose parent row is missing locally are skipped, so one orphan cannot
// void the whole table.
func (s *Store) MergeRemote(ctx context.Context, table, userID string, rows []Row, now string) (int, error) {
	st, ok := LookupSyncTable(table)
	if !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	info, err := s.tableInfo.Get(ctx, s.db, table)
	if err != nil {
		return 0, err
	}

	merged := 0
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		// Parent rows of the same batch may arrive after their children.
		if _, err := tx.ExecContext(ctx, `PRAGMA defer_foreign_keys = ON`); err != nil {
			return fmt.Errorf("failed to defer foreign keys: %w", err)
		}
		for _, row := range rows {
			if row.ID() == "" {
				s.logger.Warn("Skipping remote row without id", "table", table)
				continue
			}
			if row.UserID() != userID {
				s.logger.Warn("Skipping remote row owned by another user", "table", table, "id", row.ID())
				continue
			}
			missing, err := missingParent(ctx, tx, st, row)
			if err != nil {
				return err
			}
			if missing != "" {
				s.logger.Warn("Skipping remote row with missing parent",
					"table", table, "id", row.ID(), "parent", missing)
				continue
			}
			query, args := buildMergeStatement(table, info, row, LaterStamp(now, row.UpdatedAt()))
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to merge %s %s: %w", table, row.ID(), err)
			}
			merged++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return merged, nil
}

// missingParent returns "table.id" of the first parent reference of row
// that names no local row, or "" when every parent is present.
func missingParent(ctx context.Context, tx *sql.Tx, table SyncTable, row Row) (string, error) {
	for _, p := range table.Parents {
		parentID := row.String(p.Column)
		if parentID == "" {
			continue
		}
		var one int
		err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, p.Table), parentID).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return p.Table + "." + parentID, nil
		case err != nil:
			return "", fmt.Errorf("failed to look up %s %s: %w", p.Table, parentID, err)
		}
	}
	return "", nil
}

func buildMergeStatement(table string, info *TableInfo, row Row, syncedAt string) (string, []any) {
	cols := make([]string, 0, len(row))
	for col := range row {
		lc := strings.ToLower(col)
		if lc == "synced_at" || !info.Has(lc) {
			continue
		}
		cols = append(cols, lc)
	}
	sort.Strings(cols)

	args := make([]any, 0, len(cols)+1)
	placeholders := make([]string, 0, len(cols)+1)
	updates := make([]string, 0, len(cols))
	for _, c := range cols {
		args = append(args, normalizeValue(row[c]))
		placeholders = append(placeholders, "?")
		if c != "id" {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	cols = append(cols, "synced_at")
	placeholders = append(placeholders, "?")
	args = append(args, syncedAt)
	updates = append(updates, "synced_at = excluded.synced_at")

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s`,
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
	return query, args
}

// normalizeValue converts decoded JSON values into driver-friendly types.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return v
	}
}

// DirtyCounts returns the number of dirty rows per table for userID.
func (s *Store) DirtyCounts(ctx context.Context, userID string) (map[string]int, error) {
	counts := make(map[string]int, len(SyncTables))
	for _, t := range SyncTables {
		var n int
		err := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE user_id = ? AND (synced_at IS NULL OR updated_at > synced_at)`, t.Name),
			userID).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("failed to count dirty rows in %s: %w", t.Name, err)
		}
		counts[t.Name] = n
	}
	return counts, nil
}
