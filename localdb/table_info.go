// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

type tableInfoQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ColumnInfo describes one column as reported by PRAGMA table_info.
type ColumnInfo struct {
	Name         string
	DeclaredType string
	NotNull      bool
	IsPrimaryKey bool
}

// TableInfo is the cached column layout of a table.
type TableInfo struct {
	Table   string
	Columns []ColumnInfo
	byName  map[string]ColumnInfo
}

// Has reports whether the table has a column named name (case-insensitive).
func (t *TableInfo) Has(name string) bool {
	_, ok := t.byName[strings.ToLower(name)]
	return ok
}

// ColumnNames returns the column names in declaration order.
func (t *TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// TableInfoProvider caches table layouts. The schema only changes through
// Migrate, which runs before any provider lookup.
type TableInfoProvider struct {
	cache map[string]*TableInfo
	mutex sync.RWMutex
}

// NewTableInfoProvider creates an empty provider.
func NewTableInfoProvider() *TableInfoProvider {
	return &TableInfoProvider{cache: make(map[string]*TableInfo)}
}

// Get returns the layout of tableName, reading it once per provider.
func (p *TableInfoProvider) Get(ctx context.Context, q tableInfoQueryer, tableName string) (*TableInfo, error) {
	key := strings.ToLower(tableName)

	p.mutex.RLock()
	if info, ok := p.cache[key]; ok {
		p.mutex.RUnlock()
		return info, nil
	}
	p.mutex.RUnlock()

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if info, ok := p.cache[key]; ok {
		return info, nil
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", key))
	if err != nil {
		return nil, fmt.Errorf("failed to get table info for %s: %w", tableName, err)
	}
	defer rows.Close()

	info := &TableInfo{Table: key, byName: make(map[string]ColumnInfo)}
	for rows.Next() {
		var cid, notNull, pk int
		var name, declaredType string
		var defaultValue sql.NullString
		if err := rows.Scan(&cid, &name, &declaredType, &notNull, &defaultValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		col := ColumnInfo{Name: name, DeclaredType: declaredType, NotNull: notNull == 1, IsPrimaryKey: pk == 1}
		info.Columns = append(info.Columns, col)
		info.byName[strings.ToLower(name)] = col
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	if len(info.Columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist", tableName)
	}

	p.cache[key] = info
	return info, nil
}
