// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/remote"
)

var (
	ErrUnknownTable  = errors.New("table is not registered for sync")
	ErrInvalidRow    = errors.New("invalid row")
	ErrOwnerMismatch = remote.ErrOwnerMismatch
	ErrServiceClosed = errors.New("row service has been closed")
)

// Upsert outcomes reported to the metrics recorder.
const (
	UpsertApplied  = "applied"
	UpsertStale    = "stale"
	UpsertRejected = "rejected"
)

// UpsertRecorder observes upsert outcomes.
type UpsertRecorder interface {
	ObserveUpsert(table, result string)
}

// ServiceConfig holds configuration for the row service
type ServiceConfig struct {
	AppName          string
	RegisteredTables []string // tables accepted by Upsert and SelectByUser
	MaxRowBytes      int      // 0 = unlimited
	MaxAttempts      int      // transaction attempts on serialization/deadlock errors
	Metrics          UpsertRecorder
}

// Service stores the latest version of every synced row per user in
// Postgres and applies the row conflict policy on upsert.
type Service struct {
	pool       *pgxpool.Pool
	logger     *slog.Logger
	config     *ServiceConfig
	registered map[string]bool

	mu     sync.RWMutex
	closed bool
}

// NewService creates the service and initializes its schema in one
// transaction. The caller owns the pool.
func NewService(ctx context.Context, pool *pgxpool.Pool, config *ServiceConfig, logger *slog.Logger) (*Service, error) {
	if config == nil {
		config = &ServiceConfig{AppName: "gymsync"}
	}
	if len(config.RegisteredTables) == 0 {
		for _, t := range localdb.SyncTables {
			config.RegisteredTables = append(config.RegisteredTables, t.Name)
		}
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		pool:       pool,
		logger:     logger,
		config:     config,
		registered: make(map[string]bool, len(config.RegisteredTables)),
	}
	for _, t := range config.RegisteredTables {
		s.registered[t] = true
	}

	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return initializeSchemaInTx(ctx, tx)
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize row service: %w", err)
	}
	logger.Debug("Row service schema initialized", "tables", len(s.registered))
	return s, nil
}

func initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	migrations := []string{
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS gymsync`,

		// Latest accepted version of each row. updated_at uses the fixed
		// millisecond UTC layout so text order is time order.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS gymsync.remote_rows (
			table_name  TEXT        NOT NULL,
			id          TEXT        NOT NULL,
			user_id     TEXT        NOT NULL,
			updated_at  TEXT        NOT NULL,
			payload     JSONB       NOT NULL,
			received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (table_name, id)
		)`,
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS remote_rows_user_table_idx
			ON gymsync.remote_rows (user_id, table_name, id)`,
	}
	for _, m := range migrations {
		if _, err := tx.Exec(ctx, m); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close marks the service closed. It does not close the pool.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Pool returns the underlying database connection pool
func (s *Service) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping checks database connectivity.
func (s *Service) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// IsTableRegistered reports whether table accepts rows.
func (s *Service) IsTableRegistered(table string) bool {
	return s.registered[table]
}

func (s *Service) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}
	return nil
}

func (s *Service) observe(table, result string) {
	if s.config.Metrics != nil {
		s.config.Metrics.ObserveUpsert(table, result)
	}
}

// prepareRow validates row for userID and returns its canonical updated_at
// and JSON payload. synced_at is client bookkeeping and is not stored.
func (s *Service) prepareRow(userID, table string, row localdb.Row) (string, []byte, error) {
	if !s.registered[table] {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if row.ID() == "" {
		return "", nil, fmt.Errorf("%w: missing id", ErrInvalidRow)
	}
	if row.UserID() != userID {
		return "", nil, fmt.Errorf("%w: user_id does not match the authenticated user", ErrInvalidRow)
	}
	updated, err := localdb.ParseTime(row.UpdatedAt())
	if err != nil {
		return "", nil, fmt.Errorf("%w: bad updated_at: %v", ErrInvalidRow, err)
	}
	updatedAt := localdb.FormatTime(updated)

	clean := make(localdb.Row, len(row))
	for k, v := range row {
		if k != "synced_at" {
			clean[k] = v
		}
	}
	clean["updated_at"] = updatedAt
	payload, err := json.Marshal(clean)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	if s.config.MaxRowBytes > 0 && len(payload) > s.config.MaxRowBytes {
		return "", nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrInvalidRow, len(payload), s.config.MaxRowBytes)
	}
	return updatedAt, payload, nil
}

// Upsert stores row for userID unless the stored version is newer. It
// reports whether the row was applied; a stale row is accepted without
// effect so client retries stay idempotent. A row id owned by another user
// is rejected with ErrOwnerMismatch.
func (s *Service) Upsert(ctx context.Context, userID, table string, row localdb.Row) (bool, error) {
	if err := s.checkClosed(); err != nil {
		return false, err
	}
	updatedAt, payload, err := s.prepareRow(userID, table, row)
	if err != nil {
		s.observe(table, UpsertRejected)
		return false, err
	}

	var applied bool
	logger := s.logger.With("table", table, "id", row.ID())
	err = retryTx(ctx, s.config.MaxAttempts, 25*time.Millisecond, logger, func() error {
		var txErr error
		applied, txErr = s.upsertOnce(ctx, userID, table, row.ID(), updatedAt, payload)
		return txErr
	})
	switch {
	case errors.Is(err, ErrOwnerMismatch):
		s.observe(table, UpsertRejected)
		return false, err
	case err != nil:
		return false, fmt.Errorf("failed to upsert %s %s: %w", table, row.ID(), err)
	case applied:
		s.observe(table, UpsertApplied)
	default:
		s.observe(table, UpsertStale)
	}
	return applied, nil
}

func (s *Service) upsertOnce(ctx context.Context, userID, table, id, updatedAt string, payload []byte) (bool, error) {
	var applied bool
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		_, _ = tx.Exec(ctx, "SET LOCAL lock_timeout = '3s'")

		var owner string
		err := tx.QueryRow(ctx,
			`SELECT user_id FROM gymsync.remote_rows WHERE table_name = $1 AND id = $2 FOR UPDATE`,
			table, id).Scan(&owner)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return err
		case owner != userID:
			return ErrOwnerMismatch
		}

		// The WHERE clause is the row last-write-wins rule: equal stamps
		// re-apply, older stamps are ignored.
		tag, err := tx.Exec(ctx, `
			INSERT INTO gymsync.remote_rows (table_name, id, user_id, updated_at, payload)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (table_name, id) DO UPDATE
			SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at, received_at = now()
			WHERE gymsync.remote_rows.updated_at <= EXCLUDED.updated_at
			  AND gymsync.remote_rows.user_id = EXCLUDED.user_id`,
			table, id, userID, updatedAt, payload)
		if err != nil {
			return err
		}
		applied = tag.RowsAffected() == 1
		return nil
	})
	return applied, err
}

// SelectByUser returns the stored payloads of userID's rows in table,
// ordered by id.
func (s *Service) SelectByUser(ctx context.Context, userID, table string) ([]json.RawMessage, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if !s.registered[table] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM gymsync.remote_rows WHERE user_id = $1 AND table_name = $2 ORDER BY id`,
		userID, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s rows: %w", table, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (json.RawMessage, error) {
		var payload []byte
		if err := row.Scan(&payload); err != nil {
			return nil, err
		}
		return json.RawMessage(payload), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", table, err)
	}
	return out, nil
}
