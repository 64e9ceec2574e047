// Package postgres stores the trigger audit trail in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tjfontaine/workflow-gateway/internal/storage"
)

const queryTimeout = 5 * time.Second

// Store is a PostgreSQL implementation of AuditStore
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.AuditStore = (*Store)(nil)

// New connects to dsn, verifies the connection and creates the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS workflow_triggers (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			request_id TEXT,
			slug TEXT NOT NULL,
			user_id TEXT,
			user_name TEXT NOT NULL,
			outcome TEXT NOT NULL,
			remote_status INTEGER,
			response_status INTEGER NOT NULL,
			duration_ms BIGINT NOT NULL,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_triggers_slug ON workflow_triggers(slug)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_triggers_created ON workflow_triggers(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RecordTrigger(ctx context.Context, rec *storage.TriggerRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("trigger record requires an id")
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO workflow_triggers
			(id, request_id, slug, user_id, user_name, outcome, remote_status, response_status, duration_ms, error, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NULLIF($7, 0), $8, $9, NULLIF($10, ''), $11)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.RequestID, rec.Slug, rec.UserID, rec.UserName, rec.Outcome,
		rec.RemoteStatus, rec.ResponseStatus, rec.DurationMS, rec.Error, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record trigger: %w", err)
	}
	return nil
}

func (s *Store) ListTriggers(ctx context.Context, limit int) ([]*storage.TriggerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, COALESCE(request_id, ''), slug, user_id, user_name, outcome,
			COALESCE(remote_status, 0), response_status, duration_ms, COALESCE(error, ''), created_at
		FROM workflow_triggers
		ORDER BY seq DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*storage.TriggerRecord, error) {
		var rec storage.TriggerRecord
		err := row.Scan(&rec.ID, &rec.RequestID, &rec.Slug, &rec.UserID, &rec.UserName, &rec.Outcome,
			&rec.RemoteStatus, &rec.ResponseStatus, &rec.DurationMS, &rec.Error, &rec.CreatedAt)
		return &rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan triggers: %w", err)
	}
	return records, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
