package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/workflow-gateway/internal/storage"
)

// Store is a SQLite implementation of AuditStore
type Store struct {
	db *sql.DB
}

var _ storage.AuditStore = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS workflow_triggers (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			request_id TEXT,
			slug TEXT NOT NULL,
			user_id TEXT,
			user_name TEXT NOT NULL,
			outcome TEXT NOT NULL,
			remote_status INTEGER,
			response_status INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			error TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_triggers_slug ON workflow_triggers(slug)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_triggers_created ON workflow_triggers(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RecordTrigger(ctx context.Context, rec *storage.TriggerRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("trigger record requires an id")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `INSERT INTO workflow_triggers
		(id, request_id, slug, user_id, user_name, outcome, remote_status, response_status, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, nullString(rec.RequestID), rec.Slug, rec.UserID, rec.UserName, rec.Outcome,
		nullInt(rec.RemoteStatus), rec.ResponseStatus, rec.DurationMS, nullString(rec.Error),
		createdAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record trigger: %w", err)
	}
	return nil
}

func (s *Store) ListTriggers(ctx context.Context, limit int) ([]*storage.TriggerRecord, error) {
	query := `SELECT id, request_id, slug, user_id, user_name, outcome, remote_status,
		response_status, duration_ms, error, created_at
		FROM workflow_triggers ORDER BY seq DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer rows.Close()

	var records []*storage.TriggerRecord
	for rows.Next() {
		var (
			rec          storage.TriggerRecord
			requestID    sql.NullString
			userID       sql.NullString
			remoteStatus sql.NullInt64
			errMsg       sql.NullString
		)
		if err := rows.Scan(&rec.ID, &requestID, &rec.Slug, &userID, &rec.UserName, &rec.Outcome,
			&remoteStatus, &rec.ResponseStatus, &rec.DurationMS, &errMsg, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.RequestID = requestID.String
		if userID.Valid {
			id := userID.String
			rec.UserID = &id
		}
		rec.RemoteStatus = int(remoteStatus.Int64)
		rec.Error = errMsg.String
		records = append(records, &rec)
	}

	return records, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
