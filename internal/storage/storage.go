// Package storage defines the trigger audit trail. Records describe calls
// that already happened; nothing here is ever replayed or re-sent.
package storage

import (
	"context"
	"time"
)

// DefaultListLimit is used when ListTriggers is called with a non-positive limit.
const DefaultListLimit = 50

// MaxListLimit caps ListTriggers.
const MaxListLimit = 500

// TriggerRecord describes one resolved workflow trigger.
type TriggerRecord struct {
	ID             string    `json:"id"`
	RequestID      string    `json:"request_id,omitempty"`
	Slug           string    `json:"slug"`
	UserID         *string   `json:"user_id"`
	UserName       string    `json:"user_name"`
	Outcome        string    `json:"outcome"`
	RemoteStatus   int       `json:"remote_status,omitempty"`
	ResponseStatus int       `json:"response_status"`
	DurationMS     int64     `json:"duration_ms"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditStore persists trigger records.
type AuditStore interface {
	RecordTrigger(ctx context.Context, rec *TriggerRecord) error
	// ListTriggers returns the most recent records, newest first.
	ListTriggers(ctx context.Context, limit int) ([]*TriggerRecord, error)
	Close() error
}

// ClampLimit normalizes a caller-supplied list limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
