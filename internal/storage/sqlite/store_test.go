package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjfontaine/workflow-gateway/internal/storage"
)

func TestSQLiteStore_RecordTrigger(t *testing.T) {
	// Use in-memory SQLite with shared cache for testing
	store, err := New("file:memdb1?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	userID := "42"
	rec := &storage.TriggerRecord{
		ID:             "trig-1",
		RequestID:      "req-1",
		Slug:           "daily-report",
		UserID:         &userID,
		UserName:       "alice",
		Outcome:        "remote_error",
		RemoteStatus:   500,
		ResponseStatus: 502,
		DurationMS:     120,
		Error:          "Workflow execution failed",
		CreatedAt:      time.Now(),
	}

	if err := store.RecordTrigger(context.Background(), rec); err != nil {
		t.Fatalf("RecordTrigger() error = %v", err)
	}

	records, err := store.ListTriggers(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListTriggers() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ListTriggers() returned %d records, want 1", len(records))
	}

	got := records[0]
	if got.ID != rec.ID {
		t.Errorf("ID = %v, want %v", got.ID, rec.ID)
	}
	if got.RequestID != rec.RequestID {
		t.Errorf("RequestID = %v, want %v", got.RequestID, rec.RequestID)
	}
	if got.UserID == nil || *got.UserID != userID {
		t.Errorf("UserID = %v, want %v", got.UserID, userID)
	}
	if got.RemoteStatus != 500 || got.ResponseStatus != 502 {
		t.Errorf("statuses = %d/%d, want 500/502", got.RemoteStatus, got.ResponseStatus)
	}
	if got.Error != rec.Error {
		t.Errorf("Error = %q, want %q", got.Error, rec.Error)
	}
}

func TestSQLiteStore_AnonymousCaller(t *testing.T) {
	store, err := New("file:memdb2?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	err = store.RecordTrigger(context.Background(), &storage.TriggerRecord{
		ID:             "trig-anon",
		Slug:           "ping",
		UserName:       "anonymous",
		Outcome:        "timeout",
		ResponseStatus: 504,
	})
	if err != nil {
		t.Fatalf("RecordTrigger() error = %v", err)
	}

	records, err := store.ListTriggers(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListTriggers() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ListTriggers() returned %d records, want 1", len(records))
	}
	if records[0].UserID != nil {
		t.Errorf("UserID = %v, want nil", *records[0].UserID)
	}
	if records[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should default to now")
	}
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Now()
	for i := 1; i <= 5; i++ {
		err := store.RecordTrigger(ctx, &storage.TriggerRecord{
			ID:             fmt.Sprintf("trig-%d", i),
			Slug:           "ping",
			UserName:       "anonymous",
			Outcome:        "success",
			ResponseStatus: 200,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("RecordTrigger() error = %v", err)
		}
	}

	records, err := store.ListTriggers(ctx, 3)
	if err != nil {
		t.Fatalf("ListTriggers() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("ListTriggers() returned %d records, want 3", len(records))
	}
	for i, want := range []string{"trig-5", "trig-4", "trig-3"} {
		if records[i].ID != want {
			t.Errorf("records[%d].ID = %v, want %v", i, records[i].ID, want)
		}
	}
}

func TestSQLiteStore_DuplicateID(t *testing.T) {
	store, err := New("file:memdb3?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	rec := &storage.TriggerRecord{ID: "dup", Slug: "ping", UserName: "anonymous", Outcome: "success"}
	if err := store.RecordTrigger(context.Background(), rec); err != nil {
		t.Fatalf("RecordTrigger() error = %v", err)
	}
	if err := store.RecordTrigger(context.Background(), rec); err == nil {
		t.Error("expected error for duplicate id")
	}
}
