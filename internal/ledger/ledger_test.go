package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/discod/internal/db"
)

func openLedger(t *testing.T) (*Ledger, *db.DB) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB), database
}

func TestLedger_AppendAndRecent(t *testing.T) {
	l, _ := openLedger(t)

	if err := l.Append("e1", EventBridgeFound, map[string]any{"address": "10.0.0.2"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := l.Append("e2", EventRebuild, nil); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	entries, err := l.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent() returned %d entries, want 2", len(entries))
	}
	if entries[0].EventID != "e2" || entries[0].EventType != EventRebuild {
		t.Errorf("newest entry = %+v, want e2 rebuild", entries[0])
	}
	if entries[0].Payload != nil {
		t.Errorf("entry without payload decoded as %v", entries[0].Payload)
	}
	if got := entries[1].Payload["address"]; got != "10.0.0.2" {
		t.Errorf("payload address = %v, want 10.0.0.2", got)
	}
}

func TestLedger_GetByType(t *testing.T) {
	l, _ := openLedger(t)

	l.Append("a", EventError, map[string]any{"error": "x"})
	l.Append("b", EventRebuild, nil)
	l.Append("c", EventError, map[string]any{"error": "y"})

	entries, err := l.GetByType(EventError, 10)
	if err != nil {
		t.Fatalf("GetByType() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("GetByType() returned %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.EventType != EventError {
			t.Errorf("entry type = %s, want error", e.EventType)
		}
	}
}

func TestLedger_DeleteOlderThan(t *testing.T) {
	l, database := openLedger(t)

	old := time.Now().Add(-48 * time.Hour).UTC().UnixNano()
	if _, err := database.Exec(`
		INSERT INTO event_ledger (event_id, event_type, timestamp, payload) VALUES ('old', 'rebuild', ?, '')
	`, old); err != nil {
		t.Fatalf("insert: %v", err)
	}
	l.Append("new", EventRebuild, nil)

	deleted, err := l.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteOlderThan() deleted %d, want 1", deleted)
	}

	entries, _ := l.Recent(10)
	if len(entries) != 1 || entries[0].EventID != "new" {
		t.Errorf("remaining entries = %+v, want only new", entries)
	}
}

func TestEventType_Known(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      bool
	}{
		{EventBridgeFound, true},
		{EventConfigPublished, true},
		{EventType("party"), false},
		{EventType(""), false},
	}
	for _, tt := range tests {
		if got := tt.eventType.Known(); got != tt.want {
			t.Errorf("EventType(%q).Known() = %v, want %v", tt.eventType, got, tt.want)
		}
	}
}
