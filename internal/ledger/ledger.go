// Package ledger provides an append-only event history for discod.
// Session events and task-set rebuilds are recorded for auditing.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventBridgeFound      EventType = "bridge_found"
	EventUserRegistered   EventType = "user_registered"
	EventLightsDiscovered EventType = "lights_discovered"
	EventError            EventType = "error"
	EventRebuild          EventType = "rebuild"
	EventConfigPublished  EventType = "config_published"
)

// Known reports whether t is one of the recorded event types.
func (t EventType) Known() bool {
	switch t {
	case EventBridgeFound, EventUserRegistered, EventLightsDiscovered,
		EventError, EventRebuild, EventConfigPublished:
		return true
	}
	return false
}

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64
	EventID   string
	EventType EventType
	Timestamp time.Time
	Payload   map[string]any
}

// Ledger provides append-only event logging
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a new event to the ledger
func (l *Ledger) Append(eventID string, eventType EventType, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	_, err = l.db.Exec(`
		INSERT INTO event_ledger (event_id, event_type, timestamp, payload) VALUES (?, ?, ?, ?)
	`, eventID, string(eventType), time.Now().UTC().UnixNano(), string(payloadJSON))

	return err
}

// Recent returns the newest entries first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_id, event_type, timestamp, payload
		FROM event_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByType returns entries filtered by event type
func (l *Ledger) GetByType(eventType EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_id, event_type, timestamp, payload
		FROM event_ledger
		WHERE event_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().UnixNano()
	result, err := l.db.Exec(`
		DELETE FROM event_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var eventID, payloadStr sql.NullString
		var timestamp int64

		if err := rows.Scan(&entry.ID, &eventID, &entry.EventType, &timestamp, &payloadStr); err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(0, timestamp).UTC()
		if eventID.Valid {
			entry.EventID = eventID.String
		}

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
