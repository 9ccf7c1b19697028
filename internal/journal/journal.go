// Package journal persists every bus event to an append-only SQLite log.
// The journal is the audit trail: it answers "what did the system do and
// why" long after the in-memory state is gone.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/database"
	"github.com/aristath/helmsman/internal/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS event_journal (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	module     TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	data       TEXT
);
CREATE INDEX IF NOT EXISTS idx_journal_type ON event_journal(event_type);
CREATE INDEX IF NOT EXISTS idx_journal_timestamp ON event_journal(timestamp);
`

// Entry is one persisted event.
type Entry struct {
	ID        int64                  `json:"id"`
	Type      events.EventType       `json:"type"`
	Module    string                 `json:"module"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Journal writes bus events to SQLite and serves queries over them.
type Journal struct {
	db  *database.DB
	log zerolog.Logger
}

// New creates a journal backed by db, creating the schema if needed.
func New(db *database.DB, log zerolog.Logger) (*Journal, error) {
	if _, err := db.Conn().Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}
	return &Journal{
		db:  db,
		log: log.With().Str("component", "journal").Logger(),
	}, nil
}

// Attach subscribes the journal to every event on the bus. Writes happen
// on the emitter's goroutine; SQLite in WAL mode absorbs this fine at
// agent-cycle event rates.
func (j *Journal) Attach(bus *events.Bus) {
	bus.SubscribeAll(func(event *events.Event) {
		if err := j.Append(event); err != nil {
			j.log.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to journal event")
		}
	})
}

// Append persists a single event.
func (j *Journal) Append(event *events.Event) error {
	var data []byte
	if event.Data != nil {
		var err error
		data, err = json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to encode event data: %w", err)
		}
	}

	_, err := j.db.Conn().Exec(
		`INSERT INTO event_journal (event_type, module, timestamp, data) VALUES (?, ?, ?, ?)`,
		string(event.Type), event.Module, event.Timestamp.UTC().Format(time.RFC3339Nano), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

// Query returns the most recent entries, newest first, optionally
// restricted to the given event types. limit <= 0 defaults to 100.
func (j *Journal) Query(types []events.EventType, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, event_type, module, timestamp, data FROM event_journal`
	args := make([]interface{}, 0, len(types)+1)

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += ` WHERE event_type IN (` + strings.Join(placeholders, ",") + `)`
	}

	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// CountSince reports how many events of the given type were journaled at
// or after cutoff.
func (j *Journal) CountSince(eventType events.EventType, cutoff time.Time) (int, error) {
	var count int
	err := j.db.Conn().QueryRow(
		`SELECT COUNT(*) FROM event_journal WHERE event_type = ? AND timestamp >= ?`,
		string(eventType), cutoff.UTC().Format(time.RFC3339Nano),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return count, nil
}

// Prune deletes entries older than cutoff and returns how many went.
func (j *Journal) Prune(cutoff time.Time) (int64, error) {
	res, err := j.db.Conn().Exec(
		`DELETE FROM event_journal WHERE timestamp < ?`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			eventType string
			timestamp string
			data      sql.NullString
		)
		if err := rows.Scan(&entry.ID, &eventType, &entry.Module, &timestamp, &data); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entry.Type = events.EventType(eventType)

		ts, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse journal timestamp: %w", err)
		}
		entry.Timestamp = ts

		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &entry.Data); err != nil {
				return nil, fmt.Errorf("failed to decode journal data: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
