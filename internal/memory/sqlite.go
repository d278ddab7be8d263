package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Index is the relational mirror of the event log plus a durable research
// cache. Lookups by type go through SQL; order still comes from the log.
type Index struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS memory (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_memory_type ON memory(event_type);
CREATE TABLE IF NOT EXISTS cache (
	key TEXT PRIMARY KEY,
	value TEXT,
	timestamp TEXT
);
`

// OpenIndex opens (creating if necessary) the SQLite mirror at path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index db: %w", err)
	}
	// Single writer: the loop's owner goroutine.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Insert mirrors one event into the memory table.
func (ix *Index) Insert(ev Event) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		meta = []byte("{}")
	}
	_, err = ix.db.Exec(
		"INSERT INTO memory (event_type, content, timestamp, metadata) VALUES (?, ?, ?, ?)",
		ev.Type, ev.Content, ev.Timestamp, string(meta),
	)
	return err
}

// Rebuild replaces the mirror's contents with the given log. Called at
// startup so the index never diverges from the append-only file.
func (ix *Index) Rebuild(events []Event) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM memory"); err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		"INSERT INTO memory (event_type, content, timestamp, metadata) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		meta, err := json.Marshal(ev.Metadata)
		if err != nil {
			meta = []byte("{}")
		}
		if _, err := stmt.Exec(ev.Type, ev.Content, ev.Timestamp, string(meta)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ByType returns up to limit events of the given type, oldest first.
func (ix *Index) ByType(eventType string, limit int) ([]Event, error) {
	rows, err := ix.db.Query(
		"SELECT event_type, content, timestamp, metadata FROM memory WHERE event_type = ? ORDER BY id LIMIT ?",
		eventType, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var meta string
		if err := rows.Scan(&ev.Type, &ev.Content, &ev.Timestamp, &meta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &ev.Metadata); err != nil {
			ev.Metadata = map[string]any{}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PutCache upserts a durable cache entry keyed by query.
func (ix *Index) PutCache(key, value string) error {
	_, err := ix.db.Exec(
		"INSERT OR REPLACE INTO cache (key, value, timestamp) VALUES (?, ?, ?)",
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetCache looks up a durable cache entry; ok is false on a miss.
func (ix *Index) GetCache(key string) (value string, ok bool, err error) {
	row := ix.db.QueryRow("SELECT value FROM cache WHERE key = ?", key)
	switch err := row.Scan(&value); err {
	case nil:
		return value, true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, err
	}
}

// PruneCache removes durable cache entries older than maxAge.
func (ix *Index) PruneCache(maxAge time.Duration) error {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)
	_, err := ix.db.Exec("DELETE FROM cache WHERE timestamp < ?", cutoff)
	return err
}

func (ix *Index) Close() error {
	return ix.db.Close()
}
