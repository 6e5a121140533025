package audit

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default on-disk audit persistence adapter: pure Go, no
// cgo. Rows are inserted, never updated or deleted, mirroring FileStore's
// append-only write pattern in a single table instead of a length-prefixed
// file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) the audit table at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite store: %w", err)
	}
	if _, err := db.Exec(schemaSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq          INTEGER PRIMARY KEY,
	entry_id     TEXT NOT NULL,
	timestamp    TEXT NOT NULL,
	event_kind   TEXT NOT NULL,
	actor        TEXT NOT NULL,
	payload      TEXT NOT NULL,
	previous_hash TEXT NOT NULL,
	entry_hash   TEXT NOT NULL
);`

// Persist inserts entry. It never updates an existing seq: a duplicate seq
// is a programmer error in the caller and surfaces as a constraint violation.
func (s *SQLiteStore) Persist(ctx context.Context, entry AuditEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("audit: marshal payload for seq %d: %w", entry.Seq, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (seq, entry_id, timestamp, event_kind, actor, payload, previous_hash, entry_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Seq, entry.EntryID, entry.Timestamp.Format(rfc3339Nano), string(entry.EventKind), entry.Actor,
		string(payload), hex.EncodeToString(entry.PreviousHash[:]), hex.EncodeToString(entry.EntryHash[:]))
	if err != nil {
		return fmt.Errorf("audit: persist seq %d: %w", entry.Seq, err)
	}
	return nil
}

// Load streams the table back in seq order, reconstructing the entries for
// inspection or verification. Chain has no method that takes loaded
// entries; a new Chain always starts empty.
func (s *SQLiteStore) Load(ctx context.Context) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, entry_id, timestamp, event_kind, actor, payload, previous_hash, entry_hash
		 FROM audit_entries ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("audit: load sqlite store: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts, payload, prevHex, entryHex, kind string
		if err := rows.Scan(&e.Seq, &e.EntryID, &ts, &kind, &e.Actor, &payload, &prevHex, &entryHex); err != nil {
			return nil, fmt.Errorf("audit: scan sqlite row: %w", err)
		}
		if err := decodeStoredEntry(&e, ts, kind, payload, prevHex, entryHex); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
