package audit

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore is the optional multi-process audit persistence adapter: a
// thin *sql.DB wrapper, no ORM, explicit queries.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-open connection. The caller owns the
// connection lifecycle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq           BIGINT PRIMARY KEY,
	entry_id      TEXT NOT NULL,
	timestamp     TEXT NOT NULL,
	event_kind    TEXT NOT NULL,
	actor         TEXT NOT NULL,
	payload       TEXT NOT NULL,
	previous_hash TEXT NOT NULL,
	entry_hash    TEXT NOT NULL
);`

// EnsureSchema creates the audit table if it does not already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaPostgres); err != nil {
		return fmt.Errorf("audit: create postgres schema: %w", err)
	}
	return nil
}

// Persist inserts entry; INSERT-only, matching the append-only contract —
// there is no upsert path here.
func (s *PostgresStore) Persist(ctx context.Context, entry AuditEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("audit: marshal payload for seq %d: %w", entry.Seq, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (seq, entry_id, timestamp, event_kind, actor, payload, previous_hash, entry_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.Seq, entry.EntryID, entry.Timestamp.Format(rfc3339Nano), string(entry.EventKind), entry.Actor,
		string(payload), hex.EncodeToString(entry.PreviousHash[:]), hex.EncodeToString(entry.EntryHash[:]))
	if err != nil {
		return fmt.Errorf("audit: persist seq %d: %w", entry.Seq, err)
	}
	return nil
}

// Load reads the table back in seq order.
func (s *PostgresStore) Load(ctx context.Context) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, entry_id, timestamp, event_kind, actor, payload, previous_hash, entry_hash
		 FROM audit_entries ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("audit: load postgres store: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts, payload, prevHex, entryHex, kind string
		if err := rows.Scan(&e.Seq, &e.EntryID, &ts, &kind, &e.Actor, &payload, &prevHex, &entryHex); err != nil {
			return nil, fmt.Errorf("audit: scan postgres row: %w", err)
		}
		if err := decodeStoredEntry(&e, ts, kind, payload, prevHex, entryHex); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
