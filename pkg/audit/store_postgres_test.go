package audit

import (
	"context"
	"encoding/hex"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntfabric/corehunt/pkg/contracts"
)

func TestPostgresStore_PersistAndLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	entry := AuditEntry{
		EntryID:      "e1",
		Seq:          1,
		Timestamp:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EventKind:    EventConfirmationIssued,
		Actor:        "registry",
		Payload:      []contracts.KV{{Key: "confirmation_id", Value: "c1"}},
		PreviousHash: GenesisHash(),
		EntryHash:    [32]byte{1, 2, 3},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Persist(ctx, entry))
	assert.NoError(t, mock.ExpectationsWereMet())

	rows := sqlmock.NewRows([]string{"seq", "entry_id", "timestamp", "event_kind", "actor", "payload", "previous_hash", "entry_hash"}).
		AddRow(1, "e1", entry.Timestamp.Format(rfc3339Nano), string(EventConfirmationIssued), "registry",
			`[{"key":"confirmation_id","value":"c1"}]`, hex.EncodeToString(entry.PreviousHash[:]), hex.EncodeToString(entry.EntryHash[:]))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT seq, entry_id, timestamp, event_kind, actor, payload, previous_hash, entry_hash")).
		WillReturnRows(rows)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "e1", loaded[0].EntryID)
	assert.Equal(t, EventConfirmationIssued, loaded[0].EventKind)
	assert.Equal(t, [32]byte{1, 2, 3}, loaded[0].EntryHash)
}

func TestPostgresStore_PersistError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WillReturnError(sqlmock.ErrCancelled)

	err = store.Persist(context.Background(), AuditEntry{Seq: 1})
	assert.Error(t, err)
}
