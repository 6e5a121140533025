package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntfabric/corehunt/pkg/contracts"
)

func TestFileStore_PersistAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	store, err := OpenFileStore(path)
	require.NoError(t, err)

	chain := New(store)
	for i := 0; i < 5; i++ {
		_, err := chain.Append(context.Background(), EventObservationRecorded, "orchestrator", []contracts.KV{
			{Key: "observation_id", Value: "obs"},
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 5)
	assert.Equal(t, chain.Snapshot(), loaded)

	report := VerifyEntries(loaded)
	assert.True(t, report.OK)
}

func TestFileStore_LoadReportsTornTrailingFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	store, err := OpenFileStore(path)
	require.NoError(t, err)

	chain := New(store)
	_, err = chain.Append(context.Background(), EventObservationRecorded, "orchestrator", nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-3))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Load(context.Background())
	require.Error(t, err)
}

func TestFileStore_RejectsUnknownFormatVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x00, 0x00, 0x02, '{', '}'}, 0o600))

	_, err := OpenFileStore(path)
	require.Error(t, err)
}

func TestFileStore_TamperedByteIsCaughtByVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	store, err := OpenFileStore(path)
	require.NoError(t, err)

	chain := New(store)
	for i := 0; i < 5; i++ {
		_, err := chain.Append(context.Background(), EventObservationRecorded, "orchestrator", []contracts.KV{
			{Key: "n", Value: "x"},
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	// Flip one byte inside the actor field of a mid-chain record.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	idx := -1
	count := 0
	for i := 0; i+len("orchestrator") <= len(data); i++ {
		if string(data[i:i+len("orchestrator")]) == "orchestrator" {
			count++
			if count == 3 {
				idx = i
				break
			}
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	data[idx] = 'X'
	require.NoError(t, os.WriteFile(path, data, 0o600))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(context.Background())
	require.NoError(t, err)

	report := VerifyEntries(loaded)
	require.False(t, report.OK)
	assert.Equal(t, uint64(2), report.FirstBadSeq)
}
