package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntfabric/corehunt/pkg/contracts"
)

func TestAppend_FirstEntryLinksToGenesis(t *testing.T) {
	chain := New(nil)
	entry, err := chain.Append(context.Background(), EventConfirmationIssued, "alice", nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), entry.Seq)
	assert.Equal(t, GenesisHash(), entry.PreviousHash)
	assert.Equal(t, entry.EntryHash, chain.Head())
}

func TestAppend_SeqIsDenseAndIncreasing(t *testing.T) {
	chain := New(nil)
	for i := 0; i < 5; i++ {
		entry, err := chain.Append(context.Background(), EventObservationRecorded, "orchestrator", nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), entry.Seq)
	}
	assert.Equal(t, 5, chain.Len())
}

func TestVerify_OKOnUntamperedChain(t *testing.T) {
	chain := New(nil)
	for i := 0; i < 5; i++ {
		_, err := chain.Append(context.Background(), EventObservationRecorded, "orchestrator", []contracts.KV{
			{Key: "n", Value: time.Now().String()},
		})
		require.NoError(t, err)
	}
	report := chain.Verify()
	assert.True(t, report.OK)
}

// Mutating any field of a stored entry must be caught at that entry's seq.
func TestVerify_DetectsSingleEntryTamper(t *testing.T) {
	chain := New(nil)
	for i := 0; i < 5; i++ {
		_, err := chain.Append(context.Background(), EventObservationRecorded, "orchestrator", nil)
		require.NoError(t, err)
	}

	entries := chain.Snapshot()
	entries[2].Actor = "tampered"
	chain.snapshot.Store(&entries)

	report := chain.Verify()
	require.False(t, report.OK)
	assert.Equal(t, uint64(2), report.FirstBadSeq)
}

func TestVerify_DetectsBrokenPreviousHashLink(t *testing.T) {
	chain := New(nil)
	for i := 0; i < 3; i++ {
		_, err := chain.Append(context.Background(), EventObservationRecorded, "orchestrator", nil)
		require.NoError(t, err)
	}

	entries := chain.Snapshot()
	entries[1].PreviousHash = [32]byte{0xFF}
	chain.snapshot.Store(&entries)

	report := chain.Verify()
	require.False(t, report.OK)
	assert.Equal(t, "previous_hash", report.DivergentField)
}

func TestIntegrityFault_AppendsFreshEntryThenReturnsHardStop(t *testing.T) {
	chain := New(nil)
	_, err := chain.Append(context.Background(), EventObservationRecorded, "orchestrator", nil)
	require.NoError(t, err)

	entries := chain.Snapshot()
	entries[0].Actor = "tampered"
	chain.snapshot.Store(&entries)

	report := chain.Verify()
	require.False(t, report.OK)

	beforeLen := chain.Len()
	err = chain.IntegrityFault(context.Background(), report)
	require.Error(t, err)
	assert.True(t, contracts.IsHardStop(err))
	assert.Equal(t, beforeLen+1, chain.Len())

	last := chain.Snapshot()[len(chain.Snapshot())-1]
	assert.Equal(t, EventAuditIntegrityFault, last.EventKind)
}

func TestCountTransmitted_MatchesOnlyExactKey(t *testing.T) {
	chain := New(nil)
	_, err := chain.Append(context.Background(), EventTransmitted, "transmit-manager", []contracts.KV{
		{Key: "decision_id", Value: "D1"},
		{Key: "platform", Value: "hackerone"},
	})
	require.NoError(t, err)
	_, err = chain.Append(context.Background(), EventTransmitted, "transmit-manager", []contracts.KV{
		{Key: "decision_id", Value: "D1"},
		{Key: "platform", Value: "bugcrowd"},
	})
	require.NoError(t, err)

	got := CountTransmitted(chain.Snapshot(), contracts.SubmissionKey{DecisionID: "D1", Platform: "hackerone"})
	assert.Equal(t, 1, got)
}

func TestAppend_ConcurrentAppendsStaySerializedAndDense(t *testing.T) {
	chain := New(nil)
	const n = 100

	done := make(chan uint64, n)
	for i := 0; i < n; i++ {
		go func() {
			entry, err := chain.Append(context.Background(), EventObservationRecorded, "worker", nil)
			require.NoError(t, err)
			done <- entry.Seq
		}()
	}

	seen := make(map[uint64]bool, n)
	for i := 0; i < n; i++ {
		seq := <-done
		require.False(t, seen[seq], "seq %d observed twice", seq)
		seen[seq] = true
	}

	require.Equal(t, n, chain.Len())
	report := chain.Verify()
	assert.True(t, report.OK)
}
