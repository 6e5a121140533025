package duplicate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntfabric/corehunt/pkg/audit"
	"github.com/huntfabric/corehunt/pkg/contracts"
)

func TestCheckAndAcquire_SecondCallBlocked(t *testing.T) {
	chain := audit.New(nil)
	g := New(chain)
	key := contracts.SubmissionKey{DecisionID: "D1", Platform: "hackerone"}

	require.NoError(t, g.CheckAndAcquire(context.Background(), key, "alice"))
	err := g.CheckAndAcquire(context.Background(), key, "bob")
	var dup *DuplicateSubmission
	require.ErrorAs(t, err, &dup)

	var sawBlocked bool
	for _, e := range chain.Snapshot() {
		if e.EventKind == audit.EventDuplicateBlocked {
			sawBlocked = true
		}
	}
	assert.True(t, sawBlocked)
}

func TestVerifyAndRelease_AllowsReacquisition(t *testing.T) {
	chain := audit.New(nil)
	g := New(chain)
	key := contracts.SubmissionKey{DecisionID: "D2", Platform: "bugcrowd"}

	require.NoError(t, g.CheckAndAcquire(context.Background(), key, "alice"))
	g.VerifyAndRelease(key, true)
	require.NoError(t, g.CheckAndAcquire(context.Background(), key, "alice"))
}

func TestCheckAndAcquire_PriorTransmittedBlocksForever(t *testing.T) {
	chain := audit.New(nil)
	key := contracts.SubmissionKey{DecisionID: "D3", Platform: "intigriti"}
	_, err := chain.Append(context.Background(), audit.EventTransmitted, "transmit-manager", []contracts.KV{
		{Key: "decision_id", Value: key.DecisionID},
		{Key: "platform", Value: key.Platform},
	})
	require.NoError(t, err)

	g := New(chain)
	err = g.CheckAndAcquire(context.Background(), key, "alice")
	var dup *DuplicateSubmission
	require.ErrorAs(t, err, &dup)
}

func TestCheckAndAcquire_ExactlyOneWinnerUnderConcurrency(t *testing.T) {
	chain := audit.New(nil)
	g := New(chain)
	key := contracts.SubmissionKey{DecisionID: "D4", Platform: "hackerone"}

	var wg sync.WaitGroup
	var successes int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.CheckAndAcquire(context.Background(), key, "racer"); err == nil {
				atomic.AddInt64(&successes, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), successes)
}
