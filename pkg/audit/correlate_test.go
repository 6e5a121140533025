package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntfabric/corehunt/pkg/contracts"
)

func TestCorrelate_ReportsSeqRangeForDecision(t *testing.T) {
	chain := New(nil)
	_, err := chain.Append(context.Background(), EventObservationRecorded, "orchestrator", nil)
	require.NoError(t, err)
	_, err = chain.Append(context.Background(), EventNetworkAccessGranted, "transmit-manager", []contracts.KV{
		{Key: "decision_id", Value: "D7"},
	})
	require.NoError(t, err)
	_, err = chain.Append(context.Background(), EventTransmitted, "transmit-manager", []contracts.KV{
		{Key: "decision_id", Value: "D7"},
		{Key: "platform", Value: "hackerone"},
	})
	require.NoError(t, err)

	c := Correlate(chain.Snapshot(), "D7")
	require.True(t, c.Found)
	assert.Equal(t, uint64(1), c.FirstSeq)
	assert.Equal(t, uint64(2), c.LastSeq)
	assert.Equal(t, []EventKind{EventNetworkAccessGranted, EventTransmitted}, c.EventKinds)
}

func TestCorrelate_UnknownDecisionNotFound(t *testing.T) {
	chain := New(nil)
	_, err := chain.Append(context.Background(), EventObservationRecorded, "orchestrator", nil)
	require.NoError(t, err)

	c := Correlate(chain.Snapshot(), "missing")
	assert.False(t, c.Found)
	assert.Empty(t, c.EventKinds)
}

func TestObservationsForHypothesis_ChainOrder(t *testing.T) {
	chain := New(nil)
	for _, obsID := range []string{"o1", "o2"} {
		_, err := chain.Append(context.Background(), EventObservationRecorded, "orchestrator", []contracts.KV{
			{Key: "observation_id", Value: obsID},
			{Key: "hypothesis_id", Value: "h1"},
		})
		require.NoError(t, err)
	}
	_, err := chain.Append(context.Background(), EventObservationRecorded, "orchestrator", []contracts.KV{
		{Key: "observation_id", Value: "o3"},
		{Key: "hypothesis_id", Value: "h2"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"o1", "o2"}, ObservationsForHypothesis(chain.Snapshot(), "h1"))
	assert.Equal(t, []string{"o3"}, ObservationsForHypothesis(chain.Snapshot(), "h2"))
}
