package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntfabric/corehunt/pkg/audit"
	"github.com/huntfabric/corehunt/pkg/canonicalize"
	"github.com/huntfabric/corehunt/pkg/confirmation"
	"github.com/huntfabric/corehunt/pkg/contracts"
)

func TestWorkflow_HappyPath(t *testing.T) {
	chain := audit.New(nil)
	registry := confirmation.New([]byte("key"), chain)
	m := New(registry, chain)
	ctx := context.Background()

	m.Start("req-1")
	_, err := m.AwaitHuman(ctx, "req-1")
	require.NoError(t, err)

	hash, err := canonicalize.Hash(map[string]any{"x": 1})
	require.NoError(t, err)
	conf, err := registry.Issue(ctx, "req-1", "alice", hash)
	require.NoError(t, err)

	st, err := m.ConfirmHuman(ctx, "req-1", conf.ConfirmationID)
	require.NoError(t, err)
	assert.Equal(t, contracts.WorkflowHumanConfirmed, st.Status)

	st, err = m.Complete(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, contracts.WorkflowCompleted, st.Status)
}

func TestWorkflow_IllegalTransitionRejected(t *testing.T) {
	chain := audit.New(nil)
	registry := confirmation.New([]byte("key"), chain)
	m := New(registry, chain)
	ctx := context.Background()

	m.Start("req-1")
	_, err := m.Complete(ctx, "req-1")
	var invalid *InvalidTransition
	require.ErrorAs(t, err, &invalid)
}

func TestWorkflow_MissingTokenFailsClosed(t *testing.T) {
	chain := audit.New(nil)
	registry := confirmation.New([]byte("key"), chain)
	m := New(registry, chain)
	ctx := context.Background()

	m.Start("req-1")
	_, err := m.AwaitHuman(ctx, "req-1")
	require.NoError(t, err)

	st, err := m.ConfirmHuman(ctx, "req-1", "")
	require.NoError(t, err)
	assert.Equal(t, contracts.WorkflowFailed, st.Status)
}

func TestWorkflow_ReusedTokenFailsClosed(t *testing.T) {
	chain := audit.New(nil)
	registry := confirmation.New([]byte("key"), chain)
	m := New(registry, chain)
	ctx := context.Background()

	m.Start("req-1")
	_, err := m.AwaitHuman(ctx, "req-1")
	require.NoError(t, err)

	hash, err := canonicalize.Hash(map[string]any{"x": 1})
	require.NoError(t, err)
	conf, err := registry.Issue(ctx, "req-1", "alice", hash)
	require.NoError(t, err)

	_, err = registry.Consume(ctx, conf.ConfirmationID)
	require.NoError(t, err)

	st, err := m.ConfirmHuman(ctx, "req-1", conf.ConfirmationID)
	require.Error(t, err)
	assert.Equal(t, contracts.WorkflowFailed, st.Status)
}

func TestWorkflow_TerminalStatesHaveNoOutboundTransitions(t *testing.T) {
	chain := audit.New(nil)
	registry := confirmation.New([]byte("key"), chain)
	m := New(registry, chain)
	ctx := context.Background()

	m.Start("req-1")
	_, _ = m.Fail(ctx, "req-1", "test")

	_, err := m.AwaitHuman(ctx, "req-1")
	var invalid *InvalidTransition
	require.ErrorAs(t, err, &invalid)
}

func TestWorkflow_UnknownRequestRejected(t *testing.T) {
	chain := audit.New(nil)
	registry := confirmation.New([]byte("key"), chain)
	m := New(registry, chain)
	ctx := context.Background()

	_, err := m.AwaitHuman(ctx, "ghost")
	var unknown *UnknownRequest
	require.ErrorAs(t, err, &unknown)
}
