// Package workflow implements the submission workflow state machine: the
// ordered progression a single submission request moves through,
// fail-closed to FAILED whenever a required human confirmation is missing,
// invalid, or already spent.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/huntfabric/corehunt/pkg/audit"
	"github.com/huntfabric/corehunt/pkg/confirmation"
	"github.com/huntfabric/corehunt/pkg/contracts"
)

// InvalidTransition is raised whenever a requested transition is not legal
// from the request's current state.
type InvalidTransition struct {
	RequestID string
	From      contracts.WorkflowStatus
	To        contracts.WorkflowStatus
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("workflow: request %s cannot move from %s to %s", e.RequestID, e.From, e.To)
}

// UnknownRequest is raised when a transition targets a request the machine
// has no record of.
type UnknownRequest struct {
	RequestID string
}

func (e *UnknownRequest) Error() string {
	return fmt.Sprintf("workflow: unknown request %s", e.RequestID)
}

// legalTransitions encodes the workflow diagram. Every state not listed here
// as a source can still transition to FAILED via Fail, which bypasses this
// table entirely (fail-closed, I-order-independent of the happy path).
var legalTransitions = map[contracts.WorkflowStatus][]contracts.WorkflowStatus{
	contracts.WorkflowInitialized:    {contracts.WorkflowAwaitingHuman, contracts.WorkflowFailed},
	contracts.WorkflowAwaitingHuman:  {contracts.WorkflowHumanConfirmed, contracts.WorkflowFailed},
	contracts.WorkflowHumanConfirmed: {contracts.WorkflowCompleted, contracts.WorkflowFailed},
	contracts.WorkflowCompleted:      {},
	contracts.WorkflowFailed:         {},
}

// Machine tracks one WorkflowState per request_id and enforces the legal
// transition table. Only AWAITING_HUMAN -> HUMAN_CONFIRMED requires (and
// consumes) a confirmation token; AwaitHuman and Complete take none.
type Machine struct {
	registry *confirmation.Registry
	chain    *audit.Chain
	clock    func() time.Time

	mu    sync.Mutex
	state map[string]contracts.WorkflowState
}

// New wires a Machine. registry is consulted to validate the confirmation
// token presented for AWAITING_HUMAN -> HUMAN_CONFIRMED transitions.
func New(registry *confirmation.Registry, chain *audit.Chain) *Machine {
	return &Machine{registry: registry, chain: chain, clock: time.Now, state: make(map[string]contracts.WorkflowState)}
}

// Start initializes a request's workflow state at INITIALIZED.
func (m *Machine) Start(requestID string) contracts.WorkflowState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := contracts.WorkflowState{RequestID: requestID, Status: contracts.WorkflowInitialized, UpdatedAt: m.clock().UTC()}
	m.state[requestID] = st
	return st
}

// State returns the current state for requestID.
func (m *Machine) State(requestID string) (contracts.WorkflowState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[requestID]
	return st, ok
}

// AwaitHuman moves a request from INITIALIZED to AWAITING_HUMAN. No token
// is required at this step — it is the step that creates the need for one.
func (m *Machine) AwaitHuman(ctx context.Context, requestID string) (contracts.WorkflowState, error) {
	return m.transition(ctx, requestID, contracts.WorkflowAwaitingHuman, "")
}

// ConfirmHuman moves a request from AWAITING_HUMAN to HUMAN_CONFIRMED. It
// requires a confirmationID naming a token that is unexpired and not yet
// consumed; the registry's Consume call is the single source of truth —
// this method never duplicates its state.
func (m *Machine) ConfirmHuman(ctx context.Context, requestID, confirmationID string) (contracts.WorkflowState, error) {
	if confirmationID == "" {
		return m.Fail(ctx, requestID, "missing confirmation token")
	}
	if _, err := m.registry.Consume(ctx, confirmationID); err != nil {
		failed, failErr := m.Fail(ctx, requestID, fmt.Sprintf("confirmation consume failed: %v", err))
		if failErr != nil {
			return contracts.WorkflowState{}, failErr
		}
		return failed, err
	}
	return m.transition(ctx, requestID, contracts.WorkflowHumanConfirmed, confirmationID)
}

// Complete moves a request from HUMAN_CONFIRMED to COMPLETED.
func (m *Machine) Complete(ctx context.Context, requestID string) (contracts.WorkflowState, error) {
	return m.transition(ctx, requestID, contracts.WorkflowCompleted, "")
}

// Fail unconditionally moves a request to FAILED from any known state,
// bypassing the legal-transition table — this is the fail-closed escape
// hatch every other path in this package funnels into on error.
func (m *Machine) Fail(ctx context.Context, requestID, reason string) (contracts.WorkflowState, error) {
	m.mu.Lock()
	cur, ok := m.state[requestID]
	if !ok {
		m.mu.Unlock()
		return contracts.WorkflowState{}, &UnknownRequest{RequestID: requestID}
	}
	next := contracts.WorkflowState{RequestID: requestID, Status: contracts.WorkflowFailed, UpdatedAt: m.clock().UTC()}
	m.state[requestID] = next
	m.mu.Unlock()

	m.record(ctx, requestID, cur.Status, contracts.WorkflowFailed, reason)
	return next, nil
}

func (m *Machine) transition(ctx context.Context, requestID string, to contracts.WorkflowStatus, confirmationID string) (contracts.WorkflowState, error) {
	m.mu.Lock()
	cur, ok := m.state[requestID]
	if !ok {
		m.mu.Unlock()
		return contracts.WorkflowState{}, &UnknownRequest{RequestID: requestID}
	}

	allowed := legalTransitions[cur.Status]
	legal := false
	for _, s := range allowed {
		if s == to {
			legal = true
			break
		}
	}
	if !legal {
		m.mu.Unlock()
		return contracts.WorkflowState{}, &InvalidTransition{RequestID: requestID, From: cur.Status, To: to}
	}

	next := contracts.WorkflowState{RequestID: requestID, Status: to, UpdatedAt: m.clock().UTC()}
	m.state[requestID] = next
	m.mu.Unlock()

	reason := ""
	if confirmationID != "" {
		reason = "confirmation_id=" + confirmationID
	}
	m.record(ctx, requestID, cur.Status, to, reason)
	return next, nil
}

func (m *Machine) record(ctx context.Context, requestID string, from, to contracts.WorkflowStatus, reason string) {
	if m.chain == nil {
		return
	}
	_, _ = m.chain.Append(ctx, audit.EventWorkflowTransition, requestID, []contracts.KV{
		{Key: "request_id", Value: requestID},
		{Key: "from", Value: string(from)},
		{Key: "to", Value: string(to)},
		{Key: "reason", Value: reason},
	})
}
