// Package transmit implements the network transmit manager: the
// only place in the core that is ever permitted to make an outbound network
// call, and then only once, only after a confirmation's report hash has
// been re-verified against the draft about to be sent.
package transmit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/huntfabric/corehunt/pkg/audit"
	"github.com/huntfabric/corehunt/pkg/boundary"
	"github.com/huntfabric/corehunt/pkg/canonicalize"
	"github.com/huntfabric/corehunt/pkg/confirmation"
	"github.com/huntfabric/corehunt/pkg/contracts"
	"github.com/huntfabric/corehunt/pkg/duplicate"
	"github.com/huntfabric/corehunt/pkg/telemetry"
)

// ReportTamperingDetected is raised when the recomputed report hash does
// not match the confirmation's bound hash. Network is never enabled when
// this is raised — it is checked before NETWORK_ACCESS_GRANTED is
// recorded.
type ReportTamperingDetected struct {
	Expected [32]byte
	Actual   [32]byte
}

func (e *ReportTamperingDetected) Error() string {
	return fmt.Sprintf("transmit: report hash mismatch, expected %x, actual %x", e.Expected, e.Actual)
}

func (e *ReportTamperingDetected) HardStop() bool { return true }

// draftReportSchema validates a DraftReport's shape before it is allowed
// anywhere near the one permitted outbound call: every required field
// present, severity and custom fields the right shape.
var draftReportSchema = compileDraftReportSchema()

func compileDraftReportSchema() *jsonschema.Schema {
	const schemaDoc = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["draft_id", "request_id", "title", "description", "severity"],
		"properties": {
			"draft_id": {"type": "string", "minLength": 1},
			"request_id": {"type": "string", "minLength": 1},
			"title": {"type": "string", "minLength": 1},
			"description": {"type": "string", "minLength": 1},
			"severity": {"type": "string", "minLength": 1}
		}
	}`
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://huntfabric.local/schema/draft-report.json"
	if err := c.AddResource(url, strings.NewReader(schemaDoc)); err != nil {
		panic(fmt.Sprintf("transmit: invalid embedded schema: %v", err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("transmit: schema compile failed: %v", err))
	}
	return compiled
}

// validateDraftShape runs the draft through jsonschema before it is ever
// hashed for transmission.
func validateDraftShape(draft contracts.DraftReport) error {
	doc := map[string]any{
		"draft_id":    draft.DraftID,
		"request_id":  draft.RequestID,
		"title":       draft.Title,
		"description": draft.Description,
		"severity":    draft.Severity,
	}
	if err := draftReportSchema.Validate(doc); err != nil {
		return fmt.Errorf("transmit: draft report failed schema validation: %w", err)
	}
	return nil
}

// Manager is the network transmit manager. It never retries a platform
// call — retries belong to a higher layer and require a new confirmation.
type Manager struct {
	registry  *confirmation.Registry
	duplicate *duplicate.Guard
	chain     *audit.Chain
	telemetry *telemetry.Provider
	boundary  *boundary.Guard

	mu             sync.Mutex
	networkEnabled bool
}

// componentName identifies this manager to the boundary guard.
const componentName = "transmit.Manager"

// manifest is what the manager declares about itself at construction time:
// its guarded-operation surface and the one otherwise-forbidden concern
// (the network call) it exists to gate.
var manifest = boundary.ComponentManifest{
	Name:    componentName,
	Imports: []string{"crypto/sha256", "encoding/json"},
	Methods: []string{"Transmit", "NetworkEnabled"},
}

// New wires a Manager.
func New(registry *confirmation.Registry, dup *duplicate.Guard, chain *audit.Chain) *Manager {
	return &Manager{registry: registry, duplicate: dup, chain: chain}
}

// WithTelemetry attaches an optional metrics/tracing provider. Every
// recording call is nil-safe, so this is the only place a caller opts in.
func (m *Manager) WithTelemetry(p *telemetry.Provider) *Manager {
	m.telemetry = p
	return m
}

// WithBoundary registers the manager with the boundary guard: the manifest
// is structurally checked at this point, and from
// then on every Transmit call requires the network.transmit capability to
// have been granted (condition c).
func (m *Manager) WithBoundary(g *boundary.Guard) (*Manager, error) {
	if err := g.Construct(manifest); err != nil {
		return nil, err
	}
	m.boundary = g
	return m, nil
}

// NetworkEnabled reports the manager's current network-enabled flag — it
// must be false except for the brief window between step 4 and the
// deferred step 7 of Transmit.
func (m *Manager) NetworkEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkEnabled
}

// TransmitResult is returned on a successful transmission.
type TransmitResult struct {
	Status               string
	PlatformSubmissionID string
	Response             string
}

// Transmit runs the gated steps in order: consume the confirmation,
// re-verify the report hash, optionally acquire the duplicate-guard key,
// flip network-enabled, call the adapter exactly once, record the outcome,
// and always release/flip-off in a deferred step.
func (m *Manager) Transmit(ctx context.Context, conf contracts.SubmissionConfirmation, draft contracts.DraftReport, adapter PlatformAdapter, submitterID string, decisionID string) (TransmitResult, error) {
	if m.boundary != nil {
		if err := m.boundary.Require(componentName, boundary.CapNetworkTransmit); err != nil {
			return TransmitResult{}, err
		}
	}

	if err := validateDraftShape(draft); err != nil {
		return TransmitResult{}, err
	}

	// Step 1: atomic single-use check.
	consumed, err := m.registry.Consume(ctx, conf.ConfirmationID)
	if err != nil {
		return TransmitResult{}, err
	}

	// Step 2: recompute report hash; tampering never enables the network.
	actual, err := canonicalize.Hash(draft)
	if err != nil {
		return TransmitResult{}, fmt.Errorf("transmit: failed to hash draft: %w", err)
	}
	if actual != consumed.ReportHash {
		m.recordTampering(ctx, submitterID, consumed.ReportHash, actual)
		return TransmitResult{}, &ReportTamperingDetected{Expected: consumed.ReportHash, Actual: actual}
	}

	// Step 3: duplicate guard, only when a decision id scopes this call.
	var key contracts.SubmissionKey
	haveKey := decisionID != ""
	if haveKey {
		key = contracts.SubmissionKey{DecisionID: decisionID, Platform: adapter.Platform()}
		if err := m.duplicate.CheckAndAcquire(ctx, key, submitterID); err != nil {
			return TransmitResult{}, err
		}
	}

	// Step 4: flip network-enabled and record the grant.
	m.setNetworkEnabled(true)
	m.recordGranted(ctx, submitterID, conf.ConfirmationID)

	var result TransmitResult
	var transmitErr error

	func() {
		defer func() {
			// Step 7: always flip the flag off and release the duplicate key.
			m.setNetworkEnabled(false)
			if haveKey {
				m.duplicate.VerifyAndRelease(key, transmitErr == nil)
			}
		}()

		// Step 5: call the adapter exactly once. The adapter self-polices its
		// own request count via RequestCountingAdapter.
		spanCtx, span := m.telemetry.StartSpan(ctx, "transmit.adapter_submit")
		platformID, response, err := adapter.Submit(spanCtx, draft)
		span.End()
		if err != nil {
			transmitErr = err
			m.recordTransmissionFailed(ctx, submitterID, adapter.Platform(), decisionID, err)
			m.telemetry.RecordTransmitAttempt(ctx, adapter.Platform(), false)
			return
		}
		result = TransmitResult{Status: "SUBMITTED", PlatformSubmissionID: platformID, Response: response}
		m.recordTransmitted(ctx, submitterID, adapter.Platform(), decisionID, platformID)
		m.telemetry.RecordTransmitAttempt(ctx, adapter.Platform(), true)
	}()

	if transmitErr != nil {
		return TransmitResult{}, transmitErr
	}
	return result, nil
}

func (m *Manager) setNetworkEnabled(v bool) {
	m.mu.Lock()
	m.networkEnabled = v
	m.mu.Unlock()
}

func (m *Manager) recordGranted(ctx context.Context, actor, confirmationID string) {
	if m.chain == nil {
		return
	}
	_, _ = m.chain.Append(ctx, audit.EventNetworkAccessGranted, actor, []contracts.KV{
		{Key: "confirmation_id", Value: confirmationID},
	})
}

func (m *Manager) recordTampering(ctx context.Context, actor string, expected, actual [32]byte) {
	if m.chain == nil {
		return
	}
	_, _ = m.chain.Append(ctx, audit.EventReportTamperingDetected, actor, []contracts.KV{
		{Key: "expected", Value: fmt.Sprintf("%x", expected)},
		{Key: "actual", Value: fmt.Sprintf("%x", actual)},
	})
}

func (m *Manager) recordTransmitted(ctx context.Context, actor, platform, decisionID, platformSubmissionID string) {
	if m.chain == nil {
		return
	}
	_, _ = m.chain.Append(ctx, audit.EventTransmitted, actor, []contracts.KV{
		{Key: "platform", Value: platform},
		{Key: "decision_id", Value: decisionID},
		{Key: "platform_submission_id", Value: platformSubmissionID},
	})
}

func (m *Manager) recordTransmissionFailed(ctx context.Context, actor, platform, decisionID string, err error) {
	if m.chain == nil {
		return
	}
	_, _ = m.chain.Append(ctx, audit.EventTransmissionFailed, actor, []contracts.KV{
		{Key: "platform", Value: platform},
		{Key: "decision_id", Value: decisionID},
		{Key: "error_kind", Value: errKind(err)},
	})
}

func errKind(err error) string {
	var violation *AdapterArchitecturalViolation
	if errors.As(err, &violation) {
		return "ADAPTER_ARCHITECTURAL_VIOLATION"
	}
	return "PLATFORM_ERROR"
}
