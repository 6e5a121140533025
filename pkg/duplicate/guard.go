// Package duplicate implements the duplicate guard: the atomic
// (decision_id, platform) uniqueness check on submissions. It consults
// both a live in-flight set and the audit chain's history of TRANSMITTED
// entries, so a key stays blocked after its in-flight attempt is released.
// That history is the entries of the Chain the guard was given; a Chain
// starts empty, so entries persisted by an earlier process are not consulted.
package duplicate

import (
	"context"
	"fmt"
	"sync"

	"github.com/huntfabric/corehunt/pkg/audit"
	"github.com/huntfabric/corehunt/pkg/contracts"
	"github.com/huntfabric/corehunt/pkg/telemetry"
)

// DuplicateSubmission is raised when a (decision_id, platform) key has
// already transmitted, or is already in flight.
type DuplicateSubmission struct {
	Key contracts.SubmissionKey
}

func (e *DuplicateSubmission) Error() string {
	return fmt.Sprintf("duplicate: submission key (%s, %s) already transmitted or in flight", e.Key.DecisionID, e.Key.Platform)
}

// Guard holds the live set of in-flight SubmissionKeys under a single
// mutex covering the acquire/release transaction.
type Guard struct {
	chain     *audit.Chain
	telemetry *telemetry.Provider

	mu   sync.Mutex
	live map[contracts.SubmissionKey]bool
}

// New wires a Guard to the audit chain it consults for transmission
// history.
func New(chain *audit.Chain) *Guard {
	return &Guard{chain: chain, live: make(map[contracts.SubmissionKey]bool)}
}

// WithTelemetry attaches an optional metrics provider; nil-safe like the
// rest of this package's telemetry integration.
func (g *Guard) WithTelemetry(p *telemetry.Provider) *Guard {
	g.telemetry = p
	return g
}

// CheckAndAcquire atomically: (1) scans the audit chain for a prior
// TRANSMITTED entry on key — if found, records DUPLICATE_BLOCKED and
// raises DuplicateSubmission; (2) checks the live in-flight set under the
// same critical section — same refusal if already present; (3) else
// inserts key into the live set. Exactly one caller wins per key,
// regardless of concurrency.
func (g *Guard) CheckAndAcquire(ctx context.Context, key contracts.SubmissionKey, submitterID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.chain != nil && audit.CountTransmitted(g.chain.Snapshot(), key) > 0 {
		g.recordBlocked(ctx, key, submitterID, "already transmitted")
		return &DuplicateSubmission{Key: key}
	}

	if g.live[key] {
		g.recordBlocked(ctx, key, submitterID, "already in flight")
		return &DuplicateSubmission{Key: key}
	}

	g.live[key] = true
	return nil
}

// VerifyAndRelease always removes key from the live set, regardless of
// whether the attempt that held it succeeded. success is not recorded
// anywhere; it never changes the release behavior.
func (g *Guard) VerifyAndRelease(key contracts.SubmissionKey, success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.live, key)
}

func (g *Guard) recordBlocked(ctx context.Context, key contracts.SubmissionKey, submitterID, reason string) {
	if g.chain == nil {
		return
	}
	_, _ = g.chain.Append(ctx, audit.EventDuplicateBlocked, submitterID, []contracts.KV{
		{Key: "decision_id", Value: key.DecisionID},
		{Key: "platform", Value: key.Platform},
		{Key: "reason", Value: reason},
	})
	g.telemetry.RecordDuplicateBlocked(ctx, key.Platform)
}
