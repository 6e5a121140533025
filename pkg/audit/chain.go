// Package audit implements the append-only, SHA-256 hash-chained audit log
// that is the system's source of ordering truth.
//
// Every state transition, confirmation, duplicate block, and tampering event
// elsewhere in the governance fabric is recorded here. Nothing in this
// package decides anything; it records what happened and can prove, on
// demand, that its own history has not been altered.
package audit

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/huntfabric/corehunt/pkg/canonicalize"
	"github.com/huntfabric/corehunt/pkg/contracts"
	"github.com/huntfabric/corehunt/pkg/telemetry"
)

// EventKind enumerates the typed events the chain records. New kinds should
// be added here, never inferred from a free-form string at the call site.
type EventKind string

const (
	EventObservationRecorded      EventKind = "OBSERVATION_RECORDED"
	EventHypothesisClassified     EventKind = "HYPOTHESIS_CLASSIFIED"
	EventBudgetExhausted          EventKind = "BUDGET_EXHAUSTED"
	EventConfirmationIssued       EventKind = "CONFIRMATION_ISSUED"
	EventConfirmationConsumed     EventKind = "CONFIRMATION_CONSUMED"
	EventNetworkAccessGranted     EventKind = "NETWORK_ACCESS_GRANTED"
	EventTransmitted              EventKind = "TRANSMITTED"
	EventTransmissionFailed       EventKind = "TRANSMISSION_FAILED"
	EventDuplicateBlocked         EventKind = "DUPLICATE_BLOCKED"
	EventReportTamperingDetected  EventKind = "REPORT_TAMPERING_DETECTED"
	EventAuditIntegrityFault      EventKind = "AUDIT_INTEGRITY_FAULT"
	EventWorkflowTransition       EventKind = "WORKFLOW_TRANSITION"
	EventPatchConfirmation        EventKind = "PATCH_CONFIRMATION_RECORDED"
	EventPatchBindingCreated      EventKind = "PATCH_BINDING_CREATED"
	EventPatchApplied             EventKind = "PATCH_APPLIED"
	EventAssistiveOutputEmitted   EventKind = "ASSISTIVE_OUTPUT_EMITTED"
	EventAssistiveOutputConfirmed EventKind = "ASSISTIVE_OUTPUT_CONFIRMED"
	EventBoundaryViolation        EventKind = "BOUNDARY_VIOLATION"
	EventToolFailed               EventKind = "TOOL_FAILED"
)

// genesisHash is the fixed genesis constant, hashed once from a seed string,
// that precedes the first entry in every chain.
var genesisHash = canonicalize.HashBytes([]byte("assistive-bug-bounty-core:audit-genesis:v1"))

// GenesisHash returns the fixed 32-byte genesis constant.
func GenesisHash() [32]byte { return genesisHash }

// AuditEntry is an immutable, hash-chained record.
type AuditEntry struct {
	EntryID      string            `json:"entry_id"`
	Seq          uint64            `json:"seq"`
	Timestamp    time.Time         `json:"timestamp"`
	EventKind    EventKind         `json:"event_kind"`
	Actor        string            `json:"actor"`
	Payload      []contracts.KV    `json:"payload"`
	PreviousHash [32]byte          `json:"previous_hash"`
	EntryHash    [32]byte          `json:"entry_hash"`
}

// hashableFields is the exact field set the entry hash is computed over:
// everything except EntryHash itself.
type hashableFields struct {
	Seq          uint64         `json:"seq"`
	Timestamp    string         `json:"timestamp"`
	EventKind    EventKind      `json:"event_kind"`
	Actor        string         `json:"actor"`
	Payload      []contracts.KV `json:"payload"`
	PreviousHash string         `json:"previous_hash"`
}

func computeEntryHash(seq uint64, ts time.Time, kind EventKind, actor string, payload []contracts.KV, prev [32]byte) ([32]byte, error) {
	h := hashableFields{
		Seq:          seq,
		Timestamp:    ts.UTC().Format(time.RFC3339Nano),
		EventKind:    kind,
		Actor:        actor,
		Payload:      payload,
		PreviousHash: hex.EncodeToString(prev[:]),
	}
	b, err := canonicalize.JCS(h)
	if err != nil {
		return [32]byte{}, err
	}
	return canonicalize.HashBytes(b), nil
}

// Store persists entries (FileStore as length-prefixed canonical records,
// the SQL stores as table rows). Implementations are append-only: no Update, no Delete.
type Store interface {
	Persist(ctx context.Context, entry AuditEntry) error
	Load(ctx context.Context) ([]AuditEntry, error)
}

// Chain is an append-only, hash-chained audit log. All appends serialize on
// a single tail mutex; readers observe a lock-free snapshot slice refreshed
// after each append.
type Chain struct {
	mu       sync.Mutex // guards append + head advancement only
	entries  []AuditEntry
	head     [32]byte
	clock    func() time.Time
	store    Store
	telem    *telemetry.Provider
	snapshot atomic.Pointer[[]AuditEntry]
}

// New creates an empty chain. store may be nil for a pure in-memory chain
// (tests, or a caller that persists Snapshot() itself).
func New(store Store) *Chain {
	c := &Chain{
		head:  genesisHash,
		clock: time.Now,
		store: store,
	}
	empty := []AuditEntry{}
	c.snapshot.Store(&empty)
	return c
}

// WithClock overrides the clock for deterministic tests.
func (c *Chain) WithClock(clock func() time.Time) *Chain {
	c.clock = clock
	return c
}

// WithTelemetry attaches an optional metrics provider; nil-safe.
func (c *Chain) WithTelemetry(p *telemetry.Provider) *Chain {
	c.telem = p
	return c
}

// Append adds a new entry. Payload order is preserved verbatim — callers
// own canonicalization of field order at the semantic level; the KV slice
// keeps it deterministic through JSON re-encoding.
func (c *Chain) Append(ctx context.Context, kind EventKind, actor string, payload []contracts.KV) (AuditEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := uint64(len(c.entries))
	ts := c.clock().UTC()
	prev := c.head

	entryHash, err := computeEntryHash(seq, ts, kind, actor, payload, prev)
	if err != nil {
		return AuditEntry{}, fmt.Errorf("audit: failed to hash entry %d: %w", seq, err)
	}

	entry := AuditEntry{
		EntryID:      uuid.New().String(),
		Seq:          seq,
		Timestamp:    ts,
		EventKind:    kind,
		Actor:        actor,
		Payload:      payload,
		PreviousHash: prev,
		EntryHash:    entryHash,
	}

	if c.store != nil {
		if err := c.store.Persist(ctx, entry); err != nil {
			return AuditEntry{}, fmt.Errorf("audit: persist failed for seq %d: %w", seq, err)
		}
	}

	c.entries = append(c.entries, entry)
	c.head = entryHash

	next := make([]AuditEntry, len(c.entries))
	copy(next, c.entries)
	c.snapshot.Store(&next)

	c.telem.RecordAppend(ctx, string(kind))

	return entry, nil
}

// Snapshot returns a lock-free, point-in-time read view. Verify does not
// hold the append mutex while walking it, so appends never block on
// verification.
func (c *Chain) Snapshot() []AuditEntry {
	p := c.snapshot.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Head returns the current head hash.
func (c *Chain) Head() [32]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

// Len returns the number of entries appended so far.
func (c *Chain) Len() int {
	return len(c.Snapshot())
}

// VerificationReport is the result of walking the chain from genesis.
type VerificationReport struct {
	OK             bool
	FirstBadSeq    uint64
	DivergentField string
	Diagnostic     string
}

// Verify walks a snapshot of the chain from genesis, recomputing each
// entry's hash and checking it links to its predecessor. It never
// mutates the chain and never blocks appends.
func (c *Chain) Verify() VerificationReport {
	return VerifyEntries(c.Snapshot())
}

// VerifyEntries runs the same walk-from-genesis check Verify does, but over
// an arbitrary entry slice — the path a standalone verifier (e.g. huntctl
// verify-chain, reading a persisted Store directly) uses without needing a
// live Chain to append into.
func VerifyEntries(entries []AuditEntry) VerificationReport {
	prev := genesisHash

	for i, e := range entries {
		if e.PreviousHash != prev {
			return VerificationReport{
				OK:             false,
				FirstBadSeq:    e.Seq,
				DivergentField: "previous_hash",
				Diagnostic:     fmt.Sprintf("entry %d: expected previous_hash %x, found %x", e.Seq, prev, e.PreviousHash),
			}
		}

		recomputed, err := computeEntryHash(e.Seq, e.Timestamp, e.EventKind, e.Actor, e.Payload, e.PreviousHash)
		if err != nil {
			return VerificationReport{
				OK:             false,
				FirstBadSeq:    e.Seq,
				DivergentField: "entry_hash",
				Diagnostic:     fmt.Sprintf("entry %d: failed to recompute hash: %v", e.Seq, err),
			}
		}

		if recomputed != e.EntryHash {
			return VerificationReport{
				OK:             false,
				FirstBadSeq:    e.Seq,
				DivergentField: "entry_hash",
				Diagnostic:     fmt.Sprintf("entry %d: hash mismatch, expected %x, stored %x", e.Seq, recomputed, e.EntryHash),
			}
		}

		if e.Seq != uint64(i) {
			return VerificationReport{
				OK:             false,
				FirstBadSeq:    e.Seq,
				DivergentField: "seq",
				Diagnostic:     fmt.Sprintf("entry at position %d carries seq %d: sequence is not dense", i, e.Seq),
			}
		}

		prev = e.EntryHash
	}

	return VerificationReport{OK: true, Diagnostic: "chain verified"}
}

// IntegrityFault wraps a failed verification as a hard-stop error and
// records a fresh entry about the inconsistency before propagating — an
// integrity fault is itself auditable.
func (c *Chain) IntegrityFault(ctx context.Context, report VerificationReport) error {
	_, _ = c.Append(ctx, EventAuditIntegrityFault, "audit-chain", []contracts.KV{
		{Key: "first_bad_seq", Value: fmt.Sprintf("%d", report.FirstBadSeq)},
		{Key: "divergent_field", Value: report.DivergentField},
		{Key: "diagnostic", Value: report.Diagnostic},
	})
	return contracts.NewHardStop("AUDIT_INTEGRITY_FAULT", fmt.Errorf("%s", report.Diagnostic))
}

// CountTransmitted returns the number of TRANSMITTED entries matching key,
// the history check the duplicate guard consults before acquiring a key.
func CountTransmitted(entries []AuditEntry, key contracts.SubmissionKey) int {
	count := 0
	for _, e := range entries {
		if e.EventKind != EventTransmitted {
			continue
		}
		if kvGet(e.Payload, "decision_id") == key.DecisionID && kvGet(e.Payload, "platform") == key.Platform {
			count++
		}
	}
	return count
}

func kvGet(kvs []contracts.KV, key string) string {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}
