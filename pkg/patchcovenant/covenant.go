// Package patchcovenant implements the patch covenant: the
// only path by which a suggested source change can ever be written to
// disk, and only after an explicit human confirmation has been recorded
// and cryptographically bound to the exact patch content.
package patchcovenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/huntfabric/corehunt/pkg/audit"
	"github.com/huntfabric/corehunt/pkg/boundary"
	"github.com/huntfabric/corehunt/pkg/canonicalize"
	"github.com/huntfabric/corehunt/pkg/contracts"
)

// Rejected is raised by ApplyPatch when the bound decision recorded a
// rejection rather than a confirmation.
type Rejected struct {
	PatchID string
}

func (e *Rejected) Error() string {
	return fmt.Sprintf("patchcovenant: patch %q was rejected, not confirmed", e.PatchID)
}

func (e *Rejected) HardStop() bool { return true }

// Unconfirmed is raised by ApplyPatch when no binding exists for the
// patch at all — ApplyPatch never infers consent.
type Unconfirmed struct {
	PatchID string
}

func (e *Unconfirmed) Error() string {
	return fmt.Sprintf("patchcovenant: patch %q has no recorded human confirmation", e.PatchID)
}

func (e *Unconfirmed) HardStop() bool { return true }

// BindingMismatch is raised when VerifyBinding's recomputed hash diverges
// from the stored binding hash — the patch hash, decision hash, or
// timestamp has changed since binding.
type BindingMismatch struct {
	PatchID string
}

func (e *BindingMismatch) Error() string {
	if e.PatchID == "" {
		return "patchcovenant: binding no longer matches its recorded content"
	}
	return fmt.Sprintf("patchcovenant: binding for patch %q no longer matches its recorded content", e.PatchID)
}

func (e *BindingMismatch) HardStop() bool { return true }

// ForbiddenSymbol is raised when ValidateSymbols finds a patch referencing
// a symbol on the static denylist. Denylist entries always win over
// allowlist entries for the same symbol.
type ForbiddenSymbol struct {
	Symbol string
}

func (e *ForbiddenSymbol) Error() string {
	return fmt.Sprintf("patchcovenant: symbol %q is not permitted in a patch", e.Symbol)
}

func (e *ForbiddenSymbol) HardStop() bool { return true }

// forbiddenSymbols is the static denylist: dynamic-execution primitives
// across common runtimes. A patch referencing any of these is refused
// regardless of allowlist membership.
var forbiddenSymbols = map[string]bool{
	"eval":             true,
	"exec":             true,
	"compile":          true,
	"subprocess":       true,
	"os/exec":          true,
	"__import__":       true,
	"importlib":        true,
	"unsafe":           true,
	"reflect.NewAt":    true,
	"dlopen":           true,
	"Function":         true, // JS dynamic function constructor
	"child_process":    true,
	"pickle.loads":     true,
	"marshal.loads":    true,
}

// SymbolPolicy is a versioned allowlist of symbols permitted in a patch for
// a given covenant schema version, using Masterminds/semver/v3 constraints
// so the allowlist can evolve without breaking older bindings.
type SymbolPolicy struct {
	Version    *semver.Version
	Constraint *semver.Constraints
	Allowed    map[string]bool
}

// DefaultSymbolPolicies is the static, versioned allow-list table. Every
// entry whose constraint the covenant version satisfies adds its symbols to
// the allowed set; the denylist in forbiddenSymbols always takes precedence
// over any entry here.
var DefaultSymbolPolicies = mustBuildDefaultPolicies()

func mustBuildDefaultPolicies() []SymbolPolicy {
	c, err := semver.NewConstraint(">= 1.0.0")
	if err != nil {
		panic(fmt.Sprintf("patchcovenant: invalid default symbol policy constraint: %v", err))
	}
	return []SymbolPolicy{
		{
			Constraint: c,
			Allowed: map[string]bool{
				"fmt":     true,
				"strings": true,
				"strconv": true,
				"errors":  true,
				"net/url": true,
				"time":    true,
			},
		},
	}
}

// ValidateSymbols checks every symbol referenced by a proposed patch
// against the denylist first, then the versioned allowlist. covenantVersion
// selects which SymbolPolicy entries apply.
func ValidateSymbols(symbols []string, covenantVersion string, policies []SymbolPolicy) error {
	v, err := semver.NewVersion(covenantVersion)
	if err != nil {
		return fmt.Errorf("patchcovenant: invalid covenant version %q: %w", covenantVersion, err)
	}
	if policies == nil {
		policies = DefaultSymbolPolicies
	}

	for _, sym := range symbols {
		if forbiddenSymbols[sym] {
			return &ForbiddenSymbol{Symbol: sym}
		}
	}

	allowed := make(map[string]bool)
	for _, p := range policies {
		if p.Constraint != nil && !p.Constraint.Check(v) {
			continue
		}
		for sym := range p.Allowed {
			allowed[sym] = true
		}
	}

	for _, sym := range symbols {
		if !allowed[sym] {
			return &ForbiddenSymbol{Symbol: sym}
		}
	}
	return nil
}

// Covenant is the patch covenant: it records human confirmation decisions,
// binds a confirmed patch to its exact content, and is the only component
// permitted to call ApplyPatch's write callback.
type Covenant struct {
	chain    *audit.Chain
	clock    func() time.Time
	boundary *boundary.Guard
}

const componentName = "patchcovenant.Covenant"

var manifest = boundary.ComponentManifest{
	Name:    componentName,
	Imports: []string{"github.com/Masterminds/semver/v3"},
	Methods: []string{"RecordConfirmation", "CreateBinding", "VerifyBinding", "ApplyPatch"},
}

// New wires a Covenant to the audit chain it records confirmations and
// applications against.
func New(chain *audit.Chain) *Covenant {
	return &Covenant{chain: chain, clock: time.Now}
}

// WithBoundary registers the covenant with the boundary guard; from then on
// ApplyPatch requires the patch.apply capability to have been granted.
func (c *Covenant) WithBoundary(g *boundary.Guard) (*Covenant, error) {
	if err := g.Construct(manifest); err != nil {
		return nil, err
	}
	c.boundary = g
	return c, nil
}

// RecordConfirmation stores a human's decision about a proposed patch —
// confirmed or rejected — as an immutable PatchRecord and appends it to
// the audit chain. This is the only way a PatchRecord is ever created.
func (c *Covenant) RecordConfirmation(ctx context.Context, diff string, symbols []string, confirmed bool, reason, actor string) (contracts.PatchRecord, error) {
	hash, err := canonicalize.Hash(map[string]any{"diff": diff, "symbols": symbols})
	if err != nil {
		return contracts.PatchRecord{}, fmt.Errorf("patchcovenant: failed to hash patch content: %w", err)
	}

	rec := contracts.PatchRecord{
		PatchID:   uuid.New().String(),
		Timestamp: c.clock().UTC(),
		Confirmed: confirmed,
		Reason:    reason,
		PatchHash: hash,
		Diff:      diff,
		Symbols:   symbols,
		Actor:     actor,
	}

	if c.chain != nil {
		_, err := c.chain.Append(ctx, audit.EventPatchConfirmation, actor, []contracts.KV{
			{Key: "patch_id", Value: rec.PatchID},
			{Key: "confirmed", Value: fmt.Sprintf("%t", confirmed)},
			{Key: "patch_hash", Value: fmt.Sprintf("%x", hash)},
		})
		if err != nil {
			return contracts.PatchRecord{}, err
		}
	}

	return rec, nil
}

// CreateBinding cryptographically binds a confirmed PatchRecord's hash and
// a decision hash (e.g. the hash of the workflow decision that triggered
// it) to the moment of binding, producing a BindingHash that VerifyBinding
// can later recompute and compare. The session id travels on the binding
// for attribution but is not part of the bound triple — rebinding the same
// patch in the same session at a different time yields a different hash.
func (c *Covenant) CreateBinding(ctx context.Context, rec contracts.PatchRecord, decisionHash [32]byte, timestamp time.Time, sessionID string) (contracts.PatchBinding, error) {
	bindingHash, err := computeBindingHash(rec.PatchHash, decisionHash, timestamp)
	if err != nil {
		return contracts.PatchBinding{}, err
	}

	binding := contracts.PatchBinding{
		BindingHash:  bindingHash,
		PatchHash:    rec.PatchHash,
		DecisionHash: decisionHash,
		Timestamp:    timestamp.UTC(),
		SessionID:    sessionID,
	}

	if c.chain != nil {
		_, err := c.chain.Append(ctx, audit.EventPatchBindingCreated, rec.Actor, []contracts.KV{
			{Key: "patch_id", Value: rec.PatchID},
			{Key: "binding_hash", Value: fmt.Sprintf("%x", bindingHash)},
		})
		if err != nil {
			return contracts.PatchBinding{}, err
		}
	}

	return binding, nil
}

// VerifyBinding recomputes the binding hash from the binding's own patch
// hash, decision hash, and timestamp and compares it against
// binding.BindingHash. Changing any of the three falsifies the binding.
func (c *Covenant) VerifyBinding(binding contracts.PatchBinding) error {
	recomputed, err := computeBindingHash(binding.PatchHash, binding.DecisionHash, binding.Timestamp)
	if err != nil {
		return err
	}
	if recomputed != binding.BindingHash {
		return &BindingMismatch{}
	}
	return nil
}

func computeBindingHash(patchHash, decisionHash [32]byte, timestamp time.Time) ([32]byte, error) {
	h, err := canonicalize.Hash(map[string]any{
		"patch_hash":    fmt.Sprintf("%x", patchHash),
		"decision_hash": fmt.Sprintf("%x", decisionHash),
		"timestamp":     timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("patchcovenant: failed to hash binding: %w", err)
	}
	return h, nil
}

// Writer performs the actual filesystem write for a confirmed patch.
// ApplyPatch is the only caller ever permitted to invoke it.
type Writer func(diff string) error

// ApplyPatch is the single write path for the whole covenant. It refuses
// unless rec.Confirmed is true and binding verifies; it then invokes write
// exactly once and records PATCH_APPLIED only after write succeeds.
func (c *Covenant) ApplyPatch(ctx context.Context, rec contracts.PatchRecord, binding contracts.PatchBinding, write Writer) error {
	if c.boundary != nil {
		if err := c.boundary.Require(componentName, boundary.CapPatchApply); err != nil {
			return err
		}
	}
	if !rec.Confirmed {
		return &Rejected{PatchID: rec.PatchID}
	}
	if binding.BindingHash == ([32]byte{}) {
		return &Unconfirmed{PatchID: rec.PatchID}
	}
	if binding.PatchHash != rec.PatchHash {
		return &BindingMismatch{PatchID: rec.PatchID}
	}
	if err := c.VerifyBinding(binding); err != nil {
		var mismatch *BindingMismatch
		if errors.As(err, &mismatch) {
			return &BindingMismatch{PatchID: rec.PatchID}
		}
		return err
	}

	if err := write(rec.Diff); err != nil {
		return fmt.Errorf("patchcovenant: write failed: %w", err)
	}

	if c.chain != nil {
		_, err := c.chain.Append(ctx, audit.EventPatchApplied, rec.Actor, []contracts.KV{
			{Key: "patch_id", Value: rec.PatchID},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RenderDiff renders a minimal unified-diff summary between before and
// after, for human review. It never writes anything — the only writer in
// this package is the callback ApplyPatch invokes.
func RenderDiff(path, before, after string) string {
	var b []byte
	b = append(b, []byte(fmt.Sprintf("--- a/%s\n+++ b/%s\n", path, path))...)
	if before == after {
		b = append(b, []byte(" (no change)\n")...)
		return string(b)
	}
	b = append(b, []byte(fmt.Sprintf("-%s\n+%s\n", before, after))...)
	return string(b)
}
