// Package boundary implements the structural and runtime checks that keep
// the "assist, never act" discipline enforceable rather than aspirational.
// Every other core component is constructed through this package: at
// construction time the guard asserts the component declares no forbidden
// import, no forbidden method name, and a capability token for every
// operation it intends to perform. Violations are hard-stops and are never
// caught inside the core.
package boundary

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// forbiddenImports is the closed set of module name fragments no core
// component may import: execution libraries, HTTP clients used for
// anything beyond the one gated transmit call, browser automation, UI
// automation. Matched as a substring against a caller-declared import list
// because Go has no runtime import introspection — components declare
// their own import surface via Declare (see ComponentManifest).
var forbiddenImports = []string{
	"os/exec",
	"syscall/js",
	"net/http", // permitted only for the explicitly-exempted transmit/probe collaborators
	"github.com/go-rod/rod",
	"github.com/playwright-community/playwright-go",
	"github.com/chromedp/chromedp",
	"github.com/robotn/gohook",
}

// exemptImports lists components that are structurally allowed to declare
// an otherwise-forbidden import because their entire reason for existing is
// that capability, gated elsewhere (the adapter's request-counting base, the
// probe tool's read-only client). Declared explicitly so the allowlist is
// itself auditable, not inferred.
var exemptImports = map[string][]string{
	"transmit.RequestCountingAdapter": {"net/http"},
	"toolprobe.Probe":                 {"net/http"},
	"platformhttp.Adapter":            {"net/http"},
}

// forbiddenMethodPatterns are regexes against a component's declared method
// names. A name matching any of these can never appear on a core component
// — it would indicate the component is doing something only an external
// collaborator (or a human) is allowed to do.
var forbiddenMethodPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^execute_.*`),
	regexp.MustCompile(`(?i)^submit_.*`), // confirmation registry's own "issue/consume" are fine; raw "submit_*" is not
	regexp.MustCompile(`(?i)^classify_.*`),
	regexp.MustCompile(`(?i)^auto_.*`),
	regexp.MustCompile(`(?i)^write_phase_(4|5|6|7|8|9|10)_.*`),
}

// ReadOnlyViolation is raised when a component attempts to write into a
// phase the guard has marked read-only for it.
type ReadOnlyViolation struct {
	Component string
	Target    string
}

func (e *ReadOnlyViolation) Error() string {
	return fmt.Sprintf("boundary: %s attempted write into read-only phase %q", e.Component, e.Target)
}

func (e *ReadOnlyViolation) HardStop() bool { return true }

// ForbiddenImportViolation is raised when a component's declared import
// surface contains an entry matched by forbiddenImports without a matching
// exemption.
type ForbiddenImportViolation struct {
	Component string
	Import    string
}

func (e *ForbiddenImportViolation) Error() string {
	return fmt.Sprintf("boundary: %s declares forbidden import %q", e.Component, e.Import)
}

func (e *ForbiddenImportViolation) HardStop() bool { return true }

// ForbiddenMethodViolation is raised when a component declares a method name
// matching a forbidden action pattern.
type ForbiddenMethodViolation struct {
	Component string
	Method    string
}

func (e *ForbiddenMethodViolation) Error() string {
	return fmt.Sprintf("boundary: %s declares forbidden method %q", e.Component, e.Method)
}

func (e *ForbiddenMethodViolation) HardStop() bool { return true }

// CapabilityMissingViolation is raised when a guarded operation runs without
// the capability token it requires.
type CapabilityMissingViolation struct {
	Component  string
	Capability Capability
}

func (e *CapabilityMissingViolation) Error() string {
	return fmt.Sprintf("boundary: %s invoked a guarded operation without capability %q", e.Component, e.Capability)
}

func (e *CapabilityMissingViolation) HardStop() bool { return true }

// Capability is a named permission a component must be explicitly granted
// before a guarded operation will run.
type Capability string

const (
	CapAuditAppend       Capability = "audit.append"
	CapTruthEngineSubmit Capability = "truthengine.submit"
	CapBudgetConsume     Capability = "budget.consume"
	CapConfirmationIssue Capability = "confirmation.issue"
	CapConfirmationUse   Capability = "confirmation.consume"
	CapNetworkTransmit   Capability = "network.transmit"
	CapPatchApply        Capability = "patch.apply"
	CapWorkflowTransit   Capability = "workflow.transition"
)

// ComponentManifest is what a core component declares about itself at
// construction time: its own name, the imports it uses, the method names it
// exposes, and the phases it may only read. Capabilities are not declared
// here; they are granted with Grant and checked per operation by Require.
type ComponentManifest struct {
	Name       string
	Imports    []string
	Methods    []string
	ReadOnlyOf []string // phases this component may only read, never write
}

// Guard is the boundary enforcement point. One Guard is shared across all
// core components in a process; it holds no per-component mutable state
// beyond the set of capabilities actually granted.
type Guard struct {
	mu      sync.RWMutex
	grants  map[string]map[Capability]bool
	written map[string]bool // phases observed to have been written to, for diagnostics only
}

// New returns a Guard with no grants. Every capability a component needs
// must be explicitly granted via Grant before first use — there is no
// default-allow.
func New() *Guard {
	return &Guard{
		grants:  make(map[string]map[Capability]bool),
		written: make(map[string]bool),
	}
}

// Construct asserts structural conditions (a), (b) on a manifest and
// returns the first violation found, or nil. It must be called once per
// component at construction time, before the component does anything else.
func (g *Guard) Construct(m ComponentManifest) error {
	for _, imp := range m.Imports {
		if !importAllowed(m.Name, imp) {
			return &ForbiddenImportViolation{Component: m.Name, Import: imp}
		}
	}
	for _, method := range m.Methods {
		for _, pattern := range forbiddenMethodPatterns {
			if pattern.MatchString(method) {
				return &ForbiddenMethodViolation{Component: m.Name, Method: method}
			}
		}
	}
	return nil
}

func importAllowed(component, imp string) bool {
	for _, forbidden := range forbiddenImports {
		if !strings.Contains(imp, forbidden) {
			continue
		}
		for exemptComponent, exemptList := range exemptImports {
			if exemptComponent != component {
				continue
			}
			for _, e := range exemptList {
				if strings.Contains(imp, e) {
					return true
				}
			}
		}
		return false
	}
	return true
}

// Grant records that component is permitted to invoke cap. Grants are
// additive and never auto-expire; revocation is not modeled because the
// core never needs to take a capability away mid-run — it is a
// construction-time wiring decision, not a runtime policy knob.
func (g *Guard) Grant(component string, caps ...Capability) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.grants[component]
	if !ok {
		set = make(map[Capability]bool)
		g.grants[component] = set
	}
	for _, c := range caps {
		set[c] = true
	}
}

// Require is called at the top of every guarded operation (condition (c)).
// It raises a hard-stop if component was never granted cap.
func (g *Guard) Require(component string, cap Capability) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.grants[component] != nil && g.grants[component][cap] {
		return nil
	}
	return &CapabilityMissingViolation{Component: component, Capability: cap}
}

// CheckWrite enforces condition (d): a write attempt into a phase marked
// read-only for component raises ReadOnlyViolation.
func (g *Guard) CheckWrite(component string, readOnlyOf []string, target string) error {
	for _, ro := range readOnlyOf {
		if ro == target {
			return &ReadOnlyViolation{Component: component, Target: target}
		}
	}
	g.mu.Lock()
	g.written[target] = true
	g.mu.Unlock()
	return nil
}
