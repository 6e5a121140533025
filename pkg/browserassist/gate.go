package browserassist

import (
	"fmt"
	"sync"
	"time"

	"github.com/huntfabric/corehunt/pkg/contracts"
)

// MaxPendingOutputs bounds the number of records the gate holds, pending or
// decided; the oldest record is evicted to make room rather than growing
// without bound, whatever its status. There
// is no timeout-based auto-approval — an evicted output is simply never
// confirmable again, not silently approved.
const MaxPendingOutputs = 1000

// ConfirmationRecord tracks one AssistiveOutput through its lifecycle.
type ConfirmationRecord struct {
	Output     contracts.AssistiveOutput
	Status     string // PENDING, CONFIRMED, REJECTED
	By         string
	DecidedAt  time.Time
}

// NotFound is raised when Confirm targets an output the gate has no record
// of (already evicted, or never emitted).
type NotFound struct {
	OutputID string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("browserassist: no pending output %q", e.OutputID)
}

// AlreadyDecided is raised when Confirm targets an output that has already
// been confirmed or rejected — confirmation is single-use, matching the
// confirmation registry's consume-once semantics.
type AlreadyDecided struct {
	OutputID string
	Status   string
}

func (e *AlreadyDecided) Error() string {
	return fmt.Sprintf("browserassist: output %q already %s", e.OutputID, e.Status)
}

// HumanConfirmationGate wraps every AssistiveOutput emitted by the
// analyzers or draft generator in a PENDING record. Nothing the gate holds
// is ever auto-approved; every confirmation is a distinct, attributed
// human action.
type HumanConfirmationGate struct {
	mu      sync.Mutex
	order   []string
	records map[string]*ConfirmationRecord
	clock   func() time.Time
}

// NewHumanConfirmationGate wires an empty gate.
func NewHumanConfirmationGate() *HumanConfirmationGate {
	return &HumanConfirmationGate{records: make(map[string]*ConfirmationRecord), clock: time.Now}
}

// Submit registers output as PENDING, evicting the oldest record (pending
// or already decided) if the gate is at capacity.
func (g *HumanConfirmationGate) Submit(output contracts.AssistiveOutput) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.records[output.OutputID] = &ConfirmationRecord{Output: output, Status: "PENDING"}
	g.order = append(g.order, output.OutputID)
	for len(g.order) > MaxPendingOutputs {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.records, oldest)
	}
}

// Confirm records a single human decision on outputID. approved=false
// records a rejection; both are terminal. There is no batch-confirm
// entrypoint — every output requires its own call.
func (g *HumanConfirmationGate) Confirm(outputID, by string, approved bool) (ConfirmationRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[outputID]
	if !ok {
		return ConfirmationRecord{}, &NotFound{OutputID: outputID}
	}
	if rec.Status != "PENDING" {
		return ConfirmationRecord{}, &AlreadyDecided{OutputID: outputID, Status: rec.Status}
	}

	if approved {
		rec.Status = "CONFIRMED"
	} else {
		rec.Status = "REJECTED"
	}
	rec.By = by
	rec.DecidedAt = g.clock().UTC()
	return *rec, nil
}

// Status returns the current record for outputID, if any.
func (g *HumanConfirmationGate) Status(outputID string) (ConfirmationRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[outputID]
	if !ok {
		return ConfirmationRecord{}, false
	}
	return *rec, true
}

// Pending returns every output still awaiting a decision, oldest first.
func (g *HumanConfirmationGate) Pending() []contracts.AssistiveOutput {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []contracts.AssistiveOutput
	for _, id := range g.order {
		rec := g.records[id]
		if rec.Status == "PENDING" {
			out = append(out, rec.Output)
		}
	}
	return out
}
