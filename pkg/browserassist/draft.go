package browserassist

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/huntfabric/corehunt/pkg/contracts"
)

// ReproductionStep is one numbered step in a draft report's reproduction
// section, each carrying the expected and actual behavior the assistant
// observed.
type ReproductionStep struct {
	Instruction string
	Expected    string
	Actual      string
}

// DraftInput is everything the generator needs to assemble a markdown
// draft report. Severity and the human-only fields are intentionally not
// part of this struct's required data — they are stamped as placeholders
// and must be filled in by a human before submission.
type DraftInput struct {
	FindingID     string
	Title         string
	Description   string
	Steps         []ReproductionStep
	ProofSummary  string
	GeneratedBy   string
}

// DraftReportGenerator assembles markdown draft reports in a fixed section
// order: every field a human must assign is stamped with an explicit
// placeholder rather than guessed at.
type DraftReportGenerator struct {
	clock func() time.Time
}

// NewDraftReportGenerator wires a generator.
func NewDraftReportGenerator() *DraftReportGenerator {
	return &DraftReportGenerator{clock: time.Now}
}

// Generate renders a contracts.DraftReport whose Description field holds
// the full assembled markdown body, matching the fixed section order:
// Title, Severity placeholder, Finding ID, Generated timestamp,
// Description, Reproduction Steps, Proof Summary, Impact and Remediation
// placeholders, generator trailer.
func (g *DraftReportGenerator) Generate(requestID string, in DraftInput) contracts.DraftReport {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", in.Title)
	fmt.Fprintf(&b, "**Severity:** [Human must assign]\n\n")
	fmt.Fprintf(&b, "**Finding ID:** %s\n\n", in.FindingID)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", g.clock().UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "## Description\n\n%s\n\n", in.Description)

	b.WriteString("## Reproduction Steps\n\n")
	for i, step := range in.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step.Instruction)
		fmt.Fprintf(&b, "   - Expected: %s\n", step.Expected)
		fmt.Fprintf(&b, "   - Actual: %s\n", step.Actual)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Proof Summary\n\n%s\n\n", in.ProofSummary)

	fmt.Fprintf(&b, "**Impact:** [Human must provide]\n\n")
	fmt.Fprintf(&b, "**Remediation:** [Human must provide]\n\n")
	fmt.Fprintf(&b, "---\n_Generated by %s. This draft was assembled by an assistive tool and has not been reviewed. A human must confirm every field above before submission._\n", in.GeneratedBy)

	return contracts.DraftReport{
		DraftID:     uuid.New().String(),
		RequestID:   requestID,
		Title:       in.Title,
		Description: b.String(),
		Severity:    "[Human must assign]",
		CustomFields: []contracts.KV{
			{Key: "finding_id", Value: in.FindingID},
		},
	}
}
