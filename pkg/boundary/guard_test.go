package boundary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstruct_ForbiddenImport(t *testing.T) {
	g := New()
	err := g.Construct(ComponentManifest{
		Name:    "hypothesis.Engine",
		Imports: []string{"net/http"},
	})
	var violation *ForbiddenImportViolation
	require.ErrorAs(t, err, &violation)
	assert.True(t, violation.HardStop())
}

func TestConstruct_ExemptImportAllowed(t *testing.T) {
	g := New()
	err := g.Construct(ComponentManifest{
		Name:    "transmit.RequestCountingAdapter",
		Imports: []string{"net/http"},
	})
	require.NoError(t, err)
}

func TestConstruct_ForbiddenMethodNames(t *testing.T) {
	cases := []string{"execute_patch", "submit_report", "classify_observation", "auto_submit", "write_phase_7_draft"}
	for _, method := range cases {
		g := New()
		err := g.Construct(ComponentManifest{Name: "test.Component", Methods: []string{method}})
		var violation *ForbiddenMethodViolation
		require.ErrorAsf(t, err, &violation, "expected %s to be forbidden", method)
	}
}

func TestConstruct_AllowedMethodNames(t *testing.T) {
	g := New()
	err := g.Construct(ComponentManifest{Name: "test.Component", Methods: []string{"Issue", "Consume", "Append", "Verify"}})
	require.NoError(t, err)
}

func TestRequire_MissingCapabilityIsHardStop(t *testing.T) {
	g := New()
	err := g.Require("confirmation.Registry", CapConfirmationIssue)
	var violation *CapabilityMissingViolation
	require.ErrorAs(t, err, &violation)
	assert.True(t, violation.HardStop())
}

func TestRequire_GrantedCapabilitySucceeds(t *testing.T) {
	g := New()
	g.Grant("confirmation.Registry", CapConfirmationIssue, CapConfirmationUse)
	require.NoError(t, g.Require("confirmation.Registry", CapConfirmationIssue))
	require.NoError(t, g.Require("confirmation.Registry", CapConfirmationUse))
	require.Error(t, g.Require("confirmation.Registry", CapNetworkTransmit))
}

func TestCheckWrite_ReadOnlyPhaseRejected(t *testing.T) {
	g := New()
	err := g.CheckWrite("truthengine.Client", []string{"audit-chain"}, "audit-chain")
	var violation *ReadOnlyViolation
	require.ErrorAs(t, err, &violation)
	assert.True(t, violation.HardStop())
}

func TestCheckWrite_NonReadOnlyPhaseAllowed(t *testing.T) {
	g := New()
	require.NoError(t, g.CheckWrite("orchestrator.Orchestrator", []string{"audit-chain"}, "exploration-summary"))
}
