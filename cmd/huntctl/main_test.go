package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_Help(t *testing.T) {
	args := []string{"huntctl", "--help"}
	var stdout, stderr bytes.Buffer

	exitCode := Run(args, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "Usage: huntctl")
}

func TestRun_NoArgs(t *testing.T) {
	args := []string{"huntctl"}
	var stdout, stderr bytes.Buffer

	exitCode := Run(args, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "Usage: huntctl")
}

func TestRun_Unknown(t *testing.T) {
	args := []string{"huntctl", "nonsense"}
	var stdout, stderr bytes.Buffer

	exitCode := Run(args, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "unknown command")
}

func TestRun_Confirm_MissingArgs(t *testing.T) {
	args := []string{"huntctl", "confirm"}
	var stdout, stderr bytes.Buffer

	exitCode := Run(args, &stdout, &stderr)

	assert.Equal(t, 2, exitCode)
}

func TestRun_Confirm_IssuesConfirmation(t *testing.T) {
	t.Setenv("HUNT_CONFIRMATION_SIGNING_KEY", "test-signing-key")
	reportHash := "00000000000000000000000000000000000000000000000000000000000000ff"
	args := []string{"huntctl", "confirm",
		"-request-id", "req-1",
		"-submitter-id", "alice",
		"-report-hash", reportHash,
	}
	var stdout, stderr bytes.Buffer

	exitCode := Run(args, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "confirmation_id=")
}

func TestRun_VerifyChain_MissingStore(t *testing.T) {
	args := []string{"huntctl", "verify-chain", "-db", t.TempDir() + "/does-not-exist-yet.db"}
	var stdout, stderr bytes.Buffer

	exitCode := Run(args, &stdout, &stderr)

	// A fresh sqlite file is created on open, so an empty chain verifies OK.
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "chain verified: 0 entries")
}
