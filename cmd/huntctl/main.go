// huntctl is the thin CLI front-end for the governance core. It is an external collaborator: it never reaches into a core
// package's internals, only the contracts each component already exposes,
// and it translates hard-stop errors into a non-zero exit code with a fatal
// slog line — the core itself exposes library functions only.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/huntfabric/corehunt/pkg/audit"
	"github.com/huntfabric/corehunt/pkg/config"
	"github.com/huntfabric/corehunt/pkg/confirmation"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the testable entrypoint.
func Run(args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if len(args) < 2 {
		printUsage(stdout)
		return 0
	}

	switch args[1] {
	case "verify-chain":
		return runVerifyChain(args[2:], stdout, logger)
	case "confirm":
		return runConfirm(args[2:], stdout, logger)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "huntctl: unknown command %q\n", args[1])
		printUsage(stdout)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: huntctl <command> [arguments]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  verify-chain   Verify an on-disk audit chain's hash integrity")
	fmt.Fprintln(w, "  confirm        Issue a submission confirmation for a report hash")
	fmt.Fprintln(w, "\nSubcommands that mutate state (explore, submit, patch-apply) are")
	fmt.Fprintln(w, "library operations only; wire them from your own driver program —")
	fmt.Fprintln(w, "huntctl exposes only the read-only and human-confirmation-gated ones")
	fmt.Fprintln(w, "that are safe to run from a bare CLI invocation.")
}

func runVerifyChain(args []string, stdout io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("verify-chain", flag.ContinueOnError)
	dbPath := fs.String("db", "", "path to the audit store (defaults to audit.log_path config)")
	format := fs.String("format", "sqlite", "audit store format: sqlite or file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(os.Getenv("HUNT_CONFIG_FILE"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}
	path := *dbPath
	if path == "" {
		path = cfg.Audit.LogPath
	}

	var store interface {
		Load(ctx context.Context) ([]audit.AuditEntry, error)
		Close() error
	}
	var err2 error
	switch *format {
	case "file":
		store, err2 = audit.OpenFileStore(path)
	case "sqlite":
		store, err2 = audit.OpenSQLiteStore(path)
	default:
		fmt.Fprintf(os.Stderr, "huntctl verify-chain: unknown format %q\n", *format)
		return 2
	}
	if err2 != nil {
		logger.Error("failed to open audit store", "path", path, "error", err2)
		return 1
	}
	defer store.Close()

	entries, err := store.Load(context.Background())
	if err != nil {
		logger.Error("failed to load audit entries", "error", err)
		return 1
	}

	report := audit.VerifyEntries(entries)
	if !report.OK {
		logger.Error("AUDIT_INTEGRITY_FAULT: chain verification failed (HARD STOP)",
			"first_bad_seq", report.FirstBadSeq,
			"divergent_field", report.DivergentField,
			"diagnostic", report.Diagnostic,
		)
		return 1
	}

	fmt.Fprintf(stdout, "chain verified: %d entries\n", len(entries))
	return 0
}

func runConfirm(args []string, stdout io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("confirm", flag.ContinueOnError)
	requestID := fs.String("request-id", "", "request id the confirmation binds to")
	submitterID := fs.String("submitter-id", "", "human submitter id")
	reportHashHex := fs.String("report-hash", "", "hex-encoded SHA-256 report hash")
	signingKeyEnv := fs.String("signing-key-env", "HUNT_CONFIRMATION_SIGNING_KEY", "env var holding the HMAC signing key")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *requestID == "" || *submitterID == "" || *reportHashHex == "" {
		fmt.Fprintln(os.Stderr, "huntctl confirm: -request-id, -submitter-id, and -report-hash are required")
		return 2
	}

	raw, err := hex.DecodeString(*reportHashHex)
	if err != nil || len(raw) != 32 {
		fmt.Fprintln(os.Stderr, "huntctl confirm: -report-hash must be a 64-character hex string")
		return 2
	}
	var reportHash [32]byte
	copy(reportHash[:], raw)

	signingKey := []byte(os.Getenv(*signingKeyEnv))
	if len(signingKey) == 0 {
		logger.Error("signing key env var is unset or empty", "env", *signingKeyEnv)
		return 1
	}

	registry := confirmation.New(signingKey, nil)
	conf, err := registry.Issue(context.Background(), *requestID, *submitterID, reportHash)
	if err != nil {
		logger.Error("failed to issue confirmation", "error", err)
		return 1
	}

	fmt.Fprintf(stdout, "confirmation_id=%s expires_at=%s\n", conf.ConfirmationID, conf.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	return 0
}
