// Package truthengine is the sole interface to the external classifier.
// It never fabricates a classification and never interprets one —
// it is a read-only façade over a collaborator the core does not own.
package truthengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/huntfabric/corehunt/pkg/contracts"
)

// RateLimitStatus mirrors the Truth Engine's own rate-limit signal; the
// core attaches no local interpretation beyond the orchestrator's halving
// reaction.
type RateLimitStatus string

const (
	RateOK         RateLimitStatus = "OK"
	RateApproaching RateLimitStatus = "APPROACHING"
	RateExceeded   RateLimitStatus = "EXCEEDED"
	RateUnknown    RateLimitStatus = "UNKNOWN"
)

// ScopeValidation mirrors the Truth Engine's scope_check output.
type ScopeValidation struct {
	InScope bool
	Reason  string
}

// Unavailable is raised whenever the Truth Engine cannot be reached or
// returns a malformed/unexpected response. It is always a hard-stop: no
// classification means no decisions.
type Unavailable struct {
	Op  string
	Err error
}

func (e *Unavailable) Error() string {
	return fmt.Sprintf("truthengine: %s unavailable: %v", e.Op, e.Err)
}

func (e *Unavailable) Unwrap() error { return e.Err }

func (e *Unavailable) HardStop() bool { return true }

// IsUnavailable reports whether err (or anything it wraps) is an
// Unavailable hard-stop, the condition the orchestrator must propagate
// rather than treat as a retryable tool failure.
func IsUnavailable(err error) bool {
	var unavailable *Unavailable
	return errors.As(err, &unavailable)
}

// ProtocolViolation is raised when the Truth Engine returns null or an
// unexpected type — a hard protocol violation, never a default-to-OK.
type ProtocolViolation struct {
	Op     string
	Detail string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("truthengine: protocol violation in %s: %s", e.Op, e.Detail)
}

func (e *ProtocolViolation) HardStop() bool { return true }

// Backend is the transport-level contract an external collaborator
// implements (HTTP client, gRPC stub, in-process test double). Client wraps
// a Backend with the read-only discipline the core requires.
type Backend interface {
	ValidateObservation(ctx context.Context, obs contracts.Observation) (contracts.Classification, error)
	ValidateScope(ctx context.Context, target contracts.Target) (ScopeValidation, error)
	CheckRateLimit(ctx context.Context) (RateLimitStatus, error)
	GetCoverageReport(ctx context.Context) (map[string]any, error)
}

// Client is the read-only façade the rest of the core talks to. It never
// classifies on its own and never caches a classification across calls.
type Client struct {
	backend Backend
	logger  *slog.Logger
}

// New wires a Client to its backend. logger may be nil (defaults to
// slog.Default()).
func New(backend Backend, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{backend: backend, logger: logger}
}

// Submit sends an observation for classification and returns the Truth
// Engine's verdict verbatim. It never synthesizes a default on failure.
func (c *Client) Submit(ctx context.Context, obs contracts.Observation) (contracts.Classification, error) {
	cls, err := c.backend.ValidateObservation(ctx, obs)
	if err != nil {
		c.logger.Error("truth engine unreachable", slog.String("observation_id", obs.ID), slog.Any("err", err))
		return contracts.Classification{}, &Unavailable{Op: "validate_observation", Err: err}
	}
	if cls.ObservationID == "" || !validKind(cls.Kind) {
		return contracts.Classification{}, &ProtocolViolation{
			Op:     "validate_observation",
			Detail: fmt.Sprintf("unexpected classification shape for observation %s", obs.ID),
		}
	}
	return cls, nil
}

func validKind(k contracts.ClassificationKind) bool {
	switch k {
	case contracts.KindBug, contracts.KindSignal, contracts.KindNoIssue, contracts.KindCoverageGap:
		return true
	default:
		return false
	}
}

// ScopeCheck mirrors the Truth Engine's own scope validation with no local
// interpretation.
func (c *Client) ScopeCheck(ctx context.Context, target contracts.Target) (ScopeValidation, error) {
	sv, err := c.backend.ValidateScope(ctx, target)
	if err != nil {
		return ScopeValidation{}, &Unavailable{Op: "validate_scope", Err: err}
	}
	return sv, nil
}

// RateLimitStatus mirrors the Truth Engine's own rate-limit signal.
func (c *Client) RateLimitStatus(ctx context.Context) (RateLimitStatus, error) {
	status, err := c.backend.CheckRateLimit(ctx)
	if err != nil {
		return RateUnknown, &Unavailable{Op: "check_rate_limit", Err: err}
	}
	switch status {
	case RateOK, RateApproaching, RateExceeded, RateUnknown:
		return status, nil
	default:
		return RateUnknown, &ProtocolViolation{Op: "check_rate_limit", Detail: "unrecognized rate limit status " + string(status)}
	}
}

// CoverageReport mirrors the Truth Engine's own opaque coverage map.
func (c *Client) CoverageReport(ctx context.Context) (map[string]any, error) {
	report, err := c.backend.GetCoverageReport(ctx)
	if err != nil {
		return nil, &Unavailable{Op: "get_coverage_report", Err: err}
	}
	return report, nil
}

// SubmissionGuard associates each in-flight observation with a unique id and
// refuses to let a caller react to an observation whose classification has
// not yet returned. Pending ids are tracked under a single mutex;
// SubmitAndClear is the single atomic step that both waits for the
// classification and clears the pending marker.
type SubmissionGuard struct {
	client  *Client
	mu      sync.Mutex
	pending map[string]bool
}

// ErrNotPending names the condition of an observation id that was never
// marked in flight. SubmitAndClear always marks the id before clearing it,
// so no function in this package returns this error.
var ErrNotPending = errors.New("truthengine: observation id not pending")

// NewSubmissionGuard wraps client with in-flight tracking.
func NewSubmissionGuard(client *Client) *SubmissionGuard {
	return &SubmissionGuard{client: client, pending: make(map[string]bool)}
}

// SubmitAndClear marks obs.ID pending, blocks for the classification, then
// clears the marker before returning the result. The mark and the clear
// each take the mutex; the classification call runs outside it.
func (g *SubmissionGuard) SubmitAndClear(ctx context.Context, obs contracts.Observation) (contracts.Classification, error) {
	g.mu.Lock()
	g.pending[obs.ID] = true
	g.mu.Unlock()

	cls, err := g.client.Submit(ctx, obs)

	g.mu.Lock()
	delete(g.pending, obs.ID)
	g.mu.Unlock()

	return cls, err
}

// IsPending reports whether obsID is still awaiting classification.
func (g *SubmissionGuard) IsPending(obsID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending[obsID]
}

// RateLimitStatus delegates to the wrapped client so callers that only hold
// a SubmissionGuard (e.g. the orchestrator) don't need a separate reference
// to the underlying Client.
func (g *SubmissionGuard) RateLimitStatus(ctx context.Context) (RateLimitStatus, error) {
	return g.client.RateLimitStatus(ctx)
}
