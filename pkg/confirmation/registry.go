// Package confirmation implements the single-use, hash-bound,
// time-limited human confirmation tokens that gate every network
// submission. The registry exposes only issue, consume, is_used, and a
// read-only signature check — no renew, no bypass, no batch consume.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/golang-jwt/jwt/v5"

	"github.com/huntfabric/corehunt/pkg/audit"
	"github.com/huntfabric/corehunt/pkg/boundary"
	"github.com/huntfabric/corehunt/pkg/contracts"
	"github.com/huntfabric/corehunt/pkg/telemetry"
)

// DefaultTTL is the confirmation lifetime and the config default for
// submission.confirmation_ttl_seconds.
const DefaultTTL = 15 * time.Minute

// TokenAlreadyUsed is raised by Consume when the confirmation was already
// consumed.
type TokenAlreadyUsed struct {
	ConfirmationID string
}

func (e *TokenAlreadyUsed) Error() string {
	return fmt.Sprintf("confirmation: token %s already used", e.ConfirmationID)
}

// TokenExpired is raised by Consume when the confirmation's absolute expiry
// has passed.
type TokenExpired struct {
	ConfirmationID string
	ExpiredAt      time.Time
}

func (e *TokenExpired) Error() string {
	return fmt.Sprintf("confirmation: token %s expired at %s", e.ConfirmationID, e.ExpiredAt.Format(time.RFC3339))
}

// ErrUnknownConfirmation is raised when a confirmation id was never issued.
var ErrUnknownConfirmation = errors.New("confirmation: unknown confirmation id")

type record struct {
	mu     sync.Mutex
	conf   contracts.SubmissionConfirmation
	used   bool
	usedAt time.Time
}

// Registry stores issued confirmations. Per-confirmation state is guarded
// by a per-id lock; the used-set insert itself is a single atomic
// test-and-set under that same per-id lock: for any confirmation, exactly
// one Consume succeeds under concurrency.
type Registry struct {
	signingKey []byte
	clock      func() time.Time
	ttl        time.Duration
	chain      *audit.Chain
	telemetry  *telemetry.Provider
	boundary   *boundary.Guard

	mu      sync.RWMutex
	records map[string]*record
}

const componentName = "confirmation.Registry"

var manifest = boundary.ComponentManifest{
	Name:    componentName,
	Imports: []string{"github.com/golang-jwt/jwt/v5"},
	Methods: []string{"Issue", "Consume", "IsUsed", "VerifySignature"},
}

// New wires a Registry. signingKey authenticates the confirmation's
// signature claim; chain may be nil only in tests that don't need the audit
// trail.
func New(signingKey []byte, chain *audit.Chain) *Registry {
	return &Registry{
		signingKey: signingKey,
		clock:      time.Now,
		ttl:        DefaultTTL,
		chain:      chain,
		records:    make(map[string]*record),
	}
}

// WithTTL overrides the confirmation lifetime (config: confirmation_ttl_seconds).
func (r *Registry) WithTTL(ttl time.Duration) *Registry {
	r.ttl = ttl
	return r
}

// WithClock overrides the clock for deterministic tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// WithTelemetry attaches an optional metrics provider; nil-safe.
func (r *Registry) WithTelemetry(p *telemetry.Provider) *Registry {
	r.telemetry = p
	return r
}

// WithBoundary registers the registry with the boundary guard: the manifest
// is structurally checked here, and from then on Issue and Consume each
// require their capability to have been granted.
func (r *Registry) WithBoundary(g *boundary.Guard) (*Registry, error) {
	if err := g.Construct(manifest); err != nil {
		return nil, err
	}
	r.boundary = g
	return r, nil
}

// Issue creates a confirmation bound to requestID, submitterID, and
// reportHash, with an absolute expiry 15 minutes (or the configured TTL)
// from now. Issuance is recorded in the audit chain.
func (r *Registry) Issue(ctx context.Context, requestID, submitterID string, reportHash [32]byte) (contracts.SubmissionConfirmation, error) {
	if r.boundary != nil {
		if err := r.boundary.Require(componentName, boundary.CapConfirmationIssue); err != nil {
			return contracts.SubmissionConfirmation{}, err
		}
	}

	now := r.clock().UTC()
	expires := now.Add(r.ttl)

	conf := contracts.SubmissionConfirmation{
		ConfirmationID: uuid.New().String(),
		RequestID:      requestID,
		SubmitterID:    submitterID,
		ReportHash:     reportHash,
		ConfirmedAt:    now,
		ExpiresAt:      expires,
	}

	sig, err := r.sign(conf)
	if err != nil {
		return contracts.SubmissionConfirmation{}, fmt.Errorf("confirmation: signing failed: %w", err)
	}
	conf.Signature = sig

	r.mu.Lock()
	r.records[conf.ConfirmationID] = &record{conf: conf}
	r.mu.Unlock()

	if r.chain != nil {
		_, _ = r.chain.Append(ctx, audit.EventConfirmationIssued, submitterID, []contracts.KV{
			{Key: "confirmation_id", Value: conf.ConfirmationID},
			{Key: "request_id", Value: requestID},
			{Key: "expires_at", Value: expires.Format(time.RFC3339)},
		})
	}
	r.telemetry.RecordConfirmationIssued(ctx)

	return conf, nil
}

// Consume atomically verifies a confirmation is neither expired nor used,
// marks it used, records CONFIRMATION_CONSUMED, and returns the
// confirmation. Every call after the first winner raises TokenAlreadyUsed;
// a call past expiry raises TokenExpired.
func (r *Registry) Consume(ctx context.Context, confirmationID string) (contracts.SubmissionConfirmation, error) {
	if r.boundary != nil {
		if err := r.boundary.Require(componentName, boundary.CapConfirmationUse); err != nil {
			return contracts.SubmissionConfirmation{}, err
		}
	}

	r.mu.RLock()
	rec, ok := r.records[confirmationID]
	r.mu.RUnlock()
	if !ok {
		return contracts.SubmissionConfirmation{}, ErrUnknownConfirmation
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := r.clock().UTC()
	if rec.conf.Expired(now) {
		return contracts.SubmissionConfirmation{}, &TokenExpired{ConfirmationID: confirmationID, ExpiredAt: rec.conf.ExpiresAt}
	}
	if rec.used {
		return contracts.SubmissionConfirmation{}, &TokenAlreadyUsed{ConfirmationID: confirmationID}
	}

	rec.used = true
	rec.usedAt = now

	if r.chain != nil {
		_, _ = r.chain.Append(ctx, audit.EventConfirmationConsumed, rec.conf.SubmitterID, []contracts.KV{
			{Key: "confirmation_id", Value: confirmationID},
			{Key: "request_id", Value: rec.conf.RequestID},
		})
	}
	r.telemetry.RecordConfirmationConsumed(ctx)

	return rec.conf, nil
}

// IsUsed reports whether confirmationID has already been consumed.
func (r *Registry) IsUsed(confirmationID string) bool {
	r.mu.RLock()
	rec, ok := r.records[confirmationID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.used
}

// claims is the JWT claim set backing SubmissionConfirmation.Signature —
// an HMAC-signed, issuer/expiry-bearing token.
type claims struct {
	ConfirmationID string `json:"cid"`
	ReportHash     string `json:"report_hash"`
	jwt.RegisteredClaims
}

func (r *Registry) sign(conf contracts.SubmissionConfirmation) (string, error) {
	c := claims{
		ConfirmationID: conf.ConfirmationID,
		ReportHash:     fmt.Sprintf("%x", conf.ReportHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "huntfabric-confirmation-registry",
			Subject:   conf.SubmitterID,
			ExpiresAt: jwt.NewNumericDate(conf.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(conf.ConfirmedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(r.signingKey)
}

// VerifySignature checks a confirmation's signature format and expiry claim
// match expectations. It is a standalone check: neither Consume nor the
// submission workflow state machine calls it.
func (r *Registry) VerifySignature(signature string) error {
	_, err := jwt.ParseWithClaims(signature, &claims{}, func(t *jwt.Token) (any, error) {
		return r.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return fmt.Errorf("confirmation: signature verification failed: %w", err)
	}
	return nil
}
