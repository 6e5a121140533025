package truthengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntfabric/corehunt/pkg/contracts"
)

type stubBackend struct {
	cls       contracts.Classification
	clsErr    error
	scope     ScopeValidation
	scopeErr  error
	rate      RateLimitStatus
	rateErr   error
	coverage  map[string]any
	coverErr  error
}

func (s *stubBackend) ValidateObservation(ctx context.Context, obs contracts.Observation) (contracts.Classification, error) {
	return s.cls, s.clsErr
}
func (s *stubBackend) ValidateScope(ctx context.Context, target contracts.Target) (ScopeValidation, error) {
	return s.scope, s.scopeErr
}
func (s *stubBackend) CheckRateLimit(ctx context.Context) (RateLimitStatus, error) {
	return s.rate, s.rateErr
}
func (s *stubBackend) GetCoverageReport(ctx context.Context) (map[string]any, error) {
	return s.coverage, s.coverErr
}

func obs() contracts.Observation {
	return contracts.Observation{ID: "obs-1", Timestamp: time.Now()}
}

func TestSubmit_ReturnsClassificationVerbatim(t *testing.T) {
	backend := &stubBackend{cls: contracts.Classification{ObservationID: "obs-1", Kind: contracts.KindBug, Confidence: 0.9}}
	c := New(backend, nil)

	got, err := c.Submit(context.Background(), obs())
	require.NoError(t, err)
	assert.Equal(t, backend.cls, got)
}

func TestSubmit_BackendErrorIsHardStop(t *testing.T) {
	backend := &stubBackend{clsErr: errors.New("connection refused")}
	c := New(backend, nil)

	_, err := c.Submit(context.Background(), obs())
	var unavailable *Unavailable
	require.ErrorAs(t, err, &unavailable)
	assert.True(t, unavailable.HardStop())
}

func TestSubmit_MalformedResponseIsProtocolViolation(t *testing.T) {
	backend := &stubBackend{cls: contracts.Classification{Kind: "NOT_A_REAL_KIND"}}
	c := New(backend, nil)

	_, err := c.Submit(context.Background(), obs())
	var violation *ProtocolViolation
	require.ErrorAs(t, err, &violation)
	assert.True(t, violation.HardStop())
}

func TestSubmitAndClear_ClearsPendingAfterReturn(t *testing.T) {
	backend := &stubBackend{cls: contracts.Classification{ObservationID: "obs-1", Kind: contracts.KindNoIssue}}
	guard := NewSubmissionGuard(New(backend, nil))

	o := obs()
	_, err := guard.SubmitAndClear(context.Background(), o)
	require.NoError(t, err)
	assert.False(t, guard.IsPending(o.ID))
}

func TestRateLimitStatus_UnknownOnUnrecognizedValue(t *testing.T) {
	backend := &stubBackend{rate: "WEIRD"}
	c := New(backend, nil)

	status, err := c.RateLimitStatus(context.Background())
	var violation *ProtocolViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, RateUnknown, status)
}
