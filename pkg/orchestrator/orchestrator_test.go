package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntfabric/corehunt/pkg/audit"
	"github.com/huntfabric/corehunt/pkg/contracts"
	"github.com/huntfabric/corehunt/pkg/hypothesis"
	"github.com/huntfabric/corehunt/pkg/truthengine"
)

type fakeTool struct{}

func (fakeTool) Run(ctx context.Context, hyp contracts.Hypothesis, action contracts.Action) (contracts.Observation, error) {
	return contracts.Observation{ID: uuid.New().String(), HypothesisID: hyp.ID}, nil
}

type fakeClassifier struct {
	kind   contracts.ClassificationKind
	status truthengine.RateLimitStatus
	err    error
	calls  int64
}

func (f *fakeClassifier) SubmitAndClear(ctx context.Context, obs contracts.Observation) (contracts.Classification, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return contracts.Classification{}, f.err
	}
	return contracts.Classification{ObservationID: obs.ID, Kind: f.kind}, nil
}

func (f *fakeClassifier) RateLimitStatus(ctx context.Context) (truthengine.RateLimitStatus, error) {
	if f.status == "" {
		return truthengine.RateOK, nil
	}
	return f.status, nil
}

func hyps(n int) []contracts.Hypothesis {
	out := make([]contracts.Hypothesis, n)
	for i := range out {
		out[i] = contracts.Hypothesis{
			ID:          uuid.New().String(),
			Testability: 0.5,
			TestActions: []contracts.Action{{Type: contracts.ActionHTTP}},
		}
	}
	return out
}

func TestExploreSequential_StopsOnActionBudget(t *testing.T) {
	budget := NewGlobalBudget(3, 10, 0)
	o := New(budget, hypothesis.New(nil), &fakeClassifier{kind: contracts.KindNoIssue}, fakeTool{}, nil, nil)

	summary, err := o.ExploreSequential(context.Background(), hyps(10))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.HypothesesTested)
	assert.Equal(t, "action budget exhausted", summary.StoppedReason)
}

func TestExploreSequential_TruthEngineUnavailableHardStops(t *testing.T) {
	budget := NewGlobalBudget(10, 10, 0)
	classifier := &fakeClassifier{err: &truthengine.Unavailable{Op: "validate_observation", Err: errors.New("down")}}
	o := New(budget, hypothesis.New(nil), classifier, fakeTool{}, nil, nil)

	summary, err := o.ExploreSequential(context.Background(), hyps(5))
	require.Error(t, err)
	assert.Equal(t, "Truth Engine unavailable (HARD STOP)", summary.StoppedReason)
	assert.Equal(t, 0, summary.BugsFound)
	assert.Equal(t, 0, summary.NoIssuesFound)
}

func TestExploreParallel_BudgetNeverNegative(t *testing.T) {
	budget := NewGlobalBudget(20, 50, 0)
	o := New(budget, hypothesis.New(nil), &fakeClassifier{kind: contracts.KindNoIssue}, fakeTool{}, nil, nil)

	summary, err := o.ExploreParallel(context.Background(), hyps(100))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, budget.RemainingActions(), int64(0))
	assert.LessOrEqual(t, int64(summary.HypothesesTested), int64(20))
}

func TestSubmissionCoordinator_ClaimIsExclusive(t *testing.T) {
	c := NewSubmissionCoordinator()
	var wg sync.WaitGroup
	var successes int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Claim("same-id") {
				atomic.AddInt64(&successes, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), successes)
}

func TestGlobalBudget_ConcurrentConsumeNeverGoesNegative(t *testing.T) {
	budget := NewGlobalBudget(100, 0, 0)
	var wg sync.WaitGroup
	var successes int64
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if budget.ConsumeAction() {
				atomic.AddInt64(&successes, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), successes)
	assert.Equal(t, int64(0), budget.RemainingActions())
}

func TestAuditRecordsObservationsAndClassifications(t *testing.T) {
	chain := audit.New(nil)
	budget := NewGlobalBudget(5, 5, 0)
	o := New(budget, hypothesis.New(nil), &fakeClassifier{kind: contracts.KindBug}, fakeTool{}, chain, nil)

	_, err := o.ExploreSequential(context.Background(), hyps(2))
	require.NoError(t, err)

	entries := chain.Snapshot()
	var sawObservation, sawClassification bool
	for _, e := range entries {
		if e.EventKind == audit.EventObservationRecorded {
			sawObservation = true
		}
		if e.EventKind == audit.EventHypothesisClassified {
			sawClassification = true
		}
	}
	assert.True(t, sawObservation)
	assert.True(t, sawClassification)
}
