// Package orchestrator is the exploration orchestrator: it owns the
// shared budget, drives sequential or bounded-parallel hypothesis testing,
// and coordinates submissions so each observation is acted on at most once
// before the submission workflow ever sees a decision.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/huntfabric/corehunt/pkg/audit"
	"github.com/huntfabric/corehunt/pkg/contracts"
	"github.com/huntfabric/corehunt/pkg/hypothesis"
	"github.com/huntfabric/corehunt/pkg/truthengine"
)

// ToolRunner is the external collaborator that actually performs a test
// action and reports what happened. The orchestrator never inspects tool
// output semantics — it only forwards it as untrusted signals on the
// resulting Observation.
type ToolRunner interface {
	Run(ctx context.Context, hyp contracts.Hypothesis, action contracts.Action) (contracts.Observation, error)
}

// Classifier is the subset of the Truth-Engine client the orchestrator
// needs: submit-and-clear plus a rate-limit read.
type Classifier interface {
	SubmitAndClear(ctx context.Context, obs contracts.Observation) (contracts.Classification, error)
	RateLimitStatus(ctx context.Context) (truthengine.RateLimitStatus, error)
}

// ExplorationSummary reports what was explored. It never claims coverage —
// that belongs to the Truth Engine's own coverage_report.
type ExplorationSummary struct {
	HypothesesGenerated int
	HypothesesTested    int
	BugsFound           int
	SignalsFound         int
	NoIssuesFound        int
	CoverageGapsLogged   int
	ActionsConsumed      int64
	StoppedReason        string
}

const (
	defaultWorkers = 4
	workerFloor    = 1
)

// Orchestrator wires the budget, coordinator, hypothesis engine, Truth-Engine
// client, tool runner, and audit chain into the exploration loop.
type Orchestrator struct {
	budget      *GlobalBudget
	coordinator *SubmissionCoordinator
	engine      *hypothesis.Engine
	classifier  Classifier
	tool        ToolRunner
	chain       *audit.Chain
	logger      *slog.Logger
	retry       RetryPolicy

	workers int
	mu      sync.Mutex // guards workers (halved under rate-limit pressure)
}

// New wires an Orchestrator. logger may be nil.
func New(budget *GlobalBudget, engine *hypothesis.Engine, classifier Classifier, tool ToolRunner, chain *audit.Chain, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		budget:      budget,
		coordinator: NewSubmissionCoordinator(),
		engine:      engine,
		classifier:  classifier,
		tool:        tool,
		chain:       chain,
		logger:      logger,
		retry:       DefaultRetryPolicy,
		workers:     defaultWorkers,
	}
}

// ExploreSequential iterates prioritized hypotheses one at a time: consume
// an action from the budget, delegate to the Truth Engine, apply the
// feedback reaction.
func (o *Orchestrator) ExploreSequential(ctx context.Context, hyps []contracts.Hypothesis) (ExplorationSummary, error) {
	ordered := hypothesis.Prioritize(hyps)
	summary := ExplorationSummary{HypothesesGenerated: len(hyps)}

	for _, h := range ordered {
		if o.budget.TimeExhausted() {
			summary.StoppedReason = "time budget exhausted"
			break
		}
		if !o.budget.ConsumeAction() {
			summary.StoppedReason = "action budget exhausted"
			break
		}
		summary.ActionsConsumed++
		summary.HypothesesTested++

		kind, reaction, err := o.testOne(ctx, h)
		if err != nil {
			if truthengine.IsUnavailable(err) {
				summary.StoppedReason = "Truth Engine unavailable (HARD STOP)"
				return summary, err
			}
			// Tool error: recorded, hypothesis marked failed, continues.
			continue
		}
		summary.tally(kind)
		if reaction == hypothesis.ReactionStopCategory {
			continue
		}
	}

	if summary.StoppedReason == "" {
		summary.StoppedReason = "all hypotheses tested"
	}
	return summary, nil
}

// ExploreParallel launches a bounded worker pool sharing the same budget.
// On detecting rate-limited status (APPROACHING or EXCEEDED) it halves the
// worker count down to a floor of 1.
func (o *Orchestrator) ExploreParallel(ctx context.Context, hyps []contracts.Hypothesis) (ExplorationSummary, error) {
	ordered := hypothesis.Prioritize(hyps)
	summary := ExplorationSummary{HypothesesGenerated: len(hyps)}

	work := make(chan contracts.Hypothesis)
	var mu sync.Mutex
	var hardStop error

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var stopOnce sync.Once

	startWorker := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				case h, ok := <-work:
					if !ok {
						return
					}
					if o.budget.TimeExhausted() {
						stopOnce.Do(func() { close(stop) })
						return
					}
					if !o.budget.ConsumeAction() {
						stopOnce.Do(func() { close(stop) })
						return
					}
					mu.Lock()
					summary.ActionsConsumed++
					summary.HypothesesTested++
					mu.Unlock()
					kind, _, err := o.testOne(ctx, h)
					if err == nil {
						mu.Lock()
						summary.tally(kind)
						mu.Unlock()
					}
					if err != nil && truthengine.IsUnavailable(err) {
						mu.Lock()
						if hardStop == nil {
							hardStop = err
						}
						mu.Unlock()
						stopOnce.Do(func() { close(stop) })
						return
					}
				}
			}
		}()
	}

	o.mu.Lock()
	workerCount := o.workers
	o.mu.Unlock()
	for i := 0; i < workerCount; i++ {
		startWorker()
	}

	go o.monitorRateLimit(ctx, stop)

feed:
	for _, h := range ordered {
		select {
		case <-stop:
			break feed
		case work <- h:
		}
	}
	close(work)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if hardStop != nil {
		summary.StoppedReason = "Truth Engine unavailable (HARD STOP)"
		return summary, hardStop
	}
	switch {
	case o.budget.TimeExhausted():
		summary.StoppedReason = "time budget exhausted"
	case o.budget.RemainingActions() <= 0:
		summary.StoppedReason = "action budget exhausted"
	default:
		summary.StoppedReason = "all hypotheses tested"
	}
	return summary, nil
}

// monitorRateLimit checks the classifier's rate-limit status once, at the
// start of a parallel run, and halves the worker count when it reports
// pressure; stop is not consulted. The new count applies to future starts, since live goroutines already running
// are not killed mid-flight — only future parallel runs observe the new
// floor, so halving never tears down in-flight work.
func (o *Orchestrator) monitorRateLimit(ctx context.Context, stop <-chan struct{}) {
	status, err := o.classifier.RateLimitStatus(ctx)
	if err != nil {
		return
	}
	if status != truthengine.RateApproaching && status != truthengine.RateExceeded {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.workers > workerFloor {
		o.workers = o.workers / 2
		if o.workers < workerFloor {
			o.workers = workerFloor
		}
	}
}

func (o *Orchestrator) testOne(ctx context.Context, h contracts.Hypothesis) (contracts.ClassificationKind, hypothesis.Reaction, error) {
	var obs contracts.Observation
	var err error
	for attempt := 0; attempt < o.retry.MaxAttempts; attempt++ {
		obs, err = o.tool.Run(ctx, h, firstAction(h))
		if err == nil {
			break
		}
		if !IsTransient(err) {
			break
		}
		time.Sleep(o.retry.Delay(attempt + 1))
	}
	if err != nil {
		o.recordToolFailure(ctx, h, err)
		return "", "", fmt.Errorf("orchestrator: tool failed for hypothesis %s: %w", h.ID, err)
	}

	if !o.coordinator.Claim(obs.ID) {
		return "", "", fmt.Errorf("orchestrator: observation %s already claimed", obs.ID)
	}

	o.recordObservation(ctx, obs)

	cls, err := o.classifier.SubmitAndClear(ctx, obs)
	if err != nil {
		return "", "", err
	}

	classified, reaction := o.engine.React(h, cls, obs.HypothesisID)
	o.recordClassification(ctx, classified, reaction)

	return cls.Kind, reaction, nil
}

// tally folds one classification kind into the summary counters. Callers
// own synchronization: sequential mode calls it directly, parallel workers
// call it under the run's summary mutex.
func (s *ExplorationSummary) tally(kind contracts.ClassificationKind) {
	switch kind {
	case contracts.KindBug:
		s.BugsFound++
	case contracts.KindSignal:
		s.SignalsFound++
	case contracts.KindNoIssue:
		s.NoIssuesFound++
	case contracts.KindCoverageGap:
		s.CoverageGapsLogged++
	}
}

func firstAction(h contracts.Hypothesis) contracts.Action {
	if len(h.TestActions) == 0 {
		return contracts.Action{}
	}
	return h.TestActions[0]
}

func (o *Orchestrator) recordObservation(ctx context.Context, obs contracts.Observation) {
	if o.chain == nil {
		return
	}
	_, _ = o.chain.Append(ctx, audit.EventObservationRecorded, "orchestrator", []contracts.KV{
		{Key: "observation_id", Value: obs.ID},
		{Key: "hypothesis_id", Value: obs.HypothesisID},
	})
}

func (o *Orchestrator) recordClassification(ctx context.Context, h contracts.Hypothesis, reaction hypothesis.Reaction) {
	if o.chain == nil || h.Classification == nil {
		return
	}
	_, _ = o.chain.Append(ctx, audit.EventHypothesisClassified, "orchestrator", []contracts.KV{
		{Key: "hypothesis_id", Value: h.ID},
		{Key: "kind", Value: string(h.Classification.Kind)},
		{Key: "reaction", Value: string(reaction)},
	})
}

func (o *Orchestrator) recordToolFailure(ctx context.Context, h contracts.Hypothesis, err error) {
	o.logger.Warn("tool failed, hypothesis marked failed", slog.String("hypothesis_id", h.ID), slog.Any("err", err))
	if o.chain == nil {
		return
	}
	_, _ = o.chain.Append(ctx, audit.EventToolFailed, "orchestrator", []contracts.KV{
		{Key: "hypothesis_id", Value: h.ID},
		{Key: "tool_error", Value: err.Error()},
	})
}
