// Package hypothesis generates testable propositions from a Target
// description and reacts deterministically to Truth-Engine classifications.
// It never classifies anything itself — Classification arrives only
// by copying a Truth-Engine response onto a Hypothesis.
package hypothesis

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/huntfabric/corehunt/pkg/contracts"
)

// Reaction is the deterministic action the engine takes after a
// classification arrives.
type Reaction string

const (
	ReactionStopPath      Reaction = "STOP_PATH"
	ReactionIncreaseDepth Reaction = "INCREASE_DEPTH"
	ReactionContinue      Reaction = "CONTINUE"
	ReactionDeprioritize  Reaction = "DEPRIORITIZE"
	ReactionStopCategory  Reaction = "STOP_CATEGORY"
)

// categoryStats accumulates the running counters kept per category:
// signal rate, consecutive NO_ISSUE count, and overall NO_ISSUE rate over at
// least 5 samples.
type categoryStats struct {
	total             int
	signals           int
	noIssues          int
	consecutiveNoIssue int
	stoppedPaths      map[string]bool // concrete object ids that hit STOP_PATH
}

// Engine generates hypotheses from a Target and reacts to classifications.
// It keeps per-category counters; it never mutates a Classification it
// receives.
type Engine struct {
	catalog []Template

	mu    sync.Mutex
	stats map[Category]*categoryStats
}

// New builds an Engine over catalog. A nil catalog defaults to
// DefaultCatalog.
func New(catalog []Template) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	return &Engine{
		catalog: catalog,
		stats:   make(map[Category]*categoryStats),
	}
}

// Generate emits hypotheses for target, one per catalog template whose
// TargetFlag is set. Testability is the template's base plus the
// category-target affinity bump; no category is added for a flag the
// target has off. Hypotheses start UNTESTED with no classification.
func (e *Engine) Generate(target contracts.Target) []contracts.Hypothesis {
	var out []contracts.Hypothesis
	for _, tmpl := range e.catalog {
		flagSet := target.TechFlags[tmpl.TargetFlag]
		if tmpl.TargetFlag == "auth_present" {
			flagSet = flagSet || target.AuthPresent
		}
		if !flagSet {
			continue
		}
		testability := tmpl.BaseTestability + tmpl.Affinity
		if testability > 1.0 {
			testability = 1.0
		}
		out = append(out, contracts.Hypothesis{
			ID:               uuid.New().String(),
			Description:      fmt.Sprintf("[%s] %s", tmpl.Category, tmpl.Description),
			TargetCategories: []string{string(tmpl.Category)},
			TestActions: []contracts.Action{
				{Type: tmpl.ActionType, Target: target.Domain},
			},
			Testability: testability,
			Status:      contracts.StatusUntested,
		})
	}
	return out
}

// Prioritize sorts hypotheses by testability descending — ease-of-test
// only, never a "most likely to be a bug" heuristic.
// It returns a new slice; the input is left untouched.
func Prioritize(hyps []contracts.Hypothesis) []contracts.Hypothesis {
	out := make([]contracts.Hypothesis, len(hyps))
	copy(out, hyps)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Testability > out[j].Testability
	})
	return out
}

// React applies the feedback rules for a classification c arriving for
// hypothesis h, whose test action targeted concreteObjectID (empty if not
// applicable). The classification is attached to a copy of h untouched;
// React never mutates c.
func (e *Engine) React(h contracts.Hypothesis, c contracts.Classification, concreteObjectID string) (contracts.Hypothesis, Reaction) {
	h.Classification = &c
	h.Status = contracts.StatusResolved

	category := Category("")
	if len(h.TargetCategories) > 0 {
		category = Category(h.TargetCategories[0])
	}

	e.mu.Lock()
	stats, ok := e.stats[category]
	if !ok {
		stats = &categoryStats{stoppedPaths: make(map[string]bool)}
		e.stats[category] = stats
	}
	stats.total++

	var reaction Reaction
	switch c.Kind {
	case contracts.KindBug:
		stats.consecutiveNoIssue = 0
		if concreteObjectID != "" {
			stats.stoppedPaths[concreteObjectID] = true
		}
		reaction = ReactionStopPath

	case contracts.KindSignal:
		stats.signals++
		stats.consecutiveNoIssue = 0
		if signalRate(stats) > 0.30 {
			reaction = ReactionIncreaseDepth
		} else {
			reaction = ReactionContinue
		}

	case contracts.KindNoIssue:
		stats.noIssues++
		stats.consecutiveNoIssue++
		if stats.consecutiveNoIssue >= 10 {
			reaction = ReactionStopCategory
		} else if stats.total >= 5 && noIssueRate(stats) > 0.80 {
			reaction = ReactionStopCategory
		} else {
			reaction = ReactionDeprioritize
		}

	case contracts.KindCoverageGap:
		reaction = ReactionContinue

	default:
		// Unreachable if the Truth-Engine client's protocol validation ran
		// first, but fail closed to Continue rather than panic on an
		// unrecognized kind seen only by this package.
		reaction = ReactionContinue
	}
	e.mu.Unlock()

	return h, reaction
}

// IsPathStopped reports whether concreteObjectID already hit a STOP_PATH
// reaction under category, so the caller can skip generating further
// hypotheses against the same concrete object.
func (e *Engine) IsPathStopped(category Category, concreteObjectID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats, ok := e.stats[category]
	if !ok {
		return false
	}
	return stats.stoppedPaths[concreteObjectID]
}

// CategoryStopped reports whether category has accumulated a STOP_CATEGORY
// condition: consecutive NO_ISSUE >= 10, or NO_ISSUE rate > 80% over >= 5
// samples.
func (e *Engine) CategoryStopped(category Category) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats, ok := e.stats[category]
	if !ok {
		return false
	}
	if stats.consecutiveNoIssue >= 10 {
		return true
	}
	return stats.total >= 5 && noIssueRate(stats) > 0.80
}

func signalRate(s *categoryStats) float64 {
	if s.total == 0 {
		return 0
	}
	return float64(s.signals) / float64(s.total)
}

func noIssueRate(s *categoryStats) float64 {
	if s.total == 0 {
		return 0
	}
	return float64(s.noIssues) / float64(s.total)
}
