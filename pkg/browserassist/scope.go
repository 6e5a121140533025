package browserassist

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// ScopeResult is the five-way verdict the scope checker returns. "unknown"
// is distinct from "out_of_scope": a target checked against an empty rule
// set is unclassified, while a target that matched none of the configured
// inclusion rules is out of scope.
type ScopeResult string

const (
	ScopeInScope     ScopeResult = "in_scope"
	ScopeOutOfScope  ScopeResult = "out_of_scope"
	ScopeExcluded    ScopeResult = "excluded"
	ScopeAmbiguous   ScopeResult = "ambiguous"
	ScopeUnknown     ScopeResult = "unknown"
)

// ScopeRule is one authorized-domain or exclusion rule expressed as a CEL
// boolean expression over a "target" map (host, path variables).
type ScopeRule struct {
	Name       string
	Expression string
	Exclusion  bool // exclusion rules are evaluated first and win ties
}

// ScopeChecker evaluates a target URL against a compiled rule set, caching
// compiled CEL programs per expression.
type ScopeChecker struct {
	env   *cel.Env
	rules []ScopeRule

	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

// NewScopeChecker compiles an environment over a "target" dynamic map and
// stores rules in the order given. Exclusion rules are checked before
// inclusion rules regardless of input order.
func NewScopeChecker(rules []ScopeRule) (*ScopeChecker, error) {
	env, err := cel.NewEnv(cel.Variable("target", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("browserassist: failed to create scope CEL environment: %w", err)
	}
	return &ScopeChecker{env: env, rules: rules, prgCache: make(map[string]cel.Program)}, nil
}

// Check evaluates rawURL against the rule set. Explicit exclusion beats
// inclusion. With no inclusion rules configured at all the result is
// ScopeUnknown — nothing to classify against; with inclusion rules present
// but none matching, the result is ScopeOutOfScope. Exactly one inclusion
// rule matching yields ScopeInScope; more than one matching yields
// ScopeAmbiguous.
func (s *ScopeChecker) Check(rawURL string) (ScopeResult, error) {
	target, err := targetVars(rawURL)
	if err != nil {
		return ScopeUnknown, err
	}

	var inclusionRules, matchedInclusion, matchedExclusion int

	for _, rule := range s.rules {
		if !rule.Exclusion {
			continue
		}
		ok, err := s.eval(rule.Expression, target)
		if err != nil {
			return ScopeUnknown, fmt.Errorf("browserassist: exclusion rule %q failed: %w", rule.Name, err)
		}
		if ok {
			matchedExclusion++
		}
	}
	if matchedExclusion > 0 {
		return ScopeExcluded, nil
	}

	for _, rule := range s.rules {
		if rule.Exclusion {
			continue
		}
		inclusionRules++
		ok, err := s.eval(rule.Expression, target)
		if err != nil {
			return ScopeUnknown, fmt.Errorf("browserassist: inclusion rule %q failed: %w", rule.Name, err)
		}
		if ok {
			matchedInclusion++
		}
	}

	switch {
	case inclusionRules == 0:
		return ScopeUnknown, nil
	case matchedInclusion > 1:
		return ScopeAmbiguous, nil
	case matchedInclusion == 1:
		return ScopeInScope, nil
	default:
		return ScopeOutOfScope, nil
	}
}

func (s *ScopeChecker) eval(expr string, vars map[string]any) (bool, error) {
	s.mu.RLock()
	prg, hit := s.prgCache[expr]
	s.mu.RUnlock()

	if !hit {
		s.mu.Lock()
		if prg, hit = s.prgCache[expr]; !hit {
			ast, issues := s.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				s.mu.Unlock()
				return false, fmt.Errorf("compile: %w", issues.Err())
			}
			p, err := s.env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
			if err != nil {
				s.mu.Unlock()
				return false, fmt.Errorf("program: %w", err)
			}
			s.prgCache[expr] = p
			prg = p
		}
		s.mu.Unlock()
	}

	out, _, err := prg.Eval(map[string]any{"target": vars})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}

func targetVars(rawURL string) (map[string]any, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("browserassist: invalid target url: %w", err)
	}
	return map[string]any{
		"host":   strings.ToLower(u.Hostname()),
		"path":   u.Path,
		"scheme": u.Scheme,
		"url":    rawURL,
	}, nil
}
