// Package risk implements the priority-ordered, first-match-wins risk scoring engine.
package risk

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bissquit/apron-guard/internal/domain"
)

// conditionFields are the snapshot fields any rule can test.
var conditionFields = []string{
	domain.FieldSubstance,
	domain.FieldContinuous,
	domain.FieldPowerState,
	domain.FieldSize,
	domain.FieldCategory,
}

// Engine evaluates a fixed rule table. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	rules []Rule
}

// NewEngine validates the rules and orders them by priority, then id.
func NewEngine(rules []Rule) (*Engine, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})

	return &Engine{rules: sorted}, nil
}

// NewEngineFromReader loads a YAML rule table and builds an engine from it.
func NewEngineFromReader(r io.Reader) (*Engine, error) {
	rules, err := LoadRules(r)
	if err != nil {
		return nil, err
	}
	return NewEngine(rules)
}

// NewEngineFromFile loads the rule table at path. An empty path selects the
// embedded default table.
func NewEngineFromFile(path string) (*Engine, error) {
	if path == "" {
		return DefaultEngine()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return NewEngineFromReader(f)
}

// DefaultEngine builds an engine from the embedded default rule table.
func DefaultEngine() (*Engine, error) {
	return NewEngineFromReader(bytes.NewReader(defaultRulesYAML))
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Assess scores the snapshot. The first matching rule in evaluation order
// decides level and score; every matching rule id is listed in order.
// With no match the result is the provisional INSUFFICIENT_DATA assessment.
func (e *Engine) Assess(s domain.IncidentSnapshot) domain.RiskAssessment {
	var winner *Rule
	matched := make([]string, 0, 4)

	for i := range e.rules {
		r := &e.rules[i]
		if !r.When.Matches(s) {
			continue
		}
		if winner == nil {
			winner = r
		}
		matched = append(matched, r.ID)
	}

	if winner == nil {
		return insufficientData(s)
	}

	factors := winner.When.Factors()
	if winner.Description != "" {
		factors = append(factors, winner.Description)
	}

	return domain.RiskAssessment{
		Level:        winner.Level,
		Score:        winner.Score,
		RuleID:       winner.ID,
		MatchedRules: matched,
		Factors:      factors,
	}
}

func insufficientData(s domain.IncidentSnapshot) domain.RiskAssessment {
	factors := []string{"insufficient data"}
	if missing := s.Missing(conditionFields...); len(missing) > 0 {
		factors = append(factors, "missing: "+strings.Join(missing, ", "))
	}
	return domain.RiskAssessment{
		Level:        domain.RiskLow,
		Score:        0,
		RuleID:       domain.InsufficientDataRuleID,
		MatchedRules: []string{},
		Factors:      factors,
		Provisional:  true,
	}
}
