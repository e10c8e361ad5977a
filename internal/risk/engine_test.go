package risk

import (
	"strings"
	"testing"

	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := DefaultEngine()
	require.NoError(t, err)
	return e
}

func fuel() *domain.Substance { return domain.Ptr(domain.SubstanceFuel) }

func TestDefaultEngine_RuleTable(t *testing.T) {
	e := newDefaultEngine(t)

	rules := e.Rules()
	require.GreaterOrEqual(t, len(rules), 12)
	for i := 1; i < len(rules); i++ {
		assert.LessOrEqual(t, rules[i-1].Priority, rules[i].Priority, "rules must be sorted by priority")
	}
}

func TestEngine_Assess_FuelContinuousRunning(t *testing.T) {
	e := newDefaultEngine(t)

	got := e.Assess(domain.IncidentSnapshot{
		Substance:  fuel(),
		Continuous: domain.Ptr(true),
		PowerState: domain.Ptr(domain.PowerStateRunning),
	})

	assert.Equal(t, domain.RiskCritical, got.Level)
	assert.Equal(t, 95, got.Score)
	assert.Equal(t, "R001", got.RuleID)
	require.NotEmpty(t, got.MatchedRules)
	assert.Equal(t, "R001", got.MatchedRules[0])
	assert.False(t, got.Provisional)
	assert.Contains(t, got.Factors, "substance=fuel")
	assert.Contains(t, got.Factors, "continuous=true")
	assert.Contains(t, got.Factors, "power_state=running")
}

func TestEngine_Assess_Deterministic(t *testing.T) {
	e := newDefaultEngine(t)

	snapshots := []domain.IncidentSnapshot{
		{},
		{Substance: fuel()},
		{Substance: fuel(), Size: domain.Ptr(domain.LeakSizeMedium)},
		{Substance: domain.Ptr(domain.SubstanceOil), Continuous: domain.Ptr(true)},
		{Category: domain.Ptr(domain.ScenarioFuelLeak)},
	}

	for _, s := range snapshots {
		first := e.Assess(s)
		second := e.Assess(s)
		assert.Equal(t, first, second)
	}
}

func TestEngine_Assess_UnknownNeverSatisfies(t *testing.T) {
	e := newDefaultEngine(t)

	tests := []struct {
		name     string
		snapshot domain.IncidentSnapshot
		wantRule string
	}{
		{
			name:     "continuous unknown falls through to fuel with running engines",
			snapshot: domain.IncidentSnapshot{Substance: fuel(), PowerState: domain.Ptr(domain.PowerStateRunning)},
			wantRule: "R004",
		},
		{
			name:     "only substance known",
			snapshot: domain.IncidentSnapshot{Substance: fuel()},
			wantRule: "R013",
		},
		{
			name: "known-false continuous is not unknown",
			snapshot: domain.IncidentSnapshot{
				Substance:  fuel(),
				Continuous: domain.Ptr(false),
				Size:       domain.Ptr(domain.LeakSizeSmall),
			},
			wantRule: "R012",
		},
		{
			name:     "category only",
			snapshot: domain.IncidentSnapshot{Category: domain.Ptr(domain.ScenarioFuelLeak)},
			wantRule: "R017",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Assess(tt.snapshot)
			assert.Equal(t, tt.wantRule, got.RuleID)
			assert.False(t, got.Provisional)
		})
	}
}

func TestEngine_Assess_NoMatchIsProvisional(t *testing.T) {
	e := newDefaultEngine(t)

	got := e.Assess(domain.IncidentSnapshot{Position: domain.Ptr("501")})

	assert.Equal(t, domain.RiskLow, got.Level)
	assert.Equal(t, 0, got.Score)
	assert.Equal(t, domain.InsufficientDataRuleID, got.RuleID)
	assert.True(t, got.Provisional)
	assert.Empty(t, got.MatchedRules)
	assert.Contains(t, strings.Join(got.Factors, ";"), "substance")
}

func TestEngine_Assess_LowerPriorityNumberWins(t *testing.T) {
	rules := []Rule{
		{ID: "B", Priority: 20, When: Condition{Substance: fuel()}, Level: domain.RiskLow, Score: 10},
		{ID: "A", Priority: 10, When: Condition{Substance: fuel()}, Level: domain.RiskHigh, Score: 80},
	}
	e, err := NewEngine(rules)
	require.NoError(t, err)

	got := e.Assess(domain.IncidentSnapshot{Substance: fuel()})

	assert.Equal(t, "A", got.RuleID)
	assert.Equal(t, domain.RiskHigh, got.Level)
	assert.Equal(t, 80, got.Score)
	assert.Equal(t, []string{"A", "B"}, got.MatchedRules)
}

func TestEngine_Assess_RecomputedFromScratch(t *testing.T) {
	e := newDefaultEngine(t)

	partial := domain.IncidentSnapshot{Substance: fuel()}
	before := e.Assess(partial)

	full := partial.Merge(domain.IncidentSnapshot{
		Continuous: domain.Ptr(true),
		PowerState: domain.Ptr(domain.PowerStateRunning),
	})
	after := e.Assess(full)

	assert.Equal(t, domain.RiskMedium, before.Level)
	assert.Equal(t, domain.RiskCritical, after.Level)
	assert.Equal(t, before, e.Assess(partial), "earlier snapshot must still assess the same")
}

func TestNewEngine_InvalidRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
	}{
		{
			name:  "empty table",
			rules: nil,
		},
		{
			name: "duplicate id",
			rules: []Rule{
				{ID: "X", Priority: 1, When: Condition{Substance: fuel()}, Level: domain.RiskLow, Score: 1},
				{ID: "X", Priority: 2, When: Condition{Substance: fuel()}, Level: domain.RiskLow, Score: 1},
			},
		},
		{
			name:  "empty condition",
			rules: []Rule{{ID: "X", Priority: 1, Level: domain.RiskLow, Score: 1}},
		},
		{
			name:  "score out of range",
			rules: []Rule{{ID: "X", Priority: 1, When: Condition{Substance: fuel()}, Level: domain.RiskLow, Score: 101}},
		},
		{
			name:  "missing level",
			rules: []Rule{{ID: "X", Priority: 1, When: Condition{Substance: fuel()}, Score: 1}},
		},
		{
			name: "reserved id",
			rules: []Rule{
				{ID: domain.InsufficientDataRuleID, Priority: 1, When: Condition{Substance: fuel()}, Level: domain.RiskLow, Score: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.rules)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRules)
		})
	}
}

func TestLoadRules_RejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown substance",
			yaml: "rules:\n  - id: X\n    priority: 1\n    when: {substance: water}\n    level: LOW\n    score: 1\n",
		},
		{
			name: "unknown level",
			yaml: "rules:\n  - id: X\n    priority: 1\n    when: {substance: fuel}\n    level: EXTREME\n    score: 1\n",
		},
		{
			name: "unknown field",
			yaml: "rules:\n  - id: X\n    priority: 1\n    when: {colour: red}\n    level: LOW\n    score: 1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRules(strings.NewReader(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidRules)
		})
	}
}
