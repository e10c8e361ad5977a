package risk

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rule errors.
var (
	ErrInvalidRules  = errors.New("invalid rule table")
	ErrDuplicateRule = errors.New("duplicate rule id")
	ErrEmptyRule     = errors.New("rule has no conditions")
)

// Condition is a conjunction of field requirements. Nil fields are not checked.
type Condition struct {
	Substance  *domain.Substance  `yaml:"substance" validate:"omitempty,oneof=fuel hydraulic oil other"`
	Continuous *bool              `yaml:"continuous"`
	PowerState *domain.PowerState `yaml:"power_state" validate:"omitempty,oneof=running apu off"`
	Size       *domain.LeakSize   `yaml:"size" validate:"omitempty,oneof=small medium large"`
	Category   *domain.Scenario   `yaml:"category" validate:"omitempty,oneof=fuel_leak oil_leak hydraulic_leak other"`
}

// IsEmpty reports whether the condition checks nothing.
func (c Condition) IsEmpty() bool {
	return c.Substance == nil && c.Continuous == nil && c.PowerState == nil &&
		c.Size == nil && c.Category == nil
}

// Matches reports whether every required field is known in s and equal.
func (c Condition) Matches(s domain.IncidentSnapshot) bool {
	if c.Substance != nil && (s.Substance == nil || *s.Substance != *c.Substance) {
		return false
	}
	if c.Continuous != nil && (s.Continuous == nil || *s.Continuous != *c.Continuous) {
		return false
	}
	if c.PowerState != nil && (s.PowerState == nil || *s.PowerState != *c.PowerState) {
		return false
	}
	if c.Size != nil && (s.Size == nil || *s.Size != *c.Size) {
		return false
	}
	if c.Category != nil && (s.Category == nil || *s.Category != *c.Category) {
		return false
	}
	return true
}

// Factors describes the condition as field=value terms in a fixed order.
func (c Condition) Factors() []string {
	var out []string
	if c.Substance != nil {
		out = append(out, domain.FieldSubstance+"="+string(*c.Substance))
	}
	if c.Continuous != nil {
		out = append(out, domain.FieldContinuous+"="+strconv.FormatBool(*c.Continuous))
	}
	if c.PowerState != nil {
		out = append(out, domain.FieldPowerState+"="+string(*c.PowerState))
	}
	if c.Size != nil {
		out = append(out, domain.FieldSize+"="+string(*c.Size))
	}
	if c.Category != nil {
		out = append(out, domain.FieldCategory+"="+string(*c.Category))
	}
	return out
}

// Rule maps a condition to a risk level and score.
type Rule struct {
	ID          string           `yaml:"id" validate:"required"`
	Priority    int              `yaml:"priority" validate:"gte=0"`
	Description string           `yaml:"description"`
	When        Condition        `yaml:"when"`
	Level       domain.RiskLevel `yaml:"level" validate:"required"`
	Score       int              `yaml:"score" validate:"gte=0,lte=100"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules" validate:"required,min=1,dive"`
}

// LoadRules decodes and validates a YAML rule table.
func LoadRules(r io.Reader) ([]Rule, error) {
	var file ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidRules, err)
	}
	if err := ValidateRules(file.Rules); err != nil {
		return nil, err
	}
	return file.Rules, nil
}

// ValidateRules checks a rule table before it is used.
func ValidateRules(rules []Rule) error {
	v := validator.New()
	if err := v.Struct(ruleFile{Rules: rules}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}

	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if seen[r.ID] {
			return fmt.Errorf("%w: %w: %s", ErrInvalidRules, ErrDuplicateRule, r.ID)
		}
		seen[r.ID] = true

		if !r.Level.IsValid() {
			return fmt.Errorf("%w: rule %s: invalid level %d", ErrInvalidRules, r.ID, r.Level)
		}
		if r.When.IsEmpty() {
			return fmt.Errorf("%w: %w: %s", ErrInvalidRules, ErrEmptyRule, r.ID)
		}
		if r.ID == domain.InsufficientDataRuleID {
			return fmt.Errorf("%w: rule id %s is reserved", ErrInvalidRules, r.ID)
		}
	}
	return nil
}
