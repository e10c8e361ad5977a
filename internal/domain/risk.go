package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RiskLevel is an ordered risk band. Higher values are more severe.
type RiskLevel int

// Risk levels, lowest first.
const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskLevelNames = map[RiskLevel]string{
	RiskLow:      "LOW",
	RiskMedium:   "MEDIUM",
	RiskHigh:     "HIGH",
	RiskCritical: "CRITICAL",
}

// String returns the upper-case band name.
func (l RiskLevel) String() string {
	if name, ok := riskLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("RiskLevel(%d)", int(l))
}

// IsValid checks if the level is one of the defined bands.
func (l RiskLevel) IsValid() bool {
	_, ok := riskLevelNames[l]
	return ok
}

// AtLeast reports whether l is at or above other.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return l >= other
}

// ParseRiskLevel parses a band name, case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for level, name := range riskLevelNames {
		if name == upper {
			return level, nil
		}
	}
	return 0, fmt.Errorf("invalid risk level: %q", s)
}

// MarshalJSON encodes the level as its band name.
func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a band name.
func (l *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// UnmarshalText decodes a band name. Used by YAML decoding of rule tables.
func (l *RiskLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseRiskLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// InsufficientDataRuleID marks the provisional result returned when no rule matches.
const InsufficientDataRuleID = "INSUFFICIENT_DATA"

// RiskAssessment is the output of the rule engine for one snapshot.
type RiskAssessment struct {
	Level        RiskLevel `json:"level"`
	Score        int       `json:"score"`
	RuleID       string    `json:"rule_id"`
	MatchedRules []string  `json:"matched_rules"`
	Factors      []string  `json:"factors"`
	Provisional  bool      `json:"provisional"`
}
