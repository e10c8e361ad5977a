// Package compliance gates workflow phase transitions on collected incident
// fields and on the actions recorded in the audit trail.
package compliance

import (
	"fmt"

	"github.com/bissquit/apron-guard/internal/domain"
)

// Reason classifies a rejected transition.
type Reason string

// Rejection reasons.
const (
	ReasonNone                   Reason = ""
	ReasonNonForwardTransition   Reason = "NonForwardTransition"
	ReasonMissingRequiredField   Reason = "MissingRequiredField"
	ReasonMissingMandatoryAction Reason = "MissingMandatoryAction"
	ReasonUnknownPhase           Reason = "UnknownPhase"
)

// Decision is the outcome of validating a proposed transition.
type Decision struct {
	Accepted bool         `json:"accepted"`
	From     domain.Phase `json:"from"`
	To       domain.Phase `json:"to"`
	Reason   Reason       `json:"reason,omitempty"`
	// Missing is the field or action name behind the rejection.
	Missing string `json:"missing,omitempty"`
	// BlockedAt is the phase whose gate failed.
	BlockedAt domain.Phase `json:"blocked_at,omitempty"`
}

// Message renders the decision for operators.
func (d Decision) Message() string {
	switch d.Reason {
	case ReasonNone:
		return fmt.Sprintf("transition %s -> %s accepted", d.From, d.To)
	case ReasonNonForwardTransition:
		return fmt.Sprintf("transition %s -> %s rejected: phases only move forward", d.From, d.To)
	case ReasonMissingRequiredField:
		return fmt.Sprintf("transition %s -> %s rejected: %s requires field %q", d.From, d.To, d.BlockedAt, d.Missing)
	case ReasonMissingMandatoryAction:
		return fmt.Sprintf("transition %s -> %s rejected: %s requires action %q", d.From, d.To, d.BlockedAt, d.Missing)
	default:
		return fmt.Sprintf("transition %s -> %s rejected: unknown phase %q", d.From, d.To, d.Missing)
	}
}

// ConditionalAction is mandatory only when the assessed risk reaches MinLevel.
type ConditionalAction struct {
	Action   string
	MinLevel domain.RiskLevel
}

// Gate lists what must hold before a phase can be exited.
type Gate struct {
	RequiredFields   []string
	MandatoryActions []string
	Conditional      []ConditionalAction
}

// DefaultGates are the exit conditions of the incident handling workflow.
func DefaultGates() map[domain.Phase]Gate {
	return map[domain.Phase]Gate{
		domain.PhaseInit: {},
		domain.PhaseInfoCollection: {
			RequiredFields: []string{
				domain.FieldPosition,
				domain.FieldSubstance,
				domain.FieldContinuous,
				domain.FieldPowerState,
			},
		},
		domain.PhaseRiskAssessment: {
			MandatoryActions: []string{domain.ActionAssessRisk},
			Conditional: []ConditionalAction{
				{Action: domain.ActionNotifyFireDept, MinLevel: domain.RiskHigh},
			},
		},
		domain.PhaseImpactAnalysis: {
			MandatoryActions: []string{domain.ActionCalculateImpactZone, domain.ActionPredictFlightImpact},
		},
		domain.PhaseNotification: {
			MandatoryActions: []string{domain.ActionNotifyATC},
			Conditional: []ConditionalAction{
				{Action: domain.ActionNotifyAirline, MinLevel: domain.RiskMedium},
			},
		},
		domain.PhaseMonitoring: {
			MandatoryActions: []string{domain.ActionConfirmCleanup},
		},
	}
}

// Assessor scores a snapshot for conditional gate actions.
type Assessor interface {
	Assess(s domain.IncidentSnapshot) domain.RiskAssessment
}

// Validator checks proposed phase transitions. It is stateless apart from
// its gate table and safe for concurrent use.
type Validator struct {
	gates    map[domain.Phase]Gate
	assessor Assessor
}

// NewValidator creates a validator with the default gates.
func NewValidator(assessor Assessor) *Validator {
	return NewValidatorWithGates(assessor, DefaultGates())
}

// NewValidatorWithGates creates a validator with a custom gate table.
func NewValidatorWithGates(assessor Assessor, gates map[domain.Phase]Gate) *Validator {
	return &Validator{gates: gates, assessor: assessor}
}

// Requirements returns the fields and actions needed to leave phase p for
// the given snapshot. Conditional actions are resolved against its risk.
func (v *Validator) Requirements(p domain.Phase, s domain.IncidentSnapshot) (fields, actions []string) {
	g := v.gates[p]
	fields = append(fields, g.RequiredFields...)
	actions = append(actions, g.MandatoryActions...)
	if len(g.Conditional) > 0 {
		level := v.assessor.Assess(s).Level
		for _, c := range g.Conditional {
			if level.AtLeast(c.MinLevel) {
				actions = append(actions, c.Action)
			}
		}
	}
	return fields, actions
}

// ValidateTransition decides whether current may move to target. Only
// forward moves are allowed and every phase exited on the way must pass its
// gate: required fields first, then mandatory actions with outcome success.
func (v *Validator) ValidateTransition(current, target domain.Phase, s domain.IncidentSnapshot, log []domain.ActionLogEntry) Decision {
	d := Decision{From: current, To: target}

	if !current.IsValid() {
		d.Reason, d.Missing = ReasonUnknownPhase, string(current)
		return d
	}
	if !target.IsValid() {
		d.Reason, d.Missing = ReasonUnknownPhase, string(target)
		return d
	}
	if target.Index() <= current.Index() {
		d.Reason = ReasonNonForwardTransition
		return d
	}

	for i := current.Index(); i < target.Index(); i++ {
		exited := domain.Phases[i]
		fields, actions := v.Requirements(exited, s)

		if missing := s.Missing(fields...); len(missing) > 0 {
			d.Reason, d.Missing, d.BlockedAt = ReasonMissingRequiredField, missing[0], exited
			return d
		}
		for _, a := range actions {
			if !hasSuccess(log, a) {
				d.Reason, d.Missing, d.BlockedAt = ReasonMissingMandatoryAction, a, exited
				return d
			}
		}
	}

	d.Accepted = true
	return d
}

// Advance validates the move from the trail's phase to target. An accepted
// move returns a trail in the new phase with a phase_transition entry; a
// rejected one keeps the phase and records the rejection.
func (v *Validator) Advance(t Trail, target domain.Phase, s domain.IncidentSnapshot) (Trail, Decision) {
	d := v.ValidateTransition(t.Phase(), target, s, t.entries)
	recordDecision(d)

	if !d.Accepted {
		return t.Record(domain.ActionPhaseTransition, domain.OutcomeRejected, string(target), d.Message()), d
	}
	next := t.Record(domain.ActionPhaseTransition, domain.OutcomeSuccess, string(target), d.Message())
	return next.withPhase(target), d
}
