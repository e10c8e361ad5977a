package domain

import (
	"fmt"
	"time"
)

// Phase is a state of the incident handling workflow.
type Phase string

// Phases in workflow order.
const (
	PhaseInit           Phase = "INIT"
	PhaseInfoCollection Phase = "P1_INFO_COLLECTION"
	PhaseRiskAssessment Phase = "P2_RISK_ASSESSMENT"
	PhaseImpactAnalysis Phase = "P3_IMPACT_ANALYSIS"
	PhaseNotification   Phase = "P4_NOTIFICATION"
	PhaseMonitoring     Phase = "P5_MONITORING"
	PhaseCompleted      Phase = "COMPLETED"
)

// Phases lists every phase in order.
var Phases = []Phase{
	PhaseInit,
	PhaseInfoCollection,
	PhaseRiskAssessment,
	PhaseImpactAnalysis,
	PhaseNotification,
	PhaseMonitoring,
	PhaseCompleted,
}

// Index returns the position of the phase in the workflow, or -1.
func (p Phase) Index() int {
	for i, ph := range Phases {
		if ph == p {
			return i
		}
	}
	return -1
}

// IsValid checks if the phase is a known workflow phase.
func (p Phase) IsValid() bool {
	return p.Index() >= 0
}

// IsTerminal reports whether no transition can leave p.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted
}

// ParsePhase validates a phase name.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid phase: %q", s)
	}
	return p, nil
}

// Outcome is the result recorded for an action.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeRejected Outcome = "rejected"
)

// IsValid checks if the outcome is valid.
func (o Outcome) IsValid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure || o == OutcomeRejected
}

// Action names recorded in the audit trail.
const (
	ActionPhaseTransition     = "phase_transition"
	ActionAssessRisk          = "assess_risk"
	ActionCalculateImpactZone = "calculate_impact_zone"
	ActionPredictFlightImpact = "predict_flight_impact"
	ActionEnrichIncident      = "enrich_incident"
	ActionNotifyFireDept      = "notify_fire_department"
	ActionNotifyATC           = "notify_atc"
	ActionNotifyAirline       = "notify_airline"
	ActionConfirmCleanup      = "confirm_cleanup"
)

// ActionLogEntry is one append-only record of the compliance audit trail.
type ActionLogEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   Outcome   `json:"outcome"`
	Target    string    `json:"target,omitempty"`
	Phase     Phase     `json:"phase"`
	Detail    string    `json:"detail,omitempty"`
}
