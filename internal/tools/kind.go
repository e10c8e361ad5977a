// Package tools exposes the analysis components to the reasoning loop through
// one uniform execute contract.
package tools

import (
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/apron-guard/internal/compliance"
	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/bissquit/apron-guard/internal/enrichment"
)

// ErrUnknownKind is returned for tool names outside the closed set.
var ErrUnknownKind = errors.New("unknown tool kind")

// Kind names one of the analysis tools.
type Kind string

// Tool kinds.
const (
	KindRiskEngine          Kind = "risk_engine"
	KindSpatialEngine       Kind = "spatial_engine"
	KindFlightPredictor     Kind = "flight_predictor"
	KindEnrichmentScheduler Kind = "enrichment_scheduler"
	KindFSMValidator        Kind = "fsm_validator"
)

// Kinds lists every tool kind.
var Kinds = []Kind{
	KindRiskEngine,
	KindSpatialEngine,
	KindFlightPredictor,
	KindEnrichmentScheduler,
	KindFSMValidator,
}

// IsValid checks if the kind is one of the known tools.
func (k Kind) IsValid() bool {
	switch k {
	case KindRiskEngine, KindSpatialEngine, KindFlightPredictor, KindEnrichmentScheduler, KindFSMValidator:
		return true
	}
	return false
}

// ParseKind validates a tool name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// State is the session state a tool may read. It is passed by value and
// never retained.
type State struct {
	Snapshot domain.IncidentSnapshot
	Trail    compliance.Trail
	Risk     *domain.RiskAssessment
	Spatial  *domain.SpatialImpact
}

// Params are the explicit tool parameters.
type Params struct {
	// TargetPhase is the proposed phase for fsm_validator.
	TargetPhase domain.Phase `json:"target_phase,omitempty"`
	// Position overrides the snapshot position for spatial_engine.
	Position string `json:"position,omitempty"`
	// WindowStart and WindowMinutes bound flight_predictor. The start
	// defaults to the incident time, then to now.
	WindowStart   *time.Time `json:"window_start,omitempty"`
	WindowMinutes int        `json:"window_minutes,omitempty" validate:"gte=0,lte=1440"`
}

// Patch is the state update a tool proposes. Nil fields leave state alone.
type Patch struct {
	Incident   *domain.IncidentSnapshot   `json:"incident,omitempty"`
	Risk       *domain.RiskAssessment     `json:"risk,omitempty"`
	Spatial    *domain.SpatialImpact      `json:"spatial,omitempty"`
	Flights    *domain.FlightImpactResult `json:"flights,omitempty"`
	Enrichment *enrichment.Result         `json:"enrichment,omitempty"`
	Decision   *compliance.Decision       `json:"decision,omitempty"`
	Trail      *compliance.Trail          `json:"trail,omitempty"`
}

// Observation is what a tool reports back to the reasoning loop.
type Observation struct {
	Text    string `json:"text"`
	Success bool   `json:"success"`
	Patch   *Patch `json:"patch,omitempty"`
}
