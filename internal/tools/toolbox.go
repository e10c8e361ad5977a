package tools

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bissquit/apron-guard/internal/compliance"
	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/bissquit/apron-guard/internal/enrichment"
	"github.com/bissquit/apron-guard/internal/pkg/ctxlog"
	"github.com/bissquit/apron-guard/internal/risk"
	"github.com/bissquit/apron-guard/internal/schedule"
	"github.com/bissquit/apron-guard/internal/topology"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Toolbox holds the analysis components.
type Toolbox struct {
	risk      *risk.Engine
	topology  *topology.Engine
	predictor *schedule.Predictor
	enricher  *enrichment.Scheduler
	validator *compliance.Validator
	window    time.Duration
	now       func() time.Time
}

// Config holds toolbox configuration.
type Config struct {
	// PredictionWindow is the default flight prediction look-ahead.
	PredictionWindow time.Duration
}

// NewToolbox wires the analysis components together.
func NewToolbox(
	cfg Config,
	riskEngine *risk.Engine,
	topo *topology.Engine,
	predictor *schedule.Predictor,
	enricher *enrichment.Scheduler,
	validator *compliance.Validator,
) *Toolbox {
	if cfg.PredictionWindow <= 0 {
		cfg.PredictionWindow = schedule.DefaultWindowLength
	}
	return &Toolbox{
		risk:      riskEngine,
		topology:  topo,
		predictor: predictor,
		enricher:  enricher,
		validator: validator,
		window:    cfg.PredictionWindow,
		now:       time.Now,
	}
}

// Validator returns the compliance validator.
func (t *Toolbox) Validator() *compliance.Validator {
	return t.validator
}

// Execute runs the tool named by kind against the session state.
func (t *Toolbox) Execute(ctx context.Context, kind Kind, state State, params Params) Observation {
	var obs Observation
	switch kind {
	case KindRiskEngine:
		obs = t.assessRisk(state)
	case KindSpatialEngine:
		obs = t.spatialImpact(state, params)
	case KindFlightPredictor:
		obs = t.predictFlights(state, params)
	case KindEnrichmentScheduler:
		obs = t.enrich(ctx, state)
	case KindFSMValidator:
		obs = t.validateTransition(state, params)
	default:
		obs = Observation{Text: "unknown tool " + string(kind)}
	}

	recordExecution(kind, obs.Success)
	ctxlog.FromContext(ctx).Info("tool executed",
		"tool", kind,
		"success", obs.Success,
	)
	return obs
}

func printer() *message.Printer {
	return message.NewPrinter(language.English)
}

func (t *Toolbox) assessRisk(state State) Observation {
	a := t.risk.Assess(state.Snapshot)
	p := printer()

	if a.Provisional {
		trail := state.Trail.Record(domain.ActionAssessRisk, domain.OutcomeFailure, "", "insufficient data")
		return Observation{
			Text:    p.Sprintf("Risk is provisional (%s, score %d): %s.", a.Level, a.Score, strings.Join(a.Factors, "; ")),
			Success: false,
			Patch:   &Patch{Risk: &a, Trail: &trail},
		}
	}

	trail := state.Trail.Record(domain.ActionAssessRisk, domain.OutcomeSuccess, "", a.RuleID)
	return Observation{
		Text: p.Sprintf("Risk %s, score %d, rule %s (%s).",
			a.Level, a.Score, a.RuleID, strings.Join(a.Factors, "; ")),
		Success: true,
		Patch:   &Patch{Risk: &a, Trail: &trail},
	}
}

func (t *Toolbox) currentLevel(state State) domain.RiskLevel {
	if state.Risk != nil && state.Risk.Level.IsValid() {
		return state.Risk.Level
	}
	return t.risk.Assess(state.Snapshot).Level
}

func (t *Toolbox) spatialImpact(state State, params Params) Observation {
	position := params.Position
	if position == "" && state.Snapshot.Position != nil {
		position = *state.Snapshot.Position
	}
	if position == "" {
		return t.failed(state, domain.ActionCalculateImpactZone, "Cannot compute impact zone: position is unknown.")
	}

	var substance domain.Substance
	if state.Snapshot.Substance != nil {
		substance = *state.Snapshot.Substance
	}
	impact, err := t.topology.Impact(position, substance, t.currentLevel(state))
	if err != nil {
		if errors.Is(err, topology.ErrLocationNotFound) {
			return t.failed(state, domain.ActionCalculateImpactZone, "Cannot compute impact zone: "+err.Error()+".")
		}
		return t.failed(state, domain.ActionCalculateImpactZone, "Impact zone failed: "+err.Error()+".")
	}

	trail := state.Trail.Record(domain.ActionCalculateImpactZone, domain.OutcomeSuccess, "", impact.StartNode)
	runway := "runways excluded"
	if impact.RunwayIncluded {
		runway = "runways included"
	}
	return Observation{
		Text: printer().Sprintf("Impact from %s within %d hops (%s): %d stands, %d taxiways, %d runways affected.",
			impact.StartNode, impact.Radius, runway,
			len(impact.AffectedStands), len(impact.AffectedTaxiways), len(impact.AffectedRunways)),
		Success: true,
		Patch:   &Patch{Spatial: &impact, Trail: &trail},
	}
}

func (t *Toolbox) predictFlights(state State, params Params) Observation {
	impact := state.Spatial
	if impact == nil {
		obs := t.spatialImpact(state, Params{Position: params.Position})
		state.Trail = *obs.Patch.Trail
		if !obs.Success {
			return t.failed(state, domain.ActionPredictFlightImpact, "Cannot predict flight impact without an impact zone. "+obs.Text)
		}
		impact = obs.Patch.Spatial
	}

	window := schedule.TimeWindow{Start: t.now().UTC(), Length: t.window}
	switch {
	case params.WindowStart != nil:
		window.Start = *params.WindowStart
	case state.Snapshot.IncidentTime != nil:
		window.Start = *state.Snapshot.IncidentTime
	}
	if params.WindowMinutes > 0 {
		window.Length = time.Duration(params.WindowMinutes) * time.Minute
	}

	result := t.predictor.Predict(*impact, window)
	trail := state.Trail.Record(domain.ActionPredictFlightImpact, domain.OutcomeSuccess, "", "")
	return Observation{
		Text: printer().Sprintf("%d flights affected between %s and %s: total delay %d min, average %.1f min (%d severe, %d moderate, %d minor).",
			result.Count,
			result.WindowStart.Format(time.RFC3339), result.WindowEnd.Format(time.RFC3339),
			result.TotalDelayMinutes, result.AverageDelay,
			result.Severe, result.Moderate, result.Minor),
		Success: true,
		Patch:   &Patch{Spatial: impact, Flights: &result, Trail: &trail},
	}
}

func (t *Toolbox) enrich(ctx context.Context, state State) Observation {
	res := t.enricher.Enrich(ctx, state.Snapshot)

	parts := make([]string, 0, len(res.Slots()))
	for _, s := range res.Slots() {
		parts = append(parts, s.Name+"="+string(s.Status))
	}
	trail := state.Trail.Record(domain.ActionEnrichIncident, domain.OutcomeSuccess, "", strings.Join(parts, ","))

	patch := &Patch{Enrichment: &res, Trail: &trail}
	if slot, ok := res.Slot(enrichment.SlotSpatialImpact); ok && slot.OK() {
		if impact, ok := slot.Value.(domain.SpatialImpact); ok {
			patch.Spatial = &impact
		}
	}
	if incident, ok := incidentFromEnrichment(state.Snapshot, res); ok {
		patch.Incident = &incident
	}

	return Observation{
		Text:    "Enrichment finished: " + strings.Join(parts, ", ") + ".",
		Success: true,
		Patch:   patch,
	}
}

// incidentFromEnrichment fills still unknown snapshot fields from lookups.
func incidentFromEnrichment(s domain.IncidentSnapshot, res enrichment.Result) (domain.IncidentSnapshot, bool) {
	var patch domain.IncidentSnapshot
	changed := false

	if slot, ok := res.Slot(enrichment.SlotFlightPlan); ok && slot.OK() {
		if f, ok := slot.Value.(domain.ScheduledFlight); ok && !s.Known(domain.FieldAircraftReg) && f.Registration != "" {
			patch.AircraftReg = domain.Ptr(f.Registration)
			changed = true
		}
	}
	if slot, ok := res.Slot(enrichment.SlotLocation); ok && slot.OK() {
		if loc, ok := slot.Value.(enrichment.Location); ok && s.Position != nil && *s.Position != loc.NodeID {
			patch.Position = domain.Ptr(loc.NodeID)
			changed = true
		}
	}
	return patch, changed
}

func (t *Toolbox) validateTransition(state State, params Params) Observation {
	if params.TargetPhase == "" {
		return Observation{Text: "fsm_validator needs target_phase."}
	}

	trail, d := t.validator.Advance(state.Trail, params.TargetPhase, state.Snapshot)
	return Observation{
		Text:    d.Message() + ".",
		Success: d.Accepted,
		Patch:   &Patch{Trail: &trail, Decision: &d},
	}
}

func (t *Toolbox) failed(state State, action, text string) Observation {
	trail := state.Trail.Record(action, domain.OutcomeFailure, "", text)
	return Observation{Text: text, Success: false, Patch: &Patch{Trail: &trail}}
}
