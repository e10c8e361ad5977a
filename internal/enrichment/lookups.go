package enrichment

import (
	"context"
	"fmt"

	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/bissquit/apron-guard/internal/registry"
	"github.com/bissquit/apron-guard/internal/schedule"
	"github.com/bissquit/apron-guard/internal/topology"
)

// Slot names of the built-in lookups and dependents.
const (
	SlotAircraftInfo  = "aircraft_info"
	SlotFlightPlan    = "flight_plan"
	SlotLocation      = "location"
	SlotSpatialImpact = "spatial_impact"
)

// AircraftLookup fetches airframe details from the aircraft registry.
type AircraftLookup struct {
	Registry registry.Registry
}

// Name implements Lookup.
func (AircraftLookup) Name() string { return SlotAircraftInfo }

// Requires implements Lookup.
func (AircraftLookup) Requires() []string { return []string{domain.FieldAircraftReg} }

// Fetch implements Lookup.
func (l AircraftLookup) Fetch(ctx context.Context, s domain.IncidentSnapshot) (any, error) {
	info, err := l.Registry.Lookup(ctx, *s.AircraftReg)
	if err != nil {
		return nil, fmt.Errorf("aircraft lookup: %w", err)
	}
	return info, nil
}

// FlightPlanLookup finds the scheduled flight for the reported flight number.
type FlightPlanLookup struct {
	Store *schedule.Store
}

// Name implements Lookup.
func (FlightPlanLookup) Name() string { return SlotFlightPlan }

// Requires implements Lookup.
func (FlightPlanLookup) Requires() []string { return []string{domain.FieldFlightNo} }

// Fetch implements Lookup.
func (l FlightPlanLookup) Fetch(ctx context.Context, s domain.IncidentSnapshot) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := l.Store.ByCallsign(*s.FlightNo)
	if err != nil {
		return nil, fmt.Errorf("flight plan lookup: %w", err)
	}
	return f, nil
}

// Location is a resolved incident position.
type Location struct {
	NodeID string               `json:"node_id"`
	Name   string               `json:"name"`
	Type   domain.NodeType      `json:"type"`
	Coords domain.Coordinates   `json:"coords"`
	Method topology.MatchMethod `json:"method"`
}

// LocationLookup resolves the reported position onto the apron graph.
type LocationLookup struct {
	Resolver *topology.Resolver
}

// Name implements Lookup.
func (LocationLookup) Name() string { return SlotLocation }

// Requires implements Lookup.
func (LocationLookup) Requires() []string { return []string{domain.FieldPosition} }

// Fetch implements Lookup.
func (l LocationLookup) Fetch(ctx context.Context, s domain.IncidentSnapshot) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := l.Resolver.Resolve(*s.Position)
	if err != nil {
		return nil, err
	}
	return Location{
		NodeID: res.Node.ID,
		Name:   res.Node.Name,
		Type:   res.Node.Type,
		Coords: res.Node.Coords,
		Method: res.Method,
	}, nil
}

// Assessor scores a snapshot.
type Assessor interface {
	Assess(s domain.IncidentSnapshot) domain.RiskAssessment
}

// SpatialImpactStep propagates impact from the resolved location with the
// radius for the current substance and risk level.
func SpatialImpactStep(engine *topology.Engine, assessor Assessor) Dependent {
	return Dependent{
		Name:     SlotSpatialImpact,
		Requires: []string{SlotLocation},
		Run: func(_ context.Context, s domain.IncidentSnapshot, r Result) (any, error) {
			slot, _ := r.Slot(SlotLocation)
			loc, ok := slot.Value.(Location)
			if !ok {
				return nil, fmt.Errorf("unexpected location value %T", slot.Value)
			}

			var substance domain.Substance
			if s.Substance != nil {
				substance = *s.Substance
			}
			radius := topology.RadiusFor(substance, assessor.Assess(s).Level)
			return engine.ImpactFromNode(loc.NodeID, radius.Hops, radius.IncludeRunway)
		},
	}
}
