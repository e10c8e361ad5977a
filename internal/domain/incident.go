package domain

import "time"

// Substance is the leaking fluid reported for an incident.
type Substance string

// Substances.
const (
	SubstanceFuel      Substance = "fuel"
	SubstanceHydraulic Substance = "hydraulic"
	SubstanceOil       Substance = "oil"
	SubstanceOther     Substance = "other"
)

// IsValid checks if the substance is valid.
func (s Substance) IsValid() bool {
	switch s {
	case SubstanceFuel, SubstanceHydraulic, SubstanceOil, SubstanceOther:
		return true
	}
	return false
}

// PowerState is the engine/power state of the aircraft involved.
type PowerState string

// Power states.
const (
	PowerStateRunning PowerState = "running"
	PowerStateAPU     PowerState = "apu"
	PowerStateOff     PowerState = "off"
)

// IsValid checks if the power state is valid.
func (p PowerState) IsValid() bool {
	return p == PowerStateRunning || p == PowerStateAPU || p == PowerStateOff
}

// LeakSize is the operator's estimate of the spill size.
type LeakSize string

// Leak sizes.
const (
	LeakSizeSmall  LeakSize = "small"
	LeakSizeMedium LeakSize = "medium"
	LeakSizeLarge  LeakSize = "large"
)

// IsValid checks if the leak size is valid.
func (s LeakSize) IsValid() bool {
	return s == LeakSizeSmall || s == LeakSizeMedium || s == LeakSizeLarge
}

// Scenario is the incident category chosen at intake.
type Scenario string

// Scenarios.
const (
	ScenarioFuelLeak      Scenario = "fuel_leak"
	ScenarioOilLeak       Scenario = "oil_leak"
	ScenarioHydraulicLeak Scenario = "hydraulic_leak"
	ScenarioOther         Scenario = "other"
)

// IsValid checks if the scenario is valid.
func (s Scenario) IsValid() bool {
	switch s {
	case ScenarioFuelLeak, ScenarioOilLeak, ScenarioHydraulicLeak, ScenarioOther:
		return true
	}
	return false
}

// Field names used in validation reasons and missing-field reports.
const (
	FieldPosition     = "position"
	FieldSubstance    = "substance"
	FieldContinuous   = "continuous"
	FieldPowerState   = "power_state"
	FieldSize         = "size"
	FieldCategory     = "category"
	FieldIncidentTime = "incident_time"
	FieldFlightNo     = "flight_no"
	FieldAircraftReg  = "aircraft_reg"
)

// IncidentSnapshot holds the incident fields known so far.
// A nil field is unknown. A non-nil field is known, including known-false
// for Continuous. Snapshots are treated as values: Merge returns a new one.
type IncidentSnapshot struct {
	Position     *string     `json:"position,omitempty"`
	Substance    *Substance  `json:"substance,omitempty"`
	Continuous   *bool       `json:"continuous,omitempty"`
	PowerState   *PowerState `json:"power_state,omitempty"`
	Size         *LeakSize   `json:"size,omitempty"`
	Category     *Scenario   `json:"category,omitempty"`
	IncidentTime *time.Time  `json:"incident_time,omitempty"`
	FlightNo     *string     `json:"flight_no,omitempty"`
	AircraftReg  *string     `json:"aircraft_reg,omitempty"`
}

// Merge returns a copy of s with every known field of patch applied.
// Unknown fields in patch never clear a known value.
func (s IncidentSnapshot) Merge(patch IncidentSnapshot) IncidentSnapshot {
	out := s.Clone()
	if patch.Position != nil {
		out.Position = Ptr(*patch.Position)
	}
	if patch.Substance != nil {
		out.Substance = Ptr(*patch.Substance)
	}
	if patch.Continuous != nil {
		out.Continuous = Ptr(*patch.Continuous)
	}
	if patch.PowerState != nil {
		out.PowerState = Ptr(*patch.PowerState)
	}
	if patch.Size != nil {
		out.Size = Ptr(*patch.Size)
	}
	if patch.Category != nil {
		out.Category = Ptr(*patch.Category)
	}
	if patch.IncidentTime != nil {
		out.IncidentTime = Ptr(*patch.IncidentTime)
	}
	if patch.FlightNo != nil {
		out.FlightNo = Ptr(*patch.FlightNo)
	}
	if patch.AircraftReg != nil {
		out.AircraftReg = Ptr(*patch.AircraftReg)
	}
	return out
}

// Clone returns a deep copy so callers never share pointers with s.
func (s IncidentSnapshot) Clone() IncidentSnapshot {
	var out IncidentSnapshot
	if s.Position != nil {
		out.Position = Ptr(*s.Position)
	}
	if s.Substance != nil {
		out.Substance = Ptr(*s.Substance)
	}
	if s.Continuous != nil {
		out.Continuous = Ptr(*s.Continuous)
	}
	if s.PowerState != nil {
		out.PowerState = Ptr(*s.PowerState)
	}
	if s.Size != nil {
		out.Size = Ptr(*s.Size)
	}
	if s.Category != nil {
		out.Category = Ptr(*s.Category)
	}
	if s.IncidentTime != nil {
		out.IncidentTime = Ptr(*s.IncidentTime)
	}
	if s.FlightNo != nil {
		out.FlightNo = Ptr(*s.FlightNo)
	}
	if s.AircraftReg != nil {
		out.AircraftReg = Ptr(*s.AircraftReg)
	}
	return out
}

// Known reports whether the named field has a value.
// Unrecognised names are never known.
func (s IncidentSnapshot) Known(field string) bool {
	switch field {
	case FieldPosition:
		return s.Position != nil && *s.Position != ""
	case FieldSubstance:
		return s.Substance != nil
	case FieldContinuous:
		return s.Continuous != nil
	case FieldPowerState:
		return s.PowerState != nil
	case FieldSize:
		return s.Size != nil
	case FieldCategory:
		return s.Category != nil
	case FieldIncidentTime:
		return s.IncidentTime != nil
	case FieldFlightNo:
		return s.FlightNo != nil && *s.FlightNo != ""
	case FieldAircraftReg:
		return s.AircraftReg != nil && *s.AircraftReg != ""
	}
	return false
}

// Missing returns the fields from the list that are not known, in order.
func (s IncidentSnapshot) Missing(fields ...string) []string {
	var missing []string
	for _, f := range fields {
		if !s.Known(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Ptr returns a pointer to v. Handy for building snapshots in callers and tests.
func Ptr[T any](v T) *T {
	return &v
}
