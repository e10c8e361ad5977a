package domain

import "time"

// Direction tells whether a flight arrives or departs.
type Direction string

// Directions.
const (
	DirectionArrival   Direction = "arrival"
	DirectionDeparture Direction = "departure"
)

// IsValid checks if the direction is valid.
func (d Direction) IsValid() bool {
	return d == DirectionArrival || d == DirectionDeparture
}

// ScheduledFlight is one entry of the loaded flight plan.
type ScheduledFlight struct {
	Callsign      string    `json:"callsign"`
	Locations     []string  `json:"locations"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Direction     Direction `json:"direction"`
	Registration  string    `json:"registration,omitempty"`
	AircraftType  string    `json:"aircraft_type,omitempty"`
}

// BlockType is the kind of overlap between a flight and the impact area.
type BlockType string

// Block types.
const (
	BlockStand   BlockType = "stand_block"
	BlockTaxiway BlockType = "taxiway_block"
	BlockRunway  BlockType = "runway_block"
)

// DelaySeverity buckets estimated delays.
type DelaySeverity string

// Delay severities.
const (
	DelaySevere   DelaySeverity = "severe"
	DelayModerate DelaySeverity = "moderate"
	DelayMinor    DelaySeverity = "minor"
)

// AffectedFlight is a flight whose assigned locations overlap the impact area.
type AffectedFlight struct {
	Callsign      string        `json:"callsign"`
	Direction     Direction     `json:"direction"`
	ScheduledTime time.Time     `json:"scheduled_time"`
	Block         BlockType     `json:"block"`
	BlockedAt     string        `json:"blocked_at"`
	DelayMinutes  int           `json:"delay_minutes"`
	Severity      DelaySeverity `json:"severity"`
}

// FlightImpactResult summarises predicted delays.
type FlightImpactResult struct {
	WindowStart       time.Time        `json:"window_start"`
	WindowEnd         time.Time        `json:"window_end"`
	Flights           []AffectedFlight `json:"flights"`
	Count             int              `json:"count"`
	TotalDelayMinutes int              `json:"total_delay_minutes"`
	AverageDelay      float64          `json:"average_delay_minutes"`
	Severe            int              `json:"severe"`
	Moderate          int              `json:"moderate"`
	Minor             int              `json:"minor"`
}

// AircraftInfo is what the aircraft registry knows about an airframe.
type AircraftInfo struct {
	Registration string `json:"registration" yaml:"registration" validate:"required"`
	Type         string `json:"type" yaml:"type" validate:"required"`
	Operator     string `json:"operator,omitempty" yaml:"operator"`
	Category     string `json:"category,omitempty" yaml:"category"`
	FuelCapacity int    `json:"fuel_capacity_l,omitempty" yaml:"fuel_capacity_l"`
}
