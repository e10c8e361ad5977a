package schedule

import (
	"sort"
	"time"

	"github.com/bissquit/apron-guard/internal/domain"
)

// DefaultWindowLength is the look-ahead used when a window has no length.
const DefaultWindowLength = 2 * time.Hour

// TimeWindow is the inclusive interval [Start, Start+Length].
type TimeWindow struct {
	Start  time.Time
	Length time.Duration
}

// End returns the last instant of the window.
func (w TimeWindow) End() time.Time {
	return w.Start.Add(w.Length)
}

// Contains reports whether t falls within the window, bounds included.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End())
}

// delayMinutes is the fixed delay per block type and direction.
var delayMinutes = map[domain.BlockType]map[domain.Direction]int{
	domain.BlockStand:   {domain.DirectionDeparture: 30, domain.DirectionArrival: 45},
	domain.BlockTaxiway: {domain.DirectionDeparture: 15, domain.DirectionArrival: 20},
	domain.BlockRunway:  {domain.DirectionDeparture: 60, domain.DirectionArrival: 60},
}

// DelayFor returns the delay in minutes for a block and direction.
func DelayFor(block domain.BlockType, dir domain.Direction) int {
	return delayMinutes[block][dir]
}

// SeverityFor buckets a delay: severe >= 60, moderate 20-59, minor < 20.
func SeverityFor(minutes int) domain.DelaySeverity {
	switch {
	case minutes >= 60:
		return domain.DelaySevere
	case minutes >= 20:
		return domain.DelayModerate
	default:
		return domain.DelayMinor
	}
}

// Predictor estimates flight delays from a spatial impact. It only reads the
// store and is safe for concurrent use.
type Predictor struct {
	store *Store
}

// NewPredictor creates a predictor over store.
func NewPredictor(store *Store) *Predictor {
	return &Predictor{store: store}
}

// Predict returns every flight scheduled inside window whose locations
// overlap the impact area. The incident node itself counts as blocked.
// When a flight touches several blocked locations the largest delay wins.
func (p *Predictor) Predict(impact domain.SpatialImpact, window TimeWindow) domain.FlightImpactResult {
	if window.Length <= 0 {
		window.Length = DefaultWindowLength
	}
	blocked := blockedLocations(impact)

	result := domain.FlightImpactResult{
		WindowStart: window.Start,
		WindowEnd:   window.End(),
		Flights:     []domain.AffectedFlight{},
	}

	for _, f := range p.store.flights {
		if !window.Contains(f.ScheduledTime) {
			continue
		}
		af, ok := worstBlock(f, blocked)
		if !ok {
			continue
		}
		result.Flights = append(result.Flights, af)
	}

	sort.SliceStable(result.Flights, func(i, j int) bool {
		a, b := result.Flights[i], result.Flights[j]
		return lessFlight(a.ScheduledTime, a.Callsign, b.ScheduledTime, b.Callsign)
	})

	for _, af := range result.Flights {
		result.TotalDelayMinutes += af.DelayMinutes
		switch af.Severity {
		case domain.DelaySevere:
			result.Severe++
		case domain.DelayModerate:
			result.Moderate++
		default:
			result.Minor++
		}
	}
	result.Count = len(result.Flights)
	if result.Count > 0 {
		result.AverageDelay = float64(result.TotalDelayMinutes) / float64(result.Count)
	}
	return result
}

func blockedLocations(impact domain.SpatialImpact) map[string]domain.BlockType {
	blocked := make(map[string]domain.BlockType)
	for _, id := range impact.AffectedStands {
		blocked[id] = domain.BlockStand
	}
	for _, id := range impact.AffectedTaxiways {
		blocked[id] = domain.BlockTaxiway
	}
	for _, id := range impact.AffectedRunways {
		blocked[id] = domain.BlockRunway
	}
	if impact.StartNode != "" && len(impact.Visited) > 0 {
		if b, ok := blockForNode(impact.Visited[0].Type); ok {
			blocked[impact.StartNode] = b
		}
	}
	return blocked
}

func blockForNode(t domain.NodeType) (domain.BlockType, bool) {
	switch t {
	case domain.NodeTypeStand:
		return domain.BlockStand, true
	case domain.NodeTypeTaxiway:
		return domain.BlockTaxiway, true
	case domain.NodeTypeRunway:
		return domain.BlockRunway, true
	}
	return "", false
}

func worstBlock(f domain.ScheduledFlight, blocked map[string]domain.BlockType) (domain.AffectedFlight, bool) {
	var (
		best  domain.AffectedFlight
		found bool
	)
	for _, loc := range f.Locations {
		b, ok := blocked[loc]
		if !ok {
			continue
		}
		d := DelayFor(b, f.Direction)
		if !found || d > best.DelayMinutes {
			best = domain.AffectedFlight{
				Callsign:      f.Callsign,
				Direction:     f.Direction,
				ScheduledTime: f.ScheduledTime,
				Block:         b,
				BlockedAt:     loc,
				DelayMinutes:  d,
				Severity:      SeverityFor(d),
			}
			found = true
		}
	}
	return best, found
}
