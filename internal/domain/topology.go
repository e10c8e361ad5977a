package domain

// NodeType classifies apron topology nodes.
type NodeType string

// Node types.
const (
	NodeTypeStand       NodeType = "stand"
	NodeTypeTaxiway     NodeType = "taxiway"
	NodeTypeRunway      NodeType = "runway"
	NodeTypeFireStation NodeType = "fire_station"
)

// IsValid checks if the node type is valid.
func (t NodeType) IsValid() bool {
	switch t {
	case NodeTypeStand, NodeTypeTaxiway, NodeTypeRunway, NodeTypeFireStation:
		return true
	}
	return false
}

// Coordinates are positions on the airport grid, in metres.
type Coordinates struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// TopologyNode is a named apron location and its neighbours.
type TopologyNode struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      NodeType    `json:"type"`
	Coords    Coordinates `json:"coords"`
	Neighbors []string    `json:"neighbors"`
}

// VisitedNode is one step of a bounded breadth-first search.
type VisitedNode struct {
	ID   string   `json:"id"`
	Hop  int      `json:"hop"`
	Type NodeType `json:"type"`
}

// SpatialImpact is the set of nodes reached from an incident position.
type SpatialImpact struct {
	StartNode        string        `json:"start_node"`
	Radius           int           `json:"radius"`
	RunwayIncluded   bool          `json:"runway_included"`
	Visited          []VisitedNode `json:"visited"`
	AffectedStands   []string      `json:"affected_stands"`
	AffectedTaxiways []string      `json:"affected_taxiways"`
	AffectedRunways  []string      `json:"affected_runways"`
}

// AffectedCount returns the number of partitioned affected nodes.
func (s SpatialImpact) AffectedCount() int {
	return len(s.AffectedStands) + len(s.AffectedTaxiways) + len(s.AffectedRunways)
}
