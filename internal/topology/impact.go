package topology

import (
	"fmt"

	"github.com/bissquit/apron-guard/internal/domain"
)

// Radius is the hop bound and runway policy for one substance and risk level.
type Radius struct {
	Hops          int
	IncludeRunway bool
}

// DefaultRadius covers any substance/level pair missing from the table.
var DefaultRadius = Radius{Hops: 2, IncludeRunway: true}

var radiusTable = map[domain.Substance]map[domain.RiskLevel]Radius{
	domain.SubstanceFuel: {
		domain.RiskCritical: {Hops: 3, IncludeRunway: true},
		domain.RiskHigh:     {Hops: 3, IncludeRunway: true},
		domain.RiskMedium:   {Hops: 2, IncludeRunway: true},
		domain.RiskLow:      {Hops: 1, IncludeRunway: false},
	},
	domain.SubstanceHydraulic: {
		domain.RiskCritical: {Hops: 2, IncludeRunway: false},
		domain.RiskHigh:     {Hops: 2, IncludeRunway: false},
		domain.RiskMedium:   {Hops: 2, IncludeRunway: false},
		domain.RiskLow:      {Hops: 1, IncludeRunway: false},
	},
	domain.SubstanceOil: {
		domain.RiskCritical: {Hops: 1, IncludeRunway: false},
		domain.RiskHigh:     {Hops: 1, IncludeRunway: false},
		domain.RiskMedium:   {Hops: 1, IncludeRunway: false},
		domain.RiskLow:      {Hops: 1, IncludeRunway: false},
	},
}

// RadiusFor looks up the hop radius for a substance and risk level.
func RadiusFor(substance domain.Substance, level domain.RiskLevel) Radius {
	if byLevel, ok := radiusTable[substance]; ok {
		if r, ok := byLevel[level]; ok {
			return r
		}
	}
	return DefaultRadius
}

// Engine computes spatial impact over a loaded graph.
type Engine struct {
	graph    *Graph
	resolver *Resolver
}

// NewEngine creates an impact engine for g.
func NewEngine(g *Graph) *Engine {
	return &Engine{graph: g, resolver: NewResolver(g)}
}

// Graph returns the underlying topology.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// Resolver returns the position resolver.
func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// Impact resolves position and propagates the impact with the radius for
// the given substance and level. An empty substance uses the default radius.
func (e *Engine) Impact(position string, substance domain.Substance, level domain.RiskLevel) (domain.SpatialImpact, error) {
	res, err := e.resolver.Resolve(position)
	if err != nil {
		return domain.SpatialImpact{}, err
	}
	r := RadiusFor(substance, level)
	return e.ImpactFromNode(res.Node.ID, r.Hops, r.IncludeRunway)
}

// ImpactFromNode runs a breadth-first search bounded by radius hops from
// start, visiting neighbours in adjacency order and each node at most once.
// Visited nodes other than start are partitioned by type; runways are left
// out of the partition unless includeRunway is set.
func (e *Engine) ImpactFromNode(start string, radius int, includeRunway bool) (domain.SpatialImpact, error) {
	startNode, ok := e.graph.nodes[start]
	if !ok {
		return domain.SpatialImpact{}, fmt.Errorf("%w: %s", ErrNodeNotFound, start)
	}
	if radius < 0 {
		radius = 0
	}

	impact := domain.SpatialImpact{
		StartNode:        start,
		Radius:           radius,
		RunwayIncluded:   includeRunway,
		Visited:          []domain.VisitedNode{{ID: start, Hop: 0, Type: startNode.Type}},
		AffectedStands:   []string{},
		AffectedTaxiways: []string{},
		AffectedRunways:  []string{},
	}

	seen := map[string]bool{start: true}
	frontier := []string{start}
	for hop := 1; hop <= radius && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, nb := range e.graph.neighbors(id) {
				if seen[nb] {
					continue
				}
				seen[nb] = true
				next = append(next, nb)

				n := e.graph.nodes[nb]
				impact.Visited = append(impact.Visited, domain.VisitedNode{ID: nb, Hop: hop, Type: n.Type})
				switch n.Type {
				case domain.NodeTypeStand:
					impact.AffectedStands = append(impact.AffectedStands, nb)
				case domain.NodeTypeTaxiway:
					impact.AffectedTaxiways = append(impact.AffectedTaxiways, nb)
				case domain.NodeTypeRunway:
					if includeRunway {
						impact.AffectedRunways = append(impact.AffectedRunways, nb)
					}
				}
			}
		}
		frontier = next
	}

	return impact, nil
}
