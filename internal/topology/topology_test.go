package topology

import (
	"os"
	"strings"
	"testing"

	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestGraph(t *testing.T) *Graph {
	t.Helper()
	f, err := os.Open("testdata/topology.yaml")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	g, err := LoadGraph(f)
	require.NoError(t, err)
	return g
}

func visitedIDs(impact domain.SpatialImpact) []string {
	ids := make([]string, 0, len(impact.Visited))
	for _, v := range impact.Visited {
		ids = append(ids, v.ID)
	}
	return ids
}

func affected(impact domain.SpatialImpact) map[string]bool {
	out := make(map[string]bool)
	for _, list := range [][]string{impact.AffectedStands, impact.AffectedTaxiways, impact.AffectedRunways} {
		for _, id := range list {
			out[id] = true
		}
	}
	return out
}

func TestLoadGraph_SymmetricAdjacency(t *testing.T) {
	g := loadTestGraph(t)

	assert.Equal(t, 9, g.Len())

	a1, ok := g.Node("TWY_A1")
	require.True(t, ok)
	assert.Equal(t, []string{"TWY_A2", "TWY_B", "501", "FS1"}, a1.Neighbors)

	rwy, ok := g.Node("RWY_09L")
	require.True(t, ok)
	assert.Equal(t, []string{"TWY_B"}, rwy.Neighbors)
}

func TestLoadGraph_NodeCopiesAreIsolated(t *testing.T) {
	g := loadTestGraph(t)

	n, _ := g.Node("501")
	n.Neighbors[0] = "MUTATED"

	again, _ := g.Node("501")
	assert.Equal(t, "TWY_A1", again.Neighbors[0])
}

func TestLoadGraph_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "dangling neighbour",
			yaml: "nodes:\n  - {id: A, type: stand, neighbors: [B]}\n",
		},
		{
			name: "self neighbour",
			yaml: "nodes:\n  - {id: A, type: stand, neighbors: [A]}\n",
		},
		{
			name: "duplicate node",
			yaml: "nodes:\n  - {id: A, type: stand}\n  - {id: A, type: taxiway}\n",
		},
		{
			name: "unknown type",
			yaml: "nodes:\n  - {id: A, type: hangar}\n",
		},
		{
			name: "no nodes",
			yaml: "nodes: []\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGraph(strings.NewReader(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidGraph)
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(loadTestGraph(t))

	tests := []struct {
		text       string
		wantID     string
		wantMethod MatchMethod
	}{
		{text: "501", wantID: "501", wantMethod: MatchExact},
		{text: "Stand 501", wantID: "501", wantMethod: MatchExact},
		{text: "stand #501", wantID: "501", wantMethod: MatchNormalized},
		{text: "near stand 501", wantID: "501", wantMethod: MatchNormalized},
		{text: "twy a1", wantID: "TWY_A1", wantMethod: MatchNormalized},
		{text: "taxiway a2", wantID: "TWY_A2", wantMethod: MatchNormalized},
		{text: "5O1", wantID: "501", wantMethod: MatchNearest},
		{text: "Stand 5O2", wantID: "502", wantMethod: MatchNearest},
		{text: "Texiway A3", wantID: "TWY_A3", wantMethod: MatchNearest},
		{text: "38, 3", wantID: "502", wantMethod: MatchNearest},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := r.Resolve(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.Node.ID)
			assert.Equal(t, tt.wantMethod, got.Method)
		})
	}
}

func TestResolver_NotFound(t *testing.T) {
	r := NewResolver(loadTestGraph(t))

	texts := []string{
		"", "   ", "Hangar 9 maintenance area", "X",
		"Stand 509", "Stand 701", "504", "TWY A9", "Taxiway A4",
	}
	for _, text := range texts {
		_, err := r.Resolve(text)
		assert.ErrorIs(t, err, ErrLocationNotFound, "text %q", text)
	}
}

func TestRadiusFor(t *testing.T) {
	tests := []struct {
		substance domain.Substance
		level     domain.RiskLevel
		want      Radius
	}{
		{domain.SubstanceFuel, domain.RiskCritical, Radius{Hops: 3, IncludeRunway: true}},
		{domain.SubstanceFuel, domain.RiskHigh, Radius{Hops: 3, IncludeRunway: true}},
		{domain.SubstanceFuel, domain.RiskMedium, Radius{Hops: 2, IncludeRunway: true}},
		{domain.SubstanceFuel, domain.RiskLow, Radius{Hops: 1, IncludeRunway: false}},
		{domain.SubstanceHydraulic, domain.RiskHigh, Radius{Hops: 2, IncludeRunway: false}},
		{domain.SubstanceHydraulic, domain.RiskLow, Radius{Hops: 1, IncludeRunway: false}},
		{domain.SubstanceOil, domain.RiskCritical, Radius{Hops: 1, IncludeRunway: false}},
		{domain.SubstanceOther, domain.RiskHigh, DefaultRadius},
		{"", domain.RiskLow, DefaultRadius},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RadiusFor(tt.substance, tt.level), "%s/%s", tt.substance, tt.level)
	}
}

func TestEngine_Impact_CriticalFuelReachesRunway(t *testing.T) {
	e := NewEngine(loadTestGraph(t))

	got, err := e.Impact("501", domain.SubstanceFuel, domain.RiskCritical)
	require.NoError(t, err)

	assert.Equal(t, "501", got.StartNode)
	assert.Equal(t, 3, got.Radius)
	assert.True(t, got.RunwayIncluded)
	assert.Equal(t, []string{"RWY_09L"}, got.AffectedRunways)
	assert.Equal(t, []string{"502"}, got.AffectedStands)
	assert.Equal(t, []string{"TWY_A1", "TWY_A2", "TWY_B", "TWY_A3"}, got.AffectedTaxiways)
	assert.Equal(t,
		[]string{"501", "TWY_A1", "502", "TWY_A2", "TWY_B", "FS1", "TWY_A3", "RWY_09L"},
		visitedIDs(got))

	for _, v := range got.Visited {
		assert.LessOrEqual(t, v.Hop, 3)
	}
	assert.NotContains(t, got.AffectedStands, "501")
}

func TestEngine_Impact_RunwayExcluded(t *testing.T) {
	e := NewEngine(loadTestGraph(t))

	got, err := e.ImpactFromNode("501", 3, false)
	require.NoError(t, err)

	assert.Empty(t, got.AffectedRunways)
	assert.Contains(t, visitedIDs(got), "RWY_09L")
}

func TestEngine_Impact_OilStaysLocal(t *testing.T) {
	e := NewEngine(loadTestGraph(t))

	got, err := e.Impact("Stand 501", domain.SubstanceOil, domain.RiskHigh)
	require.NoError(t, err)

	assert.Equal(t, 1, got.Radius)
	assert.Equal(t, []string{"502"}, got.AffectedStands)
	assert.Equal(t, []string{"TWY_A1"}, got.AffectedTaxiways)
}

func TestEngine_Impact_UnknownPosition(t *testing.T) {
	e := NewEngine(loadTestGraph(t))

	_, err := e.Impact("somewhere over there", domain.SubstanceFuel, domain.RiskHigh)
	assert.ErrorIs(t, err, ErrLocationNotFound)

	_, err = e.ImpactFromNode("nope", 2, true)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestEngine_ImpactFromNode_Monotonic(t *testing.T) {
	e := NewEngine(loadTestGraph(t))

	for _, start := range []string{"501", "503", "RWY_09L", "FS1"} {
		prev := map[string]bool{}
		for r := 0; r <= 6; r++ {
			got, err := e.ImpactFromNode(start, r, true)
			require.NoError(t, err)
			cur := affected(got)
			for id := range prev {
				assert.True(t, cur[id], "start %s radius %d lost %s", start, r, id)
			}
			prev = cur
		}
	}
}

func TestEngine_ImpactFromNode_CycleTerminates(t *testing.T) {
	g, err := NewGraph([]domain.TopologyNode{
		{ID: "A", Type: domain.NodeTypeStand, Neighbors: []string{"B"}},
		{ID: "B", Type: domain.NodeTypeTaxiway, Neighbors: []string{"C"}},
		{ID: "C", Type: domain.NodeTypeTaxiway, Neighbors: []string{"A"}},
	})
	require.NoError(t, err)

	got, err := NewEngine(g).ImpactFromNode("A", 50, true)
	require.NoError(t, err)

	assert.Len(t, got.Visited, 3)
	assert.Equal(t, []string{"B", "C"}, got.AffectedTaxiways)
}

func TestEngine_ImpactFromNode_ZeroRadius(t *testing.T) {
	e := NewEngine(loadTestGraph(t))

	got, err := e.ImpactFromNode("501", 0, true)
	require.NoError(t, err)

	assert.Equal(t, 0, got.AffectedCount())
	assert.Equal(t, []string{"501"}, visitedIDs(got))
}
