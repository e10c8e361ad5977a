// Package topology holds the apron graph, resolves free-text positions onto it
// and computes hop-bounded spatial impact.
package topology

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Topology errors.
var (
	ErrInvalidGraph     = errors.New("invalid topology")
	ErrLocationNotFound = errors.New("location not found")
	ErrNodeNotFound     = errors.New("node not found")
)

type nodeSpec struct {
	ID        string             `yaml:"id" validate:"required"`
	Name      string             `yaml:"name"`
	Type      domain.NodeType    `yaml:"type" validate:"required,oneof=stand taxiway runway fire_station"`
	Coords    domain.Coordinates `yaml:"coords"`
	Neighbors []string           `yaml:"neighbors"`
}

type graphFile struct {
	Nodes []nodeSpec `yaml:"nodes" validate:"required,min=1,dive"`
}

// Graph is an undirected apron topology. It is immutable after load and safe
// for concurrent reads.
type Graph struct {
	nodes map[string]*domain.TopologyNode
	order []string
}

// LoadGraph decodes a YAML topology, validates it and makes adjacency symmetric.
// Declared neighbours keep their order; back-edges added for symmetry follow.
func LoadGraph(r io.Reader) (*Graph, error) {
	var file graphFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidGraph, err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}
	return buildGraph(file.Nodes)
}

// LoadGraphFile loads the topology at path.
func LoadGraphFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open topology file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadGraph(f)
}

// NewGraph builds a graph from already constructed nodes.
func NewGraph(nodes []domain.TopologyNode) (*Graph, error) {
	specs := make([]nodeSpec, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node without id", ErrInvalidGraph)
		}
		if !n.Type.IsValid() {
			return nil, fmt.Errorf("%w: node %s: invalid type %q", ErrInvalidGraph, n.ID, n.Type)
		}
		specs = append(specs, nodeSpec{
			ID:        n.ID,
			Name:      n.Name,
			Type:      n.Type,
			Coords:    n.Coords,
			Neighbors: n.Neighbors,
		})
	}
	return buildGraph(specs)
}

func buildGraph(specs []nodeSpec) (*Graph, error) {
	g := &Graph{
		nodes: make(map[string]*domain.TopologyNode, len(specs)),
		order: make([]string, 0, len(specs)),
	}

	for _, s := range specs {
		if _, dup := g.nodes[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node %s", ErrInvalidGraph, s.ID)
		}
		name := s.Name
		if name == "" {
			name = s.ID
		}
		g.nodes[s.ID] = &domain.TopologyNode{
			ID:     s.ID,
			Name:   name,
			Type:   s.Type,
			Coords: s.Coords,
		}
		g.order = append(g.order, s.ID)
	}

	for _, s := range specs {
		for _, nb := range s.Neighbors {
			if nb == s.ID {
				return nil, fmt.Errorf("%w: node %s lists itself as neighbour", ErrInvalidGraph, s.ID)
			}
			if _, ok := g.nodes[nb]; !ok {
				return nil, fmt.Errorf("%w: node %s: unknown neighbour %s", ErrInvalidGraph, s.ID, nb)
			}
			g.link(s.ID, nb)
		}
	}
	for _, s := range specs {
		for _, nb := range s.Neighbors {
			g.link(nb, s.ID)
		}
	}

	return g, nil
}

func (g *Graph) link(from, to string) {
	n := g.nodes[from]
	for _, existing := range n.Neighbors {
		if existing == to {
			return
		}
	}
	n.Neighbors = append(n.Neighbors, to)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (domain.TopologyNode, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return domain.TopologyNode{}, false
	}
	out := *n
	out.Neighbors = append([]string(nil), n.Neighbors...)
	return out, true
}

// Nodes returns copies of every node in declaration order.
func (g *Graph) Nodes() []domain.TopologyNode {
	out := make([]domain.TopologyNode, 0, len(g.order))
	for _, id := range g.order {
		n, _ := g.Node(id)
		out = append(out, n)
	}
	return out
}

func (g *Graph) neighbors(id string) []string {
	if n, ok := g.nodes[id]; ok {
		return n.Neighbors
	}
	return nil
}
