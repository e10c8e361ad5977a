package topology

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/bissquit/apron-guard/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MatchMethod tells how a position text was mapped to a node.
type MatchMethod string

// Match methods, in the order they are tried.
const (
	MatchExact      MatchMethod = "exact"
	MatchNormalized MatchMethod = "normalized"
	MatchNearest    MatchMethod = "nearest"
)

// maxEditDistance bounds the fuzzy label fallback.
const maxEditDistance = 2

// descriptiveWords are dropped before comparing labels.
var descriptiveWords = map[string]bool{
	"STAND":    true,
	"GATE":     true,
	"POSITION": true,
	"POS":      true,
	"BAY":      true,
	"NEAR":     true,
	"AT":       true,
	"THE":      true,
	"NO":       true,
}

var coordinatePattern = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*$`)

// Resolution is a resolved position.
type Resolution struct {
	Node   domain.TopologyNode
	Method MatchMethod
}

// Resolver maps free-text positions onto graph nodes.
type Resolver struct {
	graph *Graph
	// normalized label -> node ids sorted ascending
	labels map[string][]string
	keys   []string
}

// NewResolver indexes the node ids and names of g.
func NewResolver(g *Graph) *Resolver {
	r := &Resolver{
		graph:  g,
		labels: make(map[string][]string),
	}
	for _, id := range g.order {
		n := g.nodes[id]
		r.index(r.normalize(n.ID), n.ID)
		r.index(r.normalize(n.Name), n.ID)
	}
	for k, ids := range r.labels {
		sort.Strings(ids)
		r.labels[k] = ids
		r.keys = append(r.keys, k)
	}
	sort.Strings(r.keys)
	return r
}

func (r *Resolver) index(key, id string) {
	if key == "" {
		return
	}
	for _, existing := range r.labels[key] {
		if existing == id {
			return
		}
	}
	r.labels[key] = append(r.labels[key], id)
}

// Resolve tries exact id or name, then the normalized label, then the nearest
// node. It returns ErrLocationNotFound when nothing is close enough.
func (r *Resolver) Resolve(text string) (Resolution, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Resolution{}, fmt.Errorf("%w: empty position", ErrLocationNotFound)
	}

	if n, ok := r.graph.Node(trimmed); ok {
		return Resolution{Node: n, Method: MatchExact}, nil
	}
	for _, id := range r.graph.order {
		if r.graph.nodes[id].Name == trimmed {
			n, _ := r.graph.Node(id)
			return Resolution{Node: n, Method: MatchExact}, nil
		}
	}

	key := r.normalize(trimmed)
	if ids, ok := r.labels[key]; ok {
		n, _ := r.graph.Node(ids[0])
		return Resolution{Node: n, Method: MatchNormalized}, nil
	}

	if id, ok := r.nearestByCoordinates(trimmed); ok {
		n, _ := r.graph.Node(id)
		return Resolution{Node: n, Method: MatchNearest}, nil
	}
	if id, ok := r.nearestByLabel(key); ok {
		n, _ := r.graph.Node(id)
		return Resolution{Node: n, Method: MatchNearest}, nil
	}

	return Resolution{}, fmt.Errorf("%w: %q", ErrLocationNotFound, text)
}

// normalize uppercases s, drops descriptive words and punctuation and joins
// the remaining tokens.
func (r *Resolver) normalize(s string) string {
	// Casers are stateful, so each call gets its own.
	upper := cases.Upper(language.Und).String(s)
	tokens := strings.FieldsFunc(upper, func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})
	var b strings.Builder
	for _, t := range tokens {
		if descriptiveWords[t] {
			continue
		}
		b.WriteString(t)
	}
	return b.String()
}

func (r *Resolver) nearestByCoordinates(text string) (string, bool) {
	m := coordinatePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	x, errX := strconv.ParseFloat(m[1], 64)
	y, errY := strconv.ParseFloat(m[2], 64)
	if errX != nil || errY != nil {
		return "", false
	}

	best := ""
	bestDist := math.Inf(1)
	for _, id := range r.graph.order {
		c := r.graph.nodes[id].Coords
		d := math.Hypot(c.X-x, c.Y-y)
		if d < bestDist || (d == bestDist && id < best) {
			best, bestDist = id, d
		}
	}
	return best, best != ""
}

func (r *Resolver) nearestByLabel(key string) (string, bool) {
	if len([]rune(key)) <= maxEditDistance {
		return "", false
	}
	best := ""
	bestDist := maxEditDistance + 1
	for _, k := range r.keys {
		d := levenshtein(key, k)
		if d > maxEditDistance || digitsOf(key) != digitsOf(k) {
			continue
		}
		id := r.labels[k][0]
		if d < bestDist || (d == bestDist && id < best) {
			best, bestDist = id, d
		}
	}
	return best, best != ""
}

// digitsOf returns the digits of s, reading O and I next to a digit as 0 and 1.
// Labels that differ in a digit name different places and never match fuzzily.
func digitsOf(s string) string {
	rs := []rune(s)
	nextToDigit := func(i int) bool {
		return (i > 0 && unicode.IsDigit(rs[i-1])) || (i+1 < len(rs) && unicode.IsDigit(rs[i+1]))
	}
	var b strings.Builder
	for i, c := range rs {
		switch {
		case unicode.IsDigit(c):
			b.WriteRune(c)
		case c == 'O' && nextToDigit(i):
			b.WriteRune('0')
		case c == 'I' && nextToDigit(i):
			b.WriteRune('1')
		}
	}
	return b.String()
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
