package correlation

import (
	"fmt"
	"sort"
	"time"

	"threatchain/pkg/models"
)

// EdgeKind names the relation an edge represents.
type EdgeKind string

const (
	SharedEntity      EdgeKind = "shared_entity"
	TemporalProximity EdgeKind = "temporal_proximity"
	SharedTactic      EdgeKind = "shared_tactic"
)

var kindOrder = map[EdgeKind]int{
	SharedEntity:      0,
	TemporalProximity: 1,
	SharedTactic:      2,
}

// Node is one event inside the graph.
type Node struct {
	ID        string
	Entities  models.EntitySet
	Score     float64
	Tactic    string
	Technique string
	Timestamp time.Time
	Timed     bool
}

// NodeFrom builds a node from a scored event.
func NodeFrom(se *models.ScoredEvent, normalizedTactic string) Node {
	n := Node{
		ID:        se.ID(),
		Entities:  se.Entities,
		Score:     se.Score,
		Tactic:    normalizedTactic,
		Technique: se.Technique,
	}
	if se.Event.HasTime() {
		n.Timestamp = se.Event.Timestamp
		n.Timed = true
	}
	return n
}

// Edge is a directed relation from the earlier-inserted node to the later one.
type Edge struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Kind   EdgeKind `json:"kind"`
	Weight float64  `json:"weight"`
}

type edgeKey struct {
	from, to int
	kind     EdgeKind
}

type edgeRec struct {
	from, to int
	kind     EdgeKind
	weight   float64
}

// Graph is a typed directed graph keyed by event ID.
type Graph struct {
	nodes []Node
	index map[string]int
	edges []edgeRec
	seen  map[edgeKey]struct{}
	adj   map[int][]int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		index: make(map[string]int),
		seen:  make(map[edgeKey]struct{}),
		adj:   make(map[int][]int),
	}
}

// AddNode appends a node in insertion order.
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("add node: empty id")
	}
	if _, ok := g.index[n.ID]; ok {
		return fmt.Errorf("add node: duplicate id %s", n.ID)
	}
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return nil
}

// AddEdge links two nodes. The edge is oriented from the earlier-inserted
// node; a second edge of the same kind between the pair is ignored.
func (g *Graph) AddEdge(a, b string, kind EdgeKind, weight float64) bool {
	i, ok := g.index[a]
	if !ok {
		return false
	}
	j, ok := g.index[b]
	if !ok || i == j {
		return false
	}
	return g.addEdge(i, j, kind, weight)
}

func (g *Graph) addEdge(i, j int, kind EdgeKind, weight float64) bool {
	if i > j {
		i, j = j, i
	}
	key := edgeKey{from: i, to: j, kind: kind}
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = struct{}{}
	g.edges = append(g.edges, edgeRec{from: i, to: j, kind: kind, weight: weight})
	g.adj[i] = append(g.adj[i], j)
	g.adj[j] = append(g.adj[j], i)
	return true
}

func (g *Graph) hasEdge(i, j int, kind EdgeKind) bool {
	if i > j {
		i, j = j, i
	}
	_, ok := g.seen[edgeKey{from: i, to: j, kind: kind}]
	return ok
}

// HasEdge reports whether a and b are linked by kind in either direction.
func (g *Graph) HasEdge(a, b string, kind EdgeKind) bool {
	i, ok := g.index[a]
	if !ok {
		return false
	}
	j, ok := g.index[b]
	if !ok {
		return false
	}
	return g.hasEdge(i, j, kind)
}

// Len returns the node count.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// EdgeCount returns the edge count.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Node returns the node at insertion position i.
func (g *Graph) Node(i int) Node {
	return g.nodes[i]
}

// Edges returns all edges ordered by (from, to, kind) insertion positions.
func (g *Graph) Edges() []Edge {
	recs := append([]edgeRec(nil), g.edges...)
	sort.Slice(recs, func(a, b int) bool {
		if recs[a].from != recs[b].from {
			return recs[a].from < recs[b].from
		}
		if recs[a].to != recs[b].to {
			return recs[a].to < recs[b].to
		}
		return kindOrder[recs[a].kind] < kindOrder[recs[b].kind]
	})
	out := make([]Edge, len(recs))
	for i, r := range recs {
		out[i] = Edge{From: g.nodes[r.from].ID, To: g.nodes[r.to].ID, Kind: r.kind, Weight: r.weight}
	}
	return out
}

// CountByKind returns the number of edges per kind.
func (g *Graph) CountByKind() map[EdgeKind]int {
	out := make(map[EdgeKind]int, len(kindOrder))
	for _, e := range g.edges {
		out[e.kind]++
	}
	return out
}

// Neighbors returns the IDs adjacent to id, ignoring direction and kind.
func (g *Graph) Neighbors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	pos := append([]int(nil), g.adj[i]...)
	sort.Ints(pos)
	out := make([]string, 0, len(pos))
	for k, j := range pos {
		if k > 0 && pos[k-1] == j {
			continue
		}
		out = append(out, g.nodes[j].ID)
	}
	return out
}

// Components returns weakly connected components as insertion positions.
// Members are in insertion order and components are ordered by their
// first-inserted member.
func (g *Graph) Components() [][]int {
	n := len(g.nodes)
	if n == 0 {
		return nil
	}
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, e := range g.edges {
		ra, rb := find(e.from), find(e.to)
		if ra == rb {
			continue
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	slot := make(map[int]int)
	var out [][]int
	for i := 0; i < n; i++ {
		root := find(i)
		idx, ok := slot[root]
		if !ok {
			idx = len(out)
			slot[root] = idx
			out = append(out, nil)
		}
		out[idx] = append(out[idx], i)
	}
	return out
}
