package correlation

import (
	"sort"
	"time"
)

// Strategy selects how candidate pairs are found.
type Strategy string

const (
	StrategyAuto     Strategy = "auto"
	StrategyPairwise Strategy = "pairwise"
	StrategyBucketed Strategy = "bucketed"
)

const (
	DefaultWindow          = 24 * time.Hour
	DefaultBucketThreshold = 2000
)

// Options controls graph construction.
type Options struct {
	// Window bounds temporal_proximity edges. Zero uses DefaultWindow and a
	// negative value disables temporal edges.
	Window time.Duration
	// BucketThreshold is the batch size above which Auto switches to the
	// bucketed strategy.
	BucketThreshold int
	Strategy        Strategy
}

func (o Options) withDefaults() Options {
	if o.Window == 0 {
		o.Window = DefaultWindow
	}
	if o.BucketThreshold <= 0 {
		o.BucketThreshold = DefaultBucketThreshold
	}
	if o.Strategy == "" {
		o.Strategy = StrategyAuto
	}
	return o
}

// Build adds every node in order and links them. Pairwise and bucketed
// strategies produce the same edge set. Duplicate node IDs are skipped.
func Build(nodes []Node, opts Options) *Graph {
	opts = opts.withDefaults()
	g := New()
	for _, n := range nodes {
		_ = g.AddNode(n)
	}

	strategy := opts.Strategy
	if strategy == StrategyAuto {
		strategy = StrategyPairwise
		if g.Len() > opts.BucketThreshold {
			strategy = StrategyBucketed
		}
	}
	if strategy == StrategyBucketed {
		buildBucketed(g, opts.Window)
	} else {
		buildPairwise(g, opts.Window)
	}
	return g
}

func buildPairwise(g *Graph, window time.Duration) {
	for j := 1; j < len(g.nodes); j++ {
		for i := 0; i < j; i++ {
			link(g, i, j, window)
		}
	}
}

func link(g *Graph, i, j int, window time.Duration) {
	a, b := &g.nodes[i], &g.nodes[j]
	entityLinked := false
	if overlap := a.Entities.Overlap(b.Entities); overlap > 0 {
		g.addEdge(i, j, SharedEntity, overlap)
		entityLinked = true
	}
	if !entityLinked {
		if w, ok := temporalWeight(a, b, window); ok {
			g.addEdge(i, j, TemporalProximity, w)
		}
	}
	if a.Tactic != "" && a.Tactic == b.Tactic {
		g.addEdge(i, j, SharedTactic, 1)
	}
}

func temporalWeight(a, b *Node, window time.Duration) (float64, bool) {
	if window < 0 || !a.Timed || !b.Timed {
		return 0, false
	}
	delta := a.Timestamp.Sub(b.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	if delta > window {
		return 0, false
	}
	if window == 0 {
		return 1, true
	}
	return 1 - float64(delta)/float64(window), true
}

// buildBucketed hash-joins nodes on entity tokens and tactics and sweeps the
// time-sorted nodes for temporal pairs.
func buildBucketed(g *Graph, window time.Duration) {
	n := len(g.nodes)

	byToken := make(map[string][]int)
	byTactic := make(map[string][]int)
	for i := range g.nodes {
		for _, tok := range g.nodes[i].Entities {
			byToken[string(tok)] = append(byToken[string(tok)], i)
		}
		if t := g.nodes[i].Tactic; t != "" {
			byTactic[t] = append(byTactic[t], i)
		}
	}

	pairs := make(map[uint64]struct{})
	for _, members := range byToken {
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				pairs[pairKey(members[x], members[y], n)] = struct{}{}
			}
		}
	}
	for key := range pairs {
		i, j := int(key/uint64(n)), int(key%uint64(n))
		g.addEdge(i, j, SharedEntity, g.nodes[i].Entities.Overlap(g.nodes[j].Entities))
	}

	if window >= 0 {
		timed := make([]int, 0, n)
		for i := range g.nodes {
			if g.nodes[i].Timed {
				timed = append(timed, i)
			}
		}
		sort.SliceStable(timed, func(x, y int) bool {
			return g.nodes[timed[x]].Timestamp.Before(g.nodes[timed[y]].Timestamp)
		})
		for x := 0; x < len(timed); x++ {
			a := &g.nodes[timed[x]]
			for y := x + 1; y < len(timed); y++ {
				b := &g.nodes[timed[y]]
				w, ok := temporalWeight(a, b, window)
				if !ok {
					break
				}
				if g.hasEdge(timed[x], timed[y], SharedEntity) {
					continue
				}
				g.addEdge(timed[x], timed[y], TemporalProximity, w)
			}
		}
	}

	for _, members := range byTactic {
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				g.addEdge(members[x], members[y], SharedTactic, 1)
			}
		}
	}
}

func pairKey(i, j, n int) uint64 {
	if i > j {
		i, j = j, i
	}
	return uint64(i)*uint64(n) + uint64(j)
}
