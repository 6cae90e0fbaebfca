package correlation

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"threatchain/pkg/models"
)

var base = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

func node(id string, offset time.Duration, tactic string, tokens ...models.EntityToken) Node {
	return Node{
		ID:        id,
		Entities:  models.NewEntitySet(tokens...),
		Tactic:    tactic,
		Timestamp: base.Add(offset),
		Timed:     true,
	}
}

func untimed(id string, tokens ...models.EntityToken) Node {
	return Node{ID: id, Entities: models.NewEntitySet(tokens...)}
}

func TestSharedUserConnects(t *testing.T) {
	g := Build([]Node{
		node("a", 0, "", "user:alice", "host:ws01"),
		node("b", 48*time.Hour, "", "user:alice", "host:ws02"),
		node("c", 96*time.Hour, "", "user:bob"),
	}, Options{})

	if !g.HasEdge("a", "b", SharedEntity) {
		t.Fatalf("expected shared_entity edge a-b")
	}
	if g.HasEdge("a", "c", SharedEntity) || g.HasEdge("b", "c", TemporalProximity) {
		t.Fatalf("unexpected edge to c")
	}
	comps := g.Components()
	if len(comps) != 2 || !reflect.DeepEqual(comps[0], []int{0, 1}) || !reflect.DeepEqual(comps[1], []int{2}) {
		t.Fatalf("unexpected components %v", comps)
	}
	edges := g.Edges()
	if len(edges) != 1 || edges[0].From != "a" || edges[0].To != "b" {
		t.Fatalf("unexpected edges %+v", edges)
	}
	if edges[0].Weight != 1.0/3.0 {
		t.Fatalf("expected jaccard 1/3, got %v", edges[0].Weight)
	}
}

func TestTemporalEdgeRules(t *testing.T) {
	g := Build([]Node{
		node("a", 0, "", "user:alice"),
		node("b", 6*time.Hour, "", "user:bob"),
		node("c", 12*time.Hour, "", "user:alice"),
		untimed("d", "user:carol"),
	}, Options{})

	if !g.HasEdge("a", "b", TemporalProximity) {
		t.Fatalf("expected temporal edge a-b")
	}
	if g.HasEdge("a", "c", TemporalProximity) {
		t.Fatalf("temporal edge must not duplicate shared_entity")
	}
	if len(g.Neighbors("d")) != 0 {
		t.Fatalf("untimed node must not get temporal edges")
	}
	edges := g.Edges()
	for _, e := range edges {
		if e.From == "a" && e.To == "b" && e.Weight != 0.75 {
			t.Fatalf("expected weight 1 - 6h/24h = 0.75, got %v", e.Weight)
		}
	}
}

func TestNegativeWindowDisablesTemporal(t *testing.T) {
	g := Build([]Node{node("a", 0, ""), node("b", time.Second, "")}, Options{Window: -1})
	if g.EdgeCount() != 0 {
		t.Fatalf("expected no edges, got %d", g.EdgeCount())
	}
}

func TestSharedTacticEdge(t *testing.T) {
	g := Build([]Node{
		node("a", 0, "execution"),
		node("b", 72*time.Hour, "execution"),
		node("c", 144*time.Hour, ""),
		node("d", 216*time.Hour, ""),
	}, Options{})
	if !g.HasEdge("b", "a", SharedTactic) {
		t.Fatalf("expected shared_tactic edge")
	}
	if g.HasEdge("c", "d", SharedTactic) {
		t.Fatalf("empty tactics must not link")
	}
}

func TestAddEdgeOrientationAndDedup(t *testing.T) {
	g := New()
	for _, id := range []string{"x", "y"} {
		if err := g.AddNode(Node{ID: id}); err != nil {
			t.Fatalf("add node: %v", err)
		}
	}
	if err := g.AddNode(Node{ID: "x"}); err == nil {
		t.Fatalf("expected duplicate node error")
	}
	if !g.AddEdge("y", "x", SharedTactic, 1) {
		t.Fatalf("expected edge to be added")
	}
	if g.AddEdge("x", "y", SharedTactic, 1) {
		t.Fatalf("expected duplicate edge to be rejected")
	}
	if !g.AddEdge("x", "y", SharedEntity, 0.5) {
		t.Fatalf("different kinds may coexist")
	}
	if g.AddEdge("x", "missing", SharedEntity, 1) || g.AddEdge("x", "x", SharedEntity, 1) {
		t.Fatalf("expected invalid edges to be rejected")
	}
	edges := g.Edges()
	if len(edges) != 2 || edges[0].From != "x" || edges[0].Kind != SharedEntity {
		t.Fatalf("unexpected edges %+v", edges)
	}
	if got := g.Neighbors("y"); len(got) != 1 || got[0] != "x" {
		t.Fatalf("unexpected neighbors %v", got)
	}
}

func TestEmptyGraph(t *testing.T) {
	g := Build(nil, Options{})
	if g.Len() != 0 || g.EdgeCount() != 0 || g.Components() != nil {
		t.Fatalf("expected empty graph")
	}
}

func randomNodes(n int, seed int64) []Node {
	rng := rand.New(rand.NewSource(seed))
	users := []string{"alice", "bob", "carol", "dave", "erin", "frank"}
	hosts := []string{"ws01", "ws02", "srv01", "dc01"}
	tactics := []string{"", "", "execution", "persistence", "discovery"}
	nodes := make([]Node, 0, n)
	for i := 0; i < n; i++ {
		var tokens []models.EntityToken
		if rng.Intn(3) == 0 {
			tokens = append(tokens, models.NewEntityToken(models.EntityUser, users[rng.Intn(len(users))]))
		}
		if rng.Intn(4) == 0 {
			tokens = append(tokens, models.NewEntityToken(models.EntityHost, hosts[rng.Intn(len(hosts))]))
		}
		if rng.Intn(10) == 0 {
			tokens = append(tokens, models.NewEntityToken(models.EntityIP, fmt.Sprintf("10.0.0.%d", rng.Intn(5))))
		}
		id := fmt.Sprintf("evt-%04d", i)
		if rng.Intn(8) == 0 {
			nodes = append(nodes, untimed(id, tokens...))
			continue
		}
		offset := time.Duration(rng.Intn(7*24*3600)) * time.Second
		if rng.Intn(10) == 0 {
			offset = 0
		}
		nodes = append(nodes, node(id, offset, tactics[rng.Intn(len(tactics))], tokens...))
	}
	return nodes
}

func TestBucketedMatchesPairwise(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		nodes := randomNodes(300, seed)
		pair := Build(nodes, Options{Window: 6 * time.Hour, Strategy: StrategyPairwise})
		bucket := Build(nodes, Options{Window: 6 * time.Hour, Strategy: StrategyBucketed})
		if !reflect.DeepEqual(pair.Edges(), bucket.Edges()) {
			t.Fatalf("seed %d: edge sets differ (%d vs %d)", seed, pair.EdgeCount(), bucket.EdgeCount())
		}
		if !reflect.DeepEqual(pair.Components(), bucket.Components()) {
			t.Fatalf("seed %d: components differ", seed)
		}
	}
}

func TestAutoStrategySwitchesAboveThreshold(t *testing.T) {
	nodes := randomNodes(60, 3)
	auto := Build(nodes, Options{Window: time.Hour, BucketThreshold: 10})
	pair := Build(nodes, Options{Window: time.Hour, Strategy: StrategyPairwise})
	if !reflect.DeepEqual(auto.Edges(), pair.Edges()) {
		t.Fatalf("auto bucketed build differs from pairwise")
	}
}

func TestComponentsPartitionNodes(t *testing.T) {
	nodes := randomNodes(200, 11)
	g := Build(nodes, Options{Window: 30 * time.Minute})
	seen := make(map[int]bool)
	comps := g.Components()
	if len(comps) > len(nodes) {
		t.Fatalf("more components than nodes")
	}
	for _, comp := range comps {
		for _, idx := range comp {
			if seen[idx] {
				t.Fatalf("node %d in two components", idx)
			}
			seen[idx] = true
		}
	}
	if len(seen) != len(nodes) {
		t.Fatalf("expected every node in a component, got %d of %d", len(seen), len(nodes))
	}
}
