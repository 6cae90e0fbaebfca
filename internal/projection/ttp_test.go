package projection

import (
	"testing"

	"threatchain/pkg/models"
)

func withTechnique(ev *models.ScoredEvent, technique string) *models.ScoredEvent {
	ev.Technique = technique
	return ev
}

func TestTTPMapCountsTechniques(t *testing.T) {
	chains := []*models.AttackChain{
		chainOf("chain-a",
			withTechnique(scored("e1", 0, 40, "Execution", nil), "T1059"),
			withTechnique(scored("e2", 1, 70, "execution", nil), "t1059"),
			withTechnique(scored("e3", 2, 90, "Credential Access", nil), "T1003"),
		),
		chainOf("chain-b",
			withTechnique(scored("e4", -1, 10, "Persistence", nil), "T1059"),
			scored("e5", 3, 5, "", nil),
		),
	}

	view := TTPMap(chains)
	nodes := make(map[string]models.MindmapNode, len(view.Nodes))
	for _, n := range view.Nodes {
		nodes[n.ID] = n
	}
	if len(view.Nodes) == 0 || view.Nodes[0].ID != GroupResults || view.Nodes[0].Count != 5 {
		t.Fatalf("expected results root counting 5 events, got %+v", view.Nodes)
	}
	if view.Nodes[1].ID != "technique:T1059" {
		t.Fatalf("expected most frequent technique first, got %s", view.Nodes[1].ID)
	}
	if n := nodes["technique:T1059"]; n.Count != 3 || n.Score != 70 {
		t.Fatalf("unexpected T1059 node %+v", n)
	}
	if n := nodes["technique:T1003"]; n.Count != 1 || n.Group != GroupTechnique {
		t.Fatalf("unexpected T1003 node %+v", n)
	}
	for _, id := range []string{"tactic:execution", "tactic:persistence", "tactic:credential-access"} {
		if nodes[id].Group != GroupTactic {
			t.Fatalf("missing tactic node %s in %+v", id, view.Nodes)
		}
	}

	var matches, tactics int
	for _, e := range view.Edges {
		switch e.Relation {
		case RelationMatches:
			matches++
			if e.From != GroupResults {
				t.Fatalf("match edge must start at results: %+v", e)
			}
			if e.To == "technique:T1059" && e.Value != 3 {
				t.Fatalf("expected edge weight 3, got %d", e.Value)
			}
		case RelationTactic:
			tactics++
		}
	}
	if matches != 2 || tactics != 3 {
		t.Fatalf("expected 2 match and 3 tactic edges, got %d and %d", matches, tactics)
	}
}

func TestTTPMapEmpty(t *testing.T) {
	view := TTPMap(nil)
	if view.Nodes == nil || view.Edges == nil || len(view.Nodes) != 0 {
		t.Fatalf("expected empty well-formed view, got %+v", view)
	}
}
