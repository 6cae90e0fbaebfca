package projection

import (
	"fmt"
	"sort"
	"strings"

	"threatchain/internal/scoring"
	"threatchain/pkg/models"
)

// Node groups and relations used in TTP maps.
const (
	GroupResults   = "results"
	GroupTechnique = "technique"
	GroupTactic    = "tactic"

	RelationMatches = "matches"
	RelationTactic  = "tactic"
)

type techniqueStat struct {
	id      string
	count   int
	max     float64
	tactics []string
}

// TTPMap builds a results -> technique <- tactic graph. Each technique node
// carries the number of events labeled with it; events without a technique
// only count toward the results node.
func TTPMap(chains []*models.AttackChain) models.MindmapView {
	view := models.MindmapView{Nodes: []models.MindmapNode{}, Edges: []models.MindmapEdge{}}

	total := 0
	stats := make(map[string]*techniqueStat)
	for _, c := range chains {
		if c == nil {
			continue
		}
		for _, ev := range c.Events() {
			total++
			tech := strings.ToUpper(strings.TrimSpace(ev.Technique))
			if tech == "" {
				continue
			}
			st, ok := stats[tech]
			if !ok {
				st = &techniqueStat{id: tech}
				stats[tech] = st
			}
			st.count++
			if ev.Score > st.max {
				st.max = ev.Score
			}
			if tactic := scoring.NormalizeTactic(ev.Tactic); tactic != "" && !containsString(st.tactics, tactic) {
				st.tactics = append(st.tactics, tactic)
			}
		}
	}
	if total == 0 {
		return view
	}

	ordered := make([]*techniqueStat, 0, len(stats))
	for _, st := range stats {
		sort.Slice(st.tactics, func(i, j int) bool {
			ri, rj := scoring.TacticRank(st.tactics[i]), scoring.TacticRank(st.tactics[j])
			if ri != rj {
				return ri < rj
			}
			return st.tactics[i] < st.tactics[j]
		})
		ordered = append(ordered, st)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].count != ordered[j].count {
			return ordered[i].count > ordered[j].count
		}
		return ordered[i].id < ordered[j].id
	})

	view.Nodes = append(view.Nodes, models.MindmapNode{
		ID:    GroupResults,
		Label: fmt.Sprintf("Results (%d)", total),
		Group: GroupResults,
		Count: total,
	})
	tacticNodes := make(map[string]struct{})
	for _, st := range ordered {
		techID := "technique:" + st.id
		view.Nodes = append(view.Nodes, models.MindmapNode{
			ID:        techID,
			Label:     st.id,
			Group:     GroupTechnique,
			Score:     st.max,
			Technique: st.id,
			Count:     st.count,
		})
		view.Edges = append(view.Edges, models.MindmapEdge{From: GroupResults, To: techID, Relation: RelationMatches, Value: st.count})

		for _, tactic := range st.tactics {
			tacticID := "tactic:" + tactic
			if _, ok := tacticNodes[tacticID]; !ok {
				tacticNodes[tacticID] = struct{}{}
				view.Nodes = append(view.Nodes, models.MindmapNode{ID: tacticID, Label: tactic, Group: GroupTactic, Tactic: tactic})
			}
			view.Edges = append(view.Edges, models.MindmapEdge{From: tacticID, To: techID, Relation: RelationTactic})
		}
	}
	return view
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
