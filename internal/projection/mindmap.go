package projection

import (
	"sort"

	"threatchain/internal/entity"
	"threatchain/pkg/models"
)

// DefaultMaxNodes caps event nodes in a mindmap.
const DefaultMaxNodes = 50

// Node groups used in mindmap views.
const (
	GroupCentral = "central"
	GroupEvent   = "event"
	GroupField   = "field"
	GroupValue   = "value"
)

// Edge relations used in mindmap views.
const (
	RelationInvolves = "involves"
	RelationField    = "field"
	RelationValue    = "value"
)

// MindmapOptions controls mindmap size.
type MindmapOptions struct {
	MaxNodes int
}

type ranked struct {
	ev    *models.ScoredEvent
	chain int
	pos   int
}

// Mindmap builds an entity-centered graph: the central node, the highest
// scoring events and the entities they touch.
func Mindmap(chains []*models.AttackChain, central string, opts MindmapOptions) models.MindmapView {
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = DefaultMaxNodes
	}
	view := models.MindmapView{Nodes: []models.MindmapNode{}, Edges: []models.MindmapEdge{}}

	var all []ranked
	for ci, c := range chains {
		if c == nil {
			continue
		}
		for pos, ev := range c.Events() {
			all = append(all, ranked{ev: ev, chain: ci, pos: pos})
		}
	}
	if len(all) == 0 {
		return view
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.ev.Score != b.ev.Score {
			return a.ev.Score > b.ev.Score
		}
		ta, tb := a.ev.Event.HasTime(), b.ev.Event.HasTime()
		if ta != tb {
			return ta
		}
		if ta && !a.ev.Event.Timestamp.Equal(b.ev.Event.Timestamp) {
			return a.ev.Event.Timestamp.Before(b.ev.Event.Timestamp)
		}
		if a.chain != b.chain {
			return a.chain < b.chain
		}
		return a.pos < b.pos
	})
	if len(all) > opts.MaxNodes {
		all = all[:opts.MaxNodes]
	}

	centralToken := entity.Normalize(central)
	rootID := ""
	if centralToken != "" {
		rootID = string(centralToken)
		view.Nodes = append(view.Nodes, models.MindmapNode{
			ID:    rootID,
			Label: centralToken.Value(),
			Group: GroupCentral,
			Type:  string(centralToken.Kind()),
		})
	}

	entityIdx := make(map[models.EntityToken]int)
	var entityNodes []models.MindmapNode
	for _, r := range all {
		ev := r.ev
		view.Nodes = append(view.Nodes, models.MindmapNode{
			ID:        ev.ID(),
			Label:     ev.Label,
			Group:     GroupEvent,
			Type:      ev.EventType,
			Score:     ev.Score,
			Tactic:    ev.Tactic,
			Technique: ev.Technique,
		})
		if rootID != "" && entity.Matches(ev.Entities, central) {
			view.Edges = append(view.Edges, models.MindmapEdge{From: rootID, To: ev.ID(), Relation: RelationInvolves})
		}
		for _, tok := range ev.Entities {
			if isCentral(tok, centralToken) {
				continue
			}
			idx, ok := entityIdx[tok]
			if !ok {
				idx = len(entityNodes)
				entityIdx[tok] = idx
				entityNodes = append(entityNodes, models.MindmapNode{
					ID:    string(tok),
					Label: tok.Value(),
					Group: string(tok.Kind()),
					Type:  "entity",
				})
			}
			entityNodes[idx].Count++
			view.Edges = append(view.Edges, models.MindmapEdge{From: ev.ID(), To: string(tok), Relation: string(tok.Kind())})
		}
	}
	view.Nodes = append(view.Nodes, entityNodes...)
	return view
}

func isCentral(tok, central models.EntityToken) bool {
	if central == "" {
		return false
	}
	if tok == central {
		return true
	}
	return central.Kind() == "" && tok.Value() == string(central)
}
