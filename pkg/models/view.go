package models

import "time"

// TimelineEntry is one row of a timeline group.
type TimelineEntry struct {
	ID        string    `json:"id"`
	ChainID   string    `json:"chain_id,omitempty"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	End       time.Time `json:"end,omitempty"`
	Score     float64   `json:"score"`
	Tactic    string    `json:"tactic,omitempty"`
	Technique string    `json:"technique,omitempty"`
	Count     int       `json:"count"`
	Summary   bool      `json:"summary,omitempty"`
}

// TimelineGroup holds the entries that share one grouping key.
type TimelineGroup struct {
	Key     string          `json:"key"`
	Start   time.Time       `json:"start,omitempty"`
	End     time.Time       `json:"end,omitempty"`
	Entries []TimelineEntry `json:"entries"`
}

// TimelinePhase is a consecutive run of entries with the same key.
type TimelinePhase struct {
	Name     string    `json:"name"`
	Start    time.Time `json:"start,omitempty"`
	EntryIDs []string  `json:"events"`
}

// TimelineView is the time-ordered presentation shape.
type TimelineView struct {
	GroupBy string          `json:"group_by"`
	Groups  []TimelineGroup `json:"groups"`
	Phases  []TimelinePhase `json:"phases"`
}

// ByKey returns the groups as a key to entries map.
func (v TimelineView) ByKey() map[string][]TimelineEntry {
	out := make(map[string][]TimelineEntry, len(v.Groups))
	for _, g := range v.Groups {
		out[g.Key] = g.Entries
	}
	return out
}

// MindmapNode is a vertex of an exploratory graph.
type MindmapNode struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Group     string  `json:"group"`
	Type      string  `json:"type,omitempty"`
	Score     float64 `json:"score"`
	Tactic    string  `json:"tactic,omitempty"`
	Technique string  `json:"technique,omitempty"`
	Count     int     `json:"count,omitempty"`
}

// MindmapEdge links two mindmap nodes.
type MindmapEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
	Value    int    `json:"value,omitempty"`
}

// MindmapView is the entity-centered presentation shape.
type MindmapView struct {
	Nodes []MindmapNode `json:"nodes"`
	Edges []MindmapEdge `json:"edges"`
}
