package projection

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"threatchain/pkg/models"
)

const (
	maxPivotFields   = 8
	maxPivotLabelLen = 30
)

var importantTerms = []string{"user", "account", "host", "ip", "source", "dest", "target", "process", "file", "cmd", "command"}

// PivotMap builds a center -> field -> value graph with occurrence counts.
// When fields is empty the most useful pivot fields are detected.
func PivotMap(events []*models.Event, fields []string) models.MindmapView {
	view := models.MindmapView{Nodes: []models.MindmapNode{}, Edges: []models.MindmapEdge{}}
	if len(events) == 0 {
		return view
	}
	if len(fields) == 0 {
		fields = DetectPivotFields(events)
	}

	view.Nodes = append(view.Nodes, models.MindmapNode{
		ID:    "center",
		Label: fmt.Sprintf("Results (%d)", len(events)),
		Group: GroupCentral,
		Count: len(events),
	})
	for _, field := range fields {
		fieldID := "field:" + field
		view.Nodes = append(view.Nodes, models.MindmapNode{ID: fieldID, Label: field, Group: GroupField})
		view.Edges = append(view.Edges, models.MindmapEdge{From: "center", To: fieldID, Relation: RelationField, Value: 3})

		counts := make(map[string]int)
		for _, ev := range events {
			if v := ev.Field(field); v != "" {
				counts[v]++
			}
		}
		values := make([]string, 0, len(counts))
		for v := range counts {
			values = append(values, v)
		}
		sort.Slice(values, func(i, j int) bool {
			if counts[values[i]] != counts[values[j]] {
				return counts[values[i]] > counts[values[j]]
			}
			return values[i] < values[j]
		})
		for _, v := range values {
			valueID := "value:" + field + ":" + v
			view.Nodes = append(view.Nodes, models.MindmapNode{
				ID:    valueID,
				Label: shorten(v),
				Group: GroupValue,
				Type:  field,
				Count: counts[v],
			})
			view.Edges = append(view.Edges, models.MindmapEdge{From: fieldID, To: valueID, Relation: RelationValue, Value: counts[v]})
		}
	}
	return view
}

// DetectPivotFields ranks fields by occurrence, mid-range cardinality and
// a bonus for identity-like names, returning at most eight.
func DetectPivotFields(events []*models.Event) []string {
	if len(events) == 0 {
		return nil
	}
	counts := make(map[string]int)
	distinct := make(map[string]map[string]struct{})
	for _, ev := range events {
		if ev == nil {
			continue
		}
		for k := range ev.Fields {
			if strings.HasPrefix(k, "_") {
				continue
			}
			v := ev.Field(k)
			if v == "" {
				continue
			}
			counts[k]++
			if distinct[k] == nil {
				distinct[k] = make(map[string]struct{})
			}
			distinct[k][v] = struct{}{}
		}
	}

	scores := make(map[string]float64, len(counts))
	names := make([]string, 0, len(counts))
	for field, count := range counts {
		ratio := float64(len(distinct[field])) / float64(count)
		occurrence := math.Min(1, float64(count)/float64(len(events)))
		cardinality := 1 - math.Abs(ratio-0.5)*2
		bonus := 0.0
		lower := strings.ToLower(field)
		for _, term := range importantTerms {
			if strings.Contains(lower, term) {
				bonus = 0.5
				break
			}
		}
		scores[field] = occurrence*0.4 + cardinality*0.3 + bonus
		names = append(names, field)
	}
	sort.Slice(names, func(i, j int) bool {
		if scores[names[i]] != scores[names[j]] {
			return scores[names[i]] > scores[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > maxPivotFields {
		names = names[:maxPivotFields]
	}
	return names
}

func shorten(v string) string {
	r := []rune(v)
	if len(r) <= maxPivotLabelLen {
		return v
	}
	return string(r[:maxPivotLabelLen]) + "..."
}
