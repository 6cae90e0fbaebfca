package scoring

import (
	"fmt"
	"math"
	"strings"

	"threatchain/pkg/models"
)

var searchFields = []string{
	"command_line",
	"process_name",
	"image",
	"file_path",
	"target_process",
	"parent_command_line",
}

// Result is the scored outcome for one event.
type Result struct {
	Score      float64
	Indicators []string
	Elevated   bool
	FirstSeen  bool
}

// Scorer evaluates events against an indicator table. It holds no per-call
// state and is safe for concurrent use.
type Scorer struct {
	table *Table
}

// NewScorer creates a scorer. A nil table uses DefaultTable.
func NewScorer(table *Table) *Scorer {
	if table == nil {
		table = DefaultTable()
	}
	return &Scorer{table: table}
}

// Table returns the scorer's table.
func (s *Scorer) Table() *Table {
	return s.table
}

// Score computes the suspicion score of one event. seen tracks entities
// observed earlier in the same analysis call and may be nil.
func (s *Scorer) Score(event *models.Event, entities models.EntitySet, seen *Tracker) Result {
	var res Result
	if event == nil {
		return res
	}

	text := SearchText(event)
	raw := 0.0
	if text != "" {
		for _, ind := range s.table.Indicators {
			if ind.re != nil && ind.re.MatchString(text) {
				raw += ind.Points
				res.Indicators = append(res.Indicators, ind.Name)
			}
		}
	}
	raw += s.table.TacticWeights[NormalizeTactic(event.Tactic())]

	res.Elevated = isElevated(event)
	if res.Elevated {
		raw *= s.table.ElevatedMultiplier
	}
	observedNew := seen.Observe(entities)
	res.FirstSeen = event.Bool("first_time_seen") || observedNew
	if res.FirstSeen {
		raw *= s.table.FirstSeenMultiplier
	}

	if raw < 0 || math.IsNaN(raw) {
		panic(fmt.Sprintf("scoring: invalid score %v for event %s", raw, event.ID))
	}
	res.Score = Clamp(raw)
	return res
}

// SearchText joins the textual fields indicators are matched against.
func SearchText(event *models.Event) string {
	parts := make([]string, 0, len(searchFields))
	for _, f := range searchFields {
		if v := event.Field(f); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n")
}

// Clamp bounds a non-negative score to MaxScore and rounds to 2 decimals.
func Clamp(v float64) float64 {
	if v > MaxScore {
		v = MaxScore
	}
	return math.Round(v*100) / 100
}

func isElevated(event *models.Event) bool {
	if event.Bool("admin_privilege") || event.Bool("elevated") {
		return true
	}
	switch strings.ToLower(event.Field("integrity_level")) {
	case "high", "system":
		return true
	}
	return false
}
