package projection

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"threatchain/internal/scoring"
	"threatchain/pkg/models"
)

// Grouping keys understood by Timeline besides raw event fields.
const (
	GroupByTactic    = "tactic"
	GroupByTechnique = "technique"
	GroupByChain     = "chain"
)

const unknownKey = "unknown"

// TimelineOptions controls timeline grouping.
type TimelineOptions struct {
	GroupBy string
}

type flatEntry struct {
	entry models.TimelineEntry
	key   string
	chain int
	pos   int
}

// Timeline flattens chains into time-ordered groups and phases. Undated
// entries follow the dated ones in chain order.
func Timeline(chains []*models.AttackChain, opts TimelineOptions) models.TimelineView {
	groupBy := strings.ToLower(strings.TrimSpace(opts.GroupBy))
	if groupBy == "" {
		groupBy = GroupByTactic
	}
	view := models.TimelineView{
		GroupBy: groupBy,
		Groups:  []models.TimelineGroup{},
		Phases:  []models.TimelinePhase{},
	}

	var flat []flatEntry
	for ci, c := range chains {
		if c == nil {
			continue
		}
		for ei, entry := range c.Entries {
			flat = append(flat, flatEntry{
				entry: toTimelineEntry(c, ei, entry),
				key:   groupKey(groupBy, c, entry),
				chain: ci,
				pos:   ei,
			})
		}
	}
	sort.SliceStable(flat, func(i, j int) bool {
		a, b := flat[i].entry.Timestamp, flat[j].entry.Timestamp
		if a.IsZero() != b.IsZero() {
			return !a.IsZero()
		}
		if !a.Equal(b) {
			return a.Before(b)
		}
		if flat[i].chain != flat[j].chain {
			return flat[i].chain < flat[j].chain
		}
		return flat[i].pos < flat[j].pos
	})

	slot := make(map[string]int)
	for _, f := range flat {
		idx, ok := slot[f.key]
		if !ok {
			idx = len(view.Groups)
			slot[f.key] = idx
			view.Groups = append(view.Groups, models.TimelineGroup{Key: f.key})
		}
		g := &view.Groups[idx]
		g.Entries = append(g.Entries, f.entry)
		g.Start, g.End = widen(g.Start, g.End, f.entry.Timestamp, f.entry.End)

		if n := len(view.Phases); n == 0 || view.Phases[n-1].Name != f.key {
			view.Phases = append(view.Phases, models.TimelinePhase{Name: f.key, Start: f.entry.Timestamp})
		}
		p := &view.Phases[len(view.Phases)-1]
		p.EntryIDs = append(p.EntryIDs, f.entry.ID)
	}
	return view
}

func toTimelineEntry(c *models.AttackChain, idx int, entry models.ChainEntry) models.TimelineEntry {
	out := models.TimelineEntry{
		ChainID:   c.ID,
		Label:     entry.Label(),
		Timestamp: entry.Start(),
		Score:     entry.Score(),
		Tactic:    entry.Tactic(),
		Technique: entry.Technique(),
		Count:     entry.Count(),
	}
	if entry.Summary != nil {
		out.ID = fmt.Sprintf("%s-summary-%d", c.ID, idx)
		out.End = entry.Summary.End
		out.Summary = true
	} else {
		out.ID = entry.Event.ID()
		out.End = out.Timestamp
	}
	return out
}

func groupKey(groupBy string, c *models.AttackChain, entry models.ChainEntry) string {
	var key string
	switch groupBy {
	case GroupByTactic:
		key = scoring.NormalizeTactic(entry.Tactic())
	case GroupByTechnique:
		key = strings.ToUpper(strings.TrimSpace(entry.Technique()))
	case GroupByChain:
		key = c.ID
	default:
		members := entry.Members()
		if len(members) == 0 {
			break
		}
		first := members[0]
		kind := models.EntityKind(groupBy)
		for _, tok := range first.Entities {
			if tok.Kind() == kind {
				key = tok.Value()
				break
			}
		}
		if key == "" {
			key = first.Event.Field(groupBy)
		}
	}
	if key == "" {
		return unknownKey
	}
	return key
}

func widen(start, end, ts, tsEnd time.Time) (time.Time, time.Time) {
	if ts.IsZero() {
		return start, end
	}
	if start.IsZero() || ts.Before(start) {
		start = ts
	}
	if tsEnd.IsZero() {
		tsEnd = ts
	}
	if tsEnd.After(end) {
		end = tsEnd
	}
	return start, end
}
