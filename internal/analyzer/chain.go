package analyzer

import (
	"sort"
	"strings"
	"time"

	"threatchain/internal/graph/correlation"
	"threatchain/internal/scoring"
	"threatchain/pkg/models"
)

const (
	DefaultTimeWindow        = 60 * time.Second
	DefaultCollapseThreshold = 200
)

// ChainOptions controls bucketing and burst collapse.
type ChainOptions struct {
	TimeWindow        time.Duration
	CollapseThreshold int
}

func (o ChainOptions) withDefaults() ChainOptions {
	if o.TimeWindow <= 0 {
		o.TimeWindow = DefaultTimeWindow
	}
	if o.CollapseThreshold <= 0 {
		o.CollapseThreshold = DefaultCollapseThreshold
	}
	return o
}

type timeKey struct {
	ts  time.Time
	pos int
}

func timeKeyLT(a, b timeKey) bool {
	if a.ts.Before(b.ts) {
		return true
	}
	if a.ts.After(b.ts) {
		return false
	}
	return a.pos < b.pos
}

type member struct {
	ev  *models.ScoredEvent
	key timeKey
}

// AssembleChains turns each weakly connected component of g into one
// chronologically ordered chain. events must hold every node of g.
func AssembleChains(g *correlation.Graph, events []*models.ScoredEvent, opts ChainOptions) []*models.AttackChain {
	opts = opts.withDefaults()
	if g == nil || g.Len() == 0 {
		return []*models.AttackChain{}
	}
	byID := make(map[string]*models.ScoredEvent, len(events))
	for _, ev := range events {
		byID[ev.ID()] = ev
	}

	comps := g.Components()
	out := make([]*models.AttackChain, 0, len(comps))
	for _, comp := range comps {
		var timed, undated []member
		for _, pos := range comp {
			ev := byID[g.Node(pos).ID]
			if ev == nil {
				continue
			}
			m := member{ev: ev, key: timeKey{pos: pos}}
			if ev.Event.HasTime() {
				m.key.ts = ev.Event.Timestamp
				timed = append(timed, m)
			} else {
				undated = append(undated, m)
			}
		}
		if len(timed)+len(undated) == 0 {
			continue
		}
		sort.SliceStable(timed, func(i, j int) bool {
			return timeKeyLT(timed[i].key, timed[j].key)
		})
		first := byID[g.Node(comp[0]).ID]
		out = append(out, buildChain(first, timed, undated, opts))
	}
	return out
}

func buildChain(first *models.ScoredEvent, timed, undated []member, opts ChainOptions) *models.AttackChain {
	chain := &models.AttackChain{ID: chainID(first)}
	for _, m := range timed {
		m.ev.ChainID = chain.ID
	}
	for _, m := range undated {
		m.ev.ChainID = chain.ID
	}

	window := int64(opts.TimeWindow)
	for start := 0; start < len(timed); {
		bucket := floorDiv(timed[start].key.ts.UnixNano(), window)
		end := start + 1
		for end < len(timed) && floorDiv(timed[end].key.ts.UnixNano(), window) == bucket {
			end++
		}
		chain.Entries = appendBucket(chain.Entries, timed[start:end], opts.CollapseThreshold)
		start = end
	}
	chain.Entries = appendBucket(chain.Entries, undated, opts.CollapseThreshold)

	summarize(chain)
	return chain
}

func appendBucket(entries []models.ChainEntry, bucket []member, threshold int) []models.ChainEntry {
	if len(bucket) == 0 {
		return entries
	}
	if len(bucket) <= threshold {
		for _, m := range bucket {
			entries = append(entries, models.ChainEntry{Kind: models.EntryEvent, Event: m.ev})
		}
		return entries
	}

	rep := bucket[0].ev
	summary := &models.SummaryEntry{
		Count:     len(bucket),
		Label:     representativeLabel(rep),
		Tactic:    rep.Tactic,
		Technique: rep.Technique,
		Members:   make([]*models.ScoredEvent, 0, len(bucket)),
	}
	sum := 0.0
	for _, m := range bucket {
		summary.Members = append(summary.Members, m.ev)
		sum += m.ev.Score
		if !m.ev.Event.HasTime() {
			continue
		}
		ts := m.ev.Event.Timestamp
		if summary.Start.IsZero() || ts.Before(summary.Start) {
			summary.Start = ts
		}
		if ts.After(summary.End) {
			summary.End = ts
		}
	}
	summary.Score = scoring.Clamp(sum / float64(len(bucket)))
	return append(entries, models.ChainEntry{Kind: models.EntrySummary, Summary: summary})
}

func summarize(chain *models.AttackChain) {
	tacticSeen := map[string]struct{}{}
	techSeen := map[string]struct{}{}
	var tokens []models.EntityToken
	sum := 0.0

	for _, ev := range chain.Events() {
		chain.EventCount++
		sum += ev.Score
		if ev.Score > chain.MaxScore {
			chain.MaxScore = ev.Score
		}
		if ev.Event.HasTime() {
			ts := ev.Event.Timestamp
			if chain.Start.IsZero() || ts.Before(chain.Start) {
				chain.Start = ts
			}
			if ts.After(chain.End) {
				chain.End = ts
			}
		}
		if t := scoring.NormalizeTactic(ev.Tactic); t != "" {
			if _, ok := tacticSeen[t]; !ok {
				tacticSeen[t] = struct{}{}
				chain.Tactics = append(chain.Tactics, t)
			}
		}
		if t := strings.ToUpper(strings.TrimSpace(ev.Technique)); t != "" {
			if _, ok := techSeen[t]; !ok {
				techSeen[t] = struct{}{}
				chain.Techniques = append(chain.Techniques, t)
			}
		}
		tokens = append(tokens, ev.Entities...)
	}
	chain.Entities = models.NewEntitySet(tokens...)
	if chain.EventCount > 0 {
		chain.Score = scoring.Clamp(sum / float64(chain.EventCount))
	}
	chain.Severity = chainSeverity(chain)
}

func representativeLabel(ev *models.ScoredEvent) string {
	if cmd := ev.Event.CommandLine(); cmd != "" {
		return cmd
	}
	return ev.Label
}

func chainID(first *models.ScoredEvent) string {
	return "chain-" + strings.TrimPrefix(first.ID(), "evt-")
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
