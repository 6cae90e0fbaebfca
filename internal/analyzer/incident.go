package analyzer

import (
	"sort"
	"time"

	"threatchain/internal/scoring"
	"threatchain/pkg/models"
)

// Incident is a compact output for SOC triage.
type Incident struct {
	ChainID        string    `json:"chain_id"`
	Start          time.Time `json:"start,omitempty"`
	End            time.Time `json:"end,omitempty"`
	Hosts          []string  `json:"hosts,omitempty"`
	Users          []string  `json:"users,omitempty"`
	EventCount     int       `json:"event_count"`
	Score          float64   `json:"score"`
	MaxScore       float64   `json:"max_score"`
	TacticCoverage int       `json:"tactic_coverage"`
	Tactics        []string  `json:"tactics,omitempty"`
	SequenceLength int       `json:"sequence_length"`
	KillChain      []string  `json:"kill_chain,omitempty"`
	RuleHits       int       `json:"rule_hits"`
	Severity       string    `json:"severity"`
}

var severityRank = map[string]int{
	"low":      1,
	"medium":   2,
	"high":     3,
	"critical": 4,
}

// BuildIncidents converts chains at or above threshold into prioritized
// incidents.
func BuildIncidents(chains []*models.AttackChain, threshold float64) []Incident {
	out := make([]Incident, 0, len(chains))
	for _, c := range chains {
		if !Surfaces(c, threshold) {
			continue
		}
		prog := KillChainProgression(c)
		inc := Incident{
			ChainID:        c.ID,
			Start:          c.Start,
			End:            c.End,
			EventCount:     c.EventCount,
			Score:          c.Score,
			MaxScore:       c.MaxScore,
			TacticCoverage: tacticCoverage(c.Tactics),
			Tactics:        c.Tactics,
			SequenceLength: prog.Length,
			KillChain:      prog.EventIDs,
			Severity:       c.Severity,
		}
		for _, tok := range c.Entities {
			switch tok.Kind() {
			case models.EntityHost:
				inc.Hosts = append(inc.Hosts, tok.Value())
			case models.EntityUser:
				inc.Users = append(inc.Users, tok.Value())
			}
		}
		for _, ev := range c.Events() {
			inc.RuleHits += len(ev.Event.IoaTags)
		}
		out = append(out, inc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if severityRank[out[i].Severity] != severityRank[out[j].Severity] {
			return severityRank[out[i].Severity] > severityRank[out[j].Severity]
		}
		if out[i].MaxScore != out[j].MaxScore {
			return out[i].MaxScore > out[j].MaxScore
		}
		if out[i].SequenceLength != out[j].SequenceLength {
			return out[i].SequenceLength > out[j].SequenceLength
		}
		return out[i].ChainID < out[j].ChainID
	})
	return out
}

// Surfaces reports whether the chain's peak event score reaches threshold.
func Surfaces(c *models.AttackChain, threshold float64) bool {
	return c != nil && c.MaxScore >= threshold
}

func tacticCoverage(tactics []string) int {
	n := 0
	for _, t := range tactics {
		if scoring.TacticRank(t) > 0 {
			n++
		}
	}
	return n
}

func chainSeverity(c *models.AttackChain) string {
	coverage := KillChainProgression(c).Coverage
	ruleSev := 0
	for _, ev := range c.Events() {
		for _, tag := range ev.Event.IoaTags {
			if w := scoring.SeverityWeight(tag.Severity); w > ruleSev {
				ruleSev = w
			}
		}
	}

	if coverage >= 4 || c.MaxScore >= 90 || ruleSev >= 5 {
		return "critical"
	}
	if coverage >= 3 || c.MaxScore >= 70 || ruleSev >= 4 {
		return "high"
	}
	if coverage >= 2 || c.MaxScore >= 40 || ruleSev >= 3 {
		return "medium"
	}
	return "low"
}
