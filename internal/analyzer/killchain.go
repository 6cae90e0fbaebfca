package analyzer

import (
	"math"

	"threatchain/internal/scoring"
	"threatchain/pkg/models"
)

// Progression is the longest time-ordered run of chain events whose
// tactics never step backwards in the kill chain.
type Progression struct {
	Length   int      `json:"length"`
	Coverage int      `json:"coverage"`
	RiskSum  float64  `json:"risk_sum"`
	EventIDs []string `json:"event_ids,omitempty"`
}

// KillChainProgression scores a chain with a DP over its ordered events.
// Longer progressions win; ties go to the higher product of event scores.
func KillChainProgression(c *models.AttackChain) Progression {
	var evs []*models.ScoredEvent
	var ranks []int
	for _, ev := range c.Events() {
		if r := scoring.TacticRank(ev.Tactic); r > 0 {
			evs = append(evs, ev)
			ranks = append(ranks, r)
		}
	}
	n := len(evs)
	if n == 0 {
		return Progression{}
	}

	dpLen := make([]int, n)
	dpLog := make([]float64, n)
	parent := make([]int, n)
	best := -1
	for v := 0; v < n; v++ {
		dpLen[v] = 1
		dpLog[v] = math.Log(math.Max(evs[v].Score, 1e-9))
		parent[v] = -1
		for u := 0; u < v; u++ {
			if ranks[u] > ranks[v] {
				continue
			}
			candLen := dpLen[u] + 1
			candLog := dpLog[u] + math.Log(math.Max(evs[v].Score, 1e-9))
			if candLen > dpLen[v] || (candLen == dpLen[v] && candLog > dpLog[v]) {
				dpLen[v] = candLen
				dpLog[v] = candLog
				parent[v] = u
			}
		}
		if best == -1 || dpLen[v] > dpLen[best] || (dpLen[v] == dpLen[best] && dpLog[v] > dpLog[best]) {
			best = v
		}
	}

	path := make([]int, 0, dpLen[best])
	for cur := best; cur >= 0; cur = parent[cur] {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	used := map[int]struct{}{}
	out := Progression{Length: len(path), EventIDs: make([]string, 0, len(path))}
	for _, idx := range path {
		used[ranks[idx]] = struct{}{}
		out.RiskSum += evs[idx].Score
		out.EventIDs = append(out.EventIDs, evs[idx].ID())
	}
	out.Coverage = len(used)
	out.RiskSum = math.Round(out.RiskSum*100) / 100
	return out
}
