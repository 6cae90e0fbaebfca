package analyzer

import (
	"fmt"
	"testing"
	"time"

	"threatchain/internal/transform/siem"
	"threatchain/pkg/models"
)

var t0 = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

func rows(fields ...map[string]interface{}) []*models.Event {
	out := make([]*models.Event, 0, len(fields))
	for _, f := range fields {
		out = append(out, siem.FromMap(f))
	}
	return siem.Finalize(out)
}

func burst(n int, spacing time.Duration) []*models.Event {
	fields := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		fields = append(fields, map[string]interface{}{
			"timestamp":    t0.Add(time.Duration(i) * spacing).Format(time.RFC3339Nano),
			"user":         "alice",
			"command_line": "net user /domain",
		})
	}
	return rows(fields...)
}

func summaries(c *models.AttackChain) []*models.SummaryEntry {
	var out []*models.SummaryEntry
	for _, e := range c.Entries {
		if e.Summary != nil {
			out = append(out, e.Summary)
		}
	}
	return out
}

func TestCollapseAboveThreshold(t *testing.T) {
	res := NewEngine(DefaultConfig(), nil, nil).Analyze(burst(250, 100*time.Millisecond))
	if len(res.Chains) != 1 {
		t.Fatalf("expected 1 chain, got %d", len(res.Chains))
	}
	c := res.Chains[0]
	sums := summaries(c)
	if len(c.Entries) != 1 || len(sums) != 1 || sums[0].Count != 250 || len(sums[0].Members) != 250 {
		t.Fatalf("expected one summary of 250, got %d entries", len(c.Entries))
	}
	if sums[0].Label != "net user /domain" {
		t.Fatalf("unexpected summary label %q", sums[0].Label)
	}
	if !sums[0].Start.Equal(t0) || !sums[0].End.Equal(t0.Add(249*100*time.Millisecond)) {
		t.Fatalf("unexpected summary bounds %s - %s", sums[0].Start, sums[0].End)
	}
	if c.EventCount != 250 || res.Stats.Summaries != 1 {
		t.Fatalf("unexpected counts: events=%d summaries=%d", c.EventCount, res.Stats.Summaries)
	}
}

func TestNoCollapseAtOrBelowThreshold(t *testing.T) {
	res := NewEngine(DefaultConfig(), nil, nil).Analyze(burst(150, 100*time.Millisecond))
	c := res.Chains[0]
	if len(c.Entries) != 150 || len(summaries(c)) != 0 {
		t.Fatalf("expected 150 inline entries, got %d entries and %d summaries", len(c.Entries), len(summaries(c)))
	}
}

func TestCollapseIsPerBucket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CollapseThreshold = 5
	// 10 events in the first minute, 3 in the next
	events := burst(13, time.Second)
	for i := 10; i < 13; i++ {
		events[i].Timestamp = t0.Add(time.Minute + time.Duration(i)*time.Second)
	}
	c := NewEngine(cfg, nil, nil).Analyze(events).Chains[0]
	if len(c.Entries) != 4 || c.Entries[0].Kind != models.EntrySummary || c.Entries[0].Summary.Count != 10 {
		t.Fatalf("unexpected entries: %d first=%s", len(c.Entries), c.Entries[0].Kind)
	}
	for _, e := range c.Entries[1:] {
		if e.Kind != models.EntryEvent {
			t.Fatalf("expected inline entries after the summary")
		}
	}
}

func TestSharedUserConnectsOnlyRelated(t *testing.T) {
	events := rows(
		map[string]interface{}{"timestamp": t0.Format(time.RFC3339), "user": "alice", "host": "ws01"},
		map[string]interface{}{"timestamp": t0.Add(72 * time.Hour).Format(time.RFC3339), "user": "alice", "host": "ws02"},
		map[string]interface{}{"timestamp": t0.Add(144 * time.Hour).Format(time.RFC3339), "user": "bob", "host": "ws03"},
	)
	res := NewEngine(DefaultConfig(), nil, nil).Analyze(events)
	if len(res.Chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(res.Chains))
	}
	if res.Chains[0].EventCount != 2 || res.Chains[1].EventCount != 1 {
		t.Fatalf("unexpected chain sizes %d/%d", res.Chains[0].EventCount, res.Chains[1].EventCount)
	}
	if res.Chains[0].ID != "chain-"+events[0].ID[len("evt-"):] {
		t.Fatalf("chain id should derive from first member, got %s", res.Chains[0].ID)
	}
}

func TestTieBreakByInsertionAndUntimedTrail(t *testing.T) {
	ts := t0.Format(time.RFC3339)
	events := rows(
		map[string]interface{}{"user": "alice", "command_line": "no time"},
		map[string]interface{}{"timestamp": t0.Add(time.Second).Format(time.RFC3339), "user": "alice", "command_line": "later"},
		map[string]interface{}{"timestamp": ts, "user": "alice", "command_line": "first tie"},
		map[string]interface{}{"timestamp": ts, "user": "alice", "command_line": "second tie"},
		map[string]interface{}{"timestamp": "not a time", "user": "alice", "command_line": "bad time"},
	)
	c := NewEngine(DefaultConfig(), nil, nil).Analyze(events).Chains[0]
	var got []string
	for _, e := range c.Entries {
		got = append(got, e.Event.Event.CommandLine())
	}
	want := []string{"first tie", "second tie", "later", "no time", "bad time"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("unexpected order %v", got)
	}
	if !c.Start.Equal(t0) || !c.End.Equal(t0.Add(time.Second)) {
		t.Fatalf("unexpected chain bounds %s - %s", c.Start, c.End)
	}
}

func TestChainScoresAndTactics(t *testing.T) {
	events := rows(
		map[string]interface{}{"timestamp": t0.Format(time.RFC3339), "user": "alice", "tactic": "Execution", "technique": "t1059"},
		map[string]interface{}{"timestamp": t0.Add(time.Minute).Format(time.RFC3339), "user": "alice", "command_line": "mimikatz sekurlsa", "tactic": "credential_access"},
		map[string]interface{}{"timestamp": t0.Add(2 * time.Minute).Format(time.RFC3339), "user": "alice", "tactic": "execution"},
	)
	res := NewEngine(DefaultConfig(), nil, nil).Analyze(events)
	c := res.Chains[0]
	if fmt.Sprint(c.Tactics) != "[execution credential-access]" || fmt.Sprint(c.Techniques) != "[T1059]" {
		t.Fatalf("unexpected tactics %v techniques %v", c.Tactics, c.Techniques)
	}
	// 33 (first sighting of alice), 100 (75+40 clamped), 30
	if c.MaxScore != 100 || c.Score != 54.33 {
		t.Fatalf("unexpected scores mean=%v max=%v", c.Score, c.MaxScore)
	}
	if c.Severity != "critical" {
		t.Fatalf("expected critical severity, got %s", c.Severity)
	}
	if len(res.Surfaced) != 1 || len(res.Incidents) != 1 || res.Incidents[0].Users[0] != "alice" {
		t.Fatalf("expected chain surfaced as incident, got %+v", res.Incidents)
	}
}

func TestFloorDiv(t *testing.T) {
	if floorDiv(-1, 60) != -1 || floorDiv(59, 60) != 0 || floorDiv(60, 60) != 1 || floorDiv(-60, 60) != -1 {
		t.Fatalf("floorDiv mismatch")
	}
}
