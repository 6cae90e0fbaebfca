package models

import "time"

// ScoredEvent is an event annotated by the extractor and the scorer.
type ScoredEvent struct {
	Event      *Event    `json:"event"`
	ChainID    string    `json:"chain_id,omitempty"`
	Label      string    `json:"label"`
	EventType  string    `json:"event_type"`
	Entities   EntitySet `json:"entities,omitempty"`
	Score      float64   `json:"score"`
	Indicators []string  `json:"indicators,omitempty"`
	Tactic     string    `json:"tactic,omitempty"`
	Technique  string    `json:"technique,omitempty"`
}

// ID returns the underlying event ID.
func (s *ScoredEvent) ID() string {
	if s == nil || s.Event == nil {
		return ""
	}
	return s.Event.ID
}

// EntryKind distinguishes inline events from collapsed bursts.
type EntryKind string

const (
	EntryEvent   EntryKind = "event"
	EntrySummary EntryKind = "summary"
)

// SummaryEntry stands in for a burst of events inside one time bucket.
type SummaryEntry struct {
	Count     int            `json:"count"`
	Label     string         `json:"label"`
	Start     time.Time      `json:"start,omitempty"`
	End       time.Time      `json:"end,omitempty"`
	Score     float64        `json:"score"`
	Tactic    string         `json:"tactic,omitempty"`
	Technique string         `json:"technique,omitempty"`
	Members   []*ScoredEvent `json:"members"`
}

// ChainEntry is either one event or one summary.
type ChainEntry struct {
	Kind    EntryKind     `json:"kind"`
	Event   *ScoredEvent  `json:"event,omitempty"`
	Summary *SummaryEntry `json:"summary,omitempty"`
}

// Start returns the entry start time; zero when the entry is undated.
func (e ChainEntry) Start() time.Time {
	if e.Summary != nil {
		return e.Summary.Start
	}
	if e.Event != nil && e.Event.Event.HasTime() {
		return e.Event.Event.Timestamp
	}
	return time.Time{}
}

// Label returns the entry label.
func (e ChainEntry) Label() string {
	if e.Summary != nil {
		return e.Summary.Label
	}
	if e.Event != nil {
		return e.Event.Label
	}
	return ""
}

// Score returns the entry score.
func (e ChainEntry) Score() float64 {
	if e.Summary != nil {
		return e.Summary.Score
	}
	if e.Event != nil {
		return e.Event.Score
	}
	return 0
}

// Tactic returns the entry tactic.
func (e ChainEntry) Tactic() string {
	if e.Summary != nil {
		return e.Summary.Tactic
	}
	if e.Event != nil {
		return e.Event.Tactic
	}
	return ""
}

// Technique returns the entry technique.
func (e ChainEntry) Technique() string {
	if e.Summary != nil {
		return e.Summary.Technique
	}
	if e.Event != nil {
		return e.Event.Technique
	}
	return ""
}

// Count returns how many events the entry represents.
func (e ChainEntry) Count() int {
	if e.Summary != nil {
		return e.Summary.Count
	}
	if e.Event != nil {
		return 1
	}
	return 0
}

// Members returns the events behind the entry.
func (e ChainEntry) Members() []*ScoredEvent {
	if e.Summary != nil {
		return e.Summary.Members
	}
	if e.Event != nil {
		return []*ScoredEvent{e.Event}
	}
	return nil
}

// AttackChain is a chronologically ordered group of correlated events.
type AttackChain struct {
	ID         string       `json:"id"`
	Entries    []ChainEntry `json:"entries"`
	EventCount int          `json:"event_count"`
	Score      float64      `json:"score"`
	MaxScore   float64      `json:"max_score"`
	Start      time.Time    `json:"start,omitempty"`
	End        time.Time    `json:"end,omitempty"`
	Tactics    []string     `json:"tactics,omitempty"`
	Techniques []string     `json:"techniques,omitempty"`
	Entities   EntitySet    `json:"entities,omitempty"`
	Severity   string       `json:"severity"`
}

// Events returns every member event of the chain in entry order.
func (c *AttackChain) Events() []*ScoredEvent {
	if c == nil {
		return nil
	}
	out := make([]*ScoredEvent, 0, c.EventCount)
	for _, e := range c.Entries {
		out = append(out, e.Members()...)
	}
	return out
}
