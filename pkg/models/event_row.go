package models

import "time"

// EventRow is a flat time-series row for one scored event.
type EventRow struct {
	Timestamp  time.Time `json:"ts"`
	EventID    string    `json:"event_id"`
	ChainID    string    `json:"chain_id,omitempty"`
	Host       string    `json:"host"`
	User       string    `json:"user,omitempty"`
	EventType  string    `json:"event_type,omitempty"`
	Label      string    `json:"label"`
	Score      float64   `json:"score"`
	Indicators []string  `json:"indicators"`
	Tactic     string    `json:"tactic,omitempty"`
	Technique  string    `json:"technique,omitempty"`
	Rules      []string  `json:"rules"`
	TimeStatus string    `json:"time_status"`
}

// NewEventRow flattens a scored event.
func NewEventRow(se *ScoredEvent) *EventRow {
	row := &EventRow{
		EventID:    se.ID(),
		ChainID:    se.ChainID,
		EventType:  se.EventType,
		Label:      se.Label,
		Score:      se.Score,
		Indicators: append([]string{}, se.Indicators...),
		Tactic:     se.Tactic,
		Technique:  se.Technique,
		Rules:      []string{},
	}
	ev := se.Event
	if ev == nil {
		return row
	}
	row.Timestamp = ev.Timestamp
	row.TimeStatus = string(ev.TimeStatus)
	row.Host = ev.Field("host")
	row.User = ev.Field("user")
	for _, tag := range ev.IoaTags {
		name := tag.Name
		if name == "" {
			name = tag.ID
		}
		row.Rules = append(row.Rules, name)
	}
	return row
}
