package pipeline

import "threatchain/pkg/models"

// EventWriter writes scored events as time-series rows.
type EventWriter interface {
	WriteEvents(events []*models.ScoredEvent) error
	Close() error
}
