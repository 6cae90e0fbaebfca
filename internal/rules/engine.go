package rules

import "threatchain/pkg/models"

// Engine tags events with detection rule matches.
type Engine interface {
	Apply(event *models.Event) []models.IoaTag
}

// NoopEngine returns no tags.
type NoopEngine struct{}

// Apply returns an empty tag list.
func (n *NoopEngine) Apply(event *models.Event) []models.IoaTag {
	return nil
}
