package analyzer

import (
	"context"
	"fmt"
	"time"

	"threatchain/internal/entity"
	"threatchain/internal/graph/correlation"
	"threatchain/internal/projection"
	"threatchain/internal/rules"
	"threatchain/internal/scoring"
	"threatchain/internal/transform/siem"
	"threatchain/pkg/models"
)

// Config holds the tunable analysis parameters. Zero values take the
// defaults; a negative CorrelationWindow disables temporal edges and a
// negative SuspicionThreshold surfaces every chain.
type Config struct {
	TimeWindow         time.Duration
	CorrelationWindow  time.Duration
	CollapseThreshold  int
	SuspicionThreshold float64
	MaxNodes           int
	BucketThreshold    int
	GroupBy            string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		TimeWindow:         DefaultTimeWindow,
		CorrelationWindow:  correlation.DefaultWindow,
		CollapseThreshold:  DefaultCollapseThreshold,
		SuspicionThreshold: 50.0,
		MaxNodes:           projection.DefaultMaxNodes,
		BucketThreshold:    correlation.DefaultBucketThreshold,
		GroupBy:            projection.GroupByTactic,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TimeWindow <= 0 {
		c.TimeWindow = def.TimeWindow
	}
	if c.CorrelationWindow == 0 {
		c.CorrelationWindow = def.CorrelationWindow
	}
	if c.CollapseThreshold <= 0 {
		c.CollapseThreshold = def.CollapseThreshold
	}
	if c.SuspicionThreshold == 0 {
		c.SuspicionThreshold = def.SuspicionThreshold
	} else if c.SuspicionThreshold < 0 {
		c.SuspicionThreshold = 0
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = def.MaxNodes
	}
	if c.BucketThreshold <= 0 {
		c.BucketThreshold = def.BucketThreshold
	}
	if c.GroupBy == "" {
		c.GroupBy = def.GroupBy
	}
	return c
}

// Stats summarizes one analysis call.
type Stats struct {
	Events      int                          `json:"events"`
	Timed       int                          `json:"timed"`
	Unparseable int                          `json:"unparseable"`
	Missing     int                          `json:"missing"`
	RuleHits    int                          `json:"rule_hits"`
	Edges       map[correlation.EdgeKind]int `json:"edges"`
	Chains      int                          `json:"chains"`
	Summaries   int                          `json:"summaries"`
	Surfaced    int                          `json:"surfaced"`
	Duration    time.Duration                `json:"duration_ns"`
}

// Result is the output of one analysis call.
type Result struct {
	ID        string                `json:"id,omitempty"`
	CreatedAt time.Time             `json:"created_at,omitempty"`
	Chains    []*models.AttackChain `json:"chains"`
	Surfaced  []string              `json:"surfaced"`
	Incidents []Incident            `json:"incidents"`
	Timeline  models.TimelineView   `json:"timeline"`
	Stats     Stats                 `json:"stats"`
}

// SurfacedChains returns the chains listed in Surfaced.
func (r *Result) SurfacedChains() []*models.AttackChain {
	if r == nil {
		return nil
	}
	want := make(map[string]struct{}, len(r.Surfaced))
	for _, id := range r.Surfaced {
		want[id] = struct{}{}
	}
	out := make([]*models.AttackChain, 0, len(r.Surfaced))
	for _, c := range r.Chains {
		if _, ok := want[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// ScoredEvents returns every annotated event of the result in chain order.
func (r *Result) ScoredEvents() []*models.ScoredEvent {
	if r == nil {
		return nil
	}
	var out []*models.ScoredEvent
	for _, c := range r.Chains {
		out = append(out, c.Events()...)
	}
	return out
}

// Engine runs the correlation pipeline over one batch per call. It holds
// only immutable configuration and may serve concurrent calls.
type Engine struct {
	cfg    Config
	scorer *scoring.Scorer
	tagger rules.Engine
}

// NewEngine creates an engine. A nil scorer uses the default indicator
// table; a nil tagger skips rule tagging.
func NewEngine(cfg Config, scorer *scoring.Scorer, tagger rules.Engine) *Engine {
	if scorer == nil {
		scorer = scoring.NewScorer(nil)
	}
	if tagger == nil {
		tagger = &rules.NoopEngine{}
	}
	return &Engine{cfg: cfg.withDefaults(), scorer: scorer, tagger: tagger}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// session is the per-call working state.
type session struct {
	seen   *scoring.Tracker
	scored []*models.ScoredEvent
	stats  Stats
}

// Analyze correlates a batch. Input events are not modified.
func (e *Engine) Analyze(events []*models.Event) *Result {
	started := time.Now()
	sess := &session{seen: scoring.NewTracker()}
	batch := prepare(events)
	sess.stats.Events = len(batch)

	nodes := make([]correlation.Node, 0, len(batch))
	sess.scored = make([]*models.ScoredEvent, 0, len(batch))
	for _, ev := range batch {
		if tags := e.tagger.Apply(ev); len(tags) > 0 {
			tagged := *ev
			tagged.IoaTags = append(append([]models.IoaTag(nil), ev.IoaTags...), tags...)
			ev = &tagged
			sess.stats.RuleHits += len(tags)
		}
		switch {
		case ev.HasTime():
			sess.stats.Timed++
		case ev.TimeStatus == models.TimeUnparseable:
			sess.stats.Unparseable++
		default:
			sess.stats.Missing++
		}

		entities := entity.Extract(ev)
		res := e.scorer.Score(ev, entities, sess.seen)
		se := &models.ScoredEvent{
			Event:      ev,
			Label:      siem.Label(ev),
			EventType:  siem.EventType(ev),
			Entities:   entities,
			Score:      res.Score,
			Indicators: res.Indicators,
			Tactic:     ev.Tactic(),
			Technique:  ev.Technique(),
		}
		sess.scored = append(sess.scored, se)
		nodes = append(nodes, correlation.NodeFrom(se, scoring.NormalizeTactic(se.Tactic)))
	}

	g := correlation.Build(nodes, correlation.Options{
		Window:          e.cfg.CorrelationWindow,
		BucketThreshold: e.cfg.BucketThreshold,
	})
	sess.stats.Edges = g.CountByKind()

	chains := AssembleChains(g, sess.scored, ChainOptions{
		TimeWindow:        e.cfg.TimeWindow,
		CollapseThreshold: e.cfg.CollapseThreshold,
	})

	res := &Result{
		Chains:    chains,
		Surfaced:  []string{},
		Incidents: BuildIncidents(chains, e.cfg.SuspicionThreshold),
		Timeline:  projection.Timeline(chains, projection.TimelineOptions{GroupBy: e.cfg.GroupBy}),
	}
	for _, c := range chains {
		for _, entry := range c.Entries {
			if entry.Kind == models.EntrySummary {
				sess.stats.Summaries++
			}
		}
		if Surfaces(c, e.cfg.SuspicionThreshold) {
			res.Surfaced = append(res.Surfaced, c.ID)
		}
	}
	sess.stats.Chains = len(chains)
	sess.stats.Surfaced = len(res.Surfaced)
	sess.stats.Duration = time.Since(started)
	res.Stats = sess.stats
	return res
}

// Mindmap projects a result around a central entity using the engine's
// node limit.
func (e *Engine) Mindmap(res *Result, central string) models.MindmapView {
	if res == nil {
		return projection.Mindmap(nil, central, projection.MindmapOptions{MaxNodes: e.cfg.MaxNodes})
	}
	return projection.Mindmap(res.Chains, central, projection.MindmapOptions{MaxNodes: e.cfg.MaxNodes})
}

// AnalyzeWithTimeout runs Analyze and abandons it when ctx ends first.
func AnalyzeWithTimeout(ctx context.Context, e *Engine, events []*models.Event) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analyze batch: %w", err)
	}
	done := make(chan *Result, 1)
	go func() {
		done <- e.Analyze(events)
	}()
	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("analyze batch: %w", ctx.Err())
	}
}

// prepare drops nil events and, when IDs are missing or repeated or a time
// status is unset, works on shallow copies so callers' events stay untouched.
func prepare(events []*models.Event) []*models.Event {
	batch := make([]*models.Event, 0, len(events))
	ids := make(map[string]struct{}, len(events))
	validIDs := true
	statusSet := true
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if _, dup := ids[ev.ID]; ev.ID == "" || dup {
			validIDs = false
		}
		if ev.TimeStatus == "" {
			statusSet = false
		}
		ids[ev.ID] = struct{}{}
		batch = append(batch, ev)
	}
	if validIDs && statusSet {
		return batch
	}
	copies := make([]*models.Event, len(batch))
	for i, ev := range batch {
		c := *ev
		copies[i] = &c
	}
	if !validIDs {
		return siem.Finalize(copies)
	}
	for _, ev := range copies {
		if ev.TimeStatus == "" {
			ev.TimeStatus = siem.StatusFor(ev.Timestamp)
		}
	}
	return copies
}
