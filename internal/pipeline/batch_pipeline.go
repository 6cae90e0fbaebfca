package pipeline

import (
	"context"
	"sync"
	"time"

	"threatchain/internal/analyzer"
	"threatchain/internal/logger"
	"threatchain/internal/metrics"
	"threatchain/internal/transform/siem"
	"threatchain/pkg/models"
)

// Options tunes the batch pipeline.
type Options struct {
	Workers         int
	BatchSize       int
	AnalysisTimeout time.Duration
}

// BatchPipeline pops event batches, analyzes each one and writes the results.
type BatchPipeline struct {
	source      BatchSource
	engine      *analyzer.Engine
	chainWriter ChainWriter
	eventWriter EventWriter
	store       ResultStore
	metrics     *metrics.Metrics
	opts        Options
}

// NewBatchPipeline creates a pipeline. Writers, store and metrics are optional.
func NewBatchPipeline(source BatchSource, engine *analyzer.Engine, chainWriter ChainWriter, eventWriter EventWriter, store ResultStore, m *metrics.Metrics, opts Options) *BatchPipeline {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = 30 * time.Second
	}
	if engine == nil {
		engine = analyzer.NewEngine(analyzer.DefaultConfig(), nil, nil)
	}
	return &BatchPipeline{
		source:      source,
		engine:      engine,
		chainWriter: chainWriter,
		eventWriter: eventWriter,
		store:       store,
		metrics:     m,
		opts:        opts,
	}
}

// Run starts the pipeline loop and blocks until ctx is done.
func (p *BatchPipeline) Run(ctx context.Context) error {
	logger.Infof("Batch pipeline started: workers=%d batch_size=%d", p.opts.Workers, p.opts.BatchSize)

	batchCh := make(chan [][]byte, 2)
	resultCh := make(chan *analyzer.Result, 2)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.readLoop(ctx, batchCh)
		close(batchCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.analyzeLoop(ctx, batchCh, resultCh)
		close(resultCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.writeLoop(ctx, resultCh)
	}()

	wg.Wait()
	logger.Infof("Batch pipeline stopped")
	return ctx.Err()
}

// Close releases pipeline resources.
func (p *BatchPipeline) Close() error {
	if p.chainWriter != nil {
		if err := p.chainWriter.Close(); err != nil {
			logger.Errorf("Failed to close chain writer: %v", err)
		}
	}
	if p.eventWriter != nil {
		if err := p.eventWriter.Close(); err != nil {
			logger.Errorf("Failed to close event writer: %v", err)
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			logger.Errorf("Failed to close result store: %v", err)
		}
	}
	if p.source != nil {
		return p.source.Close()
	}
	return nil
}

func (p *BatchPipeline) readLoop(ctx context.Context, out chan<- [][]byte) {
	for {
		if ctx.Err() != nil {
			return
		}
		batch, err := p.source.PopBatch(ctx, p.opts.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop event batch: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if len(batch) == 0 {
			continue
		}
		select {
		case out <- batch:
		case <-ctx.Done():
			return
		}
	}
}

func (p *BatchPipeline) analyzeLoop(ctx context.Context, in <-chan [][]byte, out chan<- *analyzer.Result) {
	for batch := range in {
		events := p.parse(batch)
		if len(events) == 0 {
			continue
		}

		actx, cancel := context.WithTimeout(ctx, p.opts.AnalysisTimeout)
		res, err := analyzer.AnalyzeWithTimeout(actx, p.engine, events)
		cancel()
		if err != nil {
			logger.Errorf("Dropped batch of %d events: %v", len(events), err)
			continue
		}
		p.metrics.ObserveResult(res)
		logger.Infof("Analyzed %d events: chains=%d surfaced=%d", res.Stats.Events, res.Stats.Chains, res.Stats.Surfaced)

		select {
		case out <- res:
		case <-ctx.Done():
			return
		}
	}
}

// parse decodes payloads with a worker pool, keeping arrival order.
func (p *BatchPipeline) parse(batch [][]byte) []*models.Event {
	parsed := make([]*models.Event, len(batch))
	idx := make(chan int, len(batch))
	for i := range batch {
		idx <- i
	}
	close(idx)

	workers := p.opts.Workers
	if workers > len(batch) {
		workers = len(batch)
	}

	var mu sync.Mutex
	failed := 0
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(batch, idx, parsed, &mu, &failed)
		}()
	}
	wg.Wait()

	if failed > 0 {
		logger.Warnf("Skipped %d undecodable payloads", failed)
		p.metrics.IncParseErrors(failed)
	}
	return siem.Finalize(parsed)
}

func (p *BatchPipeline) workerLoop(batch [][]byte, in <-chan int, out []*models.Event, mu *sync.Mutex, failed *int) {
	for i := range in {
		event, err := siem.Parse(batch[i])
		if err != nil {
			logger.Debugf("Failed to parse event: %v", err)
			mu.Lock()
			*failed++
			mu.Unlock()
			continue
		}
		out[i] = event
	}
}

func (p *BatchPipeline) writeLoop(ctx context.Context, in <-chan *analyzer.Result) {
	for res := range in {
		if p.chainWriter != nil {
			if chains := res.SurfacedChains(); len(chains) > 0 {
				p.retry(ctx, "chains", func() error { return p.chainWriter.WriteChains(chains) })
			}
		}
		if p.eventWriter != nil {
			if events := res.ScoredEvents(); len(events) > 0 {
				p.retry(ctx, "events", func() error { return p.eventWriter.WriteEvents(events) })
			}
		}
		if p.store != nil {
			id, err := p.store.Save(ctx, res)
			if err != nil {
				logger.Errorf("Failed to store result: %v", err)
				p.metrics.IncWriteErrors("store")
				continue
			}
			logger.Debugf("Stored analysis result %s", id)
		}
	}
}

// retry runs write until it succeeds or ctx is done.
func (p *BatchPipeline) retry(ctx context.Context, sink string, write func() error) {
	for {
		err := write()
		if err == nil {
			return
		}
		logger.Errorf("Failed to write %s: %v", sink, err)
		p.metrics.IncWriteErrors(sink)
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
	}
}
