package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"threatchain/internal/analyzer"
	inputopensearch "threatchain/internal/input/opensearch"
	inputredis "threatchain/internal/input/redis"
	"threatchain/internal/logger"
	"threatchain/internal/metrics"
	"threatchain/internal/pipeline"
	"threatchain/internal/projection"
	"threatchain/internal/resultstore"
	"threatchain/internal/transform/siem"
	"threatchain/pkg/models"
)

func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	input := fs.String("input", "events.jsonl", "SIEM events JSONL input path")
	output := fs.String("output", "output/chains.jsonl", "Attack chains JSONL output path")
	all := fs.Bool("all", false, "Write every chain instead of only surfaced ones")
	incidentsOut := fs.String("incidents", "", "Optional incidents JSONL output path")
	timelineOut := fs.String("timeline", "", "Optional timeline JSON output path")
	groupBy := fs.String("group-by", "", "Timeline grouping key (tactic, technique, chain, an entity kind or a field)")
	mindmapOut := fs.String("mindmap", "", "Optional mindmap JSON output path")
	center := fs.String("center", "", "Central entity of the mindmap, for example user:alice")
	pivotOut := fs.String("pivot", "", "Optional pivot map JSON output path")
	ttpOut := fs.String("ttp", "", "Optional technique/tactic map JSON output path")
	configArg := fs.String("config", "", "Optional config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configArg, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *groupBy != "" {
		cfg.ThreatChain.Analysis.GroupBy = *groupBy
	}
	if err := initLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	events, err := siem.LoadEventsJSONL(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load events: %v\n", err)
		return 1
	}

	engine, err := newEngine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build engine: %v\n", err)
		return 1
	}
	res := engine.Analyze(events)

	chains := res.SurfacedChains()
	if *all {
		chains = res.Chains
	}
	if err := writeJSONLines(*output, chains); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write chains: %v\n", err)
		return 1
	}
	if *incidentsOut != "" {
		if err := writeJSONLines(*incidentsOut, res.Incidents); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write incidents: %v\n", err)
			return 1
		}
	}
	if *timelineOut != "" {
		if err := writeJSON(*timelineOut, res.Timeline); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write timeline: %v\n", err)
			return 1
		}
	}
	if *mindmapOut != "" {
		if err := writeJSON(*mindmapOut, engine.Mindmap(res, *center)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write mindmap: %v\n", err)
			return 1
		}
	}
	if *pivotOut != "" {
		view := projection.PivotMap(events, projection.DetectPivotFields(events))
		if err := writeJSON(*pivotOut, view); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write pivot map: %v\n", err)
			return 1
		}
	}
	if *ttpOut != "" {
		if err := writeJSON(*ttpOut, projection.TTPMap(res.Chains)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write ttp map: %v\n", err)
			return 1
		}
	}

	fmt.Printf("analyzed events=%d chains=%d surfaced=%d summaries=%d output=%s\n",
		res.Stats.Events, res.Stats.Chains, res.Stats.Surfaced, res.Stats.Summaries, *output)
	return 0
}

func runConsume(args []string) int {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	cfg, configPath, err := loadConfig(configArg, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if err := initLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	tc := cfg.ThreatChain

	logger.Infof("ThreatChain starting")
	logger.Infof("Config loaded from: %s", configPath)

	engine, err := newEngine(cfg)
	if err != nil {
		logger.Errorf("Failed to build engine: %v", err)
		return 1
	}

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         tc.Input.Redis.Addr,
		Password:     tc.Input.Redis.Password,
		DB:           tc.Input.Redis.DB,
		Key:          tc.Input.Redis.Key,
		BlockTimeout: tc.Input.Redis.BlockTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create Redis consumer: %v", err)
		return 1
	}

	chainWriter, err := newChainWriter(cfg)
	if err != nil {
		logger.Errorf("Failed to create chain writer: %v", err)
		consumer.Close()
		return 1
	}
	eventWriter, err := newEventWriter(cfg)
	if err != nil {
		logger.Errorf("Failed to create event writer: %v", err)
		consumer.Close()
		return 1
	}

	var store pipeline.ResultStore
	if tc.Store.Enabled {
		s, err := newStore(cfg)
		if err != nil {
			logger.Errorf("Failed to create result store: %v", err)
			consumer.Close()
			return 1
		}
		store = s
		logger.Infof("Result store: redis (%s, ttl=%s)", tc.Store.Addr, tc.Store.TTL)
	}

	var m *metrics.Metrics
	var metricsSrv *http.Server
	if tc.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		metricsSrv = &http.Server{Addr: tc.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("Metrics server error: %v", err)
			}
		}()
		logger.Infof("Metrics listening on %s", tc.Metrics.Listen)
	}

	pipe := pipeline.NewBatchPipeline(consumer, engine, chainWriter, eventWriter, store, m, pipeline.Options{
		Workers:         tc.Pipeline.Workers,
		BatchSize:       tc.Pipeline.BatchSize,
		AnalysisTimeout: tc.Pipeline.AnalysisTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pipe.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("Pipeline error: %v", err)
	}

	logger.Infof("Shutting down")
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}

	logger.Infof("ThreatChain stopped")
	return 0
}

func runSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	query := fs.String("query", "", "Query string, for example user:alice")
	from := fs.String("from", "", "Range start (RFC3339 or epoch)")
	to := fs.String("to", "", "Range end (RFC3339 or epoch)")
	since := fs.Duration("since", 0, "Range start relative to now, used when -from is empty")
	size := fs.Int("size", 0, "Maximum number of events to fetch")
	output := fs.String("output", "-", "Chains JSONL output path, - for stdout")
	save := fs.Bool("save", false, "Store the result in the result store")
	configArg := fs.String("config", "", "Config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configArg, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if err := initLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	q := inputopensearch.Query{Query: *query, Size: *size}
	if q.From, err = parseTimeFlag(*from); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -from: %v\n", err)
		return 2
	}
	if q.To, err = parseTimeFlag(*to); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -to: %v\n", err)
		return 2
	}
	if q.From.IsZero() && *since > 0 {
		q.From = time.Now().Add(-*since)
	}

	oc := cfg.ThreatChain.Input.OpenSearch
	src, err := inputopensearch.NewSource(inputopensearch.Config{
		Addresses:          oc.Addresses,
		Username:           oc.Username,
		Password:           oc.Password,
		Index:              oc.Index,
		TimeField:          oc.TimeField,
		Size:               oc.Size,
		Timeout:            oc.Timeout,
		InsecureSkipVerify: oc.InsecureSkipVerify,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create opensearch source: %v\n", err)
		return 1
	}

	engine, err := newEngine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build engine: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ThreatChain.Pipeline.AnalysisTimeout)
	defer cancel()

	events, err := src.Fetch(ctx, q)
	if err != nil {
		fmt.Fprintf(os.Stderr, "search failed: %v\n", err)
		return 1
	}
	res, err := analyzer.AnalyzeWithTimeout(ctx, engine, events)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		return 1
	}

	if *save {
		store, err := newStore(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open result store: %v\n", err)
			return 1
		}
		defer store.Close()
		id, err := store.Save(ctx, res)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to store result: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "stored run %s\n", id)
	}

	if err := writeChains(*output, res.SurfacedChains()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write chains: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "searched events=%d chains=%d surfaced=%d\n", res.Stats.Events, res.Stats.Chains, res.Stats.Surfaced)
	return 0
}

func runShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	id := fs.String("id", "", "Run ID to print")
	recent := fs.Int64("recent", 0, "List the most recent runs instead")
	configArg := fs.String("config", "", "Config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *id == "" && *recent <= 0 {
		fmt.Fprintln(os.Stderr, "show requires -id or -recent")
		return 2
	}

	cfg, _, err := loadConfig(*configArg, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	store, err := newStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open result store: %v\n", err)
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *recent > 0 {
		runs, err := store.Recent(ctx, *recent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list runs: %v\n", err)
			return 1
		}
		for _, r := range runs {
			fmt.Printf("%s\t%s\n", r.ID, r.CreatedAt.Format(time.RFC3339))
		}
		return 0
	}

	res, err := store.Get(ctx, *id)
	if errors.Is(err, resultstore.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "run %s not found\n", *id)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load run: %v\n", err)
		return 1
	}
	if err := writeJSON("-", res); err != nil {
		fmt.Fprintf(os.Stderr, "failed to print run: %v\n", err)
		return 1
	}
	return 0
}

func writeChains(path string, chains []*models.AttackChain) error {
	if path != "-" {
		return writeJSONLines(path, chains)
	}
	for _, c := range chains {
		if err := writeJSON("-", c); err != nil {
			return err
		}
	}
	return nil
}

// parseTimeFlag accepts the timestamp formats the event decoder accepts.
func parseTimeFlag(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	tr := siem.ParseTimestamp(v)
	if !tr.OK() {
		return time.Time{}, fmt.Errorf("unrecognized time %q", v)
	}
	return tr.Time, nil
}
