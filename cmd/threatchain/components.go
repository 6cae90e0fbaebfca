package main

import (
	"fmt"
	"strings"

	"threatchain/config"
	"threatchain/internal/analyzer"
	"threatchain/internal/logger"
	"threatchain/internal/output/chainhttp"
	"threatchain/internal/output/chainjson"
	"threatchain/internal/output/chainnats"
	"threatchain/internal/output/eventclickhouse"
	"threatchain/internal/output/eventjson"
	"threatchain/internal/pipeline"
	"threatchain/internal/resultstore"
	"threatchain/internal/rules"
	"threatchain/internal/scoring"
)

func initLogging(cfg *config.Config) error {
	lc := cfg.ThreatChain.Logging
	if err := logger.Init(lc.Enabled, lc.Level, lc.File, lc.Console); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return nil
}

func analyzerConfig(cfg *config.Config) analyzer.Config {
	ac := cfg.ThreatChain.Analysis
	return analyzer.Config{
		TimeWindow:         ac.TimeWindow,
		CorrelationWindow:  ac.CorrelationWindow,
		CollapseThreshold:  ac.CollapseThreshold,
		SuspicionThreshold: ac.SuspicionThreshold,
		MaxNodes:           ac.MaxNodes,
		BucketThreshold:    ac.BucketThreshold,
		GroupBy:            ac.GroupBy,
	}
}

func newEngine(cfg *config.Config) (*analyzer.Engine, error) {
	table := scoring.DefaultTable()
	if path := strings.TrimSpace(cfg.ThreatChain.Analysis.IndicatorsFile); path != "" {
		t, err := scoring.LoadTable(path)
		if err != nil {
			return nil, err
		}
		table = t
		logger.Infof("Indicator table loaded: %s (%d indicators)", path, len(t.Indicators))
	}

	var tagger rules.Engine
	rc := cfg.ThreatChain.Rules
	if rc.Enabled {
		if strings.TrimSpace(rc.Path) == "" {
			logger.Warnf("Rules enabled but rules.path is empty; rule tagging disabled")
		} else {
			sigmaEngine, stats, err := rules.NewSigmaEngine(rc.Path, rules.SigmaOptions{Products: rc.Products, Services: rc.Services})
			if err != nil {
				return nil, fmt.Errorf("load sigma rules: %w", err)
			}
			tagger = sigmaEngine
			logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_datasource=%d skipped_invalid=%d files=%d",
				stats.Loaded,
				stats.SkippedComplex,
				stats.SkippedDatasource,
				stats.SkippedInvalid,
				stats.TotalFiles,
			)
			if stats.Loaded == 0 {
				logger.Warnf("No compatible Sigma rules loaded; rule tagging is effectively disabled")
			}
		}
	}

	return analyzer.NewEngine(analyzerConfig(cfg), scoring.NewScorer(table), tagger), nil
}

func newChainWriter(cfg *config.Config) (pipeline.ChainWriter, error) {
	oc := cfg.ThreatChain.Output
	switch oc.Mode {
	case "file":
		w, err := chainjson.NewWriter(oc.File.Path)
		if err != nil {
			return nil, err
		}
		logger.Infof("Output mode: file (%s)", oc.File.Path)
		return w, nil
	case "http":
		w, err := chainhttp.NewWriter(chainhttp.Config{
			URL:         oc.HTTP.URL,
			Timeout:     oc.HTTP.Timeout,
			Headers:     oc.HTTP.Headers,
			MinSeverity: oc.HTTP.MinSeverity,
			MaxBatch:    oc.HTTP.MaxBatch,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("Output mode: http (%s)", oc.HTTP.URL)
		return w, nil
	case "nats":
		w, err := chainnats.NewWriter(chainnats.Config{
			URL:     oc.NATS.URL,
			Subject: oc.NATS.Subject,
			Timeout: oc.NATS.Timeout,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("Output mode: nats (%s)", oc.NATS.Subject)
		return w, nil
	default:
		return nil, fmt.Errorf("unknown output mode: %s", oc.Mode)
	}
}

func newEventWriter(cfg *config.Config) (pipeline.EventWriter, error) {
	ec := cfg.ThreatChain.Output.Events
	if !ec.Enabled {
		return nil, nil
	}
	switch ec.Mode {
	case "file":
		w, err := eventjson.NewWriter(ec.File.Path)
		if err != nil {
			return nil, err
		}
		logger.Infof("Event output mode: file (%s)", ec.File.Path)
		return w, nil
	case "clickhouse":
		ch := ec.ClickHouse
		w, err := eventclickhouse.NewWriter(eventclickhouse.Config{
			URL:      ch.URL,
			Database: ch.Database,
			Table:    ch.Table,
			Username: ch.Username,
			Password: ch.Password,
			Timeout:  ch.Timeout,
			Headers:  ch.Headers,
			MaxRows:  ch.MaxRows,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("Event output mode: clickhouse (%s/%s.%s)", ch.URL, ch.Database, ch.Table)
		return w, nil
	default:
		return nil, fmt.Errorf("unknown event output mode: %s", ec.Mode)
	}
}

func newStore(cfg *config.Config) (*resultstore.RedisStore, error) {
	sc := cfg.ThreatChain.Store
	return resultstore.NewRedisStore(resultstore.RedisConfig{
		Addr:      sc.Addr,
		Password:  sc.Password,
		DB:        sc.DB,
		KeyPrefix: sc.Prefix,
		TTL:       sc.TTL,
		CacheSize: sc.CacheSize,
	})
}
