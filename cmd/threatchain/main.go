package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"threatchain/config"
)

const defaultConfigName = "threatchain.yml"

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, defaultConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return defaultConfigName
}

// loadConfig reads the config when one exists. With optional set, a
// missing file yields the defaults instead of an error.
func loadConfig(configArg string, optional bool) (*config.Config, string, error) {
	path := findConfigFile(configArg)
	cfg := &config.Config{}
	if _, err := os.Stat(path); err != nil && optional {
		applyDefaults(cfg)
		return cfg, "", nil
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, path, err
	}
	applyDefaults(cfg)
	return cfg, path, nil
}

func applyDefaults(cfg *config.Config) {
	tc := &cfg.ThreatChain

	if tc.Input.Redis.Addr == "" {
		tc.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if tc.Input.Redis.Key == "" {
		tc.Input.Redis.Key = "siem_events"
	}
	if tc.Input.Redis.BlockTimeout == 0 {
		tc.Input.Redis.BlockTimeout = 5 * time.Second
	}
	if len(tc.Input.OpenSearch.Addresses) == 0 {
		tc.Input.OpenSearch.Addresses = []string{"http://127.0.0.1:9200"}
	}
	if tc.Input.OpenSearch.Index == "" {
		tc.Input.OpenSearch.Index = "siem-*"
	}
	if tc.Input.OpenSearch.TimeField == "" {
		tc.Input.OpenSearch.TimeField = "@timestamp"
	}
	if tc.Input.OpenSearch.Size <= 0 {
		tc.Input.OpenSearch.Size = 1000
	}

	if tc.Pipeline.Workers <= 0 {
		tc.Pipeline.Workers = 8
	}
	if tc.Pipeline.BatchSize <= 0 {
		tc.Pipeline.BatchSize = 1000
	}
	if tc.Pipeline.AnalysisTimeout <= 0 {
		tc.Pipeline.AnalysisTimeout = 30 * time.Second
	}

	if tc.Analysis.TimeWindow <= 0 {
		tc.Analysis.TimeWindow = 60 * time.Second
	}
	if tc.Analysis.CorrelationWindow == 0 {
		tc.Analysis.CorrelationWindow = 24 * time.Hour
	}
	if tc.Analysis.CollapseThreshold <= 0 {
		tc.Analysis.CollapseThreshold = 200
	}
	if tc.Analysis.SuspicionThreshold == 0 {
		tc.Analysis.SuspicionThreshold = 50
	}
	if tc.Analysis.MaxNodes <= 0 {
		tc.Analysis.MaxNodes = 50
	}
	if tc.Analysis.GroupBy == "" {
		tc.Analysis.GroupBy = "tactic"
	}

	if len(tc.Rules.Products) == 0 {
		tc.Rules.Products = []string{"windows"}
	}

	if tc.Output.Mode == "" {
		tc.Output.Mode = "file"
	}
	if tc.Output.File.Path == "" {
		tc.Output.File.Path = "output/chains.jsonl"
	}
	if tc.Output.NATS.Subject == "" {
		tc.Output.NATS.Subject = "threatchain.chains"
	}
	if tc.Output.Events.Mode == "" {
		tc.Output.Events.Mode = "file"
	}
	if tc.Output.Events.File.Path == "" {
		tc.Output.Events.File.Path = "output/scored_events.jsonl"
	}
	if tc.Output.Events.ClickHouse.Database == "" {
		tc.Output.Events.ClickHouse.Database = "threatchain"
	}
	if tc.Output.Events.ClickHouse.Table == "" {
		tc.Output.Events.ClickHouse.Table = "scored_events"
	}

	if tc.Store.Addr == "" {
		tc.Store.Addr = tc.Input.Redis.Addr
	}
	if tc.Store.Prefix == "" {
		tc.Store.Prefix = "threatchain:results"
	}
	if tc.Store.TTL <= 0 {
		tc.Store.TTL = 7 * 24 * time.Hour
	}
	if tc.Store.CacheSize <= 0 {
		tc.Store.CacheSize = 128
	}

	if tc.Metrics.Listen == "" {
		tc.Metrics.Listen = ":9108"
	}

	if tc.Logging.Level == "" {
		tc.Logging.Level = "info"
	}
}

func writeJSONLines[T any](path string, rows []T) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range rows {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	if path == "" || path == "-" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: threatchain <command> [flags]

commands:
  analyze   correlate a JSONL event file offline
  consume   run the Redis batch pipeline [config]
  search    fetch events from OpenSearch and correlate them
  show      print a stored analysis result
`)
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "analyze":
			os.Exit(runAnalyze(os.Args[2:]))
		case "consume":
			os.Exit(runConsume(os.Args[2:]))
		case "search":
			os.Exit(runSearch(os.Args[2:]))
		case "show":
			os.Exit(runShow(os.Args[2:]))
		case "-h", "--help", "help":
			usage()
			return
		default:
			// A bare config path runs the consumer.
			os.Exit(runConsume(os.Args[1:]))
		}
	}

	os.Exit(runConsume(nil))
}
