package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	ThreatChain ThreatChainConfig `yaml:"threatchain"`
}

// ThreatChainConfig is the project configuration.
type ThreatChainConfig struct {
	Input    InputConfig    `yaml:"input"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Rules    RulesConfig    `yaml:"rules"`
	Output   OutputConfig   `yaml:"output"`
	Store    StoreConfig    `yaml:"store"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InputConfig controls the event sources.
type InputConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	OpenSearch OpenSearchConfig `yaml:"opensearch"`
}

// RedisConfig controls Redis input.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// OpenSearchConfig controls the search-backed event source.
type OpenSearchConfig struct {
	Addresses          []string      `yaml:"addresses"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	Index              string        `yaml:"index"`
	TimeField          string        `yaml:"time_field"`
	Size               int           `yaml:"size"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// PipelineConfig controls the batch pipeline.
type PipelineConfig struct {
	Workers         int           `yaml:"workers"`
	BatchSize       int           `yaml:"batch_size"`
	AnalysisTimeout time.Duration `yaml:"analysis_timeout"`
}

// AnalysisConfig holds the correlation engine parameters.
type AnalysisConfig struct {
	TimeWindow         time.Duration `yaml:"time_window"`
	CorrelationWindow  time.Duration `yaml:"correlation_window"`
	CollapseThreshold  int           `yaml:"collapse_threshold"`
	SuspicionThreshold float64       `yaml:"suspicion_threshold"` // negative surfaces every chain
	MaxNodes           int           `yaml:"max_nodes"`
	BucketThreshold    int           `yaml:"bucket_threshold"`
	GroupBy            string        `yaml:"group_by"`
	IndicatorsFile     string        `yaml:"indicators_file"`
}

// RulesConfig controls Sigma rule tagging.
type RulesConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Path     string   `yaml:"path"`
	Products []string `yaml:"products"`
	Services []string `yaml:"services"`
}

// OutputConfig controls chain and event sinks.
type OutputConfig struct {
	Mode   string             `yaml:"mode"` // file|http|nats
	File   FileOutputConfig   `yaml:"file"`
	HTTP   HTTPOutputConfig   `yaml:"http"`
	NATS   NATSOutputConfig   `yaml:"nats"`
	Events EventsOutputConfig `yaml:"events"`
}

// EventsOutputConfig controls the scored event sink.
type EventsOutputConfig struct {
	Enabled    bool                   `yaml:"enabled"`
	Mode       string                 `yaml:"mode"` // file|clickhouse
	File       FileOutputConfig       `yaml:"file"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
	MaxRows  int               `yaml:"max_rows"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL         string            `yaml:"url"`
	Timeout     time.Duration     `yaml:"timeout"`
	Headers     map[string]string `yaml:"headers"`
	MinSeverity string            `yaml:"min_severity"`
	MaxBatch    int               `yaml:"max_batch"`
}

// NATSOutputConfig config for NATS publishing.
type NATSOutputConfig struct {
	URL     string        `yaml:"url"`
	Subject string        `yaml:"subject"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig controls the Redis result store.
type StoreConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl"`
	CacheSize int           `yaml:"cache_size"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}
