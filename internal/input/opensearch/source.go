package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	opensearch "github.com/opensearch-project/opensearch-go/v2"

	"threatchain/internal/logger"
	"threatchain/internal/transform/siem"
	"threatchain/pkg/models"
)

const maxSize = 10000

// Config configures the OpenSearch event source.
type Config struct {
	Addresses          []string
	Username           string
	Password           string
	Index              string
	TimeField          string
	Size               int
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Query selects the events of one analysis batch.
type Query struct {
	Query string
	From  time.Time
	To    time.Time
	Size  int
}

// Source fetches SIEM events from an OpenSearch index.
type Source struct {
	client    *opensearch.Client
	index     string
	timeField string
	size      int
}

// NewSource creates an OpenSearch source.
func NewSource(cfg Config) (*Source, error) {
	if len(cfg.Addresses) == 0 {
		cfg.Addresses = []string{"http://127.0.0.1:9200"}
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("opensearch index is required")
	}
	if cfg.TimeField == "" {
		cfg.TimeField = "@timestamp"
	}
	if cfg.Size <= 0 {
		cfg.Size = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		ResponseHeaderTimeout: cfg.Timeout,
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}

	return &Source{
		client:    client,
		index:     cfg.Index,
		timeField: cfg.TimeField,
		size:      cfg.Size,
	}, nil
}

// Fetch runs q and decodes the hits into finalized events, oldest first.
func (s *Source) Fetch(ctx context.Context, q Query) ([]*models.Event, error) {
	size := q.Size
	if size <= 0 {
		size = s.size
	}
	if size > maxSize {
		size = maxSize
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(s.buildQuery(q)); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
		s.client.Search.WithSize(size),
	)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				ID     string                 `json:"_id"`
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	events := make([]*models.Event, 0, len(searchResult.Hits.Hits))
	for _, hit := range searchResult.Hits.Hits {
		if len(hit.Source) == 0 {
			logger.Debugf("Skipping empty hit %s", hit.ID)
			continue
		}
		events = append(events, siem.FromMap(hit.Source))
	}
	logger.Debugf("OpenSearch returned %d events from %s", len(events), s.index)
	return siem.Finalize(events), nil
}

func (s *Source) buildQuery(q Query) map[string]interface{} {
	var must []interface{}
	if q.Query != "" {
		must = append(must, map[string]interface{}{
			"query_string": map[string]interface{}{"query": q.Query},
		})
	}
	if !q.From.IsZero() || !q.To.IsZero() {
		rng := map[string]interface{}{}
		if !q.From.IsZero() {
			rng["gte"] = q.From.UTC().Format(time.RFC3339Nano)
		}
		if !q.To.IsZero() {
			rng["lte"] = q.To.UTC().Format(time.RFC3339Nano)
		}
		must = append(must, map[string]interface{}{
			"range": map[string]interface{}{s.timeField: rng},
		})
	}

	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(must) > 0 {
		query = map[string]interface{}{"bool": map[string]interface{}{"must": must}}
	}
	return map[string]interface{}{
		"query": query,
		"sort": []interface{}{
			map[string]interface{}{s.timeField: map[string]interface{}{"order": "asc", "unmapped_type": "date"}},
		},
	}
}
