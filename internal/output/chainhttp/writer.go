package chainhttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"threatchain/internal/scoring"
	"threatchain/pkg/models"
)

// Headers set on every chain POST.
const (
	HeaderSeverity = "X-ThreatChain-Severity"
	HeaderChains   = "X-ThreatChain-Chains"
	HeaderEvents   = "X-ThreatChain-Events"
)

const defaultMaxBatch = 100

// Config configures the HTTP writer. MinSeverity drops chains ranked below
// it; MaxBatch caps the chains sent per request.
type Config struct {
	URL         string
	Timeout     time.Duration
	Headers     map[string]string
	MinSeverity string
	MaxBatch    int
}

// Writer posts attack chains to a remote HTTP endpoint.
type Writer struct {
	url      string
	headers  map[string]string
	minRank  int
	maxBatch int
	client   *http.Client
}

// NewWriter creates an HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http chain URL is empty")
	}
	minRank := 0
	if cfg.MinSeverity != "" {
		minRank = scoring.SeverityWeight(cfg.MinSeverity)
		if minRank == 0 {
			return nil, fmt.Errorf("unknown min severity: %s", cfg.MinSeverity)
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	return &Writer{
		url:      cfg.URL,
		headers:  cfg.Headers,
		minRank:  minRank,
		maxBatch: maxBatch,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// WriteChains posts the chains at or above the configured severity as JSON
// arrays of at most MaxBatch chains. Each request carries the highest
// severity and the chain and event counts it holds.
func (w *Writer) WriteChains(chains []*models.AttackChain) error {
	kept := make([]*models.AttackChain, 0, len(chains))
	for _, c := range chains {
		if c == nil || scoring.SeverityWeight(c.Severity) < w.minRank {
			continue
		}
		kept = append(kept, c)
	}

	for start := 0; start < len(kept); start += w.maxBatch {
		end := start + w.maxBatch
		if end > len(kept) {
			end = len(kept)
		}
		if err := w.post(kept[start:end]); err != nil {
			return fmt.Errorf("post chains %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (w *Writer) post(chains []*models.AttackChain) error {
	body, err := json.Marshal(chains)
	if err != nil {
		return fmt.Errorf("marshal chains: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	severity, events := summarize(chains)
	req.Header.Set(HeaderSeverity, severity)
	req.Header.Set(HeaderChains, strconv.Itoa(len(chains)))
	req.Header.Set(HeaderEvents, strconv.Itoa(events))

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

func summarize(chains []*models.AttackChain) (string, int) {
	severity := "unknown"
	rank := 0
	events := 0
	for _, c := range chains {
		events += c.EventCount
		if r := scoring.SeverityWeight(c.Severity); r > rank {
			rank = r
			severity = c.Severity
		}
	}
	return severity, events
}

// Close releases HTTP resources.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
