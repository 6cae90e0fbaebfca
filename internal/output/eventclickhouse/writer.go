package eventclickhouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"threatchain/pkg/models"
)

const defaultMaxRows = 5000

// Config configures the ClickHouse HTTP writer. MaxRows caps the rows sent
// per INSERT.
type Config struct {
	URL      string
	Database string
	Table    string
	Username string
	Password string
	Timeout  time.Duration
	Headers  map[string]string
	MaxRows  int
}

// Writer inserts scored events into ClickHouse via HTTP JSONEachRow.
type Writer struct {
	base    string
	query   string
	headers map[string]string
	maxRows int
	client  *http.Client
}

// NewWriter creates a ClickHouse HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "scored_events"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}

	headers := map[string]string{}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Username != "" {
		headers["X-ClickHouse-User"] = cfg.Username
	}
	if cfg.Password != "" {
		headers["X-ClickHouse-Key"] = cfg.Password
	}

	return &Writer{
		base:    strings.TrimRight(cfg.URL, "/") + "/",
		query:   fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", quoteIdent(cfg.Database), quoteIdent(cfg.Table)),
		headers: headers,
		maxRows: maxRows,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// WriteEvents inserts one row per scored event. Rows are grouped by chain,
// keeping event order within a chain, and split into inserts of at most
// MaxRows. Each insert carries a deduplication token derived from its
// event IDs, so a retried batch is not stored twice.
func (w *Writer) WriteEvents(events []*models.ScoredEvent) error {
	rows := make([]models.EventRow, 0, len(events))
	for _, se := range events {
		if se == nil || se.Event == nil {
			continue
		}
		rows = append(rows, *models.NewEventRow(se))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ChainID < rows[j].ChainID
	})

	for start := 0; start < len(rows); start += w.maxRows {
		end := start + w.maxRows
		if end > len(rows) {
			end = len(rows)
		}
		if err := w.insert(rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) insert(rows []models.EventRow) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("marshal event row: %w", err)
		}
	}

	params := url.Values{}
	params.Set("query", w.query)
	params.Set("insert_deduplication_token", dedupToken(rows))
	req, err := http.NewRequest(http.MethodPost, w.base+"?"+params.Encode(), &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("clickhouse insert of %d rows failed with status %s: %s", len(rows), resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

func dedupToken(rows []models.EventRow) string {
	d := xxhash.New()
	for _, row := range rows {
		d.WriteString(row.ChainID)
		d.WriteString("/")
		d.WriteString(row.EventID)
		d.WriteString("\n")
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// Close releases resources.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

func quoteIdent(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "`", "")
	return "`" + v + "`"
}
