package eventjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"threatchain/internal/logger"
	"threatchain/pkg/models"
)

// Writer outputs scored events to a JSON lines file, one flat row each.
type Writer struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
	rows    int
}

// NewWriter creates a JSONL writer for scored events. The file is truncated.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	logger.Infof("Event JSON writer initialized: %s", path)
	return &Writer{file: f, encoder: json.NewEncoder(f)}, nil
}

// WriteEvents writes a batch of scored events.
func (w *Writer) WriteEvents(events []*models.ScoredEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, se := range events {
		if se == nil {
			continue
		}
		if err := w.encoder.Encode(models.NewEventRow(se)); err != nil {
			return fmt.Errorf("encode event row %s: %w", se.ID(), err)
		}
		w.rows++
	}
	return nil
}

// Rows returns how many rows were written.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Close closes the output file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}
