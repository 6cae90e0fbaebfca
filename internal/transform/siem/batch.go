package siem

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"threatchain/internal/logger"
	"threatchain/pkg/models"
)

const maxLineSize = 4 * 1024 * 1024

// Finalize assigns insertion order and content-derived IDs to a batch.
// Identical content gets "-2", "-3", ... suffixes in arrival order.
func Finalize(events []*models.Event) []*models.Event {
	out := events[:0]
	for _, ev := range events {
		if ev != nil {
			out = append(out, ev)
		}
	}
	seen := make(map[string]int, len(out))
	for i, ev := range out {
		ev.Seq = i
		if ev.Fields == nil {
			ev.Fields = map[string]interface{}{}
		}
		if ev.TimeStatus == "" {
			ev.TimeStatus = StatusFor(ev.Timestamp)
		}
		base := ContentID(ev.Fields)
		seen[base]++
		if n := seen[base]; n > 1 {
			ev.ID = base + "-" + strconv.Itoa(n)
		} else {
			ev.ID = base
		}
	}
	return out
}

// StatusFor derives the time status of an event built without a parser.
func StatusFor(ts time.Time) models.TimeStatus {
	if ts.IsZero() {
		return models.TimeMissing
	}
	return models.TimeParsed
}

// ContentID hashes the canonical JSON encoding of fields.
func ContentID(fields map[string]interface{}) string {
	b, err := json.Marshal(fields)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", fields))
	}
	return fmt.Sprintf("evt-%016x", xxhash.Sum64(b))
}

// LoadEventsJSONL reads one JSON event per line. Rows that fail to decode
// are logged and skipped.
func LoadEventsJSONL(path string) ([]*models.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var events []*models.Event
	lineNo := 0
	skipped := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		ev, err := Parse(line)
		if err != nil {
			skipped++
			logger.Warnf("Skipping line %d of %s: %v", lineNo, path, err)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read events file: %w", err)
	}
	if skipped > 0 {
		logger.Infof("Loaded %d events from %s (%d skipped)", len(events), path, skipped)
	}
	return Finalize(events), nil
}
