package siem

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"threatchain/pkg/models"
)

// TimeResult is the tagged outcome of timestamp parsing.
type TimeResult struct {
	Time   time.Time
	Status models.TimeStatus
}

// OK reports whether the value parsed.
func (r TimeResult) OK() bool {
	return r.Status == models.TimeParsed
}

// zoned layouts carry their own offset; local layouts are read as UTC.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	time.RFC1123Z,
	time.RFC1123,
}

var localLayouts = []string{
	"2006-01-02 15:04:05.000000000",
	"2006-01-02 15:04:05.0000000",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
	"2006/01/02 15:04:05",
}

// Epoch values above these bounds are read as milli-, micro- or nanoseconds.
const (
	epochMillisBound = 1e11
	epochMicrosBound = 1e14
	epochNanosBound  = 1e17
)

// ParseTimestamp parses a timestamp value. Numbers and digit strings are
// read as epoch time; strings are tried against an ordered layout list.
func ParseTimestamp(v interface{}) TimeResult {
	switch val := v.(type) {
	case nil:
		return TimeResult{Status: models.TimeMissing}
	case time.Time:
		if val.IsZero() {
			return TimeResult{Status: models.TimeMissing}
		}
		return TimeResult{Time: val.UTC(), Status: models.TimeParsed}
	case float64:
		return fromEpoch(val)
	case int:
		return fromEpoch(float64(val))
	case int64:
		return fromEpoch(float64(val))
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return TimeResult{Status: models.TimeUnparseable}
		}
		return fromEpoch(f)
	case string:
		return parseTimeString(val)
	default:
		return TimeResult{Status: models.TimeUnparseable}
	}
}

func parseTimeString(value string) TimeResult {
	value = strings.TrimSpace(value)
	if value == "" {
		return TimeResult{Status: models.TimeMissing}
	}
	if isNumeric(value) {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return fromEpoch(f)
		}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return TimeResult{Time: t.UTC(), Status: models.TimeParsed}
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return TimeResult{Time: t.UTC(), Status: models.TimeParsed}
		}
	}
	return TimeResult{Status: models.TimeUnparseable}
}

func fromEpoch(f float64) TimeResult {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return TimeResult{Status: models.TimeUnparseable}
	}
	var t time.Time
	switch {
	case f >= epochNanosBound:
		t = time.Unix(0, int64(f))
	case f >= epochMicrosBound:
		t = time.UnixMicro(int64(f))
	case f >= epochMillisBound:
		t = time.UnixMilli(int64(f))
	default:
		sec, frac := math.Modf(f)
		t = time.Unix(int64(sec), int64(math.Round(frac*1e9)))
	}
	return TimeResult{Time: t.UTC(), Status: models.TimeParsed}
}

func isNumeric(s string) bool {
	dot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !dot && i > 0:
			dot = true
		default:
			return false
		}
	}
	return true
}
