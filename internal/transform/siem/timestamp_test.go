package siem

import (
	"testing"
	"time"

	"threatchain/pkg/models"
)

func TestParseTimestampLayouts(t *testing.T) {
	want := time.Date(2024, 3, 5, 10, 15, 30, 0, time.UTC)
	cases := []interface{}{
		"2024-03-05T10:15:30Z",
		"2024-03-05T12:15:30+02:00",
		"2024-03-05 10:15:30",
		"2024-03-05 10:15:30.000",
		"03/05/2024 10:15:30",
		float64(want.Unix()),
		float64(want.UnixMilli()),
		"1709633730",
	}
	for _, c := range cases {
		res := ParseTimestamp(c)
		if !res.OK() {
			t.Fatalf("expected %v to parse, got %s", c, res.Status)
		}
		if !res.Time.Equal(want) {
			t.Fatalf("value %v parsed as %s, want %s", c, res.Time, want)
		}
	}
}

func TestParseTimestampFractionalSeconds(t *testing.T) {
	res := ParseTimestamp("2024-03-05 10:15:30.1234567")
	if !res.OK() {
		t.Fatalf("expected sysmon UtcTime layout to parse")
	}
	if res.Time.Nanosecond() != 123456700 {
		t.Fatalf("unexpected nanoseconds: %d", res.Time.Nanosecond())
	}
}

func TestParseTimestampTaggedFailures(t *testing.T) {
	if res := ParseTimestamp(nil); res.Status != models.TimeMissing {
		t.Fatalf("expected missing for nil, got %s", res.Status)
	}
	if res := ParseTimestamp("   "); res.Status != models.TimeMissing {
		t.Fatalf("expected missing for blank, got %s", res.Status)
	}
	if res := ParseTimestamp("yesterday at noon"); res.Status != models.TimeUnparseable {
		t.Fatalf("expected unparseable, got %s", res.Status)
	}
	if res := ParseTimestamp(-5.0); res.Status != models.TimeUnparseable {
		t.Fatalf("expected negative epoch to be unparseable, got %s", res.Status)
	}
	if res := ParseTimestamp([]string{"x"}); res.Status != models.TimeUnparseable {
		t.Fatalf("expected unparseable for slice, got %s", res.Status)
	}
}
