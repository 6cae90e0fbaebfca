package entity

import (
	"reflect"
	"testing"

	"threatchain/pkg/models"
)

func TestExtractAllKinds(t *testing.T) {
	ev := &models.Event{Fields: map[string]interface{}{
		"user":         " Alice ",
		"host":         "WS01",
		"process_guid": "{ABC-1}",
		"process_id":   4242,
		"session_id":   "0x3e7",
		"source_ip":    "10.0.0.1",
		"dest_ip":      "10.0.0.2",
	}}
	got := Extract(ev)
	want := models.NewEntitySet(
		"user:alice",
		"host:ws01",
		"process:abc-1",
		"session:0x3e7",
		"ip:10.0.0.1",
		"ip:10.0.0.2",
	)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestExtractScopesPIDToHost(t *testing.T) {
	ev := &models.Event{Fields: map[string]interface{}{"host": "ws01", "process_id": float64(88)}}
	if !Extract(ev).Contains("process:ws01/88") {
		t.Fatalf("expected host-scoped pid token, got %v", Extract(ev))
	}
}

func TestExtractSkipsEmptyFields(t *testing.T) {
	ev := &models.Event{Fields: map[string]interface{}{"user": "", "host": nil, "command_line": "whoami"}}
	if set := Extract(ev); len(set) != 0 {
		t.Fatalf("expected no tokens, got %v", set)
	}
	if Extract(nil) != nil {
		t.Fatalf("expected nil set for nil event")
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	ev := &models.Event{Fields: map[string]interface{}{"user": "bob", "dest_ip": "1.1.1.1", "host": "h"}}
	a, b := Extract(ev), Extract(ev)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("non deterministic: %v vs %v", a, b)
	}
}

func TestMatchesCentralEntity(t *testing.T) {
	set := models.NewEntitySet("user:alice", "host:ws01")
	if !Matches(set, "user:Alice") {
		t.Fatalf("expected token match")
	}
	if !Matches(set, "ws01") {
		t.Fatalf("expected bare value match")
	}
	if Matches(set, "host:alice") {
		t.Fatalf("expected kind mismatch to fail")
	}
	if Matches(set, "") {
		t.Fatalf("expected empty central to fail")
	}
}

func TestNormalize(t *testing.T) {
	if Normalize(" USER:Alice ") != "user:alice" {
		t.Fatalf("unexpected normalization %q", Normalize(" USER:Alice "))
	}
	if Normalize("WS01") != "ws01" {
		t.Fatalf("unexpected bare normalization")
	}
}
