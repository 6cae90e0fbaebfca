package siem

import (
	"strings"
	"testing"

	"threatchain/pkg/models"
)

func TestEventTypeByFields(t *testing.T) {
	cases := []struct {
		fields map[string]interface{}
		want   string
	}{
		{map[string]interface{}{"dest_ip": "10.0.0.5", "process_name": "x.exe"}, TypeNetwork},
		{map[string]interface{}{"command_line": "whoami"}, TypeProcess},
		{map[string]interface{}{"user": "alice", "logon_type": "3"}, TypeAuth},
		{map[string]interface{}{"file_path": `C:\tmp\a.ps1`}, TypeFile},
		{map[string]interface{}{"registry_key": `HKLM\Run`}, TypeRegistry},
		{map[string]interface{}{"foo": "bar"}, TypeOther},
	}
	for _, c := range cases {
		if got := EventType(&models.Event{Fields: c.fields}); got != c.want {
			t.Fatalf("fields %v: got %s want %s", c.fields, got, c.want)
		}
	}
}

func TestLabelPrefersCommandLine(t *testing.T) {
	ev := &models.Event{Fields: map[string]interface{}{
		"command_line": strings.Repeat("a", 80),
		"process_name": "cmd.exe",
	}}
	label := Label(ev)
	if len(label) != maxLabelLen || !strings.HasSuffix(label, "...") {
		t.Fatalf("expected truncated command line, got %q", label)
	}
}

func TestLabelFallbacks(t *testing.T) {
	file := &models.Event{Fields: map[string]interface{}{"file_path": `C:\Users\bob\evil.dll`}}
	if got := Label(file); got != "File: evil.dll" {
		t.Fatalf("unexpected file label %q", got)
	}
	net := &models.Event{Fields: map[string]interface{}{"source_ip": "10.0.0.1", "dest_ip": "10.0.0.2"}}
	if got := Label(net); got != "Network: 10.0.0.1 -> 10.0.0.2" {
		t.Fatalf("unexpected network label %q", got)
	}
	generic := &models.Event{Fields: map[string]interface{}{"zeta": "1", "alpha": "2", "beta": "3", "gamma": "4"}}
	if got := Label(generic); got != "alpha:2 | beta:3 | gamma:4" {
		t.Fatalf("unexpected generic label %q", got)
	}
	empty := &models.Event{ID: "evt-1", Fields: map[string]interface{}{}}
	if got := Label(empty); got != "Event evt-1" {
		t.Fatalf("unexpected empty label %q", got)
	}
}
