package rules

import (
	"os"
	"path/filepath"
	"testing"

	"threatchain/pkg/models"
)

const mimikatzRule = `title: Mimikatz Command Line
id: 6f2f7ae1-0d5c-4f3b-9d3e-1e0a4a2d9c11
level: high
tags:
  - attack.credential_access
  - attack.t1003.001
logsource:
  product: windows
  category: process_creation
detection:
  selection:
    CommandLine|contains: sekurlsa
  condition: selection
`

const linuxRule = `title: Shadow Read
id: linux-1
level: medium
logsource:
  product: linux
detection:
  selection:
    command_line|contains: /etc/shadow
  condition: selection
`

const keywordRule = `title: Keyword Hunt
id: kw-1
logsource:
  product: windows
detection:
  keywords:
    - mimikatz
  condition: keywords
`

func writeRules(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"mimikatz.yml": mimikatzRule,
		"linux.yaml":   linuxRule,
		"keyword.yml":  keywordRule,
		"broken.yml":   "title: [unterminated",
		"notes.txt":    "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestSigmaEngineTagsCanonicalFields(t *testing.T) {
	engine, stats, err := NewSigmaEngine(writeRules(t), SigmaOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stats.TotalFiles != 4 || stats.Loaded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.SkippedDatasource != 1 || stats.SkippedComplex != 1 || stats.SkippedInvalid != 1 {
		t.Fatalf("unexpected skip stats: %+v", stats)
	}

	ev := &models.Event{Fields: map[string]interface{}{
		"command_line": "mimikatz.exe sekurlsa::logonpasswords",
	}}
	tags := engine.Apply(ev)
	if len(tags) != 1 {
		t.Fatalf("expected 1 tag, got %+v", tags)
	}
	if tags[0].Tactic != "credential-access" || tags[0].Technique != "T1003.001" || tags[0].Severity != "high" {
		t.Fatalf("unexpected tag %+v", tags[0])
	}

	quiet := &models.Event{Fields: map[string]interface{}{"command_line": "notepad.exe"}}
	if tags := engine.Apply(quiet); tags != nil {
		t.Fatalf("expected no tags, got %+v", tags)
	}
}

func TestSigmaEngineProductFilter(t *testing.T) {
	_, stats, err := NewSigmaEngine(writeRules(t), SigmaOptions{Products: []string{"windows", "linux"}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stats.Loaded != 2 {
		t.Fatalf("expected linux rule accepted, got %+v", stats)
	}
}

func TestApplyTagsOnlyMatchingEvents(t *testing.T) {
	engine, _, err := NewSigmaEngine(writeRules(t), SigmaOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	hit := &models.Event{Fields: map[string]interface{}{"command_line": "sekurlsa::pth"}}
	miss := &models.Event{Fields: map[string]interface{}{"command_line": "whoami"}}
	tags := engine.Apply(hit)
	if len(tags) != 1 {
		t.Fatalf("expected 1 tag, got %+v", tags)
	}
	hit.IoaTags = tags
	if hit.Tactic() != "credential-access" {
		t.Fatalf("expected tactic from tag, got %q", hit.Tactic())
	}
	if len(engine.Apply(miss)) != 0 {
		t.Fatalf("expected no tags for unrelated event")
	}
	if len((&NoopEngine{}).Apply(hit)) != 0 {
		t.Fatalf("noop engine should tag nothing")
	}
}

func TestNewSigmaEngineRejectsNonYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rule.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := NewSigmaEngine(path, SigmaOptions{}); err == nil {
		t.Fatalf("expected error for non-yaml rule file")
	}
}
