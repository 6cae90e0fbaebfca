package scoring

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxScore is the upper bound of every suspicion score.
const MaxScore = 100.0

// Indicator is one named suspicious pattern.
type Indicator struct {
	Name    string  `yaml:"name"`
	Pattern string  `yaml:"pattern"`
	Points  float64 `yaml:"points"`

	re *regexp.Regexp
}

// Table holds the ordered indicator list, tactic weights and multipliers.
type Table struct {
	Indicators          []Indicator        `yaml:"indicators"`
	TacticWeights       map[string]float64 `yaml:"tactic_weights"`
	ElevatedMultiplier  float64            `yaml:"elevated_multiplier"`
	FirstSeenMultiplier float64            `yaml:"first_seen_multiplier"`
}

// DefaultTable returns the built-in indicator table.
func DefaultTable() *Table {
	t := &Table{
		Indicators: []Indicator{
			{Name: "lsass_access", Pattern: `(?i)lsass|dumpert|procdump`, Points: 80},
			{Name: "credential_access", Pattern: `(?i)mimikatz|sekurlsa|wdigest`, Points: 75},
			{Name: "powershell_encoding", Pattern: `(?i)encodedcommand|-enc|-e.*\s[A-Za-z0-9+/=]{10,}`, Points: 60},
			{Name: "unusual_process", Pattern: `(?i)cscript|wscript|regsvr32|mshta`, Points: 50},
			{Name: "network_connection", Pattern: `(?i)4444|8080|443.*powershell`, Points: 40},
			{Name: "file_access", Pattern: `(?im)\.exe$|\.dll$|\.ps1$`, Points: 30},
		},
		TacticWeights:       make(map[string]float64, len(DefaultTacticWeights)),
		ElevatedMultiplier:  1.2,
		FirstSeenMultiplier: 1.1,
	}
	for k, v := range DefaultTacticWeights {
		t.TacticWeights[k] = v
	}
	if err := t.compile(); err != nil {
		panic(err)
	}
	return t
}

// LoadTable reads an indicator table from YAML. Omitted sections fall back
// to the defaults.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read indicator table: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse indicator table: %w", err)
	}

	def := DefaultTable()
	if len(t.Indicators) == 0 {
		t.Indicators = def.Indicators
	}
	if len(t.TacticWeights) == 0 {
		t.TacticWeights = def.TacticWeights
	} else {
		weights := make(map[string]float64, len(t.TacticWeights))
		for k, v := range t.TacticWeights {
			weights[NormalizeTactic(k)] = v
		}
		t.TacticWeights = weights
	}
	if t.ElevatedMultiplier == 0 {
		t.ElevatedMultiplier = def.ElevatedMultiplier
	}
	if t.FirstSeenMultiplier == 0 {
		t.FirstSeenMultiplier = def.FirstSeenMultiplier
	}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Table) compile() error {
	for i := range t.Indicators {
		ind := &t.Indicators[i]
		ind.Name = strings.TrimSpace(ind.Name)
		if ind.Name == "" {
			ind.Name = fmt.Sprintf("indicator-%d", i+1)
		}
		if ind.Points < 0 {
			return fmt.Errorf("indicator %s: negative points %v", ind.Name, ind.Points)
		}
		re, err := regexp.Compile(ind.Pattern)
		if err != nil {
			return fmt.Errorf("compile indicator %s: %w", ind.Name, err)
		}
		ind.re = re
	}
	for k, v := range t.TacticWeights {
		if v < 0 {
			return fmt.Errorf("tactic weight %s: negative value %v", k, v)
		}
	}
	if t.ElevatedMultiplier < 0 || t.FirstSeenMultiplier < 0 {
		return fmt.Errorf("multipliers must not be negative")
	}
	return nil
}
