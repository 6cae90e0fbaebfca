package scoring

import (
	"strings"
	"unicode"
)

var tacticOrder = map[string]int{
	"initial-access":       1,
	"execution":            2,
	"persistence":          3,
	"privilege-escalation": 4,
	"defense-evasion":      5,
	"credential-access":    6,
	"discovery":            7,
	"lateral-movement":     8,
	"collection":           9,
	"command-and-control":  10,
	"exfiltration":         11,
	"impact":               12,
}

// DefaultTacticWeights is the base bonus per high-risk tactic.
var DefaultTacticWeights = map[string]float64{
	"credential-access":    40,
	"defense-evasion":      40,
	"execution":            30,
	"persistence":          30,
	"privilege-escalation": 30,
	"lateral-movement":     20,
}

// NormalizeTactic folds case, underscores, spaces and camel case into the
// kebab-case ATT&CK form, e.g. "CredentialAccess" -> "credential-access".
func NormalizeTactic(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(v) + 4)
	var prev rune
	lastDash := true
	for _, r := range v {
		orig := r
		switch {
		case r == '_' || r == ' ' || r == '-':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
			prev = orig
			continue
		case unicode.IsUpper(r):
			if !lastDash && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
		lastDash = false
		prev = orig
	}
	return strings.TrimRight(b.String(), "-")
}

// TacticRank returns the kill-chain position of a tactic, or 0 when unknown.
func TacticRank(v string) int {
	n := NormalizeTactic(v)
	if n == "" {
		return 0
	}
	return tacticOrder[n]
}

// SeverityWeight maps rule severities onto 1..5.
func SeverityWeight(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "critical":
		return 5
	case "high":
		return 4
	case "medium":
		return 3
	case "low":
		return 2
	case "informational", "info":
		return 1
	default:
		return 0
	}
}
