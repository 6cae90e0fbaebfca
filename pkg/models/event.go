package models

import (
	"fmt"
	"strings"
	"time"
)

// TimeStatus tags the outcome of timestamp parsing for one event.
type TimeStatus string

const (
	TimeParsed      TimeStatus = "parsed"
	TimeUnparseable TimeStatus = "unparseable"
	TimeMissing     TimeStatus = "missing"
)

// Event represents one row of SIEM telemetry.
type Event struct {
	ID         string                 `json:"id"`
	Seq        int                    `json:"seq"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
	TimeStatus TimeStatus             `json:"time_status"`
	Fields     map[string]interface{} `json:"fields"`
	IoaTags    []IoaTag               `json:"ioa_tags,omitempty"`
}

// HasTime reports whether the event carries a usable timestamp.
func (e *Event) HasTime() bool {
	return e != nil && e.TimeStatus == TimeParsed && !e.Timestamp.IsZero()
}

// Field returns a field value.
func (e *Event) Field(name string) string {
	if e == nil || e.Fields == nil {
		return ""
	}
	if v, ok := e.Fields[name]; ok {
		return strings.TrimSpace(stringify(v))
	}
	return ""
}

// FirstField returns the first non-empty value among names.
func (e *Event) FirstField(names ...string) string {
	for _, name := range names {
		if v := e.Field(name); v != "" {
			return v
		}
	}
	return ""
}

// Bool reports whether a field holds a truthy value.
func (e *Event) Bool(name string) bool {
	if e == nil || e.Fields == nil {
		return false
	}
	switch v := e.Fields[name].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y":
			return true
		}
	}
	return false
}

// Tactic returns the event tactic, falling back to the first tagged tactic.
func (e *Event) Tactic() string {
	if v := e.Field("tactic"); v != "" {
		return v
	}
	if e == nil {
		return ""
	}
	for _, tag := range e.IoaTags {
		if t := strings.TrimSpace(tag.Tactic); t != "" {
			return t
		}
	}
	return ""
}

// Technique returns the event technique, falling back to the first tagged technique.
func (e *Event) Technique() string {
	if v := e.Field("technique"); v != "" {
		return v
	}
	if e == nil {
		return ""
	}
	for _, tag := range e.IoaTags {
		if t := strings.TrimSpace(tag.Technique); t != "" {
			return t
		}
	}
	return ""
}

// CommandLine returns the command line field.
func (e *Event) CommandLine() string {
	return e.Field("command_line")
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%f", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}
