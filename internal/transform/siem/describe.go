package siem

import (
	"sort"
	"strings"

	"threatchain/pkg/models"
)

// Event types reported by EventType.
const (
	TypeNetwork  = "network"
	TypeProcess  = "process"
	TypeAuth     = "auth"
	TypeFile     = "file"
	TypeRegistry = "registry"
	TypeOther    = "other"
)

const (
	maxLabelLen     = 50
	maxLabelPartLen = 20
	maxLabelParts   = 3
)

var typeFields = []struct {
	kind   string
	fields []string
}{
	{TypeNetwork, []string{"source_ip", "dest_ip", "source_port", "dest_port"}},
	{TypeProcess, []string{"process_name", "process_id", "process_guid", "command_line", "parent_process_name"}},
	{TypeAuth, []string{"user", "logon_type", "session_id"}},
	{TypeFile, []string{"file_path", "file_extension"}},
	{TypeRegistry, []string{"registry_key", "registry_value"}},
}

var labelFields = []string{"event_desc", "description", "message", "event_message", "command_line", "process_name"}

// EventType classifies an event by the canonical fields it carries.
func EventType(ev *models.Event) string {
	if ev == nil {
		return TypeOther
	}
	for _, tf := range typeFields {
		for _, f := range tf.fields {
			if present(ev.Fields, f) {
				return tf.kind
			}
		}
	}
	return TypeOther
}

// Label builds a short human-readable label for an event.
func Label(ev *models.Event) string {
	if ev == nil {
		return ""
	}
	for _, f := range labelFields {
		if v := ev.Field(f); v != "" {
			return truncate(v, maxLabelLen)
		}
	}

	switch EventType(ev) {
	case TypeNetwork:
		src, dst := ev.Field("source_ip"), ev.Field("dest_ip")
		if src != "" && dst != "" {
			return "Network: " + src + " -> " + dst
		}
	case TypeAuth:
		if user := ev.Field("user"); user != "" {
			return "Auth: " + user
		}
	case TypeFile:
		if path := ev.Field("file_path"); path != "" {
			return "File: " + baseName(path)
		}
	case TypeRegistry:
		if key := ev.Field("registry_key"); key != "" {
			return "Registry: " + truncate(key, maxLabelLen)
		}
	}

	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		if strings.HasPrefix(k, "_") || k == "timestamp" || k == "time" || k == "@timestamp" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, maxLabelParts)
	for _, k := range keys {
		v := ev.Field(k)
		if v == "" {
			continue
		}
		parts = append(parts, k+":"+truncate(v, maxLabelPartLen))
		if len(parts) == maxLabelParts {
			break
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " | ")
	}
	if ev.HasTime() {
		return "Event " + ev.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	}
	return "Event " + ev.ID
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func baseName(path string) string {
	if idx := strings.LastIndexAny(path, `\/`); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
