package siem

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"threatchain/pkg/models"
)

// eventDataPrefix is where winlogbeat nests the Sysmon/Security payload.
const eventDataPrefix = "winlog.event_data."

// timestampFields are consulted in order; the first present one decides.
var timestampFields = []string{
	"UtcTime",
	"@timestamp",
	"timestamp",
	"_time",
	"time",
	"event.created",
	"TimeCreated",
}

type alias struct {
	canonical string
	names     []string
}

// aliases maps SIEM vendor field names onto canonical names. The first
// alias present wins; the remaining ones are left untouched.
var aliases = []alias{
	{"user", []string{"User", "user.name", "UserName", "TargetUserName", "SubjectUserName", "user_name"}},
	{"host", []string{"Computer", "host.name", "host.hostname", "hostname", "ComputerName", "agent.hostname"}},
	{"process_guid", []string{"ProcessGuid", "process.entity_id", "SourceProcessGuid"}},
	{"process_id", []string{"ProcessId", "process.pid", "pid", "SourceProcessId"}},
	{"session_id", []string{"LogonId", "TargetLogonId", "SessionId", "session.id", "logon_id"}},
	{"source_ip", []string{"src_ip", "SourceIp", "source.ip", "IpAddress", "src"}},
	{"dest_ip", []string{"DestinationIp", "destination.ip", "dst_ip", "dst", "destination_ip"}},
	{"source_port", []string{"src_port", "SourcePort", "source.port"}},
	{"dest_port", []string{"dest_port", "DestinationPort", "destination.port", "destination_port"}},
	{"process_name", []string{"Image", "process.executable", "process.name", "NewProcessName", "SourceImage"}},
	{"command_line", []string{"CommandLine", "process.command_line", "cmdline"}},
	{"parent_process_name", []string{"ParentImage", "process.parent.executable"}},
	{"parent_process_id", []string{"ParentProcessId", "process.parent.pid"}},
	{"parent_command_line", []string{"ParentCommandLine", "process.parent.command_line"}},
	{"current_directory", []string{"CurrentDirectory"}},
	{"integrity_level", []string{"IntegrityLevel"}},
	{"target_process", []string{"TargetImage"}},
	{"file_path", []string{"TargetFilename", "TargetFileName", "file.path", "ImageLoaded"}},
	{"file_extension", []string{"TargetExtension", "file.extension"}},
	{"registry_key", []string{"TargetObject", "registry.path"}},
	{"registry_value", []string{"Details", "registry.data.strings"}},
	{"event_code", []string{"winlog.event_id", "event.code", "EventID", "event_id"}},
	{"logon_type", []string{"LogonType"}},
	{"domain", []string{"TargetDomainName", "SubjectDomainName", "user.domain"}},
	{"tactic", []string{"threat.tactic.name", "mitre_tactic"}},
	{"technique", []string{"threat.technique.id", "mitre_technique", "technique_id"}},
}

// Parse decodes one JSON telemetry row into an Event. The event is not
// finalized; call Finalize on the batch to assign Seq and ID.
func Parse(data []byte) (*models.Event, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return FromMap(raw), nil
}

// FromMap normalizes an already decoded row. Nested objects are flattened
// into dotted keys and vendor aliases are mapped to canonical names.
func FromMap(raw map[string]interface{}) *models.Event {
	fields := make(map[string]interface{}, len(raw))
	flatten("", raw, fields)

	for k, v := range fields {
		if strings.HasPrefix(k, eventDataPrefix) {
			short := strings.TrimPrefix(k, eventDataPrefix)
			if _, exists := fields[short]; !exists {
				fields[short] = v
			}
			delete(fields, k)
		}
	}

	event := &models.Event{Fields: fields}
	event.Timestamp, event.TimeStatus = pickTimestamp(fields)

	for _, a := range aliases {
		if present(fields, a.canonical) {
			continue
		}
		for _, name := range a.names {
			if !present(fields, name) {
				continue
			}
			fields[a.canonical] = fields[name]
			delete(fields, name)
			break
		}
	}

	if tags, ok := raw["ioa_tags"]; ok {
		event.IoaTags = decodeTags(tags)
		delete(fields, "ioa_tags")
	}
	return event
}

func pickTimestamp(fields map[string]interface{}) (t time.Time, status models.TimeStatus) {
	status = models.TimeMissing
	for _, name := range timestampFields {
		v, ok := fields[name]
		if !ok {
			continue
		}
		res := ParseTimestamp(v)
		switch res.Status {
		case models.TimeParsed:
			return res.Time, models.TimeParsed
		case models.TimeUnparseable:
			status = models.TimeUnparseable
		}
	}
	return t, status
}

func flatten(prefix string, in map[string]interface{}, out map[string]interface{}) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok && len(nested) > 0 {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

func present(fields map[string]interface{}, name string) bool {
	v, ok := fields[name]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func decodeTags(v interface{}) []models.IoaTag {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var tags []models.IoaTag
	if err := json.Unmarshal(b, &tags); err != nil {
		return nil
	}
	return tags
}
