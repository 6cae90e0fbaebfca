package entity

import (
	"strings"

	"threatchain/pkg/models"
)

// Extract returns the identity tokens of an event. Lookup order is user,
// host, process, session, then source and destination IP. Absent or empty
// fields are skipped.
func Extract(event *models.Event) models.EntitySet {
	if event == nil {
		return nil
	}
	tokens := make([]models.EntityToken, 0, 6)
	add := func(kind models.EntityKind, value string) {
		if t := models.NewEntityToken(kind, value); t != "" {
			tokens = append(tokens, t)
		}
	}

	add(models.EntityUser, event.Field("user"))
	host := event.Field("host")
	add(models.EntityHost, host)
	add(models.EntityProcess, processValue(host, event))
	add(models.EntitySession, event.Field("session_id"))
	add(models.EntityIP, event.Field("source_ip"))
	add(models.EntityIP, event.Field("dest_ip"))

	return models.NewEntitySet(tokens...)
}

// processValue prefers the globally unique GUID. A bare PID is scoped to
// its host since PIDs are recycled across machines.
func processValue(host string, event *models.Event) string {
	if guid := event.Field("process_guid"); guid != "" {
		return strings.Trim(guid, "{}")
	}
	pid := event.Field("process_id")
	if pid == "" {
		return ""
	}
	if host == "" {
		return pid
	}
	return host + "/" + pid
}

// Matches reports whether the set contains the central entity. A bare value
// without a kind prefix matches any token carrying that value.
func Matches(set models.EntitySet, central string) bool {
	central = strings.ToLower(strings.TrimSpace(central))
	if central == "" {
		return false
	}
	if strings.Contains(central, ":") {
		if set.Contains(models.EntityToken(central)) {
			return true
		}
	}
	for _, t := range set {
		if t.Value() == central {
			return true
		}
	}
	return false
}

// Normalize canonicalizes a caller-supplied central entity.
func Normalize(central string) models.EntityToken {
	central = strings.ToLower(strings.TrimSpace(central))
	if central == "" {
		return ""
	}
	idx := strings.Index(central, ":")
	if idx > 0 {
		switch models.EntityKind(central[:idx]) {
		case models.EntityUser, models.EntityHost, models.EntityProcess, models.EntitySession, models.EntityIP:
			return models.NewEntityToken(models.EntityKind(central[:idx]), central[idx+1:])
		}
	}
	return models.EntityToken(central)
}
