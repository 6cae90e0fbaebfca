package models

import (
	"sort"
	"strings"
)

// EntityKind names the class of an identity token.
type EntityKind string

const (
	EntityUser    EntityKind = "user"
	EntityHost    EntityKind = "host"
	EntityProcess EntityKind = "process"
	EntitySession EntityKind = "session"
	EntityIP      EntityKind = "ip"
)

// EntityToken is a canonical identity token such as "user:alice".
type EntityToken string

// NewEntityToken builds a token from a kind and a raw value.
func NewEntityToken(kind EntityKind, value string) EntityToken {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	return EntityToken(string(kind) + ":" + value)
}

// Kind returns the token kind.
func (t EntityToken) Kind() EntityKind {
	s := string(t)
	idx := strings.Index(s, ":")
	if idx <= 0 {
		return ""
	}
	return EntityKind(s[:idx])
}

// Value returns the token value without its kind prefix.
func (t EntityToken) Value() string {
	s := string(t)
	idx := strings.Index(s, ":")
	if idx < 0 {
		return s
	}
	return s[idx+1:]
}

// EntitySet is a sorted, duplicate-free set of tokens.
type EntitySet []EntityToken

// NewEntitySet builds a set from tokens, dropping empties and duplicates.
func NewEntitySet(tokens ...EntityToken) EntitySet {
	if len(tokens) == 0 {
		return nil
	}
	out := make(EntitySet, 0, len(tokens))
	seen := make(map[EntityToken]struct{}, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Contains reports whether the set holds t.
func (s EntitySet) Contains(t EntityToken) bool {
	idx := sort.Search(len(s), func(i int) bool { return s[i] >= t })
	return idx < len(s) && s[idx] == t
}

// Shared returns the number of tokens present in both sets.
func (s EntitySet) Shared(other EntitySet) int {
	n := 0
	i, j := 0, 0
	for i < len(s) && j < len(other) {
		switch {
		case s[i] == other[j]:
			n++
			i++
			j++
		case s[i] < other[j]:
			i++
		default:
			j++
		}
	}
	return n
}

// Overlap is the Jaccard index of two sets.
func (s EntitySet) Overlap(other EntitySet) float64 {
	shared := s.Shared(other)
	if shared == 0 {
		return 0
	}
	union := len(s) + len(other) - shared
	return float64(shared) / float64(union)
}
