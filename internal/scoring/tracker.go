package scoring

import "threatchain/pkg/models"

// Tracker records entities seen during one analysis call.
type Tracker struct {
	seen map[models.EntityToken]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[models.EntityToken]struct{})}
}

// Observe records tokens and reports whether any was new. A nil tracker
// never reports new tokens.
func (t *Tracker) Observe(set models.EntitySet) bool {
	if t == nil {
		return false
	}
	fresh := false
	for _, tok := range set {
		if _, ok := t.seen[tok]; ok {
			continue
		}
		t.seen[tok] = struct{}{}
		fresh = true
	}
	return fresh
}

// Len returns the number of distinct tokens seen.
func (t *Tracker) Len() int {
	if t == nil {
		return 0
	}
	return len(t.seen)
}
