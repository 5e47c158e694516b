package ratelimit

import "time"

// now is time.Now, except in tests that need a deterministic clock.
var now = time.Now

// Map maps categories to rate limit deadlines.
//
// A category is rate limited when either its specific deadline or the
// deadline of the special CategoryAll has not yet expired.
type Map map[Category]Deadline

// IsRateLimited reports whether the category is currently rate limited.
func (m Map) IsRateLimited(c Category) bool {
	return m.Deadline(c).After(Deadline(now()))
}

// Deadline returns the deadline when the rate limit for the given category or
// the special CategoryAll expire, whichever is furthest into the future.
func (m Map) Deadline(c Category) Deadline {
	categoryDeadline := m[c]
	allDeadline := m[CategoryAll]
	if categoryDeadline.After(allDeadline) {
		return categoryDeadline
	}
	return allDeadline
}

// Merge merges the other map into m.
//
// Per-category deadlines only ever move forward: a directive with a shorter
// back-off never shortens an already recorded one.
func (m Map) Merge(other Map) {
	for c, d := range other {
		if d.After(m[c]) {
			m[c] = d
		}
	}
}
