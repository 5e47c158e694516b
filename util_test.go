package faultline

import (
	"regexp"
	"testing"
)

func TestNewEventID(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{32}$`)

	seen := make(map[EventID]struct{})
	for i := 0; i < 100; i++ {
		id := newEventID()
		if !pattern.MatchString(string(id)) {
			t.Fatalf("malformed event id: %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate event id: %q", id)
		}
		seen[id] = struct{}{}
	}
}
