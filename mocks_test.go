package faultline

import (
	"testing"
	"time"
)

func TestMockTransportRecordsEvents(t *testing.T) {
	transport := &MockTransport{}

	first := NewEvent()
	second := NewEvent()
	result := transport.SendEvent(first)
	transport.SendEvent(second)

	assertEqual(t, result.Status, SendSuccess)
	events := transport.Events()
	if len(events) != 2 || events[0] != first || events[1] != second {
		t.Errorf("events not recorded in order: %v", events)
	}
}

func TestMockTransportFlushCount(t *testing.T) {
	transport := &MockTransport{}
	transport.Flush(time.Second)
	transport.Flush(time.Second)
	assertEqual(t, transport.FlushCount(), 2)
}

func TestMockScopeApplyToEvent(t *testing.T) {
	scope := &MockScope{}
	event := NewEvent()

	got := scope.ApplyToEvent(event, nil)
	if got != event || !scope.applyCalled {
		t.Error("ApplyToEvent did not pass the event through")
	}

	scope.shouldDrop = true
	if scope.ApplyToEvent(event, nil) != nil {
		t.Error("ApplyToEvent did not drop the event")
	}
}
