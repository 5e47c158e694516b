package faultline

import (
	"sync"
	"time"
)

// MockScope implements EventModifier for tests that need to observe scope
// application without a real Scope.
type MockScope struct {
	breadcrumb  *Breadcrumb
	shouldDrop  bool
	lastEvent   *Event
	lastHint    *EventHint
	applyCalled bool
}

func (scope *MockScope) AddBreadcrumb(breadcrumb *Breadcrumb, _ int) {
	scope.breadcrumb = breadcrumb
}

func (scope *MockScope) ApplyToEvent(event *Event, hint *EventHint) *Event {
	scope.applyCalled = true
	scope.lastEvent = event
	scope.lastHint = hint
	if scope.shouldDrop {
		return nil
	}
	return event
}

// MockTransport implements Transport. It collects sent events in memory and
// reports every send as successful.
type MockTransport struct {
	mu         sync.Mutex
	events     []*Event
	flushCount int
}

func (t *MockTransport) Configure(ClientOptions) {}

func (t *MockTransport) SendEvent(event *Event) SendResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
	return SendResult{Status: SendSuccess, Event: event}
}

func (t *MockTransport) Flush(time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushCount++
	return true
}

func (t *MockTransport) Close() {}

func (t *MockTransport) Events() []*Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Event(nil), t.events...)
}

func (t *MockTransport) FlushCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushCount
}
