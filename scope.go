package faultline

import (
	"time"
)

// EventProcessor is a function that processes an event. Event processors are
// used to change an event before it is sent. Returning nil drops the event.
type EventProcessor func(event *Event, hint *EventHint) *Event

// EventModifier is the interface that wraps the ApplyToEvent method.
//
// ApplyToEvent changes an event based on external data and/or an event hint.
type EventModifier interface {
	ApplyToEvent(event *Event, hint *EventHint) *Event
}

// Scope holds contextual data for the current unit of execution, such as
// breadcrumbs, tags, the active span and the user, to be sent together with
// events captured while the scope is current.
//
// A Scope is owned by the goroutine that owns its Hub and must not be mutated
// concurrently; hand an independent clone to every concurrent unit of work
// (see Hub.Clone).
type Scope struct {
	breadcrumbs     []*Breadcrumb
	user            User
	tags            map[string]string
	contexts        map[string]interface{}
	extra           map[string]interface{}
	fingerprint     []string
	level           Level
	transaction     string
	span            *Span
	request         *Request
	eventProcessors []EventProcessor
}

// NewScope creates a new Scope.
func NewScope() *Scope {
	return &Scope{
		breadcrumbs: make([]*Breadcrumb, 0),
		tags:        make(map[string]string),
		contexts:    make(map[string]interface{}),
		extra:       make(map[string]interface{}),
		fingerprint: make([]string, 0),
	}
}

// AddBreadcrumb adds a breadcrumb to the current scope. The scope holds at most
// limit breadcrumbs; when the limit is exceeded the oldest breadcrumb is
// evicted first.
func (scope *Scope) AddBreadcrumb(breadcrumb *Breadcrumb, limit int) {
	if breadcrumb.Timestamp.IsZero() {
		breadcrumb.Timestamp = time.Now()
	}

	breadcrumbs := append(scope.breadcrumbs, breadcrumb)
	if len(breadcrumbs) > limit {
		// Keep the newest limit entries. The limit can shrink between calls
		// when the client options change, so the excess may be more than one.
		breadcrumbs = breadcrumbs[len(breadcrumbs)-limit:]
	}
	scope.breadcrumbs = breadcrumbs
}

// ClearBreadcrumbs clears all breadcrumbs from the current scope.
func (scope *Scope) ClearBreadcrumbs() {
	scope.breadcrumbs = []*Breadcrumb{}
}

// Breadcrumbs returns the breadcrumbs currently held by the scope, oldest
// first.
func (scope *Scope) Breadcrumbs() []*Breadcrumb {
	return scope.breadcrumbs
}

// SetUser sets the user for the current scope.
func (scope *Scope) SetUser(user User) {
	scope.user = user
}

// SetRequest sets the request for the current scope.
func (scope *Scope) SetRequest(request *Request) {
	scope.request = request
}

// SetTag adds a tag to the current scope.
func (scope *Scope) SetTag(key, value string) {
	scope.tags[key] = value
}

// SetTags assigns multiple tags to the current scope.
func (scope *Scope) SetTags(tags map[string]string) {
	for k, v := range tags {
		scope.tags[k] = v
	}
}

// RemoveTag removes a tag from the current scope.
func (scope *Scope) RemoveTag(key string) {
	delete(scope.tags, key)
}

// SetContext adds a context to the current scope.
func (scope *Scope) SetContext(key string, value interface{}) {
	scope.contexts[key] = value
}

// RemoveContext removes a context from the current scope.
func (scope *Scope) RemoveContext(key string) {
	delete(scope.contexts, key)
}

// SetExtra adds an extra to the current scope.
func (scope *Scope) SetExtra(key string, value interface{}) {
	scope.extra[key] = value
}

// SetExtras assigns multiple extras to the current scope.
func (scope *Scope) SetExtras(extra map[string]interface{}) {
	for k, v := range extra {
		scope.extra[k] = v
	}
}

// RemoveExtra removes an extra from the current scope.
func (scope *Scope) RemoveExtra(key string) {
	delete(scope.extra, key)
}

// SetFingerprint sets new fingerprint for the current scope.
func (scope *Scope) SetFingerprint(fingerprint []string) {
	scope.fingerprint = fingerprint
}

// SetLevel sets new level for the current scope.
func (scope *Scope) SetLevel(level Level) {
	scope.level = level
}

// SetTransaction sets the transaction name for the current scope.
func (scope *Scope) SetTransaction(name string) {
	scope.transaction = name
}

// Transaction returns the transaction name for the current scope.
func (scope *Scope) Transaction() string {
	return scope.transaction
}

// SetSpan sets the active span for the current scope. The active transaction,
// if any, is the root of the span's tree.
func (scope *Scope) SetSpan(span *Span) {
	scope.span = span
}

// GetSpan returns the active span of the current scope, or nil.
func (scope *Scope) GetSpan() *Span {
	return scope.span
}

// GetTransaction returns the root span of the scope's active span tree, or nil
// when no transaction is in flight.
func (scope *Scope) GetTransaction() *Span {
	if scope.span == nil {
		return nil
	}
	return scope.span.GetTransaction()
}

// Clear removes all data from the current scope.
func (scope *Scope) Clear() {
	*scope = *NewScope()
}

// Clone returns a copy of the current scope with all mutable collections
// deep-copied, so that mutating the clone never affects the original. This is
// what makes nested scopes and per-goroutine hubs independent.
func (scope *Scope) Clone() *Scope {
	clone := NewScope()
	clone.user = scope.user
	clone.breadcrumbs = make([]*Breadcrumb, len(scope.breadcrumbs))
	copy(clone.breadcrumbs, scope.breadcrumbs)
	for key, value := range scope.tags {
		clone.tags[key] = value
	}
	for key, value := range scope.contexts {
		clone.contexts[key] = value
	}
	for key, value := range scope.extra {
		clone.extra[key] = value
	}
	clone.fingerprint = make([]string, len(scope.fingerprint))
	copy(clone.fingerprint, scope.fingerprint)
	clone.level = scope.level
	clone.transaction = scope.transaction
	clone.span = scope.span
	clone.request = scope.request
	clone.eventProcessors = append(clone.eventProcessors, scope.eventProcessors...)
	return clone
}

// AddEventProcessor adds an event processor to the current scope.
func (scope *Scope) AddEventProcessor(processor EventProcessor) {
	scope.eventProcessors = append(scope.eventProcessors, processor)
}

// ApplyToEvent takes the data from the current scope and attaches it to the
// event.
func (scope *Scope) ApplyToEvent(event *Event, hint *EventHint) *Event {
	if len(scope.breadcrumbs) > 0 {
		event.Breadcrumbs = append(event.Breadcrumbs, scope.breadcrumbs...)
	}

	if len(scope.tags) > 0 {
		if event.Tags == nil {
			event.Tags = make(map[string]string, len(scope.tags))
		}
		for key, value := range scope.tags {
			event.Tags[key] = value
		}
	}

	if len(scope.contexts) > 0 {
		if event.Contexts == nil {
			event.Contexts = make(map[string]interface{})
		}
		for key, value := range scope.contexts {
			if key == "trace" && event.Type == transactionType {
				// The trace context of a transaction is set by the
				// transaction itself.
				continue
			}
			event.Contexts[key] = value
		}
	}

	if scope.span != nil {
		if _, ok := event.Contexts["trace"]; !ok {
			if event.Contexts == nil {
				event.Contexts = make(map[string]interface{})
			}
			event.Contexts["trace"] = scope.span.traceContext()
		}
	}

	if len(scope.extra) > 0 {
		if event.Extra == nil {
			event.Extra = make(map[string]interface{}, len(scope.extra))
		}
		for key, value := range scope.extra {
			event.Extra[key] = value
		}
	}

	if event.User.IsEmpty() {
		event.User = scope.user
	}

	if len(event.Fingerprint) == 0 && len(scope.fingerprint) > 0 {
		event.Fingerprint = append(event.Fingerprint, scope.fingerprint...)
	}

	if scope.level != "" {
		event.Level = scope.level
	}

	if scope.transaction != "" && event.Transaction == "" {
		event.Transaction = scope.transaction
	}

	if scope.request != nil && event.Request == nil {
		event.Request = scope.request
	}

	for _, processor := range scope.eventProcessors {
		event = processor(event, hint)
		if event == nil {
			return nil
		}
	}

	return event
}
