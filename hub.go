package faultline

import (
	"context"
	"time"

	"github.com/faultline-hq/faultline-go/internal/debuglog"
)

type contextKey int

// hubContextKey is the key used to store the current Hub on a
// context.Context. There is deliberately no package-level "current hub":
// concurrent units of work each carry their own Hub through their context.
const hubContextKey = contextKey(1)

// A layer binds a client to a scope. Layers are stacked by the Hub: pushing a
// scope pushes a new layer with the current client and a clone of the current
// scope.
type layer struct {
	client *Client
	scope  *Scope
}

type stack []*layer

// Hub is the central point of the SDK. It keeps a stack of client/scope
// layers, exposes the capture operations, and remembers the id of the last
// captured error event.
//
// A Hub is owned by a single unit of execution (a request, a task, a
// goroutine). It is not safe for concurrent mutation; use Clone to derive an
// independent Hub for another goroutine.
type Hub struct {
	stack       *stack
	lastEventID EventID
}

// NewHub returns an instance of a Hub with the provided client and scope as
// its root layer. The root layer can never be popped.
func NewHub(client *Client, scope *Scope) *Hub {
	return &Hub{
		stack: &stack{{
			client: client,
			scope:  scope,
		}},
	}
}

// Clone returns a new Hub that shares the client of the original but works
// with an independent copy of the scope. This is the way to hand a Hub to a
// new goroutine.
func (hub *Hub) Clone() *Hub {
	top := hub.stackTop()
	scope := top.scope
	if scope != nil {
		scope = scope.Clone()
	}
	return NewHub(top.client, scope)
}

// LastEventID returns the id of the last error event captured through this
// hub. Transactions and check-ins do not change it.
func (hub *Hub) LastEventID() EventID {
	return hub.lastEventID
}

func (hub *Hub) stackTop() *layer {
	stack := hub.stack
	if stack == nil || len(*stack) == 0 {
		return nil
	}
	return (*stack)[len(*stack)-1]
}

// Scope returns the scope of the current layer.
func (hub *Hub) Scope() *Scope {
	top := hub.stackTop()
	if top == nil {
		return nil
	}
	return top.scope
}

// Client returns the client of the current layer, or nil when no client is
// bound.
func (hub *Hub) Client() *Client {
	top := hub.stackTop()
	if top == nil {
		return nil
	}
	return top.client
}

// PushScope pushes a new layer whose scope is a clone of the current scope and
// whose client is the current client, and returns the new scope. Mutations of
// the returned scope never affect the scopes below it.
func (hub *Hub) PushScope() *Scope {
	top := hub.stackTop()

	var scope *Scope
	if top.scope != nil {
		scope = top.scope.Clone()
	} else {
		scope = NewScope()
	}

	*hub.stack = append(*hub.stack, &layer{
		client: top.client,
		scope:  scope,
	})

	return scope
}

// PopScope removes the top layer. It reports whether a layer was removed: the
// root layer is permanent for the lifetime of the Hub and popping it is
// refused.
func (hub *Hub) PopScope() bool {
	stack := *hub.stack
	if len(stack) <= 1 {
		return false
	}
	*hub.stack = stack[0 : len(stack)-1]
	return true
}

// BindClient binds a new client to the current layer. Layers below the top are
// unaffected.
func (hub *Hub) BindClient(client *Client) {
	hub.stackTop().client = client
}

// WithScope runs f in an isolated temporary scope.
//
// The scope is popped on every exit path, including a panic inside f, so
// nested scopes can never leak.
func (hub *Hub) WithScope(f func(scope *Scope)) {
	scope := hub.PushScope()
	defer hub.PopScope()
	f(scope)
}

// ConfigureScope runs f with the current scope, without pushing or popping,
// to mutate the current context in place.
func (hub *Hub) ConfigureScope(f func(scope *Scope)) {
	f(hub.Scope())
}

// CaptureEvent calls the method of the same name on currently bound client
// instance, passing it the current scope.
//
// Returns the id of the event when the event was delivered, or nil when no
// client is bound or the event was dropped on the way out. Capturing never
// panics: telemetry must be safe to emit from any code path.
func (hub *Hub) CaptureEvent(event *Event) *EventID {
	client, scope := hub.Client(), hub.Scope()
	if client == nil || scope == nil {
		return nil
	}
	eventID := client.CaptureEvent(event, nil, scope)

	if event != nil && event.Type != transactionType && event.Type != checkInType && eventID != nil {
		hub.lastEventID = *eventID
	}
	return eventID
}

// CaptureMessage calls the method of the same name on currently bound client
// instance, passing it the current scope.
func (hub *Hub) CaptureMessage(message string) *EventID {
	client, scope := hub.Client(), hub.Scope()
	if client == nil || scope == nil {
		return nil
	}
	eventID := client.CaptureMessage(message, nil, scope)

	if eventID != nil {
		hub.lastEventID = *eventID
	}
	return eventID
}

// CaptureException calls the method of the same name on currently bound client
// instance, passing it the current scope.
func (hub *Hub) CaptureException(exception error) *EventID {
	client, scope := hub.Client(), hub.Scope()
	if client == nil || scope == nil {
		return nil
	}
	eventID := client.CaptureException(exception, &EventHint{OriginalException: exception}, scope)

	if eventID != nil {
		hub.lastEventID = *eventID
	}
	return eventID
}

// CaptureCheckIn calls the method of the same name on currently bound client
// instance, passing it the current scope.
//
// Returns the check-in id, generating one when the check-in does not carry
// one, or nil when no client is bound.
func (hub *Hub) CaptureCheckIn(checkIn *CheckIn, monitorConfig *MonitorConfig) *EventID {
	client, scope := hub.Client(), hub.Scope()
	if client == nil || scope == nil {
		return nil
	}
	return client.CaptureCheckIn(checkIn, monitorConfig, scope)
}

// Recover captures a panic value. Recover is the Go shape of "capture the last
// error": it turns the in-flight panic into an error or message event.
func (hub *Hub) Recover(err interface{}) *EventID {
	if err == nil {
		err = recover()
	}
	client, scope := hub.Client(), hub.Scope()
	if client == nil || scope == nil {
		return nil
	}
	eventID := client.Recover(err, &EventHint{RecoveredException: err}, scope)

	if eventID != nil {
		hub.lastEventID = *eventID
	}
	return eventID
}

// RecoverWithContext captures a panic value and passes the context along with
// the event hint for downstream processors.
func (hub *Hub) RecoverWithContext(ctx context.Context, err interface{}) *EventID {
	if err == nil {
		err = recover()
	}
	client, scope := hub.Client(), hub.Scope()
	if client == nil || scope == nil {
		return nil
	}
	eventID := client.RecoverWithContext(ctx, err, &EventHint{RecoveredException: err}, scope)

	if eventID != nil {
		hub.lastEventID = *eventID
	}
	return eventID
}

// AddBreadcrumb records a new breadcrumb on the current scope and reports
// whether it was kept.
//
// The breadcrumb goes through the client's BeforeBreadcrumb callback, which
// may transform or drop it. A MaxBreadcrumbs of zero or less disables
// breadcrumb recording entirely.
func (hub *Hub) AddBreadcrumb(breadcrumb *Breadcrumb, hint *BreadcrumbHint) bool {
	client := hub.Client()
	if client == nil {
		return false
	}

	options := client.options
	limit := options.MaxBreadcrumbs
	if limit <= 0 {
		return false
	}
	if limit > maxBreadcrumbs {
		limit = maxBreadcrumbs
	}

	if options.BeforeBreadcrumb != nil {
		if hint == nil {
			hint = &BreadcrumbHint{}
		}
		if breadcrumb = options.BeforeBreadcrumb(breadcrumb, hint); breadcrumb == nil {
			debuglog.Println("breadcrumb dropped due to BeforeBreadcrumb callback")
			return false
		}
	}

	hub.Scope().AddBreadcrumb(breadcrumb, limit)
	return true
}

// Flush waits until the underlying transport delivered all buffered events or
// the timeout elapsed, whichever comes first. It reports false when events
// were still in flight.
func (hub *Hub) Flush(timeout time.Duration) bool {
	client := hub.Client()
	if client == nil {
		return false
	}
	return client.Flush(timeout)
}

// HasHubOnContext reports whether a Hub is stored on the context.
func HasHubOnContext(ctx context.Context) bool {
	_, ok := ctx.Value(hubContextKey).(*Hub)
	return ok
}

// GetHubFromContext returns the Hub stored on the context, or nil.
func GetHubFromContext(ctx context.Context) *Hub {
	if hub, ok := ctx.Value(hubContextKey).(*Hub); ok {
		return hub
	}
	return nil
}

// SetHubOnContext returns a new context with the Hub attached.
func SetHubOnContext(ctx context.Context, hub *Hub) context.Context {
	return context.WithValue(ctx, hubContextKey, hub)
}
