package faultline

import (
	"context"
	"time"
)

// Init creates a client from the given options and returns a new Hub bound to
// it. The returned Hub is the root of the application's reporting context:
// attach it to a context.Context with SetHubOnContext and derive per-goroutine
// hubs with Clone.
//
// There is no process-global hub. Code that wants to report events receives a
// Hub, directly or through its context.
func Init(options ClientOptions) (*Hub, error) {
	client, err := NewClient(options)
	if err != nil {
		return nil, err
	}
	return NewHub(client, NewScope()), nil
}

// hubFromContext returns the Hub on ctx, or nil. All package-level capture
// functions are safe no-ops on contexts without a Hub.
func hubFromContext(ctx context.Context) *Hub {
	if ctx == nil {
		return nil
	}
	return GetHubFromContext(ctx)
}

// CaptureMessage captures an arbitrary message on the Hub carried by ctx.
func CaptureMessage(ctx context.Context, message string) *EventID {
	hub := hubFromContext(ctx)
	if hub == nil {
		return nil
	}
	return hub.CaptureMessage(message)
}

// CaptureException captures an error on the Hub carried by ctx.
func CaptureException(ctx context.Context, exception error) *EventID {
	hub := hubFromContext(ctx)
	if hub == nil {
		return nil
	}
	return hub.CaptureException(exception)
}

// CaptureEvent captures an event on the Hub carried by ctx.
func CaptureEvent(ctx context.Context, event *Event) *EventID {
	hub := hubFromContext(ctx)
	if hub == nil {
		return nil
	}
	return hub.CaptureEvent(event)
}

// CaptureCheckIn captures a monitor check-in on the Hub carried by ctx.
func CaptureCheckIn(ctx context.Context, checkIn *CheckIn, monitorConfig *MonitorConfig) *EventID {
	hub := hubFromContext(ctx)
	if hub == nil {
		return nil
	}
	return hub.CaptureCheckIn(checkIn, monitorConfig)
}

// Recover captures a panic on the Hub carried by ctx. Call as
//
//	defer func() {
//		faultline.Recover(ctx, recover())
//	}()
func Recover(ctx context.Context, err interface{}) *EventID {
	hub := hubFromContext(ctx)
	if hub == nil {
		return nil
	}
	return hub.RecoverWithContext(ctx, err)
}

// AddBreadcrumb records a breadcrumb on the scope of the Hub carried by ctx
// and reports whether it was kept.
func AddBreadcrumb(ctx context.Context, breadcrumb *Breadcrumb) bool {
	hub := hubFromContext(ctx)
	if hub == nil {
		return false
	}
	return hub.AddBreadcrumb(breadcrumb, nil)
}

// WithScope runs f in an isolated temporary scope of the Hub carried by ctx.
func WithScope(ctx context.Context, f func(scope *Scope)) {
	hub := hubFromContext(ctx)
	if hub == nil {
		return
	}
	hub.WithScope(f)
}

// ConfigureScope mutates the current scope of the Hub carried by ctx.
func ConfigureScope(ctx context.Context, f func(scope *Scope)) {
	hub := hubFromContext(ctx)
	if hub == nil {
		return
	}
	hub.ConfigureScope(f)
}

// PushScope pushes a new scope on the Hub carried by ctx and returns it, or
// nil when the context has no Hub.
func PushScope(ctx context.Context) *Scope {
	hub := hubFromContext(ctx)
	if hub == nil {
		return nil
	}
	return hub.PushScope()
}

// PopScope pops the top scope of the Hub carried by ctx and reports whether a
// scope was removed.
func PopScope(ctx context.Context) bool {
	hub := hubFromContext(ctx)
	if hub == nil {
		return false
	}
	return hub.PopScope()
}

// StartTransaction starts a transaction on the Hub carried by ctx. Without a
// Hub on the context it returns an unsampled detached transaction, so callers
// may use the returned span unconditionally.
func StartTransaction(ctx context.Context, tctx TransactionContext, customSamplingContext CustomSamplingContext) *Span {
	hub := hubFromContext(ctx)
	if hub == nil {
		hub = NewHub(nil, NewScope())
	}
	return hub.StartTransaction(tctx, customSamplingContext)
}

// LastEventID returns the id of the last error event captured through the Hub
// carried by ctx.
func LastEventID(ctx context.Context) EventID {
	hub := hubFromContext(ctx)
	if hub == nil {
		return ""
	}
	return hub.LastEventID()
}

// Flush waits for buffered events to be delivered on the Hub carried by ctx.
func Flush(ctx context.Context, timeout time.Duration) bool {
	hub := hubFromContext(ctx)
	if hub == nil {
		return false
	}
	return hub.Flush(timeout)
}
