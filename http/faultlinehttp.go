// Package faultlinehttp provides net/http middleware that gives every request
// an isolated reporting hub, recovers panics, and optionally traces requests
// as transactions.
package faultlinehttp

import (
	"net/http"
	"time"

	faultline "github.com/faultline-hq/faultline-go"
)

// A Handler is an HTTP middleware factory bound to a root hub.
type Handler struct {
	hub             *faultline.Hub
	repanic         bool
	waitForDelivery bool
	timeout         time.Duration
}

// Options configure a Handler.
type Options struct {
	// Repanic re-raises panics after they have been reported, for use with
	// an outer recovery middleware that renders the error page.
	Repanic bool
	// WaitForDelivery blocks the failing request until the panic event has
	// been delivered, at most Timeout. Without it delivery races process
	// shutdown when the panic brings the server down.
	WaitForDelivery bool
	// Timeout for delivery when WaitForDelivery is set. Defaults to 2s.
	Timeout time.Duration
}

// New returns a middleware factory whose per-request hubs derive from hub.
// The hub argument replaces any notion of a process-global hub: handlers
// reach their request's hub through the request context.
func New(hub *faultline.Hub, options Options) *Handler {
	timeout := options.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &Handler{
		hub:             hub,
		repanic:         options.Repanic,
		waitForDelivery: options.WaitForDelivery,
		timeout:         timeout,
	}
}

// Handle wraps handler so that every request runs with its own hub on the
// request context and panics are captured.
func (h *Handler) Handle(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.handle(handler, w, r)
	})
}

// HandleFunc is like Handle, for plain handler functions.
func (h *Handler) HandleFunc(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.handle(handler, w, r)
	}
}

func (h *Handler) handle(handler http.Handler, w http.ResponseWriter, r *http.Request) {
	hub := h.hub.Clone()
	hub.Scope().SetRequest(faultline.NewRequest(r))
	ctx := faultline.SetHubOnContext(r.Context(), hub)

	var transaction *faultline.Span
	if client := hub.Client(); client != nil && client.Options().IsTracingEnabled() {
		transaction = hub.StartTransaction(faultline.TransactionContext{
			Name:   r.Method + " " + r.URL.Path,
			Op:     "http.server",
			Source: faultline.SourceURL,
		}, nil)
		defer transaction.Finish()
	}

	defer func() {
		if err := recover(); err != nil {
			hub.RecoverWithContext(ctx, err)
			if h.waitForDelivery {
				hub.Flush(h.timeout)
			}
			if transaction != nil {
				transaction.Status = faultline.SpanStatusInternalError
			}
			if h.repanic {
				panic(err)
			}
			w.WriteHeader(http.StatusInternalServerError)
		}
	}()

	handler.ServeHTTP(w, r.WithContext(ctx))
}
