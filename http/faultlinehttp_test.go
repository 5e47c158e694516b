package faultlinehttp_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	faultline "github.com/faultline-hq/faultline-go"
	faultlinehttp "github.com/faultline-hq/faultline-go/http"
)

func newTestHub(t *testing.T, options faultline.ClientOptions) (*faultline.Hub, *faultline.MockTransport) {
	t.Helper()
	transport := &faultline.MockTransport{}
	options.Transport = transport
	client, err := faultline.NewClient(options)
	require.NoError(t, err)
	return faultline.NewHub(client, faultline.NewScope()), transport
}

func TestHandleAttachesHubToRequestContext(t *testing.T) {
	hub, transport := newTestHub(t, faultline.ClientOptions{})
	handler := faultlinehttp.New(hub, faultlinehttp.Options{}).HandleFunc(func(w http.ResponseWriter, r *http.Request) {
		requestHub := faultline.GetHubFromContext(r.Context())
		if requestHub == nil {
			t.Fatal("no hub on the request context")
		}
		if requestHub == hub {
			t.Error("request shares the root hub instead of a clone")
		}
		requestHub.CaptureException(errors.New("handler error"))
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/users?limit=10", nil))

	events := transport.Events()
	require.Len(t, events, 1)

	require.NotNil(t, events[0].Request)
	require.Equal(t, "GET", events[0].Request.Method)
	require.Equal(t, "limit=10", events[0].Request.QueryString)
}

func TestHandleIsolatesScopesAcrossRequests(t *testing.T) {
	hub, transport := newTestHub(t, faultline.ClientOptions{})

	var call int
	handler := faultlinehttp.New(hub, faultlinehttp.Options{}).HandleFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		requestHub := faultline.GetHubFromContext(r.Context())
		if call == 1 {
			requestHub.Scope().SetTag("leak", "yes")
		}
		requestHub.CaptureMessage("request")
	})

	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/a", nil))
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/b", nil))

	events := transport.Events()
	require.Len(t, events, 2)
	require.Equal(t, "yes", events[0].Tags["leak"])
	require.NotContains(t, events[1].Tags, "leak")
}

func TestHandleRecoversPanics(t *testing.T) {
	hub, transport := newTestHub(t, faultline.ClientOptions{})
	handler := faultlinehttp.New(hub, faultlinehttp.Options{}).Handle(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	events := transport.Events()
	require.Len(t, events, 1)
	require.Equal(t, faultline.LevelFatal, events[0].Level)
	require.Equal(t, "handler exploded", events[0].Message)
}

func TestHandleRepanic(t *testing.T) {
	hub, _ := newTestHub(t, faultline.ClientOptions{})
	handler := faultlinehttp.New(hub, faultlinehttp.Options{Repanic: true}).Handle(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("again")
	}))

	defer func() {
		if recover() == nil {
			t.Error("panic not re-raised")
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestHandleTracesRequests(t *testing.T) {
	hub, transport := newTestHub(t, faultline.ClientOptions{
		EnableTracing:    true,
		TracesSampleRate: 1.0,
	})
	handler := faultlinehttp.New(hub, faultlinehttp.Options{}).HandleFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users", nil))

	events := transport.Events()
	require.Len(t, events, 1)
	require.Equal(t, "transaction", events[0].Type)
	require.Equal(t, "GET /users", events[0].Transaction)
}
