package faultline

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/faultline-hq/faultline-go/internal/debuglog"
	"github.com/faultline-hq/faultline-go/internal/ratelimit"
)

// collectorServer is a configurable stand-in for the ingestion endpoint.
type collectorServer struct {
	*httptest.Server
	statusCode int
	headers    map[string]string
	body       []byte
	requests   int
	lastBody   []byte
}

func newCollectorServer(t *testing.T) *collectorServer {
	t.Helper()
	s := &collectorServer{statusCode: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests++
		s.lastBody, _ = io.ReadAll(r.Body)
		for k, v := range s.headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(s.statusCode)
		if len(s.body) > 0 {
			_, _ = w.Write(s.body)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

// captureDebugLog routes the debug logger into a buffer for the duration of
// the test.
func captureDebugLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	debuglog.SetOutput(&buf)
	t.Cleanup(func() { debuglog.SetOutput(io.Discard) })
	return &buf
}

// testDsn returns a DSN pointing at the test server.
func (s *collectorServer) testDsn() string {
	return strings.Replace(s.URL, "http://", "http://public@", 1) + "/1"
}

func newTestHTTPTransport(t *testing.T, s *collectorServer) *HTTPTransport {
	t.Helper()
	transport := NewHTTPTransport()
	transport.Configure(ClientOptions{Dsn: s.testDsn()})
	return transport
}

func testEvent() *Event {
	event := NewEvent()
	event.EventID = newEventID()
	event.Message = "test"
	event.Timestamp = time.Now()
	event.Sdk = SdkInfo{Name: sdkName, Version: SDKVersion}
	return event
}

func TestHTTPTransportSendSuccess(t *testing.T) {
	server := newCollectorServer(t)
	transport := newTestHTTPTransport(t, server)

	event := testEvent()
	result := transport.SendEvent(event)

	assertEqual(t, result.Status, SendSuccess)
	if result.Event != event {
		t.Error("result does not reference the sent event")
	}
	assertEqual(t, server.requests, 1)
}

func TestHTTPTransportSendSkippedWithoutDsn(t *testing.T) {
	transport := NewHTTPTransport()
	transport.Configure(ClientOptions{})

	result := transport.SendEvent(testEvent())
	assertEqual(t, result.Status, SendSkipped)
}

func TestHTTPTransportSendInvalidOnClientError(t *testing.T) {
	server := newCollectorServer(t)
	server.statusCode = http.StatusBadRequest
	transport := newTestHTTPTransport(t, server)

	result := transport.SendEvent(testEvent())
	assertEqual(t, result.Status, SendInvalid)
}

func TestHTTPTransportLogsErrorHeaderOnRejection(t *testing.T) {
	server := newCollectorServer(t)
	server.statusCode = http.StatusBadRequest
	server.headers = map[string]string{"X-Sentry-Error": "project quota exceeded"}
	transport := newTestHTTPTransport(t, server)
	log := captureDebugLog(t)

	result := transport.SendEvent(testEvent())

	assertEqual(t, result.Status, SendInvalid)
	if !strings.Contains(log.String(), "400 Bad Request: project quota exceeded") {
		t.Errorf("collector error missing from debug log: %q", log.String())
	}
}

func TestHTTPTransportLogsResponseBodyOnRejection(t *testing.T) {
	server := newCollectorServer(t)
	server.statusCode = http.StatusBadRequest
	server.body = []byte(`{"detail":"invalid envelope"}`)
	transport := newTestHTTPTransport(t, server)
	log := captureDebugLog(t)

	result := transport.SendEvent(testEvent())

	assertEqual(t, result.Status, SendInvalid)
	if !strings.Contains(log.String(), `400 Bad Request: {"detail":"invalid envelope"}`) {
		t.Errorf("collector error missing from debug log: %q", log.String())
	}
}

func TestHTTPTransportSendFailedOnServerError(t *testing.T) {
	server := newCollectorServer(t)
	server.statusCode = http.StatusInternalServerError
	transport := newTestHTTPTransport(t, server)

	result := transport.SendEvent(testEvent())
	assertEqual(t, result.Status, SendFailed)
}

func TestHTTPTransportSendFailedOnNetworkError(t *testing.T) {
	server := newCollectorServer(t)
	dsn := server.testDsn()
	server.Close()

	transport := NewHTTPTransport()
	transport.Configure(ClientOptions{Dsn: dsn})

	result := transport.SendEvent(testEvent())
	assertEqual(t, result.Status, SendFailed)
}

func TestHTTPTransportRateLimiting(t *testing.T) {
	server := newCollectorServer(t)
	server.headers = map[string]string{"X-Sentry-Rate-Limits": "60:error:org"}
	transport := newTestHTTPTransport(t, server)

	// The first send goes through and brings back the rate limit.
	result := transport.SendEvent(testEvent())
	assertEqual(t, result.Status, SendSuccess)

	// The second is dropped locally, without a request.
	result = transport.SendEvent(testEvent())
	assertEqual(t, result.Status, SendRateLimited)
	assertEqual(t, server.requests, 1)

	// Other categories are unaffected.
	checkInEvent := &Event{
		Type:    checkInType,
		EventID: newEventID(),
		CheckIn: &CheckIn{ID: newEventID(), MonitorSlug: "job", Status: CheckInStatusOK},
	}
	result = transport.SendEvent(checkInEvent)
	assertEqual(t, result.Status, SendSuccess)
	assertEqual(t, server.requests, 2)
}

func TestHTTPTransportRateLimitsRecordedOnSuccess(t *testing.T) {
	// Limits communicated alongside an accepted payload still apply.
	server := newCollectorServer(t)
	server.headers = map[string]string{"X-Sentry-Rate-Limits": "60::org"}
	transport := newTestHTTPTransport(t, server)

	transport.SendEvent(testEvent())

	transport.mu.Lock()
	limited := transport.limits.IsRateLimited(ratelimit.CategoryAll)
	transport.mu.Unlock()
	if !limited {
		t.Error("rate limit from 200 response not recorded")
	}
}

func TestHTTPTransportRetryAfterOn429(t *testing.T) {
	server := newCollectorServer(t)
	server.statusCode = http.StatusTooManyRequests
	server.headers = map[string]string{"Retry-After": "60"}
	transport := newTestHTTPTransport(t, server)

	result := transport.SendEvent(testEvent())
	assertEqual(t, result.Status, SendInvalid)

	// All categories are now limited.
	result = transport.SendEvent(&Event{Type: transactionType, EventID: newEventID()})
	assertEqual(t, result.Status, SendRateLimited)
	assertEqual(t, server.requests, 1)
}

func TestHTTPTransportSendsEnvelope(t *testing.T) {
	server := newCollectorServer(t)
	transport := newTestHTTPTransport(t, server)

	event := testEvent()
	transport.SendEvent(event)

	lines := bytes.Split(bytes.TrimSuffix(server.lastBody, []byte("\n")), []byte("\n"))
	require.Len(t, lines, 3)

	var header struct {
		EventID string `json:"event_id"`
		Dsn     string `json:"dsn"`
		Sdk     struct {
			Name string `json:"name"`
		} `json:"sdk"`
	}
	require.NoError(t, json.Unmarshal(lines[0], &header))
	assertEqual(t, header.EventID, string(event.EventID))
	assertEqual(t, header.Dsn, server.testDsn())
	assertEqual(t, header.Sdk.Name, sdkName)

	var itemHeader struct {
		Type   string `json:"type"`
		Length int    `json:"length"`
	}
	require.NoError(t, json.Unmarshal(lines[1], &itemHeader))
	assertEqual(t, itemHeader.Type, "event")
	assertEqual(t, itemHeader.Length, len(lines[2]))
}

func TestHTTPTransportSetsAuthHeaders(t *testing.T) {
	var auth, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("X-Sentry-Auth")
		contentType = r.Header.Get("Content-Type")
	}))
	defer server.Close()

	transport := NewHTTPTransport()
	transport.Configure(ClientOptions{Dsn: strings.Replace(server.URL, "http://", "http://public@", 1) + "/1"})
	transport.SendEvent(testEvent())

	assertEqual(t, contentType, "application/x-sentry-envelope")
	if !strings.Contains(auth, "sentry_key=public") {
		t.Errorf("auth header missing key: %q", auth)
	}
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		eventType string
		want      ratelimit.Category
	}{
		{"", ratelimit.CategoryError},
		{transactionType, ratelimit.CategoryTransaction},
		{checkInType, ratelimit.CategoryMonitor},
		{metricType, ratelimit.CategoryMetricBucket},
		{"custom", ratelimit.Category("custom")},
	}
	for _, tt := range tests {
		assertEqual(t, categoryFor(tt.eventType), tt.want)
	}
}

func TestSendStatusString(t *testing.T) {
	tests := []struct {
		status SendStatus
		want   string
	}{
		{SendSuccess, "success"},
		{SendSkipped, "skipped"},
		{SendRateLimited, "rate_limited"},
		{SendFailed, "failed"},
		{SendInvalid, "invalid"},
		{SendStatus(99), "unknown"},
	}
	for _, tt := range tests {
		assertEqual(t, tt.status.String(), tt.want)
	}
}

func TestHTTPTransportFlushAlwaysTrue(t *testing.T) {
	transport := NewHTTPTransport()
	if !transport.Flush(time.Millisecond) {
		t.Error("synchronous transport reported unfinished work")
	}
}

func TestNoopTransport(t *testing.T) {
	transport := new(noopTransport)
	transport.Configure(ClientOptions{})
	result := transport.SendEvent(testEvent())
	assertEqual(t, result.Status, SendSkipped)
	if !transport.Flush(0) {
		t.Error("noop transport reported unfinished work")
	}
}
