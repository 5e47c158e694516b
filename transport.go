package faultline

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/certifi/gocertifi"

	"github.com/faultline-hq/faultline-go/internal/debuglog"
	"github.com/faultline-hq/faultline-go/internal/protocol"
	"github.com/faultline-hq/faultline-go/internal/ratelimit"
)

const defaultTimeout = time.Second * 30

// maxDrainResponseBytes is the maximum number of bytes that transport
// implementations will read from response bodies when draining them.
//
// Collector responses are typically short and the SDK doesn't need the
// contents of the response body. However, the net/http HTTP client requires
// response bodies to be fully drained (and closed) for TCP keep-alive to
// work.
//
// maxDrainResponseBytes strikes a balance between reading too much data (if
// the server responds with an unexpectedly large body) and reusing TCP
// connections.
const maxDrainResponseBytes = 16 << 10

// SendStatus is the outcome of a single delivery attempt.
type SendStatus int

const (
	// SendSuccess means the collector accepted the payload.
	SendSuccess SendStatus = iota
	// SendSkipped means there was nothing to send, typically because the
	// transport has no valid DSN.
	SendSkipped
	// SendRateLimited means an active rate limit applies to the payload
	// category and the payload was dropped before any network activity.
	SendRateLimited
	// SendFailed means the request could not be performed or the collector
	// answered with a retriable server error.
	SendFailed
	// SendInvalid means the collector rejected the payload as malformed or
	// unauthorized; retrying the same payload will not help.
	SendInvalid
)

// String returns the status formatted for debugging.
func (s SendStatus) String() string {
	switch s {
	case SendSuccess:
		return "success"
	case SendSkipped:
		return "skipped"
	case SendRateLimited:
		return "rate_limited"
	case SendFailed:
		return "failed"
	case SendInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// SendResult describes the outcome of sending a single event.
type SendResult struct {
	Status SendStatus
	// Event is the event the result refers to.
	Event *Event
}

// Transport is used by the Client to deliver events to a remote collector.
type Transport interface {
	Flush(timeout time.Duration) bool
	Configure(options ClientOptions)
	SendEvent(event *Event) SendResult
	Close()
}

func getProxyConfig(options ClientOptions) func(*http.Request) (*url.URL, error) {
	if options.HTTPSProxy != "" {
		return func(*http.Request) (*url.URL, error) {
			return url.Parse(options.HTTPSProxy)
		}
	}

	if options.HTTPProxy != "" {
		return func(*http.Request) (*url.URL, error) {
			return url.Parse(options.HTTPProxy)
		}
	}

	return http.ProxyFromEnvironment
}

func getTLSConfig(options ClientOptions) *tls.Config {
	if options.CaCerts != nil {
		return &tls.Config{
			RootCAs:    options.CaCerts,
			MinVersion: tls.VersionTLS12,
		}
	}

	// Minimal container images sometimes ship without system certificates.
	// The bundled certificate pool keeps HTTPS working there.
	if _, err := x509.SystemCertPool(); err != nil {
		rootCAs, err := gocertifi.CACerts()
		if err != nil {
			debuglog.Printf("Could not load CA certificates: %v\n", err)
			return nil
		}
		return &tls.Config{
			RootCAs:    rootCAs,
			MinVersion: tls.VersionTLS12,
		}
	}

	return nil
}

func categoryFor(eventType string) ratelimit.Category {
	switch eventType {
	case "":
		return ratelimit.CategoryError
	case transactionType:
		return ratelimit.CategoryTransaction
	case checkInType:
		return ratelimit.CategoryMonitor
	case metricType:
		return ratelimit.CategoryMetricBucket
	default:
		return ratelimit.Category(eventType)
	}
}

func envelopeItemFromEvent(event *Event) (*protocol.EnvelopeItem, error) {
	switch event.Type {
	case transactionType:
		body, err := json.Marshal(event)
		if err != nil {
			return nil, err
		}
		return protocol.NewEnvelopeItem(protocol.EnvelopeItemTypeTransaction, body), nil
	case checkInType:
		// Event.MarshalJSON reduces check-in events to the check-in payload.
		body, err := json.Marshal(event)
		if err != nil {
			return nil, err
		}
		return protocol.NewEnvelopeItem(protocol.EnvelopeItemTypeCheckIn, body), nil
	case metricType:
		var buf bytes.Buffer
		for _, metric := range event.Metrics {
			buf.WriteString(metric.encodeStatsd())
			buf.WriteByte('\n')
		}
		return protocol.NewEnvelopeItem(protocol.EnvelopeItemTypeMetric, buf.Bytes()), nil
	default:
		body, err := json.Marshal(event)
		if err != nil {
			return nil, err
		}
		return protocol.NewEnvelopeItem(protocol.EnvelopeItemTypeEvent, body), nil
	}
}

func envelopeFromEvent(event *Event, dsn *Dsn, sentAt time.Time) (*protocol.Envelope, error) {
	header := &protocol.EnvelopeHeader{
		EventID: string(event.EventID),
		SentAt:  sentAt,
		Sdk: &protocol.SdkInfo{
			Name:    event.Sdk.Name,
			Version: event.Sdk.Version,
		},
	}
	if dsn != nil {
		header.Dsn = dsn.String()
	}
	envelope := protocol.NewEnvelope(header)

	item, err := envelopeItemFromEvent(event)
	if err != nil {
		return nil, err
	}
	envelope.AddItem(item)
	return envelope, nil
}

// ================================
// HTTPTransport
// ================================

// HTTPTransport is the default, synchronous implementation of Transport.
//
// SendEvent blocks until the event has been accepted or rejected by the
// collector, or dropped locally because of an active rate limit.
type HTTPTransport struct {
	dsn       *Dsn
	client    *http.Client
	transport http.RoundTripper

	// Timeout for requests to the collector.
	Timeout time.Duration

	mu     sync.Mutex
	limits ratelimit.Map
}

// NewHTTPTransport returns a new pre-configured instance of HTTPTransport.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		Timeout: defaultTimeout,
		limits:  make(ratelimit.Map),
	}
}

// Configure is called by the Client itself, providing it its own options.
func (t *HTTPTransport) Configure(options ClientOptions) {
	dsn, err := NewDsn(options.Dsn)
	if err != nil {
		debuglog.Printf("%v\n", err)
		return
	}
	t.dsn = dsn

	if options.HTTPTransport != nil {
		t.transport = options.HTTPTransport
	} else {
		t.transport = &http.Transport{
			Proxy:           getProxyConfig(options),
			TLSClientConfig: getTLSConfig(options),
		}
	}

	if options.HTTPClient != nil {
		t.client = options.HTTPClient
	} else {
		t.client = &http.Client{
			Transport: t.transport,
			Timeout:   t.Timeout,
		}
	}
}

// SendEvent delivers a single event to the collector and reports the outcome.
//
// Failures are reflected in the returned result and logged, never propagated
// as errors: reporting must not break the host application.
func (t *HTTPTransport) SendEvent(event *Event) SendResult {
	if t.dsn == nil {
		return SendResult{Status: SendSkipped, Event: event}
	}

	if t.disabled(categoryFor(event.Type)) {
		return SendResult{Status: SendRateLimited, Event: event}
	}

	envelope, err := envelopeFromEvent(event, t.dsn, time.Now().UTC())
	if err != nil {
		debuglog.Printf("Event could not be encoded: %v\n", err)
		return SendResult{Status: SendInvalid, Event: event}
	}
	body, err := envelope.Serialize()
	if err != nil {
		debuglog.Printf("Event could not be encoded: %v\n", err)
		return SendResult{Status: SendInvalid, Event: event}
	}

	request, err := http.NewRequest(
		http.MethodPost,
		t.dsn.GetAPIURL().String(),
		bytes.NewReader(body),
	)
	if err != nil {
		debuglog.Printf("There was an issue creating the request: %v\n", err)
		return SendResult{Status: SendFailed, Event: event}
	}

	for headerKey, headerValue := range t.dsn.RequestHeaders() {
		request.Header.Set(headerKey, headerValue)
	}

	response, err := t.client.Do(request)
	if err != nil {
		debuglog.Printf("There was an issue with sending an event: %v\n", err)
		return SendResult{Status: SendFailed, Event: event}
	}
	defer response.Body.Close()

	// Rate limit headers are processed regardless of the response status:
	// limits communicated alongside an accepted payload still apply to
	// future payloads.
	t.mu.Lock()
	t.limits.Merge(ratelimit.FromResponse(response))
	t.mu.Unlock()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		// Drain body up to a limit and close it, allowing the transport to
		// reuse TCP connections.
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxDrainResponseBytes))
		return SendResult{Status: SendSuccess, Event: event}
	}

	debuglog.Printf("Sending %s failed with the following error: %s\n", eventIdentifier(event), responseError(response))

	if response.StatusCode >= 400 && response.StatusCode < 500 {
		return SendResult{Status: SendInvalid, Event: event}
	}
	return SendResult{Status: SendFailed, Event: event}
}

// responseError extracts the collector's error message from a rejection
// response: the X-Sentry-Error header when present, otherwise the response
// body. The body is read (bounded) either way so the connection can be
// reused.
func responseError(response *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(response.Body, maxDrainResponseBytes))
	if message := response.Header.Get("X-Sentry-Error"); message != "" {
		return response.Status + ": " + message
	}
	if detail := strings.TrimSpace(string(body)); detail != "" {
		return response.Status + ": " + detail
	}
	return response.Status
}

// Flush is a no-op for HTTPTransport. Every SendEvent call blocks until
// delivery finished, so there is never buffered work to wait for. It always
// returns true.
func (t *HTTPTransport) Flush(time.Duration) bool {
	return true
}

// Close is a no-op for HTTPTransport.
func (t *HTTPTransport) Close() {}

func (t *HTTPTransport) disabled(c ratelimit.Category) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	disabled := t.limits.IsRateLimited(c)
	if disabled {
		debuglog.Printf("Too many requests for %q, backing off till: %v\n", c, t.limits.Deadline(c))
	}
	return disabled
}

func eventIdentifier(event *Event) string {
	switch event.Type {
	case transactionType:
		return "transaction"
	case checkInType:
		return "check-in"
	case metricType:
		return "metric"
	default:
		return "event"
	}
}

// ================================
// noopTransport
// ================================

// noopTransport is an implementation of Transport interface which drops all
// events. Only used internally when an empty DSN is provided, which
// effectively disables the SDK.
type noopTransport struct{}

var _ Transport = noopTransport{}

func (noopTransport) Configure(ClientOptions) {
	debuglog.Println("Sending events to the collector is disabled.")
}

func (noopTransport) SendEvent(event *Event) SendResult {
	debuglog.Println("Event dropped due to noopTransport usage.")
	return SendResult{Status: SendSkipped, Event: event}
}

func (noopTransport) Flush(time.Duration) bool {
	return true
}

func (noopTransport) Close() {}
