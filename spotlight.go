package faultline

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/faultline-hq/faultline-go/internal/debuglog"
)

// DefaultSpotlightURL is the default endpoint of a locally running Spotlight
// sidecar.
const DefaultSpotlightURL = "http://localhost:8969/stream"

// SpotlightTransport wraps another transport and mirrors every envelope to a
// local Spotlight sidecar for in-development debugging.
//
// Mirroring happens on a separate goroutine and never influences the result
// of the wrapped transport: a dead sidecar must not break event delivery.
type SpotlightTransport struct {
	inner  Transport
	url    string
	client *http.Client
	dsn    *Dsn
	wg     sync.WaitGroup
}

// NewSpotlightTransport returns a transport that forwards events to inner and
// mirrors them to Spotlight.
func NewSpotlightTransport(inner Transport) *SpotlightTransport {
	return &SpotlightTransport{
		inner: inner,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (t *SpotlightTransport) Configure(options ClientOptions) {
	t.url = options.SpotlightURL
	if t.url == "" {
		t.url = DefaultSpotlightURL
	}
	if dsn, err := NewDsn(options.Dsn); err == nil {
		t.dsn = dsn
	}
	t.inner.Configure(options)
}

// SendEvent mirrors the event to Spotlight and forwards it to the wrapped
// transport. The returned result is always the wrapped transport's.
func (t *SpotlightTransport) SendEvent(event *Event) SendResult {
	envelope, err := envelopeFromEvent(event, t.dsn, time.Now().UTC())
	if err != nil {
		debuglog.Printf("Event could not be encoded for Spotlight: %v\n", err)
	} else if body, err := envelope.Serialize(); err == nil {
		t.wg.Add(1)
		go t.mirror(body)
	}
	return t.inner.SendEvent(event)
}

func (t *SpotlightTransport) mirror(body []byte) {
	defer t.wg.Done()
	request, err := http.NewRequest(http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		debuglog.Printf("Could not create Spotlight request: %v\n", err)
		return
	}
	request.Header.Set("Content-Type", "application/x-sentry-envelope")
	response, err := t.client.Do(request)
	if err != nil {
		debuglog.Printf("Sending to Spotlight failed: %v\n", err)
		return
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxDrainResponseBytes))
}

// Flush waits for in-flight Spotlight mirrors and then flushes the wrapped
// transport.
func (t *SpotlightTransport) Flush(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		return false
	}
	return t.inner.Flush(timeout)
}

func (t *SpotlightTransport) Close() {
	t.inner.Close()
}
