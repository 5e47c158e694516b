package faultline

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"reflect"
	"sort"
	"time"

	"github.com/faultline-hq/faultline-go/internal/debuglog"
)

// The identifier of the SDK, reported with every event.
const sdkName = "faultline-go"

// SDKVersion is the version of the SDK.
const SDKVersion = "0.13.1"

// maxBreadcrumbs is the hard upper bound on the number of breadcrumbs kept on
// a scope, regardless of configuration.
const maxBreadcrumbs = 100

// defaultMaxBreadcrumbs is used when MaxBreadcrumbs is left at its zero value.
const defaultMaxBreadcrumbs = 30

// usageError is reported when the SDK is used incorrectly, for example when
// capturing a nil error.
type usageError struct {
	error
}

// Integration allows for registering functions that modify or discard captured
// events.
type Integration interface {
	Name() string
	SetupOnce(client *Client)
}

// ClientOptions configure a Client.
type ClientOptions struct {
	// The DSN to use. If the DSN is not set, the client is effectively
	// disabled: events are constructed but never transmitted.
	Dsn string
	// In debug mode, the SDK prints useful debugging information: parsed
	// DSNs, dropped events, transport failures.
	Debug bool
	// Where the debug information goes when Debug is true. Defaults to
	// os.Stderr.
	DebugWriter io.Writer
	// The sample rate for error events, in the range [0.0, 1.0]. A zero
	// value is treated as 1.0 (send everything).
	SampleRate float64
	// Enable performance tracing. Transactions started while tracing is
	// disabled are never sampled.
	EnableTracing bool
	// The sample rate for transactions, in the range [0.0, 1.0]. Ignored
	// when TracesSampler is set. Defaults to 0: tracing must be opted into.
	TracesSampleRate float64
	// Used to customize the sampling of transactions. Takes precedence over
	// both TracesSampleRate and the parent decision inherited from upstream.
	TracesSampler TracesSampler
	// The sample rate for profiling sampled transactions, in the range
	// [0.0, 1.0]. The profiling coin is rolled independently of, and only
	// after, a positive transaction sampling decision.
	ProfilesSampleRate float64
	// Maximum number of breadcrumbs kept on a scope. A zero value defaults
	// to defaultMaxBreadcrumbs; a negative value disables breadcrumbs;
	// values above maxBreadcrumbs are clamped.
	MaxBreadcrumbs int
	// Called with the event and hint before sending non-transaction events.
	// May mutate the event or return nil to drop it.
	BeforeSend func(event *Event, hint *EventHint) *Event
	// Called before recording a breadcrumb. May mutate the breadcrumb or
	// return nil to drop it.
	BeforeBreadcrumb func(breadcrumb *Breadcrumb, hint *BreadcrumbHint) *Breadcrumb
	// Integrations to be installed on the client, in addition to the default
	// ones. Integrations with duplicate names are installed once.
	Integrations []Integration
	// The transport to use. Defaults to HTTPTransport.
	Transport Transport
	// The server name to be reported.
	ServerName string
	// The release to be sent with events. Falls back to the
	// FAULTLINE_RELEASE environment variable.
	Release string
	// The dist to be sent with events.
	Dist string
	// The environment to be sent with events. Falls back to the
	// FAULTLINE_ENVIRONMENT environment variable.
	Environment string
	// An optional pre-configured HTTP client.
	HTTPClient *http.Client
	// An optional HTTP transport to be used by the default HTTP client.
	HTTPTransport http.RoundTripper
	// An optional HTTP proxy.
	HTTPProxy string
	// An optional HTTPS proxy, takes precedence over HTTPProxy.
	HTTPSProxy string
	// An optional set of SSL certificates to verify the server with. When
	// empty, a bundled CA fallback is used.
	CaCerts *x509.CertPool
	// Mirror every outgoing envelope to a locally running Spotlight sink.
	// Also toggled by the FAULTLINE_SPOTLIGHT environment variable.
	Spotlight bool
	// The URL of the Spotlight sink. Defaults to the standard local stream
	// endpoint.
	SpotlightURL string
}

// IsTracingEnabled reports whether transactions started through this client
// may be sampled at all.
func (o ClientOptions) IsTracingEnabled() bool {
	return o.EnableTracing
}

// Client manages the construction of events and their dispatch through a
// Transport. Clients are bound to hubs; most applications talk to a Hub
// rather than to a Client directly.
type Client struct {
	options         ClientOptions
	dsn             *Dsn
	eventProcessors []EventProcessor
	integrations    []Integration
	// Transport delivers events to the collector. Exported so that tests and
	// advanced users can substitute their own implementation.
	Transport Transport
}

// NewClient creates and returns an instance of Client configured using
// ClientOptions.
//
// Most users will not create clients directly; Init and NewHub do it for
// them. An empty DSN is not an error: it produces a disabled client whose
// capture operations are silent no-ops.
func NewClient(options ClientOptions) (*Client, error) {
	if options.Debug {
		writer := options.DebugWriter
		if writer == nil {
			writer = os.Stderr
		}
		debuglog.SetOutput(writer)
	}

	if options.Dsn == "" {
		options.Dsn = os.Getenv("FAULTLINE_DSN")
	}
	if options.Release == "" {
		options.Release = os.Getenv("FAULTLINE_RELEASE")
	}
	if options.Environment == "" {
		options.Environment = os.Getenv("FAULTLINE_ENVIRONMENT")
	}
	if !options.Spotlight {
		switch os.Getenv("FAULTLINE_SPOTLIGHT") {
		case "1", "true", "yes":
			options.Spotlight = true
		}
	}
	if options.SampleRate == 0.0 {
		options.SampleRate = 1.0
	}
	if options.MaxBreadcrumbs == 0 {
		options.MaxBreadcrumbs = defaultMaxBreadcrumbs
	}
	if options.ServerName == "" {
		if hostname, err := os.Hostname(); err == nil {
			options.ServerName = hostname
		}
	}

	// A missing DSN disables transmission, never construction; parse errors
	// are real configuration mistakes and are reported.
	var dsn *Dsn
	if options.Dsn != "" {
		var err error
		dsn, err = NewDsn(options.Dsn)
		if err != nil {
			return nil, err
		}
	} else {
		debuglog.Println("client initialized with an empty DSN")
	}

	client := Client{
		options: options,
		dsn:     dsn,
	}

	client.setupTransport()
	client.setupIntegrations()

	return &client, nil
}

func (client *Client) setupTransport() {
	options := client.options
	transport := options.Transport

	if transport == nil {
		if options.Dsn == "" {
			transport = new(noopTransport)
		} else {
			transport = NewHTTPTransport()
		}
	}

	if options.Spotlight {
		transport = NewSpotlightTransport(transport)
	}

	transport.Configure(options)
	client.Transport = transport
}

func (client *Client) setupIntegrations() {
	integrations := append(defaultIntegrations(), client.options.Integrations...)

	installed := make(map[string]struct{}, len(integrations))
	for _, integration := range integrations {
		if _, seen := installed[integration.Name()]; seen {
			debuglog.Printf("integration %q installed more than once, extra copy ignored\n", integration.Name())
			continue
		}
		installed[integration.Name()] = struct{}{}
		client.integrations = append(client.integrations, integration)
		integration.SetupOnce(client)
		debuglog.Printf("integration installed: %s\n", integration.Name())
	}

	sort.Slice(client.integrations, func(i, j int) bool {
		return client.integrations[i].Name() < client.integrations[j].Name()
	})
}

func defaultIntegrations() []Integration {
	return []Integration{
		new(environmentIntegration),
	}
}

// AddEventProcessor adds an event processor to the client. It must not be
// called from concurrent goroutines.
func (client *Client) AddEventProcessor(processor EventProcessor) {
	client.eventProcessors = append(client.eventProcessors, processor)
}

// Options returns the options attached to the client.
func (client *Client) Options() ClientOptions {
	return client.options
}

// GetIntegration returns the installed integration with the given name, or
// nil.
func (client *Client) GetIntegration(name string) Integration {
	for _, integration := range client.integrations {
		if integration.Name() == name {
			return integration
		}
	}
	return nil
}

// CaptureMessage captures an arbitrary message.
func (client *Client) CaptureMessage(message string, hint *EventHint, scope EventModifier) *EventID {
	event := client.EventFromMessage(message, LevelInfo)
	return client.CaptureEvent(event, hint, scope)
}

// CaptureException captures an error.
func (client *Client) CaptureException(exception error, hint *EventHint, scope EventModifier) *EventID {
	event := client.EventFromException(exception, LevelError)
	return client.CaptureEvent(event, hint, scope)
}

// CaptureEvent captures an event on the currently active client if any.
//
// The event must already be assembled. Typically code would instead use the
// helper methods like CaptureException. The return value is the event
// identifier when the event was delivered, nil otherwise.
func (client *Client) CaptureEvent(event *Event, hint *EventHint, scope EventModifier) *EventID {
	return client.processEvent(event, hint, scope)
}

// CaptureCheckIn captures a monitor check-in, filling in release and
// environment from the client options and generating a check-in id when
// needed. The check-in id is returned even when delivery fails, so that a
// closing check-in can reference it.
func (client *Client) CaptureCheckIn(checkIn *CheckIn, monitorConfig *MonitorConfig, scope EventModifier) *EventID {
	if checkIn == nil {
		debuglog.Println("nil CheckIn dropped")
		return nil
	}

	event := client.EventFromCheckIn(checkIn, monitorConfig)
	if event != nil && event.CheckIn != nil {
		client.CaptureEvent(event, nil, scope)
		return &event.CheckIn.ID
	}
	return nil
}

// Recover captures a panic.
func (client *Client) Recover(err interface{}, hint *EventHint, scope EventModifier) *EventID {
	return client.RecoverWithContext(context.Background(), err, hint, scope)
}

// RecoverWithContext captures a panic and passes the context along.
func (client *Client) RecoverWithContext(ctx context.Context, err interface{}, hint *EventHint, scope EventModifier) *EventID {
	if err == nil {
		return nil
	}
	if ctx != nil {
		if hint == nil {
			hint = &EventHint{}
		}
		if hint.Context == nil {
			hint.Context = ctx
		}
	}

	var event *Event
	switch err := err.(type) {
	case error:
		event = client.EventFromException(err, LevelFatal)
	case string:
		event = client.EventFromMessage(err, LevelFatal)
	default:
		event = client.EventFromMessage(fmt.Sprintf("%#v", err), LevelFatal)
	}
	return client.CaptureEvent(event, hint, scope)
}

// Flush waits until the underlying Transport sends any buffered events to the
// collector, blocking for at most the given timeout. It reports false when
// the timeout fired while events were still in flight.
func (client *Client) Flush(timeout time.Duration) bool {
	return client.Transport.Flush(timeout)
}

// EventFromMessage creates an event from the given message string.
func (client *Client) EventFromMessage(message string, level Level) *Event {
	if message == "" {
		err := usageError{fmt.Errorf("EventFromMessage called with empty message")}
		return client.EventFromException(err, level)
	}
	event := NewEvent()
	event.Level = level
	event.Message = message
	return event
}

// EventFromException creates a new event from the given error, unwinding its
// chain of causes so that the outermost error comes last, the way the
// collector expects exception chains.
func (client *Client) EventFromException(exception error, level Level) *Event {
	err := exception
	if err == nil {
		err = usageError{fmt.Errorf("EventFromException called with nil error")}
	}

	event := NewEvent()
	event.Level = level

	for ; err != nil; err = unwrapError(err) {
		event.Exception = append(event.Exception, Exception{
			Value: err.Error(),
			Type:  reflect.TypeOf(err).String(),
		})
	}

	// The collector wants the causes first, the outermost error last.
	reverse(event.Exception)
	return event
}

// unwrapError returns the cause of err, supporting both the standard
// library's Unwrap and the Causer convention of github.com/pkg/errors.
func unwrapError(err error) error {
	switch previous := err.(type) {
	case interface{ Unwrap() error }:
		return previous.Unwrap()
	case interface{ Cause() error }:
		return previous.Cause()
	}
	return nil
}

// reverse reverses the slice a in place.
func reverse(a []Exception) {
	for i := len(a)/2 - 1; i >= 0; i-- {
		opp := len(a) - 1 - i
		a[i], a[opp] = a[opp], a[i]
	}
}

func (client *Client) processEvent(event *Event, hint *EventHint, scope EventModifier) *EventID {
	if event == nil {
		debuglog.Println("nil event dropped")
		return nil
	}

	options := client.Options()

	// Transactions are sampled when they start; everything else obeys the
	// error sample rate.
	if event.Type != transactionType && options.SampleRate < 1.0 {
		if rng.Float64() >= options.SampleRate {
			debuglog.Println("event dropped due to SampleRate")
			return nil
		}
	}

	if event = client.prepareEvent(event, hint, scope); event == nil {
		return nil
	}

	if options.BeforeSend != nil && event.Type != transactionType && event.Type != checkInType {
		if hint == nil {
			hint = &EventHint{}
		}
		if event = options.BeforeSend(event, hint); event == nil {
			debuglog.Println("event dropped due to BeforeSend callback")
			return nil
		}
	}

	result := client.Transport.SendEvent(event)
	if result.Status != SendSuccess {
		debuglog.Printf("event %s not delivered: %s\n", event.EventID, result.Status)
		return nil
	}

	return &event.EventID
}

func (client *Client) prepareEvent(event *Event, hint *EventHint, scope EventModifier) *Event {
	if event.EventID == "" {
		event.EventID = newEventID()
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if event.Level == "" {
		event.Level = LevelInfo
	}

	if event.ServerName == "" {
		event.ServerName = client.options.ServerName
	}

	if event.Release == "" {
		event.Release = client.options.Release
	}

	if event.Dist == "" {
		event.Dist = client.options.Dist
	}

	if event.Environment == "" {
		event.Environment = client.options.Environment
	}

	event.Platform = "go"
	event.Sdk = SdkInfo{
		Name:    sdkName,
		Version: SDKVersion,
	}

	if scope != nil {
		if event = scope.ApplyToEvent(event, hint); event == nil {
			debuglog.Println("event dropped by one of the scope's event processors")
			return nil
		}
	}

	for _, processor := range client.eventProcessors {
		id := event.EventID
		if event = processor(event, hint); event == nil {
			debuglog.Printf("event %s dropped by one of the client's event processors\n", id)
			return nil
		}
	}

	return event
}
