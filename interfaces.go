package faultline

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Level marks the severity of the event.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// SdkInfo describes the SDK that produced an event.
type SdkInfo struct {
	Name         string       `json:"name,omitempty"`
	Version      string       `json:"version,omitempty"`
	Integrations []string     `json:"integrations,omitempty"`
	Packages     []SdkPackage `json:"packages,omitempty"`
}

type SdkPackage struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// BreadcrumbHint contains information that can be associated with a Breadcrumb.
type BreadcrumbHint map[string]interface{}

// Breadcrumb specifies an application event that occurred before an event.
// An event may contain one or more breadcrumbs.
type Breadcrumb struct {
	Type      string                 `json:"type,omitempty"`
	Category  string                 `json:"category,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Level     Level                  `json:"level,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// MarshalJSON converts the Breadcrumb struct to JSON, omitting a zero
// timestamp, which would otherwise serialize as year 1.
func (b *Breadcrumb) MarshalJSON() ([]byte, error) {
	// breadcrumb aliases Breadcrumb to allow calling json.Marshal without an
	// infinite loop.
	type breadcrumb Breadcrumb
	if b.Timestamp.IsZero() {
		return json.Marshal(struct {
			*breadcrumb
			Timestamp json.RawMessage `json:"timestamp,omitempty"`
		}{
			breadcrumb: (*breadcrumb)(b),
		})
	}
	return json.Marshal((*breadcrumb)(b))
}

// User describes the user associated with an Event. If this is used, at least
// an ID or an IP address should be provided.
type User struct {
	ID        string            `json:"id,omitempty"`
	Email     string            `json:"email,omitempty"`
	IPAddress string            `json:"ip_address,omitempty"`
	Username  string            `json:"username,omitempty"`
	Name      string            `json:"name,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

func (u User) IsEmpty() bool {
	return u.ID == "" &&
		u.Email == "" &&
		u.IPAddress == "" &&
		u.Username == "" &&
		u.Name == "" &&
		len(u.Data) == 0
}

// Request contains information on a HTTP request related to the event.
type Request struct {
	URL         string            `json:"url,omitempty"`
	Method      string            `json:"method,omitempty"`
	Data        string            `json:"data,omitempty"`
	QueryString string            `json:"query_string,omitempty"`
	Cookies     string            `json:"cookies,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

// NewRequest returns a Request populated from an incoming HTTP request.
// Cookies and authorization headers are stripped: request metadata leaves the
// process, credentials must not.
func NewRequest(r *http.Request) *Request {
	protocol := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		protocol = "https"
	}
	url := fmt.Sprintf("%s://%s%s", protocol, r.Host, r.URL.Path)

	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		switch http.CanonicalHeaderKey(k) {
		case "Cookie", "Authorization", "Proxy-Authorization":
			continue
		}
		headers[k] = strings.Join(v, ",")
	}
	headers["Host"] = r.Host

	var env map[string]string
	if addr, port, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		env = map[string]string{"REMOTE_ADDR": addr, "REMOTE_PORT": port}
	}

	return &Request{
		URL:         url,
		Method:      r.Method,
		QueryString: r.URL.RawQuery,
		Headers:     headers,
		Env:         env,
	}
}

// Exception specifies an error that occurred.
type Exception struct {
	Type   string `json:"type,omitempty"`
	Value  string `json:"value,omitempty"`
	Module string `json:"module,omitempty"`
}

// EventID is a hexadecimal string representing a unique uuid4 for an Event.
// An EventID must be 32 characters long, lowercase and not have any dashes.
type EventID string

const (
	transactionType = "transaction"
	checkInType     = "check_in"
	metricType      = "metric"
)

// Event is the fundamental data structure that is sent to the collector.
type Event struct {
	Breadcrumbs []*Breadcrumb          `json:"breadcrumbs,omitempty"`
	Contexts    map[string]interface{} `json:"contexts,omitempty"`
	Dist        string                 `json:"dist,omitempty"`
	Environment string                 `json:"environment,omitempty"`
	EventID     EventID                `json:"event_id,omitempty"`
	Exception   []Exception            `json:"exception,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
	Fingerprint []string               `json:"fingerprint,omitempty"`
	Level       Level                  `json:"level,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Platform    string                 `json:"platform,omitempty"`
	Release     string                 `json:"release,omitempty"`
	Request     *Request               `json:"request,omitempty"`
	Sdk         SdkInfo                `json:"sdk,omitempty"`
	ServerName  string                 `json:"server_name,omitempty"`
	Tags        map[string]string      `json:"tags,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Transaction string                 `json:"transaction,omitempty"`
	User        User                   `json:"user,omitempty"`
	Logger      string                 `json:"logger,omitempty"`
	Modules     map[string]string      `json:"modules,omitempty"`

	// The fields below are only relevant for events of type transaction.
	Type      string    `json:"type,omitempty"`
	StartTime time.Time `json:"start_timestamp"`
	Spans     []*Span   `json:"spans,omitempty"`

	// The fields below are only relevant for check-in events; they are
	// serialized through checkInMarshalJSON in check_in.go.
	CheckIn       *CheckIn       `json:"check_in,omitempty"`
	MonitorConfig *MonitorConfig `json:"monitor_config,omitempty"`

	// Metrics carried by metric events. They are serialized as a dedicated
	// envelope item, never as part of the event body.
	Metrics []Metric `json:"-"`
}

// NewEvent creates a new Event with maps initialized.
func NewEvent() *Event {
	return &Event{
		Contexts: make(map[string]interface{}),
		Extra:    make(map[string]interface{}),
		Tags:     make(map[string]string),
		Modules:  make(map[string]string),
	}
}

// MarshalJSON converts the Event struct to JSON.
func (e *Event) MarshalJSON() ([]byte, error) {
	// Transaction and check-in events are serialized differently from error
	// events: transactions keep the tracing-only fields, check-ins reduce to
	// the check-in payload.
	switch e.Type {
	case transactionType:
		return e.transactionMarshalJSON()
	case checkInType:
		return e.checkInMarshalJSON()
	default:
		return e.defaultMarshalJSON()
	}
}

func (e *Event) defaultMarshalJSON() ([]byte, error) {
	// event aliases Event to allow calling json.Marshal without an infinite
	// loop. The shadow fields hide transaction- and check-in-only data from
	// error events regardless of zero values, because time.Time does not
	// honor omitempty.
	type event Event
	return json.Marshal(struct {
		*event
		StartTime     json.RawMessage `json:"start_timestamp,omitempty"`
		Spans         json.RawMessage `json:"spans,omitempty"`
		CheckIn       json.RawMessage `json:"check_in,omitempty"`
		MonitorConfig json.RawMessage `json:"monitor_config,omitempty"`
	}{
		event: (*event)(e),
	})
}

func (e *Event) transactionMarshalJSON() ([]byte, error) {
	type event Event
	return json.Marshal(struct {
		*event
		CheckIn       json.RawMessage `json:"check_in,omitempty"`
		MonitorConfig json.RawMessage `json:"monitor_config,omitempty"`
	}{
		event: (*event)(e),
	})
}

// EventHint contains information that can be associated with an Event.
type EventHint struct {
	Data               interface{}
	EventID            string
	OriginalException  error
	RecoveredException interface{}
	Context            context.Context
	Request            *http.Request
	Response           *http.Response
}
