// Package protocol implements the envelope container format used to ship
// events to the collector.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Envelope is the unit of transmission: a header followed by zero or more
// items.
type Envelope struct {
	Header *EnvelopeHeader
	Items  []*EnvelopeItem
}

// EnvelopeHeader is the top-level header of an envelope.
type EnvelopeHeader struct {
	// EventID is the unique identifier of the enclosed event, when there is
	// one.
	EventID string `json:"event_id,omitempty"`

	// SentAt is the timestamp when the envelope left the SDK, in UTC. Used
	// by the collector for clock drift correction.
	SentAt time.Time `json:"sent_at,omitempty"`

	// Dsn makes the envelope self-authenticated, which sinks like Spotlight
	// rely on.
	Dsn string `json:"dsn,omitempty"`

	// Sdk identifies the producing SDK.
	Sdk *SdkInfo `json:"sdk,omitempty"`
}

// SdkInfo identifies the SDK in the envelope header.
type SdkInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// EnvelopeItemType discriminates envelope items.
type EnvelopeItemType string

const (
	EnvelopeItemTypeEvent       EnvelopeItemType = "event"
	EnvelopeItemTypeTransaction EnvelopeItemType = "transaction"
	EnvelopeItemTypeCheckIn     EnvelopeItemType = "check_in"
	EnvelopeItemTypeMetric      EnvelopeItemType = "statsd"
	EnvelopeItemTypeAttachment  EnvelopeItemType = "attachment"
)

// EnvelopeItemHeader is the header of a single envelope item.
type EnvelopeItemHeader struct {
	// Type specifies the type of this item and its payload.
	Type EnvelopeItemType `json:"type"`

	// Length is the length of the payload in bytes. Payloads may contain
	// newlines, so the length is always set.
	Length int `json:"length"`

	// ContentType is the MIME type of the payload.
	ContentType string `json:"content_type,omitempty"`
}

// EnvelopeItem is a single item within an envelope.
type EnvelopeItem struct {
	Header  *EnvelopeItemHeader
	Payload []byte
}

// NewEnvelope creates an envelope with the given header and no items.
func NewEnvelope(header *EnvelopeHeader) *Envelope {
	return &Envelope{Header: header}
}

// NewEnvelopeItem creates an item of the given type wrapping payload. The
// payload length is recorded in the item header.
func NewEnvelopeItem(itemType EnvelopeItemType, payload []byte) *EnvelopeItem {
	return &EnvelopeItem{
		Header: &EnvelopeItemHeader{
			Type:        itemType,
			Length:      len(payload),
			ContentType: "application/json",
		},
		Payload: payload,
	}
}

// AddItem appends an item to the envelope.
func (e *Envelope) AddItem(item *EnvelopeItem) {
	e.Items = append(e.Items, item)
}

// Serialize encodes the envelope in the wire format:
//
//	Header "\n" { ItemHeader "\n" Payload "\n" }
func (e *Envelope) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	header, err := json.Marshal(e.Header)
	if err != nil {
		return nil, fmt.Errorf("envelope header: %w", err)
	}
	buf.Write(header)
	buf.WriteByte('\n')

	for _, item := range e.Items {
		itemHeader, err := json.Marshal(item.Header)
		if err != nil {
			return nil, fmt.Errorf("envelope item header: %w", err)
		}
		buf.Write(itemHeader)
		buf.WriteByte('\n')
		buf.Write(item.Payload)
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}

// WriteTo writes the serialized envelope to w.
func (e *Envelope) WriteTo(w io.Writer) (int64, error) {
	data, err := e.Serialize()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}
