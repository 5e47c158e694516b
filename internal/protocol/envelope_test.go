package protocol

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestEnvelopeSerialize(t *testing.T) {
	sentAt := time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)
	envelope := NewEnvelope(&EnvelopeHeader{
		EventID: "b81d2a5b44e346eb87f2ecd67531d4d5",
		SentAt:  sentAt,
		Sdk:     &SdkInfo{Name: "faultline-go", Version: "0.13.1"},
	})
	envelope.AddItem(NewEnvelopeItem(EnvelopeItemTypeEvent, []byte(`{"message":"hello"}`)))

	got, err := envelope.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSuffix(string(got), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), got)
	}

	wantHeader := `{"event_id":"b81d2a5b44e346eb87f2ecd67531d4d5","sent_at":"2024-05-14T10:00:00Z","sdk":{"name":"faultline-go","version":"0.13.1"}}`
	if lines[0] != wantHeader {
		t.Errorf("header:\ngot  %s\nwant %s", lines[0], wantHeader)
	}

	wantItemHeader := `{"type":"event","length":19,"content_type":"application/json"}`
	if lines[1] != wantItemHeader {
		t.Errorf("item header:\ngot  %s\nwant %s", lines[1], wantItemHeader)
	}

	if lines[2] != `{"message":"hello"}` {
		t.Errorf("payload: got %s", lines[2])
	}
}

func TestEnvelopeSerializeMultipleItems(t *testing.T) {
	envelope := NewEnvelope(&EnvelopeHeader{})
	envelope.AddItem(NewEnvelopeItem(EnvelopeItemTypeEvent, []byte(`{}`)))
	envelope.AddItem(NewEnvelopeItem(EnvelopeItemTypeAttachment, []byte("line one\nline two")))

	got, err := envelope.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	// Payloads may contain newlines; readers rely on the length field of the
	// item header, so a serialized envelope with a multi-line payload is
	// still valid.
	if !bytes.Contains(got, []byte(`"length":17`)) {
		t.Errorf("attachment length header missing:\n%s", got)
	}
	if !bytes.HasSuffix(got, []byte("line one\nline two\n")) {
		t.Errorf("attachment payload not last:\n%s", got)
	}
}

func TestEnvelopeWriteTo(t *testing.T) {
	envelope := NewEnvelope(&EnvelopeHeader{Dsn: "https://key@collector.example.com/1"})
	envelope.AddItem(NewEnvelopeItem(EnvelopeItemTypeCheckIn, []byte(`{"status":"ok"}`)))

	var buf bytes.Buffer
	n, err := envelope.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("WriteTo reported %d bytes, wrote %d", n, buf.Len())
	}
	if !strings.Contains(buf.String(), `"type":"check_in"`) {
		t.Errorf("check_in item type missing:\n%s", buf.String())
	}
}
