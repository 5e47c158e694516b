package faultline

import (
	"fmt"
	"reflect"
	"testing"
)

func assertEqual(t *testing.T, got, want interface{}, userMessage ...interface{}) {
	t.Helper()

	if !reflect.DeepEqual(got, want) {
		logFailedAssertion(t, formatUnequalValues(got, want), userMessage...)
	}
}

func assertNotEqual(t *testing.T, got, want interface{}, userMessage ...interface{}) {
	t.Helper()

	if reflect.DeepEqual(got, want) {
		logFailedAssertion(t, formatUnequalValues(got, want), userMessage...)
	}
}

func logFailedAssertion(t *testing.T, summary string, userMessage ...interface{}) {
	t.Helper()
	text := summary

	if len(userMessage) > 0 {
		if message, ok := userMessage[0].(string); ok {
			if message != "" && len(userMessage) > 1 {
				text = fmt.Sprintf(message, userMessage[1:]...) + text
			} else if message != "" {
				text = fmt.Sprint(message) + text
			}
		}
	}

	t.Error(text)
}

func formatUnequalValues(got, want interface{}) string {
	var a, b string

	if reflect.TypeOf(got) != reflect.TypeOf(want) {
		a, b = fmt.Sprintf("%T(%#v)", got, got), fmt.Sprintf("%T(%#v)", want, want)
	} else {
		a, b = fmt.Sprintf("%#v", got), fmt.Sprintf("%#v", want)
	}

	return fmt.Sprintf("\ngot: %s\nwant: %s", a, b)
}

// fakeRand is a deterministic replacement for the package randomness that
// also counts how often it was consulted.
type fakeRand struct {
	values []float64
	calls  int
}

func (f *fakeRand) Float64() float64 {
	v := f.values[f.calls%len(f.values)]
	f.calls++
	return v
}

// swapRNG installs a deterministic random source for the duration of the
// test.
func swapRNG(t *testing.T, values ...float64) *fakeRand {
	t.Helper()
	fake := &fakeRand{values: values}
	old := rng
	rng = fake
	t.Cleanup(func() { rng = old })
	return fake
}

// testClient returns a client with a MockTransport bound, plus the transport
// for inspecting what was sent.
func testClient(t *testing.T, options ClientOptions) (*Client, *MockTransport) {
	t.Helper()
	transport := &MockTransport{}
	options.Transport = transport
	client, err := NewClient(options)
	if err != nil {
		t.Fatal(err)
	}
	return client, transport
}

// testHub returns a hub bound to a client with a MockTransport.
func testHub(t *testing.T, options ClientOptions) (*Hub, *MockTransport) {
	t.Helper()
	client, transport := testClient(t, options)
	return NewHub(client, NewScope()), transport
}
