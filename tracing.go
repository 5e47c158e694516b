package faultline

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faultline-hq/faultline-go/internal/debuglog"
)

// maxSpans limits the number of recorded spans per transaction. Spans started
// past the limit are still usable, just not reported.
const maxSpans = 1000

// A TraceID identifies a trace, a set of transactions and spans sharing a
// common origin.
type TraceID [16]byte

func newTraceID() TraceID {
	return TraceID(uuid.New())
}

var zeroTraceID TraceID

func (id TraceID) Hex() []byte {
	b := make([]byte, hex.EncodedLen(len(id)))
	hex.Encode(b, id[:])
	return b
}

func (id TraceID) String() string {
	return string(id.Hex())
}

func (id TraceID) MarshalText() ([]byte, error) {
	return id.Hex(), nil
}

// A SpanID identifies a span within a trace.
type SpanID [8]byte

func newSpanID() SpanID {
	var id SpanID
	u := uuid.New()
	copy(id[:], u[:])
	return id
}

var zeroSpanID SpanID

func (id SpanID) Hex() []byte {
	b := make([]byte, hex.EncodedLen(len(id)))
	hex.Encode(b, id[:])
	return b
}

func (id SpanID) String() string {
	return string(id.Hex())
}

func (id SpanID) MarshalText() ([]byte, error) {
	return id.Hex(), nil
}

// SpanStatus is the status of a span.
type SpanStatus uint8

const (
	SpanStatusUndefined SpanStatus = iota
	SpanStatusOK
	SpanStatusCanceled
	SpanStatusUnknown
	SpanStatusInvalidArgument
	SpanStatusDeadlineExceeded
	SpanStatusNotFound
	SpanStatusAlreadyExists
	SpanStatusPermissionDenied
	SpanStatusResourceExhausted
	SpanStatusFailedPrecondition
	SpanStatusAborted
	SpanStatusOutOfRange
	SpanStatusUnimplemented
	SpanStatusInternalError
	SpanStatusUnavailable
	SpanStatusDataLoss
	SpanStatusUnauthenticated
	maxSpanStatus
)

func (ss SpanStatus) String() string {
	if ss >= maxSpanStatus {
		return ""
	}
	m := [maxSpanStatus]string{
		"",
		"ok",
		"cancelled", // [sic]
		"unknown",
		"invalid_argument",
		"deadline_exceeded",
		"not_found",
		"already_exists",
		"permission_denied",
		"resource_exhausted",
		"failed_precondition",
		"aborted",
		"out_of_range",
		"unimplemented",
		"internal_error",
		"unavailable",
		"data_loss",
		"unauthenticated",
	}
	return m[ss]
}

func (ss SpanStatus) MarshalJSON() ([]byte, error) {
	s := ss.String()
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(s)
}

// Sampled signifies a sampling decision.
type Sampled int8

// The possible trace sampling decisions are: SampledFalse, SampledUndefined
// (default) and SampledTrue.
const (
	SampledFalse     Sampled = -1
	SampledUndefined Sampled = 0
	SampledTrue      Sampled = 1
)

func (s Sampled) String() string {
	switch s {
	case SampledFalse:
		return "SampledFalse"
	case SampledUndefined:
		return "SampledUndefined"
	case SampledTrue:
		return "SampledTrue"
	default:
		return fmt.Sprintf("SampledInvalid(%d)", s)
	}
}

// Bool returns true if the sample decision is SampledTrue, false otherwise.
func (s Sampled) Bool() bool {
	return s == SampledTrue
}

// TraceContext describes the context of the trace an event belongs to.
type TraceContext struct {
	TraceID      TraceID    `json:"trace_id"`
	SpanID       SpanID     `json:"span_id"`
	ParentSpanID SpanID     `json:"parent_span_id"`
	Op           string     `json:"op,omitempty"`
	Description  string     `json:"description,omitempty"`
	Status       SpanStatus `json:"status,omitempty"`
}

func (tc *TraceContext) MarshalJSON() ([]byte, error) {
	// traceContext aliases TraceContext to allow calling json.Marshal without
	// an infinite loop. A zero parent span ID means the transaction is a trace
	// root and the field must be omitted entirely.
	type traceContext TraceContext
	var parentSpanID string
	if tc.ParentSpanID != zeroSpanID {
		parentSpanID = tc.ParentSpanID.String()
	}
	return json.Marshal(struct {
		*traceContext
		ParentSpanID string `json:"parent_span_id,omitempty"`
	}{
		traceContext: (*traceContext)(tc),
		ParentSpanID: parentSpanID,
	})
}

// TransactionSource tells the collector how the transaction name was
// generated, which determines how it may be grouped.
type TransactionSource string

const (
	SourceCustom    TransactionSource = "custom"
	SourceURL       TransactionSource = "url"
	SourceRoute     TransactionSource = "route"
	SourceView      TransactionSource = "view"
	SourceComponent TransactionSource = "component"
	SourceTask      TransactionSource = "task"
)

// TransactionContext is the set of parameters that start a transaction.
//
// Identifiers left zero are generated. The Sampled field, when not
// SampledUndefined, is a decision inherited verbatim from an upstream service
// and is honored without consulting any sample rate. ParentSampled, in
// contrast, only biases the decision: it resolves to a rate of 1.0 or 0.0
// which a TracesSampler may still override.
type TransactionContext struct {
	Name          string
	Op            string
	TraceID       TraceID
	SpanID        SpanID
	ParentSpanID  SpanID
	Sampled       Sampled
	ParentSampled Sampled
	Source        TransactionSource
}

// CustomSamplingContext carries arbitrary user data to the TracesSampler.
type CustomSamplingContext map[string]interface{}

// SamplingContext is passed to a TracesSampler to determine a sampling
// decision.
type SamplingContext struct {
	Span                  *Span
	TransactionContext    TransactionContext
	CustomSamplingContext CustomSamplingContext
}

// A Span is the building block of a trace. Spans build up a tree structure of
// timed operations. The root of the tree is the transaction.
type Span struct {
	TraceID      TraceID                `json:"trace_id"`
	SpanID       SpanID                 `json:"span_id"`
	ParentSpanID SpanID                 `json:"parent_span_id"`
	Name         string                 `json:"-"`
	Op           string                 `json:"op,omitempty"`
	Description  string                 `json:"description,omitempty"`
	Status       SpanStatus             `json:"status,omitempty"`
	Tags         map[string]string      `json:"tags,omitempty"`
	StartTime    time.Time              `json:"start_timestamp"`
	EndTime      time.Time              `json:"timestamp"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Sampled      Sampled                `json:"-"`
	Source       TransactionSource      `json:"-"`

	// sampleRate is the rate that led to the sampling decision, when one was
	// consulted. Decisions inherited verbatim from upstream have no rate.
	sampleRate float64
	// hub that started the transaction; used to capture the finished event.
	hub *Hub
	// parent is the immediate local parent span, nil for transactions.
	parent *Span
	// recorder collects all spans of the transaction's tree. Shared by all
	// spans of a transaction.
	recorder *spanRecorder
	// finishOnce makes Finish idempotent.
	finishOnce sync.Once
	// profiler is non-nil when the transaction is being profiled.
	profiler transactionProfiler
	// contexts to merge into the transaction event.
	contexts map[string]interface{}
}

// StartTransaction starts a new transaction rooted at the hub. The sampling
// decision is made immediately, before any work happens, so that unsampled
// transactions are as cheap as possible.
func (hub *Hub) StartTransaction(tctx TransactionContext, customSamplingContext CustomSamplingContext) *Span {
	span := &Span{
		TraceID:      tctx.TraceID,
		SpanID:       tctx.SpanID,
		ParentSpanID: tctx.ParentSpanID,
		Name:         tctx.Name,
		Op:           tctx.Op,
		Source:       tctx.Source,
		StartTime:    time.Now(),
		Tags:         map[string]string{},
		Data:         map[string]interface{}{},
		hub:          hub,
		recorder:     &spanRecorder{},
	}
	if span.TraceID == zeroTraceID {
		span.TraceID = newTraceID()
	}
	if span.SpanID == zeroSpanID {
		span.SpanID = newSpanID()
	}
	if span.Source == "" {
		span.Source = SourceCustom
	}
	span.recorder.record(span)

	span.sample(tctx, customSamplingContext)

	if span.Sampled.Bool() {
		hub.ConfigureScope(func(scope *Scope) {
			scope.SetSpan(span)
		})
		span.maybeProfile()
	}

	return span
}

// IsTransaction reports whether the span is the root of its span tree.
func (s *Span) IsTransaction() bool {
	return s.parent == nil
}

// GetTransaction returns the root span of the span's tree.
func (s *Span) GetTransaction() *Span {
	if s.recorder == nil {
		// Spans built by hand, not via StartTransaction/StartChild, have no
		// tree to speak of.
		return nil
	}
	return s.recorder.root()
}

// StartChild starts a new child span timing the given operation.
//
// Children share the transaction's sampling decision; no new decision is
// made.
func (s *Span) StartChild(operation string) *Span {
	child := &Span{
		TraceID:      s.TraceID,
		SpanID:       newSpanID(),
		ParentSpanID: s.SpanID,
		Op:           operation,
		StartTime:    time.Now(),
		Sampled:      s.Sampled,
		sampleRate:   s.sampleRate,
		hub:          s.hub,
		parent:       s,
		recorder:     s.recorder,
	}
	if child.recorder != nil {
		child.recorder.record(child)
	}
	return child
}

// SetTag sets a tag on the span.
func (s *Span) SetTag(name, value string) {
	if s.Tags == nil {
		s.Tags = make(map[string]string)
	}
	s.Tags[name] = value
}

// SetData sets a data entry on the span.
func (s *Span) SetData(name string, value interface{}) {
	if value == nil {
		return
	}
	if s.Data == nil {
		s.Data = make(map[string]interface{})
	}
	s.Data[name] = value
}

// SetContext sets a context on the transaction event that will eventually be
// sent for this span's tree.
func (s *Span) SetContext(key string, value interface{}) {
	t := s.GetTransaction()
	if t == nil {
		return
	}
	if t.contexts == nil {
		t.contexts = make(map[string]interface{})
	}
	t.contexts[key] = value
}

// Finish sets the span's end time and, for sampled transactions, captures the
// transaction event through the hub. Finishing an unsampled span is a cheap
// no-op beyond recording the end time. Finish is idempotent.
func (s *Span) Finish() {
	s.finishOnce.Do(s.doFinish)
}

func (s *Span) doFinish() {
	if s.EndTime.IsZero() {
		s.EndTime = monotonicTimeSince(s.StartTime)
	}
	if !s.Sampled.Bool() {
		return
	}
	if !s.IsTransaction() {
		return
	}
	if s.profiler != nil {
		s.profiler.Finish(s)
	}
	event := s.toEvent()
	if event == nil {
		return
	}
	s.hub.CaptureEvent(event)
}

// monotonicTimeSince computes an end time anchored to the start time's
// monotonic clock reading, so span durations are immune to wall clock
// adjustments.
func monotonicTimeSince(start time.Time) time.Time {
	return start.Add(time.Since(start))
}

func (s *Span) toEvent() *Event {
	if !s.IsTransaction() {
		return nil
	}

	children := s.recorder.children()
	finished := make([]*Span, 0, len(children))
	for _, child := range children {
		if child.EndTime.IsZero() {
			debuglog.Printf("Dropped unfinished span: Op=%q TraceID=%s SpanID=%s\n", child.Op, child.TraceID, child.SpanID)
			continue
		}
		finished = append(finished, child)
	}

	contexts := map[string]interface{}{}
	for k, v := range s.contexts {
		contexts[k] = v
	}
	contexts["trace"] = s.traceContext()

	return &Event{
		Type:        transactionType,
		Transaction: s.Name,
		Contexts:    contexts,
		Tags:        s.Tags,
		Extra:       s.Data,
		Timestamp:   s.EndTime,
		StartTime:   s.StartTime,
		Spans:       finished,
	}
}

func (s *Span) traceContext() *TraceContext {
	return &TraceContext{
		TraceID:      s.TraceID,
		SpanID:       s.SpanID,
		ParentSpanID: s.ParentSpanID,
		Op:           s.Op,
		Description:  s.Description,
		Status:       s.Status,
	}
}

func (s *Span) MarshalJSON() ([]byte, error) {
	// span aliases Span to allow calling json.Marshal without an infinite
	// loop. A zero parent span ID must be omitted, not serialized as zeros.
	type span Span
	var parentSpanID string
	if s.ParentSpanID != zeroSpanID {
		parentSpanID = s.ParentSpanID.String()
	}
	return json.Marshal(struct {
		*span
		ParentSpanID string `json:"parent_span_id,omitempty"`
	}{
		span:         (*span)(s),
		ParentSpanID: parentSpanID,
	})
}

// sample resolves the transaction's sampling decision:
//
//  1. Tracing disabled: not sampled.
//  2. Explicit upstream decision in tctx.Sampled: honored verbatim, no
//     sample rate consulted or recorded.
//  3. TracesSampler, when configured, computes the rate. It sees the parent
//     decision in the sampling context and may override it.
//  4. Otherwise the parent decision resolves to a rate of 1.0 or 0.0.
//  5. Otherwise the static TracesSampleRate applies.
//
// Invalid rates disable sampling for the transaction rather than fail. The
// boundary rates 0.0 and 1.0 decide deterministically without consuming
// randomness.
func (s *Span) sample(tctx TransactionContext, customSamplingContext CustomSamplingContext) {
	client := s.hub.Client()
	if client == nil || !client.options.IsTracingEnabled() {
		s.Sampled = SampledFalse
		return
	}
	options := client.options

	if tctx.Sampled != SampledUndefined {
		s.Sampled = tctx.Sampled
		return
	}

	var sampleRate float64
	if sampler := options.TracesSampler; sampler != nil {
		sampleRate = sampler.Sample(SamplingContext{
			Span:                  s,
			TransactionContext:    tctx,
			CustomSamplingContext: customSamplingContext,
		})
	} else {
		switch tctx.ParentSampled {
		case SampledTrue:
			sampleRate = 1.0
		case SampledFalse:
			sampleRate = 0.0
		default:
			sampleRate = options.TracesSampleRate
		}
	}

	if math.IsNaN(sampleRate) || sampleRate < 0.0 || sampleRate > 1.0 {
		debuglog.Printf("The sample rate must be between 0 and 1, got: %f\n", sampleRate)
		s.Sampled = SampledFalse
		return
	}
	s.sampleRate = sampleRate

	switch sampleRate {
	case 0.0:
		debuglog.Printf("Dropping transaction: TracesSampleRate rate is: %f\n", sampleRate)
		s.Sampled = SampledFalse
	case 1.0:
		s.Sampled = SampledTrue
	default:
		if rng.Float64() < sampleRate {
			s.Sampled = SampledTrue
		} else {
			s.Sampled = SampledFalse
		}
	}
}

// maybeProfile decides independently of the trace decision whether to profile
// the transaction. Only sampled transactions get here.
func (s *Span) maybeProfile() {
	if startTransactionProfiler == nil {
		return
	}
	client := s.hub.Client()
	if client == nil {
		return
	}
	rate := client.options.ProfilesSampleRate
	if math.IsNaN(rate) || rate <= 0.0 || rate > 1.0 {
		return
	}
	if rate < 1.0 && rng.Float64() >= rate {
		return
	}
	s.profiler = startTransactionProfiler(s)
}

// transactionProfiler collects a profile of a running transaction.
type transactionProfiler interface {
	Finish(span *Span)
}

// startTransactionProfiler is the profiler factory. There is no default
// profiler; integrations may install one.
var startTransactionProfiler func(span *Span) transactionProfiler

// spanRecorder collects the spans of a single transaction tree. The first
// recorded span is the root.
type spanRecorder struct {
	mu           sync.Mutex
	spans        []*Span
	overflowOnce sync.Once
}

func (r *spanRecorder) record(s *Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.spans) >= maxSpans {
		r.overflowOnce.Do(func() {
			root := r.spans[0]
			debuglog.Printf("Too many spans: dropping spans from transaction with TraceID=%s SpanID=%s\n", root.TraceID, root.SpanID)
		})
		return
	}
	r.spans = append(r.spans, s)
}

// root returns the first recorded span, the root of the transaction tree.
func (r *spanRecorder) root() *Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.spans) == 0 {
		return nil
	}
	return r.spans[0]
}

// children returns all recorded spans except the root.
func (r *spanRecorder) children() []*Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.spans) == 0 {
		return nil
	}
	return r.spans[1:]
}

// floatRand is the source of randomness for sampling decisions. Tests swap it
// to count or fix the draws.
type floatRand interface {
	Float64() float64
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (lr *lockedRand) Float64() float64 {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.r.Float64()
}

var rng floatRand = &lockedRand{
	// The default math/rand source is prone to being seeded identically by
	// unrelated packages. A private source avoids interference.
	r: rand.New(rand.NewSource(time.Now().UnixNano())),
}
