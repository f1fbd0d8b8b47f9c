// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package trace

import (
	"encoding/json"
	"sync"
	"time"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/metrics"
	"github.com/vestig-io/vestig-go/propagation"
)

// Status is a span's outcome.
type Status int32

// Status values follow OTLP status codes.
const (
	StatusUnset Status = 0
	StatusOK    Status = 1
	StatusError Status = 2
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unset"
	}
}

// Event is a timestamped annotation on a span.
type Event struct {
	Name       string
	Time       time.Time
	Attributes map[string]any
}

// Span is one operation in a trace. Identity fields are immutable; the
// mutable state freezes when the span finishes, after which writes are
// silently ignored. Accessors return copies, so a processor can read a
// span another goroutine holds.
type Span struct {
	traceID      string
	spanID       string
	parentSpanID string
	name         string
	start        time.Time

	mu        sync.Mutex
	attrs     map[string]any
	events    []Event
	status    Status
	statusMsg string
	end       time.Time
	finished  bool
}

// StartOption configures a new span.
type StartOption func(*startConfig)

type startConfig struct {
	parent  *Span
	traceID string // adopted trace without a parent span
	attrs   map[string]any
}

// WithParent parents the span explicitly, overriding the active-span stack.
func WithParent(parent *Span) StartOption {
	return func(c *startConfig) { c.parent = parent }
}

// WithAttributes sets initial attributes.
func WithAttributes(attrs map[string]any) StartOption {
	return func(c *startConfig) {
		if c.attrs == nil {
			c.attrs = make(map[string]any, len(attrs))
		}
		for k, v := range attrs {
			c.attrs[k] = v
		}
	}
}

// WithAttribute sets one initial attribute.
func WithAttribute(key string, value any) StartOption {
	return func(c *startConfig) {
		if c.attrs == nil {
			c.attrs = make(map[string]any, 1)
		}
		c.attrs[key] = value
	}
}

// withTrace adopts an existing trace ID without a parent span. Used when
// only a correlation context is available.
func withTrace(traceID string) StartOption {
	return func(c *startConfig) { c.traceID = traceID }
}

// newSpan builds a span and notifies the registered processors.
func newSpan(name string, cfg startConfig) *Span {
	s := &Span{
		name:  name,
		start: time.Now(),
		attrs: cfg.attrs,
	}
	switch {
	case cfg.parent != nil:
		s.traceID = cfg.parent.traceID
		s.parentSpanID = cfg.parent.spanID
	case cfg.traceID != "":
		s.traceID = cfg.traceID
	default:
		s.traceID = propagation.NewTraceID()
	}
	s.spanID = propagation.NewSpanID()
	metrics.SpansStarted.Inc()
	notifyStart(s)
	return s
}

// TraceID returns the span's trace ID.
func (s *Span) TraceID() string { return s.traceID }

// SpanID returns the span's ID.
func (s *Span) SpanID() string { return s.spanID }

// ParentSpanID returns the parent span's ID, empty for a root span.
func (s *Span) ParentSpanID() string { return s.parentSpanID }

// Name returns the span's name.
func (s *Span) Name() string { return s.name }

// StartTime returns when the span started.
func (s *Span) StartTime() time.Time { return s.start }

// EndTime returns when the span finished, zero while running.
func (s *Span) EndTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end
}

// Duration returns end−start for a finished span and elapsed-so-far for a
// running one.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return s.end.Sub(s.start)
	}
	return time.Since(s.start)
}

// Finished reports whether the span has ended.
func (s *Span) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// SetAttribute sets one attribute. Ignored after Finish.
func (s *Span) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.attrs == nil {
		s.attrs = make(map[string]any)
	}
	s.attrs[key] = value
}

// SetAttributes sets several attributes. Ignored after Finish.
func (s *Span) SetAttributes(attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.attrs == nil {
		s.attrs = make(map[string]any, len(attrs))
	}
	for k, v := range attrs {
		s.attrs[k] = v
	}
}

// Attributes returns a copy of the span's attributes.
func (s *Span) Attributes() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

// AddEvent appends a timestamped event. Ignored after Finish.
func (s *Span) AddEvent(name string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.events = append(s.events, Event{Name: name, Time: time.Now(), Attributes: attrs})
}

// Events returns a copy of the span's events.
func (s *Span) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// SetStatus sets the span's status. Ignored after Finish.
func (s *Span) SetStatus(status Status, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.status = status
	s.statusMsg = message
}

// Status returns the span's status and message.
func (s *Span) Status() (Status, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.statusMsg
}

// RecordError marks the span errored with the error's message. Ignored
// after Finish and for nil errors.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.SetStatus(StatusError, vestig.ErrorMessage(err))
}

// Finish ends the span and notifies the registered processors. Only the
// first call has effect.
func (s *Span) Finish() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.end = time.Now()
	s.mu.Unlock()
	metrics.SpansFinished.Inc()
	notifyEnd(s)
}

type spanJSON struct {
	TraceID      string           `json:"traceId"`
	SpanID       string           `json:"spanId"`
	ParentSpanID string           `json:"parentSpanId,omitempty"`
	Name         string           `json:"name"`
	StartTime    string           `json:"startTime"`
	EndTime      string           `json:"endTime,omitempty"`
	DurationMs   float64          `json:"durationMs,omitempty"`
	Attributes   map[string]any   `json:"attributes,omitempty"`
	Events       []eventJSON      `json:"events,omitempty"`
	Status       string           `json:"status"`
	StatusMsg    string           `json:"statusMessage,omitempty"`
}

type eventJSON struct {
	Name       string         `json:"name"`
	Time       string         `json:"time"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// MarshalJSON emits a transport-friendly rendering of the span.
func (s *Span) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := spanJSON{
		TraceID:      s.traceID,
		SpanID:       s.spanID,
		ParentSpanID: s.parentSpanID,
		Name:         s.name,
		StartTime:    s.start.UTC().Format(vestig.TimestampLayout),
		Attributes:   s.attrs,
		Status:       s.status.String(),
		StatusMsg:    s.statusMsg,
	}
	if s.finished {
		out.EndTime = s.end.UTC().Format(vestig.TimestampLayout)
		out.DurationMs = float64(s.end.Sub(s.start)) / float64(time.Millisecond)
	}
	for _, e := range s.events {
		out.Events = append(out.Events, eventJSON{
			Name:       e.Name,
			Time:       e.Time.UTC().Format(vestig.TimestampLayout),
			Attributes: e.Attributes,
		})
	}
	return json.Marshal(out)
}
