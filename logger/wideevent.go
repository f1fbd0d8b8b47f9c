// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package logger

import (
	"errors"
	"sync"
	"time"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/logctx"
	"github.com/vestig-io/vestig-go/metrics"
	"github.com/vestig-io/vestig-go/sample"
)

// ErrEventEnded is returned by wide-event mutators after End.
var ErrEventEnded = errors.New("logger: wide event already ended")

// Wide-event statuses. The set is open; these are the conventional values.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
)

// WideEvent accumulates the facts of one unit of work as categorized fields
// and emits them as a single record at End. Safe for concurrent use.
type WideEvent struct {
	logger    *Logger
	eventType string
	startedAt time.Time

	mu         sync.Mutex
	ended      bool
	fields     map[string]map[string]any
	context    vestig.Fields
	endedAt    time.Time
	durationMs float64
	status     string
	err        *vestig.SerializedError
}

// StartWideEvent opens a wide event of the given type on l.
func (l *Logger) StartWideEvent(eventType string) *WideEvent {
	return &WideEvent{
		logger:    l,
		eventType: eventType,
		startedAt: time.Now(),
		fields:    make(map[string]map[string]any),
	}
}

// EventType returns the event's immutable type.
func (e *WideEvent) EventType() string { return e.eventType }

// StartedAt returns when the event was opened.
func (e *WideEvent) StartedAt() time.Time { return e.startedAt }

// Set records one field under a category.
func (e *WideEvent) Set(category, key string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return ErrEventEnded
	}
	if e.fields[category] == nil {
		e.fields[category] = make(map[string]any)
	}
	e.fields[category][key] = value
	return nil
}

// Get returns a recorded field.
func (e *WideEvent) Get(category, key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.fields[category][key]
	return v, ok
}

// Merge records several fields under one category.
func (e *WideEvent) Merge(category string, fields map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return ErrEventEnded
	}
	if e.fields[category] == nil {
		e.fields[category] = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		e.fields[category][k] = v
	}
	return nil
}

// MergeAll records fields across several categories.
func (e *WideEvent) MergeAll(byCategory map[string]map[string]any) error {
	for category, fields := range byCategory {
		if err := e.Merge(category, fields); err != nil {
			return err
		}
	}
	return nil
}

// SetContext overlays correlation fields on the event.
func (e *WideEvent) SetContext(fields vestig.Fields) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return ErrEventEnded
	}
	e.context = e.context.Merge(fields)
	return nil
}

// Context returns a copy of the event's correlation overlay.
func (e *WideEvent) Context() vestig.Fields {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.context.Clone()
}

// Fields returns a deep copy of the recorded category fields.
func (e *WideEvent) Fields() map[string]map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyFields(e.fields)
}

func copyFields(fields map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(fields))
	for category, kv := range fields {
		inner := make(map[string]any, len(kv))
		for k, v := range kv {
			inner[k] = v
		}
		out[category] = inner
	}
	return out
}

// Ended reports whether End has been called.
func (e *WideEvent) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

// DurationMs returns the event's duration; zero until End.
func (e *WideEvent) DurationMs() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.durationMs
}

// Status returns the event's outcome status; empty until End.
func (e *WideEvent) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// EndOption adjusts how a wide event completes.
type EndOption func(*endConfig)

type endConfig struct {
	status string
	err    error
}

// WithStatus sets the event's outcome status. Default "success", or
// "error" when an error is attached.
func WithStatus(status string) EndOption {
	return func(c *endConfig) { c.status = status }
}

// WithError attaches an error to the event.
func WithError(err error) EndOption {
	return func(c *endConfig) { c.err = err }
}

// End freezes the event, decides tail sampling and emits one record through
// the logger. Mutators fail afterwards; a second End returns ErrEventEnded.
func (e *WideEvent) End(opts ...EndOption) error {
	var cfg endConfig
	for _, o := range opts {
		o(&cfg)
	}

	e.mu.Lock()
	if e.ended {
		e.mu.Unlock()
		return ErrEventEnded
	}
	e.ended = true
	e.endedAt = time.Now()
	e.durationMs = float64(e.endedAt.Sub(e.startedAt)) / float64(time.Millisecond)
	e.status = cfg.status
	if cfg.err != nil {
		e.err = vestig.SerializeError(cfg.err)
		if e.status == "" {
			e.status = StatusError
		}
	}
	if e.status == "" {
		e.status = StatusSuccess
	}
	status := e.status
	durationMs := e.durationMs
	serr := e.err
	context := e.context.Clone()
	fields := copyFields(e.fields)
	e.mu.Unlock()

	var reason string
	if e.logger.tail != nil {
		decision := e.logger.tail.Decide(sample.TailView{
			Status:     status,
			DurationMs: durationMs,
			UserID:     contextUserID(context),
			Fields:     fields,
		})
		if !decision.Keep {
			metrics.RecordsSampledOut.Inc()
			return nil
		}
		reason = decision.Reason
	}

	metadata := e.flatten(status, durationMs, fields)
	if reason != "" {
		metadata["sampling.reason"] = reason
	}
	args := []any{e.eventType, metadata}
	if serr != nil {
		args = append(args, serr)
	}

	emit := e.logger.Info
	if status == StatusError {
		emit = e.logger.Error
	}
	if context != nil {
		logctx.With(context, func() { emit(args...) })
	} else {
		emit(args...)
	}
	return nil
}

func contextUserID(ctx vestig.Fields) string {
	if id, ok := ctx[vestig.FieldUserID].(string); ok {
		return id
	}
	return ""
}

// flatten renders the event as dotted-key metadata for the record pipeline.
func (e *WideEvent) flatten(status string, durationMs float64, fields map[string]map[string]any) map[string]any {
	out := make(map[string]any)
	for category, kv := range fields {
		for k, v := range kv {
			out[category+"."+k] = v
		}
	}
	out["event.type"] = e.eventType
	out["event.status"] = status
	out["event.duration_ms"] = durationMs
	out["event.started_at"] = e.startedAt.UTC().Format(vestig.TimestampLayout)
	e.mu.Lock()
	endedAt := e.endedAt
	e.mu.Unlock()
	if !endedAt.IsZero() {
		out["event.ended_at"] = endedAt.UTC().Format(vestig.TimestampLayout)
	}
	return out
}

// ToMetadata returns the flattened form of the event as it would be
// emitted.
func (e *WideEvent) ToMetadata() map[string]any {
	e.mu.Lock()
	status := e.status
	durationMs := e.durationMs
	fields := copyFields(e.fields)
	e.mu.Unlock()
	return e.flatten(status, durationMs, fields)
}
