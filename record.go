// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package vestig

import (
	"encoding/json"
	"time"
)

// Reserved correlation field keys. Contexts may carry arbitrary additional
// user keys next to these.
const (
	FieldRequestID = "requestId"
	FieldTraceID   = "traceId"
	FieldSpanID    = "spanId"
	FieldUserID    = "userId"
	FieldSessionID = "sessionId"
)

// Fields is a correlation context: a request-scoped mapping carrying the
// reserved correlation keys plus arbitrary user keys.
type Fields map[string]any

// Merge returns a new mapping equal to f overlaid with other; keys present
// in other win. Neither input is modified.
func (f Fields) Merge(other Fields) Fields {
	if len(f) == 0 && len(other) == 0 {
		return nil
	}
	out := make(Fields, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// TimestampLayout renders ISO-8601 with millisecond precision in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Record is a single fully-formed log line, after sanitization and context
// merging, as delivered to transports. A record is emitted once and must not
// be mutated by transports.
type Record struct {
	// Time is the wall-clock emission time. Serialized as ISO-8601 with
	// millisecond precision, UTC.
	Time time.Time

	Level   Level
	Message string

	// Metadata holds free-form structured data attached to the call.
	// Nil when the call carried none.
	Metadata map[string]any

	// Context is the merged correlation context, nil when empty.
	Context Fields

	// Runtime tags the producing runtime, e.g. "go".
	Runtime string

	// Namespace is the logger's fully-qualified namespace, empty for the
	// root logger.
	Namespace string

	// Err is the serialized error extracted from metadata, if any.
	Err *SerializedError
}

type recordJSON struct {
	Timestamp string           `json:"timestamp"`
	Level     string           `json:"level"`
	Message   string           `json:"message"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	Context   Fields           `json:"context,omitempty"`
	Runtime   string           `json:"runtime,omitempty"`
	Namespace string           `json:"namespace,omitempty"`
	Err       *SerializedError `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler using the wire shape shared by the
// structured console, HTTP and file transports.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Timestamp: r.Time.UTC().Format(TimestampLayout),
		Level:     r.Level.String(),
		Message:   r.Message,
		Metadata:  r.Metadata,
		Context:   r.Context,
		Runtime:   r.Runtime,
		Namespace: r.Namespace,
		Err:       r.Err,
	})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON. Used by tests and
// by consumers replaying file transport output.
func (r *Record) UnmarshalJSON(b []byte) error {
	var rj recordJSON
	if err := json.Unmarshal(b, &rj); err != nil {
		return err
	}
	t, err := time.Parse(TimestampLayout, rj.Timestamp)
	if err != nil {
		return err
	}
	lvl, _ := ParseLevel(rj.Level)
	*r = Record{
		Time:      t,
		Level:     lvl,
		Message:   rj.Message,
		Metadata:  rj.Metadata,
		Context:   rj.Context,
		Runtime:   rj.Runtime,
		Namespace: rj.Namespace,
		Err:       rj.Err,
	}
	return nil
}
