// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package otlp

import (
	"fmt"
	"strconv"

	"github.com/vestig-io/vestig-go/trace"
)

// OTLP/JSON wire shapes, following the OpenTelemetry protobuf JSON mapping:
// 64-bit integers and nanosecond timestamps are decimal strings.

type exportTraceServiceRequest struct {
	ResourceSpans []resourceSpans `json:"resourceSpans"`
}

type resourceSpans struct {
	Resource   resource     `json:"resource"`
	ScopeSpans []scopeSpans `json:"scopeSpans"`
}

type resource struct {
	Attributes []keyValue `json:"attributes"`
}

type scopeSpans struct {
	Scope scope      `json:"scope"`
	Spans []otlpSpan `json:"spans"`
}

type scope struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type otlpSpan struct {
	TraceID           string      `json:"traceId"`
	SpanID            string      `json:"spanId"`
	ParentSpanID      string      `json:"parentSpanId,omitempty"`
	Name              string      `json:"name"`
	Kind              int         `json:"kind"`
	StartTimeUnixNano string      `json:"startTimeUnixNano"`
	EndTimeUnixNano   string      `json:"endTimeUnixNano"`
	Attributes        []keyValue  `json:"attributes,omitempty"`
	Events            []otlpEvent `json:"events,omitempty"`
	Status            otlpStatus  `json:"status"`
}

type otlpEvent struct {
	TimeUnixNano string     `json:"timeUnixNano"`
	Name         string     `json:"name"`
	Attributes   []keyValue `json:"attributes,omitempty"`
}

type otlpStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type keyValue struct {
	Key   string   `json:"key"`
	Value anyValue `json:"value"`
}

type anyValue struct {
	StringValue *string      `json:"stringValue,omitempty"`
	IntValue    *string      `json:"intValue,omitempty"`
	DoubleValue *float64     `json:"doubleValue,omitempty"`
	BoolValue   *bool        `json:"boolValue,omitempty"`
	ArrayValue  *arrayValue  `json:"arrayValue,omitempty"`
	KvlistValue *kvlistValue `json:"kvlistValue,omitempty"`
}

type arrayValue struct {
	Values []anyValue `json:"values"`
}

type kvlistValue struct {
	Values []keyValue `json:"values"`
}

const spanKindInternal = 1

func convertSpan(s *trace.Span) otlpSpan {
	status, msg := s.Status()
	out := otlpSpan{
		TraceID:           s.TraceID(),
		SpanID:            s.SpanID(),
		ParentSpanID:      s.ParentSpanID(),
		Name:              s.Name(),
		Kind:              spanKindInternal,
		StartTimeUnixNano: nanos(s.StartTime().UnixNano()),
		EndTimeUnixNano:   nanos(s.EndTime().UnixNano()),
		Attributes:        convertAttributes(s.Attributes()),
		Status:            otlpStatus{Code: int(status), Message: msg},
	}
	for _, e := range s.Events() {
		out.Events = append(out.Events, otlpEvent{
			TimeUnixNano: nanos(e.Time.UnixNano()),
			Name:         e.Name,
			Attributes:   convertAttributes(e.Attributes),
		})
	}
	return out
}

func nanos(n int64) string {
	return strconv.FormatUint(uint64(n), 10)
}

func convertAttributes(attrs map[string]any) []keyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]keyValue, 0, len(attrs))
	for k, v := range attrs {
		out = append(out, keyValue{Key: k, Value: convertValue(v)})
	}
	return out
}

func convertValue(v any) anyValue {
	switch x := v.(type) {
	case string:
		return anyValue{StringValue: &x}
	case bool:
		return anyValue{BoolValue: &x}
	case int:
		return intValue(int64(x))
	case int8:
		return intValue(int64(x))
	case int16:
		return intValue(int64(x))
	case int32:
		return intValue(int64(x))
	case int64:
		return intValue(x)
	case uint:
		return intValue(int64(x))
	case uint8:
		return intValue(int64(x))
	case uint16:
		return intValue(int64(x))
	case uint32:
		return intValue(int64(x))
	case float32:
		f := float64(x)
		return anyValue{DoubleValue: &f}
	case float64:
		return anyValue{DoubleValue: &x}
	case []any:
		values := make([]anyValue, len(x))
		for i, e := range x {
			values[i] = convertValue(e)
		}
		return anyValue{ArrayValue: &arrayValue{Values: values}}
	case map[string]any:
		return anyValue{KvlistValue: &kvlistValue{Values: convertAttributes(x)}}
	default:
		s := fmt.Sprint(v)
		return anyValue{StringValue: &s}
	}
}

func intValue(n int64) anyValue {
	s := strconv.FormatInt(n, 10)
	return anyValue{IntValue: &s}
}
