// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package propagation

import (
	"fmt"
	"strings"
)

// Header names defined by the W3C Trace Context recommendation.
const (
	TraceparentHeader = "traceparent"
	TracestateHeader  = "tracestate"
)

// Traceparent is the parsed form of a traceparent header. Only version 00 is
// accepted; the producer side always emits version 00 with the sampled flag
// set.
type Traceparent struct {
	TraceID string // 32 lowercase hex characters
	SpanID  string // 16 lowercase hex characters
	Sampled bool
}

// traceparentLen is the fixed length of a version-00 header:
// `00-<32 hex>-<16 hex>-<2 hex>`.
const traceparentLen = 55

// ParseTraceparent parses a traceparent header. It returns false for the
// empty string, any version other than 00, wrong segment lengths or
// non-hex segments.
func ParseTraceparent(header string) (Traceparent, bool) {
	header = strings.ToLower(strings.TrimSpace(header))
	if len(header) != traceparentLen {
		return Traceparent{}, false
	}
	parts := strings.Split(header, "-")
	if len(parts) != 4 {
		return Traceparent{}, false
	}
	if parts[0] != "00" {
		return Traceparent{}, false
	}
	if !ValidTraceID(parts[1]) || !ValidSpanID(parts[2]) {
		return Traceparent{}, false
	}
	flags := parts[3]
	if len(flags) != 2 || !isLowerHex(flags, 2) {
		return Traceparent{}, false
	}
	return Traceparent{
		TraceID: parts[1],
		SpanID:  parts[2],
		Sampled: flags[1]&0x1 == 0x1,
	}, true
}

// FormatTraceparent renders a version-00 header with the sampled flag set.
// The IDs are assumed valid; use ValidTraceID/ValidSpanID when accepting
// external input.
func FormatTraceparent(traceID, spanID string) string {
	return fmt.Sprintf("00-%s-%s-01", traceID, spanID)
}
