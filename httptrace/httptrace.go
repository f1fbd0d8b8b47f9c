// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package httptrace instruments outbound HTTP clients: each request runs
// inside a span carrying OpenTelemetry HTTP attributes, and the W3C
// traceparent header is injected for downstream correlation.
package httptrace

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vestig-io/vestig-go/internal/log"
	"github.com/vestig-io/vestig-go/propagation"
	"github.com/vestig-io/vestig-go/trace"
)

// DefaultSpanPrefix names client spans "<prefix> <METHOD> <host><path>".
const DefaultSpanPrefix = "http.client"

// Options configures the instrumentation.
type Options struct {
	// SpanPrefix overrides the default span name prefix.
	SpanPrefix string

	// IgnoreURLs skips matching requests: plain strings match by substring,
	// patterns by regexp.
	IgnoreURLs []any

	// PropagateContext injects the traceparent header. Nil means on.
	PropagateContext *bool

	// CaptureRequestHeaders and CaptureResponseHeaders name headers to copy
	// onto the span as http.request.header.<name> / http.response.header.<name>.
	CaptureRequestHeaders  []string
	CaptureResponseHeaders []string

	// Base is the transport being wrapped. Nil means http.DefaultTransport.
	Base http.RoundTripper
}

// RoundTripper is the instrumenting http.RoundTripper.
type RoundTripper struct {
	base       http.RoundTripper
	prefix     string
	substrings []string
	patterns   []*regexp.Regexp
	propagate  bool
	reqHeaders []string
	resHeaders []string
}

// NewRoundTripper wraps a transport. Use it to instrument a specific
// http.Client; Instrument wraps the process default.
func NewRoundTripper(opts Options) *RoundTripper {
	rt := &RoundTripper{
		base:       opts.Base,
		prefix:     opts.SpanPrefix,
		propagate:  true,
		reqHeaders: opts.CaptureRequestHeaders,
		resHeaders: opts.CaptureResponseHeaders,
	}
	if rt.base == nil {
		rt.base = http.DefaultTransport
	}
	if rt.prefix == "" {
		rt.prefix = DefaultSpanPrefix
	}
	if opts.PropagateContext != nil {
		rt.propagate = *opts.PropagateContext
	}
	for _, entry := range opts.IgnoreURLs {
		switch m := entry.(type) {
		case string:
			rt.substrings = append(rt.substrings, m)
		case *regexp.Regexp:
			rt.patterns = append(rt.patterns, m)
		default:
			log.Warn("httptrace: ignoring unsupported ignore-URL entry of type %T", entry)
		}
	}
	return rt
}

func (rt *RoundTripper) ignored(url string) bool {
	for _, s := range rt.substrings {
		if strings.Contains(url, s) {
			return true
		}
	}
	for _, p := range rt.patterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

// RoundTrip implements http.RoundTripper.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || rt.ignored(req.URL.String()) {
		return rt.base.RoundTrip(req)
	}

	name := fmt.Sprintf("%s %s %s%s", rt.prefix, req.Method, req.URL.Host, req.URL.Path)
	s := trace.StartContext(req.Context(), name)
	defer trace.Finish(s)

	attrs := map[string]any{
		"http.request.method": req.Method,
		"url.full":            req.URL.String(),
		"url.scheme":          req.URL.Scheme,
		"server.address":      req.URL.Hostname(),
		"url.path":            req.URL.Path,
	}
	if port := req.URL.Port(); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			attrs["server.port"] = n
		}
	}
	if q := req.URL.RawQuery; q != "" {
		attrs["url.query"] = q
	}
	for _, h := range rt.reqHeaders {
		if v := req.Header.Get(h); v != "" {
			attrs["http.request.header."+strings.ToLower(h)] = v
		}
	}
	s.SetAttributes(attrs)

	if rt.propagate {
		// clone before mutating headers; the caller's request must stay
		// untouched per the RoundTripper contract
		req = req.Clone(req.Context())
		req.Header.Set(propagation.TraceparentHeader, propagation.FormatTraceparent(s.TraceID(), s.SpanID()))
	}

	start := time.Now()
	resp, err := rt.base.RoundTrip(req)
	durationMs := float64(time.Since(start)) / float64(time.Millisecond)
	s.SetAttribute("http.response.duration_ms", durationMs)

	if err != nil {
		s.SetAttribute("error.type", fmt.Sprintf("%T", err))
		s.RecordError(err)
		return nil, err
	}

	s.SetAttribute("http.response.status_code", resp.StatusCode)
	for _, h := range rt.resHeaders {
		if v := resp.Header.Get(h); v != "" {
			s.SetAttribute("http.response.header."+strings.ToLower(h), v)
		}
	}
	if resp.StatusCode >= 400 {
		s.SetStatus(trace.StatusError, fmt.Sprintf("HTTP %d", resp.StatusCode))
	} else {
		s.SetStatus(trace.StatusOK, "")
	}
	return resp, nil
}

var (
	instMu       sync.Mutex
	instrumented bool
	original     http.RoundTripper
)

// Instrument wraps http.DefaultTransport. A second call warns and does
// nothing.
func Instrument(opts Options) {
	instMu.Lock()
	defer instMu.Unlock()
	if instrumented {
		log.Warn("httptrace: default transport is already instrumented")
		return
	}
	original = http.DefaultTransport
	opts.Base = original
	http.DefaultTransport = NewRoundTripper(opts)
	instrumented = true
}

// Uninstrument restores the original default transport.
func Uninstrument() {
	instMu.Lock()
	defer instMu.Unlock()
	if !instrumented {
		return
	}
	http.DefaultTransport = original
	original = nil
	instrumented = false
}

// IsInstrumented reports whether the default transport is wrapped.
func IsInstrumented() bool {
	instMu.Lock()
	defer instMu.Unlock()
	return instrumented
}
