// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package trace implements the span engine: span lifecycle, the active-span
// stack, the processor registry and the scoped span helpers.
package trace

import (
	"context"
	"fmt"
	"sync"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/logctx"
)

var (
	stackMu sync.Mutex
	stack   []*Span
)

func pushSpan(s *Span) {
	stackMu.Lock()
	defer stackMu.Unlock()
	stack = append(stack, s)
}

// popSpan removes s from the stack. Usually s is the top; out-of-order
// finishes remove it from wherever it sits.
func popSpan(s *Span) {
	stackMu.Lock()
	defer stackMu.Unlock()
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == s {
			stack = append(stack[:i], stack[i+1:]...)
			return
		}
	}
}

// Active returns the innermost unfinished span, nil when none.
func Active() *Span {
	stackMu.Lock()
	defer stackMu.Unlock()
	if len(stack) == 0 {
		return nil
	}
	return stack[len(stack)-1]
}

// StackDepth returns the active-span stack depth. Intended for tests.
func StackDepth() int {
	stackMu.Lock()
	defer stackMu.Unlock()
	return len(stack)
}

// ClearStack empties the active-span stack without finishing anything.
// Intended for tests.
func ClearStack() {
	stackMu.Lock()
	defer stackMu.Unlock()
	stack = nil
}

// WithActive runs fn with the active span iff one exists.
func WithActive(fn func(s *Span)) {
	if s := Active(); s != nil {
		fn(s)
	}
}

// resolveParent applies the parent priority: an explicit option wins, then
// the active-span stack, then a trace ID found in the correlation context
// (adopted without a parent span), then a fresh trace.
func resolveParent(cfg *startConfig, ctx context.Context) {
	if cfg.parent != nil || cfg.traceID != "" {
		return
	}
	if s := Active(); s != nil {
		cfg.parent = s
		return
	}
	var fields vestig.Fields
	if ctx != nil {
		fields, _ = logctx.FromContext(ctx)
	}
	if fields == nil {
		fields, _ = logctx.Current()
	}
	if id, ok := fields[vestig.FieldTraceID].(string); ok && id != "" {
		cfg.traceID = id
	}
}

// Start creates a span and pushes it on the active-span stack. Pair with
// Finish; prefer Do when the operation is a single callable.
func Start(name string, opts ...StartOption) *Span {
	return startContext(nil, name, opts)
}

// StartContext is Start with context.Context parent resolution: a trace ID
// carried by ctx's correlation context is adopted when no explicit parent or
// active span exists.
func StartContext(ctx context.Context, name string, opts ...StartOption) *Span {
	return startContext(ctx, name, opts)
}

func startContext(ctx context.Context, name string, opts []StartOption) *Span {
	var cfg startConfig
	for _, o := range opts {
		o(&cfg)
	}
	resolveParent(&cfg, ctx)
	s := newSpan(name, cfg)
	pushSpan(s)
	return s
}

// Finish ends s and pops it from the active-span stack.
func Finish(s *Span) {
	if s == nil {
		return
	}
	s.Finish()
	popSpan(s)
}

// Do runs fn inside a span. The span is entered on the active-span stack
// and its trace and span IDs are published to the correlation scope for the
// duration. A returned error sets the span status to error; a clean return
// with the status still unset sets ok. A panic sets the error status, ends
// the span and repanics.
func Do(name string, fn func(s *Span) error, opts ...StartOption) error {
	s := startContext(nil, name, opts)
	defer finishScoped(s)
	var err error
	logctx.With(spanFields(s), func() {
		err = fn(s)
	})
	settle(s, err)
	return err
}

// DoContext is Do with context.Context correlation: the span's trace and
// span IDs are injected into the context handed to fn.
func DoContext(ctx context.Context, name string, fn func(ctx context.Context, s *Span) error, opts ...StartOption) error {
	s := startContext(ctx, name, opts)
	defer finishScoped(s)
	ctx = logctx.Inject(ctx, spanFields(s))
	var err error
	logctx.With(spanFields(s), func() {
		err = fn(ctx, s)
	})
	settle(s, err)
	return err
}

func spanFields(s *Span) vestig.Fields {
	return vestig.Fields{
		vestig.FieldTraceID: s.traceID,
		vestig.FieldSpanID:  s.spanID,
	}
}

// finishScoped settles a panicking span before ending it, then repanics.
func finishScoped(s *Span) {
	if r := recover(); r != nil {
		s.SetStatus(StatusError, fmt.Sprint(r))
		Finish(s)
		panic(r)
	}
	Finish(s)
}

func settle(s *Span, err error) {
	status, _ := s.Status()
	switch {
	case err != nil:
		s.SetStatus(StatusError, vestig.ErrorMessage(err))
	case status == StatusUnset:
		s.SetStatus(StatusOK, "")
	}
}
