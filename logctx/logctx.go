// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package logctx carries a request-scoped correlation context through a
// program without threading it through every call signature.
//
// Two backends exist. The first-class backend rides on context.Context:
// Inject returns a derived context and FromContext reads it back; this is the
// mechanism to prefer, it is sound under any degree of parallelism. The
// fallback is a process-wide scope stack manipulated by With: it requires no
// context plumbing but is cooperative-only — scopes opened by interleaved
// goroutines observe each other. The stack itself is mutex-guarded and never
// corrupts, but scoping discipline across goroutines is the caller's
// responsibility. Code that can pass a context.Context should.
package logctx

import (
	"context"
	"sync"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/propagation"
)

type ctxKey struct{}

// Inject returns a context carrying the given fields merged over any fields
// already present (inner overrides outer by key).
func Inject(ctx context.Context, fields vestig.Fields) context.Context {
	base, _ := FromContext(ctx)
	return context.WithValue(ctx, ctxKey{}, base.Merge(fields))
}

// FromContext returns the correlation context carried by ctx.
func FromContext(ctx context.Context) (vestig.Fields, bool) {
	if ctx == nil {
		return nil, false
	}
	f, ok := ctx.Value(ctxKey{}).(vestig.Fields)
	return f, ok && f != nil
}

var (
	mu    sync.Mutex
	stack []vestig.Fields // innermost last; each entry is pre-merged
)

// Current returns the innermost active context from the scope stack.
func Current() (vestig.Fields, bool) {
	mu.Lock()
	defer mu.Unlock()
	if len(stack) == 0 {
		return nil, false
	}
	return stack[len(stack)-1], true
}

// With runs fn inside a scope whose context equals the current context merged
// with fields. The previous scope is restored when fn returns, including on
// panic.
func With(fields vestig.Fields, fn func()) {
	push(fields)
	defer pop()
	fn()
}

// WithErr is With for callables that return an error. The error is returned
// unchanged.
func WithErr(fields vestig.Fields, fn func() error) error {
	push(fields)
	defer pop()
	return fn()
}

func push(fields vestig.Fields) {
	mu.Lock()
	defer mu.Unlock()
	var base vestig.Fields
	if len(stack) > 0 {
		base = stack[len(stack)-1]
	}
	stack = append(stack, base.Merge(fields))
}

func pop() {
	mu.Lock()
	defer mu.Unlock()
	if len(stack) > 0 {
		stack = stack[:len(stack)-1]
	}
}

// Depth returns the scope stack depth. Intended for tests.
func Depth() int {
	mu.Lock()
	defer mu.Unlock()
	return len(stack)
}

// NewCorrelation returns a correlation context with requestId, traceId and
// spanId set: existing values are kept, missing ones generated. Other keys
// pass through verbatim when non-nil.
func NewCorrelation(partial vestig.Fields) vestig.Fields {
	out := make(vestig.Fields, len(partial)+3)
	for k, v := range partial {
		if v != nil {
			out[k] = v
		}
	}
	if _, ok := out[vestig.FieldRequestID]; !ok {
		out[vestig.FieldRequestID] = propagation.NewRequestID()
	}
	if _, ok := out[vestig.FieldTraceID]; !ok {
		out[vestig.FieldTraceID] = propagation.NewTraceID()
	}
	if _, ok := out[vestig.FieldSpanID]; !ok {
		out[vestig.FieldSpanID] = propagation.NewSpanID()
	}
	return out
}
