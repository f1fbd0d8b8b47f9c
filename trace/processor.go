// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package trace

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vestig-io/vestig-go/internal/log"
)

// Processor observes span lifecycle events. The OTLP exporter is one
// implementation; tests register lightweight recorders.
type Processor interface {
	OnStart(s *Span)
	OnEnd(s *Span)
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

var (
	procMu     sync.Mutex
	processors []Processor
)

// RegisterProcessor adds p to the registry. Processors are notified in
// registration order.
func RegisterProcessor(p Processor) {
	procMu.Lock()
	defer procMu.Unlock()
	processors = append(processors, p)
}

// UnregisterProcessor removes p. It reports whether p was registered.
func UnregisterProcessor(p Processor) bool {
	procMu.Lock()
	defer procMu.Unlock()
	for i, q := range processors {
		if q == p {
			processors = append(processors[:i], processors[i+1:]...)
			return true
		}
	}
	return false
}

// Processors returns a snapshot of the registry.
func Processors() []Processor {
	procMu.Lock()
	defer procMu.Unlock()
	return append([]Processor(nil), processors...)
}

// ResetProcessors empties the registry without shutting anything down.
// Intended for tests.
func ResetProcessors() {
	procMu.Lock()
	defer procMu.Unlock()
	processors = nil
}

// notifyStart fans OnStart out over a snapshot of the registry. A panicking
// processor is isolated so it cannot starve the others or the caller.
func notifyStart(s *Span) {
	for _, p := range Processors() {
		func() {
			defer recoverProcessor("OnStart")
			p.OnStart(s)
		}()
	}
}

func notifyEnd(s *Span) {
	for _, p := range Processors() {
		func() {
			defer recoverProcessor("OnEnd")
			p.OnEnd(s)
		}()
	}
}

func recoverProcessor(hook string) {
	if r := recover(); r != nil {
		log.Error("span-processor-"+hook, "span processor panicked in %s: %v", hook, r)
	}
}

// FlushProcessors flushes every registered processor concurrently and
// returns the first error.
func FlushProcessors(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range Processors() {
		g.Go(func() error { return p.ForceFlush(ctx) })
	}
	return g.Wait()
}

// ShutdownProcessors shuts every registered processor down concurrently,
// then clears the registry. The first error is returned; the registry is
// cleared regardless.
func ShutdownProcessors(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range Processors() {
		g.Go(func() error { return p.Shutdown(ctx) })
	}
	err := g.Wait()
	ResetProcessors()
	return err
}
