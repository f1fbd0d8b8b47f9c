// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package logger implements the record pipeline: level gating, argument
// normalization, context merging, sanitization, sampling, duplicate
// suppression and the transport fan-out.
package logger

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/internal/hostinfo"
	"github.com/vestig-io/vestig-go/internal/log"
	"github.com/vestig-io/vestig-go/logctx"
	"github.com/vestig-io/vestig-go/metrics"
	"github.com/vestig-io/vestig-go/sample"
	"github.com/vestig-io/vestig-go/sanitize"
	"github.com/vestig-io/vestig-go/trace"
)

// Logger is the emission pipeline. Safe to share across goroutines; level
// and enabled state may be changed while other goroutines log.
type Logger struct {
	namespace string
	level     atomic.Int32
	enabled   atomic.Bool

	staticCtx  vestig.Fields
	sanitizer  *sanitize.Sanitizer
	sampler    vestig.Sampler
	dedup      *deduplicator
	tail       *sample.Tail
	structured bool
	colors     *bool

	mu         sync.RWMutex
	transports []vestig.Transport
	destroyed  bool

	childMu  sync.Mutex
	children map[string]weak.Pointer[Logger]
}

// New builds a logger. Unset options fall back to the VESTIG_* environment
// variables and then to defaults; without transports the logger writes to
// the console.
func New(opts ...Option) *Logger {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return fromConfig(&cfg)
}

func fromConfig(cfg *config) *Logger {
	l := &Logger{
		namespace:  cfg.namespace,
		staticCtx:  cfg.context.Clone(),
		sampler:    cfg.sampler,
		tail:       cfg.tail,
		structured: *cfg.structured,
		colors:     cfg.colors,
		transports: append([]vestig.Transport(nil), cfg.transports...),
		children:   make(map[string]weak.Pointer[Logger]),
	}
	if *cfg.sanitize {
		l.sanitizer = cfg.sanitizer
	}
	if l.sampler != nil {
		l.sampler = sample.NewErrorBypass(l.sampler, vestig.LevelError)
	}
	if cfg.dedup != nil {
		l.dedup = newDeduplicator(*cfg.dedup)
	}
	l.level.Store(int32(*cfg.level))
	l.enabled.Store(*cfg.enabled)
	return l
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
)

// Default returns the process-wide default logger, built from the
// environment on first use.
func Default() *Logger {
	defaultOnce.Do(func() { defaultLogger = New() })
	return defaultLogger
}

// Trace logs at trace level. Arguments follow the normalization rules of
// the variadic log API: a leading string is the message; a sole trailing
// map is the metadata; error values become the record's error; remaining
// maps merge and scalars become argN metadata entries.
func (l *Logger) Trace(args ...any) { l.log(vestig.LevelTrace, args) }

// Debug logs at debug level.
func (l *Logger) Debug(args ...any) { l.log(vestig.LevelDebug, args) }

// Info logs at info level.
func (l *Logger) Info(args ...any) { l.log(vestig.LevelInfo, args) }

// Warn logs at warn level.
func (l *Logger) Warn(args ...any) { l.log(vestig.LevelWarn, args) }

// Error logs at error level.
func (l *Logger) Error(args ...any) { l.log(vestig.LevelError, args) }

func (l *Logger) log(level vestig.Level, args []any) {
	if !l.enabled.Load() || level < vestig.Level(l.level.Load()) {
		return
	}
	msg, metadata := normalizeArgs(args)

	async, _ := logctx.Current()
	ctxFields := l.staticCtx.Merge(async)

	if l.sanitizer != nil && metadata != nil {
		if m, ok := l.sanitizer.Sanitize(metadata).(map[string]any); ok {
			metadata = m
		}
	}
	var serr *vestig.SerializedError
	if v, ok := metadata["error"]; ok {
		if e, isSerialized := v.(*vestig.SerializedError); isSerialized {
			serr = e
			delete(metadata, "error")
		} else if vestig.IsError(v) {
			serr = vestig.SerializeValue(v)
			delete(metadata, "error")
		}
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	r := &vestig.Record{
		Time:      time.Now(),
		Level:     level,
		Message:   msg,
		Metadata:  metadata,
		Context:   ctxFields,
		Runtime:   hostinfo.RuntimeTag,
		Namespace: l.namespace,
		Err:       serr,
	}

	if l.sampler != nil && !l.sampler.Sample(r) {
		metrics.RecordsSampledOut.Inc()
		return
	}
	if l.dedup != nil {
		res := l.dedup.shouldSuppress(msg, level, l.namespace)
		if res.Suppressed {
			metrics.RecordsSuppressed.Inc()
			return
		}
		if res.Flush {
			l.emit(l.summaryRecord(r, res.SuppressedCount))
		}
	}
	l.emit(r)
}

func (l *Logger) summaryRecord(r *vestig.Record, suppressed int) *vestig.Record {
	return &vestig.Record{
		Time:      time.Now(),
		Level:     r.Level,
		Message:   fmt.Sprintf("%s (repeated %d× in last %d ms)", r.Message, suppressed, l.dedup.cfg.Window.Milliseconds()),
		Context:   r.Context,
		Runtime:   r.Runtime,
		Namespace: r.Namespace,
	}
}

// emit fans one record out to the admitting transports. Transport failures
// never reach the caller.
func (l *Logger) emit(r *vestig.Record) {
	l.mu.RLock()
	transports := l.transports
	l.mu.RUnlock()
	for _, t := range transports {
		if !t.Admits(r) {
			continue
		}
		if err := t.Log(r); err != nil {
			log.Error("transport-log-"+t.Name(), "transport %s: %v", t.Name(), err)
		}
	}
	metrics.RecordsEmitted.WithLabelValues(r.Level.String()).Inc()
}

// normalizeArgs resolves the variadic log arguments into a message and
// metadata mapping.
func normalizeArgs(args []any) (string, map[string]any) {
	if len(args) == 0 {
		return "", nil
	}
	message, ok := args[0].(string)
	if !ok {
		message = fmt.Sprint(args[0])
	}
	rest := args[1:]
	if len(rest) == 0 {
		return message, nil
	}
	if len(rest) == 1 {
		if m := asMap(rest[0]); m != nil && !vestig.IsError(rest[0]) {
			return message, cloneMap(m)
		}
	}
	metadata := make(map[string]any)
	for i, arg := range rest {
		switch {
		case isSerializedError(arg):
			metadata["error"] = arg
		case vestig.IsError(arg):
			metadata["error"] = vestig.SerializeValue(arg)
		case asMap(arg) != nil:
			for k, v := range asMap(arg) {
				metadata[k] = v
			}
		default:
			metadata[fmt.Sprintf("arg%d", i+1)] = arg
		}
	}
	return message, metadata
}

func isSerializedError(v any) bool {
	_, ok := v.(*vestig.SerializedError)
	return ok
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case vestig.Fields:
		return m
	}
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SetLevel changes the minimum level.
func (l *Logger) SetLevel(level vestig.Level) { l.level.Store(int32(level)) }

// Level returns the current minimum level.
func (l *Logger) Level() vestig.Level { return vestig.Level(l.level.Load()) }

// Enable turns the logger on.
func (l *Logger) Enable() { l.enabled.Store(true) }

// Disable turns the logger off; calls return without any work.
func (l *Logger) Disable() { l.enabled.Store(false) }

// IsEnabled reports whether the logger is on.
func (l *Logger) IsEnabled() bool { return l.enabled.Load() }

// Namespace returns the logger's fully-qualified namespace.
func (l *Logger) Namespace() string { return l.namespace }

// AddTransport registers a transport. Names are unique per logger.
func (l *Logger) AddTransport(t vestig.Transport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.transports {
		if existing.Name() == t.Name() {
			return fmt.Errorf("logger: transport %q already registered", t.Name())
		}
	}
	l.transports = append(append([]vestig.Transport(nil), l.transports...), t)
	return nil
}

// RemoveTransport unregisters the named transport. It reports whether it
// was present. The transport is not closed.
func (l *Logger) RemoveTransport(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, t := range l.transports {
		if t.Name() == name {
			next := append([]vestig.Transport(nil), l.transports[:i]...)
			l.transports = append(next, l.transports[i+1:]...)
			return true
		}
	}
	return false
}

// Transports returns a snapshot of the registered transports.
func (l *Logger) Transports() []vestig.Transport {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]vestig.Transport(nil), l.transports...)
}

// Flush flushes every transport and returns the first failure.
func (l *Logger) Flush() error {
	var first error
	for _, t := range l.Transports() {
		if err := t.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Destroy drains pending duplicate summaries, closes every transport and
// empties the registry. Transport close failures are logged, not returned.
// Idempotent.
func (l *Logger) Destroy() {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return
	}
	l.destroyed = true
	l.mu.Unlock()

	if l.dedup != nil {
		for _, s := range l.dedup.pendingSummaries() {
			l.emit(&vestig.Record{
				Time:      time.Now(),
				Level:     s.Level,
				Message:   fmt.Sprintf("%s (repeated %d× in last %d ms)", s.Message, s.SuppressedCount, l.dedup.cfg.Window.Milliseconds()),
				Runtime:   hostinfo.RuntimeTag,
				Namespace: s.Namespace,
			})
		}
		l.dedup.destroy()
	}
	if d, ok := l.sampler.(vestig.Destroyer); ok && d != nil {
		d.Destroy()
	}

	l.mu.Lock()
	transports := l.transports
	l.transports = nil
	l.mu.Unlock()
	for _, t := range transports {
		if err := t.Close(); err != nil {
			log.Warn("logger: closing transport %s: %v", t.Name(), err)
		}
	}
}

// Child returns a logger namespaced under l. Children without option
// overrides are cached per fully-qualified namespace and shared; the cache
// holds weak pointers so unreferenced children can be collected. Children
// with overrides are never cached.
func (l *Logger) Child(ns string, opts ...Option) *Logger {
	fq := ns
	if l.namespace != "" {
		fq = l.namespace + ":" + ns
	}
	if len(opts) == 0 {
		l.childMu.Lock()
		if wp, ok := l.children[fq]; ok {
			if c := wp.Value(); c != nil {
				l.childMu.Unlock()
				return c
			}
		}
		l.childMu.Unlock()
	}

	cfg := l.snapshotConfig()
	cfg.namespace = fq
	for _, o := range opts {
		o(&cfg)
	}
	child := fromConfig(&cfg)

	if len(opts) == 0 {
		l.childMu.Lock()
		l.children[fq] = weak.Make(child)
		l.childMu.Unlock()
		runtime.AddCleanup(child, func(key string) {
			l.childMu.Lock()
			if wp, ok := l.children[key]; ok && wp.Value() == nil {
				delete(l.children, key)
			}
			l.childMu.Unlock()
		}, fq)
	}
	return child
}

// snapshotConfig renders the logger's current state as a config a child can
// inherit. The raw sampler is handed down; fromConfig re-wraps it.
func (l *Logger) snapshotConfig() config {
	level := l.Level()
	enabled := l.enabled.Load()
	sanitizeOn := l.sanitizer != nil
	structured := l.structured
	cfg := config{
		level:      &level,
		enabled:    &enabled,
		structured: &structured,
		colors:     l.colors,
		context:    l.staticCtx.Clone(),
		transports: l.Transports(),
		sanitizer:  l.sanitizer,
		sanitize:   &sanitizeOn,
		tail:       l.tail,
	}
	if eb, ok := l.sampler.(*sample.ErrorBypass); ok {
		cfg.sampler = eb.Inner()
	} else {
		cfg.sampler = l.sampler
	}
	if l.dedup != nil {
		dcfg := l.dedup.cfg
		cfg.dedup = &dcfg
	}
	return cfg
}

// spanName prefixes span names with the logger's namespace.
func (l *Logger) spanName(name string) string {
	if l.namespace == "" {
		return name
	}
	return l.namespace + ":" + name
}

// Do runs fn inside a span named under the logger's namespace.
func (l *Logger) Do(name string, fn func(s *trace.Span) error, opts ...trace.StartOption) error {
	return trace.Do(l.spanName(name), fn, opts...)
}

// StartSpan starts a span named under the logger's namespace. Pair with
// trace.Finish.
func (l *Logger) StartSpan(name string, opts ...trace.StartOption) *trace.Span {
	return trace.Start(l.spanName(name), opts...)
}
