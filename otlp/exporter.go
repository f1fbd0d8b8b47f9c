// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package otlp exports finished spans to an OTLP/HTTP collector as a span
// processor.
package otlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/vestig-io/vestig-go/internal/log"
	"github.com/vestig-io/vestig-go/internal/version"
	"github.com/vestig-io/vestig-go/metrics"
	"github.com/vestig-io/vestig-go/trace"
	"github.com/vestig-io/vestig-go/transport"
)

// Exporter defaults.
const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 5 * time.Second
	DefaultTimeout       = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = time.Second
)

const scopeName = "vestig-go"

// Config configures an Exporter.
type Config struct {
	// Endpoint is the collector's trace intake URL, e.g.
	// "http://localhost:4318/v1/traces". Required.
	Endpoint string

	// ServiceName becomes the service.name resource attribute. Required.
	ServiceName string

	// ServiceVersion and Environment become service.version and
	// deployment.environment when set.
	ServiceVersion string
	Environment    string

	// Headers are added to every export request.
	Headers map[string]string

	// ResourceAttributes are merged into the resource attribute list.
	ResourceAttributes map[string]any

	// BatchSize triggers an immediate flush when reached. Default 100.
	BatchSize int

	// FlushInterval is the periodic flush cadence. Default 5s.
	FlushInterval time.Duration

	// Timeout bounds one export request. Default 30s.
	Timeout time.Duration

	// MaxRetries and RetryDelay tune the delivery retry loop.
	MaxRetries int
	RetryDelay time.Duration

	// Disabled builds an exporter that ignores spans.
	Disabled bool

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Exporter buffers finished spans and ships them to a collector in OTLP/JSON
// batches. Register it with trace.RegisterProcessor.
type Exporter struct {
	cfg      Config
	resource []keyValue
	client   *http.Client

	mu       sync.Mutex
	buf      []otlpSpan
	flushing bool
	shutdown bool

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// New builds an exporter and starts its flush timer.
func New(cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("otlp: endpoint is required")
	}
	if cfg.ServiceName == "" {
		return nil, errors.New("otlp: service name is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	e := &Exporter{
		cfg:      cfg,
		resource: buildResource(cfg),
		client:   cfg.Client,
		done:     make(chan struct{}),
	}
	if e.client == nil {
		e.client = &http.Client{}
	}
	e.ticker = time.NewTicker(cfg.FlushInterval)
	e.wg.Add(1)
	go e.loop()
	return e, nil
}

func buildResource(cfg Config) []keyValue {
	attrs := map[string]any{
		"service.name":           cfg.ServiceName,
		"telemetry.sdk.name":     scopeName,
		"telemetry.sdk.version":  version.Tag,
		"telemetry.sdk.language": "go",
	}
	if cfg.ServiceVersion != "" {
		attrs["service.version"] = cfg.ServiceVersion
	}
	if cfg.Environment != "" {
		attrs["deployment.environment"] = cfg.Environment
	}
	for k, v := range cfg.ResourceAttributes {
		attrs[k] = v
	}
	return convertAttributes(attrs)
}

func (e *Exporter) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ticker.C:
			if err := e.ForceFlush(context.Background()); err != nil {
				log.Debug("otlp: periodic flush: %v", err)
			}
		case <-e.done:
			return
		}
	}
}

// OnStart implements trace.Processor. The exporter only acts on finished
// spans.
func (e *Exporter) OnStart(*trace.Span) {}

// OnEnd implements trace.Processor: convert, buffer, flush at the batch
// threshold.
func (e *Exporter) OnEnd(s *trace.Span) {
	if e.cfg.Disabled {
		return
	}
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return
	}
	e.buf = append(e.buf, convertSpan(s))
	full := len(e.buf) >= e.cfg.BatchSize && !e.flushing
	e.mu.Unlock()
	if full {
		go func() {
			if err := e.ForceFlush(context.Background()); err != nil {
				log.Debug("otlp: threshold flush: %v", err)
			}
		}()
	}
}

// ForceFlush implements trace.Processor: exports the buffered spans as one
// request. A flush already in flight or an empty buffer is a no-op.
func (e *Exporter) ForceFlush(ctx context.Context) error {
	e.mu.Lock()
	if e.flushing || len(e.buf) == 0 {
		e.mu.Unlock()
		return nil
	}
	e.flushing = true
	spans := e.buf
	e.buf = nil
	e.mu.Unlock()

	err := e.export(ctx, spans)

	e.mu.Lock()
	e.flushing = false
	e.mu.Unlock()
	return err
}

func (e *Exporter) export(ctx context.Context, spans []otlpSpan) error {
	req := exportTraceServiceRequest{
		ResourceSpans: []resourceSpans{{
			Resource: resource{Attributes: e.resource},
			ScopeSpans: []scopeSpans{{
				Scope: scope{Name: scopeName, Version: version.Tag},
				Spans: spans,
			}},
		}},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("otlp: serialize payload: %w", err)
	}

	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		err = e.post(ctx, body)
		if err == nil {
			metrics.ExportPayloads.WithLabelValues("ok").Inc()
			return nil
		}
		var serr *transport.StatusError
		if errors.As(err, &serr) && serr.IsClientError() {
			// the collector rejected the payload; retrying cannot help
			metrics.ExportPayloads.WithLabelValues("rejected").Inc()
			log.Error("otlp-export", "otlp: collector rejected payload: %v", err)
			return err
		}
		if attempt < e.cfg.MaxRetries-1 {
			select {
			case <-time.After(e.cfg.RetryDelay * (1 << attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	metrics.ExportPayloads.WithLabelValues("failed").Inc()
	log.Error("otlp-export", "otlp: export failed after %d attempts: %v", e.cfg.MaxRetries, err)
	return err
}

func (e *Exporter) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &transport.StatusError{Code: http.StatusRequestTimeout}
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &transport.StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Shutdown implements trace.Processor: stop the timer and flush what
// remains. Later spans are ignored.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return nil
	}
	e.shutdown = true
	e.mu.Unlock()

	e.ticker.Stop()
	close(e.done)
	e.wg.Wait()
	return e.ForceFlush(ctx)
}
