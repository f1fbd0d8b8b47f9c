// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/internal/log"
)

// DefaultHTTPTimeout bounds a single delivery attempt.
const DefaultHTTPTimeout = 30 * time.Second

// StatusError is the typed delivery failure of the HTTP transports. A
// timed-out attempt carries code 408 so the retry loop treats it as
// transient.
type StatusError struct {
	Code int
	Body string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("http status %d", e.Code)
}

// StatusCode returns the HTTP status code of the failed attempt.
func (e *StatusError) StatusCode() int { return e.Code }

// IsClientError reports whether retrying cannot help. 408 is the exception:
// a request timeout is transient.
func (e *StatusError) IsClientError() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusRequestTimeout
}

// HTTPConfig configures an HTTP transport.
type HTTPConfig struct {
	Config
	BatchConfig

	// URL receives the batch payloads. Required.
	URL string

	// Method defaults to POST.
	Method string

	// Headers are set on every request. Content-Type defaults to
	// application/json.
	Headers map[string]string

	// Timeout bounds each delivery attempt. Default 30s.
	Timeout time.Duration

	// Transform, when set, replaces the batch with an arbitrary payload
	// before serialization. Returning nil keeps the records.
	Transform func(records []*vestig.Record) any

	// Client overrides the shared keep-alive client, mainly for tests.
	Client *http.Client
}

// HTTP delivers batches of records as JSON to a single endpoint.
type HTTP struct {
	*Batcher
	url       string
	method    string
	headers   map[string]string
	timeout   time.Duration
	transform func(records []*vestig.Record) any
	client    *http.Client
}

// Keep-alive pooling across transports; per-attempt deadlines come from the
// request context, not the client.
var sharedClient = &http.Client{}

// NewHTTP builds an HTTP batching transport.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	t := &HTTP{
		url:       cfg.URL,
		method:    cfg.Method,
		headers:   cfg.Headers,
		timeout:   cfg.Timeout,
		transform: cfg.Transform,
		client:    cfg.Client,
	}
	if t.method == "" {
		t.method = http.MethodPost
	}
	if t.timeout <= 0 {
		t.timeout = DefaultHTTPTimeout
	}
	if t.client == nil {
		t.client = sharedClient
	}
	t.Batcher = NewBatcher(cfg.Config, cfg.BatchConfig, t)
	return t
}

// Send implements Sender: one JSON request per batch. A record that cannot
// be serialized is dropped with a warning; the rest of the batch ships.
func (t *HTTP) Send(records []*vestig.Record) error {
	var payload any
	if t.transform != nil {
		payload = t.transform(records)
	}
	if payload == nil {
		items := make([]json.RawMessage, 0, len(records))
		for _, r := range records {
			b, err := json.Marshal(r)
			if err != nil {
				log.Warn("transport %s: dropping unserializable record: %v", t.Name(), err)
				continue
			}
			items = append(items, b)
		}
		if len(items) == 0 {
			return nil
		}
		payload = items
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serialize batch: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, t.method, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &StatusError{Code: http.StatusRequestTimeout}
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	// drain so the connection is reusable
	io.Copy(io.Discard, resp.Body)
	return nil
}
