// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package transport

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/internal/log"
	"github.com/vestig-io/vestig-go/metrics"
	"github.com/vestig-io/vestig-go/ringbuffer"
)

// Batch transport defaults.
const (
	DefaultBatchSize     = 10
	DefaultFlushInterval = 5 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = time.Second
)

// Sender delivers one batch of records to a destination. Implemented by the
// concrete batching transports.
type Sender interface {
	Send(records []*vestig.Record) error
}

// nonRetryable errors abort the retry loop immediately. Typed HTTP client
// errors implement it.
type nonRetryable interface {
	IsClientError() bool
}

// BatchConfig tunes a Batcher.
type BatchConfig struct {
	// BatchSize triggers an immediate flush when the staging buffer
	// reaches it. The buffer holds 2x BatchSize records.
	BatchSize int

	// FlushInterval is the periodic flush cadence.
	FlushInterval time.Duration

	// MaxRetries bounds delivery attempts per batch.
	MaxRetries int

	// RetryDelay is the base backoff; attempt n waits RetryDelay * 2^n.
	RetryDelay time.Duration

	// OnDrop observes records evicted from a full staging buffer. The
	// default logs a throttled warning with the running drop count.
	OnDrop func(r *vestig.Record)

	// OnSendError observes batches whose delivery terminally failed. The
	// default reports through the SDK's diagnostics logger.
	OnSendError func(err error, records []*vestig.Record)
}

func (c *BatchConfig) fillDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
}

// Stats is a point-in-time snapshot of a Batcher.
type Stats struct {
	Buffered     int
	Dropped      uint64
	IsFlushing   bool
	PendingRetry int
}

// Batcher stages records in a bounded ring and delivers them as batches
// with bounded retry. At most one flush is in flight at a time; a batch
// whose retries are exhausted is retained and prepended to the next flush,
// so older records still precede younger ones. Embedded by the concrete
// batching transports, which implement only Send.
type Batcher struct {
	base
	cfg    BatchConfig
	sender Sender
	buf    *ringbuffer.Buffer[*vestig.Record]

	mu        sync.Mutex
	flushing  bool
	destroyed bool
	failed    []*vestig.Record // most recent terminally-failed batch

	ticker   *time.Ticker
	done     chan struct{}
	wg       sync.WaitGroup
	dropWarn *rate.Limiter
}

// NewBatcher builds a batcher around sender and starts its periodic flush
// timer. The timer goroutine exits on Close.
func NewBatcher(cfg Config, bcfg BatchConfig, sender Sender) *Batcher {
	bcfg.fillDefaults()
	t := &Batcher{
		cfg:      bcfg,
		sender:   sender,
		done:     make(chan struct{}),
		dropWarn: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	t.base.init(cfg)
	t.buf = ringbuffer.New(2*bcfg.BatchSize, func(r *vestig.Record) {
		metrics.RecordsDropped.WithLabelValues(t.name).Inc()
		if t.cfg.OnDrop != nil {
			t.cfg.OnDrop(r)
			return
		}
		if t.dropWarn.Allow() {
			log.Warn("transport %s: buffer full, %d records dropped so far", t.name, t.buf.Dropped())
		}
	})
	t.ticker = time.NewTicker(bcfg.FlushInterval)
	t.wg.Add(1)
	go t.loop()
	return t
}

func (t *Batcher) loop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ticker.C:
			if err := t.Flush(); err != nil {
				log.Debug("transport %s: periodic flush: %v", t.name, err)
			}
		case <-t.done:
			return
		}
	}
}

// Log stages one record. A destroyed transport ignores it. When the staged
// count reaches the batch size an immediate asynchronous flush is scheduled.
func (t *Batcher) Log(r *vestig.Record) error {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return nil
	}
	flushing := t.flushing
	t.mu.Unlock()

	t.buf.Push(r)
	if t.buf.Len() >= t.cfg.BatchSize && !flushing {
		go func() {
			if err := t.Flush(); err != nil {
				log.Debug("transport %s: threshold flush: %v", t.name, err)
			}
		}()
	}
	return nil
}

// Flush delivers the staged records plus any retained failed batch. It
// returns immediately when a flush is already in flight or there is nothing
// to send. The returned error reflects terminal delivery failure; the
// records of a failed batch are retained for the next flush.
func (t *Batcher) Flush() error {
	t.mu.Lock()
	if t.flushing || (t.buf.Len() == 0 && t.failed == nil) {
		t.mu.Unlock()
		return nil
	}
	t.flushing = true
	batch := t.failed
	t.failed = nil
	t.mu.Unlock()

	batch = append(batch, t.buf.Drain()...)
	err := t.sendWithRetry(batch)

	t.mu.Lock()
	t.flushing = false
	t.mu.Unlock()
	return err
}

func (t *Batcher) sendWithRetry(records []*vestig.Record) error {
	if len(records) == 0 {
		return nil
	}
	var err error
	for attempt := 0; attempt < t.cfg.MaxRetries; attempt++ {
		err = t.sender.Send(records)
		if err == nil {
			metrics.BatchesSent.WithLabelValues(t.name).Inc()
			return nil
		}
		if nr, ok := err.(nonRetryable); ok && nr.IsClientError() {
			// the destination rejected the payload; retrying cannot help
			metrics.BatchesFailed.WithLabelValues(t.name).Inc()
			t.reportSendError(err, records)
			return err
		}
		if attempt < t.cfg.MaxRetries-1 {
			time.Sleep(t.cfg.RetryDelay * (1 << attempt))
		}
	}
	metrics.BatchesFailed.WithLabelValues(t.name).Inc()
	t.mu.Lock()
	t.failed = records
	t.mu.Unlock()
	t.reportSendError(err, records)
	return err
}

func (t *Batcher) reportSendError(err error, records []*vestig.Record) {
	if t.cfg.OnSendError != nil {
		t.cfg.OnSendError(err, records)
		return
	}
	log.Error("transport-send-"+t.name, "transport %s: batch of %d failed: %v", t.name, len(records), err)
}

// Close stops the timer and performs a final flush of any staged records.
// Idempotent; later Log calls are ignored.
func (t *Batcher) Close() error {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return nil
	}
	t.destroyed = true
	t.mu.Unlock()

	t.ticker.Stop()
	close(t.done)
	t.wg.Wait()

	if t.buf.Len() > 0 || t.pendingRetry() > 0 {
		return t.Flush()
	}
	return nil
}

func (t *Batcher) pendingRetry() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failed)
}

// GetStats reports the batcher's counters.
func (t *Batcher) GetStats() Stats {
	t.mu.Lock()
	flushing := t.flushing
	pending := len(t.failed)
	t.mu.Unlock()
	return Stats{
		Buffered:     t.buf.Len(),
		Dropped:      t.buf.Dropped(),
		IsFlushing:   flushing,
		PendingRetry: pending,
	}
}
