// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package logger

import (
	"strings"
	"sync"
	"time"

	vestig "github.com/vestig-io/vestig-go"
)

// Deduplicator defaults.
const (
	DefaultDedupWindow  = time.Second
	DefaultDedupMaxSize = 1000
)

const dedupSeparator = "\x1f"

// DedupConfig configures duplicate suppression.
type DedupConfig struct {
	// Window is the suppression window. Default 1s.
	Window time.Duration

	// MaxSize bounds the number of tracked signatures; the oldest entry is
	// evicted first. Default 1000.
	MaxSize int

	// IgnoreNamespace and IgnoreLevel widen the signature: identical
	// messages from different namespaces or levels collapse together.
	IgnoreNamespace bool
	IgnoreLevel     bool
}

type dedupEntry struct {
	firstSeen time.Time
	count     int
	message   string
	level     vestig.Level
	namespace string
}

// SuppressResult is one deduplication decision. Flush means the previous
// window just closed with duplicates: the caller emits a summary record
// before continuing with the current one.
type SuppressResult struct {
	Suppressed      bool
	Flush           bool
	SuppressedCount int
}

// Summary describes suppressed duplicates of one signature.
type Summary struct {
	Message         string
	Level           vestig.Level
	Namespace       string
	SuppressedCount int
}

// deduplicator tracks recent (namespace, level, message) signatures and
// suppresses repeats inside the window. A background sweeper discards
// expired signatures that saw no repeat.
type deduplicator struct {
	cfg DedupConfig
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*dedupEntry
	order   []string // insertion order, oldest first

	stop     chan struct{}
	stopOnce sync.Once
}

func newDeduplicator(cfg DedupConfig) *deduplicator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultDedupWindow
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultDedupMaxSize
	}
	d := &deduplicator{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*dedupEntry),
		stop:    make(chan struct{}),
	}
	go d.sweep(2 * cfg.Window)
	return d
}

func (d *deduplicator) signature(message string, level vestig.Level, namespace string) string {
	parts := make([]string, 0, 3)
	if !d.cfg.IgnoreNamespace {
		parts = append(parts, namespace)
	}
	if !d.cfg.IgnoreLevel {
		parts = append(parts, level.String())
	}
	parts = append(parts, message)
	return strings.Join(parts, dedupSeparator)
}

// shouldSuppress decides whether this call is a duplicate. The first call of
// a signature is admitted and starts a window; repeats inside the window are
// suppressed; the first call after the window is admitted and reports the
// closed window's duplicate count via Flush.
func (d *deduplicator) shouldSuppress(message string, level vestig.Level, namespace string) SuppressResult {
	sig := d.signature(message, level, namespace)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[sig]
	if !ok {
		d.trackLocked(sig, now, message, level, namespace)
		return SuppressResult{}
	}
	if now.Sub(e.firstSeen) < d.cfg.Window {
		e.count++
		return SuppressResult{Suppressed: true}
	}
	suppressed := e.count - 1
	d.deleteLocked(sig)
	d.trackLocked(sig, now, message, level, namespace)
	return SuppressResult{Flush: suppressed > 0, SuppressedCount: suppressed}
}

func (d *deduplicator) trackLocked(sig string, now time.Time, message string, level vestig.Level, namespace string) {
	if len(d.entries) >= d.cfg.MaxSize && len(d.order) > 0 {
		d.deleteLocked(d.order[0])
	}
	d.entries[sig] = &dedupEntry{
		firstSeen: now,
		count:     1,
		message:   message,
		level:     level,
		namespace: namespace,
	}
	d.order = append(d.order, sig)
}

func (d *deduplicator) deleteLocked(sig string) {
	delete(d.entries, sig)
	for i, s := range d.order {
		if s == sig {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

// pendingSummaries returns the signatures holding unreported duplicates.
// Used on shutdown so suppressed counts are not lost.
func (d *deduplicator) pendingSummaries() []Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Summary
	for _, sig := range d.order {
		e := d.entries[sig]
		if e.count > 1 {
			out = append(out, Summary{
				Message:         e.message,
				Level:           e.level,
				Namespace:       e.namespace,
				SuppressedCount: e.count - 1,
			})
		}
	}
	return out
}

// sweep drops expired signatures that never repeated.
func (d *deduplicator) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := d.now()
			d.mu.Lock()
			for _, sig := range append([]string(nil), d.order...) {
				e := d.entries[sig]
				if e.count == 1 && now.Sub(e.firstSeen) >= d.cfg.Window {
					d.deleteLocked(sig)
				}
			}
			d.mu.Unlock()
		case <-d.stop:
			return
		}
	}
}

func (d *deduplicator) destroy() {
	d.stopOnce.Do(func() { close(d.stop) })
}
