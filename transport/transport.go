// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package transport implements the record sinks of the SDK: a synchronous
// console transport and batching HTTP, file and Datadog transports built on
// a shared staging/retry base.
package transport

import (
	"sync/atomic"

	vestig "github.com/vestig-io/vestig-go"
)

// Config is the admission policy every transport carries: a unique name, an
// enabled flag, an optional minimum level and an optional per-record filter.
type Config struct {
	// Name identifies the transport within a logger. Required.
	Name string

	// Disabled turns the transport off; it stays registered but admits
	// nothing.
	Disabled bool

	// MinLevel rejects records below the given level. The zero value
	// (LevelTrace) admits everything.
	MinLevel vestig.Level

	// Filter, when set, must return true for a record to be admitted.
	Filter func(*vestig.Record) bool
}

// base implements the Name/Admits half of vestig.Transport.
type base struct {
	name     string
	disabled atomic.Bool
	minLevel vestig.Level
	filter   func(*vestig.Record) bool
}

func (b *base) init(cfg Config) {
	b.name = cfg.Name
	b.minLevel = cfg.MinLevel
	b.filter = cfg.Filter
	b.disabled.Store(cfg.Disabled)
}

// Name returns the transport's unique name.
func (b *base) Name() string { return b.name }

// Admits implements the per-transport gate: disabled, below MinLevel or
// rejected by Filter means not admitted.
func (b *base) Admits(r *vestig.Record) bool {
	if b.disabled.Load() {
		return false
	}
	if r.Level < b.minLevel {
		return false
	}
	if b.filter != nil && !b.filter(r) {
		return false
	}
	return true
}

// Enable re-enables a disabled transport.
func (b *base) Enable() { b.disabled.Store(false) }

// Disable turns the transport off without removing it.
func (b *base) Disable() { b.disabled.Store(true) }
