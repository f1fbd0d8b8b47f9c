// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package vestig defines the shared types of the Vestig observability SDK:
// log levels, records, correlation fields and the Transport and Sampler
// contracts. Implementations live in the subpackages; most applications only
// need github.com/vestig-io/vestig-go/logger.
package vestig

// Transport delivers records to a destination. Implementations must be safe
// for concurrent use. Log must never block the caller's hot path for longer
// than an enqueue; batching transports stage records internally.
type Transport interface {
	// Name returns the transport's unique name within a logger.
	Name() string

	// Admits reports whether the transport wants the given record. The
	// logger consults it before Log; a transport disabled or gated below
	// the record's level must return false.
	Admits(r *Record) bool

	// Log accepts a single record for delivery.
	Log(r *Record) error

	// Flush forces delivery of any staged records.
	Flush() error

	// Close flushes and releases the transport's resources. It is
	// idempotent.
	Close() error
}

// Sampler decides whether a record is admitted into the pipeline. Must be
// safe for concurrent use.
type Sampler interface {
	// Sample reports whether the given record should be kept.
	Sample(r *Record) bool
}

// Destroyer is implemented by samplers and transports that hold timers or
// other resources needing explicit release.
type Destroyer interface {
	Destroy()
}
