// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package metrics exposes the SDK's own pipeline counters in Prometheus
// text format. Counter updates are best-effort: they never block or panic
// the record path. The registry is private to the SDK so applications using
// the default Prometheus registry see no collisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// RecordsEmitted counts records that passed gating, sampling and dedup,
	// partitioned by level.
	RecordsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vestig",
		Name:      "records_emitted_total",
		Help:      "Log records delivered to the transport fan-out.",
	}, []string{"level"})

	// RecordsSuppressed counts records removed by the deduplicator.
	RecordsSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vestig",
		Name:      "records_suppressed_total",
		Help:      "Log records suppressed as duplicates.",
	})

	// RecordsSampledOut counts records rejected by samplers.
	RecordsSampledOut = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vestig",
		Name:      "records_sampled_out_total",
		Help:      "Log records rejected by sampling.",
	})

	// RecordsDropped counts records evicted from transport staging buffers,
	// partitioned by transport name.
	RecordsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vestig",
		Name:      "records_dropped_total",
		Help:      "Records dropped on transport buffer overflow.",
	}, []string{"transport"})

	// BatchesSent counts successful transport batch deliveries.
	BatchesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vestig",
		Name:      "batches_sent_total",
		Help:      "Batches delivered by batching transports.",
	}, []string{"transport"})

	// BatchesFailed counts batch deliveries that exhausted their retries.
	BatchesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vestig",
		Name:      "batches_failed_total",
		Help:      "Batches that exhausted delivery retries.",
	}, []string{"transport"})

	// SpansStarted and SpansFinished count span lifecycle events.
	SpansStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vestig",
		Name:      "spans_started_total",
		Help:      "Spans started.",
	})
	SpansFinished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vestig",
		Name:      "spans_finished_total",
		Help:      "Spans finished.",
	})

	// ExportPayloads counts OTLP export requests by outcome.
	ExportPayloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vestig",
		Name:      "export_payloads_total",
		Help:      "OTLP export requests by outcome.",
	}, []string{"outcome"})
)

func init() {
	registry.MustRegister(
		RecordsEmitted, RecordsSuppressed, RecordsSampledOut, RecordsDropped,
		BatchesSent, BatchesFailed, SpansStarted, SpansFinished, ExportPayloads,
	)
}

// Handler returns an HTTP handler serving the SDK's counters in Prometheus
// text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Registry returns the SDK's private Prometheus registry, for applications
// that gather it into their own.
func Registry() *prometheus.Registry { return registry }
