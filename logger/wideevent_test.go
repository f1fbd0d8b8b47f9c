// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/sample"
)

func TestWideEventAccumulation(t *testing.T) {
	l, cap := newTestLogger(t, WithSanitize(false))

	e := l.StartWideEvent("checkout.completed")
	require.NoError(t, e.Set("cart", "items", 3))
	require.NoError(t, e.Merge("payment", map[string]any{"method": "card", "amount": 49.99}))
	require.NoError(t, e.MergeAll(map[string]map[string]any{
		"user": {"subscription": "pro"},
	}))
	require.NoError(t, e.SetContext(vestig.Fields{vestig.FieldUserID: "u1"}))

	v, ok := e.Get("cart", "items")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	require.NoError(t, e.End())
	r := cap.last(t)
	assert.Equal(t, "checkout.completed", r.Message)
	assert.Equal(t, vestig.LevelInfo, r.Level)
	assert.Equal(t, 3, r.Metadata["cart.items"])
	assert.Equal(t, "card", r.Metadata["payment.method"])
	assert.Equal(t, "pro", r.Metadata["user.subscription"])
	assert.Equal(t, "checkout.completed", r.Metadata["event.type"])
	assert.Equal(t, StatusSuccess, r.Metadata["event.status"])
	assert.Contains(t, r.Metadata, "event.duration_ms")
	assert.Equal(t, "u1", r.Context[vestig.FieldUserID])
}

func TestWideEventFrozenAfterEnd(t *testing.T) {
	l, _ := newTestLogger(t)
	e := l.StartWideEvent("op")
	require.NoError(t, e.End())

	assert.ErrorIs(t, e.Set("a", "b", 1), ErrEventEnded)
	assert.ErrorIs(t, e.Merge("a", map[string]any{"b": 1}), ErrEventEnded)
	assert.ErrorIs(t, e.SetContext(vestig.Fields{"k": "v"}), ErrEventEnded)
	assert.ErrorIs(t, e.End(), ErrEventEnded)
	assert.True(t, e.Ended())
}

func TestWideEventErrorOutcome(t *testing.T) {
	// default sanitizer on: the event's error must still surface
	l, cap := newTestLogger(t)

	e := l.StartWideEvent("batch.run")
	require.NoError(t, e.End(WithError(errors.New("downstream timeout"))))

	r := cap.last(t)
	assert.Equal(t, vestig.LevelError, r.Level)
	assert.Equal(t, StatusError, r.Metadata["event.status"])
	require.NotNil(t, r.Err)
	assert.Equal(t, "downstream timeout", r.Err.Message)
	assert.Equal(t, StatusError, e.Status())
}

func TestWideEventExplicitStatus(t *testing.T) {
	l, cap := newTestLogger(t)
	e := l.StartWideEvent("job")
	require.NoError(t, e.End(WithStatus(StatusTimeout)))
	assert.Equal(t, StatusTimeout, cap.last(t).Metadata["event.status"])
	assert.Equal(t, vestig.LevelInfo, cap.last(t).Level)
}

func TestWideEventTailSampling(t *testing.T) {
	tail := sample.NewTail(sample.TailConfig{
		SlowThresholdMs:   10_000,
		SuccessSampleRate: 0, // drop all plain successes
	})

	l, cap := newTestLogger(t, WithTailSampler(tail), WithSanitize(false))

	// plain success is sampled out: nothing is emitted
	require.NoError(t, l.StartWideEvent("fast.success").End())
	assert.Empty(t, cap.all())

	// errors are always kept, tagged with the decision reason
	e := l.StartWideEvent("failed.op")
	require.NoError(t, e.End(WithStatus(StatusError)))
	records := cap.all()
	require.Len(t, records, 1)
	assert.Equal(t, sample.ReasonStatus, records[0].Metadata["sampling.reason"])
}

func TestWideEventVIPKept(t *testing.T) {
	tail := sample.NewTail(sample.TailConfig{
		VIPTiers:          []string{"enterprise"},
		SuccessSampleRate: 0,
	})
	l, cap := newTestLogger(t, WithTailSampler(tail), WithSanitize(false))

	e := l.StartWideEvent("api.request")
	require.NoError(t, e.Set("user", "subscription", "enterprise"))
	require.NoError(t, e.End())

	records := cap.all()
	require.Len(t, records, 1)
	assert.Equal(t, sample.ReasonVIPTier, records[0].Metadata["sampling.reason"])
}

func TestWideEventToMetadata(t *testing.T) {
	l, _ := newTestLogger(t)
	e := l.StartWideEvent("op")
	require.NoError(t, e.Set("db", "rows", 12))
	require.NoError(t, e.End())

	meta := e.ToMetadata()
	assert.Equal(t, 12, meta["db.rows"])
	assert.Equal(t, "op", meta["event.type"])
	assert.Contains(t, meta, "event.ended_at")
}
