// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package sample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	vestig "github.com/vestig-io/vestig-go"
)

func record(level vestig.Level, ns string) *vestig.Record {
	return &vestig.Record{Level: level, Namespace: ns, Message: "m"}
}

func TestProbabilityBounds(t *testing.T) {
	assert := assert.New(t)
	always := NewProbability(1)
	never := NewProbability(0)
	for i := 0; i < 100; i++ {
		assert.True(always.Sample(record(vestig.LevelInfo, "")))
		assert.False(never.Sample(record(vestig.LevelInfo, "")))
	}
	clamped := NewProbability(7)
	assert.Equal(1.0, clamped.Rate())
	clamped.SetRate(-3)
	assert.Equal(0.0, clamped.Rate())
}

func TestProbabilityDeterministic(t *testing.T) {
	s := NewProbability(0.5)
	seq := []float64{0.1, 0.9, 0.49, 0.51}
	i := 0
	s.rnd = func() float64 { v := seq[i]; i++; return v }
	got := []bool{}
	for range seq {
		got = append(got, s.Sample(record(vestig.LevelInfo, "")))
	}
	assert.Equal(t, []bool{true, false, true, false}, got)
}

func TestRateLimitWindow(t *testing.T) {
	assert := assert.New(t)
	s := NewRateLimit(2, time.Second)
	now := time.UnixMilli(10_000)
	s.now = func() time.Time { return now }

	r := record(vestig.LevelInfo, "")
	assert.True(s.Sample(r))
	assert.True(s.Sample(r))
	assert.False(s.Sample(r), "third record within the window is rejected")

	now = now.Add(time.Second)
	assert.True(s.Sample(r), "counter resets in the next window")
}

func TestRateLimitScalesWithWindow(t *testing.T) {
	// 10/s over a 500ms window admits 5 per window
	s := NewRateLimit(10, 500*time.Millisecond)
	now := time.UnixMilli(0)
	s.now = func() time.Time { return now }
	admitted := 0
	for i := 0; i < 10; i++ {
		if s.Sample(record(vestig.LevelInfo, "")) {
			admitted++
		}
	}
	assert.Equal(t, 5, admitted)
}

type fixedSampler bool

func (f fixedSampler) Sample(*vestig.Record) bool { return bool(f) }

func TestNamespaceRouting(t *testing.T) {
	assert := assert.New(t)
	s := NewNamespace(map[string]vestig.Sampler{
		"auth.login": fixedSampler(true),
		"auth.*":     fixedSampler(false),
		"db.**":      fixedSampler(false),
	}, fixedSampler(true))

	assert.True(s.Sample(record(vestig.LevelInfo, "auth.login")), "exact beats pattern")
	assert.False(s.Sample(record(vestig.LevelInfo, "auth.logout")))
	assert.False(s.Sample(record(vestig.LevelInfo, "db.query.slow")))
	assert.True(s.Sample(record(vestig.LevelInfo, "cache.get")), "fallback")
}

func TestNamespaceNoMatchNoDefaultAdmits(t *testing.T) {
	s := NewNamespace(map[string]vestig.Sampler{"auth.*": fixedSampler(false)}, nil)
	assert.True(t, s.Sample(record(vestig.LevelInfo, "payments")))
}

func TestErrorBypass(t *testing.T) {
	assert := assert.New(t)
	s := NewErrorBypass(fixedSampler(false), vestig.LevelError)

	assert.False(s.Sample(record(vestig.LevelInfo, "")))
	assert.True(s.Sample(record(vestig.LevelError, "")), "level at bypass threshold")

	r := record(vestig.LevelDebug, "")
	r.Err = &vestig.SerializedError{Name: "error", Message: "x"}
	assert.True(s.Sample(r), "records with errors bypass sampling")
}

func TestTailDecisionOrder(t *testing.T) {
	assert := assert.New(t)
	tail := NewTail(TailConfig{
		SlowThresholdMs:   100,
		VIPUserIDs:        []string{"vip-1"},
		VIPTiers:          []string{"enterprise"},
		SuccessSampleRate: 0,
	})

	d := tail.Decide(TailView{Status: "error"})
	assert.Equal(TailDecision{Keep: true, Reason: ReasonStatus}, d)

	d = tail.Decide(TailView{Status: "success", DurationMs: 150})
	assert.Equal(TailDecision{Keep: true, Reason: ReasonSlow}, d)

	d = tail.Decide(TailView{Status: "success", UserID: "vip-1"})
	assert.Equal(TailDecision{Keep: true, Reason: ReasonVIPUser}, d)

	d = tail.Decide(TailView{Status: "success", Fields: map[string]map[string]any{
		"user": {"subscription": "enterprise"},
	}})
	assert.Equal(TailDecision{Keep: true, Reason: ReasonVIPTier}, d)

	d = tail.Decide(TailView{Status: "success"})
	assert.Equal(TailDecision{Keep: false, Reason: ReasonSampledOut}, d)
}

func TestTailSuccessRate(t *testing.T) {
	tail := NewTail(TailConfig{SuccessSampleRate: 1})
	d := tail.Decide(TailView{Status: "success"})
	assert.Equal(t, TailDecision{Keep: true, Reason: ReasonSampled}, d)
}
