// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package sample decides which records enter the pipeline. Four composable
// samplers are provided: probability, rate-limit, namespace-routed and a
// composite wrapper that bypasses sampling for errors. Samplers never fail
// on well-formed records.
package sample

import (
	"math/rand/v2"
	"regexp"
	"sync"
	"time"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/internal/glob"
	"github.com/vestig-io/vestig-go/internal/log"
)

// Probability admits each record independently with probability p.
type Probability struct {
	mu   sync.RWMutex
	rate float64
	rnd  func() float64
}

// NewProbability returns a probability sampler. Out-of-range rates are
// clamped silently into [0, 1].
func NewProbability(p float64) *Probability {
	return &Probability{rate: clamp01(p), rnd: rand.Float64}
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Rate returns the current sample rate.
func (s *Probability) Rate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate
}

// SetRate sets a new sample rate, clamped into [0, 1].
func (s *Probability) SetRate(p float64) {
	s.mu.Lock()
	s.rate = clamp01(p)
	s.mu.Unlock()
}

// Sample implements vestig.Sampler.
func (s *Probability) Sample(_ *vestig.Record) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rate >= 1 {
		return true
	}
	return s.rnd() < s.rate
}

// RateLimit admits at most maxPerSecond-scaled records per window. The
// counter resets when the wall clock enters a new window epoch.
type RateLimit struct {
	mu        sync.Mutex
	window    time.Duration
	allowance float64 // admits per window
	epoch     int64
	count     float64
	now       func() time.Time
}

// DefaultRateLimitWindow is the counter reset interval.
const DefaultRateLimitWindow = time.Second

// NewRateLimit returns a rate-limit sampler admitting maxPerSecond records
// per second, counted over the given window (DefaultRateLimitWindow when
// zero).
func NewRateLimit(maxPerSecond float64, window time.Duration) *RateLimit {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if maxPerSecond < 0 {
		maxPerSecond = 0
	}
	return &RateLimit{
		window:    window,
		allowance: maxPerSecond * window.Seconds(),
		now:       time.Now,
	}
}

// Sample implements vestig.Sampler.
func (s *RateLimit) Sample(_ *vestig.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	epoch := s.now().UnixMilli() / s.window.Milliseconds()
	if epoch != s.epoch {
		s.epoch = epoch
		s.count = 0
	}
	if s.count < s.allowance {
		s.count++
		return true
	}
	return false
}

// Namespace routes records to per-namespace samplers. Exact names are
// preferred over glob patterns (`auth.*`, `db.**`), compiled at
// construction; unmatched records fall back to the default sampler, or are
// admitted when none is configured.
type Namespace struct {
	exact    map[string]vestig.Sampler
	patterns []nsPattern
	fallback vestig.Sampler
}

type nsPattern struct {
	re      *regexp.Regexp
	sampler vestig.Sampler
}

// NewNamespace builds a namespace-routed sampler. Invalid glob patterns are
// tolerated with a warning and skipped, matching how samplers treat bad
// configuration elsewhere in the SDK.
func NewNamespace(routes map[string]vestig.Sampler, fallback vestig.Sampler) *Namespace {
	ns := &Namespace{exact: make(map[string]vestig.Sampler), fallback: fallback}
	for name, sampler := range routes {
		if !containsGlob(name) {
			ns.exact[name] = sampler
			continue
		}
		re, err := glob.Compile(name, true)
		if err != nil {
			log.Warn("ignoring namespace sampler pattern %q: %v", name, err)
			continue
		}
		ns.patterns = append(ns.patterns, nsPattern{re: re, sampler: sampler})
	}
	return ns
}

func containsGlob(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '*' {
			return true
		}
	}
	return false
}

// Sample implements vestig.Sampler.
func (s *Namespace) Sample(r *vestig.Record) bool {
	if sampler, ok := s.exact[r.Namespace]; ok {
		return sampler.Sample(r)
	}
	for _, p := range s.patterns {
		if p.re.MatchString(r.Namespace) {
			return p.sampler.Sample(r)
		}
	}
	if s.fallback != nil {
		return s.fallback.Sample(r)
	}
	return true
}

// Destroy forwards to routed samplers that hold resources.
func (s *Namespace) Destroy() {
	for _, sampler := range s.exact {
		if d, ok := sampler.(vestig.Destroyer); ok {
			d.Destroy()
		}
	}
	for _, p := range s.patterns {
		if d, ok := p.sampler.(vestig.Destroyer); ok {
			d.Destroy()
		}
	}
	if d, ok := s.fallback.(vestig.Destroyer); ok {
		d.Destroy()
	}
}

// ErrorBypass wraps an inner sampler and short-circuits admission for
// records carrying an error or at or above the bypass level.
type ErrorBypass struct {
	inner       vestig.Sampler
	bypassLevel vestig.Level
}

// NewErrorBypass wraps inner. Records with a serialized error or with
// level >= bypassLevel are always admitted.
func NewErrorBypass(inner vestig.Sampler, bypassLevel vestig.Level) *ErrorBypass {
	return &ErrorBypass{inner: inner, bypassLevel: bypassLevel}
}

// Sample implements vestig.Sampler.
func (s *ErrorBypass) Sample(r *vestig.Record) bool {
	if r.Err != nil || r.Level >= s.bypassLevel {
		return true
	}
	if s.inner == nil {
		return true
	}
	return s.inner.Sample(r)
}

// Inner returns the wrapped sampler.
func (s *ErrorBypass) Inner() vestig.Sampler { return s.inner }

// Destroy forwards to the inner sampler.
func (s *ErrorBypass) Destroy() {
	if d, ok := s.inner.(vestig.Destroyer); ok {
		d.Destroy()
	}
}
