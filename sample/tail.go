// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package sample

import (
	"math/rand/v2"
	"strings"
)

// Tail decides, after a wide event has ended, whether to keep it. Decisions
// use the event's outcome: status, duration, user identity and tier, in that
// order, with a random sample of the remaining successes.
type Tail struct {
	cfg TailConfig
	rnd func() float64
}

// TailConfig configures a tail sampler. Zero values select the defaults
// noted per field.
type TailConfig struct {
	// AlwaysKeepStatuses are kept unconditionally. Default: {"error"}.
	AlwaysKeepStatuses []string

	// SlowThresholdMs keeps events whose duration reaches the threshold.
	// Zero disables the check.
	SlowThresholdMs float64

	// VIPUserIDs keeps events whose context userId is listed.
	VIPUserIDs []string

	// VIPTiers keeps events whose tier field is listed. The tier is read
	// from TierPath, default "user.subscription" (category "user", key
	// "subscription").
	VIPTiers []string
	TierPath string

	// SuccessSampleRate is the keep probability for events that match no
	// rule above.
	SuccessSampleRate float64
}

// Decision reasons.
const (
	ReasonStatus     = "status"
	ReasonSlow       = "slow"
	ReasonVIPUser    = "vip_user"
	ReasonVIPTier    = "vip_tier"
	ReasonSampled    = "sampled"
	ReasonSampledOut = "sampled_out"
)

// TailDecision is the outcome of a tail-sampling check.
type TailDecision struct {
	Keep   bool
	Reason string
}

// TailView is the completed wide event as seen by the tail sampler.
type TailView struct {
	Status     string
	DurationMs float64
	UserID     string
	// Fields is the event's category -> key -> value mapping.
	Fields map[string]map[string]any
}

// NewTail builds a tail sampler from cfg.
func NewTail(cfg TailConfig) *Tail {
	if len(cfg.AlwaysKeepStatuses) == 0 {
		cfg.AlwaysKeepStatuses = []string{"error"}
	}
	if cfg.TierPath == "" {
		cfg.TierPath = "user.subscription"
	}
	cfg.SuccessSampleRate = clamp01(cfg.SuccessSampleRate)
	return &Tail{cfg: cfg, rnd: rand.Float64}
}

// Decide returns the keep decision for the given event view.
func (t *Tail) Decide(v TailView) TailDecision {
	for _, status := range t.cfg.AlwaysKeepStatuses {
		if v.Status == status {
			return TailDecision{Keep: true, Reason: ReasonStatus}
		}
	}
	if t.cfg.SlowThresholdMs > 0 && v.DurationMs >= t.cfg.SlowThresholdMs {
		return TailDecision{Keep: true, Reason: ReasonSlow}
	}
	if v.UserID != "" {
		for _, id := range t.cfg.VIPUserIDs {
			if v.UserID == id {
				return TailDecision{Keep: true, Reason: ReasonVIPUser}
			}
		}
	}
	if tier, ok := t.tierOf(v); ok {
		for _, want := range t.cfg.VIPTiers {
			if tier == want {
				return TailDecision{Keep: true, Reason: ReasonVIPTier}
			}
		}
	}
	if t.rnd() < t.cfg.SuccessSampleRate {
		return TailDecision{Keep: true, Reason: ReasonSampled}
	}
	return TailDecision{Keep: false, Reason: ReasonSampledOut}
}

func (t *Tail) tierOf(v TailView) (string, bool) {
	category, key, found := strings.Cut(t.cfg.TierPath, ".")
	if !found || v.Fields == nil {
		return "", false
	}
	fields, ok := v.Fields[category]
	if !ok {
		return "", false
	}
	tier, ok := fields[key].(string)
	return tier, ok
}
