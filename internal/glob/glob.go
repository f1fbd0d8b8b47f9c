// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package glob compiles dot-path glob patterns to regular expressions.
// `*` matches exactly one path segment, `**` matches zero or more segments.
// Used by sanitizer field matchers and the namespace-routed sampler.
package glob

import (
	"regexp"
	"strings"
)

// Compile translates a dot-path glob into an anchored regexp. caseSensitive
// selects whether matching respects case.
func Compile(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	segs := strings.Split(pattern, ".")
	var b strings.Builder
	if !caseSensitive {
		b.WriteString("(?i)")
	}
	b.WriteString("^")
	pendingDot := false
	for i, seg := range segs {
		last := i == len(segs)-1
		if seg == "**" {
			switch {
			case pendingDot:
				// swallow the dot preceding each matched segment
				b.WriteString(`(?:\.[^.]+)*`)
			case last:
				b.WriteString(`(?:[^.]+\.)*[^.]*`)
			default:
				b.WriteString(`(?:[^.]+\.)*`)
			}
			continue
		}
		if pendingDot {
			b.WriteString(`\.`)
		}
		b.WriteString(segToRegexp(seg))
		pendingDot = true
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func segToRegexp(seg string) string {
	if seg == "*" {
		return `[^.]+`
	}
	var b strings.Builder
	for i, part := range strings.Split(seg, "*") {
		if i > 0 {
			b.WriteString(`[^.]*`)
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	return b.String()
}
