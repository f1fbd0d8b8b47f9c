// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package sanitize

import "regexp"

// MatchType selects how a field matcher compares against a key or dot-path.
type MatchType int

const (
	MatchExact MatchType = iota
	MatchPrefix
	MatchSuffix
	MatchContains
	MatchRegex
)

// Field matches object keys or full dot-paths. A Value containing `*` is
// interpreted as a dot-path glob regardless of Type: `*` matches one path
// segment, `**` matches zero or more. Matching is case-insensitive unless
// CaseSensitive is set.
type Field struct {
	Type          MatchType
	Value         string
	CaseSensitive bool
}

// Literal returns an exact, case-insensitive field matcher. Literal keys are
// also compared against bare leaf keys, not just full paths.
func Literal(name string) Field {
	return Field{Type: MatchExact, Value: name}
}

// Pattern redacts substrings of string values. Patterns apply in declaration
// order. Replacement precedence per match: Replace func, then Replacement
// string, then the config-wide replacement.
type Pattern struct {
	Name        string
	Regexp      *regexp.Regexp
	Replacement string
	Replace     func(match string) string
}

// DefaultReplacement substitutes matched fields when no other replacement is
// configured.
const DefaultReplacement = "[REDACTED]"

// DefaultMaxDepth bounds recursion into nested values.
const DefaultMaxDepth = 10

// Config describes a sanitizer. The zero value is a disabled sanitizer;
// presets and Merge build the shipped configurations.
type Config struct {
	Enabled     bool
	Fields      []Field
	Patterns    []Pattern
	Replacement string // default "[REDACTED]"
	MaxDepth    int    // default 10
}

// Merge returns base overlaid with override: scalar settings from override
// win when set, field and pattern lists concatenate (base first). Presets
// compose through Merge rather than inheritance.
func Merge(base, override Config) Config {
	out := base
	out.Enabled = base.Enabled || override.Enabled
	if override.Replacement != "" {
		out.Replacement = override.Replacement
	}
	if override.MaxDepth != 0 {
		out.MaxDepth = override.MaxDepth
	}
	if len(override.Fields) > 0 {
		fields := make([]Field, 0, len(base.Fields)+len(override.Fields))
		fields = append(fields, base.Fields...)
		fields = append(fields, override.Fields...)
		out.Fields = fields
	}
	if len(override.Patterns) > 0 {
		patterns := make([]Pattern, 0, len(base.Patterns)+len(override.Patterns))
		patterns = append(patterns, base.Patterns...)
		patterns = append(patterns, override.Patterns...)
		out.Patterns = patterns
	}
	return out
}
