// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package sanitize redacts sensitive fields and string patterns from log
// metadata before emission. Redaction is a recursive, depth-bounded
// transform; inputs are never mutated and sanitization is idempotent.
package sanitize

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/vestig-io/vestig-go/internal/glob"
)

// Sanitizer is a compiled Config. Safe for concurrent use.
type Sanitizer struct {
	enabled     bool
	literals    map[string]struct{} // lowercased exact key names
	matchers    []matcher
	patterns    []Pattern
	replacement string
	maxDepth    int
}

type matcher struct {
	field Field
	re    *regexp.Regexp // set for MatchRegex and glob values
}

// New compiles cfg. Invalid regular expressions or glob patterns are
// configuration errors and fail construction.
func New(cfg Config) (*Sanitizer, error) {
	s := &Sanitizer{
		enabled:     cfg.Enabled,
		literals:    make(map[string]struct{}),
		replacement: cfg.Replacement,
		maxDepth:    cfg.MaxDepth,
	}
	if s.replacement == "" {
		s.replacement = DefaultReplacement
	}
	if s.maxDepth == 0 {
		s.maxDepth = DefaultMaxDepth
	}
	for _, f := range cfg.Fields {
		if strings.Contains(f.Value, "*") {
			re, err := glob.Compile(f.Value, f.CaseSensitive)
			if err != nil {
				return nil, fmt.Errorf("sanitize: bad glob %q: %w", f.Value, err)
			}
			s.matchers = append(s.matchers, matcher{field: f, re: re})
			continue
		}
		if f.Type == MatchRegex {
			expr := f.Value
			if !f.CaseSensitive {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("sanitize: bad field regex %q: %w", f.Value, err)
			}
			s.matchers = append(s.matchers, matcher{field: f, re: re})
			continue
		}
		if f.Type == MatchExact && !f.CaseSensitive {
			s.literals[strings.ToLower(f.Value)] = struct{}{}
			continue
		}
		s.matchers = append(s.matchers, matcher{field: f})
	}
	s.patterns = append(s.patterns, cfg.Patterns...)
	return s, nil
}

// MustNew is New for the shipped presets, whose patterns are known-good.
func MustNew(cfg Config) *Sanitizer {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Enabled reports whether the sanitizer transforms anything.
func (s *Sanitizer) Enabled() bool { return s.enabled }

// Sanitize returns a redacted deep copy of v. Nil, booleans and numbers pass
// through; strings get pattern redaction; maps and slices recurse up to the
// configured depth, beyond which subtrees return unchanged. Never panics on
// well-formed input and never returns nil for a non-nil input.
func (s *Sanitizer) Sanitize(v any) any {
	if !s.enabled || v == nil {
		return v
	}
	return s.walk(v, "", 0)
}

// SanitizeString applies only the pattern redactions to a bare string.
func (s *Sanitizer) SanitizeString(str string) string {
	if !s.enabled || str == "" {
		return str
	}
	return s.applyPatterns(str)
}

func (s *Sanitizer) walk(v any, path string, depth int) any {
	if depth >= s.maxDepth {
		return v
	}
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return s.applyPatterns(val)
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, complex64, complex128:
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			if s.matchField(key, childPath) {
				out[key] = s.replacement
				continue
			}
			out[key] = s.walk(iter.Value().Interface(), childPath, depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = s.walk(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i), depth+1)
		}
		return out
	case reflect.Interface:
		if rv.IsNil() {
			return v
		}
		return s.walk(rv.Elem().Interface(), path, depth)
	case reflect.Ptr:
		if rv.IsNil() {
			return v
		}
		// only container pointers are copied; leaf pointers (serialized
		// errors and the like) keep their identity
		if k := rv.Elem().Kind(); k == reflect.Map || k == reflect.Slice || k == reflect.Array {
			return s.walk(rv.Elem().Interface(), path, depth)
		}
		return v
	}
	return v
}

func (s *Sanitizer) matchField(key, path string) bool {
	if _, ok := s.literals[strings.ToLower(key)]; ok {
		return true
	}
	for _, m := range s.matchers {
		if m.matches(key) || m.matches(path) {
			return true
		}
	}
	return false
}

func (m matcher) matches(target string) bool {
	if m.re != nil {
		return m.re.MatchString(target)
	}
	value := m.field.Value
	if !m.field.CaseSensitive {
		target = strings.ToLower(target)
		value = strings.ToLower(value)
	}
	switch m.field.Type {
	case MatchExact:
		return target == value
	case MatchPrefix:
		return strings.HasPrefix(target, value)
	case MatchSuffix:
		return strings.HasSuffix(target, value)
	case MatchContains:
		return strings.Contains(target, value)
	}
	return false
}

func (s *Sanitizer) applyPatterns(str string) string {
	for _, p := range s.patterns {
		switch {
		case p.Replace != nil:
			str = p.Regexp.ReplaceAllStringFunc(str, p.Replace)
		case p.Replacement != "":
			str = p.Regexp.ReplaceAllString(str, p.Replacement)
		default:
			str = p.Regexp.ReplaceAllString(str, s.replacement)
		}
	}
	return str
}
