// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package logger

import (
	"os"
	"strings"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/internal/log"
	"github.com/vestig-io/vestig-go/sample"
	"github.com/vestig-io/vestig-go/sanitize"
	"github.com/vestig-io/vestig-go/transport"
)

// Environment variables. Explicit options always win over the environment.
const (
	EnvLevel         = "VESTIG_LEVEL"
	EnvEnabled       = "VESTIG_ENABLED"
	EnvStructured    = "VESTIG_STRUCTURED"
	EnvSanitize      = "VESTIG_SANITIZE"
	EnvContextPrefix = "VESTIG_CONTEXT_"
)

// config is the resolved logger configuration. Pointer fields distinguish
// "unset" from an explicit zero so the environment can fill the gaps.
type config struct {
	level      *vestig.Level
	enabled    *bool
	structured *bool
	colors     *bool
	namespace  string
	context    vestig.Fields
	transports []vestig.Transport
	sampler    vestig.Sampler
	sanitizer  *sanitize.Sanitizer
	sanitize   *bool
	dedup      *DedupConfig
	tail       *sample.Tail
}

// Option configures a Logger.
type Option func(*config)

// WithLevel sets the minimum level.
func WithLevel(level vestig.Level) Option {
	return func(c *config) { c.level = &level }
}

// WithEnabled sets the initial enabled state.
func WithEnabled(enabled bool) Option {
	return func(c *config) { c.enabled = &enabled }
}

// WithNamespace sets the logger's namespace.
func WithNamespace(ns string) Option {
	return func(c *config) { c.namespace = ns }
}

// WithContext merges fields into the static correlation context.
func WithContext(fields vestig.Fields) Option {
	return func(c *config) { c.context = c.context.Merge(fields) }
}

// WithTransport appends a transport. When no transport option is given the
// logger gets a console transport.
func WithTransport(t vestig.Transport) Option {
	return func(c *config) { c.transports = append(c.transports, t) }
}

// WithSampler sets the sampler. The logger wraps it in an error bypass so
// errored records are never sampled out.
func WithSampler(s vestig.Sampler) Option {
	return func(c *config) { c.sampler = s }
}

// WithSanitizer replaces the default sanitizer.
func WithSanitizer(s *sanitize.Sanitizer) Option {
	return func(c *config) {
		c.sanitizer = s
		on := true
		c.sanitize = &on
	}
}

// WithSanitize toggles sanitization. On by default.
func WithSanitize(enabled bool) Option {
	return func(c *config) { c.sanitize = &enabled }
}

// WithDedup enables duplicate suppression.
func WithDedup(cfg DedupConfig) Option {
	return func(c *config) { c.dedup = &cfg }
}

// WithTailSampler sets the tail sampler applied to wide events at End.
func WithTailSampler(t *sample.Tail) Option {
	return func(c *config) { c.tail = t }
}

// WithStructured selects JSON console output over pretty output.
func WithStructured(structured bool) Option {
	return func(c *config) { c.structured = &structured }
}

// WithColors forces ANSI colors on or off for the pretty console output.
func WithColors(colors bool) Option {
	return func(c *config) { c.colors = &colors }
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}

// production reports whether the process runs with a production flag set.
func production() bool {
	if env := os.Getenv("VESTIG_ENV"); env != "" {
		return strings.EqualFold(env, "production")
	}
	return strings.EqualFold(os.Getenv("ENV"), "production")
}

// applyEnv fills configuration gaps from the environment.
func (c *config) applyEnv() {
	if c.level == nil {
		if v := os.Getenv(EnvLevel); v != "" {
			if lvl, ok := vestig.ParseLevel(v); ok {
				c.level = &lvl
			} else {
				log.Warn("ignoring invalid %s value %q", EnvLevel, v)
			}
		}
	}
	if c.enabled == nil {
		if b, ok := parseBool(os.Getenv(EnvEnabled)); ok {
			c.enabled = &b
		}
	}
	if c.structured == nil {
		if b, ok := parseBool(os.Getenv(EnvStructured)); ok {
			c.structured = &b
		}
	}
	if c.sanitize == nil {
		if b, ok := parseBool(os.Getenv(EnvSanitize)); ok {
			c.sanitize = &b
		}
	}
	for _, kv := range os.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvContextPrefix) {
			continue
		}
		field := strings.ToLower(strings.TrimPrefix(key, EnvContextPrefix))
		if field == "" {
			continue
		}
		if _, ok := c.context[field]; !ok {
			if c.context == nil {
				c.context = vestig.Fields{}
			}
			c.context[field] = value
		}
	}
}

// applyDefaults fills whatever the options and environment left unset. In
// production the defaults tighten: level warn, structured output.
func (c *config) applyDefaults() {
	prod := production()
	if c.level == nil {
		lvl := vestig.LevelInfo
		if prod {
			lvl = vestig.LevelWarn
		}
		c.level = &lvl
	}
	if c.enabled == nil {
		on := true
		c.enabled = &on
	}
	if c.structured == nil {
		c.structured = &prod
	}
	if c.sanitize == nil {
		on := true
		c.sanitize = &on
	}
	if *c.sanitize && c.sanitizer == nil {
		cfg, _ := sanitize.NewPreset(sanitize.PresetDefault) // built-in presets cannot fail
		c.sanitizer = sanitize.MustNew(cfg)
	}
	if len(c.transports) == 0 {
		c.transports = []vestig.Transport{transport.NewConsole(transport.ConsoleConfig{
			Config:     transport.Config{Name: "console"},
			Structured: *c.structured,
			Colors:     c.colors,
		})}
	}
}
