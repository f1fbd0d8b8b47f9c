// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/internal/hostinfo"
	"github.com/vestig-io/vestig-go/internal/log"
)

// ConsoleConfig configures a console transport.
type ConsoleConfig struct {
	Config

	// Structured emits one JSON record per line instead of pretty output.
	Structured bool

	// Colors enables ANSI colors in pretty mode. Nil means auto: on when
	// stderr is a terminal.
	Colors *bool

	// Out and ErrOut are the destination streams. Defaults: os.Stdout for
	// trace/debug/info, os.Stderr for warn/error.
	Out    io.Writer
	ErrOut io.Writer
}

// Console writes records synchronously, one line per record. It never
// batches; a crashed process loses nothing that was logged.
type Console struct {
	base
	structured bool
	colors     bool
	mu         sync.Mutex
	out        io.Writer
	errOut     io.Writer
}

// NewConsole builds a console transport.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Name == "" {
		cfg.Name = "console"
	}
	colors := hostinfo.Get().StderrTTY
	if cfg.Colors != nil {
		colors = *cfg.Colors
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	errOut := cfg.ErrOut
	if errOut == nil {
		errOut = os.Stderr
	}
	c := &Console{
		structured: cfg.Structured,
		colors:     colors,
		out:        out,
		errOut:     errOut,
	}
	c.base.init(cfg.Config)
	return c
}

var levelColors = map[vestig.Level]string{
	vestig.LevelTrace: "\x1b[90m", // bright black
	vestig.LevelDebug: "\x1b[36m", // cyan
	vestig.LevelInfo:  "\x1b[32m", // green
	vestig.LevelWarn:  "\x1b[33m", // yellow
	vestig.LevelError: "\x1b[31m", // red
}

const colorReset = "\x1b[0m"

// Log implements vestig.Transport.
func (t *Console) Log(r *vestig.Record) error {
	var line string
	if t.structured {
		b, err := json.Marshal(r)
		if err != nil {
			// drop the record, not the stream
			log.Warn("console transport: serialize record: %v", err)
			return nil
		}
		line = string(b)
	} else {
		line = t.pretty(r)
	}
	w := t.streamFor(r.Level)
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(w, line+"\n")
	return err
}

// streamFor maps levels to the host's console streams: trace maps to the
// debug stream.
func (t *Console) streamFor(level vestig.Level) io.Writer {
	if level >= vestig.LevelWarn {
		return t.errOut
	}
	return t.out
}

func (t *Console) pretty(r *vestig.Record) string {
	var b strings.Builder
	label := fmt.Sprintf("%-5s", strings.ToUpper(r.Level.String()))
	if t.colors {
		b.WriteString(levelColors[r.Level])
		b.WriteString(label)
		b.WriteString(colorReset)
	} else {
		b.WriteString(label)
	}
	b.WriteByte(' ')
	b.WriteString(r.Time.UTC().Format(vestig.TimestampLayout))
	if r.Namespace != "" {
		b.WriteString(" [")
		b.WriteString(r.Namespace)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)
	if len(r.Metadata) > 0 {
		if meta, err := json.Marshal(r.Metadata); err == nil {
			b.WriteByte(' ')
			b.Write(meta)
		}
	}
	if r.Err != nil {
		b.WriteByte('\n')
		if r.Err.Stack != "" {
			b.WriteString(r.Err.Stack)
		} else {
			b.WriteString(r.Err.Name + ": " + r.Err.Message)
		}
	}
	return b.String()
}

// Flush implements vestig.Transport; console output is unbuffered.
func (t *Console) Flush() error { return nil }

// Close implements vestig.Transport.
func (t *Console) Close() error { return nil }
