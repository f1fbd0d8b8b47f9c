// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package log is the SDK's self-diagnostics channel. It is never on the
// user's record path; it reports the SDK's own misbehavior. Errors are
// tallied per key and emitted in one line per interval so a failing
// transport cannot flood stderr.
package log

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/vestig-io/vestig-go/internal/version"
)

// Level gates the diagnostics output.
type Level int

const (
	// LevelDebug emits debug lines in addition to warnings and errors.
	LevelDebug Level = iota
	// LevelWarn emits warnings and errors only. The default.
	LevelWarn
)

// Logger receives the formatted diagnostic lines.
type Logger interface {
	Log(msg string)
}

var prefix = "Vestig SDK " + version.Tag

var (
	mu    sync.RWMutex // guards level and sink
	level        = LevelWarn
	sink  Logger = stderrLogger{l: log.New(os.Stderr, "", log.LstdFlags)}
)

// UseLogger routes diagnostics to l instead of stderr.
func UseLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	sink = l
}

// SetLevel sets the diagnostics level.
func SetLevel(lvl Level) {
	mu.Lock()
	defer mu.Unlock()
	level = lvl
}

// Debug prints the given message when the level is LevelDebug.
func Debug(format string, a ...any) {
	mu.RLock()
	lvl := level
	mu.RUnlock()
	if lvl != LevelDebug {
		return
	}
	emit("DEBUG", format, a...)
}

// Warn prints a warning message.
func Warn(format string, a ...any) {
	emit("WARN", format, a...)
}

// reportInterval is how often tallied errors are emitted. Overridable in
// seconds via VESTIG_LOGGING_RATE.
var reportInterval = time.Minute

// tallyCap stops counting a key's repeats; past it, Error returns without
// taking the lock.
const tallyCap = 50

type tally struct {
	err  error
	seen uint64
}

var (
	tallyMu     sync.RWMutex
	pending     = map[string]*tally{}
	flushQueued bool
)

func init() {
	if v, ok := os.LookupEnv("VESTIG_LOGGING_RATE"); ok {
		if sec, err := strconv.ParseUint(v, 10, 64); err != nil {
			Warn("invalid VESTIG_LOGGING_RATE value: %v", err)
		} else {
			reportInterval = time.Duration(sec) * time.Second
		}
	}
}

// Error records one occurrence of the keyed failure. The first occurrence in
// an interval queues a flush; repeats only bump the tally until the interval
// expires and Flush prints one line per key.
func Error(key, format string, a ...any) {
	if capped(key) {
		return
	}
	tallyMu.Lock()
	defer tallyMu.Unlock()
	t, ok := pending[key]
	if !ok {
		t = &tally{err: fmt.Errorf(format, a...)}
		pending[key] = t
	}
	t.seen++
	if !flushQueued {
		flushQueued = true
		time.AfterFunc(reportInterval, Flush)
	}
}

func capped(key string) bool {
	tallyMu.RLock()
	t, ok := pending[key]
	tallyMu.RUnlock()
	return ok && t.seen > tallyCap
}

// Flush emits and clears all tallied errors.
func Flush() {
	tallyMu.Lock()
	defer tallyMu.Unlock()
	for _, t := range pending {
		line := t.err.Error()
		switch {
		case t.seen > tallyCap:
			line = fmt.Sprintf("%s (+%d or more repeats)", line, tallyCap)
		case t.seen > 1:
			line = fmt.Sprintf("%s (+%d repeats)", line, t.seen-1)
		}
		emit("ERROR", "%s", line)
	}
	clear(pending)
	flushQueued = false
}

func emit(lvl, format string, a ...any) {
	msg := fmt.Sprintf("%s %s: %s\n", prefix, lvl, fmt.Sprintf(format, a...))
	mu.RLock()
	sink.Log(msg)
	mu.RUnlock()
}

type stderrLogger struct{ l *log.Logger }

func (s stderrLogger) Log(msg string) { s.l.Print(msg) }
