// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package hostinfo probes the host environment once at load time and exposes
// a constant runtime tag plus capability flags. Consumers rely only on the
// flags, never on how they were detected.
package hostinfo

import (
	"crypto/rand"
	"os"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
)

// RuntimeTag identifies the runtime on every emitted record.
const RuntimeTag = "go"

// Info describes the probed host environment.
type Info struct {
	// GoVersion is the version of the Go runtime, e.g. "go1.24.0".
	GoVersion string

	// OS and Arch are GOOS/GOARCH.
	OS   string
	Arch string

	// Hostname is the host's reported name, empty when unavailable.
	Hostname string

	// PID is the current process ID.
	PID int

	// Production reports whether the process declares itself a production
	// deployment (VESTIG_ENV or ENV set to "production").
	Production bool

	// StderrTTY reports whether stderr is attached to a terminal. Console
	// transports use it to decide the ANSI color default.
	StderrTTY bool

	// CryptoRNG reports whether the crypto-quality RNG is usable. ID
	// generation degrades to a pseudo-random source when it is not.
	CryptoRNG bool

	// MonotonicClock reports whether a monotonic clock is available. On Go
	// this is always true; the flag is recorded so callers don't need to
	// know that.
	MonotonicClock bool
}

var probed Info

func init() {
	probed = probe()
}

// Get returns the host information captured at load time.
func Get() Info { return probed }

func probe() Info {
	hostname, _ := os.Hostname()
	info := Info{
		GoVersion:      runtime.Version(),
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
		Hostname:       hostname,
		PID:            os.Getpid(),
		Production:     isProduction(),
		StderrTTY:      isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()),
		CryptoRNG:      cryptoRNGWorks(),
		MonotonicClock: true,
	}
	return info
}

func isProduction() bool {
	for _, key := range []string{"VESTIG_ENV", "ENV"} {
		if v, ok := os.LookupEnv(key); ok {
			return strings.EqualFold(strings.TrimSpace(v), "production")
		}
	}
	return false
}

// cryptoRNGWorks verifies the crypto RNG with a single read. A failure here
// is practically impossible on supported platforms but the capability flag
// lets ID generation fall back instead of panicking.
func cryptoRNGWorks() bool {
	var b [1]byte
	_, err := rand.Read(b[:])
	return err == nil
}
