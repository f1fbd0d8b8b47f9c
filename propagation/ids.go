// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package propagation generates correlation identifiers and encodes them in
// the W3C Trace Context wire format (traceparent and tracestate headers).
package propagation

import (
	cryptorand "crypto/rand"
	"encoding/hex"
	"io"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"github.com/vestig-io/vestig-go/internal/hostinfo"
	"github.com/vestig-io/vestig-go/internal/log"
)

// randSource yields random bytes for ID generation. It is the crypto RNG
// when the host probe found one and a pseudo-random source otherwise. The
// degradation is logged once; generation never fails.
var randSource io.Reader = newSource()

func newSource() io.Reader {
	if hostinfo.Get().CryptoRNG {
		return cryptorand.Reader
	}
	log.Warn("crypto RNG unavailable; correlation IDs degrade to a pseudo-random source")
	return &pseudoReader{}
}

// pseudoReader adapts math/rand/v2 to io.Reader. ChaCha8-seeded, not
// cryptographically strong.
type pseudoReader struct {
	mu sync.Mutex
}

func (p *pseudoReader) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range b {
		b[i] = byte(rand.Uint32())
	}
	return len(b), nil
}

func randHex(n int) string {
	b := make([]byte, n)
	// the pseudo source never errors and crypto/rand.Read blocks until it
	// can satisfy the request on supported platforms
	if _, err := io.ReadFull(randSource, b); err != nil {
		for i := range b {
			b[i] = byte(rand.Uint32())
		}
	}
	return hex.EncodeToString(b)
}

// NewTraceID returns a 128-bit trace ID as 32 lowercase hex characters.
func NewTraceID() string { return randHex(16) }

// NewSpanID returns a 64-bit span ID as 16 lowercase hex characters.
func NewSpanID() string { return randHex(8) }

// NewRequestID returns a v4 UUID.
func NewRequestID() string {
	id, err := uuid.NewRandomFromReader(randSource)
	if err != nil {
		// unreachable with the pseudo source; crypto failure degrades too
		id = uuid.Must(uuid.NewRandomFromReader(&pseudoReader{}))
	}
	return id.String()
}

// ValidTraceID reports whether s is 32 lowercase hex characters.
func ValidTraceID(s string) bool { return isLowerHex(s, 32) }

// ValidSpanID reports whether s is 16 lowercase hex characters.
func ValidSpanID(s string) bool { return isLowerHex(s, 16) }

func isLowerHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
