// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package propagation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDs(t *testing.T) {
	assert := assert.New(t)
	tid := NewTraceID()
	sid := NewSpanID()
	assert.True(ValidTraceID(tid), "trace ID %q", tid)
	assert.True(ValidSpanID(sid), "span ID %q", sid)
	assert.NotEqual(NewTraceID(), tid)

	rid := NewRequestID()
	assert.Len(rid, 36)
	assert.Equal(byte('4'), rid[14], "v4 UUID version nibble")
}

func TestParseTraceparent(t *testing.T) {
	tp, ok := ParseTraceparent("00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	require.True(t, ok)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", tp.TraceID)
	assert.Equal(t, "b7ad6b7169203331", tp.SpanID)
	assert.True(t, tp.Sampled)
}

func TestParseTraceparentRejects(t *testing.T) {
	for _, header := range []string{
		"",
		"00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331", // missing flags
		"01-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01", // wrong version
		"00-0af7651916cd43dd8448eb211c80319-b7ad6b7169203331-01",  // short trace ID
		"00-0af7651916cd43dd8448eb211c80319c-b7ad6b716920333-01",  // short span ID
		"00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-0",  // short flags
		"00-zzf7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01", // non-hex
	} {
		_, ok := ParseTraceparent(header)
		assert.False(t, ok, "header %q", header)
	}
}

func TestTraceparentRoundTrip(t *testing.T) {
	tid := NewTraceID()
	sid := NewSpanID()
	tp, ok := ParseTraceparent(FormatTraceparent(tid, sid))
	require.True(t, ok)
	assert.Equal(t, tid, tp.TraceID)
	assert.Equal(t, sid, tp.SpanID)
}

func TestTracestateOrderPreserved(t *testing.T) {
	ts := ParseTracestate("congo=t61rcWkgMzE,rojo=00f067aa0ba902b7")
	assert.Equal(t, "congo=t61rcWkgMzE,rojo=00f067aa0ba902b7", ts.String())
	v, ok := ts.Get("rojo")
	assert.True(t, ok)
	assert.Equal(t, "00f067aa0ba902b7", v)
}

func TestTracestateSetMovesToFront(t *testing.T) {
	ts := ParseTracestate("congo=a,rojo=b")
	ts.Set("rojo", "c")
	assert.Equal(t, "rojo=c,congo=a", ts.String())
	ts.Set("vestig", "1")
	assert.Equal(t, "vestig=1,rojo=c,congo=a", ts.String())
}

func TestTracestateCapsMembers(t *testing.T) {
	ts := Tracestate{}
	for i := 0; i < 40; i++ {
		ts.Set("k"+string(rune('a'+i%26))+string(rune('a'+i/26)), "v")
	}
	assert.LessOrEqual(t, ts.Len(), 32)
}

func TestTracestateRejectsBadMembers(t *testing.T) {
	ts := ParseTracestate("ok=1,BAD=2,=3,noequals,eq=a=b,good=yes")
	_, bad := ts.Get("BAD")
	assert.False(t, bad)
	_, eq := ts.Get("eq")
	assert.False(t, eq)
	_, ok := ts.Get("ok")
	assert.True(t, ok)
	_, good := ts.Get("good")
	assert.True(t, good)
}
