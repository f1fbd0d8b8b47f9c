// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package vestig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelOrdering(t *testing.T) {
	assert.True(t, LevelTrace < LevelDebug)
	assert.True(t, LevelDebug < LevelInfo)
	assert.True(t, LevelInfo < LevelWarn)
	assert.True(t, LevelWarn < LevelError)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "trace", LevelTrace.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "unknown", Level(42).String())
	assert.Equal(t, "unknown", Level(-1).String())
}

func TestParseLevel(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want Level
		ok   bool
	}{
		{"trace", LevelTrace, true},
		{"DEBUG", LevelDebug, true},
		{" info ", LevelInfo, true},
		{"warn", LevelWarn, true},
		{"warning", LevelWarn, true},
		{"Error", LevelError, true},
		{"fatal", LevelInfo, false},
		{"", LevelInfo, false},
	} {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestFieldsMerge(t *testing.T) {
	base := Fields{"a": 1, "b": 2}
	merged := base.Merge(Fields{"b": 3, "c": 4})
	assert.Equal(t, Fields{"a": 1, "b": 3, "c": 4}, merged)

	// inputs untouched
	assert.Equal(t, Fields{"a": 1, "b": 2}, base)

	assert.Nil(t, Fields(nil).Merge(nil))
	assert.Equal(t, Fields{"a": 1}, Fields(nil).Merge(Fields{"a": 1}))
}

func TestFieldsClone(t *testing.T) {
	assert.Nil(t, Fields(nil).Clone())
	f := Fields{"a": 1}
	c := f.Clone()
	c["a"] = 2
	assert.Equal(t, 1, f["a"])
}

func TestRecordJSON(t *testing.T) {
	r := &Record{
		Time:      time.Date(2024, 5, 1, 12, 30, 45, 123_000_000, time.UTC),
		Level:     LevelWarn,
		Message:   "disk slow",
		Metadata:  map[string]any{"latencyMs": 250.0},
		Context:   Fields{FieldRequestID: "r1"},
		Runtime:   "go",
		Namespace: "api:db",
	}

	b, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "2024-05-01T12:30:45.123Z", m["timestamp"])
	assert.Equal(t, "warn", m["level"])
	assert.Equal(t, "disk slow", m["message"])
	assert.Equal(t, "api:db", m["namespace"])
	assert.NotContains(t, m, "error")

	var back Record
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, r.Time, back.Time)
	assert.Equal(t, r.Level, back.Level)
	assert.Equal(t, r.Message, back.Message)
	assert.Equal(t, r.Context, back.Context)
}

func TestRecordJSONOmitsEmpty(t *testing.T) {
	r := &Record{Time: time.Unix(0, 0), Level: LevelInfo, Message: "m"}
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.NotContains(t, m, "metadata")
	assert.NotContains(t, m, "context")
	assert.NotContains(t, m, "namespace")
}

type statusCodeErr struct{ code int }

func (e *statusCodeErr) Error() string   { return fmt.Sprintf("upstream returned %d", e.code) }
func (e *statusCodeErr) StatusCode() int { return e.code }

func TestSerializeError(t *testing.T) {
	err := SerializeError(errors.New("boom"))
	require.NotNil(t, err)
	assert.Equal(t, "errors.errorString", err.Name)
	assert.Equal(t, "boom", err.Message)
	assert.NotEmpty(t, err.Stack)
	assert.Nil(t, err.Cause)

	assert.Nil(t, SerializeError(nil))
}

func TestSerializeErrorCauseChain(t *testing.T) {
	root := errors.New("root")
	wrapped := fmt.Errorf("layer one: %w", fmt.Errorf("layer two: %w", root))

	s := SerializeError(wrapped)
	require.NotNil(t, s.Cause)
	require.NotNil(t, s.Cause.Cause)
	assert.Equal(t, "root", s.Cause.Cause.Message)
	// stack captured only at the top
	assert.Empty(t, s.Cause.Stack)
}

func TestSerializeErrorCauseDepthBounded(t *testing.T) {
	err := errors.New("deepest")
	for i := 0; i < 20; i++ {
		err = fmt.Errorf("layer %d: %w", i, err)
	}
	depth := 0
	for s := SerializeError(err); s != nil; s = s.Cause {
		depth++
	}
	assert.Equal(t, maxCauseDepth+1, depth)
}

func TestSerializeErrorDetail(t *testing.T) {
	t.Run("path error", func(t *testing.T) {
		s := SerializeError(&os.PathError{Op: "open", Path: "/etc/missing", Err: os.ErrNotExist})
		assert.Equal(t, "open", s.Syscall)
		assert.Equal(t, "/etc/missing", s.Path)
	})

	t.Run("status code", func(t *testing.T) {
		s := SerializeError(&statusCodeErr{code: 503})
		assert.Equal(t, 503, s.StatusCode)
	})
}

func TestIsError(t *testing.T) {
	assert.True(t, IsError(errors.New("x")))
	assert.True(t, IsError(map[string]any{"message": "from the wire"}))
	assert.False(t, IsError(map[string]any{"msg": "nope"}))
	assert.False(t, IsError("a string"))
	assert.False(t, IsError(nil))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "x", ErrorMessage(errors.New("x")))
	assert.Equal(t, "y", ErrorMessage(map[string]any{"message": "y"}))
	assert.Equal(t, "", ErrorMessage(42))
}

func TestSerializeValue(t *testing.T) {
	s := SerializeValue(map[string]any{"message": "remote failure", "name": "RemoteError", "stack": "at a\nat b"})
	require.NotNil(t, s)
	assert.Equal(t, "RemoteError", s.Name)
	assert.Equal(t, "remote failure", s.Message)
	assert.Equal(t, "at a\nat b", s.Stack)

	assert.Nil(t, SerializeValue("not error-like"))
}
