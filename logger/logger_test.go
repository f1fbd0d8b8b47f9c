// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package logger

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/logctx"
	"github.com/vestig-io/vestig-go/trace"
	"github.com/vestig-io/vestig-go/transport"
)

type captureTransport struct {
	name    string
	mu      sync.Mutex
	records []*vestig.Record
}

func (c *captureTransport) Name() string {
	if c.name == "" {
		return "capture"
	}
	return c.name
}

func (c *captureTransport) Admits(*vestig.Record) bool { return true }

func (c *captureTransport) Log(r *vestig.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}

func (c *captureTransport) Flush() error { return nil }
func (c *captureTransport) Close() error { return nil }

func (c *captureTransport) all() []*vestig.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*vestig.Record(nil), c.records...)
}

func (c *captureTransport) last(t *testing.T) *vestig.Record {
	t.Helper()
	all := c.all()
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

func newTestLogger(t *testing.T, opts ...Option) (*Logger, *captureTransport) {
	t.Helper()
	cap := &captureTransport{}
	l := New(append([]Option{WithTransport(cap)}, opts...)...)
	t.Cleanup(l.Destroy)
	return l, cap
}

func TestPrettyConsoleError(t *testing.T) {
	var out, errOut bytes.Buffer
	l := New(WithTransport(transport.NewConsole(transport.ConsoleConfig{
		Config: transport.Config{Name: "console"},
		Colors: func() *bool { b := false; return &b }(),
		Out:    &out,
		ErrOut: &errOut,
	})))
	t.Cleanup(l.Destroy)

	l.Error("boom")
	line := errOut.String()
	assert.Contains(t, line, "ERROR")
	assert.Contains(t, line, "boom")
	assert.Regexp(t, `\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z`, line)
	assert.Empty(t, out.String())
}

func TestAutoSanitization(t *testing.T) {
	l, cap := newTestLogger(t)

	l.Info("User action", map[string]any{
		"email":    "john.doe@example.com",
		"password": "s3cr3t",
		"userId":   "u1",
	})
	r := cap.last(t)
	assert.Equal(t, map[string]any{
		"email":    "jo***@example.com",
		"password": "[REDACTED]",
		"userId":   "u1",
	}, r.Metadata)
}

func TestErrorExtractionWithSanitization(t *testing.T) {
	// the default sanitizer must not swallow the serialized error
	l, cap := newTestLogger(t)

	l.Info("failed", errors.New("db down"))
	r := cap.last(t)
	require.NotNil(t, r.Err)
	assert.Equal(t, "db down", r.Err.Message)
	assert.Nil(t, r.Metadata)
}

func TestLevelGating(t *testing.T) {
	l, cap := newTestLogger(t, WithLevel(vestig.LevelWarn))

	l.Info("quiet")
	l.Debug("quieter")
	assert.Empty(t, cap.all())

	l.Warn("heard")
	assert.Len(t, cap.all(), 1)

	l.SetLevel(vestig.LevelTrace)
	l.Trace("now heard")
	assert.Len(t, cap.all(), 2)
	assert.Equal(t, vestig.LevelTrace, l.Level())
}

func TestDisable(t *testing.T) {
	l, cap := newTestLogger(t)
	l.Disable()
	assert.False(t, l.IsEnabled())
	l.Error("dropped")
	assert.Empty(t, cap.all())

	l.Enable()
	l.Error("kept")
	assert.Len(t, cap.all(), 1)
}

func TestArgumentNormalization(t *testing.T) {
	l, cap := newTestLogger(t, WithSanitize(false))

	t.Run("message only", func(t *testing.T) {
		l.Info("plain")
		r := cap.last(t)
		assert.Equal(t, "plain", r.Message)
		assert.Nil(t, r.Metadata)
	})

	t.Run("sole map is metadata", func(t *testing.T) {
		l.Info("with meta", map[string]any{"k": "v"})
		r := cap.last(t)
		assert.Equal(t, map[string]any{"k": "v"}, r.Metadata)
	})

	t.Run("error argument becomes record error", func(t *testing.T) {
		l.Error("failed", errors.New("db down"))
		r := cap.last(t)
		require.NotNil(t, r.Err)
		assert.Equal(t, "db down", r.Err.Message)
		assert.Nil(t, r.Metadata)
	})

	t.Run("mixed arguments", func(t *testing.T) {
		l.Info("mixed", map[string]any{"a": 1}, errors.New("oops"), 42)
		r := cap.last(t)
		require.NotNil(t, r.Err)
		assert.Equal(t, "oops", r.Err.Message)
		assert.Equal(t, map[string]any{"a": 1, "arg3": 42}, r.Metadata)
	})

	t.Run("non-string first argument", func(t *testing.T) {
		l.Info(418)
		assert.Equal(t, "418", cap.last(t).Message)
	})

	t.Run("message-shaped map is an error", func(t *testing.T) {
		l.Warn("odd", map[string]any{"message": "from the wire"})
		r := cap.last(t)
		require.NotNil(t, r.Err)
		assert.Equal(t, "from the wire", r.Err.Message)
	})
}

func TestContextMerge(t *testing.T) {
	l, cap := newTestLogger(t, WithContext(vestig.Fields{"service": "api", "region": "us"}))

	logctx.With(vestig.Fields{"region": "eu", vestig.FieldRequestID: "r1"}, func() {
		l.Info("in scope")
	})
	r := cap.last(t)
	assert.Equal(t, "api", r.Context["service"])
	assert.Equal(t, "eu", r.Context["region"]) // async wins
	assert.Equal(t, "r1", r.Context[vestig.FieldRequestID])

	l.Info("out of scope")
	assert.Equal(t, vestig.Fields{"service": "api", "region": "us"}, cap.last(t).Context)
}

type rejectAll struct{}

func (rejectAll) Sample(*vestig.Record) bool { return false }

func TestSamplerWithErrorBypass(t *testing.T) {
	l, cap := newTestLogger(t, WithSampler(rejectAll{}))

	l.Info("sampled out")
	assert.Empty(t, cap.all())

	// errored and error-level records bypass sampling
	l.Info("kept", errors.New("boom"))
	l.Error("also kept")
	assert.Len(t, cap.all(), 2)
}

func TestDedupSuppressionAndSummary(t *testing.T) {
	l, cap := newTestLogger(t, WithDedup(DedupConfig{Window: time.Second}))

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.dedup.now = func() time.Time { return now }

	l.Warn("disk slow")
	l.Warn("disk slow")
	l.Warn("disk slow")
	assert.Len(t, cap.all(), 1)

	now = now.Add(1100 * time.Millisecond)
	l.Warn("disk slow")
	records := cap.all()
	require.Len(t, records, 3)
	assert.Equal(t, "disk slow (repeated 2× in last 1000 ms)", records[1].Message)
	assert.Equal(t, vestig.LevelWarn, records[1].Level)
	assert.Equal(t, "disk slow", records[2].Message)
}

func TestDedupDistinguishesLevels(t *testing.T) {
	l, cap := newTestLogger(t, WithDedup(DedupConfig{Window: time.Minute}))
	l.Warn("same text")
	l.Error("same text")
	assert.Len(t, cap.all(), 2)
}

func TestDestroyDrainsPendingSummaries(t *testing.T) {
	cap := &captureTransport{}
	l := New(WithTransport(cap), WithDedup(DedupConfig{Window: time.Minute}))

	l.Info("flaky")
	l.Info("flaky")
	l.Info("flaky")
	require.Len(t, cap.all(), 1)

	l.Destroy()
	records := cap.all()
	require.Len(t, records, 2)
	assert.Equal(t, "flaky (repeated 2× in last 60000 ms)", records[1].Message)

	l.Destroy() // idempotent
	l.Info("after destroy")
	assert.Len(t, cap.all(), 2)
}

func TestChildLoggers(t *testing.T) {
	l, cap := newTestLogger(t, WithNamespace("api"), WithContext(vestig.Fields{"service": "api"}))

	child := l.Child("db")
	assert.Equal(t, "api:db", child.Namespace())
	assert.Same(t, child, l.Child("db"))

	child.Info("query done")
	r := cap.last(t)
	assert.Equal(t, "api:db", r.Namespace)
	assert.Equal(t, "api", r.Context["service"])

	grandchild := child.Child("tx")
	assert.Equal(t, "api:db:tx", grandchild.Namespace())
}

func TestChildWithOverridesNotCached(t *testing.T) {
	l, cap := newTestLogger(t, WithContext(vestig.Fields{"a": 1, "b": 2}))

	c1 := l.Child("worker", WithContext(vestig.Fields{"b": 3}))
	c2 := l.Child("worker", WithContext(vestig.Fields{"b": 3}))
	assert.NotSame(t, c1, c2)

	c1.Info("hello")
	r := cap.last(t)
	assert.Equal(t, 1, r.Context["a"])
	assert.Equal(t, 3, r.Context["b"]) // override wins pairwise

	// plain child is unaffected by the sibling's override
	l.Child("other").Info("hi")
	assert.Equal(t, 2, cap.last(t).Context["b"])
}

func TestTransportRegistry(t *testing.T) {
	l, _ := newTestLogger(t)

	extra := &captureTransport{name: "extra"}
	require.NoError(t, l.AddTransport(extra))
	assert.Error(t, l.AddTransport(&captureTransport{name: "extra"}))
	assert.Len(t, l.Transports(), 2)

	l.Info("both")
	assert.Len(t, extra.all(), 1)

	assert.True(t, l.RemoveTransport("extra"))
	assert.False(t, l.RemoveTransport("extra"))
	l.Info("one")
	assert.Len(t, extra.all(), 1)
}

func TestTransportFiltering(t *testing.T) {
	cap := &captureTransport{}
	l := New(
		WithTransport(cap),
		WithTransport(transport.NewConsole(transport.ConsoleConfig{
			Config: transport.Config{Name: "errors-only", MinLevel: vestig.LevelError},
			Out:    &bytes.Buffer{},
			ErrOut: &bytes.Buffer{},
		})),
	)
	t.Cleanup(l.Destroy)

	l.Info("info")
	l.Error("error")
	assert.Len(t, cap.all(), 2)
}

func TestEnvConfiguration(t *testing.T) {
	t.Setenv(EnvLevel, "error")
	t.Setenv(EnvEnabled, "true")
	t.Setenv(EnvContextPrefix+"REGION", "eu-west-1")

	l, cap := newTestLogger(t)
	assert.Equal(t, vestig.LevelError, l.Level())

	l.Error("boom")
	assert.Equal(t, "eu-west-1", cap.last(t).Context["region"])

	// explicit options beat the environment
	l2, _ := newTestLogger(t, WithLevel(vestig.LevelDebug))
	assert.Equal(t, vestig.LevelDebug, l2.Level())
}

func TestProductionDefaults(t *testing.T) {
	t.Setenv("VESTIG_ENV", "production")
	l, _ := newTestLogger(t)
	assert.Equal(t, vestig.LevelWarn, l.Level())
}

func TestLoggerSpanNamespacePrefix(t *testing.T) {
	t.Cleanup(trace.ClearStack)
	l, _ := newTestLogger(t, WithNamespace("api"))

	s := l.StartSpan("fetch")
	assert.Equal(t, "api:fetch", s.Name())
	trace.Finish(s)

	require.NoError(t, l.Do("handle", func(inner *trace.Span) error {
		assert.Equal(t, "api:handle", inner.Name())
		return nil
	}))
}
