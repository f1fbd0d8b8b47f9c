// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package logger

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vestig "github.com/vestig-io/vestig-go"
)

func newTestDedup(t *testing.T, cfg DedupConfig) (*deduplicator, *time.Time) {
	t.Helper()
	d := newDeduplicator(cfg)
	t.Cleanup(d.destroy)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	return d, &now
}

func TestDedupFirstSeenAdmitted(t *testing.T) {
	d, _ := newTestDedup(t, DedupConfig{Window: time.Second})

	res := d.shouldSuppress("msg", vestig.LevelInfo, "api")
	assert.False(t, res.Suppressed)
	assert.False(t, res.Flush)
}

func TestDedupSuppressesWithinWindow(t *testing.T) {
	d, now := newTestDedup(t, DedupConfig{Window: time.Second})

	d.shouldSuppress("msg", vestig.LevelInfo, "api")
	*now = now.Add(500 * time.Millisecond)
	assert.True(t, d.shouldSuppress("msg", vestig.LevelInfo, "api").Suppressed)
	*now = now.Add(400 * time.Millisecond)
	assert.True(t, d.shouldSuppress("msg", vestig.LevelInfo, "api").Suppressed)
}

func TestDedupFlushAfterWindow(t *testing.T) {
	d, now := newTestDedup(t, DedupConfig{Window: time.Second})

	d.shouldSuppress("msg", vestig.LevelInfo, "api")
	d.shouldSuppress("msg", vestig.LevelInfo, "api")
	d.shouldSuppress("msg", vestig.LevelInfo, "api")

	*now = now.Add(1100 * time.Millisecond)
	res := d.shouldSuppress("msg", vestig.LevelInfo, "api")
	assert.False(t, res.Suppressed)
	assert.True(t, res.Flush)
	assert.Equal(t, 2, res.SuppressedCount)

	// the window restarted with the current call
	assert.True(t, d.shouldSuppress("msg", vestig.LevelInfo, "api").Suppressed)
}

func TestDedupNoFlushWithoutRepeats(t *testing.T) {
	d, now := newTestDedup(t, DedupConfig{Window: time.Second})

	d.shouldSuppress("msg", vestig.LevelInfo, "api")
	*now = now.Add(2 * time.Second)
	res := d.shouldSuppress("msg", vestig.LevelInfo, "api")
	assert.False(t, res.Suppressed)
	assert.False(t, res.Flush)
	assert.Equal(t, 0, res.SuppressedCount)
}

func TestDedupSignatureComponents(t *testing.T) {
	t.Run("namespace and level distinguish by default", func(t *testing.T) {
		d, _ := newTestDedup(t, DedupConfig{Window: time.Minute})
		d.shouldSuppress("msg", vestig.LevelInfo, "api")
		assert.False(t, d.shouldSuppress("msg", vestig.LevelWarn, "api").Suppressed)
		assert.False(t, d.shouldSuppress("msg", vestig.LevelInfo, "db").Suppressed)
		assert.True(t, d.shouldSuppress("msg", vestig.LevelInfo, "api").Suppressed)
	})

	t.Run("ignored components collapse", func(t *testing.T) {
		d, _ := newTestDedup(t, DedupConfig{Window: time.Minute, IgnoreNamespace: true, IgnoreLevel: true})
		d.shouldSuppress("msg", vestig.LevelInfo, "api")
		assert.True(t, d.shouldSuppress("msg", vestig.LevelWarn, "db").Suppressed)
	})
}

func TestDedupEvictsOldestAtCapacity(t *testing.T) {
	d, _ := newTestDedup(t, DedupConfig{Window: time.Minute, MaxSize: 3})

	for i := 0; i < 3; i++ {
		d.shouldSuppress(fmt.Sprintf("msg-%d", i), vestig.LevelInfo, "")
	}
	// a fourth signature evicts msg-0
	d.shouldSuppress("msg-3", vestig.LevelInfo, "")
	assert.False(t, d.shouldSuppress("msg-0", vestig.LevelInfo, "").Suppressed)
	assert.True(t, d.shouldSuppress("msg-3", vestig.LevelInfo, "").Suppressed)
}

func TestDedupPendingSummaries(t *testing.T) {
	d, _ := newTestDedup(t, DedupConfig{Window: time.Minute})

	d.shouldSuppress("quiet", vestig.LevelInfo, "api")
	d.shouldSuppress("noisy", vestig.LevelWarn, "db")
	d.shouldSuppress("noisy", vestig.LevelWarn, "db")
	d.shouldSuppress("noisy", vestig.LevelWarn, "db")

	summaries := d.pendingSummaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, Summary{
		Message:         "noisy",
		Level:           vestig.LevelWarn,
		Namespace:       "db",
		SuppressedCount: 2,
	}, summaries[0])
}

func TestDedupSweepRemovesExpiredSingletons(t *testing.T) {
	d, now := newTestDedup(t, DedupConfig{Window: time.Second})

	d.shouldSuppress("one-off", vestig.LevelInfo, "")
	d.shouldSuppress("repeat", vestig.LevelInfo, "")
	d.shouldSuppress("repeat", vestig.LevelInfo, "")
	*now = now.Add(2 * time.Second)

	// run one sweep pass by hand
	d.mu.Lock()
	for _, sig := range append([]string(nil), d.order...) {
		e := d.entries[sig]
		if e.count == 1 && now.Sub(e.firstSeen) >= d.cfg.Window {
			d.deleteLocked(sig)
		}
	}
	d.mu.Unlock()

	assert.Len(t, d.order, 1)
	assert.Len(t, d.pendingSummaries(), 1)
}
