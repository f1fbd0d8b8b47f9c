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
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/internal/log"
)

// File transport defaults.
const (
	DefaultFileMaxSize  = 10 << 20 // 10 MiB
	DefaultFileMaxFiles = 5
)

// RotateInterval selects time-based rotation for the file transport.
type RotateInterval string

const (
	RotateNever  RotateInterval = ""
	RotateHourly RotateInterval = "hourly"
	RotateDaily  RotateInterval = "daily"
	RotateWeekly RotateInterval = "weekly"
)

// FileStore abstracts the filesystem operations the file transport needs,
// keeping the transport testable without touching disk.
type FileStore interface {
	// OpenAppend opens path for appending, creating it if absent.
	OpenAppend(path string) (io.WriteCloser, error)
	// Stat reports the size of path and whether it exists.
	Stat(path string) (size int64, exists bool, err error)
	Rename(oldPath, newPath string) error
	Remove(path string) error
	// Gzip compresses src into dst. src is left in place.
	Gzip(src, dst string) error
}

// OSFileStore is the disk-backed FileStore.
type OSFileStore struct{}

func (OSFileStore) OpenAppend(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func (OSFileStore) Stat(path string) (int64, bool, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return fi.Size(), true, nil
}

func (OSFileStore) Rename(oldPath, newPath string) error { return os.Rename(oldPath, newPath) }
func (OSFileStore) Remove(path string) error             { return os.Remove(path) }

func (OSFileStore) Gzip(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// FileConfig configures a file transport.
type FileConfig struct {
	Config
	BatchConfig

	// Path is the live log file. Required.
	Path string

	// MaxSize triggers size rotation when an append would exceed it.
	// Default 10 MiB.
	MaxSize int64

	// MaxFiles bounds the rotated companions <path>.1..N. Default 5.
	MaxFiles int

	// Compress gzips rotated files; companions are named <path>.N.gz.
	Compress bool

	// Interval adds time-based rotation on wall-clock bucket change.
	Interval RotateInterval

	// Store overrides the disk-backed FileStore, mainly for tests.
	Store FileStore

	// now is injectable for time-rotation tests.
	now func() time.Time
}

// File appends records to a log file as JSON lines, rotating by size and
// optionally by wall-clock interval.
type File struct {
	*Batcher
	store    FileStore
	path     string
	maxSize  int64
	maxFiles int
	compress bool
	interval RotateInterval
	now      func() time.Time

	mu         sync.Mutex
	w          io.WriteCloser
	size       int64
	lastBucket string
}

// NewFile builds a file batching transport. The live file is opened lazily
// on the first send.
func NewFile(cfg FileConfig) *File {
	if cfg.Name == "" {
		cfg.Name = "file"
	}
	t := &File{
		store:    cfg.Store,
		path:     cfg.Path,
		maxSize:  cfg.MaxSize,
		maxFiles: cfg.MaxFiles,
		compress: cfg.Compress,
		interval: cfg.Interval,
		now:      cfg.now,
	}
	if t.store == nil {
		t.store = OSFileStore{}
	}
	if t.maxSize <= 0 {
		t.maxSize = DefaultFileMaxSize
	}
	if t.maxFiles <= 0 {
		t.maxFiles = DefaultFileMaxFiles
	}
	if t.now == nil {
		t.now = time.Now
	}
	t.Batcher = NewBatcher(cfg.Config, cfg.BatchConfig, t)
	return t
}

// Send implements Sender: one JSON line per record, rotation checked before
// the append. A record that cannot be serialized is dropped with a warning;
// the rest of the batch is written.
func (t *File) Send(records []*vestig.Record) error {
	var lines []byte
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			log.Warn("transport %s: dropping unserializable record: %v", t.Name(), err)
			continue
		}
		lines = append(lines, b...)
		lines = append(lines, '\n')
	}
	if len(lines) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureOpenLocked(); err != nil {
		return err
	}
	if t.rotateDueLocked(int64(len(lines))) {
		if err := t.rotateLocked(); err != nil {
			return err
		}
	}
	n, err := t.w.Write(lines)
	t.size += int64(n)
	return err
}

func (t *File) ensureOpenLocked() error {
	if t.w != nil {
		return nil
	}
	size, _, err := t.store.Stat(t.path)
	if err != nil {
		return err
	}
	w, err := t.store.OpenAppend(t.path)
	if err != nil {
		return err
	}
	t.w = w
	t.size = size
	return nil
}

func (t *File) rotateDueLocked(incoming int64) bool {
	due := t.size+incoming > t.maxSize
	// the bucket advances on every check so a rotation that covers both the
	// size and the time boundary is not followed by a second one
	if t.interval != RotateNever {
		bucket := t.bucket(t.now())
		if t.lastBucket != "" && bucket != t.lastBucket {
			due = true
		}
		t.lastBucket = bucket
	}
	return due
}

func (t *File) bucket(now time.Time) string {
	switch t.interval {
	case RotateHourly:
		return now.Format("2006-01-02T15")
	case RotateDaily:
		return now.Format("2006-01-02")
	case RotateWeekly:
		y, w := now.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	default:
		return ""
	}
}

func (t *File) companion(i int) string {
	name := fmt.Sprintf("%s.%d", t.path, i)
	if t.compress {
		name += ".gz"
	}
	return name
}

// rotateLocked shifts <path>.{i-1} to <path>.{i} for i from maxFiles-1 down
// to 1, where index 0 is the live file. With compression the live file is
// gzipped into <path>.1.gz instead of renamed.
func (t *File) rotateLocked() error {
	if t.w != nil {
		t.w.Close()
		t.w = nil
	}
	for i := t.maxFiles - 1; i >= 1; i-- {
		if i == 1 {
			if t.compress {
				if err := t.store.Gzip(t.path, t.companion(1)); err != nil {
					return err
				}
				if err := t.store.Remove(t.path); err != nil {
					return err
				}
			} else if err := t.store.Rename(t.path, t.companion(1)); err != nil {
				return err
			}
			continue
		}
		if _, exists, err := t.store.Stat(t.companion(i - 1)); err != nil {
			return err
		} else if exists {
			if err := t.store.Rename(t.companion(i-1), t.companion(i)); err != nil {
				return err
			}
		}
	}
	if _, exists, err := t.store.Stat(t.companion(t.maxFiles)); err == nil && exists {
		t.store.Remove(t.companion(t.maxFiles))
	}
	w, err := t.store.OpenAppend(t.path)
	if err != nil {
		return err
	}
	t.w = w
	t.size = 0
	return nil
}

// Close flushes through the batcher, then closes the live file handle.
func (t *File) Close() error {
	err := t.Batcher.Close()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w != nil {
		if cerr := t.w.Close(); err == nil {
			err = cerr
		}
		t.w = nil
	}
	return err
}
