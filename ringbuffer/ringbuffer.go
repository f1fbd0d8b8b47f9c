// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

// Package ringbuffer implements a fixed-capacity FIFO queue with drop-oldest
// overflow semantics. It backs the batching transports' staging queues.
package ringbuffer

import "sync"

// Stats is a point-in-time snapshot of a buffer.
type Stats struct {
	Size     int
	Capacity int
	Dropped  uint64
}

// Buffer is a bounded FIFO over a ring of slots. When a push arrives at
// capacity the oldest element is dropped and the optional drop callback is
// invoked with it. Safe for concurrent use.
type Buffer[T any] struct {
	mu      sync.Mutex
	slots   []T
	head    int // index of the oldest element
	count   int
	dropped uint64
	onDrop  func(T)
}

// New returns a buffer holding at most capacity elements. onDrop may be nil;
// when set it is called, outside the buffer's lock, with each element
// evicted by an overflowing Push. Capacity values below 1 are raised to 1.
func New[T any](capacity int, onDrop func(T)) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		slots:  make([]T, capacity),
		onDrop: onDrop,
	}
}

// Push appends x, evicting the oldest element when full.
func (b *Buffer[T]) Push(x T) {
	b.mu.Lock()
	var old T
	evicted := false
	if b.count == len(b.slots) {
		old = b.slots[b.head]
		b.head = (b.head + 1) % len(b.slots)
		b.count--
		b.dropped++
		evicted = true
	}
	tail := (b.head + b.count) % len(b.slots)
	b.slots[tail] = x
	b.count++
	cb := b.onDrop
	b.mu.Unlock()
	if evicted && cb != nil {
		cb(old)
	}
}

// Shift removes and returns the oldest element.
func (b *Buffer[T]) Shift() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	if b.count == 0 {
		return zero, false
	}
	x := b.slots[b.head]
	b.slots[b.head] = zero
	b.head = (b.head + 1) % len(b.slots)
	b.count--
	return x, true
}

// Peek returns the oldest element without removing it.
func (b *Buffer[T]) Peek() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	if b.count == 0 {
		return zero, false
	}
	return b.slots[b.head], true
}

// Drain atomically snapshots the contents oldest-first and empties the
// buffer. The historical drop counter is preserved.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.snapshotLocked()
	b.clearLocked()
	return out
}

// ToArray returns the contents oldest-first without modifying the buffer.
func (b *Buffer[T]) ToArray() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Buffer[T]) snapshotLocked() []T {
	if b.count == 0 {
		return nil
	}
	out := make([]T, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.slots[(b.head+i)%len(b.slots)]
	}
	return out
}

// Clear empties the buffer. The drop counter is historical and survives.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
}

func (b *Buffer[T]) clearLocked() {
	var zero T
	for i := range b.slots {
		b.slots[i] = zero
	}
	b.head = 0
	b.count = 0
}

// Len returns the number of buffered elements.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// IsFull reports whether the next Push would evict.
func (b *Buffer[T]) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count == len(b.slots)
}

// Dropped returns the total number of elements evicted since construction.
func (b *Buffer[T]) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// GetStats returns a snapshot of the buffer's counters.
func (b *Buffer[T]) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Size: b.count, Capacity: len(b.slots), Dropped: b.dropped}
}
