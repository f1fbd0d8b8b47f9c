// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushShiftOrder(t *testing.T) {
	assert := assert.New(t)
	b := New[int](4, nil)
	for i := 1; i <= 4; i++ {
		b.Push(i)
	}
	for i := 1; i <= 4; i++ {
		v, ok := b.Shift()
		assert.True(ok)
		assert.Equal(i, v)
	}
	_, ok := b.Shift()
	assert.False(ok)
}

func TestOverflowDropsOldest(t *testing.T) {
	assert := assert.New(t)
	var dropped []int
	b := New[int](3, func(x int) { dropped = append(dropped, x) })
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}
	assert.Equal([]int{1, 2}, dropped)
	assert.Equal(uint64(2), b.Dropped())
	assert.Equal([]int{3, 4, 5}, b.ToArray())
}

func TestCapacityOne(t *testing.T) {
	assert := assert.New(t)
	b := New[string](1, nil)
	b.Push("a")
	b.Push("b")
	v, ok := b.Shift()
	assert.True(ok)
	assert.Equal("b", v)
	assert.Equal(0, b.Len())
}

func TestClearKeepsDropCounter(t *testing.T) {
	assert := assert.New(t)
	b := New[int](2, nil)
	b.Push(1)
	b.Push(2)
	b.Push(3)
	assert.Equal(uint64(1), b.Dropped())
	b.Clear()
	assert.Equal(0, b.Len())
	assert.Equal(uint64(1), b.Dropped())
	stats := b.GetStats()
	assert.Equal(0, stats.Size)
	assert.Equal(2, stats.Capacity)
	assert.Equal(uint64(1), stats.Dropped)
}

func TestPeekAndDrain(t *testing.T) {
	assert := assert.New(t)
	b := New[int](3, nil)
	_, ok := b.Peek()
	assert.False(ok)
	b.Push(7)
	b.Push(8)
	v, ok := b.Peek()
	assert.True(ok)
	assert.Equal(7, v)
	assert.Equal(2, b.Len())
	assert.Equal([]int{7, 8}, b.Drain())
	assert.Equal(0, b.Len())
}

func TestWrapAround(t *testing.T) {
	assert := assert.New(t)
	b := New[int](3, nil)
	b.Push(1)
	b.Push(2)
	b.Shift()
	b.Push(3)
	b.Push(4) // wraps
	assert.Equal([]int{2, 3, 4}, b.ToArray())
	assert.True(b.IsFull())
}
