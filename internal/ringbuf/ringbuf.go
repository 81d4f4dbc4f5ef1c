// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ringbuf provides the fixed-capacity byte buffer that sits between a
// transport's reader goroutine and the frame parser.
//
// The buffer never blocks and never grows. When a write does not fit in the
// free space, the oldest unread bytes are overwritten and the read index is
// advanced past them, so after a burst larger than the capacity only the most
// recent Capacity() bytes remain readable.
//
// Every call is serialized by an internal mutex. There is exactly one
// producer and one consumer in normal use; waking the consumer is the
// caller's job.
package ringbuf

import (
	"errors"

	"github.com/ZaparooProject/go-xbee/internal/syncutil"
)

// ErrInvalidCapacity is returned by New for a capacity below one byte.
var ErrInvalidCapacity = errors.New("ring buffer capacity must be positive")

// Buffer is a circular byte buffer with an overwrite-oldest policy.
type Buffer struct {
	data       []byte
	readIndex  int
	writeIndex int
	available  int
	overwrites int64
	mu         syncutil.Mutex
}

// New creates a buffer holding at most capacity bytes.
func New(capacity int) (*Buffer, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Buffer{data: make([]byte, capacity)}, nil
}

// Capacity returns the fixed size of the buffer.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// Available returns the number of unread bytes.
func (b *Buffer) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

// ReadIndex returns the position the next Read starts from.
func (b *Buffer) ReadIndex() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readIndex
}

// WriteIndex returns the position the next Write starts at.
func (b *Buffer) WriteIndex() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeIndex
}

// Write stores p and returns the number of bytes accepted, which is always
// len(p). Only the last Capacity() bytes of an oversized write are kept.
func (b *Buffer) Write(p []byte) int {
	if len(p) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	written := len(p)
	capacity := len(b.data)

	// Anything before the last capacity bytes would be overwritten by the
	// same call anyway.
	if len(p) > capacity {
		b.overwrites += int64(len(p) - capacity)
		p = p[len(p)-capacity:]
	}

	n := copy(b.data[b.writeIndex:], p)
	if n < len(p) {
		copy(b.data, p[n:])
	}
	b.writeIndex = (b.writeIndex + len(p)) % capacity

	b.available += len(p)
	if b.available > capacity {
		b.overwrites += int64(b.available - capacity)
		// Oldest data was overwritten: the reader resumes at the oldest
		// surviving byte, which is the one just after the last write.
		b.available = capacity
		b.readIndex = b.writeIndex
	}

	return written
}

// Overwritten returns the total number of bytes lost to overwrites or
// oversized writes since the buffer was created.
func (b *Buffer) Overwritten() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overwrites
}

// Read copies up to len(p) unread bytes into p and returns how many were
// copied. It returns 0 when the buffer is empty.
func (b *Buffer) Read(p []byte) int {
	if len(p) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := min(len(p), b.available)
	if n == 0 {
		return 0
	}

	first := copy(p[:n], b.data[b.readIndex:])
	if first < n {
		copy(p[first:n], b.data)
	}
	b.advance(n)
	return n
}

// Skip discards up to n unread bytes and returns how many were discarded.
func (b *Buffer) Skip(n int) int {
	if n <= 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n = min(n, b.available)
	b.advance(n)
	return n
}

// Reset discards all unread data and rewinds both indices.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readIndex = 0
	b.writeIndex = 0
	b.available = 0
}

// advance moves the read index forward; callers hold the lock.
func (b *Buffer) advance(n int) {
	b.readIndex = (b.readIndex + n) % len(b.data)
	b.available -= n
}
