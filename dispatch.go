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

package xbee

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/go-xbee/internal/syncutil"
	"github.com/ZaparooProject/go-xbee/packet"
)

// PacketListener receives every decoded packet. Listeners run on the parser
// goroutine and must not block; a slow listener delays all later packets.
type PacketListener interface {
	PacketReceived(p packet.Packet)
}

// PacketListenerFunc adapts a function to PacketListener.
type PacketListenerFunc func(p packet.Packet)

// PacketReceived calls f(p).
func (f PacketListenerFunc) PacketReceived(p packet.Packet) {
	f(p)
}

type listenerEntry struct {
	listener PacketListener
	id       uint64
}

// Dispatcher routes decoded packets to listeners and to one-shot waiters
// keyed by frame ID.
type Dispatcher struct {
	waiters   map[uint8]*Waiter
	listeners []listenerEntry
	nextID    uint64
	mu        syncutil.Mutex
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{waiters: make(map[uint8]*Waiter)}
}

// AddListener subscribes l to every packet and returns a function that
// removes it again. Calling the returned function more than once is safe.
func (d *Dispatcher) AddListener(l PacketListener) (remove func()) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, listenerEntry{listener: l, id: id})
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, e := range d.listeners {
			if e.id == id {
				d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns the number of subscribed listeners.
func (d *Dispatcher) ListenerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Register creates a waiter for the next packet carrying frameID. Frame ID 0
// means "no response" and cannot be waited on.
func (d *Dispatcher) Register(frameID uint8) (*Waiter, error) {
	if frameID == 0 {
		return nil, fmt.Errorf("%w: frame ID 0 never receives a response", ErrInvalidParameter)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, busy := d.waiters[frameID]; busy {
		return nil, fmt.Errorf("%w: %d", ErrFrameIDInUse, frameID)
	}
	w := &Waiter{
		ch:      make(chan packet.Packet, 1),
		d:       d,
		frameID: frameID,
	}
	d.waiters[frameID] = w
	return w, nil
}

// Pending reports whether a waiter is registered for frameID.
func (d *Dispatcher) Pending(frameID uint8) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.waiters[frameID]
	return ok
}

// PendingCount returns the number of outstanding waiters.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.waiters)
}

// Deliver hands p to the waiter registered for its frame ID, if any, and then
// to every listener. A panicking listener is logged and skipped.
func (d *Dispatcher) Deliver(p packet.Packet) {
	if p == nil {
		return
	}

	d.mu.Lock()
	var waiter *Waiter
	if id, ok := packet.FrameIDOf(p); ok && id != 0 {
		if w, found := d.waiters[id]; found {
			delete(d.waiters, id)
			waiter = w
		}
	}
	listeners := make([]PacketListener, len(d.listeners))
	for i, e := range d.listeners {
		listeners[i] = e.listener
	}
	d.mu.Unlock()

	if waiter != nil {
		waiter.complete(p)
	}

	for _, l := range listeners {
		notify(l, p)
	}
}

// CancelAll releases every waiter; their Wait calls return ErrNotOpen.
func (d *Dispatcher) CancelAll() {
	d.mu.Lock()
	waiters := d.waiters
	d.waiters = make(map[uint8]*Waiter)
	d.mu.Unlock()

	for _, w := range waiters {
		w.complete(nil)
	}
}

func (d *Dispatcher) remove(w *Waiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if current, ok := d.waiters[w.frameID]; ok && current == w {
		delete(d.waiters, w.frameID)
	}
}

func notify(l PacketListener, p packet.Packet) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error().
				Interface("panic", r).
				Stringer("frame_type", p.FrameType()).
				Msg("packet listener panicked")
		}
	}()
	l.PacketReceived(p)
}

// Waiter is a one-shot subscription to the response carrying a frame ID.
type Waiter struct {
	ch      chan packet.Packet
	d       *Dispatcher
	once    sync.Once
	frameID uint8
}

// FrameID returns the frame ID the waiter is registered for.
func (w *Waiter) FrameID() uint8 {
	return w.frameID
}

// complete delivers p (nil when cancelled) exactly once.
func (w *Waiter) complete(p packet.Packet) {
	w.once.Do(func() {
		if p != nil {
			w.ch <- p
		}
		close(w.ch)
	})
}

// Cancel unregisters the waiter. A response arriving later reaches
// listeners only.
func (w *Waiter) Cancel() {
	w.d.remove(w)
	w.complete(nil)
}

// Wait blocks until the response arrives, timeout elapses or ctx is done.
// On timeout the waiter is removed and a *TimeoutError is returned.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) (packet.Packet, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case p, ok := <-w.ch:
		if !ok || p == nil {
			return nil, ErrNotOpen
		}
		return p, nil
	case <-expired:
		w.Cancel()
		return nil, &TimeoutError{Op: "wait for response", Timeout: timeout, FrameID: w.frameID}
	case <-ctx.Done():
		w.Cancel()
		return nil, fmt.Errorf("wait for frame ID %d: %w", w.frameID, ctx.Err())
	}
}
