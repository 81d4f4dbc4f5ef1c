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
	"errors"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-xbee/frame"
	"github.com/ZaparooProject/go-xbee/packet"
)

const readChunkSize = 256

// Stats is a snapshot of the receive and transmit counters.
type Stats struct {
	BytesRead      uint64
	BytesWritten   uint64
	FramesReceived uint64
	FramesSent     uint64
	FramingErrors  uint64
	ChecksumErrors uint64
	UnknownFrames  uint64
	DecodeErrors   uint64
	ReadErrors     uint64
	Timeouts       uint64
	// DroppedBytes counts bytes skipped while resynchronising plus bytes
	// lost to ring buffer overruns.
	DroppedBytes uint64
}

type counters struct {
	bytesRead      atomic.Uint64
	bytesWritten   atomic.Uint64
	framesReceived atomic.Uint64
	framesSent     atomic.Uint64
	framingErrors  atomic.Uint64
	checksumErrors atomic.Uint64
	unknownFrames  atomic.Uint64
	decodeErrors   atomic.Uint64
	readErrors     atomic.Uint64
	timeouts       atomic.Uint64
	discarded      atomic.Uint64
}

// Stats returns the device counters. They accumulate across Open/Close.
func (d *Device) Stats() Stats {
	return Stats{
		BytesRead:      d.stats.bytesRead.Load(),
		BytesWritten:   d.stats.bytesWritten.Load(),
		FramesReceived: d.stats.framesReceived.Load(),
		FramesSent:     d.stats.framesSent.Load(),
		FramingErrors:  d.stats.framingErrors.Load(),
		ChecksumErrors: d.stats.checksumErrors.Load(),
		UnknownFrames:  d.stats.unknownFrames.Load(),
		DecodeErrors:   d.stats.decodeErrors.Load(),
		ReadErrors:     d.stats.readErrors.Load(),
		Timeouts:       d.stats.timeouts.Load(),
		DroppedBytes:   d.stats.discarded.Load() + uint64(d.rx.Overwritten()), //nolint:gosec // never negative
	}
}

// wake nudges the parser goroutine without blocking.
func (d *Device) wake() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// readLoop moves bytes from the transport into the ring buffer until the
// device is stopped or the transport fails permanently.
func (d *Device) readLoop() {
	defer d.wg.Done()

	buf := make([]byte, readChunkSize)
	for !d.stopping.Load() {
		n, err := d.transport.Read(buf)
		if n > 0 {
			d.stats.bytesRead.Add(uint64(n))
			d.rx.Write(buf[:n])
			d.wake()
		}
		if err == nil {
			continue
		}
		if d.stopping.Load() {
			return
		}

		d.stats.readErrors.Add(1)
		readErr := NewTransportReadError("read", transportName(d.transport), err)
		if IsFatal(readErr) {
			Warnf("transport lost, stopping reader: %v", err)
			d.setReadErr(readErr)
			d.open.Store(false)
			d.dispatcher.CancelAll()
			return
		}

		Debugf("transient read error: %v", err)
		time.Sleep(d.config.PollInterval)
	}
}

// parseLoop waits for the reader's signal, bounded by the poll interval, and
// turns buffered bytes into packets.
func (d *Device) parseLoop() {
	defer d.wg.Done()

	chunk := make([]byte, readChunkSize)
	timer := time.NewTimer(d.config.PollInterval)
	defer timer.Stop()

	for !d.stopping.Load() {
		select {
		case <-d.signal:
		case <-timer.C:
		}
		timer.Reset(d.config.PollInterval)
		d.drain(chunk)
	}
}

func (d *Device) drain(chunk []byte) {
	for {
		n := d.rx.Read(chunk)
		if n == 0 {
			break
		}
		_, _ = d.parser.Write(chunk[:n])
	}

	for !d.stopping.Load() {
		payload, err := d.parser.Next()
		if err != nil {
			d.recordFramingError(err)
			continue
		}
		if payload == nil {
			break
		}
		d.handlePayload(payload)
	}
	d.stats.discarded.Store(uint64(d.parser.Discarded())) //nolint:gosec // never negative
}

func (d *Device) recordFramingError(err error) {
	d.stats.framingErrors.Add(1)
	if errors.Is(err, frame.ErrInvalidChecksum) {
		d.stats.checksumErrors.Add(1)
	}
	Debugf("framing error: %v", err)
}

func (d *Device) handlePayload(payload []byte) {
	d.stats.framesReceived.Add(1)

	p, err := packet.Decode(payload)
	if err != nil {
		d.stats.decodeErrors.Add(1)
		d.trace.RecordRX(payload, "undecodable")
		Debugf("dropping undecodable frame % X: %v", payload, err)
		return
	}
	if _, unknown := p.(*packet.RawPacket); unknown {
		d.stats.unknownFrames.Add(1)
	}

	d.trace.RecordRX(payload, p.FrameType().String())
	Debugf("RX %s: % X", p.FrameType(), payload)
	d.dispatcher.Deliver(p)
}
