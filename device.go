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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-xbee/frame"
	"github.com/ZaparooProject/go-xbee/internal/ringbuf"
	"github.com/ZaparooProject/go-xbee/internal/syncutil"
	"github.com/ZaparooProject/go-xbee/packet"
)

// Config contains configuration options for the Device
type Config struct {
	// ReceiveTimeout bounds the wait for a response to a local request
	ReceiveTimeout time.Duration
	// RemoteTimeout bounds the wait for a response that crosses the radio,
	// such as a remote AT command or a transmit status
	RemoteTimeout time.Duration
	// PollInterval is the parser goroutine's wait when no bytes arrive
	PollInterval time.Duration
	// Mode is the module's API operating mode (its AP parameter)
	Mode frame.OperatingMode
	// BufferSize is the receive ring buffer capacity in bytes
	BufferSize int
	// MaxPayload is the largest frame length the parser accepts
	MaxPayload int
	// TraceSize is the number of frames kept for error traces
	TraceSize int
}

// DefaultConfig returns default device configuration
func DefaultConfig() *Config {
	return &Config{
		ReceiveTimeout: DefaultReceiveTimeout,
		RemoteTimeout:  DefaultRemoteTimeout,
		PollInterval:   DefaultPollInterval,
		Mode:           frame.ModeAPI,
		BufferSize:     DefaultReadBufferSize,
		MaxPayload:     frame.DefaultMaxPayload,
		TraceSize:      DefaultTraceSize,
	}
}

func (c *Config) validate() error {
	if !c.Mode.IsAPI() {
		return fmt.Errorf("%w: %s", frame.ErrInvalidOperatingMode, c.Mode)
	}
	if c.BufferSize < 1 {
		return fmt.Errorf("%w: buffer size %d", ErrInvalidParameter, c.BufferSize)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval %s", ErrInvalidParameter, c.PollInterval)
	}
	return nil
}

// Option configures a Device
type Option func(*Device) error

// WithConfig replaces the whole configuration.
func WithConfig(config *Config) Option {
	return func(d *Device) error {
		if config == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidParameter)
		}
		c := *config
		d.config = &c
		return nil
	}
}

// WithReceiveTimeout sets the response timeout for local requests.
func WithReceiveTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		d.config.ReceiveTimeout = timeout
		return nil
	}
}

// WithRemoteTimeout sets the response timeout for requests answered over
// the air.
func WithRemoteTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		d.config.RemoteTimeout = timeout
		return nil
	}
}

// WithPollInterval sets the parser goroutine's idle wait.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Device) error {
		d.config.PollInterval = interval
		return nil
	}
}

// WithOperatingMode selects API or API escaped framing.
func WithOperatingMode(mode frame.OperatingMode) Option {
	return func(d *Device) error {
		d.config.Mode = mode
		return nil
	}
}

// WithBufferSize sets the receive ring buffer capacity.
func WithBufferSize(size int) Option {
	return func(d *Device) error {
		d.config.BufferSize = size
		return nil
	}
}

// WithMaxPayload sets the largest frame length accepted from the module.
func WithMaxPayload(n int) Option {
	return func(d *Device) error {
		d.config.MaxPayload = n
		return nil
	}
}

// WithTraceSize sets how many frames are kept for error traces.
func WithTraceSize(n int) Option {
	return func(d *Device) error {
		d.config.TraceSize = n
		return nil
	}
}

// Device is a connection to one XBee module in API mode.
//
// Thread Safety: all methods are safe for concurrent use. Requests are
// correlated by frame ID, so several requests can be outstanding at once.
// Listeners are called from the parser goroutine.
type Device struct {
	transport  Transport
	config     *Config
	dispatcher *Dispatcher
	rx         *ringbuf.Buffer
	parser     *frame.Parser
	trace      *TraceBuffer
	signal     chan struct{}
	readErr    error
	stats      counters
	wg         sync.WaitGroup
	lifecycle  syncutil.Mutex
	writeMu    syncutil.Mutex
	idMu       syncutil.Mutex
	errMu      syncutil.Mutex
	stopping   atomic.Bool
	open       atomic.Bool
	running    bool
	lastID     uint8
}

// New creates a device on top of transport. The device is closed until
// Open is called.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}

	device := &Device{
		transport:  transport,
		config:     DefaultConfig(),
		dispatcher: NewDispatcher(),
		signal:     make(chan struct{}, 1),
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	if err := device.config.validate(); err != nil {
		return nil, err
	}

	rx, err := ringbuf.New(device.config.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create receive buffer: %w", err)
	}
	parser, err := frame.NewParser(device.config.Mode, frame.WithMaxPayload(device.config.MaxPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create parser: %w", err)
	}

	device.rx = rx
	device.parser = parser
	device.trace = NewTraceBuffer(transportName(transport), device.config.TraceSize)
	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Config returns a copy of the device configuration.
func (d *Device) Config() Config {
	return *d.config
}

// Mode returns the configured API operating mode.
func (d *Device) Mode() frame.OperatingMode {
	return d.config.Mode
}

// Open opens the transport if needed and starts the reader and parser
// goroutines. Opening an open device returns ErrAlreadyOpen. A device whose
// transport failed is torn down first, so it can be reopened after the
// adapter is plugged back in.
func (d *Device) Open(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if d.running {
		if d.open.Load() {
			return ErrAlreadyOpen
		}
		if err := d.shutdown(); err != nil {
			Debugf("closing failed transport before reopen: %v", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("open cancelled: %w", err)
	}

	if !d.transport.IsOpen() {
		if err := d.transport.Open(); err != nil {
			return NewTransportError("open", transportName(d.transport), err, ErrorTypeTransient)
		}
	}

	d.rx.Reset()
	d.parser.Reset()
	d.trace.Clear()
	d.setReadErr(nil)
	d.stopping.Store(false)

	d.running = true
	d.open.Store(true)

	d.wg.Add(2)
	go d.readLoop()
	go d.parseLoop()

	Debugf("device opened (%s, mode %s)", transportName(d.transport), d.config.Mode)
	return nil
}

// Close stops the goroutines and closes the transport. Pending requests
// fail with ErrNotOpen. Closing a closed device is a no-op.
func (d *Device) Close() error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if !d.running {
		return nil
	}
	if err := d.shutdown(); err != nil {
		return err
	}
	Debugln("device closed")
	return nil
}

// shutdown stops both goroutines and closes the transport. The caller holds
// the lifecycle lock and has checked that the device is running.
func (d *Device) shutdown() error {
	d.running = false
	d.open.Store(false)
	d.stopping.Store(true)
	d.wake()

	err := d.transport.Close()
	d.wg.Wait()
	d.dispatcher.CancelAll()

	if err != nil {
		return NewTransportError("close", transportName(d.transport), err, ErrorTypePermanent)
	}
	return nil
}

// IsOpen reports whether the device is open and its transport is usable.
func (d *Device) IsOpen() bool {
	return d.open.Load()
}

// Err returns the fatal transport error that stopped the reader, if any.
func (d *Device) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.readErr
}

func (d *Device) setReadErr(err error) {
	d.errMu.Lock()
	d.readErr = err
	d.errMu.Unlock()
}

// AddPacketListener subscribes l to every received packet and returns a
// function that unsubscribes it.
func (d *Device) AddPacketListener(l PacketListener) (remove func()) {
	return d.dispatcher.AddListener(l)
}

// NextFrameID returns the next frame ID in the rolling range 1-255, skipping
// IDs that still have a pending request.
func (d *Device) NextFrameID() uint8 {
	d.idMu.Lock()
	defer d.idMu.Unlock()

	for range 255 {
		d.lastID++
		if d.lastID == 0 {
			d.lastID = 1
		}
		if !d.dispatcher.Pending(d.lastID) {
			return d.lastID
		}
	}
	return d.lastID
}

// SendPacket writes p and waits for the response carrying its frame ID.
// A packet whose frame ID is 0 is assigned the next rolling ID first; the
// caller's packet is updated in place.
//
// If no response arrives within the receive timeout, a *TimeoutError
// wrapped with the recent wire trace is returned.
func (d *Device) SendPacket(ctx context.Context, p packet.Packet) (packet.Packet, error) {
	return d.sendPacket(ctx, p, d.config.ReceiveTimeout)
}

func (d *Device) sendPacket(ctx context.Context, p packet.Packet, timeout time.Duration) (packet.Packet, error) {
	if p == nil {
		return nil, packet.ErrNilPacket
	}
	if !d.IsOpen() {
		return nil, ErrNotOpen
	}

	idp, ok := p.(packet.FrameIDer)
	if !ok {
		return nil, fmt.Errorf("%w: %s carries no frame ID and has no response", ErrInvalidParameter, p.FrameType())
	}
	if idp.FrameID() == 0 {
		idp.SetFrameID(d.NextFrameID())
	}

	waiter, err := d.dispatcher.Register(idp.FrameID())
	if err != nil {
		return nil, err
	}

	if err := d.writePacket(p); err != nil {
		waiter.Cancel()
		return nil, err
	}

	resp, err := waiter.Wait(ctx, timeout)
	if err != nil {
		var te *TimeoutError
		if errors.As(err, &te) {
			te.Op = fmt.Sprintf("%s request", p.FrameType())
			d.stats.timeouts.Add(1)
			d.trace.RecordTimeout(fmt.Sprintf("frame ID %d", te.FrameID))
			return nil, d.trace.WrapError(te)
		}
		return nil, err
	}
	return resp, nil
}

// SendPacketAsync writes p without waiting for a response. Responses still
// reach packet listeners.
func (d *Device) SendPacketAsync(p packet.Packet) error {
	if p == nil {
		return packet.ErrNilPacket
	}
	if !d.IsOpen() {
		return ErrNotOpen
	}
	return d.writePacket(p)
}

func (d *Device) writePacket(p packet.Packet) error {
	payload, err := packet.Encode(p)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.FrameType(), err)
	}
	raw, err := frame.Encode(payload, d.config.Mode)
	if err != nil {
		return fmt.Errorf("frame %s: %w", p.FrameType(), err)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.trace.RecordTX(raw, p.FrameType().String())
	n, err := d.transport.Write(raw)
	if err != nil {
		return NewTransportWriteError("write", transportName(d.transport), err)
	}
	if n != len(raw) {
		return NewTransportWriteError("write", transportName(d.transport),
			fmt.Errorf("short write: %d of %d bytes", n, len(raw)))
	}

	d.stats.bytesWritten.Add(uint64(n))
	d.stats.framesSent.Add(1)
	Debugf("TX %s: % X", p.FrameType(), raw)
	return nil
}
