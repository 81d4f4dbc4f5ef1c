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

// Package spi provides the SPI transport for XBee 3 and S2C modules wired to
// a host SPI bus.
//
// The module is an SPI slave that only speaks unescaped API frames (AP=1), so
// the device using this transport must be configured with frame.ModeAPI. The
// bus is full duplex: the module shifts out frame bytes while the host clocks
// its own frames in, and sends filler when it has nothing to say. The
// transport keeps only the bytes that belong to a frame, delimiting frames by
// their length field. The optional SPI_nATTN line is driven low by the module
// while it has data queued; without it the bus is polled.
package spi

import (
	"errors"
	"fmt"
	"time"

	xbee "github.com/ZaparooProject/go-xbee"
	"github.com/ZaparooProject/go-xbee/frame"
	"github.com/ZaparooProject/go-xbee/internal/syncutil"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Defaults
const (
	DefaultFrequency    = 1 * physic.MegaHertz
	DefaultReadTimeout  = 50 * time.Millisecond
	DefaultPollInterval = 2 * time.Millisecond

	// XBee SPI is mode 0, MSB first, 8-bit words.
	mode = spi.Mode0
	bits = 8

	// filler is clocked out while reading; the module ignores bytes
	// outside a frame.
	filler   = 0xFF
	maxChunk = 64
)

var errInvalidOption = errors.New("invalid SPI option")

// attnPin is the part of gpio.PinIn used to watch SPI_nATTN.
type attnPin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
}

type (
	portOpener func(name string) (spi.PortCloser, error)
	pinOpener  func(name string) (attnPin, error)
)

// Transport implements xbee.Transport over an SPI port.
type Transport struct {
	port         spi.PortCloser
	conn         spi.Conn
	attn         attnPin
	openPort     portOpener
	openPin      pinOpener
	portName     string
	attnName     string
	rx           framer
	pending      []byte
	frequency    physic.Frequency
	readTimeout  time.Duration
	pollInterval time.Duration
	mu           syncutil.Mutex
	busMu        syncutil.Mutex
}

// Option configures a Transport
type Option func(*Transport) error

// WithFrequency sets the bus clock. XBee 3 modules accept up to 5 MHz.
func WithFrequency(f physic.Frequency) Option {
	return func(t *Transport) error {
		if f <= 0 {
			return fmt.Errorf("%w: frequency %s", errInvalidOption, f)
		}
		t.frequency = f
		return nil
	}
}

// WithAttnPin names the GPIO wired to SPI_nATTN, e.g. "GPIO25".
func WithAttnPin(name string) Option {
	return func(t *Transport) error {
		if name == "" {
			return fmt.Errorf("%w: empty ATTN pin name", errInvalidOption)
		}
		t.attnName = name
		return nil
	}
}

// WithReadTimeout sets how long a Read waits for frame bytes before
// returning zero bytes.
func WithReadTimeout(timeout time.Duration) Option {
	return func(t *Transport) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: read timeout %s", errInvalidOption, timeout)
		}
		t.readTimeout = timeout
		return nil
	}
}

// WithPollInterval sets how often ATTN, or the bus itself without ATTN, is
// checked while waiting.
func WithPollInterval(interval time.Duration) Option {
	return func(t *Transport) error {
		if interval <= 0 {
			return fmt.Errorf("%w: poll interval %s", errInvalidOption, interval)
		}
		t.pollInterval = interval
		return nil
	}
}

// New creates a closed transport for an SPI port such as "/dev/spidev0.0"
// or "SPI0.0".
func New(portName string, opts ...Option) (*Transport, error) {
	if portName == "" {
		return nil, fmt.Errorf("%w: empty port name", errInvalidOption)
	}

	t := &Transport{
		portName:     portName,
		frequency:    DefaultFrequency,
		readTimeout:  DefaultReadTimeout,
		pollInterval: DefaultPollInterval,
		openPort:     openHostPort,
		openPin:      openHostPin,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func openHostPort(name string) (spi.PortCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", name, err)
	}
	return port, nil
}

func openHostPin(name string) (attnPin, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("GPIO %s not found", name)
	}
	return pin, nil
}

// Open opens the port and, when configured, the ATTN line.
func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil {
		return xbee.ErrAlreadyOpen
	}

	port, err := t.openPort(t.portName)
	if err != nil {
		return err
	}
	conn, err := port.Connect(t.frequency, mode, bits)
	if err != nil {
		_ = port.Close()
		return fmt.Errorf("failed to connect SPI %s: %w", t.portName, err)
	}

	var attn attnPin
	if t.attnName != "" {
		attn, err = t.openPin(t.attnName)
		if err == nil {
			err = attn.In(gpio.PullUp, gpio.NoEdge)
		}
		if err != nil {
			_ = port.Close()
			return fmt.Errorf("failed to set up ATTN pin: %w", err)
		}
	}

	t.busMu.Lock()
	t.rx.reset()
	t.pending = nil
	t.busMu.Unlock()

	t.port = port
	t.conn = conn
	t.attn = attn
	xbee.Debugf("SPI %s opened at %s", t.portName, t.frequency)
	return nil
}

// Close closes the port. Closing a closed transport is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	port := t.port
	t.port = nil
	t.conn = nil
	t.attn = nil
	t.mu.Unlock()

	if port == nil {
		return nil
	}
	if err := port.Close(); err != nil {
		return fmt.Errorf("SPI close failed: %w", err)
	}
	return nil
}

// IsOpen returns true while the port is open
func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Name returns the port name.
func (t *Transport) Name() string {
	return t.portName
}

func (t *Transport) current() (spi.Conn, attnPin) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn, t.attn
}

// Read returns frame bytes received so far, clocking the bus while ATTN is
// asserted (or on every poll without ATTN) until data arrives or the read
// timeout passes.
func (t *Transport) Read(p []byte) (int, error) {
	conn, attn := t.current()
	if conn == nil {
		return 0, xbee.ErrTransportClosed
	}
	if n := t.drain(p); n > 0 {
		return n, nil
	}

	deadline := time.Now().Add(t.readTimeout)
	for {
		if attn == nil || attn.Read() == gpio.Low {
			if err := t.clock(conn); err != nil {
				return 0, xbee.NewTransportReadError("read", t.portName, err)
			}
			if n := t.drain(p); n > 0 {
				return n, nil
			}
			if attn != nil && attn.Read() == gpio.Low {
				continue
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		time.Sleep(min(t.pollInterval, remaining))
	}
}

// Write clocks p onto the bus. Frame bytes the module sends meanwhile are
// kept for the next Read.
func (t *Transport) Write(p []byte) (int, error) {
	conn, _ := t.current()
	if conn == nil {
		return 0, xbee.ErrTransportClosed
	}

	t.busMu.Lock()
	defer t.busMu.Unlock()

	r := make([]byte, len(p))
	if err := conn.Tx(p, r); err != nil {
		return 0, xbee.NewTransportWriteError("write", t.portName, err)
	}
	t.pending = t.rx.feed(t.pending, r)
	return len(p), nil
}

// clock reads as many bytes as the frame in progress still needs.
func (t *Transport) clock(conn spi.Conn) error {
	t.busMu.Lock()
	defer t.busMu.Unlock()

	n := min(t.rx.want(), maxChunk)
	w := make([]byte, n)
	for i := range w {
		w[i] = filler
	}
	r := make([]byte, n)
	if err := conn.Tx(w, r); err != nil {
		return fmt.Errorf("SPI read failed: %w", err)
	}
	t.pending = t.rx.feed(t.pending, r)
	return nil
}

func (t *Transport) drain(p []byte) int {
	t.busMu.Lock()
	defer t.busMu.Unlock()

	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	if len(t.pending) == 0 {
		t.pending = nil
	}
	return n
}

type framerState int

const (
	stateIdle framerState = iota
	stateLength
	stateBody
)

// framer separates frame bytes from bus filler. Frames on SPI are never
// escaped, so the length field gives the exact frame size.
type framer struct {
	state     framerState
	length    []byte
	remaining int
}

func (f *framer) reset() {
	*f = framer{}
}

// want returns how many bytes finish the current header or frame.
func (f *framer) want() int {
	switch f.state {
	case stateLength:
		return 2 - len(f.length)
	case stateBody:
		return f.remaining
	default:
		return frame.HeaderLength
	}
}

// feed appends the frame bytes in data to out.
func (f *framer) feed(out, data []byte) []byte {
	for _, b := range data {
		switch f.state {
		case stateIdle:
			if b != frame.Delimiter {
				continue
			}
			f.state = stateLength
			f.length = f.length[:0]
		case stateLength:
			f.length = append(f.length, b)
			if len(f.length) == 2 {
				f.remaining = (int(f.length[0])<<8 | int(f.length[1])) + 1
				f.state = stateBody
			}
		case stateBody:
			f.remaining--
			if f.remaining == 0 {
				f.state = stateIdle
			}
		}
		out = append(out, b)
	}
	return out
}

var (
	_ xbee.Transport = (*Transport)(nil)
	_ xbee.Namer     = (*Transport)(nil)
)
