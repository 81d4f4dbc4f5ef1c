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

// Package uart provides the serial port transport used by XBee modules on
// USB adapters and UART headers.
package uart

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"syscall"
	"time"

	xbee "github.com/ZaparooProject/go-xbee"
	"github.com/ZaparooProject/go-xbee/internal/syncutil"
	"go.bug.st/serial"
)

// DefaultBaudRate is the XBee factory BD setting.
const DefaultBaudRate = 9600

const (
	maxEINTRRetries = 3
	eintrBaseDelay  = 2 * time.Millisecond
)

var errInvalidOption = errors.New("invalid UART option")

// opener matches serial.Open and is swapped out in tests.
type opener func(portName string, mode *serial.Mode) (serial.Port, error)

// Transport implements xbee.Transport over a serial port.
type Transport struct {
	port        serial.Port
	open        opener
	portName    string
	readTimeout time.Duration
	baudRate    int
	mu          syncutil.Mutex
}

// Option configures a Transport
type Option func(*Transport) error

// WithBaudRate sets the line speed. It must match the module's BD setting.
func WithBaudRate(baud int) Option {
	return func(t *Transport) error {
		if baud <= 0 {
			return fmt.Errorf("%w: baud rate %d", errInvalidOption, baud)
		}
		t.baudRate = baud
		return nil
	}
}

// WithReadTimeout sets how long a Read waits for data before returning
// zero bytes.
func WithReadTimeout(timeout time.Duration) Option {
	return func(t *Transport) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: read timeout %s", errInvalidOption, timeout)
		}
		t.readTimeout = timeout
		return nil
	}
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// defaultReadTimeout is longer on Windows, where USB serial drivers return
// partial reads late.
func defaultReadTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// New creates a closed transport for portName. The port is opened by Open,
// normally through xbee.Device.Open.
func New(portName string, opts ...Option) (*Transport, error) {
	if portName == "" {
		return nil, fmt.Errorf("%w: empty port name", errInvalidOption)
	}

	t := &Transport{
		portName:    portName,
		baudRate:    DefaultBaudRate,
		readTimeout: defaultReadTimeout(),
		open:        serial.Open,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Transport) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: t.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Open opens the serial port and discards anything already buffered.
func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil {
		return xbee.ErrAlreadyOpen
	}

	port, err := t.open(t.portName, t.mode())
	if err != nil {
		return fmt.Errorf("failed to open UART port %s: %w", t.portName, err)
	}
	if err := port.SetReadTimeout(t.readTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		xbee.Debugf("UART %s: input reset failed: %v", t.portName, err)
	}

	t.port = port
	xbee.Debugf("UART %s opened at %d baud", t.portName, t.baudRate)
	return nil
}

// Close closes the port. Closing a closed transport is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	port := t.port
	t.port = nil
	t.mu.Unlock()

	if port == nil {
		return nil
	}
	if err := port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsOpen returns true while the port is open
func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Name returns the port path.
func (t *Transport) Name() string {
	return t.portName
}

// BaudRate returns the configured line speed.
func (t *Transport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baudRate
}

// SetBaudRate changes the line speed, applying it to the open port.
func (t *Transport) SetBaudRate(baud int) error {
	if baud <= 0 {
		return fmt.Errorf("%w: baud rate %d", errInvalidOption, baud)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.baudRate = baud
	if t.port == nil {
		return nil
	}
	if err := t.port.SetMode(t.mode()); err != nil {
		return fmt.Errorf("UART set baud rate failed: %w", err)
	}
	return nil
}

func (t *Transport) current() serial.Port {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port
}

// Read reads whatever arrived within the read timeout. Interrupted system
// calls are retried.
func (t *Transport) Read(p []byte) (int, error) {
	port := t.current()
	if port == nil {
		return 0, xbee.ErrTransportClosed
	}

	var n int
	err := retryInterrupted(func() error {
		var readErr error
		n, readErr = port.Read(p)
		return readErr
	})
	if err != nil {
		return n, xbee.NewTransportReadError("read", t.portName, err)
	}
	return n, nil
}

// Write writes all of p and waits for it to leave the output buffer.
func (t *Transport) Write(p []byte) (int, error) {
	port := t.current()
	if port == nil {
		return 0, xbee.ErrTransportClosed
	}

	written := 0
	for written < len(p) {
		var n int
		err := retryInterrupted(func() error {
			var writeErr error
			n, writeErr = port.Write(p[written:])
			return writeErr
		})
		if err != nil {
			return written, xbee.NewTransportWriteError("write", t.portName, err)
		}
		if n == 0 {
			return written, xbee.NewTransportWriteError("write", t.portName, errors.New("short write"))
		}
		written += n
	}

	if err := retryInterrupted(port.Drain); err != nil {
		return written, xbee.NewTransportWriteError("drain", t.portName, err)
	}
	return written, nil
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EINTR) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// retryInterrupted runs op, retrying with backoff while it fails with EINTR.
func retryInterrupted(op func() error) error {
	var err error
	for attempt := range maxEINTRRetries {
		err = op()
		if !isInterruptedSystemCall(err) {
			return err
		}
		if attempt < maxEINTRRetries-1 {
			time.Sleep(eintrBaseDelay * time.Duration(1<<attempt)) // 2ms, 4ms
		}
	}
	return fmt.Errorf("interrupted %d times: %w", maxEINTRRetries, err)
}

var (
	_ xbee.Transport = (*Transport)(nil)
	_ xbee.Namer     = (*Transport)(nil)
)
