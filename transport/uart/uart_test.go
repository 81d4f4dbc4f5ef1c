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

package uart

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"syscall"
	"testing"
	"time"

	xbee "github.com/ZaparooProject/go-xbee"
	testutil "github.com/ZaparooProject/go-xbee/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// mockSerialPort is a scripted serial.Port. Without a module it serves
// queued reads; with one it forwards I/O to the simulator.
type mockSerialPort struct {
	module      *testutil.VirtualModule
	readErrs    []error
	reads       [][]byte
	written     []byte
	modes       []serial.Mode
	maxWrite    int
	readTimeout time.Duration
	drains      int
	mu          sync.Mutex
	closed      bool
}

func (m *mockSerialPort) SetMode(mode *serial.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes = append(m.modes, *mode)
	return nil
}

func (m *mockSerialPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, &serial.PortError{}
	}
	if len(m.readErrs) > 0 {
		err := m.readErrs[0]
		m.readErrs = m.readErrs[1:]
		m.mu.Unlock()
		return 0, err
	}
	if len(m.reads) > 0 {
		n := copy(p, m.reads[0])
		m.reads = m.reads[1:]
		m.mu.Unlock()
		return n, nil
	}
	module := m.module
	m.mu.Unlock()

	if module == nil {
		return 0, nil
	}
	return module.Read(p)
}

func (m *mockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, &serial.PortError{}
	}
	n := len(p)
	if m.maxWrite >= 0 && n > m.maxWrite {
		n = m.maxWrite
	}
	m.written = append(m.written, p[:n]...)
	module := m.module
	m.mu.Unlock()

	if module == nil {
		return n, nil
	}
	return module.Write(p[:n])
}

func (m *mockSerialPort) Drain() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drains++
	return nil
}

func (*mockSerialPort) ResetInputBuffer() error  { return nil }
func (*mockSerialPort) ResetOutputBuffer() error { return nil }
func (*mockSerialPort) SetDTR(bool) error        { return nil }
func (*mockSerialPort) SetRTS(bool) error        { return nil }

func (*mockSerialPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (m *mockSerialPort) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readTimeout = t
	return nil
}

func (m *mockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.module != nil {
		return m.module.Close()
	}
	return nil
}

func (*mockSerialPort) Break(time.Duration) error { return nil }

var _ serial.Port = (*mockSerialPort)(nil)

// newTestTransport returns a transport whose opener hands out port.
func newTestTransport(t *testing.T, port *mockSerialPort, opts ...Option) *Transport {
	t.Helper()
	tr, err := New("/dev/ttyUSB0", opts...)
	require.NoError(t, err)
	tr.open = func(_ string, mode *serial.Mode) (serial.Port, error) {
		if err := port.SetMode(mode); err != nil {
			return nil, err
		}
		if port.module != nil {
			if err := port.module.Open(); err != nil {
				return nil, err
			}
		}
		return port, nil
	}
	return tr
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		port    string
		opts    []Option
		wantErr bool
	}{
		{name: "Defaults", port: "/dev/ttyUSB0"},
		{name: "CustomBaud", port: "COM3", opts: []Option{WithBaudRate(115200)}},
		{name: "CustomTimeout", port: "/dev/ttyAMA0", opts: []Option{WithReadTimeout(20 * time.Millisecond)}},
		{name: "EmptyPort", port: "", wantErr: true},
		{name: "ZeroBaud", port: "/dev/ttyUSB0", opts: []Option{WithBaudRate(0)}, wantErr: true},
		{name: "NegativeTimeout", port: "/dev/ttyUSB0", opts: []Option{WithReadTimeout(-1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr, err := New(tt.port, tt.opts...)
			if tt.wantErr {
				require.ErrorIs(t, err, errInvalidOption)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.port, tr.Name())
			assert.False(t, tr.IsOpen())
		})
	}
}

func TestTransport_OpenClose(t *testing.T) {
	t.Parallel()

	port := &mockSerialPort{maxWrite: -1}
	tr := newTestTransport(t, port, WithReadTimeout(30*time.Millisecond))

	require.NoError(t, tr.Open())
	assert.True(t, tr.IsOpen())
	require.ErrorIs(t, tr.Open(), xbee.ErrAlreadyOpen)

	require.Len(t, port.modes, 1)
	assert.Equal(t, DefaultBaudRate, port.modes[0].BaudRate)
	assert.Equal(t, 8, port.modes[0].DataBits)
	assert.Equal(t, serial.NoParity, port.modes[0].Parity)
	assert.Equal(t, 30*time.Millisecond, port.readTimeout)

	require.NoError(t, tr.Close())
	assert.False(t, tr.IsOpen())
	require.NoError(t, tr.Close(), "closing twice is a no-op")

	_, err := tr.Read(make([]byte, 4))
	require.ErrorIs(t, err, xbee.ErrTransportClosed)
	_, err = tr.Write([]byte{0x7E})
	require.ErrorIs(t, err, xbee.ErrTransportClosed)
}

func TestTransport_OpenFailure(t *testing.T) {
	t.Parallel()

	tr, err := New("/dev/ttyUSB9")
	require.NoError(t, err)
	missing := errors.New("no such file or directory")
	tr.open = func(string, *serial.Mode) (serial.Port, error) {
		return nil, missing
	}

	err = tr.Open()
	require.ErrorIs(t, err, missing)
	assert.Contains(t, err.Error(), "/dev/ttyUSB9")
	assert.False(t, tr.IsOpen())
}

func TestTransport_DeviceRoundTrip(t *testing.T) {
	t.Parallel()

	module := testutil.NewVirtualModule(0x0013A20040A6A0DB, "COORD")
	module.AddNode(testutil.NewVirtualNode(0x0013A20040B11111, 0x1111, "PUMP"))
	tr := newTestTransport(t, &mockSerialPort{module: module, maxWrite: -1})

	device, err := xbee.New(tr)
	require.NoError(t, err)
	require.NoError(t, device.Open(context.Background()))
	t.Cleanup(func() { _ = device.Close() })

	ni, err := device.GetParameter(context.Background(), xbee.CmdNodeIdentifier)
	require.NoError(t, err)
	assert.Equal(t, []byte("COORD"), ni)

	require.NoError(t, device.SendData(context.Background(), 0x0013A20040B11111, []byte("hello")))
	assert.Equal(t, [][]byte{[]byte("hello")}, module.Received(0x0013A20040B11111))

	require.NoError(t, device.Close())
	assert.False(t, tr.IsOpen())
}

func TestTransport_ReadRetriesInterruptedCalls(t *testing.T) {
	t.Parallel()

	port := &mockSerialPort{
		maxWrite: -1,
		readErrs: []error{syscall.EINTR, errors.New("read: interrupted system call")},
		reads:    [][]byte{{0x7E, 0x00}},
	}
	tr := newTestTransport(t, port)
	require.NoError(t, tr.Open())

	buf := make([]byte, 8)
	n, err := tr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7E, 0x00}, buf[:n])
}

func TestTransport_ReadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		errs      []error
		wantFatal bool
	}{
		{
			name: "InterruptedTooOften",
			errs: []error{syscall.EINTR, syscall.EINTR, syscall.EINTR},
		},
		{
			name:      "DeviceGone",
			errs:      []error{syscall.ENXIO},
			wantFatal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			port := &mockSerialPort{maxWrite: -1, readErrs: tt.errs}
			tr := newTestTransport(t, port)
			require.NoError(t, tr.Open())

			_, err := tr.Read(make([]byte, 8))
			require.ErrorIs(t, err, xbee.ErrTransportRead)

			var te *xbee.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, "/dev/ttyUSB0", te.Port)
			assert.Equal(t, tt.wantFatal, xbee.IsFatal(err))
		})
	}
}

func TestTransport_WriteLoopsOverShortWrites(t *testing.T) {
	t.Parallel()

	port := &mockSerialPort{maxWrite: 3}
	tr := newTestTransport(t, port)
	require.NoError(t, tr.Open())

	data := []byte{0x7E, 0x00, 0x04, 0x08, 0x01, 0x4E, 0x49, 0x5F}
	n, err := tr.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, port.written)
	assert.Equal(t, 1, port.drains)
}

func TestTransport_WriteStalls(t *testing.T) {
	t.Parallel()

	port := &mockSerialPort{maxWrite: 0}
	tr := newTestTransport(t, port)
	require.NoError(t, tr.Open())

	n, err := tr.Write([]byte{0x7E})
	require.ErrorIs(t, err, xbee.ErrTransportWrite)
	assert.Zero(t, n)
}

func TestTransport_SetBaudRate(t *testing.T) {
	t.Parallel()

	port := &mockSerialPort{maxWrite: -1}
	tr := newTestTransport(t, port, WithBaudRate(115200))
	assert.Equal(t, 115200, tr.BaudRate())

	require.NoError(t, tr.SetBaudRate(57600), "closed transport stores the rate")
	require.NoError(t, tr.Open())
	require.NoError(t, tr.SetBaudRate(9600))
	require.ErrorIs(t, tr.SetBaudRate(-1), errInvalidOption)

	require.Len(t, port.modes, 2)
	assert.Equal(t, 57600, port.modes[0].BaudRate)
	assert.Equal(t, 9600, port.modes[1].BaudRate)
	assert.Equal(t, 9600, tr.BaudRate())
}

func TestIsInterruptedSystemCall(t *testing.T) {
	t.Parallel()

	assert.False(t, isInterruptedSystemCall(nil))
	assert.True(t, isInterruptedSystemCall(syscall.EINTR))
	assert.True(t, isInterruptedSystemCall(errors.New("read /dev/ttyUSB0: interrupted system call")))
	assert.True(t, isInterruptedSystemCall(errors.New("EINTR")))
	assert.False(t, isInterruptedSystemCall(errors.New("device not configured")))
}

func TestDefaultReadTimeout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, runtime.GOOS == "windows", isWindows())
	if isWindows() {
		assert.Equal(t, 100*time.Millisecond, defaultReadTimeout())
	} else {
		assert.Equal(t, 50*time.Millisecond, defaultReadTimeout())
	}
}
