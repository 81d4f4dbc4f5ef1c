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
	"bytes"
	"sync"
	"time"

	"github.com/ZaparooProject/go-xbee/frame"
)

// Transport is a byte stream to a module. It can be implemented by a serial
// port, a network bridge or a simulator.
//
// Read must return within a transport-defined read timeout; returning 0 bytes
// and a nil error is allowed and means no data arrived in that window.
type Transport interface {
	// Open connects to the module
	Open() error

	// Close disconnects; closing a closed transport is a no-op
	Close() error

	// IsOpen returns true while the transport is connected
	IsOpen() bool

	// Write sends raw bytes
	Write(p []byte) (int, error)

	// Read receives raw bytes, blocking at most the read timeout
	Read(p []byte) (int, error)
}

// Namer is implemented by transports that can describe their endpoint, such
// as a serial port path. It is used to label errors and traces.
type Namer interface {
	Name() string
}

func transportName(t Transport) string {
	if n, ok := t.(Namer); ok {
		return n.Name()
	}
	return ""
}

// MockTransport provides an in-memory Transport for testing. Bytes pushed
// with Inject are returned by Read; bytes written are recorded and may be
// answered by a MockResponder.
type MockTransport struct {
	responder MockResponder
	errorMap  map[string]error
	callCount map[string]int
	inbound   bytes.Buffer
	written   [][]byte
	readDelay time.Duration
	mu        sync.Mutex
	open      bool
}

// MockResponder receives every payload decoded from a write and returns the
// payloads to send back, framed in the mode the request used. It runs with
// the mock's lock held and must not call back into the mock.
type MockResponder func(payload []byte) [][]byte

// Mock operation names for SetError and GetCallCount.
const (
	MockOpOpen  = "open"
	MockOpClose = "close"
	MockOpWrite = "write"
	MockOpRead  = "read"
)

// NewMockTransport creates a closed mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		errorMap:  make(map[string]error),
		callCount: make(map[string]int),
		readDelay: 2 * time.Millisecond,
	}
}

func (m *MockTransport) enter(op string) error {
	m.callCount[op]++
	return m.errorMap[op]
}

// Open implements Transport
func (m *MockTransport) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(MockOpOpen); err != nil {
		return err
	}
	m.open = true
	return nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(MockOpClose); err != nil {
		return err
	}
	m.open = false
	return nil
}

// IsOpen implements Transport
func (m *MockTransport) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Write implements Transport. When a responder is set, each API frame in p
// is decoded and the responder's replies are queued for Read.
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(MockOpWrite); err != nil {
		return 0, err
	}
	if !m.open {
		return 0, ErrTransportClosed
	}

	m.written = append(m.written, append([]byte(nil), p...))
	if m.responder != nil {
		m.respond(p)
	}
	return len(p), nil
}

func (m *MockTransport) respond(p []byte) {
	for _, mode := range []frame.OperatingMode{frame.ModeAPI, frame.ModeAPIEscaped} {
		payload, err := frame.Decode(p, mode)
		if err != nil {
			continue
		}
		for _, reply := range m.responder(payload) {
			raw, err := frame.Encode(reply, mode)
			if err == nil {
				_, _ = m.inbound.Write(raw)
			}
		}
		return
	}
}

// Read implements Transport. It waits briefly when no data is queued and
// then returns 0, nil like a serial port read timeout.
func (m *MockTransport) Read(p []byte) (int, error) {
	m.mu.Lock()
	if err := m.enter(MockOpRead); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	if !m.open {
		m.mu.Unlock()
		return 0, ErrTransportClosed
	}
	if m.inbound.Len() > 0 {
		n, _ := m.inbound.Read(p)
		m.mu.Unlock()
		return n, nil
	}
	delay := m.readDelay
	m.mu.Unlock()

	time.Sleep(delay)
	return 0, nil
}

// Test helper methods

// Inject queues bytes to be returned by Read.
func (m *MockTransport) Inject(data []byte) {
	m.mu.Lock()
	_, _ = m.inbound.Write(data)
	m.mu.Unlock()
}

// InjectPayload encodes payload as an API frame and queues it.
func (m *MockTransport) InjectPayload(payload []byte) {
	raw, err := frame.Encode(payload, frame.ModeAPI)
	if err != nil {
		return
	}
	m.Inject(raw)
}

// SetResponder installs a function answering written frames.
func (m *MockTransport) SetResponder(r MockResponder) {
	m.mu.Lock()
	m.responder = r
	m.mu.Unlock()
}

// SetError configures an error to be returned for an operation
func (m *MockTransport) SetError(op string, err error) {
	m.mu.Lock()
	m.errorMap[op] = err
	m.mu.Unlock()
}

// ClearError removes error injection for an operation
func (m *MockTransport) ClearError(op string) {
	m.mu.Lock()
	delete(m.errorMap, op)
	m.mu.Unlock()
}

// GetCallCount returns how many times an operation was called
func (m *MockTransport) GetCallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[op]
}

// Written returns a copy of every buffer passed to Write.
func (m *MockTransport) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	for i, w := range m.written {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// Reset clears call counts, recorded writes and queued data
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.callCount = make(map[string]int)
	m.written = nil
	m.inbound.Reset()
	m.mu.Unlock()
}

var _ Transport = (*MockTransport)(nil)
