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

package testing

import (
	"io"
	"math/rand/v2"
	"sync"
	"time"
)

// Port is the transport method set shared by VirtualModule and the
// wrappers in this package.
type Port interface {
	io.ReadWriter
	Open() error
	Close() error
	IsOpen() bool
}

// JitterConfig configures the behavior of JitteryTransport.
type JitterConfig struct {
	MaxLatency       time.Duration
	FragmentMinBytes int
	StallAfterBytes  int
	StallDuration    time.Duration
	Seed             uint64
	FragmentReads    bool
	// USBBoundaryStress splits reads at 64-byte boundaries like full-speed
	// USB-UART bridges do.
	USBBoundaryStress bool
}

// DefaultJitterConfig returns a sensible default configuration for testing.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       2 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryTransport wraps a Port to simulate USB-UART bridges (FTDI, CH340)
// that deliver bytes late and in arbitrary fragments. Bytes read from the
// backend are buffered, so fragmentation never loses data.
type JitteryTransport struct {
	backend             Port
	rng                 *rand.Rand
	readBuf             []byte
	config              JitterConfig
	bytesReadSinceStall int
	mu                  sync.Mutex
	stallTriggered      bool
}

// NewJitteryTransport wraps backend with jitter simulation.
func NewJitteryTransport(backend Port, config JitterConfig) *JitteryTransport {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // Test code, not crypto
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}

	return &JitteryTransport{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // Test code, not crypto
		readBuf: make([]byte, 0, 1024),
	}
}

// Open passes through to the backend.
func (j *JitteryTransport) Open() error {
	return j.backend.Open() //nolint:wrapcheck // Pass-through wrapper
}

// Close passes through to the backend and drops buffered bytes.
func (j *JitteryTransport) Close() error {
	j.mu.Lock()
	j.readBuf = j.readBuf[:0]
	j.mu.Unlock()
	return j.backend.Close() //nolint:wrapcheck // Pass-through wrapper
}

// IsOpen passes through to the backend.
func (j *JitteryTransport) IsOpen() bool {
	return j.backend.IsOpen()
}

// Write passes writes through to the backend without modification.
// Jitter only affects reads to simulate realistic UART/USB behavior.
func (j *JitteryTransport) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // Pass-through wrapper
}

// Read returns buffered backend bytes after a random latency, in fragments.
func (j *JitteryTransport) Read(buf []byte) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.config.MaxLatency > 0 {
		if delay := time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)); delay > 0 {
			time.Sleep(delay)
		}
	}

	if len(j.readBuf) == 0 {
		tmp := make([]byte, 1024)
		n, err := j.backend.Read(tmp)
		if err != nil {
			return 0, err //nolint:wrapcheck // Pass-through wrapper
		}
		if n == 0 {
			return 0, nil
		}
		j.readBuf = append(j.readBuf, tmp[:n]...)
	}

	toReturn := j.fragmentSize(min(len(j.readBuf), len(buf)))
	copy(buf, j.readBuf[:toReturn])
	j.readBuf = j.readBuf[toReturn:]
	j.bytesReadSinceStall += toReturn
	return toReturn, nil
}

func (j *JitteryTransport) fragmentSize(n int) int {
	if j.config.StallAfterBytes > 0 && !j.stallTriggered {
		if j.bytesReadSinceStall >= j.config.StallAfterBytes {
			j.stallTriggered = true
			if j.config.StallDuration > 0 {
				time.Sleep(j.config.StallDuration)
			}
		} else {
			n = min(n, j.config.StallAfterBytes-j.bytesReadSinceStall)
		}
	}

	if j.config.USBBoundaryStress && n > 0 {
		untilBoundary := 64 - j.bytesReadSinceStall%64
		n = min(n, untilBoundary)
	}

	if j.config.FragmentReads && n > j.config.FragmentMinBytes {
		n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
	}
	return n
}

// ResetStallState resets the stall tracking state.
func (j *JitteryTransport) ResetStallState() {
	j.mu.Lock()
	j.bytesReadSinceStall = 0
	j.stallTriggered = false
	j.mu.Unlock()
}
