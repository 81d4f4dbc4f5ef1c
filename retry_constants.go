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

import "time"

// Connection retry constants control how a transport is opened.
const (
	// DefaultConnectionRetries is the number of attempts to open a transport.
	DefaultConnectionRetries = 3
	// ConnectionInitialBackoff is the initial delay between connection attempts.
	ConnectionInitialBackoff = 100 * time.Millisecond
	// ConnectionMaxBackoff is the maximum delay between connection attempts.
	ConnectionMaxBackoff = 500 * time.Millisecond
	// ConnectionBackoffMultiplier is the exponential backoff multiplier.
	ConnectionBackoffMultiplier = 2.0
	// ConnectionJitter is the random jitter factor (0.0-1.0) to prevent thundering herd.
	ConnectionJitter = 0.1
	// ConnectionRetryTimeout is the overall timeout for all connection attempts.
	ConnectionRetryTimeout = 10 * time.Second
)

// Request timing defaults.
const (
	// DefaultReceiveTimeout bounds the wait for a correlated response.
	// Local AT commands answer within a few ms; remote ones cross the radio
	// and may need route discovery first.
	DefaultReceiveTimeout = 2 * time.Second

	// DefaultRemoteTimeout bounds the wait for responses that cross the
	// radio.
	DefaultRemoteTimeout = 5 * time.Second

	// DefaultPollInterval is the parser goroutine's bounded wait when no
	// bytes are signalled.
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultReadBufferSize is the ring buffer capacity between the reader
	// and the parser.
	DefaultReadBufferSize = 4096

	// DefaultTraceSize is the number of frames kept for error traces.
	DefaultTraceSize = 16
)

// Device info reads are best effort for parameters that not every firmware
// implements.
const (
	// DeviceInfoRetries is the number of attempts per parameter.
	DeviceInfoRetries = 2
	// DeviceInfoRetryDelay is the pause between attempts.
	DeviceInfoRetryDelay = 100 * time.Millisecond
)
