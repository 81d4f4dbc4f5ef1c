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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRetryConstants_ConnectionValues verifies connection retry constants
// are within reasonable bounds for serial modules.
func TestRetryConstants_ConnectionValues(t *testing.T) {
	t.Parallel()

	assert.GreaterOrEqual(t, DefaultConnectionRetries, 1)
	assert.LessOrEqual(t, DefaultConnectionRetries, 10)

	assert.GreaterOrEqual(t, ConnectionInitialBackoff, 50*time.Millisecond)
	assert.LessOrEqual(t, ConnectionInitialBackoff, 500*time.Millisecond)
	assert.Greater(t, ConnectionMaxBackoff, ConnectionInitialBackoff)

	assert.GreaterOrEqual(t, ConnectionBackoffMultiplier, 1.5)
	assert.LessOrEqual(t, ConnectionBackoffMultiplier, 3.0)
	assert.GreaterOrEqual(t, ConnectionJitter, 0.0)
	assert.LessOrEqual(t, ConnectionJitter, 0.5)

	// The overall timeout must leave room for every attempt
	minExpectedTimeout := time.Duration(DefaultConnectionRetries) * ConnectionInitialBackoff
	assert.Greater(t, ConnectionRetryTimeout, minExpectedTimeout)
}

// TestRetryConstants_Timeouts checks the request timeouts against the
// module's behaviour: remote requests cross the radio and need longer.
func TestRetryConstants_Timeouts(t *testing.T) {
	t.Parallel()

	assert.Positive(t, DefaultReceiveTimeout)
	assert.GreaterOrEqual(t, DefaultRemoteTimeout, DefaultReceiveTimeout)
	assert.Less(t, DefaultPollInterval, DefaultReceiveTimeout)
	assert.GreaterOrEqual(t, DeviceInfoRetries, 1)
	assert.Less(t, DeviceInfoRetryDelay, DefaultReceiveTimeout)
}

func TestRetryConstants_Buffers(t *testing.T) {
	t.Parallel()

	// The ring buffer holds at least one read chunk
	assert.GreaterOrEqual(t, DefaultReadBufferSize, readChunkSize)
	assert.Positive(t, DefaultTraceSize)
}
