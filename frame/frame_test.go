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

package frame

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AT command NI with parameter "AT", frame ID 1.
var niFrame = []byte{0x7E, 0x00, 0x06, 0x08, 0x01, 'N', 'I', 'A', 'T', 0xCA}

func TestChecksum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload []byte
		want    byte
	}{
		{name: "empty", payload: []byte{}, want: 0xFF},
		{name: "single byte", payload: []byte{0x08}, want: 0xF7},
		{name: "sum wraps", payload: []byte{0xFF, 0x01}, want: 0xFF},
		{name: "AT command NI", payload: niFrame[3:9], want: 0xCA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Checksum(tt.payload))
		})
	}
}

func TestVerifyChecksum(t *testing.T) {
	t.Parallel()

	require.NoError(t, VerifyChecksum(niFrame[3:9], 0xCA))

	err := VerifyChecksum(niFrame[3:9], 0xCB)
	require.ErrorIs(t, err, ErrInvalidChecksum)
	var ce *ChecksumError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, byte(0xCA), ce.Expected)
	assert.Equal(t, byte(0xCB), ce.Actual)
}

func TestDecode_ATCommandFrame(t *testing.T) {
	t.Parallel()

	payload, err := Decode(niFrame, ModeAPI)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x08, 0x01, 'N', 'I', 'A', 'T'}, payload)
}

func TestDecode_BadChecksumNamesExpected(t *testing.T) {
	t.Parallel()

	bad := append([]byte(nil), niFrame...)
	bad[len(bad)-1] = 0xCB

	_, err := Decode(bad, ModeAPI)
	require.ErrorIs(t, err, ErrInvalidChecksum)
	assert.Contains(t, err.Error(), "0xCA")

	var ce *ChecksumError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, byte(0xCA), ce.Expected)
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		wantErr error
		name    string
		raw     []byte
		mode    OperatingMode
	}{
		{name: "AT mode rejected", raw: niFrame, mode: ModeAT, wantErr: ErrInvalidOperatingMode},
		{name: "unknown mode rejected", raw: niFrame, mode: ModeUnknown, wantErr: ErrInvalidOperatingMode},
		{name: "empty", raw: []byte{}, mode: ModeAPI, wantErr: ErrIncompletePacket},
		{name: "three bytes", raw: []byte{0x7E, 0x00, 0x01}, mode: ModeAPI, wantErr: ErrIncompletePacket},
		{name: "no delimiter", raw: []byte{0x00, 0x00, 0x01, 0x08, 0xF7}, mode: ModeAPI, wantErr: ErrMissingDelimiter},
		{name: "zero length", raw: []byte{0x7E, 0x00, 0x00, 0xFF}, mode: ModeAPI, wantErr: ErrEmptyPayload},
		{name: "zero length escaped", raw: []byte{0x7E, 0x00, 0x00, 0xFF}, mode: ModeAPIEscaped, wantErr: ErrEmptyPayload},
		{
			name:    "length longer than frame",
			raw:     []byte{0x7E, 0x00, 0x09, 0x08, 0x01, 'N', 'I', 'A', 'T', 0xCA},
			mode:    ModeAPI,
			wantErr: ErrInvalidChecksum,
		},
		{
			name:    "unescaped XON in escaped mode",
			raw:     []byte{0x7E, 0x00, 0x02, 0x11, 0x08, 0xE6},
			mode:    ModeAPIEscaped,
			wantErr: ErrSpecialByteNotEscaped,
		},
		{
			name:    "dangling escape",
			raw:     []byte{0x7E, 0x00, 0x01, 0x08, 0x7D},
			mode:    ModeAPIEscaped,
			wantErr: ErrIncompletePacket,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tt.raw, tt.mode)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()

	payloads := [][]byte{
		{0x08, 0x01, 'N', 'I', 'A', 'T'},
		{0x10, 0x7E, 0x7D, 0x11, 0x13, 0x00, 0xFF},
		{0x8A, 0x06},
		make([]byte, 300),
	}

	for _, mode := range []OperatingMode{ModeAPI, ModeAPIEscaped} {
		for _, payload := range payloads {
			raw, err := Encode(payload, mode)
			require.NoError(t, err)
			assert.Equal(t, Delimiter, raw[0])

			got, err := Decode(raw, mode)
			require.NoError(t, err, "mode %s", mode)
			assert.Equal(t, payload, got)
		}
	}
}

func TestEncode_MatchesKnownFrame(t *testing.T) {
	t.Parallel()

	raw, err := Encode(niFrame[3:9], ModeAPI)
	require.NoError(t, err)
	assert.Equal(t, niFrame, raw)
}

func TestEncode_EscapedNeverEscapesDelimiter(t *testing.T) {
	t.Parallel()

	// Length 0x0011 needs escaping; so does the 0x7E inside the payload.
	payload := make([]byte, 0x11)
	payload[0] = 0x10
	payload[5] = Delimiter

	raw, err := Encode(payload, ModeAPIEscaped)
	require.NoError(t, err)

	assert.Equal(t, Delimiter, raw[0])
	assert.Equal(t, []byte{0x00, EscapeByte, XON ^ EscapeXOR}, raw[1:4])
	for i, b := range raw[1:] {
		if b == EscapeByte {
			continue
		}
		assert.False(t, b == Delimiter || b == XON || b == XOFF, "unescaped special byte at %d", i+1)
	}
}

func TestEncode_Errors(t *testing.T) {
	t.Parallel()

	_, err := Encode([]byte{0x08}, ModeAT)
	require.ErrorIs(t, err, ErrInvalidOperatingMode)

	_, err = Encode(nil, ModeAPI)
	require.ErrorIs(t, err, ErrEmptyPayload)

	_, err = Encode(make([]byte, MaxPayloadLength+1), ModeAPI)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestChecksumSensitivity_EveryPayloadBit(t *testing.T) {
	t.Parallel()

	payload := []byte{0x17, 0x01, 0x00, 0x13, 0xA2, 0x00, 0x40, 0xA6, 0xA0, 0xDB, 0xFF, 0xFE, 0x02, 'N', 'I'}
	raw, err := Encode(payload, ModeAPI)
	require.NoError(t, err)

	for i := HeaderLength; i < len(raw)-1; i++ {
		for bit := range 8 {
			corrupted := append([]byte(nil), raw...)
			corrupted[i] ^= 1 << bit

			_, err := Decode(corrupted, ModeAPI)
			var ce *ChecksumError
			require.True(t, errors.As(err, &ce), "byte %d bit %d", i, bit)
			assert.Equal(t, Checksum(corrupted[HeaderLength:len(corrupted)-1]), ce.Expected)
		}
	}
}

func TestOperatingMode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ModeAT, ParseOperatingMode(0))
	assert.Equal(t, ModeAPI, ParseOperatingMode(1))
	assert.Equal(t, ModeAPIEscaped, ParseOperatingMode(2))
	assert.Equal(t, ModeUnknown, ParseOperatingMode(7))

	for _, m := range []OperatingMode{ModeAT, ModeAPI, ModeAPIEscaped} {
		ap, ok := m.APValue()
		require.True(t, ok)
		assert.Equal(t, m, ParseOperatingMode(ap))
	}
	_, ok := ModeUnknown.APValue()
	assert.False(t, ok)

	assert.True(t, ModeAPIEscaped.IsAPI())
	assert.False(t, ModeAT.IsAPI())
	assert.Equal(t, "API escaped", ModeAPIEscaped.String())
}
