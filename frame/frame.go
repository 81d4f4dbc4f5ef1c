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

// Package frame implements the XBee API frame envelope: start delimiter,
// big-endian length, payload and sum-complement checksum, plus the
// byte-stuffing transform used by the escaped API operating mode.
//
// All functions are pure and work on explicit byte slices.
package frame

import (
	"errors"
	"fmt"
)

// Special bytes of the API protocol.
const (
	Delimiter  byte = 0x7E // Start of every frame
	EscapeByte byte = 0x7D // Escape prefix in API escaped mode
	XON        byte = 0x11 // Software flow control resume
	XOFF       byte = 0x13 // Software flow control pause
	EscapeXOR  byte = 0x20 // Escaped bytes are XORed with this value
)

// Frame size limits.
const (
	// HeaderLength is the delimiter plus the two length bytes.
	HeaderLength = 3
	// MinFrameLength is the shortest frame the decoder accepts:
	// delimiter, length and checksum.
	MinFrameLength = 4
	// MaxPayloadLength is the largest payload the length field can describe.
	MaxPayloadLength = 0xFFFF
)

// Framing errors.
var (
	ErrInvalidOperatingMode  = errors.New("operating mode must be API or API escaped")
	ErrIncompletePacket      = errors.New("incomplete packet")
	ErrSpecialByteNotEscaped = errors.New("special byte not escaped")
	ErrInvalidChecksum       = errors.New("invalid checksum")
	ErrMissingDelimiter      = errors.New("frame does not start with delimiter")
	ErrEmptyPayload          = errors.New("payload is empty")
	ErrPayloadTooLarge       = errors.New("payload exceeds maximum frame length")
	ErrFrameTooLarge         = errors.New("frame length exceeds parser limit")
)

// ChecksumError reports a checksum mismatch. It matches ErrInvalidChecksum
// with errors.Is.
//
// A length field that disagrees with the number of payload bytes present is
// reported as a checksum failure too, with both lengths filled in.
type ChecksumError struct {
	DeclaredLength int
	PayloadLength  int
	Expected       byte
	Actual         byte
}

func (e *ChecksumError) Error() string {
	msg := fmt.Sprintf("invalid checksum (expected 0x%02X, got 0x%02X)", e.Expected, e.Actual)
	if e.DeclaredLength != e.PayloadLength {
		msg += fmt.Sprintf(": length field says %d bytes, frame carries %d", e.DeclaredLength, e.PayloadLength)
	}
	return msg
}

// Is makes errors.Is(err, ErrInvalidChecksum) succeed.
func (*ChecksumError) Is(target error) bool {
	return target == ErrInvalidChecksum
}

// OperatingMode is the module's serial operating mode (AP parameter).
type OperatingMode int

const (
	// ModeUnknown is used before the mode has been read from the module.
	ModeUnknown OperatingMode = iota
	// ModeAT is transparent mode; not parseable by this package.
	ModeAT
	// ModeAPI is API mode without escaping.
	ModeAPI
	// ModeAPIEscaped is API mode with byte stuffing.
	ModeAPIEscaped
)

// String returns a human-readable mode name.
func (m OperatingMode) String() string {
	switch m {
	case ModeAT:
		return "AT"
	case ModeAPI:
		return "API"
	case ModeAPIEscaped:
		return "API escaped"
	case ModeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("OperatingMode(%d)", int(m))
	}
}

// IsAPI reports whether frames can be encoded and decoded in this mode.
func (m OperatingMode) IsAPI() bool {
	return m == ModeAPI || m == ModeAPIEscaped
}

// ParseOperatingMode maps the value of the AP parameter to a mode.
func ParseOperatingMode(ap byte) OperatingMode {
	switch ap {
	case 0:
		return ModeAT
	case 1:
		return ModeAPI
	case 2:
		return ModeAPIEscaped
	default:
		return ModeUnknown
	}
}

// APValue is the inverse of ParseOperatingMode.
func (m OperatingMode) APValue() (byte, bool) {
	switch m {
	case ModeAT:
		return 0, true
	case ModeAPI:
		return 1, true
	case ModeAPIEscaped:
		return 2, true
	default:
		return 0, false
	}
}

func checkMode(mode OperatingMode) error {
	if !mode.IsAPI() {
		return fmt.Errorf("%w: got %s", ErrInvalidOperatingMode, mode)
	}
	return nil
}

// Encode wraps payload (frame type byte followed by the frame body) in a
// complete frame for the given mode.
func Encode(payload []byte, mode OperatingMode) ([]byte, error) {
	if err := checkMode(mode); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	content := make([]byte, 0, len(payload)+3)
	content = append(content, byte(len(payload)>>8), byte(len(payload)))
	content = append(content, payload...)
	content = append(content, Checksum(payload))

	if mode == ModeAPIEscaped {
		content = Escape(content)
	}

	out := make([]byte, 0, len(content)+1)
	out = append(out, Delimiter)
	return append(out, content...), nil
}

// Decode validates one complete frame starting with the delimiter and
// returns a copy of its payload (frame type byte followed by the body).
//
// The length field is not checked on its own; a frame whose length does not
// match the number of bytes present fails the checksum comparison. A frame
// with a zero length field fails with ErrEmptyPayload.
func Decode(raw []byte, mode OperatingMode) ([]byte, error) {
	if err := checkMode(mode); err != nil {
		return nil, err
	}
	if len(raw) > 0 && raw[0] != Delimiter {
		return nil, ErrMissingDelimiter
	}

	data := raw
	if mode == ModeAPIEscaped && len(raw) > 0 {
		content, err := Unescape(raw[1:])
		if err != nil {
			return nil, err
		}
		data = make([]byte, 0, len(content)+1)
		data = append(data, Delimiter)
		data = append(data, content...)
	}

	if len(data) < MinFrameLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrIncompletePacket, len(data))
	}

	length := int(data[1])<<8 | int(data[2])
	payload := data[HeaderLength : len(data)-1]
	actual := data[len(data)-1]

	expected := Checksum(payload)
	if length != len(payload) {
		return nil, &ChecksumError{
			Expected:       expected,
			Actual:         actual,
			DeclaredLength: length,
			PayloadLength:  len(payload),
		}
	}
	if length == 0 {
		return nil, ErrEmptyPayload
	}
	if expected != actual {
		return nil, &ChecksumError{Expected: expected, Actual: actual}
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// Checksum returns 0xFF minus the low byte of the sum of payload.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return 0xFF - sum
}

// VerifyChecksum checks that checksum matches payload.
func VerifyChecksum(payload []byte, checksum byte) error {
	if expected := Checksum(payload); expected != checksum {
		return &ChecksumError{Expected: expected, Actual: checksum}
	}
	return nil
}
