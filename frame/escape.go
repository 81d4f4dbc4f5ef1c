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

import "fmt"

// IsSpecialByte reports whether b must be escaped in API escaped mode.
func IsSpecialByte(b byte) bool {
	switch b {
	case Delimiter, EscapeByte, XON, XOFF:
		return true
	default:
		return false
	}
}

// Escape applies byte stuffing: every special byte is replaced by
// EscapeByte followed by the byte XOR EscapeXOR. The start delimiter of a
// frame is never passed through Escape.
func Escape(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/8)
	for _, b := range data {
		if IsSpecialByte(b) {
			out = append(out, EscapeByte, b^EscapeXOR)
			continue
		}
		out = append(out, b)
	}
	return out
}

// Unescape reverses Escape. A special byte other than the escape prefix
// appearing unescaped is an error, as is a trailing escape prefix with no
// byte after it.
func Unescape(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		b := data[i]
		if b == EscapeByte {
			if i+1 >= len(data) {
				return nil, fmt.Errorf("%w: escape byte at end of data", ErrIncompletePacket)
			}
			i++
			out = append(out, data[i]^EscapeXOR)
			continue
		}
		if IsSpecialByte(b) {
			return nil, fmt.Errorf("%w: 0x%02X at offset %d", ErrSpecialByteNotEscaped, b, i)
		}
		out = append(out, b)
	}
	return out, nil
}
