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
	"bytes"
	"testing"
)

// Malformed input from a noisy serial line must never panic the decoder or
// the streaming parser.
//
// Run with: go test -fuzz=FuzzDecode -fuzztime=30s ./frame/
// Run all: go test -fuzz=Fuzz -fuzztime=10s ./frame/

// FuzzDecode feeds arbitrary frames to Decode in both API modes.
func FuzzDecode(f *testing.F) {
	f.Add([]byte{0x7E, 0x00, 0x06, 0x08, 0x01, 'N', 'I', 'A', 'T', 0xCA}) // AT command NI
	f.Add([]byte{0x7E, 0x00, 0x02, 0x8A, 0x06, 0x6F})                     // Modem status
	f.Add([]byte{0x7E, 0x00, 0x02, 0x7D, 0x31, 0x08, 0xE6})               // Escaped XON

	f.Add([]byte{})                       // Empty
	f.Add([]byte{0x7E})                   // Just delimiter
	f.Add([]byte{0x7E, 0x00})             // Partial length
	f.Add([]byte{0x7E, 0xFF, 0xFF, 0x00}) // Max length, no payload
	f.Add([]byte{0x7E, 0x7D})             // Dangling escape

	f.Fuzz(func(_ *testing.T, raw []byte) {
		_, _ = Decode(raw, ModeAPI)
		_, _ = Decode(raw, ModeAPIEscaped)
	})
}

// FuzzEscapeRoundTrip checks that Unescape inverts Escape and that escaped
// output never carries a bare special byte.
func FuzzEscapeRoundTrip(f *testing.F) {
	f.Add([]byte{0x7E, 0x7D, 0x11, 0x13})
	f.Add([]byte{0x00, 0x20, 0x5E, 0x5D})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		escaped := Escape(data)
		for i := 0; i < len(escaped); i++ {
			if escaped[i] == EscapeByte {
				i++
				continue
			}
			if IsSpecialByte(escaped[i]) {
				t.Fatalf("Escape(%X) left 0x%02X bare at %d", data, escaped[i], i)
			}
		}

		back, err := Unescape(escaped)
		if err != nil {
			t.Fatalf("Unescape(Escape(%X)): %v", data, err)
		}
		if !bytes.Equal(back, data) {
			t.Fatalf("round trip mismatch: %X != %X", back, data)
		}
	})
}

// FuzzParser splits arbitrary streams at arbitrary points. The parser must
// not panic and must keep its buffer bounded by what was written.
func FuzzParser(f *testing.F) {
	f.Add([]byte{0x00, 0x7E, 0x00, 0x02, 0x8A, 0x06, 0x6F, 0x7E}, 3, false)
	f.Add([]byte{0x7E, 0x00, 0x06, 0x08, 0x01, 'N', 'I', 'A', 'T', 0xCB}, 1, false)
	f.Add([]byte{0x7E, 0x00, 0x03, 0x7D, 0x7E, 0x13}, 2, true)
	f.Add([]byte{0x7E, 0xFF, 0xFF}, 1, true)

	f.Fuzz(func(t *testing.T, stream []byte, chunk int, escaped bool) {
		if chunk < 1 {
			chunk = 1
		}
		mode := ModeAPI
		if escaped {
			mode = ModeAPIEscaped
		}
		p, err := NewParser(mode)
		if err != nil {
			t.Fatal(err)
		}

		for off := 0; off < len(stream); off += chunk {
			end := min(off+chunk, len(stream))
			_, _ = p.Write(stream[off:end])
			for i := 0; i <= len(stream); i++ {
				payload, err := p.Next()
				if payload == nil && err == nil {
					break
				}
				if payload != nil && len(payload) == 0 {
					t.Fatal("parser returned an empty payload")
				}
			}
			if p.Buffered() > len(stream) {
				t.Fatalf("buffered %d bytes from a %d byte stream", p.Buffered(), len(stream))
			}
		}
	})
}
