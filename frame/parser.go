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
	"fmt"
)

// DefaultMaxPayload is the parser's default limit on the length field.
// Radio modules never produce frames anywhere near the 64 KiB the field can
// describe, and a corrupted length would otherwise stall the stream until
// that many bytes arrived.
const DefaultMaxPayload = 4096

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithMaxPayload sets the largest length field the parser accepts.
func WithMaxPayload(n int) ParserOption {
	return func(p *Parser) {
		if n > 0 && n <= MaxPayloadLength {
			p.maxPayload = n
		}
	}
}

// Parser extracts frames from a byte stream that may arrive in arbitrary
// fragments.
//
// Resynchronisation: bytes before a delimiter are skipped silently. When a
// candidate frame fails to decode, the parser drops its delimiter and resumes
// at the next delimiter byte; the error is returned to the caller and the
// stream continues. In escaped mode an unescaped delimiter inside a frame
// ends that frame as incomplete and starts the next one. A zero length field
// is rejected with ErrEmptyPayload, as Decode and Encode do, since a frame
// without a frame type carries no packet; the parser then resyncs as above.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	buf        []byte
	mode       OperatingMode
	maxPayload int
	discarded  int
}

// NewParser creates a parser for an API operating mode.
func NewParser(mode OperatingMode, opts ...ParserOption) (*Parser, error) {
	if err := checkMode(mode); err != nil {
		return nil, err
	}
	p := &Parser{
		mode:       mode,
		maxPayload: DefaultMaxPayload,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Mode returns the operating mode the parser decodes.
func (p *Parser) Mode() OperatingMode {
	return p.mode
}

// Write appends stream bytes. It never fails; the signature matches
// io.Writer.
func (p *Parser) Write(data []byte) (int, error) {
	p.buf = append(p.buf, data...)
	return len(data), nil
}

// Buffered returns the number of bytes waiting to be parsed.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Discarded returns the total number of bytes dropped while resynchronising.
func (p *Parser) Discarded() int {
	return p.discarded
}

// Reset drops all buffered bytes.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
}

// Next returns the payload of the next complete frame. It returns (nil, nil)
// when more bytes are needed, and a framing error after dropping the
// offending frame's delimiter.
func (p *Parser) Next() ([]byte, error) {
	if !p.alignToDelimiter() {
		return nil, nil
	}

	var (
		end int
		err error
	)
	if p.mode == ModeAPIEscaped {
		end, err = p.scanEscaped()
	} else {
		end, err = p.scanPlain()
	}
	if err != nil {
		p.dropDelimiter()
		return nil, err
	}
	if end == 0 {
		return nil, nil
	}

	payload, err := Decode(p.buf[:end], p.mode)
	if err != nil {
		p.dropDelimiter()
		return nil, err
	}
	p.consume(end)
	return payload, nil
}

// alignToDelimiter skips bytes until the buffer starts with a delimiter.
func (p *Parser) alignToDelimiter() bool {
	idx := bytes.IndexByte(p.buf, Delimiter)
	if idx < 0 {
		p.discarded += len(p.buf)
		p.buf = p.buf[:0]
		return false
	}
	if idx > 0 {
		p.discarded += idx
		p.consume(idx)
	}
	return true
}

func (p *Parser) checkLength(length int) error {
	if length == 0 {
		return ErrEmptyPayload
	}
	if length > p.maxPayload {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, p.maxPayload)
	}
	return nil
}

// scanPlain returns the end offset of the frame at the start of the buffer,
// or 0 if it is not complete yet.
func (p *Parser) scanPlain() (int, error) {
	if len(p.buf) < HeaderLength {
		return 0, nil
	}
	length := int(p.buf[1])<<8 | int(p.buf[2])
	if err := p.checkLength(length); err != nil {
		return 0, err
	}
	end := HeaderLength + length + 1
	if len(p.buf) < end {
		return 0, nil
	}
	return end, nil
}

// scanEscaped walks the escaped stream counting logical bytes until the
// checksum of the frame at the start of the buffer has been seen.
func (p *Parser) scanEscaped() (int, error) {
	var (
		logical int
		lenHi   byte
		need    = -1
	)
	for i := 1; i < len(p.buf); i++ {
		b := p.buf[i]
		switch {
		case b == Delimiter:
			return 0, fmt.Errorf("%w: new frame started at offset %d", ErrIncompletePacket, i)
		case b == XON || b == XOFF:
			return 0, fmt.Errorf("%w: 0x%02X at offset %d", ErrSpecialByteNotEscaped, b, i)
		case b == EscapeByte:
			if i+1 >= len(p.buf) {
				return 0, nil
			}
			if p.buf[i+1] == Delimiter {
				return 0, fmt.Errorf("%w: escaped delimiter at offset %d", ErrIncompletePacket, i+1)
			}
			i++
			b = p.buf[i] ^ EscapeXOR
		}

		logical++
		switch logical {
		case 1:
			lenHi = b
		case 2:
			length := int(lenHi)<<8 | int(b)
			if err := p.checkLength(length); err != nil {
				return 0, err
			}
			need = 2 + length + 1
		}
		if logical == need {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (p *Parser) dropDelimiter() {
	p.discarded++
	p.consume(1)
}

func (p *Parser) consume(n int) {
	remaining := copy(p.buf, p.buf[n:])
	p.buf = p.buf[:remaining]
}
