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

// Package packet models the payloads carried inside API frames.
//
// Every supported frame type has a Go struct implementing Packet and an entry
// in a read-only registry that knows how to decode and encode it. Frame types
// the registry does not know decode to *RawPacket so that newer firmware never
// breaks stream parsing.
//
// Payload here means what frame.Decode returns: the frame type byte followed
// by the type-specific body.
package packet

import (
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-xbee/frame"
)

// Packet is a decoded API frame payload. The set of implementations is
// closed; unknown frame types are represented by *RawPacket.
type Packet interface {
	FrameType() FrameType
	packet()
}

// FrameIDer is implemented by packets that carry a frame ID used to correlate
// a request with its response.
type FrameIDer interface {
	Packet
	FrameID() uint8
	SetFrameID(id uint8)
}

// Validator is implemented by packets with constraints Go types cannot
// express. Encode calls it before serialising.
type Validator interface {
	Validate() error
}

// Packet errors
var (
	ErrEmptyPayload   = frame.ErrEmptyPayload
	ErrInvalidField   = errors.New("invalid packet field")
	ErrShortPayload   = errors.New("payload too short")
	ErrNilPacket      = errors.New("packet is nil")
	ErrNotRegistered  = errors.New("frame type not registered")
	ErrPacketMismatch = errors.New("packet does not match descriptor")
)

// ValidationError describes a field that failed validation during encode or
// a body too short to decode. It matches ErrInvalidField with errors.Is, and
// also the wrapped cause when one is set.
type ValidationError struct {
	Err    error
	Field  string
	Reason string
	Type   FrameType
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Type, e.Field, e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrInvalidField) succeed.
func (*ValidationError) Is(target error) bool {
	return target == ErrInvalidField
}

func invalid(typ FrameType, field, format string, args ...any) *ValidationError {
	return &ValidationError{Type: typ, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Decode turns a frame payload into a typed packet. Unregistered frame types
// never fail; they produce *RawPacket.
func Decode(payload []byte) (Packet, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	typ := FrameType(payload[0])
	desc, ok := registry[typ]
	if !ok {
		return &RawPacket{Type: typ, Data: clone(payload[1:])}, nil
	}

	p, err := desc.Decode(payload[1:])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", desc.Name, err)
	}
	return p, nil
}

// Encode serialises p into a frame payload: the frame type byte followed by
// the body. Fields are validated first.
func Encode(p Packet) ([]byte, error) {
	if p == nil {
		return nil, ErrNilPacket
	}
	if v, ok := p.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	var out []byte
	if raw, ok := p.(*RawPacket); ok {
		out = make([]byte, 0, len(raw.Data)+1)
		out = append(out, byte(raw.Type))
		out = append(out, raw.Data...)
	} else {
		desc, ok := registry[p.FrameType()]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotRegistered, p.FrameType())
		}
		body, err := desc.Encode(p)
		if err != nil {
			return nil, err
		}
		out = make([]byte, 0, len(body)+1)
		out = append(out, byte(desc.Type))
		out = append(out, body...)
	}

	if len(out) > frame.MaxPayloadLength {
		return nil, invalid(p.FrameType(), "data", "payload is %d bytes, limit is %d", len(out), frame.MaxPayloadLength)
	}
	return out, nil
}

// FrameIDOf returns the frame ID of p if its type carries one.
func FrameIDOf(p Packet) (uint8, bool) {
	if p == nil {
		return 0, false
	}
	desc, ok := registry[p.FrameType()]
	if !ok || !desc.NeedsFrameID {
		return 0, false
	}
	ider, ok := p.(FrameIDer)
	if !ok {
		return 0, false
	}
	return ider.FrameID(), true
}

// IsBroadcast reports whether p is addressed to, or was received as, a
// broadcast.
func IsBroadcast(p Packet) bool {
	if p == nil {
		return false
	}
	desc, ok := registry[p.FrameType()]
	if !ok || desc.IsBroadcast == nil {
		return false
	}
	return desc.IsBroadcast(p)
}

// RawPacket holds a frame whose type is not registered. Data is the body
// after the frame type byte.
type RawPacket struct {
	Data []byte
	Type FrameType
}

// FrameType returns the frame type byte that was received.
func (p *RawPacket) FrameType() FrameType { return p.Type }

func (*RawPacket) packet() {}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
