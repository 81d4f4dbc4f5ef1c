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

package packet

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// FrameType is the first byte of every API frame payload.
type FrameType uint8

// Registered frame types.
const (
	FrameTypeTX64Request                 FrameType = 0x00
	FrameTypeTX16Request                 FrameType = 0x01
	FrameTypeATCommand                   FrameType = 0x08
	FrameTypeATCommandQueue              FrameType = 0x09
	FrameTypeTransmitRequest             FrameType = 0x10
	FrameTypeExplicitAddressingRequest   FrameType = 0x11
	FrameTypeRemoteATCommandRequest      FrameType = 0x17
	FrameTypeTXIPv4Request               FrameType = 0x20
	FrameTypeRX64Indicator               FrameType = 0x80
	FrameTypeRX16Indicator               FrameType = 0x81
	FrameTypeATCommandResponse           FrameType = 0x88
	FrameTypeTXStatus                    FrameType = 0x89
	FrameTypeModemStatus                 FrameType = 0x8A
	FrameTypeTransmitStatus              FrameType = 0x8B
	FrameTypeReceivePacket               FrameType = 0x90
	FrameTypeExplicitRxIndicator         FrameType = 0x91
	FrameTypeNodeIdentificationIndicator FrameType = 0x95
	FrameTypeRemoteATCommandResponse     FrameType = 0x97
	FrameTypeRXIPv4                      FrameType = 0xB0
)

// String returns the registered name, or the hex value for unknown types.
func (t FrameType) String() string {
	if desc, ok := registry[t]; ok {
		return desc.Name
	}
	return fmt.Sprintf("FrameType(0x%02X)", uint8(t))
}

// Descriptor describes how one frame type is decoded, encoded and classified.
// Descriptors are created at package init and never modified.
type Descriptor struct {
	// Decode parses the body that follows the frame type byte.
	Decode func(body []byte) (Packet, error)
	// Encode produces the body that follows the frame type byte.
	Encode func(p Packet) ([]byte, error)
	// IsBroadcast classifies a packet of this type; nil means never.
	IsBroadcast  func(p Packet) bool
	Name         string
	Type         FrameType
	NeedsFrameID bool
}

var registry = map[FrameType]*Descriptor{}

// Lookup returns the descriptor for t.
func Lookup(t FrameType) (*Descriptor, bool) {
	desc, ok := registry[t]
	return desc, ok
}

// Registered returns every registered frame type in ascending order.
func Registered() []FrameType {
	types := make([]FrameType, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func register[T Packet](
	typ FrameType,
	name string,
	needsFrameID bool,
	decode func(d *decoder) T,
	encode func(buf []byte, p T) []byte,
	broadcast func(p T) bool,
) {
	if _, dup := registry[typ]; dup {
		panic(fmt.Sprintf("packet: frame type 0x%02X registered twice", uint8(typ)))
	}

	desc := &Descriptor{
		Type:         typ,
		Name:         name,
		NeedsFrameID: needsFrameID,
		Decode: func(body []byte) (Packet, error) {
			d := &decoder{typ: typ, data: body}
			p := decode(d)
			if d.err != nil {
				return nil, d.err
			}
			return p, nil
		},
		Encode: func(p Packet) ([]byte, error) {
			typed, ok := p.(T)
			if !ok {
				return nil, fmt.Errorf("%w: %T for %s", ErrPacketMismatch, p, name)
			}
			return encode(nil, typed), nil
		},
	}
	if broadcast != nil {
		desc.IsBroadcast = func(p Packet) bool {
			typed, ok := p.(T)
			return ok && broadcast(typed)
		}
	}
	registry[typ] = desc
}

func init() {
	register(FrameTypeTX64Request, "TX64Request", true, decodeTX64Request, encodeTX64Request,
		func(p *TX64Request) bool { return p.Destination == Broadcast64 })
	register(FrameTypeTX16Request, "TX16Request", true, decodeTX16Request, encodeTX16Request,
		func(p *TX16Request) bool { return p.Destination == Broadcast16 })
	register(FrameTypeATCommand, "ATCommand", true, decodeATCommand, encodeATCommand, nil)
	register(FrameTypeATCommandQueue, "ATCommandQueue", true, decodeATCommandQueue, encodeATCommandQueue, nil)
	register(FrameTypeTransmitRequest, "TransmitRequest", true, decodeTransmitRequest, encodeTransmitRequest,
		func(p *TransmitRequest) bool { return p.Destination64 == Broadcast64 || p.Destination16 == Broadcast16 })
	register(FrameTypeExplicitAddressingRequest, "ExplicitAddressingRequest", true,
		decodeExplicitAddressingRequest, encodeExplicitAddressingRequest,
		func(p *ExplicitAddressingRequest) bool {
			return p.Destination64 == Broadcast64 || p.Destination16 == Broadcast16
		})
	register(FrameTypeRemoteATCommandRequest, "RemoteATCommandRequest", true,
		decodeRemoteATCommandRequest, encodeRemoteATCommandRequest,
		func(p *RemoteATCommandRequest) bool { return p.Destination64 == Broadcast64 })
	register(FrameTypeTXIPv4Request, "TXIPv4Request", true, decodeTXIPv4Request, encodeTXIPv4Request, nil)
	register(FrameTypeRX64Indicator, "RX64Indicator", false, decodeRX64Indicator, encodeRX64Indicator,
		func(p *RX64Indicator) bool { return p.Options.Broadcast() })
	register(FrameTypeRX16Indicator, "RX16Indicator", false, decodeRX16Indicator, encodeRX16Indicator,
		func(p *RX16Indicator) bool { return p.Options.Broadcast() })
	register(FrameTypeATCommandResponse, "ATCommandResponse", true,
		decodeATCommandResponse, encodeATCommandResponse, nil)
	register(FrameTypeTXStatus, "TXStatus", true, decodeTXStatus, encodeTXStatus, nil)
	register(FrameTypeModemStatus, "ModemStatus", false, decodeModemStatus, encodeModemStatus, nil)
	register(FrameTypeTransmitStatus, "TransmitStatus", true, decodeTransmitStatus, encodeTransmitStatus, nil)
	register(FrameTypeReceivePacket, "ReceivePacket", false, decodeReceivePacket, encodeReceivePacket,
		func(p *ReceivePacket) bool { return p.Options.Broadcast() })
	register(FrameTypeExplicitRxIndicator, "ExplicitRxIndicator", false,
		decodeExplicitRxIndicator, encodeExplicitRxIndicator,
		func(p *ExplicitRxIndicator) bool { return p.Options.Broadcast() })
	register(FrameTypeNodeIdentificationIndicator, "NodeIdentificationIndicator", false,
		decodeNodeIdentificationIndicator, encodeNodeIdentificationIndicator,
		func(p *NodeIdentificationIndicator) bool { return p.Options.Broadcast() })
	register(FrameTypeRemoteATCommandResponse, "RemoteATCommandResponse", true,
		decodeRemoteATCommandResponse, encodeRemoteATCommandResponse, nil)
	register(FrameTypeRXIPv4, "RXIPv4", false, decodeRXIPv4, encodeRXIPv4, nil)
}

// decoder reads big-endian fields from a frame body. The first short read
// records an error and every later read returns zero values.
type decoder struct {
	err  error
	data []byte
	typ  FrameType
	off  int
}

func (d *decoder) need(field string, n int) bool {
	if d.err != nil {
		return false
	}
	if have := len(d.data) - d.off; have < n {
		d.err = &ValidationError{
			Type:   d.typ,
			Field:  field,
			Reason: fmt.Sprintf("need %d bytes, have %d", n, have),
			Err:    ErrShortPayload,
		}
		return false
	}
	return true
}

func (d *decoder) remaining() int {
	if d.err != nil {
		return 0
	}
	return len(d.data) - d.off
}

func (d *decoder) uint8(field string) uint8 {
	if !d.need(field, 1) {
		return 0
	}
	v := d.data[d.off]
	d.off++
	return v
}

func (d *decoder) uint16(field string) uint16 {
	if !d.need(field, 2) {
		return 0
	}
	v := binary.BigEndian.Uint16(d.data[d.off:])
	d.off += 2
	return v
}

func (d *decoder) uint32(field string) uint32 {
	if !d.need(field, 4) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.data[d.off:])
	d.off += 4
	return v
}

func (d *decoder) address64(field string) Address64 {
	if !d.need(field, 8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.data[d.off:])
	d.off += 8
	return Address64(v)
}

func (d *decoder) address16(field string) Address16 {
	return Address16(d.uint16(field))
}

func (d *decoder) fixed(field string, n int) []byte {
	if !d.need(field, n) {
		return nil
	}
	v := d.data[d.off : d.off+n]
	d.off += n
	return v
}

func (d *decoder) command(field string) string {
	return string(d.fixed(field, 2))
}

// cstring reads a NUL-terminated string. A missing terminator is a short
// payload.
func (d *decoder) cstring(field string) string {
	if d.err != nil {
		return ""
	}
	for i := d.off; i < len(d.data); i++ {
		if d.data[i] == 0 {
			s := string(d.data[d.off:i])
			d.off = i + 1
			return s
		}
	}
	d.err = &ValidationError{Type: d.typ, Field: field, Reason: "missing NUL terminator", Err: ErrShortPayload}
	return ""
}

// rest returns a copy of everything not yet read, nil if nothing remains.
func (d *decoder) rest() []byte {
	if d.err != nil {
		return nil
	}
	v := clone(d.data[d.off:])
	d.off = len(d.data)
	return v
}

func appendAddress64(buf []byte, a Address64) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(a))
}

func appendAddress16(buf []byte, a Address16) []byte {
	return binary.BigEndian.AppendUint16(buf, uint16(a))
}
