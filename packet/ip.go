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
	"net/netip"
)

// IPProtocol selects the transport of an IPv4 frame.
type IPProtocol uint8

// IP protocols
const (
	ProtocolUDP IPProtocol = 0x00
	ProtocolTCP IPProtocol = 0x01
	ProtocolTLS IPProtocol = 0x04
)

func (p IPProtocol) String() string {
	switch p {
	case ProtocolUDP:
		return "UDP"
	case ProtocolTCP:
		return "TCP"
	case ProtocolTLS:
		return "TLS"
	default:
		return "unknown"
	}
}

// TXIPv4Request sends data to an IPv4 host (Wi-Fi and cellular modules).
type TXIPv4Request struct {
	Data            []byte
	Destination     netip.Addr
	DestinationPort uint16
	SourcePort      uint16
	ID              uint8
	Protocol        IPProtocol
	Options         uint8
}

// RXIPv4 carries data received from an IPv4 host.
type RXIPv4 struct {
	Data            []byte
	Source          netip.Addr
	DestinationPort uint16
	SourcePort      uint16
	Protocol        IPProtocol
}

// ModemStatus reports a module event such as a reset or a network join.
type ModemStatus struct {
	Status ModemStatusCode
}

func (*TXIPv4Request) FrameType() FrameType { return FrameTypeTXIPv4Request }
func (*RXIPv4) FrameType() FrameType        { return FrameTypeRXIPv4 }
func (*ModemStatus) FrameType() FrameType   { return FrameTypeModemStatus }

func (*TXIPv4Request) packet() {}
func (*RXIPv4) packet()        {}
func (*ModemStatus) packet()   {}

// Validate requires an IPv4 destination and a known protocol.
func (p *TXIPv4Request) Validate() error {
	if !p.Destination.Is4() {
		return invalid(FrameTypeTXIPv4Request, "destination address", "%s is not an IPv4 address", p.Destination)
	}
	return validateProtocol(FrameTypeTXIPv4Request, p.Protocol)
}

// Validate requires an IPv4 source and a known protocol.
func (p *RXIPv4) Validate() error {
	if !p.Source.Is4() {
		return invalid(FrameTypeRXIPv4, "source address", "%s is not an IPv4 address", p.Source)
	}
	return validateProtocol(FrameTypeRXIPv4, p.Protocol)
}

func validateProtocol(typ FrameType, proto IPProtocol) error {
	switch proto {
	case ProtocolUDP, ProtocolTCP, ProtocolTLS:
		return nil
	default:
		return invalid(typ, "protocol", "unsupported value 0x%02X", uint8(proto))
	}
}

func (d *decoder) ipv4(field string) netip.Addr {
	b := d.fixed(field, 4)
	if b == nil {
		return netip.Addr{}
	}
	return netip.AddrFrom4([4]byte(b))
}

func appendIPv4(buf []byte, a netip.Addr) []byte {
	b := a.As4()
	return append(buf, b[:]...)
}

func decodeTXIPv4Request(d *decoder) *TXIPv4Request {
	return &TXIPv4Request{
		ID:              d.uint8("frame ID"),
		Destination:     d.ipv4("destination address"),
		DestinationPort: d.uint16("destination port"),
		SourcePort:      d.uint16("source port"),
		Protocol:        IPProtocol(d.uint8("protocol")),
		Options:         d.uint8("options"),
		Data:            d.rest(),
	}
}

func encodeTXIPv4Request(buf []byte, p *TXIPv4Request) []byte {
	buf = append(buf, p.ID)
	buf = appendIPv4(buf, p.Destination)
	buf = append(buf, byte(p.DestinationPort>>8), byte(p.DestinationPort))
	buf = append(buf, byte(p.SourcePort>>8), byte(p.SourcePort))
	buf = append(buf, byte(p.Protocol), p.Options)
	return append(buf, p.Data...)
}

func decodeRXIPv4(d *decoder) *RXIPv4 {
	p := &RXIPv4{
		Source:          d.ipv4("source address"),
		DestinationPort: d.uint16("destination port"),
		SourcePort:      d.uint16("source port"),
		Protocol:        IPProtocol(d.uint8("protocol")),
	}
	d.uint8("status") // reserved
	p.Data = d.rest()
	return p
}

func encodeRXIPv4(buf []byte, p *RXIPv4) []byte {
	buf = appendIPv4(buf, p.Source)
	buf = append(buf, byte(p.DestinationPort>>8), byte(p.DestinationPort))
	buf = append(buf, byte(p.SourcePort>>8), byte(p.SourcePort))
	buf = append(buf, byte(p.Protocol), 0)
	return append(buf, p.Data...)
}

func decodeModemStatus(d *decoder) *ModemStatus {
	return &ModemStatus{Status: ModemStatusCode(d.uint8("status"))}
}

func encodeModemStatus(buf []byte, p *ModemStatus) []byte {
	return append(buf, byte(p.Status))
}
