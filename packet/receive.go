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

import "strings"

// RX64Indicator carries data received from a 64-bit source (802.15.4).
type RX64Indicator struct {
	Data    []byte
	Source  Address64
	RSSI    uint8
	Options ReceiveOptions
}

// RX16Indicator carries data received from a 16-bit source (802.15.4).
type RX16Indicator struct {
	Data    []byte
	Source  Address16
	RSSI    uint8
	Options ReceiveOptions
}

// ReceivePacket carries data received by a module in transparent RF mode.
type ReceivePacket struct {
	Data     []byte
	Source64 Address64
	Source16 Address16
	Options  ReceiveOptions
}

// ExplicitRxIndicator carries data received with application-layer
// addressing (AO=1).
type ExplicitRxIndicator struct {
	Data                []byte
	Source64            Address64
	Source16            Address16
	ClusterID           uint16
	ProfileID           uint16
	SourceEndpoint      uint8
	DestinationEndpoint uint8
	Options             ReceiveOptions
}

// NodeIdentificationIndicator is sent when a remote module announces itself,
// for example after its commissioning button is pressed.
//
// 802.15.4 modules stop after the node identifier; the trailing fields are
// then left zero and HasTrailer is false.
type NodeIdentificationIndicator struct {
	NodeID         string
	Sender64       Address64
	Remote64       Address64
	Sender16       Address16
	Remote16       Address16
	Parent16       Address16
	ProfileID      uint16
	ManufacturerID uint16
	Options        ReceiveOptions
	Role           uint8
	SourceEvent    uint8
	HasTrailer     bool
}

func (*RX64Indicator) FrameType() FrameType       { return FrameTypeRX64Indicator }
func (*RX16Indicator) FrameType() FrameType       { return FrameTypeRX16Indicator }
func (*ReceivePacket) FrameType() FrameType       { return FrameTypeReceivePacket }
func (*ExplicitRxIndicator) FrameType() FrameType { return FrameTypeExplicitRxIndicator }
func (*NodeIdentificationIndicator) FrameType() FrameType {
	return FrameTypeNodeIdentificationIndicator
}

func (*RX64Indicator) packet()               {}
func (*RX16Indicator) packet()               {}
func (*ReceivePacket) packet()               {}
func (*ExplicitRxIndicator) packet()         {}
func (*NodeIdentificationIndicator) packet() {}

func decodeRX64Indicator(d *decoder) *RX64Indicator {
	return &RX64Indicator{
		Source:  d.address64("source address"),
		RSSI:    d.uint8("RSSI"),
		Options: ReceiveOptions(d.uint8("options")),
		Data:    d.rest(),
	}
}

func encodeRX64Indicator(buf []byte, p *RX64Indicator) []byte {
	buf = appendAddress64(buf, p.Source)
	buf = append(buf, p.RSSI, byte(p.Options))
	return append(buf, p.Data...)
}

func decodeRX16Indicator(d *decoder) *RX16Indicator {
	return &RX16Indicator{
		Source:  d.address16("source address"),
		RSSI:    d.uint8("RSSI"),
		Options: ReceiveOptions(d.uint8("options")),
		Data:    d.rest(),
	}
}

func encodeRX16Indicator(buf []byte, p *RX16Indicator) []byte {
	buf = appendAddress16(buf, p.Source)
	buf = append(buf, p.RSSI, byte(p.Options))
	return append(buf, p.Data...)
}

func decodeReceivePacket(d *decoder) *ReceivePacket {
	return &ReceivePacket{
		Source64: d.address64("source address"),
		Source16: d.address16("source network address"),
		Options:  ReceiveOptions(d.uint8("options")),
		Data:     d.rest(),
	}
}

func encodeReceivePacket(buf []byte, p *ReceivePacket) []byte {
	buf = appendAddress64(buf, p.Source64)
	buf = appendAddress16(buf, p.Source16)
	buf = append(buf, byte(p.Options))
	return append(buf, p.Data...)
}

func decodeExplicitRxIndicator(d *decoder) *ExplicitRxIndicator {
	return &ExplicitRxIndicator{
		Source64:            d.address64("source address"),
		Source16:            d.address16("source network address"),
		SourceEndpoint:      d.uint8("source endpoint"),
		DestinationEndpoint: d.uint8("destination endpoint"),
		ClusterID:           d.uint16("cluster ID"),
		ProfileID:           d.uint16("profile ID"),
		Options:             ReceiveOptions(d.uint8("options")),
		Data:                d.rest(),
	}
}

func encodeExplicitRxIndicator(buf []byte, p *ExplicitRxIndicator) []byte {
	buf = appendAddress64(buf, p.Source64)
	buf = appendAddress16(buf, p.Source16)
	buf = append(buf, p.SourceEndpoint, p.DestinationEndpoint)
	buf = append(buf, byte(p.ClusterID>>8), byte(p.ClusterID))
	buf = append(buf, byte(p.ProfileID>>8), byte(p.ProfileID))
	buf = append(buf, byte(p.Options))
	return append(buf, p.Data...)
}

func decodeNodeIdentificationIndicator(d *decoder) *NodeIdentificationIndicator {
	p := &NodeIdentificationIndicator{
		Sender64: d.address64("sender address"),
		Sender16: d.address16("sender network address"),
		Options:  ReceiveOptions(d.uint8("options")),
		Remote16: d.address16("remote network address"),
		Remote64: d.address64("remote address"),
		NodeID:   d.cstring("node identifier"),
	}
	if d.remaining() == 0 {
		return p
	}
	p.HasTrailer = true
	p.Parent16 = d.address16("parent network address")
	p.Role = d.uint8("device type")
	p.SourceEvent = d.uint8("source event")
	p.ProfileID = d.uint16("profile ID")
	p.ManufacturerID = d.uint16("manufacturer ID")
	return p
}

func encodeNodeIdentificationIndicator(buf []byte, p *NodeIdentificationIndicator) []byte {
	buf = appendAddress64(buf, p.Sender64)
	buf = appendAddress16(buf, p.Sender16)
	buf = append(buf, byte(p.Options))
	buf = appendAddress16(buf, p.Remote16)
	buf = appendAddress64(buf, p.Remote64)
	buf = append(buf, p.NodeID...)
	buf = append(buf, 0)
	if !p.HasTrailer {
		return buf
	}
	buf = appendAddress16(buf, p.Parent16)
	buf = append(buf, p.Role, p.SourceEvent)
	buf = append(buf, byte(p.ProfileID>>8), byte(p.ProfileID))
	return append(buf, byte(p.ManufacturerID>>8), byte(p.ManufacturerID))
}

// Validate rejects node identifiers that would break the NUL terminator.
func (p *NodeIdentificationIndicator) Validate() error {
	if strings.IndexByte(p.NodeID, 0) >= 0 {
		return invalid(FrameTypeNodeIdentificationIndicator, "node identifier", "contains a NUL byte")
	}
	return nil
}
