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

package testing

import (
	"encoding/binary"
	"maps"

	"github.com/ZaparooProject/go-xbee/packet"
)

// Node discovery option bits understood by the simulator.
const (
	ndAppendDeviceType = 0x01
	ndIncludeSelf      = 0x02
	ndAppendRSSI       = 0x04
)

// Device roles reported in node discovery responses.
const (
	RoleCoordinator uint8 = 0x00
	RoleRouter      uint8 = 0x01
	RoleEndDevice   uint8 = 0x02
)

// VirtualNode is a remote module reachable through a VirtualModule. It
// answers node discovery, remote AT commands and transmissions.
type VirtualNode struct {
	params         map[string][]byte
	received       [][]byte
	NodeID         string
	Address64      packet.Address64
	DeviceType     uint32
	Address16      packet.Address16
	Parent16       packet.Address16
	ProfileID      uint16
	ManufacturerID uint16
	Role           uint8
	Status         uint8
	RSSI           uint8
}

// NewVirtualNode creates a router with Digi's default profile and
// manufacturer IDs.
func NewVirtualNode(addr64 packet.Address64, addr16 packet.Address16, nodeID string) *VirtualNode {
	n := &VirtualNode{
		NodeID:         nodeID,
		Address64:      addr64,
		Address16:      addr16,
		Parent16:       packet.Unknown16,
		ProfileID:      0xC105,
		ManufacturerID: 0x101E,
		DeviceType:     0x00030000,
		Role:           RoleRouter,
		RSSI:           0x28,
		params:         make(map[string][]byte),
	}
	n.params["NI"] = []byte(nodeID)
	n.params["SH"] = binary.BigEndian.AppendUint32(nil, uint32(addr64>>32))
	n.params["SL"] = binary.BigEndian.AppendUint32(nil, uint32(addr64))
	n.params["MY"] = binary.BigEndian.AppendUint16(nil, uint16(addr16))
	return n
}

// SetParameter sets a parameter answered to remote AT commands.
func (n *VirtualNode) SetParameter(cmd string, value []byte) {
	n.params[cmd] = append([]byte(nil), value...)
}

// Parameter returns a parameter value.
func (n *VirtualNode) Parameter(cmd string) []byte {
	return n.params[cmd]
}

// Parameters returns a copy of all parameters.
func (n *VirtualNode) Parameters() map[string][]byte {
	return maps.Clone(n.params)
}

// DiscoveryValue builds the value of an ND response describing the node,
// honouring the NO option bits for the optional trailer.
func (n *VirtualNode) DiscoveryValue(options byte) []byte {
	buf := binary.BigEndian.AppendUint16(nil, uint16(n.Address16))
	buf = binary.BigEndian.AppendUint64(buf, uint64(n.Address64))
	buf = append(buf, n.NodeID...)
	buf = append(buf, 0x00)
	buf = binary.BigEndian.AppendUint16(buf, uint16(n.Parent16))
	buf = append(buf, n.Role, n.Status)
	buf = binary.BigEndian.AppendUint16(buf, n.ProfileID)
	buf = binary.BigEndian.AppendUint16(buf, n.ManufacturerID)
	if options&ndAppendDeviceType != 0 {
		buf = binary.BigEndian.AppendUint32(buf, n.DeviceType)
	}
	if options&ndAppendRSSI != 0 {
		buf = append(buf, n.RSSI)
	}
	return buf
}
