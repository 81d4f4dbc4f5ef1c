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

package discovery

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-xbee/packet"
)

// Role is the network role a node reports in its discovery response.
type Role uint8

const (
	RoleCoordinator Role = 0x00
	RoleRouter      Role = 0x01
	RoleEndDevice   Role = 0x02
)

func (r Role) String() string {
	switch r {
	case RoleCoordinator:
		return "coordinator"
	case RoleRouter:
		return "router"
	case RoleEndDevice:
		return "end device"
	default:
		return fmt.Sprintf("role(0x%02X)", uint8(r))
	}
}

// ErrMalformedResponse is returned when an ND response value cannot be parsed.
var ErrMalformedResponse = errors.New("malformed node discovery response")

const (
	// MY + SH + SL
	addressFieldsLength = 2 + 8
	// parent + role + status + profile + manufacturer
	trailerLength   = 2 + 1 + 1 + 2 + 2
	deviceTypeBytes = 4
	maxNodeIDLength = 20
)

// RemoteDevice is a node found by discovery.
type RemoteDevice struct {
	LastSeen       time.Time
	NodeID         string
	Address64      packet.Address64
	DeviceType     uint32
	Address16      packet.Address16
	Parent         packet.Address16
	ProfileID      uint16
	ManufacturerID uint16
	Role           Role
	Status         uint8
	RSSI           uint8
	HasDeviceType  bool
	HasRSSI        bool
}

func (d *RemoteDevice) String() string {
	if d.NodeID == "" {
		return fmt.Sprintf("%s (%s)", d.Address64, d.Role)
	}
	return fmt.Sprintf("%s %q (%s)", d.Address64, d.NodeID, d.Role)
}

// clone returns an independent copy.
func (d *RemoteDevice) clone() *RemoteDevice {
	c := *d
	return &c
}

// ParseNodeDiscovery decodes the value of an ND response:
//
//	MY(2) SH(4) SL(4) NI(n) 0x00 [parent(2) role status profile(2) manufacturer(2)]
//	[device type(4) if AppendDeviceType] [RSSI(1) if AppendRSSI]
//
// The fixed trailer is optional so that 802.15.4 modules, which stop after
// the identifier, parse too; missing trailer fields are left zero.
func ParseNodeDiscovery(value []byte, opts Options) (*RemoteDevice, error) {
	if len(value) < addressFieldsLength+1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedResponse, len(value))
	}

	dev := &RemoteDevice{
		Address16: packet.Address16(binary.BigEndian.Uint16(value[0:2])),
		Address64: packet.Address64(binary.BigEndian.Uint64(value[2:10])),
		LastSeen:  time.Now(),
	}

	rest := value[addressFieldsLength:]
	end := bytes.IndexByte(rest, 0x00)
	if end < 0 {
		return nil, fmt.Errorf("%w: node identifier not terminated", ErrMalformedResponse)
	}
	if end > maxNodeIDLength {
		return nil, fmt.Errorf("%w: node identifier is %d bytes", ErrMalformedResponse, end)
	}
	dev.NodeID = string(rest[:end])
	rest = rest[end+1:]

	// The optional fields sit at the very end, so take them first.
	if opts.Has(AppendRSSI) {
		if len(rest) < 1 {
			return nil, fmt.Errorf("%w: missing RSSI", ErrMalformedResponse)
		}
		dev.RSSI = rest[len(rest)-1]
		dev.HasRSSI = true
		rest = rest[:len(rest)-1]
	}
	if opts.Has(AppendDeviceType) {
		if len(rest) < deviceTypeBytes {
			return nil, fmt.Errorf("%w: missing device type", ErrMalformedResponse)
		}
		dev.DeviceType = binary.BigEndian.Uint32(rest[len(rest)-deviceTypeBytes:])
		dev.HasDeviceType = true
		rest = rest[:len(rest)-deviceTypeBytes]
	}

	parseTrailer(dev, rest)
	return dev, nil
}

func parseTrailer(dev *RemoteDevice, b []byte) {
	var t [trailerLength]byte
	copy(t[:], b)
	n := len(b)

	if n >= 2 {
		dev.Parent = packet.Address16(binary.BigEndian.Uint16(t[0:2]))
	}
	if n >= 3 {
		dev.Role = Role(t[2])
	}
	if n >= 4 {
		dev.Status = t[3]
	}
	if n >= 6 {
		dev.ProfileID = binary.BigEndian.Uint16(t[4:6])
	}
	if n >= 8 {
		dev.ManufacturerID = binary.BigEndian.Uint16(t[6:8])
	}
}
