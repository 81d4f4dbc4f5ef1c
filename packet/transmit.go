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

// TX64Request sends data to a 64-bit address (802.15.4 modules).
type TX64Request struct {
	Data        []byte
	Destination Address64
	ID          uint8
	Options     uint8
}

// TX16Request sends data to a 16-bit address (802.15.4 modules).
type TX16Request struct {
	Data        []byte
	Destination Address16
	ID          uint8
	Options     uint8
}

// TransmitRequest sends data using both 64-bit and 16-bit destinations.
// Use Unknown16 when the network address is not known.
type TransmitRequest struct {
	Data            []byte
	Destination64   Address64
	Destination16   Address16
	ID              uint8
	BroadcastRadius uint8
	Options         uint8
}

// ExplicitAddressingRequest is a TransmitRequest with application-layer
// addressing (endpoints, cluster and profile).
type ExplicitAddressingRequest struct {
	Data                []byte
	Destination64       Address64
	Destination16       Address16
	ClusterID           uint16
	ProfileID           uint16
	ID                  uint8
	SourceEndpoint      uint8
	DestinationEndpoint uint8
	BroadcastRadius     uint8
	Options             uint8
}

// TXStatus reports the result of a TX64Request or TX16Request.
type TXStatus struct {
	ID     uint8
	Status TXStatusCode
}

// TransmitStatus reports the result of a TransmitRequest or
// ExplicitAddressingRequest.
type TransmitStatus struct {
	Destination16 Address16
	ID            uint8
	RetryCount    uint8
	Delivery      DeliveryStatus
	Discovery     DiscoveryStatus
}

func (*TX64Request) FrameType() FrameType               { return FrameTypeTX64Request }
func (*TX16Request) FrameType() FrameType               { return FrameTypeTX16Request }
func (*TransmitRequest) FrameType() FrameType           { return FrameTypeTransmitRequest }
func (*ExplicitAddressingRequest) FrameType() FrameType { return FrameTypeExplicitAddressingRequest }
func (*TXStatus) FrameType() FrameType                  { return FrameTypeTXStatus }
func (*TransmitStatus) FrameType() FrameType            { return FrameTypeTransmitStatus }

func (*TX64Request) packet()               {}
func (*TX16Request) packet()               {}
func (*TransmitRequest) packet()           {}
func (*ExplicitAddressingRequest) packet() {}
func (*TXStatus) packet()                  {}
func (*TransmitStatus) packet()            {}

func decodeTX64Request(d *decoder) *TX64Request {
	return &TX64Request{
		ID:          d.uint8("frame ID"),
		Destination: d.address64("destination address"),
		Options:     d.uint8("options"),
		Data:        d.rest(),
	}
}

func encodeTX64Request(buf []byte, p *TX64Request) []byte {
	buf = append(buf, p.ID)
	buf = appendAddress64(buf, p.Destination)
	buf = append(buf, p.Options)
	return append(buf, p.Data...)
}

func decodeTX16Request(d *decoder) *TX16Request {
	return &TX16Request{
		ID:          d.uint8("frame ID"),
		Destination: d.address16("destination address"),
		Options:     d.uint8("options"),
		Data:        d.rest(),
	}
}

func encodeTX16Request(buf []byte, p *TX16Request) []byte {
	buf = append(buf, p.ID)
	buf = appendAddress16(buf, p.Destination)
	buf = append(buf, p.Options)
	return append(buf, p.Data...)
}

func decodeTransmitRequest(d *decoder) *TransmitRequest {
	return &TransmitRequest{
		ID:              d.uint8("frame ID"),
		Destination64:   d.address64("destination address"),
		Destination16:   d.address16("destination network address"),
		BroadcastRadius: d.uint8("broadcast radius"),
		Options:         d.uint8("options"),
		Data:            d.rest(),
	}
}

func encodeTransmitRequest(buf []byte, p *TransmitRequest) []byte {
	buf = append(buf, p.ID)
	buf = appendAddress64(buf, p.Destination64)
	buf = appendAddress16(buf, p.Destination16)
	buf = append(buf, p.BroadcastRadius, p.Options)
	return append(buf, p.Data...)
}

func decodeExplicitAddressingRequest(d *decoder) *ExplicitAddressingRequest {
	return &ExplicitAddressingRequest{
		ID:                  d.uint8("frame ID"),
		Destination64:       d.address64("destination address"),
		Destination16:       d.address16("destination network address"),
		SourceEndpoint:      d.uint8("source endpoint"),
		DestinationEndpoint: d.uint8("destination endpoint"),
		ClusterID:           d.uint16("cluster ID"),
		ProfileID:           d.uint16("profile ID"),
		BroadcastRadius:     d.uint8("broadcast radius"),
		Options:             d.uint8("options"),
		Data:                d.rest(),
	}
}

func encodeExplicitAddressingRequest(buf []byte, p *ExplicitAddressingRequest) []byte {
	buf = append(buf, p.ID)
	buf = appendAddress64(buf, p.Destination64)
	buf = appendAddress16(buf, p.Destination16)
	buf = append(buf, p.SourceEndpoint, p.DestinationEndpoint)
	buf = append(buf, byte(p.ClusterID>>8), byte(p.ClusterID))
	buf = append(buf, byte(p.ProfileID>>8), byte(p.ProfileID))
	buf = append(buf, p.BroadcastRadius, p.Options)
	return append(buf, p.Data...)
}

func decodeTXStatus(d *decoder) *TXStatus {
	return &TXStatus{
		ID:     d.uint8("frame ID"),
		Status: TXStatusCode(d.uint8("status")),
	}
}

func encodeTXStatus(buf []byte, p *TXStatus) []byte {
	return append(buf, p.ID, byte(p.Status))
}

func decodeTransmitStatus(d *decoder) *TransmitStatus {
	return &TransmitStatus{
		ID:            d.uint8("frame ID"),
		Destination16: d.address16("destination network address"),
		RetryCount:    d.uint8("retry count"),
		Delivery:      DeliveryStatus(d.uint8("delivery status")),
		Discovery:     DiscoveryStatus(d.uint8("discovery status")),
	}
}

func encodeTransmitStatus(buf []byte, p *TransmitStatus) []byte {
	buf = append(buf, p.ID)
	buf = appendAddress16(buf, p.Destination16)
	return append(buf, p.RetryCount, byte(p.Delivery), byte(p.Discovery))
}
