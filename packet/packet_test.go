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
	"testing"

	"github.com/ZaparooProject/go-xbee/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr64 Address64 = 0x0013A20040A6A0DB

// samplePackets has one representative value for every registered type.
func samplePackets() []Packet {
	return []Packet{
		&TX64Request{ID: 1, Destination: testAddr64, Options: TransmitDisableACK, Data: []byte("hello")},
		&TX16Request{ID: 2, Destination: 0x1234, Data: []byte{0x7E, 0x7D, 0x11, 0x13}},
		&ATCommand{ID: 3, Command: "NI", Parameter: []byte("AT")},
		&ATCommandQueue{ID: 4, Command: "BD", Parameter: []byte{0x03}},
		&TransmitRequest{
			ID: 5, Destination64: testAddr64, Destination16: Unknown16,
			BroadcastRadius: 2, Options: TransmitDisableDiscovery, Data: []byte("payload"),
		},
		&ExplicitAddressingRequest{
			ID: 6, Destination64: testAddr64, Destination16: Unknown16,
			SourceEndpoint: 0xE8, DestinationEndpoint: 0xE8,
			ClusterID: 0x0011, ProfileID: 0xC105, Data: []byte{1, 2, 3},
		},
		&RemoteATCommandRequest{
			ID: 1, Destination64: testAddr64, Destination16: Unknown16,
			Options: RemoteApplyChanges, Command: "NI", Parameter: []byte("Ni string"),
		},
		&TXIPv4Request{
			ID: 8, Destination: netip.MustParseAddr("192.168.1.20"),
			DestinationPort: 9750, SourcePort: 0, Protocol: ProtocolTCP, Data: []byte("GET"),
		},
		&RX64Indicator{Source: testAddr64, RSSI: 0x28, Options: ReceiveBroadcast, Data: []byte("x")},
		&RX16Indicator{Source: 0x0001, RSSI: 0x40, Data: []byte("y")},
		&ATCommandResponse{ID: 9, Command: "SH", Status: ATStatusOK, Value: []byte{0x00, 0x13, 0xA2, 0x00}},
		&TXStatus{ID: 10, Status: TXStatusNoACK},
		&ModemStatus{Status: ModemCoordinatorStarted},
		&TransmitStatus{
			ID: 11, Destination16: 0x7D84, RetryCount: 1,
			Delivery: DeliveryRouteNotFound, Discovery: DiscoveryRoute,
		},
		&ReceivePacket{Source64: testAddr64, Source16: 0x7D84, Options: ReceiveAcknowledged, Data: []byte("rx")},
		&ExplicitRxIndicator{
			Source64: testAddr64, Source16: 0x7D84, SourceEndpoint: 0xE8, DestinationEndpoint: 0xE8,
			ClusterID: 0x0011, ProfileID: 0xC105, Options: ReceiveBroadcast, Data: []byte("ex"),
		},
		&NodeIdentificationIndicator{
			Sender64: testAddr64, Sender16: 0x7D84, Options: ReceiveBroadcast,
			Remote16: 0x7D84, Remote64: testAddr64, NodeID: "sensor",
			Parent16: Unknown16, Role: 1, SourceEvent: 1, ProfileID: 0xC105, ManufacturerID: 0x101E,
			HasTrailer: true,
		},
		&RemoteATCommandResponse{
			ID: 1, Source64: testAddr64, Source16: 0x7D84,
			Command: "NI", Status: ATStatusOK, Value: []byte("Ni string"),
		},
		&RXIPv4{
			Source: netip.MustParseAddr("10.0.0.7"), DestinationPort: 9750,
			SourcePort: 5000, Protocol: ProtocolUDP, Data: []byte("pong"),
		},
	}
}

func TestRegistry_CoversEveryType(t *testing.T) {
	t.Parallel()

	seen := make(map[FrameType]bool)
	for _, p := range samplePackets() {
		seen[p.FrameType()] = true
	}
	for _, typ := range Registered() {
		assert.True(t, seen[typ], "no sample for %s", typ)
	}
	assert.Len(t, Registered(), len(seen))
}

func TestRoundTrip_AllTypesBothModes(t *testing.T) {
	t.Parallel()

	for _, p := range samplePackets() {
		p := p
		t.Run(p.FrameType().String(), func(t *testing.T) {
			t.Parallel()

			payload, err := Encode(p)
			require.NoError(t, err)
			assert.Equal(t, byte(p.FrameType()), payload[0])

			for _, mode := range []frame.OperatingMode{frame.ModeAPI, frame.ModeAPIEscaped} {
				raw, err := frame.Encode(payload, mode)
				require.NoError(t, err)

				decodedPayload, err := frame.Decode(raw, mode)
				require.NoError(t, err)

				got, err := Decode(decodedPayload)
				require.NoError(t, err)
				assert.Equal(t, p, got, "mode %s", mode)
			}
		})
	}
}

func TestRoundTrip_RemoteNodeIdentifier(t *testing.T) {
	t.Parallel()

	req := &RemoteATCommandRequest{
		ID:            1,
		Destination64: 0x0013A20040A6A0DB,
		Destination16: Unknown16,
		Command:       "NI",
		Parameter:     []byte("Ni string"),
	}
	payload, err := Encode(req)
	require.NoError(t, err)

	p, err := Decode(payload)
	require.NoError(t, err)
	got, ok := p.(*RemoteATCommandRequest)
	require.True(t, ok)

	assert.Equal(t, uint8(1), got.FrameID())
	assert.Equal(t, "0013A20040A6A0DB", got.Destination64.String())
	assert.Equal(t, "Ni string", string(got.Parameter))
}

func TestDecode_KnownATCommandFrame(t *testing.T) {
	t.Parallel()

	p, err := Decode([]byte{0x08, 0x01, 'N', 'I', 'A', 'T'})
	require.NoError(t, err)

	cmd, ok := p.(*ATCommand)
	require.True(t, ok)
	assert.Equal(t, uint8(1), cmd.ID)
	assert.Equal(t, "NI", cmd.Command)
	assert.Equal(t, []byte("AT"), cmd.Parameter)
}

func TestDecode_UnknownTypeIsRaw(t *testing.T) {
	t.Parallel()

	body := []byte{0x01, 0x02, 0x03}
	p, err := Decode(append([]byte{0xA1}, body...))
	require.NoError(t, err)

	raw, ok := p.(*RawPacket)
	require.True(t, ok)
	assert.Equal(t, FrameType(0xA1), raw.FrameType())
	assert.Equal(t, body, raw.Data)
	assert.Equal(t, "FrameType(0xA1)", raw.FrameType().String())

	_, hasID := FrameIDOf(raw)
	assert.False(t, hasID)
	assert.False(t, IsBroadcast(raw))

	again, err := Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, append([]byte{0xA1}, body...), again)
}

func TestDecode_OwnsItsFields(t *testing.T) {
	t.Parallel()

	payload := []byte{0x88, 0x01, 'N', 'I', 0x00, 'a', 'b'}
	p, err := Decode(payload)
	require.NoError(t, err)

	payload[5] = 'z'
	resp, ok := p.(*ATCommandResponse)
	require.True(t, ok)
	assert.Equal(t, []byte("ab"), resp.Value)
}

func TestDecode_ShortBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "AT command without command", payload: []byte{0x08, 0x01, 'N'}},
		{name: "transmit status truncated", payload: []byte{0x8B, 0x01, 0xFF}},
		{name: "modem status empty", payload: []byte{0x8A}},
		{name: "remote response short address", payload: []byte{0x97, 0x01, 0x00, 0x13}},
		{name: "node identification missing NUL", payload: append(
			[]byte{0x95, 0, 0, 0, 0, 0, 0, 0, 1, 0xFF, 0xFE, 0x02, 0xFF, 0xFE, 0, 0, 0, 0, 0, 0, 0, 1},
			'n', 'o', 'd', 'e')},
		{name: "IPv4 short address", payload: []byte{0xB0, 10, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := Decode(tt.payload)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, ErrShortPayload)
			assert.ErrorIs(t, err, ErrInvalidField)
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	t.Parallel()

	_, err := Decode(nil)
	require.ErrorIs(t, err, ErrEmptyPayload)
}

func TestEncode_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		packet Packet
		name   string
		field  string
	}{
		{name: "one character command", packet: &ATCommand{ID: 1, Command: "N"}, field: "command"},
		{name: "three character command", packet: &ATCommandQueue{ID: 1, Command: "NID"}, field: "command"},
		{name: "control character", packet: &RemoteATCommandRequest{Command: "N\n"}, field: "command"},
		{
			name:   "IPv6 destination",
			packet: &TXIPv4Request{Destination: netip.MustParseAddr("::1"), Protocol: ProtocolUDP},
			field:  "destination address",
		},
		{
			name:   "unset destination",
			packet: &TXIPv4Request{Protocol: ProtocolUDP},
			field:  "destination address",
		},
		{
			name:   "unknown protocol",
			packet: &TXIPv4Request{Destination: netip.MustParseAddr("10.0.0.1"), Protocol: 9},
			field:  "protocol",
		},
		{
			name:   "NUL in node identifier",
			packet: &NodeIdentificationIndicator{NodeID: "a\x00b"},
			field:  "node identifier",
		},
		{
			name:   "data too large",
			packet: &TX64Request{Data: make([]byte, frame.MaxPayloadLength)},
			field:  "data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Encode(tt.packet)
			require.ErrorIs(t, err, ErrInvalidField)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.packet.FrameType(), verr.Type)
		})
	}
}

func TestEncode_Nil(t *testing.T) {
	t.Parallel()

	_, err := Encode(nil)
	require.ErrorIs(t, err, ErrNilPacket)
}

func TestFrameIDOf(t *testing.T) {
	t.Parallel()

	for _, p := range samplePackets() {
		desc, ok := Lookup(p.FrameType())
		require.True(t, ok)

		id, hasID := FrameIDOf(p)
		assert.Equal(t, desc.NeedsFrameID, hasID, "%s", desc.Name)
		if hasID {
			ider, ok := p.(FrameIDer)
			require.True(t, ok)
			assert.Equal(t, ider.FrameID(), id)

			ider.SetFrameID(200)
			id, _ = FrameIDOf(p)
			assert.Equal(t, uint8(200), id)
		}
	}

	_, hasID := FrameIDOf(nil)
	assert.False(t, hasID)
}

func TestIsBroadcast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		packet Packet
		name   string
		want   bool
	}{
		{name: "TX64 broadcast", packet: &TX64Request{Destination: Broadcast64}, want: true},
		{name: "TX64 unicast", packet: &TX64Request{Destination: testAddr64}, want: false},
		{name: "TX16 broadcast", packet: &TX16Request{Destination: Broadcast16}, want: true},
		{name: "transmit 64 broadcast", packet: &TransmitRequest{Destination64: Broadcast64, Destination16: Unknown16}, want: true},
		{name: "transmit 16 broadcast", packet: &TransmitRequest{Destination64: testAddr64, Destination16: Broadcast16}, want: true},
		{name: "transmit unicast", packet: &TransmitRequest{Destination64: testAddr64, Destination16: Unknown16}, want: false},
		{name: "explicit broadcast", packet: &ExplicitAddressingRequest{Destination64: Broadcast64}, want: true},
		{name: "remote AT broadcast", packet: &RemoteATCommandRequest{Destination64: Broadcast64}, want: true},
		{name: "remote AT unicast", packet: &RemoteATCommandRequest{Destination64: testAddr64}, want: false},
		{name: "receive broadcast", packet: &ReceivePacket{Options: ReceiveBroadcast | ReceiveAcknowledged}, want: true},
		{name: "receive unicast", packet: &ReceivePacket{Options: ReceiveAcknowledged}, want: false},
		{name: "RX16 broadcast", packet: &RX16Indicator{Options: ReceiveBroadcast}, want: true},
		{name: "node identification", packet: &NodeIdentificationIndicator{Options: ReceiveBroadcast}, want: true},
		{name: "AT command never", packet: &ATCommand{}, want: false},
		{name: "modem status never", packet: &ModemStatus{}, want: false},
		{name: "nil", packet: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsBroadcast(tt.packet))
		})
	}
}

func TestNodeIdentificationIndicator_ShortForm(t *testing.T) {
	t.Parallel()

	in := &NodeIdentificationIndicator{
		Sender64: testAddr64, Sender16: 0x0001, Remote16: 0x0001, Remote64: testAddr64, NodeID: "legacy",
	}
	payload, err := Encode(in)
	require.NoError(t, err)

	p, err := Decode(payload)
	require.NoError(t, err)
	got, ok := p.(*NodeIdentificationIndicator)
	require.True(t, ok)
	assert.False(t, got.HasTrailer)
	assert.Equal(t, "legacy", got.NodeID)
	assert.Equal(t, Address16(0), got.Parent16)
}

func TestDescriptorMismatch(t *testing.T) {
	t.Parallel()

	desc, ok := Lookup(FrameTypeATCommand)
	require.True(t, ok)

	_, err := desc.Encode(&ModemStatus{})
	require.ErrorIs(t, err, ErrPacketMismatch)
}

func TestStatusStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "invalid parameter", ATStatusInvalidParameter.String())
	assert.True(t, ATStatusOK.OK())
	assert.False(t, ATStatusError.OK())
	assert.Equal(t, "route not found", DeliveryRouteNotFound.String())
	assert.True(t, DeliverySuccess.OK())
	assert.Equal(t, "unknown (0x99)", DeliveryStatus(0x99).String())
	assert.Equal(t, "no acknowledgement received", TXStatusNoACK.String())
	assert.Equal(t, "stack error (0x83)", ModemStatusCode(0x83).String())
	assert.Equal(t, "route discovery", DiscoveryRoute.String())
}
