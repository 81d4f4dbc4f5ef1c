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

import "fmt"

// ATCommandStatus is the status byte of local and remote AT responses.
type ATCommandStatus uint8

// AT command status values
const (
	ATStatusOK               ATCommandStatus = 0x00
	ATStatusError            ATCommandStatus = 0x01
	ATStatusInvalidCommand   ATCommandStatus = 0x02
	ATStatusInvalidParameter ATCommandStatus = 0x03
	ATStatusTxFailure        ATCommandStatus = 0x04
)

var atStatusText = map[ATCommandStatus]string{
	ATStatusOK:               "OK",
	ATStatusError:            "error",
	ATStatusInvalidCommand:   "invalid command",
	ATStatusInvalidParameter: "invalid parameter",
	ATStatusTxFailure:        "transmission failure",
}

func (s ATCommandStatus) String() string {
	return describe(atStatusText, s)
}

// OK reports whether the command succeeded.
func (s ATCommandStatus) OK() bool { return s == ATStatusOK }

// TXStatusCode is the status byte of the legacy 802.15.4 TX status frame.
type TXStatusCode uint8

// TX status values
const (
	TXStatusSuccess    TXStatusCode = 0x00
	TXStatusNoACK      TXStatusCode = 0x01
	TXStatusCCAFailure TXStatusCode = 0x02
	TXStatusPurged     TXStatusCode = 0x03
)

var txStatusText = map[TXStatusCode]string{
	TXStatusSuccess:    "success",
	TXStatusNoACK:      "no acknowledgement received",
	TXStatusCCAFailure: "CCA failure",
	TXStatusPurged:     "purged",
}

func (s TXStatusCode) String() string {
	return describe(txStatusText, s)
}

// OK reports whether the frame was delivered.
func (s TXStatusCode) OK() bool { return s == TXStatusSuccess }

// DeliveryStatus is the delivery result in a TransmitStatus frame.
type DeliveryStatus uint8

// Delivery status values
const (
	DeliverySuccess               DeliveryStatus = 0x00
	DeliveryMACACKFailure         DeliveryStatus = 0x01
	DeliveryCCAFailure            DeliveryStatus = 0x02
	DeliveryInvalidEndpoint       DeliveryStatus = 0x15
	DeliveryNetworkACKFailure     DeliveryStatus = 0x21
	DeliveryNotJoined             DeliveryStatus = 0x22
	DeliverySelfAddressed         DeliveryStatus = 0x23
	DeliveryAddressNotFound       DeliveryStatus = 0x24
	DeliveryRouteNotFound         DeliveryStatus = 0x25
	DeliveryBroadcastRelayFailure DeliveryStatus = 0x26
	DeliveryInvalidBindingIndex   DeliveryStatus = 0x2B
	DeliveryResourceError         DeliveryStatus = 0x2C
	DeliveryNoBuffers             DeliveryStatus = 0x32
	DeliveryPayloadTooLarge       DeliveryStatus = 0x74
	DeliveryIndirectUnrequested   DeliveryStatus = 0x75
)

var deliveryStatusText = map[DeliveryStatus]string{
	DeliverySuccess:               "success",
	DeliveryMACACKFailure:         "MAC ACK failure",
	DeliveryCCAFailure:            "CCA failure",
	DeliveryInvalidEndpoint:       "invalid destination endpoint",
	DeliveryNetworkACKFailure:     "network ACK failure",
	DeliveryNotJoined:             "not joined to network",
	DeliverySelfAddressed:         "self-addressed",
	DeliveryAddressNotFound:       "address not found",
	DeliveryRouteNotFound:         "route not found",
	DeliveryBroadcastRelayFailure: "broadcast source failed to hear a neighbor relay",
	DeliveryInvalidBindingIndex:   "invalid binding table index",
	DeliveryResourceError:         "resource error",
	DeliveryNoBuffers:             "resource error: lack of free buffers",
	DeliveryPayloadTooLarge:       "data payload too large",
	DeliveryIndirectUnrequested:   "indirect message unrequested",
}

func (s DeliveryStatus) String() string {
	return describe(deliveryStatusText, s)
}

// OK reports whether the frame was delivered.
func (s DeliveryStatus) OK() bool { return s == DeliverySuccess }

// DiscoveryStatus reports the route and address discovery overhead of a
// transmission.
type DiscoveryStatus uint8

// Discovery status values
const (
	DiscoveryNoOverhead      DiscoveryStatus = 0x00
	DiscoveryAddress         DiscoveryStatus = 0x01
	DiscoveryRoute           DiscoveryStatus = 0x02
	DiscoveryAddressAndRoute DiscoveryStatus = 0x03
	DiscoveryExtendedTimeout DiscoveryStatus = 0x40
)

var discoveryStatusText = map[DiscoveryStatus]string{
	DiscoveryNoOverhead:      "no discovery overhead",
	DiscoveryAddress:         "address discovery",
	DiscoveryRoute:           "route discovery",
	DiscoveryAddressAndRoute: "address and route discovery",
	DiscoveryExtendedTimeout: "extended timeout discovery",
}

func (s DiscoveryStatus) String() string {
	return describe(discoveryStatusText, s)
}

// ModemStatusCode is the event reported by a ModemStatus frame.
type ModemStatusCode uint8

// Modem status values
const (
	ModemHardwareReset        ModemStatusCode = 0x00
	ModemWatchdogReset        ModemStatusCode = 0x01
	ModemJoinedNetwork        ModemStatusCode = 0x02
	ModemDisassociated        ModemStatusCode = 0x03
	ModemCoordinatorStarted   ModemStatusCode = 0x06
	ModemSecurityKeyUpdated   ModemStatusCode = 0x07
	ModemVoltageLimitExceeded ModemStatusCode = 0x0D
	ModemConfigChangedInJoin  ModemStatusCode = 0x11
	ModemStackError           ModemStatusCode = 0x80
)

var modemStatusText = map[ModemStatusCode]string{
	ModemHardwareReset:        "hardware reset",
	ModemWatchdogReset:        "watchdog timer reset",
	ModemJoinedNetwork:        "joined network",
	ModemDisassociated:        "disassociated",
	ModemCoordinatorStarted:   "coordinator started",
	ModemSecurityKeyUpdated:   "network security key updated",
	ModemVoltageLimitExceeded: "voltage supply limit exceeded",
	ModemConfigChangedInJoin:  "configuration changed while join in progress",
}

func (s ModemStatusCode) String() string {
	if s >= ModemStackError {
		return fmt.Sprintf("stack error (0x%02X)", uint8(s))
	}
	return describe(modemStatusText, s)
}

// ReceiveOptions is the options bit field shared by the receive frame types.
type ReceiveOptions uint8

// Receive option bits
const (
	ReceiveAcknowledged  ReceiveOptions = 0x01
	ReceiveBroadcast     ReceiveOptions = 0x02
	ReceiveEncrypted     ReceiveOptions = 0x20
	ReceiveFromEndDevice ReceiveOptions = 0x40
)

// Broadcast reports whether the frame was received as a broadcast.
func (o ReceiveOptions) Broadcast() bool { return o&ReceiveBroadcast != 0 }

// Transmit option bits
const (
	TransmitDisableACK       uint8 = 0x01
	TransmitDisableDiscovery uint8 = 0x02
	TransmitEnableAPSEncrypt uint8 = 0x20
	TransmitExtendedTimeout  uint8 = 0x40
)

// RemoteApplyChanges in RemoteATCommandRequest.Options applies the change
// immediately instead of waiting for an AC command.
const RemoteApplyChanges uint8 = 0x02

func describe[T ~uint8](table map[T]string, v T) string {
	if s, ok := table[v]; ok {
		return s
	}
	return fmt.Sprintf("unknown (0x%02X)", uint8(v))
}
