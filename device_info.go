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

package xbee

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-xbee/frame"
	"github.com/ZaparooProject/go-xbee/packet"
)

// DeviceInfo describes the local module.
type DeviceInfo struct {
	NodeID          string
	Address64       packet.Address64
	FirmwareVersion uint32
	HardwareVersion uint16
	Address16       packet.Address16
	Mode            frame.OperatingMode
}

// String returns a one-line summary of the module.
func (i *DeviceInfo) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s", i.Address64)
	if i.NodeID != "" {
		fmt.Fprintf(&sb, " %q", i.NodeID)
	}
	fmt.Fprintf(&sb, " HV=%04X VR=%X", i.HardwareVersion, i.FirmwareVersion)
	if i.Address16 != packet.Unknown16 {
		fmt.Fprintf(&sb, " MY=%s", i.Address16)
	}
	if i.Mode != frame.ModeUnknown {
		fmt.Fprintf(&sb, " mode=%s", i.Mode)
	}
	return sb.String()
}

// ReadDeviceInfo reads the identification parameters of the local module.
// SH, SL, NI, HV and VR are required. MY and AP are not implemented by every
// firmware; when they fail the fields are left at Unknown16 and ModeUnknown.
func (d *Device) ReadDeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	info := &DeviceInfo{Address16: packet.Unknown16}

	high, err := d.readUint(ctx, CmdSerialHigh)
	if err != nil {
		return nil, err
	}
	low, err := d.readUint(ctx, CmdSerialLow)
	if err != nil {
		return nil, err
	}
	info.Address64 = packet.Address64(high<<32 | low&0xFFFFFFFF)

	ni, err := d.readParameterWithRetry(ctx, CmdNodeIdentifier)
	if err != nil {
		return nil, err
	}
	info.NodeID = strings.TrimRight(string(ni), "\x00 ")

	hv, err := d.readUint(ctx, CmdHardwareVersion)
	if err != nil {
		return nil, err
	}
	info.HardwareVersion = uint16(hv) //nolint:gosec // HV is two bytes

	vr, err := d.readUint(ctx, CmdFirmwareVersion)
	if err != nil {
		return nil, err
	}
	info.FirmwareVersion = uint32(vr) //nolint:gosec // VR is at most four bytes

	if my, err := d.readUint(ctx, CmdNetworkAddress); err == nil {
		info.Address16 = packet.Address16(my) //nolint:gosec // MY is two bytes
	} else if !optionalParameterError(err) {
		return nil, err
	}

	if ap, err := d.readUint(ctx, CmdAPIMode); err == nil {
		info.Mode = frame.ParseOperatingMode(byte(ap))
	} else if !optionalParameterError(err) {
		return nil, err
	}

	Debugf("device info: %s", info)
	return info, nil
}

// optionalParameterError reports failures that only mean the firmware lacks
// the parameter.
func optionalParameterError(err error) bool {
	return errors.Is(err, ErrCommandFailed) || IsTimeout(err)
}

func (d *Device) readUint(ctx context.Context, cmd string) (uint64, error) {
	value, err := d.readParameterWithRetry(ctx, cmd)
	if err != nil {
		return 0, err
	}
	n, err := DecodeUint(value)
	if err != nil {
		return 0, fmt.Errorf("AT %s: %w", cmd, err)
	}
	return n, nil
}

// readParameterWithRetry retries timeouts; a module busy with a previous
// command occasionally drops a query.
func (d *Device) readParameterWithRetry(ctx context.Context, cmd string) ([]byte, error) {
	config := &RetryConfig{
		MaxAttempts:       DeviceInfoRetries,
		InitialBackoff:    DeviceInfoRetryDelay,
		MaxBackoff:        DeviceInfoRetryDelay,
		BackoffMultiplier: 1,
	}

	var value []byte
	err := RetryWithConfig(ctx, config, func() error {
		var err error
		value, err = d.GetParameter(ctx, cmd)
		return err
	})
	return value, err
}

// DecodeUint interprets a numeric AT parameter value (big-endian, 1 to 8
// bytes).
func DecodeUint(value []byte) (uint64, error) {
	if len(value) == 0 || len(value) > 8 {
		return 0, fmt.Errorf("%w: numeric value of %d bytes", ErrInvalidResponse, len(value))
	}
	var n uint64
	for _, b := range value {
		n = n<<8 | uint64(b)
	}
	return n, nil
}

// EncodeUint returns the shortest big-endian encoding of v, at least one
// byte, as the module expects for numeric parameters.
func EncodeUint(v uint64) []byte {
	out := []byte{byte(v)}
	for v >>= 8; v != 0; v >>= 8 {
		out = append([]byte{byte(v)}, out...)
	}
	return out
}
