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
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-xbee/packet"
)

// Common AT commands
const (
	CmdApplyChanges      = "AC"
	CmdWriteChanges      = "WR"
	CmdSoftwareReset     = "FR"
	CmdNodeIdentifier    = "NI"
	CmdNodeDiscover      = "ND"
	CmdDiscoveryOptions  = "NO"
	CmdDiscoveryTimeout  = "NT"
	CmdSerialHigh        = "SH"
	CmdSerialLow         = "SL"
	CmdNetworkAddress    = "MY"
	CmdHardwareVersion   = "HV"
	CmdFirmwareVersion   = "VR"
	CmdAPIMode           = "AP"
	CmdDestinationHigh   = "DH"
	CmdDestinationLow    = "DL"
	CmdOperatingPAN      = "ID"
	CmdAssociationStatus = "AI"
)

// GetParameter reads a local AT parameter.
func (d *Device) GetParameter(ctx context.Context, cmd string) ([]byte, error) {
	return d.localAT(ctx, &packet.ATCommand{Command: cmd})
}

// SetParameter writes a local AT parameter and applies it immediately.
func (d *Device) SetParameter(ctx context.Context, cmd string, value []byte) error {
	if len(value) == 0 {
		return fmt.Errorf("%w: AT %s needs a value", ErrInvalidParameter, cmd)
	}
	_, err := d.localAT(ctx, &packet.ATCommand{Command: cmd, Parameter: value})
	return err
}

// QueueParameter writes a local AT parameter without applying it. Queued
// values take effect on ApplyChanges.
func (d *Device) QueueParameter(ctx context.Context, cmd string, value []byte) error {
	if len(value) == 0 {
		return fmt.Errorf("%w: AT %s needs a value", ErrInvalidParameter, cmd)
	}
	_, err := d.localAT(ctx, &packet.ATCommandQueue{Command: cmd, Parameter: value})
	return err
}

// ExecuteParameter runs a local AT command that takes no value, such as
// AC, WR or FR.
func (d *Device) ExecuteParameter(ctx context.Context, cmd string) error {
	_, err := d.localAT(ctx, &packet.ATCommand{Command: cmd})
	return err
}

// ApplyChanges applies queued parameter changes (AC).
func (d *Device) ApplyChanges(ctx context.Context) error {
	return d.ExecuteParameter(ctx, CmdApplyChanges)
}

// WriteChanges stores the current parameters in non-volatile memory (WR).
func (d *Device) WriteChanges(ctx context.Context) error {
	return d.ExecuteParameter(ctx, CmdWriteChanges)
}

func (d *Device) localAT(ctx context.Context, req packet.Packet) ([]byte, error) {
	cmd := commandOf(req)

	resp, err := d.SendPacket(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("AT %s: %w", cmd, err)
	}

	r, ok := resp.(*packet.ATCommandResponse)
	if !ok {
		return nil, fmt.Errorf("%w: AT %s answered by %s", ErrInvalidResponse, cmd, resp.FrameType())
	}
	if !strings.EqualFold(r.Command, cmd) {
		return nil, fmt.Errorf("%w: AT %s answered for %s", ErrInvalidResponse, cmd, r.Command)
	}
	if !r.Status.OK() {
		return nil, &CommandStatusError{
			Kind:        KindATCommand,
			Command:     cmd,
			Status:      byte(r.Status),
			Description: r.Status.String(),
		}
	}
	return r.Value, nil
}

// GetRemoteParameter reads an AT parameter of the module at addr.
func (d *Device) GetRemoteParameter(ctx context.Context, addr packet.Address64, cmd string) ([]byte, error) {
	return d.remoteAT(ctx, &packet.RemoteATCommandRequest{
		Command:       cmd,
		Destination64: addr,
		Destination16: packet.Unknown16,
	})
}

// SetRemoteParameter writes an AT parameter of the module at addr and asks
// it to apply the change immediately.
func (d *Device) SetRemoteParameter(ctx context.Context, addr packet.Address64, cmd string, value []byte) error {
	if len(value) == 0 {
		return fmt.Errorf("%w: remote AT %s needs a value", ErrInvalidParameter, cmd)
	}
	_, err := d.remoteAT(ctx, &packet.RemoteATCommandRequest{
		Command:       cmd,
		Parameter:     value,
		Destination64: addr,
		Destination16: packet.Unknown16,
		Options:       packet.RemoteApplyChanges,
	})
	return err
}

func (d *Device) remoteAT(ctx context.Context, req *packet.RemoteATCommandRequest) ([]byte, error) {
	resp, err := d.sendPacket(ctx, req, d.config.RemoteTimeout)
	if err != nil {
		return nil, fmt.Errorf("remote AT %s on %s: %w", req.Command, req.Destination64, err)
	}

	r, ok := resp.(*packet.RemoteATCommandResponse)
	if !ok {
		return nil, fmt.Errorf("%w: remote AT %s answered by %s", ErrInvalidResponse, req.Command, resp.FrameType())
	}
	if !r.Status.OK() {
		return nil, &CommandStatusError{
			Kind:        KindRemoteATCommand,
			Command:     req.Command,
			Status:      byte(r.Status),
			Description: r.Status.String(),
		}
	}
	return r.Value, nil
}

// SendData transmits data to the module at dest and waits for the delivery
// report. A failed delivery returns a *CommandStatusError.
func (d *Device) SendData(ctx context.Context, dest packet.Address64, data []byte) error {
	return d.transmit(ctx, &packet.TransmitRequest{
		Data:          data,
		Destination64: dest,
		Destination16: packet.Unknown16,
	})
}

// SendBroadcastData transmits data to every module in the network.
func (d *Device) SendBroadcastData(ctx context.Context, data []byte) error {
	return d.transmit(ctx, &packet.TransmitRequest{
		Data:          data,
		Destination64: packet.Broadcast64,
		Destination16: packet.Unknown16,
	})
}

// SendData16 transmits data to a 16-bit address using the 802.15.4 TX
// request.
func (d *Device) SendData16(ctx context.Context, dest packet.Address16, data []byte) error {
	return d.transmit(ctx, &packet.TX16Request{Data: data, Destination: dest})
}

func (d *Device) transmit(ctx context.Context, req packet.Packet) error {
	resp, err := d.sendPacket(ctx, req, d.config.RemoteTimeout)
	if err != nil {
		return fmt.Errorf("transmit: %w", err)
	}

	switch r := resp.(type) {
	case *packet.TransmitStatus:
		if !r.Delivery.OK() {
			return &CommandStatusError{
				Kind:        KindTransmit,
				Status:      byte(r.Delivery),
				Description: r.Delivery.String(),
			}
		}
	case *packet.TXStatus:
		if !r.Status.OK() {
			return &CommandStatusError{
				Kind:        KindTX,
				Status:      byte(r.Status),
				Description: r.Status.String(),
			}
		}
	default:
		return fmt.Errorf("%w: transmit answered by %s", ErrInvalidResponse, resp.FrameType())
	}
	return nil
}

func commandOf(p packet.Packet) string {
	switch r := p.(type) {
	case *packet.ATCommand:
		return r.Command
	case *packet.ATCommandQueue:
		return r.Command
	case *packet.RemoteATCommandRequest:
		return r.Command
	default:
		return p.FrameType().String()
	}
}
