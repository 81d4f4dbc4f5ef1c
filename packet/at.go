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

// ATCommand queries or sets a local parameter. An empty Parameter queries.
type ATCommand struct {
	Command   string
	Parameter []byte
	ID        uint8
}

// ATCommandQueue is like ATCommand but the new value is only applied after
// an AC command or an ATCommand frame.
type ATCommandQueue struct {
	Command   string
	Parameter []byte
	ID        uint8
}

// ATCommandResponse answers an ATCommand or ATCommandQueue frame.
type ATCommandResponse struct {
	Command string
	Value   []byte
	ID      uint8
	Status  ATCommandStatus
}

// RemoteATCommandRequest queries or sets a parameter on another module.
type RemoteATCommandRequest struct {
	Command       string
	Parameter     []byte
	Destination64 Address64
	Destination16 Address16
	ID            uint8
	Options       uint8
}

// RemoteATCommandResponse answers a RemoteATCommandRequest.
type RemoteATCommandResponse struct {
	Command  string
	Value    []byte
	Source64 Address64
	Source16 Address16
	ID       uint8
	Status   ATCommandStatus
}

func (*ATCommand) FrameType() FrameType               { return FrameTypeATCommand }
func (*ATCommandQueue) FrameType() FrameType          { return FrameTypeATCommandQueue }
func (*ATCommandResponse) FrameType() FrameType       { return FrameTypeATCommandResponse }
func (*RemoteATCommandRequest) FrameType() FrameType  { return FrameTypeRemoteATCommandRequest }
func (*RemoteATCommandResponse) FrameType() FrameType { return FrameTypeRemoteATCommandResponse }

func (*ATCommand) packet()               {}
func (*ATCommandQueue) packet()          {}
func (*ATCommandResponse) packet()       {}
func (*RemoteATCommandRequest) packet()  {}
func (*RemoteATCommandResponse) packet() {}

// Validate checks the command name.
func (p *ATCommand) Validate() error {
	return validateCommand(FrameTypeATCommand, p.Command)
}

// Validate checks the command name.
func (p *ATCommandQueue) Validate() error {
	return validateCommand(FrameTypeATCommandQueue, p.Command)
}

// Validate checks the command name.
func (p *ATCommandResponse) Validate() error {
	return validateCommand(FrameTypeATCommandResponse, p.Command)
}

// Validate checks the command name.
func (p *RemoteATCommandRequest) Validate() error {
	return validateCommand(FrameTypeRemoteATCommandRequest, p.Command)
}

// Validate checks the command name.
func (p *RemoteATCommandResponse) Validate() error {
	return validateCommand(FrameTypeRemoteATCommandResponse, p.Command)
}

// validateCommand requires exactly two printable ASCII characters.
func validateCommand(typ FrameType, cmd string) error {
	if len(cmd) != 2 {
		return invalid(typ, "command", "%q must be exactly 2 characters", cmd)
	}
	for i := 0; i < len(cmd); i++ {
		if cmd[i] <= 0x20 || cmd[i] >= 0x7F {
			return invalid(typ, "command", "%q contains a non-printable character", cmd)
		}
	}
	return nil
}

func decodeATCommand(d *decoder) *ATCommand {
	return &ATCommand{
		ID:        d.uint8("frame ID"),
		Command:   d.command("command"),
		Parameter: d.rest(),
	}
}

func encodeATCommand(buf []byte, p *ATCommand) []byte {
	buf = append(buf, p.ID)
	buf = append(buf, p.Command...)
	return append(buf, p.Parameter...)
}

func decodeATCommandQueue(d *decoder) *ATCommandQueue {
	return &ATCommandQueue{
		ID:        d.uint8("frame ID"),
		Command:   d.command("command"),
		Parameter: d.rest(),
	}
}

func encodeATCommandQueue(buf []byte, p *ATCommandQueue) []byte {
	buf = append(buf, p.ID)
	buf = append(buf, p.Command...)
	return append(buf, p.Parameter...)
}

func decodeATCommandResponse(d *decoder) *ATCommandResponse {
	return &ATCommandResponse{
		ID:      d.uint8("frame ID"),
		Command: d.command("command"),
		Status:  ATCommandStatus(d.uint8("status")),
		Value:   d.rest(),
	}
}

func encodeATCommandResponse(buf []byte, p *ATCommandResponse) []byte {
	buf = append(buf, p.ID)
	buf = append(buf, p.Command...)
	buf = append(buf, byte(p.Status))
	return append(buf, p.Value...)
}

func decodeRemoteATCommandRequest(d *decoder) *RemoteATCommandRequest {
	return &RemoteATCommandRequest{
		ID:            d.uint8("frame ID"),
		Destination64: d.address64("destination address"),
		Destination16: d.address16("destination network address"),
		Options:       d.uint8("options"),
		Command:       d.command("command"),
		Parameter:     d.rest(),
	}
}

func encodeRemoteATCommandRequest(buf []byte, p *RemoteATCommandRequest) []byte {
	buf = append(buf, p.ID)
	buf = appendAddress64(buf, p.Destination64)
	buf = appendAddress16(buf, p.Destination16)
	buf = append(buf, p.Options)
	buf = append(buf, p.Command...)
	return append(buf, p.Parameter...)
}

func decodeRemoteATCommandResponse(d *decoder) *RemoteATCommandResponse {
	return &RemoteATCommandResponse{
		ID:       d.uint8("frame ID"),
		Source64: d.address64("source address"),
		Source16: d.address16("source network address"),
		Command:  d.command("command"),
		Status:   ATCommandStatus(d.uint8("status")),
		Value:    d.rest(),
	}
}

func encodeRemoteATCommandResponse(buf []byte, p *RemoteATCommandResponse) []byte {
	buf = append(buf, p.ID)
	buf = appendAddress64(buf, p.Source64)
	buf = appendAddress16(buf, p.Source16)
	buf = append(buf, p.Command...)
	buf = append(buf, byte(p.Status))
	return append(buf, p.Value...)
}
