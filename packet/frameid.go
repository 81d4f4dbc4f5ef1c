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

func (p *TX64Request) FrameID() uint8               { return p.ID }
func (p *TX16Request) FrameID() uint8               { return p.ID }
func (p *ATCommand) FrameID() uint8                 { return p.ID }
func (p *ATCommandQueue) FrameID() uint8            { return p.ID }
func (p *TransmitRequest) FrameID() uint8           { return p.ID }
func (p *ExplicitAddressingRequest) FrameID() uint8 { return p.ID }
func (p *RemoteATCommandRequest) FrameID() uint8    { return p.ID }
func (p *TXIPv4Request) FrameID() uint8             { return p.ID }
func (p *ATCommandResponse) FrameID() uint8         { return p.ID }
func (p *TXStatus) FrameID() uint8                  { return p.ID }
func (p *TransmitStatus) FrameID() uint8            { return p.ID }
func (p *RemoteATCommandResponse) FrameID() uint8   { return p.ID }

func (p *TX64Request) SetFrameID(id uint8)               { p.ID = id }
func (p *TX16Request) SetFrameID(id uint8)               { p.ID = id }
func (p *ATCommand) SetFrameID(id uint8)                 { p.ID = id }
func (p *ATCommandQueue) SetFrameID(id uint8)            { p.ID = id }
func (p *TransmitRequest) SetFrameID(id uint8)           { p.ID = id }
func (p *ExplicitAddressingRequest) SetFrameID(id uint8) { p.ID = id }
func (p *RemoteATCommandRequest) SetFrameID(id uint8)    { p.ID = id }
func (p *TXIPv4Request) SetFrameID(id uint8)             { p.ID = id }
func (p *ATCommandResponse) SetFrameID(id uint8)         { p.ID = id }
func (p *TXStatus) SetFrameID(id uint8)                  { p.ID = id }
func (p *TransmitStatus) SetFrameID(id uint8)            { p.ID = id }
func (p *RemoteATCommandResponse) SetFrameID(id uint8)   { p.ID = id }
