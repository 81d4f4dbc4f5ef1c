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
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ZaparooProject/go-xbee/frame"
	"github.com/ZaparooProject/go-xbee/packet"
)

// ErrPortClosed is returned by I/O on a closed VirtualModule.
var ErrPortClosed = errors.New("virtual module port closed")

// Parameters every VirtualModule starts with; any other command is answered
// with ATStatusInvalidCommand unless set explicitly.
var defaultParameters = map[string][]byte{
	"MY": {0x00, 0x00},
	"HV": {0x19, 0x41},
	"VR": {0x40, 0x5E},
	"AP": {0x01},
	"NO": {0x00},
	"NT": {0x3C},
	"ID": {0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	"AI": {0x00},
	"DH": {0x00, 0x00, 0x00, 0x00},
	"DL": {0x00, 0x00, 0xFF, 0xFF},
}

// Commands that take no value and always succeed.
var executionCommands = map[string]bool{"AC": true, "WR": true, "FR": true, "RE": true}

// VirtualModule simulates a local XBee module in API mode behind a serial
// port. It implements the xbee.Transport method set: frames written to it are
// decoded and answered the way a real module answers, and responses are
// returned by Read.
//
// Remote modules are added with AddNode and answer node discovery, remote AT
// commands and transmissions.
type VirtualModule struct {
	local        *VirtualNode
	queued       map[string][]byte
	failures     map[string]packet.ATCommandStatus
	silent       map[string]bool
	parser       *frame.Parser
	notify       chan struct{}
	readErr      error
	nodes        []*VirtualNode
	requests     []packet.Packet
	outbound     bytes.Buffer
	mode         frame.OperatingMode
	delay        time.Duration
	nodeInterval time.Duration
	readTimeout  time.Duration
	mu           sync.Mutex
	open         bool
}

// NewVirtualModule creates a closed module with the given serial number and
// node identifier.
func NewVirtualModule(addr packet.Address64, nodeID string) *VirtualModule {
	local := NewVirtualNode(addr, 0x0000, nodeID)
	local.Role = RoleCoordinator
	for cmd, value := range defaultParameters {
		if _, ok := local.params[cmd]; !ok {
			local.SetParameter(cmd, value)
		}
	}

	parser, _ := frame.NewParser(frame.ModeAPI)
	return &VirtualModule{
		local:        local,
		queued:       make(map[string][]byte),
		failures:     make(map[string]packet.ATCommandStatus),
		silent:       make(map[string]bool),
		parser:       parser,
		notify:       make(chan struct{}, 1),
		mode:         frame.ModeAPI,
		nodeInterval: 5 * time.Millisecond,
		readTimeout:  5 * time.Millisecond,
	}
}

// Name implements xbee.Namer.
func (*VirtualModule) Name() string {
	return "virtual"
}

// SetMode switches between API and API escaped framing and updates AP.
func (m *VirtualModule) SetMode(mode frame.OperatingMode) error {
	parser, err := frame.NewParser(mode)
	if err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	ap, _ := mode.APValue()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	m.parser = parser
	m.local.SetParameter("AP", []byte{ap})
	return nil
}

// SetResponseDelay delays every response by d.
func (m *VirtualModule) SetResponseDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

// SetParameter sets a local parameter.
func (m *VirtualModule) SetParameter(cmd string, value []byte) {
	m.mu.Lock()
	m.local.SetParameter(cmd, value)
	m.mu.Unlock()
}

// Parameter returns a local parameter value.
func (m *VirtualModule) Parameter(cmd string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.local.Parameter(cmd)...)
}

// FailCommand makes every local AT command cmd fail with status.
func (m *VirtualModule) FailCommand(cmd string, status packet.ATCommandStatus) {
	m.mu.Lock()
	m.failures[cmd] = status
	m.mu.Unlock()
}

// IgnoreCommand makes the module never answer the local AT command cmd.
func (m *VirtualModule) IgnoreCommand(cmd string) {
	m.mu.Lock()
	m.silent[cmd] = true
	m.mu.Unlock()
}

// AddNode makes a remote module reachable.
func (m *VirtualModule) AddNode(n *VirtualNode) {
	m.mu.Lock()
	m.nodes = append(m.nodes, n)
	m.mu.Unlock()
}

// Received returns the data transmitted to the node at addr.
func (m *VirtualModule) Received(addr packet.Address64) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.node(addr); n != nil {
		return append([][]byte(nil), n.received...)
	}
	return nil
}

// Requests returns every packet the host sent, in order.
func (m *VirtualModule) Requests() []packet.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]packet.Packet(nil), m.requests...)
}

// ATCommands returns the local AT commands the host sent, with their
// parameters, in order.
func (m *VirtualModule) ATCommands() []*packet.ATCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*packet.ATCommand
	for _, p := range m.requests {
		if at, ok := p.(*packet.ATCommand); ok {
			out = append(out, at)
		}
	}
	return out
}

// Inject sends an unsolicited packet to the host.
func (m *VirtualModule) Inject(p packet.Packet) error {
	payload, err := packet.Encode(p)
	if err != nil {
		return fmt.Errorf("inject: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendLocked(payload, 0)
	return nil
}

// InjectRaw queues raw bytes for the host, bypassing framing.
func (m *VirtualModule) InjectRaw(data []byte) {
	m.mu.Lock()
	_, _ = m.outbound.Write(data)
	m.mu.Unlock()
	m.signal()
}

// Buffered returns how many response bytes are waiting to be read.
func (m *VirtualModule) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outbound.Len()
}

// Disconnect simulates unplugging the adapter: reads fail with io.EOF.
func (m *VirtualModule) Disconnect() {
	m.mu.Lock()
	m.readErr = io.EOF
	m.mu.Unlock()
	m.signal()
}

// Open implements xbee.Transport.
func (m *VirtualModule) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	m.readErr = nil
	return nil
}

// Close implements xbee.Transport. Pending output is discarded.
func (m *VirtualModule) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	m.outbound.Reset()
	m.parser.Reset()
	m.signal()
	return nil
}

// IsOpen implements xbee.Transport.
func (m *VirtualModule) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Read implements xbee.Transport. It waits up to a short read timeout for
// output and returns 0, nil when there is none.
func (m *VirtualModule) Read(p []byte) (int, error) {
	if n, ok, err := m.tryRead(p); ok {
		return n, err
	}

	timer := time.NewTimer(m.readTimeout)
	defer timer.Stop()
	select {
	case <-m.notify:
	case <-timer.C:
	}

	n, _, err := m.tryRead(p)
	return n, err
}

func (m *VirtualModule) tryRead(p []byte) (n int, done bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0, true, ErrPortClosed
	}
	if m.readErr != nil {
		return 0, true, m.readErr
	}
	if m.outbound.Len() == 0 {
		return 0, false, nil
	}
	n, _ = m.outbound.Read(p)
	return n, true, nil
}

// Write implements xbee.Transport. Complete frames are answered
// immediately or after the response delay.
func (m *VirtualModule) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return 0, ErrPortClosed
	}

	_, _ = m.parser.Write(p)
	for {
		payload, err := m.parser.Next()
		if err != nil {
			continue
		}
		if payload == nil {
			break
		}
		req, err := packet.Decode(payload)
		if err != nil {
			continue
		}
		m.requests = append(m.requests, req)
		m.handle(req)
	}
	return len(p), nil
}

func (m *VirtualModule) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// sendLocked frames payload and queues it after delay. Callers hold mu.
func (m *VirtualModule) sendLocked(payload []byte, extra time.Duration) {
	raw, err := frame.Encode(payload, m.mode)
	if err != nil {
		return
	}

	delay := m.delay + extra
	if delay <= 0 {
		_, _ = m.outbound.Write(raw)
		m.signal()
		return
	}

	time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.open {
			_, _ = m.outbound.Write(raw)
		}
		m.mu.Unlock()
		m.signal()
	})
}

func (m *VirtualModule) reply(p packet.Packet, extra time.Duration) {
	payload, err := packet.Encode(p)
	if err != nil {
		return
	}
	m.sendLocked(payload, extra)
}

func (m *VirtualModule) node(addr packet.Address64) *VirtualNode {
	for _, n := range m.nodes {
		if n.Address64 == addr {
			return n
		}
	}
	return nil
}

func (m *VirtualModule) handle(req packet.Packet) {
	switch r := req.(type) {
	case *packet.ATCommand:
		m.handleAT(r.ID, r.Command, r.Parameter, false)
	case *packet.ATCommandQueue:
		m.handleAT(r.ID, r.Command, r.Parameter, true)
	case *packet.RemoteATCommandRequest:
		m.handleRemoteAT(r)
	case *packet.TransmitRequest:
		m.handleTransmit(r.ID, r.Destination64, r.Data)
	case *packet.ExplicitAddressingRequest:
		m.handleTransmit(r.ID, r.Destination64, r.Data)
	case *packet.TX64Request:
		m.handleTX(r.ID, m.node(r.Destination) != nil || r.Destination == packet.Broadcast64)
	case *packet.TX16Request:
		m.handleTX(r.ID, m.node16(r.Destination) != nil || r.Destination == packet.Broadcast16)
	}
}

func (m *VirtualModule) node16(addr packet.Address16) *VirtualNode {
	for _, n := range m.nodes {
		if n.Address16 == addr {
			return n
		}
	}
	return nil
}

func (m *VirtualModule) handleAT(id uint8, cmd string, param []byte, queue bool) {
	if m.silent[cmd] {
		return
	}

	resp := &packet.ATCommandResponse{ID: id, Command: cmd}
	switch status, failing := m.failures[cmd]; {
	case failing:
		resp.Status = status
	case cmd == "ND":
		m.discover(id, param)
		return
	case executionCommands[cmd]:
		if cmd == "AC" {
			for c, v := range m.queued {
				m.local.SetParameter(c, v)
			}
			clear(m.queued)
		}
	case m.local.Parameter(cmd) == nil:
		resp.Status = packet.ATStatusInvalidCommand
	case len(param) == 0:
		resp.Value = append([]byte(nil), m.local.Parameter(cmd)...)
	case !validParameter(cmd, param):
		resp.Status = packet.ATStatusInvalidParameter
	case queue:
		m.queued[cmd] = append([]byte(nil), param...)
	default:
		m.local.SetParameter(cmd, param)
	}

	if id != 0 {
		m.reply(resp, 0)
	}
}

func validParameter(cmd string, value []byte) bool {
	switch cmd {
	case "NO":
		return len(value) == 1 && value[0] <= 0x07
	case "NT":
		return len(value) <= 2 && len(bytes.Trim(value, "\x00")) > 0
	case "AP":
		return len(value) == 1 && value[0] <= 0x02
	case "NI":
		return len(value) <= 20
	default:
		return true
	}
}

// discover answers ND with one response per node, spaced like radio
// replies. A parameter restricts the answer to the node with that NI.
func (m *VirtualModule) discover(id uint8, target []byte) {
	options := m.local.Parameter("NO")[0]
	extra := time.Duration(0)

	candidates := m.nodes
	if options&ndIncludeSelf != 0 {
		candidates = append([]*VirtualNode{m.local}, m.nodes...)
	}

	for _, n := range candidates {
		if len(target) > 0 && n.NodeID != string(target) {
			continue
		}
		extra += m.nodeInterval
		m.reply(&packet.ATCommandResponse{
			ID:      id,
			Command: "ND",
			Value:   n.DiscoveryValue(options),
		}, extra)
	}
}

func (m *VirtualModule) handleRemoteAT(r *packet.RemoteATCommandRequest) {
	resp := &packet.RemoteATCommandResponse{
		ID:       r.ID,
		Command:  r.Command,
		Source64: r.Destination64,
		Source16: packet.Unknown16,
	}

	n := m.node(r.Destination64)
	switch {
	case n == nil:
		resp.Status = packet.ATStatusTxFailure
	case n.Parameter(r.Command) == nil:
		resp.Source16 = n.Address16
		resp.Status = packet.ATStatusInvalidCommand
	case len(r.Parameter) == 0:
		resp.Source16 = n.Address16
		resp.Value = append([]byte(nil), n.Parameter(r.Command)...)
	default:
		resp.Source16 = n.Address16
		n.SetParameter(r.Command, r.Parameter)
	}

	if r.ID != 0 {
		m.reply(resp, m.nodeInterval)
	}
}

func (m *VirtualModule) handleTransmit(id uint8, dest packet.Address64, data []byte) {
	status := &packet.TransmitStatus{ID: id, Destination16: packet.Unknown16}

	switch n := m.node(dest); {
	case dest == packet.Broadcast64:
		for _, n := range m.nodes {
			n.received = append(n.received, append([]byte(nil), data...))
		}
		status.Destination16 = packet.Broadcast16
	case n != nil:
		n.received = append(n.received, append([]byte(nil), data...))
		status.Destination16 = n.Address16
	default:
		status.Delivery = packet.DeliveryAddressNotFound
		status.Discovery = packet.DiscoveryAddress
	}

	if id != 0 {
		m.reply(status, m.nodeInterval)
	}
}

func (m *VirtualModule) handleTX(id uint8, delivered bool) {
	status := &packet.TXStatus{ID: id}
	if !delivered {
		status.Status = packet.TXStatusNoACK
	}
	if id != 0 {
		m.reply(status, m.nodeInterval)
	}
}

// NodeDiscoveryValue is a shorthand for building an ND response value in
// tests that inject responses directly.
func NodeDiscoveryValue(addr64 packet.Address64, addr16 packet.Address16, nodeID string, options byte) []byte {
	return NewVirtualNode(addr64, addr16, nodeID).DiscoveryValue(options)
}
