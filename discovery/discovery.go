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

// Package discovery finds remote modules with the ND command. A run
// configures the local module's discovery parameters, listens for ND
// responses for the discovery timeout, and restores the parameters it
// changed.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	xbee "github.com/ZaparooProject/go-xbee"
	"github.com/ZaparooProject/go-xbee/internal/syncutil"
	"github.com/ZaparooProject/go-xbee/packet"
)

var (
	ErrAlreadyRunning = errors.New("discovery already running")
	ErrDeviceNotFound = errors.New("device not found")
	ErrInvalidConfig  = errors.New("invalid discovery configuration")
)

// responseBuffer bounds ND responses queued between the parser goroutine
// and the run goroutine.
const responseBuffer = 32

// Device is the part of *xbee.Device a Discoverer drives.
type Device interface {
	IsOpen() bool
	GetParameter(ctx context.Context, cmd string) ([]byte, error)
	SetParameter(ctx context.Context, cmd string, value []byte) error
	SendPacketAsync(p packet.Packet) error
	AddPacketListener(l xbee.PacketListener) (remove func())
	NextFrameID() uint8
}

var _ Device = (*xbee.Device)(nil)

// Listener receives the events of a discovery run. All calls for one run
// come from the same goroutine, in order, and DiscoveryFinished is always
// the last.
type Listener interface {
	DeviceDiscovered(dev *RemoteDevice)
	// DiscoveryError reports a problem that does not stop the run.
	DiscoveryError(msg string)
	// DiscoveryFinished reports the end of the run with nil or the error
	// that stopped it.
	DiscoveryFinished(err error)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnDevice   func(dev *RemoteDevice)
	OnError    func(msg string)
	OnFinished func(err error)
}

func (f ListenerFuncs) DeviceDiscovered(dev *RemoteDevice) {
	if f.OnDevice != nil {
		f.OnDevice(dev)
	}
}

func (f ListenerFuncs) DiscoveryError(msg string) {
	if f.OnError != nil {
		f.OnError(msg)
	}
}

func (f ListenerFuncs) DiscoveryFinished(err error) {
	if f.OnFinished != nil {
		f.OnFinished(err)
	}
}

// Discoverer runs node discovery on a local module. Only one run may be in
// progress at a time.
type Discoverer struct {
	device  Device
	network *Network
	config  Config
	wg      sync.WaitGroup
	mu      syncutil.Mutex
	state   atomic.Int32
	running bool
}

// New creates a discoverer for device.
func New(device Device, opts ...Option) (*Discoverer, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidConfig)
	}

	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return &Discoverer{
		device:  device,
		network: NewNetwork(),
		config:  *config,
	}, nil
}

// Network returns every device discovered by this discoverer.
func (d *Discoverer) Network() *Network {
	return d.network
}

// Config returns a copy of the configuration.
func (d *Discoverer) Config() Config {
	return d.config
}

// State returns the phase of the current or last run.
func (d *Discoverer) State() State {
	return State(d.state.Load())
}

// Running reports whether a run is in progress.
func (d *Discoverer) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Discoverer) setState(s State) {
	d.state.Store(int32(s))
}

// Start begins a discovery run in the background and returns immediately.
// Events are delivered to listener; cancelling ctx ends the listening
// window early, and the parameters are restored either way.
//
// Start returns ErrAlreadyRunning while a run is in progress and
// xbee.ErrNotOpen when the device is closed.
func (d *Discoverer) Start(ctx context.Context, listener Listener) error {
	return d.start(ctx, d.config.NodeID, listener)
}

// Wait blocks until the current run, if any, has finished.
func (d *Discoverer) Wait() {
	d.wg.Wait()
}

func (d *Discoverer) start(ctx context.Context, nodeID string, listener Listener) error {
	if listener == nil {
		listener = ListenerFuncs{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrAlreadyRunning
	}
	if !d.device.IsOpen() {
		return xbee.ErrNotOpen
	}

	d.running = true
	d.setState(StateConfiguring)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, nodeID, listener)
	}()
	return nil
}

// Discover runs discovery and waits for it to finish. It returns the
// devices found by this run in the order they answered.
func (d *Discoverer) Discover(ctx context.Context) ([]*RemoteDevice, error) {
	return d.collect(ctx, d.config.NodeID, false)
}

// FindDevice runs a discovery restricted to nodeID and returns as soon as
// the node answers. It returns ErrDeviceNotFound if no node answered
// within the window.
func (d *Discoverer) FindDevice(ctx context.Context, nodeID string) (*RemoteDevice, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("%w: empty node identifier", ErrInvalidConfig)
	}
	if len(nodeID) > maxNodeIDLength {
		return nil, fmt.Errorf("%w: node identifier longer than %d bytes", ErrInvalidConfig, maxNodeIDLength)
	}

	found, err := d.collect(ctx, nodeID, true)
	if len(found) > 0 {
		return found[0], nil
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, nodeID)
}

func (d *Discoverer) collect(ctx context.Context, nodeID string, first bool) ([]*RemoteDevice, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var found []*RemoteDevice
	done := make(chan error, 1)
	listener := ListenerFuncs{
		OnDevice: func(dev *RemoteDevice) {
			if first && dev.NodeID != nodeID {
				return
			}
			found = append(found, dev)
			if first {
				cancel()
			}
		},
		OnFinished: func(err error) {
			done <- err
		},
	}

	if err := d.start(runCtx, nodeID, listener); err != nil {
		return nil, err
	}

	err := <-done
	if first && len(found) > 0 {
		return found, nil
	}
	return found, err
}

// session is the module state captured while configuring a run.
type session struct {
	restoreOptions []byte
	restoreTimeout []byte
	window         time.Duration
	options        Options
}

func (d *Discoverer) run(ctx context.Context, nodeID string, listener Listener) {
	s := d.configure(ctx, listener)

	d.setState(StateDiscovering)
	err := d.listen(ctx, s, nodeID, listener)

	d.setState(StateRestoring)
	d.restore(ctx, s, listener)

	d.mu.Lock()
	d.running = false
	d.setState(StateFinished)
	d.mu.Unlock()

	if err != nil {
		xbee.Logger().Warn().Err(err).Msg("node discovery stopped")
	} else {
		xbee.Debugf("node discovery finished, %d devices known", d.network.Len())
	}
	listener.DiscoveryFinished(err)
}

// configure applies the configured NO and NT, remembering the previous
// values. A parameter whose current value cannot be read is left alone.
func (d *Discoverer) configure(ctx context.Context, listener Listener) *session {
	s := &session{}
	timeout := DefaultTimeout
	if d.config.Timeout > 0 {
		timeout = time.Duration(timeoutUnits(d.config.Timeout)) * timeoutUnit
	}

	value, err := d.device.GetParameter(ctx, xbee.CmdDiscoveryOptions)
	switch {
	case err != nil:
		d.report(listener, "read %s: %v", xbee.CmdDiscoveryOptions, err)
	case len(value) == 0:
		d.report(listener, "read %s: empty value", xbee.CmdDiscoveryOptions)
	default:
		s.options = Options(value[len(value)-1])
		if d.config.SetOptions && s.options != d.config.Options {
			want := []byte{byte(d.config.Options)}
			if err := d.device.SetParameter(ctx, xbee.CmdDiscoveryOptions, want); err != nil {
				d.report(listener, "write %s: %v", xbee.CmdDiscoveryOptions, err)
			} else {
				s.restoreOptions = value
				s.options = d.config.Options
			}
		}
	}

	value, err = d.device.GetParameter(ctx, xbee.CmdDiscoveryTimeout)
	if err != nil {
		d.report(listener, "read %s: %v", xbee.CmdDiscoveryTimeout, err)
		s.window = timeout + d.config.Grace
		return s
	}

	units, err := xbee.DecodeUint(value)
	if err != nil {
		d.report(listener, "read %s: %v", xbee.CmdDiscoveryTimeout, err)
		s.window = timeout + d.config.Grace
		return s
	}
	timeout = time.Duration(units) * timeoutUnit

	if d.config.Timeout > 0 {
		want := timeoutUnits(d.config.Timeout)
		if units != uint64(want) {
			if err := d.device.SetParameter(ctx, xbee.CmdDiscoveryTimeout, []byte{want}); err != nil {
				d.report(listener, "write %s: %v", xbee.CmdDiscoveryTimeout, err)
			} else {
				s.restoreTimeout = value
				timeout = time.Duration(want) * timeoutUnit
			}
		}
	}

	s.window = timeout + d.config.Grace
	return s
}

// listen sends ND and forwards every response received within the window.
func (d *Discoverer) listen(ctx context.Context, s *session, nodeID string, listener Listener) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	frameID := d.device.NextFrameID()
	responses := make(chan *packet.ATCommandResponse, responseBuffer)
	stop := make(chan struct{})

	remove := d.device.AddPacketListener(xbee.PacketListenerFunc(func(p packet.Packet) {
		resp, ok := p.(*packet.ATCommandResponse)
		if !ok || resp.ID != frameID || !strings.EqualFold(resp.Command, xbee.CmdNodeDiscover) {
			return
		}
		select {
		case responses <- resp:
		case <-stop:
		}
	}))

	err := d.wait(ctx, frameID, s, nodeID, responses, listener)
	close(stop)
	remove()

	for {
		select {
		case resp := <-responses:
			d.handleResponse(resp, s.options, listener)
		default:
			return err
		}
	}
}

func (d *Discoverer) wait(
	ctx context.Context,
	frameID uint8,
	s *session,
	nodeID string,
	responses <-chan *packet.ATCommandResponse,
	listener Listener,
) error {
	req := &packet.ATCommand{ID: frameID, Command: xbee.CmdNodeDiscover}
	if nodeID != "" {
		req.Parameter = []byte(nodeID)
	}
	if err := d.device.SendPacketAsync(req); err != nil {
		return fmt.Errorf("failed to send %s: %w", xbee.CmdNodeDiscover, err)
	}
	xbee.Debugf("node discovery started (frame %d, window %s, options %s)", frameID, s.window, s.options)

	timer := time.NewTimer(s.window)
	defer timer.Stop()

	for {
		select {
		case resp := <-responses:
			d.handleResponse(resp, s.options, listener)
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Discoverer) handleResponse(resp *packet.ATCommandResponse, opts Options, listener Listener) {
	if !resp.Status.OK() {
		d.report(listener, "%s response: %s", xbee.CmdNodeDiscover, resp.Status)
		return
	}
	// Some firmware ends discovery with an empty response.
	if len(resp.Value) == 0 {
		return
	}

	dev, err := ParseNodeDiscovery(resp.Value, opts)
	if err != nil {
		d.report(listener, "%v", err)
		return
	}

	d.network.Add(dev)
	xbee.Debugf("discovered %s", dev)
	listener.DeviceDiscovered(dev.clone())
}

// restore writes back the parameters changed by configure. It runs even
// when ctx is done.
func (d *Discoverer) restore(ctx context.Context, s *session, listener Listener) {
	if s.restoreOptions == nil && s.restoreTimeout == nil {
		return
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()

	if s.restoreOptions != nil {
		if err := d.device.SetParameter(rctx, xbee.CmdDiscoveryOptions, s.restoreOptions); err != nil {
			d.report(listener, "restore %s: %v", xbee.CmdDiscoveryOptions, err)
		}
	}
	if s.restoreTimeout != nil {
		if err := d.device.SetParameter(rctx, xbee.CmdDiscoveryTimeout, s.restoreTimeout); err != nil {
			d.report(listener, "restore %s: %v", xbee.CmdDiscoveryTimeout, err)
		}
	}
}

func (*Discoverer) report(listener Listener, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	xbee.Logger().Warn().Str("component", "discovery").Msg(msg)
	listener.DiscoveryError(msg)
}
