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
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	xbee "github.com/ZaparooProject/go-xbee"
	testutil "github.com/ZaparooProject/go-xbee/internal/testing"
	"github.com/ZaparooProject/go-xbee/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const localAddr packet.Address64 = 0x0013A20040A6A0DB

// recorder is a Listener that keeps every event.
type recorder struct {
	finished chan error
	devices  []*RemoteDevice
	errs     []string
	mu       sync.Mutex
}

func newRecorder() *recorder {
	return &recorder{finished: make(chan error, 1)}
}

func (r *recorder) DeviceDiscovered(dev *RemoteDevice) {
	r.mu.Lock()
	r.devices = append(r.devices, dev)
	r.mu.Unlock()
}

func (r *recorder) DiscoveryError(msg string) {
	r.mu.Lock()
	r.errs = append(r.errs, msg)
	r.mu.Unlock()
}

func (r *recorder) DiscoveryFinished(err error) {
	r.finished <- err
}

func (r *recorder) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.finished:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("discovery did not finish")
		return nil
	}
}

func (r *recorder) Devices() []*RemoteDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*RemoteDevice(nil), r.devices...)
}

func (r *recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errs...)
}

// newNetwork returns an open device on a virtual coordinator with two
// routers in range.
func newNetwork(t *testing.T) (*testutil.VirtualModule, *xbee.Device) {
	t.Helper()

	module := testutil.NewVirtualModule(localAddr, "COORD")
	module.AddNode(testutil.NewVirtualNode(nodeA, 0x1111, "PUMP"))
	module.AddNode(testutil.NewVirtualNode(nodeB, 0x2222, "VALVE"))

	device, err := xbee.New(module, xbee.WithReceiveTimeout(time.Second))
	require.NoError(t, err)
	require.NoError(t, device.Open(context.Background()))
	t.Cleanup(func() { _ = device.Close() })
	return module, device
}

func newDiscoverer(t *testing.T, device Device, opts ...Option) *Discoverer {
	t.Helper()
	d, err := New(device, opts...)
	require.NoError(t, err)
	return d
}

func TestDiscoverer_TwoNodes(t *testing.T) {
	t.Parallel()

	module, device := newNetwork(t)
	d := newDiscoverer(t, device, WithTimeout(200*time.Millisecond), WithGrace(100*time.Millisecond))
	assert.Equal(t, StateIdle, d.State())

	rec := newRecorder()
	require.NoError(t, d.Start(context.Background(), rec))
	require.NoError(t, rec.wait(t))

	devices := rec.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, nodeA, devices[0].Address64)
	assert.Equal(t, "PUMP", devices[0].NodeID)
	assert.Equal(t, packet.Address16(0x1111), devices[0].Address16)
	assert.Equal(t, nodeB, devices[1].Address64)
	assert.Equal(t, "VALVE", devices[1].NodeID)
	assert.Empty(t, rec.Errors())

	assert.Equal(t, StateFinished, d.State())
	assert.False(t, d.Running())
	assert.Equal(t, 2, d.Network().Len())

	// NT was lowered for the run and put back afterwards
	assert.Equal(t, []byte{0x3C}, module.Parameter("NT"))
	assert.Equal(t, []byte{0x00}, module.Parameter("NO"))

	var writes []string
	for _, cmd := range module.ATCommands() {
		if len(cmd.Parameter) > 0 {
			writes = append(writes, fmt.Sprintf("%s=% X", cmd.Command, cmd.Parameter))
		}
	}
	assert.Equal(t, []string{"NT=02", "NT=3C"}, writes)
}

func TestDiscoverer_Options(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		opts       Options
		wantCount  int
		wantRSSI   bool
		wantDevice bool
	}{
		{name: "DeviceTypeAndRSSI", opts: AppendDeviceType | AppendRSSI, wantCount: 2, wantRSSI: true, wantDevice: true},
		{name: "IncludeSelf", opts: IncludeSelf, wantCount: 3},
		{name: "RSSI", opts: AppendRSSI, wantCount: 2, wantRSSI: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			module, device := newNetwork(t)
			d := newDiscoverer(t, device,
				WithOptions(tt.opts), WithTimeout(200*time.Millisecond), WithGrace(100*time.Millisecond))

			devices, err := d.Discover(context.Background())
			require.NoError(t, err)
			require.Len(t, devices, tt.wantCount)

			for _, dev := range devices {
				assert.Equal(t, tt.wantRSSI, dev.HasRSSI, dev.String())
				assert.Equal(t, tt.wantDevice, dev.HasDeviceType, dev.String())
				if tt.wantRSSI {
					assert.Equal(t, uint8(0x28), dev.RSSI)
				}
				if tt.wantDevice {
					assert.Equal(t, uint32(0x00030000), dev.DeviceType)
				}
			}
			if tt.opts.Has(IncludeSelf) {
				assert.Equal(t, "COORD", devices[0].NodeID)
				assert.Equal(t, RoleCoordinator, devices[0].Role)
			}

			assert.Equal(t, []byte{0x00}, module.Parameter("NO"), "NO restored")
			assert.Equal(t, []byte{0x3C}, module.Parameter("NT"), "NT restored")
		})
	}
}

func TestDiscoverer_UnchangedParametersAreNotWritten(t *testing.T) {
	t.Parallel()

	module, device := newNetwork(t)
	module.SetParameter("NT", []byte{0x02})
	d := newDiscoverer(t, device, WithOptions(0), WithTimeout(200*time.Millisecond))

	_, err := d.Discover(context.Background())
	require.NoError(t, err)

	for _, cmd := range module.ATCommands() {
		assert.Empty(t, cmd.Parameter, "unexpected write of %s", cmd.Command)
	}
}

func TestDiscoverer_AlreadyRunning(t *testing.T) {
	t.Parallel()

	_, device := newNetwork(t)
	d := newDiscoverer(t, device, WithTimeout(300*time.Millisecond))

	rec := newRecorder()
	require.NoError(t, d.Start(context.Background(), rec))
	assert.True(t, d.Running())

	require.ErrorIs(t, d.Start(context.Background(), newRecorder()), ErrAlreadyRunning)
	_, err := d.Discover(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, rec.wait(t))
	d.Wait()

	// A finished discoverer can run again
	devices, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 2)
	assert.Equal(t, 2, d.Network().Len(), "rediscovered devices are not duplicated")
}

func TestDiscoverer_DeviceNotOpen(t *testing.T) {
	t.Parallel()

	module := testutil.NewVirtualModule(localAddr, "COORD")
	device, err := xbee.New(module)
	require.NoError(t, err)

	d := newDiscoverer(t, device)
	require.ErrorIs(t, d.Start(context.Background(), newRecorder()), xbee.ErrNotOpen)
	assert.Equal(t, StateIdle, d.State())
	assert.False(t, d.Running())
	assert.Empty(t, module.Requests())
}

func TestDiscoverer_CancelEndsWindowAndRestores(t *testing.T) {
	t.Parallel()

	module, device := newNetwork(t)
	d := newDiscoverer(t, device, WithTimeout(10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	start := time.Now()
	require.NoError(t, d.Start(ctx, rec))

	require.Eventually(t, func() bool {
		return len(rec.Devices()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	require.ErrorIs(t, rec.wait(t), context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateFinished, d.State())
	assert.Equal(t, []byte{0x3C}, module.Parameter("NT"), "NT restored after cancel")
}

func TestDiscoverer_FindDevice(t *testing.T) {
	t.Parallel()

	module, device := newNetwork(t)
	d := newDiscoverer(t, device, WithTimeout(10*time.Second))

	start := time.Now()
	dev, err := d.FindDevice(context.Background(), "VALVE")
	require.NoError(t, err)
	assert.Equal(t, nodeB, dev.Address64)
	assert.Less(t, time.Since(start), 5*time.Second, "FindDevice returns once the node answers")

	var nd *packet.ATCommand
	for _, cmd := range module.ATCommands() {
		if cmd.Command == "ND" {
			nd = cmd
		}
	}
	require.NotNil(t, nd)
	assert.Equal(t, []byte("VALVE"), nd.Parameter)
	assert.Equal(t, []byte{0x3C}, module.Parameter("NT"))
}

func TestDiscoverer_FindDeviceErrors(t *testing.T) {
	t.Parallel()

	_, device := newNetwork(t)
	d := newDiscoverer(t, device, WithTimeout(100*time.Millisecond), WithGrace(0))

	_, err := d.FindDevice(context.Background(), "MISSING")
	require.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = d.FindDevice(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = d.FindDevice(context.Background(), "ABCDEFGHIJKLMNOPQRSTU")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDiscoverer_ParameterFailuresAreReported(t *testing.T) {
	t.Parallel()

	module, device := newNetwork(t)
	module.FailCommand("NO", packet.ATStatusError)
	d := newDiscoverer(t, device, WithOptions(AppendRSSI), WithTimeout(200*time.Millisecond))

	rec := newRecorder()
	require.NoError(t, d.Start(context.Background(), rec))
	require.NoError(t, rec.wait(t))

	assert.Len(t, rec.Devices(), 2, "discovery continues without NO")
	errs := rec.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "read NO")
}

// fakeDevice scripts the module side for response handling tests.
type fakeDevice struct {
	params    map[string][]byte
	getErr    map[string]error
	sendErr   error
	onSend    func(f *fakeDevice, req *packet.ATCommand)
	listeners map[int]xbee.PacketListener
	sets      []string
	mu        sync.Mutex
	nextID    int
	frameID   uint8
	closed    bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		params:    map[string][]byte{"NO": {0x00}, "NT": {0x01}},
		getErr:    make(map[string]error),
		listeners: make(map[int]xbee.PacketListener),
	}
}

func (f *fakeDevice) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeDevice) GetParameter(_ context.Context, cmd string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[cmd]; err != nil {
		return nil, err
	}
	return f.params[cmd], nil
}

func (f *fakeDevice) SetParameter(_ context.Context, cmd string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params[cmd] = value
	f.sets = append(f.sets, fmt.Sprintf("%s=% X", cmd, value))
	return nil
}

func (f *fakeDevice) SendPacketAsync(p packet.Packet) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	if req, ok := p.(*packet.ATCommand); ok && f.onSend != nil {
		f.onSend(f, req)
	}
	return nil
}

func (f *fakeDevice) AddPacketListener(l xbee.PacketListener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeDevice) NextFrameID() uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frameID++
	return f.frameID
}

func (f *fakeDevice) deliver(p packet.Packet) {
	f.mu.Lock()
	listeners := make([]xbee.PacketListener, 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()

	for _, l := range listeners {
		l.PacketReceived(p)
	}
}

func (f *fakeDevice) Sets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sets...)
}

func TestDiscoverer_ResponseFiltering(t *testing.T) {
	t.Parallel()

	f := newFakeDevice()
	f.onSend = func(f *fakeDevice, req *packet.ATCommand) {
		good := testutil.NodeDiscoveryValue(nodeA, 0x1111, "PUMP", 0)
		f.deliver(&packet.ATCommandResponse{ID: req.ID + 1, Command: "ND", Value: good})
		f.deliver(&packet.ATCommandResponse{ID: req.ID, Command: "NI", Value: []byte("PUMP")})
		f.deliver(&packet.ModemStatus{Status: packet.ModemJoinedNetwork})
		f.deliver(&packet.ATCommandResponse{ID: req.ID, Command: "ND", Status: packet.ATStatusError})
		f.deliver(&packet.ATCommandResponse{ID: req.ID, Command: "ND", Value: []byte{0x00, 0x01}})
		f.deliver(&packet.ATCommandResponse{ID: req.ID, Command: "ND"})
		f.deliver(&packet.ATCommandResponse{ID: req.ID, Command: "nd", Value: good})
	}

	d := newDiscoverer(t, f, WithGrace(0))
	rec := newRecorder()
	require.NoError(t, d.Start(context.Background(), rec))
	require.NoError(t, rec.wait(t))

	devices := rec.Devices()
	require.Len(t, devices, 1)
	assert.Equal(t, "PUMP", devices[0].NodeID)

	errs := rec.Errors()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "error")
	assert.Contains(t, errs[1], ErrMalformedResponse.Error())
	assert.Empty(t, f.Sets(), "nothing to configure or restore")
}

func TestDiscoverer_SendFailureStillRestores(t *testing.T) {
	t.Parallel()

	f := newFakeDevice()
	boom := errors.New("write failed")
	f.sendErr = boom

	d := newDiscoverer(t, f, WithOptions(AppendRSSI), WithTimeout(500*time.Millisecond))
	rec := newRecorder()
	require.NoError(t, d.Start(context.Background(), rec))

	require.ErrorIs(t, rec.wait(t), boom)
	assert.Equal(t, []string{"NO=04", "NT=05", "NO=00", "NT=01"}, f.Sets())
	assert.Empty(t, rec.Devices())
}

func TestDiscoverer_UnreadableTimeoutIsLeftAlone(t *testing.T) {
	t.Parallel()

	f := newFakeDevice()
	f.getErr["NT"] = errors.New("no answer")

	d := newDiscoverer(t, f, WithTimeout(100*time.Millisecond), WithGrace(0))
	rec := newRecorder()
	require.NoError(t, d.Start(context.Background(), rec))
	require.NoError(t, rec.wait(t))

	assert.Empty(t, f.Sets())
	require.Len(t, rec.Errors(), 1)
	assert.Contains(t, rec.Errors()[0], "read NT")
}

func TestDiscoverer_ListenerCanRestart(t *testing.T) {
	t.Parallel()

	f := newFakeDevice()
	d := newDiscoverer(t, f, WithGrace(0))

	restarted := make(chan error, 1)
	second := newRecorder()
	first := ListenerFuncs{
		OnFinished: func(error) {
			restarted <- d.Start(context.Background(), second)
		},
	}

	require.NoError(t, d.Start(context.Background(), first))
	require.NoError(t, <-restarted)
	require.NoError(t, second.wait(t))
	d.Wait()
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	tests := []struct {
		opt  Option
		name string
	}{
		{name: "UnknownOptionBits", opt: WithOptions(0x08)},
		{name: "NegativeTimeout", opt: WithTimeout(-time.Second)},
		{name: "TimeoutTooLong", opt: WithTimeout(26 * time.Second)},
		{name: "NegativeGrace", opt: WithGrace(-time.Millisecond)},
		{name: "NodeIDTooLong", opt: WithNodeID("ABCDEFGHIJKLMNOPQRSTU")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(newFakeDevice(), tt.opt)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNew_AppliesOptions(t *testing.T) {
	t.Parallel()

	d, err := New(newFakeDevice(),
		WithOptions(AppendRSSI), WithTimeout(2*time.Second), WithGrace(0), WithNodeID("PUMP"))
	require.NoError(t, err)

	cfg := d.Config()
	assert.True(t, cfg.SetOptions)
	assert.Equal(t, AppendRSSI, cfg.Options)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Zero(t, cfg.Grace)
	assert.Equal(t, "PUMP", cfg.NodeID)

	assert.Equal(t, DefaultGrace, DefaultConfig().Grace)
	assert.False(t, DefaultConfig().SetOptions)
}

func TestOptions_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", Options(0).String())
	assert.Equal(t, "device-type|rssi", (AppendDeviceType | AppendRSSI).String())
	assert.Equal(t, "self|0x08", Options(0x0A).String())
}

func TestParseOptions(t *testing.T) {
	t.Parallel()

	o, err := ParseOptions("device-type|rssi")
	require.NoError(t, err)
	assert.Equal(t, AppendDeviceType|AppendRSSI, o)

	o, err = ParseOptions("Self, rssi")
	require.NoError(t, err)
	assert.Equal(t, IncludeSelf|AppendRSSI, o)

	o, err = ParseOptions("none")
	require.NoError(t, err)
	assert.Zero(t, o)

	_, err = ParseOptions("device-type|colour")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTimeoutUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want byte
	}{
		{in: 0, want: 1},
		{in: 100 * time.Millisecond, want: 1},
		{in: 150 * time.Millisecond, want: 2},
		{in: 6 * time.Second, want: 0x3C},
		{in: 25500 * time.Millisecond, want: 0xFF},
		{in: time.Minute, want: 0xFF},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, timeoutUnits(tt.in), tt.in.String())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "discovering", StateDiscovering.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, StateRestoring.Running())
	assert.False(t, StateFinished.Running())
}
