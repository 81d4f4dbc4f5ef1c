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

//nolint:paralleltest // tests swap package-level listPortsFn and probeDeviceFn
package uart

import (
	"context"
	"errors"
	"testing"

	"github.com/ZaparooProject/go-xbee/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubPorts(t *testing.T, ports []serialPort, err error) {
	t.Helper()
	orig := listPortsFn
	listPortsFn = func() ([]serialPort, error) { return ports, err }
	t.Cleanup(func() { listPortsFn = orig })
}

// stubProbe answers for the paths in found and records every probed path.
func stubProbe(t *testing.T, found map[string]map[string]string) *[]string {
	t.Helper()
	var probed []string
	orig := probeDeviceFn
	probeDeviceFn = func(_ context.Context, path string, _ *detection.Options) (map[string]string, bool) {
		probed = append(probed, path)
		meta, ok := found[path]
		return meta, ok
	}
	t.Cleanup(func() { probeDeviceFn = orig })
	return &probed
}

var testPorts = []serialPort{
	{Path: "/dev/ttyUSB0", VIDPID: "0403:6015", Product: "FT231X USB UART", SerialNumber: "DN01ABCD", IsUSB: true},
	{Path: "/dev/ttyUSB1", VIDPID: "AAAA:BBBB", IsUSB: true},
	{Path: "/dev/ttyACM0", VIDPID: "2341:0043", Product: "XBee Shield", IsUSB: true},
	{Path: "/dev/ttyS0"},
}

func TestDetect_PassiveReportsLikelyBridges(t *testing.T) {
	stubPorts(t, testPorts, nil)
	probed := stubProbe(t, nil)

	opts := detection.DefaultOptions()
	opts.Mode = detection.Passive

	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
	assert.Equal(t, detection.Medium, devices[0].Confidence)
	assert.Equal(t, "DN01ABCD", devices[0].Metadata[detection.MetaSerial])
	assert.Equal(t, "0403:6015", devices[0].Metadata[detection.MetaVIDPID])
	assert.Equal(t, "XBee Shield", devices[1].Name)
	assert.Empty(t, *probed, "passive mode never opens a port")
}

func TestDetect_SafeProbesUSBPortsOnly(t *testing.T) {
	stubPorts(t, testPorts, nil)
	probed := stubProbe(t, map[string]map[string]string{
		"/dev/ttyUSB1": {detection.MetaBaudRate: "115200", detection.MetaAPIMode: "API"},
	})

	opts := detection.DefaultOptions()

	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB1", devices[0].Path)
	assert.Equal(t, detection.High, devices[0].Confidence)
	assert.Equal(t, "115200", devices[0].Metadata[detection.MetaBaudRate])
	assert.Equal(t, "AAAA:BBBB", devices[0].Metadata[detection.MetaVIDPID])
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0"}, *probed)
}

func TestDetect_FullProbesEveryPort(t *testing.T) {
	stubPorts(t, testPorts, nil)
	probed := stubProbe(t, map[string]map[string]string{
		"/dev/ttyS0": {detection.MetaNodeID: "COORD"},
	})

	opts := detection.DefaultOptions()
	opts.Mode = detection.Full

	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyS0", devices[0].Name)
	assert.Equal(t, "COORD", devices[0].Metadata[detection.MetaNodeID])
	assert.Len(t, *probed, 4)
}

func TestDetect_SkipsBlockedAndIgnored(t *testing.T) {
	stubPorts(t, testPorts, nil)
	probed := stubProbe(t, nil)

	opts := detection.DefaultOptions()
	opts.Blocklist = []string{"0403:6015"}
	opts.IgnorePaths = []string{"/dev/ttyUSB1"}

	_, err := New().Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
	assert.Equal(t, []string{"/dev/ttyACM0"}, *probed)
}

func TestDetect_EnumerationFailure(t *testing.T) {
	stubPorts(t, nil, errors.New("permission denied"))

	opts := detection.DefaultOptions()
	_, err := New().Detect(context.Background(), &opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestDetect_StopsWhenCancelled(t *testing.T) {
	stubPorts(t, testPorts, nil)
	probed := stubProbe(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := detection.DefaultOptions()
	_, err := New().Detect(ctx, &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
	assert.Empty(t, *probed)
}

func TestIsLikelyXBee(t *testing.T) {
	tests := []struct {
		name string
		port serialPort
		want bool
	}{
		{"FTDI", serialPort{VIDPID: "0403:6001"}, true},
		{"LowercaseVIDPID", serialPort{VIDPID: "10c4:ea60"}, true},
		{"ProductName", serialPort{Product: "Digi XBIB-U-DEV"}, true},
		{"Unknown", serialPort{VIDPID: "AAAA:BBBB", Product: "Modem"}, false},
		{"Empty", serialPort{}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isLikelyXBee(&tc.port))
		})
	}
}

func TestProbeDevice_GivesUpOnMissingPort(t *testing.T) {
	opts := detection.DefaultOptions()
	opts.BaudRates = []int{9600}

	meta, ok := probeDevice(context.Background(), "/dev/xbee-does-not-exist", &opts)
	assert.False(t, ok)
	assert.Nil(t, meta)
}
