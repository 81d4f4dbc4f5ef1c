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

// Package uart detects XBee modules on serial ports. Importing it registers
// the detector with the detection package.
package uart

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	xbee "github.com/ZaparooProject/go-xbee"
	"github.com/ZaparooProject/go-xbee/detection"
	"github.com/ZaparooProject/go-xbee/frame"
	"github.com/ZaparooProject/go-xbee/transport/uart"
	"go.bug.st/serial/enumerator"
)

const (
	transportName = "uart"
	probeTimeout  = 750 * time.Millisecond
)

// USB bridges found on XBee carrier boards and explorer dongles.
var knownBridges = []string{
	"0403:6001", // FTDI FT232R
	"0403:6015", // FTDI FT231X (Digi XBIB, SparkFun Explorer)
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
	"067B:2303", // Prolific PL2303
}

var productKeywords = []string{"xbee", "digi", "zigbee"}

// serialPort is one enumerated port.
type serialPort struct {
	Path         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
}

// Swapped out in tests.
var (
	listPortsFn   = listPorts
	probeDeviceFn = probeDevice
)

type detector struct{}

// New creates a UART detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns "uart".
func (*detector) Transport() string {
	return transportName
}

// Detect lists serial ports and, outside Passive mode, probes each one
// with an AP query at every configured baud rate.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := listPortsFn()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for i := range ports {
		if ctx.Err() != nil {
			break
		}
		port := &ports[i]
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		if device, ok := d.processPort(ctx, port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// processPort decides what a port is worth. Passive mode reports likely
// bridges without opening them. Safe mode probes USB ports only and Full
// mode probes every port; both report only ports that answered.
func (*detector) processPort(ctx context.Context, port *serialPort, opts *detection.Options) (detection.DeviceInfo, bool) {
	device := detection.DeviceInfo{
		Transport:  transportName,
		Path:       port.Path,
		Name:       port.Product,
		Confidence: detection.Low,
		Metadata:   portMetadata(port),
	}
	if device.Name == "" {
		device.Name = port.Path
	}

	switch opts.Mode {
	case detection.Passive:
		if !isLikelyXBee(port) {
			return detection.DeviceInfo{}, false
		}
		device.Confidence = detection.Medium
		return device, true
	case detection.Safe:
		if !port.IsUSB {
			return detection.DeviceInfo{}, false
		}
	case detection.Full:
	default:
		return detection.DeviceInfo{}, false
	}

	meta, ok := probeDeviceFn(ctx, port.Path, opts)
	if !ok {
		return detection.DeviceInfo{}, false
	}
	for k, v := range meta {
		device.Metadata[k] = v
	}
	device.Confidence = detection.High
	return device, true
}

func portMetadata(port *serialPort) map[string]string {
	meta := make(map[string]string)
	if port.VIDPID != "" {
		meta[detection.MetaVIDPID] = port.VIDPID
	}
	if port.Product != "" {
		meta[detection.MetaProduct] = port.Product
	}
	if port.SerialNumber != "" {
		meta[detection.MetaSerial] = port.SerialNumber
	}
	return meta
}

// isLikelyXBee reports whether the port's USB descriptors match a known
// bridge or name the module.
func isLikelyXBee(port *serialPort) bool {
	if detection.IsBlocked(port.VIDPID, knownBridges) {
		return true
	}
	product := strings.ToLower(port.Product)
	for _, keyword := range productKeywords {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}

func listPorts() ([]serialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerator: %w", err)
	}

	ports := make([]serialPort, 0, len(details))
	for _, d := range details {
		port := serialPort{
			Path:         d.Name,
			Product:      d.Product,
			SerialNumber: d.SerialNumber,
			IsUSB:        d.IsUSB,
		}
		if d.IsUSB && d.VID != "" && d.PID != "" {
			port.VIDPID = strings.ToUpper(d.VID + ":" + d.PID)
		}
		ports = append(ports, port)
	}
	return ports, nil
}

// probeDevice tries each baud rate once. A port that never answers is not
// retried; the connection backoff applies only to known modules.
func probeDevice(ctx context.Context, path string, opts *detection.Options) (map[string]string, bool) {
	rates := opts.BaudRates
	if len(rates) == 0 {
		rates = detection.DefaultBaudRates()
	}

	for _, baud := range rates {
		if ctx.Err() != nil {
			return nil, false
		}
		meta, err := probeAtBaud(ctx, path, baud, opts.Mode)
		if err == nil {
			return meta, true
		}
		xbee.Debugf("probe %s at %d baud: %v", path, baud, err)
	}
	return nil, false
}

func probeAtBaud(ctx context.Context, path string, baud int, mode detection.Mode) (map[string]string, error) {
	tr, err := uart.New(path, uart.WithBaudRate(baud))
	if err != nil {
		return nil, err
	}
	device, err := xbee.New(tr, xbee.WithReceiveTimeout(probeTimeout))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 4*probeTimeout)
	defer cancel()

	if err := device.Open(ctx); err != nil {
		_ = tr.Close()
		return nil, err
	}
	defer func() { _ = device.Close() }()

	ap, err := device.GetParameter(ctx, xbee.CmdAPIMode)
	if err != nil {
		return nil, err
	}

	meta := map[string]string{detection.MetaBaudRate: strconv.Itoa(baud)}
	if n, err := xbee.DecodeUint(ap); err == nil {
		meta[detection.MetaAPIMode] = frame.ParseOperatingMode(byte(n)).String()
	}
	if mode == detection.Full {
		readIdentity(ctx, device, meta)
	}
	return meta, nil
}

// readIdentity adds whatever of SH, SL, NI and VR the module returns.
func readIdentity(ctx context.Context, device *xbee.Device, meta map[string]string) {
	sh, errHigh := device.GetParameter(ctx, xbee.CmdSerialHigh)
	sl, errLow := device.GetParameter(ctx, xbee.CmdSerialLow)
	if errHigh == nil && errLow == nil {
		high, err1 := xbee.DecodeUint(sh)
		low, err2 := xbee.DecodeUint(sl)
		if err1 == nil && err2 == nil {
			meta[detection.MetaAddress64] = fmt.Sprintf("%08X%08X", high, low)
		}
	}
	if ni, err := device.GetParameter(ctx, xbee.CmdNodeIdentifier); err == nil && len(ni) > 0 {
		meta[detection.MetaNodeID] = string(ni)
	}
	if vr, err := device.GetParameter(ctx, xbee.CmdFirmwareVersion); err == nil && len(vr) > 0 {
		meta[detection.MetaFirmware] = fmt.Sprintf("%X", vr)
	}
}
