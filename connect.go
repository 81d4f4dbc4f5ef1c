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
	"time"

	"github.com/ZaparooProject/go-xbee/detection"
	"github.com/ZaparooProject/go-xbee/frame"
)

// ErrModeMismatch is returned by Init when the module reports a different
// API mode than the device is configured for.
var ErrModeMismatch = errors.New("module operating mode does not match configuration")

// Init verifies that the module answers API frames by reading its AP
// parameter. A module in transparent mode never answers; a module in the
// other API mode returns ErrModeMismatch.
func (d *Device) Init(ctx context.Context) error {
	value, err := d.GetParameter(ctx, CmdAPIMode)
	if err != nil {
		return fmt.Errorf("failed to read API mode: %w", err)
	}
	n, err := DecodeUint(value)
	if err != nil {
		return fmt.Errorf("failed to read API mode: %w", err)
	}

	reported := frame.ParseOperatingMode(byte(n))
	if reported != d.config.Mode {
		return fmt.Errorf("%w: module reports %s, configured for %s", ErrModeMismatch, reported, d.config.Mode)
	}
	return nil
}

// Connect creates a device on transport and opens it, retrying transient
// open failures with the connection backoff.
func Connect(ctx context.Context, transport Transport, opts ...Option) (*Device, error) {
	device, err := New(transport, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	err = RetryWithConfig(ctx, ConnectionRetryConfig(), func() error {
		return device.Open(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	return device, nil
}

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory is a function type for creating transports from detected devices
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// DeviceDetector finds candidate modules for auto-detection.
type DeviceDetector func(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

// connectConfig holds configuration options for device connection
type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	deviceDetector         DeviceDetector
	deviceOptions          []Option
	timeout                time.Duration
	autoDetect             bool
	skipInit               bool
	connectionRetries      int
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithConnectTimeout bounds the whole connection sequence.
func WithConnectTimeout(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) error {
		c.timeout = timeout
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithConnectionRetries sets the number of connection retry attempts
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("connection retries must be at least 1, got %d", maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithDeviceDetector sets a custom device detector function for auto-detection
func WithDeviceDetector(detector DeviceDetector) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

// WithoutInit skips the AP probe after opening, for modules that restrict
// parameter reads.
func WithoutInit() ConnectOption {
	return func(c *connectConfig) error {
		c.skipInit = true
		return nil
	}
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{
		timeout:           30 * time.Second,
		connectionRetries: DefaultConnectionRetries,
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	return config, nil
}

// ConnectDevice creates, opens and verifies a device from a path or by
// auto-detection.
//
// Example usage:
//
//	// Connect to specific port
//	device, err := xbee.ConnectDevice(ctx, "/dev/ttyUSB0", xbee.WithTransportFactory(factory))
//
//	// Auto-detect module
//	device, err := xbee.ConnectDevice(ctx, "", xbee.WithAutoDetection(),
//		xbee.WithTransportFromDeviceFactory(deviceFactory))
func ConnectDevice(ctx context.Context, path string, opts ...ConnectOption) (*Device, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, err
	}

	if config.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.timeout)
		defer cancel()
	}

	transport, err := createTransport(ctx, path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	device, err := setupDeviceWithRetry(ctx, transport, config)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	return device, nil
}

func createTransport(ctx context.Context, path string, config *connectConfig) (Transport, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedTransport(ctx, config.transportDeviceFactory, config.deviceDetector)
	}
	return createManualTransport(path, config.transportFactory)
}

func setupDevice(ctx context.Context, transport Transport, config *connectConfig) (*Device, error) {
	device, err := New(transport, config.deviceOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	if err := device.Open(ctx); err != nil {
		return nil, err
	}

	if !config.skipInit {
		if err := device.Init(ctx); err != nil {
			_ = device.Close()
			return nil, fmt.Errorf("failed to initialize device: %w", err)
		}
	}

	return device, nil
}

// setupDeviceWithRetry wraps setupDevice with retry logic for connection attempts
func setupDeviceWithRetry(ctx context.Context, transport Transport, config *connectConfig) (*Device, error) {
	// Auto-detection already probed the port
	if config.autoDetect {
		return setupDevice(ctx, transport, config)
	}

	retryConfig := ConnectionRetryConfig()
	retryConfig.MaxAttempts = config.connectionRetries

	var device *Device
	err := RetryWithConfig(ctx, retryConfig, func() error {
		var err error
		device, err = setupDevice(ctx, transport, config)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup device after %d attempts: %w", config.connectionRetries, err)
	}

	return device, nil
}

// createManualTransport handles creation of transport for a specific path
func createManualTransport(path string, factory TransportFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}

	return transport, nil
}

// createAutoDetectedTransport handles auto-detection of devices
func createAutoDetectedTransport(
	ctx context.Context,
	factory TransportFromDeviceFactory,
	detector DeviceDetector,
) (Transport, error) {
	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe

	if detector == nil {
		detector = detection.DetectAll
	}

	devices, err := detector(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	// Use the first detected device
	device := devices[0]
	Debugf("auto-detected %s", device)
	if factory == nil {
		return nil, errors.New("transport device factory not provided")
	}
	return factory(device)
}
