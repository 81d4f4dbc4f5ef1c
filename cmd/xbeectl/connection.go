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

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	xbee "github.com/ZaparooProject/go-xbee"
	"github.com/ZaparooProject/go-xbee/detection"
	"github.com/ZaparooProject/go-xbee/frame"
	"github.com/ZaparooProject/go-xbee/transport/spi"
	"github.com/ZaparooProject/go-xbee/transport/uart"
	"github.com/ZaparooProject/go-xbee/transport/ws"
	"golang.org/x/term"
)

const (
	connectTimeout = 15 * time.Second
	passwordEnv    = "XBEE_PASSWORD"
)

// getPassword reads the bridge password from XBEE_PASSWORD or prompts for
// it without echo.
func getPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal; read a line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

func (a *app) deviceOptions() []xbee.Option {
	return []xbee.Option{
		xbee.WithOperatingMode(a.cfg.Mode),
		xbee.WithReceiveTimeout(a.cfg.ReceiveTimeout),
	}
}

// connect opens the module named by the configuration: the WebSocket URL,
// the SPI port or the serial port, else the first module auto-detection
// finds.
func (a *app) connect(ctx context.Context) (*xbee.Device, error) {
	if a.connectFn != nil {
		return a.connectFn(ctx)
	}

	opts := []xbee.ConnectOption{
		xbee.WithDeviceOptions(a.deviceOptions()...),
		xbee.WithConnectTimeout(connectTimeout),
	}

	switch {
	case a.cfg.URL != "":
		opts = append(opts, xbee.WithTransportFactory(a.newWebSocketTransport))
		return xbee.ConnectDevice(ctx, a.cfg.URL, opts...)
	case a.cfg.SPI != "":
		opts = append(opts, xbee.WithTransportFactory(a.newSPITransport))
		return xbee.ConnectDevice(ctx, a.cfg.SPI, opts...)
	case a.cfg.Port != "":
		opts = append(opts, xbee.WithTransportFactory(a.newSerialTransport))
		return xbee.ConnectDevice(ctx, a.cfg.Port, opts...)
	default:
		opts = append(opts,
			xbee.WithAutoDetection(),
			xbee.WithTransportFromDeviceFactory(a.transportFromDevice))
		return xbee.ConnectDevice(ctx, "", opts...)
	}
}

func (a *app) newSerialTransport(path string) (xbee.Transport, error) {
	return a.serialTransport(path, a.cfg.Baud)
}

func (*app) serialTransport(path string, baud int) (xbee.Transport, error) {
	transport, err := uart.New(path, uart.WithBaudRate(baud))
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return transport, nil
}

func (a *app) newSPITransport(path string) (xbee.Transport, error) {
	var opts []spi.Option
	if a.cfg.AttnPin != "" {
		opts = append(opts, spi.WithAttnPin(a.cfg.AttnPin))
	}
	transport, err := spi.New(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SPI transport for %s: %w", path, err)
	}
	return transport, nil
}

func (a *app) newWebSocketTransport(rawURL string) (xbee.Transport, error) {
	opts := []ws.Option{ws.WithInsecureSkipVerify(a.cfg.InsecureSkipVerify)}
	if a.cfg.Username != "" {
		password, err := getPassword()
		if err != nil {
			return nil, err
		}
		opts = append(opts, ws.WithBasicAuth(a.cfg.Username, password))
	}

	transport, err := ws.New(rawURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebSocket transport: %w", err)
	}
	return transport, nil
}

// transportFromDevice opens a detected module at the baud rate it
// answered on.
func (a *app) transportFromDevice(info detection.DeviceInfo) (xbee.Transport, error) {
	if info.Transport != "uart" {
		return nil, fmt.Errorf("unsupported transport type: %s", info.Transport)
	}

	baud := a.cfg.Baud
	if s, ok := info.Metadata[detection.MetaBaudRate]; ok {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			baud = n
		}
	}
	if info.Metadata[detection.MetaAPIMode] == frame.ModeAPIEscaped.String() && a.cfg.Mode != frame.ModeAPIEscaped {
		xbee.Warnf("%s runs escaped API mode; pass --escaped", info.Path)
	}
	return a.serialTransport(info.Path, baud)
}
