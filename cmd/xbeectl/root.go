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
	"context"
	"fmt"
	"time"

	xbee "github.com/ZaparooProject/go-xbee"
	"github.com/ZaparooProject/go-xbee/frame"
	"github.com/spf13/cobra"
)

const version = "0.3.0"

// app carries state shared by every subcommand.
type app struct {
	// connectFn replaces connect when set.
	connectFn  func(ctx context.Context) (*xbee.Device, error)
	configPath string
	flags      flagValues
	cfg        config
}

type flagValues struct {
	port           string
	url            string
	spi            string
	attn           string
	username       string
	baud           int
	receiveTimeout time.Duration
	noSSLVerify    bool
	escaped        bool
	debug          bool
	sessionLog     bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "xbeectl",
		Short: "XBee API mode tool",
		Long: `xbeectl talks to XBee modules in API mode (AP=1 or AP=2).

Connection modes:
  Serial:      --port /dev/ttyUSB0 [--baud 9600]
  WebSocket:   --url ws://host/path [--username user]
  SPI:         --spi /dev/spidev0.0 [--attn GPIO25]
  Auto-detect: neither flag; the first module that answers is used

Settings can also come from a TOML file given with --config; flags win.
For WebSocket authentication the password is read from the XBEE_PASSWORD
environment variable, or prompted for when it is not set.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return xbee.CloseSessionLog()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "TOML config file")
	pf.StringVarP(&a.flags.port, "port", "p", "", "Serial port device")
	pf.IntVarP(&a.flags.baud, "baud", "b", 0, "Baud rate (serial only, default 9600)")
	pf.StringVarP(&a.flags.url, "url", "u", "", "WebSocket bridge URL (ws:// or wss://)")
	pf.StringVar(&a.flags.spi, "spi", "", "SPI port (e.g. /dev/spidev0.0), XBee 3 and S2C only")
	pf.StringVar(&a.flags.attn, "attn", "", "GPIO wired to SPI_nATTN (SPI only)")
	pf.StringVar(&a.flags.username, "username", "", "Username for HTTP Basic auth")
	pf.BoolVar(&a.flags.noSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	pf.BoolVar(&a.flags.escaped, "escaped", false, "Module runs escaped API mode (AP=2)")
	pf.DurationVar(&a.flags.receiveTimeout, "receive-timeout", defaultReceiveTimeout, "Response timeout for local requests")
	pf.BoolVar(&a.flags.debug, "debug", false, "Enable debug output")
	pf.BoolVar(&a.flags.sessionLog, "session-log", false, "Write every log message to a timestamped file")

	root.AddCommand(
		newDiscoverCmd(a),
		newATCmd(a),
		newSendCmd(a),
		newMonitorCmd(a),
		newPortsCmd(a),
	)
	return root
}

// setup merges defaults, the config file and changed flags into a.cfg.
func (a *app) setup(cmd *cobra.Command) error {
	cfg := defaultConfig()
	if a.configPath != "" {
		if err := loadConfig(a.configPath, &cfg); err != nil {
			return err
		}
	}

	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Port = a.flags.port
	}
	if changed("baud") {
		if a.flags.baud <= 0 {
			return fmt.Errorf("invalid baud rate %d", a.flags.baud)
		}
		cfg.Baud = a.flags.baud
	}
	if changed("url") {
		cfg.URL = a.flags.url
	}
	if changed("spi") {
		cfg.SPI = a.flags.spi
	}
	if changed("attn") {
		cfg.AttnPin = a.flags.attn
	}
	if changed("username") {
		cfg.Username = a.flags.username
	}
	if changed("no-ssl-verify") {
		cfg.InsecureSkipVerify = a.flags.noSSLVerify
	}
	if changed("escaped") {
		cfg.Mode = frame.ModeAPI
		if a.flags.escaped {
			cfg.Mode = frame.ModeAPIEscaped
		}
	}
	if changed("receive-timeout") {
		cfg.ReceiveTimeout = a.flags.receiveTimeout
	}
	if changed("debug") {
		cfg.Debug = a.flags.debug
	}
	if changed("session-log") {
		cfg.SessionLog = a.flags.sessionLog
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if cfg.Debug {
		xbee.SetDebugEnabled(true)
	}
	if cfg.SessionLog {
		path, err := xbee.InitSessionLog()
		if err != nil {
			return err
		}
		xbee.Infof("session log: %s", path)
	}
	return nil
}
