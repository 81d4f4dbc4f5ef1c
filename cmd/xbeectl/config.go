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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ZaparooProject/go-xbee/discovery"
	"github.com/ZaparooProject/go-xbee/frame"
	"github.com/ZaparooProject/go-xbee/transport/uart"
)

const defaultReceiveTimeout = 2 * time.Second

// config is the merged result of defaults, the config file and flags.
type config struct {
	Port               string
	URL                string
	SPI                string
	AttnPin            string
	Username           string
	MetricsListen      string
	DiscoveryNodeID    string
	Baud               int
	ReceiveTimeout     time.Duration
	DiscoveryTimeout   time.Duration
	DiscoveryGrace     time.Duration
	Mode               frame.OperatingMode
	DiscoveryOptions   discovery.Options
	InsecureSkipVerify bool
	Debug              bool
	SessionLog         bool
	// SetDiscoveryOptions writes DiscoveryOptions to NO for each run, even
	// when it is zero.
	SetDiscoveryOptions bool
}

func defaultConfig() config {
	return config{
		Baud:           uart.DefaultBaudRate,
		Mode:           frame.ModeAPI,
		ReceiveTimeout: defaultReceiveTimeout,
		DiscoveryGrace: discovery.DefaultGrace,
	}
}

type fileConfig struct {
	Port               string `toml:"port"`
	URL                string `toml:"url"`
	SPI                string `toml:"spi"`
	AttnPin            string `toml:"attn"`
	Username           string `toml:"username"`
	ReceiveTimeout     string `toml:"receive_timeout"`
	Baud               int    `toml:"baud"`
	Escaped            bool   `toml:"escaped"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	Debug              bool   `toml:"debug"`
	SessionLog         bool   `toml:"session_log"`
	Discovery          struct {
		Timeout string   `toml:"timeout"`
		Grace   string   `toml:"grace"`
		NodeID  string   `toml:"node_id"`
		Options []string `toml:"options"`
	} `toml:"discovery"`
	Metrics struct {
		Listen string `toml:"listen"`
	} `toml:"metrics"`
}

// loadConfig overlays the keys defined in the TOML file at path onto cfg.
func loadConfig(path string, cfg *config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("spi") {
		cfg.SPI = strings.TrimSpace(raw.SPI)
	}
	if meta.IsDefined("attn") {
		cfg.AttnPin = strings.TrimSpace(raw.AttnPin)
	}
	if meta.IsDefined("username") {
		cfg.Username = raw.Username
	}
	if meta.IsDefined("baud") {
		if raw.Baud <= 0 {
			return fmt.Errorf("load config: invalid baud %d", raw.Baud)
		}
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("escaped") {
		cfg.Mode = frame.ModeAPI
		if raw.Escaped {
			cfg.Mode = frame.ModeAPIEscaped
		}
	}
	if meta.IsDefined("insecure_skip_verify") {
		cfg.InsecureSkipVerify = raw.InsecureSkipVerify
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}
	if meta.IsDefined("session_log") {
		cfg.SessionLog = raw.SessionLog
	}
	if meta.IsDefined("receive_timeout") {
		if cfg.ReceiveTimeout, err = parseDuration("receive_timeout", raw.ReceiveTimeout); err != nil {
			return err
		}
	}

	if meta.IsDefined("discovery", "timeout") {
		if cfg.DiscoveryTimeout, err = parseDuration("discovery.timeout", raw.Discovery.Timeout); err != nil {
			return err
		}
	}
	if meta.IsDefined("discovery", "grace") {
		if cfg.DiscoveryGrace, err = parseDuration("discovery.grace", raw.Discovery.Grace); err != nil {
			return err
		}
	}
	if meta.IsDefined("discovery", "node_id") {
		cfg.DiscoveryNodeID = raw.Discovery.NodeID
	}
	if meta.IsDefined("discovery", "options") {
		if cfg.DiscoveryOptions, err = discovery.ParseOptions(strings.Join(raw.Discovery.Options, ",")); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg.SetDiscoveryOptions = true
	}

	if meta.IsDefined("metrics", "listen") {
		cfg.MetricsListen = strings.TrimSpace(raw.Metrics.Listen)
	}
	return nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration %s", key, d)
	}
	return d, nil
}

// validate rejects connection settings that cannot work together.
func (c *config) validate() error {
	targets := 0
	for _, v := range []string{c.Port, c.URL, c.SPI} {
		if v != "" {
			targets++
		}
	}
	if targets > 1 {
		return errors.New("--port, --url and --spi are mutually exclusive")
	}
	if c.SPI != "" && c.Mode == frame.ModeAPIEscaped {
		return errors.New("SPI modules only run unescaped API mode; drop --escaped")
	}
	if c.AttnPin != "" && c.SPI == "" {
		return errors.New("--attn requires --spi")
	}
	return nil
}

// discoveryOptions builds the discoverer options from cfg. A zero timeout
// leaves the module's NT alone.
func (c *config) discoveryOptions() []discovery.Option {
	opts := []discovery.Option{discovery.WithGrace(c.DiscoveryGrace)}
	if c.DiscoveryTimeout > 0 {
		opts = append(opts, discovery.WithTimeout(c.DiscoveryTimeout))
	}
	if c.SetDiscoveryOptions {
		opts = append(opts, discovery.WithOptions(c.DiscoveryOptions))
	}
	if c.DiscoveryNodeID != "" {
		opts = append(opts, discovery.WithNodeID(c.DiscoveryNodeID))
	}
	return opts
}
