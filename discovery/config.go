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
	"fmt"
	"strings"
	"time"
)

// Options is the node discovery option bit set stored in the NO parameter.
type Options byte

// Discovery option bits
const (
	// AppendDeviceType adds the 4-byte device type to every response
	AppendDeviceType Options = 0x01
	// IncludeSelf makes the local module answer its own ND
	IncludeSelf Options = 0x02
	// AppendRSSI adds the RSSI of the last hop to every response
	AppendRSSI Options = 0x04

	allOptions = AppendDeviceType | IncludeSelf | AppendRSSI
)

// Has reports whether every bit of flag is set.
func (o Options) Has(flag Options) bool {
	return o&flag == flag
}

func (o Options) String() string {
	if o == 0 {
		return "none"
	}
	var parts []string
	if o.Has(AppendDeviceType) {
		parts = append(parts, "device-type")
	}
	if o.Has(IncludeSelf) {
		parts = append(parts, "self")
	}
	if o.Has(AppendRSSI) {
		parts = append(parts, "rssi")
	}
	if rest := o &^ allOptions; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02X", byte(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseOptions is the inverse of Options.String. Names may be separated
// by '|' or ','; "none" and "" mean no options.
func ParseOptions(s string) (Options, error) {
	var o Options
	for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "", "none":
		case "device-type":
			o |= AppendDeviceType
		case "self":
			o |= IncludeSelf
		case "rssi":
			o |= AppendRSSI
		default:
			return 0, fmt.Errorf("%w: unknown discovery option %q", ErrInvalidConfig, name)
		}
	}
	return o, nil
}

// NT is expressed in units of 100 ms.
const (
	timeoutUnit    = 100 * time.Millisecond
	maxTimeoutUnit = 0xFF
)

// Defaults used when the module cannot report its own values.
const (
	// DefaultTimeout is the XBee factory NT value (0x3C).
	DefaultTimeout = 6 * time.Second
	// DefaultGrace is added to the discovery window for responses still in
	// flight when NT expires.
	DefaultGrace = 250 * time.Millisecond
	// restoreTimeout bounds parameter restoration after the caller's
	// context is gone.
	restoreTimeout = 5 * time.Second
)

// Config holds discovery configuration
type Config struct {
	// NodeID restricts discovery to the module with this node identifier.
	// Empty discovers every module.
	NodeID string
	// Timeout replaces NT for the run when non-zero. It is rounded up to
	// 100 ms and limited to 25.5 s.
	Timeout time.Duration
	// Grace extends the listening window past NT
	Grace time.Duration
	// Options replaces NO for the run when SetOptions is true
	Options    Options
	SetOptions bool
}

// DefaultConfig returns the default discovery configuration: the module's
// own NO and NT are used unchanged.
func DefaultConfig() *Config {
	return &Config{
		Grace: DefaultGrace,
	}
}

// Option configures a Discoverer
type Option func(*Config) error

// WithOptions sets NO for the duration of each run.
func WithOptions(opts Options) Option {
	return func(c *Config) error {
		if opts&^allOptions != 0 {
			return fmt.Errorf("%w: unknown option bits 0x%02X", ErrInvalidConfig, byte(opts&^allOptions))
		}
		c.Options = opts
		c.SetOptions = true
		return nil
	}
}

// WithTimeout sets NT for the duration of each run.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 || timeout > maxTimeoutUnit*timeoutUnit {
			return fmt.Errorf("%w: timeout %s out of range", ErrInvalidConfig, timeout)
		}
		c.Timeout = timeout
		return nil
	}
}

// WithGrace sets the extra listening time after NT.
func WithGrace(grace time.Duration) Option {
	return func(c *Config) error {
		if grace < 0 {
			return fmt.Errorf("%w: negative grace %s", ErrInvalidConfig, grace)
		}
		c.Grace = grace
		return nil
	}
}

// WithNodeID restricts discovery to one node identifier.
func WithNodeID(nodeID string) Option {
	return func(c *Config) error {
		if len(nodeID) > maxNodeIDLength {
			return fmt.Errorf("%w: node identifier longer than %d bytes", ErrInvalidConfig, maxNodeIDLength)
		}
		c.NodeID = nodeID
		return nil
	}
}

// timeoutUnits converts a duration to NT units, rounding up.
func timeoutUnits(d time.Duration) byte {
	units := (d + timeoutUnit - 1) / timeoutUnit
	switch {
	case units < 1:
		return 1
	case units > maxTimeoutUnit:
		return maxTimeoutUnit
	default:
		return byte(units)
	}
}
