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

package packet

import (
	"fmt"
	"strconv"
	"strings"
)

// Address64 is a module's 64-bit IEEE address (SH followed by SL).
type Address64 uint64

// Address16 is a module's 16-bit network address (MY).
type Address16 uint16

// Well-known addresses
const (
	Coordinator64 Address64 = 0x0000000000000000
	Broadcast64   Address64 = 0x000000000000FFFF
	Unknown64     Address64 = 0xFFFFFFFFFFFFFFFF

	Broadcast16 Address16 = 0xFFFF
	Unknown16   Address16 = 0xFFFE
)

// String formats the address as 16 upper-case hex digits.
func (a Address64) String() string {
	return fmt.Sprintf("%016X", uint64(a))
}

// String formats the address as 4 upper-case hex digits.
func (a Address16) String() string {
	return fmt.Sprintf("%04X", uint16(a))
}

// ParseAddress64 parses up to 16 hex digits. Separators ':', '-' and spaces
// and an optional 0x prefix are accepted.
func ParseAddress64(s string) (Address64, error) {
	v, err := parseHexAddress(s, 64)
	if err != nil {
		return 0, err
	}
	return Address64(v), nil
}

// ParseAddress16 parses up to 4 hex digits.
func ParseAddress16(s string) (Address16, error) {
	v, err := parseHexAddress(s, 16)
	if err != nil {
		return 0, err
	}
	return Address16(v), nil
}

func parseHexAddress(s string, bits int) (uint64, error) {
	clean := strings.NewReplacer(":", "", "-", "", " ", "").Replace(strings.TrimSpace(s))
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	if clean == "" || len(clean) > bits/4 {
		return 0, fmt.Errorf("invalid %d-bit address %q", bits, s)
	}
	v, err := strconv.ParseUint(clean, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %d-bit address %q: %w", bits, s, err)
	}
	return v, nil
}
