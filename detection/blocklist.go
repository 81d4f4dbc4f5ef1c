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

package detection

import (
	"path/filepath"
	"strings"
)

// DefaultBlocklist returns USB devices that are never probed. Format:
// VID:PID in hexadecimal (case-insensitive).
func DefaultBlocklist() []string {
	return []string{
		"1546:01A6", // u-blox 6 GPS, binary frames reconfigure it
		"1546:01A7", // u-blox 7 GPS
		"1546:01A8", // u-blox 8 GPS
	}
}

// IsBlocked checks if a USB device is in the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	if vidpid == "" {
		return false
	}
	for _, blocked := range blocklist {
		if vidpid == strings.ToUpper(strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

// ParseVIDPID extracts VID:PID from the descriptor formats seen across
// platforms: "VID:0403 PID:6001", "vendor=0403 product=6001",
// "VID_0403&PID_6001" and plain "0403:6001". It returns "" when the
// descriptor holds no pair.
func ParseVIDPID(descriptor string) string {
	descriptor = strings.ToUpper(descriptor)

	vid := valueAfter(descriptor, "VID:", "VENDOR=", "VID=", "VID_")
	pid := valueAfter(descriptor, "PID:", "PRODUCT=", "PID=", "PID_")
	if vid != "" && pid != "" {
		return vid + ":" + pid
	}

	if parts := strings.Split(descriptor, ":"); len(parts) == 2 && isHex(parts[0]) && isHex(parts[1]) {
		return descriptor
	}
	return ""
}

// valueAfter returns the hex run following the first prefix found.
func valueAfter(s string, prefixes ...string) string {
	for _, prefix := range prefixes {
		if idx := strings.Index(s, prefix); idx >= 0 {
			return extractHex(s[idx+len(prefix):])
		}
	}
	return ""
}

// extractHex extracts the run of hex digits after any leading spaces.
func extractHex(s string) string {
	s = strings.TrimLeft(s, " \t")
	if end := strings.IndexFunc(s, func(r rune) bool { return !isHexRune(r) }); end >= 0 {
		return s[:end]
	}
	return s
}

func isHexRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') || (r >= 'a' && r <= 'f')
}

// isHex checks if a string contains only hexadecimal characters.
func isHex(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool { return !isHexRune(r) }) < 0
}

// IsPathIgnored reports whether devicePath matches one of ignorePaths,
// comparing cleaned paths case-insensitively.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}

	normalizedDevice := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath != "" && normalizedPath(ignorePath) == normalizedDevice {
			return true
		}
	}
	return false
}

// normalizedPath cleans path and lowercases it for Windows COM names.
func normalizedPath(path string) string {
	if path == "" {
		return ""
	}
	return strings.ToLower(filepath.Clean(path))
}
