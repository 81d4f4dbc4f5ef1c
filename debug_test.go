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
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureConsole redirects console logging to a buffer for the test.
func captureConsole(t *testing.T, debug bool) *bytes.Buffer {
	t.Helper()
	origEnabled := DebugEnabled()
	origOut := consoleOut

	var buf bytes.Buffer
	setConsoleOutput(&buf)
	SetDebugEnabled(debug)

	t.Cleanup(func() {
		SetDebugEnabled(origEnabled)
		setConsoleOutput(origOut)
	})
	return &buf
}

func TestDebugf_Console(t *testing.T) {
	buf := captureConsole(t, true)

	Debugf("test message %d", 42)

	content := buf.String()
	assert.Contains(t, content, "test message 42")
	assert.Contains(t, content, "DBG")
	assert.Contains(t, content, "xbee")
}

func TestDebugf_DisabledIsSilent(t *testing.T) {
	buf := captureConsole(t, false)

	Debugf("hidden %d", 1)
	Debugln("hidden", 2)

	assert.Empty(t, buf.String())
}

// countingStringer records how often it is formatted.
type countingStringer struct {
	calls int
}

func (s *countingStringer) String() string {
	s.calls++
	return "formatted"
}

func TestDebugf_SkipsFormattingWhenDisabled(t *testing.T) {
	buf := captureConsole(t, false)
	s := &countingStringer{}

	Debugf("RX %s", s)
	Debugln("TX", s)

	assert.Zero(t, s.calls)
	assert.Empty(t, buf.String())
	assert.Equal(t, zerolog.InfoLevel, Logger().GetLevel())

	SetDebugEnabled(true)
	Debugf("RX %s", s)
	Debugln("TX", s)

	assert.Equal(t, 2, s.calls)
	assert.Contains(t, buf.String(), "RX formatted")
	assert.Equal(t, zerolog.DebugLevel, Logger().GetLevel())
}

func TestDebugf_IncludesTimestamp(t *testing.T) {
	buf := captureConsole(t, true)

	Debugf("test message")

	matched, err := regexp.MatchString(`\d{2}:\d{2}:\d{2}\.\d{3}`, buf.String())
	require.NoError(t, err)
	assert.True(t, matched, "Should include timestamp in format HH:MM:SS.mmm, got: %s", buf.String())
}

func TestDebugln_MultipleArgs(t *testing.T) {
	buf := captureConsole(t, true)

	Debugln("value1", 42, "value2", true)

	assert.Contains(t, buf.String(), "value1 42 value2 true")
}

func TestWarnAndInfo_IgnoreDebugSwitch(t *testing.T) {
	buf := captureConsole(t, false)

	Warnf("transport lost: %s", "EOF")
	Infof("opened %s", "/dev/ttyUSB0")

	content := buf.String()
	assert.Contains(t, content, "transport lost: EOF")
	assert.Contains(t, content, "opened /dev/ttyUSB0")
}

func TestDebugf_MultipleMessages(t *testing.T) {
	buf := captureConsole(t, true)

	Debugf("message 1")
	Debugf("message 2")
	Debugf("message 3")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3, "Should have 3 log lines")
	assert.Contains(t, lines[0], "message 1")
	assert.Contains(t, lines[1], "message 2")
	assert.Contains(t, lines[2], "message 3")
}

func TestSetDebugEnabled(t *testing.T) {
	orig := DebugEnabled()
	t.Cleanup(func() { SetDebugEnabled(orig) })

	SetDebugEnabled(true)
	assert.True(t, DebugEnabled())

	SetDebugEnabled(false)
	assert.False(t, DebugEnabled())
}

func TestLogger_AddsFields(t *testing.T) {
	buf := captureConsole(t, true)

	l := Logger().With().Str("port", "COM3").Logger()
	l.Info().Msg("custom")

	content := buf.String()
	assert.Contains(t, content, "custom")
	assert.Contains(t, content, "COM3")
}

func TestSprintln(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a 1", sprintln("a", 1))
	assert.Empty(t, sprintln())
}
