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
	"os"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test in a fresh directory and closes any session log
// it leaves open.
func inTempDir(t *testing.T) {
	t.Helper()
	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() {
		_ = CloseSessionLog()
		_ = os.Chdir(origDir)
	})
}

func TestInitSessionLog_CreatesFile(t *testing.T) {
	inTempDir(t)

	path, err := InitSessionLog()
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "Log file should exist")

	matched, err := regexp.MatchString(`^xbee_\d{8}_\d{6}\.log$`, path)
	require.NoError(t, err)
	assert.True(t, matched, "Filename should match xbee_YYYYMMDD_HHMMSS.log pattern, got: %s", path)
}

func TestInitSessionLog_HeaderAndFooter(t *testing.T) {
	inTempDir(t)

	path, err := InitSessionLog()
	require.NoError(t, err)
	require.NoError(t, CloseSessionLog())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)

	contentStr := string(content)
	assert.Contains(t, contentStr, "=== XBee Debug Session Log ===")
	assert.Contains(t, contentStr, "Started:")
	assert.Contains(t, contentStr, "PID:")
	assert.Contains(t, contentStr, "Go Version:")
	assert.Contains(t, contentStr, "Command Line:")
	assert.Contains(t, contentStr, "=== Session ended ===")
}

func TestSessionLog_ReceivesDebugWhenConsoleIsQuiet(t *testing.T) {
	inTempDir(t)
	console := captureConsole(t, false)

	path, err := InitSessionLog()
	require.NoError(t, err)

	Debugf("frame % X", []byte{0x7E, 0x00})
	require.NoError(t, CloseSessionLog())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)
	assert.Contains(t, string(content), `"level":"debug"`)
	assert.Contains(t, string(content), "frame 7E 00")
	assert.Empty(t, console.String())
}

func TestCloseSessionLog_NoFile(t *testing.T) {
	assert.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())
}

func TestGetSessionLogPath(t *testing.T) {
	inTempDir(t)

	assert.Empty(t, GetSessionLogPath())

	path, err := InitSessionLog()
	require.NoError(t, err)
	assert.Equal(t, path, GetSessionLogPath())

	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())
}
