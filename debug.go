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
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-xbee/internal/syncutil"
	"github.com/rs/zerolog"
)

var (
	debugEnabled atomic.Bool
	consoleOut   io.Writer = os.Stderr

	loggerMu syncutil.RWMutex
	logger   zerolog.Logger
)

func init() {
	// Enable debug logging if DEBUG environment variable is set
	if os.Getenv("XBEE_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
	rebuildLogger()
}

// consoleFilter drops debug output from the console unless debugging is
// enabled. The session log, when open, still receives everything.
type consoleFilter struct {
	w io.Writer
}

func (f consoleFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f consoleFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.InfoLevel && !debugEnabled.Load() {
		return len(p), nil
	}
	return f.w.Write(p)
}

// rebuildLogger installs a logger for the current console, session log and
// debug switch. Debug events are disabled at the logger unless something
// would print them, so Debugf skips formatting entirely.
func rebuildLogger() {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	console := consoleFilter{w: zerolog.ConsoleWriter{Out: consoleOut, TimeFormat: "15:04:05.000"}}

	level := zerolog.InfoLevel
	if debugEnabled.Load() {
		level = zerolog.DebugLevel
	}

	var out io.Writer = console
	if w := sessionWriter(); w != nil {
		out = zerolog.MultiLevelWriter(console, w)
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(out).Level(level).With().Timestamp().Str("lib", "xbee").Logger()
}

// Logger returns the package logger for use by sub-packages and
// applications that want to add their own fields.
func Logger() *zerolog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	return &l
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...any) {
	Logger().Debug().Msgf(format, args...)
}

// Debugln logs its arguments as a debug message.
func Debugln(args ...any) {
	if e := Logger().Debug(); e != nil {
		e.Msg(sprintln(args...))
	}
}

// Infof logs a formatted informational message.
func Infof(format string, args ...any) {
	Logger().Info().Msgf(format, args...)
}

// Warnf logs a formatted warning.
func Warnf(format string, args ...any) {
	Logger().Warn().Msgf(format, args...)
}

// SetDebugEnabled turns console debug output on or off.
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
	rebuildLogger()
}

// DebugEnabled reports whether console debug output is on.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// setConsoleOutput redirects console logging; tests use it to capture output.
func setConsoleOutput(w io.Writer) {
	loggerMu.Lock()
	consoleOut = w
	loggerMu.Unlock()
	rebuildLogger()
}

func sprintln(args ...any) string {
	s := fmt.Sprintln(args...)
	return s[:len(s)-1]
}

// logTimestamp formats times the way session log headers do.
func logTimestamp(t time.Time) string {
	return t.Format("15:04:05.000")
}
