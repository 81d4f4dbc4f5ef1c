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

// State is the phase of the current or last discovery run
type State int32

const (
	StateIdle State = iota
	StateConfiguring
	StateDiscovering
	StateRestoring
	StateFinished
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateConfiguring: "configuring",
	StateDiscovering: "discovering",
	StateRestoring:   "restoring",
	StateFinished:    "finished",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Running reports whether a run is in progress in this state.
func (s State) Running() bool {
	return s == StateConfiguring || s == StateDiscovering || s == StateRestoring
}
