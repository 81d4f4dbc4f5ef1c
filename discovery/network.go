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
	"github.com/ZaparooProject/go-xbee/internal/syncutil"
	"github.com/ZaparooProject/go-xbee/packet"
)

// Network is the set of remote devices found so far, keyed by 64-bit
// address. It is safe for concurrent use; every accessor returns copies.
type Network struct {
	devices map[packet.Address64]*RemoteDevice
	order   []packet.Address64
	mu      syncutil.RWMutex
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{devices: make(map[packet.Address64]*RemoteDevice)}
}

// Add records dev. A device already known by its 64-bit address is updated
// in place and keeps its position; Add reports whether dev was new.
func (n *Network) Add(dev *RemoteDevice) bool {
	if dev == nil {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if existing, ok := n.devices[dev.Address64]; ok {
		*existing = *dev
		return false
	}
	n.devices[dev.Address64] = dev.clone()
	n.order = append(n.order, dev.Address64)
	return true
}

// Get returns the device with the given 64-bit address.
func (n *Network) Get(addr packet.Address64) (*RemoteDevice, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	dev, ok := n.devices[addr]
	if !ok {
		return nil, false
	}
	return dev.clone(), true
}

// GetByNodeID returns the first device with the given node identifier.
func (n *Network) GetByNodeID(nodeID string) (*RemoteDevice, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, addr := range n.order {
		if dev := n.devices[addr]; dev.NodeID == nodeID {
			return dev.clone(), true
		}
	}
	return nil, false
}

// Devices returns every device in discovery order.
func (n *Network) Devices() []*RemoteDevice {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]*RemoteDevice, 0, len(n.order))
	for _, addr := range n.order {
		out = append(out, n.devices[addr].clone())
	}
	return out
}

func (n *Network) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.order)
}

// Clear forgets every device.
func (n *Network) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	clear(n.devices)
	n.order = nil
}
